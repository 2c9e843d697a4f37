package router

import (
	"context"
	"fmt"
	"sort"

	"github.com/kailas-cloud/aiorch/internal/domain"
)

// StaticSource serves model configs loaded once from configuration.
type StaticSource struct {
	models map[string]domain.ModelConfig
	chains map[string][]string
}

// NewStaticSource creates a source from configs keyed by id and explicit chains
// (usage type -> ordered config ids). Usage types without a chain fall back to every
// config whose UsageType matches, ordered by Priority.
func NewStaticSource(models map[string]domain.ModelConfig, chains map[string][]string) (*StaticSource, error) {
	for usage, ids := range chains {
		for _, id := range ids {
			if _, ok := models[id]; !ok {
				return nil, fmt.Errorf("chain %q references unknown model config %q", usage, id)
			}
		}
	}
	return &StaticSource{models: models, chains: chains}, nil
}

// ActiveConfigs returns the active configs for usageType.
func (s *StaticSource) ActiveConfigs(_ context.Context, usageType string) ([]domain.ModelConfig, error) {
	if ids, ok := s.chains[usageType]; ok {
		out := make([]domain.ModelConfig, 0, len(ids))
		for i, id := range ids {
			cfg := s.models[id]
			if !cfg.Active {
				continue
			}
			cfg.UsageType = usageType
			cfg.Priority = i
			cfg.Primary = len(out) == 0
			out = append(out, cfg)
		}
		return out, nil
	}

	var out []domain.ModelConfig
	for _, cfg := range s.models {
		if cfg.Active && cfg.UsageType == usageType {
			out = append(out, cfg)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}
