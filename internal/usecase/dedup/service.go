package dedup

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kailas-cloud/aiorch/internal/domain"
	"github.com/kailas-cloud/aiorch/internal/metrics"
	"github.com/kailas-cloud/aiorch/internal/usecase/similarity"
)

// DefaultThreshold is the minimum similarity for a duplicate.
const DefaultThreshold = 0.85

// documentTier marks dedup documents in a similarity store shared with the semantic cache.
const documentTier = "dedup"

// Store is the similarity store slice dedup needs.
type Store interface {
	Store(ctx context.Context, doc similarity.Document) (string, error)
	Retrieve(ctx context.Context, query string, scope map[string]string, topK int, threshold float64) (
		[]domain.Match, error,
	)
	DeleteByFilter(ctx context.Context, scope map[string]string) (int, error)
}

// Scope confines duplicate detection. ProjectID is required.
type Scope struct {
	ProjectID string   `json:"project_id"`
	DocType   string   `json:"doc_type,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

// Metadata renders the scope as similarity metadata. Tags become one canonical value
// so a tag set matches exactly.
func (s Scope) Metadata() map[string]string {
	m := map[string]string{domain.MetaProjectID: s.ProjectID, domain.MetaTier: documentTier}
	if s.DocType != "" {
		m[domain.MetaDocType] = s.DocType
	}
	if tags := canonicalTags(s.Tags); tags != "" {
		m[domain.MetaTags] = tags
	}
	return m
}

// Result of a duplicate check. Score is the best similarity found in scope even
// below the threshold; Match is set only for duplicates.
type Result struct {
	IsDuplicate bool          `json:"is_duplicate"`
	Match       *domain.Match `json:"match,omitempty"`
	Score       float64       `json:"score"`
}

// Service detects semantically repeated questions and work items within a scope.
type Service struct {
	store     Store
	threshold float64
	logger    *zap.Logger
}

// New creates a dedup service. threshold <= 0 uses DefaultThreshold.
func New(store Store, threshold float64, logger *zap.Logger) *Service {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: store, threshold: threshold, logger: logger}
}

// Check reports whether text repeats something remembered in scope.
// Store failures yield a non-duplicate result and are only logged.
func (s *Service) Check(ctx context.Context, scope Scope, text string) (Result, error) {
	if scope.ProjectID == "" {
		return Result{}, domain.ErrEmptyScope
	}
	normalized := Normalize(text)
	if normalized == "" {
		return Result{}, nil
	}

	// Threshold 0 so a near miss still reports how close it came.
	matches, err := s.store.Retrieve(ctx, normalized, scope.Metadata(), 1, 0)
	if err != nil {
		s.logger.Warn("Duplicate check degraded",
			zap.String("project_id", scope.ProjectID), zap.Error(err))
		metrics.DedupChecksTotal.WithLabelValues("error").Inc()
		return Result{}, nil
	}
	if len(matches) == 0 {
		metrics.DedupChecksTotal.WithLabelValues("unique").Inc()
		return Result{}, nil
	}

	m := matches[0]
	if m.Score < s.threshold {
		metrics.DedupChecksTotal.WithLabelValues("unique").Inc()
		return Result{Score: m.Score}, nil
	}
	metrics.DedupChecksTotal.WithLabelValues("duplicate").Inc()
	s.logger.Debug("Duplicate detected",
		zap.String("project_id", scope.ProjectID),
		zap.String("match_id", m.ID),
		zap.Float64("score", m.Score),
	)
	return Result{IsDuplicate: true, Match: &m, Score: m.Score}, nil
}

// Remember stores the normalised text in scope right away and returns its id.
func (s *Service) Remember(ctx context.Context, scope Scope, text string) (string, error) {
	if scope.ProjectID == "" {
		return "", domain.ErrEmptyScope
	}
	normalized := Normalize(text)
	if normalized == "" {
		return "", fmt.Errorf("%w: text is empty after normalisation", domain.ErrInvalidRequest)
	}

	id, err := s.store.Store(ctx, similarity.Document{Text: normalized, Metadata: scope.Metadata()})
	if err != nil {
		return "", fmt.Errorf("remember: %w", err)
	}
	return id, nil
}

// ForgetScope deletes everything stored for a project, semantic cache documents
// keyed to the same scope included.
func (s *Service) ForgetScope(ctx context.Context, projectID string) (int, error) {
	if projectID == "" {
		return 0, domain.ErrEmptyScope
	}
	n, err := s.store.DeleteByFilter(ctx, map[string]string{domain.MetaProjectID: projectID})
	if err != nil {
		if errors.Is(err, domain.ErrEmptyFilter) {
			return 0, domain.ErrEmptyScope
		}
		return n, fmt.Errorf("forget scope %s: %w", projectID, err)
	}
	return n, nil
}

func canonicalTags(tags []string) string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return strings.Join(out, ";")
}
