package domain

import (
	"fmt"
	"strings"
)

// Role identifies the author of a conversation turn.
type Role string

const (
	// RoleUser is a turn written by the end user.
	RoleUser Role = "user"
	// RoleAssistant is a turn produced by a model.
	RoleAssistant Role = "assistant"
)

// Turn is a single message in an ordered conversation.
type Turn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Sampling holds generation parameters. Nil pointers mean "use the model default".
type Sampling struct {
	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// IsDeterministic reports whether the sampling explicitly pins temperature to zero.
func (s Sampling) IsDeterministic() bool {
	return s.Temperature != nil && *s.Temperature == 0
}

// Merge returns s with unset fields filled from defaults.
func (s Sampling) Merge(defaults Sampling) Sampling {
	out := s
	if out.Temperature == nil {
		out.Temperature = defaults.Temperature
	}
	if out.TopP == nil {
		out.TopP = defaults.TopP
	}
	if out.MaxTokens == 0 {
		out.MaxTokens = defaults.MaxTokens
	}
	if len(out.Stop) == 0 {
		out.Stop = defaults.Stop
	}
	return out
}

// Bucket returns a coarse label used to partition semantic cache entries.
// Requests sampled at visibly different temperatures never share an entry.
func (s Sampling) Bucket() string {
	if s.Temperature == nil {
		return "tdefault"
	}
	return fmt.Sprintf("t%.1f", *s.Temperature)
}

// GenerationRequest is an immutable, per-call request for model output.
type GenerationRequest struct {
	UsageType    string   `json:"usage_type"`
	Conversation []Turn   `json:"conversation"`
	SystemPrompt string   `json:"system_prompt,omitempty"`
	Sampling     Sampling `json:"sampling"`
	ScopeKey     string   `json:"scope_key,omitempty"`
}

// Validate checks the request is routable.
func (r *GenerationRequest) Validate() error {
	if strings.TrimSpace(r.UsageType) == "" {
		return fmt.Errorf("%w: usage_type is required", ErrInvalidRequest)
	}
	if len(r.Conversation) == 0 {
		return fmt.Errorf("%w: conversation must have at least one turn", ErrInvalidRequest)
	}
	for i, t := range r.Conversation {
		if t.Role != RoleUser && t.Role != RoleAssistant {
			return fmt.Errorf("%w: turn %d has unknown role %q", ErrInvalidRequest, i, t.Role)
		}
	}
	if t := r.Sampling.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("%w: temperature must be within [0, 2]", ErrInvalidRequest)
	}
	return nil
}

// Float64 returns a pointer to v. Handy for optional sampling fields.
func Float64(v float64) *float64 { return &v }
