package domain

import (
	"context"
	"errors"
	"math"
	"testing"
)

type stubEmbedder struct {
	result EmbeddingResult
	err    error
	got    string
}

func (s *stubEmbedder) Embed(_ context.Context, text string) (EmbeddingResult, error) {
	s.got = text
	return s.result, s.err
}

func TestWithPrefix(t *testing.T) {
	inner := &stubEmbedder{result: EmbeddingResult{Embedding: []float32{0.1, 0.2, 0.3}}}
	emb := WithPrefix(inner, "passage: ")

	result, err := emb.Embed(context.Background(), "which database?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if inner.got != "passage: which database?" {
		t.Errorf("expected prefixed text, got %q", inner.got)
	}
	if len(result.Embedding) != 3 {
		t.Errorf("expected 3-element vector, got %d", len(result.Embedding))
	}
	if _, ok := emb.(HealthChecker); !ok {
		t.Error("prefixed embedder must expose HealthCheck")
	}
}

func TestWithPrefix_EmptyIsIdentity(t *testing.T) {
	inner := &stubEmbedder{}
	if WithPrefix(inner, "") != Embedder(inner) {
		t.Error("empty prefix must return the inner embedder")
	}
}

func TestWithPrefix_ErrorPropagation(t *testing.T) {
	innerErr := errors.New("provider down")
	emb := WithPrefix(&stubEmbedder{err: innerErr}, "query: ")

	_, err := emb.Embed(context.Background(), "hello")
	if !errors.Is(err, innerErr) {
		t.Errorf("expected wrapped inner error, got %v", err)
	}
}

func TestNormalize(t *testing.T) {
	v := Normalize([]float32{3, 4})
	if math.Abs(float64(v[0])-0.6) > 1e-6 || math.Abs(float64(v[1])-0.8) > 1e-6 {
		t.Errorf("unexpected normalized vector: %v", v)
	}

	zero := Normalize([]float32{0, 0})
	if zero[0] != 0 || zero[1] != 0 {
		t.Errorf("zero vector must stay zero, got %v", zero)
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite clamps to zero", []float32{1, 0}, []float32{-1, 0}, 0},
		{"length mismatch", []float32{1, 0}, []float32{1}, 0},
		{"empty", nil, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Similarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Similarity = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSampling_MergeAndBucket(t *testing.T) {
	defaults := Sampling{Temperature: Float64(0.7), MaxTokens: 512}
	s := Sampling{MaxTokens: 100}.Merge(defaults)

	if s.Temperature == nil || *s.Temperature != 0.7 {
		t.Fatalf("expected default temperature, got %v", s.Temperature)
	}
	if s.MaxTokens != 100 {
		t.Errorf("explicit max_tokens must win, got %d", s.MaxTokens)
	}
	if s.Bucket() != "t0.7" {
		t.Errorf("bucket = %q, want t0.7", s.Bucket())
	}
	if (Sampling{}).Bucket() != "tdefault" {
		t.Error("unset temperature must map to the default bucket")
	}
	if !(Sampling{Temperature: Float64(0)}).IsDeterministic() {
		t.Error("temperature 0 must be deterministic")
	}
	if (Sampling{}).IsDeterministic() {
		t.Error("unset temperature must not be deterministic")
	}
}

func TestGenerationRequest_Validate(t *testing.T) {
	ok := GenerationRequest{UsageType: "interview", Conversation: []Turn{{Role: RoleUser, Content: "hi"}}}
	if err := ok.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	bad := []GenerationRequest{
		{Conversation: ok.Conversation},
		{UsageType: "interview"},
		{UsageType: "interview", Conversation: []Turn{{Role: "system", Content: "x"}}},
		{UsageType: "interview", Conversation: ok.Conversation, Sampling: Sampling{Temperature: Float64(3)}},
	}
	for i, r := range bad {
		if err := r.Validate(); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("case %d: expected ErrInvalidRequest, got %v", i, err)
		}
	}
}

func TestProviderError_Classification(t *testing.T) {
	cause := errors.New("429 too many requests")
	err := NewTransientError("openai", 429, cause)

	if !errors.Is(err, ErrTransientProvider) {
		t.Error("expected transient classification")
	}
	if errors.Is(err, ErrPermanentProvider) {
		t.Error("transient error must not match permanent")
	}
	if !errors.Is(err, cause) {
		t.Error("expected underlying cause to be preserved")
	}

	perm := NewPermanentError("anthropic", 400, errors.New("bad request"))
	if !errors.Is(perm, ErrPermanentProvider) {
		t.Error("expected permanent classification")
	}

	var pe *ProviderError
	if !errors.As(perm, &pe) || pe.StatusCode != 400 {
		t.Errorf("expected *ProviderError with status 400, got %v", perm)
	}
}

func TestChainExhaustedError(t *testing.T) {
	last := NewTransientError("openai", 503, errors.New("unavailable"))
	err := &ChainExhaustedError{UsageType: "task_breakdown", Attempts: 2, Last: last}

	if !errors.Is(err, ErrChainExhausted) {
		t.Error("expected ErrChainExhausted")
	}
	if !errors.Is(err, ErrTransientProvider) {
		t.Error("expected last cause to be reachable")
	}
}

func TestIsTransientStatus(t *testing.T) {
	for _, s := range []int{408, 429, 500, 502, 503} {
		if !IsTransientStatus(s) {
			t.Errorf("status %d should be transient", s)
		}
	}
	for _, s := range []int{400, 401, 403, 404, 422} {
		if IsTransientStatus(s) {
			t.Errorf("status %d should be permanent", s)
		}
	}
}
