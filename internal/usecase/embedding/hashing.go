package embedding

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/kailas-cloud/aiorch/internal/domain"
)

// DefaultHashingDimensions is the vector size of the local embedder.
const DefaultHashingDimensions = 512

const trigramWeight = 0.5

// HashingEmbedder is a deterministic, offline embedder: word unigrams and character
// trigrams are hashed into a fixed number of signed buckets and the result is
// L2-normalised. It needs no network and is meant for local development and tests.
type HashingEmbedder struct {
	dims int
}

// NewHashingEmbedder creates a local embedder. dims <= 0 selects DefaultHashingDimensions.
func NewHashingEmbedder(dims int) *HashingEmbedder {
	if dims <= 0 {
		dims = DefaultHashingDimensions
	}
	return &HashingEmbedder{dims: dims}
}

// Dimensions returns the vector size.
func (e *HashingEmbedder) Dimensions() int { return e.dims }

// Embed implements domain.Embedder. Token counts are reported as word counts.
func (e *HashingEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	vec := make([]float32, e.dims)
	words := tokenize(text)

	for _, w := range words {
		e.add(vec, "w:"+w, 1)
		padded := []rune(" " + w + " ")
		for i := 0; i+3 <= len(padded); i++ {
			e.add(vec, "t:"+string(padded[i:i+3]), trigramWeight)
		}
	}

	return domain.EmbeddingResult{
		Embedding:    domain.Normalize(vec),
		PromptTokens: len(words),
		TotalTokens:  len(words),
	}, nil
}

// HealthCheck always succeeds.
func (e *HashingEmbedder) HealthCheck(context.Context) error { return nil }

func (e *HashingEmbedder) add(vec []float32, feature string, weight float32) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()

	idx := int(sum % uint64(e.dims))
	if sum>>63 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
