package similarity

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kailas-cloud/aiorch/internal/domain"
	"github.com/kailas-cloud/aiorch/internal/domain/search/filter"
)

// MemoryRepo is an in-process similarity backend with exact cosine scoring.
// Must conditions are answered from an inverted metadata index; the rest of the
// expression is evaluated per candidate.
type MemoryRepo struct {
	mu    sync.RWMutex
	docs  map[string]domain.SimilarityDocument
	index map[string]map[string]map[string]struct{} // key -> value -> ids
	now   func() time.Time
}

// NewMemory creates an empty in-memory similarity repository.
func NewMemory() *MemoryRepo {
	return &MemoryRepo{
		docs:  make(map[string]domain.SimilarityDocument),
		index: make(map[string]map[string]map[string]struct{}),
		now:   time.Now,
	}
}

// Put stores doc, replacing any document with the same id.
func (r *MemoryRepo) Put(_ context.Context, doc domain.SimilarityDocument) error {
	for k := range doc.Metadata {
		if isReserved(k) {
			return fmt.Errorf("metadata key %q is reserved", k)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if old, ok := r.docs[doc.ID]; ok {
		r.unindex(old)
	}
	r.docs[doc.ID] = doc
	for k, v := range doc.Metadata {
		values, ok := r.index[k]
		if !ok {
			values = make(map[string]map[string]struct{})
			r.index[k] = values
		}
		ids, ok := values[v]
		if !ok {
			ids = make(map[string]struct{})
			values[v] = ids
		}
		ids[doc.ID] = struct{}{}
	}
	return nil
}

// Search scores every live candidate matching f against vector.
// Results are ordered by score descending, ties by id, and capped at topK.
func (r *MemoryRepo) Search(
	_ context.Context, vector []float32, f filter.Expression, topK int,
) ([]domain.Match, error) {
	now := r.now()

	r.mu.RLock()
	candidates := r.candidates(f)
	out := make([]domain.Match, 0, len(candidates))
	for _, id := range candidates {
		doc := r.docs[id]
		if doc.Expired(now) || !f.Matches(doc.Metadata) {
			continue
		}
		out = append(out, domain.Match{
			ID:       doc.ID,
			Text:     doc.Text,
			Metadata: copyMeta(doc.Metadata),
			Score:    domain.Similarity(vector, doc.Embedding),
		})
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	if topK > 0 && len(out) > topK {
		out = out[:topK]
	}
	return out, nil
}

// DeleteByFilter removes every document matching f, expired ones included.
func (r *MemoryRepo) DeleteByFilter(_ context.Context, f filter.Expression) (int, error) {
	if f.IsEmpty() {
		return 0, domain.ErrEmptyFilter
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int
	for _, id := range r.candidates(f) {
		doc := r.docs[id]
		if !f.Matches(doc.Metadata) {
			continue
		}
		r.unindex(doc)
		delete(r.docs, id)
		removed++
	}
	return removed, nil
}

// Purge drops expired documents and returns how many were removed.
func (r *MemoryRepo) Purge() int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	var removed int
	for id, doc := range r.docs {
		if doc.Expired(now) {
			r.unindex(doc)
			delete(r.docs, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored documents, expired ones included.
func (r *MemoryRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.docs)
}

// candidates narrows the search to ids satisfying every must condition.
// Caller holds r.mu.
func (r *MemoryRepo) candidates(f filter.Expression) []string {
	must := f.Must()
	if len(must) == 0 {
		ids := make([]string, 0, len(r.docs))
		for id := range r.docs {
			ids = append(ids, id)
		}
		return ids
	}

	// Start from the smallest posting list.
	var smallest map[string]struct{}
	for _, c := range must {
		ids := r.index[c.Key()][c.Match()]
		if len(ids) == 0 {
			return nil
		}
		if smallest == nil || len(ids) < len(smallest) {
			smallest = ids
		}
	}

	out := make([]string, 0, len(smallest))
	for id := range smallest {
		out = append(out, id)
	}
	return out
}

// Caller holds r.mu for writing.
func (r *MemoryRepo) unindex(doc domain.SimilarityDocument) {
	for k, v := range doc.Metadata {
		values := r.index[k]
		if values == nil {
			continue
		}
		delete(values[v], doc.ID)
		if len(values[v]) == 0 {
			delete(values, v)
		}
		if len(values) == 0 {
			delete(r.index, k)
		}
	}
}

func copyMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
