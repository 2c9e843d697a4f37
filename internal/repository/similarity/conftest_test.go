package similarity

import (
	"context"
	"time"

	"github.com/kailas-cloud/aiorch/internal/db"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	replaceFn     func(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error
	unlinkFn      func(ctx context.Context, keys ...string) (int, error)
	createIndexFn func(ctx context.Context, s *db.Schema) error
	indexExistsFn func(ctx context.Context, name string) (bool, error)
	searchKNNFn   func(ctx context.Context, q *db.KNNQuery) ([]db.Hit, error)
	searchKeysFn  func(ctx context.Context, q *db.KeysQuery) ([]string, error)
}

func (m *mockStore) ReplaceHash(ctx context.Context, key string, fields map[string]string, ttl time.Duration) error {
	if m.replaceFn != nil {
		return m.replaceFn(ctx, key, fields, ttl)
	}
	return nil
}

func (m *mockStore) Unlink(ctx context.Context, keys ...string) (int, error) {
	if m.unlinkFn != nil {
		return m.unlinkFn(ctx, keys...)
	}
	return 0, nil
}

func (m *mockStore) CreateIndex(ctx context.Context, s *db.Schema) error {
	if m.createIndexFn != nil {
		return m.createIndexFn(ctx, s)
	}
	return nil
}

func (m *mockStore) IndexExists(ctx context.Context, name string) (bool, error) {
	if m.indexExistsFn != nil {
		return m.indexExistsFn(ctx, name)
	}
	return true, nil
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) ([]db.Hit, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return nil, nil
}

func (m *mockStore) SearchKeys(ctx context.Context, q *db.KeysQuery) ([]string, error) {
	if m.searchKeysFn != nil {
		return m.searchKeysFn(ctx, q)
	}
	return nil, nil
}
