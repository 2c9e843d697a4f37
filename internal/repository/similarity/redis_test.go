package similarity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kailas-cloud/aiorch/internal/db"
	"github.com/kailas-cloud/aiorch/internal/domain"
	"github.com/kailas-cloud/aiorch/internal/domain/search/filter"
)

func newTestRedis(t *testing.T) (*RedisRepo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	return NewRedis(ms, nil), ms
}

func TestRedis_PutCreatesIndexOnce(t *testing.T) {
	repo, ms := newTestRedis(t)
	ctx := context.Background()

	var created int
	ms.indexExistsFn = func(context.Context, string) (bool, error) { return created > 0, nil }
	ms.createIndexFn = func(_ context.Context, s *db.Schema) error {
		created++
		if s.Name != "aiorch:sim:idx" || s.Prefix != "aiorch:sim:" {
			t.Errorf("unexpected index: %s on %s", s.Name, s.Prefix)
		}
		if s.Vector.Dims != 3 || s.Vector.Attr() != "vector" || s.Vector.M != 16 {
			t.Errorf("unexpected vector field: %+v", s.Vector)
		}
		if len(s.Tags) != len(IndexedFields) || s.Tags[0].Separator != "|" || !s.Tags[0].CaseSensitive {
			t.Errorf("unexpected tags: %+v", s.Tags)
		}
		return s.Validate()
	}

	doc := memDoc("d1", []float32{1, 2, 3}, map[string]string{"project_id": "p1"})
	for n := 0; n < 2; n++ {
		if err := repo.Put(ctx, doc); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if created != 1 {
		t.Errorf("expected one FT.CREATE, got %d", created)
	}
}

func TestRedis_PutWritesHashAndTTL(t *testing.T) {
	repo, ms := newTestRedis(t)
	ctx := context.Background()

	var fields map[string]string
	var ttl time.Duration
	ms.replaceFn = func(_ context.Context, key string, f map[string]string, d time.Duration) error {
		if key != "aiorch:sim:d1" {
			t.Errorf("unexpected key: %s", key)
		}
		fields, ttl = f, d
		return nil
	}

	doc := memDoc("d1", []float32{1, 0}, map[string]string{"project_id": "p1"})
	doc.ExpiresAt = doc.CreatedAt.Add(time.Hour)
	if err := repo.Put(ctx, doc); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if fields["__text"] != "text d1" || fields["project_id"] != "p1" {
		t.Errorf("unexpected fields: %v", fields)
	}
	if got := bytesToVector(fields["__vector"]); len(got) != 2 {
		t.Errorf("vector roundtrip failed: %v", got)
	}
	if ttl != time.Hour {
		t.Errorf("expected 1h ttl, got %v", ttl)
	}
}

func TestRedis_PutStoreError(t *testing.T) {
	repo, ms := newTestRedis(t)
	refused := errors.New("conn refused")
	ms.replaceFn = func(context.Context, string, map[string]string, time.Duration) error {
		return &db.Error{Op: db.OpHSet, Key: "aiorch:sim:d1", Err: refused}
	}

	err := repo.Put(context.Background(), memDoc("d1", []float32{1}, nil))
	if !errors.Is(err, refused) {
		t.Fatalf("expected wrapped store error, got %v", err)
	}
}

func TestRedis_PutToleratesConcurrentIndexCreation(t *testing.T) {
	repo, ms := newTestRedis(t)
	ms.indexExistsFn = func(context.Context, string) (bool, error) { return false, nil }
	ms.createIndexFn = func(context.Context, *db.Schema) error { return db.ErrIndexExists }

	if err := repo.Put(context.Background(), memDoc("d1", []float32{1}, nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRedis_PutWithoutExpiryIsPersistent(t *testing.T) {
	repo, ms := newTestRedis(t)
	ttl := time.Duration(-1)
	ms.replaceFn = func(_ context.Context, _ string, _ map[string]string, d time.Duration) error {
		ttl = d
		return nil
	}

	if err := repo.Put(context.Background(), memDoc("d1", []float32{1}, nil)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ttl != 0 {
		t.Errorf("ttl = %v, want 0", ttl)
	}
}

func TestRedis_SearchParsesMatches(t *testing.T) {
	repo, ms := newTestRedis(t)
	ctx := context.Background()

	ms.searchKNNFn = func(_ context.Context, q *db.KNNQuery) ([]db.Hit, error) {
		if q.K != 3 || q.Index != "aiorch:sim:idx" || q.Field.Attr() != "vector" {
			t.Errorf("unexpected query: %+v", q)
		}
		return []db.Hit{{
			Key:   "aiorch:sim:d1",
			Score: 0.9,
			Fields: map[string]string{
				"__text":       "hello",
				"__vector":     vectorToBytes([]float32{1}),
				"__created_at": "1",
				"project_id":   "p1",
			},
		}}, nil
	}

	f, _ := filter.FromMap(map[string]string{"project_id": "p1"})
	got, err := repo.Search(ctx, []float32{1}, f, 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 match, got %d", len(got))
	}
	m := got[0]
	if m.ID != "d1" || m.Text != "hello" || m.Score != 0.9 {
		t.Errorf("unexpected match: %+v", m)
	}
	if len(m.Metadata) != 1 || m.Metadata["project_id"] != "p1" {
		t.Errorf("reserved fields leaked into metadata: %v", m.Metadata)
	}
}

func TestRedis_SearchSkipsExpired(t *testing.T) {
	repo, ms := newTestRedis(t)
	repo.now = func() time.Time { return time.UnixMilli(2000) }
	ms.searchKNNFn = func(context.Context, *db.KNNQuery) ([]db.Hit, error) {
		return []db.Hit{
			{Key: "aiorch:sim:old", Fields: map[string]string{"__expires_at": "1000"}},
			{Key: "aiorch:sim:new", Fields: map[string]string{"__expires_at": "3000"}},
		}, nil
	}

	got, _ := repo.Search(context.Background(), []float32{1}, filter.Expression{}, 5)
	if len(got) != 1 || got[0].ID != "new" {
		t.Fatalf("expected only new, got %+v", got)
	}
}

func TestRedis_SearchRejectsUnindexedKey(t *testing.T) {
	repo, _ := newTestRedis(t)
	f, _ := filter.FromMap(map[string]string{"color": "red"})
	if _, err := repo.Search(context.Background(), []float32{1}, f, 1); err == nil {
		t.Fatal("expected error for unindexed key")
	}
}

func TestRedis_DeleteByFilterPages(t *testing.T) {
	repo, ms := newTestRedis(t)
	ctx := context.Background()

	pages := [][]string{
		make([]string, deletePage),
		{"aiorch:sim:last"},
	}
	for i := range pages[0] {
		pages[0][i] = "aiorch:sim:x"
	}
	var call int
	ms.searchKeysFn = func(_ context.Context, q *db.KeysQuery) ([]string, error) {
		if q.Limit != deletePage || q.Index != "aiorch:sim:idx" {
			t.Errorf("unexpected query: %+v", q)
		}
		p := pages[call]
		call++
		return p, nil
	}
	ms.unlinkFn = func(_ context.Context, keys ...string) (int, error) { return len(keys), nil }

	f, _ := filter.FromMap(map[string]string{"project_id": "p1"})
	n, err := repo.DeleteByFilter(ctx, f)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != deletePage+1 {
		t.Errorf("expected %d removed, got %d", deletePage+1, n)
	}
}

func TestRedis_DeleteByFilterNoIndex(t *testing.T) {
	repo, ms := newTestRedis(t)
	ms.indexExistsFn = func(context.Context, string) (bool, error) { return false, nil }
	ms.searchKeysFn = func(context.Context, *db.KeysQuery) ([]string, error) {
		t.Fatal("search must not run without an index")
		return nil, nil
	}

	f, _ := filter.FromMap(map[string]string{"project_id": "p1"})
	n, err := repo.DeleteByFilter(context.Background(), f)
	if err != nil || n != 0 {
		t.Fatalf("expected 0, nil; got %d, %v", n, err)
	}
}

func TestRedis_DeleteByFilterEmpty(t *testing.T) {
	repo, _ := newTestRedis(t)
	_, err := repo.DeleteByFilter(context.Background(), filter.Expression{})
	if !errors.Is(err, domain.ErrEmptyFilter) {
		t.Fatalf("expected ErrEmptyFilter, got %v", err)
	}
}
