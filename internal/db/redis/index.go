package redis

import (
	"context"
	"strconv"

	"github.com/kailas-cloud/aiorch/internal/db"
)

// CreateIndex issues FT.CREATE for s. A concurrent creator yields db.ErrIndexExists.
func (s *Store) CreateIndex(ctx context.Context, schema *db.Schema) error {
	if err := schema.Validate(); err != nil {
		return err
	}
	cmd := s.b().Arbitrary("FT.CREATE").Args(createArgs(schema)...).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "index already exists") {
			return db.ErrIndexExists
		}
		return &db.Error{Op: db.OpCreateIndex, Key: schema.Name, Err: err}
	}
	return nil
}

// IndexExists probes the index with FT.INFO; "unknown index name" means absent.
func (s *Store) IndexExists(ctx context.Context, name string) (bool, error) {
	cmd := s.b().Arbitrary("FT.INFO").Args(name).Build()
	if err := s.do(ctx, cmd).Error(); err != nil {
		if isRedisErr(err, "unknown index name") {
			return false, nil
		}
		return false, &db.Error{Op: db.OpIndexInfo, Key: name, Err: err}
	}
	return true, nil
}

// createArgs renders FT.CREATE arguments:
// name ON HASH PREFIX 1 prefix SCHEMA tag... vector.
func createArgs(s *db.Schema) []string {
	args := []string{s.Name, "ON", "HASH", "PREFIX", "1", s.Prefix, "SCHEMA"}

	for _, t := range s.Tags {
		args = append(args, t.Name, "TAG")
		if t.Separator != "" {
			args = append(args, "SEPARATOR", t.Separator)
		}
		if t.CaseSensitive {
			args = append(args, "CASESENSITIVE")
		}
	}

	v := s.Vector
	attrs := []string{
		"TYPE", "FLOAT32",
		"DIM", strconv.Itoa(v.Dims),
		"DISTANCE_METRIC", "COSINE",
	}
	if v.M > 0 {
		attrs = append(attrs, "M", strconv.Itoa(v.M))
	}
	if v.EFConstruct > 0 {
		attrs = append(attrs, "EF_CONSTRUCTION", strconv.Itoa(v.EFConstruct))
	}

	args = append(args, v.Name)
	if v.Alias != "" {
		args = append(args, "AS", v.Alias)
	}
	args = append(args, "VECTOR", "HNSW", strconv.Itoa(len(attrs)))
	return append(args, attrs...)
}
