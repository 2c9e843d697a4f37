package redis

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/redis/rueidis"

	"github.com/kailas-cloud/aiorch/internal/db"
	"github.com/kailas-cloud/aiorch/internal/domain/search/filter"
)

// SearchKNN runs a filtered KNN query and returns hits nearest first with every hash field loaded.
func (s *Store) SearchKNN(ctx context.Context, q *db.KNNQuery) ([]db.Hit, error) {
	if q.Index == "" {
		return nil, fmt.Errorf("index name is required")
	}
	if len(q.Vector) == 0 {
		return nil, fmt.Errorf("vector is required")
	}
	if q.K <= 0 {
		return nil, fmt.Errorf("k must be positive")
	}

	scoreField := q.Field.ScoreField()
	pre := listQuery(q.Filter)
	if pre != "*" {
		pre = "(" + pre + ")"
	}
	query := fmt.Sprintf("%s=>[KNN %d @%s $BLOB]", pre, q.K, q.Field.Attr())

	// Kept to the KNN form valkey-search accepts (no SORTBY); hits are ordered in parseHits.
	args := []string{
		q.Index, query,
		"LIMIT", "0", strconv.Itoa(q.K),
		"PARAMS", "2", "BLOB", vectorBlob(q.Vector),
		"DIALECT", "2",
	}

	raw, err := s.do(ctx, s.b().Arbitrary("FT.SEARCH").Args(args...).Build()).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Key: q.Index, Err: err}
	}
	return parseHits(raw, scoreField)
}

// SearchKeys returns up to q.Limit keys of documents matching q.Filter.
func (s *Store) SearchKeys(ctx context.Context, q *db.KeysQuery) ([]string, error) {
	if q.Index == "" {
		return nil, fmt.Errorf("index name is required")
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}

	cmd := s.b().Arbitrary("FT.SEARCH").Args(
		q.Index, listQuery(q.Filter), "NOCONTENT", "LIMIT", "0", strconv.Itoa(limit), "DIALECT", "2",
	).Build()
	raw, err := s.do(ctx, cmd).ToArray()
	if err != nil {
		return nil, &db.Error{Op: db.OpSearch, Key: q.Index, Err: err}
	}
	if len(raw) == 0 {
		return nil, nil
	}

	// NOCONTENT replies are [total, key1, key2, ...].
	keys := make([]string, 0, len(raw)-1)
	for _, m := range raw[1:] {
		if key, err := m.ToString(); err == nil {
			keys = append(keys, key)
		}
	}
	return keys, nil
}

// parseHits reads [total, key1, fields1, key2, fields2, ...] and turns distances into similarity.
func parseHits(raw []rueidis.RedisMessage, scoreField string) ([]db.Hit, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	total, err := raw[0].AsInt64()
	if err != nil {
		return nil, fmt.Errorf("parse total: %w", err)
	}
	if total == 0 {
		return nil, nil
	}

	hits := make([]db.Hit, 0, (len(raw)-1)/2)
	for i := 1; i+1 < len(raw); i += 2 {
		key, err := raw[i].ToString()
		if err != nil {
			continue
		}
		pairs, err := raw[i+1].ToArray()
		if err != nil {
			continue
		}

		hit := db.Hit{Key: key, Fields: fieldMap(pairs)}
		if d, ok := hit.Fields[scoreField]; ok {
			if dist, err := strconv.ParseFloat(d, 64); err == nil {
				hit.Score = max(0, 1-dist)
			}
			delete(hit.Fields, scoreField)
		}
		hits = append(hits, hit)
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	return hits, nil
}

func fieldMap(pairs []rueidis.RedisMessage) map[string]string {
	m := make(map[string]string, len(pairs)/2)
	for j := 0; j+1 < len(pairs); j += 2 {
		name, err := pairs[j].ToString()
		if err != nil {
			continue
		}
		value, err := pairs[j+1].ToString()
		if err != nil {
			continue
		}
		m[name] = value
	}
	return m
}

// listQuery renders a filter as an FT.SEARCH query. Must terms are ANDed,
// Should terms form one OR group and MustNot terms are negated. Empty means "*".
func listQuery(expr filter.Expression) string {
	if expr.IsEmpty() {
		return "*"
	}

	var parts []string
	for _, c := range expr.Must() {
		parts = append(parts, tagTerm(c))
	}
	if should := expr.Should(); len(should) > 0 {
		alts := make([]string, 0, len(should))
		for _, c := range should {
			alts = append(alts, tagTerm(c))
		}
		parts = append(parts, "("+strings.Join(alts, " | ")+")")
	}
	for _, c := range expr.MustNot() {
		parts = append(parts, "-"+tagTerm(c))
	}
	return strings.Join(parts, " ")
}

func tagTerm(c filter.Condition) string {
	return "@" + c.Key() + ":{" + tagEscaper.Replace(c.Match()) + "}"
}

// tagEscaper backslash-escapes the TAG query punctuation.
var tagEscaper = func() *strings.Replacer {
	const special = ",.<>{}\"':;!@#$%^&*()-+=~| "
	pairs := make([]string, 0, 2*len(special))
	for _, r := range special {
		pairs = append(pairs, string(r), `\`+string(r))
	}
	return strings.NewReplacer(pairs...)
}()

// vectorBlob encodes v as little-endian FLOAT32 bytes.
func vectorBlob(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}
