package similarity

import (
	"strings"

	"github.com/kailas-cloud/aiorch/internal/db"
	"github.com/kailas-cloud/aiorch/internal/domain"
)

// IndexedFields are the metadata keys the Redis backend can filter on.
var IndexedFields = []string{
	domain.MetaProjectID,
	domain.MetaDocType,
	domain.MetaTags,
	domain.MetaTier,
	domain.MetaUsageType,
	domain.MetaBucket,
	domain.MetaTurns,
	domain.MetaCacheKey,
}

// HNSWConfig HNSW index parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

const (
	docPrefix = domain.KeyPrefix + "sim:"
	indexName = domain.KeyPrefix + "sim:idx"
	// tagSeparator keeps ';'-joined tag sets and ',' in values intact as single tags.
	tagSeparator = "|"
)

// vectorField is the embedding attribute; KNN clauses address it as "vector".
var vectorField = db.VectorField{Name: fieldVector, Alias: "vector"}

func docKey(id string) string { return docPrefix + id }

func docID(key string) string { return strings.TrimPrefix(key, docPrefix) }

// schema describes the similarity index: one case-sensitive TAG per indexed
// metadata key plus the HNSW embedding.
func schema(dims int, hnsw HNSWConfig) *db.Schema {
	tags := make([]db.TagField, 0, len(IndexedFields))
	for _, f := range IndexedFields {
		tags = append(tags, db.TagField{Name: f, Separator: tagSeparator, CaseSensitive: true})
	}
	vec := vectorField
	vec.Dims = dims
	vec.M = hnsw.M
	vec.EFConstruct = hnsw.EFConstruct
	return &db.Schema{Name: indexName, Prefix: docPrefix, Tags: tags, Vector: vec}
}
