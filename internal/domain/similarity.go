package domain

import "time"

// Well-known similarity metadata keys.
const (
	MetaProjectID = "project_id"
	MetaDocType   = "doc_type"
	MetaTags      = "tags"
	MetaTier      = "tier"
	MetaUsageType = "usage_type"
	MetaBucket    = "bucket"
	MetaTurns     = "turns"
	MetaCacheKey  = "cache_key"
)

// SimilarityDocument is scope-addressed memory: a text, its embedding and metadata.
type SimilarityDocument struct {
	ID        string
	Text      string
	Embedding []float32
	Metadata  map[string]string
	CreatedAt time.Time
	ExpiresAt time.Time // zero means no expiry
}

// Expired reports whether the document has a deadline that has passed.
func (d *SimilarityDocument) Expired(now time.Time) bool {
	return !d.ExpiresAt.IsZero() && now.After(d.ExpiresAt)
}

// Match is a single nearest-neighbour hit.
type Match struct {
	ID       string
	Text     string
	Metadata map[string]string
	Score    float64
}
