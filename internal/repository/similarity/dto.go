package similarity

import (
	"encoding/binary"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kailas-cloud/aiorch/internal/domain"
)

// Reserved hash fields. Metadata keys must not start with "__".
const (
	fieldText      = "__text"
	fieldVector    = "__vector"
	fieldCreatedAt = "__created_at"
	fieldExpiresAt = "__expires_at"
)

func isReserved(key string) bool { return strings.HasPrefix(key, "__") }

// buildHashFields flattens a document into HSET field pairs.
func buildHashFields(doc *domain.SimilarityDocument) map[string]string {
	m := make(map[string]string, 4+len(doc.Metadata))
	m[fieldText] = doc.Text
	m[fieldVector] = vectorToBytes(doc.Embedding)
	m[fieldCreatedAt] = strconv.FormatInt(doc.CreatedAt.UnixMilli(), 10)
	if !doc.ExpiresAt.IsZero() {
		m[fieldExpiresAt] = strconv.FormatInt(doc.ExpiresAt.UnixMilli(), 10)
	}
	for k, v := range doc.Metadata {
		m[k] = v
	}
	return m
}

// parseMatch converts FT.SEARCH return fields into a match.
func parseMatch(id string, score float64, fields map[string]string) domain.Match {
	m := domain.Match{ID: id, Score: score, Metadata: make(map[string]string, len(fields))}
	for k, v := range fields {
		switch {
		case k == fieldText:
			m.Text = v
		case isReserved(k):
		default:
			m.Metadata[k] = v
		}
	}
	return m
}

// expiredFields reports whether a hash carries an expiry that has passed.
// Redis EXPIRE normally removes these first; the check covers clock skew.
func expiredFields(fields map[string]string, now time.Time) bool {
	raw, ok := fields[fieldExpiresAt]
	if !ok {
		return false
	}
	ms, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false
	}
	return now.After(time.UnixMilli(ms))
}

// vectorToBytes serializes []float32 to a binary string (4 bytes per float, little-endian).
func vectorToBytes(v []float32) string {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return string(buf)
}

// bytesToVector deserializes a binary string back to []float32.
func bytesToVector(s string) []float32 {
	b := []byte(s)
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
