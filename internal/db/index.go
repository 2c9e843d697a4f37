package db

import (
	"errors"
	"fmt"
)

// Schema describes an FT index over hash documents sharing one key prefix.
// Filterable attributes are TAGs; the embedding is one HNSW field compared by cosine distance.
type Schema struct {
	Name   string
	Prefix string
	Tags   []TagField
	Vector VectorField
}

// TagField is an exact-match TAG attribute.
type TagField struct {
	Name string
	// Separator splits multi-valued tags. Empty keeps the server default ",".
	Separator     string
	CaseSensitive bool
}

// VectorField is a FLOAT32 HNSW attribute.
type VectorField struct {
	Name string
	// Alias is the attribute name KNN clauses use. Defaults to Name.
	Alias       string
	Dims        int
	M           int // max edges per node, server default when zero
	EFConstruct int
}

// Attr returns the attribute name queries address the vector by.
func (v VectorField) Attr() string {
	if v.Alias != "" {
		return v.Alias
	}
	return v.Name
}

// ScoreField is the pseudo-field FT.SEARCH fills with the KNN distance.
func (v VectorField) ScoreField() string { return "__" + v.Attr() + "_score" }

// Validate checks that the schema can be sent to FT.CREATE.
func (s *Schema) Validate() error {
	if s.Name == "" {
		return errors.New("index name is required")
	}
	if !IsValidIdentifier(s.Name) {
		return fmt.Errorf("index name %q contains invalid characters", s.Name)
	}
	if s.Prefix == "" {
		return errors.New("key prefix is required")
	}
	if s.Vector.Name == "" {
		return errors.New("vector field is required")
	}
	if s.Vector.Dims <= 0 {
		return fmt.Errorf("vector field %q requires positive dims", s.Vector.Name)
	}

	seen := map[string]bool{s.Vector.Attr(): true}
	for _, t := range s.Tags {
		if t.Name == "" {
			return errors.New("tag name is required")
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate field %q", t.Name)
		}
		seen[t.Name] = true
	}
	return nil
}

// IsValidIdentifier returns true if s matches [a-zA-Z0-9_:-]+.
func IsValidIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		isAlpha := (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z')
		isDigit := r >= '0' && r <= '9'
		if !isAlpha && !isDigit && r != '_' && r != ':' && r != '-' {
			return false
		}
	}
	return true
}
