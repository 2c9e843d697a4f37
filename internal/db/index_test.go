package db

import (
	"strings"
	"testing"
)

func validSchema() *Schema {
	return &Schema{
		Name:   "aiorch:sim:idx",
		Prefix: "aiorch:sim:",
		Tags: []TagField{
			{Name: "project_id", Separator: "|", CaseSensitive: true},
			{Name: "tier"},
		},
		Vector: VectorField{Name: "__vector", Alias: "vector", Dims: 8, M: 16, EFConstruct: 200},
	}
}

func TestSchema_Validate(t *testing.T) {
	if err := validSchema().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestSchema_ValidateErrors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Schema)
		wantErr string
	}{
		{"empty name", func(s *Schema) { s.Name = "" }, "index name is required"},
		{"invalid characters", func(s *Schema) { s.Name = "idx with spaces" }, "invalid characters"},
		{"no prefix", func(s *Schema) { s.Prefix = "" }, "prefix"},
		{"no vector", func(s *Schema) { s.Vector = VectorField{} }, "vector field is required"},
		{"zero dims", func(s *Schema) { s.Vector.Dims = 0 }, "positive dims"},
		{"empty tag", func(s *Schema) { s.Tags = append(s.Tags, TagField{}) }, "tag name"},
		{"duplicate tag", func(s *Schema) { s.Tags = append(s.Tags, TagField{Name: "tier"}) }, "duplicate"},
		{"tag shadows vector", func(s *Schema) { s.Tags = append(s.Tags, TagField{Name: "vector"}) }, "duplicate"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := validSchema()
			tt.mutate(s)
			err := s.Validate()
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("got error %q, want containing %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestVectorField_ScoreField(t *testing.T) {
	if got := (VectorField{Name: "__vector", Alias: "vector"}).ScoreField(); got != "__vector_score" {
		t.Errorf("ScoreField() = %q", got)
	}
	if got := (VectorField{Name: "emb"}).ScoreField(); got != "__emb_score" {
		t.Errorf("ScoreField() = %q", got)
	}
}

func TestIsValidIdentifier(t *testing.T) {
	for s, want := range map[string]bool{
		"aiorch:sim:idx": true,
		"a-b_c":          true,
		"":               false,
		"a b":            false,
		"a/b":            false,
	} {
		if got := IsValidIdentifier(s); got != want {
			t.Errorf("IsValidIdentifier(%q) = %v, want %v", s, got, want)
		}
	}
}
