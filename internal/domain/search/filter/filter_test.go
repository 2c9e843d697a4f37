package filter

import (
	"strings"
	"testing"
)

func mustMatch(t *testing.T, key, value string) Condition {
	t.Helper()
	c, err := NewMatch(key, value)
	if err != nil {
		t.Fatalf("NewMatch(%q, %q): %v", key, value, err)
	}
	return c
}

func TestNewMatch_Validation(t *testing.T) {
	if _, err := NewMatch("", "x"); err == nil || !strings.Contains(err.Error(), "key is required") {
		t.Errorf("expected key error, got %v", err)
	}
	if _, err := NewMatch("project_id", ""); err == nil || !strings.Contains(err.Error(), "match value") {
		t.Errorf("expected value error, got %v", err)
	}
}

func TestNewExpression_TooManyConditions(t *testing.T) {
	conds := make([]Condition, MaxConditionsPerGroup+1)
	for i := range conds {
		conds[i] = Condition{key: "k", match: "v"}
	}
	if _, err := NewExpression(conds, nil, nil); err == nil {
		t.Error("expected error for too many must conditions")
	}
	if _, err := NewExpression(nil, conds, nil); err == nil {
		t.Error("expected error for too many should conditions")
	}
	if _, err := NewExpression(nil, nil, conds); err == nil {
		t.Error("expected error for too many must_not conditions")
	}
}

func TestFromMap_SortedAndSkipsEmpty(t *testing.T) {
	expr, err := FromMap(map[string]string{"doc_type": "question", "project_id": "p1", "tags": ""})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	must := expr.Must()
	if len(must) != 2 {
		t.Fatalf("expected 2 conditions, got %d", len(must))
	}
	if must[0].Key() != "doc_type" || must[1].Key() != "project_id" {
		t.Errorf("conditions not sorted: %q, %q", must[0].Key(), must[1].Key())
	}
}

func TestFromMap_Empty(t *testing.T) {
	expr, err := FromMap(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !expr.IsEmpty() {
		t.Error("expected empty expression")
	}
}

func TestExpression_Matches(t *testing.T) {
	meta := map[string]string{"project_id": "p1", "doc_type": "question"}

	tests := []struct {
		name string
		expr Expression
		want bool
	}{
		{"empty matches all", Expression{}, true},
		{"must hit", Expression{must: []Condition{mustMatch(t, "project_id", "p1")}}, true},
		{"must miss", Expression{must: []Condition{mustMatch(t, "project_id", "p2")}}, false},
		{"must on absent key", Expression{must: []Condition{mustMatch(t, "tags", "x")}}, false},
		{"must_not excludes", Expression{mustNot: []Condition{mustMatch(t, "doc_type", "question")}}, false},
		{"should any", Expression{should: []Condition{
			mustMatch(t, "doc_type", "task"), mustMatch(t, "doc_type", "question"),
		}}, true},
		{"should none", Expression{should: []Condition{mustMatch(t, "doc_type", "task")}}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.expr.Matches(meta); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}
