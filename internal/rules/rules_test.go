package rules

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault_Valid(t *testing.T) {
	r := Default()
	if err := r.Validate(); err != nil {
		t.Fatalf("default rules invalid: %v", err)
	}
	if r.Confidence.MaxResults != 5 {
		t.Errorf("expected max results 5, got %d", r.Confidence.MaxResults)
	}
	for _, in := range r.Intents {
		if len(in.Patterns) != len(in.Compiled()) {
			t.Errorf("intent %q: %d patterns, %d compiled", in.Name, len(in.Patterns), len(in.Compiled()))
		}
	}
}

func TestDefault_ReturnsIndependentCopies(t *testing.T) {
	a := Default()
	b := Default()
	a.Typos[0].Correction = "changed"
	if b.Typos[0].Correction == "changed" {
		t.Error("Default should not share tables between calls")
	}
}

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing rules file: %v", err)
	}
	return path
}

func TestLoad_OverridesAndDefaults(t *testing.T) {
	path := writeRules(t, `
version: "2025.2"
typos:
  - pattern: "RTX 5009"
    correction: "rtx 5090"
synonyms:
  GPU: ["graphics card"]
`)

	r, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Version != "2025.2" {
		t.Errorf("expected version 2025.2, got %q", r.Version)
	}
	if len(r.Typos) != 1 || r.Typos[0].Pattern != "rtx 5009" {
		t.Errorf("expected lower-cased override typo, got %+v", r.Typos)
	}
	if _, ok := r.Synonyms["gpu"]; !ok {
		t.Errorf("expected synonym keys lower-cased, got %v", r.Synonyms)
	}
	if len(r.Intents) == 0 {
		t.Error("expected default intents to be filled in")
	}
	if r.Confidence.Typo != 0.95 {
		t.Errorf("expected default typo confidence, got %v", r.Confidence.Typo)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeRules(t, "typos: [unterminated")
	if _, err := Load(path); err == nil {
		t.Error("expected parse error")
	}
}

func TestLoad_BadPattern(t *testing.T) {
	path := writeRules(t, `
intents:
  - name: broken
    patterns: ["(unclosed"]
`)
	if _, err := Load(path); err == nil {
		t.Error("expected compile error for bad pattern")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(r *Rules)
	}{
		{"fuzzy window inverted", func(r *Rules) { r.Confidence.FuzzyMin, r.Confidence.FuzzyMax = 0.9, 0.8 }},
		{"typo confidence above one", func(r *Rules) { r.Confidence.Typo = 1.5 }},
		{"zero max results", func(r *Rules) { r.Confidence.MaxResults = 0 }},
		{"empty typo correction", func(r *Rules) { r.Typos = append(r.Typos, TypoRule{Pattern: "x"}) }},
		{"recommendation without groups", func(r *Rules) {
			r.Recommendations = append(r.Recommendations, RecommendationRule{Name: "x", Suggestions: []string{"y"}, Confidence: 0.5})
		}},
		{"unnamed intent", func(r *Rules) { r.Intents = append(r.Intents, IntentRule{}) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Default()
			tt.mutate(r)
			if err := r.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}
