package suggest

import (
	"math"
	"strings"
	"testing"

	"github.com/shubhsaxena/search-insights/internal/models"
	"github.com/shubhsaxena/search-insights/internal/rules"
)

func newTestEngine() *Engine {
	return NewEngine(rules.Default())
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"rtx 4090", "rtx 4090", 1.0},
		{"RTX 4090", "rtx 4090", 1.0},
		{"kitten", "sitting", 1 - 3.0/7.0},
		{"", "", 1.0},
		{"abc", "", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			got := Similarity(tt.a, tt.b)
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestDistance_Kitten(t *testing.T) {
	if d := Distance("kitten", "sitting"); d != 3 {
		t.Errorf("expected distance 3, got %d", d)
	}
}

func TestGenerate_EmptyQuery(t *testing.T) {
	e := newTestEngine()
	for _, q := range []string{"", "   "} {
		got := e.Generate(q, "", []string{"rtx 4090"})
		if got == nil || len(got) != 0 {
			t.Errorf("Generate(%q) = %v, want empty slice", q, got)
		}
	}
}

func TestGenerate_TypoOutranksSynonym(t *testing.T) {
	e := newTestEngine()
	got := e.Generate("rtx 4009 graphics card", "", nil)

	if len(got) == 0 {
		t.Fatal("expected suggestions")
	}
	if got[0].Type != models.SuggestionTypo || got[0].Suggestion != "rtx 4090 graphics card" {
		t.Errorf("expected typo correction first, got %+v", got[0])
	}

	typoIdx, synIdx := -1, -1
	for i, s := range got {
		if s.Type == models.SuggestionTypo && typoIdx < 0 {
			typoIdx = i
		}
		if s.Type == models.SuggestionSynonym && synIdx < 0 {
			synIdx = i
		}
	}
	if synIdx < 0 {
		t.Fatal("expected a synonym suggestion")
	}
	if typoIdx > synIdx {
		t.Errorf("typo at %d should outrank synonym at %d", typoIdx, synIdx)
	}
}

func TestGenerate_NoDuplicates(t *testing.T) {
	e := newTestEngine()
	queries := []string{
		"rtx 4009 graphics card",
		"cheap gpu",
		"best gpu gpu",
		"gaming cpu",
	}
	corpus := []string{"rtx 4090 graphics card", "RTX 4090 Graphics Card", "rtx 4080 graphics card"}

	for _, q := range queries {
		t.Run(q, func(t *testing.T) {
			got := e.Generate(q, "", corpus)
			seen := map[string]bool{}
			for _, s := range got {
				key := strings.ToLower(s.Suggestion)
				if seen[key] {
					t.Errorf("duplicate suggestion %q", s.Suggestion)
				}
				seen[key] = true
			}
		})
	}
}

func TestGenerate_OmitsInputQuery(t *testing.T) {
	e := newTestEngine()
	corpus := []string{"rtx 4090", "rtx 4080"}

	for _, q := range []string{"RTX 4090", "rtx 4090"} {
		for _, s := range e.Generate(q, "", corpus) {
			if strings.EqualFold(s.Suggestion, "rtx 4090") {
				t.Errorf("Generate(%q) suggested the query itself: %+v", q, s)
			}
		}
	}
}

func TestGenerate_SortedAndTruncated(t *testing.T) {
	e := newTestEngine()
	got := e.Generate("best cheap gpu card deals", "", nil)

	if len(got) > 5 {
		t.Errorf("expected at most 5 suggestions, got %d", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Confidence > got[i-1].Confidence {
			t.Errorf("suggestions not sorted at %d: %v > %v", i, got[i].Confidence, got[i-1].Confidence)
		}
	}
}

func TestGenerate_Synonyms(t *testing.T) {
	e := newTestEngine()
	got := e.Generate("gpu", "", nil)

	want := map[string]bool{"graphics card": true, "video card": true}
	found := 0
	for _, s := range got {
		if s.Type == models.SuggestionSynonym {
			if !want[s.Suggestion] {
				t.Errorf("unexpected synonym %q", s.Suggestion)
			}
			if s.Confidence != 0.85 {
				t.Errorf("expected synonym confidence 0.85, got %v", s.Confidence)
			}
			found++
		}
	}
	if found != 2 {
		t.Errorf("expected 2 synonym suggestions, got %d", found)
	}
}

func TestGenerate_FuzzyWindow(t *testing.T) {
	e := newTestEngine()
	corpus := []string{
		"rtx 4070",       // exact match, excluded
		"rtx 4070 super", // 1 - 6/14, below window
		"rtx 4060",       // 1 - 1/8 = 0.875
		"rtx 3070",       // 0.875
		"rtx 4080",       // 0.875
		"rtx 4090",       // 0.875, fourth of equal score, dropped by top 3
		"radeon",
	}

	got := e.fuzzyMatches("rtx 4070", "rtx 4070", corpus)
	if len(got) != 3 {
		t.Fatalf("expected top 3 fuzzy matches, got %d: %+v", len(got), got)
	}
	wantOrder := []string{"rtx 3070", "rtx 4060", "rtx 4080"}
	for i, w := range wantOrder {
		if got[i].Suggestion != w {
			t.Errorf("match %d = %q, want %q", i, got[i].Suggestion, w)
		}
		if got[i].Confidence <= 0.70 || got[i].Confidence >= 0.99 {
			t.Errorf("confidence %v outside window", got[i].Confidence)
		}
	}
}

func TestGenerate_EmptyCorpusSkipsFuzzy(t *testing.T) {
	e := newTestEngine()
	withNil := e.Generate("rtx 4070", "", nil)
	withEmpty := e.Generate("rtx 4070", "", []string{})
	if len(withNil) != len(withEmpty) {
		t.Errorf("nil and empty corpus should behave the same: %d vs %d", len(withNil), len(withEmpty))
	}
}

func TestGenerate_Alternatives(t *testing.T) {
	e := newTestEngine()

	tests := []struct {
		name     string
		query    string
		category string
		want     []string
	}{
		{"gpu model", "rtx 4070", "", []string{"graphics cards"}},
		{"cpu model", "ryzen 7600", "", []string{"processors"}},
		{"category fallback", "xyz 1234", "Storage", []string{"storage"}},
		{"drop prefix", "asus tuf gaming", "", []string{"tuf gaming"}},
		{"model and prefix", "msi rtx 4070 ventus", "", []string{"graphics cards", "rtx 4070 ventus"}},
		{"suffixed gpu model", "rtx 4070ti", "", []string{"graphics cards"}},
		{"suffixed cpu model", "ryzen 7800x3d", "", []string{"processors"}},
		{"five digits is not a model", "rtx 40700", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Generate(tt.query, tt.category, nil)
			var alts []string
			for _, s := range got {
				if s.Type == models.SuggestionAlternative {
					alts = append(alts, s.Suggestion)
				}
			}
			if len(alts) != len(tt.want) {
				t.Fatalf("alternatives = %v, want %v", alts, tt.want)
			}
			for i := range tt.want {
				if alts[i] != tt.want[i] {
					t.Errorf("alternative %d = %q, want %q", i, alts[i], tt.want[i])
				}
			}
		})
	}
}

func TestGenerate_Recommendations(t *testing.T) {
	e := newTestEngine()

	tests := []struct {
		query string
		want  string
	}{
		{"cheap gpu", "rtx 4060"},
		{"budget graphics card", "rx 7600"},
		{"best gpu", "rtx 4090"},
		{"gaming cpu", "ryzen 7 7800x3d"},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got := e.Generate(tt.query, "", nil)
			found := false
			for _, s := range got {
				if s.Type == models.SuggestionRelated && s.Suggestion == tt.want {
					found = true
				}
			}
			if !found {
				t.Errorf("expected recommendation %q in %+v", tt.want, got)
			}
		})
	}
}

func TestGenerate_NeverSuggestsInput(t *testing.T) {
	e := newTestEngine()
	got := e.Generate("RTX 4090", "", []string{"rtx 4090"})
	for _, s := range got {
		if strings.EqualFold(s.Suggestion, "rtx 4090") {
			t.Errorf("suggestion echoes the query: %+v", s)
		}
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	e := newTestEngine()
	corpus := []string{"rtx 4060", "rtx 4080", "rtx 3070"}
	first := e.Generate("msi rtx 4070 graphics card", "", corpus)
	for i := 0; i < 10; i++ {
		again := e.Generate("msi rtx 4070 graphics card", "", corpus)
		if len(again) != len(first) {
			t.Fatalf("length changed: %d vs %d", len(again), len(first))
		}
		for j := range first {
			if first[j] != again[j] {
				t.Fatalf("result %d changed: %+v vs %+v", j, first[j], again[j])
			}
		}
	}
}
