// Package rules holds the heuristic tables used by the intent classifier and
// the suggestion engine. Tables are versioned and loaded from YAML so they can
// change without a redeploy; Default returns the built-in set.
package rules

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

type Rules struct {
	Version         string               `yaml:"version"`
	Intents         []IntentRule         `yaml:"intents"`
	Typos           []TypoRule           `yaml:"typos"`
	Synonyms        map[string][]string  `yaml:"synonyms"`
	Brands          BrandRules           `yaml:"brands"`
	Recommendations []RecommendationRule `yaml:"recommendations"`
	Confidence      ConfidenceRules      `yaml:"confidence"`
}

// IntentRule matches when any keyword is present as a token (or phrase, for
// multi-word keywords) or any pattern matches the normalized query.
type IntentRule struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	Patterns []string `yaml:"patterns"`

	compiled []*regexp.Regexp
}

func (r *IntentRule) Compiled() []*regexp.Regexp {
	return r.compiled
}

// TypoRule maps a known miskeyed substring to its correction. Rules are
// checked in order and the first match wins.
type TypoRule struct {
	Pattern    string `yaml:"pattern"`
	Correction string `yaml:"correction"`
}

type BrandRules struct {
	GPU         []string `yaml:"gpu"`
	CPU         []string `yaml:"cpu"`
	GPUCategory string   `yaml:"gpu_category"`
	CPUCategory string   `yaml:"cpu_category"`
}

// RecommendationRule fires when every group in AllOf has at least one
// keyword present in the query.
type RecommendationRule struct {
	Name        string     `yaml:"name"`
	AllOf       [][]string `yaml:"all_of"`
	Suggestions []string   `yaml:"suggestions"`
	Confidence  float64    `yaml:"confidence"`
	Reason      string     `yaml:"reason"`
}

type ConfidenceRules struct {
	Typo       float64 `yaml:"typo"`
	Synonym    float64 `yaml:"synonym"`
	Broader    float64 `yaml:"broader"`
	DropPrefix float64 `yaml:"drop_prefix"`
	FuzzyMin   float64 `yaml:"fuzzy_min"`
	FuzzyMax   float64 `yaml:"fuzzy_max"`
	FuzzyTopN  int     `yaml:"fuzzy_top_n"`
	MaxResults int     `yaml:"max_results"`
}

// Load reads a rules file and fills any section the file leaves empty from
// Default.
func Load(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file %s: %w", path, err)
	}

	r := &Rules{}
	if err := yaml.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parsing rules file: %w", err)
	}
	r.fillDefaults(Default())

	if err := r.Compile(); err != nil {
		return nil, fmt.Errorf("compiling rules: %w", err)
	}
	if err := r.Validate(); err != nil {
		return nil, fmt.Errorf("validating rules: %w", err)
	}
	return r, nil
}

func (r *Rules) fillDefaults(d *Rules) {
	if r.Version == "" {
		r.Version = d.Version
	}
	if len(r.Intents) == 0 {
		r.Intents = d.Intents
	}
	if len(r.Typos) == 0 {
		r.Typos = d.Typos
	}
	if len(r.Synonyms) == 0 {
		r.Synonyms = d.Synonyms
	}
	if len(r.Brands.GPU) == 0 {
		r.Brands.GPU = d.Brands.GPU
	}
	if len(r.Brands.CPU) == 0 {
		r.Brands.CPU = d.Brands.CPU
	}
	if r.Brands.GPUCategory == "" {
		r.Brands.GPUCategory = d.Brands.GPUCategory
	}
	if r.Brands.CPUCategory == "" {
		r.Brands.CPUCategory = d.Brands.CPUCategory
	}
	if len(r.Recommendations) == 0 {
		r.Recommendations = d.Recommendations
	}

	c, dc := &r.Confidence, d.Confidence
	if c.Typo == 0 {
		c.Typo = dc.Typo
	}
	if c.Synonym == 0 {
		c.Synonym = dc.Synonym
	}
	if c.Broader == 0 {
		c.Broader = dc.Broader
	}
	if c.DropPrefix == 0 {
		c.DropPrefix = dc.DropPrefix
	}
	if c.FuzzyMin == 0 {
		c.FuzzyMin = dc.FuzzyMin
	}
	if c.FuzzyMax == 0 {
		c.FuzzyMax = dc.FuzzyMax
	}
	if c.FuzzyTopN == 0 {
		c.FuzzyTopN = dc.FuzzyTopN
	}
	if c.MaxResults == 0 {
		c.MaxResults = dc.MaxResults
	}
}

// Compile lower-cases keyword tables and compiles intent patterns. It must be
// called before the rules are shared between goroutines.
func (r *Rules) Compile() error {
	for i := range r.Intents {
		rule := &r.Intents[i]
		for j, kw := range rule.Keywords {
			rule.Keywords[j] = strings.ToLower(strings.TrimSpace(kw))
		}
		rule.compiled = rule.compiled[:0]
		for _, p := range rule.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return fmt.Errorf("intent %q pattern %q: %w", rule.Name, p, err)
			}
			rule.compiled = append(rule.compiled, re)
		}
	}
	for i := range r.Typos {
		r.Typos[i].Pattern = strings.ToLower(r.Typos[i].Pattern)
	}
	lowered := make(map[string][]string, len(r.Synonyms))
	for k, v := range r.Synonyms {
		lowered[strings.ToLower(k)] = v
	}
	r.Synonyms = lowered
	return nil
}

func (r *Rules) Validate() error {
	inUnit := func(name string, v float64) error {
		if v <= 0 || v > 1 {
			return fmt.Errorf("%s confidence must be in (0,1], got %v", name, v)
		}
		return nil
	}
	c := r.Confidence
	for name, v := range map[string]float64{
		"typo": c.Typo, "synonym": c.Synonym, "broader": c.Broader, "drop_prefix": c.DropPrefix,
	} {
		if err := inUnit(name, v); err != nil {
			return err
		}
	}
	if c.FuzzyMin >= c.FuzzyMax || c.FuzzyMax > 1 {
		return fmt.Errorf("fuzzy window must satisfy 0 < min < max <= 1, got (%v, %v)", c.FuzzyMin, c.FuzzyMax)
	}
	if c.MaxResults <= 0 {
		return fmt.Errorf("max_results must be positive")
	}
	for _, t := range r.Typos {
		if t.Pattern == "" || t.Correction == "" {
			return fmt.Errorf("typo rule requires pattern and correction")
		}
	}
	for _, rec := range r.Recommendations {
		if len(rec.AllOf) == 0 || len(rec.Suggestions) == 0 {
			return fmt.Errorf("recommendation %q requires all_of and suggestions", rec.Name)
		}
		if err := inUnit("recommendation "+rec.Name, rec.Confidence); err != nil {
			return err
		}
	}
	for _, in := range r.Intents {
		if in.Name == "" {
			return fmt.Errorf("intent rule without name")
		}
	}
	return nil
}
