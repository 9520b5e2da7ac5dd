package rules

// Default returns a compiled copy of the built-in tables.
func Default() *Rules {
	r := &Rules{
		Version: "2024.1",
		Intents: []IntentRule{
			{
				Name:     "purchase",
				Keywords: []string{"buy", "price", "cheap", "deal", "deals", "discount", "sale", "order", "budget", "cost"},
				Patterns: []string{`\$\s?\d+`, `\bunder \d+\b`},
			},
			{
				Name:     "comparison",
				Keywords: []string{"vs", "versus", "compare", "comparison", "or", "difference"},
				Patterns: []string{`\w+ vs\.? \w+`},
			},
			{
				Name:     "research",
				Keywords: []string{"best", "top", "review", "reviews", "benchmark", "specs", "rated"},
			},
			{
				Name:     "compatibility",
				Keywords: []string{"compatible", "compatibility", "support", "supports", "fit", "fits", "socket", "works with"},
			},
			{
				Name:     "troubleshooting",
				Keywords: []string{"fix", "driver", "drivers", "install", "error", "not working", "how to"},
			},
		},
		Typos: []TypoRule{
			{Pattern: "rtx 4009", Correction: "rtx 4090"},
			{Pattern: "rtx 4007", Correction: "rtx 4070"},
			{Pattern: "rtx 4060ti", Correction: "rtx 4060 ti"},
			{Pattern: "rtx 3008", Correction: "rtx 3080"},
			{Pattern: "rx 7009", Correction: "rx 7900"},
			{Pattern: "ryzne", Correction: "ryzen"},
			{Pattern: "ryzen 7800x3", Correction: "ryzen 7 7800x3d"},
			{Pattern: "i9 13900", Correction: "i9-13900k"},
			{Pattern: "nvidea", Correction: "nvidia"},
			{Pattern: "geforse", Correction: "geforce"},
		},
		Synonyms: map[string][]string{
			"gpu":         {"graphics card", "video card"},
			"graphics":    {"video"},
			"cpu":         {"processor"},
			"processor":   {"cpu"},
			"ram":         {"memory"},
			"memory":      {"ram"},
			"ssd":         {"solid state drive"},
			"psu":         {"power supply"},
			"mobo":        {"motherboard"},
			"motherboard": {"mainboard"},
			"monitor":     {"display"},
			"laptop":      {"notebook"},
		},
		Brands: BrandRules{
			GPU:         []string{"rtx", "gtx", "geforce", "radeon", "rx", "arc", "nvidia"},
			CPU:         []string{"ryzen", "intel", "core", "i3", "i5", "i7", "i9", "threadripper", "xeon", "amd"},
			GPUCategory: "graphics cards",
			CPUCategory: "processors",
		},
		Recommendations: []RecommendationRule{
			{
				Name:        "budget-gpu",
				AllOf:       [][]string{{"cheap", "budget", "affordable"}, {"gpu", "graphics card", "video card"}},
				Suggestions: []string{"rtx 4060", "rx 7600", "arc a750"},
				Confidence:  0.85,
				Reason:      "Popular budget graphics cards",
			},
			{
				Name:        "flagship-gpu",
				AllOf:       [][]string{{"best", "top", "fastest"}, {"gpu", "graphics card", "video card"}},
				Suggestions: []string{"rtx 4090", "rx 7900 xtx", "rtx 4080 super"},
				Confidence:  0.85,
				Reason:      "Flagship graphics cards",
			},
			{
				Name:        "gaming-cpu",
				AllOf:       [][]string{{"gaming"}, {"cpu", "processor"}},
				Suggestions: []string{"ryzen 7 7800x3d", "i7-14700k", "ryzen 5 7600"},
				Confidence:  0.8,
				Reason:      "Popular gaming processors",
			},
			{
				Name:        "budget-cpu",
				AllOf:       [][]string{{"cheap", "budget", "affordable"}, {"cpu", "processor"}},
				Suggestions: []string{"ryzen 5 5600", "i5-12400f"},
				Confidence:  0.8,
				Reason:      "Popular budget processors",
			},
		},
		Confidence: ConfidenceRules{
			Typo:       0.95,
			Synonym:    0.85,
			Broader:    0.7,
			DropPrefix: 0.65,
			FuzzyMin:   0.70,
			FuzzyMax:   0.99,
			FuzzyTopN:  3,
			MaxResults: 5,
		},
	}
	// The built-in patterns are known to compile.
	_ = r.Compile()
	return r
}
