package models

import "testing"

func TestEventEnvelope_Validate(t *testing.T) {
	tests := []struct {
		name    string
		env     EventEnvelope
		wantErr bool
	}{
		{"search", EventEnvelope{Kind: KindSearch, Search: &SearchEvent{Query: "ram"}}, false},
		{"search without payload", EventEnvelope{Kind: KindSearch}, true},
		{"checkout", EventEnvelope{Kind: KindConversion, Conversion: &ConversionEvent{ConversionType: ConversionCheckout}}, false},
		{"unknown conversion", EventEnvelope{Kind: KindConversion, Conversion: &ConversionEvent{ConversionType: "refund"}}, true},
		{"refinement", EventEnvelope{Kind: KindRefinement, Refinement: &RefinementEvent{}}, false},
		{"refinement without payload", EventEnvelope{Kind: KindRefinement}, true},
		{"unknown kind", EventEnvelope{Kind: "click"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.env.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestEventEnvelope_Key(t *testing.T) {
	tests := []struct {
		name string
		env  EventEnvelope
		want string
	}{
		{"search with session", EventEnvelope{Kind: KindSearch, Search: &SearchEvent{SessionID: "s1", UserID: "u1"}}, "s1"},
		{"guest search falls back to user", EventEnvelope{Kind: KindSearch, Search: &SearchEvent{UserID: "u1"}}, "u1"},
		{"conversion", EventEnvelope{Kind: KindConversion, Conversion: &ConversionEvent{SessionID: "s2"}}, "s2"},
		{"refinement", EventEnvelope{Kind: KindRefinement, Refinement: &RefinementEvent{SessionID: "s3"}}, "s3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.env.Key(); got != tt.want {
				t.Errorf("Key() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEventFilters_AsMap(t *testing.T) {
	f := EventFilters{
		DeviceType: "mobile",
		Country:    "DE",
		Extra:      map[string]any{"brand": "nvidia", "country": "US"},
	}
	got := f.AsMap()

	if got["device_type"] != "mobile" || got["brand"] != "nvidia" {
		t.Errorf("unexpected map %v", got)
	}
	if got["country"] != "DE" {
		t.Errorf("typed field should win over extra, got %v", got["country"])
	}
	if _, ok := got["locale"]; ok {
		t.Error("empty typed fields should be omitted")
	}
}

func TestConversionType_Valid(t *testing.T) {
	for _, c := range []ConversionType{ConversionAddToCart, ConversionCheckout} {
		if !c.Valid() {
			t.Errorf("%q should be valid", c)
		}
	}
	if ConversionType("purchase").Valid() {
		t.Error("unknown type should be invalid")
	}
}

func TestRefinementSessionAnalysis_IsStuck(t *testing.T) {
	var a RefinementSessionAnalysis
	if a.IsStuck() {
		t.Error("no indicators should not be stuck")
	}
	a.StuckIndicators.LoopsDetected = true
	if !a.IsStuck() {
		t.Error("any indicator should mark the session stuck")
	}
}

func TestSearchEvent_IsGuest(t *testing.T) {
	if !(&SearchEvent{}).IsGuest() {
		t.Error("event without user should be a guest")
	}
	if (&SearchEvent{UserID: "u1"}).IsGuest() {
		t.Error("event with user should not be a guest")
	}
}
