package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shubhsaxena/search-insights/internal/models"
)

func TestEnvelopeMessage(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	env := &models.EventEnvelope{
		Kind:   models.KindSearch,
		Search: &models.SearchEvent{Query: "rtx 4070", UserID: "u1", Timestamp: now},
	}

	msg, err := envelopeMessage(env, now)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if string(msg.Key) != "u1" {
		t.Errorf("expected user id as key for a session-less search, got %q", msg.Key)
	}
	if len(msg.Headers) != 1 || string(msg.Headers[0].Value) != "search" {
		t.Errorf("unexpected headers %v", msg.Headers)
	}
	if !env.ReceivedAt.Equal(now) {
		t.Errorf("expected received_at stamped, got %v", env.ReceivedAt)
	}

	decoded, err := decodeEnvelope(msg.Value)
	if err != nil {
		t.Fatalf("expected round trip to decode, got %v", err)
	}
	if decoded.Search.Query != "rtx 4070" {
		t.Errorf("unexpected decoded query %q", decoded.Search.Query)
	}
}

func TestEnvelopeMessage_SessionKey(t *testing.T) {
	env := &models.EventEnvelope{
		Kind:       models.KindConversion,
		Conversion: &models.ConversionEvent{SessionID: "s1", ConversionType: models.ConversionCheckout},
	}
	msg, err := envelopeMessage(env, time.Now())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if string(msg.Key) != "s1" {
		t.Errorf("expected session key, got %q", msg.Key)
	}
}

func TestEnvelopeMessage_Invalid(t *testing.T) {
	env := &models.EventEnvelope{Kind: models.KindRefinement}
	if _, err := envelopeMessage(env, time.Now()); err == nil {
		t.Error("expected error for envelope without payload")
	}
}

func TestDecodeEnvelope(t *testing.T) {
	tests := []struct {
		name    string
		payload any
		raw     string
		wantErr bool
	}{
		{name: "not json", raw: "{oops", wantErr: true},
		{name: "unknown kind", payload: map[string]any{"kind": "click"}, wantErr: true},
		{name: "bad conversion type", payload: map[string]any{
			"kind":       "conversion",
			"conversion": map[string]any{"session_id": "s1", "conversion_type": "refund"},
		}, wantErr: true},
		{name: "refinement", payload: map[string]any{
			"kind":       "refinement",
			"refinement": map[string]any{"session_id": "s1", "previous_query": "gpu", "new_query": "rtx 4070"},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data := []byte(tt.raw)
			if tt.payload != nil {
				var err error
				if data, err = json.Marshal(tt.payload); err != nil {
					t.Fatal(err)
				}
			}
			_, err := decodeEnvelope(data)
			if (err != nil) != tt.wantErr {
				t.Errorf("decodeEnvelope() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
