package stream

import (
	"strings"
	"testing"
	"time"

	"ledger-engine/internal/ledger"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	at := time.Unix(1700000000, 0).UTC()

	msgs := []Message{
		Hello{ServerTime: at},
		Snapshot{
			Events:    []ledger.Event{{ID: "e1", Lane: ledger.LaneValue, Title: "t"}},
			Summaries: []ledger.Summary{{Lane: ledger.LaneValue, Count: 1}},
		},
		EventUpsert{Event: ledger.Event{ID: "e1", Lane: ledger.LaneValue}},
		SummaryUpsert{Summary: ledger.Summary{Lane: ledger.LaneRisk, Count: 2}},
		Ticker{At: at},
	}

	for _, m := range msgs {
		data, err := Encode(m)
		if err != nil {
			t.Fatalf("%s: encode: %v", m.Type(), err)
		}
		if !strings.Contains(string(data), `"type":"`+string(m.Type())+`"`) {
			t.Fatalf("%s: discriminator missing in %s", m.Type(), data)
		}

		decoded, err := Decode(data)
		if err != nil {
			t.Fatalf("%s: decode: %v", m.Type(), err)
		}
		if decoded.Type() != m.Type() {
			t.Fatalf("expected %s, got %s", m.Type(), decoded.Type())
		}
	}
}

func TestDecode_RejectsUnknownType(t *testing.T) {
	if _, err := Decode([]byte(`{"type":"mystery"}`)); err == nil {
		t.Fatalf("expected error for unknown type")
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for malformed frame")
	}
}

func TestDecode_PreservesPayload(t *testing.T) {
	data, err := Encode(EventUpsert{Event: ledger.Event{ID: "e7", Lane: ledger.LaneCompliance, Amount: -42}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	up, ok := decoded.(EventUpsert)
	if !ok {
		t.Fatalf("expected EventUpsert, got %T", decoded)
	}
	if up.Event.ID != "e7" || up.Event.Amount != -42 {
		t.Fatalf("payload lost: %+v", up.Event)
	}
}
