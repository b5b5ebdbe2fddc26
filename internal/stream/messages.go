package stream

import (
	"encoding/json"
	"fmt"
	"time"

	"ledger-engine/internal/ledger"
)

// Message is the closed union of frames carried by the change bus and the
// live stream. Routing is by the wire-level "type" discriminator; Decode is
// exhaustive and rejects unknown types.
type Message interface {
	Type() MessageType
}

type MessageType string

const (
	TypeHello         MessageType = "hello"
	TypeSnapshot      MessageType = "snapshot"
	TypeEventUpsert   MessageType = "event_upsert"
	TypeSummaryUpsert MessageType = "summary_upsert"
	TypeTicker        MessageType = "ticker"
)

// Hello opens every stream connection.
type Hello struct {
	ServerTime time.Time `json:"server_time"`
}

func (Hello) Type() MessageType { return TypeHello }

// Snapshot carries the full current state: every event plus per-lane summaries.
type Snapshot struct {
	Events    []ledger.Event   `json:"events"`
	Summaries []ledger.Summary `json:"summaries"`
}

func (Snapshot) Type() MessageType { return TypeSnapshot }

// EventUpsert announces one committed event write.
type EventUpsert struct {
	Event ledger.Event `json:"event"`
}

func (EventUpsert) Type() MessageType { return TypeEventUpsert }

// SummaryUpsert announces a recomputed lane summary.
type SummaryUpsert struct {
	Summary ledger.Summary `json:"summary"`
}

func (SummaryUpsert) Type() MessageType { return TypeSummaryUpsert }

// Ticker is a periodic liveness frame.
type Ticker struct {
	At time.Time `json:"at"`
}

func (Ticker) Type() MessageType { return TypeTicker }

// Encode renders a message as a flat JSON object carrying its discriminator.
func Encode(m Message) ([]byte, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("stream: marshal failed: %w", err)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("stream: re-decode failed: %w", err)
	}
	obj["type"] = json.RawMessage(`"` + string(m.Type()) + `"`)
	return json.Marshal(obj)
}

// Decode parses a wire frame back into its concrete message type.
func Decode(data []byte) (Message, error) {
	var head struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("stream: frame decode failed: %w", err)
	}

	switch head.Type {
	case TypeHello:
		var m Hello
		err := json.Unmarshal(data, &m)
		return m, err
	case TypeSnapshot:
		var m Snapshot
		err := json.Unmarshal(data, &m)
		return m, err
	case TypeEventUpsert:
		var m EventUpsert
		err := json.Unmarshal(data, &m)
		return m, err
	case TypeSummaryUpsert:
		var m SummaryUpsert
		err := json.Unmarshal(data, &m)
		return m, err
	case TypeTicker:
		var m Ticker
		err := json.Unmarshal(data, &m)
		return m, err
	default:
		return nil, fmt.Errorf("stream: unknown message type %q", head.Type)
	}
}
