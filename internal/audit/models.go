package audit

import (
	"time"

	"ledger-engine/internal/ledger"
)

// Entry is an immutable record of one transition attempt, allowed or denied.
//
// Invariants:
// - An entry is written for every attempt, including denials.
// - Entries are never updated or deleted after creation.
// - Sig must verify against the entry's own content under the active key.
//
// Storage recommendation (Postgres):
// - Table audit_entries with an INSERT-only policy.
// - Optional: trigger to prevent UPDATE/DELETE.
// - Optional: partition by time for retention.
type Entry struct {
	// ID is store-assigned and strictly increasing within the global stream.
	// It is assigned after signing and is not covered by Sig.
	ID int64 `json:"id"`

	At time.Time `json:"at"`

	// Actor is the caller identity; empty for system-originated entries.
	Actor string `json:"actor,omitempty"`

	Action Action `json:"action"`

	// Denormalized snapshot of the affected event at attempt time.
	Lane       ledger.Lane  `json:"lane"`
	EventID    string       `json:"event_id"`
	PriorState ledger.State `json:"prior_state"`
	NextState  ledger.State `json:"next_state"`
	Amount     float64      `json:"amount"`
	Owner      string       `json:"owner,omitempty"`

	PolicyOK      bool     `json:"policy_ok"`
	PolicyReasons []string `json:"policy_reasons,omitempty"`

	Sig string `json:"sig,omitempty"`
}

type Action string

const (
	ActionIngest         Action = "ingest"
	ActionAssign         Action = "assign"
	ActionApproveAttempt Action = "approve_attempt"
	ActionApprove        Action = "approve"
	ActionCloseAttempt   Action = "close_attempt"
	ActionClose          Action = "close"
	ActionReceiptAttach  Action = "receipt_attach"

	ActionPacketSubmitAttempt  Action = "packet_submit_attempt"
	ActionPacketSubmit         Action = "packet_submit"
	ActionPacketApproveAttempt Action = "packet_approve_attempt"
	ActionPacketApprove        Action = "packet_approve"
	ActionPacketCloseAttempt   Action = "packet_close_attempt"
	ActionPacketClose          Action = "packet_close"
)

// PerEventRetention caps the per-event list; the global stream is never trimmed.
const PerEventRetention = 200

// signingPayload strips the store-assigned and signature fields. The signature
// covers everything else.
func signingPayload(e Entry) Entry {
	e.ID = 0
	e.Sig = ""
	return e
}
