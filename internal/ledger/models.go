package ledger

import (
	"errors"
	"strings"
	"time"
)

// Event is the unit of tracked ledger work.
//
// Invariants:
// - State and PacketStatus are independent and forward-only under normal operation.
// - Confidence and TimeSensitivity are clamped into [0,1] on every write.
// - Events are never hard-deleted; they only move to terminal states.
type Event struct {
	ID       string `json:"id"`
	Lane     Lane   `json:"lane"`
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`

	// Amount is signed: positive is gain, negative is exposure.
	Amount float64 `json:"amount"`

	// Confidence gates policy decisions; TimeSensitivity is ranking-only.
	Confidence      float64 `json:"confidence"`
	TimeSensitivity float64 `json:"time_sensitivity"`

	State State  `json:"state"`
	Owner string `json:"owner,omitempty"`

	Receipts []Receipt `json:"receipts"`

	PacketStatus     PacketStatus      `json:"packet_status"`
	PacketSignatures []PacketSignature `json:"packet_signatures,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// Receipt is an evidence reference. Policy counts receipts; it never validates
// their content beyond title markers.
type Receipt struct {
	ID        string  `json:"id"`
	Title     string  `json:"title"`
	Hash      string  `json:"hash,omitempty"`
	Freshness float64 `json:"freshness,omitempty"`
	URL       string  `json:"url,omitempty"`
}

// PacketSignature records one approval attestation on an event's packet.
type PacketSignature struct {
	Signer string    `json:"signer"`
	Action string    `json:"action"`
	At     time.Time `json:"at"`
}

const SignatureActionApprove = "approve"

type State string

const (
	StateIdentified State = "identified"
	StateApproved   State = "approved"
	StateRealized   State = "realized"
	StateAtRisk     State = "at_risk"
)

func (s State) Valid() bool {
	switch s {
	case StateIdentified, StateApproved, StateRealized, StateAtRisk:
		return true
	default:
		return false
	}
}

type PacketStatus string

const (
	PacketDraft     PacketStatus = "draft"
	PacketSubmitted PacketStatus = "submitted"
	PacketApproved  PacketStatus = "approved"
	PacketClosed    PacketStatus = "closed"
)

func (p PacketStatus) Valid() bool {
	switch p {
	case PacketDraft, PacketSubmitted, PacketApproved, PacketClosed:
		return true
	default:
		return false
	}
}

// Lane partitions events into policy categories. The set is closed; ingest
// rejects anything else.
type Lane string

const (
	LaneValue      Lane = "value"
	LaneCost       Lane = "cost"
	LaneRisk       Lane = "risk"
	LaneCompliance Lane = "compliance"
)

func (l Lane) Valid() bool {
	switch l {
	case LaneValue, LaneCost, LaneRisk, LaneCompliance:
		return true
	default:
		return false
	}
}

func Lanes() []Lane {
	return []Lane{LaneValue, LaneCost, LaneRisk, LaneCompliance}
}

var ErrInvalidEvent = errors.New("ledger: invalid event")

// Normalize applies field defaults and clamps bounded fields.
// It must run on every write path before the event reaches storage.
func (e *Event) Normalize() {
	if e.State == "" {
		e.State = StateIdentified
	}
	if e.PacketStatus == "" {
		e.PacketStatus = PacketDraft
	}
	e.Confidence = clamp01(e.Confidence)
	e.TimeSensitivity = clamp01(e.TimeSensitivity)
}

// ValidateNew checks the required ingest fields.
func (e Event) ValidateNew() error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("ledger: id is required")
	}
	if strings.TrimSpace(string(e.Lane)) == "" {
		return errors.New("ledger: lane is required")
	}
	if !e.Lane.Valid() {
		return errors.New("ledger: unknown lane")
	}
	if strings.TrimSpace(e.Title) == "" {
		return errors.New("ledger: title is required")
	}
	if e.State != "" && !e.State.Valid() {
		return errors.New("ledger: unknown state")
	}
	if e.PacketStatus != "" && !e.PacketStatus.Valid() {
		return errors.New("ledger: unknown packet status")
	}
	return nil
}

// DistinctApprovers returns the number of unique signers holding an approve
// signature. Repeat signatures by the same signer count once.
func (e Event) DistinctApprovers() int {
	seen := make(map[string]struct{}, len(e.PacketSignatures))
	for _, s := range e.PacketSignatures {
		if s.Action != SignatureActionApprove || s.Signer == "" {
			continue
		}
		seen[s.Signer] = struct{}{}
	}
	return len(seen)
}

// HasControlReceipt reports whether any receipt title carries a control or
// compliance marker. At-risk events in strict lanes require one before approval.
func (e Event) HasControlReceipt() bool {
	for _, r := range e.Receipts {
		t := strings.ToLower(r.Title)
		if strings.Contains(t, "control") || strings.Contains(t, "compliance") {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
