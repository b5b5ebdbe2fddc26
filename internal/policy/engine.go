package policy

import (
	"fmt"

	"ledger-engine/internal/ledger"
)

// Engine evaluates transition policy for events.
//
// Evaluations are pure functions of (event, config). No side effects, no
// storage access, no hidden state. Reasons accumulate so the caller sees the
// full remediation list in one round trip; there is no short-circuiting.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Result is the outcome of one policy evaluation.
// OK is true iff Reasons is empty.
type Result struct {
	OK      bool     `json:"ok"`
	Reasons []string `json:"reasons,omitempty"`
}

func allow() Result { return Result{OK: true} }

func deny(reasons []string) Result { return Result{OK: false, Reasons: reasons} }

// CanApprove reports whether the event may move into the approved state.
func (e *Engine) CanApprove(ev ledger.Event) Result {
	lc := e.cfg.ForLane(ev.Lane)

	var reasons []string
	if lc.RequireOwner && ev.Owner == "" {
		reasons = append(reasons, "owner must be assigned before approval")
	}
	if len(ev.Receipts) < lc.MinReceiptsToApprove {
		reasons = append(reasons, fmt.Sprintf("need at least %d receipts to approve, have %d", lc.MinReceiptsToApprove, len(ev.Receipts)))
	}
	if ev.Confidence < lc.MinConfidenceToApprove {
		reasons = append(reasons, fmt.Sprintf("confidence %.2f below approval minimum %.2f", ev.Confidence, lc.MinConfidenceToApprove))
	}
	if lc.RequireControlReceiptAtRisk && ev.State == ledger.StateAtRisk && !ev.HasControlReceipt() {
		reasons = append(reasons, "at-risk event requires a control or compliance receipt")
	}

	if len(reasons) > 0 {
		return deny(reasons)
	}
	return allow()
}

// CanClose reports whether the event may move into the realized state.
// Close thresholds are generally stricter than approve.
func (e *Engine) CanClose(ev ledger.Event) Result {
	lc := e.cfg.ForLane(ev.Lane)

	var reasons []string
	if lc.RequireOwner && ev.Owner == "" {
		reasons = append(reasons, "owner must be assigned before closing")
	}
	if len(ev.Receipts) < lc.MinReceiptsToClose {
		reasons = append(reasons, fmt.Sprintf("need at least %d receipts to close, have %d", lc.MinReceiptsToClose, len(ev.Receipts)))
	}
	if ev.Confidence < lc.MinConfidenceToClose {
		reasons = append(reasons, fmt.Sprintf("confidence %.2f below close minimum %.2f", ev.Confidence, lc.MinConfidenceToClose))
	}
	if lc.RequireControlReceiptAtRisk && ev.State == ledger.StateAtRisk && !ev.HasControlReceipt() {
		reasons = append(reasons, "at-risk event requires a control or compliance receipt")
	}

	if len(reasons) > 0 {
		return deny(reasons)
	}
	return allow()
}

// CheckPolicy dispatches on the requested target state. Transitions into
// approved and realized are gated; every other target is allowed
// unconditionally.
func (e *Engine) CheckPolicy(ev ledger.Event, target ledger.State) Result {
	switch target {
	case ledger.StateApproved:
		return e.CanApprove(ev)
	case ledger.StateRealized:
		return e.CanClose(ev)
	default:
		return allow()
	}
}
