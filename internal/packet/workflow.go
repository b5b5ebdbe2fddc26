package packet

import (
	"fmt"
	"math"

	"ledger-engine/internal/ledger"
	"ledger-engine/internal/policy"
)

// Workflow evaluates the packet approval state machine layered on an event.
//
// Allowed edges: draft -> submitted -> approved -> closed. Any other requested
// edge is rejected regardless of other conditions. Extra conditions per edge
// accumulate into the reasons list the same way policy evaluations do.
type Workflow struct {
	// DualApprovalThreshold is the absolute amount at or above which an
	// approval needs signatures from two distinct signers. Loaded once from
	// configuration; it does not change while the process runs.
	DualApprovalThreshold float64
}

func NewWorkflow(dualApprovalThreshold float64) *Workflow {
	return &Workflow{DualApprovalThreshold: dualApprovalThreshold}
}

var allowedEdges = map[ledger.PacketStatus]ledger.PacketStatus{
	ledger.PacketDraft:     ledger.PacketSubmitted,
	ledger.PacketSubmitted: ledger.PacketApproved,
	ledger.PacketApproved:  ledger.PacketClosed,
}

// CanTransition reports whether the event's packet may move to target.
func (w *Workflow) CanTransition(ev ledger.Event, target ledger.PacketStatus) policy.Result {
	next, ok := allowedEdges[ev.PacketStatus]
	if !ok || next != target {
		return policy.Result{
			OK:      false,
			Reasons: []string{fmt.Sprintf("packet cannot move from %s to %s", ev.PacketStatus, target)},
		}
	}

	var reasons []string
	switch target {
	case ledger.PacketSubmitted:
		if ev.Owner == "" {
			reasons = append(reasons, "owner must be assigned before submission")
		}
		if len(ev.Receipts) < 1 {
			reasons = append(reasons, "at least 1 receipt required before submission")
		}
	case ledger.PacketApproved:
		if len(ev.Receipts) < 2 {
			reasons = append(reasons, fmt.Sprintf("need at least 2 receipts to approve packet, have %d", len(ev.Receipts)))
		}
		if w.RequiresDualApproval(ev) {
			if n := ev.DistinctApprovers(); n < 2 {
				reasons = append(reasons, fmt.Sprintf("need 2 distinct approvers, have %d", n))
			}
		}
	}

	if len(reasons) > 0 {
		return policy.Result{OK: false, Reasons: reasons}
	}
	return policy.Result{OK: true}
}

// RequiresDualApproval reports whether the event's amount crosses the
// dual-signer threshold. The check is lane-independent.
func (w *Workflow) RequiresDualApproval(ev ledger.Event) bool {
	if w.DualApprovalThreshold <= 0 {
		return false
	}
	return math.Abs(ev.Amount) >= w.DualApprovalThreshold
}
