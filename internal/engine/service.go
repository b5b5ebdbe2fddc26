package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ledger-engine/internal/audit"
	"ledger-engine/internal/ledger"
	"ledger-engine/internal/packet"
	"ledger-engine/internal/policy"
	"ledger-engine/internal/store"
	"ledger-engine/internal/stream"
)

// Service orchestrates policy-gated transitions over the event store.
//
// Every transition re-reads the current stored event before evaluation, never
// a caller-supplied copy, and commits with a conditional write keyed on
// updated_at. Every attempt, allowed or denied, produces a signed audit entry.
// Committed changes are published to the change bus.
type Service struct {
	store   store.EventStore
	policy  *policy.Engine
	packets *packet.Workflow
	audit   *audit.Service
	bus     stream.Publisher
	clock   func() time.Time
	log     *slog.Logger
}

var (
	ErrNotFound = store.ErrNotFound

	// ErrConflict is a lost write race; the caller should retry the request.
	ErrConflict = store.ErrConflict

	ErrInvalidArgument = errors.New("engine: invalid argument")
)

func NewService(st store.EventStore, pol *policy.Engine, packets *packet.Workflow, auditSvc *audit.Service, bus stream.Publisher, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:   st,
		policy:  pol,
		packets: packets,
		audit:   auditSvc,
		bus:     bus,
		clock:   time.Now,
		log:     log,
	}
}

// TransitionResult is the uniform outcome for gated operations. Denials are
// expected, non-exceptional: OK false with the full remediation list, never an
// error.
type TransitionResult struct {
	OK      bool          `json:"ok"`
	Reasons []string      `json:"reasons,omitempty"`
	Event   *ledger.Event `json:"event,omitempty"`
}

/* ===================== INGEST ===================== */

// IngestReport carries per-element outcomes; one bad element never fails the
// batch.
type IngestReport struct {
	Accepted []ledger.Event `json:"accepted"`
	Rejected []IngestError  `json:"rejected,omitempty"`
}

type IngestError struct {
	Index int    `json:"index"`
	ID    string `json:"id,omitempty"`
	Error string `json:"error"`
}

func (s *Service) Ingest(ctx context.Context, events []ledger.Event, actor string) (IngestReport, error) {
	var report IngestReport
	for i, ev := range events {
		if err := ev.ValidateNew(); err != nil {
			report.Rejected = append(report.Rejected, IngestError{Index: i, ID: ev.ID, Error: err.Error()})
			continue
		}
		ev.Normalize()

		stored, err := s.store.Upsert(ctx, ev)
		if err != nil {
			report.Rejected = append(report.Rejected, IngestError{Index: i, ID: ev.ID, Error: err.Error()})
			continue
		}

		s.appendAudit(ctx, stored, actor, audit.ActionIngest, stored.State, stored.State, policy.Result{OK: true})
		s.publishChange(ctx, stored)
		report.Accepted = append(report.Accepted, stored)
	}
	return report, nil
}

/* ===================== READS ===================== */

func (s *Service) GetEvent(ctx context.Context, id string) (ledger.Event, error) {
	if id == "" {
		return ledger.Event{}, ErrInvalidArgument
	}
	return s.store.Get(ctx, id)
}

func (s *Service) ListEvents(ctx context.Context) ([]ledger.Event, error) {
	ids, err := s.store.ListIDs(ctx, 0)
	if err != nil {
		return nil, err
	}
	return s.store.GetMany(ctx, ids)
}

func (s *Service) Summaries(ctx context.Context) ([]ledger.Summary, error) {
	events, err := s.ListEvents(ctx)
	if err != nil {
		return nil, err
	}
	return ledger.Summarize(events), nil
}

// Snapshot builds the full-state frame sent to new stream connections.
func (s *Service) Snapshot(ctx context.Context) (stream.Snapshot, error) {
	events, err := s.ListEvents(ctx)
	if err != nil {
		return stream.Snapshot{}, err
	}
	return stream.Snapshot{Events: events, Summaries: ledger.Summarize(events)}, nil
}

/* ===================== EVENT TRANSITIONS ===================== */

// Assign sets the event's owner. Assignment is not policy-gated but is
// audited and published like every other mutation.
func (s *Service) Assign(ctx context.Context, eventID, owner, actor string) (TransitionResult, error) {
	if owner == "" {
		return TransitionResult{}, fmt.Errorf("%w: owner is required", ErrInvalidArgument)
	}

	current, err := s.store.Get(ctx, eventID)
	if err != nil {
		return TransitionResult{}, err
	}

	updated := current
	updated.Owner = owner
	committed, err := s.store.UpsertIf(ctx, updated, current.UpdatedAt)
	if err != nil {
		return TransitionResult{}, err
	}

	s.appendAudit(ctx, committed, actor, audit.ActionAssign, current.State, committed.State, policy.Result{OK: true})
	s.publishChange(ctx, committed)
	return TransitionResult{OK: true, Event: &committed}, nil
}

// Approve attempts the transition into the approved state.
func (s *Service) Approve(ctx context.Context, eventID, actor string) (TransitionResult, error) {
	return s.transition(ctx, eventID, actor, ledger.StateApproved, audit.ActionApproveAttempt, audit.ActionApprove)
}

// Close attempts the transition into the realized state.
func (s *Service) Close(ctx context.Context, eventID, actor string) (TransitionResult, error) {
	return s.transition(ctx, eventID, actor, ledger.StateRealized, audit.ActionCloseAttempt, audit.ActionClose)
}

func (s *Service) transition(ctx context.Context, eventID, actor string, target ledger.State, attemptAction, successAction audit.Action) (TransitionResult, error) {
	current, err := s.store.Get(ctx, eventID)
	if err != nil {
		return TransitionResult{}, err
	}

	res := s.policy.CheckPolicy(current, target)
	if !res.OK {
		s.appendAudit(ctx, current, actor, attemptAction, current.State, target, res)
		return TransitionResult{OK: false, Reasons: res.Reasons}, nil
	}

	updated := current
	updated.State = target
	committed, err := s.store.UpsertIf(ctx, updated, current.UpdatedAt)
	if err != nil {
		return TransitionResult{}, err
	}

	s.appendAudit(ctx, committed, actor, successAction, current.State, target, res)
	s.publishChange(ctx, committed)
	return TransitionResult{OK: true, Event: &committed}, nil
}

/* ===================== PACKET TRANSITIONS ===================== */

func (s *Service) PacketSubmit(ctx context.Context, eventID, actor string) (TransitionResult, error) {
	return s.packetTransition(ctx, eventID, actor, ledger.PacketSubmitted, audit.ActionPacketSubmitAttempt, audit.ActionPacketSubmit)
}

func (s *Service) PacketApprove(ctx context.Context, eventID, actor string) (TransitionResult, error) {
	return s.packetTransition(ctx, eventID, actor, ledger.PacketApproved, audit.ActionPacketApproveAttempt, audit.ActionPacketApprove)
}

func (s *Service) PacketClose(ctx context.Context, eventID, actor string) (TransitionResult, error) {
	return s.packetTransition(ctx, eventID, actor, ledger.PacketClosed, audit.ActionPacketCloseAttempt, audit.ActionPacketClose)
}

func (s *Service) packetTransition(ctx context.Context, eventID, actor string, target ledger.PacketStatus, attemptAction, successAction audit.Action) (TransitionResult, error) {
	current, err := s.store.Get(ctx, eventID)
	if err != nil {
		return TransitionResult{}, err
	}

	work := current
	signatureAdded := false
	if target == ledger.PacketApproved && actor != "" {
		// The actor's attestation is recorded even when the transition is
		// denied on dual approval, so a second approver can complete it.
		work.PacketSignatures = append(work.PacketSignatures, ledger.PacketSignature{
			Signer: actor,
			Action: ledger.SignatureActionApprove,
			At:     s.clock().UTC(),
		})
		signatureAdded = true
	}

	res := s.packets.CanTransition(work, target)
	if !res.OK {
		if signatureAdded && current.PacketStatus == ledger.PacketSubmitted {
			committed, err := s.store.UpsertIf(ctx, work, current.UpdatedAt)
			if err != nil {
				return TransitionResult{}, err
			}
			s.publishChange(ctx, committed)
		}
		s.appendAudit(ctx, work, actor, attemptAction, current.State, current.State, res)
		return TransitionResult{OK: false, Reasons: res.Reasons}, nil
	}

	work.PacketStatus = target
	committed, err := s.store.UpsertIf(ctx, work, current.UpdatedAt)
	if err != nil {
		return TransitionResult{}, err
	}

	s.appendAudit(ctx, committed, actor, successAction, current.State, committed.State, res)
	s.publishChange(ctx, committed)
	return TransitionResult{OK: true, Event: &committed}, nil
}

/* ===================== RECEIPTS ===================== */

// AttachReceipt appends evidence to an event. Receipts are never gated.
func (s *Service) AttachReceipt(ctx context.Context, eventID string, r ledger.Receipt, actor string) (TransitionResult, error) {
	if r.Title == "" {
		return TransitionResult{}, fmt.Errorf("%w: receipt title is required", ErrInvalidArgument)
	}
	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	current, err := s.store.Get(ctx, eventID)
	if err != nil {
		return TransitionResult{}, err
	}

	updated := current
	updated.Receipts = append(updated.Receipts, r)
	committed, err := s.store.UpsertIf(ctx, updated, current.UpdatedAt)
	if err != nil {
		return TransitionResult{}, err
	}

	s.appendAudit(ctx, committed, actor, audit.ActionReceiptAttach, current.State, committed.State, policy.Result{OK: true})
	s.publishChange(ctx, committed)
	return TransitionResult{OK: true, Event: &committed}, nil
}

/* ===================== INTERNAL ===================== */

// appendAudit writes the attempt record. Audit failures are logged, not
// propagated: the transition itself has already been decided.
func (s *Service) appendAudit(ctx context.Context, ev ledger.Event, actor string, action audit.Action, prior, next ledger.State, res policy.Result) {
	if s.audit == nil {
		return
	}
	_, err := s.audit.Append(ctx, audit.Entry{
		Actor:         actor,
		Action:        action,
		Lane:          ev.Lane,
		EventID:       ev.ID,
		PriorState:    prior,
		NextState:     next,
		Amount:        ev.Amount,
		Owner:         ev.Owner,
		PolicyOK:      res.OK,
		PolicyReasons: res.Reasons,
	})
	if err != nil {
		s.log.Error("audit append failed", "event_id", ev.ID, "action", string(action), "err", err)
	}
}

// publishChange pushes the committed event plus its lane's recomputed summary.
// Publish failures are logged; the write has already committed.
func (s *Service) publishChange(ctx context.Context, ev ledger.Event) {
	if s.bus == nil {
		return
	}
	if err := s.bus.Publish(ctx, stream.EventUpsert{Event: ev}); err != nil {
		s.log.Error("event publish failed", "event_id", ev.ID, "err", err)
		return
	}

	events, err := s.ListEvents(ctx)
	if err != nil {
		s.log.Error("summary recompute failed", "lane", string(ev.Lane), "err", err)
		return
	}
	var laneEvents []ledger.Event
	for _, e := range events {
		if e.Lane == ev.Lane {
			laneEvents = append(laneEvents, e)
		}
	}
	summary := ledger.SummarizeLane(ev.Lane, laneEvents)
	if err := s.bus.Publish(ctx, stream.SummaryUpsert{Summary: summary}); err != nil {
		s.log.Error("summary publish failed", "lane", string(ev.Lane), "err", err)
	}
}
