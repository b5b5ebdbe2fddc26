package audit

import (
	"context"
	"errors"
	"time"

	"ledger-engine/internal/signing"
)

// Repository is the persistence contract for audit entries.
//
// It MUST be append-only. Append assigns the strictly-increasing global id.
// No Update/Delete methods are provided by design.
type Repository interface {
	Append(ctx context.Context, e Entry) (Entry, error)

	// RecentGlobal returns up to limit entries from the global stream, newest first.
	RecentGlobal(ctx context.Context, limit int) ([]Entry, error)

	// ForEvent returns the retained per-event list, newest first.
	ForEvent(ctx context.Context, eventID string) ([]Entry, error)
}

// Service signs and appends audit entries.
//
// Every transition attempt passes through here, success and denial alike.
// Not-found and authorization failures never reach this service; there is
// nothing to audit for them.
type Service struct {
	repo   Repository
	signer *signing.Signer
	clock  func() time.Time
}

var (
	ErrInvalidEntry  = errors.New("audit: invalid entry")
	ErrNotConfigured = errors.New("audit: repository not configured")
)

func NewService(repo Repository, signer *signing.Signer) *Service {
	return &Service{repo: repo, signer: signer, clock: time.Now}
}

// Append stamps, signs and persists one entry, returning it with the assigned
// global id and signature filled in.
func (s *Service) Append(ctx context.Context, e Entry) (Entry, error) {
	if s.repo == nil {
		return Entry{}, ErrNotConfigured
	}
	if e.EventID == "" || e.Action == "" {
		return Entry{}, ErrInvalidEntry
	}

	if e.At.IsZero() {
		e.At = s.clock().UTC()
	}

	if s.signer != nil {
		sig, err := s.signer.Sign(signingPayload(e))
		if err != nil {
			return Entry{}, err
		}
		e.Sig = sig
	}

	return s.repo.Append(ctx, e)
}

// Verify checks the entry's signature against its own content.
func (s *Service) Verify(e Entry) bool {
	if s.signer == nil {
		return false
	}
	return s.signer.Verify(signingPayload(e), e.Sig)
}

// PortableToken renders the entry as a compact header.payload.signature token
// for external verification.
func (s *Service) PortableToken(e Entry) (string, error) {
	if s.signer == nil {
		return "", signing.ErrNoSecret
	}
	return s.signer.Token(signingPayload(e), e.Sig)
}

func (s *Service) RecentGlobal(ctx context.Context, limit int) ([]Entry, error) {
	if s.repo == nil {
		return nil, ErrNotConfigured
	}
	if limit <= 0 {
		limit = 50
	}
	return s.repo.RecentGlobal(ctx, limit)
}

func (s *Service) ForEvent(ctx context.Context, eventID string) ([]Entry, error) {
	if s.repo == nil {
		return nil, ErrNotConfigured
	}
	if eventID == "" {
		return nil, ErrInvalidEntry
	}
	return s.repo.ForEvent(ctx, eventID)
}
