package storage

import (
	"context"

	"snaplink/internal/allocator"
	"snaplink/internal/domain"
)

// PickFunc chooses a code given the codes currently stored.
type PickFunc func(existing allocator.CodeSet) (string, error)

// CheckFunc inspects the current record inside AppendClick before the event
// is written. A non-nil error aborts the append. Clicks is not populated.
type CheckFunc func(rec domain.LinkRecord) error

// Store is the persistence collaborator behind the registry.
// Writes to distinct codes are independent and a read observes the latest
// completed write to that code.
type Store interface {
	// Insert runs pick against the stored codes and writes build(code) under
	// that code in one atomic step, so no other insert can claim it in between.
	Insert(ctx context.Context, pick PickFunc, build func(code string) domain.LinkRecord) (domain.LinkRecord, error)

	// Get returns the record for code or a *domain.NotFoundError.
	Get(ctx context.Context, code string) (domain.LinkRecord, error)

	// Delete removes the record for code or returns a *domain.NotFoundError.
	Delete(ctx context.Context, code string) error

	// List returns all records, or only owner's when owner is not domain.AnyOwner,
	// newest first.
	List(ctx context.Context, owner domain.Owner) ([]domain.LinkRecord, error)

	// AppendClick runs check against the current record and, when it passes,
	// adds event to the end of that record's clicks in the same atomic step.
	// It returns the record the event was appended to, without its clicks.
	// Its cost does not depend on how many clicks the record already has.
	AppendClick(ctx context.Context, code string, event domain.ClickEvent, check CheckFunc) (domain.LinkRecord, error)

	// Close gracefully shuts down the store.
	Close() error
}
