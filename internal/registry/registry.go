// Package registry is the single owner of stored link records. Every read and
// write of persisted state goes through a Registry.
package registry

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"snaplink/internal/allocator"
	"snaplink/internal/domain"
	"snaplink/internal/metrics"
	"snaplink/internal/storage"
)

// CreateParams describes a link to create. An empty Code asks for a generated one.
type CreateParams struct {
	Destination     string
	Code            string
	ValidityMinutes int
	Owner           domain.Owner
}

// Registry validates, allocates and persists link records.
type Registry struct {
	store storage.Store
	alloc *allocator.Allocator
	locks codeLocks
	// reserved codes are never handed out, typically the names of fixed routes.
	reserved map[string]struct{}
	now      func() time.Time
	log      logrus.FieldLogger
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock replaces the creation-time source.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithAllocator replaces the default allocator.
func WithAllocator(a *allocator.Allocator) Option {
	return func(r *Registry) {
		if a != nil {
			r.alloc = a
		}
	}
}

// WithReservedCodes keeps codes from ever being allocated, whether requested or generated.
func WithReservedCodes(codes ...string) Option {
	return func(r *Registry) {
		for _, c := range codes {
			r.reserved[c] = struct{}{}
		}
	}
}

// New creates a Registry over store. The store must not be shared with
// another Registry.
func New(store storage.Store, logger logrus.FieldLogger, opts ...Option) *Registry {
	r := &Registry{
		store: store,
		alloc:    allocator.New(),
		reserved: make(map[string]struct{}),
		now:      time.Now,
		log:      logger.WithField("component", "registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Create validates p and inserts a new record with no clicks.
func (r *Registry) Create(ctx context.Context, p CreateParams) (domain.LinkRecord, error) {
	log := r.log.WithFields(logrus.Fields{
		"destination": p.Destination,
		"code":        p.Code,
		"owner":       p.Owner,
	})

	if err := ValidateDestination(p.Destination); err != nil {
		log.WithError(err).Info("Rejected link with invalid destination")
		return domain.LinkRecord{}, err
	}
	if p.ValidityMinutes <= 0 {
		err := &domain.InvalidDurationError{Minutes: p.ValidityMinutes}
		log.WithError(err).Info("Rejected link with invalid validity")
		return domain.LinkRecord{}, err
	}

	if p.Code != "" {
		if err := r.ValidateCode(p.Code); err != nil {
			log.WithError(err).Info("Rejected link with invalid code")
			return domain.LinkRecord{}, err
		}
		defer r.locks.lock(p.Code)()
	}

	createdAt := r.now().Truncate(time.Millisecond)
	rec, err := r.store.Insert(ctx,
		func(existing allocator.CodeSet) (string, error) {
			return r.alloc.Allocate(p.Code, existing)
		},
		func(code string) domain.LinkRecord {
			return domain.LinkRecord{
				Code:        code,
				Destination: p.Destination,
				CreatedAt:   createdAt,
				ExpiresAt:   createdAt.Add(time.Duration(p.ValidityMinutes) * time.Minute),
				Owner:       p.Owner,
				Clicks:      []domain.ClickEvent{},
			}
		},
	)
	if err != nil {
		log.WithError(err).Warn("Failed to create link")
		return domain.LinkRecord{}, err
	}

	metrics.LinksCreated.Inc()
	log.WithField("code", rec.Code).Info("Link created")
	return rec, nil
}

// Get looks code up without evaluating expiry.
func (r *Registry) Get(ctx context.Context, code string) (domain.LinkRecord, error) {
	return r.store.Get(ctx, code)
}

// Delete removes code, freeing it for reuse.
func (r *Registry) Delete(ctx context.Context, code string) error {
	defer r.locks.lock(code)()

	if err := r.store.Delete(ctx, code); err != nil {
		return err
	}
	metrics.LinksDeleted.Inc()
	r.log.WithField("code", code).Info("Link deleted")
	return nil
}

// List returns owner's records, or every record for domain.AnyOwner, newest first.
func (r *Registry) List(ctx context.Context, owner domain.Owner) ([]domain.LinkRecord, error) {
	return r.store.List(ctx, owner)
}

// AppendClick is the only mutation of an existing record. check runs against
// the current record under the code's lock and inside the store's atomic
// step, so a record that replaced the one the caller looked up is judged on
// its own. Appends to a deleted code fail with NotFoundError.
func (r *Registry) AppendClick(ctx context.Context, code string, event domain.ClickEvent, check storage.CheckFunc) (domain.LinkRecord, error) {
	defer r.locks.lock(code)()
	return r.store.AppendClick(ctx, code, event, check)
}

// ValidateCode rejects requested codes that the redirect route could never serve.
func (r *Registry) ValidateCode(code string) error {
	if strings.ContainsAny(code, "/?#") {
		return &domain.InvalidCodeError{Code: code, Reason: "must not contain '/', '?' or '#'"}
	}
	if code == "." || code == ".." {
		return &domain.InvalidCodeError{Code: code, Reason: "not a path segment"}
	}
	if strings.TrimSpace(code) != code {
		return &domain.InvalidCodeError{Code: code, Reason: "must not start or end with whitespace"}
	}
	if _, ok := r.reserved[code]; ok {
		return &domain.InvalidCodeError{Code: code, Reason: "reserved"}
	}
	return nil
}

// ValidateDestination accepts absolute http and https URLs with a host.
func ValidateDestination(raw string) error {
	if raw == "" {
		return &domain.InvalidURLError{URL: raw, Reason: "empty"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &domain.InvalidURLError{URL: raw, Reason: "malformed"}
	}
	if !u.IsAbs() {
		return &domain.InvalidURLError{URL: raw, Reason: "not absolute"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &domain.InvalidURLError{URL: raw, Reason: "scheme must be http or https"}
	}
	if u.Host == "" {
		return &domain.InvalidURLError{URL: raw, Reason: "missing host"}
	}
	return nil
}

// reservedCodes reports reserved codes as taken so generation skips them.
type reservedCodes struct {
	allocator.CodeSet
	reserved map[string]struct{}
}

func (c reservedCodes) Has(code string) (bool, error) {
	if _, ok := c.reserved[code]; ok {
		return true, nil
	}
	return c.CodeSet.Has(code)
}
