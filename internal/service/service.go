// Package service is the surface the HTTP API, the Telegram bot and the CLI call.
// It applies caller-level defaults and delegates to the registry and resolver.
package service

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"snaplink/internal/domain"
	"snaplink/internal/expiry"
	"snaplink/internal/recorder"
	"snaplink/internal/registry"
	"snaplink/internal/resolver"
)

// DefaultValidityMinutes applies when a caller does not choose a validity window.
const DefaultValidityMinutes = 30

// Stats summarises a record's click history at a given instant.
type Stats struct {
	Code        string         `json:"code"`
	Destination string         `json:"destination"`
	State       string         `json:"state"`
	TotalClicks int            `json:"total_clicks"`
	BySource    map[string]int `json:"by_source"`
	LastClick   *time.Time     `json:"last_click,omitempty"`
	ExpiresAt   time.Time      `json:"expires_at"`
}

// Service applies caller-level defaults on top of the registry and resolver.
type Service struct {
	reg             *registry.Registry
	res             *resolver.Resolver
	defaultValidity int
	log             logrus.FieldLogger
}

// New wires a resolver and recorder around reg. defaultValidity <= 0 falls back to DefaultValidityMinutes.
func New(reg *registry.Registry, defaultValidity int, logger logrus.FieldLogger) *Service {
	if defaultValidity <= 0 {
		defaultValidity = DefaultValidityMinutes
	}
	return &Service{
		reg:             reg,
		res:             resolver.New(reg, recorder.New(reg), logger),
		defaultValidity: defaultValidity,
		log:             logger.WithField("component", "service"),
	}
}

// CreateLink creates a link. validityMinutes == 0 means the default window;
// negative values are rejected by the registry.
func (s *Service) CreateLink(ctx context.Context, destination, requestedCode string, validityMinutes int, owner domain.Owner) (domain.LinkRecord, error) {
	if validityMinutes == 0 {
		validityMinutes = s.defaultValidity
	}
	return s.reg.Create(ctx, registry.CreateParams{
		Destination:     destination,
		Code:            requestedCode,
		ValidityMinutes: validityMinutes,
		Owner:           owner,
	})
}

// DeleteLink removes code and frees it for reuse.
func (s *Service) DeleteLink(ctx context.Context, code string) error {
	return s.reg.Delete(ctx, code)
}

// ListLinks lists owner's links, or every link for domain.AnyOwner.
func (s *Service) ListLinks(ctx context.Context, owner domain.Owner) ([]domain.LinkRecord, error) {
	return s.reg.List(ctx, owner)
}

// Resolve dereferences code at now. An empty source is recorded as "direct".
func (s *Service) Resolve(ctx context.Context, code, source string, now time.Time) (resolver.Outcome, error) {
	if source == "" {
		source = domain.SourceDirect
	}
	return s.res.Resolve(ctx, code, source, now)
}

// SimulateClick resolves code with the synthetic "simulated" source.
func (s *Service) SimulateClick(ctx context.Context, code string, now time.Time) (resolver.Outcome, error) {
	return s.res.Resolve(ctx, code, domain.SourceSimulated, now)
}

// GetLinkDetail returns the record with its full click history.
func (s *Service) GetLinkDetail(ctx context.Context, code string) (domain.LinkRecord, error) {
	return s.reg.Get(ctx, code)
}

// LinkStats aggregates the click history of code.
func (s *Service) LinkStats(ctx context.Context, code string, now time.Time) (Stats, error) {
	rec, err := s.reg.Get(ctx, code)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{
		Code:        rec.Code,
		Destination: rec.Destination,
		State:       expiry.Classify(rec, now).String(),
		TotalClicks: len(rec.Clicks),
		BySource:    make(map[string]int),
		ExpiresAt:   rec.ExpiresAt,
	}
	for _, c := range rec.Clicks {
		st.BySource[c.Source]++
	}
	if n := len(rec.Clicks); n > 0 {
		last := rec.Clicks[n-1].Timestamp
		st.LastClick = &last
	}
	return st, nil
}
