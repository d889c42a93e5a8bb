// Package resolver answers what dereferencing a short code means right now.
package resolver

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"snaplink/internal/domain"
	"snaplink/internal/expiry"
	"snaplink/internal/metrics"
)

// Kind is the terminal state of a resolution.
type Kind int

// Resolution outcomes.
const (
	NotFound Kind = iota
	Expired
	Redirect
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "not_found"
	case Expired:
		return "expired"
	case Redirect:
		return "redirect"
	default:
		return "unknown"
	}
}

// Outcome is the result of Resolve. Destination is set only for Redirect.
type Outcome struct {
	Kind        Kind
	Destination string
}

// Links is the registry surface the resolver reads from.
type Links interface {
	Get(ctx context.Context, code string) (domain.LinkRecord, error)
}

// ClickRecorder appends a click for a live resolution. It re-checks expiry in
// the same atomic step as the append and returns the record it appended to.
type ClickRecorder interface {
	Record(ctx context.Context, code, source string, now time.Time) (domain.LinkRecord, error)
}

// Resolver turns a code and an instant into an Outcome.
type Resolver struct {
	links    Links
	recorder ClickRecorder
	log      logrus.FieldLogger
}

// New returns a Resolver reading from links and recording through recorder.
func New(links Links, recorder ClickRecorder, logger logrus.FieldLogger) *Resolver {
	return &Resolver{
		links:    links,
		recorder: recorder,
		log:      logger.WithField("component", "resolver"),
	}
}

// Resolve looks code up, classifies it against now and, only when live,
// records a click before returning the redirect. The recorder classifies the
// record again while appending, and the redirect target comes from the record
// the click landed on, so the decision is atomic even if the code was
// replaced after lookup. Expired records are never mutated. A returned error
// means the store failed, not that the code is unknown.
func (r *Resolver) Resolve(ctx context.Context, code, source string, now time.Time) (Outcome, error) {
	log := r.log.WithFields(logrus.Fields{"code": code, "source": source})

	rec, err := r.links.Get(ctx, code)
	if domain.IsNotFound(err) {
		return r.finish(log, Outcome{Kind: NotFound}), nil
	}
	if err != nil {
		metrics.Resolutions.WithLabelValues("error").Inc()
		log.WithError(err).Error("Failed to look up short code")
		return Outcome{}, err
	}

	if expiry.Classify(rec, now) == expiry.Expired {
		return r.finish(log, Outcome{Kind: Expired}), nil
	}

	clicked, err := r.recorder.Record(ctx, code, source, now)
	switch {
	case err == nil:
	case domain.IsNotFound(err):
		// Deleted between lookup and append.
		return r.finish(log, Outcome{Kind: NotFound}), nil
	case domain.IsExpired(err):
		// Replaced by an already expired record between lookup and append.
		return r.finish(log, Outcome{Kind: Expired}), nil
	default:
		metrics.Resolutions.WithLabelValues("error").Inc()
		log.WithError(err).Error("Failed to record click")
		return Outcome{}, err
	}

	return r.finish(log, Outcome{Kind: Redirect, Destination: clicked.Destination}), nil
}

func (r *Resolver) finish(log logrus.FieldLogger, out Outcome) Outcome {
	metrics.Resolutions.WithLabelValues(out.Kind.String()).Inc()
	log.WithField("outcome", out.Kind.String()).Debug("Resolved short code")
	return out
}
