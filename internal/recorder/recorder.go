// Package recorder appends click events to link records.
package recorder

import (
	"context"
	"time"

	"snaplink/internal/domain"
	"snaplink/internal/expiry"
	"snaplink/internal/storage"
)

// ClickAppender is the registry surface the recorder writes through.
type ClickAppender interface {
	AppendClick(ctx context.Context, code string, event domain.ClickEvent, check storage.CheckFunc) (domain.LinkRecord, error)
}

// Recorder records successful resolutions.
type Recorder struct {
	links ClickAppender
}

// New returns a Recorder writing through links.
func New(links ClickAppender) *Recorder {
	return &Recorder{links: links}
}

// Record appends a click for code at now and returns the record it landed on.
// The record is classified again in the same atomic step as the append: it
// fails with NotFoundError when the code has no record and with ExpiredError
// when the current record is expired at now. Neither case writes anything.
func (r *Recorder) Record(ctx context.Context, code, source string, now time.Time) (domain.LinkRecord, error) {
	event := domain.ClickEvent{Timestamp: now, Source: source}
	return r.links.AppendClick(ctx, code, event, func(rec domain.LinkRecord) error {
		if expiry.Classify(rec, now) == expiry.Expired {
			return &domain.ExpiredError{Code: rec.Code, ExpiresAt: rec.ExpiresAt}
		}
		return nil
	})
}
