package domain

import (
	"errors"
	"fmt"
	"time"
)

// Sentinels matched by the typed errors below via errors.Is.
var (
	ErrInvalidURL      = errors.New("invalid destination url")
	ErrInvalidDuration = errors.New("invalid validity duration")
	ErrCollision       = errors.New("short code already taken")
	ErrExhausted       = errors.New("no free short code found")
	ErrNotFound        = errors.New("short code not found")
	ErrInvalidCode     = errors.New("invalid short code")
	ErrExpired         = errors.New("short link expired")
)

// InvalidURLError reports a malformed or non-http(s) destination.
type InvalidURLError struct {
	URL    string
	Reason string
}

func (e *InvalidURLError) Error() string {
	return fmt.Sprintf("invalid destination url %q: %s", e.URL, e.Reason)
}

func (e *InvalidURLError) Is(target error) bool { return target == ErrInvalidURL }

// InvalidDurationError reports a non-positive validity window.
type InvalidDurationError struct {
	Minutes int
}

func (e *InvalidDurationError) Error() string {
	return fmt.Sprintf("validity must be a positive number of minutes, got %d", e.Minutes)
}

func (e *InvalidDurationError) Is(target error) bool { return target == ErrInvalidDuration }

// CollisionError names a requested code that is already in use.
type CollisionError struct {
	Code string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("short code %q is already taken", e.Code)
}

func (e *CollisionError) Is(target error) bool { return target == ErrCollision }

// ExhaustedError is returned when generation gave up after Attempts candidates.
type ExhaustedError struct {
	Attempts int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("no free short code after %d attempts", e.Attempts)
}

func (e *ExhaustedError) Is(target error) bool { return target == ErrExhausted }

// NotFoundError names a code with no record.
type NotFoundError struct {
	Code string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("short code %q not found", e.Code)
}

func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// InvalidCodeError reports a requested code that cannot be served.
type InvalidCodeError struct {
	Code   string
	Reason string
}

func (e *InvalidCodeError) Error() string {
	return fmt.Sprintf("invalid short code %q: %s", e.Code, e.Reason)
}

func (e *InvalidCodeError) Is(target error) bool { return target == ErrInvalidCode }

// ExpiredError is returned when a click is refused because the record expired.
type ExpiredError struct {
	Code      string
	ExpiresAt time.Time
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("short code %q expired at %s", e.Code, e.ExpiresAt.Format(time.RFC3339))
}

func (e *ExpiredError) Is(target error) bool { return target == ErrExpired }

// IsNotFound reports whether err is a not-found condition.
func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// IsExpired reports whether err refused a click on an expired record.
func IsExpired(err error) bool { return errors.Is(err, ErrExpired) }
