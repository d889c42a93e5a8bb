// Package allocator picks short codes that are free in a snapshot of existing codes.
package allocator

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"snaplink/internal/domain"
)

const (
	alphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// DefaultLength is the length of generated codes.
	DefaultLength = 6
	// DefaultMaxAttempts bounds the candidates tried per allocation.
	DefaultMaxAttempts = 10
)

var alphabetSize = big.NewInt(int64(len(alphabet)))

// CodeSet is a read view of the codes currently held by the registry.
type CodeSet interface {
	Has(code string) (bool, error)
}

// Codes is an in-memory CodeSet.
type Codes map[string]struct{}

// Has implements CodeSet.
func (c Codes) Has(code string) (bool, error) {
	_, ok := c[code]
	return ok, nil
}

// Allocator chooses codes. It never reserves anything; the caller must insert
// the returned code in the same atomic step it checked the CodeSet in.
type Allocator struct {
	length      int
	maxAttempts int
	generate    func(n int) (string, error)
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithLength sets the generated code length.
func WithLength(n int) Option {
	return func(a *Allocator) {
		if n > 0 {
			a.length = n
		}
	}
}

// WithMaxAttempts bounds how many candidates are tried before giving up.
func WithMaxAttempts(n int) Option {
	return func(a *Allocator) {
		if n > 0 {
			a.maxAttempts = n
		}
	}
}

// WithGenerator replaces the random candidate source. Tests use it to force collisions.
func WithGenerator(gen func(n int) (string, error)) Option {
	return func(a *Allocator) {
		if gen != nil {
			a.generate = gen
		}
	}
}

// New creates an Allocator with 6-character codes and 10 attempts unless overridden.
func New(opts ...Option) *Allocator {
	a := &Allocator{
		length:      DefaultLength,
		maxAttempts: DefaultMaxAttempts,
		generate:    RandomCode,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Allocate returns requested unchanged when it is free, or a fresh random code
// when requested is empty. Requested codes are not normalised.
func (a *Allocator) Allocate(requested string, existing CodeSet) (string, error) {
	if requested != "" {
		taken, err := existing.Has(requested)
		if err != nil {
			return "", fmt.Errorf("failed to check code %q: %w", requested, err)
		}
		if taken {
			return "", &domain.CollisionError{Code: requested}
		}
		return requested, nil
	}

	for i := 0; i < a.maxAttempts; i++ {
		candidate, err := a.generate(a.length)
		if err != nil {
			return "", fmt.Errorf("failed to generate short code: %w", err)
		}
		taken, err := existing.Has(candidate)
		if err != nil {
			return "", fmt.Errorf("failed to check code %q: %w", candidate, err)
		}
		if !taken {
			return candidate, nil
		}
	}
	return "", &domain.ExhaustedError{Attempts: a.maxAttempts}
}

// RandomCode returns n characters drawn uniformly from the alphanumeric alphabet.
func RandomCode(n int) (string, error) {
	b := make([]byte, n)
	for i := range b {
		idx, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", err
		}
		b[i] = alphabet[idx.Int64()]
	}
	return string(b), nil
}
