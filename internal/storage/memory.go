package storage

import (
	"context"
	"sync"

	"snaplink/internal/allocator"
	"snaplink/internal/domain"
)

// MemoryStore keeps records in a map. Nothing survives a restart.
type MemoryStore struct {
	mu    sync.RWMutex
	links map[string]domain.LinkRecord
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{links: make(map[string]domain.LinkRecord)}
}

// memoryCodes is a CodeSet over the map; callers hold mu.
type memoryCodes map[string]domain.LinkRecord

func (m memoryCodes) Has(code string) (bool, error) {
	_, ok := m[code]
	return ok, nil
}

// Insert picks a code and stores build(code) under the store lock.
func (s *MemoryStore) Insert(_ context.Context, pick PickFunc, build func(code string) domain.LinkRecord) (domain.LinkRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, err := pick(memoryCodes(s.links))
	if err != nil {
		return domain.LinkRecord{}, err
	}
	rec := build(code)
	rec.Code = code
	s.links[code] = rec.Clone()
	return rec, nil
}

// Get returns a copy of the record for code.
func (s *MemoryStore) Get(_ context.Context, code string) (domain.LinkRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.links[code]
	if !ok {
		return domain.LinkRecord{}, &domain.NotFoundError{Code: code}
	}
	return rec.Clone(), nil
}

// Delete removes the record for code.
func (s *MemoryStore) Delete(_ context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.links[code]; !ok {
		return &domain.NotFoundError{Code: code}
	}
	delete(s.links, code)
	return nil
}

// List returns copies of the matching records, newest first.
func (s *MemoryStore) List(_ context.Context, owner domain.Owner) ([]domain.LinkRecord, error) {
	s.mu.RLock()
	links := make([]domain.LinkRecord, 0, len(s.links))
	for _, rec := range s.links {
		if owner != domain.AnyOwner && rec.Owner != owner {
			continue
		}
		links = append(links, rec.Clone())
	}
	s.mu.RUnlock()

	sortNewestFirst(links)
	return links, nil
}

// AppendClick runs check and appends event under the store lock.
func (s *MemoryStore) AppendClick(_ context.Context, code string, event domain.ClickEvent, check CheckFunc) (domain.LinkRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.links[code]
	if !ok {
		return domain.LinkRecord{}, &domain.NotFoundError{Code: code}
	}
	head := rec
	head.Clicks = []domain.ClickEvent{}
	if check != nil {
		if err := check(head); err != nil {
			return domain.LinkRecord{}, err
		}
	}
	rec.Clicks = append(rec.Clicks, event)
	s.links[code] = rec
	return head, nil
}

// Close is a no-op.
func (s *MemoryStore) Close() error { return nil }

var (
	_ Store             = (*MemoryStore)(nil)
	_ allocator.CodeSet = memoryCodes(nil)
)
