package storage

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"snaplink/internal/allocator"
	"snaplink/internal/domain"
)

// maxConflictRetries bounds how often a transaction is replayed after badger.ErrConflict.
const maxConflictRetries = 64

var (
	// linkPrefix is the key prefix for every link record.
	linkPrefix = []byte("link:")
	// clickPrefix is the key prefix for click events.
	clickPrefix = []byte("click:")
)

// storedLink is the value kept under a link key. Clicks live under their own
// keys, scoped by ID so that a re-created code never sees an old history.
type storedLink struct {
	ID          string       `json:"id"`
	Code        string       `json:"code"`
	Destination string       `json:"destination"`
	CreatedAt   time.Time    `json:"created_at"`
	ExpiresAt   time.Time    `json:"expires_at"`
	Owner       domain.Owner `json:"owner"`
	ClickCount  uint64       `json:"click_count"`
}

func (l storedLink) record() domain.LinkRecord {
	return domain.LinkRecord{
		Code:        l.Code,
		Destination: l.Destination,
		CreatedAt:   l.CreatedAt,
		ExpiresAt:   l.ExpiresAt,
		Owner:       l.Owner,
		Clicks:      []domain.ClickEvent{},
	}
}

// BadgerStore implements the Store interface using BadgerDB.
type BadgerStore struct {
	db  *badger.DB
	log logrus.FieldLogger
}

// NewBadgerStore creates and initializes a new BadgerDB store.
// It opens the database at the specified path.
func NewBadgerStore(dbPath string, logger logrus.FieldLogger) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = &badgerLogger{logger.WithField("component", "badgerdb")}

	db, err := badger.Open(opts)
	if err != nil {
		logger.WithError(err).Error("Failed to open BadgerDB")
		return nil, fmt.Errorf("failed to open badger db at %s: %w", dbPath, err)
	}
	logger.Info("BadgerDB opened successfully at path: ", dbPath)

	return &BadgerStore{
		db:  db,
		log: logger.WithField("component", "store"),
	}, nil
}

// Close closes the BadgerDB database connection.
func (s *BadgerStore) Close() error {
	s.log.Info("Closing BadgerDB...")
	err := s.db.Close()
	if err != nil {
		s.log.WithError(err).Error("Error closing BadgerDB")
		return err
	}
	s.log.Info("BadgerDB closed.")
	return nil
}

// linkKey creates the key for a link record.
// Format: link:{code}
func linkKey(code string) []byte {
	return append(append([]byte{}, linkPrefix...), code...)
}

// clickKeyPrefix is the prefix of every click of the link with the given ID.
// Format: click:{id}:
func clickKeyPrefix(id string) []byte {
	k := append(append([]byte{}, clickPrefix...), id...)
	return append(k, ':')
}

// clickKey creates the key of the seq-th click. The big-endian sequence keeps
// iteration order equal to append order.
// Format: click:{id}:{seq}
func clickKey(id string, seq uint64) []byte {
	return binary.BigEndian.AppendUint64(clickKeyPrefix(id), seq)
}

// txnCodes exposes the keys visible to a transaction as a CodeSet. Every Has
// lands in the transaction's read set, so a concurrent insert of the same
// code makes the commit fail with badger.ErrConflict.
type txnCodes struct {
	txn *badger.Txn
}

func (c txnCodes) Has(code string) (bool, error) {
	_, err := c.txn.Get(linkKey(code))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// update runs fn in a read-write transaction, replaying it on write conflicts.
func (s *BadgerStore) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 1; attempt <= maxConflictRetries; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.WithField("attempt", attempt).Debug("Transaction conflict, retrying")
	}
	return err
}

func readLink(txn *badger.Txn, code string) (storedLink, error) {
	item, err := txn.Get(linkKey(code))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return storedLink{}, &domain.NotFoundError{Code: code}
	}
	if err != nil {
		return storedLink{}, err
	}
	return decodeLink(item)
}

func decodeLink(item *badger.Item) (storedLink, error) {
	var l storedLink
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &l)
	})
	if err != nil {
		return storedLink{}, fmt.Errorf("failed to unmarshal link data for key %s: %w", item.KeyCopy(nil), err)
	}
	return l, nil
}

func writeLink(txn *badger.Txn, l storedLink) error {
	val, err := json.Marshal(l)
	if err != nil {
		return fmt.Errorf("failed to marshal link: %w", err)
	}
	return txn.SetEntry(badger.NewEntry(linkKey(l.Code), val))
}

// readClicks loads the click history of l in append order.
func readClicks(txn *badger.Txn, l storedLink) ([]domain.ClickEvent, error) {
	clicks := make([]domain.ClickEvent, 0, l.ClickCount)
	prefix := clickKeyPrefix(l.ID)

	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		var ev domain.ClickEvent
		err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &ev)
		})
		if err != nil {
			return nil, fmt.Errorf("failed to unmarshal click for link %s: %w", l.Code, err)
		}
		clicks = append(clicks, ev)
	}
	return clicks, nil
}

func readRecord(txn *badger.Txn, code string) (domain.LinkRecord, error) {
	l, err := readLink(txn, code)
	if err != nil {
		return domain.LinkRecord{}, err
	}
	rec := l.record()
	if rec.Clicks, err = readClicks(txn, l); err != nil {
		return domain.LinkRecord{}, err
	}
	return rec, nil
}

// Insert allocates and stores a new record in one transaction.
func (s *BadgerStore) Insert(ctx context.Context, pick PickFunc, build func(code string) domain.LinkRecord) (domain.LinkRecord, error) {
	var rec domain.LinkRecord
	err := s.update(func(txn *badger.Txn) error {
		code, err := pick(txnCodes{txn: txn})
		if err != nil {
			return err
		}
		rec = build(code)
		rec.Code = code
		return writeLink(txn, storedLink{
			ID:          uuid.NewString(),
			Code:        rec.Code,
			Destination: rec.Destination,
			CreatedAt:   rec.CreatedAt,
			ExpiresAt:   rec.ExpiresAt,
			Owner:       rec.Owner,
		})
	})
	if err != nil {
		return domain.LinkRecord{}, err
	}

	s.log.WithFields(logrus.Fields{
		"code":  rec.Code,
		"owner": rec.Owner,
	}).Debug("Link inserted")
	rec.Clicks = []domain.ClickEvent{}
	return rec, nil
}

// Get retrieves a single record with its click history.
func (s *BadgerStore) Get(ctx context.Context, code string) (domain.LinkRecord, error) {
	var rec domain.LinkRecord
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = readRecord(txn, code)
		return err
	})
	if err != nil {
		return domain.LinkRecord{}, err
	}
	return rec, nil
}

// Delete removes a record, reporting NotFoundError when it does not exist.
// The record key goes first; its clicks are unreachable from then on and are
// purged afterwards in batches.
func (s *BadgerStore) Delete(ctx context.Context, code string) error {
	var id string
	err := s.update(func(txn *badger.Txn) error {
		l, err := readLink(txn, code)
		if err != nil {
			return err
		}
		id = l.ID
		return txn.Delete(linkKey(code))
	})
	if err != nil {
		return err
	}

	log := s.log.WithField("code", code)
	if err := s.purgeClicks(id); err != nil {
		log.WithError(err).Warn("Failed to purge clicks of deleted link")
	}
	log.Debug("Link deleted")
	return nil
}

// purgeClicks drops every click key of the link with the given ID.
func (s *BadgerStore) purgeClicks(id string) error {
	prefix := clickKeyPrefix(id)
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil || len(keys) == 0 {
		return err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	return wb.Flush()
}

// List retrieves all records, optionally filtered by owner, newest first.
func (s *BadgerStore) List(ctx context.Context, owner domain.Owner) ([]domain.LinkRecord, error) {
	links := []domain.LinkRecord{}

	err := s.db.View(func(txn *badger.Txn) error {
		var stored []storedLink

		opts := badger.DefaultIteratorOptions
		opts.Prefix = linkPrefix
		it := txn.NewIterator(opts)
		for it.Seek(linkPrefix); it.ValidForPrefix(linkPrefix); it.Next() {
			l, err := decodeLink(it.Item())
			if err != nil {
				it.Close()
				return err
			}
			if owner != domain.AnyOwner && l.Owner != owner {
				continue
			}
			stored = append(stored, l)
		}
		it.Close()

		for _, l := range stored {
			rec := l.record()
			var err error
			if rec.Clicks, err = readClicks(txn, l); err != nil {
				return err
			}
			links = append(links, rec)
		}
		return nil
	})
	if err != nil {
		s.log.WithError(err).Error("Failed to list links from BadgerDB")
		return nil, fmt.Errorf("failed to list links: %w", err)
	}

	sortNewestFirst(links)
	return links, nil
}

// AppendClick writes event under the next click key of the record and bumps
// its counter in one transaction. The history itself is never read. Two
// concurrent appends conflict on the record key and the loser is replayed.
func (s *BadgerStore) AppendClick(ctx context.Context, code string, event domain.ClickEvent, check CheckFunc) (domain.LinkRecord, error) {
	var rec domain.LinkRecord
	err := s.update(func(txn *badger.Txn) error {
		l, err := readLink(txn, code)
		if err != nil {
			return err
		}
		rec = l.record()
		if check != nil {
			if err := check(rec); err != nil {
				return err
			}
		}

		val, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("failed to marshal click: %w", err)
		}
		if err := txn.SetEntry(badger.NewEntry(clickKey(l.ID, l.ClickCount), val)); err != nil {
			return err
		}
		l.ClickCount++
		return writeLink(txn, l)
	})
	if err != nil {
		return domain.LinkRecord{}, err
	}
	return rec, nil
}

// RunGC periodically reclaims value log space until ctx is cancelled.
func (s *BadgerStore) RunGC(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			err := s.db.RunValueLogGC(0.7)
			switch {
			case err == nil:
				s.log.Info("BadgerDB GC completed successfully")
			case errors.Is(err, badger.ErrNoRewrite), errors.Is(err, badger.ErrRejected):
				s.log.Debug("BadgerDB GC: No rewrite needed")
			default:
				s.log.WithError(err).Error("BadgerDB GC failed")
			}
		case <-ctx.Done():
			s.log.Info("Stopping BadgerDB GC routine due to context cancellation")
			return
		}
	}
}

// --- BadgerDB Internal Logger ---

// badgerLogger adapts logrus.FieldLogger to Badger's logger interface.
type badgerLogger struct {
	logger logrus.FieldLogger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Errorf(f, v...)
}
func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warningf(f, v...)
}
func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}
func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}

var (
	_ Store             = (*BadgerStore)(nil)
	_ allocator.CodeSet = txnCodes{}
)
