package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snaplink/internal/allocator"
	"snaplink/internal/domain"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func fixedCode(code string) PickFunc {
	return func(existing allocator.CodeSet) (string, error) {
		return allocator.New().Allocate(code, existing)
	}
}

func recordAt(created time.Time, owner domain.Owner) func(code string) domain.LinkRecord {
	return func(code string) domain.LinkRecord {
		return domain.LinkRecord{
			Destination: "https://example.com/" + code,
			CreatedAt:   created,
			ExpiresAt:   created.Add(time.Hour),
			Owner:       owner,
		}
	}
}

func click(at time.Time, source string) domain.ClickEvent {
	return domain.ClickEvent{Timestamp: at, Source: source}
}

// runStoreContract exercises the behaviour every Store implementation must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Run("InsertAndGet", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		rec, err := store.Insert(ctx, fixedCode("abc"), recordAt(t0, "alice"))
		require.NoError(t, err)
		assert.Equal(t, "abc", rec.Code)

		got, err := store.Get(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, "abc", got.Code)
		assert.Equal(t, "https://example.com/abc", got.Destination)
		assert.Equal(t, domain.Owner("alice"), got.Owner)
		assert.True(t, got.ExpiresAt.Equal(t0.Add(time.Hour)))
		assert.Empty(t, got.Clicks)
	})

	t.Run("InsertCollision", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.Insert(ctx, fixedCode("abc"), recordAt(t0, "alice"))
		require.NoError(t, err)

		_, err = store.Insert(ctx, fixedCode("abc"), recordAt(t0, "bob"))
		assert.ErrorIs(t, err, domain.ErrCollision)

		got, err := store.Get(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, domain.Owner("alice"), got.Owner, "original record must be untouched")
	})

	t.Run("GetMissing", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Get(context.Background(), "nope")
		var nf *domain.NotFoundError
		require.True(t, errors.As(err, &nf))
		assert.Equal(t, "nope", nf.Code)
	})

	t.Run("Delete", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.Insert(ctx, fixedCode("gone"), recordAt(t0, "alice"))
		require.NoError(t, err)

		require.NoError(t, store.Delete(ctx, "gone"))
		_, err = store.Get(ctx, "gone")
		assert.ErrorIs(t, err, domain.ErrNotFound)

		err = store.Delete(ctx, "gone")
		assert.ErrorIs(t, err, domain.ErrNotFound, "deleting twice reports not found")

		_, err = store.Insert(ctx, fixedCode("gone"), recordAt(t0.Add(time.Minute), "bob"))
		assert.NoError(t, err, "deleted code can be reused")
	})

	t.Run("ListOrderAndOwnerFilter", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.Insert(ctx, fixedCode("old"), recordAt(t0, "alice"))
		require.NoError(t, err)
		_, err = store.Insert(ctx, fixedCode("new"), recordAt(t0.Add(2*time.Minute), "alice"))
		require.NoError(t, err)
		_, err = store.Insert(ctx, fixedCode("mid"), recordAt(t0.Add(time.Minute), "bob"))
		require.NoError(t, err)

		all, err := store.List(ctx, domain.AnyOwner)
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []string{"new", "mid", "old"}, codes(all))

		alice, err := store.List(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, []string{"new", "old"}, codes(alice))

		nobody, err := store.List(ctx, "carol")
		require.NoError(t, err)
		assert.Empty(t, nobody)
	})

	t.Run("AppendClickKeepsOrder", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.Insert(ctx, fixedCode("abc"), recordAt(t0, "alice"))
		require.NoError(t, err)

		for i := 0; i < 3; i++ {
			require.NoError(t, appendClick(ctx, store, "abc", click(t0.Add(time.Duration(i)*time.Second), fmt.Sprintf("s%d", i))))
		}
		// Same source twice is not deduplicated.
		require.NoError(t, appendClick(ctx, store, "abc", click(t0.Add(3*time.Second), "s2")))

		got, err := store.Get(ctx, "abc")
		require.NoError(t, err)
		require.Len(t, got.Clicks, 4)
		assert.Equal(t, "s0", got.Clicks[0].Source)
		assert.Equal(t, "s1", got.Clicks[1].Source)
		assert.Equal(t, "s2", got.Clicks[2].Source)
		assert.Equal(t, "s2", got.Clicks[3].Source)
	})

	t.Run("AppendClickMissing", func(t *testing.T) {
		store := newStore(t)

		err := appendClick(context.Background(), store, "nope", click(t0, "ref"))
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("AppendClickCheckRefuses", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.Insert(ctx, fixedCode("abc"), recordAt(t0, "alice"))
		require.NoError(t, err)

		refused := errors.New("refused")
		var seen domain.LinkRecord
		_, err = store.AppendClick(ctx, "abc", click(t0, "ref"), func(rec domain.LinkRecord) error {
			seen = rec
			return refused
		})
		assert.ErrorIs(t, err, refused)
		assert.Equal(t, "https://example.com/abc", seen.Destination)

		got, err := store.Get(ctx, "abc")
		require.NoError(t, err)
		assert.Empty(t, got.Clicks, "a refused append writes nothing")
	})

	t.Run("AppendClickReturnsRecord", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.Insert(ctx, fixedCode("abc"), recordAt(t0, "alice"))
		require.NoError(t, err)

		rec, err := store.AppendClick(ctx, "abc", click(t0, "ref"), nil)
		require.NoError(t, err)
		assert.Equal(t, "abc", rec.Code)
		assert.Equal(t, "https://example.com/abc", rec.Destination)
		assert.True(t, rec.ExpiresAt.Equal(t0.Add(time.Hour)))
	})

	t.Run("RecreatedCodeStartsWithoutClicks", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.Insert(ctx, fixedCode("abc"), recordAt(t0, "alice"))
		require.NoError(t, err)
		require.NoError(t, appendClick(ctx, store, "abc", click(t0, "old")))
		require.NoError(t, store.Delete(ctx, "abc"))

		_, err = store.Insert(ctx, fixedCode("abc"), recordAt(t0.Add(time.Minute), "bob"))
		require.NoError(t, err)
		require.NoError(t, appendClick(ctx, store, "abc", click(t0.Add(time.Minute), "new")))

		got, err := store.Get(ctx, "abc")
		require.NoError(t, err)
		require.Len(t, got.Clicks, 1)
		assert.Equal(t, "new", got.Clicks[0].Source)
	})

	t.Run("ConcurrentAppendsAreLossless", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.Insert(ctx, fixedCode("hot"), recordAt(t0, "alice"))
		require.NoError(t, err)

		const n = 32
		var wg sync.WaitGroup
		errs := make(chan error, n)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				errs <- appendClick(ctx, store, "hot", click(t0.Add(time.Duration(i)*time.Millisecond), "ref"))
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		got, err := store.Get(ctx, "hot")
		require.NoError(t, err)
		assert.Len(t, got.Clicks, n)
	})

	t.Run("GetReturnsCopy", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		_, err := store.Insert(ctx, fixedCode("abc"), recordAt(t0, "alice"))
		require.NoError(t, err)
		require.NoError(t, appendClick(ctx, store, "abc", click(t0, "ref")))

		got, err := store.Get(ctx, "abc")
		require.NoError(t, err)
		got.Clicks[0].Source = "tampered"

		again, err := store.Get(ctx, "abc")
		require.NoError(t, err)
		assert.Equal(t, "ref", again.Clicks[0].Source)
	})
}

// appendClick appends without a precondition.
func appendClick(ctx context.Context, store Store, code string, event domain.ClickEvent) error {
	_, err := store.AppendClick(ctx, code, event, nil)
	return err
}

func codes(links []domain.LinkRecord) []string {
	out := make([]string, len(links))
	for i, l := range links {
		out[i] = l.Code
	}
	return out
}
