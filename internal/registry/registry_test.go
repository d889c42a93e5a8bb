package registry

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snaplink/internal/allocator"
	"snaplink/internal/domain"
	"snaplink/internal/storage"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// steppingClock returns t0, t0+1s, t0+2s, ... on successive calls.
func steppingClock() func() time.Time {
	var mu sync.Mutex
	next := t0
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now := next
		next = next.Add(time.Second)
		return now
	}
}

func newTestRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	opts = append([]Option{WithClock(steppingClock())}, opts...)
	return New(storage.NewMemoryStore(), quietLogger(), opts...)
}

func TestCreate_RequestedCode(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	rec, err := reg.Create(ctx, CreateParams{
		Destination:     "https://example.com/x",
		Code:            "abc",
		ValidityMinutes: 60,
		Owner:           "alice",
	})
	require.NoError(t, err)

	assert.Equal(t, "abc", rec.Code)
	assert.Equal(t, "https://example.com/x", rec.Destination)
	assert.Equal(t, domain.Owner("alice"), rec.Owner)
	assert.True(t, rec.CreatedAt.Equal(t0))
	assert.True(t, rec.ExpiresAt.Equal(t0.Add(time.Hour)))
	assert.True(t, rec.ExpiresAt.After(rec.CreatedAt))
	assert.Empty(t, rec.Clicks)

	got, err := reg.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, rec.Destination, got.Destination)
}

func TestCreate_GeneratedCode(t *testing.T) {
	reg := newTestRegistry(t)

	rec, err := reg.Create(context.Background(), CreateParams{
		Destination:     "http://example.com",
		ValidityMinutes: 30,
	})
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9A-Za-z]{6}$`, rec.Code)
}

func TestCreate_InvalidDestination(t *testing.T) {
	reg := newTestRegistry(t)

	for _, dest := range []string{
		"",
		"ftp://x.com",
		"mailto:someone@example.com",
		"example.com/path",
		"/relative/path",
		"https://",
		"http://exa mple.com",
		"javascript:alert(1)",
	} {
		_, err := reg.Create(context.Background(), CreateParams{Destination: dest, ValidityMinutes: 30})
		assert.ErrorIs(t, err, domain.ErrInvalidURL, dest)
	}
}

func TestCreate_InvalidDuration(t *testing.T) {
	reg := newTestRegistry(t)

	for _, minutes := range []int{0, -1, -30} {
		_, err := reg.Create(context.Background(), CreateParams{Destination: "https://x.com", ValidityMinutes: minutes})
		var durErr *domain.InvalidDurationError
		require.True(t, errors.As(err, &durErr), "minutes=%d", minutes)
		assert.Equal(t, minutes, durErr.Minutes)
	}
}

func TestCreate_Collision(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Create(ctx, CreateParams{Destination: "https://a.com", Code: "abc", ValidityMinutes: 30})
	require.NoError(t, err)

	_, err = reg.Create(ctx, CreateParams{Destination: "https://b.com", Code: "abc", ValidityMinutes: 30})
	var collision *domain.CollisionError
	require.True(t, errors.As(err, &collision))
	assert.Equal(t, "abc", collision.Code)
}

func TestCreate_Exhausted(t *testing.T) {
	alloc := allocator.New(allocator.WithMaxAttempts(3), allocator.WithGenerator(func(int) (string, error) {
		return "same00", nil
	}))
	reg := newTestRegistry(t, WithAllocator(alloc))
	ctx := context.Background()

	_, err := reg.Create(ctx, CreateParams{Destination: "https://a.com", ValidityMinutes: 30})
	require.NoError(t, err)

	_, err = reg.Create(ctx, CreateParams{Destination: "https://b.com", ValidityMinutes: 30})
	assert.ErrorIs(t, err, domain.ErrExhausted)
}

func newBadgerRegistry(t *testing.T, opts ...Option) *Registry {
	t.Helper()
	store, err := storage.NewBadgerStore(t.TempDir(), quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { assert.NoError(t, store.Close()) })

	opts = append([]Option{WithClock(steppingClock())}, opts...)
	return New(store, quietLogger(), opts...)
}

func TestCreate_UniqueUnderConcurrency(t *testing.T) {
	stores := map[string]func(t *testing.T, opts ...Option) *Registry{
		"memory": newTestRegistry,
		"badger": newBadgerRegistry,
	}
	for name, newReg := range stores {
		t.Run(name, func(t *testing.T) {
			reg := newReg(t, WithAllocator(allocator.New(allocator.WithLength(2), allocator.WithMaxAttempts(50))))
			ctx := context.Background()

			const n = 200
			var wg sync.WaitGroup
			errs := make(chan error, n)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := reg.Create(ctx, CreateParams{Destination: "https://example.com", ValidityMinutes: 30})
					errs <- err
				}()
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			links, err := reg.List(ctx, domain.AnyOwner)
			require.NoError(t, err)
			require.Len(t, links, n)
			seen := make(map[string]bool, len(links))
			for _, l := range links {
				assert.False(t, seen[l.Code], "duplicate code %s", l.Code)
				seen[l.Code] = true
			}
		})
	}
}

func TestCreate_RejectsUnroutableCodes(t *testing.T) {
	reg := newTestRegistry(t, WithReservedCodes("healthz", "metrics", "api"))

	for _, code := range []string{"healthz", "metrics", "api", "a/b", "/x", "x?y", "x#y", ".", "..", " abc"} {
		_, err := reg.Create(context.Background(), CreateParams{Destination: "https://a.com", Code: code, ValidityMinutes: 30})
		assert.ErrorIs(t, err, domain.ErrInvalidCode, code)
	}

	rec, err := reg.Create(context.Background(), CreateParams{Destination: "https://a.com", Code: "api2", ValidityMinutes: 30})
	require.NoError(t, err)
	assert.Equal(t, "api2", rec.Code)
}

func TestCreate_GeneratedCodeSkipsReserved(t *testing.T) {
	candidates := []string{"metrics", "metrics", "fresh01"}
	var mu sync.Mutex
	alloc := allocator.New(allocator.WithGenerator(func(int) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		c := candidates[0]
		candidates = candidates[1:]
		return c, nil
	}))
	reg := newTestRegistry(t, WithAllocator(alloc), WithReservedCodes("metrics"))

	rec, err := reg.Create(context.Background(), CreateParams{Destination: "https://a.com", ValidityMinutes: 30})
	require.NoError(t, err)
	assert.Equal(t, "fresh01", rec.Code)
}

func TestDelete_FreesCode(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Create(ctx, CreateParams{Destination: "https://example.com/one", Code: "abc", ValidityMinutes: 60, Owner: "o"})
	require.NoError(t, err)
	_, err = reg.AppendClick(ctx, "abc", domain.ClickEvent{Timestamp: t0, Source: "ref"}, nil)
	require.NoError(t, err)

	require.NoError(t, reg.Delete(ctx, "abc"))

	rec, err := reg.Create(ctx, CreateParams{Destination: "https://example.com/two", Code: "abc", ValidityMinutes: 60, Owner: "o"})
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/two", rec.Destination)
	assert.Empty(t, rec.Clicks)
}

func TestDelete_Missing(t *testing.T) {
	reg := newTestRegistry(t)

	err := reg.Delete(context.Background(), "nope")
	var nf *domain.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "nope", nf.Code)
}

func TestList_NewestFirstAndOwnerFilter(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	for _, p := range []CreateParams{
		{Destination: "https://a.com", Code: "first", ValidityMinutes: 30, Owner: "alice"},
		{Destination: "https://b.com", Code: "second", ValidityMinutes: 30, Owner: "bob"},
		{Destination: "https://c.com", Code: "third", ValidityMinutes: 30, Owner: "alice"},
	} {
		_, err := reg.Create(ctx, p)
		require.NoError(t, err)
	}

	all, err := reg.List(ctx, domain.AnyOwner)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "third", all[0].Code)
	assert.Equal(t, "second", all[1].Code)
	assert.Equal(t, "first", all[2].Code)

	alice, err := reg.List(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, alice, 2)
	assert.Equal(t, "third", alice[0].Code)
	assert.Equal(t, "first", alice[1].Code)
}

func TestAppendClick_AfterDeleteFails(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Create(ctx, CreateParams{Destination: "https://a.com", Code: "abc", ValidityMinutes: 30})
	require.NoError(t, err)
	require.NoError(t, reg.Delete(ctx, "abc"))

	_, err = reg.AppendClick(ctx, "abc", domain.ClickEvent{Timestamp: t0, Source: "ref"}, nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestAppendClick_CheckSeesCurrentRecord(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	_, err := reg.Create(ctx, CreateParams{Destination: "https://old.example/", Code: "abc", ValidityMinutes: 60})
	require.NoError(t, err)
	require.NoError(t, reg.Delete(ctx, "abc"))
	_, err = reg.Create(ctx, CreateParams{Destination: "https://new.example/", Code: "abc", ValidityMinutes: 1})
	require.NoError(t, err)

	refused := errors.New("refused")
	var seen string
	_, err = reg.AppendClick(ctx, "abc", domain.ClickEvent{Timestamp: t0, Source: "ref"}, func(rec domain.LinkRecord) error {
		seen = rec.Destination
		return refused
	})
	assert.ErrorIs(t, err, refused)
	assert.Equal(t, "https://new.example/", seen)

	rec, err := reg.Get(ctx, "abc")
	require.NoError(t, err)
	assert.Empty(t, rec.Clicks)
}

func TestAppendClick_RacingDeleteIsConsistent(t *testing.T) {
	reg := newTestRegistry(t)
	ctx := context.Background()

	for i := 0; i < 20; i++ {
		_, err := reg.Create(ctx, CreateParams{Destination: "https://a.com", Code: "race", ValidityMinutes: 30})
		require.NoError(t, err)

		var wg sync.WaitGroup
		var appendErr, deleteErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, appendErr = reg.AppendClick(ctx, "race", domain.ClickEvent{Timestamp: t0, Source: "ref"}, nil)
		}()
		go func() {
			defer wg.Done()
			deleteErr = reg.Delete(ctx, "race")
		}()
		wg.Wait()

		require.NoError(t, deleteErr)
		if appendErr != nil {
			assert.ErrorIs(t, appendErr, domain.ErrNotFound)
		}
		_, err = reg.Get(ctx, "race")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	}
}

func TestValidateDestination(t *testing.T) {
	assert.NoError(t, ValidateDestination("https://example.com"))
	assert.NoError(t, ValidateDestination("http://example.com:8080/a?b=c#d"))
	assert.NoError(t, ValidateDestination("HTTPS://EXAMPLE.COM/"))
	assert.ErrorIs(t, ValidateDestination("ftp://x.com"), domain.ErrInvalidURL)
}

func TestCodeLocks_SameCodeSameStripe(t *testing.T) {
	var l codeLocks
	unlock := l.lock("abc")

	acquired := make(chan struct{})
	go func() {
		defer l.lock("abc")()
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("second lock on the same code acquired while first is held")
	case <-time.After(20 * time.Millisecond):
	}
	unlock()
	<-acquired
}
