package manager

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/aristath/geosearch/internal/domain"
	"github.com/aristath/geosearch/internal/events"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeSpawner simulates data servers for manager tests. Each Spawn call
// starts a goroutine that either plays back a scripted behavior for that
// country code, or, absent one, just waits for ShutdownCmd/Cancel and
// replies with a clean stop.
type fakeSpawner struct {
	mu        sync.Mutex
	behaviors map[string]func(notify chan<- any, cmds <-chan any, code string, handle *domain.Handle)
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{behaviors: make(map[string]func(chan<- any, <-chan any, string, *domain.Handle))}
}

func (f *fakeSpawner) on(code string, behavior func(notify chan<- any, cmds <-chan any, code string, handle *domain.Handle)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.behaviors[code] = behavior
}

func (f *fakeSpawner) Spawn(ctx context.Context, entry domain.CatalogEntry, notify chan<- any) *domain.Handle {
	cmds := make(chan any, 4)
	cancelled := make(chan struct{})
	var once sync.Once
	handle := &domain.Handle{
		Commands: cmds,
		Cancel:   func() { once.Do(func() { close(cancelled) }) },
	}

	f.mu.Lock()
	behavior, ok := f.behaviors[entry.CountryCode]
	f.mu.Unlock()

	go func() {
		notify <- Progress{Code: entry.CountryCode, Kind: ProgressInit, Timestamp: time.Now()}
		if ok {
			behavior(notify, cmds, entry.CountryCode, handle)
			return
		}
		select {
		case raw := <-cmds:
			if _, isShutdown := raw.(ShutdownCmd); isShutdown {
				notify <- Termination{Reason: ReasonStopped, Code: entry.CountryCode}
			}
		case <-cancelled:
		}
	}()

	return handle
}

func europeCatalog() []domain.CatalogEntry {
	return []domain.CatalogEntry{
		{CountryCode: "GB", CountryName: "United Kingdom", Continent: "Europe"},
		{CountryCode: "FR", CountryName: "France", Continent: "Europe"},
	}
}

func waitForStatus(t *testing.T, m *Manager, code string, want domain.Status) *domain.CountryStatus {
	t.Helper()
	var found *domain.CountryStatus
	require.Eventually(t, func() bool {
		_, servers, err := m.Status(context.Background())
		require.NoError(t, err)
		for _, s := range servers {
			if s.CountryCode == code {
				found = s
				return s.Status == want
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
	return found
}

// Scenario 1: start GB, upstream yields 42 cities; GB reaches started while
// FR stays stopped.
func TestManager_StartSuccess(t *testing.T) {
	spawner := newFakeSpawner()
	spawner.on("GB", func(notify chan<- any, cmds <-chan any, code string, handle *domain.Handle) {
		notify <- Progress{Code: code, Kind: ProgressDelta, Delta: 100}
		notify <- Progress{Code: code, Kind: ProgressRunning, CityCount: 42, CompletedAt: time.Now()}
	})

	m := New(context.Background(), europeCatalog(), spawner, events.NewBus(zerolog.Nop()), zerolog.Nop())
	ctx := context.Background()

	rec, err := m.Start(ctx, "GB")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStarting, rec.Status)

	gb := waitForStatus(t, m, "GB", domain.StatusStarted)
	assert.Equal(t, 42, gb.CityCount)
	assert.Equal(t, 100, gb.Progress)

	_, servers, err := m.Status(ctx)
	require.NoError(t, err)
	for _, s := range servers {
		if s.CountryCode == "FR" {
			assert.Equal(t, domain.StatusStopped, s.Status)
		}
	}
}

// Scenario 2: starting an already-started country is rejected and leaves
// the table unchanged.
func TestManager_StartTwice_AlreadyStarted(t *testing.T) {
	m := New(context.Background(), europeCatalog(), newFakeSpawner(), events.NewBus(zerolog.Nop()), zerolog.Nop())
	ctx := context.Background()

	_, err := m.Start(ctx, "GB")
	require.NoError(t, err)

	// Take the first snapshot only once the spawned server's init message
	// has been applied, so it cannot land between the two snapshots.
	var before []*domain.CountryStatus
	require.Eventually(t, func() bool {
		_, servers, err := m.Status(ctx)
		require.NoError(t, err)
		before = servers
		for _, s := range servers {
			if s.CountryCode == "GB" {
				return !s.StartedAt.IsZero()
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	_, err = m.Start(ctx, "GB")
	assert.ErrorIs(t, err, ErrAlreadyStarted)

	_, after, err := m.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

// Scenario 3: starting an unrecognized country code errors without
// touching the table.
func TestManager_StartUnknownCountry(t *testing.T) {
	m := New(context.Background(), europeCatalog(), newFakeSpawner(), events.NewBus(zerolog.Nop()), zerolog.Nop())
	_, err := m.Start(context.Background(), "XX")
	assert.ErrorIs(t, err, ErrCountryServerNotFound)
}

// Scenario 4: three exhausted download retries crash the server; reset
// returns it to stopped; the next start succeeds cleanly. The crash
// notification carries only a handle, exercising the reverse name lookup.
func TestManager_RetryExhaustion_ResetThenRestart(t *testing.T) {
	spawner := newFakeSpawner()
	attempt := 0
	spawner.on("GB", func(notify chan<- any, cmds <-chan any, code string, handle *domain.Handle) {
		attempt++
		if attempt == 1 {
			notify <- Termination{Reason: ReasonRetryLimitExceeded, Handle: handle, Detail: "GB,zip"}
			return
		}
		notify <- Progress{Code: code, Kind: ProgressRunning, CityCount: 10, CompletedAt: time.Now()}
	})

	m := New(context.Background(), europeCatalog(), spawner, events.NewBus(zerolog.Nop()), zerolog.Nop())
	ctx := context.Background()

	_, err := m.Start(ctx, "GB")
	require.NoError(t, err)

	gb := waitForStatus(t, m, "GB", domain.StatusCrashed)
	assert.Equal(t, "retry_limit_exceeded", gb.Substatus)

	reset, err := m.Reset(ctx, "GB")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusStopped, reset.Status)
	assert.Nil(t, reset.Handle)

	_, err = m.Start(ctx, "GB")
	require.NoError(t, err)

	gb2 := waitForStatus(t, m, "GB", domain.StatusStarted)
	assert.Equal(t, 10, gb2.CityCount)
}

// Reset on a non-crashed entry is rejected.
func TestManager_ResetNotCrashed(t *testing.T) {
	m := New(context.Background(), europeCatalog(), newFakeSpawner(), events.NewBus(zerolog.Nop()), zerolog.Nop())
	_, err := m.Reset(context.Background(), "GB")
	assert.ErrorIs(t, err, ErrServerNotCrashed)
}

// Scenario 6: shutdown_all while mid-startup eventually reaches stopped;
// terminate with the fleet drained causes the manager's loop to exit.
func TestManager_ShutdownAllThenTerminate_Exits(t *testing.T) {
	m := New(context.Background(), europeCatalog(), newFakeSpawner(), events.NewBus(zerolog.Nop()), zerolog.Nop())
	ctx := context.Background()

	_, err := m.Start(ctx, "GB")
	require.NoError(t, err)
	_, err = m.Start(ctx, "FR")
	require.NoError(t, err)

	_, err = m.ShutdownAll(ctx)
	require.NoError(t, err)

	waitForStatus(t, m, "GB", domain.StatusStopped)
	waitForStatus(t, m, "FR", domain.StatusStopped)

	require.NoError(t, m.Terminate(ctx))

	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("manager did not exit after terminate with an empty active list")
	}
}

// TraceServer against an unknown country returns an explicit error instead
// of dereferencing a missing record.
func TestManager_TraceServer_UnknownCountry(t *testing.T) {
	m := New(context.Background(), europeCatalog(), newFakeSpawner(), events.NewBus(zerolog.Nop()), zerolog.Nop())
	err := m.TraceServer(context.Background(), "XX", true)
	assert.ErrorIs(t, err, ErrNoSuchCountryServer)
}

func TestManager_Sort_CountryNameBothDirections(t *testing.T) {
	catalog := []domain.CatalogEntry{
		{CountryCode: "GB", CountryName: "United Kingdom", Continent: "Europe"},
		{CountryCode: "FR", CountryName: "France", Continent: "Europe"},
		{CountryCode: "DE", CountryName: "Deutschland", Continent: "Europe"},
	}
	m := New(context.Background(), catalog, newFakeSpawner(), events.NewBus(zerolog.Nop()), zerolog.Nop())
	ctx := context.Background()

	asc, err := m.Sort(ctx, domain.Ascending, domain.SortCountry)
	require.NoError(t, err)
	assert.Equal(t, []string{"DE", "FR", "GB"}, codesOf(asc))

	desc, err := m.Sort(ctx, domain.Descending, domain.SortCountry)
	require.NoError(t, err)
	assert.Equal(t, []string{"GB", "FR", "DE"}, codesOf(desc))
}

// Each substatus transition also mints a child id; applyProgress appends it
// to the country's Children so an operator can trace individual sub-stages.
func TestManager_ProgressChild_AppendsToChildren(t *testing.T) {
	spawner := newFakeSpawner()
	childID := uuid.New()
	spawner.on("GB", func(notify chan<- any, cmds <-chan any, code string, handle *domain.Handle) {
		notify <- Progress{Code: code, Kind: ProgressSubstatus, Substatus: "checking_for_update"}
		notify <- Progress{Code: code, Kind: ProgressChild, ChildID: childID}
		notify <- Progress{Code: code, Kind: ProgressRunning, CityCount: 1, CompletedAt: time.Now()}
	})

	m := New(context.Background(), europeCatalog(), spawner, events.NewBus(zerolog.Nop()), zerolog.Nop())
	ctx := context.Background()

	_, err := m.Start(ctx, "GB")
	require.NoError(t, err)

	gb := waitForStatus(t, m, "GB", domain.StatusStarted)
	require.Len(t, gb.Children, 1)
	assert.Equal(t, childID, gb.Children[0])
}
