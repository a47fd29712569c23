package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/aristath/geosearch/internal/domain"
	"github.com/aristath/geosearch/internal/events"
	"github.com/aristath/geosearch/internal/index"
	"github.com/aristath/geosearch/internal/manager"
	"github.com/aristath/geosearch/internal/store"
	"github.com/aristath/geosearch/pkg/countryfile"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// immediateSpawner is a manager.Spawner test double that transitions a
// country straight to started and stops it on ShutdownCmd.
type immediateSpawner struct {
	cityCount int
}

func (sp *immediateSpawner) Spawn(ctx context.Context, entry domain.CatalogEntry, notify chan<- any) *domain.Handle {
	cmds := make(chan any, 4)
	go func() {
		notify <- manager.Progress{Code: entry.CountryCode, Kind: manager.ProgressInit, Timestamp: time.Now()}
		notify <- manager.Progress{Code: entry.CountryCode, Kind: manager.ProgressRunning, CityCount: sp.cityCount, CompletedAt: time.Now()}
		for raw := range cmds {
			if _, ok := raw.(manager.ShutdownCmd); ok {
				notify <- manager.Termination{Reason: manager.ReasonStopped, Code: domain.ServerName(entry.CountryCode)}
				return
			}
		}
	}()
	return &domain.Handle{Commands: cmds, Cancel: func() {}}
}

func newTestServer(t *testing.T) (*Server, *manager.Manager, string) {
	t.Helper()
	log := zerolog.Nop()
	cacheDir := t.TempDir()

	catalog := []domain.CatalogEntry{
		{CountryCode: "GB", CountryName: "United Kingdom", Continent: "Europe"},
		{CountryCode: "FR", CountryName: "France", Continent: "Europe"},
	}
	bus := events.NewBus(log)
	mgr := manager.New(context.Background(), catalog, &immediateSpawner{cityCount: 1}, bus, log)

	db, err := store.Open(filepath.Join(t.TempDir(), "store.sqlite"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	st := store.New(db)

	idx := index.New(cacheDir, log)
	srv := New(mgr, idx, st, bus, nil, nil, log)
	return srv, mgr, cacheDir
}

func TestHandleServerStatus_ReturnsSnapshot(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/server_status", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body serverStatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Len(t, body.Servers, 2)
}

func TestHandleServerStatus_RejectsNonGet(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/server_status", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleStart_UnknownCountry_ReturnsErrorEnvelope(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/cmd/start?country_code=ZZ", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body commandResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, statusError, body.Status)
	assert.Equal(t, "country_server_not_found", body.Reason)
}

func TestHandleTerminate_ReturnsGoodbye(t *testing.T) {
	srv, mgr, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/cmd/terminate", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body commandResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, statusGoodbye, body.Status)

	select {
	case <-mgr.Done():
	case <-time.After(time.Second):
		t.Fatal("manager did not exit after terminate with an empty fleet")
	}
}

func TestHandleSearch_RejectsShortTerm(t *testing.T) {
	srv, _, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/search?search_term=ab", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleSearch_ReturnsMatchesFromStartedCountries(t *testing.T) {
	srv, mgr, cacheDir := newTestServer(t)

	require.NoError(t, countryfile.WriteFCP(filepath.Join(cacheDir, "GB.fcp"), "etag-1", time.Now(), []domain.CountryIndexEntry{
		{Name: "London", CountryCode: "GB"},
	}))

	_, err := mgr.Start(context.Background(), "GB")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		_, servers, _ := mgr.Status(context.Background())
		for _, s := range servers {
			if s.CountryCode == "GB" {
				return s.Status == domain.StatusStarted
			}
		}
		return false
	}, time.Second, 10*time.Millisecond)

	req := httptest.NewRequest(http.MethodGet, "/search?search_term=lond", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var results []cityObject
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	assert.Equal(t, "London", results[0].Name)
}
