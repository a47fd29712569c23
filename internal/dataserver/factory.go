// Package dataserver implements the Country Data Server: the per-country
// worker that downloads, filters, joins, and caches one country's populated
// places, then holds them ready to serve search requests. Factory is the
// manager.Spawner the Country Manager uses to start one.
package dataserver

import (
	"context"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"time"

	"github.com/aristath/geosearch/internal/domain"
	"github.com/rs/zerolog"
)

// Config carries every tunable the startup pipeline needs, sourced from
// internal/config at boot.
type Config struct {
	CacheDir       string
	ProxyHost      string
	ProxyPort      int
	PopulationMin  int
	RetryLimit     int
	RetryWait      time.Duration
	CacheStaleness time.Duration

	// UpstreamBase defaults to the geonames dump mirror; overridable for tests.
	UpstreamBase string
}

const defaultUpstreamBase = "http://download.geonames.org/export/dump"

// Factory builds data-server workers and satisfies manager.Spawner.
type Factory struct {
	cfg        Config
	log        zerolog.Logger
	httpClient *http.Client
}

// NewFactory builds a Factory. The returned HTTP client is routed through
// cfg.ProxyHost/ProxyPort when set, per the upstream-proxy requirement.
func NewFactory(cfg Config, log zerolog.Logger) *Factory {
	if cfg.UpstreamBase == "" {
		cfg.UpstreamBase = defaultUpstreamBase
	}

	transport := &http.Transport{}
	if cfg.ProxyHost != "" {
		proxyURL := &url.URL{
			Scheme: "http",
			Host:   cfg.ProxyHost + ":" + strconv.Itoa(cfg.ProxyPort),
		}
		transport.Proxy = http.ProxyURL(proxyURL)
	}

	return &Factory{
		cfg: cfg,
		log: log.With().Str("component", "dataserver").Logger(),
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   2 * time.Minute,
		},
	}
}

// Spawn starts a country's data server goroutine and returns the manager's
// handle for it.
func (f *Factory) Spawn(ctx context.Context, entry domain.CatalogEntry, notify chan<- any) *domain.Handle {
	workerCtx, cancel := context.WithCancel(ctx)
	cmds := make(chan any, 4)
	handle := &domain.Handle{Commands: cmds, Cancel: cancel}

	w := &worker{
		factory: f,
		entry:   entry,
		notify:  notify,
		cmds:    cmds,
		handle:  handle,
		fcpPath: filepath.Join(f.cfg.CacheDir, entry.CountryCode+".fcp"),
		log:     f.log.With().Str("country_code", entry.CountryCode).Logger(),
	}
	go w.run(workerCtx)

	return handle
}
