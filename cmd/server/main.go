// Package main is the entry point for the geosearch control plane. It
// starts the Country Manager, the per-country data servers it supervises,
// and the admin/status HTTP surface, then blocks until an operator
// terminates the process or a fleet-wide crash brings it down.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/aristath/geosearch/internal/backup"
	"github.com/aristath/geosearch/internal/catalog"
	"github.com/aristath/geosearch/internal/config"
	"github.com/aristath/geosearch/internal/dataserver"
	"github.com/aristath/geosearch/internal/events"
	"github.com/aristath/geosearch/internal/index"
	"github.com/aristath/geosearch/internal/logger"
	"github.com/aristath/geosearch/internal/manager"
	"github.com/aristath/geosearch/internal/server"
	"github.com/aristath/geosearch/internal/store"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// main orchestrates the startup sequence:
//  1. Parse flags, load config.
//  2. Build the logger.
//  3. Create the FCP cache dir, then check for and apply a pending R2
//     restore before the store is opened.
//  4. Open the document store.
//  5. Load the country catalog and build the Country Manager with a
//     dataserver.Factory spawner.
//  6. Wire the search index, event bus and HTTP server.
//  7. Start a cron job that records a fleet health snapshot to the audit
//     trail.
//  8. Block for SIGINT/SIGTERM, then terminate the fleet and exit with the
//     code spec.md calls for.
func main() {
	var dataDirFlag string
	flag.StringVar(&dataDirFlag, "data-dir", "", "Data directory path (overrides GEOSEARCH_DATA_DIR environment variable)")
	flag.Parse()

	cfg, err := config.Load(dataDirFlag)
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("failed to load configuration")
	}

	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})
	log.Info().Msg("starting geosearch")

	if err := os.MkdirAll(cfg.CachesDir(), 0o755); err != nil {
		log.Fatal().Err(err).Msg("failed to create cache directory")
	}

	// Optional R2-backed backup/restore. A pending restore must be applied
	// before the store is opened, so a partial restore never sits under a
	// live sqlite connection.
	var r2Client *backup.R2Client
	var backupSvc *backup.Service
	var restoreSvc *backup.RestoreService
	if cfg.R2AccountID != "" {
		r2Client, err = backup.NewR2Client(cfg.R2AccountID, cfg.R2AccessKeyID, cfg.R2SecretAccessKey, cfg.R2Bucket, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to build R2 client")
		}
		backupSvc = backup.NewService(r2Client, cfg.StorePath(), cfg.CachesDir(), log)
		restoreSvc = backup.NewRestoreService(r2Client, cfg.DataDir, cfg.StorePath(), cfg.CachesDir(), log)

		pending, err := restoreSvc.PendingRestore()
		if err != nil {
			log.Error().Err(err).Msg("failed to check for pending restore")
		}
		if pending {
			log.Warn().Msg("pending restore detected, applying before startup")
			if err := restoreSvc.ApplyStaged(); err != nil {
				log.Fatal().Err(err).Msg("failed to apply staged restore")
			}
			log.Info().Msg("restore applied, proceeding with normal startup")
		}
	} else {
		log.Info().Msg("R2 backup/restore disabled (GEOSEARCH_R2_ACCOUNT_ID not set)")
	}

	db, err := store.Open(cfg.StorePath())
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open document store")
	}
	defer db.Close()
	st := store.New(db)

	entries, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load country catalog")
	}
	log.Info().Int("countries", len(entries)).Msg("country catalog loaded")

	bus := events.NewBus(log)

	factory := dataserver.NewFactory(dataserver.Config{
		CacheDir:       cfg.CachesDir(),
		ProxyHost:      cfg.ProxyHost,
		ProxyPort:      cfg.ProxyPort,
		PopulationMin:  cfg.PopulationMin,
		RetryLimit:     cfg.RetryLimit,
		RetryWait:      cfg.RetryWait,
		CacheStaleness: cfg.CacheStaleness,
	}, log)

	mgrCtx, mgrCancel := context.WithCancel(context.Background())
	defer mgrCancel()
	mgr := manager.New(mgrCtx, entries, factory, bus, log)

	// Restore the last sort preference, if the store has one.
	if pref, ok, err := st.LoadSortPreference(context.Background()); err != nil {
		log.Warn().Err(err).Msg("failed to load sort preference")
	} else if ok {
		if _, err := mgr.Sort(context.Background(), pref.Direction, pref.Column); err != nil {
			log.Warn().Err(err).Msg("failed to apply stored sort preference")
		}
	}

	idx := index.New(cfg.CachesDir(), log)
	srv := server.New(mgr, idx, st, bus, backupSvc, restoreSvc, log)

	httpServer := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Port),
		Handler: srv,
	}

	go func() {
		log.Info().Int("port", cfg.Port).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// A periodic fleet health snapshot, recorded to the audit trail so an
	// operator can see coverage/crash trends without polling /server_status.
	c := cron.New()
	_, err = c.AddFunc("@every 1m", func() {
		reportFleetHealth(context.Background(), mgr, st, log)
	})
	if err != nil {
		log.Error().Err(err).Msg("failed to schedule fleet health report job")
	} else {
		c.Start()
		defer c.Stop()
	}

	if backupSvc != nil {
		_, err = c.AddFunc("@daily", func() {
			if err := backupSvc.CreateAndUpload(context.Background()); err != nil {
				log.Error().Err(err).Msg("scheduled backup failed")
			} else {
				log.Info().Msg("scheduled backup uploaded")
			}
		})
		if err != nil {
			log.Error().Err(err).Msg("failed to schedule backup job")
		}
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-quit:
		log.Info().Msg("shutdown signal received, terminating fleet")
		if err := mgr.Terminate(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to terminate fleet cleanly")
			exitCode = 1
		}
	case <-mgr.Done():
		log.Error().Msg("manager exited unexpectedly")
		exitCode = 1
	}

	select {
	case <-mgr.Done():
	case <-time.After(30 * time.Second):
		log.Warn().Msg("fleet did not drain within timeout")
		exitCode = 1
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server forced to shutdown")
	}

	log.Info().Int("exit_code", exitCode).Msg("geosearch stopped")
	os.Exit(exitCode)
}

// reportFleetHealth records a compact snapshot of fleet status to the
// audit trail: how many countries are started vs crashed vs idle.
func reportFleetHealth(ctx context.Context, mgr *manager.Manager, st *store.Store, log zerolog.Logger) {
	_, servers, err := mgr.Status(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to sample fleet status for health report")
		return
	}

	counts := map[string]int{}
	for _, s := range servers {
		counts[string(s.Status)]++
	}

	payload := map[string]any{"counts": counts, "total": len(servers)}
	if err := st.RecordCommand(ctx, store.AuditEntry{
		RecordedAt: time.Now(),
		Cmd:        "fleet_health_report",
		Payload:    payload,
	}); err != nil {
		log.Warn().Err(err).Msg("failed to record fleet health report")
	}
}
