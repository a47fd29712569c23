package dataserver

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/aristath/geosearch/internal/domain"
	"github.com/aristath/geosearch/internal/manager"
	"github.com/aristath/geosearch/pkg/countryfile"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// worker runs one country's startup pipeline and then serves as a no-op
// placeholder until shutdown, exactly as the manager's handle expects: an
// async command channel it can send shutdown/trace to, and exactly one
// termination message sent back over notify when it exits.
type worker struct {
	factory *Factory
	entry   domain.CatalogEntry
	notify  chan<- any
	cmds    <-chan any
	handle  *domain.Handle
	fcpPath string
	log     zerolog.Logger

	mu    sync.Mutex
	trace bool
}

func (w *worker) run(ctx context.Context) {
	stopCh := make(chan struct{})
	var stopOnce sync.Once

	go func() {
		for {
			select {
			case raw, ok := <-w.cmds:
				if !ok {
					return
				}
				switch c := raw.(type) {
				case manager.ShutdownCmd:
					stopOnce.Do(func() { close(stopCh) })
				case manager.TraceCmd:
					w.setTrace(c.On)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	term := w.pipeline(ctx, stopCh)
	w.notify <- term
}

func (w *worker) setTrace(on bool) {
	w.mu.Lock()
	w.trace = on
	w.mu.Unlock()
	if on {
		w.log.Info().Msg("trace enabled")
	}
}

func (w *worker) stoppedTermination() manager.Termination {
	return manager.Termination{Reason: manager.ReasonStopped, Code: domain.ServerName(w.entry.CountryCode)}
}

func (w *worker) noCitiesTermination() manager.Termination {
	return manager.Termination{Reason: manager.ReasonNoCities, Code: domain.ServerName(w.entry.CountryCode)}
}

func (w *worker) crashTermination(reason manager.Reason, detail string) manager.Termination {
	return manager.Termination{Reason: reason, Handle: w.handle, Detail: detail}
}

// notifySubstatus sends the (starting, substatus, server, child_id) message
// pair of spec §4.1: the substatus transition itself, plus a freshly minted
// opaque child identifier for this pipeline sub-stage.
func (w *worker) notifySubstatus(code, substatus string) {
	w.notify <- manager.Progress{Code: code, Kind: manager.ProgressSubstatus, Substatus: substatus}
	w.notify <- manager.Progress{Code: code, Kind: manager.ProgressChild, ChildID: uuid.New()}
}

func stopped(stopCh <-chan struct{}) bool {
	select {
	case <-stopCh:
		return true
	default:
		return false
	}
}

// pipeline runs the eight-stage startup sequence of spec §4.2 and returns
// the single terminal message the worker ever sends.
func (w *worker) pipeline(ctx context.Context, stopCh <-chan struct{}) manager.Termination {
	code := w.entry.CountryCode

	// Stage 1: init.
	startedAt := time.Now()
	w.notify <- manager.Progress{Code: code, Kind: manager.ProgressInit, Timestamp: startedAt}

	if stopped(stopCh) {
		return w.stoppedTermination()
	}

	// Stage 2: checking_for_update.
	w.notifySubstatus(code, "checking_for_update")

	entries, fromCache, etag := w.tryCache(ctx, code)

	if !fromCache {
		if stopped(stopCh) {
			return w.stoppedTermination()
		}

		built, newEtag, crashTerm, ok := w.rebuild(ctx, stopCh, code)
		if !ok {
			return crashTerm
		}
		entries, etag = built, newEtag

		if err := countryfile.WriteFCP(w.fcpPath, etag, time.Now(), entries); err != nil {
			return w.crashTermination(manager.ReasonFCPCountryFileError, err.Error())
		}
	}
	w.notify <- manager.Progress{Code: code, Kind: manager.ProgressPhaseComplete}

	// Stage 7: zero check.
	if len(entries) == 0 {
		return w.noCitiesTermination()
	}

	if stopped(stopCh) {
		return w.stoppedTermination()
	}

	// Stage 8: running.
	completedAt := time.Now()
	w.notify <- manager.Progress{Code: code, Kind: manager.ProgressRunning, CityCount: len(entries), CompletedAt: completedAt}

	select {
	case <-stopCh:
	case <-ctx.Done():
	}
	return w.stoppedTermination()
}

// tryCache implements stage 2's cache-hit paths: a fresh local file is used
// as-is; a stale one is still used if the upstream validator token hasn't
// changed.
func (w *worker) tryCache(ctx context.Context, code string) (entries []domain.CountryIndexEntry, hit bool, etag string) {
	existingEtag, recordedAt, cached, err := countryfile.ReadFCP(w.fcpPath)
	if err != nil {
		return nil, false, ""
	}
	if countryfile.IsFresh(recordedAt, w.factory.cfg.CacheStaleness, time.Now()) {
		return cached, true, existingEtag
	}
	remoteEtag, headErr := w.headUpstreamZipEtag(ctx, code)
	if headErr == nil && remoteEtag != "" && remoteEtag == existingEtag {
		return cached, true, existingEtag
	}
	return nil, false, ""
}

// rebuild performs stages 3-6 from scratch: download, extract, parse,
// filter, join. Returns ok=false with the terminal message to send when any
// stage fails fatally.
func (w *worker) rebuild(ctx context.Context, stopCh <-chan struct{}, code string) (entries []domain.CountryIndexEntry, etag string, term manager.Termination, ok bool) {
	// Stage 3: country_file_download.
	w.notifySubstatus(code, "country_file_download")
	zipPath, etag, err := w.downloadWithRetry(ctx, stopCh, code)
	if err != nil && stopped(stopCh) {
		return nil, "", w.stoppedTermination(), false
	}
	if err != nil {
		return nil, "", w.crashTermination(manager.ReasonRetryLimitExceeded, fmt.Sprintf("%s,zip: %v", code, err)), false
	}
	defer os.Remove(zipPath)
	w.notify <- manager.Progress{Code: code, Kind: manager.ProgressPhaseComplete}

	if stopped(stopCh) {
		return nil, "", w.stoppedTermination(), false
	}

	// Stage 4: country_zip_file.
	w.notifySubstatus(code, "country_zip_file")
	raw, err := extractSingleMember(zipPath)
	if err != nil {
		return nil, "", w.crashTermination(manager.ReasonCountryZipFileError, fmt.Sprintf("%s: %v", zipPath, err)), false
	}
	w.notify <- manager.Progress{Code: code, Kind: manager.ProgressPhaseComplete}

	// Stage 5: country_file.
	w.notifySubstatus(code, "country_file")
	records, err := countryfile.ParseRecords(bytes.NewReader(raw))
	if err != nil {
		return nil, "", w.crashTermination(manager.ReasonCountryFileError, err.Error()), false
	}
	populated, admin := countryfile.Filter(records, int64(w.factory.cfg.PopulationMin))
	built := countryfile.Join(populated, admin)
	w.notify <- manager.Progress{Code: code, Kind: manager.ProgressPhaseComplete}

	return built, etag, manager.Termination{}, true
}
