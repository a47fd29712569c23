// Package manager implements the Country Manager: the single long-lived
// coordinator that owns the CountryStatus table and serializes every fleet
// mutation through one command channel. Nothing outside this package ever
// writes a CountryStatus; every other component observes and changes fleet
// state by sending a command and awaiting its reply.
package manager

import (
	"context"
	"errors"

	"github.com/aristath/geosearch/internal/domain"
	"github.com/aristath/geosearch/internal/events"
	"github.com/rs/zerolog"
)

// Spawner starts a country's data server goroutine and returns the handle
// the manager uses to address it. Satisfied by *dataserver.Factory.
type Spawner interface {
	Spawn(ctx context.Context, entry domain.CatalogEntry, notify chan<- any) *domain.Handle
}

// Note to implementers of Spawner: the returned Handle's Commands channel
// must be drained for the lifetime of the spawned worker, and the worker
// must treat ShutdownCmd / TraceCmd as the only two command types it will
// ever receive on it.

// Command-reply errors, surfaced to callers as the admin envelope's reason.
var (
	ErrAlreadyStarted        = errors.New("already_started")
	ErrCountryServerNotFound = errors.New("country_server_not_found")
	ErrServerNotCrashed      = errors.New("server_not_crashed")
	ErrNoSuchCountryServer   = errors.New("no_such_country_server")
	ErrManagerStopped        = errors.New("manager_stopped")
)

// Manager is the fleet coordinator. Build with New; the zero value is not
// usable.
type Manager struct {
	ctx      context.Context
	cmdCh    chan any
	notifyCh chan any
	spawner  Spawner
	bus      *events.Bus
	log      zerolog.Logger
	done     chan struct{}
}

// New builds the manager and starts its loop goroutine. catalog is the
// boot-time ordered list of countries; every entry starts in stopped.
// ctx bounds the lifetime of every data server the manager spawns.
func New(ctx context.Context, catalog []domain.CatalogEntry, spawner Spawner, bus *events.Bus, log zerolog.Logger) *Manager {
	m := &Manager{
		ctx:      ctx,
		cmdCh:    make(chan any),
		notifyCh: make(chan any, 64),
		spawner:  spawner,
		bus:      bus,
		log:      log.With().Str("component", "manager").Logger(),
		done:     make(chan struct{}),
	}
	go m.run(catalog)
	return m
}

// Done is closed once the manager's loop has exited, which only happens
// after Terminate and the fleet draining to empty.
func (m *Manager) Done() <-chan struct{} { return m.done }

func (m *Manager) send(ctx context.Context, cmd any) error {
	select {
	case m.cmdCh <- cmd:
		return nil
	case <-m.done:
		return ErrManagerStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// --- reply payloads and command envelopes ---------------------------------

type snapshotResult struct {
	trace   bool
	servers []*domain.CountryStatus
}

type recordResult struct {
	record *domain.CountryStatus
	err    error
}

type listResult struct {
	servers []*domain.CountryStatus
}

type cmdStatus struct{ reply chan snapshotResult }
type cmdStatusStarted struct{ reply chan snapshotResult }
type cmdStart struct {
	code  string
	reply chan recordResult
}
type cmdStartAll struct{ reply chan listResult }
type cmdShutdown struct {
	code  string
	reply chan recordResult
}
type cmdShutdownAll struct{ reply chan listResult }
type cmdTerminate struct{ reply chan struct{} }
type cmdReset struct {
	code  string
	reply chan recordResult
}
type cmdResetAll struct{ reply chan listResult }
type cmdTrace struct {
	on    bool
	reply chan struct{}
}
type cmdTraceServer struct {
	code  string
	on    bool
	reply chan error
}
type cmdSort struct {
	direction domain.SortDirection
	column    domain.SortColumn
	reply     chan listResult
}

// --- public command API ----------------------------------------------------

// Status returns the manager trace flag and a full snapshot of every
// CountryStatus, in the manager's current presentation order.
func (m *Manager) Status(ctx context.Context) (trace bool, servers []*domain.CountryStatus, err error) {
	reply := make(chan snapshotResult, 1)
	if err = m.send(ctx, cmdStatus{reply: reply}); err != nil {
		return false, nil, err
	}
	select {
	case r := <-reply:
		return r.trace, r.servers, nil
	case <-ctx.Done():
		return false, nil, ctx.Err()
	}
}

// StatusStarted returns only the entries currently in status == started.
func (m *Manager) StatusStarted(ctx context.Context) ([]*domain.CountryStatus, error) {
	reply := make(chan snapshotResult, 1)
	if err := m.send(ctx, cmdStatusStarted{reply: reply}); err != nil {
		return nil, err
	}
	select {
	case r := <-reply:
		return r.servers, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Start spawns the named country's data server if it is currently stopped.
func (m *Manager) Start(ctx context.Context, code string) (*domain.CountryStatus, error) {
	reply := make(chan recordResult, 1)
	if err := m.send(ctx, cmdStart{code: code, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case r := <-reply:
		return r.record, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// StartAll spawns every entry currently stopped.
func (m *Manager) StartAll(ctx context.Context) ([]*domain.CountryStatus, error) {
	reply := make(chan listResult, 1)
	if err := m.send(ctx, cmdStartAll{reply: reply}); err != nil {
		return nil, err
	}
	select {
	case r := <-reply:
		return r.servers, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Shutdown sends an async shutdown to the named country's data server, if
// one is running. A no-op (nil record, no error) if the server isn't live.
func (m *Manager) Shutdown(ctx context.Context, code string) (*domain.CountryStatus, error) {
	reply := make(chan recordResult, 1)
	if err := m.send(ctx, cmdShutdown{code: code, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case r := <-reply:
		return r.record, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ShutdownAll shuts down every started/starting entry. The manager itself
// stays up.
func (m *Manager) ShutdownAll(ctx context.Context) ([]*domain.CountryStatus, error) {
	reply := make(chan listResult, 1)
	if err := m.send(ctx, cmdShutdownAll{reply: reply}); err != nil {
		return nil, err
	}
	select {
	case r := <-reply:
		return r.servers, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Terminate requests shutdown_all followed by manager exit. It returns once
// the manager acknowledges the request; Done() closes once the fleet has
// actually drained and the loop exits.
func (m *Manager) Terminate(ctx context.Context) error {
	reply := make(chan struct{}, 1)
	if err := m.send(ctx, cmdTerminate{reply: reply}); err != nil {
		return err
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Reset forcibly kills any lingering handle and rebuilds the record from
// catalog data, only if the entry is currently crashed.
func (m *Manager) Reset(ctx context.Context, code string) (*domain.CountryStatus, error) {
	reply := make(chan recordResult, 1)
	if err := m.send(ctx, cmdReset{code: code, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case r := <-reply:
		return r.record, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ResetAll resets every crashed entry.
func (m *Manager) ResetAll(ctx context.Context) ([]*domain.CountryStatus, error) {
	reply := make(chan listResult, 1)
	if err := m.send(ctx, cmdResetAll{reply: reply}); err != nil {
		return nil, err
	}
	select {
	case r := <-reply:
		return r.servers, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Trace toggles the manager-wide trace flag.
func (m *Manager) Trace(ctx context.Context, on bool) error {
	reply := make(chan struct{}, 1)
	if err := m.send(ctx, cmdTrace{on: on, reply: reply}); err != nil {
		return err
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// TraceServer forwards a trace toggle to the named country's data server.
// The record's Trace field is updated only if the value actually changes.
func (m *Manager) TraceServer(ctx context.Context, code string, on bool) error {
	reply := make(chan error, 1)
	if err := m.send(ctx, cmdTraceServer{code: code, on: on, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Sort reorders the presentation view by the given column and direction and
// returns the reordered snapshot.
func (m *Manager) Sort(ctx context.Context, direction domain.SortDirection, column domain.SortColumn) ([]*domain.CountryStatus, error) {
	reply := make(chan listResult, 1)
	if err := m.send(ctx, cmdSort{direction: direction, column: column, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case r := <-reply:
		return r.servers, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// --- the loop ---------------------------------------------------------

// run is the manager's single serialization point: every fleet mutation,
// command or unsolicited data-server message, is processed here in arrival
// order. No other goroutine ever touches table.
func (m *Manager) run(catalog []domain.CatalogEntry) {
	table := make(map[string]*domain.CountryStatus, len(catalog))
	order := make([]string, 0, len(catalog))
	for _, e := range catalog {
		table[e.CountryCode] = domain.NewCountryStatus(e)
		order = append(order, e.CountryCode)
	}
	initial := orderedEntries(table, order)
	domain.DefaultOrder(initial)
	order = codesOf(initial)

	// active tracks codes whose data server currently holds a live handle
	// (status starting or started) — the "list" whose emptiness, combined
	// with a pending shutdown, ends the manager's loop.
	active := make(map[string]bool)
	pendingShutdown := false
	trace := false

	for {
		select {
		case raw := <-m.cmdCh:
			switch cmd := raw.(type) {
			case cmdStatus:
				cmd.reply <- snapshotResult{trace: trace, servers: cloneAll(orderedEntries(table, order))}

			case cmdStatusStarted:
				var started []*domain.CountryStatus
				for _, code := range order {
					if s := table[code]; s.Status == domain.StatusStarted {
						started = append(started, s.Clone())
					}
				}
				cmd.reply <- snapshotResult{trace: trace, servers: started}

			case cmdStart:
				rec, err := m.handleStart(table, active, cmd.code)
				cmd.reply <- recordResult{record: rec, err: err}

			case cmdStartAll:
				for _, code := range order {
					if table[code].Status == domain.StatusStopped {
						m.handleStart(table, active, code)
					}
				}
				cmd.reply <- listResult{servers: cloneAll(orderedEntries(table, order))}

			case cmdShutdown:
				rec := m.handleShutdown(table, cmd.code)
				cmd.reply <- recordResult{record: rec}

			case cmdShutdownAll:
				for _, code := range order {
					s := table[code]
					if s.Status == domain.StatusStarted || s.Status == domain.StatusStarting {
						m.handleShutdown(table, code)
					}
				}
				pendingShutdown = false
				cmd.reply <- listResult{servers: cloneAll(orderedEntries(table, order))}

			case cmdTerminate:
				for _, code := range order {
					s := table[code]
					if s.Status == domain.StatusStarted || s.Status == domain.StatusStarting {
						m.handleShutdown(table, code)
					}
				}
				pendingShutdown = true
				cmd.reply <- struct{}{}

			case cmdReset:
				rec, err := m.handleReset(table, active, cmd.code)
				cmd.reply <- recordResult{record: rec, err: err}

			case cmdResetAll:
				for _, code := range order {
					if table[code].Status == domain.StatusCrashed {
						m.handleReset(table, active, code)
					}
				}
				cmd.reply <- listResult{servers: cloneAll(orderedEntries(table, order))}

			case cmdTrace:
				trace = cmd.on
				cmd.reply <- struct{}{}

			case cmdTraceServer:
				cmd.reply <- m.handleTraceServer(table, cmd.code, cmd.on)

			case cmdSort:
				entries := orderedEntries(table, order)
				domain.Sort(entries, cmd.direction, cmd.column)
				order = codesOf(entries)
				cmd.reply <- listResult{servers: cloneAll(entries)}
			}

		case raw := <-m.notifyCh:
			switch msg := raw.(type) {
			case Progress:
				m.applyProgress(table, msg)
			case Termination:
				m.applyTermination(table, order, active, msg)
			}
		}

		if pendingShutdown && len(active) == 0 {
			m.log.Info().Msg("fleet drained, manager exiting")
			close(m.done)
			return
		}
	}
}

func (m *Manager) handleStart(table map[string]*domain.CountryStatus, active map[string]bool, code string) (*domain.CountryStatus, error) {
	s, ok := table[code]
	if !ok {
		return nil, ErrCountryServerNotFound
	}
	if s.Status != domain.StatusStopped {
		return nil, ErrAlreadyStarted
	}
	entry := domain.CatalogEntry{CountryCode: s.CountryCode, CountryName: s.CountryName, Continent: s.Continent}
	handle := m.spawner.Spawn(m.ctx, entry, m.notifyCh)
	s.Handle = handle
	s.Status = domain.StatusStarting
	s.Progress = 0
	active[code] = true
	m.bus.Publish(events.Event{Type: events.CountryStarting, CountryCode: code})
	return s.Clone(), nil
}

func (m *Manager) handleShutdown(table map[string]*domain.CountryStatus, code string) *domain.CountryStatus {
	s, ok := table[code]
	if !ok || s.Handle == nil {
		return nil
	}
	h := s.Handle
	go func() {
		defer func() { recover() }() // the server may have already closed its command channel
		h.Commands <- ShutdownCmd{}
	}()
	return s.Clone()
}

func (m *Manager) handleReset(table map[string]*domain.CountryStatus, active map[string]bool, code string) (*domain.CountryStatus, error) {
	s, ok := table[code]
	if !ok {
		return nil, ErrCountryServerNotFound
	}
	if s.Status != domain.StatusCrashed {
		return nil, ErrServerNotCrashed
	}
	if s.Handle != nil && s.Handle.Cancel != nil {
		s.Handle.Cancel()
	}
	s.ResetToInitial()
	delete(active, code)
	return s.Clone(), nil
}

func (m *Manager) handleTraceServer(table map[string]*domain.CountryStatus, code string, on bool) error {
	s, ok := table[code]
	if !ok {
		return ErrNoSuchCountryServer
	}
	if s.Trace == on {
		return nil
	}
	s.Trace = on
	if s.Handle != nil {
		h := s.Handle
		go func() {
			defer func() { recover() }()
			h.Commands <- TraceCmd{On: on}
		}()
	}
	return nil
}

func (m *Manager) applyProgress(table map[string]*domain.CountryStatus, msg Progress) {
	s, ok := table[msg.Code]
	if !ok {
		m.log.Warn().Str("country_code", msg.Code).Msg("progress message for unknown country")
		return
	}
	switch msg.Kind {
	case ProgressSubstatus:
		s.Substatus = msg.Substatus
	case ProgressInit:
		s.Progress = 0
		s.StartedAt = msg.Timestamp
	case ProgressDelta:
		s.Progress += msg.Delta
	case ProgressChild:
		s.Children = append(s.Children, msg.ChildID)
	case ProgressPhaseComplete:
		s.Progress = 100
	case ProgressRunning:
		s.Status = domain.StatusStarted
		s.Progress = 100
		s.CityCount = msg.CityCount
		s.StartupDur = msg.CompletedAt.Sub(s.StartedAt)
		s.MemUsage = sampleMemUsage()
		m.bus.Publish(events.Event{
			Type:        events.CountryStarted,
			CountryCode: msg.Code,
			Data:        map[string]interface{}{"city_count": s.CityCount},
		})
	}
}

func (m *Manager) applyTermination(table map[string]*domain.CountryStatus, order []string, active map[string]bool, msg Termination) {
	code := msg.Code
	if code == "" && msg.Handle != nil {
		for _, c := range order {
			if table[c].Handle == msg.Handle {
				code = c
				break
			}
		}
	}
	if code == "" {
		m.log.Warn().Str("reason", string(msg.Reason)).Str("detail", msg.Detail).Msg("termination from unknown identity")
		return
	}
	if _, ok := table[code]; !ok {
		// stopped/no_cities carry the server name; map it back to its code.
		for _, c := range order {
			if table[c].ServerName == code {
				code = c
				break
			}
		}
	}

	s, ok := table[code]
	if !ok {
		m.log.Warn().Str("country_code", code).Msg("termination for unknown country")
		return
	}

	delete(active, code)

	switch msg.Reason {
	case ReasonStopped, ReasonNoCities:
		s.ResetToInitial()
		if msg.Reason == ReasonNoCities {
			s.Substatus = string(ReasonNoCities)
		}
		m.bus.Publish(events.Event{Type: events.CountryStopped, CountryCode: code})

	default:
		s.ResetToInitial()
		s.Status = domain.StatusCrashed
		s.Substatus = string(msg.Reason)
		if msg.Reason == ReasonOther {
			s.Substatus = msg.Detail
		}
		m.bus.Publish(events.Event{
			Type:        events.CountryCrashed,
			CountryCode: code,
			Data:        map[string]interface{}{"reason": s.Substatus},
		})
	}
}

func orderedEntries(table map[string]*domain.CountryStatus, order []string) []*domain.CountryStatus {
	out := make([]*domain.CountryStatus, 0, len(order))
	for _, code := range order {
		if s, ok := table[code]; ok {
			out = append(out, s)
		}
	}
	return out
}

func codesOf(entries []*domain.CountryStatus) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.CountryCode
	}
	return out
}

func cloneAll(entries []*domain.CountryStatus) []*domain.CountryStatus {
	out := make([]*domain.CountryStatus, len(entries))
	for i, e := range entries {
		out[i] = e.Clone()
	}
	return out
}
