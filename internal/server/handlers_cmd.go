package server

import (
	"net/http"
	"strconv"

	"github.com/aristath/geosearch/internal/domain"
	"github.com/aristath/geosearch/internal/store"
)

func countryCode(r *http.Request) string {
	code := r.URL.Query().Get("country_code")
	if code == "" {
		code = r.URL.Query().Get("code")
	}
	return code
}

// handleStart serves GET /cmd/start?country_code=<CC>.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	code := countryCode(r)
	s.audit(r.Context(), "start", code, nil)
	rec, err := s.mgr.Start(r.Context(), code)
	if err != nil {
		s.fail(w, domain.ServerName(code), "start", err)
		return
	}
	s.ok(w, rec.ServerName, "start", toView(rec))
}

// handleStartAll serves GET /cmd/start_all.
func (s *Server) handleStartAll(w http.ResponseWriter, r *http.Request) {
	s.audit(r.Context(), "start_all", "", nil)
	servers, err := s.mgr.StartAll(r.Context())
	if err != nil {
		s.fail(w, "country_manager", "start_all", err)
		return
	}
	s.ok(w, "country_manager", "start_all", viewAll(servers))
}

// handleStop serves GET /cmd/stop?country_code=<CC>.
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	code := countryCode(r)
	s.audit(r.Context(), "stop", code, nil)
	rec, err := s.mgr.Shutdown(r.Context(), code)
	if err != nil {
		s.fail(w, domain.ServerName(code), "stop", err)
		return
	}
	s.ok(w, domain.ServerName(code), "stop", viewOrNil(rec))
}

// handleShutdownAll serves GET /cmd/shutdown_all.
func (s *Server) handleShutdownAll(w http.ResponseWriter, r *http.Request) {
	s.audit(r.Context(), "shutdown_all", "", nil)
	servers, err := s.mgr.ShutdownAll(r.Context())
	if err != nil {
		s.fail(w, "country_manager", "shutdown_all", err)
		return
	}
	s.ok(w, "country_manager", "shutdown_all", viewAll(servers))
}

// handleReset serves GET /cmd/reset?country_code=<CC>.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	code := countryCode(r)
	s.audit(r.Context(), "reset", code, nil)
	rec, err := s.mgr.Reset(r.Context(), code)
	if err != nil {
		s.fail(w, domain.ServerName(code), "reset", err)
		return
	}
	s.ok(w, rec.ServerName, "reset", toView(rec))
}

// handleResetAll serves GET /cmd/reset_all.
func (s *Server) handleResetAll(w http.ResponseWriter, r *http.Request) {
	s.audit(r.Context(), "reset_all", "", nil)
	servers, err := s.mgr.ResetAll(r.Context())
	if err != nil {
		s.fail(w, "country_manager", "reset_all", err)
		return
	}
	s.ok(w, "country_manager", "reset_all", viewAll(servers))
}

// handleTrace serves GET /cmd/trace?on=<bool>, toggling the manager-wide
// trace flag.
func (s *Server) handleTrace(w http.ResponseWriter, r *http.Request) {
	on, _ := strconv.ParseBool(r.URL.Query().Get("on"))
	s.audit(r.Context(), "trace", "", map[string]any{"on": on})
	if err := s.mgr.Trace(r.Context(), on); err != nil {
		s.fail(w, "country_manager", "trace", err)
		return
	}
	s.ok(w, "country_manager", "trace", map[string]any{"on": on})
}

// handleTraceServer serves GET /cmd/trace_server?country_code=<CC>&on=<bool>.
func (s *Server) handleTraceServer(w http.ResponseWriter, r *http.Request) {
	code := countryCode(r)
	on, _ := strconv.ParseBool(r.URL.Query().Get("on"))
	s.audit(r.Context(), "trace_server", code, map[string]any{"on": on})
	if err := s.mgr.TraceServer(r.Context(), code, on); err != nil {
		s.fail(w, domain.ServerName(code), "trace_server", err)
		return
	}
	s.ok(w, domain.ServerName(code), "trace_server", map[string]any{"on": on})
}

// handleSort serves GET /cmd/sort?direction=<ascending|descending>&column=<col>.
func (s *Server) handleSort(w http.ResponseWriter, r *http.Request) {
	direction := domain.SortDirection(r.URL.Query().Get("direction"))
	column := domain.SortColumn(r.URL.Query().Get("column"))
	s.audit(r.Context(), "sort", "", map[string]any{"direction": string(direction), "column": string(column)})
	servers, err := s.mgr.Sort(r.Context(), direction, column)
	if err != nil {
		s.fail(w, "country_manager", "sort", err)
		return
	}
	if s.st != nil {
		_ = s.st.SaveSortPreference(r.Context(), store.SortPreference{Direction: direction, Column: column})
	}
	s.ok(w, "country_manager", "sort", viewAll(servers))
}

// handleTerminate serves GET /cmd/terminate: shutdown_all followed by
// manager exit. The reply is the farewell ack; Done() on the manager closes
// once the fleet actually drains.
func (s *Server) handleTerminate(w http.ResponseWriter, r *http.Request) {
	s.audit(r.Context(), "terminate", "", nil)
	if err := s.mgr.Terminate(r.Context()); err != nil {
		s.fail(w, "country_manager", "terminate", err)
		return
	}
	s.goodbye(w, "country_manager", "terminate")
}

func viewAll(servers []*domain.CountryStatus) []countryStatusView {
	out := make([]countryStatusView, len(servers))
	for i, rec := range servers {
		out[i] = toView(rec)
	}
	return out
}

func viewOrNil(rec *domain.CountryStatus) any {
	if rec == nil {
		return nil
	}
	return toView(rec)
}
