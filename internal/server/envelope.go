package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/aristath/geosearch/internal/store"
)

// commandResponse is the envelope every /cmd endpoint replies with, mirroring
// the manager's own command-response shape: a named sender, the command
// that was run, a tri-state status, and either a payload or a failure
// reason.
type commandResponse struct {
	FromServer string `json:"from_server"`
	Cmd        string `json:"cmd"`
	Status     string `json:"status"`
	Payload    any    `json:"payload,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

const (
	statusOK      = "ok"
	statusError   = "error"
	statusGoodbye = "goodbye"
)

func (s *Server) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("failed to encode json response")
	}
}

func (s *Server) ok(w http.ResponseWriter, fromServer, cmd string, payload any) {
	s.writeJSON(w, http.StatusOK, commandResponse{FromServer: fromServer, Cmd: cmd, Status: statusOK, Payload: payload})
}

func (s *Server) fail(w http.ResponseWriter, fromServer, cmd string, err error) {
	s.writeJSON(w, http.StatusOK, commandResponse{FromServer: fromServer, Cmd: cmd, Status: statusError, Reason: err.Error()})
}

func (s *Server) goodbye(w http.ResponseWriter, fromServer, cmd string) {
	s.writeJSON(w, http.StatusOK, commandResponse{FromServer: fromServer, Cmd: cmd, Status: statusGoodbye})
}

// audit best-effort records the command in the document store. A recording
// failure never fails the request — the audit trail is an enrichment, not
// part of the control plane's correctness.
func (s *Server) audit(ctx context.Context, cmd, code string, payload map[string]any) {
	if s.st == nil {
		return
	}
	if err := s.st.RecordCommand(ctx, store.AuditEntry{Cmd: cmd, CountryCode: code, Payload: payload}); err != nil {
		s.log.Warn().Err(err).Str("cmd", cmd).Msg("failed to record command audit entry")
	}
}
