package server

import "net/http"

// handleBackupStageRestore serves POST /backup/restore?key=<backup-key>:
// stages a backup for restore on the next process start. It does not
// touch the live store or cache.
func (s *Server) handleBackupStageRestore(w http.ResponseWriter, r *http.Request) {
	key := r.URL.Query().Get("key")
	if key == "" {
		http.Error(w, "key is required", http.StatusBadRequest)
		return
	}
	if err := s.restore.Stage(r.Context(), key); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "staged", "note": "restart the service to apply"})
}

// handleBackupList serves GET /backup/list: the backups currently stored in
// R2, most recent first.
func (s *Server) handleBackupList(w http.ResponseWriter, r *http.Request) {
	backups, err := s.backups.List(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	s.writeJSON(w, http.StatusOK, backups)
}

// handleBackupCreate serves POST /backup/create: snapshots the store and
// FCP cache and uploads them to R2 synchronously.
func (s *Server) handleBackupCreate(w http.ResponseWriter, r *http.Request) {
	if err := s.backups.CreateAndUpload(r.Context()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
