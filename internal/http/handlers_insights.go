package http

import "net/http"

func (s *Server) handleGetInsights(w http.ResponseWriter, r *http.Request) {
	snap, err := s.insights.Snapshot(r.Context(), r.PathValue("userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotResponse(snap))
}

func (s *Server) handleRecalculateInsights(w http.ResponseWriter, r *http.Request) {
	snap, err := s.insights.Recalculate(r.Context(), r.PathValue("userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toSnapshotResponse(snap))
}
