package httpapi

import (
	"net/http"
	"strconv"
)

func parseIntParam(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func parseBoolParam(r *http.Request, name string) bool {
	v := r.URL.Query().Get(name)
	b, _ := strconv.ParseBool(v)
	return b
}

func (s *Server) handlePlantAlarms(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	activeOnly := parseBoolParam(r, "active_only")
	limit := parseIntParam(r, "limit", 100)
	writeJSON(w, http.StatusOK, s.store.ListAlarms(id, activeOnly, limit))
}

func (s *Server) handleClearPlantAlarms(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	s.store.ClearAllForPlant(id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAllAlarms(w http.ResponseWriter, r *http.Request) {
	activeOnly := parseBoolParam(r, "active_only")
	limit := parseIntParam(r, "limit", 200)
	writeJSON(w, http.StatusOK, s.store.ListAlarms("", activeOnly, limit))
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 100)
	if limit > 1000 {
		limit = 1000
	}
	writeJSON(w, http.StatusOK, s.store.ListEvents(limit))
}

func (s *Server) handleGetOfflineMode(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": s.store.IsOffline()})
}

func (s *Server) handleSetOfflineMode(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool `json:"enabled"`
	}
	if err := decodeJSON(r, &body); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.store.SetOffline(body.Enabled)
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": s.store.IsOffline()})
}
