package tracker

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

// DebugHandler returns a read-only HTTP introspection surface over the
// registry, modelled on the teacher's Tracker.ServeHTTP "/debug/swarms"
// endpoint: it exposes the same state the core already computes (via
// Registry.Snapshot), just over HTTP instead of a log line.
func (s *Server) DebugHandler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/debug/registry", s.handleDebugRegistry).Methods(http.MethodGet)
	return r
}

func (s *Server) handleDebugRegistry(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.Registry.Snapshot())
}
