package seeder

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
)

type chunkMapEntry struct {
	FileName   string `json:"file_name"`
	ChunkCount int    `json:"chunk_count"`
}

// DebugHandler exposes a read-only JSON view of the ChunkMap, modelled on
// the tracker's equivalent /debug/registry endpoint.
func (s *Seeder) DebugHandler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/debug/chunkmap", s.handleDebugChunkMap).Methods(http.MethodGet)
	return r
}

func (s *Seeder) handleDebugChunkMap(w http.ResponseWriter, r *http.Request) {
	names := s.Chunks.Files()
	entries := make([]chunkMapEntry, 0, len(names))
	for _, name := range names {
		count, _ := s.Chunks.ChunkCount(name)
		entries = append(entries, chunkMapEntry{FileName: name, ChunkCount: count})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}
