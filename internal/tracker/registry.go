// Package tracker implements the connectionless peer directory: a mapping
// from file name to live seeder set plus its authoritative chunk count, a
// reaper that ages out silent seeders, and the UDP server that answers
// REGISTER/KEEPALIVE/REQUEST/GET_COUNT.
package tracker

import (
	"sort"
	"sync"
	"time"

	"github.com/omnicloud/swarmhub/internal/swarmerr"
)

// seederKey identifies a SeederEntry by (address, port), its identity per
// the data model.
type seederKey struct {
	addr string
	port uint16
}

// seederEntry is the Tracker's record of one live seeder.
type seederEntry struct {
	lastSeen time.Time
}

// fileEntry is one FileRegistry row: the chunk count agreed on by the first
// REGISTER for this file, and the set of seeders currently hosting it.
type fileEntry struct {
	chunkCount uint32
	seeders    map[seederKey]*seederEntry
}

// Registry is the Tracker's single owned structure, mutated only inside its
// mutex. Readers that need to reply to a request snapshot the relevant set
// under the lock and encode the reply outside it.
type Registry struct {
	mu    sync.Mutex
	files map[string]*fileEntry
	// seederFiles tracks every file a given seeder has registered under,
	// so a KEEPALIVE (which only carries a port) can refresh last_seen
	// everywhere that seeder appears, per §4.2.
	seederFiles map[seederKey]map[string]struct{}
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		files:       make(map[string]*fileEntry),
		seederFiles: make(map[seederKey]map[string]struct{}),
	}
}

// Register upserts a SeederEntry for (addr, port) under fileName. If the
// file is already known with a different chunkCount, the call is rejected
// with ErrChunkCountConflict and the existing registration is left intact.
func (r *Registry) Register(fileName, addr string, port uint16, chunkCount uint32) error {
	if chunkCount < 1 {
		return swarmerr.ErrChunkCountConflict
	}
	key := seederKey{addr: addr, port: port}

	r.mu.Lock()
	defer r.mu.Unlock()

	fe, ok := r.files[fileName]
	if !ok {
		fe = &fileEntry{chunkCount: chunkCount, seeders: make(map[seederKey]*seederEntry)}
		r.files[fileName] = fe
	} else if fe.chunkCount != chunkCount {
		return swarmerr.ErrChunkCountConflict
	}

	fe.seeders[key] = &seederEntry{lastSeen: time.Now()}

	if r.seederFiles[key] == nil {
		r.seederFiles[key] = make(map[string]struct{})
	}
	r.seederFiles[key][fileName] = struct{}{}

	return nil
}

// Keepalive refreshes last_seen for (addr, port) across every file it
// serves. A keepalive from an unknown seeder is silently a no-op (§4.2:
// "silently dropped if unknown").
func (r *Registry) Keepalive(addr string, port uint16) {
	key := seederKey{addr: addr, port: port}

	r.mu.Lock()
	defer r.mu.Unlock()

	names, ok := r.seederFiles[key]
	if !ok {
		return
	}
	now := time.Now()
	for name := range names {
		if fe, ok := r.files[name]; ok {
			if se, ok := fe.seeders[key]; ok {
				se.lastSeen = now
			}
		}
	}
}

// PeerList returns a snapshot of the live seeders for fileName, sorted by
// address then port (so repeated calls are deterministic and leecher
// round-robin tie-breaks are reproducible). The returned slice is a copy
// safe to encode outside the registry lock.
func (r *Registry) PeerList(fileName string) []PeerInfo {
	r.mu.Lock()
	defer r.mu.Unlock()

	fe, ok := r.files[fileName]
	if !ok {
		return nil
	}
	out := make([]PeerInfo, 0, len(fe.seeders))
	for key := range fe.seeders {
		out = append(out, PeerInfo{Addr: key.addr, Port: key.port})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Addr != out[j].Addr {
			return out[i].Addr < out[j].Addr
		}
		return out[i].Port < out[j].Port
	})
	return out
}

// PeerInfo is a read-only view of one live seeder, safe to copy onto the
// wire outside the registry lock.
type PeerInfo struct {
	Addr string
	Port uint16
}

// ChunkCount returns the chunk count for fileName and whether the file is
// known at all.
func (r *Registry) ChunkCount(fileName string) (uint32, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fe, ok := r.files[fileName]
	if !ok {
		return 0, false
	}
	return fe.chunkCount, true
}

// Reap removes every seeder whose last_seen is older than olderThan. A file
// whose seeder set becomes empty is removed entirely. Returns the number of
// seeder entries removed, for logging.
func (r *Registry) Reap(olderThan time.Duration) int {
	cutoff := time.Now().Add(-olderThan)
	removed := 0

	r.mu.Lock()
	defer r.mu.Unlock()

	for name, fe := range r.files {
		for key, se := range fe.seeders {
			if se.lastSeen.Before(cutoff) {
				delete(fe.seeders, key)
				if names := r.seederFiles[key]; names != nil {
					delete(names, name)
					if len(names) == 0 {
						delete(r.seederFiles, key)
					}
				}
				removed++
			}
		}
		if len(fe.seeders) == 0 {
			delete(r.files, name)
		}
	}
	return removed
}

// FileSnapshot is a read-only view of one tracked file for the debug endpoint.
type FileSnapshot struct {
	FileName   string     `json:"file_name"`
	ChunkCount uint32     `json:"chunk_count"`
	Seeders    []PeerInfo `json:"seeders"`
}

// Snapshot returns a read-only copy of every tracked file and its current
// seeder set, for /debug/registry.
func (r *Registry) Snapshot() []FileSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]FileSnapshot, 0, len(r.files))
	for name, fe := range r.files {
		fs := FileSnapshot{FileName: name, ChunkCount: fe.chunkCount}
		for key := range fe.seeders {
			fs.Seeders = append(fs.Seeders, PeerInfo{Addr: key.addr, Port: key.port})
		}
		sort.Slice(fs.Seeders, func(i, j int) bool {
			if fs.Seeders[i].Addr != fs.Seeders[j].Addr {
				return fs.Seeders[i].Addr < fs.Seeders[j].Addr
			}
			return fs.Seeders[i].Port < fs.Seeders[j].Port
		})
		out = append(out, fs)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileName < out[j].FileName })
	return out
}
