package tracker

import (
	"testing"
	"time"
)

func TestRegisterAndPeerList(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("hello.bin", "10.0.0.1", 4000, 3); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register("hello.bin", "10.0.0.2", 4001, 3); err != nil {
		t.Fatalf("Register second seeder: %v", err)
	}

	peers := r.PeerList("hello.bin")
	if len(peers) != 2 {
		t.Fatalf("PeerList: want 2 peers, got %d", len(peers))
	}

	count, ok := r.ChunkCount("hello.bin")
	if !ok || count != 3 {
		t.Fatalf("ChunkCount: want (3, true), got (%d, %v)", count, ok)
	}
}

func TestRegisterChunkCountConflict(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("x.bin", "10.0.0.1", 4000, 5); err != nil {
		t.Fatalf("Register S1: %v", err)
	}
	err := r.Register("x.bin", "10.0.0.2", 4001, 6)
	if err == nil {
		t.Fatal("Register S2 with conflicting chunk_count: want error, got nil")
	}

	peers := r.PeerList("x.bin")
	if len(peers) != 1 || peers[0].Addr != "10.0.0.1" {
		t.Fatalf("PeerList after conflict: want only S1, got %+v", peers)
	}
	count, _ := r.ChunkCount("x.bin")
	if count != 5 {
		t.Fatalf("ChunkCount after conflict: want 5 (S1's value retained), got %d", count)
	}
}

func TestPeerListUnknownFileIsEmpty(t *testing.T) {
	r := NewRegistry()
	if peers := r.PeerList("ghost.bin"); peers != nil {
		t.Fatalf("PeerList for unknown file: want nil, got %+v", peers)
	}
	if _, ok := r.ChunkCount("ghost.bin"); ok {
		t.Fatal("ChunkCount for unknown file: want ok=false")
	}
}

func TestKeepaliveRefreshesAcrossFiles(t *testing.T) {
	r := NewRegistry()
	r.Register("a.bin", "10.0.0.1", 4000, 1)
	r.Register("b.bin", "10.0.0.1", 4000, 1)

	time.Sleep(50 * time.Millisecond)
	r.Keepalive("10.0.0.1", 4000)
	// The registrations are 50ms old; only the keepalive keeps the seeder
	// under both files from being reaped with a 25ms cutoff.
	r.Reap(25 * time.Millisecond)

	if len(r.PeerList("a.bin")) != 1 {
		t.Fatal("keepalive should have refreshed seeder in a.bin")
	}
	if len(r.PeerList("b.bin")) != 1 {
		t.Fatal("keepalive should have refreshed seeder in b.bin")
	}
}

func TestKeepaliveUnknownSeederIsNoop(t *testing.T) {
	r := NewRegistry()
	r.Keepalive("10.0.0.9", 9999) // must not panic
}

func TestReapRemovesStaleSeedersAndEmptiesFile(t *testing.T) {
	r := NewRegistry()
	r.Register("hello.bin", "10.0.0.1", 4000, 3)

	removed := r.Reap(time.Hour) // nothing was last seen more than an hour ago
	if removed != 0 {
		t.Fatalf("Reap with generous cutoff: want 0 removed, got %d", removed)
	}

	removed = r.Reap(0) // everything is older than "now"
	if removed != 1 {
		t.Fatalf("Reap with zero cutoff: want 1 removed, got %d", removed)
	}
	if _, ok := r.ChunkCount("hello.bin"); ok {
		t.Fatal("file entry should be removed once its seeder set is empty")
	}
}

func TestSnapshotIsSortedAndCopied(t *testing.T) {
	r := NewRegistry()
	r.Register("b.bin", "10.0.0.2", 4001, 1)
	r.Register("a.bin", "10.0.0.1", 4000, 1)

	snap := r.Snapshot()
	if len(snap) != 2 || snap[0].FileName != "a.bin" || snap[1].FileName != "b.bin" {
		t.Fatalf("Snapshot: want sorted [a.bin, b.bin], got %+v", snap)
	}

	snap[0].Seeders[0].Addr = "mutated"
	if got := r.Snapshot()[0].Seeders[0].Addr; got != "10.0.0.1" {
		t.Fatalf("Snapshot: mutating a returned snapshot changed the registry, got %q", got)
	}
}
