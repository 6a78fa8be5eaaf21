package seeder

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/omnicloud/swarmhub/internal/trackerclient"
)

func TestSeedWatcherIngestsNewFile(t *testing.T) {
	trackerAddr, stopTracker := startTestTracker(t)
	defer stopTracker()

	client := trackerclient.New(trackerAddr, 2*time.Second)
	sd := New(client, time.Hour, 5*time.Second, 4)
	if err := sd.Bind("127.0.0.1:0"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer sd.Close()

	watchDir := t.TempDir()
	w, err := NewSeedWatcher(sd, watchDir, 1024, 2)
	if err != nil {
		t.Fatalf("NewSeedWatcher: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer w.Stop()

	path := filepath.Join(watchDir, "dropped.bin")
	if err := os.WriteFile(path, []byte("watched file contents"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, ok := sd.Chunks.ChunkCount("dropped.bin"); ok {
			return
		}
		if time.Now().After(deadline) {
			t.Fatal("seed watcher did not ingest the new file in time")
		}
		time.Sleep(100 * time.Millisecond)
	}
}
