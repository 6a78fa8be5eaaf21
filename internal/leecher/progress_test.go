package leecher

import (
	"context"
	"crypto/sha256"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/omnicloud/swarmhub/internal/wire"
)

func TestProgressBroadcasterDeliversPublishedUpdate(t *testing.T) {
	b := NewProgressBroadcaster()
	go b.Run()
	defer b.Stop()

	srv := httptest.NewServer(b)
	defer srv.Close()
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	// Give the server a moment to process the register before publishing,
	// since registration happens asynchronously over a channel.
	time.Sleep(50 * time.Millisecond)
	b.Publish(ProgressUpdate{FileName: "f.bin", Completed: 1, Total: 4})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage: %v", err)
	}
	if !strings.Contains(string(data), `"completed":1`) || !strings.Contains(string(data), `"total":4`) {
		t.Fatalf("unexpected payload: %s", data)
	}
}

func TestSchedulerOnProgressIsMonotonicAndReachesTotal(t *testing.T) {
	chunk := []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")
	hash := sha256.Sum256(chunk)

	peer, stop := fakeSeeder(t, chunk, false)
	defer stop()

	sched := NewScheduler([]wire.PeerAddr{peer}, "f.bin", 1, [][32]byte{hash}, 1, 2, 2*time.Second)
	var seen []int
	sched.OnProgress(func(completed, total int) {
		seen = append(seen, completed)
		if total != 1 {
			t.Errorf("total: got %d, want 1", total)
		}
	})
	if _, err := sched.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(seen) != 1 || seen[0] != 1 {
		t.Fatalf("progress callback: got %v, want [1]", seen)
	}
}
