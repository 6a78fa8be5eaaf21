package seeder

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/omnicloud/swarmhub/internal/tracker"
	"github.com/omnicloud/swarmhub/internal/trackerclient"
	"github.com/omnicloud/swarmhub/internal/wire"
)

func startTestTracker(t *testing.T) (addr string, stop func()) {
	t.Helper()
	s := tracker.NewServer(time.Minute, time.Minute, nil)
	a, err := s.Bind("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Serve(ctx)
		close(done)
	}()
	return a, func() {
		cancel()
		s.Close()
		<-done
	}
}

func TestSeederServesChunkOverStream(t *testing.T) {
	trackerAddr, stopTracker := startTestTracker(t)
	defer stopTracker()

	client := trackerclient.New(trackerAddr, 2*time.Second)
	sd := New(client, time.Hour, 5*time.Second, 4)
	if err := sd.Bind("127.0.0.1:0"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer sd.Close()

	path := filepath.Join(t.TempDir(), "hello.bin")
	if err := os.WriteFile(path, bytes.Repeat([]byte("x"), 2500), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := sd.IngestAndRegister("hello.bin", path, 1024, 2); err != nil {
		t.Fatalf("IngestAndRegister: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sd.Run(ctx)

	conn, err := net.Dial("tcp", sd.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if err := wire.WriteFrame(conn, wire.NewCommand(wire.CommandGet, wire.Fields{FileName: "hello.bin", ChunkIndex: 0})); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	reply, err := wire.ReadFrame(conn)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if reply.Header.ControlKind != wire.ControlChunkData {
		t.Fatalf("reply: want CHUNK_DATA, got %+v", reply.Header)
	}
	if len(reply.Body) != 1024 {
		t.Fatalf("chunk 0 size: want 1024, got %d", len(reply.Body))
	}
}

func TestSeederGetUnknownChunkReturnsError(t *testing.T) {
	trackerAddr, stopTracker := startTestTracker(t)
	defer stopTracker()

	client := trackerclient.New(trackerAddr, 2*time.Second)
	sd := New(client, time.Hour, 5*time.Second, 4)
	if err := sd.Bind("127.0.0.1:0"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer sd.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sd.Run(ctx)

	conn, err := net.Dial("tcp", sd.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	wire.WriteFrame(conn, wire.NewCommand(wire.CommandGet, wire.Fields{FileName: "ghost.bin", ChunkIndex: 0}))
	reply, err := wire.ReadFrame(conn)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if reply.Header.ControlKind != wire.ControlError {
		t.Fatalf("reply: want ERROR, got %+v", reply.Header)
	}
}

func TestSeederChunkHashes(t *testing.T) {
	trackerAddr, stopTracker := startTestTracker(t)
	defer stopTracker()

	client := trackerclient.New(trackerAddr, 2*time.Second)
	sd := New(client, time.Hour, 5*time.Second, 4)
	if err := sd.Bind("127.0.0.1:0"); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	defer sd.Close()

	path := filepath.Join(t.TempDir(), "hello.bin")
	os.WriteFile(path, bytes.Repeat([]byte("y"), 300), 0o644)
	if err := sd.IngestAndRegister("hello.bin", path, 1024, 2); err != nil {
		t.Fatalf("IngestAndRegister: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sd.Run(ctx)

	conn, err := net.Dial("tcp", sd.Addr().String())
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	wire.WriteFrame(conn, wire.NewCommand(wire.CommandChunkHashes, wire.Fields{FileName: "hello.bin"}))
	reply, err := wire.ReadFrame(conn)
	if err != nil {
		t.Fatalf("ReadFrame: %v", err)
	}
	if reply.Header.ControlKind != wire.ControlChunkHashes {
		t.Fatalf("reply: want CHUNK_HASHES, got %+v", reply.Header)
	}
	if len(reply.Header.Fields.ChunkHashes) != 1 {
		t.Fatalf("chunk hashes: want 1, got %d", len(reply.Header.Fields.ChunkHashes))
	}
}
