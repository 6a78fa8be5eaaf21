package tracker

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/omnicloud/swarmhub/internal/wire"
)

func startTestServer(t *testing.T) (*Server, string, func()) {
	t.Helper()
	s := NewServer(50*time.Millisecond, 100*time.Millisecond, nil)
	addr, err := s.Bind("127.0.0.1:0")
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Serve(ctx)
		close(done)
	}()
	return s, addr, func() {
		cancel()
		s.Close()
		<-done
	}
}

func roundTrip(t *testing.T, conn *net.UDPConn, msg wire.Message) wire.Message {
	t.Helper()
	encoded, err := wire.EncodeDatagram(msg)
	if err != nil {
		t.Fatalf("EncodeDatagram: %v", err)
	}
	if _, err := conn.Write(encoded); err != nil {
		t.Fatalf("Write: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, wire.MaxDatagramPayload)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	reply, err := wire.Decode(buf[:n])
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return reply
}

func TestServerRegisterRequestGetCount(t *testing.T) {
	_, addr, stop := startTestServer(t)
	defer stop()

	serverAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		t.Fatalf("ResolveUDPAddr: %v", err)
	}
	conn, err := net.DialUDP("udp", nil, serverAddr)
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer conn.Close()

	reply := roundTrip(t, conn, wire.NewCommand(wire.CommandRegister, wire.Fields{
		FileName: "hello.bin", PeerPort: 4000, ChunkCount: 3,
	}))
	if reply.Header.ControlKind != wire.ControlAck {
		t.Fatalf("REGISTER reply: want ACK, got %+v", reply.Header)
	}

	reply = roundTrip(t, conn, wire.NewCommand(wire.CommandRequest, wire.Fields{FileName: "hello.bin"}))
	if reply.Header.ControlKind != wire.ControlPeerList {
		t.Fatalf("REQUEST reply: want PEER_LIST, got %+v", reply.Header)
	}
	if len(reply.Header.Fields.PeerList) != 1 {
		t.Fatalf("REQUEST reply: want 1 peer, got %d", len(reply.Header.Fields.PeerList))
	}

	reply = roundTrip(t, conn, wire.NewCommand(wire.CommandGetCount, wire.Fields{FileName: "hello.bin"}))
	if reply.Header.ControlKind != wire.ControlChunkCount || reply.Header.Fields.ChunkCount != 3 {
		t.Fatalf("GET_COUNT reply: want CHUNK_COUNT=3, got %+v", reply.Header)
	}
}

func TestServerGetCountUnknownFile(t *testing.T) {
	_, addr, stop := startTestServer(t)
	defer stop()

	serverAddr, _ := net.ResolveUDPAddr("udp", addr)
	conn, err := net.DialUDP("udp", nil, serverAddr)
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer conn.Close()

	reply := roundTrip(t, conn, wire.NewCommand(wire.CommandGetCount, wire.Fields{FileName: "ghost.bin"}))
	if reply.Header.ControlKind != wire.ControlError {
		t.Fatalf("GET_COUNT for unknown file: want ERROR, got %+v", reply.Header)
	}
}

func TestServerReapsStaleSeeders(t *testing.T) {
	_, addr, stop := startTestServer(t)
	defer stop()

	serverAddr, _ := net.ResolveUDPAddr("udp", addr)
	conn, err := net.DialUDP("udp", nil, serverAddr)
	if err != nil {
		t.Fatalf("DialUDP: %v", err)
	}
	defer conn.Close()

	roundTrip(t, conn, wire.NewCommand(wire.CommandRegister, wire.Fields{
		FileName: "hello.bin", PeerPort: 4000, ChunkCount: 1,
	}))

	// liveness_timeout=100ms, reap_interval=50ms: well past both, the
	// seeder must be gone from the next PEER_LIST reply.
	time.Sleep(300 * time.Millisecond)

	reply := roundTrip(t, conn, wire.NewCommand(wire.CommandRequest, wire.Fields{FileName: "hello.bin"}))
	if len(reply.Header.Fields.PeerList) != 0 {
		t.Fatalf("PEER_LIST after reap: want empty, got %+v", reply.Header.Fields.PeerList)
	}
}
