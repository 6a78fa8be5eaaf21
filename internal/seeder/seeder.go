package seeder

import (
	"context"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/omnicloud/swarmhub/internal/trackerclient"
)

// Seeder ingests local files, announces them to the Tracker, accepts
// inbound stream connections, and serves chunk requests. Activities: one
// accept loop, one worker per accepted connection (bounded by
// MaxInflightServes), and one heartbeat activity — exactly the three the
// concurrency model names for this role.
type Seeder struct {
	Chunks *ChunkMap
	client *trackerclient.Client

	KeepaliveInterval time.Duration
	ServeTimeout      time.Duration
	MaxInflightServes int

	listener net.Listener
	peerPort uint16

	inflight chan struct{} // bounded semaphore over accepted connections
}

// New returns a Seeder that talks to the tracker through client.
func New(client *trackerclient.Client, keepaliveInterval, serveTimeout time.Duration, maxInflightServes int) *Seeder {
	if maxInflightServes < 1 {
		maxInflightServes = 1
	}
	return &Seeder{
		Chunks:            NewChunkMap(),
		client:            client,
		KeepaliveInterval: keepaliveInterval,
		ServeTimeout:      serveTimeout,
		MaxInflightServes: maxInflightServes,
		inflight:          make(chan struct{}, maxInflightServes),
	}
}

// Bind opens the stream listening socket. addr's port may be 0 for an
// ephemeral port, per §4.3 step 1.
func (s *Seeder) Bind(addr string) error {
	l, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("seeder: bind %s: %w", addr, err)
	}
	s.listener = l
	_, portStr, err := net.SplitHostPort(l.Addr().String())
	if err != nil {
		l.Close()
		return fmt.Errorf("seeder: parse bound address %s: %w", l.Addr(), err)
	}
	var port int
	if _, err := fmt.Sscanf(portStr, "%d", &port); err != nil {
		l.Close()
		return fmt.Errorf("seeder: parse bound port %s: %w", portStr, err)
	}
	s.peerPort = uint16(port)
	return nil
}

// Addr returns the bound listener address.
func (s *Seeder) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// IngestAndRegister ingests path under fileName and registers it with the
// tracker (§4.3 step 2: split, store, REGISTER, expect ACK).
func (s *Seeder) IngestAndRegister(fileName, path string, chunkSize, hashWorkers int) error {
	chunkCount, err := s.Chunks.Ingest(fileName, path, chunkSize, hashWorkers)
	if err != nil {
		return err
	}
	if err := s.client.Register(fileName, s.peerPort, uint32(chunkCount)); err != nil {
		return fmt.Errorf("seeder: register %s: %w", fileName, err)
	}
	log.Printf("[seeder] ingested and registered %s (%d chunks)", fileName, chunkCount)
	return nil
}

// Run starts the heartbeat activity and the accept loop; it blocks until
// ctx is cancelled or the listener fails.
func (s *Seeder) Run(ctx context.Context) error {
	go s.heartbeatLoop(ctx)
	return s.acceptLoop(ctx)
}

func (s *Seeder) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(s.KeepaliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.client.Keepalive(s.peerPort); err != nil {
				log.Printf("[seeder] keepalive: %v", err)
			}
		}
	}
}

func (s *Seeder) acceptLoop(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.listener.Close()
	}()

	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return fmt.Errorf("seeder: accept: %w", err)
		}

		select {
		case s.inflight <- struct{}{}:
			go func() {
				defer func() { <-s.inflight }()
				s.handleConnection(conn)
			}()
		default:
			// Bounded in-flight serves exceeded: refuse rather than queue
			// (§5: "excess connections are queued or refused").
			conn.Close()
		}
	}
}

// Close stops accepting new connections.
func (s *Seeder) Close() error {
	if s.listener == nil {
		return nil
	}
	return s.listener.Close()
}
