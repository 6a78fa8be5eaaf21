package tracker

import (
	"context"
	"log"
	"net"
	"time"

	"github.com/omnicloud/swarmhub/internal/swarmerr"
	"github.com/omnicloud/swarmhub/internal/wire"
)

// AuditSink receives a best-effort record of every handled request. It must
// never block the request path: Server calls it synchronously, so every
// implementation this repo ships returns at once and ignores write
// failures (see audit.go).
type AuditSink interface {
	Record(command string, fileName, peerAddr string, status, detail string)
}

type noopAuditSink struct{}

func (noopAuditSink) Record(string, string, string, string, string) {}

// Server is the Tracker's UDP request/response loop plus its background
// reaper. One request-handler goroutine per incoming datagram, matching the
// concurrency model's "one request-handler activity per incoming datagram".
type Server struct {
	Registry *Registry
	Audit    AuditSink

	ReapInterval    time.Duration
	LivenessTimeout time.Duration

	conn *net.UDPConn
}

// NewServer builds a Server with the given reap/liveness timeouts. Audit
// may be nil, in which case a no-op sink is used.
func NewServer(reapInterval, livenessTimeout time.Duration, audit AuditSink) *Server {
	if audit == nil {
		audit = noopAuditSink{}
	}
	return &Server{
		Registry:        NewRegistry(),
		Audit:           audit,
		ReapInterval:    reapInterval,
		LivenessTimeout: livenessTimeout,
	}
}

// Bind opens the UDP socket at addr. Call Serve afterwards to run the
// accept loop; split so callers can log the bound address (useful when
// addr specifies port 0).
func (s *Server) Bind(addr string) (string, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return "", err
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return "", err
	}
	s.conn = conn
	return conn.LocalAddr().String(), nil
}

// Serve drains the bound socket and runs the reaper until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	go s.reapLoop(ctx)

	buf := make([]byte, wire.MaxDatagramPayload)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		s.conn.SetReadDeadline(time.Now().Add(1 * time.Second))
		n, from, err := s.conn.ReadFromUDP(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			log.Printf("[tracker] read error: %v", err)
			continue
		}

		datagram := append([]byte(nil), buf[:n]...)
		go s.handleDatagram(datagram, from)
	}
}

// Close releases the bound socket.
func (s *Server) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func (s *Server) handleDatagram(datagram []byte, from *net.UDPAddr) {
	msg, err := wire.Decode(datagram)
	if err != nil {
		// Malformed datagrams are logged and dropped, no response: the
		// sender will retry (§4.2 failure semantics).
		log.Printf("[tracker] dropping malformed datagram from %s: %v", from, err)
		return
	}
	if msg.Header.MessageKind != wire.MessageCommand {
		log.Printf("[tracker] dropping non-command message from %s", from)
		return
	}

	srcAddr := from.IP.String()

	switch msg.Header.CommandKind {
	case wire.CommandRegister:
		s.handleRegister(msg.Header.Fields, srcAddr, from)
	case wire.CommandKeepalive:
		s.handleKeepalive(msg.Header.Fields, srcAddr, from)
	case wire.CommandRequest:
		s.handleRequest(msg.Header.Fields, srcAddr, from)
	case wire.CommandGetCount:
		s.handleGetCount(msg.Header.Fields, srcAddr, from)
	default:
		log.Printf("[tracker] unsupported command %v from %s", msg.Header.CommandKind, from)
	}
}

func (s *Server) reply(to *net.UDPAddr, msg wire.Message) {
	encoded, err := wire.EncodeDatagram(msg)
	if err != nil {
		log.Printf("[tracker] encode reply: %v", err)
		return
	}
	if _, err := s.conn.WriteToUDP(encoded, to); err != nil {
		log.Printf("[tracker] write reply to %s: %v", to, err)
	}
}

func (s *Server) handleRegister(f wire.Fields, srcAddr string, from *net.UDPAddr) {
	err := s.Registry.Register(f.FileName, srcAddr, f.PeerPort, f.ChunkCount)
	if err != nil {
		s.Audit.Record("REGISTER", f.FileName, srcAddr, "error", err.Error())
		s.reply(from, wire.NewControl(wire.ControlError, wire.Fields{ErrorText: err.Error()}))
		return
	}
	s.Audit.Record("REGISTER", f.FileName, srcAddr, "ok", "")
	s.reply(from, wire.NewControl(wire.ControlAck, wire.Fields{}))
}

func (s *Server) handleKeepalive(f wire.Fields, srcAddr string, from *net.UDPAddr) {
	s.Registry.Keepalive(srcAddr, f.PeerPort)
	s.Audit.Record("KEEPALIVE", "", srcAddr, "ok", "")
	s.reply(from, wire.NewControl(wire.ControlAck, wire.Fields{}))
}

func (s *Server) handleRequest(f wire.Fields, srcAddr string, from *net.UDPAddr) {
	peers := s.Registry.PeerList(f.FileName)
	wirePeers := make([]wire.PeerAddr, len(peers))
	for i, p := range peers {
		wirePeers[i] = wire.PeerAddr{Addr: p.Addr, Port: p.Port}
	}
	s.Audit.Record("REQUEST", f.FileName, srcAddr, "ok", "")
	s.reply(from, wire.NewControl(wire.ControlPeerList, wire.Fields{PeerList: wirePeers}))
}

func (s *Server) handleGetCount(f wire.Fields, srcAddr string, from *net.UDPAddr) {
	count, ok := s.Registry.ChunkCount(f.FileName)
	if !ok {
		s.Audit.Record("GET_COUNT", f.FileName, srcAddr, "error", swarmerr.ErrUnknownFile.Error())
		s.reply(from, wire.NewControl(wire.ControlError, wire.Fields{ErrorText: swarmerr.ErrUnknownFile.Error()}))
		return
	}
	s.Audit.Record("GET_COUNT", f.FileName, srcAddr, "ok", "")
	s.reply(from, wire.NewControl(wire.ControlChunkCount, wire.Fields{ChunkCount: count}))
}

func (s *Server) reapLoop(ctx context.Context) {
	ticker := time.NewTicker(s.ReapInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed := s.Registry.Reap(s.LivenessTimeout)
			if removed > 0 {
				log.Printf("[tracker] reap: removed %d stale seeder entries", removed)
			}
		}
	}
}
