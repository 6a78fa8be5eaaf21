package seeder

import (
	"log"
	"net"
	"time"

	"github.com/omnicloud/swarmhub/internal/wire"
)

// handleConnection implements the per-connection state machine:
// AWAITING_REQUEST -> (valid) -> SENDING_CHUNK/SENDING_HASHES -> CLOSED,
// or (invalid) -> SENDING_ERROR -> CLOSED. Exactly one request frame and
// one response frame per connection; no persistent session state.
func (s *Seeder) handleConnection(conn net.Conn) {
	defer conn.Close()

	if s.ServeTimeout > 0 {
		conn.SetDeadline(time.Now().Add(s.ServeTimeout))
	}

	req, err := wire.ReadFrame(conn)
	if err != nil {
		log.Printf("[seeder] read request from %s: %v", conn.RemoteAddr(), err)
		return
	}
	if req.Header.MessageKind != wire.MessageCommand {
		s.sendError(conn, "expected a command message")
		return
	}

	switch req.Header.CommandKind {
	case wire.CommandGet:
		s.handleGet(conn, req.Header.Fields)
	case wire.CommandChunkHashes:
		s.handleChunkHashes(conn, req.Header.Fields)
	default:
		s.sendError(conn, "unsupported command for seeder connection")
	}
}

func (s *Seeder) handleGet(conn net.Conn, f wire.Fields) {
	chunk, err := s.Chunks.Get(f.FileName, f.ChunkIndex)
	if err != nil {
		s.sendError(conn, err.Error())
		return
	}
	if err := wire.WriteFrame(conn, wire.NewChunkData(chunk)); err != nil {
		log.Printf("[seeder] write chunk data to %s: %v", conn.RemoteAddr(), err)
	}
}

func (s *Seeder) handleChunkHashes(conn net.Conn, f wire.Fields) {
	hashes, ok := s.Chunks.Hashes(f.FileName)
	if !ok {
		s.sendError(conn, "unknown file")
		return
	}
	reply := wire.NewControl(wire.ControlChunkHashes, wire.Fields{ChunkHashes: hashes})
	if err := wire.WriteFrame(conn, reply); err != nil {
		log.Printf("[seeder] write chunk hashes to %s: %v", conn.RemoteAddr(), err)
	}
}

func (s *Seeder) sendError(conn net.Conn, errorText string) {
	reply := wire.NewControl(wire.ControlError, wire.Fields{ErrorText: errorText})
	if err := wire.WriteFrame(conn, reply); err != nil {
		log.Printf("[seeder] write error to %s: %v", conn.RemoteAddr(), err)
	}
}
