// Package trackerclient centralizes every datagram exchanged with the
// Tracker so seeding and downloading code never hand-roll protocol calls
// inline, mirroring the teacher's habit of funneling tracker communication
// through one collaborator (Client.announceToTracker / Tracker.RegisterSeeder).
package trackerclient

import (
	"fmt"
	"net"
	"time"

	"github.com/omnicloud/swarmhub/internal/swarmerr"
	"github.com/omnicloud/swarmhub/internal/wire"
)

// Client is a thin dial-send-recv-with-timeout wrapper pointed at a single
// tracker address; each round trip uses a fresh UDP socket.
type Client struct {
	addr    string
	timeout time.Duration
}

// New returns a Client targeting trackerAddr. timeout bounds every
// round-trip this client performs.
func New(trackerAddr string, timeout time.Duration) *Client {
	return &Client{addr: trackerAddr, timeout: timeout}
}

func (c *Client) roundTrip(msg wire.Message) (wire.Message, error) {
	encoded, err := wire.EncodeDatagram(msg)
	if err != nil {
		return wire.Message{}, fmt.Errorf("trackerclient: encode: %w", err)
	}

	raddr, err := net.ResolveUDPAddr("udp", c.addr)
	if err != nil {
		return wire.Message{}, fmt.Errorf("trackerclient: resolve %s: %w", c.addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return wire.Message{}, fmt.Errorf("trackerclient: dial %s: %w", c.addr, err)
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(c.timeout)); err != nil {
		return wire.Message{}, err
	}
	if _, err := conn.Write(encoded); err != nil {
		return wire.Message{}, fmt.Errorf("trackerclient: send: %w", err)
	}

	buf := make([]byte, wire.MaxDatagramPayload)
	n, err := conn.Read(buf)
	if err != nil {
		return wire.Message{}, fmt.Errorf("trackerclient: recv from %s: %w: %v", c.addr, swarmerr.ErrConnectFailed, err)
	}
	reply, err := wire.Decode(buf[:n])
	if err != nil {
		return wire.Message{}, fmt.Errorf("trackerclient: decode reply: %w", err)
	}
	return reply, nil
}

// Register sends REGISTER(file, peer_port, chunk_count) and expects an ACK.
func (c *Client) Register(fileName string, peerPort uint16, chunkCount uint32) error {
	reply, err := c.roundTrip(wire.NewCommand(wire.CommandRegister, wire.Fields{
		FileName: fileName, PeerPort: peerPort, ChunkCount: chunkCount,
	}))
	if err != nil {
		return err
	}
	if reply.Header.ControlKind == wire.ControlError {
		return fmt.Errorf("trackerclient: register %s: %s", fileName, reply.Header.Fields.ErrorText)
	}
	return nil
}

// Keepalive sends KEEPALIVE(peer_port).
func (c *Client) Keepalive(peerPort uint16) error {
	_, err := c.roundTrip(wire.NewCommand(wire.CommandKeepalive, wire.Fields{PeerPort: peerPort}))
	return err
}

// RequestPeers sends REQUEST(file_name) and returns the peer list, possibly
// empty.
func (c *Client) RequestPeers(fileName string) ([]wire.PeerAddr, error) {
	reply, err := c.roundTrip(wire.NewCommand(wire.CommandRequest, wire.Fields{FileName: fileName}))
	if err != nil {
		return nil, err
	}
	return reply.Header.Fields.PeerList, nil
}

// ChunkCount sends GET_COUNT(file_name) and returns the chunk count.
func (c *Client) ChunkCount(fileName string) (uint32, error) {
	reply, err := c.roundTrip(wire.NewCommand(wire.CommandGetCount, wire.Fields{FileName: fileName}))
	if err != nil {
		return 0, err
	}
	if reply.Header.ControlKind == wire.ControlError {
		return 0, fmt.Errorf("trackerclient: get_count %s: %s", fileName, reply.Header.Fields.ErrorText)
	}
	return reply.Header.Fields.ChunkCount, nil
}
