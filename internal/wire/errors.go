package wire

import "errors"

// Protocol-level errors (spec §7 PROTOCOL taxonomy): a frame that cannot be
// decoded is dropped and, on stream transports, the connection is closed.
var (
	ErrParse       = errors.New("wire: parse error")
	ErrUnknownKind = errors.New("wire: unknown kind")
	ErrSizeExceeded = errors.New("wire: size exceeded")
)

// MaxBodySize is the largest body this codec will decode. Frames claiming a
// larger body are rejected with ErrSizeExceeded before any allocation.
const MaxBodySize = 1 << 20 // 1 MiB

// MaxDatagramPayload is the recommended upper bound for a single encoded
// message sent over the tracker's datagram socket.
const MaxDatagramPayload = 64 << 10 // 64 KiB
