package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxFrameSize bounds the length prefix read by ReadFrame so a corrupt or
// hostile peer can't make a reader allocate an unbounded buffer.
const MaxFrameSize = MaxBodySize + 4096

// WriteFrame writes msg to w prefixed with its total length as an unsigned
// 32-bit big-endian integer, per the stream protocol in spec §6.
func WriteFrame(w io.Writer, msg Message) error {
	encoded, err := Encode(msg)
	if err != nil {
		return err
	}
	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(len(encoded)))
	if _, err := w.Write(lenPrefix[:]); err != nil {
		return fmt.Errorf("wire: write frame length: %w", err)
	}
	if _, err := w.Write(encoded); err != nil {
		return fmt.Errorf("wire: write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads exactly one length-prefixed frame from r and decodes it.
func ReadFrame(r io.Reader) (Message, error) {
	var lenPrefix [4]byte
	if _, err := io.ReadFull(r, lenPrefix[:]); err != nil {
		return Message{}, fmt.Errorf("wire: read frame length: %w", err)
	}
	n := binary.BigEndian.Uint32(lenPrefix[:])
	if n > MaxFrameSize {
		return Message{}, ErrSizeExceeded
	}
	encoded := make([]byte, n)
	if _, err := io.ReadFull(r, encoded); err != nil {
		return Message{}, fmt.Errorf("wire: read frame body: %w", err)
	}
	return Decode(encoded)
}

// EncodeDatagram is Encode with the §4.1 datagram-size recommendation
// enforced: callers sending over UDP should check the result fits in one
// datagram before transmitting.
func EncodeDatagram(msg Message) ([]byte, error) {
	encoded, err := Encode(msg)
	if err != nil {
		return nil, err
	}
	if len(encoded) > MaxDatagramPayload {
		return nil, fmt.Errorf("wire: datagram encode: %w: %d bytes", ErrSizeExceeded, len(encoded))
	}
	return encoded, nil
}
