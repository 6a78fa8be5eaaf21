package wire

import (
	"encoding/binary"
	"fmt"
)

// field presence bits, packed into a 16-bit bitmask so an unset field costs
// nothing on the wire and decoding never has to guess whether a zero value
// was actually sent.
const (
	fieldFileName uint16 = 1 << iota
	fieldChunkIndex
	fieldChunkCount
	fieldPeerAddress
	fieldPeerPort
	fieldPeerList
	fieldChunkHashes
	fieldErrorText
	fieldBody
)

func presenceOf(h Header, hasBody bool) uint16 {
	var p uint16
	f := h.Fields
	if f.FileName != "" {
		p |= fieldFileName
	}
	if f.ChunkIndex != 0 {
		p |= fieldChunkIndex
	}
	if f.ChunkCount != 0 {
		p |= fieldChunkCount
	}
	if f.PeerAddress != "" {
		p |= fieldPeerAddress
	}
	if f.PeerPort != 0 {
		p |= fieldPeerPort
	}
	if f.PeerList != nil {
		p |= fieldPeerList
	}
	if f.ChunkHashes != nil {
		p |= fieldChunkHashes
	}
	if f.ErrorText != "" {
		p |= fieldErrorText
	}
	if hasBody {
		p |= fieldBody
	}
	return p
}

func putString(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

// Encode produces a single self-delimited frame for msg. The layout is a
// tagged record: three one-byte kind enums, a presence bitmask, then each
// populated field in a fixed order, then an optional body. It never
// executes code to decode, unlike an object-pickling format, and it never
// emits fields that weren't set.
func Encode(msg Message) ([]byte, error) {
	h := msg.Header
	hasBody := len(msg.Body) > 0
	if hasBody && len(msg.Body) > MaxBodySize {
		return nil, fmt.Errorf("wire: encode: %w: body is %d bytes", ErrSizeExceeded, len(msg.Body))
	}

	buf := make([]byte, 0, 64+len(msg.Body))
	buf = append(buf, byte(h.MessageKind), byte(h.CommandKind), byte(h.ControlKind))
	presence := presenceOf(h, hasBody)
	buf = binary.BigEndian.AppendUint16(buf, presence)

	f := h.Fields
	if presence&fieldFileName != 0 {
		buf = putString(buf, f.FileName)
	}
	if presence&fieldChunkIndex != 0 {
		buf = binary.BigEndian.AppendUint32(buf, f.ChunkIndex)
	}
	if presence&fieldChunkCount != 0 {
		buf = binary.BigEndian.AppendUint32(buf, f.ChunkCount)
	}
	if presence&fieldPeerAddress != 0 {
		buf = putString(buf, f.PeerAddress)
	}
	if presence&fieldPeerPort != 0 {
		buf = binary.BigEndian.AppendUint16(buf, f.PeerPort)
	}
	if presence&fieldPeerList != 0 {
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(f.PeerList)))
		for _, p := range f.PeerList {
			buf = putString(buf, p.Addr)
			buf = binary.BigEndian.AppendUint16(buf, p.Port)
		}
	}
	if presence&fieldChunkHashes != 0 {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(f.ChunkHashes)))
		for _, digest := range f.ChunkHashes {
			buf = append(buf, digest[:]...)
		}
	}
	if presence&fieldErrorText != 0 {
		buf = putString(buf, f.ErrorText)
	}
	if presence&fieldBody != 0 {
		buf = binary.BigEndian.AppendUint32(buf, uint32(len(msg.Body)))
		buf = append(buf, msg.Body...)
	}
	return buf, nil
}

type decoder struct {
	buf []byte
	off int
}

func (d *decoder) need(n int) error {
	if d.off+n > len(d.buf) {
		return ErrParse
	}
	return nil
}

func (d *decoder) byte() (byte, error) {
	if err := d.need(1); err != nil {
		return 0, err
	}
	b := d.buf[d.off]
	d.off++
	return b, nil
}

func (d *decoder) uint16() (uint16, error) {
	if err := d.need(2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(d.buf[d.off:])
	d.off += 2
	return v, nil
}

func (d *decoder) uint32() (uint32, error) {
	if err := d.need(4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v, nil
}

func (d *decoder) string() (string, error) {
	n, err := d.uint16()
	if err != nil {
		return "", err
	}
	if err := d.need(int(n)); err != nil {
		return "", err
	}
	s := string(d.buf[d.off : d.off+int(n)])
	d.off += int(n)
	return s, nil
}

func (d *decoder) bytes(n int) ([]byte, error) {
	if err := d.need(n); err != nil {
		return nil, err
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

// Decode reverses Encode. It fails with ErrParse on truncation, ErrUnknownKind
// on an enum ordinal this codec doesn't recognise, and ErrSizeExceeded on a
// body larger than MaxBodySize.
func Decode(data []byte) (Message, error) {
	d := &decoder{buf: data}

	mk, err := d.byte()
	if err != nil {
		return Message{}, err
	}
	ck, err := d.byte()
	if err != nil {
		return Message{}, err
	}
	clk, err := d.byte()
	if err != nil {
		return Message{}, err
	}
	if MessageKind(mk) > MessageControl || CommandKind(ck) > CommandBecomeSeeder || ControlKind(clk) > ControlChunkHashes {
		return Message{}, ErrUnknownKind
	}

	presence, err := d.uint16()
	if err != nil {
		return Message{}, err
	}

	var f Fields
	if presence&fieldFileName != 0 {
		if f.FileName, err = d.string(); err != nil {
			return Message{}, err
		}
	}
	if presence&fieldChunkIndex != 0 {
		if f.ChunkIndex, err = d.uint32(); err != nil {
			return Message{}, err
		}
	}
	if presence&fieldChunkCount != 0 {
		if f.ChunkCount, err = d.uint32(); err != nil {
			return Message{}, err
		}
	}
	if presence&fieldPeerAddress != 0 {
		if f.PeerAddress, err = d.string(); err != nil {
			return Message{}, err
		}
	}
	if presence&fieldPeerPort != 0 {
		if f.PeerPort, err = d.uint16(); err != nil {
			return Message{}, err
		}
	}
	if presence&fieldPeerList != 0 {
		count, err := d.uint16()
		if err != nil {
			return Message{}, err
		}
		f.PeerList = make([]PeerAddr, count)
		for i := range f.PeerList {
			addr, err := d.string()
			if err != nil {
				return Message{}, err
			}
			port, err := d.uint16()
			if err != nil {
				return Message{}, err
			}
			f.PeerList[i] = PeerAddr{Addr: addr, Port: port}
		}
	}
	if presence&fieldChunkHashes != 0 {
		count, err := d.uint32()
		if err != nil {
			return Message{}, err
		}
		if uint64(count)*32 > uint64(MaxBodySize) {
			return Message{}, ErrSizeExceeded
		}
		f.ChunkHashes = make([][32]byte, count)
		for i := range f.ChunkHashes {
			raw, err := d.bytes(32)
			if err != nil {
				return Message{}, err
			}
			copy(f.ChunkHashes[i][:], raw)
		}
	}
	if presence&fieldErrorText != 0 {
		if f.ErrorText, err = d.string(); err != nil {
			return Message{}, err
		}
	}

	msg := Message{Header: Header{MessageKind: MessageKind(mk), CommandKind: CommandKind(ck), ControlKind: ControlKind(clk), Fields: f}}
	if presence&fieldBody != 0 {
		n, err := d.uint32()
		if err != nil {
			return Message{}, err
		}
		if n > MaxBodySize {
			return Message{}, fmt.Errorf("wire: decode: %w: body claims %d bytes", ErrSizeExceeded, n)
		}
		body, err := d.bytes(int(n))
		if err != nil {
			return Message{}, err
		}
		msg.Body = append([]byte(nil), body...)
	}
	if d.off != len(d.buf) {
		return Message{}, ErrParse
	}
	return msg, nil
}
