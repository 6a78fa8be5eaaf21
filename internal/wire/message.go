// Package wire implements the message format shared by the tracker, seeder
// and leecher roles: a header describing what kind of message this is, an
// open bag of named fields, and an optional opaque body for chunk payloads.
package wire

// MessageKind says whether a message is an outbound command, a carrier of
// raw chunk bytes, or a control response.
type MessageKind uint8

const (
	MessageUnknown MessageKind = iota
	MessageCommand
	MessageData
	MessageControl
)

// CommandKind identifies the request side of the protocol. Meaningful only
// when MessageKind == MessageCommand.
type CommandKind uint8

const (
	CommandNone CommandKind = iota
	CommandRegister
	CommandKeepalive
	CommandRequest
	CommandGet
	CommandGetCount
	CommandChunkHashes
	CommandBecomeSeeder
)

// ControlKind identifies the response side of the protocol. Meaningful only
// when MessageKind == MessageControl.
type ControlKind uint8

const (
	ControlNone ControlKind = iota
	ControlAck
	ControlError
	ControlPeerList
	ControlChunkData
	ControlChunkCount
	ControlChunkHashes
)

// PeerAddr is one entry of a PEER_LIST reply.
type PeerAddr struct {
	Addr string
	Port uint16
}

// Fields is the open bag of extension fields a header may carry. Only the
// fields relevant to a given (command_kind|control_kind) are populated; the
// rest are left at their zero value and are not put on the wire.
type Fields struct {
	FileName    string
	ChunkIndex  uint32
	ChunkCount  uint32
	PeerAddress string
	PeerPort    uint16
	PeerList    []PeerAddr
	ChunkHashes [][32]byte
	ErrorText   string
}

// Header is the fixed part of every message.
type Header struct {
	MessageKind MessageKind
	CommandKind CommandKind
	ControlKind ControlKind
	Fields      Fields
}

// Message is a (Header, Body?) pair. Body carries raw chunk bytes; the
// only message this implementation sends with a body is the
// CONTROL/CHUNK_DATA reply built by NewChunkData. Every other command and
// control message has a nil/empty body.
type Message struct {
	Header Header
	Body   []byte
}

// NewCommand builds a MessageCommand message with no body.
func NewCommand(kind CommandKind, fields Fields) Message {
	return Message{Header: Header{MessageKind: MessageCommand, CommandKind: kind, Fields: fields}}
}

// NewControl builds a MessageControl message with no body.
func NewControl(kind ControlKind, fields Fields) Message {
	return Message{Header: Header{MessageKind: MessageControl, ControlKind: kind, Fields: fields}}
}

// NewChunkData builds the CONTROL/CHUNK_DATA reply to a successful GET: a
// control message whose body carries the raw chunk bytes.
func NewChunkData(body []byte) Message {
	return Message{Header: Header{MessageKind: MessageControl, ControlKind: ControlChunkData}, Body: body}
}
