// Package rwire implements the wire envelope and typed message codec for
// the gossip protocol: a 4-byte magic, a 2-byte message type, and a
// per-message binary payload, in the style of lnwire's WriteMessage /
// ReadMessage framing.
package rwire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// MaxMessagePayload bounds a single message's payload regardless of any
// per-message limit, guarding against a peer claiming an absurd length.
const MaxMessagePayload = 1 << 20 // 1 MiB

// Magic identifies the network a message belongs to. A receiver must drop
// any envelope whose magic does not match its own configured network.
type Magic uint32

// The two networks this implementation is aware of.
const (
	MagicMain Magic = 0x5241444d // "RADM"
	MagicTest Magic = 0x52414454 // "RADT"
)

func (m Magic) String() string {
	switch m {
	case MagicMain:
		return "main"
	case MagicTest:
		return "test"
	default:
		return fmt.Sprintf("unknown(0x%08x)", uint32(m))
	}
}

// MessageType is the 2-byte big-endian type tag on every message payload.
type MessageType uint16

const (
	MsgInitialize            MessageType = 1
	MsgNodeAnnouncement      MessageType = 2
	MsgInventoryAnnouncement MessageType = 3
	MsgRefsAnnouncement      MessageType = 4
	MsgSubscribe             MessageType = 5
)

func (t MessageType) String() string {
	switch t {
	case MsgInitialize:
		return "Initialize"
	case MsgNodeAnnouncement:
		return "NodeAnnouncement"
	case MsgInventoryAnnouncement:
		return "InventoryAnnouncement"
	case MsgRefsAnnouncement:
		return "RefsAnnouncement"
	case MsgSubscribe:
		return "Subscribe"
	default:
		return fmt.Sprintf("unknown(%d)", uint16(t))
	}
}

// UnknownMessage is returned when a message type tag isn't recognized. A
// receiver tolerates this for forwards compatibility rather than treating it
// as a protocol violation.
type UnknownMessage struct {
	Type MessageType
}

func (u *UnknownMessage) Error() string {
	return fmt.Sprintf("rwire: unknown message type %v", u.Type)
}

// Message is implemented by every typed payload that can travel inside an
// Envelope.
type Message interface {
	Decode(r io.Reader, pver uint32) error
	Encode(w io.Writer, pver uint32) error
	MsgType() MessageType
	MaxPayloadLength(pver uint32) uint32
}

func makeEmptyMessage(t MessageType) (Message, error) {
	switch t {
	case MsgInitialize:
		return &Initialize{}, nil
	case MsgNodeAnnouncement:
		return &NodeAnnouncement{}, nil
	case MsgInventoryAnnouncement:
		return &InventoryAnnouncement{}, nil
	case MsgRefsAnnouncement:
		return &RefsAnnouncement{}, nil
	case MsgSubscribe:
		return &Subscribe{}, nil
	default:
		return nil, &UnknownMessage{Type: t}
	}
}

// Envelope wraps a typed Message with the network magic that gates it.
type Envelope struct {
	Magic Magic
	Msg   Message
}

// WriteEnvelope serializes env to w: magic, type tag, length, payload.
func WriteEnvelope(w io.Writer, env *Envelope, pver uint32) (int, error) {
	var bw bytes.Buffer
	if err := env.Msg.Encode(&bw, pver); err != nil {
		return 0, err
	}
	payload := bw.Bytes()

	if uint32(len(payload)) > MaxMessagePayload {
		return 0, fmt.Errorf("rwire: payload exceeds max message "+
			"size: %d > %d", len(payload), MaxMessagePayload)
	}
	maxLen := env.Msg.MaxPayloadLength(pver)
	if uint32(len(payload)) > maxLen {
		return 0, fmt.Errorf("rwire: %v payload of %d bytes exceeds "+
			"max of %d", env.Msg.MsgType(), len(payload), maxLen)
	}

	var hdr bytes.Buffer
	if err := binary.Write(&hdr, binary.BigEndian, uint32(env.Magic)); err != nil {
		return 0, err
	}
	if err := binary.Write(&hdr, binary.BigEndian, uint16(env.Msg.MsgType())); err != nil {
		return 0, err
	}
	if err := binary.Write(&hdr, binary.BigEndian, uint32(len(payload))); err != nil {
		return 0, err
	}

	n, err := w.Write(hdr.Bytes())
	if err != nil {
		return n, err
	}
	m, err := w.Write(payload)
	return n + m, err
}

// ReadEnvelope deserializes one Envelope from r.
func ReadEnvelope(r io.Reader, pver uint32) (*Envelope, int, error) {
	var hdr [10]byte
	n, err := io.ReadFull(r, hdr[:])
	if err != nil {
		return nil, n, err
	}

	magic := Magic(binary.BigEndian.Uint32(hdr[0:4]))
	msgType := MessageType(binary.BigEndian.Uint16(hdr[4:6]))
	length := binary.BigEndian.Uint32(hdr[6:10])

	if length > MaxMessagePayload {
		return nil, n, fmt.Errorf("rwire: advertised payload of %d "+
			"bytes exceeds max message size of %d", length,
			MaxMessagePayload)
	}

	msg, err := makeEmptyMessage(msgType)
	if err != nil {
		// Still consume the payload so the stream stays framed.
		io.CopyN(io.Discard, r, int64(length)) //nolint:errcheck
		return nil, n, err
	}

	maxLen := msg.MaxPayloadLength(pver)
	if length > maxLen {
		return nil, n, fmt.Errorf("rwire: %v payload of %d bytes "+
			"exceeds max of %d", msgType, length, maxLen)
	}

	payload := make([]byte, length)
	pn, err := io.ReadFull(r, payload)
	n += pn
	if err != nil {
		return nil, n, err
	}

	if err := msg.Decode(bytes.NewReader(payload), pver); err != nil {
		return nil, n, err
	}

	return &Envelope{Magic: magic, Msg: msg}, n, nil
}
