package rwire

import (
	"io"

	"github.com/radworks/radicle-node/radcrypto"
)

// ProtocolVersion is the version advertised in every Initialize message.
const ProtocolVersion uint32 = 1

// DefaultListenPort is the node's default gossip listen port.
const DefaultListenPort uint16 = 8776

// Initialize is the unsigned handshake message a node sends to define
// itself to a newly connected peer: identity, protocol version, listen
// addresses, and the git url its projects are served from.
type Initialize struct {
	ID      radcrypto.NodeID
	Version uint32
	Listen  []Address
	Git     GitURL
}

var _ Message = (*Initialize)(nil)

func (m *Initialize) MsgType() MessageType { return MsgInitialize }

func (m *Initialize) MaxPayloadLength(uint32) uint32 {
	return MaxMessagePayload
}

func (m *Initialize) Encode(w io.Writer, pver uint32) error {
	return writeElements(w,
		m.ID,
		m.Version,
		m.Listen,
		string(m.Git),
	)
}

func (m *Initialize) Decode(r io.Reader, pver uint32) error {
	var git string
	if err := readElements(r,
		&m.ID,
		&m.Version,
		&m.Listen,
		&git,
	); err != nil {
		return err
	}
	m.Git = GitURL(git)
	return nil
}
