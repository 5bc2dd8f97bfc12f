package rwire

import (
	"bytes"
	"io"

	"github.com/radworks/radicle-node/radcrypto"
)

// aliasLen is the fixed width of a node's display alias, mirroring
// lnwire's own Alias 32-byte field.
const aliasLen = 32

// NodeAnnouncementPayload is the signed content of a NodeAnnouncement:
// everything except the node field and signature that bind it to an
// identity.
type NodeAnnouncementPayload struct {
	Features  uint64
	Timestamp uint64
	Alias     [aliasLen]byte
	Addresses []Address
}

// NodeAnnouncement advertises a node's presence and directory metadata.
// Current policy: the core verifies the signature but does not act on the
// content, reserving it for future directory features.
type NodeAnnouncement struct {
	Node      radcrypto.NodeID
	Message   NodeAnnouncementPayload
	Signature radcrypto.Signature
}

var _ Message = (*NodeAnnouncement)(nil)

func (m *NodeAnnouncement) MsgType() MessageType { return MsgNodeAnnouncement }

func (m *NodeAnnouncement) MaxPayloadLength(uint32) uint32 {
	return MaxMessagePayload
}

// DataToSign returns the canonical encoding of Message, the bytes a
// signature over this announcement is computed and verified against.
func (m *NodeAnnouncementPayload) DataToSign() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeElements(&buf,
		m.Features,
		m.Timestamp,
		m.Alias[:],
		m.Addresses,
	); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *NodeAnnouncement) Encode(w io.Writer, pver uint32) error {
	data, err := m.Message.DataToSign()
	if err != nil {
		return err
	}
	return writeElements(w, m.Node, data, m.Signature)
}

func (m *NodeAnnouncement) Decode(r io.Reader, pver uint32) error {
	var data []byte
	if err := readElements(r, &m.Node, &data, &m.Signature); err != nil {
		return err
	}
	return decodeNodeAnnouncementPayload(data, &m.Message)
}

func decodeNodeAnnouncementPayload(data []byte, out *NodeAnnouncementPayload) error {
	br := bytes.NewReader(data)
	var alias []byte
	if err := readElements(br,
		&out.Features,
		&out.Timestamp,
		&alias,
		&out.Addresses,
	); err != nil {
		return err
	}
	copy(out.Alias[:], alias)
	return nil
}
