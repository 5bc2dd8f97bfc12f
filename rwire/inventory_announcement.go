package rwire

import (
	"bytes"
	"io"

	"github.com/radworks/radicle-node/radcrypto"
)

// InventoryAnnouncementPayload is the signed content of an
// InventoryAnnouncement: the list of projects a node claims to host, and
// the time it made that claim.
type InventoryAnnouncementPayload struct {
	Inventory []radcrypto.ProjectID
	Timestamp uint64
}

// InventoryAnnouncement is a signed, timestamped statement of which
// projects a node currently hosts.
type InventoryAnnouncement struct {
	Node      radcrypto.NodeID
	Message   InventoryAnnouncementPayload
	Signature radcrypto.Signature
}

var _ Message = (*InventoryAnnouncement)(nil)

func (m *InventoryAnnouncement) MsgType() MessageType {
	return MsgInventoryAnnouncement
}

func (m *InventoryAnnouncement) MaxPayloadLength(uint32) uint32 {
	return MaxMessagePayload
}

// DataToSign returns the canonical encoding of Message.
func (m *InventoryAnnouncementPayload) DataToSign() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeElements(&buf, m.Inventory, m.Timestamp); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *InventoryAnnouncement) Encode(w io.Writer, pver uint32) error {
	data, err := m.Message.DataToSign()
	if err != nil {
		return err
	}
	return writeElements(w, m.Node, data, m.Signature)
}

func (m *InventoryAnnouncement) Decode(r io.Reader, pver uint32) error {
	var data []byte
	if err := readElements(r, &m.Node, &data, &m.Signature); err != nil {
		return err
	}
	br := bytes.NewReader(data)
	return readElements(br, &m.Message.Inventory, &m.Message.Timestamp)
}
