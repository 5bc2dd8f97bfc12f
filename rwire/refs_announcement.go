package rwire

import (
	"bytes"
	"io"

	"github.com/radworks/radicle-node/radcrypto"
)

// RefsAnnouncementPayload is the signed content of a RefsAnnouncement: the
// project and its signer's current reference set.
type RefsAnnouncementPayload struct {
	ID   radcrypto.ProjectID
	Refs RefsMap
}

// RefsAnnouncement is a signed statement of a remote's current references
// for one project.
type RefsAnnouncement struct {
	Node      radcrypto.NodeID
	Message   RefsAnnouncementPayload
	Signature radcrypto.Signature
}

var _ Message = (*RefsAnnouncement)(nil)

func (m *RefsAnnouncement) MsgType() MessageType { return MsgRefsAnnouncement }

func (m *RefsAnnouncement) MaxPayloadLength(uint32) uint32 {
	return MaxMessagePayload
}

// DataToSign returns the canonical encoding of Message.
func (m *RefsAnnouncementPayload) DataToSign() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeElements(&buf, m.ID, m.Refs); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *RefsAnnouncement) Encode(w io.Writer, pver uint32) error {
	data, err := m.Message.DataToSign()
	if err != nil {
		return err
	}
	return writeElements(w, m.Node, data, m.Signature)
}

func (m *RefsAnnouncement) Decode(r io.Reader, pver uint32) error {
	var data []byte
	if err := readElements(r, &m.Node, &data, &m.Signature); err != nil {
		return err
	}
	br := bytes.NewReader(data)
	return readElements(br, &m.Message.ID, &m.Message.Refs)
}
