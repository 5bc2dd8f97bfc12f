package rwire

import (
	"io"

	"github.com/radworks/radicle-node/radcrypto"
)

// ProjectFilter is a session-local declaration of which projects a peer
// wants relayed to it. A nil/empty filter means the session receives no
// relays (it must be stored explicitly to gate anything through).
type ProjectFilter struct {
	Projects map[radcrypto.ProjectID]struct{}
}

// NewProjectFilter builds a filter containing exactly the given projects.
func NewProjectFilter(ids ...radcrypto.ProjectID) ProjectFilter {
	f := ProjectFilter{Projects: make(map[radcrypto.ProjectID]struct{}, len(ids))}
	for _, id := range ids {
		f.Projects[id] = struct{}{}
	}
	return f
}

// Contains reports whether id is covered by this filter.
func (f ProjectFilter) Contains(id radcrypto.ProjectID) bool {
	if f.Projects == nil {
		return false
	}
	_, ok := f.Projects[id]
	return ok
}

func (f ProjectFilter) ids() []radcrypto.ProjectID {
	ids := make([]radcrypto.ProjectID, 0, len(f.Projects))
	for id := range f.Projects {
		ids = append(ids, id)
	}
	return ids
}

// Subscribe is an unsigned, session-local message that installs a project
// filter gating which relays the sender receives over the lifetime of the
// window [Since, Until).
type Subscribe struct {
	Filter ProjectFilter
	Since  uint64
	Until  uint64
}

var _ Message = (*Subscribe)(nil)

func (m *Subscribe) MsgType() MessageType { return MsgSubscribe }

func (m *Subscribe) MaxPayloadLength(uint32) uint32 {
	return MaxMessagePayload
}

func (m *Subscribe) Encode(w io.Writer, pver uint32) error {
	return writeElements(w, m.Filter.ids(), m.Since, m.Until)
}

func (m *Subscribe) Decode(r io.Reader, pver uint32) error {
	var ids []radcrypto.ProjectID
	if err := readElements(r, &ids, &m.Since, &m.Until); err != nil {
		return err
	}
	m.Filter = NewProjectFilter(ids...)
	return nil
}
