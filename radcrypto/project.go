package radcrypto

import (
	"bytes"
	"encoding/hex"

	"github.com/go-errors/errors"
)

// ProjectIDSize is the width of a content-addressed project identifier.
const ProjectIDSize = 32

// ProjectID is an opaque, content-addressed identifier for a replicated
// project. It is stable, serializable, and total-orderable so it can be used
// as a routing table and address-selection key.
type ProjectID [ProjectIDSize]byte

// String renders the identifier as lowercase hex, the same textual form used
// by the content-addressed git objects a project's history is built from.
func (p ProjectID) String() string {
	return hex.EncodeToString(p[:])
}

// ParseProjectID decodes the hex textual form produced by String.
func ParseProjectID(s string) (ProjectID, error) {
	var id ProjectID

	b, err := hex.DecodeString(s)
	if err != nil {
		return id, errors.Errorf("radcrypto: invalid project id %q: %v", s, err)
	}
	if len(b) != ProjectIDSize {
		return id, errors.Errorf("radcrypto: project id %q decodes to %d "+
			"bytes, want %d", s, len(b), ProjectIDSize)
	}
	copy(id[:], b)
	return id, nil
}

// Compare gives ProjectID a total order, used when a routing table needs a
// deterministic iteration order over project keys.
func (p ProjectID) Compare(other ProjectID) int {
	return bytes.Compare(p[:], other[:])
}
