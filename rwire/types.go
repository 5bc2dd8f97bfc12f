package rwire

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"net"
	"sort"

	"github.com/go-errors/errors"
)

// Address is the wire form of a peer's socket address, mirroring the
// net.Addr marshaling lnwire does for NodeAnnouncement addresses.
type Address struct {
	IP   net.IP
	Port uint16
}

func (a Address) String() string {
	return net.JoinHostPort(a.IP.String(), fmt.Sprintf("%d", a.Port))
}

// ObjectIDSize is the width of a content-addressed git object id as carried
// on the wire. It is wide enough for a SHA-256 object id; a 20-byte SHA-1
// hash from go-git is carried in the first 20 bytes with the remaining 12
// bytes zero.
const ObjectIDSize = 32

// ObjectID is a content-addressed object id: a git tree/commit/blob hash.
type ObjectID [ObjectIDSize]byte

func (o ObjectID) String() string {
	return hex.EncodeToString(o[:])
}

// ParseObjectID decodes the hex string form of an ObjectID.
func ParseObjectID(s string) (ObjectID, error) {
	var id ObjectID
	b, err := hex.DecodeString(s)
	if err != nil {
		return id, errors.Errorf("rwire: invalid object id %q: %v", s, err)
	}
	if len(b) != ObjectIDSize {
		return id, errors.Errorf("rwire: object id %q has %d bytes, want %d",
			s, len(b), ObjectIDSize)
	}
	copy(id[:], b)
	return id, nil
}

// RefsMap is a remote's manifest of refname -> object id, the payload a
// SignedRefs signature is computed over.
type RefsMap map[string]ObjectID

func (m RefsMap) sortedNames() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CanonicalEncode serializes m in sorted-key order so two equal maps always
// produce the same bytes, independent of map iteration order. This is the
// encoding a SignedRefs signature is computed and verified over.
func (m RefsMap) CanonicalEncode() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeElement(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeRefsMap parses the canonical encoding produced by CanonicalEncode.
func DecodeRefsMap(data []byte) (RefsMap, error) {
	var m RefsMap
	if err := readElement(bytes.NewReader(data), &m); err != nil {
		return nil, err
	}
	return m, nil
}

// GitURL is a git transport url of the form git://host:port/<project-id> or
// file:///path for staging fetches.
type GitURL string
