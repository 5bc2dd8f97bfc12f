package rwire

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"

	"github.com/radworks/radicle-node/radcrypto"
)

// writeElement serializes a single field in its canonical on-the-wire form.
// Mirrors lnwire's own writeElement dispatch, generalized to this protocol's
// field types instead of lnwire's channel-graph types.
func writeElement(w io.Writer, element interface{}) error {
	switch e := element.(type) {
	case uint8:
		return binary.Write(w, binary.BigEndian, e)
	case uint16:
		return binary.Write(w, binary.BigEndian, e)
	case uint32:
		return binary.Write(w, binary.BigEndian, e)
	case uint64:
		return binary.Write(w, binary.BigEndian, e)
	case radcrypto.NodeID:
		_, err := w.Write(e[:])
		return err
	case radcrypto.ProjectID:
		_, err := w.Write(e[:])
		return err
	case radcrypto.Signature:
		_, err := w.Write(e[:])
		return err
	case []byte:
		if err := binary.Write(w, binary.BigEndian, uint32(len(e))); err != nil {
			return err
		}
		_, err := w.Write(e)
		return err
	case string:
		return writeElement(w, []byte(e))
	case []radcrypto.ProjectID:
		if err := binary.Write(w, binary.BigEndian, uint32(len(e))); err != nil {
			return err
		}
		for _, p := range e {
			if err := writeElement(w, p); err != nil {
				return err
			}
		}
		return nil
	case []Address:
		if err := binary.Write(w, binary.BigEndian, uint32(len(e))); err != nil {
			return err
		}
		for _, a := range e {
			if err := writeElement(w, a); err != nil {
				return err
			}
		}
		return nil
	case Address:
		ip4 := e.IP.To4()
		if ip4 != nil {
			if err := writeElement(w, uint8(4)); err != nil {
				return err
			}
			if _, err := w.Write(ip4); err != nil {
				return err
			}
		} else {
			if err := writeElement(w, uint8(6)); err != nil {
				return err
			}
			if _, err := w.Write(e.IP.To16()); err != nil {
				return err
			}
		}
		return writeElement(w, e.Port)
	case RefsMap:
		if err := binary.Write(w, binary.BigEndian, uint32(len(e))); err != nil {
			return err
		}
		for _, name := range e.sortedNames() {
			if err := writeElement(w, name); err != nil {
				return err
			}
			oid := e[name]
			if _, err := w.Write(oid[:]); err != nil {
				return err
			}
		}
		return nil
	case ObjectID:
		_, err := w.Write(e[:])
		return err
	default:
		return fmt.Errorf("rwire: unknown type %T in writeElement", e)
	}
}

func writeElements(w io.Writer, elements ...interface{}) error {
	for _, element := range elements {
		if err := writeElement(w, element); err != nil {
			return err
		}
	}
	return nil
}

func readElement(r io.Reader, element interface{}) error {
	switch e := element.(type) {
	case *uint8:
		return binary.Read(r, binary.BigEndian, e)
	case *uint16:
		return binary.Read(r, binary.BigEndian, e)
	case *uint32:
		return binary.Read(r, binary.BigEndian, e)
	case *uint64:
		return binary.Read(r, binary.BigEndian, e)
	case *radcrypto.NodeID:
		_, err := io.ReadFull(r, e[:])
		return err
	case *radcrypto.ProjectID:
		_, err := io.ReadFull(r, e[:])
		return err
	case *radcrypto.Signature:
		_, err := io.ReadFull(r, e[:])
		return err
	case *[]byte:
		var length uint32
		if err := binary.Read(r, binary.BigEndian, &length); err != nil {
			return err
		}
		if length > MaxMessagePayload {
			return fmt.Errorf("rwire: byte slice length %d exceeds max", length)
		}
		buf := make([]byte, length)
		if _, err := io.ReadFull(r, buf); err != nil {
			return err
		}
		*e = buf
		return nil
	case *string:
		var b []byte
		if err := readElement(r, &b); err != nil {
			return err
		}
		*e = string(b)
		return nil
	case *[]radcrypto.ProjectID:
		var count uint32
		if err := binary.Read(r, binary.BigEndian, &count); err != nil {
			return err
		}
		ids := make([]radcrypto.ProjectID, count)
		for i := range ids {
			if err := readElement(r, &ids[i]); err != nil {
				return err
			}
		}
		*e = ids
		return nil
	case *[]Address:
		var count uint32
		if err := binary.Read(r, binary.BigEndian, &count); err != nil {
			return err
		}
		addrs := make([]Address, count)
		for i := range addrs {
			if err := readElement(r, &addrs[i]); err != nil {
				return err
			}
		}
		*e = addrs
		return nil
	case *Address:
		var version uint8
		if err := readElement(r, &version); err != nil {
			return err
		}
		var ip net.IP
		switch version {
		case 4:
			ip = make(net.IP, 4)
		case 6:
			ip = make(net.IP, 16)
		default:
			return fmt.Errorf("rwire: unknown address version %d", version)
		}
		if _, err := io.ReadFull(r, ip); err != nil {
			return err
		}
		var port uint16
		if err := readElement(r, &port); err != nil {
			return err
		}
		e.IP = ip
		e.Port = port
		return nil
	case *RefsMap:
		var count uint32
		if err := binary.Read(r, binary.BigEndian, &count); err != nil {
			return err
		}
		m := make(RefsMap, count)
		for i := uint32(0); i < count; i++ {
			var name string
			if err := readElement(r, &name); err != nil {
				return err
			}
			var oid ObjectID
			if err := readElement(r, &oid); err != nil {
				return err
			}
			m[name] = oid
		}
		*e = m
		return nil
	case *ObjectID:
		_, err := io.ReadFull(r, e[:])
		return err
	default:
		return fmt.Errorf("rwire: unknown type %T in readElement", e)
	}
}

func readElements(r io.Reader, elements ...interface{}) error {
	for _, element := range elements {
		if err := readElement(r, element); err != nil {
			return err
		}
	}
	return nil
}
