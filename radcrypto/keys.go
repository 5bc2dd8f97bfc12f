// Package radcrypto implements the node identity and signature primitives
// used at the protocol layer: 32-byte Ed25519 verification keys canonicalized
// as base58-btc multibase strings, and detached signatures over the
// canonical encoding of protocol messages.
package radcrypto

import (
	"crypto/rand"

	"github.com/go-errors/errors"
	"github.com/multiformats/go-multibase"
	"golang.org/x/crypto/ed25519"
)

// NodeID is the 32-byte public verification key that identifies a node on
// the protocol layer. Equality and hashing operate on the raw bytes.
type NodeID [ed25519.PublicKeySize]byte

// NodeIDFromPublicKey copies an ed25519 public key into a NodeID, returning
// an error if the key is not the expected length.
func NodeIDFromPublicKey(pub ed25519.PublicKey) (NodeID, error) {
	var id NodeID
	if len(pub) != ed25519.PublicKeySize {
		return id, errors.Errorf("radcrypto: public key has %d bytes, "+
			"want %d", len(pub), ed25519.PublicKeySize)
	}
	copy(id[:], pub)
	return id, nil
}

// PublicKey returns the ed25519 public key view of this NodeID.
func (n NodeID) PublicKey() ed25519.PublicKey {
	return ed25519.PublicKey(n[:])
}

// String renders the NodeID in its canonical base58-btc multibase form.
func (n NodeID) String() string {
	s, err := multibase.Encode(multibase.Base58BTC, n[:])
	if err != nil {
		// Encoding a fixed 32-byte buffer never fails.
		panic(err)
	}
	return s
}

// ParseNodeID decodes the canonical base58-btc multibase string form of a
// NodeID, round-tripping with String.
func ParseNodeID(s string) (NodeID, error) {
	var id NodeID

	enc, data, err := multibase.Decode(s)
	if err != nil {
		return id, errors.Errorf("radcrypto: invalid node id %q: %v", s, err)
	}
	if enc != multibase.Base58BTC {
		return id, errors.Errorf("radcrypto: node id %q uses unsupported "+
			"multibase encoding %c", s, enc)
	}
	if len(data) != ed25519.PublicKeySize {
		return id, errors.Errorf("radcrypto: node id %q decodes to %d "+
			"bytes, want %d", s, len(data), ed25519.PublicKeySize)
	}
	copy(id[:], data)
	return id, nil
}

// Less gives NodeID a total order over its raw bytes, used for deterministic
// iteration of routing table seed sets.
func (n NodeID) Less(other NodeID) bool {
	for i := range n {
		if n[i] != other[i] {
			return n[i] < other[i]
		}
	}
	return false
}

// Signature is a detached Ed25519 signature.
type Signature [ed25519.SignatureSize]byte

// KeyPair is a node's long-term identity: the public key others verify
// against, and the secret key used to sign outgoing announcements.
type KeyPair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKeyPair creates a fresh random identity key pair.
func GenerateKeyPair() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Errorf("radcrypto: generate key pair: %v", err)
	}
	return &KeyPair{Public: pub, Private: priv}, nil
}

// KeyPairFromSeed reconstructs a KeyPair from a persisted Ed25519 seed (the
// private key's first SeedSize bytes), the form loadOrCreateIdentity
// persists to disk.
func KeyPairFromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errors.Errorf("radcrypto: key seed has %d bytes, want %d",
			len(seed), ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &KeyPair{Public: priv.Public().(ed25519.PublicKey), Private: priv}, nil
}

// Seed returns the private key's seed, the minimal form to persist to disk
// (KeyPairFromSeed reconstructs the full key pair from it).
func (kp *KeyPair) Seed() []byte {
	return kp.Private.Seed()
}

// NodeID returns the identity's canonical NodeID.
func (kp *KeyPair) NodeID() NodeID {
	id, err := NodeIDFromPublicKey(kp.Public)
	if err != nil {
		// kp.Public is always PublicKeySize by construction.
		panic(err)
	}
	return id
}

// Signer is implemented by anything that can produce detached signatures
// under a single node identity. Kept as an interface (rather than exposing
// *KeyPair everywhere) so tests can substitute deterministic signers.
type Signer interface {
	NodeID() NodeID
	Sign(msg []byte) Signature
}

// Sign produces a detached signature over msg using the key pair's secret
// key.
func (kp *KeyPair) Sign(msg []byte) Signature {
	var sig Signature
	copy(sig[:], ed25519.Sign(kp.Private, msg))
	return sig
}

// Verify checks that sig is a valid detached signature by id over msg.
func Verify(id NodeID, msg []byte, sig Signature) bool {
	return ed25519.Verify(id.PublicKey(), msg, sig[:])
}

var _ Signer = (*KeyPair)(nil)
