// Package signedrefs implements the storage-level encoding of spec.md §4.4:
// a remote's SignedRefs manifest is stored as a git blob (the canonical
// refname->oid encoding followed by the detached signature) referenced by
// the well-known signature ref refs/remotes/<node>/radicle/signature.
//
// It is a standalone package (rather than living in storage or verify)
// because both storage.GitStorage.SignRefs (the writer) and
// verify.Repository (the reader) need it, and storage additionally depends
// on both the fetch pipeline and verify — making storage the highest
// package in that chain.
package signedrefs

import (
	"fmt"
	"io"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/radworks/radicle-node/radcrypto"
	"github.com/radworks/radicle-node/rwire"
)

// SignedRefs is a remote's manifest of refname -> object id, paired with
// the detached signature over its canonical encoding.
type SignedRefs struct {
	Refs      rwire.RefsMap
	Signature radcrypto.Signature
}

// RefName is the well-known ref every remote's SignedRefs is stored under.
func RefName(node radcrypto.NodeID) plumbing.ReferenceName {
	return plumbing.ReferenceName(fmt.Sprintf("refs/remotes/%s/radicle/signature", node))
}

// RemotePrefix is the subtree of references owned by node within a
// project's repository.
func RemotePrefix(node radcrypto.NodeID) string {
	return fmt.Sprintf("refs/remotes/%s/", node)
}

// Write signs data's encoding is already done by the caller; Write stores
// the manifest bytes and signature as a blob and points node's signature
// ref at it.
func Write(repo *git.Repository, node radcrypto.NodeID, manifest []byte, sig radcrypto.Signature) error {
	obj := repo.Storer.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)

	w, err := obj.Writer()
	if err != nil {
		return err
	}
	if _, err := w.Write(manifest); err != nil {
		w.Close() //nolint:errcheck
		return err
	}
	if _, err := w.Write(sig[:]); err != nil {
		w.Close() //nolint:errcheck
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	hash, err := repo.Storer.SetEncodedObject(obj)
	if err != nil {
		return err
	}
	return repo.Storer.SetReference(plumbing.NewHashReference(RefName(node), hash))
}

// Read loads and parses a remote's SignedRefs manifest from its well-known
// signature ref.
func Read(repo *git.Repository, node radcrypto.NodeID) (*SignedRefs, error) {
	ref, err := repo.Reference(RefName(node), true)
	if err != nil {
		return nil, fmt.Errorf("signedrefs: signature ref for %s: %w", node, err)
	}

	blob, err := repo.BlobObject(ref.Hash())
	if err != nil {
		return nil, fmt.Errorf("signedrefs: signature blob for %s: %w", node, err)
	}

	r, err := blob.Reader()
	if err != nil {
		return nil, err
	}
	defer r.Close()

	buf := make([]byte, blob.Size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("signedrefs: read signature blob for %s: %w", node, err)
	}

	var zeroSig radcrypto.Signature
	sigLen := len(zeroSig)
	if len(buf) < sigLen {
		return nil, fmt.Errorf("signedrefs: signature blob for %s too short", node)
	}
	manifestBytes := buf[:len(buf)-sigLen]
	var sig radcrypto.Signature
	copy(sig[:], buf[len(buf)-sigLen:])

	refs, err := rwire.DecodeRefsMap(manifestBytes)
	if err != nil {
		return nil, fmt.Errorf("signedrefs: decode signed refs for %s: %w", node, err)
	}

	return &SignedRefs{Refs: refs, Signature: sig}, nil
}
