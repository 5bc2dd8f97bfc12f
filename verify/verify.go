// Package verify implements the SignedRefs verification algorithm of
// spec.md §4.3: every reference under a remote's subtree must match that
// remote's signed manifest exactly, and the remote's identity history must
// pass its own local consistency check.
package verify

import (
	"bytes"
	"fmt"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/radworks/radicle-node/identity"
	"github.com/radworks/radicle-node/radcrypto"
	"github.com/radworks/radicle-node/rlog"
	"github.com/radworks/radicle-node/signedrefs"
)

var log = rlog.NewSubsystem("VRFY")

// Error is the taxonomy of ways a repository can fail verification.
type Error struct {
	Kind Kind
	Node radcrypto.NodeID
	Ref  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("verify: %s (node=%s ref=%s): %v", e.Kind, e.Node, e.Ref, e.Err)
	}
	return fmt.Sprintf("verify: %s (node=%s ref=%s)", e.Kind, e.Node, e.Ref)
}

// Kind distinguishes the ways a repository can fail verification.
type Kind int

const (
	// InvalidRefTarget: a reference under a remote's subtree doesn't
	// match the remote's signed object id for that name.
	InvalidRefTarget Kind = iota
	// MissingRef: a signed entry has no corresponding reference in the
	// repository.
	MissingRef
	// BranchesDiverge: multiple remotes' identity histories don't lie on
	// a single ancestry chain.
	BranchesDiverge
	// IdentityInvalid: a remote's identity document failed its own
	// local consistency check.
	IdentityInvalid
	// BadSignature: a remote's SignedRefs signature doesn't verify.
	BadSignature
)

func (k Kind) String() string {
	switch k {
	case InvalidRefTarget:
		return "invalid ref target"
	case MissingRef:
		return "missing ref"
	case BranchesDiverge:
		return "branches diverge"
	case IdentityInvalid:
		return "identity invalid"
	case BadSignature:
		return "bad signature"
	default:
		return "unknown"
	}
}

// IdentityLoader resolves a remote's opaque identity document. Supplied by
// the caller (the Storage capability) since the core never interprets a
// document's internal representation.
type IdentityLoader func(repo *git.Repository, node radcrypto.NodeID) (identity.Document, error)

// Repository verifies every remote held by repo for project. A repository
// is valid iff all remotes are individually valid, and, when more than one
// remote carries an identity history that supports merge-base comparison,
// those histories all lie on a single ancestry chain (spec.md §4.3
// "Canonical project identity").
func Repository(repo *git.Repository, project radcrypto.ProjectID, loadIdentity IdentityLoader) error {
	remotes, err := discoverRemotes(repo)
	if err != nil {
		return err
	}

	var docs []identity.MergeBaser
	for _, node := range remotes {
		doc, err := verifyRemote(repo, project, node, loadIdentity)
		if err != nil {
			return err
		}
		if mb, ok := doc.(identity.MergeBaser); ok {
			docs = append(docs, mb)
		}
	}

	if _, err := identity.SelectCanonical(docs); err != nil {
		return &Error{Kind: BranchesDiverge, Err: err}
	}
	return nil
}

// discoverRemotes lists the distinct node ids that own a refs/remotes/<id>/
// subtree in repo.
func discoverRemotes(repo *git.Repository) ([]radcrypto.NodeID, error) {
	iter, err := repo.Storer.IterReferences()
	if err != nil {
		return nil, fmt.Errorf("verify: iter references: %w", err)
	}
	defer iter.Close()

	seen := make(map[radcrypto.NodeID]struct{})
	var remotes []radcrypto.NodeID

	const prefix = "refs/remotes/"
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		name := string(ref.Name())
		if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
			return nil
		}
		rest := name[len(prefix):]
		end := indexByte(rest, '/')
		if end < 0 {
			return nil
		}
		node, err := radcrypto.ParseNodeID(rest[:end])
		if err != nil {
			log.Warnf("verify: skipping malformed remote %q: %v", rest[:end], err)
			return nil
		}
		if _, ok := seen[node]; !ok {
			seen[node] = struct{}{}
			remotes = append(remotes, node)
		}
		return nil
	})
	return remotes, err
}

// allZero reports whether every byte in b is zero, used to confirm an
// ObjectID's padding beyond a shorter go-git Hash is untouched (see
// oidFromHash in the fetch package and objectIDFromHash in the storage
// package, which produce the encoding this decodes).
func allZero(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}

func indexByte(s string, b byte) int {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return i
		}
	}
	return -1
}

func verifyRemote(repo *git.Repository, project radcrypto.ProjectID, node radcrypto.NodeID, loadIdentity IdentityLoader) (identity.Document, error) {
	signed, err := signedrefs.Read(repo, node)
	if err != nil {
		return nil, &Error{Kind: MissingRef, Node: node, Err: err}
	}

	data, err := signed.Refs.CanonicalEncode()
	if err != nil {
		return nil, &Error{Kind: BadSignature, Node: node, Err: err}
	}
	if !radcrypto.Verify(node, data, signed.Signature) {
		return nil, &Error{Kind: BadSignature, Node: node}
	}

	prefix := signedrefs.RemotePrefix(node)
	signatureRef := signedrefs.RefName(node)

	seenInRepo := make(map[string]struct{})

	iter, err := repo.Storer.IterReferences()
	if err != nil {
		return nil, fmt.Errorf("verify: iter references: %w", err)
	}
	defer iter.Close()

	iterErr := iter.ForEach(func(ref *plumbing.Reference) error {
		name := string(ref.Name())
		if len(name) < len(prefix) || name[:len(prefix)] != prefix {
			return nil
		}
		if ref.Name() == signatureRef {
			return nil
		}

		seenInRepo[name] = struct{}{}

		oid, ok := signed.Refs[name]
		if !ok {
			return &Error{Kind: InvalidRefTarget, Node: node, Ref: name,
				Err: fmt.Errorf("not present in signed manifest")}
		}

		// Compared as raw bytes rather than through plumbing.Hash, since
		// oid is a 32-byte rwire.ObjectID and go-git's Hash type is
		// sized for its repository's own object format (20 bytes for
		// SHA-1); copying one into the other's fixed array would
		// silently truncate or zero-pad.
		refHash := ref.Hash()
		if !bytes.Equal(refHash[:], oid[:len(refHash)]) || !allZero(oid[len(refHash):]) {
			return &Error{Kind: InvalidRefTarget, Node: node, Ref: name}
		}
		return nil
	})
	if iterErr != nil {
		if verr, ok := iterErr.(*Error); ok {
			return nil, verr
		}
		return nil, iterErr
	}

	for name := range signed.Refs {
		if _, ok := seenInRepo[name]; !ok {
			return nil, &Error{Kind: MissingRef, Node: node, Ref: name}
		}
	}

	if loadIdentity == nil {
		return nil, nil
	}

	doc, err := loadIdentity(repo, node)
	if err != nil {
		return nil, &Error{Kind: IdentityInvalid, Node: node, Err: err}
	}
	if doc != nil && !doc.Verified(project) {
		return nil, &Error{Kind: IdentityInvalid, Node: node}
	}

	return doc, nil
}
