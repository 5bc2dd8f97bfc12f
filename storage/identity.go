package storage

import (
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/radworks/radicle-node/identity"
	"github.com/radworks/radicle-node/radcrypto"
	"github.com/radworks/radicle-node/signedrefs"
)

// identityRefSuffix is the branch a remote's identity history lives under,
// sibling to its other published heads (spec.md §4.3 "identity history"),
// grounded on original_source's own refs/remotes/<node>/heads/radicle/id
// convention.
const identityRefSuffix = "heads/radicle/id"

// gitIdentityDoc is the concrete identity.Document/identity.MergeBaser this
// module ships: a remote's identity history is just the commit ancestry of
// its radicle/id branch. The local consistency check (Verified) is that the
// branch exists and its tip resolves to a real commit; the core only ever
// sees this through the opaque identity.Document interface.
type gitIdentityDoc struct {
	repo *git.Repository
	head plumbing.Hash
}

// loadGitIdentity is the default verify.IdentityLoader for GitStorage. A
// remote that has never published an identity branch has no document to
// check, so it returns (nil, nil) rather than failing verification.
func loadGitIdentity(repo *git.Repository, node radcrypto.NodeID) (identity.Document, error) {
	refName := plumbing.ReferenceName(signedrefs.RemotePrefix(node) + identityRefSuffix)
	ref, err := repo.Reference(refName, true)
	if err != nil {
		if err == plumbing.ErrReferenceNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &gitIdentityDoc{repo: repo, head: ref.Hash()}, nil
}

func (d *gitIdentityDoc) Verified(project radcrypto.ProjectID) bool {
	if d.head == plumbing.ZeroHash {
		return false
	}
	_, err := d.repo.CommitObject(d.head)
	return err == nil
}

// IsAncestorOf reports whether d's head is an ancestor of, or equal to,
// other's head, by walking their merge base (spec.md §4.3 "Canonical
// project identity"). Only comparable against another gitIdentityDoc from
// the same repository.
func (d *gitIdentityDoc) IsAncestorOf(other identity.MergeBaser) (bool, error) {
	o, ok := other.(*gitIdentityDoc)
	if !ok {
		return false, &identityComparisonError{}
	}
	if d.head == o.head {
		return true, nil
	}

	mine, err := d.repo.CommitObject(d.head)
	if err != nil {
		return false, err
	}
	theirs, err := d.repo.CommitObject(o.head)
	if err != nil {
		return false, err
	}

	bases, err := d.repo.MergeBase(mine, theirs)
	if err != nil {
		return false, err
	}
	for _, base := range bases {
		if base.Hash == d.head {
			return true, nil
		}
	}
	return false, nil
}

type identityComparisonError struct{}

func (*identityComparisonError) Error() string {
	return "storage: cannot compare identity documents from different repositories"
}
