// Package storage implements the Storage capability the service core
// consumes: inventory, repository, fetch, and sign_refs, backed by
// content-addressed bare git repositories via go-git (the only git library
// present anywhere in the reference corpus, grounded on its use for bare
// repository creation in dolthub/dolt's git remote tests).
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/radworks/radicle-node/fetch"
	"github.com/radworks/radicle-node/radcrypto"
	"github.com/radworks/radicle-node/rlog"
	"github.com/radworks/radicle-node/rwire"
	"github.com/radworks/radicle-node/signedrefs"
	"github.com/radworks/radicle-node/verify"
)

var log = rlog.NewSubsystem("STOR")

// Storage is the capability the service core consumes. The core owns one
// Storage instance and never shares it (spec.md §5).
type Storage interface {
	// Inventory returns the project ids this node currently hosts.
	Inventory() ([]radcrypto.ProjectID, error)

	// Open returns the canonical bare repository for project, creating
	// it (empty) if it doesn't exist yet.
	Open(project radcrypto.ProjectID) (*git.Repository, error)

	// Fetch runs the staging-with-verify pipeline (spec.md §4.2) against
	// url, promoting into the canonical repository on success.
	Fetch(project radcrypto.ProjectID, url rwire.GitURL) (*fetch.Report, error)

	// SignRefs builds and persists this node's own SignedRefs manifest
	// for project, signed by signer. It is one of the two operations
	// spec.md §5 allows to block the core thread.
	SignRefs(project radcrypto.ProjectID, signer radcrypto.Signer) (*signedrefs.SignedRefs, error)
}

// GitStorage is the filesystem-backed Storage implementation: one bare
// repository directory per project under Root.
type GitStorage struct {
	Root string

	// LoadIdentity resolves a remote's identity document during
	// verification. NewGitStorage wires this to loadGitIdentity; left
	// nil, verification skips the identity check (spec.md §4.3's
	// IdentityInvalid case never fires).
	LoadIdentity verify.IdentityLoader
}

// NewGitStorage opens a storage rooted at dir, creating it if absent. The
// returned store's LoadIdentity is wired to the git-backed identity
// document in identity.go; callers that want a different identity scheme
// can overwrite the field after construction.
func NewGitStorage(dir string) (*GitStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("storage: create root %s: %w", dir, err)
	}
	return &GitStorage{Root: dir, LoadIdentity: loadGitIdentity}, nil
}

func (s *GitStorage) pathFor(project radcrypto.ProjectID) string {
	return filepath.Join(s.Root, project.String()+".git")
}

// Inventory lists every project directory present under Root.
func (s *GitStorage) Inventory() ([]radcrypto.ProjectID, error) {
	entries, err := os.ReadDir(s.Root)
	if err != nil {
		return nil, fmt.Errorf("storage: read root: %w", err)
	}

	var ids []radcrypto.ProjectID
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		const suffix = ".git"
		if filepath.Ext(name) != suffix {
			continue
		}
		hex := name[:len(name)-len(suffix)]
		id, err := radcrypto.ParseProjectID(hex)
		if err != nil {
			log.Warnf("storage: skipping unrecognized entry %s: %v", name, err)
			continue
		}
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })
	return ids, nil
}

// Open returns the canonical bare repository for project, creating an empty
// one if it doesn't exist yet.
func (s *GitStorage) Open(project radcrypto.ProjectID) (*git.Repository, error) {
	path := s.pathFor(project)

	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if err != git.ErrRepositoryNotExists {
		return nil, fmt.Errorf("storage: open %s: %w", path, err)
	}

	repo, err = git.PlainInit(path, true)
	if err != nil {
		return nil, fmt.Errorf("storage: init %s: %w", path, err)
	}
	return repo, nil
}

// Fetch runs the staging-with-verify pipeline for project against url.
func (s *GitStorage) Fetch(project radcrypto.ProjectID, url rwire.GitURL) (*fetch.Report, error) {
	canonicalPath := s.pathFor(project)
	if _, err := s.Open(project); err != nil {
		return nil, err
	}
	verifyFn := func(repo *git.Repository, project radcrypto.ProjectID) error {
		return verify.Repository(repo, project, s.LoadIdentity)
	}
	return fetch.Run(canonicalPath, project, url, verifyFn)
}

// SignRefs builds this node's SignedRefs manifest from the canonical
// repository's own refs/heads/* and refs/tags/* tree, signs it, and stores
// it under the node's own signature ref.
func (s *GitStorage) SignRefs(project radcrypto.ProjectID, signer radcrypto.Signer) (*signedrefs.SignedRefs, error) {
	repo, err := s.Open(project)
	if err != nil {
		return nil, err
	}

	refs := make(rwire.RefsMap)
	iter, err := repo.Storer.IterReferences()
	if err != nil {
		return nil, fmt.Errorf("storage: iter references: %w", err)
	}
	defer iter.Close()

	self := signer.NodeID()
	myPrefix := signedrefs.RemotePrefix(self)
	signatureRef := signedrefs.RefName(self)

	err = iter.ForEach(func(ref *plumbing.Reference) error {
		name := string(ref.Name())
		if ref.Name() == signatureRef {
			return nil
		}
		// Own local refs are re-published under our own remote
		// subtree so peers can replicate them the same way they
		// replicate any other remote.
		switch {
		case hasPrefix(name, "refs/heads/"), hasPrefix(name, "refs/tags/"):
			oid := objectIDFromHash(ref.Hash())
			refs[myPrefix+name[len("refs/"):]] = oid
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	data, err := refs.CanonicalEncode()
	if err != nil {
		return nil, fmt.Errorf("storage: encode signed refs: %w", err)
	}
	sig := signer.Sign(data)

	if err := signedrefs.Write(repo, self, data, sig); err != nil {
		return nil, err
	}

	return &signedrefs.SignedRefs{Refs: refs, Signature: sig}, nil
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

func objectIDFromHash(h plumbing.Hash) rwire.ObjectID {
	var oid rwire.ObjectID
	copy(oid[:], h[:])
	return oid
}
