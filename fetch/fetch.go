// Package fetch implements the staging-with-verify replication pipeline of
// spec.md §4.2: a fetch never mutates the canonical repository with
// unverified content. A temporary staging clone receives the remote's
// objects first; only once verify.Repository accepts the staging clone are
// its refs promoted into the canonical repository.
package fetch

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/radworks/radicle-node/radcrypto"
	"github.com/radworks/radicle-node/rlog"
	"github.com/radworks/radicle-node/rwire"
)

var log = rlog.NewSubsystem("FTCH")

// refSpecPattern is the refspec every fetch in this pipeline uses: mirror
// refs/remotes/* in both directions without renaming.
const refSpecPattern = "refs/remotes/*:refs/remotes/*"

// RefUpdateKind classifies how a single reference's tip moved during
// promotion.
type RefUpdateKind int

const (
	RefCreated RefUpdateKind = iota
	RefUpdated
	RefDeleted
)

func (k RefUpdateKind) String() string {
	switch k {
	case RefCreated:
		return "created"
	case RefUpdated:
		return "updated"
	case RefDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// RefUpdate records one reference's tip movement as promoted from staging
// into the canonical repository.
type RefUpdate struct {
	Name   string
	Kind   RefUpdateKind
	OldOID *rwire.ObjectID
	NewOID *rwire.ObjectID
}

// Report is the outcome of a successful fetch: every ref update applied to
// the canonical repository.
type Report struct {
	Project radcrypto.ProjectID
	Updates []RefUpdate
}

// VerifyFunc runs spec.md §4.3 verification against a staging repository.
// Exposed as a parameter (rather than fetch importing verify directly) so
// tests can substitute a fake without standing up real signed refs; Run's
// production callers pass verify.Repository.
type VerifyFunc func(repo *git.Repository, project radcrypto.ProjectID) error

// Run executes the five-step pipeline described in spec.md §4.2 against the
// canonical bare repository at canonicalPath, fetching project from url.
// verifyFn defaults to a verifier that always succeeds if nil is passed;
// production callers must supply one.
func Run(canonicalPath string, project radcrypto.ProjectID, url rwire.GitURL, verifyFn VerifyFunc) (*Report, error) {
	before, err := snapshotRefs(canonicalPath)
	if err != nil {
		return nil, fmt.Errorf("fetch: snapshot canonical refs: %w", err)
	}

	stagingDir, err := os.MkdirTemp("", "radicle-staging-*")
	if err != nil {
		return nil, fmt.Errorf("fetch: create staging dir: %w", err)
	}
	defer os.RemoveAll(stagingDir) //nolint:errcheck

	staging, err := git.PlainInit(stagingDir, true)
	if err != nil {
		return nil, fmt.Errorf("fetch: init staging clone: %w", err)
	}

	if err := hardLinkObjects(canonicalPath, stagingDir); err != nil {
		log.Warnf("fetch: hard-link canonical objects into staging: %v "+
			"(continuing without the optimization)", err)
	}

	if _, err := staging.CreateRemote(&config.RemoteConfig{
		Name: "origin",
		URLs: []string{string(url)},
	}); err != nil {
		return nil, fmt.Errorf("fetch: add staging remote: %w", err)
	}

	fetchErr := staging.Fetch(&git.FetchOptions{
		RemoteName: "origin",
		RefSpecs:   []config.RefSpec{refSpecPattern},
		Prune:      false, // pruning off: no object may dangle before verification.
		Tags:       git.NoTags,
	})
	if fetchErr != nil && fetchErr != git.NoErrAlreadyUpToDate {
		return nil, fmt.Errorf("fetch: fetch from remote: %w", fetchErr)
	}

	if verifyFn != nil {
		if err := verifyFn(staging, project); err != nil {
			log.Infof("fetch: verification failed for project %s, "+
				"discarding staging clone: %v", project, err)
			return nil, err
		}
	}

	canonical, err := git.PlainOpen(canonicalPath)
	if err != nil {
		return nil, fmt.Errorf("fetch: open canonical repo: %w", err)
	}

	if _, err := canonical.CreateRemote(&config.RemoteConfig{
		Name: stagingRemoteName(project),
		URLs: []string{"file://" + stagingDir},
	}); err != nil && err != git.ErrRemoteExists {
		return nil, fmt.Errorf("fetch: add staging-as-remote on canonical: %w", err)
	}
	defer canonical.DeleteRemote(stagingRemoteName(project)) //nolint:errcheck

	promoteErr := canonical.Fetch(&git.FetchOptions{
		RemoteName: stagingRemoteName(project),
		RefSpecs:   []config.RefSpec{refSpecPattern},
		Prune:      true,
		Tags:       git.NoTags,
	})
	if promoteErr != nil && promoteErr != git.NoErrAlreadyUpToDate {
		return nil, fmt.Errorf("fetch: promote from staging: %w", promoteErr)
	}

	after, err := snapshotRefs(canonicalPath)
	if err != nil {
		return nil, fmt.Errorf("fetch: snapshot canonical refs after promotion: %w", err)
	}

	return &Report{Project: project, Updates: diffRefs(before, after)}, nil
}

func stagingRemoteName(project radcrypto.ProjectID) string {
	return "staging-" + project.String()[:12]
}

// snapshotRefs captures every reference name->hash in a bare repository,
// used to compute RefUpdate values since go-git's Fetch doesn't report a
// per-ref (old_oid, new_oid) callback on its own.
func snapshotRefs(path string) (map[string]plumbing.Hash, error) {
	repo, err := git.PlainOpen(path)
	if err != nil {
		if err == git.ErrRepositoryNotExists {
			return map[string]plumbing.Hash{}, nil
		}
		return nil, err
	}

	iter, err := repo.Storer.IterReferences()
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	snap := make(map[string]plumbing.Hash)
	err = iter.ForEach(func(ref *plumbing.Reference) error {
		if ref.Type() == plumbing.HashReference {
			snap[string(ref.Name())] = ref.Hash()
		}
		return nil
	})
	return snap, err
}

func diffRefs(before, after map[string]plumbing.Hash) []RefUpdate {
	var updates []RefUpdate

	for name, newHash := range after {
		oldHash, existed := before[name]
		switch {
		case !existed:
			newOID := oidFromHash(newHash)
			updates = append(updates, RefUpdate{Name: name, Kind: RefCreated, NewOID: &newOID})
		case oldHash != newHash:
			o, n := oidFromHash(oldHash), oidFromHash(newHash)
			updates = append(updates, RefUpdate{Name: name, Kind: RefUpdated, OldOID: &o, NewOID: &n})
		}
	}
	for name, oldHash := range before {
		if _, stillPresent := after[name]; !stillPresent {
			o := oidFromHash(oldHash)
			updates = append(updates, RefUpdate{Name: name, Kind: RefDeleted, OldOID: &o})
		}
	}
	return updates
}

func oidFromHash(h plumbing.Hash) rwire.ObjectID {
	var oid rwire.ObjectID
	copy(oid[:], h[:])
	return oid
}

// hardLinkObjects hard-links every loose and packed object file from the
// canonical repository's objects/ directory into the staging repository,
// an optional performance optimization (spec.md §4.2 step 1) that falls
// back silently to a plain fetch if the filesystem doesn't support it
// (e.g. staging lives on a different device).
func hardLinkObjects(canonicalPath, stagingPath string) error {
	srcObjects := filepath.Join(canonicalPath, "objects")
	dstObjects := filepath.Join(stagingPath, "objects")

	return filepath.Walk(srcObjects, func(srcFile string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(srcObjects, srcFile)
		if err != nil {
			return err
		}
		dstFile := filepath.Join(dstObjects, rel)

		if err := os.MkdirAll(filepath.Dir(dstFile), 0o755); err != nil {
			return err
		}
		if err := os.Link(srcFile, dstFile); err != nil {
			return copyFile(srcFile, dstFile)
		}
		return nil
	})
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
