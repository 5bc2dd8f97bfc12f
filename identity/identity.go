// Package identity declares the opaque, append-only identity document the
// core relies on but does not interpret, per spec.md §3 and §4.3. The core
// only ever calls Verified; how a Document represents its history (a chain
// of signed revisions, a CRDT, or anything else) is left entirely to the
// Storage capability that produced it.
package identity

import "github.com/radworks/radicle-node/radcrypto"

// Document is a remote's identity history. It is append-only; the core
// never mutates it directly.
type Document interface {
	// Verified reports whether this document passes its own local
	// consistency check for the given project. The core treats this as
	// a black box: no anti-entropy or consensus is performed over its
	// contents (spec.md §1 Non-goals).
	Verified(project radcrypto.ProjectID) bool
}

// MergeBaser is implemented by identity document histories whose canonical
// head can be selected across multiple remotes by walking merge bases
// (spec.md §4.3 "Canonical project identity").
type MergeBaser interface {
	Document

	// IsAncestorOf returns true if this document's head is itself an
	// ancestor of, or equal to, other's head.
	IsAncestorOf(other MergeBaser) (bool, error)
}

// SelectCanonical implements spec.md §4.3's merge-base walk across the
// identity documents held by a project's various remotes. It returns the
// single document that all others are ancestors of, or ErrBranchesDiverge
// if no such document exists.
func SelectCanonical(docs []MergeBaser) (MergeBaser, error) {
	if len(docs) == 0 {
		return nil, nil
	}

	longest := docs[0]
	for _, candidate := range docs[1:] {
		if candidate == longest {
			continue
		}

		candidateExtendsLongest, err := longest.IsAncestorOf(candidate)
		if err != nil {
			return nil, err
		}
		if candidateExtendsLongest {
			longest = candidate
			continue
		}

		longestExtendsCandidate, err := candidate.IsAncestorOf(longest)
		if err != nil {
			return nil, err
		}
		if longestExtendsCandidate {
			continue
		}

		return nil, ErrBranchesDiverge
	}

	return longest, nil
}
