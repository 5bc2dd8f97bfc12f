package service

import "github.com/radworks/radicle-node/radcrypto"

// TrackingPolicy is the operator-controlled allow-list of projects this
// node replicates (spec.md §4.1 Track/Untrack). A project outside the
// policy is never fetched, regardless of what inventory announcements
// claim about it.
type TrackingPolicy struct {
	projects  map[radcrypto.ProjectID]struct{}
	outOfSync map[radcrypto.ProjectID]struct{}
}

// NewTrackingPolicy creates a policy tracking exactly the given projects.
func NewTrackingPolicy(initial ...radcrypto.ProjectID) *TrackingPolicy {
	p := &TrackingPolicy{
		projects:  make(map[radcrypto.ProjectID]struct{}),
		outOfSync: make(map[radcrypto.ProjectID]struct{}),
	}
	for _, id := range initial {
		p.projects[id] = struct{}{}
	}
	return p
}

// IsTracked reports whether project is in the allow-list.
func (p *TrackingPolicy) IsTracked(project radcrypto.ProjectID) bool {
	_, ok := p.projects[project]
	return ok
}

// Track adds project to the allow-list and marks it out-of-sync so the
// next announce-task run broadcasts an inventory update for it. Returns
// true iff the policy changed.
func (p *TrackingPolicy) Track(project radcrypto.ProjectID) bool {
	if p.IsTracked(project) {
		return false
	}
	p.projects[project] = struct{}{}
	p.outOfSync[project] = struct{}{}
	return true
}

// Untrack removes project from the allow-list. No network side effect;
// peers naturally stop hearing about it (spec.md §4.1).
func (p *TrackingPolicy) Untrack(project radcrypto.ProjectID) bool {
	if !p.IsTracked(project) {
		return false
	}
	delete(p.projects, project)
	delete(p.outOfSync, project)
	return true
}

// OutOfSync reports whether any tracked project currently needs an
// announce-task broadcast.
func (p *TrackingPolicy) OutOfSync() bool {
	return len(p.outOfSync) > 0
}

// ClearOutOfSync marks every project as freshly announced, called after
// the announce task broadcasts.
func (p *TrackingPolicy) ClearOutOfSync() {
	p.outOfSync = make(map[radcrypto.ProjectID]struct{})
}

// Projects returns every currently tracked project id.
func (p *TrackingPolicy) Projects() []radcrypto.ProjectID {
	ids := make([]radcrypto.ProjectID, 0, len(p.projects))
	for id := range p.projects {
		ids = append(ids, id)
	}
	return ids
}
