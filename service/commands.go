package service

import (
	"net"

	"github.com/radworks/radicle-node/fetch"
	"github.com/radworks/radicle-node/radcrypto"
	"github.com/radworks/radicle-node/rwire"
)

// FetchLookupKind is the outcome tag of a Fetch command (spec.md §4.1).
type FetchLookupKind int

const (
	// FetchNotTracking: the project is excluded by tracking policy.
	FetchNotTracking FetchLookupKind = iota
	// FetchNotFound: no seed advertises the project.
	FetchNotFound
	// FetchFound: at least one seed was attempted; Results carries one
	// FetchResult per seed.
	FetchFound
	// FetchError: the local storage.Open call failed.
	FetchError
)

// FetchResult is the per-seed outcome of a Fetch command attempt.
type FetchResult struct {
	Node   radcrypto.NodeID
	Report *fetch.Report
	Err    error
}

// FetchLookup is the reply to a Fetch command.
type FetchLookup struct {
	Kind    FetchLookupKind
	Seeds   []radcrypto.NodeID
	Results []FetchResult
	Err     error
}

// Connect enqueues an outbound connect directive for addr, the way an
// operator manually dials a known peer.
func (s *Service) Connect(addr net.Addr) {
	s.ctx.emit(Connect{Addr: addr.String()})
}

// Fetch looks up every known seed for project and, if tracking policy
// permits, attempts a fetch against each in turn, sequentially (spec.md §9
// permits but does not require fetch parallelism). This is one of the two
// operations the core is allowed to block on (spec.md §5).
func (s *Service) Fetch(project radcrypto.ProjectID) FetchLookup {
	if !s.ctx.Tracking.IsTracked(project) {
		return FetchLookup{Kind: FetchNotTracking}
	}

	seeds := s.ctx.Routing.Seeds(project)
	if len(seeds) == 0 {
		return FetchLookup{Kind: FetchNotFound}
	}

	if _, err := s.ctx.Storage.Open(project); err != nil {
		return FetchLookup{Kind: FetchError, Err: err}
	}

	results := make([]FetchResult, 0, len(seeds))
	for _, node := range seeds {
		sess, _, ok := s.ctx.Sessions.FindByNodeID(node)
		if !ok {
			results = append(results, FetchResult{Node: node, Err: errNotConnected(node)})
			continue
		}
		report, err := s.ctx.Storage.Fetch(project, sess.Negotiated.Git)
		results = append(results, FetchResult{Node: node, Report: report, Err: err})
	}

	return FetchLookup{Kind: FetchFound, Seeds: seeds, Results: results}
}

// Track adds project to the tracking policy. Returns true iff the policy
// changed, in which case the project is marked out-of-sync so the next
// announce-task run advertises it.
func (s *Service) Track(project radcrypto.ProjectID) bool {
	return s.ctx.Tracking.Track(project)
}

// Untrack removes project from the tracking policy. No network side
// effect; peers stop hearing about it by natural silence.
func (s *Service) Untrack(project radcrypto.ProjectID) bool {
	return s.ctx.Tracking.Untrack(project)
}

// AnnounceRefs builds a RefsAnnouncement from the local remote's current
// signed refs for project and broadcasts it, signed, to every negotiated
// peer.
func (s *Service) AnnounceRefs(project radcrypto.ProjectID) error {
	signed, err := s.ctx.Storage.SignRefs(project, s.ctx.Signer)
	if err != nil {
		return err
	}

	payload := rwire.RefsAnnouncementPayload{ID: project, Refs: signed.Refs}
	data, err := payload.DataToSign()
	if err != nil {
		return err
	}

	ann := &rwire.RefsAnnouncement{
		Node:      s.ctx.Signer.NodeID(),
		Message:   payload,
		Signature: s.ctx.Signer.Sign(data),
	}

	s.broadcast(ann, "")
	return nil
}

func errNotConnected(node radcrypto.NodeID) error {
	return &notConnectedError{node: node}
}

type notConnectedError struct {
	node radcrypto.NodeID
}

func (e *notConnectedError) Error() string {
	return "service: seed " + e.node.String() + " is not currently connected"
}
