// Package routingtable tracks which node ids have advertised which
// projects. It never forges an entry: a node id appears for a project only
// after a validly signed InventoryAnnouncement from that node listed it.
package routingtable

import (
	"sort"
	"time"

	"github.com/radworks/radicle-node/radcrypto"
	"github.com/radworks/radicle-node/rlog"
)

var log = rlog.NewSubsystem("RTBL")

// entry pairs an advertising node with the last time it was seen
// advertising the project, used by Prune.
type entry struct {
	node     radcrypto.NodeID
	lastSeen time.Time
}

// Table maps ProjectID to the set of nodes that have advertised it.
type Table struct {
	rows map[radcrypto.ProjectID]map[radcrypto.NodeID]*entry
}

// New creates an empty routing table.
func New() *Table {
	return &Table{
		rows: make(map[radcrypto.ProjectID]map[radcrypto.NodeID]*entry),
	}
}

// Insert records that node advertised project at seenAt, creating the
// project's row if this is the first advertiser. Returns true if this is
// the first time this (project, node) pair has been seen.
func (t *Table) Insert(project radcrypto.ProjectID, node radcrypto.NodeID, seenAt time.Time) bool {
	row, ok := t.rows[project]
	if !ok {
		row = make(map[radcrypto.NodeID]*entry)
		t.rows[project] = row
	}

	e, existed := row[node]
	if !existed {
		row[node] = &entry{node: node, lastSeen: seenAt}
		log.Debugf("routing: new seed %v for project %v", node, project)
		return true
	}
	if seenAt.After(e.lastSeen) {
		e.lastSeen = seenAt
	}
	return false
}

// Seeds returns the nodes currently known to advertise project, in a
// deterministic order.
func (t *Table) Seeds(project radcrypto.ProjectID) []radcrypto.NodeID {
	row, ok := t.rows[project]
	if !ok {
		return nil
	}
	ids := make([]radcrypto.NodeID, 0, len(row))
	for id := range row {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Less(ids[j]) })
	return ids
}

// Has reports whether project has at least one known seed.
func (t *Table) Has(project radcrypto.ProjectID) bool {
	row, ok := t.rows[project]
	return ok && len(row) > 0
}

// Projects returns every project id currently tracked by the table.
func (t *Table) Projects() []radcrypto.ProjectID {
	ids := make([]radcrypto.ProjectID, 0, len(t.rows))
	for id := range t.rows {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].Compare(ids[j]) < 0 })
	return ids
}

// AdvertisesAny reports whether node has advertised any project this table
// is tracking, used to bias outbound connection selection.
func (t *Table) AdvertisesAny(node radcrypto.NodeID, projects []radcrypto.ProjectID) bool {
	for _, p := range projects {
		row, ok := t.rows[p]
		if !ok {
			continue
		}
		if _, ok := row[node]; ok {
			return true
		}
	}
	return false
}

// Prune removes entries whose last-seen timestamp is older than now.Add(-ttl).
// Returns the number of (project, node) entries removed. A project row left
// empty after pruning is removed entirely.
func (t *Table) Prune(now time.Time, ttl time.Duration) int {
	removed := 0
	cutoff := now.Add(-ttl)

	for project, row := range t.rows {
		for node, e := range row {
			if e.lastSeen.Before(cutoff) {
				delete(row, node)
				removed++
			}
		}
		if len(row) == 0 {
			delete(t.rows, project)
		}
	}

	if removed > 0 {
		log.Debugf("routing: pruned %d stale entries", removed)
	}
	return removed
}
