package identity

import "github.com/go-errors/errors"

// ErrBranchesDiverge is returned by SelectCanonical when a project's
// remotes hold identity histories that do not lie on a single ancestry
// chain.
var ErrBranchesDiverge = errors.New("identity: branches diverge")
