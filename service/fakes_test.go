package service_test

import (
	"sync"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/storage/memory"

	"github.com/radworks/radicle-node/fetch"
	"github.com/radworks/radicle-node/radcrypto"
	"github.com/radworks/radicle-node/rwire"
	"github.com/radworks/radicle-node/signedrefs"
)

// fakeStorage is an in-memory stand-in for storage.Storage, letting tests
// control Fetch's outcome without touching a real filesystem or git
// transport.
type fakeStorage struct {
	mu sync.Mutex

	inventory  []radcrypto.ProjectID
	openErr    error
	fetchErr   error
	fetchCalls []fakeFetchCall
	fetchReply *fetch.Report
}

type fakeFetchCall struct {
	Project radcrypto.ProjectID
	URL     rwire.GitURL
}

func (f *fakeStorage) Inventory() ([]radcrypto.ProjectID, error) {
	return f.inventory, nil
}

func (f *fakeStorage) Open(project radcrypto.ProjectID) (*git.Repository, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return git.Init(memory.NewStorage(), nil)
}

func (f *fakeStorage) Fetch(project radcrypto.ProjectID, url rwire.GitURL) (*fetch.Report, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchCalls = append(f.fetchCalls, fakeFetchCall{Project: project, URL: url})
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	if f.fetchReply != nil {
		return f.fetchReply, nil
	}
	return &fetch.Report{Project: project}, nil
}

func (f *fakeStorage) SignRefs(project radcrypto.ProjectID, signer radcrypto.Signer) (*signedrefs.SignedRefs, error) {
	refs := rwire.RefsMap{}
	data, err := refs.CanonicalEncode()
	if err != nil {
		return nil, err
	}
	return &signedrefs.SignedRefs{Refs: refs, Signature: signer.Sign(data)}, nil
}

// fakeClock is a manually-advanced Clock so scheduler tests don't depend on
// wall time.
type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }
