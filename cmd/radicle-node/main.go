package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	flags "github.com/jessevdk/go-flags"

	"github.com/radworks/radicle-node/radconfig"
	"github.com/radworks/radicle-node/radcrypto"
	"github.com/radworks/radicle-node/rlog"
	"github.com/radworks/radicle-node/service"
	"github.com/radworks/radicle-node/storage"
)

var nodeLog = rlog.NewSubsystem("NODE")

// radicleNodeMain is the true entry point; nested under main so deferred
// cleanup runs even when we return an error instead of calling os.Exit
// directly.
func radicleNodeMain() error {
	cfg, err := radconfig.Load(os.Args[1:])
	if err != nil {
		return err
	}
	if err := cfg.EnsureDataDir(); err != nil {
		return err
	}

	signer, err := loadOrCreateIdentity(cfg.ResolveKeyFile())
	if err != nil {
		return fmt.Errorf("load identity: %w", err)
	}
	nodeLog.Infof("node identity: %v", signer.NodeID())

	store, err := storage.NewGitStorage(cfg.RepoDir())
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}

	tracked, trackErrs := cfg.TrackedProjects()
	for _, e := range trackErrs {
		nodeLog.Warnf("%v", e)
	}

	ctx := service.NewContext(cfg, signer, store, service.NewSystemClock())
	for _, project := range tracked {
		ctx.Tracking.Track(project)
	}

	svc := service.New(ctx)
	svc.Initialize(time.Now())

	nodeLog.Infof("listening on %s, network=%s", cfg.ListenAddr, cfg.Network)

	// The reactor that dials addresses, performs framed socket I/O, and
	// feeds svc's Attempted/Connected/Disconnected/ReceivedMessage inputs
	// from its event loop is the external collaborator spec.md §1 scopes
	// out of the core; this binary wires the core up and hands control to
	// it, but does not implement a reactor itself.
	for _, directive := range ctx.DrainOutbox() {
		nodeLog.Debugf("startup directive: %#v", directive)
	}

	return nil
}

// loadOrCreateIdentity reads the node's Ed25519 key pair from path,
// generating and persisting a fresh one on first run.
func loadOrCreateIdentity(path string) (*radcrypto.KeyPair, error) {
	if data, err := os.ReadFile(path); err == nil {
		return radcrypto.KeyPairFromSeed(data)
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	kp, err := radcrypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if err := os.WriteFile(path, kp.Seed(), 0o600); err != nil {
		return nil, err
	}
	return kp, nil
}

func main() {
	if err := radicleNodeMain(); err != nil {
		if e, ok := err.(*flags.Error); ok && e.Type == flags.ErrHelp {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
