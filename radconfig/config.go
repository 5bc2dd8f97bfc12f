// Package radconfig parses the node's command-line and on-disk
// configuration, following the go-flags (github.com/jessevdk/go-flags)
// struct-tag convention lnd's own config layer uses.
package radconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	flags "github.com/jessevdk/go-flags"

	"github.com/radworks/radicle-node/radcrypto"
	"github.com/radworks/radicle-node/rwire"
)

const (
	defaultDataDir  = "data"
	defaultLogLevel = "info"

	// DefaultAnnounceInterval and friends mirror spec.md §4.1's scheduler
	// constants; they're exposed as overridable flags since the prune TTL
	// and seed-selection policy are better tuned per deployment than
	// hardcoded.
	DefaultIdleInterval     = 30 * time.Second
	DefaultAnnounceInterval = 30 * time.Second
	DefaultSyncInterval     = 60 * time.Second
	DefaultPruneInterval    = 30 * time.Minute

	// DefaultPruneTTL is how stale a routing entry may be before the
	// prune task removes it. spec.md §9 flags the exact TTL as an open
	// question; seven days matches the "don't prune healthy entries on
	// the announce cadence" guidance while still bounding growth.
	DefaultPruneTTL = 7 * 24 * time.Hour

	// DefaultMaxTimeDelta bounds acceptable clock skew on announcement
	// timestamps (spec.md §4.1, §8 property 8).
	DefaultMaxTimeDelta = 60 * time.Minute

	DefaultTargetOutboundPeers = 8
	DefaultMaxConnectionAttempts = 3
)

// Network selects the wire magic a node will accept, mirroring
// rwire.MagicMain / rwire.MagicTest.
type Network string

const (
	NetworkMain Network = "main"
	NetworkTest Network = "test"
)

// Magic returns the wire-level network tag for n.
func (n Network) Magic() (rwire.Magic, error) {
	switch n {
	case NetworkMain, "":
		return rwire.MagicMain, nil
	case NetworkTest:
		return rwire.MagicTest, nil
	default:
		return 0, fmt.Errorf("radconfig: unknown network %q", n)
	}
}

// Config is the full set of knobs a node process reads at startup. Fields
// carry go-flags struct tags so the same struct doubles as the CLI flag
// definition, the way lnd's top-level config does.
type Config struct {
	DataDir string `long:"datadir" description:"Directory to store project repositories and address book state"`
	LogDir  string `long:"logdir" description:"Log directory, created at startup (log output itself goes to stdout)"`
	LogLevel string `long:"debuglevel" description:"Logging level name, stored in the config (subsystem loggers run at info)" default:"info"`

	Network Network `long:"network" description:"Which network magic to accept (main or test)" default:"main"`

	ListenAddr string `long:"listen" description:"Add an address to listen on for peer connections" default:"0.0.0.0:8776"`

	Relay bool `long:"relay" description:"Relay announcements to other negotiated peers"`

	Seeds []string `long:"seed" description:"Address of a seed peer, stored in the config and not dialed by the daemon (may be given multiple times)"`

	Track []string `long:"track" description:"Project id to track and fetch on discovery (may be given multiple times)"`

	TargetOutboundPeers int `long:"target-outbound-peers" description:"Number of negotiated outbound peers to maintain" default:"8"`
	MaxConnectionAttempts int `long:"max-connection-attempts" description:"Maximum reconnection attempts for a persistent peer" default:"3"`

	IdleInterval     time.Duration `long:"idle-interval" description:"Interval between connection-maintenance task runs"`
	AnnounceInterval time.Duration `long:"announce-interval" description:"Interval between announce-task runs"`
	SyncInterval     time.Duration `long:"sync-interval" description:"Interval between sync-task runs"`
	PruneInterval    time.Duration `long:"prune-interval" description:"Interval between prune-task runs"`
	PruneTTL         time.Duration `long:"prune-ttl" description:"Age beyond which a routing entry is eligible for pruning"`
	MaxTimeDelta     time.Duration `long:"max-time-delta" description:"Maximum accepted clock skew on announcement timestamps"`

	KeyFile string `long:"keyfile" description:"Path to this node's Ed25519 private key, generated on first run if absent"`
}

// Load parses args (typically os.Args[1:]) into a Config, applying
// defaults for zero-valued durations the way lnd's loadConfig
// post-processes parsed flags.
func Load(args []string) (*Config, error) {
	cfg := &Config{}
	parser := flags.NewParser(cfg, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.DataDir == "" {
		c.DataDir = defaultDataDir
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
	if c.IdleInterval == 0 {
		c.IdleInterval = DefaultIdleInterval
	}
	if c.AnnounceInterval == 0 {
		c.AnnounceInterval = DefaultAnnounceInterval
	}
	if c.SyncInterval == 0 {
		c.SyncInterval = DefaultSyncInterval
	}
	if c.PruneInterval == 0 {
		c.PruneInterval = DefaultPruneInterval
	}
	if c.PruneTTL == 0 {
		c.PruneTTL = DefaultPruneTTL
	}
	if c.MaxTimeDelta == 0 {
		c.MaxTimeDelta = DefaultMaxTimeDelta
	}
	if c.TargetOutboundPeers == 0 {
		c.TargetOutboundPeers = DefaultTargetOutboundPeers
	}
	if c.MaxConnectionAttempts == 0 {
		c.MaxConnectionAttempts = DefaultMaxConnectionAttempts
	}
}

// RepoDir returns the directory project repositories are stored under.
func (c *Config) RepoDir() string {
	return filepath.Join(c.DataDir, "storage")
}

// ResolveKeyFile returns the configured key file path, defaulting to
// <datadir>/node.key.
func (c *Config) ResolveKeyFile() string {
	if c.KeyFile != "" {
		return c.KeyFile
	}
	return filepath.Join(c.DataDir, "node.key")
}

// TrackedProjects parses the --track flags into ProjectIds, skipping (and
// reporting) any malformed entries rather than failing startup outright.
func (c *Config) TrackedProjects() ([]radcrypto.ProjectID, []error) {
	var ids []radcrypto.ProjectID
	var errs []error
	for _, s := range c.Track {
		id, err := radcrypto.ParseProjectID(s)
		if err != nil {
			errs = append(errs, fmt.Errorf("radconfig: invalid --track value %q: %w", s, err))
			continue
		}
		ids = append(ids, id)
	}
	return ids, errs
}

// EnsureDataDir creates the data directory (and log directory, if set)
// before any subsystem tries to open files under them.
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir, 0o755); err != nil {
		return fmt.Errorf("radconfig: create data dir: %w", err)
	}
	if c.LogDir != "" {
		if err := os.MkdirAll(c.LogDir, 0o755); err != nil {
			return fmt.Errorf("radconfig: create log dir: %w", err)
		}
	}
	return nil
}
