// Package config loads and validates the target registry: the ordered list
// of backup targets this maintenance host is responsible for, plus the
// run-wide maintenance settings.
//
// The registry is read once at process start and is immutable afterwards.
// It carries repository credentials, so the file must be private to the
// maintenance user; Load refuses group/world-readable registry files.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/marcus0x62/backuptools/pkg/buildinfo"
	"github.com/marcus0x62/backuptools/pkg/plog"
	"github.com/marcus0x62/backuptools/pkg/util"
)

// DefaultConfigFileName is the registry file name used when no explicit
// -config flag is given; it is looked up in the current working directory.
const DefaultConfigFileName = "backup-maint.yaml"

// DefaultFreshnessDays is the audit window applied when a target omits
// freshnessDays: at least one snapshot dated today or yesterday.
const DefaultFreshnessDays = 1

// BorgTarget describes one target's borg repository.
type BorgTarget struct {
	// Repository is the borg repository URL, e.g. "ssh://backup@vault:2222/srv/borg/db01".
	Repository string `yaml:"repository"`
	// Passphrase unlocks the repository keyfile. Injected via BORG_PASSPHRASE,
	// never via argv.
	Passphrase string `yaml:"passphrase"`
}

// ResticTarget describes one target's restic repository and the transport
// used to reach it.
type ResticTarget struct {
	// Repository is the restic repository URL, e.g. "sftp:backup@vault:/srv/restic/db01".
	Repository string `yaml:"repository"`
	// Password unlocks the repository. Injected via RESTIC_PASSWORD, never via argv.
	Password string `yaml:"password"`
	// SFTPCommand overrides the sftp transport invocation, e.g.
	// "ssh backup@vault -p 2222 -s sftp". Empty means restic's default.
	SFTPCommand string `yaml:"sftpCommand,omitempty"`
}

// Target is one registry entry: a source host whose two repositories are
// pruned, compacted, checked and audited together.
type Target struct {
	Name string `yaml:"name"`
	// Disabled skips the target entirely; it is logged as skipped and never
	// counts as an error.
	Disabled bool         `yaml:"disabled,omitempty"`
	Borg     BorgTarget   `yaml:"borg"`
	Restic   ResticTarget `yaml:"restic"`
	// FreshnessDays widens the audit window: a value of N accepts a snapshot
	// dated today or within the N prior calendar days. nil means
	// DefaultFreshnessDays; 0 is valid and means "today only".
	FreshnessDays *int `yaml:"freshnessDays,omitempty"`
}

// Freshness returns the effective audit window in days.
func (t *Target) Freshness() int {
	if t.FreshnessDays == nil {
		return DefaultFreshnessDays
	}
	return *t.FreshnessDays
}

// MaintenanceConfig holds run-wide knobs shared by all targets.
type MaintenanceConfig struct {
	// BorgBinary and ResticBinary name (or path) the engine executables.
	BorgBinary   string `yaml:"borgBinary"`
	ResticBinary string `yaml:"resticBinary"`
	// OperationTimeoutSeconds bounds each engine invocation so a hung
	// storage backend cannot stall the whole batch. 0 disables the timeout.
	OperationTimeoutSeconds int `yaml:"operationTimeoutSeconds"`
	// BorgFreshnessMarker and ResticFreshnessMarker are the substrings that
	// identify a snapshot-listing line in each engine's prune/forget output.
	// Only used by the textual fallback audit.
	BorgFreshnessMarker   string `yaml:"borgFreshnessMarker"`
	ResticFreshnessMarker string `yaml:"resticFreshnessMarker"`
	// LockPath is where the run-overlap lock file is created. Empty means
	// a file next to the registry.
	LockPath string `yaml:"lockPath,omitempty"`
}

// Config is the full registry file.
type Config struct {
	Version     string            `yaml:"version"`
	LogLevel    string            `yaml:"logLevel"`
	Maintenance MaintenanceConfig `yaml:"maintenance"`
	Targets     []Target          `yaml:"targets"`

	// Path is where the registry was loaded from. Never written back.
	Path string `yaml:"-"`
	// Verbose mirrors every reporter entry live instead of only flushing
	// error runs. Set from flags, not from the file.
	Verbose bool `yaml:"-"`
}

// NewDefault creates a Config with sensible defaults and no targets.
func NewDefault() Config {
	return Config{
		Version:  buildinfo.Version,
		LogLevel: "info",
		Maintenance: MaintenanceConfig{
			BorgBinary:              "borg",
			ResticBinary:            "restic",
			OperationTimeoutSeconds: 3600,
			BorgFreshnessMarker:     "Keeping archive",
			ResticFreshnessMarker:   "snapshot",
		},
	}
}

// Load reads and validates the registry at path. A missing registry is a
// hard error: no target-specific work can safely proceed without
// credentials, so the caller must fail the whole run before touching any
// repository.
func Load(path string) (Config, error) {
	expanded, err := util.ExpandPath(path)
	if err != nil {
		return Config{}, fmt.Errorf("could not expand registry path %s: %w", path, err)
	}
	absPath, err := filepath.Abs(expanded)
	if err != nil {
		return Config{}, fmt.Errorf("could not determine absolute path for registry %s: %w", path, err)
	}

	info, err := os.Stat(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return Config{}, fmt.Errorf("registry file %s does not exist", absPath)
		}
		return Config{}, fmt.Errorf("could not stat registry file %s: %w", absPath, err)
	}
	if runtime.GOOS != "windows" {
		if perms := info.Mode().Perm(); perms&0o077 != 0 {
			return Config{}, fmt.Errorf("registry file %s is group/world accessible (%04o); it holds credentials and must be 0600", absPath, perms)
		}
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return Config{}, fmt.Errorf("error reading registry file %s: %w", absPath, err)
	}

	plog.Info("Loading target registry", "path", absPath)
	// Start with default values, then overwrite with the file's content so
	// the registry stays resilient to missing fields.
	cfg := NewDefault()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("error parsing registry file %s: %w", absPath, err)
	}
	cfg.Path = absPath

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the registry for logical errors and inconsistencies.
func (c *Config) Validate() error {
	if len(c.Targets) == 0 {
		return fmt.Errorf("registry contains no targets")
	}
	if c.Maintenance.BorgBinary == "" {
		return fmt.Errorf("maintenance.borgBinary cannot be empty")
	}
	if c.Maintenance.ResticBinary == "" {
		return fmt.Errorf("maintenance.resticBinary cannot be empty")
	}
	if c.Maintenance.OperationTimeoutSeconds < 0 {
		return fmt.Errorf("maintenance.operationTimeoutSeconds cannot be negative")
	}
	if c.Maintenance.BorgFreshnessMarker == "" {
		return fmt.Errorf("maintenance.borgFreshnessMarker cannot be empty")
	}
	if c.Maintenance.ResticFreshnessMarker == "" {
		return fmt.Errorf("maintenance.resticFreshnessMarker cannot be empty")
	}

	seen := make(map[string]bool, len(c.Targets))
	for i := range c.Targets {
		t := &c.Targets[i]
		if t.Name == "" {
			return fmt.Errorf("target %d has no name", i)
		}
		if seen[t.Name] {
			return fmt.Errorf("duplicate target name %q", t.Name)
		}
		seen[t.Name] = true

		if t.Disabled {
			continue // Credentials may legitimately be absent for parked targets.
		}
		if t.Borg.Repository == "" {
			return fmt.Errorf("target %q: borg.repository cannot be empty", t.Name)
		}
		if t.Borg.Passphrase == "" {
			return fmt.Errorf("target %q: borg.passphrase cannot be empty", t.Name)
		}
		if t.Restic.Repository == "" {
			return fmt.Errorf("target %q: restic.repository cannot be empty", t.Name)
		}
		if t.Restic.Password == "" {
			return fmt.Errorf("target %q: restic.password cannot be empty", t.Name)
		}
		if t.FreshnessDays != nil && *t.FreshnessDays < 0 {
			return fmt.Errorf("target %q: freshnessDays cannot be negative", t.Name)
		}
	}
	return nil
}

// EffectiveLockPath returns the lock file location, defaulting to a dotfile
// next to the registry so concurrent runs against the same registry
// serialize on the same lock.
func (c *Config) EffectiveLockPath() string {
	if c.Maintenance.LockPath != "" {
		return c.Maintenance.LockPath
	}
	return filepath.Join(filepath.Dir(c.Path), ".~backup-maint.lock")
}

// Generate writes a commented default registry file to path. It refuses to
// overwrite an existing file unless force is set.
func Generate(path string, force bool) error {
	expanded, err := util.ExpandPath(path)
	if err != nil {
		return fmt.Errorf("could not expand path %s: %w", path, err)
	}
	absPath, err := filepath.Abs(expanded)
	if err != nil {
		return fmt.Errorf("could not determine absolute path for %s: %w", path, err)
	}
	if !force {
		if _, err := os.Stat(absPath); err == nil {
			return fmt.Errorf("registry file %s already exists (use -force to overwrite)", absPath)
		}
	}
	if err := os.MkdirAll(filepath.Dir(absPath), util.UserWritableDirPerms); err != nil {
		return fmt.Errorf("failed to create registry directory: %w", err)
	}
	if err := os.WriteFile(absPath, []byte(defaultRegistryTemplate), util.SecretFilePerms); err != nil {
		return fmt.Errorf("failed to write registry file: %w", err)
	}
	plog.Info("Successfully saved registry file", "path", absPath)
	return nil
}

// LogSummary prints a user-friendly summary of the loaded registry.
func (c *Config) LogSummary() {
	enabled := 0
	names := make([]string, 0, len(c.Targets))
	for i := range c.Targets {
		if !c.Targets[i].Disabled {
			enabled++
			names = append(names, c.Targets[i].Name)
		}
	}
	plog.Info("Registry loaded",
		"path", c.Path,
		"log_level", c.LogLevel,
		"targets", len(c.Targets),
		"enabled", enabled,
		"enabled_targets", strings.Join(names, ", "),
		"borg_binary", c.Maintenance.BorgBinary,
		"restic_binary", c.Maintenance.ResticBinary,
		"op_timeout_s", c.Maintenance.OperationTimeoutSeconds,
		"verbose", c.Verbose,
	)
}

const defaultRegistryTemplate = `# backup-maint target registry.
#
# This file holds repository credentials for the maintenance host. Keep it
# mode 0600 and owned by the maintenance user; Load refuses anything looser.

version: "` + "1" + `"
logLevel: info

maintenance:
  borgBinary: borg
  resticBinary: restic
  # Each engine invocation is killed after this many seconds and treated as
  # a failed operation. 0 disables the timeout.
  operationTimeoutSeconds: 3600
  # Substrings identifying snapshot-listing lines in prune/forget output.
  # Only used when the structured listing call is unavailable.
  borgFreshnessMarker: "Keeping archive"
  resticFreshnessMarker: "snapshot"

targets:
  - name: db01
    borg:
      repository: "ssh://backup@vault.example.net:2222/srv/borg/db01"
      passphrase: "CHANGE-ME"
    restic:
      repository: "sftp:backup@vault.example.net:/srv/restic/db01"
      password: "CHANGE-ME"
      sftpCommand: "ssh backup@vault.example.net -p 2222 -s sftp"
    # At least one snapshot dated today or within the prior N calendar days.
    freshnessDays: 1
`
