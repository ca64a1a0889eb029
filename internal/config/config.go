// Package config loads and validates the collector's HCL configuration:
// rotation/retention policy, the category-enable set, and the admin API's
// listen address.
package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2/hclsimple"

	"github.com/dbaudit/collector/internal/collector"
	"github.com/dbaudit/collector/internal/producer"
)

// Config is the top-level on-disk configuration, decoded directly with
// gohcl via hclsimple.DecodeFile.
type Config struct {
	Enabled bool `hcl:"enabled,optional" json:"enabled"`

	RotationAge  string `hcl:"rotation_age,optional" json:"rotation_age,omitempty"`
	RotationSize string `hcl:"rotation_size,optional" json:"rotation_size,omitempty"`
	SpaceLimit   string `hcl:"space_limit,optional" json:"space_limit,omitempty"`

	FileRemainThreshold int    `hcl:"file_remain_threshold,optional" json:"file_remain_threshold,omitempty"`
	RemainAge           string `hcl:"remain_age,optional" json:"remain_age,omitempty"`
	CleanupPolicy       string `hcl:"cleanup_policy,optional" json:"cleanup_policy,omitempty"`

	Categories *Categories `hcl:"categories,block" json:"categories,omitempty"`

	AdminAPI *AdminAPIConfig `hcl:"admin_api,block" json:"admin_api,omitempty"`

	Syslog *SyslogConfig `hcl:"syslog,block" json:"syslog,omitempty"`
}

// Categories is the decoded per-category enable set, one bool per
// spec.md §6 config key.
type Categories struct {
	Session        bool `hcl:"session,optional" json:"session"`
	ServerAction   bool `hcl:"server_action,optional" json:"server_action"`
	LockUser       bool `hcl:"lock_user,optional" json:"lock_user"`
	PrivilegeAdmin bool `hcl:"privilege_admin,optional" json:"privilege_admin"`
	UserViolation  bool `hcl:"user_violation,optional" json:"user_violation"`
	DDL            bool `hcl:"ddl,optional" json:"ddl"`
	DML            bool `hcl:"dml,optional" json:"dml"`
	DMLSelect      bool `hcl:"dml_select,optional" json:"dml_select"`
	Exec           bool `hcl:"exec,optional" json:"exec"`
	Copy           bool `hcl:"copy,optional" json:"copy"`
	Set            bool `hcl:"set,optional" json:"set"`
}

// AdminAPIConfig configures the query/delete/tail HTTP surface.
type AdminAPIConfig struct {
	ListenAddr string `hcl:"listen_addr,optional" json:"listen_addr,omitempty"`
	BearerToken string `hcl:"bearer_token,optional" json:"bearer_token,omitempty"`
}

// SyslogConfig configures forwarding collectord's own structured log
// output to a remote syslog server, independent of the audit archive
// itself (spec.md never covers this — it's an operational concern for
// running collectord, the same as rotation_age or the admin API).
type SyslogConfig struct {
	Enabled  bool   `hcl:"enabled,optional" json:"enabled"`
	Host     string `hcl:"host" json:"host"`
	Port     int    `hcl:"port,optional" json:"port,omitempty"`
	Protocol string `hcl:"protocol,optional" json:"protocol,omitempty"`
	Tag      string `hcl:"tag,optional" json:"tag,omitempty"`
	Facility int    `hcl:"facility,optional" json:"facility,omitempty"`
}

// defaults mirrors the original collector's GUC defaults (spec.md §6):
// size-based rotation at 10MB with no time-based rotation, a 1GB
// space_limit, a threshold of 10 remembered files, space-priority
// cleanup, and only the DDL and DML categories enabled.
func defaults() Config {
	return Config{
		Enabled:             true,
		RotationSize:        "10MB",
		SpaceLimit:          "1GB",
		FileRemainThreshold: 10,
		RemainAge:           "0s",
		CleanupPolicy:       "space",
		Categories:          &Categories{DDL: true, DML: true},
		AdminAPI:            &AdminAPIConfig{ListenAddr: "127.0.0.1:8032"},
	}
}

// Defaults returns the collector's built-in configuration, used when no
// config file is supplied at all.
func Defaults() Config {
	return defaults()
}

// Load reads and decodes the HCL file at path, applying defaults for any
// block the file omits entirely.
func Load(path string) (*Config, error) {
	cfg := defaults()
	// A categories block replaces the default set rather than merging into
	// it; the nil check below restores the defaults when the block is absent.
	cfg.Categories = nil
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if cfg.Categories == nil {
		cfg.Categories = defaults().Categories
	}
	if cfg.AdminAPI == nil {
		cfg.AdminAPI = defaults().AdminAPI
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the decoded durations/sizes parse and the enum fields
// hold a recognized value, matching the kind of GUC range checks the
// original collector's check_* hooks perform at ALTER SYSTEM SET time.
func (c *Config) Validate() error {
	if _, err := ParseDuration(c.RotationAge); err != nil {
		return fmt.Errorf("config: rotation_age: %w", err)
	}
	if _, err := ParseSize(c.RotationSize); err != nil {
		return fmt.Errorf("config: rotation_size: %w", err)
	}
	if _, err := ParseSize(c.SpaceLimit); err != nil {
		return fmt.Errorf("config: space_limit: %w", err)
	}
	if _, err := ParseDuration(c.RemainAge); err != nil {
		return fmt.Errorf("config: remain_age: %w", err)
	}
	switch c.CleanupPolicy {
	case "", "space", "time":
	default:
		return fmt.Errorf("config: cleanup_policy: unrecognized value %q (want \"space\" or \"time\")", c.CleanupPolicy)
	}
	if c.Syslog != nil && c.Syslog.Enabled && c.Syslog.Host == "" {
		return fmt.Errorf("config: syslog: host is required when enabled")
	}
	return nil
}

// RotationAgeDuration parses RotationAge, treating an empty string as
// "disabled" (a zero Duration), matching decideRotation's age<=0 check.
func (c *Config) RotationAgeDuration() time.Duration {
	d, _ := ParseDuration(c.RotationAge)
	return d
}

// RemainAgeDuration parses RemainAge the same way.
func (c *Config) RemainAgeDuration() time.Duration {
	d, _ := ParseDuration(c.RemainAge)
	return d
}

// RotationSizeBytes parses RotationSize, 0 meaning "no size-based trigger".
func (c *Config) RotationSizeBytes() int64 {
	n, _ := ParseSize(c.RotationSize)
	return n
}

// SpaceLimitBytes parses SpaceLimit, 0 meaning "no space_limit configured".
func (c *Config) SpaceLimitBytes() int64 {
	n, _ := ParseSize(c.SpaceLimit)
	return n
}

// SpacePriority reports whether cleanup_policy selects space-priority
// eviction over time-priority.
func (c *Config) SpacePriority() bool {
	return c.CleanupPolicy != "time"
}

// ToCollectorPolicy projects the decoded config onto the rotation/retention
// fields collector.Collector needs.
func (c *Config) ToCollectorPolicy() collector.Policy {
	return collector.Policy{
		Enabled:             c.Enabled,
		RotationAge:         c.RotationAgeDuration(),
		RotationSize:        c.RotationSizeBytes(),
		SpaceLimit:          c.SpaceLimitBytes(),
		FileRemainThreshold: uint32(c.FileRemainThreshold),
		RemainAge:           c.RemainAgeDuration(),
		SpacePriority:       c.SpacePriority(),
	}
}

// ToProducerPolicy projects the decoded category-enable set onto the gate
// producer.Producer.Emit checks.
func (c *Config) ToProducerPolicy() producer.Policy {
	cat := c.Categories
	if cat == nil {
		cat = &Categories{}
	}
	return producer.Policy{
		Session:        cat.Session,
		ServerAction:   cat.ServerAction,
		LockUser:       cat.LockUser,
		PrivilegeAdmin: cat.PrivilegeAdmin,
		UserViolation:  cat.UserViolation,
		DDL:            cat.DDL,
		DML:            cat.DML,
		DMLSelect:      cat.DMLSelect,
		Exec:           cat.Exec,
		Copy:           cat.Copy,
		Set:            cat.Set,
	}
}
