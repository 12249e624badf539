// Package config loads the raw TOML configuration and resolves it into
// concrete, validated sync groups. Resolution is all-or-nothing: the
// first group that fails validation or expansion aborts the whole run
// before any filesystem mutation.
package config

import (
	"path/filepath"
	"strings"

	"github.com/arthur-debert/dotsync/pkg/errors"
	"github.com/arthur-debert/dotsync/pkg/item"
)

// Method selects the synchronization strategy for a group
type Method string

const (
	// MethodCopy writes rendered content directly into the target
	MethodCopy Method = "copy"

	// MethodSymlink stages rendered content and symlinks the target to
	// the staged copy
	MethodSymlink Method = "symlink"
)

// ParseMethod parses a method name, case-insensitively
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(s) {
	case string(MethodCopy):
		return MethodCopy, nil
	case string(MethodSymlink):
		return MethodSymlink, nil
	default:
		return "", errors.Newf(errors.ErrConfig, "unknown method %q (expected %q or %q)",
			s, MethodCopy, MethodSymlink)
	}
}

// Raw is the deserialized configuration file, not yet validated
type Raw struct {
	Global RawGlobal  `koanf:"global"`
	Groups []RawGroup `koanf:"groups"`
}

// RawGlobal holds the defaults shared by all groups
type RawGlobal struct {
	Staging        string `koanf:"staging"`
	Method         string `koanf:"method"`
	AllowOverwrite bool   `koanf:"allow_overwrite"`
	HostnameSep    string `koanf:"hostname_sep"`
}

// RawGroup is one group section of the configuration file. Pointer
// fields are group-level overrides of the global defaults.
type RawGroup struct {
	Name           string                 `koanf:"name"`
	BaseDir        string                 `koanf:"basedir"`
	Sources        []string               `koanf:"sources"`
	Target         string                 `koanf:"target"`
	Ignored        []string               `koanf:"ignored"`
	RenamingRules  []RawRenamingRule      `koanf:"renaming_rules"`
	Method         *string                `koanf:"method"`
	AllowOverwrite *bool                  `koanf:"allow_overwrite"`
	HostnameSep    *string                `koanf:"hostname_sep"`
	Templated      bool                   `koanf:"templated"`
	Context        map[string]interface{} `koanf:"context"`
}

// RawRenamingRule is an uncompiled pattern/substitution pair
type RawRenamingRule struct {
	Pattern      string `koanf:"pattern"`
	Substitution string `koanf:"substitution"`
}

// SyncGroup is a validated, fully expanded group. Created once per run
// during resolution and immutable thereafter.
type SyncGroup struct {
	// Name is the unique group identifier, also used as the staging
	// subdirectory name
	Name string

	// BaseDir is the absolute common prefix stripped from source paths
	// before destination computation
	BaseDir string

	// Sources are absolute, glob-expanded, filtered, deduplicated paths
	// in lexicographic order
	Sources []string

	// Target is the absolute destination directory
	Target string

	// Ignored holds bare component names excluded from synchronization
	Ignored []string

	// RenamingRules are applied to destination tails in declared order
	RenamingRules []item.RenamingRule

	Method         Method
	AllowOverwrite bool
	HostnameSep    string

	// Templated marks items of this group as rendering candidates
	Templated bool

	// Context is shared by reference across all items in the group and
	// exposed to the template engine
	Context map[string]interface{}
}

// IsIgnored reports whether name matches one of the group's ignore
// strings. Matching is exact equality, never substring.
func (g *SyncGroup) IsIgnored(name string) bool {
	for _, ignored := range g.Ignored {
		if name == ignored {
			return true
		}
	}
	return false
}

// StagingDir returns the group's subdirectory under the staging root
func (g *SyncGroup) StagingDir(stagingRoot string) string {
	return filepath.Join(stagingRoot, g.Name)
}

// ResolvedConfig is the immutable result of configuration resolution
type ResolvedConfig struct {
	// StagingRoot is the absolute staging area root directory
	StagingRoot string

	// Groups are processed sequentially in declared order
	Groups []SyncGroup
}
