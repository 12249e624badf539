package config

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/arthur-debert/dotsync/pkg/errors"
	"github.com/arthur-debert/dotsync/pkg/item"
	"github.com/arthur-debert/dotsync/pkg/logging"
	"github.com/arthur-debert/dotsync/pkg/paths"
)

// Resolve validates a raw configuration and expands it into concrete
// sync groups, using the current machine's hostname for host-specific
// filtering.
func Resolve(raw *Raw) (*ResolvedConfig, error) {
	hostname, err := paths.Hostname()
	if err != nil {
		return nil, err
	}
	return ResolveWithHostname(raw, hostname)
}

// ResolveWithHostname is Resolve with an explicit hostname, used by
// tests to exercise host filtering deterministically.
func ResolveWithHostname(raw *Raw, hostname string) (*ResolvedConfig, error) {
	logger := logging.GetLogger("config.resolver")

	staging := raw.Global.Staging
	if staging == "" {
		staging = paths.DefaultStagingDir()
	}
	staging, err := paths.Normalize(staging)
	if err != nil {
		return nil, err
	}

	resolved := &ResolvedConfig{
		StagingRoot: staging,
		Groups:      make([]SyncGroup, 0, len(raw.Groups)),
	}

	seenNames := make(map[string]bool, len(raw.Groups))
	for i := range raw.Groups {
		rawGroup := &raw.Groups[i]

		if rawGroup.Name == "" {
			return nil, errors.New(errors.ErrConfig, "group has no name")
		}
		if strings.ContainsRune(rawGroup.Name, filepath.Separator) {
			return nil, errors.Newf(errors.ErrConfig,
				"group name %q contains a path separator", rawGroup.Name)
		}
		if seenNames[rawGroup.Name] {
			return nil, errors.Newf(errors.ErrConfig,
				"duplicate group name %q", rawGroup.Name)
		}
		seenNames[rawGroup.Name] = true

		group, err := resolveGroup(rawGroup, &raw.Global, hostname)
		if err != nil {
			return nil, err
		}

		logger.Debug().
			Str("group", group.Name).
			Str("method", string(group.Method)).
			Int("sources", len(group.Sources)).
			Msg("group resolved")

		resolved.Groups = append(resolved.Groups, *group)
	}

	return resolved, nil
}

// resolveGroup validates one group and expands its source patterns
func resolveGroup(rawGroup *RawGroup, global *RawGlobal, hostname string) (*SyncGroup, error) {
	method, err := ParseMethod(override(rawGroup.Method, global.Method))
	if err != nil {
		return nil, err
	}

	hostnameSep := override(rawGroup.HostnameSep, global.HostnameSep)

	allowOverwrite := global.AllowOverwrite
	if rawGroup.AllowOverwrite != nil {
		allowOverwrite = *rawGroup.AllowOverwrite
	}

	for _, ignored := range rawGroup.Ignored {
		if strings.ContainsRune(ignored, filepath.Separator) {
			return nil, errors.Newf(errors.ErrConfig,
				"group %q: ignore pattern %q contains a path separator",
				rawGroup.Name, ignored)
		}
	}

	for _, pattern := range rawGroup.Sources {
		if err := ValidateSourcePattern(pattern); err != nil {
			return nil, errors.Wrapf(err, errors.ErrConfig,
				"group %q: invalid source", rawGroup.Name)
		}
	}

	target, err := paths.Normalize(rawGroup.Target)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(target); err == nil && !info.IsDir() {
		return nil, errors.Newf(errors.ErrConfig,
			"group %q: target %q exists and is not a directory", rawGroup.Name, target)
	}

	baseDir := rawGroup.BaseDir
	if baseDir == "" {
		baseDir = "."
	}
	baseDir, err = paths.Normalize(baseDir)
	if err != nil {
		return nil, err
	}

	rules := make([]item.RenamingRule, 0, len(rawGroup.RenamingRules))
	for _, rawRule := range rawGroup.RenamingRules {
		rule, err := item.NewRenamingRule(rawRule.Pattern, rawRule.Substitution)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}

	group := &SyncGroup{
		Name:           rawGroup.Name,
		BaseDir:        baseDir,
		Target:         target,
		Ignored:        rawGroup.Ignored,
		RenamingRules:  rules,
		Method:         method,
		AllowOverwrite: allowOverwrite,
		HostnameSep:    hostnameSep,
		Templated:      rawGroup.Templated,
		Context:        rawGroup.Context,
	}

	sources, err := expandSources(group, rawGroup.Sources, hostname)
	if err != nil {
		return nil, err
	}
	group.Sources = sources

	return group, nil
}

// expandSources glob-expands a group's source patterns against its
// basedir, drops ignored and other-host items, deduplicates and sorts.
// The sort guarantees reproducible processing order regardless of
// directory-read order.
func expandSources(group *SyncGroup, patterns []string, hostname string) ([]string, error) {
	seen := make(map[string]bool)
	sources := make([]string, 0, len(patterns))

	for _, pattern := range patterns {
		expanded := paths.ExpandHome(pattern)
		if !filepath.IsAbs(expanded) {
			expanded = filepath.Join(group.BaseDir, expanded)
		}

		matches, err := ExpandGlob(expanded)
		if err != nil {
			return nil, errors.Wrapf(err, errors.GetErrorCode(err),
				"group %q: source %q", group.Name, pattern)
		}

		for _, match := range matches {
			keep, err := keepSource(group, match, hostname)
			if err != nil {
				return nil, err
			}
			if !keep || seen[match] {
				continue
			}
			seen[match] = true
			sources = append(sources, match)
		}
	}

	sort.Strings(sources)
	return sources, nil
}

// keepSource decides whether an expanded path belongs to the group:
// it is dropped when any component below basedir equals an ignore
// string, or when it is host-specific for a different host.
func keepSource(group *SyncGroup, path, hostname string) (bool, error) {
	for _, comp := range tailComponents(group.BaseDir, path) {
		if group.IsIgnored(comp) {
			return false, nil
		}
	}

	otherHost, err := item.New(path).ForOtherHost(group.HostnameSep, hostname)
	if err != nil {
		return false, errors.Wrapf(err, errors.ErrConfig, "group %q", group.Name)
	}
	return !otherHost, nil
}

// tailComponents returns the path components below baseDir, or just the
// basename when the path is not under baseDir.
func tailComponents(baseDir, path string) []string {
	rel, err := filepath.Rel(baseDir, path)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return []string{filepath.Base(path)}
	}
	return strings.Split(rel, string(filepath.Separator))
}

func override(groupValue *string, globalValue string) string {
	if groupValue != nil && *groupValue != "" {
		return *groupValue
	}
	return globalValue
}
