package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/arthur-debert/dotsync/pkg/errors"
)

// globMetaChars are the characters that make a pattern component
// non-literal under doublestar syntax
const globMetaChars = `*?[{\`

func hasGlobMeta(comp string) bool {
	return strings.ContainsAny(comp, globMetaChars)
}

// ValidateSourcePattern rejects pattern components that match the
// current or parent directory markers. Under literal-leading-dot glob
// semantics ".*" matches the "." and ".." entries, which would expand
// a source above its intended root.
func ValidateSourcePattern(pattern string) error {
	for _, comp := range strings.Split(pattern, string(filepath.Separator)) {
		switch comp {
		case ".", "..", ".*":
			return errors.Newf(errors.ErrConfig,
				"source pattern %q contains forbidden component %q", pattern, comp)
		}
	}
	return nil
}

// ExpandGlob returns the existing paths matching an absolute glob
// pattern. Matching is case-sensitive, path separators are literal,
// and a leading dot is literal: a wildcard never matches a name
// starting with ".", only a pattern component that itself begins with
// "." does. Expansion order is filesystem-dependent; callers sort.
func ExpandGlob(pattern string) ([]string, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, errors.Newf(errors.ErrParse, "malformed glob pattern %q", pattern)
	}

	comps := strings.Split(filepath.Clean(pattern), string(filepath.Separator))
	if len(comps) == 0 || comps[0] != "" {
		return nil, errors.Newf(errors.ErrPath, "glob pattern %q is not absolute", pattern)
	}

	matches := []string{}
	walkGlob(string(filepath.Separator), comps[1:], &matches)
	return matches, nil
}

// walkGlob expands one pattern component at a time below prefix.
// Unreadable directories contribute no matches rather than failing the
// whole expansion.
func walkGlob(prefix string, comps []string, matches *[]string) {
	if len(comps) == 0 {
		if _, err := os.Lstat(prefix); err == nil {
			*matches = append(*matches, prefix)
		}
		return
	}

	comp := comps[0]
	rest := comps[1:]

	if comp == "**" {
		// Zero directories consumed, then descend one level keeping the
		// globstar. Hidden directories are never crossed by **.
		walkGlob(prefix, rest, matches)
		entries, err := os.ReadDir(prefix)
		if err != nil {
			return
		}
		for _, entry := range entries {
			if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
				continue
			}
			walkGlob(filepath.Join(prefix, entry.Name()), comps, matches)
		}
		return
	}

	if !hasGlobMeta(comp) {
		walkGlob(filepath.Join(prefix, comp), rest, matches)
		return
	}

	entries, err := os.ReadDir(prefix)
	if err != nil {
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(comp, ".") {
			continue
		}
		if ok, err := doublestar.Match(comp, name); err != nil || !ok {
			continue
		}
		walkGlob(filepath.Join(prefix, name), rest, matches)
	}
}
