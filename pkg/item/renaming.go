package item

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/arthur-debert/dotsync/pkg/errors"
)

// RenamingRule is an ordered pattern/substitution pair applied to
// destination path components. The substitution may reference numbered
// ($1) or named (${group}) captures of the pattern.
type RenamingRule struct {
	Pattern      *regexp.Regexp
	Substitution string
}

// NewRenamingRule compiles a renaming rule from its raw pattern
func NewRenamingRule(pattern, substitution string) (RenamingRule, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return RenamingRule{}, errors.Wrapf(err, errors.ErrParse,
			"invalid renaming pattern %q", pattern)
	}
	return RenamingRule{Pattern: re, Substitution: substitution}, nil
}

// Apply rewrites every component of the (relative) tail independently.
// A rule never merges or splits components; rules are folded in
// declared order, each rule's output feeding the next rule's input.
func (r RenamingRule) Apply(tail string) string {
	comps := strings.Split(tail, string(filepath.Separator))
	for i, comp := range comps {
		comps[i] = r.Pattern.ReplaceAllString(comp, r.Substitution)
	}
	return filepath.Join(comps...)
}
