// Package item models a single source path governed by a group's
// configuration: host-specific naming, renaming rules and destination
// computation. All functions here are pure; real and dry-run
// synchronization share them and therefore compute identical
// destinations.
package item

import (
	"path/filepath"
	"strings"

	"github.com/arthur-debert/dotsync/pkg/errors"
)

// Item is an absolute source path. Its identity is the path string.
type Item string

// New creates an Item from a path
func New(path string) Item {
	return Item(path)
}

// String returns the item's path
func (i Item) String() string {
	return string(i)
}

// HostSpecific reports whether the item's filename contains exactly one
// occurrence of hostnameSep. More than one occurrence makes the name
// ambiguous and is a hard error.
func (i Item) HostSpecific(hostnameSep string) (bool, error) {
	if hostnameSep == "" {
		return false, nil
	}
	name := filepath.Base(string(i))
	switch strings.Count(name, hostnameSep) {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, errors.Newf(errors.ErrConfig,
			"filename %q contains more than one occurrence of hostname separator %q",
			name, hostnameSep)
	}
}

// ForOtherHost reports whether the item is host-specific for a host
// other than hostname. The suffix comparison is case-sensitive and
// exact.
func (i Item) ForOtherHost(hostnameSep, hostname string) (bool, error) {
	hostSpecific, err := i.HostSpecific(hostnameSep)
	if err != nil {
		return false, err
	}
	if !hostSpecific {
		return false, nil
	}
	name := filepath.Base(string(i))
	suffix := name[strings.Index(name, hostnameSep)+len(hostnameSep):]
	return suffix != hostname, nil
}

// NonHostSpecific strips the host-specific suffix from every path
// component: each component keeps only the part before the first
// occurrence of hostnameSep.
func (i Item) NonHostSpecific(hostnameSep string) Item {
	if hostnameSep == "" || !strings.Contains(string(i), hostnameSep) {
		return i
	}
	sep := string(filepath.Separator)
	comps := strings.Split(string(i), sep)
	for idx, comp := range comps {
		if pos := strings.Index(comp, hostnameSep); pos >= 0 {
			comps[idx] = comp[:pos]
		}
	}
	return Item(strings.Join(comps, sep))
}

// MakeTarget computes the destination path for the item: strip the
// host-specific suffixes, strip the basedir prefix, fold the renaming
// rules over the remaining tail and join it onto targetBase. The
// staging path of the symlink strategy is computed with the same
// function, rooted at the group's staging directory instead.
func (i Item) MakeTarget(hostnameSep, basedir, targetBase string, rules []RenamingRule) (string, error) {
	stripped := string(i.NonHostSpecific(hostnameSep))
	strippedBase := string(Item(basedir).NonHostSpecific(hostnameSep))

	tail, err := filepath.Rel(strippedBase, stripped)
	if err != nil {
		return "", errors.Wrapf(err, errors.ErrPath,
			"item %q is not under basedir %q", i, basedir)
	}
	if tail == ".." || strings.HasPrefix(tail, ".."+string(filepath.Separator)) {
		return "", errors.Newf(errors.ErrPath,
			"item %q is not under basedir %q", i, basedir)
	}

	for _, rule := range rules {
		tail = rule.Apply(tail)
	}

	return filepath.Join(targetBase, tail), nil
}
