// Package template decides per item whether its content is rendered
// through the template engine and produces the bytes the sync engine
// writes. Rendered content is cached by item identity for the duration
// of a run; the cache is never persisted.
package template

import (
	"bytes"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	texttemplate "text/template"

	"github.com/Masterminds/sprig/v3"
	"github.com/gabriel-vasile/mimetype"

	"github.com/arthur-debert/dotsync/pkg/config"
	"github.com/arthur-debert/dotsync/pkg/errors"
	"github.com/arthur-debert/dotsync/pkg/item"
	"github.com/arthur-debert/dotsync/pkg/logging"
)

// classifyPrefixSize bounds how many bytes of a file are inspected by
// the text/binary heuristic
const classifyPrefixSize = 8 * 1024

// entry is the registry record for one item
type entry struct {
	raw      []byte
	tmpl     *texttemplate.Template // nil for passthrough content
	context  map[string]interface{}
	rendered []byte // populated on first render
}

// Registry classifies items, renders templated text items with a
// per-group context and caches the produced bytes under the item's
// absolute path.
type Registry struct {
	hostname string
	funcs    texttemplate.FuncMap
	entries  map[string]*entry
}

// NewRegistry creates a registry whose templates see the sprig function
// map plus helpers exposing the current OS username, UID and hostname.
// A generic conditional is available through sprig's ternary.
func NewRegistry(hostname string) *Registry {
	funcs := sprig.TxtFuncMap()
	funcs["username"] = currentUsername
	funcs["uid"] = func() string { return strconv.Itoa(os.Getuid()) }
	funcs["hostname"] = func() string { return hostname }

	return &Registry{
		hostname: hostname,
		funcs:    funcs,
		entries:  make(map[string]*entry),
	}
}

// LoadGroup walks a group's resolved sources and registers every file
// found, recursing into directories with the same ignore and host
// filtering the sync engine applies.
func (r *Registry) LoadGroup(group *config.SyncGroup) error {
	for _, source := range group.Sources {
		if err := r.loadPath(group, source); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) loadPath(group *config.SyncGroup, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return errors.Wrapf(err, errors.ErrIo, "cannot stat source %q", path)
	}

	if !info.IsDir() {
		return r.registerFile(group, path)
	}

	dirEntries, err := os.ReadDir(path)
	if err != nil {
		return errors.Wrapf(err, errors.ErrIo, "cannot read source directory %q", path)
	}
	for _, dirEntry := range dirEntries {
		child := filepath.Join(path, dirEntry.Name())
		if group.IsIgnored(dirEntry.Name()) {
			continue
		}
		otherHost, err := item.New(child).ForOtherHost(group.HostnameSep, r.hostname)
		if err != nil {
			return err
		}
		if otherHost {
			continue
		}
		if err := r.loadPath(group, child); err != nil {
			return err
		}
	}
	return nil
}

// registerFile reads and classifies one file. Text items of templated
// groups are parsed as templates under their absolute path; everything
// else is cached byte-for-byte.
func (r *Registry) registerFile(group *config.SyncGroup, path string) error {
	logger := logging.GetLogger("template.registry")

	raw, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrapf(err, errors.ErrIo, "cannot read source %q", path)
	}

	e := &entry{raw: raw, context: group.Context}

	if group.Templated && isTextContent(raw) {
		tmpl, err := texttemplate.New(path).Funcs(r.funcs).Parse(string(raw))
		if err != nil {
			return errors.Wrapf(err, errors.ErrTemplating,
				"failed to register template %q", path)
		}
		e.tmpl = tmpl
		logger.Trace().Str("item", path).Msg("registered template")
	} else {
		logger.Trace().Str("item", path).Bool("templated", group.Templated).
			Msg("registered passthrough content")
	}

	r.entries[path] = e
	return nil
}

// Render returns the bytes to write for the named item: the cached
// render of its template, or its raw content when it is not a
// template. An unknown name is a rendering error.
func (r *Registry) Render(name string) ([]byte, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, errors.Newf(errors.ErrRendering, "no content registered for %q", name)
	}
	if e.tmpl == nil {
		return e.raw, nil
	}
	if e.rendered != nil {
		return e.rendered, nil
	}
	return r.render(name, e)
}

// Update re-renders the named item and overwrites its cached bytes
func (r *Registry) Update(name string) ([]byte, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, errors.Newf(errors.ErrRendering, "no content registered for %q", name)
	}
	if e.tmpl == nil {
		return e.raw, nil
	}
	return r.render(name, e)
}

// Get fetches the cached bytes for the named item without re-rendering
func (r *Registry) Get(name string) ([]byte, error) {
	e, ok := r.entries[name]
	if !ok {
		return nil, errors.Newf(errors.ErrRendering, "no content registered for %q", name)
	}
	if e.rendered != nil {
		return e.rendered, nil
	}
	return e.raw, nil
}

func (r *Registry) render(name string, e *entry) ([]byte, error) {
	var buf bytes.Buffer
	if err := e.tmpl.Execute(&buf, e.context); err != nil {
		return nil, errors.Wrapf(err, errors.ErrRendering, "failed to render %q", name)
	}
	e.rendered = buf.Bytes()
	return e.rendered, nil
}

// isTextContent applies a printable-encoding heuristic to a bounded
// prefix of the content. Binary files are never treated as templates.
func isTextContent(data []byte) bool {
	if len(data) > classifyPrefixSize {
		data = data[:classifyPrefixSize]
	}
	for mtype := mimetype.Detect(data); mtype != nil; mtype = mtype.Parent() {
		if mtype.Is("text/plain") {
			return true
		}
	}
	return false
}

// currentUsername resolves the OS username, falling back to $USER
func currentUsername() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return os.Getenv("USER")
}
