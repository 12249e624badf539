// Package sync applies a resolved configuration to the filesystem.
// Groups are processed sequentially in declared order, sources within a
// group in their resolved (sorted) order, and directory recursion is
// depth-first. The engine is fully synchronous; nothing is rolled back
// when a run is aborted partway.
package sync

import (
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/dotsync/pkg/config"
	"github.com/arthur-debert/dotsync/pkg/errors"
	"github.com/arthur-debert/dotsync/pkg/item"
	"github.com/arthur-debert/dotsync/pkg/logging"
	"github.com/arthur-debert/dotsync/pkg/template"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// Engine synchronizes the groups of a resolved configuration. In
// dry-run mode it computes the same destinations and staging paths but
// only logs what would happen.
type Engine struct {
	cfg      *config.ResolvedConfig
	registry *template.Registry
	hostname string
	dryRun   bool
	logger   zerolog.Logger
}

// NewEngine creates an engine over a resolved configuration and a
// loaded template registry
func NewEngine(cfg *config.ResolvedConfig, registry *template.Registry, hostname string, dryRun bool) *Engine {
	return &Engine{
		cfg:      cfg,
		registry: registry,
		hostname: hostname,
		dryRun:   dryRun,
		logger:   logging.GetLogger("sync.engine"),
	}
}

// Run synchronizes every group. The first unrecovered error aborts the
// remaining traversal; items already synchronized stay in their new
// state.
func (e *Engine) Run() error {
	for i := range e.cfg.Groups {
		group := &e.cfg.Groups[i]
		if err := e.syncGroup(group); err != nil {
			return err
		}
	}
	return nil
}

// syncGroup ensures the group's staging subdirectory exists when the
// symlink strategy is selected, then processes the group's sources in
// resolved order.
func (e *Engine) syncGroup(group *config.SyncGroup) error {
	logger := e.logger.With().
		Str("group", group.Name).
		Str("method", string(group.Method)).
		Bool("dryRun", e.dryRun).
		Logger()
	logger.Info().Int("sources", len(group.Sources)).Msg("synchronizing group")

	if group.Method == config.MethodSymlink {
		staging := group.StagingDir(e.cfg.StagingRoot)
		if e.dryRun {
			logger.Debug().Str("staging", staging).Msg("would ensure staging directory")
		} else if err := os.MkdirAll(staging, dirPerm); err != nil {
			return errors.Wrapf(err, errors.ErrIo,
				"failed to create staging directory %q", staging)
		}
	}

	for _, source := range group.Sources {
		if err := e.syncPath(group, item.New(source)); err != nil {
			return err
		}
	}
	return nil
}

// syncPath dispatches one source path to directory traversal or the
// group's leaf strategy
func (e *Engine) syncPath(group *config.SyncGroup, it item.Item) error {
	info, err := os.Stat(it.String())
	if err != nil {
		return errors.Wrapf(err, errors.ErrIo, "cannot stat source %q", it)
	}

	if info.IsDir() {
		return e.syncDirectory(group, it)
	}

	switch group.Method {
	case config.MethodCopy:
		return e.syncCopy(group, it)
	default:
		return e.syncSymlink(group, it)
	}
}

// syncDirectory creates the destination directory (and its staging
// counterpart for the symlink strategy) before descending, depth-first.
// In dry-run mode a missing directory stops the recursion: its eventual
// contents cannot be predicted without creating it.
func (e *Engine) syncDirectory(group *config.SyncGroup, it item.Item) error {
	logger := e.logger.With().Str("group", group.Name).Str("source", it.String()).Logger()

	dest, err := it.MakeTarget(group.HostnameSep, group.BaseDir, group.Target, group.RenamingRules)
	if err != nil {
		return err
	}

	if info, statErr := os.Stat(dest); statErr == nil {
		if !info.IsDir() {
			if e.dryRun {
				logger.Error().Str("dest", dest).
					Msg("a file occupies the destination directory path; a real run would fail here")
				return nil
			}
			return errors.Newf(errors.ErrSyncing,
				"a file exists at %q where a directory is required", dest)
		}
	} else {
		if e.dryRun {
			logger.Info().Str("dest", dest).
				Msg("would create directory (not recursing into it)")
			return nil
		}
		if err := os.MkdirAll(dest, dirPerm); err != nil {
			return errors.Wrapf(err, errors.ErrIo, "failed to create directory %q", dest)
		}
		if group.Method == config.MethodSymlink {
			staging, err := e.stagingPath(group, it)
			if err != nil {
				return err
			}
			if err := os.MkdirAll(staging, dirPerm); err != nil {
				return errors.Wrapf(err, errors.ErrIo,
					"failed to create staging directory %q", staging)
			}
		}
	}

	dirEntries, err := os.ReadDir(it.String())
	if err != nil {
		return errors.Wrapf(err, errors.ErrIo, "cannot read source directory %q", it)
	}
	for _, dirEntry := range dirEntries {
		if group.IsIgnored(dirEntry.Name()) {
			logger.Debug().Str("name", dirEntry.Name()).Msg("skipping ignored entry")
			continue
		}
		child := item.New(filepath.Join(it.String(), dirEntry.Name()))
		otherHost, err := child.ForOtherHost(group.HostnameSep, e.hostname)
		if err != nil {
			return err
		}
		if otherHost {
			logger.Debug().Str("name", dirEntry.Name()).Msg("skipping entry for another host")
			continue
		}
		if err := e.syncPath(group, child); err != nil {
			return err
		}
	}
	return nil
}

// stagingPath computes an item's path under the group's staging
// subdirectory, using the same resolution as the real destination
func (e *Engine) stagingPath(group *config.SyncGroup, it item.Item) (string, error) {
	return it.MakeTarget(group.HostnameSep, group.BaseDir,
		group.StagingDir(e.cfg.StagingRoot), group.RenamingRules)
}
