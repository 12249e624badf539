package sync

import (
	"bytes"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/arthur-debert/dotsync/pkg/config"
	"github.com/arthur-debert/dotsync/pkg/errors"
	"github.com/arthur-debert/dotsync/pkg/item"
)

// syncCopy writes an item's rendered content directly to its
// destination. Stale symlinks at the destination are never preserved.
func (e *Engine) syncCopy(group *config.SyncGroup, it item.Item) error {
	logger := e.logger.With().Str("group", group.Name).Str("source", it.String()).Logger()

	dest, err := it.MakeTarget(group.HostnameSep, group.BaseDir, group.Target, group.RenamingRules)
	if err != nil {
		return err
	}

	if info, statErr := os.Stat(dest); statErr == nil && info.IsDir() {
		if e.dryRun {
			logger.Error().Str("dest", dest).
				Msg("a directory occupies the destination file path; a real run would fail here")
			return nil
		}
		return errors.Newf(errors.ErrSyncing,
			"cannot sync %q: destination %q is a directory", it, dest)
	}

	destInfo, lstatErr := os.Lstat(dest)
	destExists := lstatErr == nil

	if destExists && !group.AllowOverwrite {
		logger.Warn().Str("dest", dest).
			Msg("destination exists and overwriting is disabled, skipping")
		return nil
	}

	wasSymlink := destExists && destInfo.Mode()&os.ModeSymlink != 0
	if wasSymlink {
		if e.dryRun {
			logger.Info().Str("dest", dest).Msg("would remove stale symlink")
		} else if err := os.Remove(dest); err != nil {
			return errors.Wrapf(err, errors.ErrIo, "failed to remove stale symlink %q", dest)
		}
	}

	content, err := e.registry.Render(it.String())
	if err != nil {
		return err
	}

	if e.dryRun && wasSymlink {
		// The real run always writes after dropping the symlink, so the
		// byte comparison below would report a stale no-op.
		logger.Info().Str("dest", dest).Msg("would write file")
		return nil
	}

	return e.updateFile(logger, dest, content)
}

// syncSymlink stages an item's rendered content under the staging area
// and points the destination symlink at the staged copy.
func (e *Engine) syncSymlink(group *config.SyncGroup, it item.Item) error {
	logger := e.logger.With().Str("group", group.Name).Str("source", it.String()).Logger()

	dest, err := it.MakeTarget(group.HostnameSep, group.BaseDir, group.Target, group.RenamingRules)
	if err != nil {
		return err
	}
	staging, err := e.stagingPath(group, it)
	if err != nil {
		return err
	}

	if info, statErr := os.Stat(dest); statErr == nil && info.IsDir() {
		if e.dryRun {
			logger.Error().Str("dest", dest).
				Msg("a directory occupies the destination file path; a real run would fail here")
			return nil
		}
		return errors.Newf(errors.ErrSyncing,
			"cannot sync %q: destination %q is a directory", it, dest)
	}

	// Neither the staging copy nor the destination symlink is touched
	// when overwriting is disabled and something already occupies the
	// destination.
	if _, lstatErr := os.Lstat(dest); lstatErr == nil && !group.AllowOverwrite {
		logger.Warn().Str("dest", dest).
			Msg("destination exists and overwriting is disabled, skipping")
		return nil
	}

	content, err := e.registry.Render(it.String())
	if err != nil {
		return err
	}
	if err := e.updateFile(logger, staging, content); err != nil {
		return err
	}

	if link, readErr := os.Readlink(dest); readErr == nil && link == staging {
		logger.Debug().Str("dest", dest).Msg("symlink already up to date")
		return nil
	}
	if e.dryRun {
		logger.Info().Str("dest", dest).Str("staging", staging).
			Msg("would symlink destination to staging path")
		return nil
	}

	if _, lstatErr := os.Lstat(dest); lstatErr == nil {
		if err := os.Remove(dest); err != nil {
			return errors.Wrapf(err, errors.ErrIo,
				"failed to remove %q before symlinking", dest)
		}
	}
	if err := os.MkdirAll(filepath.Dir(dest), dirPerm); err != nil {
		return errors.Wrapf(err, errors.ErrIo,
			"failed to create parent directory for %q", dest)
	}
	if err := os.Symlink(staging, dest); err != nil {
		return errors.Wrapf(err, errors.ErrSyncing,
			"failed to symlink %q -> %q", dest, staging)
	}

	logger.Info().Str("dest", dest).Str("staging", staging).
		Msg("symlinked destination to staging path")
	return nil
}

// updateFile writes content to path unless the current content already
// matches byte-for-byte. A failed write is retried once after removing
// the existing file, which handles read-only destinations.
func (e *Engine) updateFile(logger zerolog.Logger, path string, content []byte) error {
	if current, readErr := os.ReadFile(path); readErr == nil && bytes.Equal(current, content) {
		logger.Debug().Str("path", path).Msg("content up to date, nothing to write")
		return nil
	}

	if e.dryRun {
		logger.Info().Str("path", path).Int("bytes", len(content)).Msg("would write file")
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return errors.Wrapf(err, errors.ErrIo,
			"failed to create parent directory for %q", path)
	}

	if err := os.WriteFile(path, content, filePerm); err != nil {
		if rmErr := os.Remove(path); rmErr != nil {
			return errors.Wrapf(err, errors.ErrSyncing, "failed to write %q", path)
		}
		if err := os.WriteFile(path, content, filePerm); err != nil {
			return errors.Wrapf(err, errors.ErrSyncing,
				"failed to write %q after removing destination", path)
		}
	}

	logger.Info().Str("path", path).Int("bytes", len(content)).Msg("file written")
	return nil
}
