package sync

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arthur-debert/dotsync/pkg/config"
	"github.com/arthur-debert/dotsync/pkg/errors"
	"github.com/arthur-debert/dotsync/pkg/item"
	"github.com/arthur-debert/dotsync/pkg/template"
)

const testHost = "testhost"

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// fixture builds a single-group resolved configuration over temp dirs
type fixture struct {
	base    string
	target  string
	staging string
	cfg     *config.ResolvedConfig
}

func newFixture(t *testing.T, method config.Method, allowOverwrite bool) *fixture {
	t.Helper()
	f := &fixture{
		base:    t.TempDir(),
		target:  t.TempDir(),
		staging: t.TempDir(),
	}
	f.cfg = &config.ResolvedConfig{
		StagingRoot: f.staging,
		Groups: []config.SyncGroup{{
			Name:           "test",
			BaseDir:        f.base,
			Target:         f.target,
			Method:         method,
			AllowOverwrite: allowOverwrite,
			HostnameSep:    "@@",
		}},
	}
	return f
}

func (f *fixture) group() *config.SyncGroup {
	return &f.cfg.Groups[0]
}

// addSources re-resolves the group's source list from the base dir
func (f *fixture) addSources(paths ...string) {
	for _, p := range paths {
		f.group().Sources = append(f.group().Sources, filepath.Join(f.base, p))
	}
}

func runEngine(t *testing.T, cfg *config.ResolvedConfig, dryRun bool) error {
	t.Helper()
	registry := template.NewRegistry(testHost)
	for i := range cfg.Groups {
		require.NoError(t, registry.LoadGroup(&cfg.Groups[i]))
	}
	return NewEngine(cfg, registry, testHost, dryRun).Run()
}

func TestCopySingleFile(t *testing.T) {
	f := newFixture(t, config.MethodCopy, true)
	writeFile(t, filepath.Join(f.base, "a.txt"), "hello")
	f.addSources("a.txt")

	require.NoError(t, runEngine(t, f.cfg, false))

	content, err := os.ReadFile(filepath.Join(f.target, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))

	info, err := os.Lstat(filepath.Join(f.target, "a.txt"))
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())
}

func TestSymlinkSingleFile(t *testing.T) {
	f := newFixture(t, config.MethodSymlink, true)
	writeFile(t, filepath.Join(f.base, "a.txt"), "hello")
	f.addSources("a.txt")

	require.NoError(t, runEngine(t, f.cfg, false))

	dest := filepath.Join(f.target, "a.txt")
	staged := filepath.Join(f.staging, "test", "a.txt")

	link, err := os.Readlink(dest)
	require.NoError(t, err)
	assert.Equal(t, staged, link)

	content, err := os.ReadFile(staged)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))

	// Reading through the symlink resolves to the staged content
	through, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(through))
}

// A second run against an unchanged tree performs zero writes.
func TestCopyIdempotence(t *testing.T) {
	f := newFixture(t, config.MethodCopy, true)
	writeFile(t, filepath.Join(f.base, "a.txt"), "hello")
	f.addSources("a.txt")

	require.NoError(t, runEngine(t, f.cfg, false))
	first, err := os.Stat(filepath.Join(f.target, "a.txt"))
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, runEngine(t, f.cfg, false))

	second, err := os.Stat(filepath.Join(f.target, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, first.ModTime(), second.ModTime())
}

func TestSymlinkIdempotence(t *testing.T) {
	f := newFixture(t, config.MethodSymlink, true)
	writeFile(t, filepath.Join(f.base, "a.txt"), "hello")
	f.addSources("a.txt")

	require.NoError(t, runEngine(t, f.cfg, false))
	staged := filepath.Join(f.staging, "test", "a.txt")
	first, err := os.Stat(staged)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, runEngine(t, f.cfg, false))

	second, err := os.Stat(staged)
	require.NoError(t, err)
	assert.Equal(t, first.ModTime(), second.ModTime())

	link, err := os.Readlink(filepath.Join(f.target, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, staged, link)
}

func TestOverwriteGating(t *testing.T) {
	tests := []struct {
		name           string
		method         config.Method
		allowOverwrite bool
		expected       string
	}{
		{"copy gated", config.MethodCopy, false, "old"},
		{"copy overwrites", config.MethodCopy, true, "new"},
		{"symlink gated", config.MethodSymlink, false, "old"},
		{"symlink overwrites", config.MethodSymlink, true, "new"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.method, tt.allowOverwrite)
			writeFile(t, filepath.Join(f.base, "a.txt"), "new")
			writeFile(t, filepath.Join(f.target, "a.txt"), "old")
			f.addSources("a.txt")

			require.NoError(t, runEngine(t, f.cfg, false))

			content, err := os.ReadFile(filepath.Join(f.target, "a.txt"))
			require.NoError(t, err)
			assert.Equal(t, tt.expected, string(content))

			if !tt.allowOverwrite {
				// The gated destination stays a regular file
				info, err := os.Lstat(filepath.Join(f.target, "a.txt"))
				require.NoError(t, err)
				assert.True(t, info.Mode().IsRegular())
			}
		})
	}
}

// With overwriting disabled the gated symlink group must not touch
// staging either.
func TestSymlinkGatingLeavesStagingAlone(t *testing.T) {
	f := newFixture(t, config.MethodSymlink, false)
	writeFile(t, filepath.Join(f.base, "a.txt"), "new")
	writeFile(t, filepath.Join(f.target, "a.txt"), "old")
	f.addSources("a.txt")

	require.NoError(t, runEngine(t, f.cfg, false))

	_, err := os.Stat(filepath.Join(f.staging, "test", "a.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestCopyReplacesStaleSymlink(t *testing.T) {
	f := newFixture(t, config.MethodCopy, true)
	writeFile(t, filepath.Join(f.base, "a.txt"), "hello")
	writeFile(t, filepath.Join(f.base, "elsewhere"), "stale")
	require.NoError(t, os.Symlink(filepath.Join(f.base, "elsewhere"), filepath.Join(f.target, "a.txt")))
	f.addSources("a.txt")

	require.NoError(t, runEngine(t, f.cfg, false))

	info, err := os.Lstat(filepath.Join(f.target, "a.txt"))
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular(), "stale symlink must be replaced by a regular file")

	content, err := os.ReadFile(filepath.Join(f.target, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(content))
}

func TestCopyTypeConflict(t *testing.T) {
	f := newFixture(t, config.MethodCopy, true)
	writeFile(t, filepath.Join(f.base, "a.txt"), "hello")
	require.NoError(t, os.MkdirAll(filepath.Join(f.target, "a.txt"), 0o755))
	f.addSources("a.txt")

	err := runEngine(t, f.cfg, false)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrSyncing))
}

func TestDirectoryTypeConflict(t *testing.T) {
	f := newFixture(t, config.MethodCopy, true)
	writeFile(t, filepath.Join(f.base, "conf", "a.txt"), "hello")
	writeFile(t, filepath.Join(f.target, "conf"), "a file where a directory must go")
	f.addSources("conf")

	err := runEngine(t, f.cfg, false)
	require.Error(t, err)
	assert.True(t, errors.IsErrorCode(err, errors.ErrSyncing))
}

func TestDirectoryTraversal(t *testing.T) {
	f := newFixture(t, config.MethodCopy, true)
	writeFile(t, filepath.Join(f.base, "conf", "a.txt"), "a")
	writeFile(t, filepath.Join(f.base, "conf", "sub", "b.txt"), "b")
	writeFile(t, filepath.Join(f.base, "conf", "skipme", "c.txt"), "c")
	writeFile(t, filepath.Join(f.base, "conf", "d@@otherhost"), "d")
	f.group().Ignored = []string{"skipme"}
	f.addSources("conf")

	require.NoError(t, runEngine(t, f.cfg, false))

	content, err := os.ReadFile(filepath.Join(f.target, "conf", "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "a", string(content))

	content, err = os.ReadFile(filepath.Join(f.target, "conf", "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(content))

	_, err = os.Stat(filepath.Join(f.target, "conf", "skipme"))
	assert.True(t, os.IsNotExist(err), "ignored subtree must not be synchronized")

	_, err = os.Stat(filepath.Join(f.target, "conf", "d"))
	assert.True(t, os.IsNotExist(err), "other-host entry must not be synchronized")
}

func TestHostSpecificDestination(t *testing.T) {
	f := newFixture(t, config.MethodCopy, true)
	writeFile(t, filepath.Join(f.base, "conf@@"+testHost), "mine")
	f.addSources("conf@@" + testHost)

	require.NoError(t, runEngine(t, f.cfg, false))

	content, err := os.ReadFile(filepath.Join(f.target, "conf"))
	require.NoError(t, err)
	assert.Equal(t, "mine", string(content))
}

func TestRenamingRuleDestination(t *testing.T) {
	f := newFixture(t, config.MethodCopy, true)
	writeFile(t, filepath.Join(f.base, "_dot_bashrc"), "export A=1")
	rule, err := item.NewRenamingRule("^_dot_", ".")
	require.NoError(t, err)
	f.group().RenamingRules = []item.RenamingRule{rule}
	f.addSources("_dot_bashrc")

	require.NoError(t, runEngine(t, f.cfg, false))

	content, err := os.ReadFile(filepath.Join(f.target, ".bashrc"))
	require.NoError(t, err)
	assert.Equal(t, "export A=1", string(content))
}

func TestTemplatedCopy(t *testing.T) {
	f := newFixture(t, config.MethodCopy, true)
	writeFile(t, filepath.Join(f.base, "gitconfig"), "email = {{ .email }}")
	f.group().Templated = true
	f.group().Context = map[string]interface{}{"email": "me@example.com"}
	f.addSources("gitconfig")

	require.NoError(t, runEngine(t, f.cfg, false))

	content, err := os.ReadFile(filepath.Join(f.target, "gitconfig"))
	require.NoError(t, err)
	assert.Equal(t, "email = me@example.com", string(content))
}

func TestDryRunMutatesNothing(t *testing.T) {
	for _, method := range []config.Method{config.MethodCopy, config.MethodSymlink} {
		t.Run(string(method), func(t *testing.T) {
			f := newFixture(t, method, true)
			writeFile(t, filepath.Join(f.base, "a.txt"), "hello")
			writeFile(t, filepath.Join(f.base, "conf", "b.txt"), "nested")
			f.addSources("a.txt", "conf")

			require.NoError(t, runEngine(t, f.cfg, true))

			targetEntries, err := os.ReadDir(f.target)
			require.NoError(t, err)
			assert.Empty(t, targetEntries, "dry run must not write into the target")

			stagingEntries, err := os.ReadDir(f.staging)
			require.NoError(t, err)
			assert.Empty(t, stagingEntries, "dry run must not populate staging")
		})
	}
}

// A conflict that would abort a real run is only reported in dry-run.
func TestDryRunDowngradesConflicts(t *testing.T) {
	f := newFixture(t, config.MethodCopy, true)
	writeFile(t, filepath.Join(f.base, "a.txt"), "hello")
	require.NoError(t, os.MkdirAll(filepath.Join(f.target, "a.txt"), 0o755))
	f.addSources("a.txt")

	assert.NoError(t, runEngine(t, f.cfg, true))
}

func TestReadOnlyDestinationRetry(t *testing.T) {
	f := newFixture(t, config.MethodCopy, true)
	writeFile(t, filepath.Join(f.base, "a.txt"), "new")
	dest := filepath.Join(f.target, "a.txt")
	writeFile(t, dest, "old")
	require.NoError(t, os.Chmod(dest, 0o444))

	f.addSources("a.txt")
	require.NoError(t, runEngine(t, f.cfg, false))

	content, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "new", string(content))
}

func TestGroupsProcessedInOrder(t *testing.T) {
	baseA := t.TempDir()
	baseB := t.TempDir()
	target := t.TempDir()
	writeFile(t, filepath.Join(baseA, "conf"), "first")
	writeFile(t, filepath.Join(baseB, "conf"), "second")

	cfg := &config.ResolvedConfig{
		StagingRoot: t.TempDir(),
		Groups: []config.SyncGroup{
			{
				Name: "a", BaseDir: baseA, Target: target,
				Sources: []string{filepath.Join(baseA, "conf")},
				Method:  config.MethodCopy, AllowOverwrite: true, HostnameSep: "@@",
			},
			{
				Name: "b", BaseDir: baseB, Target: target,
				Sources: []string{filepath.Join(baseB, "conf")},
				Method:  config.MethodCopy, AllowOverwrite: true, HostnameSep: "@@",
			},
		},
	}

	require.NoError(t, runEngine(t, cfg, false))

	content, err := os.ReadFile(filepath.Join(target, "conf"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(content), "later group wins on a shared destination")
}
