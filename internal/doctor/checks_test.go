package doctor

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckCommandExists(t *testing.T) {
	t.Parallel()

	require.NoError(t, CheckCommandExists("sh"))

	err := CheckCommandExists("command-that-should-not-exist-12345")
	require.Error(t, err)
	require.Contains(t, err.Error(), "command-that-should-not-exist-12345 not found")

	require.Error(t, CheckCommandExists(""))
}

func TestCheckFileExists(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	file := filepath.Join(dir, "exists.txt")
	require.NoError(t, os.WriteFile(file, []byte("hello"), 0o644))

	require.NoError(t, CheckFileExists(file))
	require.NoError(t, CheckFileExists(dir), "directories should pass CheckFileExists")
	require.Error(t, CheckFileExists(filepath.Join(dir, "missing.txt")))
}

func TestCheckDirWritable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, CheckDirWritable(filepath.Join(dir, "nested", "snapshot.json")))
	require.DirExists(t, filepath.Join(dir, "nested"))

	entries, err := os.ReadDir(filepath.Join(dir, "nested"))
	require.NoError(t, err)
	require.Empty(t, entries, "temporary file must be removed")
}

func fakeTool(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	return path
}

func TestRunReportsRequiredFailures(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable bits")
	}
	t.Parallel()

	dir := t.TempDir()
	checks := Checks(Options{
		Emerge:          fakeTool(t, dir, "emerge"),
		Eix:             filepath.Join(dir, "eix"),
		Equery:          fakeTool(t, dir, "equery"),
		ElevationHelper: filepath.Join(dir, "pkexec"),
		CachePath:       filepath.Join(dir, "cache", "snapshot.json"),
		ReposDir:        dir,
	})
	require.Len(t, checks, 6)

	results, err := Run(context.Background(), checks)
	require.Len(t, results, 6)
	require.Error(t, err)
	require.Contains(t, err.Error(), "required checks failed")
	require.Contains(t, err.Error(), "eix")
	require.NotContains(t, err.Error(), "pkexec", "advisory failures do not fail the run")

	failed := Failed(results)
	require.Len(t, failed, 2)
	require.Equal(t, "eix", failed[0].Check.Name)
	require.Equal(t, Required, failed[0].Check.Severity)
	require.Equal(t, "elevation helper", failed[1].Check.Name)
	require.Equal(t, Advisory, failed[1].Check.Severity)
}

func TestRunPassesWithAdvisoryFailuresOnly(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable bits")
	}
	t.Parallel()

	dir := t.TempDir()
	checks := Checks(Options{
		Emerge: fakeTool(t, dir, "emerge"),
		Eix:    fakeTool(t, dir, "eix"),
		Equery: fakeTool(t, dir, "equery"),
		// Missing repository is advisory.
		ReposDir: filepath.Join(dir, "repos", "gentoo"),
	})

	results, err := Run(context.Background(), checks)
	require.NoError(t, err)
	require.Len(t, Failed(results), 1)
	require.Equal(t, "repository", Failed(results)[0].Check.Name)
}

func TestRunUnknownKindAndCancellation(t *testing.T) {
	t.Parallel()

	results, err := Run(context.Background(), []Check{{Name: "odd", Kind: "bogus", Severity: Required}})
	require.Error(t, err)
	require.False(t, results[0].Passed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	results, err = Run(ctx, Checks(Options{Emerge: "sh"}))
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, results)
}
