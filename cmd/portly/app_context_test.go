package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/portly/internal/classify"
	"github.com/alexisbeaulieu97/portly/internal/config"
	"github.com/alexisbeaulieu97/portly/internal/process"
	"github.com/alexisbeaulieu97/portly/internal/sequencer"
	"github.com/alexisbeaulieu97/portly/internal/snapshot"
	"github.com/alexisbeaulieu97/portly/internal/task"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRunnerOptionsDefaultHelperArgs(t *testing.T) {
	t.Parallel()

	opts := runnerOptions(config.Defaults())
	assert.Equal(t, "pkexec", opts.ElevationHelper)
	assert.Equal(t, process.DefaultElevationArgs, opts.ElevationArgs)
	assert.Equal(t, 300*time.Second, opts.DefaultTimeout)
	assert.Equal(t, 2*time.Second, opts.GracePeriod)

	cfg := config.Defaults()
	cfg.Elevation = config.Elevation{Helper: "doas"}
	opts = runnerOptions(cfg)
	assert.Equal(t, "doas", opts.ElevationHelper)
	assert.Nil(t, opts.ElevationArgs)
}

func TestNewClassifierReplacesConfiguredTables(t *testing.T) {
	t.Parallel()

	failure := func(diagnostic string) task.Result {
		return task.NewFailure(&task.Failure{Reason: task.ReasonProcess, Diagnostic: diagnostic}, nil)
	}

	c, err := newClassifier(config.Classifier{Benign: []string{"all done"}})
	require.NoError(t, err)
	assert.True(t, c.Classify(failure("emerge: all done")).Succeeded())
	assert.False(t, c.Classify(failure("Nothing to merge; quitting.")).Succeeded())

	denied := c.Classify(failure("Permission denied; all done"))
	require.NotNil(t, denied.Failure)
	assert.True(t, denied.Failure.Attention)

	c, err = newClassifier(config.Classifier{})
	require.NoError(t, err)
	_, matched := c.Match(classify.BenignPhrases[0])
	assert.True(t, matched)
}

func TestNewAppContextWiresConfiguration(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeConfig(t, `
timeout: 45s
elevation:
  helper: sudo
  args: ["-n"]
tools:
  emerge: /usr/bin/emerge
log:
  level: debug
  human: false
cache:
  path: `+filepath.Join(dir, "cache", "snapshot.json")+`
`)

	stderr := &bytes.Buffer{}
	app, err := newAppContext(appOptions{ConfigPath: path, Stderr: stderr})
	require.NoError(t, err)
	defer app.Close()

	assert.Equal(t, path, app.ConfigPath)
	assert.Equal(t, "sudo", app.Runner.ElevationHelper())
	assert.Equal(t, process.Command{"sudo", "-n", "emerge", "--sync"},
		app.Runner.Argv(process.Spec{Command: process.Command{"emerge", "--sync"}, Elevate: true}))
	assert.Equal(t, "/usr/bin/emerge", app.Builder.Tools().Emerge)
	assert.Equal(t, "eix", app.Builder.Tools().Eix)
	require.NotNil(t, app.Store)
	assert.Contains(t, stderr.String(), `"application ready"`)

	opts := app.DoctorOptions()
	assert.Equal(t, "sudo", opts.ElevationHelper)
	assert.Equal(t, app.Store.Path(), opts.CachePath)
}

func TestNewAppContextLogsToFile(t *testing.T) {
	t.Parallel()

	logPath := filepath.Join(t.TempDir(), "logs", "portly.log")
	path := writeConfig(t, "log:\n  level: info\n  file: "+logPath+"\n")

	app, err := newAppContext(appOptions{ConfigPath: path, Quiet: true})
	require.NoError(t, err)
	app.Logger.Info("hello from test")
	require.NoError(t, app.Close())

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from test")
}

func TestNewAppContextRejectsInvalidConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "timeout: soon\n")
	_, err := newAppContext(appOptions{ConfigPath: path})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestSnapshotRoundTripThroughApp(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "log:\n  level: disabled\ncache:\n  path: "+filepath.Join(t.TempDir(), "snapshot.json")+"\n")
	app, err := newAppContext(appOptions{ConfigPath: path})
	require.NoError(t, err)
	defer app.Close()

	assert.True(t, app.LoadSnapshot().Empty())
	require.NoError(t, app.SaveSnapshot(snapshot.Snapshot{}))

	snap := snapshot.Snapshot{}.With(snapshot.Available, []string{"dev-lang/go"}, time.Now())
	require.NoError(t, app.SaveSnapshot(snap))
	assert.Equal(t, []string{"dev-lang/go"}, app.LoadSnapshot().Available)
}

func TestConsoleOutputFormatsOutcomes(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	out := newConsoleOutput(buf)

	out.Lifecycle(process.Started, "pid 42: emerge --sync")
	out.Line("\x1b[32m>>> Syncing\x1b[0m")
	out.Lifecycle(process.TimedOut, "no exit after 1s")
	out.StepResolved(sequencer.Outcome{Step: "available", Result: task.NewSuccess([]string{"a/b", "c/d"}, nil)})
	out.StepResolved(sequencer.Outcome{Step: "updates", Result: task.NewFailure(&task.Failure{
		Reason:     task.ReasonProcess,
		Diagnostic: "Command failed with exit code 1.\nStderr:\nboom",
	}, nil)})
	out.StepResolved(sequencer.Outcome{Step: "installed", Result: task.NewFailure(&task.Failure{
		Reason:     task.ReasonLaunch,
		Diagnostic: "equery not found",
	}, nil)})
	out.summary(sequencer.Report{Pipeline: "refresh", State: sequencer.Complete, Outcomes: []sequencer.Outcome{
		{Result: task.NewFailure(&task.Failure{Reason: task.ReasonProcess}, nil)},
	}})

	text := buf.String()
	assert.Contains(t, text, "Executing: emerge --sync\n>>> Syncing\n")
	assert.Contains(t, text, "Timed out: no exit after 1s")
	assert.Contains(t, text, "[OK] available: 2 packages")
	assert.Contains(t, text, "Stderr:\nboom\n[XX] updates failed: Command failed with exit code 1.")
	assert.Contains(t, text, "[XX] installed needs attention\n    equery not found")
	assert.Contains(t, text, "[!!] refresh finished with 1 failed step(s)")
}

func TestFormatRelativeTime(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "never", formatRelativeTime(time.Time{}))
	assert.Equal(t, "just now", formatRelativeTime(time.Now()))
	assert.Equal(t, "5 minutes ago", formatRelativeTime(time.Now().Add(-5*time.Minute)))
	assert.Equal(t, "3 hours ago", formatRelativeTime(time.Now().Add(-3*time.Hour)))
	assert.Equal(t, "2 days ago", formatRelativeTime(time.Now().Add(-49*time.Hour)))
}
