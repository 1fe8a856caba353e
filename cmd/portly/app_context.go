package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/alexisbeaulieu97/portly/internal/classify"
	"github.com/alexisbeaulieu97/portly/internal/config"
	"github.com/alexisbeaulieu97/portly/internal/doctor"
	"github.com/alexisbeaulieu97/portly/internal/events"
	"github.com/alexisbeaulieu97/portly/internal/logger"
	"github.com/alexisbeaulieu97/portly/internal/portage"
	"github.com/alexisbeaulieu97/portly/internal/process"
	"github.com/alexisbeaulieu97/portly/internal/sequencer"
	"github.com/alexisbeaulieu97/portly/internal/snapshot"
	"github.com/alexisbeaulieu97/portly/internal/task"
)

// AppContext bundles long-lived services created at startup.
type AppContext struct {
	Config     *config.Config
	ConfigPath string
	Logger     *logger.Logger
	Publisher  *events.LoggingPublisher
	Runner     *process.Runner
	Executor   *task.Executor
	Sequencer  *sequencer.Sequencer
	Builder    *portage.Builder
	// Store is nil when the snapshot cache cannot be used.
	Store *snapshot.Store

	logFile io.Closer
}

type appOptions struct {
	ConfigPath string
	Verbose    bool
	// Quiet discards the log unless log.file is configured, so the TUI owns the terminal.
	Quiet  bool
	Stderr io.Writer
}

func newAppContext(opts appOptions) (*AppContext, error) {
	cfg, path, err := loadConfig(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	log, logFile, err := newLogger(cfg.Log, opts)
	if err != nil {
		return nil, err
	}

	classifier, err := newClassifier(cfg.Classifier)
	if err != nil {
		closeQuietly(logFile)
		return nil, fmt.Errorf("invalid classifier rules: %w", err)
	}

	publisher := events.NewLoggingPublisher(log.With("component", "events"))
	runner := process.NewRunner(runnerOptions(cfg))
	executor := task.NewExecutor(runner,
		task.WithLogger(log.With("component", "executor")),
		task.WithPublisher(publisher),
	)
	seq := sequencer.New(executor,
		sequencer.WithLogger(log.With("component", "sequencer")),
		sequencer.WithPublisher(publisher),
	)

	app := &AppContext{
		Config:     cfg,
		ConfigPath: path,
		Logger:     log,
		Publisher:  publisher,
		Runner:     runner,
		Executor:   executor,
		Sequencer:  seq,
		Builder: portage.NewBuilder(portage.Tools{
			Emerge: cfg.Tools.Emerge,
			Eix:    cfg.Tools.Eix,
			Equery: cfg.Tools.Equery,
		}, classifier, cfg.TimeoutDuration()),
		logFile: logFile,
	}

	if cfg.Cache.Path != "" {
		store, err := snapshot.NewStore(cfg.Cache.Path)
		if err != nil {
			log.Warn("snapshot cache disabled", "path", cfg.Cache.Path, "error", err)
		} else {
			app.Store = store
		}
	}

	log.Debug("application ready", "config", path, "elevation_helper", runner.ElevationHelper())
	return app, nil
}

// loadConfig reads an explicit path strictly; the default location may be absent.
func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		cfg, err := config.ParseConfig(path)
		return cfg, path, err
	}
	path = config.DefaultPath()
	cfg, err := config.Load(path)
	return cfg, path, err
}

func newLogger(cfg config.Log, opts appOptions) (*logger.Logger, io.Closer, error) {
	level := cfg.Level
	if opts.Verbose {
		level = "debug"
	}

	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
			return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open log file: %w", err)
		}
		log, err := logger.New(logger.Options{Level: level, HumanReadable: cfg.Human, Writer: file, Component: "portly"})
		if err != nil {
			closeQuietly(file)
			return nil, nil, err
		}
		return log, file, nil
	}

	if opts.Quiet {
		return logger.Nop(), nil, nil
	}

	writer := opts.Stderr
	if writer == nil {
		writer = os.Stderr
	}
	log, err := logger.New(logger.Options{Level: level, HumanReadable: cfg.Human, Writer: writer, Component: "portly"})
	return log, nil, err
}

// newClassifier builds the rule table. A configured phrase list replaces
// the built-in list of the same verdict.
func newClassifier(cfg config.Classifier) (*classify.Classifier, error) {
	if len(cfg.Denied) == 0 && len(cfg.Benign) == 0 {
		return classify.Default(nil), nil
	}
	denied, benign := classify.DeniedPhrases, classify.BenignPhrases
	if len(cfg.Denied) > 0 {
		denied = cfg.Denied
	}
	if len(cfg.Benign) > 0 {
		benign = cfg.Benign
	}
	return classify.New(classify.Rules(denied, benign), nil)
}

func runnerOptions(cfg *config.Config) process.Options {
	args := cfg.Elevation.Args
	if args == nil && cfg.Elevation.Helper == process.DefaultElevationHelper {
		args = process.DefaultElevationArgs
	}
	return process.Options{
		ElevationHelper: cfg.Elevation.Helper,
		ElevationArgs:   args,
		GracePeriod:     cfg.GracePeriodDuration(),
		DefaultTimeout:  cfg.TimeoutDuration(),
	}
}

// LoadSnapshot returns the cached lists, or an empty Snapshot when there
// is no usable cache.
func (a *AppContext) LoadSnapshot() snapshot.Snapshot {
	if a.Store == nil {
		return snapshot.Snapshot{}
	}
	snap, err := a.Store.Load()
	if err != nil {
		a.Logger.Warn("ignoring unreadable snapshot cache", "path", a.Store.Path(), "error", err)
		return snapshot.Snapshot{}
	}
	return snap
}

// SaveSnapshot persists snap when a cache is configured.
func (a *AppContext) SaveSnapshot(snap snapshot.Snapshot) error {
	if a.Store == nil || snap.Empty() {
		return nil
	}
	if err := a.Store.Save(snap); err != nil {
		return fmt.Errorf("failed to save package lists: %w", err)
	}
	return nil
}

// DoctorOptions describes the host requirements of the loaded configuration.
func (a *AppContext) DoctorOptions() doctor.Options {
	tools := a.Builder.Tools()
	opts := doctor.Options{
		Emerge:          tools.Emerge,
		Eix:             tools.Eix,
		Equery:          tools.Equery,
		ElevationHelper: a.Runner.ElevationHelper(),
	}
	if a.Store != nil {
		opts.CachePath = a.Store.Path()
	}
	return opts
}

// Close releases the log file.
func (a *AppContext) Close() error {
	if a == nil || a.logFile == nil {
		return nil
	}
	return a.logFile.Close()
}

func closeQuietly(c io.Closer) {
	if c != nil {
		_ = c.Close()
	}
}
