package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"curator/pkg/cache"
	"curator/pkg/codec"
	"curator/pkg/config"
	"curator/pkg/contextmgr"
	"curator/pkg/eventlog"
	"curator/pkg/jobs"
	"curator/pkg/logx"
	"curator/pkg/metrics"
	"curator/pkg/persistence"
	"curator/pkg/review"
	"curator/pkg/utils"
)

// app holds one command invocation's wired components. Everything hangs off
// the single store; Close tears down in reverse construction order.
type app struct {
	cfg    *config.Config
	store  *persistence.Store
	cache  *cache.Cache
	queue  *review.Queue
	memory *contextmgr.Manager
	jobs   *jobs.Manager
	events *eventlog.Writer
	logger *logx.Logger
}

// newFlagSet creates a command flag set with the shared -workdir flag.
func newFlagSet(name string) (*flag.FlagSet, *string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	workDir := fs.String("workdir", ".", "Curator workspace directory")
	return fs, workDir
}

// loadWorkspaceConfig reads .curator/config.yaml under workDir, falling back
// to defaults when the workspace has not been initialized.
func loadWorkspaceConfig(workDir string) (*config.Config, error) {
	path := utils.ConfigPath(workDir)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return cfg, nil
}

// resolvePath anchors a relative config path at the workspace directory.
func resolvePath(workDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workDir, path)
}

// openApp wires every component from the workspace config.
func openApp(workDir string) (*app, error) {
	cfg, err := loadWorkspaceConfig(workDir)
	if err != nil {
		return nil, err
	}

	store, err := persistence.Open(resolvePath(workDir, cfg.Database.Path))
	if err != nil {
		return nil, err
	}

	events, err := eventlog.NewWriter(resolvePath(workDir, cfg.Events.Dir))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	// The Prometheus recorder only pays off when something scrapes it, so
	// it rides the same config key as the query service.
	var recorder metrics.Recorder = metrics.Nop()
	if cfg.Metrics.PrometheusURL != "" {
		recorder = metrics.NewPrometheusRecorder()
	}

	mappingCache := cache.New(store)
	return &app{
		cfg:    cfg,
		store:  store,
		cache:  mappingCache,
		queue:  review.New(store, mappingCache).WithMetrics(recorder),
		memory: contextmgr.New(store, contextmgr.Config{
			BudgetTokens:   cfg.Memory.TokenBudget,
			BudgetFraction: cfg.Memory.BudgetFraction,
			RetainTail:     cfg.Memory.RetentionWindow,
			Metrics:        recorder,
		}),
		jobs:   jobs.New(store, jobs.Config{KeepCheckpoints: cfg.Jobs.KeepCheckpoints}),
		events: events,
		logger: logx.NewLogger("cli"),
	}, nil
}

// Close releases the event log and the store.
func (a *app) Close() {
	if err := a.events.Close(); err != nil {
		a.logger.Warn("failed to close event log: %v", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn("failed to close store: %v", err)
	}
}

// mirror appends an operational event. The transactional audit trail in the
// database is authoritative; a mirror failure is logged, never fatal.
func (a *app) mirror(event, jobID, itemID, detail string) {
	err := a.events.WriteEvent(&eventlog.Event{
		JobID:  jobID,
		ItemID: itemID,
		Event:  event,
		Detail: detail,
	})
	if err != nil {
		a.logger.Warn("failed to mirror %s event: %v", event, err)
	}
}

// readInput returns the contents of path, or stdin when path is "-" or empty.
func readInput(path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}
	return string(data), nil
}

// parsePayload decodes input text as compact codec text, or as JSON when
// asJSON is set.
func parsePayload(text string, asJSON bool) (codec.Value, error) {
	if asJSON {
		value, err := codec.DecodeJSON([]byte(text))
		if err != nil {
			return nil, fmt.Errorf("failed to parse JSON payload: %w", err)
		}
		return value, nil
	}
	value, err := codec.Decode(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse payload: %w", err)
	}
	return value, nil
}

// runInit scaffolds the workspace and opens the database once so the schema
// exists before the first real command.
func runInit(args []string) error {
	fs, workDir := newFlagSet("curator init")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if err := utils.CreateCuratorWorkspace(*workDir); err != nil {
		return err
	}

	cfg, err := loadWorkspaceConfig(*workDir)
	if err != nil {
		return err
	}
	dbPath := resolvePath(*workDir, cfg.Database.Path)
	store, err := persistence.Open(dbPath)
	if err != nil {
		return err
	}
	if err := store.Close(); err != nil {
		return err
	}

	fmt.Printf("Initialized curator workspace in %s\n", *workDir)
	fmt.Printf("  config:   %s\n", utils.ConfigPath(*workDir))
	fmt.Printf("  database: %s\n", dbPath)
	fmt.Printf("  events:   %s\n", resolvePath(*workDir, cfg.Events.Dir))
	return nil
}
