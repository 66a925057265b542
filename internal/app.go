// Package internal provides the App struct that wires all components of
// Agent Task Flow together and initializes the CLI layer.
package internal

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/valter-silva-au/agent-task-flow/internal/cli"
	"github.com/valter-silva-au/agent-task-flow/internal/core"
	"github.com/valter-silva-au/agent-task-flow/internal/integration"
	"github.com/valter-silva-au/agent-task-flow/internal/observability"
	"github.com/valter-silva-au/agent-task-flow/internal/storage"
	"github.com/valter-silva-au/agent-task-flow/pkg/models"
)

// tasksDir is where task record files live, relative to the base path.
const tasksDir = "tasks"

// auditLogPath is the audit log location, relative to the base path.
const auditLogPath = ".atf/audit.jsonl"

// App holds all service dependencies for Agent Task Flow.
type App struct {
	BasePath string

	Config *models.Config

	// Storage layer
	Store   *storage.TaskStore
	Backend *storage.FileBackend

	// Git-facing services
	Git       *integration.ExecGit
	Artifacts *integration.Artifacts
	Engine    *integration.Engine

	// Core services
	Lifecycle *core.Lifecycle

	// Observability
	Audit *observability.AuditLog
}

// ResolveBasePath returns the directory atf operates from. Paths in the
// configuration (index, artifacts) are repository-relative, so atf runs
// from the repository root.
func ResolveBasePath() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// NewApp creates and wires all components, then injects them into the CLI
// package.
func NewApp(basePath string) (*App, error) {
	app := &App{BasePath: basePath}

	cfg, err := core.LoadConfig(basePath)
	if err != nil {
		return nil, err
	}
	app.Config = cfg

	if err := os.MkdirAll(filepath.Join(basePath, tasksDir), 0o750); err != nil {
		return nil, fmt.Errorf("creating tasks directory: %w", err)
	}
	app.Store = storage.NewTaskStore(filepath.Join(basePath, tasksDir))
	app.Backend = storage.NewFileBackend(app.Store)

	logPath := filepath.Join(basePath, auditLogPath)
	if err := os.MkdirAll(filepath.Dir(logPath), 0o750); err != nil {
		return nil, fmt.Errorf("creating audit log directory: %w", err)
	}
	app.Audit, err = observability.OpenAuditLog(logPath)
	if err != nil {
		return nil, err
	}

	app.Git = integration.NewExecGit(basePath)
	app.Artifacts = integration.NewArtifacts(cfg.ArtifactDir)
	app.Engine = integration.NewEngine(cfg, app.Git, app.Backend, app.Artifacts, nil, app.Audit)

	app.Lifecycle = core.NewLifecycle(cfg, app.Store, app.Backend, app.Git, integration.AllowlistGuard{}, app.Audit)

	// --- Wire CLI package-level variables ---
	cli.BasePath = basePath
	cli.Config = cfg
	cli.Lifecycle = app.Lifecycle
	cli.Engine = app.Engine
	cli.Backend = app.Backend
	cli.Audit = app.Audit

	return app, nil
}

// Close releases resources held by the app.
func (a *App) Close() error {
	if a.Audit != nil {
		return a.Audit.Close()
	}
	return nil
}
