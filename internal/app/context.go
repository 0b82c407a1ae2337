// Package app wires the process: database, migrations, config resolution,
// and the workflow engine with its collaborators.
package app

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"creditline/internal/config"
	"creditline/internal/db"
	"creditline/internal/journal"
	"creditline/internal/migrate"
	"creditline/internal/notify"
	"creditline/internal/repo"
	"creditline/internal/workflow"
)

type App struct {
	DB       *sql.DB
	Repo     *repo.Repo
	Config   *config.Config
	Engine   workflow.Engine
	Notifier *notify.Service
	Log      *zap.Logger
}

type Options struct {
	Workspace string
	// ConfigName selects the stored config; empty means "default".
	ConfigName string
	Log        *zap.Logger
}

// Open opens the workspace database, applies migrations, resolves the active
// config (seeding the default on first run), and assembles the engine.
func Open(ctx context.Context, opts Options) (*App, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r := repo.New(conn)

	name := opts.ConfigName
	if name == "" {
		name = "default"
	}
	cfg, err := r.LoadConfig(ctx, name)
	if err == repo.ErrNotFound && name == "default" {
		cfg = config.Default()
		if err := r.SaveConfig(ctx, cfg); err != nil {
			conn.Close()
			return nil, err
		}
	} else if err != nil {
		conn.Close()
		return nil, err
	}

	notifier := &notify.Service{Repo: r, Log: log}
	engine := workflow.Engine{
		DB:         conn,
		Repo:       r,
		Journal:    journal.Writer{DB: conn},
		Registry:   workflow.NewRegistry(r),
		Dispatcher: notifier,
		Config:     cfg,
		Log:        log,
	}
	return &App{
		DB:       conn,
		Repo:     r,
		Config:   cfg,
		Engine:   engine,
		Notifier: notifier,
		Log:      log,
	}, nil
}

func (a *App) Close() error {
	if a.DB != nil {
		return a.DB.Close()
	}
	return nil
}
