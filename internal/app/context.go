// Package app wires the storage layer and services into one runtime
// context shared by the CLI and the HTTP server.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"cognical/internal/ai"
	"cognical/internal/behavior"
	"cognical/internal/cache"
	"cognical/internal/config"
	"cognical/internal/db"
	"cognical/internal/dependency"
	"cognical/internal/migrate"
	"cognical/internal/planning"
	"cognical/internal/repo"
	"cognical/internal/task"
	"cognical/internal/vault"
)

type App struct {
	Config   *config.Config
	DB       *sql.DB
	Repo     repo.Repo
	Vault    *vault.Vault
	Tasks    *task.Service
	Deps     *dependency.Service
	Learner  *behavior.Learner
	Cache    *cache.Service
	Planning *planning.Service

	cron *cron.Cron
}

// Open boots the full context for a workspace: database, migrations,
// services, provider settings. Close releases it.
func Open(workspace string) (*App, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r := repo.Repo{DB: conn}
	deps := dependency.New(r)
	tasks := task.New(r)
	tasks.Invalidated = deps.Invalidate
	learner := behavior.New(r)
	responses := cache.New(r, time.Duration(cfg.Planning.CacheTTLHours)*time.Hour)
	planner := planning.New(r, tasks, deps, learner, responses)
	planner.GranularityMinutes = cfg.Planning.GranularityMinutes

	return &App{
		Config:   cfg,
		DB:       conn,
		Repo:     r,
		Vault:    vault.New(db.Path(workspace)),
		Tasks:    tasks,
		Deps:     deps,
		Learner:  learner,
		Cache:    responses,
		Planning: planner,
	}, nil
}

// Provider resolves the AI backend from stored settings on each call so a
// key added mid-session takes effect without a restart.
func (a *App) Provider(ctx context.Context) ai.Provider {
	return ai.FromSettings(ctx, a.Repo, a.Vault)
}

// StartMaintenance schedules the hourly cache sweep. Used by serve mode;
// one-shot CLI commands skip it.
func (a *App) StartMaintenance() {
	if a.cron != nil {
		return
	}
	a.cron = cron.New()
	a.cron.AddFunc("@hourly", func() {
		n, err := a.Cache.PurgeExpired(context.Background())
		if err != nil {
			slog.Warn("cache purge failed", "error", err)
			return
		}
		if n > 0 {
			slog.Info("cache purge", "removed", n)
		}
	})
	a.cron.Start()
}

func (a *App) Close() error {
	if a.cron != nil {
		a.cron.Stop()
		a.cron = nil
	}
	return a.DB.Close()
}
