// Package app wires the storage, dispatcher, and engine together for the
// CLI, the server, and tests.
package app

import (
	"database/sql"
	"log"

	"gigline/internal/config"
	"gigline/internal/db"
	"gigline/internal/engine"
	"gigline/internal/migrate"
	"gigline/internal/notify"
	"gigline/internal/repo"
)

type App struct {
	DB     *sql.DB
	Engine engine.Engine
	Notify *notify.Dispatcher
	Config *config.Config
}

// Open opens (and migrates) the workspace database and builds the engine
// with a running dispatcher.
func Open(workspace string, logger *log.Logger) (*App, error) {
	cfg, err := config.Load(workspace)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, err
	}
	dispatcher := notify.New(repo.Repo{DB: conn}, logger, cfg.Notify.Workers, cfg.Notify.QueueSize)
	return &App{
		DB:     conn,
		Engine: engine.New(conn, dispatcher),
		Notify: dispatcher,
		Config: cfg,
	}, nil
}

// Close drains pending notifications and releases the database.
func (a *App) Close() {
	a.Notify.Close()
	a.DB.Close()
}
