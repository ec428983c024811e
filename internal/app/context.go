// Package app wires the workspace pieces together: database, migrations,
// config and the engine. Both the CLI and the server boot through it.
package app

import (
	"database/sql"
	"fmt"

	"parley/internal/config"
	"parley/internal/db"
	"parley/internal/engine"
	"parley/internal/migrate"
)

// Context is an opened workspace ready for use.
type Context struct {
	DB     *sql.DB
	Config *config.Config
	Engine engine.Engine
}

// Open boots the workspace: database file, schema migrations, config and
// the engine. Callers own Close.
func Open(workspace string) (*Context, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("load config: %w", err)
	}
	eng, err := engine.New(conn, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Context{DB: conn, Config: cfg, Engine: eng}, nil
}

// Close releases the database handle.
func (c *Context) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
