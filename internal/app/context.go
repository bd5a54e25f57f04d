package app

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"escrowline/internal/attachments"
	"escrowline/internal/config"
	"escrowline/internal/db"
	"escrowline/internal/engine"
	"escrowline/internal/logging"
	"escrowline/internal/migrate"
	"escrowline/internal/notify"
)

type Options struct {
	Workspace string
	// Console selects human readable log output.
	Console bool
	// Metrics registers engine collectors with the default prometheus registry.
	Metrics bool
}

// Context is everything a command or the server needs for one workspace.
type Context struct {
	Workspace string
	Config    *config.Config
	DB        *sql.DB
	Engine    engine.Engine
	Log       zerolog.Logger
	publisher notify.Publisher
}

// Open loads escrowline.yml, opens and migrates the database and wires the
// engine with its attachment store and notification publisher.
func Open(ctx context.Context, opts Options) (*Context, error) {
	ws := opts.Workspace
	if ws == "" {
		ws = "."
	}
	cfg, err := config.Load(ws)
	if err != nil {
		return nil, err
	}
	resolvePaths(ws, cfg)
	log := logging.New(cfg.Log, opts.Console)

	conn, err := db.Open(db.Config{Workspace: ws})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate.Migrate(ctx, conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	store, err := attachments.Open(ctx, cfg.Attachments)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("attachments: %w", err)
	}

	var pub notify.Publisher = notify.Nop{}
	if url := cfg.Notifications.NATS.URL; url != "" {
		np, err := notify.Connect(url, cfg.Notifications.NATS.SubjectPrefix, log)
		if err != nil {
			log.Warn().Err(err).Str("url", url).Msg("nats unavailable, notifications are stored only")
		} else {
			pub = np
		}
	}

	eng := engine.New(conn, cfg)
	eng.Attachments = store
	eng.Publisher = pub
	eng.Log = log
	if opts.Metrics {
		eng.Metrics = engine.DefaultMetrics()
	}
	log.Debug().Str("workspace", ws).Str("db", db.Path(ws)).Str("attachments", cfg.Attachments.Driver).Msg("workspace opened")
	return &Context{
		Workspace: ws,
		Config:    cfg,
		DB:        conn,
		Engine:    eng,
		Log:       log,
		publisher: pub,
	}, nil
}

func (c *Context) Close() error {
	if c == nil {
		return nil
	}
	if c.publisher != nil {
		c.publisher.Close()
	}
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// resolvePaths anchors relative file locations in the workspace state dir.
func resolvePaths(ws string, cfg *config.Config) {
	state := filepath.Join(ws, ".escrowline")
	if cfg.Attachments.Driver == "file" {
		if cfg.Attachments.Dir == "" {
			cfg.Attachments.Dir = filepath.Join(state, "attachments")
		} else if !filepath.IsAbs(cfg.Attachments.Dir) {
			cfg.Attachments.Dir = filepath.Join(ws, cfg.Attachments.Dir)
		}
	}
	if cfg.Log.File != "" && !filepath.IsAbs(cfg.Log.File) {
		cfg.Log.File = filepath.Join(state, cfg.Log.File)
	}
}
