// Package app wires a workspace into a ready engine: config, logger,
// database, migrations and the optional Redis snapshot cache.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"orgchart/internal/cache"
	"orgchart/internal/config"
	"orgchart/internal/db"
	"orgchart/internal/engine"
	"orgchart/internal/migrate"
)

type Options struct {
	Workspace string
	// DBPath overrides the workspace database location.
	DBPath string
	// Config is used as is when set; otherwise the workspace file is loaded.
	Config *config.Config
	// LogOutput defaults to stderr.
	LogOutput io.Writer
}

// Workspace is an opened workspace. Close releases the database and Redis.
type Workspace struct {
	Dir           string
	Config        *config.Config
	DB            *sql.DB
	Engine        engine.Engine
	Log           *log.Logger
	SchemaVersion int
	// Migrations reports what Open applied.
	Migrations migrate.Report
	redis      *redis.Client
}

// NewLogger builds a logrus logger from the log section of cfg.
func NewLogger(cfg *config.Config, out io.Writer) (*log.Logger, error) {
	if out == nil {
		out = os.Stderr
	}
	level, err := log.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	logger := log.New()
	logger.SetOutput(out)
	logger.SetLevel(level)
	if cfg.Log.Format == "json" {
		logger.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339})
	} else {
		logger.SetFormatter(&log.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	}
	return logger, nil
}

// Open loads config, opens and migrates the database, and builds the engine.
func Open(ctx context.Context, opts Options) (*Workspace, error) {
	cfg := opts.Config
	if cfg == nil {
		loaded, err := config.Load(opts.Workspace)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	} else if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger, err := NewLogger(cfg, opts.LogOutput)
	if err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: opts.Workspace, Path: opts.DBPath})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	rep, err := migrate.Up(ctx, conn, logger)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	w := &Workspace{Dir: opts.Workspace, Config: cfg, DB: conn, Log: logger, SchemaVersion: rep.To, Migrations: rep}
	eng := engine.New(conn, cfg)
	eng.Log = logger
	if cfg.Cache.Enabled {
		w.redis = redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := w.redis.Ping(pingCtx).Err(); err != nil {
			logger.WithError(err).WithField("addr", cfg.Cache.RedisAddr).Warn("redis unreachable, reads fall back to the database")
		}
		cancel()
		eng.Cache = cache.NewAuthors(eng.Repo, w.redis, cfg.Cache.TTL, cfg.Cache.Prefix, logger)
	}
	w.Engine = eng
	logger.WithFields(log.Fields{
		"workspace": opts.Workspace,
		"schema":    rep.To,
		"mode":      cfg.Traversal.Mode,
		"cache":     cfg.Cache.Enabled,
	}).Debug("workspace opened")
	return w, nil
}

func (w *Workspace) Close() error {
	var redisErr error
	if w.redis != nil {
		redisErr = w.redis.Close()
	}
	if err := w.DB.Close(); err != nil {
		return err
	}
	return redisErr
}
