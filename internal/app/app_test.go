package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"

	"orgchart/internal/app"
	"orgchart/internal/config"
	"orgchart/internal/engine"
)

func TestOpenUsesWorkspaceConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(config.Path(dir), []byte("traversal:\n  mode: closure\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	w, err := app.Open(context.Background(), app.Options{Workspace: dir, LogOutput: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer w.Close()
	if w.Engine.Mode() != config.ModeClosure {
		t.Fatalf("expected closure mode, got %s", w.Engine.Mode())
	}
	if w.SchemaVersion < 1 {
		t.Fatalf("expected migrations applied, got version %d", w.SchemaVersion)
	}
	if w.Engine.Cache != nil {
		t.Fatalf("cache should be off by default")
	}
}

func TestOpenWithCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := config.Default()
	cfg.Cache.Enabled = true
	cfg.Cache.RedisAddr = mr.Addr()
	ctx := context.Background()
	w, err := app.Open(ctx, app.Options{Workspace: t.TempDir(), Config: cfg, LogOutput: &bytes.Buffer{}})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer w.Close()
	if w.Engine.Cache == nil {
		t.Fatalf("expected cache to be wired")
	}
	if _, err := w.Engine.CreateAuthor(ctx, engine.AuthorCreateOptions{Username: "root", Name: "Root", Age: 50, Height: 1.8}); err != nil {
		t.Fatalf("create: %v", err)
	}
	authors, err := w.Engine.ListAuthors(ctx)
	if err != nil || len(authors) != 1 {
		t.Fatalf("list: %v %v", authors, err)
	}
	if len(mr.Keys()) == 0 {
		t.Fatalf("expected snapshot keys in redis")
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Traversal.Mode = "sideways"
	if _, err := app.Open(context.Background(), app.Options{Workspace: t.TempDir(), Config: cfg}); err == nil {
		t.Fatalf("expected invalid config to be rejected")
	}
}

func TestNewLoggerJSON(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Format = "json"
	cfg.Log.Level = "debug"
	var buf bytes.Buffer
	logger, err := app.NewLogger(cfg, &buf)
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	logger.WithField("author", 7).Debug("resolved")
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected json line, got %q: %v", buf.String(), err)
	}
	if line["msg"] != "resolved" || line["author"] != float64(7) {
		t.Fatalf("unexpected entry %v", line)
	}
}
