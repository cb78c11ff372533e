package db

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOpenCreatesWorkspaceState(t *testing.T) {
	ws := t.TempDir()
	conn, err := Open(Config{Workspace: ws})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	if _, err := conn.Exec(`CREATE TABLE t(id INTEGER)`); err != nil {
		t.Fatalf("exec: %v", err)
	}
	if _, err := os.Stat(Path(ws)); err != nil {
		t.Fatalf("expected database file at %s: %v", Path(ws), err)
	}
	var fk int
	if err := conn.QueryRow(`PRAGMA foreign_keys`).Scan(&fk); err != nil {
		t.Fatalf("pragma: %v", err)
	}
	if fk != 1 {
		t.Fatalf("foreign keys not enforced")
	}
}

func TestOpenExplicitPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "org.db")
	conn, err := Open(Config{Workspace: "ignored", Path: path})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer conn.Close()
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Fatalf("expected parent dir: %v", err)
	}
	if _, err := os.Stat("ignored"); err == nil {
		t.Fatalf("workspace should not be created when a path is given")
	}
}

func TestEnsureWorkspace(t *testing.T) {
	ws := t.TempDir()
	dir, err := EnsureWorkspace(ws)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if dir != filepath.Join(ws, StateDir) {
		t.Fatalf("unexpected dir %s", dir)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		t.Fatalf("state dir missing: %v", err)
	}
}
