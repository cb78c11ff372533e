package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Traversal.Mode != ModeWalk {
		t.Fatalf("expected walk mode by default, got %q", cfg.Traversal.Mode)
	}
	if cfg.Server.ShutdownTimeout != 5*time.Second || cfg.Cache.TTL != 30*time.Second {
		t.Fatalf("durations not decoded: %v %v", cfg.Server.ShutdownTimeout, cfg.Cache.TTL)
	}
	if cfg.Seed.Authors != 100 || cfg.Seed.Comments != 1000 {
		t.Fatalf("unexpected seed defaults %+v", cfg.Seed)
	}
}

func TestFromYAMLKeepsDefaults(t *testing.T) {
	cfg, err := FromYAML([]byte("traversal:\n  mode: closure\ntasks:\n  enforce_transitions: true\n"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Traversal.Mode != ModeClosure || !cfg.Tasks.EnforceTransitions {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
	if cfg.Server.Addr == "" || cfg.Log.Level != "info" {
		t.Fatalf("defaults lost: %+v", cfg)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]string{
		"mode":      "traversal:\n  mode: dfs\n",
		"base path": "server:\n  base_path: v0\n",
		"cache":     "cache:\n  enabled: true\n  redis_addr: \"\"\n",
		"seed":      "seed:\n  authors: 0\n",
		"log":       "log:\n  format: xml\n",
	}
	for name, doc := range cases {
		if _, err := FromYAML([]byte(doc)); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
	if _, err := FromYAML([]byte("server: [")); err == nil || !strings.Contains(err.Error(), "invalid config yaml") {
		t.Fatalf("expected yaml error, got %v", err)
	}
}

func TestLoadOptional(t *testing.T) {
	dir := t.TempDir()
	cfg, err := LoadOptional(dir)
	if err != nil || cfg != nil {
		t.Fatalf("missing file should yield nil,nil: %v %v", cfg, err)
	}
	loaded, err := Load(dir)
	if err != nil || loaded.Traversal.Mode != ModeWalk {
		t.Fatalf("Load should fall back to defaults: %+v %v", loaded, err)
	}
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("lookup:\n  strict_names: true\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = LoadOptional(dir)
	if err != nil || cfg == nil || !cfg.Lookup.StrictNames {
		t.Fatalf("expected strict names from file: %+v %v", cfg, err)
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	out, err := Default().YAML()
	if err != nil {
		t.Fatal(err)
	}
	cfg, err := FromYAML([]byte(out))
	if err != nil {
		t.Fatalf("rendered config does not parse: %v\n%s", err, out)
	}
	if cfg.Server.ShutdownTimeout != 5*time.Second {
		t.Fatalf("shutdown timeout lost in round trip: %v", cfg.Server.ShutdownTimeout)
	}
}
