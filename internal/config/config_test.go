package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"tuleapsync/internal/config"
)

func TestDefaultTemplateRoundTrips(t *testing.T) {
	cfg, err := config.FromYAML([]byte(config.GenerateDefault("https://tuleap.example.com/", "jdoe")))
	if err != nil {
		t.Fatalf("parse default: %v", err)
	}
	if cfg.Repository.URL != "https://tuleap.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Repository.URL)
	}
	if cfg.APIURL() != "https://tuleap.example.com/api/v1" {
		t.Fatalf("unexpected api url %q", cfg.APIURL())
	}
	if cfg.TimeoutDuration() != 30*time.Second || cfg.Repository.PageSize != 50 {
		t.Fatalf("unexpected defaults %+v", cfg.Repository)
	}
	if d := config.Default("https://tuleap.example.com", "jdoe"); d.Repository.Username != "jdoe" {
		t.Fatalf("unexpected default username %q", d.Repository.Username)
	}
}

func TestDefaultsFillMissingKeys(t *testing.T) {
	cfg, err := config.FromYAML([]byte("repository:\n  url: http://localhost:8080\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cfg.Repository.APIPath != config.DefaultAPIPath || cfg.Location() != time.Local {
		t.Fatalf("unexpected defaults %+v", cfg.Repository)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cases := map[string]string{
		"missing url":    "repository:\n  username: jdoe\n",
		"relative url":   "repository:\n  url: tuleap.example.com\n",
		"bad api path":   "repository:\n  url: http://x\n  api_path: api\n",
		"bad timeout":    "repository:\n  url: http://x\n  timeout: soon\n",
		"unknown kind":   "repository:\n  url: http://x\nqueries:\n  q:\n    kind: SAVED\n",
		"report no id":   "repository:\n  url: http://x\nqueries:\n  q:\n    kind: REPORT\n",
		"criteria on tl": "repository:\n  url: http://x\nqueries:\n  q:\n    kind: TOP_LEVEL_PLANNING\n    project_id: 1\n    criteria:\n      status: [New]\n",
	}
	for name, raw := range cases {
		if _, err := config.FromYAML([]byte(raw)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadFromWorkspace(t *testing.T) {
	dir := t.TempDir()
	if cfg, err := config.LoadOptional(dir); err != nil || cfg != nil {
		t.Fatalf("expected nil config, got %v %v", cfg, err)
	}
	if _, err := config.Load(dir); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
	raw := "repository:\n  url: http://localhost\nqueries:\n  mine:\n    kind: CUSTOM\n    tracker_id: 1001\n    criteria:\n      assigned_to: [jdoe]\n"
	if err := os.WriteFile(filepath.Join(dir, "tuleap.yml"), []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	q, ok := cfg.Queries["mine"]
	if !ok || q.TrackerID != 1001 || q.Criteria["assigned_to"][0] != "jdoe" {
		t.Fatalf("unexpected query %+v", q)
	}
}
