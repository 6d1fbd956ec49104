package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
backend:
  base_url: https://leads.example.com
  max_retries: 5
cache:
  stats: 30s
fetcher:
  type: mock
  mock_pages:
    - url: https://www.reddit.com/search/?q=go
      content: <html></html>
sync:
  max_leads_per_keyword: 3
  step_pause: 0s
storage:
  path: /tmp/leads.db
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("LEADSYNC_TOKEN", "secret")

	c, err := NewConfigFromFile(path)
	if err != nil {
		t.Fatalf("NewConfigFromFile(%q) returned error: %v", path, err)
	}

	if c.Backend.BaseURL != "https://leads.example.com" {
		t.Errorf("Backend.BaseURL = %q; want %q", c.Backend.BaseURL, "https://leads.example.com")
	}
	if c.Backend.Token != "secret" {
		t.Errorf("Backend.Token = %q; want %q", c.Backend.Token, "secret")
	}
	if c.Backend.MaxRetries != 5 {
		t.Errorf("Backend.MaxRetries = %d; want 5", c.Backend.MaxRetries)
	}
	if c.Backend.TimeoutMS != 30000 {
		t.Errorf("Backend.TimeoutMS = %d; want default 30000", c.Backend.TimeoutMS)
	}
	if c.Cache.Stats != 30*time.Second {
		t.Errorf("Cache.Stats = %v; want 30s", c.Cache.Stats)
	}
	if c.Cache.Campaigns != 5*time.Minute {
		t.Errorf("Cache.Campaigns = %v; want default 5m", c.Cache.Campaigns)
	}
	if c.Fetcher.Type != "mock" || len(c.Fetcher.MockPages) != 1 {
		t.Errorf("Fetcher = %+v; want mock fetcher with one page", c.Fetcher)
	}
	if c.Sync.MaxLeadsPerKeyword != 3 {
		t.Errorf("Sync.MaxLeadsPerKeyword = %d; want 3", c.Sync.MaxLeadsPerKeyword)
	}
	if c.Sync.SubmissionsPerMinute != 30 {
		t.Errorf("Sync.SubmissionsPerMinute = %d; want default 30", c.Sync.SubmissionsPerMinute)
	}
	if c.Storage.Path != "/tmp/leads.db" {
		t.Errorf("Storage.Path = %q; want %q", c.Storage.Path, "/tmp/leads.db")
	}
	if c.Server.Addr != "127.0.0.1:8765" {
		t.Errorf("Server.Addr = %q; want default %q", c.Server.Addr, "127.0.0.1:8765")
	}
}

func TestNewConfigFromEnv(t *testing.T) {
	t.Setenv("LEADSYNC_BACKEND_URL", "http://backend:9000")
	t.Setenv("LEADSYNC_FETCHER", "dynamic")

	c, err := NewConfigFromFile("")
	if err != nil {
		t.Fatalf("NewConfigFromFile(\"\") returned error: %v", err)
	}
	if c.Backend.BaseURL != "http://backend:9000" {
		t.Errorf("Backend.BaseURL = %q; want %q", c.Backend.BaseURL, "http://backend:9000")
	}
	if c.Fetcher.Type != "dynamic" {
		t.Errorf("Fetcher.Type = %q; want %q", c.Fetcher.Type, "dynamic")
	}
	if c.Storage.Path != "leadsync.db" {
		t.Errorf("Storage.Path = %q; want default %q", c.Storage.Path, "leadsync.db")
	}
}

func TestNewConfigFromMissingFile(t *testing.T) {
	if _, err := NewConfigFromFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("NewConfigFromFile with a missing file returned no error")
	}
}
