package container

import (
	"context"
	"testing"
	"time"

	"animetracker/internal/config"
)

func testConfig() *config.Config {
	return &config.Config{
		APIURL:    "http://localhost:5123",
		Timeout:   time.Second,
		UserAgent: "test",
		LogLevel:  "error",
		LogFormat: "json",
	}
}

func TestNew_WiresClientAndStore(t *testing.T) {
	c, err := New(testConfig())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer c.Close()

	if c.AnimeService.BaseURL() != "http://localhost:5123" {
		t.Errorf("BaseURL = %q", c.AnimeService.BaseURL())
	}
	if c.Store == nil || c.Metrics == nil || c.Registry == nil {
		t.Fatal("container left components nil")
	}
	if f := c.Store.Filter(); f.Page != 1 || f.PageSize != 10 {
		t.Errorf("initial filter = %+v", f)
	}
}

func TestNew_RejectsBadURL(t *testing.T) {
	cfg := testConfig()
	cfg.APIURL = "not a url"
	if _, err := New(cfg); err == nil {
		t.Fatal("expected error for invalid base URL")
	}
}

func TestRouterDeps_DefaultsToMemory(t *testing.T) {
	c, err := New(testConfig())
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	defer c.Close()

	deps, err := c.RouterDeps(context.Background())
	if err != nil {
		t.Fatalf("RouterDeps returned error: %v", err)
	}
	if deps.Repository == nil || deps.Images == nil || deps.MetricsHandler == nil {
		t.Errorf("deps = %+v", deps)
	}
	if c.db != nil {
		t.Error("no pool should be opened without a DSN")
	}
}
