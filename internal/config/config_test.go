package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Addr != "0.0.0.0:8080" {
		t.Errorf("server addr = %q", cfg.Server.Addr)
	}
	if cfg.Database.Path != "data/downbeat.db" {
		t.Errorf("database path = %q", cfg.Database.Path)
	}
	if cfg.Remote.BaseURL != "http://localhost:7171" {
		t.Errorf("remote base url = %q", cfg.Remote.BaseURL)
	}
	if cfg.Engine.PollInterval != 500*time.Millisecond {
		t.Errorf("poll interval = %s", cfg.Engine.PollInterval)
	}
	if cfg.Engine.StallPolls != 600 {
		t.Errorf("stall polls = %d", cfg.Engine.StallPolls)
	}
	if cfg.Engine.RetryMaxDelay != 30*time.Second {
		t.Errorf("retry max delay = %s", cfg.Engine.RetryMaxDelay)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DOWNBEAT_SERVER_ADDR", "127.0.0.1:9090")
	t.Setenv("DOWNBEAT_REMOTE_BASEURL", "http://music-server:7171")
	t.Setenv("DOWNBEAT_ENGINE_POLLINTERVAL", "2s")
	t.Setenv("DOWNBEAT_ENGINE_STALLPOLLS", "50")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Addr != "127.0.0.1:9090" {
		t.Errorf("server addr = %q", cfg.Server.Addr)
	}
	if cfg.Remote.BaseURL != "http://music-server:7171" {
		t.Errorf("remote base url = %q", cfg.Remote.BaseURL)
	}
	if cfg.Engine.PollInterval != 2*time.Second {
		t.Errorf("poll interval = %s", cfg.Engine.PollInterval)
	}
	if cfg.Engine.StallPolls != 50 {
		t.Errorf("stall polls = %d", cfg.Engine.StallPolls)
	}
}
