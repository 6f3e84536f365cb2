package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.OutputWidth != 1920 || cfg.OutputHeight != 1080 {
		t.Errorf("default resolution = %dx%d, want 1920x1080", cfg.OutputWidth, cfg.OutputHeight)
	}
	if cfg.TickRate != 30 {
		t.Errorf("default tick rate = %d, want 30", cfg.TickRate)
	}
	if cfg.CommentPollInterval != 5*time.Second {
		t.Errorf("default poll interval = %v, want 5s", cfg.CommentPollInterval)
	}
	if cfg.DBDsn == "" {
		t.Errorf("DBDsn should default to a local DSN")
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("OUTPUT_WIDTH", "1280")
	t.Setenv("OUTPUT_HEIGHT", "720")
	t.Setenv("TICK_RATE", "60")
	t.Setenv("COMMENT_POLL_INTERVAL", "10s")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.OutputWidth != 1280 || cfg.OutputHeight != 720 {
		t.Errorf("resolution = %dx%d, want 1280x720", cfg.OutputWidth, cfg.OutputHeight)
	}
	if cfg.TickRate != 60 {
		t.Errorf("tick rate = %d, want 60", cfg.TickRate)
	}
	if cfg.CommentPollInterval != 10*time.Second {
		t.Errorf("poll interval = %v, want 10s", cfg.CommentPollInterval)
	}
}

func TestLoadInvalid(t *testing.T) {
	t.Setenv("TICK_RATE", "0")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() with TICK_RATE=0 should fail")
	}
	t.Setenv("TICK_RATE", "30")
	t.Setenv("COMMENT_POLL_INTERVAL", "not-a-duration")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() with malformed COMMENT_POLL_INTERVAL should fail")
	}
}

func TestValidateBroadcastReady(t *testing.T) {
	cfg := &Config{}
	if err := cfg.ValidateBroadcastReady(); err == nil {
		t.Errorf("ValidateBroadcastReady() should fail without egress env")
	}
	cfg.EgressURL = "http://egress:7880"
	cfg.RoomURL = "ws://room:7881"
	if err := cfg.ValidateBroadcastReady(); err != nil {
		t.Errorf("ValidateBroadcastReady() unexpected error = %v", err)
	}
}
