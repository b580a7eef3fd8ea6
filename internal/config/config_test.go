package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RedLightDuration != 60*time.Second {
		t.Fatalf("red light duration = %v, want 60s", cfg.RedLightDuration)
	}
	if cfg.CountdownSeconds != 3 {
		t.Fatalf("countdown = %d, want 3", cfg.CountdownSeconds)
	}
	if cfg.RopeThreshold != 0.3 || cfg.CenterPitThreshold != 1.0 {
		t.Fatalf("rope tunables = %v / %v", cfg.RopeThreshold, cfg.CenterPitThreshold)
	}
	if cfg.PositionInterval != 100*time.Millisecond {
		t.Fatalf("position interval = %v, want 100ms", cfg.PositionInterval)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("MINIGAMES_TUG_DURATION", "45s")
	t.Setenv("MINIGAMES_FINISH_Z", "30")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.TugDuration != 45*time.Second {
		t.Fatalf("tug duration = %v, want 45s", cfg.TugDuration)
	}
	if cfg.FinishZ != 30 {
		t.Fatalf("finish z = %v, want 30", cfg.FinishZ)
	}
}

func TestLoadRejectsBadDwellRange(t *testing.T) {
	t.Setenv("MINIGAMES_LIGHT_DWELL_MAX", "1s")
	if _, err := Load(""); err == nil {
		t.Fatal("expected dwell range validation error")
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load("/nonexistent/minigames.yaml"); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
