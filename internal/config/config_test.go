package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.MaxSimultaneousDownloads != 1 {
		t.Errorf("MaxSimultaneousDownloads = %d, want 1", cfg.MaxSimultaneousDownloads)
	}
	if cfg.MinRetryCount != 5 {
		t.Errorf("MinRetryCount = %d, want 5", cfg.MinRetryCount)
	}
	if !cfg.Requirements.Network {
		t.Error("network requirement must default to true")
	}
	if cfg.Requirements.Charging || cfg.Requirements.DeviceIdle {
		t.Error("charging and idle requirements must default to false")
	}
}

func TestLoad_MissingFileReturnsDefault(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.MaxSimultaneousDownloads != 1 {
		t.Errorf("MaxSimultaneousDownloads = %d, want default", cfg.MaxSimultaneousDownloads)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	cfg.Update(func(c *Config) {
		c.MaxSimultaneousDownloads = 4
		c.RateLimitBytesPerSec = 1 << 20
		c.Requirements.Charging = true
		c.Notifications = false
	})
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() error: %v", err)
	}

	loaded, err := Load(dir)
	if err != nil {
		t.Fatalf("reload error: %v", err)
	}
	got := loaded.Get()
	if got.MaxSimultaneousDownloads != 4 {
		t.Errorf("MaxSimultaneousDownloads = %d, want 4", got.MaxSimultaneousDownloads)
	}
	if got.RateLimitBytesPerSec != 1<<20 {
		t.Errorf("RateLimitBytesPerSec = %d, want 1MiB", got.RateLimitBytesPerSec)
	}
	if !got.Requirements.Charging {
		t.Error("charging requirement lost in round trip")
	}
	if got.Notifications {
		t.Error("notifications toggle lost in round trip")
	}
}

func TestLoad_CorruptedFileFallsBackToDefault(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "settings.json"), []byte("{not json"), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.MaxSimultaneousDownloads != 1 {
		t.Errorf("MaxSimultaneousDownloads = %d, want default after corruption", cfg.MaxSimultaneousDownloads)
	}
	// A save after fallback must land in the same file.
	if err := cfg.Save(); err != nil {
		t.Fatalf("Save() error: %v", err)
	}
}

func TestLoad_ClampsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	body := `{"maxSimultaneousDownloads": 0, "minRetryCount": -3}`
	if err := os.WriteFile(filepath.Join(dir, "settings.json"), []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.MaxSimultaneousDownloads != 1 {
		t.Errorf("MaxSimultaneousDownloads = %d, want clamp to 1", cfg.MaxSimultaneousDownloads)
	}
	if cfg.MinRetryCount != 0 {
		t.Errorf("MinRetryCount = %d, want clamp to 0", cfg.MinRetryCount)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OFFLINER_LISTEN_ADDR", "127.0.0.1:9999")
	t.Setenv("OFFLINER_MAX_DOWNLOADS", "7")

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ListenAddr != "127.0.0.1:9999" {
		t.Errorf("ListenAddr = %q, want env override", cfg.ListenAddr)
	}
	if cfg.MaxSimultaneousDownloads != 7 {
		t.Errorf("MaxSimultaneousDownloads = %d, want env override 7", cfg.MaxSimultaneousDownloads)
	}
}
