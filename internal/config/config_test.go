package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/watchtogether/syncclient/internal/config"
)

func TestDefault(t *testing.T) {
	cfg := config.Default()
	if cfg.FilenamePrivacy != config.PrivacySendRaw {
		t.Errorf("expected raw filename privacy, got %q", cfg.FilenamePrivacy)
	}
	if !cfg.AutoplayEnabled {
		t.Error("expected autoplay enabled by default")
	}
	if !cfg.ReadinessEnabled {
		t.Error("expected readiness enabled by default")
	}
	if cfg.RewindThreshold != 4 {
		t.Errorf("expected rewind threshold 4, got %v", cfg.RewindThreshold)
	}
	if len(cfg.Servers) == 0 {
		t.Error("expected at least one default server")
	}
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	cfg := config.Config{
		Username:          "alice",
		MediaDirectories:  []string{"/home/alice/Videos"},
		FilenamePrivacy:   config.PrivacySendHashed,
		FilesizePrivacy:   config.PrivacyDoNotSend,
		AutoplayEnabled:   true,
		AutoplayMinUsers:  3,
		RewindThreshold:   6,
		FastForwardThresh: 8,
		SlowdownThreshold: 2,
		SlowdownRate:      0.9,
		Servers: []config.ServerEntry{
			{Name: "Home", Addr: "192.168.1.10:8999"},
		},
	}

	if err := config.Save(cfg); err != nil {
		t.Fatalf("Save: %v", err)
	}

	loaded := config.Load()
	if loaded.Username != cfg.Username {
		t.Errorf("username: want %q got %q", cfg.Username, loaded.Username)
	}
	if loaded.FilenamePrivacy != cfg.FilenamePrivacy {
		t.Errorf("filename privacy: want %q got %q", cfg.FilenamePrivacy, loaded.FilenamePrivacy)
	}
	if loaded.RewindThreshold != cfg.RewindThreshold {
		t.Errorf("rewind threshold: want %v got %v", cfg.RewindThreshold, loaded.RewindThreshold)
	}
	if len(loaded.Servers) != 1 || loaded.Servers[0].Addr != "192.168.1.10:8999" {
		t.Errorf("servers: unexpected value %+v", loaded.Servers)
	}
	if len(loaded.MediaDirectories) != 1 || loaded.MediaDirectories[0] != "/home/alice/Videos" {
		t.Errorf("media directories: unexpected value %+v", loaded.MediaDirectories)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	cfg := config.Load()
	if cfg.RewindThreshold != 4 {
		t.Error("expected defaults from missing config file")
	}
}

func TestLoadCorruptFile(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	path := filepath.Join(dir, "syncclient", "config.json")
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("not json {{{"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := config.Load()
	if cfg.RewindThreshold != 4 {
		t.Errorf("expected default rewind threshold on corrupt file, got %v", cfg.RewindThreshold)
	}
}

func TestSaveCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", dir)

	if err := config.Save(config.Default()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	path := filepath.Join(dir, "syncclient", "config.json")
	if _, err := os.Stat(path); err != nil {
		t.Errorf("config file not created: %v", err)
	}
}

func TestAddServerDedupesAndCapsHistory(t *testing.T) {
	cfg := config.Default()
	cfg.Servers = nil
	for i := 0; i < 12; i++ {
		cfg.AddServer("server", "host:1")
	}
	if len(cfg.Servers) != 1 {
		t.Fatalf("expected dedup to collapse repeats, got %d entries", len(cfg.Servers))
	}

	for i := 0; i < 15; i++ {
		cfg.AddServer("server", string(rune('a'+i))+":1")
	}
	if len(cfg.Servers) != 10 {
		t.Errorf("expected history capped at 10, got %d", len(cfg.Servers))
	}
}
