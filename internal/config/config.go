// Package config manages persistent user preferences for the sync
// client. Settings are stored as JSON at
// os.UserConfigDir()/syncclient/config.json.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"
)

// Config holds all persistent user preferences.
type Config struct {
	Username string        `json:"username"`
	Servers  []ServerEntry `json:"servers"`

	MediaDirectories []string `json:"media_directories"`

	FilenamePrivacy PrivacyMode `json:"filename_privacy"`
	FilesizePrivacy PrivacyMode `json:"filesize_privacy"`

	AutoplayEnabled    bool `json:"autoplay_enabled"`
	AutoplayMinUsers   int  `json:"autoplay_min_users"`
	ReadinessEnabled   bool `json:"readiness_enabled"`
	WarnAboutDesync    bool `json:"warn_about_desync"`
	LoopAtEnd          bool `json:"loop_at_end"`

	RewindThreshold   float64 `json:"rewind_threshold"`
	FastForwardThresh float64 `json:"fast_forward_threshold"`
	SlowdownThreshold float64 `json:"slowdown_threshold"`
	SlowdownRate      float64 `json:"slowdown_rate"`

	TrustedDomains []string `json:"trusted_domains"`
}

// PrivacyMode mirrors the three privacy levels for filename/filesize
// reporting: send raw, send hashed, or don't send at all.
type PrivacyMode string

const (
	PrivacySendRaw    PrivacyMode = "send_raw"
	PrivacySendHashed PrivacyMode = "send_hashed"
	PrivacyDoNotSend  PrivacyMode = "do_not_send"
)

// ServerEntry is a saved server shown in the server history list.
type ServerEntry struct {
	Name string `json:"name"`
	Addr string `json:"addr"`
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		Servers: []ServerEntry{
			{Name: "Local Dev", Addr: "localhost:8999"},
		},
		FilenamePrivacy:   PrivacySendRaw,
		FilesizePrivacy:   PrivacySendRaw,
		AutoplayEnabled:   true,
		AutoplayMinUsers:  2,
		ReadinessEnabled:  true,
		WarnAboutDesync:   true,
		RewindThreshold:   4,
		FastForwardThresh: 5,
		SlowdownThreshold: 1.5,
		SlowdownRate:      0.95,
	}
}

// Path returns the absolute path to the config file.
func Path() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "syncclient", "config.json"), nil
}

// Load reads the config file and returns it. If the file is missing or
// unreadable, the default config is returned — never an error.
func Load() Config {
	path, err := Path()
	if err != nil {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Default()
	}
	cfg := Default()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Default()
	}
	return cfg
}

// Save writes cfg to disk, creating the directory if needed.
func Save(cfg Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// AddServer records addr under name, moving it to the front if already
// present, and caps history at 10 entries.
func (c *Config) AddServer(name, addr string) {
	for i, s := range c.Servers {
		if s.Addr == addr {
			c.Servers = append(c.Servers[:i], c.Servers[i+1:]...)
			break
		}
	}
	c.Servers = append([]ServerEntry{{Name: name, Addr: addr}}, c.Servers...)
	if len(c.Servers) > 10 {
		c.Servers = c.Servers[:10]
	}
}
