// Package config persists the session's local state: last-used key,
// relay set, joined channels and language. The file is an opaque blob
// to the rest of the client; loading never fails hard, it falls back to
// defaults with a warning.
package config

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
)

// Settings is the on-disk shape of local state.
type Settings struct {
	Nsec           string   `json:"nsec,omitempty"`
	Relays         []string `json:"relays"`
	JoinedChannels []string `json:"joinedChannels,omitempty"`
	Language       string   `json:"language,omitempty"`
	MediaEndpoint  string   `json:"mediaEndpoint,omitempty"`

	path string
	mu   sync.Mutex
}

// legacySettings is the shape an earlier client wrote: the key lived in
// an embedded keys record.
type legacySettings struct {
	Keys *struct {
		Nsec string `json:"nsec"`
	} `json:"keys"`
	Relays         []string `json:"relays"`
	JoinedChannels []string `json:"joinedChannels"`
	Language       string   `json:"language"`
}

// DefaultRelays is the relay set used before the user configures any.
var DefaultRelays = []string{"wss://relay.damus.io"}

func defaults(path string) *Settings {
	return &Settings{
		Relays: append([]string(nil), DefaultRelays...),
		path:   path,
	}
}

// Path resolves the settings file location: NOSTRCHAT_CONFIG if set,
// otherwise ~/.config/nostrchat/settings.json.
func Path() string {
	if p := os.Getenv("NOSTRCHAT_CONFIG"); p != "" {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "nostrchat-settings.json"
	}
	return filepath.Join(home, ".config", "nostrchat", "settings.json")
}

// Load reads the settings file, migrating the legacy shape when found.
// Missing or unreadable files yield defaults.
func Load() *Settings {
	return loadFrom(Path())
}

func loadFrom(path string) *Settings {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Debug("settings file not found, using defaults", "path", path)
		} else {
			slog.Warn("could not read settings, using defaults", "path", path, "error", err)
		}
		return defaults(path)
	}

	var s Settings
	if err := json.Unmarshal(data, &s); err != nil {
		slog.Warn("invalid settings JSON, using defaults", "path", path, "error", err)
		return defaults(path)
	}

	if s.Nsec == "" {
		// Older clients stored the key inside an embedded keys object.
		var legacy legacySettings
		if err := json.Unmarshal(data, &legacy); err == nil && legacy.Keys != nil && legacy.Keys.Nsec != "" {
			slog.Info("migrating legacy settings shape", "path", path)
			s.Nsec = legacy.Keys.Nsec
		}
	}

	if len(s.Relays) == 0 {
		s.Relays = append([]string(nil), DefaultRelays...)
	}
	s.path = path
	return &s
}

// Save writes the settings back to disk, creating the directory if
// needed. The key is local state only; it never leaves this file.
func (s *Settings) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return err
		}
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0o600)
}

// AddRelay appends a relay URL if not already present. Returns true
// when the set changed.
func (s *Settings) AddRelay(relayURL string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.Relays {
		if existing == relayURL {
			return false
		}
	}
	s.Relays = append(s.Relays, relayURL)
	return true
}

// RemoveRelay drops a relay URL. Returns true when the set changed.
func (s *Settings) RemoveRelay(relayURL string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.Relays {
		if existing == relayURL {
			s.Relays = append(s.Relays[:i], s.Relays[i+1:]...)
			return true
		}
	}
	return false
}

// JoinChannel records a joined channel ID. Returns true when the set
// changed.
func (s *Settings) JoinChannel(channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.JoinedChannels {
		if existing == channelID {
			return false
		}
	}
	s.JoinedChannels = append(s.JoinedChannels, channelID)
	return true
}
