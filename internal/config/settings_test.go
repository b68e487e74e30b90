package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	s := loadFrom(filepath.Join(t.TempDir(), "nope.json"))
	if s.Nsec != "" {
		t.Errorf("nsec = %q, want empty", s.Nsec)
	}
	if len(s.Relays) != 1 || s.Relays[0] != "wss://relay.damus.io" {
		t.Errorf("relays = %v, want defaults", s.Relays)
	}
}

func TestLoadInvalidJSONGivesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	os.WriteFile(path, []byte("{corrupt"), 0o600)

	s := loadFrom(path)
	if len(s.Relays) != 1 || s.Relays[0] != "wss://relay.damus.io" {
		t.Errorf("relays = %v, want defaults", s.Relays)
	}
}

func TestLoadCurrentShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	os.WriteFile(path, []byte(`{
		"nsec": "nsec1example",
		"relays": ["wss://a.example", "wss://b.example"],
		"joinedChannels": ["chan1"],
		"language": "en"
	}`), 0o600)

	s := loadFrom(path)
	if s.Nsec != "nsec1example" {
		t.Errorf("nsec = %q", s.Nsec)
	}
	if len(s.Relays) != 2 || s.Relays[0] != "wss://a.example" {
		t.Errorf("relays = %v", s.Relays)
	}
	if len(s.JoinedChannels) != 1 || s.JoinedChannels[0] != "chan1" {
		t.Errorf("joinedChannels = %v", s.JoinedChannels)
	}
	if s.Language != "en" {
		t.Errorf("language = %q", s.Language)
	}
}

func TestLoadMigratesLegacyShape(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	os.WriteFile(path, []byte(`{
		"keys": {"nsec": "nsec1legacy", "npub": "npub1legacy"},
		"relays": ["wss://old.example"]
	}`), 0o600)

	s := loadFrom(path)
	if s.Nsec != "nsec1legacy" {
		t.Errorf("legacy nsec not migrated: %q", s.Nsec)
	}
	if len(s.Relays) != 1 || s.Relays[0] != "wss://old.example" {
		t.Errorf("relays = %v", s.Relays)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "dir", "settings.json")

	s := loadFrom(path)
	s.Nsec = "nsec1saved"
	s.AddRelay("wss://extra.example")
	s.JoinChannel("chan-x")
	if err := s.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded := loadFrom(path)
	if loaded.Nsec != "nsec1saved" {
		t.Errorf("nsec = %q", loaded.Nsec)
	}
	if len(loaded.Relays) != 2 {
		t.Errorf("relays = %v", loaded.Relays)
	}
	if len(loaded.JoinedChannels) != 1 || loaded.JoinedChannels[0] != "chan-x" {
		t.Errorf("joinedChannels = %v", loaded.JoinedChannels)
	}

	// The saved file must not leak internal fields.
	raw, _ := os.ReadFile(path)
	var asMap map[string]interface{}
	if err := json.Unmarshal(raw, &asMap); err != nil {
		t.Fatalf("saved file is not valid JSON: %v", err)
	}
	if _, ok := asMap["path"]; ok {
		t.Error("internal path field serialized")
	}
}

func TestAddRemoveRelay(t *testing.T) {
	s := loadFrom(filepath.Join(t.TempDir(), "settings.json"))

	if !s.AddRelay("wss://new.example") {
		t.Error("AddRelay reported no change for a new relay")
	}
	if s.AddRelay("wss://new.example") {
		t.Error("AddRelay reported a change for a duplicate")
	}
	if !s.RemoveRelay("wss://new.example") {
		t.Error("RemoveRelay reported no change for a present relay")
	}
	if s.RemoveRelay("wss://new.example") {
		t.Error("RemoveRelay reported a change for an absent relay")
	}
}
