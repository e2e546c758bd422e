package main

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestPersistedConfig_SaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CLONEOS_DATA", dir)

	cfg := &persistedConfig{
		APIKey:  "test-key-12345",
		Model:   "gemini-2.5-pro",
		Name:    "TestBot",
		APIAddr: "0.0.0.0:7070",
	}

	if err := savePersistedConfig(cfg); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Check file exists with correct permissions.
	path := filepath.Join(dir, "config.json")
	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perms := info.Mode().Perm(); perms != 0o600 {
		t.Errorf("permissions = %o, want 600", perms)
	}

	loaded, err := loadPersistedConfig()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded == nil {
		t.Fatal("loaded config is nil")
	}
	if loaded.APIKey != "test-key-12345" {
		t.Errorf("api_key = %q", loaded.APIKey)
	}
	if loaded.Model != "gemini-2.5-pro" {
		t.Errorf("model = %q", loaded.Model)
	}
	if loaded.Name != "TestBot" {
		t.Errorf("name = %q", loaded.Name)
	}
	if loaded.APIAddr != "0.0.0.0:7070" {
		t.Errorf("api_addr = %q", loaded.APIAddr)
	}
}

func TestPersistedConfig_LoadMissing(t *testing.T) {
	t.Setenv("CLONEOS_DATA", t.TempDir())

	cfg, err := loadPersistedConfig()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg != nil {
		t.Error("expected nil for missing config")
	}
}

func TestPersistedConfig_LoadInvalid(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CLONEOS_DATA", dir)

	os.WriteFile(filepath.Join(dir, "config.json"), []byte("not json{"), 0o600)

	if _, err := loadPersistedConfig(); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestLoadConfig_FromConfigJSON(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CLONEOS_DATA", dir)
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("CLONEOS_NAME", "")
	t.Setenv("CLONEOS_API_ADDR", "")
	t.Setenv("CLONEOS_MODEL", "")

	cfg := persistedConfig{
		APIKey:  "key-from-config",
		Model:   "gemini-2.5-flash",
		Name:    "ConfigBot",
		APIAddr: "0.0.0.0:7171",
	}
	data, _ := json.MarshalIndent(cfg, "", "  ")
	os.WriteFile(filepath.Join(dir, "config.json"), data, 0o600)

	loaded := loadConfig()

	if loaded.GeminiKey != "key-from-config" {
		t.Errorf("GeminiKey = %q", loaded.GeminiKey)
	}
	if loaded.Model != "gemini-2.5-flash" {
		t.Errorf("Model = %q", loaded.Model)
	}
	if loaded.AgentName != "ConfigBot" {
		t.Errorf("AgentName = %q", loaded.AgentName)
	}
	if loaded.APIAddr != "0.0.0.0:7171" {
		t.Errorf("APIAddr = %q", loaded.APIAddr)
	}
}

func TestLoadConfig_EnvBeatsConfigJSON(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CLONEOS_DATA", dir)
	t.Setenv("GEMINI_API_KEY", "key-from-env")

	cfg := persistedConfig{APIKey: "key-from-config"}
	data, _ := json.Marshal(cfg)
	os.WriteFile(filepath.Join(dir, "config.json"), data, 0o600)

	if loaded := loadConfig(); loaded.GeminiKey != "key-from-env" {
		t.Errorf("GeminiKey = %q, want env value", loaded.GeminiKey)
	}
}

func TestParseGeminiModels(t *testing.T) {
	body := []byte(`{"models": [
		{"name": "models/gemini-2.5-flash", "supportedGenerationMethods": ["generateContent", "countTokens"]},
		{"name": "models/gemini-2.5-pro", "supportedGenerationMethods": ["generateContent"]},
		{"name": "models/text-embedding-004", "supportedGenerationMethods": ["embedContent"]},
		{"name": "models/gemini-embedding-001", "supportedGenerationMethods": ["generateContent"]},
		{"name": "models/gemini-1.5-flash", "supportedGenerationMethods": ["generateContent"]}
	]}`)

	models := parseGeminiModels(body)
	if len(models) != 2 {
		t.Fatalf("models = %v, want 2 entries", models)
	}
	if models[0] != "gemini-2.5-flash" || models[1] != "gemini-2.5-pro" {
		t.Errorf("models = %v", models)
	}
}

func TestParseGeminiModels_Invalid(t *testing.T) {
	if models := parseGeminiModels([]byte("garbage")); models != nil {
		t.Errorf("models = %v, want nil", models)
	}
}

func TestMaskKey(t *testing.T) {
	if got := maskKey(""); got != "" {
		t.Errorf("empty = %q", got)
	}
	if got := maskKey("short"); got != "****" {
		t.Errorf("short = %q", got)
	}
	if got := maskKey("AIzaSyA-long-key-here"); got != "AIza...here" {
		t.Errorf("long = %q", got)
	}
}
