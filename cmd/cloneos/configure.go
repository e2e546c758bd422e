package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/term"
)

// persistedConfig is the JSON structure stored in ~/.cloneos/config.json.
type persistedConfig struct {
	APIKey  string `json:"api_key,omitempty"`  // Gemini API key (stored with 0600 permissions)
	Model   string `json:"model,omitempty"`    // Fast-tier model override
	Name    string `json:"name,omitempty"`     // Persona name
	APIAddr string `json:"api_addr,omitempty"` // API listen address
}

// configFilePath returns the path to config.json.
func configFilePath() string {
	dataDir := os.Getenv("CLONEOS_DATA")
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		dataDir = filepath.Join(home, ".cloneos")
	}
	return filepath.Join(dataDir, "config.json")
}

// loadPersistedConfig reads config.json if it exists.
func loadPersistedConfig() (*persistedConfig, error) {
	path := configFilePath()
	if path == "" {
		return nil, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var cfg persistedConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &cfg, nil
}

// savePersistedConfig writes config.json with 0600 permissions.
func savePersistedConfig(cfg *persistedConfig) error {
	path := configFilePath()
	if path == "" {
		return fmt.Errorf("cannot determine config path")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	// The key lives in this file, keep it owner-only.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// runConfigure runs the interactive configuration wizard.
func runConfigure() {
	fmt.Printf("\n🔧 %s v%s — Configuration Wizard\n\n", appName, version)

	reader := bufio.NewReader(os.Stdin)

	existing, _ := loadPersistedConfig()
	if existing == nil {
		existing = &persistedConfig{}
	}
	cfg := &persistedConfig{}

	// Step 1: API key.
	masked := maskKey(existing.APIKey)
	if masked != "" {
		fmt.Printf("  Current API key: %s\n", masked)
		fmt.Print("  Enter new Gemini API key (or press Enter to keep current): ")
	} else {
		fmt.Print("  Enter your Gemini API key: ")
	}
	key := readSecretLine(reader)
	switch {
	case key == "" && existing.APIKey != "":
		key = existing.APIKey
		fmt.Println("  ✓ Keeping existing key")
	case key != "":
		fmt.Println("  ✓ API key saved")
	default:
		fmt.Println("  ⚠ No API key provided. You can set it later.")
	}
	cfg.APIKey = key
	fmt.Println()

	// Step 2: Model. Fetch the live list when the key works.
	fmt.Print("  Connecting to Gemini... ")
	models := fetchGeminiModels(cfg.APIKey)
	defaultModel := "gemini-2.5-flash"
	if existing.Model != "" {
		defaultModel = existing.Model
	}
	if len(models) > 0 {
		fmt.Printf("OK, %d models available\n\n", len(models))
		idx := numberedSelect(reader, models, indexOf(models, defaultModel))
		if idx >= 0 {
			cfg.Model = models[idx]
		} else {
			cfg.Model = promptString(reader, "Model name", defaultModel)
		}
	} else {
		fmt.Println("could not reach provider")
		fmt.Println("  Check your API key and network connection.")
		fmt.Println()
		cfg.Model = promptString(reader, "Model name", defaultModel)
	}
	fmt.Printf("  ✓ Model: %s\n\n", cfg.Model)

	// Step 3: Persona name.
	defaultName := "Nova"
	if existing.Name != "" {
		defaultName = existing.Name
	}
	cfg.Name = promptString(reader, "Persona name", defaultName)
	fmt.Printf("  ✓ Persona name: %s\n\n", cfg.Name)

	// Step 4: Listen address.
	defaultAddr := "127.0.0.1:7070"
	if existing.APIAddr != "" {
		defaultAddr = existing.APIAddr
	}
	cfg.APIAddr = promptString(reader, "API listen address", defaultAddr)
	fmt.Printf("  ✓ Listen address: %s\n\n", cfg.APIAddr)

	if err := savePersistedConfig(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error saving config: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("  ✓ Configuration saved to %s\n\n", configFilePath())

	fmt.Print("  Testing connection... ")
	if err := testProviderConnection(cfg.APIKey); err != nil {
		fmt.Printf("⚠ %v\n", err)
		fmt.Println("  You can fix this later and re-run: cloneos configure")
	} else {
		fmt.Println("✓ Connected!")
	}

	fmt.Printf("\n  Ready! Run: %s start\n\n", appName)
}

const geminiModelsURL = "https://generativelanguage.googleapis.com/v1beta/models"

// testProviderConnection checks the key against the model list endpoint.
func testProviderConnection(apiKey string) error {
	if apiKey == "" {
		return fmt.Errorf("no API key configured")
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(geminiModelsURL + "?key=" + url.QueryEscape(apiKey))
	if err != nil {
		return fmt.Errorf("connection failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == 400 || resp.StatusCode == 401 || resp.StatusCode == 403 {
		return fmt.Errorf("authentication failed (HTTP %d), check your API key", resp.StatusCode)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("server error (HTTP %d)", resp.StatusCode)
	}
	return nil
}

// fetchGeminiModels lists models that support generateContent.
// Returns nil if the API is unreachable or returns an error.
func fetchGeminiModels(apiKey string) []string {
	if apiKey == "" {
		return nil
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Get(geminiModelsURL + "?pageSize=100&key=" + url.QueryEscape(apiKey))
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil
	}
	return parseGeminiModels(body)
}

// parseGeminiModels extracts usable model IDs from the list response.
func parseGeminiModels(body []byte) []string {
	var resp struct {
		Models []struct {
			Name             string   `json:"name"`
			SupportedMethods []string `json:"supportedGenerationMethods"`
		} `json:"models"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil
	}

	var models []string
	for _, m := range resp.Models {
		supported := false
		for _, method := range m.SupportedMethods {
			if method == "generateContent" {
				supported = true
				break
			}
		}
		if !supported {
			continue
		}
		id := strings.TrimPrefix(m.Name, "models/")
		// Skip embedding and legacy families.
		if strings.Contains(id, "embedding") || strings.HasPrefix(id, "gemini-1.") {
			continue
		}
		models = append(models, id)
	}
	return models
}

// runDoctor checks the configuration for issues.
func runDoctor() {
	fmt.Printf("\n🔍 %s v%s — Doctor\n\n", appName, version)

	issues := 0
	checks := 0

	checks++
	dataDir := os.Getenv("CLONEOS_DATA")
	if dataDir == "" {
		home, _ := os.UserHomeDir()
		dataDir = filepath.Join(home, ".cloneos")
	}
	if info, err := os.Stat(dataDir); err != nil {
		fmt.Printf("  ✗ Data directory: %s (does not exist)\n", dataDir)
		issues++
	} else if !info.IsDir() {
		fmt.Printf("  ✗ Data directory: %s (not a directory)\n", dataDir)
		issues++
	} else {
		fmt.Printf("  ✓ Data directory: %s\n", dataDir)
	}

	checks++
	cfgPath := configFilePath()
	cfg, err := loadPersistedConfig()
	if err != nil {
		fmt.Printf("  ✗ Config file: %s (%v)\n", cfgPath, err)
		issues++
	} else if cfg == nil {
		fmt.Printf("  ✗ Config file: not found — run: cloneos configure\n")
		issues++
	} else {
		info, _ := os.Stat(cfgPath)
		perms := info.Mode().Perm()
		if perms&0o077 != 0 {
			fmt.Printf("  ⚠ Config file: %s (permissions %o — should be 600)\n", cfgPath, perms)
			issues++
		} else {
			fmt.Printf("  ✓ Config file: %s (permissions %o)\n", cfgPath, perms)
		}
	}

	checks++
	key := ""
	source := ""
	if cfg != nil && cfg.APIKey != "" {
		key, source = cfg.APIKey, "config"
	} else if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		key, source = v, "env GEMINI_API_KEY"
	}
	if key != "" {
		fmt.Printf("  ✓ API key: %s (from %s)\n", maskKey(key), source)
	} else {
		fmt.Printf("  ✗ API key: not found\n")
		issues++
	}

	checks++
	if key != "" {
		fmt.Print("  … Testing connection... ")
		if err := testProviderConnection(key); err != nil {
			fmt.Printf("✗ %v\n", err)
			issues++
		} else {
			fmt.Println("✓")
		}
	} else {
		fmt.Println("  … Connection: skipped (no key)")
	}

	checks++
	dbPath := filepath.Join(dataDir, "cloneos.db")
	if info, err := os.Stat(dbPath); err == nil {
		fmt.Printf("  ✓ Database: %s (%d KB)\n", dbPath, info.Size()/1024)
	} else {
		fmt.Printf("  … Database: not created yet (will be created on first run)\n")
	}

	fmt.Println()
	if issues == 0 {
		fmt.Printf("  All %d checks passed! ✓\n\n", checks)
	} else {
		fmt.Printf("  %d/%d checks passed, %d issue(s) found.\n\n", checks-issues, checks, issues)
	}
}

// --- Terminal helpers ---

// numberedSelect shows a numbered list and reads a choice. Returns the
// 0-based index, or -1 if the user asked to type a name manually.
func numberedSelect(reader *bufio.Reader, items []string, defaultIdx int) int {
	fmt.Println("Select default model:")
	fmt.Println()
	for i, item := range items {
		marker := "  "
		if i == defaultIdx {
			marker = "→ "
		}
		fmt.Printf("  %s%d) %s\n", marker, i+1, item)
	}
	fmt.Printf("  %d) Other (type manually)\n\n", len(items)+1)

	defaultStr := ""
	if defaultIdx >= 0 {
		defaultStr = fmt.Sprintf("%d", defaultIdx+1)
	}

	for {
		if defaultStr != "" {
			fmt.Printf("  Choose [%s]: ", defaultStr)
		} else {
			fmt.Print("  Choose: ")
		}

		line, _ := reader.ReadString('\n')
		line = strings.TrimSpace(line)
		if line == "" && defaultStr != "" {
			line = defaultStr
		}

		var choice int
		if _, err := fmt.Sscanf(line, "%d", &choice); err == nil && choice >= 1 && choice <= len(items)+1 {
			if choice == len(items)+1 {
				return -1
			}
			return choice - 1
		}
		fmt.Printf("  Enter a number between 1 and %d.\n", len(items)+1)
	}
}

func indexOf(items []string, want string) int {
	for i, item := range items {
		if item == want {
			return i
		}
	}
	return 0
}

// promptString asks for a string input with a default value.
func promptString(reader *bufio.Reader, prompt, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("  %s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Printf("  %s: ", prompt)
	}

	line, _ := reader.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return defaultVal
	}
	return line
}

// readSecretLine reads a line without echoing (for API keys).
func readSecretLine(reader *bufio.Reader) string {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		password, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err == nil {
			return strings.TrimSpace(string(password))
		}
	}

	// Fallback: read normally.
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func maskKey(key string) string {
	switch {
	case key == "":
		return ""
	case len(key) > 8:
		return key[:4] + "..." + key[len(key)-4:]
	default:
		return "****"
	}
}
