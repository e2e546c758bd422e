// Package main is the entry point for the cloneos daemon.
//
// Usage:
//
//	cloneos run "<goal>"  — execute one goal and print the trace
//	cloneos start         — daemon mode (HTTP API)
//	cloneos status        — check daemon health
//	cloneos configure     — interactive setup
//	cloneos doctor        — check configuration
//	cloneos version       — print version
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/cloneos/cloneos/internal/experience"
	"github.com/cloneos/cloneos/internal/gateway"
	"github.com/cloneos/cloneos/internal/ledger"
	"github.com/cloneos/cloneos/internal/observability"
	"github.com/cloneos/cloneos/internal/orchestrator"
	"github.com/cloneos/cloneos/internal/profile"
	"github.com/cloneos/cloneos/internal/server"
	"github.com/cloneos/cloneos/internal/session"
	"github.com/cloneos/cloneos/internal/social"
	"github.com/cloneos/cloneos/internal/storage"
	"github.com/cloneos/cloneos/internal/task"
	"github.com/cloneos/cloneos/internal/vault"
	"github.com/cloneos/cloneos/internal/windows"
	"github.com/cloneos/cloneos/internal/workspace"
)

const (
	version = "0.1.0"
	appName = "cloneos"
)

// Config holds the daemon configuration.
type Config struct {
	DataDir   string
	APIAddr   string
	AgentName string
	GeminiKey string
	Model     string
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch cmd := os.Args[1]; cmd {
	case "run":
		if len(os.Args) < 3 || os.Args[2] == "" {
			fmt.Fprintln(os.Stderr, "usage: cloneos run \"<goal>\"")
			os.Exit(1)
		}
		runOnce(os.Args[2])
	case "start":
		runDaemon()
	case "status":
		runStatus()
	case "configure":
		runConfigure()
	case "doctor":
		runDoctor()
	case "version":
		fmt.Printf("%s v%s\n", appName, version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `%s v%s — autonomous AI desktop

Usage:
  %s <command>

Commands:
  run "<goal>"  Execute one goal end to end and print the trace
  start         Start daemon (HTTP API)
  status        Check daemon health (requires running daemon)
  configure     Interactive setup wizard
  doctor        Check configuration for issues
  version       Print version

Environment variables:
  GEMINI_API_KEY     Gemini API key
  CLONEOS_DATA       Data directory (default: ~/.cloneos)
  CLONEOS_API_ADDR   API listen address (default: 127.0.0.1:7070)
  CLONEOS_NAME       Persona name (default: Nova)
  CLONEOS_MODEL      Fast-tier model override

`, appName, version, appName)
}

// loadConfig merges config.json with environment overrides. Env wins.
func loadConfig() Config {
	cfg := Config{
		APIAddr:   "127.0.0.1:7070",
		AgentName: profile.Default().Name,
	}

	if persisted, err := loadPersistedConfig(); err == nil && persisted != nil {
		if persisted.APIKey != "" {
			cfg.GeminiKey = persisted.APIKey
		}
		if persisted.Model != "" {
			cfg.Model = persisted.Model
		}
		if persisted.Name != "" {
			cfg.AgentName = persisted.Name
		}
		if persisted.APIAddr != "" {
			cfg.APIAddr = persisted.APIAddr
		}
	}

	if v := os.Getenv("CLONEOS_DATA"); v != "" {
		cfg.DataDir = v
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			cfg.DataDir = filepath.Join(home, ".cloneos")
		}
	}
	if v := os.Getenv("CLONEOS_API_ADDR"); v != "" {
		cfg.APIAddr = v
	}
	if v := os.Getenv("CLONEOS_NAME"); v != "" {
		cfg.AgentName = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.GeminiKey = v
	}
	if v := os.Getenv("CLONEOS_MODEL"); v != "" {
		cfg.Model = v
	}
	return cfg
}

// app holds the wired subsystems for one process.
type app struct {
	cfg      Config
	logger   *observability.Logger
	metrics  *observability.MetricsCollector
	store    *storage.SQLiteStore
	session  *session.Store
	gateway  *gateway.Gateway
	registry *task.Registry
	ledger   *ledger.Ledger
	exps     *experience.Log
	windows  *windows.Registry
	vault    *vault.Vault
	files    *workspace.Workspace
	feed     *social.Feed
	engine   *orchestrator.Engine

	mu      sync.Mutex
	persona profile.Profile
	theme   profile.Theme
}

// bootstrap initializes all subsystems and restores session state.
func bootstrap(cfg Config) (*app, error) {
	if cfg.GeminiKey == "" {
		return nil, fmt.Errorf("no API key set (GEMINI_API_KEY or cloneos configure)")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	a := &app{
		cfg:     cfg,
		logger:  observability.NewLogger(cfg.AgentName, os.Stderr),
		metrics: observability.NewMetricsCollector(0),
		persona: profile.Default(),
		theme:   profile.DefaultTheme(),
	}
	a.persona.Name = cfg.AgentName

	store, err := storage.NewSQLiteStore(filepath.Join(cfg.DataDir, "cloneos.db"))
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	a.store = store
	a.session = session.NewStore(store, a.logger)

	models := gateway.DefaultModelSet()
	if cfg.Model != "" {
		models.Fast = cfg.Model
	}
	provider := gateway.NewGeminiProvider(cfg.GeminiKey,
		gateway.WithGeminiDefaultModel(models.Fast))
	a.gateway = gateway.New(provider, a.logger,
		gateway.WithModelSet(models),
		gateway.WithMetrics(a.metrics))

	a.registry = task.NewRegistry(20)
	a.ledger = ledger.New(ledger.DefaultCap)
	a.exps = experience.NewLog(experience.DefaultCap)
	a.files = workspace.New()
	a.vault = vault.New(store)
	a.feed = social.NewFeed(social.DefaultCap)

	if err := a.restore(context.Background()); err != nil {
		store.Close()
		return nil, err
	}

	a.engine = orchestrator.New(orchestrator.Dependencies{
		Gateway:     a.gateway,
		Registry:    a.registry,
		Ledger:      a.ledger,
		Experiences: a.exps,
		Distiller:   experience.NewDistiller(a.gateway, a.logger),
		Logger:      a.logger,
		Workspace:   a.files,
		Metrics:     a.metrics,
		Profile:     a.profile,
	})

	a.logger.Info("subsystems ready", "data_dir", cfg.DataDir)
	return a, nil
}

func (a *app) profile() profile.Profile {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.persona
}

func (a *app) setProfile(p profile.Profile) {
	a.mu.Lock()
	a.persona = p
	a.mu.Unlock()
}

func (a *app) getTheme() profile.Theme {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.theme
}

func (a *app) setTheme(t profile.Theme) {
	a.mu.Lock()
	a.theme = t
	a.mu.Unlock()
}

// restore loads each session slice, falling back to defaults per slice.
func (a *app) restore(ctx context.Context) error {
	var p profile.Profile
	ok, err := a.session.Load(ctx, session.KeyProfile, &p)
	if err != nil {
		return err
	}
	if ok && p.Valid() {
		a.setProfile(p)
	}

	var snap windows.Snapshot
	if ok, err := a.session.Load(ctx, session.KeyWindows, &snap); err != nil {
		return err
	} else if ok {
		a.windows = windows.Restore(snap)
	} else {
		a.windows = windows.NewRegistry()
	}

	var entries []ledger.Entry
	if ok, err := a.session.Load(ctx, session.KeyLedger, &entries); err != nil {
		return err
	} else if ok {
		a.ledger.Restore(entries)
	}

	var exps []experience.Experience
	if ok, err := a.session.Load(ctx, session.KeyExperience, &exps); err != nil {
		return err
	} else if ok {
		a.exps.Restore(exps)
	}

	var files []workspace.File
	if ok, err := a.session.Load(ctx, session.KeyCodeFiles, &files); err != nil {
		return err
	} else if ok {
		a.files.Restore(files)
	}

	var posts []social.Post
	if ok, err := a.session.Load(ctx, session.KeySocial, &posts); err != nil {
		return err
	} else if ok {
		a.feed.Restore(posts)
	}

	var theme profile.Theme
	if ok, err := a.session.Load(ctx, session.KeyTheme, &theme); err != nil {
		return err
	} else if ok && theme.Valid() {
		a.setTheme(theme)
	}
	return nil
}

// persist writes every session slice. Failures are logged, not fatal.
func (a *app) persist(ctx context.Context) {
	slices := map[string]any{
		session.KeyProfile:    a.profile(),
		session.KeyWindows:    a.windows.Snapshot(),
		session.KeyLedger:     a.ledger.All(),
		session.KeyExperience: a.exps.All(),
		session.KeyCodeFiles:  a.files.List(),
		session.KeySocial:     a.feed.All(),
		session.KeyTheme:      a.getTheme(),
	}
	for key, value := range slices {
		if err := a.session.Save(ctx, key, value); err != nil {
			a.logger.Warn("session slice not saved", "slice", key, "error", err.Error())
		}
	}
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("storage close", "error", err.Error())
	}
}

// runOnce executes a single goal and prints the resulting trace.
func runOnce(goal string) {
	cfg := loadConfig()
	a, err := bootstrap(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer a.close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	t, err := a.engine.Run(ctx, goal)
	a.persist(context.Background())
	if err != nil {
		if gateway.RateLimited(err) {
			fmt.Fprintln(os.Stderr, "quota exhausted, wait before retrying")
		} else {
			fmt.Fprintf(os.Stderr, "run: %v\n", err)
		}
		os.Exit(1)
	}

	printTrace(t)
	if n := a.files.Len(); n > 0 {
		fmt.Printf("\n%d code file(s) extracted\n", n)
	}
	if recent := a.exps.Recent(1); len(recent) > 0 && len(recent[0].Lessons) > 0 {
		fmt.Println("\nLessons:")
		for _, l := range recent[0].Lessons {
			fmt.Printf("  - %s\n", l)
		}
	}
}

func printTrace(t *task.Task) {
	fmt.Printf("task %s — %s\n", t.ID, t.Status)
	if len(t.Agents) > 0 {
		fmt.Println("\nAgents:")
		for _, ag := range t.Agents {
			fmt.Printf("  %s (%s) — %s\n", ag.Name, ag.Specialization, ag.Status)
		}
	}
	fmt.Println("\nSubtasks:")
	for i, st := range t.Subtasks {
		fmt.Printf("  %d. [%s] %s\n", i+1, st.Status, st.Title)
		if st.Result != "" {
			fmt.Printf("     %s\n", st.Result)
		}
		for _, fb := range st.FeedbackLoop {
			fmt.Printf("     feedback (%s): %s\n", fb.Type, fb.Suggestion)
		}
	}
	for _, insight := range t.SharedInsights {
		fmt.Printf("\ninsight: %s\n", insight)
	}
}

// runDaemon starts the HTTP API and blocks until a shutdown signal.
func runDaemon() {
	cfg := loadConfig()
	a, err := bootstrap(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap: %v\n", err)
		os.Exit(1)
	}
	defer a.close()

	srv := server.New(cfg.APIAddr, server.Dependencies{
		Engine:      a.engine,
		Gateway:     a.gateway,
		Registry:    a.registry,
		Ledger:      a.ledger,
		Experiences: a.exps,
		Windows:     a.windows,
		Vault:       a.vault,
		Feed:        a.feed,
		Workspace:   a.files,
		Metrics:     a.metrics,
		Logger:      a.logger,
		Profile:     a.profile,
		SetProfile:  a.setProfile,
		Theme:       a.getTheme,
		SetTheme:    a.setTheme,
		Persist:     a.persist,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a.logger.Info("daemon starting", "version", version, "addr", cfg.APIAddr)
	if err := srv.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "daemon: %v\n", err)
		os.Exit(1)
	}

	a.persist(context.Background())
	a.logger.Info("shutdown complete")
}

// runStatus checks whether the daemon answers on its health endpoint.
func runStatus() {
	cfg := loadConfig()

	client := &http.Client{Timeout: 3 * time.Second}
	resp, err := client.Get(fmt.Sprintf("http://%s/health", cfg.APIAddr))
	if err != nil {
		fmt.Printf("daemon is NOT running at %s: %v\n", cfg.APIAddr, err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		fmt.Printf("daemon is running at %s\n", cfg.APIAddr)
	} else {
		fmt.Printf("daemon returned status %d\n", resp.StatusCode)
		os.Exit(1)
	}
}
