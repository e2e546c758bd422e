// Package server exposes the daemon's HTTP surface: task submission and
// steering, the ledger, windows, vault search, experiences, chat, the
// social feed, and the model's analysis helpers.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cloneos/cloneos/internal/experience"
	"github.com/cloneos/cloneos/internal/gateway"
	"github.com/cloneos/cloneos/internal/ledger"
	"github.com/cloneos/cloneos/internal/observability"
	"github.com/cloneos/cloneos/internal/orchestrator"
	"github.com/cloneos/cloneos/internal/profile"
	"github.com/cloneos/cloneos/internal/social"
	"github.com/cloneos/cloneos/internal/task"
	"github.com/cloneos/cloneos/internal/vault"
	"github.com/cloneos/cloneos/internal/windows"
	"github.com/cloneos/cloneos/internal/workspace"
)

// Dependencies holds the subsystems the server fronts.
// Workspace, Metrics, and Persist are optional (nil-safe).
type Dependencies struct {
	Engine      *orchestrator.Engine
	Gateway     *gateway.Gateway
	Registry    *task.Registry
	Ledger      *ledger.Ledger
	Experiences *experience.Log
	Windows     *windows.Registry
	Vault       *vault.Vault
	Feed        *social.Feed
	Logger      *observability.Logger

	Workspace *workspace.Workspace
	Metrics   *observability.MetricsCollector

	// Profile reads and replaces the persona; Theme does the same for
	// the appearance preference.
	Profile    func() profile.Profile
	SetProfile func(profile.Profile)
	Theme      func() profile.Theme
	SetTheme   func(profile.Theme)

	// Persist flushes session slices after mutating requests.
	Persist func(ctx context.Context)
}

// Server is the HTTP daemon.
type Server struct {
	addr string
	deps Dependencies
	srv  *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// New creates a server listening on addr (":0" picks a free port).
func New(addr string, deps Dependencies) *Server {
	if deps.Profile == nil {
		deps.Profile = func() profile.Profile { return profile.Default() }
	}
	if deps.Theme == nil {
		deps.Theme = func() profile.Theme { return profile.DefaultTheme() }
	}
	if deps.Feed == nil {
		deps.Feed = social.NewFeed(social.DefaultCap)
	}
	return &Server{addr: addr, deps: deps}
}

// Start launches the HTTP server and blocks until ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	start := time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
			"uptime": time.Since(start).String(),
		})
	})

	mux.HandleFunc("POST /tasks", s.handleSubmitTask)
	mux.HandleFunc("GET /tasks/active", s.handleActiveTask)
	mux.HandleFunc("GET /tasks/{id}", s.handleGetTask)
	mux.HandleFunc("POST /tasks/active/subtasks/{id}/refine", s.handleRefine)
	mux.HandleFunc("POST /tasks/active/subtasks/{id}/intervene", s.handleIntervene)

	mux.HandleFunc("GET /ledger", s.handleLedger)
	mux.HandleFunc("GET /experiences", s.handleExperiences)

	mux.HandleFunc("GET /windows", s.handleWindows)
	mux.HandleFunc("POST /windows/arrange", s.handleArrange)
	mux.HandleFunc("POST /windows/minimize-all", s.handleMinimizeAll)
	mux.HandleFunc("POST /windows/{id}/{op}", s.handleWindowOp)

	mux.HandleFunc("GET /vault", s.handleVaultList)
	mux.HandleFunc("POST /vault", s.handleVaultSave)
	mux.HandleFunc("GET /vault/search", s.handleVaultSearch)

	mux.HandleFunc("GET /files", s.handleFiles)
	mux.HandleFunc("GET /profile", s.handleGetProfile)
	mux.HandleFunc("PUT /profile", s.handlePutProfile)
	mux.HandleFunc("GET /theme", s.handleGetTheme)
	mux.HandleFunc("PUT /theme", s.handlePutTheme)
	mux.HandleFunc("POST /chat", s.handleChat)

	mux.HandleFunc("GET /feed", s.handleFeed)
	mux.HandleFunc("POST /feed", s.handlePostToFeed)

	mux.HandleFunc("POST /analyze/sentiment", s.handleAnalyzeSentiment)
	mux.HandleFunc("POST /analyze/code", s.handleAnalyzeCode)
	mux.HandleFunc("POST /analyze/image", s.handleAnalyzeImage)
	mux.HandleFunc("POST /images", s.handleGenerateImage)

	s.srv = &http.Server{
		Addr:              s.addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("server: listen: %w", err)
	}
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.srv.Shutdown(shutdownCtx)
	}()

	s.deps.Logger.Info("daemon listening", "addr", ln.Addr().String())
	if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: serve: %w", err)
	}
	return nil
}

// Addr returns the bound address, useful with ":0" in tests.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

func (s *Server) handleSubmitTask(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Goal string `json:"goal"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Goal == "" {
		writeError(w, http.StatusBadRequest, "goal required")
		return
	}

	if active := s.deps.Registry.Active(); active != nil && !active.Terminal() {
		writeError(w, http.StatusConflict, "a task is already in flight")
		return
	}

	go func() {
		// The run outlives the request.
		ctx := context.Background()
		if _, err := s.deps.Engine.Run(ctx, req.Goal); err != nil {
			if gateway.RateLimited(err) {
				s.deps.Logger.Warn("task hit quota, wait before retrying", "error", err.Error())
			} else {
				s.deps.Logger.Error("task run failed", "error", err.Error())
			}
		}
		s.persist(ctx)
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted", "goal": req.Goal})
}

func (s *Server) handleActiveTask(w http.ResponseWriter, r *http.Request) {
	t := s.deps.Registry.Active()
	if t == nil {
		writeError(w, http.StatusNotFound, "no active task")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	t := s.deps.Registry.Get(r.PathValue("id"))
	if t == nil {
		writeError(w, http.StatusNotFound, "task not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleRefine(w http.ResponseWriter, r *http.Request) {
	active := s.deps.Registry.Active()
	if active == nil {
		writeError(w, http.StatusNotFound, "no active task")
		return
	}
	t, err := s.deps.Engine.Refine(r.Context(), active.ID, r.PathValue("id"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	s.persist(r.Context())
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleIntervene(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Directive string `json:"directive"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Directive == "" {
		writeError(w, http.StatusBadRequest, "directive required")
		return
	}
	active := s.deps.Registry.Active()
	if active == nil {
		writeError(w, http.StatusNotFound, "no active task")
		return
	}
	t, err := s.deps.Engine.Intervene(r.Context(), active.ID, r.PathValue("id"), req.Directive)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	s.persist(r.Context())
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleLedger(w http.ResponseWriter, r *http.Request) {
	n := queryInt(r, "n", 0)
	var entries []ledger.Entry
	if n > 0 {
		entries = s.deps.Ledger.Recent(n)
	} else {
		entries = s.deps.Ledger.All()
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleExperiences(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Experiences.Recent(queryInt(r, "n", 0)))
}

func (s *Server) handleWindows(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Windows.Snapshot())
}

func (s *Server) handleArrange(w http.ResponseWriter, r *http.Request) {
	s.deps.Windows.Arrange()
	s.deps.Ledger.Append(ledger.CategoryAction, "Arranged windows")
	s.persist(r.Context())
	writeJSON(w, http.StatusOK, s.deps.Windows.Snapshot())
}

func (s *Server) handleMinimizeAll(w http.ResponseWriter, r *http.Request) {
	s.deps.Windows.MinimizeAll()
	s.persist(r.Context())
	writeJSON(w, http.StatusOK, s.deps.Windows.Snapshot())
}

func (s *Server) handleWindowOp(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var state windows.State
	switch r.PathValue("op") {
	case "open":
		state = s.deps.Windows.Open(id)
	case "close":
		state = s.deps.Windows.Close(id)
	case "focus":
		state = s.deps.Windows.Focus(id)
	case "minimize":
		state = s.deps.Windows.Minimize(id)
	case "maximize":
		state = s.deps.Windows.ToggleMaximize(id)
	default:
		writeError(w, http.StatusNotFound, "unknown window operation")
		return
	}
	s.persist(r.Context())
	writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleVaultList(w http.ResponseWriter, r *http.Request) {
	items, err := s.deps.Vault.List(r.Context(), queryInt(r, "limit", 0))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleVaultSave(w http.ResponseWriter, r *http.Request) {
	var item vault.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		writeError(w, http.StatusBadRequest, "invalid item")
		return
	}
	saved, err := s.deps.Vault.Save(r.Context(), item)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

func (s *Server) handleVaultSearch(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, http.StatusBadRequest, "q required")
		return
	}
	items, err := s.deps.Vault.Search(r.Context(), q, queryInt(r, "limit", 20))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	if s.deps.Workspace == nil {
		writeJSON(w, http.StatusOK, []workspace.File{})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Workspace.List())
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Profile())
}

func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	var p profile.Profile
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil || !p.Valid() {
		writeError(w, http.StatusBadRequest, "invalid profile")
		return
	}
	if s.deps.SetProfile != nil {
		s.deps.SetProfile(p)
	}
	s.persist(r.Context())
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeError(w, http.StatusBadRequest, "message required")
		return
	}

	reply, err := s.deps.Gateway.Converse(r.Context(), req.Message,
		s.deps.Profile().SystemInstruction(), s)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	s.persist(r.Context())
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

func (s *Server) handleGetTheme(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Theme())
}

func (s *Server) handlePutTheme(w http.ResponseWriter, r *http.Request) {
	var t profile.Theme
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil || !t.Valid() {
		writeError(w, http.StatusBadRequest, "invalid theme")
		return
	}
	if s.deps.SetTheme != nil {
		s.deps.SetTheme(t)
	}
	s.persist(r.Context())
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) handleFeed(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Feed.Recent(queryInt(r, "n", 0)))
}

func (s *Server) handlePostToFeed(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Author  string `json:"author"`
		Content string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "content required")
		return
	}
	if req.Author == "" {
		req.Author = s.deps.Profile().Name
	}

	// Tone tagging is best effort; the post lands either way.
	sentiment, err := s.deps.Gateway.AnalyzeSentiment(r.Context(), req.Content)
	if err != nil {
		s.deps.Logger.Warn("sentiment tagging failed", "error", err.Error())
		sentiment = ""
	}

	post := s.deps.Feed.Add(social.Post{Author: req.Author, Content: req.Content, Sentiment: sentiment})
	s.persist(r.Context())
	writeJSON(w, http.StatusCreated, post)
}

func (s *Server) handleAnalyzeSentiment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text required")
		return
	}
	sentiment, err := s.deps.Gateway.AnalyzeSentiment(r.Context(), req.Text)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"sentiment": sentiment})
}

func (s *Server) handleAnalyzeCode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Code) == "" {
		writeError(w, http.StatusBadRequest, "code required")
		return
	}
	feedback, err := s.deps.Gateway.AnalyzeCode(r.Context(), req.Code)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"feedback": feedback})
}

func (s *Server) handleAnalyzeImage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MIMEType string `json:"mime_type"`
		Data     []byte `json:"data"`
		Prompt   string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Data) == 0 || req.MIMEType == "" {
		writeError(w, http.StatusBadRequest, "mime_type and data required")
		return
	}
	analysis, err := s.deps.Gateway.AnalyzeImage(r.Context(),
		gateway.ImageData{MIMEType: req.MIMEType, Data: req.Data}, req.Prompt)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"analysis": analysis})
}

func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt required")
		return
	}
	img, err := s.deps.Gateway.GenerateImage(r.Context(), req.Prompt)
	if err != nil {
		writeGatewayError(w, err)
		return
	}
	if img == nil {
		writeError(w, http.StatusBadGateway, "model returned no image data")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"mime_type": img.MIMEType, "data": img.Data})
}

// OSController: tool calls from chat act on the live desktop.

func (s *Server) OpenApp(id string) {
	s.deps.Windows.Open(id)
	s.deps.Ledger.Append(ledger.CategoryAction, "Opened "+id)
}

func (s *Server) MinimizeAll() {
	s.deps.Windows.MinimizeAll()
	s.deps.Ledger.Append(ledger.CategoryAction, "Minimized all windows")
}

func (s *Server) ArrangeWindows() {
	s.deps.Windows.Arrange()
	s.deps.Ledger.Append(ledger.CategoryAction, "Arranged windows")
}

func (s *Server) SearchVault(ctx context.Context, query string) {
	items, err := s.deps.Vault.Search(ctx, query, 5)
	if err != nil {
		s.deps.Logger.Warn("vault search from tool call failed", "error", err.Error())
		return
	}
	s.deps.Ledger.Append(ledger.CategorySync,
		fmt.Sprintf("Vault search %q: %d hit(s)", query, len(items)))
}

func (s *Server) persist(ctx context.Context) {
	if s.deps.Persist != nil {
		s.deps.Persist(ctx)
	}
}

func statusFor(err error) int {
	if errors.Is(err, gateway.ErrServiceUnavailable) {
		return http.StatusBadGateway
	}
	return http.StatusConflict
}

func writeGatewayError(w http.ResponseWriter, err error) {
	if gateway.RateLimited(err) {
		writeError(w, http.StatusTooManyRequests, "quota exhausted, wait before retrying")
		return
	}
	writeError(w, http.StatusBadGateway, err.Error())
}

func queryInt(r *http.Request, name string, def int) int {
	if v := r.URL.Query().Get(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
