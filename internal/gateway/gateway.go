package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/cloneos/cloneos/internal/observability"
)

// ModelSet maps operation classes to models. Planning and execution use
// the reasoning model; verification, handoffs, and distillation use the
// fast one.
type ModelSet struct {
	Reasoning string `json:"reasoning"`
	Fast      string `json:"fast"`
	Image     string `json:"image"`
}

// DefaultModelSet returns the stock tier mapping.
func DefaultModelSet() ModelSet {
	return ModelSet{
		Reasoning: "gemini-2.5-pro",
		Fast:      "gemini-2.5-flash",
		Image:     "gemini-2.5-flash-image",
	}
}

// Gateway wraps a Provider with model routing, logging, and metrics.
type Gateway struct {
	provider Provider
	models   ModelSet
	logger   *observability.Logger
	metrics  *observability.MetricsCollector
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithModelSet overrides the tier mapping.
func WithModelSet(ms ModelSet) Option {
	return func(g *Gateway) { g.models = ms }
}

// WithMetrics attaches a metrics collector.
func WithMetrics(m *observability.MetricsCollector) Option {
	return func(g *Gateway) { g.metrics = m }
}

// New creates a gateway over the given provider.
func New(provider Provider, logger *observability.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		provider: provider,
		models:   DefaultModelSet(),
		logger:   logger,
		metrics:  observability.NewMetricsCollector(0),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Models returns the active tier mapping.
func (g *Gateway) Models() ModelSet { return g.models }

// Generate runs a plain text generation on the fast model.
func (g *Gateway) Generate(ctx context.Context, prompt, system string) (string, error) {
	return g.generate(ctx, "generate", g.models.Fast, prompt, system)
}

// GenerateReasoned runs a plain text generation on the reasoning model.
func (g *Gateway) GenerateReasoned(ctx context.Context, prompt, system string) (string, error) {
	return g.generate(ctx, "generate_reasoned", g.models.Reasoning, prompt, system)
}

func (g *Gateway) generate(ctx context.Context, op, model, prompt, system string) (string, error) {
	resp, err := g.call(ctx, op, Request{Model: model, Prompt: prompt, System: system})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

// GenerateStructured asks for JSON output on the reasoning model and
// parses it into out. Markdown fences around the payload are tolerated.
// A response that fails to parse leaves out at its zero value and
// returns nil; only transport failures surface as errors.
func (g *Gateway) GenerateStructured(ctx context.Context, prompt, schemaHint string, out any) error {
	return g.generateStructured(ctx, g.models.Reasoning, prompt, schemaHint, out)
}

// GenerateStructuredFast is GenerateStructured on the fast model, used
// for verification, handoffs, and distillation.
func (g *Gateway) GenerateStructuredFast(ctx context.Context, prompt, schemaHint string, out any) error {
	return g.generateStructured(ctx, g.models.Fast, prompt, schemaHint, out)
}

func (g *Gateway) generateStructured(ctx context.Context, model, prompt, schemaHint string, out any) error {
	req := Request{
		Model:      model,
		Prompt:     prompt,
		JSONOutput: true,
		SchemaHint: schemaHint,
	}
	if schemaHint != "" {
		req.Prompt = prompt + "\n\nRespond with JSON matching: " + schemaHint
	}

	resp, err := g.call(ctx, "generate_structured", req)
	if err != nil {
		return err
	}

	payload := StripFences(resp.Text)
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		g.logger.Warn("structured response unparseable, returning zero value",
			"error", err.Error(), "head", head(payload, 120))
	}
	return nil
}

// GenerateImage asks the image model for inline data. A text-only
// response yields a nil image, not an error.
func (g *Gateway) GenerateImage(ctx context.Context, prompt string) (*ImageData, error) {
	resp, err := g.call(ctx, "generate_image", Request{Model: g.models.Image, Prompt: prompt})
	if err != nil {
		return nil, err
	}
	return resp.Image, nil
}

// Converse runs a conversational call with the controlOS tool declared.
// Every tool call the model emits is dispatched to ctrl and acknowledged;
// unknown actions are no-ops.
func (g *Gateway) Converse(ctx context.Context, message, system string, ctrl OSController) (string, error) {
	resp, err := g.call(ctx, "converse", Request{
		Model:  g.models.Fast,
		Prompt: message,
		System: system,
		Tools:  []Tool{ControlOSDeclaration()},
	})
	if err != nil {
		return "", err
	}

	for _, tc := range resp.ToolCalls {
		call := ParseControlOS(tc)
		g.logger.Info("tool call", "action", call.Action, "target", call.Target)
		if ctrl != nil {
			Dispatch(ctx, ctrl, call)
		}
	}
	return resp.Text, nil
}

// AnalyzeSentiment classifies the emotional tone of text.
func (g *Gateway) AnalyzeSentiment(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf("Classify the sentiment of the following text as positive, negative, or neutral. Reply with the single word only.\n\n%s", text)
	out, err := g.generate(ctx, "analyze_sentiment", g.models.Fast, prompt, "")
	if err != nil {
		return "", err
	}
	return strings.ToLower(strings.TrimSpace(out)), nil
}

// AnalyzeCode reviews a code snippet and returns findings as text.
func (g *Gateway) AnalyzeCode(ctx context.Context, code string) (string, error) {
	prompt := fmt.Sprintf("Review the following code. Point out bugs, risks, and improvements, briefly.\n\n%s", code)
	return g.generate(ctx, "analyze_code", g.models.Reasoning, prompt, "")
}

// AnalyzeImage describes inline image data guided by a prompt.
func (g *Gateway) AnalyzeImage(ctx context.Context, img ImageData, prompt string) (string, error) {
	if prompt == "" {
		prompt = "Describe this image."
	}
	resp, err := g.call(ctx, "analyze_image", Request{Model: g.models.Fast, Prompt: prompt, Image: &img})
	if err != nil {
		return "", err
	}
	return resp.Text, nil
}

func (g *Gateway) call(ctx context.Context, op string, req Request) (*Response, error) {
	g.metrics.Increment("gateway.calls")
	resp, err := g.provider.Generate(ctx, req)
	if err != nil {
		g.metrics.Increment("gateway.errors")
		g.logger.Error("gateway call failed", "operation", op, "model", req.Model, "error", err.Error())
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	g.metrics.Record(observability.MetricLatency, float64(resp.LatencyMs), observability.Labels{"operation": op})
	g.logger.GatewayEvent(op, req.Model, "latency_ms", resp.LatencyMs)
	return resp, nil
}

// StripFences removes a surrounding markdown code fence, if present.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// Drop the language tag line (e.g. "json").
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
