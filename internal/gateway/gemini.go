package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultGeminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
	defaultGeminiModel   = "gemini-2.5-flash"

	// 429 handling: maxAttempts total tries, delay doubles each retry.
	maxAttempts    = 3
	baseRetryDelay = 2000 * time.Millisecond
)

// GeminiOption configures a GeminiProvider.
type GeminiOption func(*GeminiProvider)

// WithGeminiBaseURL overrides the API base URL (useful for testing).
func WithGeminiBaseURL(url string) GeminiOption {
	return func(p *GeminiProvider) {
		p.baseURL = strings.TrimRight(url, "/")
	}
}

// WithGeminiHTTPClient sets a custom HTTP client.
func WithGeminiHTTPClient(c *http.Client) GeminiOption {
	return func(p *GeminiProvider) {
		p.client = c
	}
}

// WithGeminiDefaultModel sets the model used when the request names none.
func WithGeminiDefaultModel(model string) GeminiOption {
	return func(p *GeminiProvider) {
		p.defaultModel = model
	}
}

// WithGeminiRetryDelay overrides the base backoff delay (testing).
func WithGeminiRetryDelay(d time.Duration) GeminiOption {
	return func(p *GeminiProvider) {
		p.retryDelay = d
	}
}

// GeminiProvider implements Provider against the Gemini REST API.
type GeminiProvider struct {
	apiKey       string
	baseURL      string
	client       *http.Client
	defaultModel string
	retryDelay   time.Duration
}

// NewGeminiProvider creates a Gemini provider.
func NewGeminiProvider(apiKey string, opts ...GeminiOption) *GeminiProvider {
	p := &GeminiProvider{
		apiKey:       apiKey,
		baseURL:      defaultGeminiBaseURL,
		client:       &http.Client{Timeout: 120 * time.Second},
		defaultModel: defaultGeminiModel,
		retryDelay:   baseRetryDelay,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Name returns the provider name.
func (p *GeminiProvider) Name() string { return "gemini" }

// Gemini REST wire format (v1beta).

type geminiRequest struct {
	Contents          []geminiContent        `json:"contents"`
	SystemInstruction *geminiContent         `json:"systemInstruction,omitempty"`
	GenerationConfig  geminiGenerationConfig `json:"generationConfig,omitempty"`
	Tools             []geminiTool           `json:"tools,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"` // base64
}

type geminiGenerationConfig struct {
	ResponseMimeType string `json:"response_mime_type,omitempty"`
}

type geminiTool struct {
	FunctionDeclarations []geminiFunctionDeclaration `json:"functionDeclarations"`
}

type geminiFunctionDeclaration struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type geminiResponse struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text         string            `json:"text,omitempty"`
				InlineData   *geminiInlineData `json:"inlineData,omitempty"`
				FunctionCall *struct {
					Name string         `json:"name"`
					Args map[string]any `json:"args"`
				} `json:"functionCall,omitempty"`
			} `json:"parts"`
			Role string `json:"role"`
		} `json:"content"`
		FinishReason string `json:"finishReason"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Generate sends one generation request, retrying on HTTP 429 up to
// maxAttempts total tries with a doubling delay between them.
func (p *GeminiProvider) Generate(ctx context.Context, req Request) (*Response, error) {
	model := req.Model
	if model == "" {
		model = p.defaultModel
	}

	body, err := json.Marshal(p.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("gemini: marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", p.baseURL, model, p.apiKey)

	delay := p.retryDelay
	var lastErr error
	start := time.Now()
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, retryable, err := p.doOnce(ctx, url, body)
		if err == nil {
			resp.LatencyMs = time.Since(start).Milliseconds()
			return resp, nil
		}
		lastErr = err
		if !retryable || attempt == maxAttempts {
			break
		}

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		delay *= 2
	}
	return nil, lastErr
}

// doOnce performs a single HTTP round trip. The second return value
// reports whether the failure is worth retrying (429 only).
func (p *GeminiProvider) doOnce(ctx context.Context, url string, body []byte) (*Response, bool, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, false, fmt.Errorf("gemini: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, false, fmt.Errorf("gemini: http request: %w (%w)", err, ErrServiceUnavailable)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("gemini: read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		msg := string(respBody)
		var gr geminiResponse
		if json.Unmarshal(respBody, &gr) == nil && gr.Error != nil {
			msg = gr.Error.Message
		}
		serr := &ServiceError{Status: httpResp.StatusCode, Message: msg}
		return nil, httpResp.StatusCode == http.StatusTooManyRequests, serr
	}

	var gr geminiResponse
	if err := json.Unmarshal(respBody, &gr); err != nil {
		return nil, false, fmt.Errorf("gemini: unmarshal response: %w", err)
	}
	if gr.Error != nil {
		return nil, false, &ServiceError{Status: gr.Error.Code, Message: gr.Error.Message}
	}

	result := &Response{}
	if len(gr.Candidates) > 0 {
		var textParts []string
		for _, part := range gr.Candidates[0].Content.Parts {
			if part.Text != "" {
				textParts = append(textParts, part.Text)
			}
			if part.FunctionCall != nil {
				result.ToolCalls = append(result.ToolCalls, ToolCall{
					Name: part.FunctionCall.Name,
					Args: part.FunctionCall.Args,
				})
			}
			if part.InlineData != nil && result.Image == nil {
				data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
				if err == nil {
					result.Image = &ImageData{MIMEType: part.InlineData.MIMEType, Data: data}
				}
			}
		}
		result.Text = strings.Join(textParts, "")
	}
	return result, false, nil
}

func (p *GeminiProvider) buildRequest(req Request) geminiRequest {
	parts := []geminiPart{{Text: req.Prompt}}
	if req.Image != nil {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MIMEType: req.Image.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(req.Image.Data),
		}})
	}

	gr := geminiRequest{
		Contents: []geminiContent{{Role: RoleUser, Parts: parts}},
	}
	if req.System != "" {
		gr.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: req.System}}}
	}
	if req.JSONOutput {
		gr.GenerationConfig.ResponseMimeType = "application/json"
	}
	if len(req.Tools) > 0 {
		decls := make([]geminiFunctionDeclaration, len(req.Tools))
		for i, t := range req.Tools {
			decls[i] = geminiFunctionDeclaration{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			}
		}
		gr.Tools = []geminiTool{{FunctionDeclarations: decls}}
	}
	return gr
}
