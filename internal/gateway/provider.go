// Package gateway is the single boundary to the model provider. It owns
// the API credential, retries rate-limited calls, and exposes typed
// generation surfaces (text, structured JSON, image, tool-calling) to
// the rest of the system.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Message roles follow the provider convention.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Request holds parameters for one generation call.
type Request struct {
	Model      string     `json:"model,omitempty"`
	Prompt     string     `json:"prompt"`
	System     string     `json:"system,omitempty"`
	JSONOutput bool       `json:"json_output,omitempty"`
	SchemaHint string     `json:"schema_hint,omitempty"`
	Tools      []Tool     `json:"tools,omitempty"`
	Image      *ImageData `json:"image,omitempty"`
}

// Tool declares a callable function to the model.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ToolCall is a function invocation requested by the model.
type ToolCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// ImageData is inline binary content.
type ImageData struct {
	MIMEType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

// Response holds the result of one generation call.
type Response struct {
	Text      string     `json:"text"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
	Image     *ImageData `json:"image,omitempty"`
	LatencyMs int64      `json:"latency_ms"`
}

// Provider is the abstract model backend.
type Provider interface {
	Generate(ctx context.Context, req Request) (*Response, error)
	Name() string
}

// ErrServiceUnavailable is the sentinel all provider failures wrap.
// Callers treat any match as "the model is unreachable right now".
var ErrServiceUnavailable = errors.New("model service unavailable")

// ServiceError carries the HTTP status of a failed provider call.
type ServiceError struct {
	Status  int
	Message string
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("provider returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("provider returned %d", e.Status)
}

func (e *ServiceError) Unwrap() error { return ErrServiceUnavailable }

// RateLimited reports whether err is a quota-exhaustion failure, so the
// surface layer can word the message accordingly.
func RateLimited(err error) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Status == http.StatusTooManyRequests
}
