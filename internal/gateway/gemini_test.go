package gateway

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func textResponse(text string) string {
	return fmt.Sprintf(`{"candidates":[{"content":{"parts":[{"text":%q}],"role":"model"},"finishReason":"STOP"}]}`, text)
}

func TestGeminiProvider_Generate(t *testing.T) {
	var gotBody geminiRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "models/test-model:generateContent") {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("key = %q", r.URL.Query().Get("key"))
		}
		json.NewDecoder(r.Body).Decode(&gotBody)
		fmt.Fprint(w, textResponse("hello there"))
	}))
	defer srv.Close()

	p := NewGeminiProvider("test-key",
		WithGeminiBaseURL(srv.URL),
		WithGeminiDefaultModel("test-model"),
	)

	resp, err := p.Generate(context.Background(), Request{Prompt: "hi", System: "be brief", JSONOutput: true})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text != "hello there" {
		t.Errorf("Text = %q", resp.Text)
	}
	if gotBody.SystemInstruction == nil || gotBody.SystemInstruction.Parts[0].Text != "be brief" {
		t.Error("system instruction not sent")
	}
	if gotBody.GenerationConfig.ResponseMimeType != "application/json" {
		t.Errorf("mime type = %q", gotBody.GenerationConfig.ResponseMimeType)
	}
	if gotBody.Contents[0].Parts[0].Text != "hi" {
		t.Errorf("prompt = %q", gotBody.Contents[0].Parts[0].Text)
	}
}

func TestGeminiProvider_RetriesOn429(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`)
			return
		}
		fmt.Fprint(w, textResponse("finally"))
	}))
	defer srv.Close()

	p := NewGeminiProvider("k",
		WithGeminiBaseURL(srv.URL),
		WithGeminiRetryDelay(time.Millisecond),
	)

	resp, err := p.Generate(context.Background(), Request{Prompt: "x"})
	if err != nil {
		t.Fatalf("Generate after retries: %v", err)
	}
	if resp.Text != "finally" {
		t.Errorf("Text = %q", resp.Text)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestGeminiProvider_429Exhaustion(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"code":429,"message":"quota","status":"RESOURCE_EXHAUSTED"}}`)
	}))
	defer srv.Close()

	p := NewGeminiProvider("k",
		WithGeminiBaseURL(srv.URL),
		WithGeminiRetryDelay(time.Millisecond),
	)

	_, err := p.Generate(context.Background(), Request{Prompt: "x"})
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("error does not wrap ErrServiceUnavailable: %v", err)
	}
	if !RateLimited(err) {
		t.Errorf("RateLimited = false for %v", err)
	}
}

func TestGeminiProvider_ServerErrorNotRetried(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"error":{"code":500,"message":"boom","status":"INTERNAL"}}`)
	}))
	defer srv.Close()

	p := NewGeminiProvider("k", WithGeminiBaseURL(srv.URL), WithGeminiRetryDelay(time.Millisecond))

	_, err := p.Generate(context.Background(), Request{Prompt: "x"})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (500 must not retry)", calls)
	}
	if RateLimited(err) {
		t.Error("500 classified as rate limited")
	}
	if !errors.Is(err, ErrServiceUnavailable) {
		t.Errorf("error does not wrap ErrServiceUnavailable: %v", err)
	}
}

func TestGeminiProvider_ToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"candidates":[{"content":{"parts":[
			{"text":"opening it now"},
			{"functionCall":{"name":"controlOS","args":{"action":"OPEN_APP","target":"vault"}}}
		],"role":"model"},"finishReason":"STOP"}]}`)
	}))
	defer srv.Close()

	p := NewGeminiProvider("k", WithGeminiBaseURL(srv.URL))

	resp, err := p.Generate(context.Background(), Request{
		Prompt: "open the vault",
		Tools:  []Tool{ControlOSDeclaration()},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(resp.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d", len(resp.ToolCalls))
	}
	call := ParseControlOS(resp.ToolCalls[0])
	if call.Action != ActionOpenApp || call.Target != "vault" {
		t.Errorf("parsed call = %+v", call)
	}
	if resp.Text != "opening it now" {
		t.Errorf("Text = %q", resp.Text)
	}
}

func TestGeminiProvider_InlineImage(t *testing.T) {
	png := []byte{0x89, 0x50, 0x4e, 0x47}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"image/png","data":%q}}],"role":"model"}}]}`,
			base64.StdEncoding.EncodeToString(png))
	}))
	defer srv.Close()

	p := NewGeminiProvider("k", WithGeminiBaseURL(srv.URL))
	resp, err := p.Generate(context.Background(), Request{Prompt: "draw"})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Image == nil {
		t.Fatal("no inline image decoded")
	}
	if resp.Image.MIMEType != "image/png" || string(resp.Image.Data) != string(png) {
		t.Errorf("image = %+v", resp.Image)
	}
}
