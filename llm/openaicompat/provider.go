// Package openaicompat implements llm.Provider against any backend that
// speaks the OpenAI chat-completions wire format: OpenAI itself, Azure
// OpenAI, and the many self-hosted servers (vLLM, Ollama, LiteLLM) that
// mirror it. It is deliberately a thin net/http client rather than a
// vendor SDK: llm.Gateway already owns retries, timeouts, and routing, so
// this package's only job is request/response translation.
package openaicompat

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aiser/queryengine/llm"
	"github.com/aiser/queryengine/types"
)

// Config points a Provider at one OpenAI-compatible deployment.
type Config struct {
	Name       string // registry name this provider answers under
	BaseURL    string // e.g. "https://api.openai.com/v1"
	APIKey     string
	HTTPClient *http.Client
}

// Provider adapts Config to llm.Provider.
type Provider struct {
	name   string
	base   string
	apiKey string
	client *http.Client
}

// New builds a Provider from cfg.
func New(cfg Config) *Provider {
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	return &Provider{
		name:   cfg.Name,
		base:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey: cfg.APIKey,
		client: client,
	}
}

func (p *Provider) Name() string { return p.name }

func (p *Provider) SupportsNativeFunctionCalling() bool { return true }

type wireMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []types.ToolCall `json:"tool_calls,omitempty"`
}

type wireRequest struct {
	Model       string        `json:"model"`
	Messages    []wireMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float32       `json:"temperature,omitempty"`
	Stream      bool          `json:"stream,omitempty"`
}

type wireChoice struct {
	Index        int         `json:"index"`
	FinishReason string      `json:"finish_reason"`
	Message      wireMessage `json:"message"`
}

type wireUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type wireResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []wireChoice `json:"choices"`
	Usage   wireUsage    `json:"usage"`
	Error   *wireError   `json:"error,omitempty"`
}

type wireError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func toWireMessages(msgs []types.Message) []wireMessage {
	out := make([]wireMessage, len(msgs))
	for i, m := range msgs {
		out[i] = wireMessage{Role: string(m.Role), Content: m.Content, ToolCalls: m.ToolCalls}
	}
	return out
}

// Completion issues a non-streaming chat-completions call.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	body := wireRequest{
		Model:       req.Model,
		Messages:    toWireMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "encode request: "+err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "build request: "+err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "provider request failed: "+err.Error()).WithRetryable(true).WithProvider(p.name)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "read response: "+err.Error()).WithProvider(p.name)
	}

	var wr wireResponse
	if err := json.Unmarshal(respBody, &wr); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "decode response: "+err.Error()).WithProvider(p.name)
	}

	if resp.StatusCode >= 400 {
		msg := fmt.Sprintf("provider returned status %d", resp.StatusCode)
		if wr.Error != nil {
			msg = wr.Error.Message
		}
		return nil, classifyHTTPError(resp.StatusCode, msg, p.name)
	}

	choices := make([]llm.ChatChoice, len(wr.Choices))
	for i, c := range wr.Choices {
		choices[i] = llm.ChatChoice{
			Index:        c.Index,
			FinishReason: c.FinishReason,
			Message: types.Message{
				Role:      types.Role(c.Message.Role),
				Content:   c.Message.Content,
				ToolCalls: c.Message.ToolCalls,
			},
		}
	}

	return &llm.ChatResponse{
		ID:       wr.ID,
		Provider: p.name,
		Model:    wr.Model,
		Choices:  choices,
		Usage: llm.ChatUsage{
			PromptTokens:     wr.Usage.PromptTokens,
			CompletionTokens: wr.Usage.CompletionTokens,
			TotalTokens:      wr.Usage.TotalTokens,
		},
		CreatedAt: time.Now(),
	}, nil
}

func classifyHTTPError(status int, message, provider string) error {
	code := types.ErrUpstreamError
	retryable := false
	switch status {
	case http.StatusUnauthorized:
		code = types.ErrAuthentication
	case http.StatusForbidden:
		code = types.ErrForbidden
	case http.StatusTooManyRequests:
		code, retryable = types.ErrRateLimited, true
	case http.StatusRequestEntityTooLarge:
		code = types.ErrContextTooLong
	case http.StatusServiceUnavailable:
		code, retryable = types.ErrModelOverloaded, true
	case http.StatusGatewayTimeout:
		code, retryable = types.ErrUpstreamTimeout, true
	default:
		if status >= 500 {
			retryable = true
		}
	}
	return types.NewError(code, message).WithRetryable(retryable).WithProvider(provider).WithHTTPStatus(status)
}

// Stream issues a streaming chat-completions call over SSE.
func (p *Provider) Stream(ctx context.Context, req *llm.ChatRequest) (<-chan llm.StreamChunk, error) {
	body := wireRequest{
		Model:       req.Model,
		Messages:    toWireMessages(req.Messages),
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Stream:      true,
	}
	raw, err := json.Marshal(body)
	if err != nil {
		return nil, types.NewError(types.ErrInvalidRequest, "encode request: "+err.Error())
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.base+"/chat/completions", bytes.NewReader(raw))
	if err != nil {
		return nil, types.NewError(types.ErrInternalError, "build request: "+err.Error())
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "provider request failed: "+err.Error()).WithRetryable(true).WithProvider(p.name)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		respBody, _ := io.ReadAll(resp.Body)
		return nil, classifyHTTPError(resp.StatusCode, string(respBody), p.name)
	}

	out := make(chan llm.StreamChunk, 8)
	go p.pumpStream(ctx, resp.Body, req.Model, out)
	return out, nil
}

func (p *Provider) pumpStream(ctx context.Context, body io.ReadCloser, model string, out chan<- llm.StreamChunk) {
	defer close(out)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "[DONE]" {
			return
		}

		var chunk struct {
			ID      string `json:"id"`
			Choices []struct {
				Index int `json:"index"`
				Delta struct {
					Role    string `json:"role"`
					Content string `json:"content"`
				} `json:"delta"`
				FinishReason string `json:"finish_reason"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		for _, c := range chunk.Choices {
			sc := llm.StreamChunk{
				ID:    chunk.ID,
				Provider: p.name,
				Model: model,
				Index: c.Index,
				Delta: types.Message{Role: types.Role(c.Delta.Role), Content: c.Delta.Content},
				FinishReason: c.FinishReason,
			}
			select {
			case out <- sc:
			case <-ctx.Done():
				return
			}
		}
	}
}

// HealthCheck issues a lightweight /models call to confirm reachability.
func (p *Provider) HealthCheck(ctx context.Context) (*llm.HealthStatus, error) {
	start := time.Now()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base+"/models", nil)
	if err != nil {
		return &llm.HealthStatus{Healthy: false}, err
	}
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return &llm.HealthStatus{Healthy: false, ErrorRate: 1}, err
	}
	defer resp.Body.Close()
	return &llm.HealthStatus{Healthy: resp.StatusCode < 500, Latency: time.Since(start)}, nil
}

// ListModels calls /models and returns the raw listing.
func (p *Provider) ListModels(ctx context.Context) ([]llm.Model, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, p.base+"/models", nil)
	if err != nil {
		return nil, err
	}
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var listing struct {
		Data []llm.Model `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, err
	}
	return listing.Data, nil
}
