package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/aiser/queryengine/internal/metrics"
	"github.com/aiser/queryengine/llm/retry"
	"github.com/aiser/queryengine/types"
)

// Gateway wraps a ProviderRegistry with retry and timeout policy, giving every
// caller a single uniform entry point regardless of which backend answers.
type Gateway struct {
	registry *ProviderRegistry
	retryer  retry.Retryer
	timeout  time.Duration
	logger   *zap.Logger
	metrics  *metrics.Collector
}

// GatewayConfig configures a Gateway.
type GatewayConfig struct {
	Timeout time.Duration
	Policy  *retry.RetryPolicy
	Logger  *zap.Logger
	// Metrics, when set, receives one RecordLLMRequest observation per
	// Complete call. Nil disables gateway-level instrumentation.
	Metrics *metrics.Collector
}

// NewGateway builds a Gateway over an existing provider registry.
func NewGateway(registry *ProviderRegistry, cfg GatewayConfig) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Policy == nil {
		cfg.Policy = retry.DefaultRetryPolicy()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Gateway{
		registry: registry,
		retryer:  retry.NewBackoffRetryer(cfg.Policy, cfg.Logger),
		timeout:  cfg.Timeout,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
}

// Complete issues a completion request against the named provider (or the
// registry default when name is empty), retrying transient failures.
func (g *Gateway) Complete(ctx context.Context, providerName string, req *ChatRequest) (*ChatResponse, error) {
	p, err := g.resolve(providerName)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	var resp *ChatResponse
	err = g.retryer.Do(ctx, func() error {
		var callErr error
		resp, callErr = p.Completion(ctx, req)
		return callErr
	})
	duration := time.Since(start)

	if err != nil {
		g.recordCompletion(p.Name(), req.Model, "error", duration, 0, 0)
		return nil, err
	}

	if resp == nil || len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		g.recordCompletion(p.Name(), req.Model, "empty", duration, 0, 0)
		return &ChatResponse{Provider: p.Name(), Model: req.Model, CreatedAt: time.Now()}, nil
	}
	g.recordCompletion(p.Name(), req.Model, "success", duration, resp.Usage.PromptTokens, resp.Usage.CompletionTokens)
	return resp, nil
}

func (g *Gateway) recordCompletion(provider, model, status string, duration time.Duration, promptTokens, completionTokens int) {
	if g.metrics == nil {
		return
	}
	g.metrics.RecordLLMRequest(provider, model, status, duration, promptTokens, completionTokens)
}

// Stream issues a streaming completion request; streaming calls are not
// retried transparently since partial output may already have been delivered
// to the caller by the time a failure occurs.
func (g *Gateway) Stream(ctx context.Context, providerName string, req *ChatRequest) (<-chan StreamChunk, error) {
	p, err := g.resolve(providerName)
	if err != nil {
		return nil, err
	}
	return p.Stream(ctx, req)
}

func (g *Gateway) resolve(name string) (Provider, error) {
	if name == "" {
		return g.registry.Default()
	}
	p, ok := g.registry.Get(name)
	if !ok {
		return nil, types.NewError(types.ErrModelNotFound, "provider not registered: "+name)
	}
	return p, nil
}
