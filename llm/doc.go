// Copyright 2024 AgentFlow Authors. All rights reserved.
// Use of this source code is governed by a MIT license that can be
// found in the LICENSE file.

/*
Package llm provides the query engine's single entry point to an LLM
backend: a Provider interface, a name-keyed ProviderRegistry, and a Gateway
that adds retry and timeout policy on top.

# Provider interface

	type Provider interface {
	    Completion(ctx context.Context, req *ChatRequest) (*ChatResponse, error)
	    Stream(ctx context.Context, req *ChatRequest) (<-chan StreamChunk, error)
	    HealthCheck(ctx context.Context) (*HealthStatus, error)
	    Name() string
	    SupportsNativeFunctionCalling() bool
	    ListModels(ctx context.Context) ([]Model, error)
	}

llm/openaicompat implements Provider against any OpenAI-chat-completions-
compatible HTTP endpoint (used for both the real OpenAI API and self-hosted
gateways that mirror its wire format).

# Gateway

Gateway wraps a ProviderRegistry with a retry.Retryer and a per-call
timeout, so every agent in package agents calls Complete/Stream through one
uniform entry point regardless of which backend answers:

	gateway := llm.NewGateway(registry, llm.GatewayConfig{
	    Timeout: 30 * time.Second,
	    Policy:  retry.DefaultRetryPolicy(),
	    Metrics: metricsCollector,
	})
	resp, err := gateway.Complete(ctx, "", &llm.ChatRequest{
	    Messages: []llm.Message{types.NewUserMessage("question")},
	})

Complete retries transient failures per the configured retry.RetryPolicy;
Stream does not, since partial output may already be in flight when a
streaming call fails.

# Tool calling

	resp, err := gateway.Complete(ctx, "", &llm.ChatRequest{
	    Messages: messages,
	    Tools: []llm.ToolSchema{
	        {Name: "get_weather", Description: "...", Parameters: weatherSchema},
	    },
	})

# Error handling

Failures surface as the shared *types.Error taxonomy (ErrModelNotFound,
ErrRateLimit, ErrUpstreamTimeout, ...); llm/retry's backoffRetryer consults
a *types.Error's Retryable field to decide whether to retry it.

Subpackages:
  - llm/retry: exponential-backoff Retryer Gateway wraps every provider call in
  - llm/tokenizer: token counting (tiktoken for known OpenAI models, a CJK-aware estimator otherwise), used by package schema to budget prompts
  - llm/openaicompat: the Provider implementation this binary ships
*/
package llm
