// Package tokenizer provides a unified token-counting interface, backed by
// an exact tiktoken counter for known OpenAI models and a CJK-aware
// estimator everywhere else, used to keep LLM prompts within budget.
package tokenizer
