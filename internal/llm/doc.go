// Package llm provides JSON-completion clients for the bottle name fallback.
//
// Every provider satisfies Completer, so callers never depend on a concrete
// vendor SDK.
//
// # Providers
//
//   - openrouter: OpenRouter-compatible chat completions over plain HTTP
//     (Client), with retries.
//   - openai: github.com/sashabaranov/go-openai.
//   - anthropic: github.com/liushuangls/go-anthropic/v2.
//   - gemini: github.com/google/generative-ai-go.
//
// # Retry Behaviour
//
// Client retries on HTTP 408/429/5xx errors and network timeouts with
// exponential backoff, honouring Retry-After. Context cancellation aborts
// retries immediately. The SDK-backed providers make a single attempt; the
// per-call deadline set by the caller bounds them.
//
// # Entry Points
//
// New: construct the configured provider.
// DecodeJSON: decode a reply, tolerating code fences and surrounding prose.
package llm
