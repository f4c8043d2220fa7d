// Package llm provides LLM client implementations.
//
// The factory creates LLM clients based on provider configuration.
// Currently supports:
//   - Anthropic Claude, through the official SDK
//   - OpenAI and compatible chat completion endpoints
//
// Both clients apply the configured per-request timeout and report every
// call to the metrics collector.
package llm
