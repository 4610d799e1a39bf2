// Package translator implements the Translator Pool (spec §4.6): a
// round-robin load balancer over pluggable LLM providers with strict-JSON
// enforcement and bounded retries, grounded on
// translation_tools/utils.py's LoadBalancedTranslator and
// translation_tools/llama/translator.py's LlamaTranslator.
package translator

import "context"

// Provider is the uniform request contract every translator backend
// honors (spec §6 "Translator Provider"): given a system prompt (carrying
// the strict-JSON instructions and rolling context) and a user prompt (the
// finalized source text), return the raw JSON-or-JSON-string response.
type Provider interface {
	Name() string
	Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
