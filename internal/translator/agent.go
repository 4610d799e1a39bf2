package translator

import (
	"context"
	"fmt"

	"github.com/nlpodyssey/openai-agents-go/agents"
	"github.com/nlpodyssey/openai-agents-go/modelsettings"
	"github.com/openai/openai-go/v2/packages/param"
)

// AgentProvider dispatches translation calls through the openai-agents-go
// SDK's Runner rather than a raw completions client, grounded on the AgentLLM router shape, adapted from a
// streaming chat-assistant agent (MaxTurns=1, token-by-token callback) to
// a single blocking run whose final output is the provider's raw JSON
// response. Useful for any backend only exposed as an
// agents.ModelProvider (e.g. an OpenAI-compatible gateway fronting
// several vendors behind one base URL).
type AgentProvider struct {
	name      string
	provider  agents.ModelProvider
	model     string
	maxTokens int64
}

// NewAgentProvider wraps an agents.ModelProvider as a translator Provider.
func NewAgentProvider(name string, provider agents.ModelProvider, model string, maxTokens int64) *AgentProvider {
	return &AgentProvider{name: name, provider: provider, model: model, maxTokens: maxTokens}
}

func (a *AgentProvider) Name() string { return a.name }

// Chat runs a single-turn agent whose instructions are the system prompt
// and whose input is the source text, returning its final textual output.
func (a *AgentProvider) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	agent := agents.New("translator").
		WithInstructions(systemPrompt).
		WithModel(a.model).
		WithModelSettings(modelsettings.ModelSettings{
			MaxTokens: param.NewOpt(a.maxTokens),
		})

	runner := agents.Runner{Config: agents.RunConfig{
		ModelProvider:   a.provider,
		MaxTurns:        1,
		TracingDisabled: true,
	}}

	result, err := runner.Run(ctx, agent, userPrompt)
	if err != nil {
		return "", fmt.Errorf("agent translate: %w", err)
	}
	return result.FinalOutput, nil
}
