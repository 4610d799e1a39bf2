package translator

import (
	"fmt"
	"strings"
)

// buildSystemPrompt composes the strict-JSON translation instruction used
// as the provider's system prompt, grounded on
// translation_tools/llama/translator.py's TRANSLATION_CONTEXT_TEMPLATE.
func buildSystemPrompt(srcLang string, targets []string, rollingContext []string, example string) string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a professional real-time translator. Translate from %s into each of these ISO 639-1 target languages: %s.\n\n", srcLang, strings.Join(targets, ", "))

	b.WriteString("STRICT OUTPUT RULES:\n")
	b.WriteString("1. Respond with ONLY a single JSON object. No commentary, no markdown code fences.\n")
	b.WriteString("2. The JSON object has exactly one top-level key, \"translate\", an object mapping each requested ISO 639-1 code to its translation.\n")
	b.WriteString("3. Every requested target language code MUST be present, even for a short or incomplete fragment.\n")
	b.WriteString("4. Preserve proper nouns, numbers, and named entities; do not add explanations or alternate phrasings.\n")
	b.WriteString("5. Translate sentence fragments as fragments; do not invent missing words to complete them.\n\n")

	if len(rollingContext) > 0 {
		b.WriteString("Recent preceding source-language context, for continuity only — do not translate this context itself:\n")
		for _, c := range rollingContext {
			fmt.Fprintf(&b, "- %s\n", c)
		}
		b.WriteString("\n")
	}

	fmt.Fprintf(&b, "Match the exact JSON shape of this example response:\n%s\n", example)
	return b.String()
}
