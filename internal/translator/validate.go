package translator

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// validateTranslation parses a provider's raw response and ensures it is a
// JSON object with a top-level "translate" key containing every requested
// target language code (spec §4.6 step 3), grounded on
// translation_tools/llama/translator.py's retry_on_error/clean_json_string,
// using gjson's lenient path queries instead of hand-rolled string
// scanning.
func validateTranslation(raw string, targets []string) (map[string]string, error) {
	cleaned := cleanJSON(raw)
	if !gjson.Valid(cleaned) {
		return nil, fmt.Errorf("translator: invalid json response")
	}

	translate := gjson.Get(cleaned, "translate")
	if !translate.Exists() || !translate.IsObject() {
		return nil, fmt.Errorf("translator: missing translate object")
	}

	out := make(map[string]string, len(targets))
	for _, lang := range targets {
		v := translate.Get(lang)
		if !v.Exists() {
			return nil, fmt.Errorf("translator: missing translation for %q", lang)
		}
		out[lang] = v.String()
	}
	return out, nil
}

// cleanJSON trims markdown code fences and, when a provider wraps its JSON
// object as a JSON-encoded string instead of emitting it directly,
// unwraps one layer — mirroring clean_json_string's escaped-quote
// normalization.
func cleanJSON(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)

	if parsed := gjson.Parse(s); parsed.Type == gjson.String {
		s = parsed.String()
	}
	return strings.ReplaceAll(s, `\'`, `'`)
}
