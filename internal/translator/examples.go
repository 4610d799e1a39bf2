package translator

import (
	_ "embed"
	"fmt"

	"github.com/tidwall/sjson"
	"gopkg.in/yaml.v3"
)

//go:embed examples.yaml
var examplesYAML []byte

var languageExamples map[string]string

func init() {
	languageExamples = map[string]string{}
	if err := yaml.Unmarshal(examplesYAML, &languageExamples); err != nil {
		panic(fmt.Sprintf("translator: invalid examples.yaml: %v", err))
	}
}

const defaultExample = "This is an example sentence."

// exampleResponse builds the {"translate": {lang: exemplar, ...}} JSON
// document a provider is shown to pin its output schema (spec §4.6 step
// 2), grounded on translation_tools/llama/translator.py's
// get_example_response and LANGUAGE_EXAMPLES.
func exampleResponse(targets []string) string {
	doc := "{}"
	for _, lang := range targets {
		example, ok := languageExamples[lang]
		if !ok {
			example = defaultExample
		}
		doc, _ = sjson.Set(doc, "translate."+lang, example)
	}
	return doc
}
