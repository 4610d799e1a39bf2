// Package accumulator implements the LTR and RTL sentence-accumulation and
// finalization policies of spec §4.5, grounded on
// whisper_live/sentence_accumulator.py and the format_segment state machine
// embedded in whisper_live/serve_client_faster_whisper.py.
package accumulator

import "strings"

// terminators is the exact set of sentence-ending runes the LTR accumulator
// recognizes, matching the reference implementation's regex `[.!؟?]` —
// notably including the Arabic question mark (؟, U+061F).
var terminators = map[rune]bool{
	'.': true,
	'!': true,
	'?': true,
	'؟': true,
}

// LTR accumulates streamed ASR text and yields a finalized unit whenever a
// terminator appears, matching sentence_accumulator.py exactly: the
// completed prefix runs up to and including the last terminator found in
// the buffer, trimmed; the remainder (left-trimmed) is retained.
type LTR struct {
	buf strings.Builder
}

// NewLTR returns an empty LTR accumulator.
func NewLTR() *LTR {
	return &LTR{}
}

// Add appends text to the running buffer and returns the finalized prefix,
// or "" if no terminator has appeared yet.
func (a *LTR) Add(text string) string {
	a.buf.WriteString(strings.TrimSpace(text))
	a.buf.WriteString(" ")

	buffered := a.buf.String()
	runes := []rune(buffered)

	lastEnd := -1
	for i, r := range runes {
		if terminators[r] {
			lastEnd = i + 1
		}
	}
	if lastEnd < 0 {
		return ""
	}

	completed := strings.TrimSpace(string(runes[:lastEnd]))
	remainder := strings.TrimLeft(string(runes[lastEnd:]), " \t\n\r")

	a.buf.Reset()
	a.buf.WriteString(remainder)
	return completed
}

// Flush returns and clears any remaining unterminated buffer content, used
// for idle finalization (spec §4.5 "Idle finalization").
func (a *LTR) Flush() string {
	text := strings.TrimSpace(a.buf.String())
	a.buf.Reset()
	return text
}

// Pending reports the current unterminated buffer content without clearing
// it, used to decide whether idle finalization has anything to do.
func (a *LTR) Pending() string {
	return strings.TrimSpace(a.buf.String())
}
