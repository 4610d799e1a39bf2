package accumulator

import (
	"strings"

	"golang.org/x/text/cases"
)

// caser performs Unicode-correct case folding for the RTL
// duplicate-prefix check; RTL source languages (Arabic, Hebrew, etc.)
// have no case distinction themselves, but the comparison also needs to
// behave correctly over mixed-script text, so a real caser is used
// instead of strings.ToLower's ASCII-biased folding.
var caser = cases.Fold()

// rtlLanguages is the exact set format_segment's is_rtl() checks.
var rtlLanguages = map[string]bool{
	"ar": true, "he": true, "fa": true, "ur": true, "ps": true, "sd": true,
}

// IsRTL reports whether the given source language code uses the RTL
// finalization policy instead of punctuation-based LTR accumulation.
func IsRTL(lang string) bool {
	return rtlLanguages[lang]
}

// RTL implements the RTL accumulation and duplicate-suppression policy
// (spec §4.5), grounded on serve_client_faster_whisper.py's format_segment
// branch (C) and _is_duplicate_rtl.
//
// Each ASR-declared-final ("translate=true") event prepends its text in
// front of the existing buffer — new text goes first, reversing arrival
// order, matching format_segment's `text + " " + accumulated`. The buffer
// only finalizes when a "translate=false" event follows a streak of true
// events, and is suppressed if it duplicates (is a prefix of) the
// previously finalized buffer.
type RTL struct {
	buf              string
	previousFinalized string
	accumulating     bool
}

// NewRTL returns an empty RTL accumulator.
func NewRTL() *RTL {
	return &RTL{}
}

// Accumulate feeds one ASR-declared-final ("translate=true") event's text
// into the buffer.
func (r *RTL) Accumulate(text string) {
	combined := text + " " + r.buf
	r.buf = strings.TrimSpace(combined)
	r.accumulating = true
}

// FinalizeIfDue is called on a "translate=false" event. It returns the
// finalized unit and true if one is ready to submit for translation, or
// ("", false) if there was no active accumulation streak or the
// duplicate-suppression rule fired (spec §4.5, §8 "RTL duplicate-suppression
// rule").
func (r *RTL) FinalizeIfDue() (string, bool) {
	wasAccumulating := r.accumulating
	r.accumulating = false

	if !wasAccumulating || r.buf == "" {
		return "", false
	}

	if r.isDuplicate() {
		r.previousFinalized = ""
		r.buf = ""
		return "", false
	}

	unit := r.buf
	r.previousFinalized = unit
	r.buf = ""
	return unit, true
}

// isDuplicate reports whether the current buffer is a prefix of the
// previously finalized text — the exact direction _is_duplicate_rtl
// checks, not the inverse a naive reading would suggest.
func (r *RTL) isDuplicate() bool {
	prev := caser.String(strings.TrimSpace(r.previousFinalized))
	curr := caser.String(strings.TrimSpace(r.buf))
	if curr == "" {
		return false
	}
	return strings.HasPrefix(prev, curr)
}

// Pending reports the current accumulation buffer without clearing it.
func (r *RTL) Pending() string {
	return r.buf
}
