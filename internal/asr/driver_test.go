package asr

import (
	"context"
	"testing"

	"github.com/streamcast/streamcast/internal/audio"
)

func newTestDriver() *Driver {
	return &Driver{
		cb: Callbacks{
			Accumulate: func(text string, translate bool, start, end float64) (string, bool) { return "", false },
		},
	}
}

func TestUpdateSegments_SingleProvisionalLeavesOffsetUnset(t *testing.T) {
	d := newTestDriver()
	subs := []SubSegment{{Start: 0, End: 0.9, Text: "still speaking", NoSpeechProb: 0.1}}
	absolute := []Segment{{Start: 10, End: 10.9, Text: subs[0].Text}}

	offset, haveAdvance := d.updateSegments(subs, absolute, 1.2)
	if haveAdvance {
		t.Fatalf("haveAdvance = true on a lone provisional sub-segment, want false (nothing committed): offset=%v", offset)
	}
	if len(d.transcript) != 0 {
		t.Fatalf("transcript grew on an uncommitted provisional-only iteration, len = %d", len(d.transcript))
	}
}

func TestUpdateSegments_CommittedSubSegmentAdvancesByItsOwnEnd(t *testing.T) {
	d := newTestDriver()
	subs := []SubSegment{
		{Start: 0, End: 0.8, Text: "hello", NoSpeechProb: 0.1},
		{Start: 0.8, End: 1.0, Text: "world", NoSpeechProb: 0.1}, // provisional, stays uncommitted
	}
	absolute := []Segment{
		{Start: 5, End: 5.8, Text: "hello"},
		{Start: 5.8, End: 6.0, Text: "world"},
	}
	duration := 1.4

	offset, haveAdvance := d.updateSegments(subs, absolute, duration)
	if !haveAdvance {
		t.Fatalf("haveAdvance = false, want true: a sub-segment was committed to the transcript")
	}
	if offset != 0.8 {
		t.Fatalf("offset = %v, want 0.8 (min(duration, committed sub-segment's local end)), not the full chunk duration %v", offset, duration)
	}
	if len(d.transcript) != 1 {
		t.Fatalf("transcript len = %d, want 1 committed sub-segment", len(d.transcript))
	}
}

func TestUpdateSegments_SkipsHighNoSpeechProbSubSegment(t *testing.T) {
	d := newTestDriver()
	subs := []SubSegment{
		{Start: 0, End: 0.5, Text: "noise", NoSpeechProb: 0.9}, // > 0.45, must be skipped
		{Start: 0.5, End: 0.9, Text: "provisional", NoSpeechProb: 0.1},
	}
	absolute := []Segment{
		{Start: 2, End: 2.5, Text: "noise"},
		{Start: 2.5, End: 2.9, Text: "provisional"},
	}

	_, haveAdvance := d.updateSegments(subs, absolute, 1.0)
	if haveAdvance {
		t.Fatalf("haveAdvance = true, want false: the only non-provisional sub-segment was gated out by no_speech_prob")
	}
	if len(d.transcript) != 0 {
		t.Fatalf("transcript len = %d, want 0: a high no_speech_prob sub-segment must never be committed", len(d.transcript))
	}
}

// TestUpdateSegments_StallCommitFiresExactlyOnce exercises spec.md §8's
// boundary property directly: repeated identical provisional output must
// commit exactly once, not on every subsequent identical iteration.
func TestUpdateSegments_StallCommitFiresExactlyOnce(t *testing.T) {
	d := newTestDriver()
	duration := 1.5
	subs := []SubSegment{{Start: 0, End: 0, Text: "same text", NoSpeechProb: 0.1}}

	commits := 0
	for i := 0; i < 10; i++ {
		absolute := []Segment{{Start: float64(i), End: float64(i) + duration, Text: subs[0].Text}}
		before := len(d.transcript)

		offset, haveAdvance := d.updateSegments(subs, absolute, duration)

		if len(d.transcript) > before {
			commits++
			if offset != duration || !haveAdvance {
				t.Fatalf("iteration %d: stall-commit (offset, haveAdvance) = (%v, %v), want (%v, true)", i, offset, haveAdvance, duration)
			}
		}
	}
	if commits != 1 {
		t.Fatalf("stall commits over 10 identical provisional iterations = %d, want exactly 1", commits)
	}
}

// fakeTranscriber scripts a fixed sub-segment response, matching the ASR
// Provider contract (spec §6) without any network round trip.
type fakeTranscriber struct {
	subs []SubSegment
	info Info
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, samples []float32, p Params) ([]SubSegment, Info, error) {
	return f.subs, f.info, nil
}

// TestRunIteration_UncommittedProvisionalDoesNotRetireUnreadTail is a
// regression test for the offset-advance bug: a single-provisional,
// nothing-committed iteration must leave timestamp_offset untouched so
// next_chunk() keeps re-sending the same still-growing audio window,
// instead of unconditionally advancing by the chunk's own duration.
func TestRunIteration_UncommittedProvisionalDoesNotRetireUnreadTail(t *testing.T) {
	buf := audio.NewBuffer()
	buf.Append(make([]float32, 2*audio.SampleRate)) // 2s buffered

	client := &fakeTranscriber{subs: []SubSegment{
		{Start: 0, End: 1.4, Text: "still talking", NoSpeechProb: 0.1},
	}}

	d := New(client, buf, SessionParams{
		Task:     "transcribe",
		Language: func() string { return "en" },
	}, Callbacks{
		Accumulate: func(text string, translate bool, start, end float64) (string, bool) { return "", false },
	}, nil)

	samples, duration := buf.NextChunk()
	d.runIteration(context.Background(), samples, duration)

	_, timestampOffsetAfter := buf.Offsets()
	if timestampOffsetAfter != 0 {
		t.Fatalf("timestampOffset = %v after an uncommitted single-provisional iteration, want unchanged (0)", timestampOffsetAfter)
	}

	nextSamples, _ := buf.NextChunk()
	if len(nextSamples) != len(samples) {
		t.Fatalf("next_chunk() after an uncommitted iteration returned %d samples, want the same unread tail (%d samples) re-sent to the ASR", len(nextSamples), len(samples))
	}
}

// TestRunIteration_CommittedSegmentAdvancesTimestampOffset is the
// complementary case: when a sub-segment is actually committed, the
// buffer's timestamp_offset must move forward by that commit, not by the
// full chunk duration.
func TestRunIteration_CommittedSegmentAdvancesTimestampOffset(t *testing.T) {
	buf := audio.NewBuffer()
	buf.Append(make([]float32, 2*audio.SampleRate))

	client := &fakeTranscriber{subs: []SubSegment{
		{Start: 0, End: 0.8, Text: "hello", NoSpeechProb: 0.1},
		{Start: 0.8, End: 1.2, Text: "world", NoSpeechProb: 0.1},
	}}

	d := New(client, buf, SessionParams{
		Task:     "transcribe",
		Language: func() string { return "en" },
	}, Callbacks{
		Accumulate: func(text string, translate bool, start, end float64) (string, bool) { return "", false },
	}, nil)

	samples, duration := buf.NextChunk()
	d.runIteration(context.Background(), samples, duration)

	_, timestampOffsetAfter := buf.Offsets()
	if timestampOffsetAfter != 0.8 {
		t.Fatalf("timestampOffset = %v, want 0.8 (the committed sub-segment's local end)", timestampOffsetAfter)
	}
}
