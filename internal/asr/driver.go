package asr

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/streamcast/streamcast/internal/audio"
	"github.com/streamcast/streamcast/internal/metrics"
	"github.com/streamcast/streamcast/internal/trace"
)

const (
	pollInterval       = 100 * time.Millisecond
	emptyBufferYield   = 20 * time.Millisecond
	noSpeechProbMax    = 0.45
	stallCommitAfter   = 5 // commit after >5 consecutive repeats of the same provisional
	clientSegmentLimit = 10
	inputSilenceThresh = 1 * time.Second
	showPrevOutThresh  = 4 * time.Second
	addPauseThresh     = 3 * time.Second
)

// modelLock is the single process-wide mutex serializing all ASR calls
// (spec §4.4 step 5, §5 "ASR model": "a single process-wide mutex
// serializes all transcribe calls... concurrency of sessions does not
// imply concurrency of inference").
var modelLock sync.Mutex

// Segment is a transcript entry in the speaker's absolute stream timeline
// (spec §3 "Transcript Segment").
type Segment struct {
	Start float64
	End   float64
	Text  string
}

// Unit is a finalized, translatable span handed off by the driver loop to
// whatever consumes finalized text (spec §3 "Finalized Unit").
type Unit struct {
	Start float64
	End   float64
	Text  string
}

// Callbacks lets the Speaker Session observe driver events without the
// driver importing the session package (spec §4.4, §4.5, §4.7).
type Callbacks struct {
	// OnLanguageDetected fires once, the first time the ASR reports a
	// detected language with probability > 0.5 and the session had none.
	OnLanguageDetected func(lang string, prob float64)
	// OnSegments fires on every iteration with the bounded client-visible
	// segment list (last 10 committed + the provisional one).
	OnSegments func(segments []Segment)
	// OnFinalUnit fires whenever the sentence accumulator (LTR) or the
	// RTL policy finalizes a unit ready for translation.
	OnFinalUnit func(unit Unit)
	// Accumulate feeds one ASR-declared sub-segment into the caller's
	// accumulator and reports back a finalized unit, if any, as
	// (text, ok). The driver does not know whether the session uses the
	// LTR or RTL policy; that decision lives in the session layer.
	Accumulate func(text string, translate bool, start, end float64) (unitText string, ok bool)
	// FlushIdle asks the accumulator to finalize whatever is pending due
	// to idle silence (spec §4.5 "Idle finalization").
	FlushIdle func() (unitText string, ok bool)
}

// SessionParams are the per-speaker knobs the driver reads on every
// iteration (spec §4.4 step 5); Language/Task may mutate mid-stream as
// frames update speakerLang.
type SessionParams struct {
	InitialPrompt string
	Language      func() string // speaker_lang ?? session.language, resolved live
	Task          string
	UseVAD        bool
	VADParameters map[string]any
}

// Driver runs the ASR driver loop for exactly one Speaker Session (spec
// §4.4), grounded on serve_client_faster_whisper.py's speech_to_text /
// update_segments / handle_transcription_output.
type Driver struct {
	client Client
	buf    *audio.Buffer
	params SessionParams
	cb     Callbacks
	tracer *trace.Tracer

	transcript []Segment

	lastProvisional  string
	stallCount       int
	languageAdopted  bool
	lastOutputAt     time.Time
	pausedOnceResent bool
	emptyIterStreak  int

	silence *audio.SilenceDetector
}

// New creates a driver bound to one speaker's Audio Buffer. tracer may be
// nil; trace.Tracer's methods are nil-safe no-ops in that case.
func New(client Client, buf *audio.Buffer, params SessionParams, cb Callbacks, tracer *trace.Tracer) *Driver {
	return &Driver{
		client:       client,
		buf:          buf,
		params:       params,
		cb:           cb,
		tracer:       tracer,
		lastOutputAt: time.Now(),
		silence:      audio.NewSilenceDetector(audio.DefaultVADConfig()),
	}
}

// Run executes the driver loop until ctx is cancelled (spec §4.4, §4.8
// "DRAINING: allow in-flight ASR call to finish").
func (d *Driver) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.finalizePending()
			return
		default:
		}

		if d.buf.Len() == 0 {
			d.maybeFinalizeOnInputSilence(nil)
			time.Sleep(emptyBufferYield)
			continue
		}

		d.buf.ClipIfStale()

		samples, duration := d.buf.NextChunk()
		if duration < audio.MinChunkSeconds {
			d.maybeFinalizeOnInputSilence(samples)
			time.Sleep(pollInterval)
			continue
		}

		d.runIteration(ctx, samples, duration)
	}
}

func (d *Driver) runIteration(ctx context.Context, samples []float32, duration float64) {
	p := Params{
		InitialPrompt: d.params.InitialPrompt,
		Language:      d.params.Language(),
		Task:          d.params.Task,
		VADFilter:     d.params.UseVAD,
		VADParameters: d.params.VADParameters,
	}

	runID := d.tracer.StartRun()

	start := time.Now()
	modelLock.Lock()
	subs, info, err := d.client.Transcribe(ctx, samples, p)
	modelLock.Unlock()
	elapsed := time.Since(start)
	metrics.ASRCallDuration.Observe(elapsed.Seconds())

	if err != nil {
		slog.Error("asr transcribe failed", "error", err)
		d.tracer.EndRun(runID, elapsed.Seconds()*1000, p.Language, err.Error(), "error")
		time.Sleep(pollInterval)
		return
	}
	d.tracer.EndRun(runID, elapsed.Seconds()*1000, p.Language, joinSubsegmentText(subs), "ok")

	if len(subs) == 0 {
		d.emptyIterStreak++
		if unitText, ok := d.finalizeIfPending(); ok {
			d.cb.OnFinalUnit(Unit{Text: unitText})
		}
		_, timestampOffset := d.buf.Offsets()
		d.buf.SetTimestampOffset(timestampOffset + duration)
		d.maybeRepeatOnSilence()
		time.Sleep(pollInterval)
		return
	}
	d.emptyIterStreak = 0

	if !d.languageAdopted && p.Language == "" && info.Language != "" && info.LanguageProbability > 0.5 {
		d.languageAdopted = true
		if d.cb.OnLanguageDetected != nil {
			d.cb.OnLanguageDetected(info.Language, info.LanguageProbability)
		}
	}

	framesOffset, timestampOffset := d.buf.Offsets()
	_ = framesOffset
	absolute := make([]Segment, len(subs))
	for i, s := range subs {
		absolute[i] = Segment{Start: timestampOffset + s.Start, End: timestampOffset + s.End, Text: s.Text}
	}

	advance, haveAdvance := d.updateSegments(subs, absolute, duration)
	if haveAdvance {
		d.buf.SetTimestampOffset(timestampOffset + advance)
	}

	d.sendClientSegments()
	d.lastOutputAt = time.Now()
	d.pausedOnceResent = false
}

// updateSegments appends all but the last sub-segment to the committed
// transcript (subject to the start<end and no_speech_prob gates), tracks
// the provisional last segment, applies stall-commit, and reports the
// offset to advance timestamp_offset by (spec §4.4 step 8). Grounded on
// update_segments's `offset` local, which defaults to unset and is only
// assigned when a sub-segment is actually committed to the transcript
// (offset = min(duration, s.end)) or on stall-commit (offset = duration):
// if neither happens this iteration, haveAdvance is false and the caller
// must leave timestamp_offset untouched, so next_chunk() keeps returning
// the same still-growing, uncommitted window instead of retiring it.
func (d *Driver) updateSegments(subs []SubSegment, absolute []Segment, duration float64) (offset float64, haveAdvance bool) {
	lastIdx := len(subs) - 1

	for i := 0; i < lastIdx; i++ {
		s := subs[i]
		if !(s.Start < s.End) || s.NoSpeechProb > noSpeechProbMax {
			continue
		}
		d.transcript = append(d.transcript, absolute[i])
		if unitText, ok := d.cb.Accumulate(s.Text, true, absolute[i].Start, absolute[i].End); ok {
			d.cb.OnFinalUnit(Unit{Start: absolute[i].Start, End: absolute[i].End, Text: unitText})
		}
		offset = math.Min(duration, s.End)
		haveAdvance = true
	}

	last := subs[lastIdx]
	provisional := strings.TrimSpace(last.Text)

	if strings.EqualFold(provisional, strings.TrimSpace(d.lastProvisional)) && provisional != "" {
		d.stallCount++
	} else {
		d.stallCount = 0
	}
	d.lastProvisional = provisional

	if d.stallCount > stallCommitAfter {
		d.transcript = append(d.transcript, absolute[lastIdx])
		if unitText, ok := d.cb.Accumulate(last.Text, true, absolute[lastIdx].Start, absolute[lastIdx].End); ok {
			d.cb.OnFinalUnit(Unit{Start: absolute[lastIdx].Start, End: absolute[lastIdx].End, Text: unitText})
		}
		metrics.ASRStallCommits.Inc()
		d.stallCount = 0
		d.lastProvisional = ""
		offset = duration
		haveAdvance = true
	} else {
		// RTL's translate=false boundary fires on every iteration where the
		// provisional segment did not just get committed, mirroring
		// format_segment's treatment of the still-open last sub-segment.
		if unitText, ok := d.cb.Accumulate(last.Text, false, absolute[lastIdx].Start, absolute[lastIdx].End); ok {
			d.cb.OnFinalUnit(Unit{Start: absolute[lastIdx].Start, End: absolute[lastIdx].End, Text: unitText})
		}
	}

	return offset, haveAdvance
}

// maybeFinalizeOnInputSilence implements the second idle-finalization
// trigger of spec §4.5: "the input has been silent for >= 1s" and a
// non-empty accumulated buffer exists. samples is whatever the driver has
// on hand when it checks — nil when the buffer is empty, or the
// below-minimum-duration tail otherwise — and is fed into the energy-based
// SilenceDetector so real speech-level audio that just hasn't reached the
// ASR's 1s minimum yet does not get mistaken for silence. Runs only on
// the driver's own goroutine, preserving the single-writer-per-field
// discipline of spec §9.
func (d *Driver) maybeFinalizeOnInputSilence(samples []float32) {
	if d.silence.Observe(samples, time.Now()) < inputSilenceThresh {
		return
	}
	if unitText, ok := d.finalizeIfPending(); ok {
		d.cb.OnFinalUnit(Unit{Text: unitText})
	}
}

func joinSubsegmentText(subs []SubSegment) string {
	var b strings.Builder
	for i, s := range subs {
		if i > 0 {
			b.WriteString(" ")
		}
		b.WriteString(s.Text)
	}
	return b.String()
}

func (d *Driver) finalizeIfPending() (string, bool) {
	if d.cb.FlushIdle == nil {
		return "", false
	}
	return d.cb.FlushIdle()
}

func (d *Driver) finalizePending() {
	if unitText, ok := d.finalizeIfPending(); ok {
		d.cb.OnFinalUnit(Unit{Text: unitText})
	}
}

// maybeRepeatOnSilence implements the pause behavior of spec §4.4: resend
// the previous segments once after 4s of silence. Past add_pause_thresh it
// records nothing: the driver keeps no separate text history, so no
// empty-text marker is pushed anywhere, and the committed transcript log is
// left untouched.
func (d *Driver) maybeRepeatOnSilence() {
	since := time.Since(d.lastOutputAt)
	if since >= showPrevOutThresh && !d.pausedOnceResent {
		d.sendClientSegments()
		d.pausedOnceResent = true
	}
	if since >= addPauseThresh {
		// empty-text marker: intentionally not appended to d.transcript.
	}
}

func (d *Driver) sendClientSegments() {
	if d.cb.OnSegments == nil {
		return
	}
	n := len(d.transcript)
	from := 0
	if n > clientSegmentLimit {
		from = n - clientSegmentLimit
	}
	out := make([]Segment, 0, clientSegmentLimit+1)
	out = append(out, d.transcript[from:]...)
	if d.lastProvisional != "" {
		out = append(out, Segment{Text: d.lastProvisional})
	}
	d.cb.OnSegments(out)
}
