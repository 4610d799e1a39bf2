package audio

import (
	"sync"
)

// SampleRate is the fixed mono sample rate (R) the Audio Buffer and ASR
// driver operate at (spec §3).
const SampleRate = 16000

const (
	maxBufferSeconds   = 60.0
	truncateSeconds    = 30.0
	staleTailSeconds   = 25.0
	staleLookbackSec   = 5.0
	minChunkSeconds    = 1.0
)

// Buffer is the per-speaker rolling PCM sample buffer with an offset clock,
// grounded on serve_client_base.py's add_frames/clip_audio_if_no_valid_segment/
// get_audio_chunk_for_processing (spec §3, §4.3).
type Buffer struct {
	mu             sync.Mutex
	samples        []float32
	framesOffset   float64 // seconds of audio discarded from the head
	timestampOffset float64 // seconds consumed by the transcriber

	onTruncate func() // optional hook, used by metrics
}

// NewBuffer creates an empty Audio Buffer.
func NewBuffer() *Buffer {
	return &Buffer{}
}

// OnTruncate registers a callback invoked every time the buffer head is
// dropped past the 60s ceiling.
func (b *Buffer) OnTruncate(fn func()) {
	b.onTruncate = fn
}

// Append adds new samples, truncating the head if the buffer has grown
// past 60s of audio (spec §4.3).
func (b *Buffer) Append(samples []float32) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if float64(len(b.samples))/SampleRate > maxBufferSeconds {
		drop := int(truncateSeconds * SampleRate)
		if drop > len(b.samples) {
			drop = len(b.samples)
		}
		b.samples = b.samples[drop:]
		b.framesOffset += truncateSeconds
		if b.timestampOffset < b.framesOffset {
			b.timestampOffset = b.framesOffset
		}
		if b.onTruncate != nil {
			b.onTruncate()
		}
	}

	b.samples = append(b.samples, samples...)
}

// Len reports the number of buffered samples.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.samples)
}

// ClipIfStale force-advances timestampOffset when the unread tail has
// grown past 25s without a valid committed segment, keeping a 5s
// look-back (spec §4.3).
func (b *Buffer) ClipIfStale() {
	b.mu.Lock()
	defer b.mu.Unlock()

	unread := b.unreadSamplesLocked()
	if float64(unread)/SampleRate <= staleTailSeconds {
		return
	}
	duration := float64(len(b.samples)) / SampleRate
	b.timestampOffset = b.framesOffset + duration - staleLookbackSec
}

func (b *Buffer) unreadSamplesLocked() int {
	take := (b.timestampOffset - b.framesOffset) * SampleRate
	if take < 0 {
		take = 0
	}
	n := len(b.samples) - int(take)
	if n < 0 {
		return 0
	}
	return n
}

// NextChunk returns a copy of the unread tail and its duration in seconds.
// Callers MUST treat duration < 1.0 as "not enough audio yet" and retry
// instead of invoking the ASR (spec §4.3, §4.4 step 4).
func (b *Buffer) NextChunk() (samples []float32, duration float64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	take := (b.timestampOffset - b.framesOffset) * SampleRate
	if take < 0 {
		take = 0
	}
	start := int(take)
	if start > len(b.samples) {
		start = len(b.samples)
	}
	out := make([]float32, len(b.samples)-start)
	copy(out, b.samples[start:])
	return out, float64(len(out)) / SampleRate
}

// Advance moves timestampOffset forward by delta seconds.
func (b *Buffer) Advance(delta float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timestampOffset += delta
}

// Offsets returns the current (framesOffset, timestampOffset) pair, mainly
// for computing absolute segment times and for tests asserting invariants.
func (b *Buffer) Offsets() (framesOffset, timestampOffset float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.framesOffset, b.timestampOffset
}

// SetTimestampOffset overwrites the timestamp offset directly. Used by the
// ASR driver after a commit or stall-commit (spec §4.4 step 8) and after an
// empty ASR result (step 6).
func (b *Buffer) SetTimestampOffset(v float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.timestampOffset = v
}

// MinChunkSeconds is the minimum chunk duration the ASR driver must see
// before calling the transcriber (spec §4.3, §4.4 step 4, §8 boundary).
const MinChunkSeconds = minChunkSeconds
