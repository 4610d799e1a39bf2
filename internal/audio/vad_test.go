package audio

import (
	"testing"
	"time"
)

func silentSamples(n int) []float32 { return make([]float32, n) }

func loudSamples(n int) []float32 {
	s := make([]float32, n)
	for i := range s {
		s[i] = 0.9
	}
	return s
}

func TestSilenceDetector_ReportsZeroDuringSpeech(t *testing.T) {
	d := NewSilenceDetector(VADConfig{SpeechThresholdDB: -30, SampleRate: 16000})
	now := time.Unix(0, 0)

	if got := d.Observe(loudSamples(1600), now); got != 0 {
		t.Fatalf("Observe during speech = %v, want 0", got)
	}
}

func TestSilenceDetector_AccumulatesSilenceDuration(t *testing.T) {
	d := NewSilenceDetector(VADConfig{SpeechThresholdDB: -30, SampleRate: 16000})
	start := time.Unix(0, 0)

	if got := d.Observe(silentSamples(1600), start); got != 0 {
		t.Fatalf("first silent Observe = %v, want 0 (transition edge)", got)
	}

	later := start.Add(2 * time.Second)
	got := d.Observe(silentSamples(1600), later)
	if got != 2*time.Second {
		t.Fatalf("Observe after 2s silence = %v, want 2s", got)
	}
}

func TestSilenceDetector_ResetsOnSpeechReturn(t *testing.T) {
	d := NewSilenceDetector(VADConfig{SpeechThresholdDB: -30, SampleRate: 16000})
	start := time.Unix(0, 0)

	d.Observe(silentSamples(1600), start)
	d.Observe(silentSamples(1600), start.Add(1*time.Second))

	if got := d.Observe(loudSamples(1600), start.Add(2*time.Second)); got != 0 {
		t.Fatalf("Observe on speech return = %v, want 0", got)
	}

	if got := d.Observe(silentSamples(1600), start.Add(2*time.Second)); got != 0 {
		t.Fatalf("Observe immediately after silence restart = %v, want 0 (transition edge)", got)
	}
}

func TestComputeEnergyDB_SilenceIsFloor(t *testing.T) {
	if got := computeEnergyDB(silentSamples(100)); got != -100 {
		t.Fatalf("computeEnergyDB(silence) = %v, want -100", got)
	}
}
