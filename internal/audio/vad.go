package audio

import (
	"math"
	"time"
)

// VADConfig controls the energy-based silence detector used to feed the
// idle-finalization signal in the sentence accumulator.
type VADConfig struct {
	SpeechThresholdDB   float64
	SampleRate          int
	CalibrationDuration time.Duration // noise floor calibration window (0 = disabled)
	AdaptiveMarginDB    float64       // dB above noise floor for speech threshold
}

// DefaultVADConfig returns sensible defaults for 16kHz mono speech.
func DefaultVADConfig() VADConfig {
	return VADConfig{
		SpeechThresholdDB:   -30,
		SampleRate:          16000,
		CalibrationDuration: 500 * time.Millisecond,
		AdaptiveMarginDB:    10,
	}
}

// SilenceDetector reports how long the most recently observed audio has
// been below the speech-energy threshold. The ASR driver loop uses it to
// decide when a stretch of silence is long enough to trigger idle
// finalization of a pending accumulator buffer (spec §4.5).
type SilenceDetector struct {
	cfg VADConfig

	calibrating         bool
	calibrationStart    time.Time
	calibrationReadings []float64
	threshold           float64

	silenceSince time.Time
	inSilence    bool
}

// NewSilenceDetector creates a detector with the given config.
func NewSilenceDetector(cfg VADConfig) *SilenceDetector {
	return &SilenceDetector{
		cfg:         cfg,
		calibrating: cfg.CalibrationDuration > 0,
		threshold:   cfg.SpeechThresholdDB,
	}
}

// Observe feeds a chunk of samples in and returns the duration the signal
// has continuously been below the speech threshold (zero if currently
// speech-level or if this chunk starts a new below-threshold run).
func (d *SilenceDetector) Observe(samples []float32, now time.Time) time.Duration {
	energyDB := computeEnergyDB(samples)

	if d.calibrating {
		d.calibrate(energyDB, now)
	}

	if energyDB >= d.threshold {
		d.inSilence = false
		return 0
	}

	if !d.inSilence {
		d.inSilence = true
		d.silenceSince = now
		return 0
	}
	return now.Sub(d.silenceSince)
}

func (d *SilenceDetector) calibrate(energyDB float64, now time.Time) {
	if d.calibrationStart.IsZero() {
		d.calibrationStart = now
	}
	d.calibrationReadings = append(d.calibrationReadings, energyDB)

	if now.Sub(d.calibrationStart) < d.cfg.CalibrationDuration {
		return
	}

	var sum float64
	for _, e := range d.calibrationReadings {
		sum += e
	}
	noiseFloor := sum / float64(len(d.calibrationReadings))

	adaptive := noiseFloor + d.cfg.AdaptiveMarginDB
	if adaptive > d.cfg.SpeechThresholdDB {
		d.threshold = adaptive
	}

	d.calibrating = false
	d.calibrationReadings = nil
}

func computeEnergyDB(samples []float32) float64 {
	if len(samples) == 0 {
		return -100
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	rms := math.Sqrt(sum / float64(len(samples)))
	if rms < 1e-10 {
		return -100
	}
	return 20 * math.Log10(rms)
}
