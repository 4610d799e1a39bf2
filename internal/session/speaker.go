package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/sync/errgroup"

	"github.com/streamcast/streamcast/internal/accumulator"
	"github.com/streamcast/streamcast/internal/asr"
	"github.com/streamcast/streamcast/internal/audio"
	"github.com/streamcast/streamcast/internal/metrics"
	"github.com/streamcast/streamcast/internal/trace"
	"github.com/streamcast/streamcast/internal/translator"
)

// State is one position in the Speaker Session state machine (spec
// §4.8): HANDSHAKING -> READY -> RUNNING -> DRAINING -> TERMINATED.
type State int32

const (
	StateHandshaking State = iota
	StateReady
	StateRunning
	StateDraining
	StateTerminated
)

const (
	drainGracePeriod   = 3 * time.Second
	translateQueueSize = 64
	translateTimeout   = 30 * time.Second
)

// SpeakerConfig bundles everything a Speaker needs at construction,
// resolved once from the handshake payload (spec §4.2).
type SpeakerConfig struct {
	UID           string
	Language      string // may be "" at handshake, pending auto-detect
	TargetLangs   []string
	Task          string
	UseVAD        bool
	InitialPrompt string
	VADParameters map[string]any

	ASRClient   asr.Client
	Providers   []translator.Provider
	Broadcaster *Broadcaster
	RetryCount  int
	RetryDelay  time.Duration
	Tracer      *trace.Tracer
}

// Speaker is the Speaker Session (spec §3, §4.4-§4.8): owns one Audio
// Buffer, runs the ASR driver loop, runs LTR/RTL finalization, streams
// transcription segments back over its own connection, and submits
// finalized units to its own Translator Pool, fanning results out to
// listeners via the Broadcaster. Grounded on
// whisper_live/serve_client_faster_whisper.py's ServeClientFasterWhisper
// for the overall session shape and lifecycle.
type Speaker struct {
	cfg  SpeakerConfig
	conn *websocket.Conn

	writeMu sync.Mutex

	buf    *audio.Buffer
	driver *asr.Driver
	pool   *translator.Pool

	langMu      sync.Mutex
	speakerLang string
	allLangs    []string
	isRTL       bool
	ltr         *accumulator.LTR
	rtl         *accumulator.RTL

	translationID  atomic.Int64
	translateQueue chan asr.Unit

	state  atomic.Int32
	cancel context.CancelFunc
	eg     *errgroup.Group
}

// NewSpeaker constructs a Speaker in the HANDSHAKING state, selecting the
// LTR or RTL accumulator based on cfg.Language (spec §4.5).
func NewSpeaker(cfg SpeakerConfig, conn *websocket.Conn) *Speaker {
	s := &Speaker{
		cfg:            cfg,
		conn:           conn,
		buf:            audio.NewBuffer(),
		speakerLang:    cfg.Language,
		allLangs:       cfg.TargetLangs,
		translateQueue: make(chan asr.Unit, translateQueueSize),
	}
	s.installAccumulator(cfg.Language)
	s.pool = translator.NewPool(cfg.Providers, cfg.RetryCount, cfg.RetryDelay, cfg.Tracer)
	s.buf.OnTruncate(func() { metrics.AudioBufferTruncations.Inc() })
	s.state.Store(int32(StateHandshaking))
	return s
}

func (s *Speaker) installAccumulator(lang string) {
	s.isRTL = accumulator.IsRTL(lang)
	if s.isRTL {
		s.rtl = accumulator.NewRTL()
		s.ltr = nil
	} else {
		s.ltr = accumulator.NewLTR()
		s.rtl = nil
	}
}

// Start transitions the session to READY, sends the handshake
// acknowledgement, and launches the ASR driver loop plus the translation
// worker under a shared errgroup so Stop can join both (spec §4.8
// "HANDSHAKING ->[valid handshake] READY").
func (s *Speaker) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	eg, egCtx := errgroup.WithContext(ctx)
	s.eg = eg

	s.state.Store(int32(StateReady))
	s.sendJSON(map[string]string{
		"uid":     s.cfg.UID,
		"message": "SERVER_READY",
		"backend": "faster_whisper",
	})

	params := asr.SessionParams{
		InitialPrompt: s.cfg.InitialPrompt,
		Language:      s.resolveLanguage,
		Task:          s.cfg.Task,
		UseVAD:        s.cfg.UseVAD,
		VADParameters: s.cfg.VADParameters,
	}
	s.driver = asr.New(s.cfg.ASRClient, s.buf, params, asr.Callbacks{
		OnLanguageDetected: s.onLanguageDetected,
		OnSegments:         s.onSegments,
		OnFinalUnit:        s.onFinalUnit,
		Accumulate:         s.accumulate,
		FlushIdle:          s.flushIdle,
	}, s.cfg.Tracer)

	eg.Go(func() error {
		s.driver.Run(egCtx)
		return nil
	})
	eg.Go(func() error {
		s.translateWorker(egCtx)
		return nil
	})
}

func (s *Speaker) resolveLanguage() string {
	s.langMu.Lock()
	defer s.langMu.Unlock()
	if s.speakerLang != "" {
		return s.speakerLang
	}
	return s.cfg.Language
}

// OnAudioFrame decodes one inbound audio frame, refreshes the speaker's
// declared language and target list if the frame carries them, and
// appends the decoded samples to the Audio Buffer (spec §4.2, §4.3).
func (s *Speaker) OnAudioFrame(samplesB64, speakerLang string, allLangs []string) error {
	raw, err := base64.StdEncoding.DecodeString(samplesB64)
	if err != nil {
		return fmt.Errorf("decode audio frame: %w", err)
	}
	samples, err := audio.DecodeFloat32LE(raw)
	if err != nil {
		return err
	}

	s.langMu.Lock()
	if speakerLang != "" {
		s.speakerLang = speakerLang
	}
	if len(allLangs) > 0 {
		s.allLangs = allLangs
	}
	s.langMu.Unlock()

	s.state.CompareAndSwap(int32(StateReady), int32(StateRunning))

	s.buf.Append(samples)
	return nil
}

func (s *Speaker) onLanguageDetected(lang string, prob float64) {
	s.langMu.Lock()
	s.speakerLang = lang
	s.installAccumulator(lang)
	s.langMu.Unlock()

	s.sendJSON(map[string]any{"uid": s.cfg.UID, "language": lang, "language_prob": prob})
}

func (s *Speaker) onSegments(segs []asr.Segment) {
	out := make([]map[string]any, 0, len(segs))
	for _, seg := range segs {
		out = append(out, map[string]any{
			"start": fmt.Sprintf("%.3f", seg.Start),
			"end":   fmt.Sprintf("%.3f", seg.End),
			"text":  seg.Text,
		})
	}
	s.sendJSON(map[string]any{"uid": s.cfg.UID, "segments": out})
}

// accumulate bridges the ASR driver's uniform (text, translate bool)
// callback onto the speaker's chosen LTR or RTL policy (spec §4.5): LTR
// only finalizes on its own terminator punctuation and ignores
// translate=false events entirely; RTL treats translate=true as
// "accumulate" and translate=false as "check whether to finalize now",
// mirroring format_segment's branch structure.
func (s *Speaker) accumulate(text string, translate bool, start, end float64) (string, bool) {
	s.langMu.Lock()
	isRTL := s.isRTL
	ltr := s.ltr
	rtl := s.rtl
	s.langMu.Unlock()

	if isRTL {
		if translate {
			rtl.Accumulate(text)
			return "", false
		}
		return rtl.FinalizeIfDue()
	}

	if !translate {
		return "", false
	}
	if unit := ltr.Add(text); unit != "" {
		return unit, true
	}
	return "", false
}

// flushIdle finalizes whatever is pending due to idle silence (spec §4.5
// "Idle finalization"), called on DRAINING and on an empty ASR result.
func (s *Speaker) flushIdle() (string, bool) {
	s.langMu.Lock()
	isRTL := s.isRTL
	ltr := s.ltr
	rtl := s.rtl
	s.langMu.Unlock()

	if isRTL {
		return rtl.FinalizeIfDue()
	}
	if ltr.Pending() == "" {
		return "", false
	}
	return ltr.Flush(), true
}

// onFinalUnit enqueues a finalized unit for translation off the ASR
// critical path (spec §5 "An additional short-lived task MAY be spawned
// per finalized unit"). A full queue drops the unit rather than blocking
// the ASR driver loop.
func (s *Speaker) onFinalUnit(unit asr.Unit) {
	select {
	case s.translateQueue <- unit:
	default:
		slog.Warn("translation queue full, dropping unit", "uid", s.cfg.UID)
		metrics.TranslationDrops.Inc()
	}
}

// translateWorker drains translateQueue strictly in order, so that
// translation ids are assigned (and broadcast) in increasing order per
// speaker (spec §5 "Per speaker, translation messages are sent in order
// of increasing id").
func (s *Speaker) translateWorker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case unit := <-s.translateQueue:
			s.translateAndBroadcast(ctx, unit)
		}
	}
}

type translationMessage struct {
	ID        int64           `json:"id"`
	Start     string          `json:"start"`
	End       string          `json:"end"`
	Translate json.RawMessage `json:"translate"`
}

func (s *Speaker) translateAndBroadcast(parent context.Context, unit asr.Unit) {
	ctx, cancel := context.WithTimeout(parent, translateTimeout)
	defer cancel()

	s.langMu.Lock()
	srcLang := s.speakerLang
	if srcLang == "" {
		srcLang = s.cfg.Language
	}
	targets := append([]string(nil), s.allLangs...)
	s.langMu.Unlock()

	translateJSON, err := s.pool.Translate(ctx, unit.Text, srcLang, targets)
	if err != nil {
		slog.Warn("translation dropped", "uid", s.cfg.UID, "error", err)
		return
	}

	id := s.translationID.Add(1)
	msg := translationMessage{
		ID:        id,
		Start:     fmt.Sprintf("%.3f", unit.Start),
		End:       fmt.Sprintf("%.3f", unit.End),
		Translate: json.RawMessage(translateJSON),
	}
	s.cfg.Broadcaster.Broadcast(s.cfg.UID, msg)
}

// sendJSON writes to the speaker's own connection, serialized against
// concurrent writers (spec §5 "Sending on a connection").
func (s *Speaker) sendJSON(v any) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(v); err != nil {
		slog.Warn("speaker send failed", "uid", s.cfg.UID, "error", err)
	}
}

// Stop drives DRAINING -> TERMINATED (spec §4.8): cancels the driver and
// translation worker, waits up to drainGracePeriod for both to join, then
// closes the connection unconditionally.
func (s *Speaker) Stop() {
	prev := State(s.state.Swap(int32(StateDraining)))
	if prev == StateTerminated {
		s.state.Store(int32(StateTerminated))
		return
	}

	if s.cancel != nil {
		s.cancel()
	}

	joined := make(chan struct{})
	go func() {
		if s.eg != nil {
			_ = s.eg.Wait()
		}
		close(joined)
	}()

	select {
	case <-joined:
	case <-time.After(drainGracePeriod):
		slog.Warn("speaker drain grace period exceeded", "uid", s.cfg.UID)
	}

	s.state.Store(int32(StateTerminated))
	_ = s.conn.Close()
}

// Close implements Closable so Speaker can be stored in a Registry.
func (s *Speaker) Close() error {
	s.Stop()
	return nil
}

// NotifyTimeout sends the DISCONNECT frame required before the timeout
// sweep forcibly removes this session (spec §4.1 "is_timed_out").
func (s *Speaker) NotifyTimeout() {
	s.sendJSON(map[string]string{"uid": s.cfg.UID, "message": "DISCONNECT"})
}

// State reports the session's current lifecycle state.
func (s *Speaker) State() State {
	return State(s.state.Load())
}
