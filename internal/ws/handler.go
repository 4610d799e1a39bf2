// Package ws implements the Server/Handshake layer (spec §4.2): one
// WebSocket connection is classified as a speaker or a listener based on
// its handshake frame, then handed off to a session.Speaker or
// session.Listener for the rest of its lifetime.
package ws

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/streamcast/streamcast/internal/asr"
	"github.com/streamcast/streamcast/internal/metrics"
	"github.com/streamcast/streamcast/internal/session"
	"github.com/streamcast/streamcast/internal/trace"
	"github.com/streamcast/streamcast/internal/translator"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  16384,
	WriteBufferSize: 16384,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

const (
	endOfAudioSentinel = "END_OF_AUDIO"
	listenerSentinel   = "LISTENER"
)

// HandlerConfig holds everything shared across all sessions served by one
// Handler: the backend ASR client, the configured translator providers,
// and the two session registries.
type HandlerConfig struct {
	ASRClient   asr.Client
	Providers   []translator.Provider
	Speakers    *session.Registry[*session.Speaker]
	Listeners   *session.Registry[*session.Listener]
	Broadcaster *session.Broadcaster

	RetryCount int
	RetryDelay time.Duration
	TraceStore *trace.Store
}

// Handler upgrades incoming connections and classifies each as a speaker
// or listener session (spec §4.2).
type Handler struct {
	cfg HandlerConfig
}

// NewHandler creates a WebSocket handler over the shared backend clients
// and registries.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{cfg: cfg}
}

// handshake is the first text frame sent by either a speaker or a
// listener (spec §4.2, §6).
type handshake struct {
	UID           string         `json:"uid"`
	ListenerUID   *string        `json:"listener_uid"`
	Language      *string        `json:"language"`
	Task          string         `json:"task"`
	Model         string         `json:"model"`
	UseVAD        bool           `json:"use_vad"`
	InitialPrompt *string        `json:"initial_prompt"`
	VADParameters map[string]any `json:"vad_parameters"`
}

// audioFrame is a subsequent speaker frame carrying one chunk of PCM
// audio (spec §4.2, §6).
type audioFrame struct {
	Audio         string   `json:"audio"`
	SpeakerLang   string   `json:"speakerLang"`
	AllLangs      []string `json:"allLangs"`
	IsStartStream bool     `json:"isStartStream"`
}

// ServeHTTP upgrades the connection, reads the handshake frame, and
// dispatches to the speaker or listener path.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	msgType, data, err := conn.ReadMessage()
	if err != nil {
		slog.Warn("handshake read failed", "error", err)
		_ = conn.Close()
		return
	}
	if msgType != websocket.TextMessage {
		slog.Warn("handshake frame was not text", "type", msgType)
		_ = conn.Close()
		return
	}

	var hs handshake
	if err := json.Unmarshal(data, &hs); err != nil {
		slog.Warn("malformed handshake JSON", "error", err)
		_ = conn.Close()
		return
	}
	if hs.UID == "" {
		slog.Warn("handshake missing uid")
		_ = conn.Close()
		return
	}

	if hs.ListenerUID != nil {
		h.runListener(conn, hs)
		return
	}
	h.runSpeaker(conn, hs)
}

func (h *Handler) runSpeaker(conn *websocket.Conn, hs handshake) {
	if h.cfg.Speakers.IsFull() {
		minutes := h.cfg.Speakers.EstimatedWaitMinutes()
		_ = conn.WriteJSON(map[string]any{"uid": hs.UID, "status": "WAIT", "message": minutes})
		_ = conn.Close()
		return
	}

	language := ""
	if hs.Language != nil {
		language = *hs.Language
	}
	initialPrompt := ""
	if hs.InitialPrompt != nil {
		initialPrompt = *hs.InitialPrompt
	}
	task := hs.Task
	if task == "" {
		task = "transcribe"
	}

	var tracer *trace.Tracer
	if h.cfg.TraceStore != nil {
		_ = h.cfg.TraceStore.CreateSession(hs.UID, string(mustJSON(hs)))
		tracer = trace.NewTracer(h.cfg.TraceStore, hs.UID)
	}

	speaker := session.NewSpeaker(session.SpeakerConfig{
		UID:           hs.UID,
		Language:      language,
		Task:          task,
		UseVAD:        hs.UseVAD,
		InitialPrompt: initialPrompt,
		VADParameters: hs.VADParameters,
		ASRClient:     h.cfg.ASRClient,
		Providers:     h.cfg.Providers,
		Broadcaster:   h.cfg.Broadcaster,
		RetryCount:    h.cfg.RetryCount,
		RetryDelay:    h.cfg.RetryDelay,
		Tracer:        tracer,
	}, conn)

	h.cfg.Speakers.Add(hs.UID, speaker)
	metrics.SpeakersActive.Inc()
	metrics.SessionsTotal.WithLabelValues("speaker").Inc()
	defer func() {
		metrics.SpeakersActive.Dec()
		if tracer != nil {
			tracer.Close()
			_ = h.cfg.TraceStore.EndSession(hs.UID)
		}
	}()

	speaker.Start(context.Background())
	pumpSpeakerFrames(conn, speaker, hs.UID)
	// RemoveSession, not Remove: a uid collision (spec §4.1) may already
	// have replaced this registry entry with a newer speaker session by
	// the time this connection's read loop unwinds.
	_ = h.cfg.Speakers.RemoveSession(hs.UID, speaker)
}

// pumpSpeakerFrames reads frames until END_OF_AUDIO, disconnect, or a
// protocol error (spec §4.2, §4.8 "RUNNING ->[END_OF_AUDIO | peer close]
// DRAINING").
func pumpSpeakerFrames(conn *websocket.Conn, speaker *session.Speaker, uid string) {
	for {
		msgType, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		switch string(data) {
		case endOfAudioSentinel:
			return
		case listenerSentinel:
			continue
		}

		var frame audioFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Warn("malformed audio frame, closing", "uid", uid, "error", err)
			metrics.Errors.WithLabelValues("ws", "malformed_frame").Inc()
			return
		}
		if _, err := base64.StdEncoding.DecodeString(frame.Audio); err != nil {
			slog.Warn("audio frame not valid base64, closing", "uid", uid, "error", err)
			metrics.Errors.WithLabelValues("ws", "bad_audio_encoding").Inc()
			return
		}
		if err := speaker.OnAudioFrame(frame.Audio, frame.SpeakerLang, frame.AllLangs); err != nil {
			slog.Warn("audio frame rejected, closing", "uid", uid, "error", err)
			metrics.Errors.WithLabelValues("ws", "bad_audio_frame").Inc()
			return
		}
	}
}

func (h *Handler) runListener(conn *websocket.Conn, hs handshake) {
	if h.cfg.Listeners.IsFull() {
		minutes := h.cfg.Listeners.EstimatedWaitMinutes()
		_ = conn.WriteJSON(map[string]any{"uid": hs.UID, "status": "WAIT", "message": minutes})
		_ = conn.Close()
		return
	}

	speakerUID := *hs.ListenerUID
	id := hs.UID
	if id == "" {
		id = uuid.NewString()
	}

	listener := session.NewListener(id, speakerUID, conn)
	h.cfg.Listeners.Add(id, listener)
	metrics.ListenersActive.Inc()
	metrics.SessionsTotal.WithLabelValues("listener").Inc()
	defer metrics.ListenersActive.Dec()

	pumpListenerFrames(conn)
	_ = h.cfg.Listeners.RemoveSession(id, listener)
}

// pumpListenerFrames discards every subsequent frame from a listener;
// only connection liveness matters (spec §4.2 "ignored except for
// connection liveness").
func pumpListenerFrames(conn *websocket.Conn) {
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func mustJSON(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		return []byte(fmt.Sprintf("%v", v))
	}
	return b
}
