package ws

import (
	"context"
	"encoding/base64"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/streamcast/streamcast/internal/asr"
	"github.com/streamcast/streamcast/internal/session"
)

type noopASRClient struct{}

func (noopASRClient) Transcribe(ctx context.Context, samples []float32, p asr.Params) ([]asr.SubSegment, asr.Info, error) {
	return nil, asr.Info{}, nil
}

func newTestHandler(speakerCap, listenerCap int) *Handler {
	listeners := session.NewRegistry[*session.Listener](listenerCap, time.Hour)
	return NewHandler(HandlerConfig{
		ASRClient:   noopASRClient{},
		Speakers:    session.NewRegistry[*session.Speaker](speakerCap, time.Hour),
		Listeners:   listeners,
		Broadcaster: session.NewBroadcaster(listeners),
	})
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHandler_SpeakerHandshakeGetsServerReady(t *testing.T) {
	srv := httptest.NewServer(newTestHandler(10, 10))
	t.Cleanup(srv.Close)

	conn := dial(t, srv)
	if err := conn.WriteJSON(map[string]any{"uid": "spk-1", "language": "en", "task": "transcribe"}); err != nil {
		t.Fatalf("write handshake: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got map[string]any
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("expected SERVER_READY, got error: %v", err)
	}
	if got["message"] != "SERVER_READY" {
		t.Fatalf("got %v, want message=SERVER_READY", got)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(endOfAudioSentinel)); err != nil {
		t.Fatalf("write END_OF_AUDIO: %v", err)
	}
}

func TestHandler_SpeakerFullReturnsWait(t *testing.T) {
	h := newTestHandler(0, 10)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	conn := dial(t, srv)
	if err := conn.WriteJSON(map[string]any{"uid": "spk-1"}); err != nil {
		t.Fatalf("write handshake: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got map[string]any
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("expected WAIT response, got error: %v", err)
	}
	if got["status"] != "WAIT" {
		t.Fatalf("got %v, want status=WAIT", got)
	}
}

func TestHandler_ListenerFullReturnsWait(t *testing.T) {
	h := newTestHandler(10, 0)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	conn := dial(t, srv)
	uid := "listener-a"
	speakerUID := "spk-1"
	if err := conn.WriteJSON(map[string]any{"uid": uid, "listener_uid": &speakerUID}); err != nil {
		t.Fatalf("write handshake: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got map[string]any
	if err := conn.ReadJSON(&got); err != nil {
		t.Fatalf("expected WAIT response, got error: %v", err)
	}
	if got["status"] != "WAIT" {
		t.Fatalf("got %v, want status=WAIT", got)
	}
}

func TestHandler_ListenerHandshakeDiscriminatesOnListenerUID(t *testing.T) {
	h := newTestHandler(10, 10)
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	conn := dial(t, srv)
	speakerUID := "spk-1"
	if err := conn.WriteJSON(map[string]any{"uid": "listener-a", "listener_uid": &speakerUID}); err != nil {
		t.Fatalf("write handshake: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h.cfg.Listeners.Count() == 1 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("listener was not registered, Count() = %d", h.cfg.Listeners.Count())
}

func TestHandler_MalformedHandshakeClosesConnection(t *testing.T) {
	srv := httptest.NewServer(newTestHandler(10, 10))
	t.Cleanup(srv.Close)

	conn := dial(t, srv)
	if err := conn.WriteMessage(websocket.TextMessage, []byte("not json")); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected connection to be closed after malformed handshake")
	}
}

func TestHandler_MalformedAudioFrameClosesConnection(t *testing.T) {
	srv := httptest.NewServer(newTestHandler(10, 10))
	t.Cleanup(srv.Close)

	conn := dial(t, srv)
	if err := conn.WriteJSON(map[string]any{"uid": "spk-1"}); err != nil {
		t.Fatalf("write handshake: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ready map[string]any
	if err := conn.ReadJSON(&ready); err != nil {
		t.Fatalf("read SERVER_READY: %v", err)
	}

	if err := conn.WriteJSON(map[string]any{"audio": "not-valid-base64!!!"}); err != nil {
		t.Fatalf("write bad audio frame: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected connection to be closed after malformed audio frame")
	}
}

func TestHandler_ValidAudioFrameIsAccepted(t *testing.T) {
	srv := httptest.NewServer(newTestHandler(10, 10))
	t.Cleanup(srv.Close)

	conn := dial(t, srv)
	if err := conn.WriteJSON(map[string]any{"uid": "spk-1", "language": "en"}); err != nil {
		t.Fatalf("write handshake: %v", err)
	}
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ready map[string]any
	if err := conn.ReadJSON(&ready); err != nil {
		t.Fatalf("read SERVER_READY: %v", err)
	}

	samples := base64.StdEncoding.EncodeToString(make([]byte, 3200))
	if err := conn.WriteJSON(map[string]any{"audio": samples, "speakerLang": "en"}); err != nil {
		t.Fatalf("write audio frame: %v", err)
	}

	if err := conn.WriteMessage(websocket.TextMessage, []byte(endOfAudioSentinel)); err != nil {
		t.Fatalf("write END_OF_AUDIO: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	_, _, _ = conn.ReadMessage()
}
