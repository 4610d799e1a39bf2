// Package asr implements the ASR Provider contract and the per-speaker
// driver loop (spec §4.4, §6), grounded on a pooled HTTP client with
// multipart WAV upload, and on
// whisper_live/serve_client_faster_whisper.py's speech_to_text/
// update_segments/handle_transcription_output.
package asr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/streamcast/streamcast/internal/audio"
)

// SubSegment is one ASR output span local to the audio chunk sent to the
// model (spec §6, Glossary "Sub-segment").
type SubSegment struct {
	Start        float64
	End          float64
	Text         string
	NoSpeechProb float64
}

// Info carries the ASR's auto-detected source language for the chunk, if
// any (spec §4.4 step 7).
type Info struct {
	Language            string
	LanguageProbability float64
}

// Params bundles the per-call transcription parameters the ASR driver
// passes on every iteration (spec §4.4 step 5).
type Params struct {
	InitialPrompt string
	Language      string
	Task          string // "transcribe" | "translate"
	VADFilter     bool
	VADParameters map[string]any
}

// Client is the external ASR collaborator contract (spec §6): transcribe a
// chunk of mono float32 PCM @16kHz and return ordered sub-segments plus
// detected-language info. Implementations are expected to be safe for
// concurrent use; the driver loop is responsible for the global
// single-model serialization (spec §5 "ASR model").
type Client interface {
	Transcribe(ctx context.Context, samples []float32, p Params) ([]SubSegment, Info, error)
}

// HTTPClient sends audio to a whisper.cpp-style HTTP inference server as a
// multipart WAV upload. Grounded on pipeline/asr.go's ASRClient and
// buildMultipartAudio, extended to carry the prompt/language/task/VAD
// parameters the faster-whisper-style backend contract requires.
type HTTPClient struct {
	url    string
	client *http.Client
}

// NewHTTPClient creates a client pointing at the whisper.cpp-style server
// URL, with a connection-pooled transport sized for poolSize concurrent
// speaker sessions.
func NewHTTPClient(url string, poolSize int) *HTTPClient {
	return &HTTPClient{
		url: url,
		client: &http.Client{
			Timeout: 30 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:          poolSize,
				MaxIdleConnsPerHost:   poolSize,
				IdleConnTimeout:       90 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
				ForceAttemptHTTP2:     true,
			},
		},
	}
}

type inferenceResponse struct {
	Segments []struct {
		Start        float64 `json:"start"`
		End          float64 `json:"end"`
		Text         string  `json:"text"`
		NoSpeechProb float64 `json:"no_speech_prob"`
	} `json:"segments"`
	Language            string  `json:"language"`
	LanguageProbability float64 `json:"language_probability"`
}

// Transcribe posts the chunk as a multipart WAV file along with the
// transcription parameters as form fields and decodes the segment list.
func (c *HTTPClient) Transcribe(ctx context.Context, samples []float32, p Params) ([]SubSegment, Info, error) {
	body, contentType, err := buildMultipartRequest(samples, p)
	if err != nil {
		return nil, Info{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url+"/inference", body)
	if err != nil {
		return nil, Info{}, fmt.Errorf("create asr request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, Info{}, fmt.Errorf("asr request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, Info{}, fmt.Errorf("asr status %d: %s", resp.StatusCode, string(respBody))
	}

	var out inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, Info{}, fmt.Errorf("decode asr response: %w", err)
	}

	subs := make([]SubSegment, 0, len(out.Segments))
	for _, s := range out.Segments {
		subs = append(subs, SubSegment{Start: s.Start, End: s.End, Text: s.Text, NoSpeechProb: s.NoSpeechProb})
	}
	return subs, Info{Language: out.Language, LanguageProbability: out.LanguageProbability}, nil
}

func buildMultipartRequest(samples []float32, p Params) (*bytes.Buffer, string, error) {
	wavData := audio.SamplesToWAV(samples, audio.SampleRate)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(wavData); err != nil {
		return nil, "", fmt.Errorf("write wav data: %w", err)
	}

	fields := map[string]string{
		"language":       p.Language,
		"task":           p.Task,
		"initial_prompt": p.InitialPrompt,
		"vad_filter":     fmt.Sprintf("%t", p.VADFilter),
	}
	if p.VADParameters != nil {
		if raw, err := json.Marshal(p.VADParameters); err == nil {
			fields["vad_parameters"] = string(raw)
		}
	}
	for k, v := range fields {
		if err := writer.WriteField(k, v); err != nil {
			return nil, "", fmt.Errorf("write field %q: %w", k, err)
		}
	}

	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart writer: %w", err)
	}
	return &body, writer.FormDataContentType(), nil
}
