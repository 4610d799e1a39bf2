package main

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/streamcast/streamcast/internal/models"
	"github.com/streamcast/streamcast/internal/session"
	"github.com/streamcast/streamcast/internal/trace"
	"github.com/streamcast/streamcast/internal/translator"
)

// defaultTraceSessionLimit is how many trace sessions are returned when
// the caller omits the ?limit= query parameter.
const defaultTraceSessionLimit = 20

type deps struct {
	wsHandler  http.Handler
	speakers   *session.Registry[*session.Speaker]
	listeners  *session.Registry[*session.Listener]
	providers  []translator.Provider
	traceStore *trace.Store
	ollamaURL  string
}

// registerRoutes wires all HTTP endpoints to the shared mux, including
// the SUPPLEMENTED FEATURES admin introspection endpoints.
func registerRoutes(mux *http.ServeMux, d deps) {
	mux.Handle("/ws", d.wsHandler)
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /providers", d.handleProviders)
	mux.HandleFunc("GET /sessions", d.handleSessions)
	registerTraceRoutes(mux, d.traceStore)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleProviders reports which translator engines are currently
// configured and available for dispatch, plus the set of models actually
// installed on the Ollama engine, if configured.
func (d deps) handleProviders(w http.ResponseWriter, r *http.Request) {
	names := make([]string, 0, len(d.providers))
	for _, p := range d.providers {
		names = append(names, p.Name())
	}

	resp := map[string]any{"providers": names}
	if d.ollamaURL != "" {
		if installed, err := models.ListLLMModels(r.Context(), d.ollamaURL); err == nil {
			resp["ollama_models"] = installed
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// handleSessions reports active speaker/listener counts.
func (d deps) handleSessions(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"speakers":  d.speakers.Count(),
		"listeners": d.listeners.Count(),
	})
}

func registerTraceRoutes(mux *http.ServeMux, store *trace.Store) {
	mux.HandleFunc("GET /api/traces/sessions", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "tracing disabled", http.StatusNotFound)
			return
		}
		limit := queryInt(r, "limit", defaultTraceSessionLimit)
		offset := queryInt(r, "offset", 0)
		sessions, total, err := store.ListSessions(limit, offset)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"sessions": sessions, "total": total})
	})

	mux.HandleFunc("GET /api/traces/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "tracing disabled", http.StatusNotFound)
			return
		}
		sess, runs, err := store.GetSession(r.PathValue("id"))
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"session": sess, "runs": runs})
	})

	mux.HandleFunc("GET /api/traces/sessions/{id}/runs/{runId}", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			http.Error(w, "tracing disabled", http.StatusNotFound)
			return
		}
		run, spans, err := store.GetRun(r.PathValue("id"), r.PathValue("runId"))
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"run": run, "spans": spans})
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
