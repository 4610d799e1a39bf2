package translator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tidwall/sjson"

	"github.com/streamcast/streamcast/internal/metrics"
	"github.com/streamcast/streamcast/internal/trace"
)

const (
	maxLangsPerChunk  = 30
	rollingContextK   = 3
	defaultRetries    = 3
	defaultRetryDelay = 500 * time.Millisecond
)

// Pool is the Translator Pool (spec §4.6): round-robin dispatch over N
// providers sharing one bounded rolling context, with chunked
// target-language batching and per-call retry/parse validation. Grounded
// on translation_tools/utils.py's LoadBalancedTranslator.
type Pool struct {
	mu             sync.Mutex
	providers      []Provider
	counter        int
	rollingContext []string

	retries    int
	retryDelay time.Duration
	tracer     *trace.Tracer
}

// NewPool creates a pool over the given providers in round-robin order.
// An empty provider list is permitted at construction time but every call
// to Translate then fails (spec §4.6 "if none, the pool rejects all
// submissions"). tracer may be nil.
func NewPool(providers []Provider, retries int, retryDelay time.Duration, tracer *trace.Tracer) *Pool {
	if retries <= 0 {
		retries = defaultRetries
	}
	if retryDelay <= 0 {
		retryDelay = defaultRetryDelay
	}
	return &Pool{providers: providers, retries: retries, retryDelay: retryDelay, tracer: tracer}
}

// Translate runs translate_unit (spec §4.6 steps 1-7) for one finalized
// unit and returns the wire-ready "translate" JSON object, including the
// source-language pass-through entry. An error means the unit must be
// dropped: the caller MUST NOT advance its translation id (spec §7
// "Translator failure").
func (p *Pool) Translate(ctx context.Context, text, srcLang string, targets []string) (string, error) {
	runID := p.tracer.StartRun()
	started := time.Now()

	doc, err := p.translate(ctx, text, srcLang, targets)

	status := "ok"
	errMsg := ""
	if err != nil {
		status = "error"
		errMsg = err.Error()
	}
	p.tracer.EndRun(runID, time.Since(started).Seconds()*1000, text, errOrDoc(doc, errMsg), status)
	return doc, err
}

func errOrDoc(doc, errMsg string) string {
	if errMsg != "" {
		return errMsg
	}
	return doc
}

func (p *Pool) translate(ctx context.Context, text, srcLang string, targets []string) (string, error) {
	p.mu.Lock()
	if len(p.providers) == 0 {
		p.mu.Unlock()
		return "", fmt.Errorf("translator pool: no providers configured")
	}
	provider := p.providers[p.counter%len(p.providers)]
	contextSnapshot := append([]string(nil), p.rollingContext...)
	p.mu.Unlock()

	doc, err := sjson.Set("{}", srcLang, text)
	if err != nil {
		return "", fmt.Errorf("translator pool: build passthrough: %w", err)
	}

	for _, chunk := range chunkLangs(targets, maxLangsPerChunk) {
		if len(chunk) == 0 {
			continue
		}
		result, ok := p.translateChunk(ctx, provider, text, srcLang, chunk, contextSnapshot)
		if !ok {
			return "", fmt.Errorf("translator pool: unit dropped after exhausting retries")
		}
		for lang, translated := range result {
			doc, err = sjson.Set(doc, lang, translated)
			if err != nil {
				return "", fmt.Errorf("translator pool: merge chunk result: %w", err)
			}
		}
	}

	p.mu.Lock()
	p.counter++
	p.rollingContext = append(p.rollingContext, text)
	if len(p.rollingContext) > rollingContextK {
		p.rollingContext = p.rollingContext[1:]
	}
	p.mu.Unlock()

	return doc, nil
}

func (p *Pool) translateChunk(ctx context.Context, provider Provider, text, srcLang string, chunk, rollingContext []string) (map[string]string, bool) {
	systemPrompt := buildSystemPrompt(srcLang, chunk, rollingContext, exampleResponse(chunk))

	for attempt := 0; attempt < p.retries; attempt++ {
		if attempt > 0 {
			metrics.TranslationRetries.WithLabelValues(provider.Name()).Inc()
			select {
			case <-ctx.Done():
				return nil, false
			case <-time.After(p.retryDelay):
			}
		}

		start := time.Now()
		raw, err := provider.Chat(ctx, systemPrompt, text)
		metrics.TranslatorCallDuration.WithLabelValues(provider.Name()).Observe(time.Since(start).Seconds())
		if err != nil {
			continue
		}

		parsed, verr := validateTranslation(raw, chunk)
		if verr != nil {
			continue
		}
		return parsed, true
	}

	metrics.TranslationDrops.Inc()
	return nil, false
}

func chunkLangs(langs []string, size int) [][]string {
	if len(langs) == 0 {
		return nil
	}
	chunks := make([][]string, 0, (len(langs)+size-1)/size)
	for i := 0; i < len(langs); i += size {
		end := i + size
		if end > len(langs) {
			end = len(langs)
		}
		chunks = append(chunks, langs[i:end])
	}
	return chunks
}
