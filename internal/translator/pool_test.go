package translator

import (
	"context"
	"fmt"
	"testing"
	"time"
)

// scriptedProvider returns each response in responses in order, one per
// call; once exhausted it repeats the last entry.
type scriptedProvider struct {
	name      string
	responses []string
	errs      []bool
	calls     int
}

func (p *scriptedProvider) Name() string { return p.name }

func (p *scriptedProvider) Chat(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	i := p.calls
	if i >= len(p.responses) {
		i = len(p.responses) - 1
	}
	p.calls++
	if i < len(p.errs) && p.errs[i] {
		return "", fmt.Errorf("scripted failure")
	}
	return p.responses[i], nil
}

func TestPool_SucceedsOnThirdAttempt(t *testing.T) {
	p := &scriptedProvider{
		name:      "mock",
		responses: []string{"not json", "still not json", `{"translate":{"en":"ok","ru":"хорошо"}}`},
	}
	pool := NewPool([]Provider{p}, 3, time.Millisecond, nil)

	doc, err := pool.Translate(context.Background(), "مرحبا", "ar", []string{"en", "ru"})
	if err != nil {
		t.Fatalf("Translate() error = %v, want nil", err)
	}
	if p.calls != 3 {
		t.Fatalf("provider called %d times, want 3", p.calls)
	}
	if doc == "" {
		t.Fatalf("expected a non-empty translate document")
	}
}

func TestPool_DropsUnitAfterExhaustingRetries(t *testing.T) {
	p := &scriptedProvider{
		name:      "always-fails",
		responses: []string{"nope", "nope", "nope"},
	}
	pool := NewPool([]Provider{p}, 3, time.Millisecond, nil)

	_, err := pool.Translate(context.Background(), "hello", "en", []string{"ru"})
	if err == nil {
		t.Fatalf("Translate() error = nil, want a drop error")
	}
}

func TestPool_NoProvidersRejectsAllSubmissions(t *testing.T) {
	pool := NewPool(nil, 3, time.Millisecond, nil)
	if _, err := pool.Translate(context.Background(), "hello", "en", []string{"ru"}); err == nil {
		t.Fatalf("Translate() with no providers = nil error, want rejection")
	}
}

func TestPool_RoundRobinsAcrossProviders(t *testing.T) {
	a := &scriptedProvider{name: "a", responses: []string{`{"translate":{"ru":"a1"}}`}}
	b := &scriptedProvider{name: "b", responses: []string{`{"translate":{"ru":"b1"}}`}}
	pool := NewPool([]Provider{a, b}, 3, time.Millisecond, nil)

	if _, err := pool.Translate(context.Background(), "one", "en", []string{"ru"}); err != nil {
		t.Fatalf("first Translate() error = %v", err)
	}
	if _, err := pool.Translate(context.Background(), "two", "en", []string{"ru"}); err != nil {
		t.Fatalf("second Translate() error = %v", err)
	}

	if a.calls != 1 || b.calls != 1 {
		t.Fatalf("expected round-robin split of 1/1 calls, got a=%d b=%d", a.calls, b.calls)
	}
}

func TestPool_JSONStringWrapperIsUnwrapped(t *testing.T) {
	wrapped := `"{\"translate\":{\"ru\":\"ok\"}}"`
	p := &scriptedProvider{name: "mock", responses: []string{wrapped}}
	pool := NewPool([]Provider{p}, 3, time.Millisecond, nil)

	if _, err := pool.Translate(context.Background(), "hi", "en", []string{"ru"}); err != nil {
		t.Fatalf("Translate() error = %v, want nil", err)
	}
}
