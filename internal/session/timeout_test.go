package session

import (
	"testing"
	"time"
)

type fakeTimeoutable struct {
	fakeSession
	notified bool
}

func (f *fakeTimeoutable) NotifyTimeout() {
	f.notified = true
}

func TestStartTimeoutSweep_RemovesExpiredSessionsAfterNotifying(t *testing.T) {
	registry := NewRegistry[*fakeTimeoutable](10, 10*time.Millisecond)
	s := &fakeTimeoutable{}
	registry.Add("A", s)

	stop := make(chan struct{})
	go StartTimeoutSweep(stop, registry, 10*time.Millisecond)
	defer close(stop)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if registry.Count() == 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	if registry.Count() != 0 {
		t.Fatalf("session was not removed after exceeding max connection time")
	}
	if !s.notified {
		t.Fatalf("NotifyTimeout was not called before removal")
	}
	if !s.closed {
		t.Fatalf("session was not closed on removal")
	}
}

func TestStartTimeoutSweep_LeavesFreshSessionsAlone(t *testing.T) {
	registry := NewRegistry[*fakeTimeoutable](10, time.Hour)
	registry.Add("A", &fakeTimeoutable{})

	stop := make(chan struct{})
	go StartTimeoutSweep(stop, registry, 10*time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	close(stop)

	if registry.Count() != 1 {
		t.Fatalf("Count() = %d, want 1 (session well within max connection time)", registry.Count())
	}
}
