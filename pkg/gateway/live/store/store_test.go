package store

import (
	"sync"
	"testing"
)

func TestSetState_ShallowMerge(t *testing.T) {
	s := New(State{IsOpen: false, IsVoiceMode: false, Status: "idle"})

	got := s.SetState(Patch{IsOpen: boolPtr(true)})
	if !got.IsOpen {
		t.Fatalf("expected IsOpen=true")
	}
	if got.IsVoiceMode {
		t.Fatalf("expected IsVoiceMode to remain false, untouched by the patch")
	}

	got = s.SetState(Patch{IsVoiceMode: boolPtr(true)})
	if !got.IsOpen {
		t.Fatalf("expected IsOpen to remain true from the prior patch")
	}
	if !got.IsVoiceMode {
		t.Fatalf("expected IsVoiceMode=true")
	}
}

func TestSubscribe_NotifiedOnEveryChange(t *testing.T) {
	s := New(State{})

	var mu sync.Mutex
	var seen []State
	unsubscribe := s.Subscribe(func(st State) {
		mu.Lock()
		seen = append(seen, st)
		mu.Unlock()
	})

	s.Open()
	s.EnterVoiceMode()
	unsubscribe()
	s.Close()

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 {
		t.Fatalf("expected 2 notifications before unsubscribe, got %d", len(seen))
	}
	if !seen[0].IsOpen {
		t.Fatalf("expected first notification to reflect Open()")
	}
	if !seen[1].IsVoiceMode {
		t.Fatalf("expected second notification to reflect EnterVoiceMode()")
	}
}

func TestOpenCloseVoiceMode_UpdateStatus(t *testing.T) {
	s := New(State{})
	if got := s.Open(); got.Status != "open" {
		t.Fatalf("status=%q", got.Status)
	}
	if got := s.Close(); got.Status != "idle" || got.IsOpen {
		t.Fatalf("close did not reset open/status: %+v", got)
	}
	if got := s.EnterVoiceMode(); !got.IsVoiceMode {
		t.Fatalf("expected voice mode entered")
	}
	if got := s.ExitVoiceMode(); got.IsVoiceMode {
		t.Fatalf("expected voice mode exited")
	}
}

func TestUnsubscribe_IsIdempotent(t *testing.T) {
	s := New(State{})
	unsubscribe := s.Subscribe(func(State) {})
	unsubscribe()
	unsubscribe()
}
