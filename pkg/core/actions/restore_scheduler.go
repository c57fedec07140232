package actions

import (
	"log/slog"
	"sync"
	"time"
)

// RestoreScheduler enforces the 10s max-effect-duration and
// restore-exactly-once invariants server-side even though the actual DOM
// write happens in the browser: for every directive with a duration, it
// arms a timer; the snippet must echo a {type:"restored"} ack within the
// bound or the pending record is dropped and logged, per SPEC_FULL.md's
// "Reframing of Action Executor" note.
type RestoreScheduler struct {
	mu      sync.Mutex
	pending map[string]*time.Timer
	log     *slog.Logger
}

func NewRestoreScheduler(log *slog.Logger) *RestoreScheduler {
	if log == nil {
		log = slog.Default()
	}
	return &RestoreScheduler{pending: make(map[string]*time.Timer), log: log}
}

// Arm starts tracking directiveID; if no Ack arrives within bound, onDrop
// is invoked and the record removed. bound is clamped to
// MaxEffectDurationMS.
func (s *RestoreScheduler) Arm(directiveID string, boundMS int, onDrop func()) {
	if s == nil || directiveID == "" {
		return
	}
	if boundMS <= 0 || boundMS > MaxEffectDurationMS {
		boundMS = MaxEffectDurationMS
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if old, ok := s.pending[directiveID]; ok {
		old.Stop()
	}
	s.pending[directiveID] = time.AfterFunc(time.Duration(boundMS)*time.Millisecond, func() {
		s.mu.Lock()
		_, stillPending := s.pending[directiveID]
		delete(s.pending, directiveID)
		s.mu.Unlock()
		if stillPending {
			s.log.Warn("action directive dropped: no restore ack within bound", "directive_id", directiveID)
			if onDrop != nil {
				onDrop()
			}
		}
	})
}

// Ack marks directiveID as restored; restore-exactly-once is guaranteed by
// delete being idempotent and Stop() being safe to call on an
// already-fired timer.
func (s *RestoreScheduler) Ack(directiveID string) (found bool) {
	if s == nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.pending[directiveID]
	if !ok {
		return false
	}
	t.Stop()
	delete(s.pending, directiveID)
	return true
}

// CancelAll stops every pending timer without logging drops, used on
// session teardown.
func (s *RestoreScheduler) CancelAll() {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, t := range s.pending {
		t.Stop()
		delete(s.pending, id)
	}
}

func (s *RestoreScheduler) PendingCount() int {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}
