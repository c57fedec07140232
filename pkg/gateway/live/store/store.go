// Package store implements the server-held half of C14 (UI / State Store):
// a tiny pub-sub value object mirroring {isOpen, isVoiceMode, config} with
// shallow-merge SetState and subscriber notification, per spec.md §4.13.
// The shell render itself is the out-of-scope marketing-site snippet; this
// is the synced value object the gateway pushes ServerUIState frames from.
package store

import "sync"

// Config carries the small set of per-embed UI knobs spec.md §6's embed
// contract exposes (silenceThresholdMs, historyMax) alongside the runtime
// open/voice state.
type Config struct {
	SilenceThresholdMS int
	HistoryMax         int
}

// State is the value spec.md §4.13 describes: {isOpen, isVoiceMode, config}.
type State struct {
	IsOpen      bool
	IsVoiceMode bool
	Status      string
	Config      Config
}

// Patch is a partial State for shallow-merge SetState; nil fields are left
// untouched.
type Patch struct {
	IsOpen      *bool
	IsVoiceMode *bool
	Status      *string
	Config      *Config
}

// Subscriber receives the new State after every SetState call, mirroring
// the teacher's Tracker listener-notification idiom
// (pkg/gateway/live/sessions.Tracker.WarnAll/CancelAll broadcasting to
// every registered handle).
type Subscriber func(State)

// Store guards one State behind a mutex and fans changes out to
// subscribers; the zero value is not usable, use New.
type Store struct {
	mu          sync.Mutex
	state       State
	subscribers map[int]Subscriber
	nextID      int
}

func New(initial State) *Store {
	return &Store{
		state:       initial,
		subscribers: make(map[int]Subscriber),
	}
}

// Subscribe registers l for every future SetState and returns a function
// that removes it.
func (s *Store) Subscribe(l Subscriber) (unsubscribe func()) {
	if s == nil || l == nil {
		return func() {}
	}
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subscribers[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.subscribers, id)
		s.mu.Unlock()
	}
}

// SetState shallow-merges p into the current state and notifies every
// subscriber with the resulting value, matching spec.md §4.13's
// shallow-merge setState semantics.
func (s *Store) SetState(p Patch) State {
	s.mu.Lock()
	if p.IsOpen != nil {
		s.state.IsOpen = *p.IsOpen
	}
	if p.IsVoiceMode != nil {
		s.state.IsVoiceMode = *p.IsVoiceMode
	}
	if p.Status != nil {
		s.state.Status = *p.Status
	}
	if p.Config != nil {
		s.state.Config = *p.Config
	}
	next := s.state
	var subs []Subscriber
	for _, sub := range s.subscribers {
		subs = append(subs, sub)
	}
	s.mu.Unlock()

	for _, sub := range subs {
		sub(next)
	}
	return next
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func boolPtr(b bool) *bool     { return &b }
func stringPtr(v string) *string { return &v }

// Open marks the SDK open, suppressing the 150ms close-debounce the
// handler applies on the browser side; the server only needs to record
// intent so a reconnect resumes in the right visual state.
func (s *Store) Open() State {
	return s.SetState(Patch{IsOpen: boolPtr(true), Status: stringPtr("open")})
}

func (s *Store) Close() State {
	return s.SetState(Patch{IsOpen: boolPtr(false), Status: stringPtr("idle")})
}

func (s *Store) EnterVoiceMode() State {
	return s.SetState(Patch{IsVoiceMode: boolPtr(true)})
}

func (s *Store) ExitVoiceMode() State {
	return s.SetState(Patch{IsVoiceMode: boolPtr(false)})
}
