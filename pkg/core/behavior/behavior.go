// Package behavior implements the Behavior Tracker (C7). The browser
// snippet observes scroll/mouse/CTA/visibility/exit-intent and reports
// discrete events to the gateway (via WS or the batched
// /v1/behavior-events endpoint); Tracker folds them into the Behavior
// snapshot from spec.md §3 and fires the same 1Hz timeOnPage tick and
// listener notifications the original client-side tracker did.
package behavior

import (
	"strings"
	"sync"
	"time"
)

// EventKind enumerates the behavior signals the snippet can report,
// mirroring spec.md §4.7's init() responsibilities.
type EventKind string

const (
	EventScroll       EventKind = "scroll"
	EventMouseMove    EventKind = "mouse_move"
	EventCTAHover     EventKind = "cta_hover"
	EventCTAClick     EventKind = "cta_click"
	EventExitIntent   EventKind = "exit_intent"
	EventSectionView  EventKind = "section_view"
	EventPlanCompare  EventKind = "plan_compare"
	EventMessageSent  EventKind = "message_sent"
	// EventDOMMutation signals the snippet's mutation observer saw a
	// significant DOM change (e.g. pricing re-rendered by client-side
	// routing); it carries no snapshot semantics of its own and is
	// handled upstream of Record by invalidating the page-context cache.
	EventDOMMutation EventKind = "dom_mutation"
)

// Snapshot mirrors spec.md §3's Behavior type exactly.
type Snapshot struct {
	TimeOnPage         time.Duration
	ScrollDepth         float64
	MaxScrollDepth      float64
	PricingViewed       bool
	FeaturesViewed      bool
	CTAHovered          int
	CTAClicked          int
	MouseMovements      int
	ExitIntentDetected  bool
	PlanComparisons     int
	MessagesSent        int
	LastActivityTime    time.Time
	SessionStartTime    time.Time
}

// Listener receives (event, data, snapshot) on every recorded event,
// matching spec.md §4.7's exposed {addListener, removeListener}.
type Listener func(event EventKind, data map[string]any, snap Snapshot)

// Tracker is a single process-wide instance per session; Init is
// idempotent, matching spec.md §4.7 and the §8 round-trip property
// "BehaviorTracker.init() called twice is equivalent to once."
type Tracker struct {
	mu        sync.Mutex
	started   bool
	snap      Snapshot
	listeners map[int]Listener
	nextID    int
	stopTick  chan struct{}
}

func New() *Tracker {
	return &Tracker{listeners: make(map[int]Listener)}
}

// Init starts the 1Hz timeOnPage timer. Calling it again is a no-op.
func (t *Tracker) Init() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return
	}
	t.started = true
	t.snap.SessionStartTime = time.Now()
	t.snap.LastActivityTime = t.snap.SessionStartTime
	t.stopTick = make(chan struct{})
	stop := t.stopTick
	go t.tick(stop)
}

func (t *Tracker) tick(stop chan struct{}) {
	ticker := time.NewTicker(1 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			t.mu.Lock()
			t.snap.TimeOnPage = time.Since(t.snap.SessionStartTime)
			snap := t.snap
			t.mu.Unlock()
			t.notify("", nil, snap)
		case <-stop:
			return
		}
	}
}

// Teardown stops the ticker and releases listeners, matching spec.md §9's
// "express singletons with explicit init/reset/teardown."
func (t *Tracker) Teardown() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return
	}
	close(t.stopTick)
	t.started = false
	t.listeners = make(map[int]Listener)
}

func (t *Tracker) AddListener(l Listener) (remove func()) {
	t.mu.Lock()
	id := t.nextID
	t.nextID++
	t.listeners[id] = l
	t.mu.Unlock()
	return func() {
		t.mu.Lock()
		delete(t.listeners, id)
		t.mu.Unlock()
	}
}

func (t *Tracker) notify(event EventKind, data map[string]any, snap Snapshot) {
	t.mu.Lock()
	ls := make([]Listener, 0, len(t.listeners))
	for _, l := range t.listeners {
		ls = append(ls, l)
	}
	t.mu.Unlock()
	for _, l := range ls {
		l(event, data, snap)
	}
}

// Record folds one client-reported event into the snapshot and notifies
// listeners, matching the individual behaviors spec.md §4.7 names for the
// client-side observers (debounced scroll max-depth, mouse-move counting,
// CTA hover/click classification, exit-intent detection, section-visibility
// polling).
func (t *Tracker) Record(event EventKind, data map[string]any) Snapshot {
	t.mu.Lock()
	t.snap.LastActivityTime = time.Now()
	switch event {
	case EventScroll:
		if depth, ok := floatField(data, "depth"); ok {
			t.snap.ScrollDepth = depth
			if depth > t.snap.MaxScrollDepth {
				t.snap.MaxScrollDepth = depth
			}
		}
	case EventMouseMove:
		t.snap.MouseMovements++
	case EventCTAHover:
		t.snap.CTAHovered++
		if ctaLooksLikePricing(data) {
			t.snap.PricingViewed = true
		}
	case EventCTAClick:
		t.snap.CTAClicked++
	case EventExitIntent:
		t.snap.ExitIntentDetected = true
	case EventSectionView:
		switch sectionID(data) {
		case "pricing":
			t.snap.PricingViewed = true
		case "features":
			t.snap.FeaturesViewed = true
		}
	case EventPlanCompare:
		t.snap.PlanComparisons++
	case EventMessageSent:
		t.snap.MessagesSent++
	}
	snap := t.snap
	t.mu.Unlock()
	t.notify(event, data, snap)
	return snap
}

func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

func floatField(data map[string]any, key string) (float64, bool) {
	v, ok := data[key]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

func sectionID(data map[string]any) string {
	v, _ := data["section"].(string)
	return strings.ToLower(v)
}

func ctaLooksLikePricing(data map[string]any) bool {
	v, _ := data["section"].(string)
	return strings.Contains(strings.ToLower(v), "pricing")
}
