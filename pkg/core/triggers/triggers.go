// Package triggers implements the Engagement Triggers (C8): a
// priority-ordered, cooldown-guarded rule table evaluated on every behavior
// event and every 5s, firing at most one proactive message per cycle, per
// spec.md §4.8.
package triggers

import (
	"sync"
	"time"

	"github.com/vango-go/salesagent-gateway/pkg/core/behavior"
)

type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

var priorityRank = map[Priority]int{
	PriorityCritical: 0,
	PriorityHigh:      1,
	PriorityMedium:    2,
	PriorityLow:        3,
}

// Rule is the in-memory form of EngagementRuleConfig (SPEC_FULL.md's [NEW]
// data-model addition): {id, priority, condition, cooldown_ms, delay_ms,
// message}. Condition is a predicate over the current Behavior snapshot;
// the tracker reference lets a rule inspect history beyond the snapshot
// (e.g. "has this fired before for this kind of session").
type Rule struct {
	ID         string
	Priority   Priority
	Condition  func(snap behavior.Snapshot, tr *behavior.Tracker) bool
	CooldownMS int
	DelayMS    int
	Message    string
}

type ruleState struct {
	fired     bool
	lastFired time.Time
}

// Engine evaluates the rule table in priority order and fires at most one
// trigger per evaluation cycle, per spec.md §4.8.
type Engine struct {
	mu        sync.Mutex
	rules     []Rule
	state     map[string]*ruleState
	listeners []func(Rule)
	evalStop  chan struct{}
}

// NewEngine builds an Engine over rules, sorted by priority so evaluation
// order matches the priority table regardless of input order.
func NewEngine(rules []Rule) *Engine {
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)
	for i := 0; i < len(sorted); i++ {
		for j := i + 1; j < len(sorted); j++ {
			if priorityRank[sorted[j].Priority] < priorityRank[sorted[i].Priority] {
				sorted[i], sorted[j] = sorted[j], sorted[i]
			}
		}
	}
	state := make(map[string]*ruleState, len(sorted))
	for _, r := range sorted {
		state[r.ID] = &ruleState{}
	}
	return &Engine{rules: sorted, state: state}
}

func (e *Engine) OnFire(l func(Rule)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, l)
}

// StartPeriodicEval runs Evaluate every 5s until Stop is called, matching
// spec.md §4.8's "on every behavior event and every 5s" cadence.
func (e *Engine) StartPeriodicEval(tr *behavior.Tracker) {
	e.mu.Lock()
	if e.evalStop != nil {
		e.mu.Unlock()
		return
	}
	stop := make(chan struct{})
	e.evalStop = stop
	e.mu.Unlock()

	go func() {
		ticker := time.NewTicker(5 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				e.Evaluate(tr.Snapshot(), tr)
			case <-stop:
				return
			}
		}
	}()
}

func (e *Engine) Stop() {
	e.mu.Lock()
	stop := e.evalStop
	e.evalStop = nil
	e.mu.Unlock()
	if stop != nil {
		close(stop)
	}
}

// Evaluate iterates rules in priority order; the first unfired-or-past-
// cooldown rule whose condition holds fires (after its delay) and no
// further rule is considered this cycle.
func (e *Engine) Evaluate(snap behavior.Snapshot, tr *behavior.Tracker) {
	e.mu.Lock()
	var fire *Rule
	now := time.Now()
	for i := range e.rules {
		r := &e.rules[i]
		st := e.state[r.ID]
		if st.fired && now.Sub(st.lastFired) < time.Duration(r.CooldownMS)*time.Millisecond {
			continue
		}
		if !r.Condition(snap, tr) {
			continue
		}
		fire = r
		st.fired = true
		st.lastFired = now
		break
	}
	listeners := append([]func(Rule){}, e.listeners...)
	e.mu.Unlock()

	if fire == nil {
		return
	}
	rule := *fire
	go func() {
		if rule.DelayMS > 0 {
			time.Sleep(time.Duration(rule.DelayMS) * time.Millisecond)
		}
		for _, l := range listeners {
			l(rule)
		}
	}()
}
