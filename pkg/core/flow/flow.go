// Package flow implements Conversation Flow (C9): a finite-state machine
// over the conversation stages from spec.md §3, transitioning per the
// cue tables in spec.md §4.9.
package flow

import "strings"

type Stage string

const (
	StageGreeting      Stage = "greeting"
	StageDiscovery     Stage = "discovery"
	StageQualification Stage = "qualification"
	StagePresentation  Stage = "presentation"
	StageObjection     Stage = "objection"
	StageClosing       Stage = "closing"
	StageCompleted     Stage = "completed"
)

var closingCues = []string{"sign up", "get started", "buy", "purchase", "trial", "subscribe", "join"}
var objectionCues = []string{"but", "however", "expensive", "not sure", "concern", "worried", "doubt", "hesitant"}
var qualificationCues = []string{"price", "cost", "how much", "budget", "when", "timeline", "team size"}
var presentationCues = []string{"features", "how does", "show me", "demo", "capabilities", "what can"}
var discoveryCues = []string{"what", "tell me", "explain", "help", "looking for", "need"}

// FSM tracks the current stage and an audit trail of every stage visited.
type FSM struct {
	Stage        Stage
	StageHistory []Stage
	messageCount int
}

func New() *FSM {
	return &FSM{Stage: StageGreeting, StageHistory: []Stage{StageGreeting}}
}

// Advance implements spec.md §4.9's per-utterance transition rule. Never
// auto-advances out of objection or closing, except that a closing cue moves
// an objection to closing.
func (f *FSM) Advance(utterance string) Stage {
	f.messageCount++
	if f.Stage == StageObjection && containsAny(strings.ToLower(utterance), closingCues) {
		f.Stage = StageClosing
		f.StageHistory = append(f.StageHistory, StageClosing)
		return f.Stage
	}
	if f.Stage == StageObjection || f.Stage == StageClosing || f.Stage == StageCompleted {
		return f.Stage
	}

	lower := strings.ToLower(utterance)
	next := f.Stage
	switch {
	case containsAny(lower, closingCues):
		next = StageClosing
	case containsAny(lower, objectionCues):
		next = StageObjection
	case containsAny(lower, qualificationCues):
		next = StageQualification
	case containsAny(lower, presentationCues):
		next = StagePresentation
	case containsAny(lower, discoveryCues):
		next = StageDiscovery
	default:
		next = defaultProgression(f.messageCount)
	}

	if next != f.Stage {
		f.Stage = next
		f.StageHistory = append(f.StageHistory, next)
	}
	return f.Stage
}

func defaultProgression(messageCount int) Stage {
	switch {
	case messageCount <= 0:
		return StageGreeting
	case messageCount == 1:
		return StageDiscovery
	case messageCount == 2:
		return StageQualification
	default:
		return StagePresentation
	}
}

func containsAny(lower string, cues []string) bool {
	for _, c := range cues {
		if strings.Contains(lower, c) {
			return true
		}
	}
	return false
}

// PromptFragment is the stage-specific objectives/tactics/examples block
// spec.md §4.9 says every stage exposes.
type PromptFragment struct {
	Objectives []string
	Tactics    []string
	Examples   []string
}

func (f *FSM) PromptFragment() PromptFragment {
	return stageFragments[f.Stage]
}

var stageFragments = map[Stage]PromptFragment{
	StageGreeting: {
		Objectives: []string{"Welcome the visitor", "Invite them to share what brought them here"},
		Tactics:    []string{"Keep it short", "Ask an open question"},
		Examples:   []string{"Hi! What brings you here today?"},
	},
	StageDiscovery: {
		Objectives: []string{"Understand their goal", "Surface a pain point"},
		Tactics:    []string{"Ask one clarifying question at a time"},
		Examples:   []string{"What are you hoping to solve with a tool like this?"},
	},
	StageQualification: {
		Objectives: []string{"Establish budget/authority/need/timeline"},
		Tactics:    []string{"Tie questions to a concrete plan comparison"},
		Examples:   []string{"What's your team size, roughly?"},
	},
	StagePresentation: {
		Objectives: []string{"Map features to their stated need"},
		Tactics:    []string{"Reference ground-truth features and pricing only"},
		Examples:   []string{"Given what you described, here's how our Pro plan helps."},
	},
	StageObjection: {
		Objectives: []string{"Acknowledge the concern", "Reframe with evidence"},
		Tactics:    []string{"Never dismiss the objection outright"},
		Examples:   []string{"That's a fair concern — here's how other teams your size handled it."},
	},
	StageClosing: {
		Objectives: []string{"Drive toward a concrete next step"},
		Tactics:    []string{"Use the selected closing technique's statement"},
		Examples:   []string{"Ready to get started? I can take you straight to signup."},
	},
	StageCompleted: {
		Objectives: []string{"Confirm next steps", "Offer continued help"},
		Tactics:    []string{"Keep it brief"},
		Examples:   []string{"Great, you're all set — let me know if you need anything else."},
	},
}
