package sales

import "github.com/vango-go/salesagent-gateway/pkg/core/flow"

// SPINCategory is one of the four fixed question banks spec.md §4.10 names.
type SPINCategory string

const (
	Situation   SPINCategory = "situation"
	Problem     SPINCategory = "problem"
	Implication SPINCategory = "implication"
	NeedPayoff  SPINCategory = "need_payoff"
)

var spinBank = map[SPINCategory][]string{
	Situation: {
		"What does your current process look like?",
		"How is your team currently handling this?",
	},
	Problem: {
		"What's the biggest friction point in that process?",
		"Where does it break down most often?",
	},
	Implication: {
		"What does that cost you in time or revenue?",
		"How does that affect the rest of your team?",
	},
	NeedPayoff: {
		"If that friction went away, what would that be worth to you?",
		"How would solving this change your team's output?",
	},
}

// categoryForStage implements spec.md §4.10's "picker by current stage":
// earlier stages ask situation/problem questions, later stages ask
// implication/need-payoff questions, tracking SPIN's own progression.
func categoryForStage(stage flow.Stage) SPINCategory {
	switch stage {
	case flow.StageGreeting, flow.StageDiscovery:
		return Situation
	case flow.StageQualification:
		return Problem
	case flow.StagePresentation:
		return Implication
	default:
		return NeedPayoff
	}
}

// PickSPINQuestion returns a question from the bank selected for the
// current stage.
func PickSPINQuestion(stage flow.Stage) string {
	bank := spinBank[categoryForStage(stage)]
	if len(bank) == 0 {
		return ""
	}
	return bank[0]
}
