package sales

import "fmt"

type Technique string

const (
	TechniqueAssumptive  Technique = "assumptive"
	TechniqueAlternative Technique = "alternative"
	TechniqueUrgency     Technique = "urgency"
	TechniqueTrial       Technique = "trial"
	TechniqueDirect      Technique = "direct"
	TechniqueSummary     Technique = "summary"
	TechniqueTakeaway    Technique = "takeaway"
	TechniquePuppyDog    Technique = "puppy-dog"
)

type ClosingAction struct {
	Type   string `json:"type"`
	Target string `json:"target,omitempty"`
}

type ClosingPlan struct {
	Technique Technique       `json:"technique"`
	Statement string          `json:"statement"`
	Actions   []ClosingAction `json:"actions"`
	FollowUp  string          `json:"followUp"`
}

// SelectTechnique implements spec.md §4.10's closing-technique decision
// table.
func SelectTechnique(bant BANT, profile UserProfile) Technique {
	switch {
	case bant.Total >= 0.8 && len(profile.Objections) == 0:
		return TechniqueDirect
	case profile.Type == TypeBuyer && profile.Urgency == "high":
		return TechniqueUrgency
	case profile.Type == TypeSkeptic:
		return TechniquePuppyDog
	case len(profile.Objections) > 2:
		return TechniqueSummary
	default:
		return TechniqueAssumptive
	}
}

var closingTemplates = map[Technique]string{
	TechniqueAssumptive:  "Let's get you set up on the %s plan — I'll take you there now.",
	TechniqueAlternative: "Would you rather start with %s, or see how the other tiers compare first?",
	TechniqueUrgency:     "I can get you moving on the %s plan today — no reason to wait.",
	TechniqueTrial:       "Why not start a trial on the %s plan and see how it fits?",
	TechniqueDirect:      "Based on everything you've told me, the %s plan is the right fit — ready to sign up?",
	TechniqueSummary:     "To recap everything we've covered, the %s plan addresses what you raised — shall we move forward?",
	TechniqueTakeaway:    "If the %s plan isn't quite right, that's okay — but here's what you'd be leaving on the table.",
	TechniquePuppyDog:    "Try the %s plan risk-free — you can walk away any time if it's not for you.",
}

// RecommendPlan implements spec.md §4.10's per-technique plan selection:
// enterprise when the profile reads enterprise, the first (cheapest) plan
// for startup/low-budget, else the popular or middle plan.
func RecommendPlan(profile UserProfile, planNames []string, popularIndex int) string {
	if len(planNames) == 0 {
		return ""
	}
	if profile.CompanySize == SizeEnterprise {
		return planNames[len(planNames)-1]
	}
	if profile.CompanySize == SizeStartup || profile.Budget == "low" {
		return planNames[0]
	}
	if popularIndex >= 0 && popularIndex < len(planNames) {
		return planNames[popularIndex]
	}
	return planNames[len(planNames)/2]
}

// BuildClosingPlan assembles the {technique, statement, actions, followUp}
// tuple spec.md §4.10 returns; actions always include navigate->pricing,
// pulse->signup button, and optionally focus->recommended plan.
func BuildClosingPlan(bant BANT, profile UserProfile, recommendedPlan string) ClosingPlan {
	technique := SelectTechnique(bant, profile)
	statement := fmt.Sprintf(closingTemplates[technique], orFallback(recommendedPlan, "right"))

	actions := []ClosingAction{
		{Type: "navigate", Target: "pricing"},
		{Type: "pulse_cta", Target: "signup"},
	}
	if recommendedPlan != "" {
		actions = append(actions, ClosingAction{Type: "focus", Target: recommendedPlan})
	}

	return ClosingPlan{
		Technique: technique,
		Statement: statement,
		Actions:   actions,
		FollowUp:  "Want me to walk you through setup once you're in?",
	}
}

func orFallback(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
