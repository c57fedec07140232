package sales

import (
	"strings"

	"github.com/vango-go/salesagent-gateway/pkg/core/behavior"
)

type ProfileType string

const (
	TypeBuyer      ProfileType = "buyer"
	TypeResearcher ProfileType = "researcher"
	TypeSkeptic    ProfileType = "skeptic"
	TypeExplorer   ProfileType = "explorer"
	TypeUnknown    ProfileType = "unknown"
)

type CompanySize string

const (
	SizeStartup    CompanySize = "startup"
	SizeSMB        CompanySize = "smb"
	SizeEnterprise CompanySize = "enterprise"
	SizeUnknown    CompanySize = "unknown"
)

type UserProfile struct {
	Type         ProfileType         `json:"type"`
	CompanySize  CompanySize         `json:"companySize"`
	Industry     string              `json:"industry"`
	Urgency      string              `json:"urgency"`
	Budget       string              `json:"budget"`
	PainPoints   []string            `json:"painPoints"`
	Interests    []string            `json:"interests"`
	Objections   []string            `json:"objections"`
	Behavior     behavior.Snapshot   `json:"behavior"`
	Confidence   float64             `json:"confidence"`
}

var typeKeywords = map[ProfileType][]string{
	TypeBuyer:      {"ready to buy", "purchase", "sign up", "let's do it", "how do i pay"},
	TypeResearcher: {"comparing", "evaluating", "researching", "just looking", "what's the difference"},
	TypeSkeptic:    {"not sure", "skeptical", "prove it", "too good to be true", "scam"},
	TypeExplorer:   {"curious", "exploring", "what does this do", "tell me more"},
}

var companySizeKeywords = map[CompanySize][]string{
	SizeStartup:    {"startup", "small team", "just me", "founder", "2 people", "5 people"},
	SizeSMB:        {"small business", "mid-size", "20 people", "50 people", "growing company"},
	SizeEnterprise: {"enterprise", "large company", "thousands of employees", "corporation", "global team"},
}

var industryKeywords = map[string][]string{
	"saas":       {"saas", "software company"},
	"ecommerce":  {"ecommerce", "e-commerce", "online store", "retail"},
	"healthcare": {"healthcare", "hospital", "clinic"},
	"finance":    {"finance", "bank", "fintech"},
	"education":  {"education", "school", "university"},
}

var urgencyKeywords = map[string][]string{
	"high":   {"asap", "urgent", "right away", "this week", "immediately"},
	"medium": {"this month", "soon", "this quarter"},
	"low":    {"eventually", "no rush", "just browsing", "down the road"},
}

var budgetKeywordsByLevel = map[string][]string{
	"high":   {"enterprise budget", "whatever it costs", "budget isn't an issue"},
	"medium": {"reasonable budget", "within budget"},
	"low":    {"tight budget", "free plan", "can't afford", "too expensive"},
}

var painPointKeywords = []string{"problem", "struggling", "frustrated", "pain", "issue", "broken", "slow", "manual"}
var interestKeywords = []string{"interested in", "love", "like", "excited about", "curious about"}
var objectionKeywordsList = []string{"but", "however", "expensive", "not sure", "concern", "worried", "doubt"}

// BuildProfile implements spec.md §4.10's UserProfile builder: four
// keyword tables drive type/companySize/industry/urgency/budget; raw
// sentences containing any relevant keyword are extracted (deduped) for
// painPoints/interests/objections; confidence is a weighted sum of
// "is-known" flags.
func BuildProfile(messages []string, snap behavior.Snapshot) UserProfile {
	joined := strings.ToLower(strings.Join(messages, " "))

	p := UserProfile{
		Type:        highestScoringType(joined),
		CompanySize: highestScoringSize(joined),
		Industry:    highestScoringKeyed(joined, industryKeywords),
		Urgency:     highestScoringKeyed(joined, urgencyKeywords),
		Budget:      highestScoringKeyed(joined, budgetKeywordsByLevel),
		Behavior:    snap,
	}
	p.PainPoints = extractSentences(messages, painPointKeywords)
	p.Interests = extractSentences(messages, interestKeywords)
	p.Objections = extractSentences(messages, objectionKeywordsList)

	known := 0.0
	total := 5.0
	if p.Type != TypeUnknown {
		known++
	}
	if p.CompanySize != SizeUnknown {
		known++
	}
	if p.Industry != "" {
		known++
	}
	if p.Urgency != "" {
		known++
	}
	if p.Budget != "" {
		known++
	}
	p.Confidence = known / total
	return p
}

func highestScoringType(joined string) ProfileType {
	best := TypeExplorer
	bestScore := -1
	for t, kws := range typeKeywords {
		score := countMatches(joined, kws)
		if score > bestScore {
			bestScore = score
			best = t
		}
	}
	if bestScore <= 0 {
		return TypeExplorer
	}
	return best
}

func highestScoringSize(joined string) CompanySize {
	best := SizeUnknown
	bestScore := 0
	for size, kws := range companySizeKeywords {
		score := countMatches(joined, kws)
		if score > bestScore {
			bestScore = score
			best = size
		}
	}
	return best
}

func highestScoringKeyed(joined string, table map[string][]string) string {
	best := ""
	bestScore := 0
	for key, kws := range table {
		score := countMatches(joined, kws)
		if score > bestScore {
			bestScore = score
			best = key
		}
	}
	return best
}

func countMatches(joined string, kws []string) int {
	n := 0
	for _, kw := range kws {
		if strings.Contains(joined, kw) {
			n++
		}
	}
	return n
}

func extractSentences(messages []string, keywords []string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, msg := range messages {
		low := strings.ToLower(msg)
		for _, kw := range keywords {
			if strings.Contains(low, kw) {
				key := strings.TrimSpace(low)
				if _, dup := seen[key]; dup {
					break
				}
				seen[key] = struct{}{}
				out = append(out, strings.TrimSpace(msg))
				break
			}
		}
	}
	return out
}
