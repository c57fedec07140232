// Package intent implements the Intent Parser (C3): normalize a user
// utterance into {intent, target, entities, confidence} using whole-word
// keyword tables, per spec.md §4.3.
package intent

import (
	"strings"

	"github.com/vango-go/salesagent-gateway/pkg/core/pagecontext"
)

type Kind string

const (
	Navigate  Kind = "navigate"
	Compare   Kind = "compare"
	Highlight Kind = "highlight"
	Read      Kind = "read"
	Click     Kind = "click"
	Unknown   Kind = "unknown"
)

type Target string

const (
	TargetPricing  Target = "pricing"
	TargetFeatures Target = "features"
	TargetSignup   Target = "signup"
	TargetContact  Target = "contact"
	TargetAbout    Target = "about"
	TargetFAQ      Target = "faq"
	TargetProduct  Target = "product"
	TargetCTA      Target = "cta"
	TargetUnknown  Target = "unknown"
)

type Intent struct {
	Intent     Kind     `json:"intent"`
	Target     Target   `json:"target"`
	Entities   []string `json:"entities"`
	Confidence float64  `json:"confidence"`
}

// IsNavigationRequest holds iff confidence >= 0.5 and intent != unknown,
// per spec.md §4.3 and the §8 invariant that isNavigationRequest implies a
// known intent.
func (i Intent) IsNavigationRequest() bool {
	return i.Confidence >= 0.5 && i.Intent != Unknown
}

// fallbackPlanNames covers common plan naming even when the Page Context
// doesn't carry a matching pricing card (e.g. the user names a plan the
// extractor missed).
var fallbackPlanNames = []string{"starter", "basic", "pro", "professional", "business", "enterprise", "premium", "free"}

// Parse implements spec.md §4.3's scoring algorithm.
func Parse(utterance string, ctx *pagecontext.PageContext) Intent {
	tokens := tokenize(utterance)
	lower := strings.ToLower(utterance)

	intentKind, intentKnown := scoreIntent(lower)
	target, targetKnown := scoreTarget(lower)
	entities := extractEntities(tokens, ctx)

	if !intentKnown && targetKnown {
		intentKind = Navigate
		intentKnown = true
	}
	if !intentKnown {
		intentKind = Unknown
	}
	if !targetKnown {
		target = TargetUnknown
	}

	confidence := 0.0
	if intentKnown {
		confidence += 0.4
	}
	if targetKnown {
		confidence += 0.3
	}
	if len(entities) > 0 {
		confidence += 0.3
	}
	if confidence > 1 {
		confidence = 1
	}

	return Intent{Intent: intentKind, Target: target, Entities: entities, Confidence: confidence}
}

func tokenize(s string) []string {
	return strings.Fields(strings.ToLower(s))
}

func scoreIntent(lower string) (Kind, bool) {
	best := Unknown
	bestScore := 0
	for kind, phrases := range intentVerbs {
		score := 0
		for _, phrase := range phrases {
			if wordBoundaryMatch(lower, phrase) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			best = kind
		}
	}
	return best, bestScore > 0
}

func scoreTarget(lower string) (Target, bool) {
	best := TargetUnknown
	bestScore := 0
	for target, nouns := range targetNouns {
		score := 0
		for _, noun := range nouns {
			// Target nouns match by substring, matching the source's
			// looser target-classifier behavior (spec.md §9 notes this
			// word-boundary/substring inconsistency is to be kept, not
			// "fixed", since both shapes are explicitly present upstream
			// and the word-boundary rule governs intent verbs only).
			if strings.Contains(lower, noun) {
				score++
			}
		}
		if score > bestScore {
			bestScore = score
			best = target
		}
	}
	return best, bestScore > 0
}

// wordBoundaryMatch treats multi-word phrases as substring matches (they
// already carry their own boundaries) and single words as whole-word
// matches, per spec.md §4.3's "word boundaries; multi-word phrases match by
// substring" rule.
func wordBoundaryMatch(lower, phrase string) bool {
	if strings.Contains(phrase, " ") {
		return strings.Contains(lower, phrase)
	}
	for _, tok := range strings.Fields(lower) {
		if tok == phrase {
			return true
		}
	}
	return false
}

func extractEntities(tokens []string, ctx *pagecontext.PageContext) []string {
	var out []string
	seen := map[string]struct{}{}
	add := func(name string) {
		key := strings.ToLower(name)
		if key == "" {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, name)
	}

	var names []string
	if ctx != nil {
		for _, p := range ctx.Content.Pricing {
			names = append(names, p.Plan)
		}
		for _, f := range ctx.Content.Features {
			names = append(names, f.Name)
		}
		for _, p := range ctx.Content.Products {
			names = append(names, p.Name)
		}
		for _, c := range ctx.Content.CTAs {
			names = append(names, c.Text)
		}
	}

	for _, tok := range tokens {
		for _, name := range names {
			low := strings.ToLower(name)
			if tok == low {
				add(name)
				continue
			}
			if len(tok) > 2 {
				for _, nameTok := range strings.Fields(low) {
					if tok == nameTok {
						add(name)
					}
				}
			}
		}
		for _, plan := range fallbackPlanNames {
			if tok == plan {
				add(strings.Title(plan))
			}
		}
	}
	return out
}
