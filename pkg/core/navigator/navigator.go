// Package navigator implements the Navigation Agent (C6): plan an ordered
// action sequence from an intent, execute it, and generate a user-facing
// response, per spec.md §4.6.
package navigator

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/vango-go/salesagent-gateway/pkg/core/actions"
	"github.com/vango-go/salesagent-gateway/pkg/core/intent"
	"github.com/vango-go/salesagent-gateway/pkg/core/pagecontext"
)

// InterActionDelay is spec.md §4.6's 400ms inter-action delay applied when
// a plan has more than one step.
const InterActionDelay = 400 * time.Millisecond

// PlanStep is one entry of an ActionPlan (spec.md §3): {type, target?,
// entities?}, executed strictly left-to-right.
type PlanStep struct {
	Type     actions.Kind
	Target   string
	Entities []string
}

// Outcome is what Navigate returns: the human-facing response plus every
// directive collected along the way, in execution order.
type Outcome struct {
	Success    bool
	Response   string
	Suggestion string
	Directives []actions.ActionDirective
}

// Agent owns a mutable Page Context handle and a navigation history log,
// matching spec.md §4.6's "owns a mutable pageContext handle (updated via
// updateContext) and a history log."
type Agent struct {
	mu      sync.Mutex
	ctx     *pagecontext.PageContext
	doc     *goquery.Document
	idGen   func() string
	history []string
	seq     int
}

func NewAgent(ctx *pagecontext.PageContext, doc *goquery.Document) *Agent {
	a := &Agent{ctx: ctx, doc: doc}
	a.idGen = func() string {
		a.seq++
		return fmt.Sprintf("d%d", a.seq)
	}
	return a
}

// UpdateContext replaces the agent's Page Context and backing document
// wholesale, matching C1's "whole snapshot discarded on significant
// mutation" invariant.
func (a *Agent) UpdateContext(ctx *pagecontext.PageContext, doc *goquery.Document) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ctx, a.doc = ctx, doc
}

func (a *Agent) History() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, len(a.history))
	copy(out, a.history)
	return out
}

// Navigate implements spec.md §4.6's navigate(input): parse intent, plan,
// execute in order, build a response.
func (a *Agent) Navigate(input string) Outcome {
	a.mu.Lock()
	ctx, doc := a.ctx, a.doc
	a.history = append(a.history, input)
	a.mu.Unlock()

	parsed := intent.Parse(input, ctx)
	if parsed.Confidence < 0.5 {
		return Outcome{
			Success:    false,
			Suggestion: fmt.Sprintf("I can show you: %s.", strings.Join(knownCategories(ctx), ", ")),
		}
	}

	plan := planActions(parsed)
	var directives []actions.ActionDirective
	anySucceeded := false
	var readSummary string

	for i, step := range plan {
		if i > 0 && len(plan) > 1 {
			time.Sleep(InterActionDelay)
		}
		res := executeStep(step, ctx, doc, a.idGen)
		if res.Success {
			anySucceeded = true
			directives = append(directives, res.Directives...)
			if step.Type == actions.Kind("read") && res.Text != "" {
				readSummary = summarize(res.Text, 200)
			}
		}
		// Exceptions are swallowed per-action (spec.md §4.6 step 3); we
		// never short-circuit the remaining plan.
	}

	if !anySucceeded {
		return Outcome{
			Success:    false,
			Suggestion: fmt.Sprintf("I can show you: %s.", strings.Join(knownCategories(ctx), ", ")),
		}
	}

	return Outcome{
		Success:    true,
		Response:   responseFor(parsed, readSummary),
		Directives: directives,
	}
}

// planActions implements spec.md §4.6 step 2's per-intent planning table.
func planActions(in intent.Intent) []PlanStep {
	switch in.Intent {
	case intent.Navigate:
		return []PlanStep{{Type: actions.KindScroll, Target: string(in.Target), Entities: in.Entities}}
	case intent.Compare:
		if len(in.Entities) >= 2 {
			// Comparing named entities always means pricing, whether or not
			// the utterance itself contained a pricing keyword ("compare
			// Starter and Pro" never says "pricing" but still means it).
			target := in.Target
			if target == intent.TargetUnknown {
				target = intent.TargetPricing
			}
			plan := []PlanStep{{Type: actions.KindScroll, Target: string(target)}}
			plan = append(plan, PlanStep{Type: actions.KindCompare, Entities: in.Entities})
			return plan
		}
		return []PlanStep{{Type: actions.KindScroll, Target: string(in.Target), Entities: in.Entities}}
	case intent.Highlight:
		var plan []PlanStep
		if in.Target != intent.TargetUnknown {
			plan = append(plan, PlanStep{Type: actions.KindScroll, Target: string(in.Target)})
		}
		target := string(in.Target)
		if len(in.Entities) > 0 {
			target = in.Entities[0]
		}
		plan = append(plan, PlanStep{Type: actions.KindFocus, Target: target})
		return plan
	case intent.Read:
		var plan []PlanStep
		if in.Target != intent.TargetUnknown {
			plan = append(plan, PlanStep{Type: actions.KindScroll, Target: string(in.Target)})
		}
		plan = append(plan, PlanStep{Type: "read", Target: string(in.Target), Entities: in.Entities})
		return plan
	case intent.Click:
		return []PlanStep{{Type: actions.KindClick, Target: string(in.Target), Entities: in.Entities}}
	default:
		if in.Target != intent.TargetUnknown {
			return []PlanStep{{Type: actions.KindScroll, Target: string(in.Target)}}
		}
		return nil
	}
}

func executeStep(step PlanStep, ctx *pagecontext.PageContext, doc *goquery.Document, idGen func() string) actions.Result {
	description := step.Target
	if len(step.Entities) > 0 {
		description = step.Entities[0]
	}
	switch step.Type {
	case actions.KindScroll:
		if ref, ok := sectionRefFor(step.Target, ctx); ok {
			return actions.ScrollToSection(ctx, ref, idGen)
		}
		return actions.NavigateToElement(description, ctx, doc, idGen)
	case actions.KindCompare:
		return actions.CompareElements(step.Entities, ctx, doc, 0, idGen)
	case actions.KindFocus:
		return actions.FocusElement(description, ctx, doc, 0, idGen)
	case actions.KindClick:
		return actions.ClickElement(description, ctx, doc, idGen)
	case "read":
		return actions.ReadElementContent(description, ctx, doc)
	default:
		return actions.Result{Success: false, Error: "unknown action"}
	}
}

func sectionRefFor(target string, ctx *pagecontext.PageContext) (string, bool) {
	for _, s := range ctx.Sections {
		if s.ID == target {
			return s.ID, true
		}
	}
	return "", false
}

func knownCategories(ctx *pagecontext.PageContext) []string {
	var cats []string
	if ctx == nil {
		return []string{"pricing", "features", "signup options"}
	}
	if len(ctx.Content.Pricing) > 0 {
		cats = append(cats, "pricing")
	}
	if len(ctx.Content.Features) > 0 {
		cats = append(cats, "features")
	}
	if len(ctx.Content.CTAs) > 0 {
		cats = append(cats, "signup options")
	}
	if len(ctx.Content.FAQs) > 0 {
		cats = append(cats, "FAQ")
	}
	if len(cats) == 0 {
		cats = []string{"pricing", "features", "signup options"}
	}
	return cats
}

func responseFor(in intent.Intent, readSummary string) string {
	switch in.Intent {
	case intent.Navigate:
		return responseTemplates[in.Target]
	case intent.Compare:
		return fmt.Sprintf("Comparing %s.", strings.Join(in.Entities, " and "))
	case intent.Highlight:
		return "Here it is, highlighted for you."
	case intent.Read:
		if readSummary != "" {
			return readSummary
		}
		return "Here's what that section says."
	case intent.Click:
		return "Done — I clicked that for you."
	default:
		return responseTemplates[in.Target]
	}
}

var responseTemplates = map[intent.Target]string{
	intent.TargetPricing:  "Here's our pricing information.",
	intent.TargetFeatures: "Here are our features.",
	intent.TargetSignup:   "Here's how to get started.",
	intent.TargetContact:  "Here's how to reach us.",
	intent.TargetAbout:    "Here's more about us.",
	intent.TargetFAQ:      "Here are some frequently asked questions.",
	intent.TargetProduct:  "Here's that product.",
	intent.TargetCTA:      "Here you go.",
	intent.TargetUnknown:  "Here's what I found.",
}

func summarize(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	if len(text) <= max {
		return text
	}
	return text[:max]
}
