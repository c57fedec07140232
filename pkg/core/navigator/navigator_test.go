package navigator

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/vango-go/salesagent-gateway/pkg/core/actions"
	"github.com/vango-go/salesagent-gateway/pkg/core/intent"
	"github.com/vango-go/salesagent-gateway/pkg/core/pagecontext"
)

const html = `<html><body>
<section id="pricing">
  <h2>Pricing</h2>
  <div id="starter-card"><h4>Starter</h4><p>$49/mo</p></div>
  <div id="pro-card"><h4>Pro</h4><p>$199/mo</p></div>
</section>
</body></html>`

func sampleCtx() (*pagecontext.PageContext, *goquery.Document) {
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(html))
	ctx := &pagecontext.PageContext{
		Sections: []pagecontext.Section{{ID: "pricing", Tag: "section", Heading: "Pricing"}},
		Content: pagecontext.Content{
			Pricing: []pagecontext.PricingCard{
				{Plan: "Starter", ElementRef: pagecontext.ElementRef{Selector: "#starter-card", Tag: "div"}},
				{Plan: "Pro", ElementRef: pagecontext.ElementRef{Selector: "#pro-card", Tag: "div"}},
			},
		},
	}
	return ctx, doc
}

func TestNavigate_PricingNavigationScenario(t *testing.T) {
	ctx, doc := sampleCtx()
	agent := NewAgent(ctx, doc)
	out := agent.Navigate("show me the pro plan")
	if !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}
	if out.Response != "Here's our pricing information." {
		t.Fatalf("unexpected response: %q", out.Response)
	}
	if len(out.Directives) == 0 {
		t.Fatal("expected at least one directive")
	}
}

func TestNavigate_CompareScenario(t *testing.T) {
	ctx, doc := sampleCtx()
	agent := NewAgent(ctx, doc)
	out := agent.Navigate("compare Starter and Pro")
	if !out.Success {
		t.Fatalf("expected success, got %+v", out)
	}
	if !strings.Contains(out.Response, "Comparing Starter and Pro") {
		t.Fatalf("expected response to mention the comparison, got %q", out.Response)
	}
	var sawScroll, sawCompare bool
	for _, d := range out.Directives {
		switch d.Kind {
		case actions.KindScroll:
			sawScroll = true
		case actions.KindCompare:
			sawCompare = true
		}
	}
	if !sawScroll {
		t.Fatalf("expected a scroll-to-pricing directive even though the utterance never said \"pricing\", got %+v", out.Directives)
	}
	if !sawCompare {
		t.Fatalf("expected a compare directive, got %+v", out.Directives)
	}
}

func TestPlanActions_CompareWithoutPricingKeywordStillNavigatesToPricing(t *testing.T) {
	in := intent.Intent{Intent: intent.Compare, Target: intent.TargetUnknown, Entities: []string{"Starter", "Pro"}}
	plan := planActions(in)
	if len(plan) != 2 {
		t.Fatalf("expected a 2-step plan [scroll, compare], got %+v", plan)
	}
	if plan[0].Type != actions.KindScroll || plan[0].Target != string(intent.TargetPricing) {
		t.Fatalf("expected the first step to scroll to pricing regardless of Target, got %+v", plan[0])
	}
	if plan[1].Type != actions.KindCompare {
		t.Fatalf("expected the second step to compare entities, got %+v", plan[1])
	}
}

func TestNavigate_LowConfidenceReturnsSuggestion(t *testing.T) {
	ctx, doc := sampleCtx()
	agent := NewAgent(ctx, doc)
	out := agent.Navigate("hmm interesting thing")
	if out.Success {
		t.Fatal("expected failure for a low-confidence utterance")
	}
	if out.Suggestion == "" {
		t.Fatal("expected a suggestion enumerating known categories")
	}
}

func TestNavigate_SameInputTwiceProducesEqualResponse(t *testing.T) {
	ctx, doc := sampleCtx()
	agent := NewAgent(ctx, doc)
	a := agent.Navigate("show me the pro plan")
	b := agent.Navigate("show me the pro plan")
	if a.Response != b.Response {
		t.Fatalf("expected idempotent responses, got %q vs %q", a.Response, b.Response)
	}
}
