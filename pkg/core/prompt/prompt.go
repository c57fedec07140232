// Package prompt implements the Prompt Builder (C11): assemble a single
// system-prompt string from Page Context, flow stage, user profile, and
// closing guidance, per spec.md §4.11.
package prompt

import (
	"fmt"
	"strings"

	"github.com/vango-go/salesagent-gateway/pkg/core/flow"
	"github.com/vango-go/salesagent-gateway/pkg/core/pagecontext"
	"github.com/vango-go/salesagent-gateway/pkg/core/sales"
)

const identityPreamble = "You are a helpful, concise sales assistant embedded on this page. " +
	"You only ever state facts that are grounded in the page content provided to you below. " +
	"You never invent pricing, features, or policies that aren't listed."

// Input bundles everything the builder needs; ClosingPlan and Profile are
// optional (nil-able via zero values) since early-stage conversations have
// neither.
type Input struct {
	Context     *pagecontext.PageContext
	Stage       flow.Stage
	Fragment    flow.PromptFragment
	Profile     *sales.UserProfile
	ClosingPlan *sales.ClosingPlan
	VoiceMode   bool
}

// Build assembles the prompt string per spec.md §4.11: identity/style
// preamble, stage block, profile block (when confident), ground-truth
// content, a section map, available action directives, and response
// rules — voice mode tightens the length rule and CTA preset.
func Build(in Input) string {
	var b strings.Builder

	b.WriteString(identityPreamble)
	b.WriteString("\n\n")

	writeStageBlock(&b, in.Stage, in.Fragment)

	if in.Profile != nil && in.Profile.Confidence >= 0.4 {
		writeProfileBlock(&b, *in.Profile)
	}

	writeGroundTruth(&b, in.Context)
	writeSectionMap(&b, in.Context)
	writeActionDirectives(&b)

	if in.ClosingPlan != nil {
		b.WriteString("\nClosing guidance: use the ")
		b.WriteString(string(in.ClosingPlan.Technique))
		b.WriteString(" technique. Suggested statement: \"")
		b.WriteString(in.ClosingPlan.Statement)
		b.WriteString("\"\n")
	}

	writeResponseRules(&b, in.VoiceMode)

	return b.String()
}

func writeStageBlock(b *strings.Builder, stage flow.Stage, frag flow.PromptFragment) {
	fmt.Fprintf(b, "Current conversation stage: %s\n", stage)
	if len(frag.Objectives) > 0 {
		fmt.Fprintf(b, "Objectives: %s\n", strings.Join(frag.Objectives, "; "))
	}
	if len(frag.Tactics) > 0 {
		fmt.Fprintf(b, "Tactics: %s\n", strings.Join(frag.Tactics, "; "))
	}
	if len(frag.Examples) > 0 {
		fmt.Fprintf(b, "Example response: %s\n", frag.Examples[0])
	}
	b.WriteString("\n")
}

func writeProfileBlock(b *strings.Builder, p sales.UserProfile) {
	fmt.Fprintf(b, "Visitor profile (confidence %.0f%%): type=%s, companySize=%s", p.Confidence*100, p.Type, p.CompanySize)
	if p.Industry != "" {
		fmt.Fprintf(b, ", industry=%s", p.Industry)
	}
	if p.Urgency != "" {
		fmt.Fprintf(b, ", urgency=%s", p.Urgency)
	}
	if len(p.PainPoints) > 0 {
		fmt.Fprintf(b, ". Pain points mentioned: %s", strings.Join(p.PainPoints, "; "))
	}
	if len(p.Objections) > 0 {
		fmt.Fprintf(b, ". Objections raised: %s", strings.Join(p.Objections, "; "))
	}
	b.WriteString("\n\n")
}

func writeGroundTruth(b *strings.Builder, ctx *pagecontext.PageContext) {
	b.WriteString("Ground truth about this page (never invent facts outside this list):\n")
	if ctx == nil {
		b.WriteString("(no page context available)\n\n")
		return
	}
	if len(ctx.Content.Pricing) > 0 {
		b.WriteString("Pricing:\n")
		for _, p := range ctx.Content.Pricing {
			fmt.Fprintf(b, "- %s: %s\n", p.Plan, p.Price)
		}
	}
	if len(ctx.Content.Features) > 0 {
		b.WriteString("Features:\n")
		for _, f := range ctx.Content.Features {
			fmt.Fprintf(b, "- %s: %s\n", f.Name, f.Description)
		}
	}
	if len(ctx.Content.FAQs) > 0 {
		b.WriteString("FAQs:\n")
		for _, f := range ctx.Content.FAQs {
			fmt.Fprintf(b, "- Q: %s A: %s\n", f.Question, f.Answer)
		}
	}
	if len(ctx.Content.Products) > 0 {
		b.WriteString("Products:\n")
		for _, p := range ctx.Content.Products {
			fmt.Fprintf(b, "- %s\n", p.Name)
		}
	}
	if len(ctx.Content.CTAs) > 0 {
		b.WriteString("Calls to action:\n")
		for _, c := range ctx.Content.CTAs {
			fmt.Fprintf(b, "- %s\n", c.Text)
		}
	}
	b.WriteString("\n")
}

func writeSectionMap(b *strings.Builder, ctx *pagecontext.PageContext) {
	if ctx == nil || len(ctx.Sections) == 0 {
		return
	}
	b.WriteString("Page sections: ")
	var names []string
	for _, s := range ctx.Sections {
		if s.Heading != "" {
			names = append(names, s.Heading)
		}
	}
	b.WriteString(strings.Join(names, ", "))
	b.WriteString("\n\n")
}

func writeActionDirectives(b *strings.Builder) {
	b.WriteString("Available action directives (emit a single JSON object on its own line to trigger one): ")
	b.WriteString(`{"action":"scroll","section":"<id>"}, {"action":"highlight","element":"<description>"}, {"action":"pulse_cta","element":"<description>"}`)
	b.WriteString("\n\n")
}

func writeResponseRules(b *strings.Builder, voiceMode bool) {
	maxWords := 80
	cta := "end your response with a question or a clear call to action"
	if voiceMode {
		maxWords = 50
		cta = `end your response with a question, or say "yes" to continue`
	}
	fmt.Fprintf(b, "Response rules: keep your text response to %d words or fewer; %s; never invent facts outside the ground truth above.\n", maxWords, cta)
}
