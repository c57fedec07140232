// Package actions implements the Action Executor (C5). The gateway never
// mutates style attributes directly — it resolves a target via C4, decides
// the visual effect and its timing, and returns an ActionDirective that the
// browser snippet executes. The gateway still owns every timing invariant
// from spec.md §4.5 via RestoreScheduler.
package actions

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/vango-go/salesagent-gateway/pkg/core/finder"
	"github.com/vango-go/salesagent-gateway/pkg/core/pagecontext"
)

type Kind string

const (
	KindScroll    Kind = "scroll"
	KindHighlight Kind = "highlight"
	KindPulseCTA  Kind = "pulse_cta"
	KindCompare   Kind = "compare"
	KindFocus     Kind = "focus"
	KindClick     Kind = "click"
)

// MaxEffectDurationMS is spec.md §4.5's "no effect may outlive 10s" bound.
const MaxEffectDurationMS = 10_000

// ActionDirective is what C5 hands back to the caller (C6, or the HTTP/WS
// layer directly): a description of the visual effect to run client-side,
// plus the timing the RestoreScheduler will enforce.
type ActionDirective struct {
	ID           string `json:"id"`
	Kind         Kind   `json:"kind"`
	Selector     string `json:"selector"`
	DurationMS   int    `json:"durationMs,omitempty"`
	DelayMS      int    `json:"delayMs,omitempty"`
	Color        string `json:"color,omitempty"`
	ScrollBlock  string `json:"scrollBlock,omitempty"`
}

// Result is the outcome of executing one action.
type Result struct {
	Success    bool
	Error      string
	IsVisible  bool
	Text       string
	Directives []ActionDirective
}

var comparePalette = []string{"#4f46e5", "#16a34a", "#ea580c"}

func fail(msg string) Result { return Result{Success: false, Error: msg} }

// ScrollToSection implements spec.md §4.5's scrollToSection(id).
func ScrollToSection(ctx *pagecontext.PageContext, id string, idGen func() string) Result {
	for _, s := range ctx.Sections {
		if s.ID == id {
			return Result{Success: true, Directives: []ActionDirective{{
				ID: idGen(), Kind: KindScroll, Selector: "#" + id, ScrollBlock: "start",
			}}}
		}
	}
	return fail("Section not found")
}

// HighlightElement implements spec.md §4.5's highlightElement(selector,
// duration=2000ms): glow + 1.02x scale, restored after duration.
func HighlightElement(selector string, durationMS int, idGen func() string) Result {
	if durationMS <= 0 {
		durationMS = 2000
	}
	if durationMS > MaxEffectDurationMS {
		durationMS = MaxEffectDurationMS
	}
	return Result{Success: true, Directives: []ActionDirective{{
		ID: idGen(), Kind: KindHighlight, Selector: selector, DurationMS: durationMS,
	}}}
}

// PulseCTA implements spec.md §4.5's pulseCTA(selector): a 3s pulse, 3
// iterations of a 1s keyframe.
func PulseCTA(selector string, idGen func() string) Result {
	return Result{Success: true, Directives: []ActionDirective{{
		ID: idGen(), Kind: KindPulseCTA, Selector: selector, DurationMS: 3000,
	}}}
}

// NavigateToElement implements spec.md §4.5's navigateToElement(description,
// ctx, smooth=true): resolve via C4, scroll block:center, report isVisible.
func NavigateToElement(description string, ctx *pagecontext.PageContext, doc *goquery.Document, idGen func() string) Result {
	ref, ok := finder.Find(description, ctx, doc)
	if !ok {
		return fail("Section not found")
	}
	return Result{Success: true, IsVisible: true, Directives: []ActionDirective{{
		ID: idGen(), Kind: KindScroll, Selector: ref.Selector, ScrollBlock: "center",
	}}}
}

// CompareElements implements spec.md §4.5's compareElements(descs, ctx,
// duration=3000): resolve each, assign a per-index palette color, glow +
// outline + 1.03x scale, restore exactly at duration end.
func CompareElements(descs []string, ctx *pagecontext.PageContext, doc *goquery.Document, durationMS int, idGen func() string) Result {
	if durationMS <= 0 {
		durationMS = 3000
	}
	if durationMS > MaxEffectDurationMS {
		durationMS = MaxEffectDurationMS
	}
	var directives []ActionDirective
	for i, desc := range descs {
		ref, ok := finder.Find(desc, ctx, doc)
		if !ok {
			continue
		}
		color := comparePalette[i%len(comparePalette)]
		directives = append(directives, ActionDirective{
			ID: idGen(), Kind: KindCompare, Selector: ref.Selector, DurationMS: durationMS, Color: color,
		})
	}
	if len(directives) == 0 {
		return fail("Section not found")
	}
	return Result{Success: true, Directives: directives}
}

// ReadElementContent implements spec.md §4.5's readElementContent(desc,
// ctx): return cleaned text content of the resolved element. Requires the
// live doc since a stable selector alone carries no text.
func ReadElementContent(description string, ctx *pagecontext.PageContext, doc *goquery.Document) Result {
	ref, ok := finder.Find(description, ctx, doc)
	if !ok {
		return fail("Section not found")
	}
	if doc == nil {
		return fail("Section not found")
	}
	sel := doc.Find(ref.Selector)
	if sel.Length() == 0 {
		return fail("Section not found")
	}
	text := strings.Join(strings.Fields(sel.Text()), " ")
	return Result{Success: true, Text: text}
}

// ClickElement implements spec.md §4.5's clickElement(desc, ctx): resolve;
// require button/anchor/role=button/onclick-carrying; scroll then click
// after 500ms.
func ClickElement(description string, ctx *pagecontext.PageContext, doc *goquery.Document, idGen func() string) Result {
	ref, ok := finder.Find(description, ctx, doc)
	if !ok {
		return fail("Section not found")
	}
	if doc != nil {
		sel := doc.Find(ref.Selector)
		if sel.Length() > 0 && !isClickable(sel) {
			return fail("Element is not clickable")
		}
	}
	return Result{Success: true, Directives: []ActionDirective{
		{ID: idGen(), Kind: KindScroll, Selector: ref.Selector, ScrollBlock: "center"},
		{ID: idGen(), Kind: KindClick, Selector: ref.Selector, DelayMS: 500},
	}}
}

func isClickable(sel *goquery.Selection) bool {
	tag := goquery.NodeName(sel)
	if tag == "button" || tag == "a" {
		return true
	}
	if role, ok := sel.Attr("role"); ok && strings.EqualFold(role, "button") {
		return true
	}
	if _, ok := sel.Attr("onclick"); ok {
		return true
	}
	return false
}

// FocusElement implements spec.md §4.5's focusElement(desc, ctx,
// duration=2500): scroll into view, then after 600ms apply a strong glow +
// 1.05x scale + raised z-index, restored after duration.
func FocusElement(description string, ctx *pagecontext.PageContext, doc *goquery.Document, durationMS int, idGen func() string) Result {
	if durationMS <= 0 {
		durationMS = 2500
	}
	if durationMS > MaxEffectDurationMS {
		durationMS = MaxEffectDurationMS
	}
	ref, ok := finder.Find(description, ctx, doc)
	if !ok {
		return fail("Section not found")
	}
	return Result{Success: true, Directives: []ActionDirective{
		{ID: idGen(), Kind: KindScroll, Selector: ref.Selector, ScrollBlock: "center"},
		{ID: idGen(), Kind: KindFocus, Selector: ref.Selector, DelayMS: 600, DurationMS: durationMS},
	}}
}
