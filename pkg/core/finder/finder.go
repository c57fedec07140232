// Package finder implements the Element Finder (C4): resolve a free-text
// description to a page element via context-first, semantic, then DOM
// fallback strategies, per spec.md §4.4.
package finder

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/vango-go/salesagent-gateway/pkg/core/pagecontext"
)

// namedRef pairs a named thing from the Page Context with its element ref,
// so context search can match either plans, features, products, or CTAs
// uniformly.
type namedRef struct {
	name string
	ref  pagecontext.ElementRef
}

// Find resolves description against ctx first, then doc (the same parsed
// document that produced ctx), in the strict order spec.md §4.4 names. doc
// may be nil if the caller only has the cached PageContext and no live
// document — in that case only the context-search strategy is attempted.
func Find(description string, ctx *pagecontext.PageContext, doc *goquery.Document) (*pagecontext.ElementRef, bool) {
	if ref, ok := contextSearch(description, ctx); ok {
		return ref, true
	}
	if doc == nil {
		return nil, false
	}
	if ref, ok := semanticSearch(description, doc); ok {
		return ref, true
	}
	if ref, ok := domFallback(description, doc); ok {
		return ref, true
	}
	return nil, false
}

func namedRefs(ctx *pagecontext.PageContext) []namedRef {
	if ctx == nil {
		return nil
	}
	var out []namedRef
	for _, p := range ctx.Content.Pricing {
		out = append(out, namedRef{name: p.Plan, ref: p.ElementRef})
	}
	for _, f := range ctx.Content.Features {
		out = append(out, namedRef{name: f.Name, ref: f.ElementRef})
	}
	for _, c := range ctx.Content.CTAs {
		out = append(out, namedRef{name: c.Text, ref: c.ElementRef})
	}
	return out
}

// contextSearch implements spec.md §4.4 step 1: exact/substring match, or a
// word-level match where a query token equals a token of a name and the
// token is >2 chars.
func contextSearch(description string, ctx *pagecontext.PageContext) (*pagecontext.ElementRef, bool) {
	refs := namedRefs(ctx)
	lowerDesc := strings.ToLower(description)

	for _, nr := range refs {
		lowerName := strings.ToLower(nr.name)
		if lowerName == "" {
			continue
		}
		if lowerDesc == lowerName || strings.Contains(lowerDesc, lowerName) || strings.Contains(lowerName, lowerDesc) {
			ref := nr.ref
			return &ref, true
		}
	}

	descTokens := strings.Fields(lowerDesc)
	for _, nr := range refs {
		for _, nameTok := range strings.Fields(strings.ToLower(nr.name)) {
			for _, dTok := range descTokens {
				if len(dTok) > 2 && dTok == nameTok {
					ref := nr.ref
					return &ref, true
				}
			}
		}
	}
	return nil, false
}

// semanticSearch implements spec.md §4.4 step 2: scan section-like
// containers, score by fraction of query tokens (>2 chars) present in the
// extracted text, threshold 0.3, return the best-scoring one.
func semanticSearch(description string, doc *goquery.Document) (*pagecontext.ElementRef, bool) {
	tokens := significantTokens(description)
	if len(tokens) == 0 {
		return nil, false
	}

	var best *goquery.Selection
	bestScore := 0.0
	doc.Find("section,main,article,div[id]").Each(func(_ int, s *goquery.Selection) {
		text := strings.ToLower(s.Text())
		matched := 0
		for _, tok := range tokens {
			if strings.Contains(text, tok) {
				matched++
			}
		}
		score := float64(matched) / float64(len(tokens))
		if score > bestScore {
			bestScore = score
			sel := s
			best = sel
		}
	})
	if best == nil || bestScore < 0.3 {
		return nil, false
	}
	ref := elementRefFromSelection(best)
	return &ref, true
}

// domFallback implements spec.md §4.4 step 3: per-token lookups against
// #token, [id*=token], [class*=token], [aria-label*=description],
// [data-section*=description].
func domFallback(description string, doc *goquery.Document) (*pagecontext.ElementRef, bool) {
	tokens := significantTokens(description)
	for _, tok := range tokens {
		for _, sel := range []string{"#" + cssEscape(tok), "[id*='" + tok + "']", "[class*='" + tok + "']"} {
			if s := doc.Find(sel).First(); s.Length() > 0 {
				ref := elementRefFromSelection(s)
				return &ref, true
			}
		}
	}
	if s := doc.Find("[aria-label*='" + description + "']").First(); s.Length() > 0 {
		ref := elementRefFromSelection(s)
		return &ref, true
	}
	if s := doc.Find("[data-section*='" + description + "']").First(); s.Length() > 0 {
		ref := elementRefFromSelection(s)
		return &ref, true
	}
	return nil, false
}

func significantTokens(description string) []string {
	var out []string
	for _, tok := range strings.Fields(strings.ToLower(description)) {
		if len(tok) > 2 {
			out = append(out, tok)
		}
	}
	return out
}

func cssEscape(tok string) string {
	// Good enough for alphanumeric tokens; real CSS.escape semantics aren't
	// needed since tokens come from free-text descriptions, not arbitrary
	// attacker-controlled selectors.
	var b strings.Builder
	for _, r := range tok {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func elementRefFromSelection(s *goquery.Selection) pagecontext.ElementRef {
	if id, ok := s.Attr("id"); ok && id != "" {
		return pagecontext.ElementRef{Selector: "#" + id, Tag: goquery.NodeName(s)}
	}
	return pagecontext.ElementRef{Selector: fallbackSelector(s), Tag: goquery.NodeName(s)}
}

func fallbackSelector(s *goquery.Selection) string {
	tag := goquery.NodeName(s)
	idx := 1
	parent := s.Parent()
	if parent.Length() > 0 {
		parent.Children().EachWithBreak(func(_ int, sib *goquery.Selection) bool {
			if goquery.NodeName(sib) != tag {
				return true
			}
			if sib.Get(0) == s.Get(0) {
				return false
			}
			idx++
			return true
		})
	}
	return tag + ":nth-of-type(" + strconv.Itoa(idx) + ")"
}

// FindSectionByType tries a small keyword list per kind, matching spec.md
// §4.4's findSectionByType auxiliary.
func FindSectionByType(kind string, ctx *pagecontext.PageContext) (*pagecontext.ElementRef, bool) {
	if ctx == nil {
		return nil, false
	}
	keywords, ok := sectionKeywords[strings.ToLower(kind)]
	if !ok {
		return nil, false
	}
	for _, s := range ctx.Sections {
		lowerHeading := strings.ToLower(s.Heading)
		for _, kw := range keywords {
			if strings.Contains(lowerHeading, kw) {
				sel := s.ID
				if sel == "" {
					continue
				}
				return &pagecontext.ElementRef{Selector: "#" + sel, Tag: s.Tag}, true
			}
		}
	}
	return nil, false
}

// GetScrollableParent returns s itself if its inline style declares
// overflow auto/scroll, else the closest section-like ancestor, matching
// spec.md §4.4's auxiliary of the same name.
func GetScrollableParent(s *goquery.Selection) *goquery.Selection {
	if style, ok := s.Attr("style"); ok {
		low := strings.ToLower(style)
		if strings.Contains(low, "overflow:auto") || strings.Contains(low, "overflow: auto") ||
			strings.Contains(low, "overflow:scroll") || strings.Contains(low, "overflow: scroll") {
			return s
		}
	}
	cur := s.Parent()
	for cur.Length() > 0 {
		tag := goquery.NodeName(cur)
		if tag == "section" || tag == "main" || tag == "article" {
			return cur
		}
		parent := cur.Parent()
		if parent.Length() == 0 {
			break
		}
		cur = parent
	}
	return s
}

var sectionKeywords = map[string][]string{
	"pricing":  {"pricing", "price", "plan"},
	"features": {"feature", "capability"},
	"faq":      {"faq", "question"},
	"signup":   {"sign up", "signup", "register"},
	"contact":  {"contact", "support"},
	"about":    {"about", "company"},
}
