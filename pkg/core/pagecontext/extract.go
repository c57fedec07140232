package pagecontext

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

var priceRe = regexp.MustCompile(`[$€£¥]\s?(\d[\d,]*(?:\.\d+)?)`)

// softBudget bounds total extraction time (spec.md §4.1's "return what was
// built so far" failure semantic). It is checked between top-level
// classifier passes, not inside a single pass, since goquery gives no
// natural cancellation point mid-walk.
const softBudget = 200 * time.Millisecond

// Extract runs the C1 algorithm over a posted HTML snapshot. It never
// panics out to the caller: any classifier-local failure is recovered and
// treated as ContextExtractionSkip, per spec.md §7.
func Extract(in Input) (*PageContext, error) {
	start := time.Now()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(in.HTML))
	if err != nil {
		// Malformed markup must never be fatal; an empty context satisfies
		// "missing sections yield empty lists".
		return emptyContext(in, start), nil
	}

	invisible := make(map[string]struct{}, len(in.InvisibleSelectors))
	for _, sel := range in.InvisibleSelectors {
		invisible[sel] = struct{}{}
	}

	ctx := &PageContext{URL: in.URL, ScrollPosition: in.ScrollPosition}
	ctx.Title = strings.TrimSpace(doc.Find("title").First().Text())

	// Each pass runs only if the previous ones haven't already exhausted
	// softBudget; once they have, Extract returns whatever got built so
	// far rather than running the remaining classifiers, per spec.md
	// §4.1's "return what was built so far" failure semantic.
	passes := []func(){
		func() { ctx.Structure = extractStructure(doc) },
		func() { ctx.Sections = extractSections(doc, invisible) },
		func() { ctx.Content.Pricing = extractPricing(doc, invisible) },
		func() { ctx.Content.Features = extractFeatures(doc, invisible) },
		func() { ctx.Content.FAQs = extractFAQs(doc, invisible) },
		func() { ctx.Content.Products = extractProducts(doc, invisible) },
		func() { ctx.Content.CTAs = extractCTAs(doc, invisible) },
		func() { ctx.Content.Metadata = extractMetadata(doc) },
		func() { ctx.Links = extractLinks(doc) },
		func() { ctx.Keywords = deriveKeywords(ctx) },
		func() { ctx.Summary = deriveSummary(ctx) },
	}
	for _, pass := range passes {
		if time.Since(start) > softBudget {
			break
		}
		safeRun(pass)
	}

	ctx.CurrentSection = currentSection(ctx.Sections, in)
	ctx.ExtractedAt = start
	ctx.ExtractionTime = time.Since(start)
	return ctx, nil
}

func emptyContext(in Input, start time.Time) *PageContext {
	return &PageContext{
		URL:            in.URL,
		ScrollPosition: in.ScrollPosition,
		ExtractedAt:    start,
		ExtractionTime: time.Since(start),
	}
}

// safeRun implements "must not throw on malformed markup; on any classifier
// exception, skip that element" at the pass level: a panic inside one
// classifier never takes down the others.
func safeRun(fn func()) {
	defer func() { _ = recover() }()
	fn()
}

func isInvisible(s *goquery.Selection, invisible map[string]struct{}) bool {
	if style, ok := s.Attr("style"); ok {
		style = strings.ToLower(style)
		if strings.Contains(style, "display:none") || strings.Contains(style, "display: none") ||
			strings.Contains(style, "visibility:hidden") || strings.Contains(style, "visibility: hidden") ||
			strings.Contains(style, "opacity:0") || strings.Contains(style, "opacity: 0") {
			return true
		}
	}
	if class, ok := s.Attr("class"); ok {
		for _, tok := range strings.Fields(class) {
			for _, bad := range invisibleUtilityClasses {
				if strings.EqualFold(tok, bad) {
					return true
				}
			}
		}
	}
	tag := goquery.NodeName(s)
	if tag == "script" || tag == "style" || tag == "noscript" {
		return true
	}
	if sel, ok := selectorOf(s); ok {
		if _, bad := invisible[sel]; bad {
			return true
		}
	}
	return false
}

func selectorOf(s *goquery.Selection) (string, bool) {
	if id, ok := s.Attr("id"); ok && id != "" {
		return "#" + id, true
	}
	return "", false
}

func extractStructure(doc *goquery.Document) []Heading {
	var out []Heading
	doc.Find("h1,h2,h3,h4,h5,h6").Each(func(_ int, s *goquery.Selection) {
		text := normalizeText(s.Text())
		if text == "" {
			return
		}
		level, _ := strconv.Atoi(strings.TrimPrefix(goquery.NodeName(s), "h"))
		h := Heading{Level: level, Text: text}
		if id, ok := s.Attr("id"); ok {
			h.ID = id
		}
		out = append(out, h)
	})
	return out
}

func extractSections(doc *goquery.Document, invisible map[string]struct{}) []Section {
	var out []Section
	doc.Find("section,main,article,div[id]").Each(func(_ int, s *goquery.Selection) {
		if isInvisible(s, invisible) {
			return
		}
		id, _ := s.Attr("id")
		heading := normalizeText(s.Find("h1,h2,h3,h4").First().Text())
		preview := normalizeText(s.Text())
		if len(preview) > 160 {
			preview = preview[:160]
		}
		if id == "" && heading == "" && preview == "" {
			return
		}
		out = append(out, Section{
			ID:          id,
			Tag:         goquery.NodeName(s),
			Heading:     heading,
			TextPreview: preview,
		})
	})
	return out
}

func buildElementRef(s *goquery.Selection) ElementRef {
	ref := ElementRef{Tag: goquery.NodeName(s)}
	if sel, ok := selectorOf(s); ok {
		ref.Selector = sel
		return ref
	}
	ref.Selector = nthOfTypeSelector(s)
	return ref
}

// nthOfTypeSelector walks up to the nearest ancestor with an id (or the
// document root) and builds an nth-of-type chain down to s, since stable
// selectors must survive being resolved against a re-parsed document later
// (spec.md §9's "cache stable selectors plus per-use resolution").
func nthOfTypeSelector(s *goquery.Selection) string {
	var parts []string
	cur := s
	for cur.Length() > 0 {
		if id, ok := cur.Attr("id"); ok && id != "" {
			parts = append(parts, "#"+id)
			break
		}
		tag := goquery.NodeName(cur)
		if tag == "" || tag == "#document" || tag == "html" {
			break
		}
		idx := indexAmongSiblingsOfSameTag(cur)
		parts = append(parts, tag+":nth-of-type("+strconv.Itoa(idx)+")")
		parent := cur.Parent()
		if parent.Length() == 0 {
			break
		}
		cur = parent
	}
	// parts were collected leaf-to-root; reverse for root-to-leaf.
	rev := make([]string, len(parts))
	for i, p := range parts {
		rev[len(parts)-1-i] = p
	}
	if len(rev) == 0 {
		return goquery.NodeName(s)
	}
	return strings.Join(rev, " > ")
}

func indexAmongSiblingsOfSameTag(s *goquery.Selection) int {
	tag := goquery.NodeName(s)
	parent := s.Parent()
	idx := 1
	if parent.Length() == 0 {
		return idx
	}
	found := false
	parent.Children().EachWithBreak(func(_ int, sib *goquery.Selection) bool {
		if goquery.NodeName(sib) != tag {
			return true
		}
		if sib.Get(0) == s.Get(0) {
			found = true
			return false
		}
		idx++
		return true
	})
	if !found {
		return 1
	}
	return idx
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func extractLinks(doc *goquery.Document) []string {
	var out []string
	seen := map[string]struct{}{}
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || href == "#" {
			return
		}
		if _, ok := seen[href]; ok {
			return
		}
		seen[href] = struct{}{}
		out = append(out, href)
	})
	return out
}

func extractMetadata(doc *goquery.Document) Metadata {
	m := Metadata{OGTags: map[string]string{}}
	doc.Find("meta[property^='og:']").Each(func(_ int, s *goquery.Selection) {
		prop, _ := s.Attr("property")
		content, _ := s.Attr("content")
		if prop == "" {
			return
		}
		m.OGTags[prop] = content
	})
	if name, ok := m.OGTags["og:site_name"]; ok && name != "" {
		m.SiteName = name
	} else if appName, ok := doc.Find("meta[name='application-name']").Attr("content"); ok {
		m.SiteName = appName
	} else if title := strings.TrimSpace(doc.Find("title").First().Text()); title != "" {
		if idx := strings.IndexAny(title, "|-–—"); idx > 0 {
			m.SiteName = strings.TrimSpace(title[:idx])
		}
	}
	if desc, ok := m.OGTags["og:description"]; ok && desc != "" {
		m.Description = desc
	} else if desc, ok := doc.Find("meta[name='description']").Attr("content"); ok {
		m.Description = desc
	}
	doc.Find("script[type='application/ld+json']").Each(func(_ int, s *goquery.Selection) {
		raw := strings.TrimSpace(s.Text())
		if raw == "" {
			return
		}
		var probe any
		if err := json.Unmarshal([]byte(raw), &probe); err != nil {
			// silently skip invalid JSON-LD, per spec.md §4.1 step 3.
			return
		}
		m.Schema = append(m.Schema, raw)
	})
	return m
}

func deriveKeywords(ctx *PageContext) []string {
	freq := map[string]int{}
	add := func(text string) {
		for _, w := range strings.Fields(strings.ToLower(text)) {
			w = strings.Trim(w, ".,!?;:()\"'")
			if len(w) < 4 {
				continue
			}
			freq[w]++
		}
	}
	for _, h := range ctx.Structure {
		add(h.Text)
	}
	for _, f := range ctx.Content.Features {
		add(f.Name)
	}
	for _, c := range ctx.Content.CTAs {
		add(c.Text)
	}
	type kv struct {
		word  string
		count int
	}
	var all []kv
	for w, c := range freq {
		all = append(all, kv{w, c})
	}
	// stable-ish ordering: highest count first, ties broken lexically.
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			if all[j].count > all[i].count || (all[j].count == all[i].count && all[j].word < all[i].word) {
				all[i], all[j] = all[j], all[i]
			}
		}
	}
	var out []string
	for _, e := range all {
		out = append(out, e.word)
		if len(out) >= maxKeywords {
			break
		}
	}
	return out
}

func deriveSummary(ctx *PageContext) string {
	var b strings.Builder
	if ctx.Content.Metadata.Description != "" {
		b.WriteString(ctx.Content.Metadata.Description)
	} else if len(ctx.Structure) > 0 {
		b.WriteString(ctx.Structure[0].Text)
	}
	s := b.String()
	if len(s) > maxSummary {
		s = s[:maxSummary]
	}
	return s
}

func currentSection(sections []Section, in Input) string {
	if in.ViewportHeight <= 0 {
		return scrollBucket(in)
	}
	// Without real layout offsets we cannot straddle the viewport mid-line
	// against our own sections list; fall back to the scroll-percentage
	// bucket described as the algorithm's own fallback.
	if len(sections) == 0 {
		return scrollBucket(in)
	}
	idx := int(in.ScrollPosition / in.ViewportHeight)
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sections) {
		return scrollBucket(in)
	}
	if sections[idx].ID != "" {
		return sections[idx].ID
	}
	return scrollBucket(in)
}

func scrollBucket(in Input) string {
	if in.ViewportHeight <= 0 {
		return "top"
	}
	// Heuristic bucket boundaries; exact values aren't load-bearing, just
	// monotonic with scroll position.
	ratio := in.ScrollPosition / (in.ViewportHeight * 3)
	switch {
	case ratio < 0.33:
		return "top"
	case ratio < 0.66:
		return "middle"
	default:
		return "bottom"
	}
}
