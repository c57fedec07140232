package pagecontext

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// extractPricing implements spec.md §4.1's pricing classifier: a pricing
// container is a section/table with a price-keyword and a currency pattern,
// or with ≥2 distinct price-pattern children; each card within it yields a
// PricingCard.
func extractPricing(doc *goquery.Document, invisible map[string]struct{}) []PricingCard {
	var out []PricingCard
	// best tracks, per plan name, the relevance score of the candidate
	// currently in out and its index, so a duplicate card found in a
	// second, less relevant container (e.g. a decorative wrapper that
	// mirrors the real pricing section) can replace rather than just
	// being dropped.
	best := map[string]struct {
		idx   int
		score float64
	}{}

	doc.Find("section,div,table").Each(func(_ int, container *goquery.Selection) {
		if isInvisible(container, invisible) {
			return
		}
		text := container.Text()
		hasKeyword := containsAny(text, pricingKeywords)
		priceMatches := priceRe.FindAllString(text, -1)
		if !(hasKeyword && len(priceMatches) > 0) && len(priceMatches) < 2 {
			return
		}
		if !hasKeyword && !containsAny(text, priceSuffixes) && len(priceMatches) < 2 {
			return
		}

		// candidate cards: direct children that themselves look like a card
		// (heading + a price pattern somewhere inside).
		container.Children().Each(func(_ int, card *goquery.Selection) {
			if isInvisible(card, invisible) {
				return
			}
			cardText := card.Text()
			if !priceRe.MatchString(cardText) && !containsAny(cardText, customPriceTokens) {
				return
			}
			plan := pickPlanHeading(card)
			if plan == "" {
				return
			}

			score := relevanceScoreOf(card)
			key := strings.ToLower(plan)
			if prior, dup := best[key]; dup && prior.score >= score {
				return
			}

			pc := PricingCard{
				Plan:       plan,
				Features:   extractCardFeatures(card),
				Popular:    containsAny(cardText, popularMarkers),
				ElementRef: buildElementRef(card),
			}
			price, value, currency, period := parsePrice(cardText)
			pc.Price = price
			pc.PriceValue = value
			pc.Currency = currency
			pc.Period = period

			if prior, dup := best[key]; dup {
				out[prior.idx] = pc
				best[key] = struct {
					idx   int
					score float64
				}{idx: prior.idx, score: score}
				return
			}
			best[key] = struct {
				idx   int
				score float64
			}{idx: len(out), score: score}
			out = append(out, pc)
		})
	})
	return out
}

// relevanceScoreOf applies spec.md §4.1's relevance formula to a candidate
// element using the signals a server-side HTML parse can actually produce:
// its tag and whether it sits inside a footer or aside. The viewport
// geometry terms (fully-in-viewport, scroll distance, area fraction) need
// real layout data the snippet doesn't currently post, so they're left at
// their neutral zero value rather than faked.
func relevanceScoreOf(s *goquery.Selection) float64 {
	return Score(RelevanceInput{
		Tag:             goquery.NodeName(s),
		IsFooterOrAside: hasFooterOrAsideAncestor(s),
	})
}

func hasFooterOrAsideAncestor(s *goquery.Selection) bool {
	cur := s
	for cur.Length() > 0 {
		switch goquery.NodeName(cur) {
		case "footer", "aside":
			return true
		}
		parent := cur.Parent()
		if parent.Length() == 0 {
			break
		}
		cur = parent
	}
	return false
}

func pickPlanHeading(card *goquery.Selection) string {
	if h := normalizeText(card.Find("h4").First().Text()); h != "" {
		return h
	}
	for _, tag := range []string{"h1", "h2", "h3", "h5", "h6"} {
		if h := normalizeText(card.Find(tag).First().Text()); h != "" {
			return h
		}
	}
	return ""
}

func extractCardFeatures(card *goquery.Selection) []string {
	var out []string
	card.Find("li").Each(func(_ int, li *goquery.Selection) {
		if len(out) >= 15 {
			return
		}
		text := normalizeText(li.Text())
		if len(text) < 3 || len(text) > 200 {
			return
		}
		low := strings.ToLower(text)
		for _, badge := range badgeTokens {
			if low == strings.ToLower(badge) {
				return
			}
		}
		out = append(out, text)
	})
	return out
}

func parsePrice(text string) (raw string, value *float64, currency *string, period *string) {
	if m := priceRe.FindString(text); m != "" {
		raw = strings.TrimSpace(m)
		numStr := priceRe.FindStringSubmatch(text)[1]
		numStr = strings.ReplaceAll(numStr, ",", "")
		if f, err := strconv.ParseFloat(numStr, 64); err == nil {
			value = &f
		}
		sym := strings.TrimSpace(strings.TrimSuffix(m, priceRe.FindStringSubmatch(text)[1]))
		if sym != "" {
			c := currencyForSymbol(sym)
			currency = &c
		}
		for _, suffix := range priceSuffixes {
			if strings.Contains(strings.ToLower(text), suffix) {
				p := normalizePeriod(suffix)
				period = &p
				raw = raw + "/" + p
				break
			}
		}
		return raw, value, currency, period
	}
	if containsAny(text, customPriceTokens) {
		return "Custom", nil, nil, nil
	}
	return "", nil, nil, nil
}

func currencyForSymbol(sym string) string {
	switch {
	case strings.Contains(sym, "$"):
		return "USD"
	case strings.Contains(sym, "€"):
		return "EUR"
	case strings.Contains(sym, "£"):
		return "GBP"
	case strings.Contains(sym, "¥"):
		return "JPY"
	default:
		return ""
	}
}

func normalizePeriod(suffix string) string {
	if strings.Contains(suffix, "yr") || strings.Contains(suffix, "year") {
		return "year"
	}
	return "month"
}

// extractFeatures implements spec.md §4.1's feature-list classifier: a
// feature-keyword container that's a list/grid, or ≥3 children sharing a
// {heading, ≥20-char body} shape; deduped by name.
func extractFeatures(doc *goquery.Document, invisible map[string]struct{}) []Feature {
	var out []Feature
	seen := map[string]struct{}{}

	doc.Find("section,div,ul").Each(func(_ int, container *goquery.Selection) {
		if isInvisible(container, invisible) {
			return
		}
		text := container.Text()
		hasKeyword := containsAny(text, featureKeywords)
		children := container.Children()
		structured := 0
		children.Each(func(_ int, child *goquery.Selection) {
			heading := normalizeText(child.Find("h1,h2,h3,h4,h5,h6").First().Text())
			body := normalizeText(child.Text())
			if heading != "" && len(body) >= 20 {
				structured++
			}
		})
		if !hasKeyword && structured < 3 {
			return
		}

		children.Each(func(_ int, child *goquery.Selection) {
			if len(out) >= maxFeatures || isInvisible(child, invisible) {
				return
			}
			name := normalizeText(child.Find("h1,h2,h3,h4,h5,h6").First().Text())
			if name == "" {
				return
			}
			if len(name) > 100 {
				name = name[:100]
			}
			key := strings.ToLower(name)
			if _, dup := seen[key]; dup {
				return
			}
			seen[key] = struct{}{}
			desc := normalizeText(child.Find("p").First().Text())
			if desc == "" {
				desc = normalizeText(child.Text())
			}
			if len(desc) > 200 {
				desc = desc[:200]
			}
			out = append(out, Feature{Name: name, Description: desc, ElementRef: buildElementRef(child)})
		})
	})
	return out
}

// extractFAQs implements spec.md §4.1's FAQ classifier: FAQ keyword plus
// ≥2 question-shaped children, accordion markers plus ≥2 questions, or a
// <dl> with ≥2 <dt>.
func extractFAQs(doc *goquery.Document, invisible map[string]struct{}) []FAQ {
	var out []FAQ

	doc.Find("dl").Each(func(_ int, dl *goquery.Selection) {
		if isInvisible(dl, invisible) {
			return
		}
		dts := dl.Find("dt")
		if dts.Length() < 2 {
			return
		}
		dts.Each(func(i int, dt *goquery.Selection) {
			q := normalizeText(dt.Text())
			dd := dt.Next()
			if goquery.NodeName(dd) != "dd" {
				return
			}
			a := normalizeText(dd.Text())
			if len(a) > 300 {
				a = a[:300]
			}
			if q != "" {
				out = append(out, FAQ{Question: q, Answer: a})
			}
		})
	})

	doc.Find("section,div").Each(func(_ int, container *goquery.Selection) {
		if isInvisible(container, invisible) {
			return
		}
		text := container.Text()
		hasFAQKeyword := containsAny(text, faqKeywords)
		hasAccordion := containsAny(text, accordionMarkers)
		if !hasFAQKeyword && !hasAccordion {
			return
		}
		var questions []*goquery.Selection
		container.Find("h1,h2,h3,h4,h5,h6,summary").Each(func(_ int, h *goquery.Selection) {
			t := normalizeText(h.Text())
			if strings.Contains(t, "?") || isQuestionShaped(t) {
				sel := h
				questions = append(questions, sel)
			}
		})
		if len(questions) < 2 {
			return
		}
		for _, q := range questions {
			question := normalizeText(q.Text())
			answer := normalizeText(q.Next().Text())
			if len(answer) > 300 {
				answer = answer[:300]
			}
			out = append(out, FAQ{Question: question, Answer: answer})
		}
	})

	if len(out) > maxFAQs {
		out = out[:maxFAQs]
	}
	return out
}

func isQuestionShaped(text string) bool {
	low := strings.ToLower(text)
	for _, starter := range []string{"what", "how", "why", "when", "where", "can", "do", "is", "are", "does"} {
		if strings.HasPrefix(low, starter+" ") {
			return true
		}
	}
	return false
}

// extractProducts implements spec.md §4.1's product-card classifier.
func extractProducts(doc *goquery.Document, invisible map[string]struct{}) []Product {
	var out []Product
	seen := map[string]struct{}{}

	doc.Find("div,article,li").Each(func(_ int, card *goquery.Selection) {
		if len(out) >= maxProducts || isInvisible(card, invisible) {
			return
		}
		class, _ := card.Attr("class")
		hasCardKeyword := containsAny(class, productCardKeywords)
		heading := normalizeText(card.Find("h1,h2,h3,h4,h5,h6").First().Text())
		hasImage := card.Find("img").Length() > 0
		hasButton := card.Find("button,a.btn,a[role=button]").Length() > 0
		text := normalizeText(card.Text())

		qualifies := false
		switch {
		case hasCardKeyword && heading != "" && (hasImage || hasButton):
			qualifies = true
		case heading != "" && priceRe.MatchString(text) && hasButton:
			qualifies = true
		}
		if !qualifies {
			return
		}
		if heading == "" {
			return
		}
		key := strings.ToLower(heading)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}

		p := Product{Name: heading}
		if price := priceRe.FindString(text); price != "" {
			p.Price = strings.TrimSpace(price)
		}
		if src, ok := card.Find("img").First().Attr("src"); ok {
			p.Image = src
		}
		desc := normalizeText(card.Find("p").First().Text())
		if len(desc) > 500 {
			desc = desc[:500]
		}
		p.Description = desc
		out = append(out, p)
	})
	return out
}

// extractCTAs implements spec.md §4.1's CTA classifier.
func extractCTAs(doc *goquery.Document, invisible map[string]struct{}) []CTA {
	var out []CTA
	seen := map[string]struct{}{}

	doc.Find("button,a,[role=button]").Each(func(_ int, s *goquery.Selection) {
		if len(out) >= maxCTAs || isInvisible(s, invisible) {
			return
		}
		text := normalizeText(s.Text())
		if text == "" {
			return
		}
		class, _ := s.Attr("class")
		isCTAVerb := containsAny(text, ctaVerbs)
		isCTAClass := containsAny(class, ctaClasses)
		if !isCTAVerb && !isCTAClass {
			return
		}
		key := strings.ToLower(text)
		if _, dup := seen[key]; dup {
			return
		}
		seen[key] = struct{}{}

		cta := CTA{Text: text, Tag: goquery.NodeName(s), ElementRef: buildElementRef(s)}
		if href, ok := s.Attr("href"); ok {
			cta.Href = href
		}
		out = append(out, cta)
	})
	return out
}
