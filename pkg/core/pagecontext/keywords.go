package pagecontext

import "strings"

// Keyword tables are treated as data, not code, per spec.md §9 — centralized
// here rather than scattered through the classifier functions so future
// rule changes don't require touching extraction logic.

var pricingKeywords = []string{"pricing", "plan", "price", "tier", "subscription"}

var currencySymbols = []string{"$", "€", "£", "¥"}

var priceSuffixes = []string{"/mo", "/month", "per month", "/yr", "/year", "per year"}

var customPriceTokens = []string{"custom", "contact us", "contact sales", "talk to sales"}

var popularMarkers = []string{"popular", "most popular", "recommended", "best value"}

var badgeTokens = []string{"popular", "most advanced", "recommended", "best value", "new"}

var featureKeywords = []string{"feature", "capability", "what you get", "includes"}

var faqKeywords = []string{"faq", "frequently asked", "questions", "q&a"}

var accordionMarkers = []string{"accordion", "collapse", "toggle", "expand"}

var productCardKeywords = []string{"product", "item", "card"}

var ctaVerbs = []string{
	"get started", "sign up", "buy now", "start free trial", "try for free",
	"try now", "subscribe", "purchase", "book a demo", "request demo",
	"contact sales", "learn more", "join now", "upgrade",
}

var ctaClasses = []string{"btn-primary", "cta", "btn-cta", "button-primary"}

var invisibleUtilityClasses = []string{"hidden", "sr-only", "d-none", "invisible", "visually-hidden"}

func containsAny(haystack string, needles []string) bool {
	h := strings.ToLower(haystack)
	for _, n := range needles {
		if strings.Contains(h, strings.ToLower(n)) {
			return true
		}
	}
	return false
}

func countMatches(haystack string, needles []string) int {
	h := strings.ToLower(haystack)
	n := 0
	for _, needle := range needles {
		if strings.Contains(h, strings.ToLower(needle)) {
			n++
		}
	}
	return n
}
