package intent

// Keyword tables are data, not code, per spec.md §9's redesign note —
// editing the vocabulary never requires touching the scoring algorithm.

var intentVerbs = map[Kind][]string{
	Navigate:  {"go to", "take me to", "show me", "navigate", "find", "where is"},
	Compare:   {"compare", "versus", "vs", "difference between"},
	Highlight: {"highlight", "point out", "show me where"},
	Read:      {"read", "tell me about", "describe", "explain", "what does"},
	Click:     {"click", "press", "select", "choose"},
}

var targetNouns = map[Target][]string{
	TargetPricing:  {"pricing", "price", "plan", "cost", "tier"},
	TargetFeatures: {"feature", "capability"},
	TargetSignup:   {"sign up", "signup", "register", "get started"},
	TargetContact:  {"contact", "support", "help"},
	TargetAbout:    {"about", "company", "team"},
	TargetFAQ:      {"faq", "question", "frequently asked"},
	TargetProduct:  {"product", "item"},
	TargetCTA:      {"button", "cta"},
}
