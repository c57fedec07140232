package pagecontext

// RelevanceInput captures the geometry signals spec.md §4.1's relevance
// ranking needs when multiple extraction candidates compete for the same
// role (e.g. two plausible pricing containers).
type RelevanceInput struct {
	FullyInViewport    bool
	ScrollDistance      float64 // 0 = centered in viewport, larger = further
	MaxScrollDistance   float64
	ViewportAreaFraction float64 // element area / viewport area, already capped upstream
	Tag                 string
	IsFooterOrAside     bool
}

// Score implements spec.md §4.1's relevance formula: base 50, +30 fully in
// viewport, up to +20 inversely proportional to scroll distance, up to +20
// proportional to viewport-area fraction (capped at 0.5), +10 for semantic
// tags, -20 for footer/aside.
func Score(in RelevanceInput) float64 {
	score := 50.0
	if in.FullyInViewport {
		score += 30
	}
	if in.MaxScrollDistance > 0 {
		frac := 1 - (in.ScrollDistance / in.MaxScrollDistance)
		if frac < 0 {
			frac = 0
		}
		if frac > 1 {
			frac = 1
		}
		score += 20 * frac
	}
	areaFrac := in.ViewportAreaFraction
	if areaFrac > 0.5 {
		areaFrac = 0.5
	}
	score += 20 * (areaFrac / 0.5)
	switch in.Tag {
	case "main", "article", "section", "h1", "h2", "h3":
		score += 10
	}
	if in.IsFooterOrAside {
		score -= 20
	}
	return score
}
