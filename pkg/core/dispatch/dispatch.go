// Package dispatch implements the Agent Response Parser (C12): split
// assistant output into prose and embedded action directives, per
// spec.md §4.11 and the grammar in §6/§9 ("assistant emits a final JSON
// line; the parser uses a tagged-variant action model with exhaustive
// dispatch; unknown tags are logged, not guessed").
package dispatch

import (
	"encoding/json"
	"log/slog"
	"strings"
)

// Directive is the tagged-variant action grammar from spec.md §6: a JSON
// object {action, section?, element?} on its own line.
type Directive struct {
	Action  string `json:"action"`
	Section string `json:"section,omitempty"`
	Element string `json:"element,omitempty"`
}

const (
	ActionScroll    = "scroll"
	ActionHighlight = "highlight"
	ActionPulseCTA  = "pulse_cta"
)

var knownActions = map[string]struct{}{
	ActionScroll:    {},
	ActionHighlight: {},
	ActionPulseCTA:  {},
}

// Parsed is the result of Split: the human-facing prose (every non-
// directive line, concatenated) plus the directives found, in line order.
type Parsed struct {
	Text       string
	Directives []Directive
}

// Split implements spec.md §4.11's line-by-line split: any line that is a
// single JSON object is treated as an action directive; all other lines
// concatenate into the human response. Malformed JSON falls through as
// text, matching spec.md §9's "unknown tags are logged, not guessed."
func Split(output string, log *slog.Logger) Parsed {
	if log == nil {
		log = slog.Default()
	}
	var prose []string
	var directives []Directive

	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if looksLikeJSONObject(trimmed) {
			var d Directive
			if err := json.Unmarshal([]byte(trimmed), &d); err == nil && d.Action != "" {
				if _, known := knownActions[d.Action]; known {
					if directiveSatisfiesRequiredFields(d) {
						directives = append(directives, d)
						continue
					}
				}
				log.Warn("unknown or malformed action directive, ignoring", "action", d.Action, "line", trimmed)
				continue
			}
			// Malformed JSON falls through as text, per spec.md §4.11.
		}
		prose = append(prose, trimmed)
	}

	return Parsed{Text: strings.Join(prose, " "), Directives: directives}
}

func looksLikeJSONObject(line string) bool {
	return strings.HasPrefix(line, "{") && strings.HasSuffix(line, "}")
}

func directiveSatisfiesRequiredFields(d Directive) bool {
	switch d.Action {
	case ActionScroll:
		return d.Section != "" || d.Element != ""
	case ActionHighlight, ActionPulseCTA:
		return d.Element != "" || d.Section != ""
	default:
		return false
	}
}
