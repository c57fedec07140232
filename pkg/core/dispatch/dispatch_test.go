package dispatch

import (
	"log/slog"
	"testing"
)

func TestSplit_ProseOnly(t *testing.T) {
	p := Split("The Pro plan includes unlimited seats and priority support.", slog.Default())
	if p.Text != "The Pro plan includes unlimited seats and priority support." {
		t.Fatalf("unexpected text: %q", p.Text)
	}
	if len(p.Directives) != 0 {
		t.Fatalf("expected no directives, got %+v", p.Directives)
	}
}

func TestSplit_ExtractsKnownDirective(t *testing.T) {
	out := "Here's the pricing section.\n" + `{"action":"scroll","section":"pricing"}` + "\nLet me know if you have questions."
	p := Split(out, slog.Default())
	if len(p.Directives) != 1 {
		t.Fatalf("expected 1 directive, got %+v", p.Directives)
	}
	if p.Directives[0].Action != ActionScroll || p.Directives[0].Section != "pricing" {
		t.Fatalf("unexpected directive: %+v", p.Directives[0])
	}
	if p.Text != "Here's the pricing section. Let me know if you have questions." {
		t.Fatalf("unexpected prose: %q", p.Text)
	}
}

func TestSplit_MalformedJSONFallsThroughAsText(t *testing.T) {
	out := `{"action": "scroll", "section":}`
	p := Split(out, slog.Default())
	if len(p.Directives) != 0 {
		t.Fatalf("expected no directives for malformed JSON, got %+v", p.Directives)
	}
	if p.Text != out {
		t.Fatalf("expected malformed JSON line preserved as text, got %q", p.Text)
	}
}

func TestSplit_UnknownActionIsIgnoredNotGuessed(t *testing.T) {
	out := "Sure thing.\n" + `{"action":"teleport","element":"hero"}`
	p := Split(out, slog.Default())
	if len(p.Directives) != 0 {
		t.Fatalf("expected unknown action to be dropped, got %+v", p.Directives)
	}
	if p.Text != "Sure thing." {
		t.Fatalf("unexpected prose: %q", p.Text)
	}
}

func TestSplit_DirectiveMissingRequiredFieldsIsIgnored(t *testing.T) {
	out := `{"action":"highlight"}`
	p := Split(out, slog.Default())
	if len(p.Directives) != 0 {
		t.Fatalf("expected directive missing element/section to be dropped, got %+v", p.Directives)
	}
}

func TestSplit_MultipleDirectivesPreserveOrder(t *testing.T) {
	out := `{"action":"scroll","section":"pricing"}` + "\n" + `{"action":"pulse_cta","element":"signup button"}`
	p := Split(out, slog.Default())
	if len(p.Directives) != 2 {
		t.Fatalf("expected 2 directives, got %+v", p.Directives)
	}
	if p.Directives[0].Action != ActionScroll || p.Directives[1].Action != ActionPulseCTA {
		t.Fatalf("unexpected order: %+v", p.Directives)
	}
}
