package actions

import (
	"strconv"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/vango-go/salesagent-gateway/pkg/core/pagecontext"
)

func newIDGen() func() string {
	var n int64
	return func() string {
		return "d" + strconv.FormatInt(atomic.AddInt64(&n, 1), 10)
	}
}

func TestScrollToSection_NotFound(t *testing.T) {
	res := ScrollToSection(&pagecontext.PageContext{}, "pricing", newIDGen())
	if res.Success {
		t.Fatal("expected failure for missing section")
	}
	if res.Error != "Section not found" {
		t.Fatalf("unexpected error: %q", res.Error)
	}
}

func TestHighlightElement_ClampsDurationToMax(t *testing.T) {
	res := HighlightElement("#card", 999999, newIDGen())
	if !res.Success {
		t.Fatal("expected success")
	}
	if res.Directives[0].DurationMS != MaxEffectDurationMS {
		t.Fatalf("expected duration clamped to %d, got %d", MaxEffectDurationMS, res.Directives[0].DurationMS)
	}
}

func TestCompareElements_AssignsDistinctColors(t *testing.T) {
	html := `<html><body><div id="a">Starter</div><div id="b">Pro</div></body></html>`
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(html))
	ctx := &pagecontext.PageContext{}
	res := CompareElements([]string{"Starter", "Pro"}, ctx, doc, 0, newIDGen())
	if !res.Success || len(res.Directives) != 2 {
		t.Fatalf("expected 2 directives, got %+v", res)
	}
	if res.Directives[0].Color == res.Directives[1].Color {
		t.Fatal("expected distinct colors per compared element")
	}
}

func TestClickElement_RejectsNonInteractive(t *testing.T) {
	html := `<html><body><div id="card">just a div</div></body></html>`
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(html))
	ctx := &pagecontext.PageContext{}
	res := ClickElement("card", ctx, doc, newIDGen())
	if res.Success {
		t.Fatal("expected click on a non-interactive div to fail")
	}
}

func TestClickElement_AllowsButton(t *testing.T) {
	html := `<html><body><button id="signup-btn">Sign up</button></body></html>`
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(html))
	ctx := &pagecontext.PageContext{}
	res := ClickElement("signup-btn", ctx, doc, newIDGen())
	if !res.Success {
		t.Fatalf("expected click on a button to succeed, got %+v", res)
	}
}

func TestRestoreScheduler_AckCancelsDrop(t *testing.T) {
	s := NewRestoreScheduler(nil)
	dropped := false
	s.Arm("d1", 30, func() { dropped = true })
	if !s.Ack("d1") {
		t.Fatal("expected Ack to find the pending directive")
	}
	time.Sleep(60 * time.Millisecond)
	if dropped {
		t.Fatal("expected no drop after ack")
	}
}

func TestRestoreScheduler_DropsWithoutAck(t *testing.T) {
	s := NewRestoreScheduler(nil)
	done := make(chan struct{})
	s.Arm("d2", 20, func() { close(done) })
	select {
	case <-done:
	case <-time.After(200 * time.Millisecond):
		t.Fatal("expected onDrop to fire when no ack arrives within bound")
	}
}

func TestRestoreScheduler_AckIsIdempotent(t *testing.T) {
	s := NewRestoreScheduler(nil)
	s.Arm("d3", 1000, nil)
	if !s.Ack("d3") {
		t.Fatal("expected first ack to succeed")
	}
	if s.Ack("d3") {
		t.Fatal("expected second ack on the same directive to be a no-op")
	}
}
