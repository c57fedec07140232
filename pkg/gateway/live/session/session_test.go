package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/vango-go/salesagent-gateway/pkg/core/actions"
	"github.com/vango-go/salesagent-gateway/pkg/core/behavior"
	"github.com/vango-go/salesagent-gateway/pkg/core/cache"
	"github.com/vango-go/salesagent-gateway/pkg/core/flow"
	"github.com/vango-go/salesagent-gateway/pkg/core/llm"
	"github.com/vango-go/salesagent-gateway/pkg/core/pagecontext"
	"github.com/vango-go/salesagent-gateway/pkg/core/triggers"
	"github.com/vango-go/salesagent-gateway/pkg/gateway/live/protocol"
)

type fakeLLM struct {
	reply string
	err   error
}

func (f *fakeLLM) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Text: f.reply}, nil
}

func newTestSession(t *testing.T, client llm.Client) *LiveSession {
	t.Helper()
	return &LiveSession{
		logger:           slog.Default(),
		llmClient:        client,
		sessionID:        "sess_1",
		ctx:              context.Background(),
		outboundPriority: make(chan outboundFrame, 8),
		outboundNormal:   make(chan outboundFrame, 8),
		canceledAudio:    make(map[string]struct{}),
		history:          newHistoryManager(),
		flowFSM:          flow.New(),
		behavior:         behavior.New(),
		restoreSc:        actions.NewRestoreScheduler(slog.Default()),
		voiceState:       stateListening,
	}
}

func drainText(t *testing.T, ch chan outboundFrame) string {
	t.Helper()
	select {
	case f := <-ch:
		return string(f.textPayload)
	default:
		return ""
	}
}

func TestCommitUtterance_AppendsHistoryAndSendsAssistantFinal(t *testing.T) {
	s := newTestSession(t, &fakeLLM{reply: "The Pro plan includes everything you need."})
	s.commitUtterance("tell me about pricing")

	canonical := s.history.canonicalSnapshot()
	if len(canonical) != 2 {
		t.Fatalf("expected 2 messages (user+assistant), got %d", len(canonical))
	}
	if canonical[0].Role != "user" || canonical[1].Role != "assistant" {
		t.Fatalf("unexpected roles: %+v", canonical)
	}

	var sawAssistantFinal bool
	for {
		frame := drainText(t, s.outboundNormal)
		if frame == "" {
			break
		}
		if strings.Contains(frame, "assistant_text_final") {
			sawAssistantFinal = true
		}
	}
	if !sawAssistantFinal {
		t.Fatalf("expected an assistant_text_final frame on the outbound queue")
	}
}

func TestCommitUtterance_LLMErrorSendsSessionErrorAndReturnsToListening(t *testing.T) {
	s := newTestSession(t, &fakeLLM{err: context.DeadlineExceeded})
	s.commitUtterance("hello")

	if s.voiceState != stateListening {
		t.Fatalf("expected voiceState listening after llm error, got %s", s.voiceState)
	}

	var sawError bool
	for {
		frame := drainText(t, s.outboundPriority)
		if frame == "" {
			break
		}
		var decoded map[string]any
		if err := json.Unmarshal([]byte(frame), &decoded); err == nil && decoded["type"] == "error" {
			sawError = true
		}
	}
	if !sawError {
		t.Fatalf("expected a priority error frame")
	}
}

func TestCommitUtterance_ActionDirectiveFromLLMIsDispatched(t *testing.T) {
	s := newTestSession(t, &fakeLLM{reply: "Here you go.\n" + `{"action":"highlight","section":"pricing"}`})
	s.pageCtx = &pagecontext.PageContext{Sections: []pagecontext.Section{{ID: "pricing", Heading: "Pricing"}}}
	s.commitUtterance("show me pricing")

	if s.restoreSc.PendingCount() != 1 {
		t.Fatalf("expected the restore scheduler to have one armed directive, got %d", s.restoreSc.PendingCount())
	}

	var sawDirective bool
	for {
		frame := drainText(t, s.outboundNormal)
		if frame == "" {
			break
		}
		if strings.Contains(frame, `"type":"directive"`) {
			sawDirective = true
		}
	}
	if !sawDirective {
		t.Fatalf("expected a directive frame on the outbound queue")
	}
}

func TestOnTranscriptDelta_FinalCommitsImmediately(t *testing.T) {
	s := newTestSession(t, &fakeLLM{reply: "got it"})
	s.onTranscriptDelta(protocol.ClientTranscriptDelta{Text: "what's the price", IsFinal: true})

	canonical := s.history.canonicalSnapshot()
	if len(canonical) == 0 || canonical[0].Text != "what's the price" {
		t.Fatalf("expected final transcript to commit immediately, history=%+v", canonical)
	}
}

func TestOnTranscriptDelta_PartialDuringAISpeakingIsIgnored(t *testing.T) {
	s := newTestSession(t, &fakeLLM{reply: "ignored"})
	s.voiceState = stateAISpeaking
	s.onTranscriptDelta(protocol.ClientTranscriptDelta{Text: "interrupting", IsFinal: false})

	if len(s.history.canonicalSnapshot()) != 0 {
		t.Fatalf("expected no commit while ai-speaking")
	}
}

func TestOnTranscriptDelta_SilenceTimerCommitsAfterDelay(t *testing.T) {
	s := newTestSession(t, &fakeLLM{reply: "ok"})
	s.cfg.SilenceCommitDuration = 20 * time.Millisecond
	s.onTranscriptDelta(protocol.ClientTranscriptDelta{Text: "thinking about it", IsFinal: false})

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if len(s.history.canonicalSnapshot()) > 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected silence timer to commit the pending partial")
}

func TestNextDirectiveID_IsUniquePerCall(t *testing.T) {
	s := newTestSession(t, &fakeLLM{})
	first := s.nextDirectiveID()
	second := s.nextDirectiveID()
	if first == second {
		t.Fatalf("expected unique directive IDs, got %q twice", first)
	}
}

func TestCancelCurrentAssistantAudio_MarksCurrentTurnCanceled(t *testing.T) {
	s := newTestSession(t, &fakeLLM{})
	s.currentAssistantID = "a_1"

	if s.isAssistantCanceled("a_1") {
		t.Fatalf("expected a_1 not canceled before cancelCurrentAssistantAudio")
	}
	s.cancelCurrentAssistantAudio()
	if !s.isAssistantCanceled("a_1") {
		t.Fatalf("expected cancelCurrentAssistantAudio to mark the in-flight turn canceled")
	}
}

func TestOnControl_InterruptClearsCurrentSpeakState(t *testing.T) {
	s := newTestSession(t, &fakeLLM{})
	canceled := false
	s.currentAssistantID = "a_1"
	s.currentSpeakCancel = func() { canceled = true }
	s.voiceState = stateAISpeaking

	s.onControl(protocol.ClientControl{Type: "control", Op: "interrupt"})

	if !canceled {
		t.Fatalf("expected interrupt to invoke the stored TTS cancel func")
	}
	if !s.isAssistantCanceled("a_1") {
		t.Fatalf("expected interrupt to mark the interrupted turn's audio canceled")
	}
	s.mu.Lock()
	cleared := s.currentSpeakCancel == nil && s.currentStream == nil && s.currentAssistantID == ""
	s.mu.Unlock()
	if !cleared {
		t.Fatalf("expected interrupt to clear the current-speak bookkeeping")
	}
	if s.voiceState != stateListening {
		t.Fatalf("expected interrupt to return to listening, got %v", s.voiceState)
	}
}

func TestOnControl_CancelTurnFinalizesPlayedHistoryFromSegment(t *testing.T) {
	s := newTestSession(t, &fakeLLM{})
	seg := newSpeechSegment("a_1", "the full response")
	seg.addChunk(make([]byte, 24000/10*2), nil, 24000)
	seg.updateMark(protocol.ClientPlaybackMark{AssistantAudioID: "a_1", PlayedMS: 100, State: "finished"})

	s.currentAssistantID = "a_1"
	s.currentSegment = seg

	s.onControl(protocol.ClientControl{Type: "control", Op: "cancel_turn"})

	played := s.history.playedSnapshot()
	if len(played) == 0 || played[len(played)-1].Text != "the full response" {
		t.Fatalf("expected cancel_turn to append the played prefix to history, got %+v", played)
	}
}

func TestTriggerFire_DeliversProactiveMessageOverOutbound(t *testing.T) {
	s := newTestSession(t, &fakeLLM{})
	s.triggers = triggers.NewEngine([]triggers.Rule{
		{
			ID:       "always_fires",
			Priority: triggers.PriorityCritical,
			Message:  "Anything I can help clarify?",
			Condition: func(behavior.Snapshot, *behavior.Tracker) bool {
				return true
			},
		},
	})
	s.triggers.OnFire(func(rule triggers.Rule) {
		s.deliverProactiveMessage(rule)
	})

	s.triggers.Evaluate(s.behavior.Snapshot(), s.behavior)

	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		frame := drainText(t, s.outboundNormal)
		if strings.Contains(frame, "proactive_message") {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("expected a proactive_message frame on the outbound queue after the rule fired")
}

func TestHandleInbound_DOMMutationFlushesCache(t *testing.T) {
	s := newTestSession(t, &fakeLLM{})
	s.cache = cache.New(time.Minute)
	s.cache.Set(cache.Key("https://example.com", "h"), "stale")

	payload, err := json.Marshal(protocol.ClientBehaviorEvent{
		Type: "behavior_event",
		Kind: string(behavior.EventDOMMutation),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := s.handleInbound(payload); err != nil {
		t.Fatalf("handleInbound: %v", err)
	}

	time.Sleep(cache.MutationDebounce + 50*time.Millisecond)
	if _, ok := s.cache.Get(cache.Key("https://example.com", "h")); ok {
		t.Fatalf("expected the debounced mutation flush to evict the stale entry")
	}
}

func TestHandleInbound_PageContextUpdateRewiresNavigator(t *testing.T) {
	s := newTestSession(t, &fakeLLM{})
	s.cache = cache.New(time.Minute)

	html := `<html><body><section id="pricing"><h2>Pricing</h2><div><h4>Pro</h4><p>$99/mo</p></div></section></body></html>`
	payload, err := json.Marshal(protocol.ClientPageContextUpdate{
		Type: "page_context_update",
		URL:  "https://example.com/pricing",
		HTML: html,
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := s.handleInbound(payload); err != nil {
		t.Fatalf("handleInbound: %v", err)
	}
	if s.pageCtx == nil || len(s.pageCtx.Content.Pricing) == 0 {
		t.Fatalf("expected page_context_update to extract and wire a fresh page context, got %+v", s.pageCtx)
	}

	var sawAck bool
	for {
		frame := drainText(t, s.outboundNormal)
		if frame == "" {
			break
		}
		if strings.Contains(frame, "page_context_ack") {
			sawAck = true
		}
	}
	if !sawAck {
		t.Fatalf("expected a page_context_ack frame on the outbound queue")
	}
}
