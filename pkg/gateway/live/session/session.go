package session

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gorilla/websocket"

	"github.com/vango-go/salesagent-gateway/pkg/core/actions"
	"github.com/vango-go/salesagent-gateway/pkg/core/archive"
	"github.com/vango-go/salesagent-gateway/pkg/core/behavior"
	"github.com/vango-go/salesagent-gateway/pkg/core/billing"
	"github.com/vango-go/salesagent-gateway/pkg/core/cache"
	"github.com/vango-go/salesagent-gateway/pkg/core/dispatch"
	"github.com/vango-go/salesagent-gateway/pkg/core/finder"
	"github.com/vango-go/salesagent-gateway/pkg/core/flow"
	"github.com/vango-go/salesagent-gateway/pkg/core/llm"
	"github.com/vango-go/salesagent-gateway/pkg/core/navigator"
	"github.com/vango-go/salesagent-gateway/pkg/core/pagecontext"
	"github.com/vango-go/salesagent-gateway/pkg/core/prompt"
	"github.com/vango-go/salesagent-gateway/pkg/core/sales"
	"github.com/vango-go/salesagent-gateway/pkg/core/triggers"
	"github.com/vango-go/salesagent-gateway/pkg/core/voice"
	"github.com/vango-go/salesagent-gateway/pkg/core/voice/tts"
	"github.com/vango-go/salesagent-gateway/pkg/gateway/ledger"
	"github.com/vango-go/salesagent-gateway/pkg/gateway/live/protocol"
	"github.com/vango-go/salesagent-gateway/pkg/gateway/live/store"
)

// voiceState is the walkie-talkie state machine from spec.md §4.12:
// idle -> listening -> user-speaking -> processing -> ai-speaking -> listening,
// with a 300ms restart delay after ai-speaking and an 800ms silence timer
// while user-speaking.
type voiceState string

const (
	stateIdle         voiceState = "idle"
	stateListening    voiceState = "listening"
	stateUserSpeaking voiceState = "user-speaking"
	stateProcessing   voiceState = "processing"
	stateAISpeaking   voiceState = "ai-speaking"
)

var errBackpressure = errors.New("live outbound backpressure")

// Dependencies are everything a LiveSession needs to run, supplied by the
// HTTP handler that accepted the WebSocket upgrade.
type Dependencies struct {
	Conn      *websocket.Conn
	Logger    *slog.Logger
	LLM       llm.Client
	TTS       *tts.RemoteClient
	ModelName string
	Hello     protocol.ClientHello
	SessionID string
	Cache     *cache.Cache
	Triggers  *triggers.Engine
	Config    Config
	Now       func() time.Time

	// Ledger persists every committed turn and BANT snapshot durably
	// (pkg/gateway/ledger); a nil Ledger or one backed by an unconfigured
	// DSN makes every persistence call a no-op.
	Ledger *ledger.Store
	// Billing mints Stripe Checkout links for the closing technique's
	// recommended plan (pkg/core/billing); nil disables checkout_url
	// actions.
	Billing     *billing.Client
	PlanPricing billing.PlanPricing
	// Archive uploads the session transcript to S3 once the session ends
	// (pkg/core/archive); nil disables archival.
	Archive *archive.Client
}

// LiveSession drives one WebSocket connection end to end: it owns the
// navigation agent's mutable page context, the conversation flow FSM, the
// behavior tracker, and the turn-taking state machine, and translates
// between wire protocol frames and pkg/core domain calls.
type LiveSession struct {
	conn      *websocket.Conn
	logger    *slog.Logger
	llmClient llm.Client
	ttsClient *tts.RemoteClient
	modelName string
	hello     protocol.ClientHello
	sessionID string
	cfg       Config
	now       func() time.Time

	ctx    context.Context
	cancel context.CancelFunc

	outboundPriority chan outboundFrame
	outboundNormal   chan outboundFrame

	mu                 sync.Mutex
	voiceState         voiceState
	partialText        strings.Builder
	silenceTimer       *time.Timer
	restartTimer       *time.Timer
	assistantSeq       int64
	canceledAudio      map[string]struct{}
	currentSpeakCancel context.CancelFunc
	currentStream      *tts.StreamingContext
	currentAssistantID string
	currentSegment     *speechSegment

	history   *historyManager
	flowFSM   *flow.FSM
	behavior  *behavior.Tracker
	navAgent  *navigator.Agent
	restoreSc *actions.RestoreScheduler
	triggers  *triggers.Engine
	cache     *cache.Cache
	uiStore   *store.Store

	pageCtx *pagecontext.PageContext
	doc     *goquery.Document

	// turnMu serializes commitUtterance: a final transcript arrives on the
	// Run goroutine, a silence-timeout commit arrives on a timer goroutine,
	// and only one turn may touch history/flowFSM/navAgent at a time.
	turnMu           sync.Mutex
	directiveCounter int64

	ledger      *ledger.Store
	billing     *billing.Client
	planPricing billing.PlanPricing
	archive     *archive.Client

	startedAt   time.Time
	turnSeq     int
	lastBANT    sales.BANT
	closingUsed string
}

// New wires a LiveSession together. It does not start any goroutines; call
// Run for that.
func New(deps Dependencies) (*LiveSession, error) {
	if deps.Conn == nil {
		return nil, fmt.Errorf("live session: nil connection")
	}
	if deps.LLM == nil {
		return nil, fmt.Errorf("live session: nil llm client")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	ctx, cancel := context.WithCancel(context.Background())

	s := &LiveSession{
		conn:             deps.Conn,
		logger:           logger,
		llmClient:        deps.LLM,
		ttsClient:        deps.TTS,
		modelName:        deps.ModelName,
		hello:            deps.Hello,
		sessionID:        deps.SessionID,
		cfg:              deps.Config,
		now:              now,
		ctx:              ctx,
		cancel:           cancel,
		outboundPriority: make(chan outboundFrame, 8),
		outboundNormal:   make(chan outboundFrame, 64),
		voiceState:       stateIdle,
		canceledAudio:    make(map[string]struct{}),
		history:          newHistoryManager(),
		flowFSM:          flow.New(),
		behavior:         behavior.New(),
		restoreSc:        actions.NewRestoreScheduler(logger),
		triggers:         deps.Triggers,
		cache:            deps.Cache,
		ledger:           deps.Ledger,
		billing:          deps.Billing,
		planPricing:      deps.PlanPricing,
		archive:          deps.Archive,
		startedAt:        now(),
	}

	if s.triggers != nil {
		s.triggers.OnFire(func(rule triggers.Rule) {
			s.deliverProactiveMessage(rule)
		})
	}

	s.uiStore = store.New(store.State{})
	s.uiStore.Subscribe(func(st store.State) {
		_ = s.sendJSON(protocol.ServerUIState{
			Type:        "ui_state",
			IsOpen:      st.IsOpen,
			IsVoiceMode: st.IsVoiceMode,
			Status:      st.Status,
		})
	})

	for _, m := range deps.Hello.Messages {
		s.history.seed([]Message{{Role: m.Role, Text: m.Text}})
	}

	if s.ledger.Enabled() {
		if err := s.ledger.CreateSession(ctx, ledger.SessionRecord{
			ID:        s.sessionID,
			ClientID:  deps.Hello.Client.Name,
			StartedAt: s.startedAt,
		}); err != nil {
			logger.Warn("live: failed to create ledger session record", "err", err)
		}
	}

	return s, nil
}

// Run drives the session to completion: it starts the behavior tracker,
// the outbound writer, and the inbound read loop, and blocks until the
// connection closes or the context is canceled.
func (s *LiveSession) Run() error {
	defer s.cancel()
	defer s.behavior.Teardown()
	defer s.restoreSc.CancelAll()
	defer s.archiveTranscript()
	defer s.uiStore.Close()

	s.behavior.Init()
	if s.triggers != nil {
		s.triggers.StartPeriodicEval(s.behavior)
		defer s.triggers.Stop()
	}
	s.uiStore.Open()
	if s.hello.Voice != nil {
		s.uiStore.EnterVoiceMode()
	}
	s.setVoiceState(stateListening)

	if err := s.sendHelloAck(); err != nil {
		return err
	}

	writer := &outboundWriter{
		ws:         s.conn,
		ctx:        s.ctx,
		cfg:        s.cfg,
		priority:   s.outboundPriority,
		normal:     s.outboundNormal,
		isCanceled: s.isAssistantCanceled,
	}
	writerDone := make(chan error, 1)
	go func() { writerDone <- writer.Run() }()

	inbound := make(chan inboundFrame, 16)
	go s.readLoop(inbound)

	for {
		select {
		case <-s.ctx.Done():
			return nil
		case err := <-writerDone:
			s.cancel()
			return err
		case frame, ok := <-inbound:
			if !ok {
				s.cancel()
				return nil
			}
			if frame.err != nil {
				s.cancel()
				return nil
			}
			if err := s.handleInbound(frame.data); err != nil {
				s.logger.Warn("live: dropping malformed inbound frame", "err", err)
			}
		}
	}
}

func (s *LiveSession) readLoop(out chan<- inboundFrame) {
	defer close(out)
	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case out <- inboundFrame{err: err}:
			case <-s.ctx.Done():
			}
			return
		}
		select {
		case out <- inboundFrame{data: data}:
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *LiveSession) handleInbound(data []byte) error {
	msg, err := protocol.DecodeClientMessage(data)
	if err != nil {
		return err
	}
	switch m := msg.(type) {
	case protocol.ClientTranscriptDelta:
		s.onTranscriptDelta(m)
	case protocol.ClientControl:
		s.onControl(m)
	case protocol.ClientDirectiveAck:
		s.restoreSc.Ack(m.DirectiveID)
	case protocol.ClientPlaybackMark:
		s.onPlaybackMark(m)
	case protocol.ClientBehaviorEvent:
		kind := behavior.EventKind(m.Kind)
		if kind == behavior.EventDOMMutation && s.cache != nil {
			s.cache.OnMutation()
		}
		snap := s.behavior.Record(kind, m.Data)
		if s.triggers != nil {
			s.triggers.Evaluate(snap, s.behavior)
		}
	case protocol.ClientPageContextUpdate:
		ctx, err := s.ExtractPageContext(pagecontext.Input{
			URL:                m.URL,
			HTML:               m.HTML,
			ScrollPosition:     m.ScrollPosition,
			ViewportHeight:     m.ViewportHeight,
			ViewportWidth:      m.ViewportWidth,
			InvisibleSelectors: m.InvisibleSelectors,
		})
		if err != nil {
			s.logger.Warn("live: page_context_update extraction failed", "err", err)
			return nil
		}
		_ = s.sendJSON(protocol.ServerPageContextAck{Type: "page_context_ack", SectionCount: len(ctx.Sections)})
	}
	return nil
}

// onTranscriptDelta implements spec.md §4.12's silence-timer half of the
// turn-taking machine: a partial transcript resets the 800ms timer and
// moves idle/listening into user-speaking; a final commits the utterance
// immediately without waiting out the timer.
func (s *LiveSession) onTranscriptDelta(m protocol.ClientTranscriptDelta) {
	s.mu.Lock()
	if s.voiceState == stateAISpeaking || s.voiceState == stateProcessing {
		s.mu.Unlock()
		return
	}
	s.voiceState = stateUserSpeaking
	text := strings.TrimSpace(m.Text)
	if text != "" {
		s.partialText.Reset()
		s.partialText.WriteString(text)
	}
	if s.silenceTimer != nil {
		s.silenceTimer.Stop()
	}
	if m.IsFinal {
		s.mu.Unlock()
		s.commitUtterance(text)
		return
	}
	silence := s.cfg.SilenceCommitDuration
	if silence <= 0 {
		silence = 800 * time.Millisecond
	}
	s.silenceTimer = time.AfterFunc(silence, func() {
		s.mu.Lock()
		pending := s.partialText.String()
		s.mu.Unlock()
		if strings.TrimSpace(pending) != "" {
			s.commitUtterance(pending)
		}
	})
	s.mu.Unlock()
}

func (s *LiveSession) onControl(m protocol.ClientControl) {
	switch m.Op {
	case "interrupt", "cancel_turn":
		s.interruptSpeaking()
		s.setVoiceState(stateListening)
	case "end_session":
		s.cancel()
	}
}

// interruptSpeaking implements spec.md §8 Testable Scenario 4: it stops the
// in-flight TTS stream within one cycle, tells the vendor to drop whatever
// it has already queued for this turn, marks the turn's audio frames
// canceled so the outbound writer drops any still in flight, and trims the
// played history track to whatever the client actually played.
func (s *LiveSession) interruptSpeaking() {
	s.cancelCurrentAssistantAudio()

	s.mu.Lock()
	cancel := s.currentSpeakCancel
	stream := s.currentStream
	segment := s.currentSegment
	s.currentSpeakCancel = nil
	s.currentStream = nil
	s.currentAssistantID = ""
	s.currentSegment = nil
	s.mu.Unlock()

	if stream != nil {
		_ = s.ttsClient.Clear(stream, "")
		_ = stream.Close()
	}
	if cancel != nil {
		cancel()
	}
	if segment != nil {
		s.finalizePlayedSegment(segment)
	}
}

func (s *LiveSession) onPlaybackMark(m protocol.ClientPlaybackMark) {
	s.mu.Lock()
	segment := s.currentSegment
	s.mu.Unlock()
	if segment == nil || segment.id != m.AssistantAudioID {
		return
	}
	segment.updateMark(m)
	if segment.shouldFinalizeFromMark() {
		s.finalizePlayedSegment(segment)
	}
}

// finalizePlayedSegment writes the portion of an assistant turn the client
// actually played into the played history track, so a barge-in never leaves
// text the user never heard in the conversation history sent back to the LLM.
func (s *LiveSession) finalizePlayedSegment(segment *speechSegment) {
	if !segment.markFinalized() {
		return
	}
	prefix := segment.playedPrefix(24000)
	if strings.TrimSpace(prefix) == "" {
		return
	}
	s.history.appendAssistantPlayed(prefix)
}

// commitUtterance runs one full turn: intent -> navigation -> flow advance
// -> sales scoring -> prompt build -> LLM call -> response dispatch.
func (s *LiveSession) commitUtterance(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		return
	}
	s.turnMu.Lock()
	defer s.turnMu.Unlock()

	s.setVoiceState(stateProcessing)
	s.history.appendUser(text)
	_ = s.sendJSON(protocol.ServerTranscriptFinal{Type: "transcript_final", Text: text})

	stage := s.flowFSM.Advance(text)
	s.storeTurn("user", text, string(stage))
	fragment := s.flowFSM.PromptFragment()

	var navOutcome navigator.Outcome
	if s.navAgent != nil {
		navOutcome = s.navAgent.Navigate(text)
		for _, d := range navOutcome.Directives {
			s.pushDirective(d)
		}
	}

	snap := s.behavior.Snapshot()
	canonical := s.history.canonicalSnapshot()
	plainMessages := make([]string, 0, len(canonical))
	for _, m := range canonical {
		if m.Role == "user" {
			plainMessages = append(plainMessages, m.Text)
		}
	}
	profile := sales.BuildProfile(plainMessages, snap)
	bant := sales.ScoreBANT(plainMessages)
	s.lastBANT = bant
	s.storeBANTSnapshot(bant)

	var closingPlan *sales.ClosingPlan
	if stage == flow.StageClosing {
		planName := s.recommendedPlanName()
		plan := sales.BuildClosingPlan(bant, profile, planName)
		s.attachCheckoutLink(&plan, planName)
		s.closingUsed = string(plan.Technique)
		closingPlan = &plan
	}

	systemPrompt := prompt.Build(prompt.Input{
		Context:     s.pageCtx,
		Stage:       stage,
		Fragment:    fragment,
		Profile:     &profile,
		ClosingPlan: closingPlan,
		VoiceMode:   s.hello.Voice != nil,
	})

	llmMessages := make([]llm.Message, 0, len(canonical))
	for _, m := range canonical {
		llmMessages = append(llmMessages, llm.Message{Role: m.Role, Text: m.Text})
	}

	resp, err := s.llmClient.Complete(s.ctx, llm.Request{
		Model:    s.modelName,
		System:   systemPrompt,
		Messages: llmMessages,
	})
	if err != nil {
		s.logger.Error("live: llm completion failed", "err", err)
		_ = s.sendSessionError("llm_transport", "the assistant is temporarily unavailable", false)
		s.setVoiceState(stateListening)
		return
	}

	parsed := dispatch.Split(resp.Text, s.logger)
	for _, d := range parsed.Directives {
		s.dispatchAssistantDirective(d)
	}

	responseText := parsed.Text
	if responseText == "" && navOutcome.Response != "" {
		responseText = navOutcome.Response
	}

	s.history.appendAssistantCanonical(responseText)
	s.storeTurn("assistant", responseText, string(stage))
	assistantID := s.nextAssistantID()
	_ = s.sendAssistantJSON(assistantID, protocol.ServerAssistantTextFinal{
		Type:        "assistant_text_final",
		AssistantID: assistantID,
		Text:        responseText,
	})

	if s.ttsClient != nil && s.hello.Voice != nil {
		s.speak(assistantID, responseText)
		return
	}
	s.setVoiceState(stateListening)
}

// deliverProactiveMessage is the triggers.Engine.OnFire listener: it lands a
// fired rule's message on the client the same way an unprompted assistant
// turn would, and records it in history so a later commitUtterance's LLM
// call sees it as context.
func (s *LiveSession) deliverProactiveMessage(rule triggers.Rule) {
	s.turnMu.Lock()
	defer s.turnMu.Unlock()

	if s.voiceState == stateAISpeaking || s.voiceState == stateUserSpeaking {
		return
	}
	s.history.appendAssistantCanonical(rule.Message)
	s.storeTurn("assistant", rule.Message, "proactive")
	if err := s.sendJSON(protocol.ServerProactiveMessage{
		Type:    "proactive_message",
		RuleID:  rule.ID,
		Message: rule.Message,
	}); err != nil {
		s.logger.Warn("live: failed to deliver proactive message", "rule_id", rule.ID, "err", err)
		return
	}
	if s.ttsClient != nil && s.hello.Voice != nil {
		s.speak(s.nextAssistantID(), rule.Message)
	}
}

func (s *LiveSession) recommendedPlanName() string {
	if s.pageCtx == nil || len(s.pageCtx.Content.Pricing) == 0 {
		return ""
	}
	names := make([]string, 0, len(s.pageCtx.Content.Pricing))
	popular := -1
	for i, p := range s.pageCtx.Content.Pricing {
		names = append(names, p.Plan)
		if p.Popular {
			popular = i
		}
	}
	profile := sales.UserProfile{}
	return sales.RecommendPlan(profile, names, popular)
}

// storeTurn persists one transcript line to the session ledger; a nil or
// disabled ledger makes this a no-op, and a write failure is logged but
// never blocks the conversation.
func (s *LiveSession) storeTurn(role, text, stage string) {
	if !s.ledger.Enabled() {
		return
	}
	s.turnSeq++
	if err := s.ledger.StoreTurn(s.ctx, ledger.TurnRecord{
		SessionID: s.sessionID,
		Seq:       s.turnSeq,
		Role:      role,
		Text:      text,
		Stage:     stage,
		CreatedAt: s.now(),
	}); err != nil {
		s.logger.Warn("live: failed to store turn", "err", err)
	}
}

// storeBANTSnapshot records the BANT score driving this turn's prompt, on
// a 0-100 scale, so the operator console can chart qualification progress
// across a session.
func (s *LiveSession) storeBANTSnapshot(bant sales.BANT) {
	if !s.ledger.Enabled() {
		return
	}
	if err := s.ledger.StoreBANTSnapshot(s.ctx, ledger.BANTSnapshot{
		SessionID:  s.sessionID,
		Budget:     int(bant.Budget * 100),
		Authority:  int(bant.Authority * 100),
		Need:       int(bant.Need * 100),
		Timeline:   int(bant.Timeline * 100),
		Total:      int(bant.Total * 100),
		RecordedAt: s.now(),
	}); err != nil {
		s.logger.Warn("live: failed to store bant snapshot", "err", err)
	}
}

// attachCheckoutLink adds a checkout_url action to plan when billing is
// configured and planName resolves to a Stripe price, extending spec.md
// §4.10's closing-plan actions list with the [NEW] DOMAIN STACK wiring
// SPEC_FULL.md calls for.
func (s *LiveSession) attachCheckoutLink(plan *sales.ClosingPlan, planName string) {
	if !s.billing.Enabled() || planName == "" {
		return
	}
	url, err := s.billing.CreateCheckoutLink(s.ctx, s.planPricing, planName, "")
	if err != nil {
		s.logger.Debug("live: checkout link unavailable", "plan", planName, "err", err)
		return
	}
	plan.Actions = append(plan.Actions, sales.ClosingAction{Type: "checkout_url", Target: url})
}

// archiveTranscript uploads the session's full transcript and BANT outcome
// to S3 and closes out its ledger row; called once from Run's deferred
// teardown so every session, however it ends, leaves a durable record.
func (s *LiveSession) archiveTranscript() {
	endedAt := s.now()
	finalStage := string(s.flowFSM.Stage)

	if s.ledger.Enabled() {
		if err := s.ledger.CloseSession(s.ctx, s.sessionID, endedAt, finalStage, int(s.lastBANT.Total*100), s.closingUsed); err != nil {
			s.logger.Warn("live: failed to close ledger session", "err", err)
		}
	}

	if !s.archive.Enabled() {
		return
	}
	canonical := s.history.canonicalSnapshot()
	turns := make([]archive.TurnRecord, 0, len(canonical))
	for _, m := range canonical {
		turns = append(turns, archive.TurnRecord{Role: m.Role, Text: m.Text, Timestamp: endedAt})
	}
	manifest := archive.Manifest{
		SessionID:   s.sessionID,
		StartedAt:   s.startedAt,
		EndedAt:     endedAt,
		Transcript:  turns,
		FinalStage:  finalStage,
		BANTScore:   int(s.lastBANT.Total * 100),
		ClosingUsed: s.closingUsed,
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := s.archive.PutManifest(ctx, manifest); err != nil {
		s.logger.Warn("live: failed to archive transcript", "err", err)
	}
}

// dispatchAssistantDirective translates a C12 tagged directive into a C5
// action by resolving the target through C4's finder before acting on it —
// scroll/highlight/pulse_cta all need a real CSS selector, not the
// free-text description the model wrote.
func (s *LiveSession) dispatchAssistantDirective(d dispatch.Directive) {
	var result actions.Result
	switch d.Action {
	case dispatch.ActionScroll:
		result = actions.ScrollToSection(s.pageCtx, d.Section, s.nextDirectiveID)
	case dispatch.ActionHighlight:
		selector, ok := s.resolveSelector(d.Element, d.Section)
		if !ok {
			s.logger.Debug("live: could not resolve highlight target", "element", d.Element, "section", d.Section)
			return
		}
		result = actions.HighlightElement(selector, 0, s.nextDirectiveID)
	case dispatch.ActionPulseCTA:
		selector, ok := s.resolveSelector(d.Element, d.Section)
		if !ok {
			s.logger.Debug("live: could not resolve pulse_cta target", "element", d.Element, "section", d.Section)
			return
		}
		result = actions.PulseCTA(selector, s.nextDirectiveID)
	default:
		return
	}
	if !result.Success {
		s.logger.Debug("live: action directive failed", "action", d.Action, "err", result.Error)
		return
	}
	for _, directive := range result.Directives {
		s.pushDirective(directive)
	}
}

// resolveSelector turns a model-written element/section description into a
// stable CSS selector via the Element Finder (C4), falling back to an
// id-based guess when no page context/document is attached (as in tests).
func (s *LiveSession) resolveSelector(element, section string) (string, bool) {
	desc := element
	if desc == "" {
		desc = section
	}
	if desc == "" {
		return "", false
	}
	if ref, ok := finder.Find(desc, s.pageCtx, s.doc); ok {
		return ref.Selector, true
	}
	if section != "" {
		return "#" + section, true
	}
	return "", false
}

func (s *LiveSession) pushDirective(d actions.ActionDirective) {
	s.restoreSc.Arm(d.ID, d.DurationMS, nil)
	_ = s.sendJSON(protocol.ServerDirective{
		Type:        "directive",
		DirectiveID: d.ID,
		Kind:        string(d.Kind),
		Selector:    d.Selector,
		DurationMS:  d.DurationMS,
	})
}

func (s *LiveSession) nextDirectiveID() string {
	s.directiveCounter++
	return fmt.Sprintf("%s-d%d", s.sessionID, s.directiveCounter)
}

// speak feeds responseText to the TTS client and streams the resulting
// audio chunks to the browser, entering ai-speaking and returning to
// listening (after RestartDelay) once synthesis finishes.
func (s *LiveSession) speak(assistantID, text string) {
	s.setVoiceState(stateAISpeaking)

	ttsCtx, cancel := context.WithCancel(s.ctx)
	stream, err := s.ttsClient.NewStreamingContext(ttsCtx, tts.StreamingContextOptions{
		Voice:    s.hello.Voice.VoiceID,
		Language: s.hello.Voice.Language,
		Speed:    s.hello.Voice.Speed,
		Volume:   s.hello.Voice.Volume,
		Emotion:  s.hello.Voice.Emotion,
	})
	if err != nil {
		cancel()
		s.logger.Error("live: tts stream failed to start", "err", err)
		_ = s.sendSessionError("tts_protocol", "speech synthesis is unavailable", false)
		s.setVoiceState(stateListening)
		return
	}

	segment := newSpeechSegment(assistantID, text)
	s.mu.Lock()
	s.currentSpeakCancel = cancel
	s.currentStream = stream
	s.currentAssistantID = assistantID
	s.currentSegment = segment
	s.mu.Unlock()

	_ = s.sendAssistantJSON(assistantID, protocol.ServerAssistantAudioStart{
		Type:             "assistant_audio_start",
		AssistantAudioID: assistantID,
		Format:           protocol.AudioFormat{Encoding: "pcm_s16le", SampleRateHz: 24000, Channels: 1},
	})

	go func() {
		defer cancel()
		buf := voice.NewSentenceBuffer()
		for _, sentence := range buf.Add(text) {
			_ = stream.SendText(sentence, false)
		}
		if remainder := buf.Flush(); remainder != "" {
			_ = stream.SendText(remainder, true)
		} else {
			_ = stream.Flush()
		}
		seq := int64(0)
		for chunk := range stream.Audio() {
			s.mu.Lock()
			s.assistantSeq++
			seq = s.assistantSeq
			s.mu.Unlock()
			segment.addChunk(chunk.Data, convertAlignment(chunk.Alignment), 24000)
			_ = s.sendAssistantJSON(assistantID, protocol.ServerAssistantAudioChunk{
				Type:             "assistant_audio_chunk",
				AssistantAudioID: assistantID,
				Seq:              seq,
				AudioB64:         base64.StdEncoding.EncodeToString(chunk.Data),
			})
		}
		_ = stream.Close()
		_ = s.sendAssistantJSON(assistantID, protocol.ServerAssistantAudioEnd{
			Type:             "assistant_audio_end",
			AssistantAudioID: assistantID,
		})
		if !s.isAssistantCanceled(assistantID) {
			s.finalizeCompletedSegment(segment)
		}
		s.clearCurrentSpeak(assistantID)
		s.finishSpeaking()
	}()
}

// convertAlignment translates the tts package's vendor-neutral alignment
// shape into the wire protocol's, keeping pkg/core/voice/tts free of any
// dependency on pkg/gateway.
func convertAlignment(a *tts.Alignment) *protocol.Alignment {
	if a == nil {
		return nil
	}
	return &protocol.Alignment{
		Chars:       a.Chars,
		CharStartMS: a.CharStartMS,
		CharDurMS:   a.CharDurMS,
	}
}

// finalizeCompletedSegment records the played history entry for a turn that
// ran to completion without a barge-in. Clients that never send playback
// marks (Features.SendPlaybackMarks == false) get the full response text;
// clients that do get whatever playedPrefix computes from the marks.
func (s *LiveSession) finalizeCompletedSegment(segment *speechSegment) {
	if !segment.markFinalized() {
		return
	}
	prefix := segment.playedPrefix(24000)
	if strings.TrimSpace(prefix) == "" || !s.hello.Features.SendPlaybackMarks {
		prefix = segment.fullText
	}
	if strings.TrimSpace(prefix) == "" {
		return
	}
	s.history.appendAssistantPlayed(prefix)
}

func (s *LiveSession) clearCurrentSpeak(assistantID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentAssistantID == assistantID {
		s.currentSpeakCancel = nil
		s.currentStream = nil
		s.currentAssistantID = ""
		s.currentSegment = nil
	}
}

// finishSpeaking implements the 300ms RestartDelay before recognition is
// told it may listen again.
func (s *LiveSession) finishSpeaking() {
	delay := s.cfg.RestartDelay
	if delay <= 0 {
		delay = 300 * time.Millisecond
	}
	s.mu.Lock()
	if s.restartTimer != nil {
		s.restartTimer.Stop()
	}
	s.restartTimer = time.AfterFunc(delay, func() { s.setVoiceState(stateListening) })
	s.mu.Unlock()
}

// cancelCurrentAssistantAudio marks the in-flight assistant turn's audio as
// canceled so the outbound writer drops any frames for it still queued.
func (s *LiveSession) cancelCurrentAssistantAudio() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentAssistantID != "" {
		s.canceledAudio[s.currentAssistantID] = struct{}{}
	}
}

func (s *LiveSession) isAssistantCanceled(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, canceled := s.canceledAudio[id]
	return canceled
}

func (s *LiveSession) setVoiceState(v voiceState) {
	s.mu.Lock()
	if s.voiceState == v {
		s.mu.Unlock()
		return
	}
	s.voiceState = v
	s.mu.Unlock()
	_ = s.sendJSON(protocol.ServerVoiceState{Type: "voice_state", State: string(v)})
}

var assistantIDCounter atomic.Int64

func (s *LiveSession) nextAssistantID() string {
	id := assistantIDCounter.Add(1)
	return fmt.Sprintf("%s-a%d", s.sessionID, id)
}

func (s *LiveSession) sendHelloAck() error {
	ack := protocol.ServerHelloAck{
		Type:            "hello_ack",
		ProtocolVersion: protocol.ProtocolVersion1,
		SessionID:       s.sessionID,
		AudioOut:        protocol.AudioFormat{Encoding: "pcm_s16le", SampleRateHz: 24000, Channels: 1},
		Limits: &protocol.HelloAckLimits{
			SilenceCommitMS:      int(orDefault(s.cfg.SilenceCommitDuration, 800*time.Millisecond).Milliseconds()),
			RestartDelayMS:       int(orDefault(s.cfg.RestartDelay, 300*time.Millisecond).Milliseconds()),
			ErrorRecoveryDelayMS: int(orDefault(s.cfg.ErrorRecoveryDelay, 2*time.Second).Milliseconds()),
		},
	}
	return s.sendJSONPriority(ack)
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d <= 0 {
		return fallback
	}
	return d
}

func (s *LiveSession) sendSessionError(code, message string, close bool) error {
	return s.sendJSONPriority(protocol.ServerError{Type: "error", Code: code, Message: message, Close: close})
}

// SendWarning pushes a non-fatal warning frame. It satisfies
// sessions.Handle.Warn so an operator-triggered broadcast (draining,
// maintenance) can reach every live connection without the tracker knowing
// about the wire protocol.
func (s *LiveSession) SendWarning(code, message string) error {
	return s.sendJSONPriority(protocol.ServerWarning{Type: "warning", Code: code, Message: message})
}

func (s *LiveSession) sendJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.enqueueNormal(outboundFrame{textPayload: payload})
}

func (s *LiveSession) sendJSONPriority(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.enqueuePriority(outboundFrame{textPayload: payload})
}

func (s *LiveSession) sendAssistantJSON(assistantID string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.enqueueNormal(outboundFrame{
		isAssistantAudio: true,
		assistantAudioID: assistantID,
		textPayload:      payload,
	})
}

func (s *LiveSession) enqueueNormal(frame outboundFrame) error {
	if frame.isAssistantAudio && s.isAssistantCanceled(frame.assistantAudioID) {
		return nil
	}
	select {
	case s.outboundNormal <- frame:
		return nil
	default:
		return errBackpressure
	}
}

func (s *LiveSession) enqueuePriority(frame outboundFrame) error {
	select {
	case s.outboundPriority <- frame:
		return nil
	default:
	}
	select {
	case <-s.outboundPriority:
	default:
	}
	select {
	case s.outboundPriority <- frame:
		return nil
	default:
		return errBackpressure
	}
}

// Cancel tears the session down; safe to call more than once.
func (s *LiveSession) Cancel() {
	s.cancel()
}

// UpdatePageContext is called once page-context extraction completes (or
// when the browser reports a DOM mutation), and rewires the navigation
// agent to the fresh context/document pair.
func (s *LiveSession) UpdatePageContext(ctx *pagecontext.PageContext, doc *goquery.Document) {
	s.pageCtx = ctx
	s.doc = doc
	if s.navAgent == nil {
		s.navAgent = navigator.NewAgent(ctx, doc)
		return
	}
	s.navAgent.UpdateContext(ctx, doc)
}

// ExtractPageContext runs C1 against raw HTML, reusing a cached result for
// the same URL and content hash per spec.md §4.2, and rewires the
// navigation agent with the result either way.
func (s *LiveSession) ExtractPageContext(in pagecontext.Input) (*pagecontext.PageContext, error) {
	hash := fmt.Sprintf("%x", cache.RollingHash([]byte(in.HTML)))
	key := cache.Key(in.URL, hash)

	if s.cache != nil {
		if cached, ok := s.cache.Get(key); ok {
			if ctx, ok := cached.(*pagecontext.PageContext); ok {
				doc, _ := goquery.NewDocumentFromReader(strings.NewReader(in.HTML))
				s.UpdatePageContext(ctx, doc)
				return ctx, nil
			}
		}
	}

	ctx, err := pagecontext.Extract(in)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		s.cache.Set(key, ctx)
	}
	doc, _ := goquery.NewDocumentFromReader(strings.NewReader(in.HTML))
	s.UpdatePageContext(ctx, doc)
	return ctx, nil
}

type inboundFrame struct {
	data []byte
	err  error
}
