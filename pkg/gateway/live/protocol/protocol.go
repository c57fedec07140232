package protocol

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	ProtocolVersion1 = "1"

	AlignmentKindChar = "char"
)

type DecodeError struct {
	Code    string
	Message string
	Param   string
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if strings.TrimSpace(e.Param) == "" {
		return e.Message
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Param)
}

func badRequest(message, param string) *DecodeError {
	return &DecodeError{Code: "bad_request", Message: message, Param: param}
}

func unsupported(message, param string) *DecodeError {
	return &DecodeError{Code: "unsupported", Message: message, Param: param}
}

// AudioFormat describes the PCM shape of assistant speech leaving the
// gateway. There is no equivalent audio_in format: recognition happens in
// the browser via the Web Speech API, so nothing but transcript text ever
// arrives from the client.
type AudioFormat struct {
	Encoding     string `json:"encoding"`
	SampleRateHz int    `json:"sample_rate_hz"`
	Channels     int    `json:"channels"`
}

// Alignment carries per-character timing for a chunk of synthesized speech,
// used by the browser to drive caption highlighting in lockstep with
// playback. Not every TTS vendor emits one; HelloAckFeatures advertises
// whether the negotiated voice supports it.
type Alignment struct {
	Kind        string   `json:"kind"`
	Normalized  bool     `json:"normalized"`
	Chars       []string `json:"chars"`
	CharStartMS []int    `json:"char_start_ms"`
	CharDurMS   []int    `json:"char_dur_ms"`
}

type HelloClient struct {
	Name     string `json:"name,omitempty"`
	Version  string `json:"version,omitempty"`
	Platform string `json:"platform,omitempty"`
}

type HelloAuth struct {
	Mode          string `json:"mode,omitempty"`
	GatewayAPIKey string `json:"gateway_api_key,omitempty"`
}

type HelloVoice struct {
	Language string  `json:"language,omitempty"`
	VoiceID  string  `json:"voice_id,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
	Volume   float64 `json:"volume,omitempty"`
	Emotion  string  `json:"emotion,omitempty"`
}

type HelloFeatures struct {
	SendPlaybackMarks      bool `json:"send_playback_marks,omitempty"`
	WantPartialTranscripts bool `json:"want_partial_transcripts,omitempty"`
	WantAssistantText      bool `json:"want_assistant_text,omitempty"`
}

// HelloMessage seeds conversation history at connect time, e.g. when a
// voice session picks up a conversation that started as text chat.
type HelloMessage struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type ClientHello struct {
	Type             string         `json:"type"`
	ProtocolVersion  string         `json:"protocol_version"`
	Client           HelloClient    `json:"client,omitempty"`
	Auth             *HelloAuth     `json:"auth,omitempty"`
	PageContextToken string         `json:"page_context_token,omitempty"`
	Voice            *HelloVoice    `json:"voice,omitempty"`
	Features         HelloFeatures  `json:"features,omitempty"`
	Messages         []HelloMessage `json:"messages,omitempty"`
	ResumeSessionID  string         `json:"resume_session_id,omitempty"`
}

func (h ClientHello) RedactedForLog() map[string]any {
	return map[string]any{
		"type":                  h.Type,
		"protocol_version":      h.ProtocolVersion,
		"features":              h.Features,
		"has_gateway_key":       h.Auth != nil && strings.TrimSpace(h.Auth.GatewayAPIKey) != "",
		"has_page_context":      strings.TrimSpace(h.PageContextToken) != "",
		"seeded_message_count":  len(h.Messages),
	}
}

// ClientTranscriptDelta is the browser's Web Speech API output, forwarded in
// place of raw audio frames. is_final marks utterance completion; partials
// reset the 800ms silence timer described in the conversation flow state
// machine, finals start it.
type ClientTranscriptDelta struct {
	Type    string `json:"type"`
	Text    string `json:"text"`
	IsFinal bool   `json:"is_final"`
}

type ClientPlaybackMark struct {
	Type             string `json:"type"`
	AssistantAudioID string `json:"assistant_audio_id"`
	PlayedMS         int64  `json:"played_ms"`
	BufferedMS       int64  `json:"buffered_ms,omitempty"`
	State            string `json:"state,omitempty"`
}

type ClientControl struct {
	Type string `json:"type"`
	Op   string `json:"op"`
}

// ClientDirectiveAck echoes completion of an ActionDirective the gateway
// pushed (scroll/highlight/click). The RestoreScheduler treats a missing
// ack within the directive's bound as a dropped effect, not a retry.
type ClientDirectiveAck struct {
	Type        string `json:"type"`
	DirectiveID string `json:"directive_id"`
	Status      string `json:"status"`
}

// ClientBehaviorEvent carries a single tracked DOM/session signal over the
// live socket when one is already open, so a voice session never needs the
// separate /v1/behavior-events HTTP fallback.
type ClientBehaviorEvent struct {
	Type      string         `json:"type"`
	Kind      string         `json:"kind"`
	TimestampMS int64        `json:"timestamp_ms,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// ClientPageContextUpdate pushes fresh HTML over an already-open live socket
// when the snippet's mutation observer sees a significant DOM change (e.g.
// a client-side-routed pricing page), so C1 re-extracts without the caller
// needing to round-trip through POST /v1/page-context for a new token.
type ClientPageContextUpdate struct {
	Type               string   `json:"type"`
	URL                string   `json:"url"`
	HTML               string   `json:"html"`
	ScrollPosition     float64  `json:"scroll,omitempty"`
	ViewportHeight     float64  `json:"viewport_height,omitempty"`
	ViewportWidth      float64  `json:"viewport_width,omitempty"`
	InvisibleSelectors []string `json:"invisible_selectors,omitempty"`
}

func DecodeClientMessage(data []byte) (any, error) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, badRequest("invalid json frame", "")
	}
	typ := strings.TrimSpace(envelope.Type)
	if typ == "" {
		return nil, badRequest("missing type", "type")
	}

	switch typ {
	case "hello":
		var msg ClientHello
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid hello frame", "")
		}
		if err := ValidateHello(msg); err != nil {
			return nil, err
		}
		return msg, nil
	case "transcript_delta":
		var msg ClientTranscriptDelta
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid transcript_delta", "")
		}
		return msg, nil
	case "playback_mark":
		var msg ClientPlaybackMark
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid playback_mark", "")
		}
		if strings.TrimSpace(msg.AssistantAudioID) == "" {
			return nil, badRequest("playback_mark.assistant_audio_id is required", "assistant_audio_id")
		}
		if msg.PlayedMS < 0 {
			return nil, badRequest("playback_mark.played_ms must be >= 0", "played_ms")
		}
		return msg, nil
	case "control":
		var msg ClientControl
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid control", "")
		}
		op := strings.TrimSpace(msg.Op)
		if op == "" {
			return nil, badRequest("control.op is required", "op")
		}
		switch op {
		case "interrupt", "cancel_turn", "end_session":
		default:
			return nil, unsupported("unsupported control operation", "op")
		}
		msg.Op = op
		return msg, nil
	case "directive_ack":
		var msg ClientDirectiveAck
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid directive_ack", "")
		}
		if strings.TrimSpace(msg.DirectiveID) == "" {
			return nil, badRequest("directive_ack.directive_id is required", "directive_id")
		}
		return msg, nil
	case "behavior_event":
		var msg ClientBehaviorEvent
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid behavior_event", "")
		}
		if strings.TrimSpace(msg.Kind) == "" {
			return nil, badRequest("behavior_event.kind is required", "kind")
		}
		return msg, nil
	case "page_context_update":
		var msg ClientPageContextUpdate
		if err := json.Unmarshal(data, &msg); err != nil {
			return nil, badRequest("invalid page_context_update", "")
		}
		if strings.TrimSpace(msg.HTML) == "" {
			return nil, badRequest("page_context_update.html is required", "html")
		}
		return msg, nil
	default:
		return nil, badRequest("unsupported message type", "type")
	}
}

func ValidateHello(msg ClientHello) error {
	if strings.TrimSpace(msg.ProtocolVersion) == "" {
		return badRequest("hello.protocol_version is required", "protocol_version")
	}
	for i, m := range msg.Messages {
		role := strings.TrimSpace(m.Role)
		if role != "user" && role != "assistant" {
			return badRequest("hello.messages[].role must be user or assistant", fmt.Sprintf("messages[%d].role", i))
		}
	}
	return nil
}

type HelloAckFeatures struct {
	SupportsAlignment bool   `json:"supports_alignment"`
	AlignmentKind     string `json:"alignment_kind,omitempty"`
}

type HelloAckResume struct {
	Supported bool   `json:"supported"`
	Accepted  bool   `json:"accepted"`
	Reason    string `json:"reason,omitempty"`
}

type HelloAckLimits struct {
	SilenceCommitMS      int `json:"silence_commit_ms"`
	RestartDelayMS       int `json:"restart_delay_ms"`
	ErrorRecoveryDelayMS int `json:"error_recovery_delay_ms"`
	RunTimeoutMS         int `json:"run_timeout_ms,omitempty"`
}

type ServerHelloAck struct {
	Type            string           `json:"type"`
	ProtocolVersion string           `json:"protocol_version"`
	SessionID       string           `json:"session_id"`
	AudioOut        AudioFormat      `json:"audio_out"`
	Features        HelloAckFeatures `json:"features"`
	Resume          HelloAckResume   `json:"resume"`
	Limits          *HelloAckLimits  `json:"limits,omitempty"`
}

type ServerError struct {
	Type      string         `json:"type"`
	Scope     string         `json:"scope,omitempty"`
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable,omitempty"`
	Close     bool           `json:"close,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

type ServerWarning struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ServerUIState mirrors C14's {isOpen, isVoiceMode, status} value object.
// The snippet renders whatever it is told; close-debounce and
// hover-suppression timing live here, not in client JS.
type ServerUIState struct {
	Type        string `json:"type"`
	IsOpen      bool   `json:"is_open"`
	IsVoiceMode bool   `json:"is_voice_mode"`
	Status      string `json:"status"`
}

// ServerVoiceState announces a transition in the walkie-talkie state
// machine (idle/listening/user-speaking/processing/ai-speaking) so the
// snippet can render a mic indicator without reimplementing the timers.
type ServerVoiceState struct {
	Type  string `json:"type"`
	State string `json:"state"`
}

type ServerTranscriptFinal struct {
	Type        string `json:"type"`
	UtteranceID string `json:"utterance_id"`
	Text        string `json:"text"`
}

type ServerAssistantTextDelta struct {
	Type        string `json:"type"`
	AssistantID string `json:"assistant_id"`
	Delta       string `json:"delta"`
}

type ServerAssistantTextFinal struct {
	Type        string `json:"type"`
	AssistantID string `json:"assistant_id"`
	Text        string `json:"text"`
}

type ServerAssistantAudioStart struct {
	Type             string      `json:"type"`
	AssistantAudioID string      `json:"assistant_audio_id"`
	Format           AudioFormat `json:"format"`
}

type ServerAssistantAudioChunk struct {
	Type             string     `json:"type"`
	AssistantAudioID string     `json:"assistant_audio_id"`
	Seq              int64      `json:"seq"`
	AudioB64         string     `json:"audio_b64,omitempty"`
	Alignment        *Alignment `json:"alignment,omitempty"`
}

type ServerAssistantAudioEnd struct {
	Type             string `json:"type"`
	AssistantAudioID string `json:"assistant_audio_id"`
}

type ServerAudioReset struct {
	Type             string `json:"type"`
	Reason           string `json:"reason"`
	AssistantAudioID string `json:"assistant_audio_id,omitempty"`
}

// ServerPageContextAck confirms a page_context_update was extracted and the
// navigation agent rewired, so the snippet knows a stale directive sent
// just before the mutation won't be acted on against the old DOM.
type ServerPageContextAck struct {
	Type         string `json:"type"`
	SectionCount int    `json:"section_count"`
}

// ServerProactiveMessage is C8's deliverable: a triggers.Rule fired after
// its DelayMS elapsed, carried to the client the same way an
// assistant_text_final is, but tagged so the snippet can render it without
// implying the user asked a question.
type ServerProactiveMessage struct {
	Type    string `json:"type"`
	RuleID  string `json:"rule_id"`
	Message string `json:"message"`
}

// ServerDirective is C5's ActionDirective put on the wire: the gateway
// decided the visual effect and its exact timing, the snippet just carries
// it out and acks with directive_ack once restored.
type ServerDirective struct {
	Type        string `json:"type"`
	DirectiveID string `json:"directive_id"`
	Kind        string `json:"kind"`
	Selector    string `json:"selector"`
	DurationMS  int    `json:"duration_ms,omitempty"`
}
