package protocol

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestDecodeClientMessage_Hello(t *testing.T) {
	raw := []byte(`{
		"type":"hello",
		"protocol_version":"1",
		"voice":{"voice_id":"v1","language":"en"}
	}`)

	msg, err := DecodeClientMessage(raw)
	if err != nil {
		t.Fatalf("DecodeClientMessage() error = %v", err)
	}
	hello, ok := msg.(ClientHello)
	if !ok {
		t.Fatalf("decoded type = %T, want ClientHello", msg)
	}
	if hello.ProtocolVersion != "1" {
		t.Fatalf("protocol_version=%q", hello.ProtocolVersion)
	}
}

func TestDecodeClientMessage_HelloWithSeededMessages(t *testing.T) {
	raw := []byte(`{
		"type":"hello",
		"protocol_version":"1",
		"messages":[
			{"role":"user","text":"seed user"},
			{"role":"assistant","text":"seed assistant"}
		]
	}`)

	msg, err := DecodeClientMessage(raw)
	if err != nil {
		t.Fatalf("DecodeClientMessage() error = %v", err)
	}
	hello := msg.(ClientHello)
	if len(hello.Messages) != 2 {
		t.Fatalf("messages=%+v", hello.Messages)
	}
}

func TestValidateHello_RejectsBadRole(t *testing.T) {
	err := ValidateHello(ClientHello{
		Type:            "hello",
		ProtocolVersion: "1",
		Messages:        []HelloMessage{{Role: "system", Text: "nope"}},
	})
	if err == nil {
		t.Fatal("expected error")
	}
}

func TestDecodeClientMessage_HelloMissingRequired(t *testing.T) {
	raw := []byte(`{"type":"hello"}`)
	_, err := DecodeClientMessage(raw)
	if err == nil {
		t.Fatalf("expected error")
	}
	decErr, ok := err.(*DecodeError)
	if !ok {
		t.Fatalf("err type = %T", err)
	}
	if decErr.Code != "bad_request" {
		t.Fatalf("code=%q", decErr.Code)
	}
}

func TestDecodeClientMessage_UnsupportedControlOp(t *testing.T) {
	raw := []byte(`{"type":"control","op":"reboot"}`)
	_, err := DecodeClientMessage(raw)
	if err == nil {
		t.Fatalf("expected error")
	}
	decErr, ok := err.(*DecodeError)
	if !ok {
		t.Fatalf("err type = %T", err)
	}
	if decErr.Code != "unsupported" {
		t.Fatalf("code=%q", decErr.Code)
	}
}

func TestDecodeClientMessage_TranscriptDelta(t *testing.T) {
	raw := []byte(`{"type":"transcript_delta","text":"hello there","is_final":true}`)
	msg, err := DecodeClientMessage(raw)
	if err != nil {
		t.Fatalf("DecodeClientMessage() error = %v", err)
	}
	delta, ok := msg.(ClientTranscriptDelta)
	if !ok {
		t.Fatalf("decoded type = %T, want ClientTranscriptDelta", msg)
	}
	if !delta.IsFinal || delta.Text != "hello there" {
		t.Fatalf("delta=%+v", delta)
	}
}

func TestDecodeClientMessage_DirectiveAckRequiresID(t *testing.T) {
	raw := []byte(`{"type":"directive_ack","status":"restored"}`)
	_, err := DecodeClientMessage(raw)
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestDecodeClientMessage_BehaviorEventRequiresKind(t *testing.T) {
	raw := []byte(`{"type":"behavior_event","data":{"x":1}}`)
	_, err := DecodeClientMessage(raw)
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestDecodeClientMessage_PageContextUpdate(t *testing.T) {
	raw := []byte(`{"type":"page_context_update","url":"https://example.com","html":"<div>hi</div>"}`)
	msg, err := DecodeClientMessage(raw)
	if err != nil {
		t.Fatalf("DecodeClientMessage() error = %v", err)
	}
	update, ok := msg.(ClientPageContextUpdate)
	if !ok {
		t.Fatalf("decoded type = %T, want ClientPageContextUpdate", msg)
	}
	if update.HTML != "<div>hi</div>" {
		t.Fatalf("html=%q", update.HTML)
	}
}

func TestDecodeClientMessage_PageContextUpdateRequiresHTML(t *testing.T) {
	raw := []byte(`{"type":"page_context_update","url":"https://example.com"}`)
	_, err := DecodeClientMessage(raw)
	if err == nil {
		t.Fatalf("expected error")
	}
}

func TestClientHelloRedaction(t *testing.T) {
	h := ClientHello{
		Type:             "hello",
		ProtocolVersion:  "1",
		Auth:             &HelloAuth{GatewayAPIKey: "vai_sk_secret"},
		PageContextToken: "pctok_secret_abc",
	}

	redacted := h.RedactedForLog()
	blob, err := json.Marshal(redacted)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(blob) == "" {
		t.Fatalf("empty redacted payload")
	}
	if strings.Contains(string(blob), "secret") {
		t.Fatalf("redacted payload leaked secret: %s", string(blob))
	}
	if !strings.Contains(string(blob), "has_page_context") {
		t.Fatalf("expected has_page_context in redacted payload: %s", string(blob))
	}
}
