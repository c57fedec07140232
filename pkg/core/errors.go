// Package core holds the small set of types shared across every gateway
// package: the canonical error envelope and nothing else. The conversation
// engine itself lives under pkg/core/<domain> packages.
package core

import "fmt"

// ErrorType mirrors the handful of error categories the gateway ever returns
// to a caller. Keeping this closed and small makes it trivial for the
// embedding snippet to branch on Type without parsing Message strings.
type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAuthentication  ErrorType = "authentication_error"
	ErrPermission      ErrorType = "permission_error"
	ErrNotFound        ErrorType = "not_found_error"
	ErrRateLimit       ErrorType = "rate_limit_error"
	ErrAPI             ErrorType = "api_error"
	ErrOverloaded      ErrorType = "overloaded_error"
	ErrProvider        ErrorType = "provider_error"
)

// Error is the canonical error envelope returned from every HTTP and
// WebSocket error path in the gateway.
type Error struct {
	Type       ErrorType `json:"type"`
	Message    string    `json:"message"`
	Param      string    `json:"param,omitempty"`
	Code       string    `json:"code,omitempty"`
	RequestID  string    `json:"request_id,omitempty"`
	RetryAfter *int      `json:"retry_after,omitempty"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Param != "" {
		return fmt.Sprintf("%s: %s (param=%s)", e.Type, e.Message, e.Param)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func NewInvalidRequestError(message string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message}
}

func NewInvalidRequestErrorWithParam(message, param string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message, Param: param}
}

func NewNotFoundError(message string) *Error {
	return &Error{Type: ErrNotFound, Message: message}
}

func NewPermissionError(message string) *Error {
	return &Error{Type: ErrPermission, Message: message}
}

// DomainKind distinguishes the conversation-runtime error kinds from spec.md
// §7. These are carried as Code on an *Error so a handler can branch on the
// specific runtime failure without parsing Message strings, while the HTTP
// envelope itself still only ever exposes the small ErrorType set above.
type DomainKind string

const (
	KindContextExtractionSkip  DomainKind = "context_extraction_skip"
	KindIntentLowConfidence    DomainKind = "intent_low_confidence"
	KindActionNotFound         DomainKind = "action_not_found"
	KindActionNonInteractive   DomainKind = "action_non_interactive"
	KindLLMTransport           DomainKind = "llm_transport"
	KindTTSProtocol            DomainKind = "tts_protocol"
	KindTTSDisconnect          DomainKind = "tts_disconnect"
	KindRecognitionUnsupported DomainKind = "recognition_unsupported"
	KindRecognitionTransient   DomainKind = "recognition_transient"
	KindPermissionDenied       DomainKind = "permission_denied"
)

// NewDomainError builds the *Error envelope for one of the §7 runtime error
// kinds. ContextExtractionSkip is deliberately never constructed this way:
// per §7 it is swallowed at the classifier and never bubbles past C1.
func NewDomainError(kind DomainKind, message string) *Error {
	errType := ErrAPI
	switch kind {
	case KindIntentLowConfidence, KindActionNotFound, KindActionNonInteractive:
		errType = ErrInvalidRequest
	case KindPermissionDenied:
		errType = ErrPermission
	case KindRecognitionUnsupported:
		errType = ErrInvalidRequest
	case KindLLMTransport, KindTTSProtocol, KindTTSDisconnect:
		errType = ErrProvider
	}
	return &Error{Type: errType, Message: message, Code: string(kind)}
}
