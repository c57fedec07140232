package session

import (
	"strings"
	"time"
)

// Config holds the per-connection tunables for a live voice session,
// mirroring the teacher's live Config fields but trimmed to the
// client-side-recognition design: there is no inbound audio rate limiting
// because no raw audio ever arrives.
type Config struct {
	PingInterval time.Duration
	WriteTimeout time.Duration
	ReadTimeout  time.Duration

	// SilenceCommitDuration is the walkie-talkie 800ms silence timer
	// (spec.md §4.12): a partial transcript resets it, a final starts it,
	// and it firing ends the user's turn.
	SilenceCommitDuration time.Duration
	// RestartDelay is the 300ms pause before recognition is told to
	// restart after the assistant finishes speaking.
	RestartDelay time.Duration
	// ErrorRecoveryDelay is the 2s backoff before retrying recognition
	// after a recognition error.
	ErrorRecoveryDelay time.Duration

	TurnTimeout         time.Duration
	MaxUnplayedDuration time.Duration
	PlaybackStopWait    time.Duration
}

type binaryPair struct {
	header []byte
	data   []byte
}

type outboundFrame struct {
	textPayload      []byte
	binaryPayload    []byte
	binaryPair       *binaryPair
	isAssistantAudio bool
	assistantAudioID string
}

func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
