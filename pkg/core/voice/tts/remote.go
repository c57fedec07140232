package tts

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// RemoteClient speaks the vendor-neutral streaming TTS contract: a single
// WebSocket connection per context_id, fed incremental text and drained for
// base64 audio chunks until the server reports isFinalAudio. Barge-in sends
// {"type":"clear","context_id":...} to drop whatever the server has already
// queued without tearing down the socket.
type RemoteClient struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewRemoteClient(baseURL, apiKey string) *RemoteClient {
	return &RemoteClient{BaseURL: baseURL, APIKey: apiKey}
}

func (c *RemoteClient) Name() string { return "remote_ws" }

type wireInit struct {
	VoiceConfig wireVoiceConfig `json:"voice_config"`
	ContextID   string          `json:"context_id"`
}

type wireVoiceConfig struct {
	VoiceID  string  `json:"voice_id,omitempty"`
	Language string  `json:"language,omitempty"`
	Speed    float64 `json:"speed,omitempty"`
	Volume   float64 `json:"volume,omitempty"`
	Emotion  string  `json:"emotion,omitempty"`
	Format   string  `json:"format,omitempty"`
}

type wireTextChunk struct {
	Text      string `json:"text"`
	ContextID string `json:"context_id"`
	End       bool   `json:"end,omitempty"`
}

type wireClear struct {
	Type      string `json:"type"`
	ContextID string `json:"context_id"`
}

type wireServerMsg struct {
	Audio       string `json:"audio,omitempty"`
	IsFinal     bool   `json:"isFinalAudio,omitempty"`
	Error       string `json:"error,omitempty"`
	Alignment   *wireServerAlignment `json:"alignment,omitempty"`
}

type wireServerAlignment struct {
	Chars       []string `json:"chars"`
	CharStartMS []int    `json:"char_start_times_ms"`
	CharDurMS   []int    `json:"char_durations_ms"`
}

func (c *RemoteClient) NewStreamingContext(ctx context.Context, opts StreamingContextOptions) (*StreamingContext, error) {
	if strings.TrimSpace(c.BaseURL) == "" {
		return nil, fmt.Errorf("tts: remote base url not configured")
	}
	contextID := fmt.Sprintf("ctx_%d", time.Now().UnixNano())

	header := http.Header{}
	if c.APIKey != "" {
		header.Set("Authorization", "Bearer "+c.APIKey)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.BaseURL, header)
	if err != nil {
		return nil, fmt.Errorf("tts: dial remote: %w", err)
	}

	format := opts.Format
	if format == "" {
		format = "pcm"
	}
	init := wireInit{
		VoiceConfig: wireVoiceConfig{
			VoiceID:  opts.Voice,
			Language: opts.Language,
			Speed:    opts.Speed,
			Volume:   opts.Volume,
			Emotion:  opts.Emotion,
			Format:   format,
		},
		ContextID: contextID,
	}
	if err := conn.WriteJSON(init); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("tts: send init: %w", err)
	}

	sc := NewStreamingContext()
	var closeOnce sync.Once
	closeConn := func() error {
		var err error
		closeOnce.Do(func() {
			err = conn.Close()
		})
		return err
	}

	sc.SendFunc = func(text string, isFinal bool) error {
		return conn.WriteJSON(wireTextChunk{Text: text, ContextID: contextID, End: isFinal})
	}
	sc.CloseFunc = closeConn
	sc.ClearFunc = func(id string) error {
		if strings.TrimSpace(id) == "" {
			id = contextID
		}
		return conn.WriteJSON(wireClear{Type: "clear", ContextID: id})
	}

	go func() {
		defer sc.FinishAudio()
		defer closeConn()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				select {
				case <-sc.Done():
				default:
					sc.SetError(err)
				}
				return
			}
			var msg wireServerMsg
			if err := json.Unmarshal(data, &msg); err != nil {
				continue
			}
			if msg.Error != "" {
				sc.SetError(fmt.Errorf("tts: remote error: %s", msg.Error))
				return
			}
			if msg.Audio != "" {
				audio, err := base64.StdEncoding.DecodeString(msg.Audio)
				if err == nil {
					chunk := AudioChunk{Data: audio}
					if msg.Alignment != nil && len(msg.Alignment.Chars) > 0 {
						chunk.Alignment = &Alignment{
							Chars:       msg.Alignment.Chars,
							CharStartMS: msg.Alignment.CharStartMS,
							CharDurMS:   msg.Alignment.CharDurMS,
						}
					}
					if !sc.PushAudio(chunk) {
						return
					}
				}
			}
			if msg.IsFinal {
				return
			}
		}
	}()

	return sc, nil
}

// Clear sends the barge-in signal for contextID without closing the
// underlying streaming context; callers are expected to also stop reading
// once they've flushed whatever the channel still has queued.
func (c *RemoteClient) Clear(sc *StreamingContext, contextID string) error {
	if sc == nil {
		return nil
	}
	return sc.SendClear(contextID)
}

func (c *RemoteClient) Synthesize(ctx context.Context, text string, opts SynthesizeOptions) (*Synthesis, error) {
	sc, err := c.NewStreamingContext(ctx, StreamingContextOptions{
		Voice: opts.Voice, Speed: opts.Speed, Volume: opts.Volume,
		Emotion: opts.Emotion, Language: opts.Language, Format: opts.Format, SampleRate: opts.SampleRate,
	})
	if err != nil {
		return nil, err
	}
	defer sc.Close()
	if err := sc.SendText(text, true); err != nil {
		return nil, err
	}
	var buf []byte
	for chunk := range sc.Audio() {
		buf = append(buf, chunk.Data...)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return &Synthesis{Audio: buf, Format: opts.Format}, nil
}

func (c *RemoteClient) SynthesizeStream(ctx context.Context, text string, opts SynthesizeOptions) (*SynthesisStream, error) {
	sc, err := c.NewStreamingContext(ctx, StreamingContextOptions{
		Voice: opts.Voice, Speed: opts.Speed, Volume: opts.Volume,
		Emotion: opts.Emotion, Language: opts.Language, Format: opts.Format, SampleRate: opts.SampleRate,
	})
	if err != nil {
		return nil, err
	}
	stream := NewSynthesisStream()
	go func() {
		defer stream.FinishSending()
		defer stream.Close()
		if err := sc.SendText(text, true); err != nil {
			stream.SetError(err)
			return
		}
		for chunk := range sc.Audio() {
			if !stream.Send(chunk.Data) {
				break
			}
		}
		stream.SetError(sc.Err())
	}()
	return stream, nil
}

var _ Provider = (*RemoteClient)(nil)
