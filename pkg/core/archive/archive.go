// Package archive uploads a completed voice session's transcript and audio
// manifest to S3, per spec.md §8's retention requirement that conversation
// history survive past the in-memory session lifetime. Structure (a thin
// client wrapping Put/Get/List around one bucket, returning an s3:// URI
// from every write) is grounded on testforge-hq-testforge's MinIOClient
// (_examples/testforge-hq-testforge/internal/storage/minio.go), adapted
// from minio-go to the real aws-sdk-go-v2 S3 client since this gateway
// talks to AWS S3 directly rather than a self-hosted MinIO deployment.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Config carries the bucket and region a deployment archives transcripts
// into; credentials are resolved through the default AWS credential chain
// (env vars, shared config, instance role), matching how the rest of this
// gateway's dependencies are environment-driven rather than hand-fed keys.
type Config struct {
	Bucket string
	Region string
}

// TurnRecord is one conversational turn archived alongside a session.
type TurnRecord struct {
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Manifest is the full archived record of a voice session: its transcript
// and BANT/SPIN outcome, serialized as a single JSON object under the
// session's key prefix.
type Manifest struct {
	SessionID   string       `json:"sessionId"`
	StartedAt   time.Time    `json:"startedAt"`
	EndedAt     time.Time    `json:"endedAt"`
	Transcript  []TurnRecord `json:"transcript"`
	FinalStage  string       `json:"finalStage"`
	BANTScore   int          `json:"bantScore"`
	ClosingUsed string       `json:"closingUsed,omitempty"`
}

// Client uploads session manifests and raw audio clips to one S3 bucket.
type Client struct {
	s3     *s3.Client
	bucket string
}

func New(ctx context.Context, cfg Config) (*Client, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("archive: load aws config: %w", err)
	}
	return &Client{
		s3:     s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
	}, nil
}

// Enabled reports whether this client is wired to a bucket; callers treat a
// nil *Client the same as a disabled one, so archival is a no-op unless an
// operator configured SALESAGENT_ARCHIVE_S3_BUCKET.
func (c *Client) Enabled() bool {
	return c != nil && c.s3 != nil
}

func manifestKey(sessionID string) string {
	return fmt.Sprintf("sessions/%s/manifest.json", sessionID)
}

func audioKey(sessionID, clipID string) string {
	return fmt.Sprintf("sessions/%s/audio/%s.pcm", sessionID, clipID)
}

// PutManifest serializes m and stores it at sessions/<id>/manifest.json,
// returning the s3:// URI of the written object.
func (c *Client) PutManifest(ctx context.Context, m Manifest) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("archive: client not configured")
	}
	body, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("archive: marshal manifest: %w", err)
	}
	key := manifestKey(m.SessionID)
	if _, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	}); err != nil {
		return "", fmt.Errorf("archive: put manifest: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", c.bucket, key), nil
}

// PutAudioClip archives one PCM16LE audio clip (typically the full
// user-speaking or ai-speaking span) under the session's audio prefix.
func (c *Client) PutAudioClip(ctx context.Context, sessionID, clipID string, pcm []byte) (string, error) {
	if !c.Enabled() {
		return "", fmt.Errorf("archive: client not configured")
	}
	key := audioKey(sessionID, clipID)
	if _, err := c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(pcm),
		ContentType: aws.String("audio/l16"),
	}); err != nil {
		return "", fmt.Errorf("archive: put audio clip: %w", err)
	}
	return fmt.Sprintf("s3://%s/%s", c.bucket, key), nil
}

// GetManifest reads back a previously archived manifest, used by the
// operator console's session-history view.
func (c *Client) GetManifest(ctx context.Context, sessionID string) (*Manifest, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("archive: client not configured")
	}
	out, err := c.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(manifestKey(sessionID)),
	})
	if err != nil {
		return nil, fmt.Errorf("archive: get manifest: %w", err)
	}
	defer out.Body.Close()

	var m Manifest
	if err := json.NewDecoder(out.Body).Decode(&m); err != nil {
		return nil, fmt.Errorf("archive: decode manifest: %w", err)
	}
	return &m, nil
}
