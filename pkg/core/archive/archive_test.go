package archive

import (
	"context"
	"testing"
)

func TestClient_Enabled(t *testing.T) {
	var nilClient *Client
	if nilClient.Enabled() {
		t.Fatalf("nil client should report disabled")
	}
}

func TestManifestKey(t *testing.T) {
	if got, want := manifestKey("sess-123"), "sessions/sess-123/manifest.json"; got != want {
		t.Fatalf("manifestKey = %q, want %q", got, want)
	}
}

func TestAudioKey(t *testing.T) {
	if got, want := audioKey("sess-123", "clip-1"), "sessions/sess-123/audio/clip-1.pcm"; got != want {
		t.Fatalf("audioKey = %q, want %q", got, want)
	}
}

func TestPutManifest_DisabledClient(t *testing.T) {
	c := &Client{}
	if _, err := c.PutManifest(context.Background(), Manifest{SessionID: "sess-1"}); err == nil {
		t.Fatalf("expected error from disabled client")
	}
}

func TestPutAudioClip_DisabledClient(t *testing.T) {
	c := &Client{}
	if _, err := c.PutAudioClip(context.Background(), "sess-1", "clip-1", []byte("pcm")); err == nil {
		t.Fatalf("expected error from disabled client")
	}
}

func TestGetManifest_DisabledClient(t *testing.T) {
	c := &Client{}
	if _, err := c.GetManifest(context.Background(), "sess-1"); err == nil {
		t.Fatalf("expected error from disabled client")
	}
}
