package metadatabridge

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"jackshim/internal/proptable"
)

func TestRemoteMirrorAppliesPushedDefaultSink(t *testing.T) {
	bridge := New(proptable.New())
	mirror := NewRemoteMirror(bridge, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := mirror.ServeHTTP(ctx, w, r); err != nil {
			t.Errorf("ServeHTTP: %v", err)
		}
	}))
	defer srv.Close()

	wsAddr := "ws" + strings.TrimPrefix(srv.URL, "http")

	pushCtx, pushCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pushCancel()
	if err := PushDefaultSink(pushCtx, wsAddr, "alsa_output.analog-stereo"); err != nil {
		t.Fatalf("PushDefaultSink: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if name, ok := bridge.DefaultSink(); ok {
			if name != "alsa_output.analog-stereo" {
				t.Fatalf("got default sink %q, want alsa_output.analog-stereo", name)
			}
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("default sink was never applied")
}
