package live

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newHub(snapshot func() any) *Hub {
	return &Hub{
		Logger:    zerolog.Nop(),
		Snapshot:  snapshot,
		Heartbeat: time.Hour,
	}
}

func TestStreamSendsInitialAndPushedSnapshots(t *testing.T) {
	hub := newHub(func() any {
		return map[string]any{"total": 510}
	})

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/live/aggregate", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		hub.Stream(rec, req)
		close(done)
	}()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)
	hub.Push()
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	body := rec.Body.String()
	require.Equal(t, 2, strings.Count(body, "event: aggregate"))
	require.Contains(t, body, `"total":510`)
	require.Zero(t, hub.ClientCount())
}

func TestStreamEndsWhenClientIsDropped(t *testing.T) {
	hub := newHub(func() any { return map[string]any{} })

	ch := hub.register()
	// Fill the buffer so the next broadcast finds the client stalled.
	for i := 0; i < clientBuffer; i++ {
		ch <- []byte("{}")
	}
	hub.Push()

	require.Zero(t, hub.ClientCount())
	_, open := <-ch
	require.True(t, open) // buffered payloads drain first
	for range ch {
	}
}

func TestHeartbeatKeepsStreamAlive(t *testing.T) {
	hub := newHub(func() any { return map[string]any{} })
	hub.Heartbeat = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/api/v1/live/aggregate", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		hub.Stream(rec, req)
		close(done)
	}()

	time.Sleep(80 * time.Millisecond)
	cancel()
	<-done

	require.Contains(t, rec.Body.String(), ": hb")
}
