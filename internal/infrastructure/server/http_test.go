package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPServer_StartStop(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
	srv := NewHTTPServer("127.0.0.1:0", handler)
	require.NoError(t, srv.Listen(context.Background()))

	done := make(chan error, 1)
	go func() { done <- srv.Start(context.Background()) }()

	resp, err := http.Get("http://" + srv.Addr() + "/")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "ok", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Stop(ctx))
	assert.NoError(t, <-done)
}

func TestHTTPServer_ListenFailsWhenAddressTaken(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	srv := NewHTTPServer(ln.Addr().String(), http.NotFoundHandler())
	assert.Error(t, srv.Listen(context.Background()))
}

func TestHTTPServer_StopDropsStuckRequests(t *testing.T) {
	started := make(chan struct{})
	finished := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-r.Context().Done()
		close(finished)
	})
	srv := NewHTTPServer("127.0.0.1:0", handler, WithWriteTimeout(0))
	require.NoError(t, srv.Listen(context.Background()))
	go func() { _ = srv.Start(context.Background()) }()

	go func() {
		resp, err := http.Get("http://" + srv.Addr() + "/stream")
		if err == nil {
			_ = resp.Body.Close()
		}
	}()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, srv.Stop(ctx), context.DeadlineExceeded)

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("stuck request survived Stop")
	}
}
