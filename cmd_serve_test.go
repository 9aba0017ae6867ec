package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeDrainsInFlightSubmitOnShutdown(t *testing.T) {
	var (
		started     = make(chan struct{})
		startOnce   sync.Once
		replied     atomic.Bool
		upstreamHit atomic.Int32
	)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upstreamHit.Add(1)
		startOnce.Do(func() { close(started) })
		time.Sleep(500 * time.Millisecond)
		replied.Store(true)
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprint(w, `{"choices":[{"message":{"role":"assistant","content":"{\"task\":\"Write a haiku\"}"}}]}`)
	}))
	t.Cleanup(upstream.Close)

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	cfgYAML := fmt.Sprintf("llm:\n  provider: groq\n  api_key: test-key\n  base_url: %s\nserver_addr: 127.0.0.1:0\nlog_level: error\n", upstream.URL)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfgYAML), 0o644))

	listening := make(chan net.Addr, 1)
	prev := serverListening
	serverListening = func(a net.Addr) { listening <- a }
	t.Cleanup(func() { serverListening = prev })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", cfgPath, "serve"})

	type outcome struct {
		err          error
		replyArrived bool
	}
	done := make(chan outcome, 1)
	go func() {
		err := cmd.ExecuteContext(ctx)
		done <- outcome{err: err, replyArrived: replied.Load()}
	}()

	var base string
	select {
	case a := <-listening:
		base = "http://" + a.String()
	case <-time.After(5 * time.Second):
		t.Fatal("server did not start")
	}

	resp, err := http.Post(base+"/api/sessions", "application/json", nil)
	require.NoError(t, err)
	var created struct {
		SessionID string `json:"session_id"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()

	type submitResult struct {
		status int
		phase  string
		err    error
	}
	submitted := make(chan submitResult, 1)
	go func() {
		resp, err := http.Post(base+"/api/sessions/"+created.SessionID+"/submit", "application/json",
			strings.NewReader(`{"prompt":"Write a haiku"}`))
		if err != nil {
			submitted <- submitResult{err: err}
			return
		}
		defer resp.Body.Close()
		var body struct {
			Phase string `json:"phase"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		submitted <- submitResult{status: resp.StatusCode, phase: body.Phase}
	}()

	<-started
	cancel()

	var got outcome
	select {
	case got = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not return after shutdown")
	}
	require.NoError(t, got.err)
	assert.True(t, got.replyArrived, "serve returned before the in-flight submit got its model reply")

	res := <-submitted
	require.NoError(t, res.err)
	assert.Equal(t, http.StatusOK, res.status)
	assert.Equal(t, "ready", res.phase)
	assert.Equal(t, int32(1), upstreamHit.Load())
}

func TestServeUntilDoneReturnsServeError(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	err = serveUntilDone(context.Background(), &http.Server{Handler: http.NotFoundHandler()}, ln)
	assert.Error(t, err)
}
