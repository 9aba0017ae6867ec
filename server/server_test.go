package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prompt_json_structurer/structurer"
)

type sessionBody struct {
	SessionID  string         `json:"session_id"`
	Phase      string         `json:"phase"`
	PromptText string         `json:"prompt_text"`
	Result     map[string]any `json:"result"`
	LastError  string         `json:"last_error"`
	Error      string         `json:"error"`
}

func newTestServer(t *testing.T, llm structurer.LLMClient) *httptest.Server {
	t.Helper()
	srv, err := New(llm, slog.New(slog.NewTextHandler(io.Discard, nil)), SessionLimits{})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func do(t *testing.T, method, url, body string) (int, sessionBody) {
	t.Helper()
	var rdr io.Reader
	if body != "" {
		rdr = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, url, rdr)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out sessionBody
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	}
	return resp.StatusCode, out
}

func createSession(t *testing.T, ts *httptest.Server) string {
	t.Helper()
	status, body := do(t, http.MethodPost, ts.URL+"/api/sessions", "")
	require.Equal(t, http.StatusCreated, status)
	require.NotEmpty(t, body.SessionID)
	assert.Equal(t, "idle", body.Phase)
	return body.SessionID
}

func TestServerNeedsLLM(t *testing.T) {
	_, err := New(nil, nil, SessionLimits{})
	require.Error(t, err)
}

func TestServerSubmitEditFlow(t *testing.T) {
	stub := &structurer.StubLLM{Reply: `{"original_prompt":"Write a haiku","task":"Compose a haiku","entities":["haiku"]}`}
	ts := newTestServer(t, stub)
	id := createSession(t, ts)
	base := ts.URL + "/api/sessions/" + id

	status, body := do(t, http.MethodPost, base+"/submit", `{"prompt":"Write a haiku"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body.Phase)
	assert.Equal(t, "Compose a haiku", body.Result["task"])
	assert.Equal(t, []any{}, body.Result["subtasks"])
	assert.NotContains(t, body.Result, "error")

	status, body = do(t, http.MethodGet, base, "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ready", body.Phase)

	status, body = do(t, http.MethodPost, base+"/edit", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "idle", body.Phase)
	assert.Equal(t, "Write a haiku", body.PromptText)
	assert.Nil(t, body.Result)

	status, body = do(t, http.MethodPost, base+"/edit", "")
	assert.Equal(t, http.StatusConflict, status)
	assert.Contains(t, body.Error, "idle")
}

func TestServerSubmitUsesTypedPrompt(t *testing.T) {
	stub := &structurer.StubLLM{Reply: `{"task":"t"}`}
	ts := newTestServer(t, stub)
	base := ts.URL + "/api/sessions/" + createSession(t, ts)

	status, body := do(t, http.MethodPut, base+"/prompt", `{"prompt":"typed earlier"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "typed earlier", body.PromptText)

	status, _ = do(t, http.MethodPost, base+"/submit", "")
	require.Equal(t, http.StatusOK, status)
	require.Len(t, stub.Calls, 1)
	assert.Equal(t, "typed earlier", stub.Calls[0].UserPrompt())

	status, body = do(t, http.MethodPost, base+"/expand", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "typed earlier", body.PromptText)
}

func TestServerBlankSubmit(t *testing.T) {
	stub := &structurer.StubLLM{Reply: `{}`}
	ts := newTestServer(t, stub)
	base := ts.URL + "/api/sessions/" + createSession(t, ts)

	status, body := do(t, http.MethodPost, base+"/submit", `{"prompt":"   "}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.NotEmpty(t, body.Error)
	assert.Empty(t, stub.Calls)
}

func TestServerTransportFailure(t *testing.T) {
	stub := &structurer.StubLLM{Err: &structurer.CompletionError{Kind: structurer.KindUnauthorized, StatusCode: 401}}
	ts := newTestServer(t, stub)
	base := ts.URL + "/api/sessions/" + createSession(t, ts)

	status, body := do(t, http.MethodPost, base+"/submit", `{"prompt":"x"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "failed", body.Phase)
	assert.Contains(t, body.LastError, "API key")
	assert.Nil(t, body.Result)

	status, body = do(t, http.MethodPost, base+"/dismiss", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "idle", body.Phase)
	assert.Equal(t, "x", body.PromptText)
	assert.Empty(t, body.LastError)

	status, body = do(t, http.MethodPost, base+"/reset", "")
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, body.PromptText)
}

func TestServerDownloadAndView(t *testing.T) {
	stub := &structurer.StubLLM{Reply: "definitely not json"}
	ts := newTestServer(t, stub)
	base := ts.URL + "/api/sessions/" + createSession(t, ts)

	resp, err := http.Get(base + "/result.json")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	status, body := do(t, http.MethodPost, base+"/submit", `{"prompt":"Write a haiku"}`)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, structurer.ReasonNotJSON, body.Result["error"])

	resp, err = http.Get(base + "/result.json")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "optimized-prompt.json")
	var doc map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	assert.Equal(t, "definitely not json", doc["raw_response"])

	view, err := http.Get(base + "/view")
	require.NoError(t, err)
	defer view.Body.Close()
	page, err := io.ReadAll(view.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, view.StatusCode)
	assert.Contains(t, string(page), "definitely not json")
}

func TestServerUnknownAndDeletedSession(t *testing.T) {
	ts := newTestServer(t, structurer.MockLLM{})
	status, _ := do(t, http.MethodGet, ts.URL+"/api/sessions/nope", "")
	assert.Equal(t, http.StatusNotFound, status)

	id := createSession(t, ts)
	status, _ = do(t, http.MethodDelete, ts.URL+"/api/sessions/"+id, "")
	assert.Equal(t, http.StatusNoContent, status)
	status, _ = do(t, http.MethodGet, ts.URL+"/api/sessions/"+id, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestServerExamples(t *testing.T) {
	ts := newTestServer(t, structurer.MockLLM{})
	resp, err := http.Get(ts.URL + "/api/examples")
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string][]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, structurer.ExamplePrompts, out["examples"])
}

func TestSessionStoreEvictsLeastRecentlyUsed(t *testing.T) {
	store := newStore(SessionLimits{Max: 2, Idle: time.Hour})
	a, b, c := newAgent(t), newAgent(t), newAgent(t)

	store.set("a", a)
	store.set("b", b)
	_, ok := store.get("a") // a is now the most recent
	require.True(t, ok)
	store.set("c", c)

	_, ok = store.get("b")
	assert.False(t, ok)
	got, ok := store.get("a")
	assert.True(t, ok)
	assert.Same(t, a, got)
	_, ok = store.get("c")
	assert.True(t, ok)
}

func TestSessionStoreDropsIdleSessions(t *testing.T) {
	store := newStore(SessionLimits{Max: 10, Idle: 200 * time.Millisecond})
	store.set("idle", newAgent(t))
	store.set("busy", newAgent(t))

	for i := 0; i < 5; i++ {
		time.Sleep(60 * time.Millisecond)
		_, ok := store.get("busy")
		require.True(t, ok, "reads keep a session alive")
	}

	_, ok := store.get("idle")
	assert.False(t, ok)
	assert.True(t, store.delete("busy"))
}

func TestServerCapsSessions(t *testing.T) {
	srv, err := New(&structurer.StubLLM{}, slog.New(slog.NewTextHandler(io.Discard, nil)), SessionLimits{Max: 1})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)

	first := createSession(t, ts)
	second := createSession(t, ts)

	status, _ := do(t, http.MethodGet, ts.URL+"/api/sessions/"+first, "")
	assert.Equal(t, http.StatusNotFound, status)
	status, _ = do(t, http.MethodGet, ts.URL+"/api/sessions/"+second, "")
	assert.Equal(t, http.StatusOK, status)
}

func newAgent(t *testing.T) *structurer.Agent {
	t.Helper()
	agent, err := structurer.NewAgent(&structurer.StubLLM{})
	require.NoError(t, err)
	return agent
}
