package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/airbot/core/config"
	"github.com/m3rciful/airbot/core/turn"
)

type stubHandler struct {
	got       []turn.Activity
	cancelled int
	res       turn.Result
	err       error
}

func (s *stubHandler) OnTurn(_ context.Context, act turn.Activity) (turn.Result, error) {
	s.got = append(s.got, act)
	return s.res, s.err
}

func (s *stubHandler) Cancel(_ context.Context, act turn.Activity) (turn.Result, error) {
	s.cancelled++
	s.got = append(s.got, act)
	return s.res, s.err
}

func newTestServer(t *testing.T, h turn.Handler) http.Handler {
	t.Helper()
	srv, err := NewServer(h, config.HTTPConfig{BotID: "airbot", AllowedOrigins: []string{"https://app.example.com"}})
	require.NoError(t, err)
	return srv.Router()
}

func post(t *testing.T, h http.Handler, path, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	var out Response
	require.NoError(t, json.NewDecoder(bytes.NewReader(w.Body.Bytes())).Decode(&out))
	return w, out
}

func TestPostActivity(t *testing.T) {
	stub := &stubHandler{res: turn.Result{Messages: []turn.Message{turn.Text("Where do you want to go to?")}}}
	h := newTestServer(t, stub)

	w, out := post(t, h, "/api/v1/activities", `{"conversation_id":"c1","from":{"id":"u1"},"text":"NYC"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "application/json", w.Header().Get("Content-Type"))
	require.Equal(t, []turn.Message{turn.Text("Where do you want to go to?")}, out.Messages)
	require.Empty(t, out.Error)

	require.Len(t, stub.got, 1)
	act := stub.got[0]
	require.Equal(t, turn.TypeMessage, act.Type)
	require.Equal(t, Channel, act.Channel)
	require.Equal(t, "airbot", act.Recipient.ID)
	require.NotEmpty(t, act.ID)
	require.Equal(t, "NYC", act.Text)
}

func TestClientCannotChooseChannel(t *testing.T) {
	stub := &stubHandler{}
	h := newTestServer(t, stub)

	w, _ := post(t, h, "/api/v1/activities", `{"channel":"telegram","conversation_id":"42","from":{"id":"42"},"text":"hi"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, stub.got, 1)
	require.Equal(t, Channel, stub.got[0].Channel)
}

func TestPostActivityValidation(t *testing.T) {
	h := newTestServer(t, &stubHandler{})

	for _, body := range []string{`not-json`, `{"from":{"id":"u1"}}`, `{"conversation_id":"c1"}`} {
		w, out := post(t, h, "/api/v1/activities", body)
		require.Equal(t, http.StatusBadRequest, w.Code, body)
		require.NotEmpty(t, out.Error)
		require.NotNil(t, out.Messages)
	}
}

func TestPostActivityTurnError(t *testing.T) {
	stub := &stubHandler{
		res: turn.Result{Messages: []turn.Message{turn.Text("hi")}},
		err: errors.New("state: WRITE conversation/c1: disk full"),
	}
	w, out := post(t, newTestServer(t, stub), "/api/v1/activities", `{"conversation_id":"c1","from":{"id":"u1"},"text":"x"}`)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.Equal(t, []turn.Message{turn.Text("hi")}, out.Messages)
	require.Contains(t, out.Error, "disk full")
}

func TestPostCancel(t *testing.T) {
	stub := &stubHandler{}
	w, out := post(t, newTestServer(t, stub), "/api/v1/cancel", `{"conversation_id":"c1","from":{"id":"u1"}}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, 1, stub.cancelled)
	require.Equal(t, []turn.Message{}, out.Messages)
}

func TestHealthAndCORS(t *testing.T) {
	h := newTestServer(t, &stubHandler{})

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, w.Code)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/activities", nil)
	req.Header.Set("Origin", "https://app.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "https://app.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/activities", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	w = httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestWebSocketTurns(t *testing.T) {
	stub := &stubHandler{res: turn.Result{Messages: []turn.Message{turn.Text("one"), turn.Text("two")}}}
	ts := httptest.NewServer(newTestServer(t, stub))
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close(websocket.StatusNormalClosure, "")

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"conversation_id":"c1","from":{"id":"u1"},"text":"hi"}`)))
	for _, want := range []string{"one", "two"} {
		_, data, err := conn.Read(ctx)
		require.NoError(t, err)
		var m turn.Message
		require.NoError(t, json.Unmarshal(data, &m))
		require.Equal(t, want, m.Text)
	}

	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{}`)))
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var resp Response
	require.NoError(t, json.Unmarshal(data, &resp))
	require.Contains(t, resp.Error, "conversation_id")
}

func TestOriginPatterns(t *testing.T) {
	require.Equal(t, []string{"app.example.com", "localhost:3000"}, originPatterns([]string{"https://app.example.com", "localhost:3000"}))
	require.Equal(t, []string{"*"}, originPatterns([]string{"https://a.com", "*"}))
	require.Nil(t, originPatterns(nil))
}
