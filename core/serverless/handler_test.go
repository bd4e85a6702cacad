package serverless

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/stretchr/testify/require"

	"github.com/m3rciful/airbot/core/turn"
	"github.com/m3rciful/airbot/core/web"
)

type stubBot struct {
	in        turn.Activity
	cancelled bool
	res       turn.Result
	err       error
}

func (s *stubBot) OnTurn(_ context.Context, act turn.Activity) (turn.Result, error) {
	s.in = act
	return s.res, s.err
}

func (s *stubBot) Cancel(_ context.Context, act turn.Activity) (turn.Result, error) {
	s.in = act
	s.cancelled = true
	return s.res, s.err
}

func makeEvent(path, body string) events.APIGatewayProxyRequest {
	return events.APIGatewayProxyRequest{
		HTTPMethod: http.MethodPost,
		Path:       path,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func parseBody(t *testing.T, body string) web.Response {
	t.Helper()
	var v web.Response
	require.NoError(t, json.Unmarshal([]byte(body), &v))
	return v
}

func TestNewHandler_ValidatesDependency(t *testing.T) {
	_, err := NewHandler(nil, "")
	require.Error(t, err)
}

func TestHandle_HappyPath(t *testing.T) {
	bot := &stubBot{res: turn.Result{Messages: []turn.Message{turn.Text("How many people?")}}}
	h, err := NewHandler(bot, "")
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent("/activities", `{"conversation_id":"c1","from":{"id":"u1"},"text":"LAX"}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Headers["X-Correlation-Id"])

	out := parseBody(t, resp.Body)
	require.Equal(t, "How many people?", out.Messages[0].Text)
	require.Equal(t, Channel, bot.in.Channel)
	require.Equal(t, "airbot", bot.in.Recipient.ID)
	require.False(t, bot.cancelled)
}

func TestHandle_Cancel(t *testing.T) {
	bot := &stubBot{}
	h, err := NewHandler(bot, "")
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent("/prod/cancel/", `{"conversation_id":"c1","from":{"id":"u1"}}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.True(t, bot.cancelled)
}

func TestHandle_InvalidBody(t *testing.T) {
	h, err := NewHandler(&stubBot{}, "")
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent("/activities", `not-json`))
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NotEmpty(t, parseBody(t, resp.Body).Error)

	ev := makeEvent("/activities", "%%%")
	ev.IsBase64Encoded = true
	resp, err = h.Handle(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandle_Base64Body(t *testing.T) {
	bot := &stubBot{}
	h, err := NewHandler(bot, "")
	require.NoError(t, err)

	ev := makeEvent("/activities", base64.StdEncoding.EncodeToString([]byte(`{"conversation_id":"c1","from":{"id":"u1"},"text":"hi"}`)))
	ev.IsBase64Encoded = true
	resp, err := h.Handle(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "hi", bot.in.Text)
}

func TestHandle_MethodNotAllowed(t *testing.T) {
	h, err := NewHandler(&stubBot{}, "")
	require.NoError(t, err)
	ev := makeEvent("/activities", "")
	ev.HTTPMethod = http.MethodGet
	resp, err := h.Handle(context.Background(), ev)
	require.NoError(t, err)
	require.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestHandle_TurnErrorKeepsMessages(t *testing.T) {
	bot := &stubBot{res: turn.Result{Messages: []turn.Message{turn.Text("hi")}}, err: errors.New("flush failed")}
	h, err := NewHandler(bot, "")
	require.NoError(t, err)

	resp, err := h.Handle(context.Background(), makeEvent("/activities", `{"conversation_id":"c1","from":{"id":"u1"}}`))
	require.NoError(t, err)
	require.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	out := parseBody(t, resp.Body)
	require.Len(t, out.Messages, 1)
	require.Equal(t, "flush failed", out.Error)
}

func TestCorrelationID(t *testing.T) {
	ev := makeEvent("/activities", "")
	ev.Headers["x-correlation-id"] = "abc"
	require.Equal(t, "abc", correlationID(context.Background(), ev))

	ctx := lambdacontext.NewContext(context.Background(), &lambdacontext.LambdaContext{AwsRequestID: "req-1"})
	require.Equal(t, "req-1", correlationID(ctx, makeEvent("/activities", "")))

	ev = makeEvent("/activities", "")
	ev.RequestContext.RequestID = "gw-1"
	require.Equal(t, "gw-1", correlationID(context.Background(), ev))
}
