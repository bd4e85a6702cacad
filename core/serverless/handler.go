// Package serverless runs turns behind API Gateway on AWS Lambda.
package serverless

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambdacontext"
	"github.com/google/uuid"

	"github.com/m3rciful/airbot/core/logger"
	"github.com/m3rciful/airbot/core/turn"
	"github.com/m3rciful/airbot/core/web"
)

// Channel is the activity channel name for Lambda invocations.
const Channel = "lambda"

const correlationHeader = "X-Correlation-Id"

// Handler adapts API Gateway proxy events to bot turns.
type Handler struct {
	bot   turn.Handler
	botID string
}

// NewHandler validates dependencies.
func NewHandler(bot turn.Handler, botID string) (*Handler, error) {
	if bot == nil {
		return nil, errors.New("serverless: turn handler must not be nil")
	}
	if botID == "" {
		botID = "airbot"
	}
	return &Handler{bot: bot, botID: botID}, nil
}

// Handle serves POST /activities and POST /cancel.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	rid := correlationID(ctx, req)
	ctx = logger.WithRID(ctx, rid)

	if req.HTTPMethod != http.MethodPost {
		return respond(http.StatusMethodNotAllowed, rid, web.Response{Messages: []turn.Message{}, Error: "method not allowed"}), nil
	}

	fn := h.bot.OnTurn
	if strings.HasSuffix(strings.TrimRight(req.Path, "/"), "/cancel") {
		fn = h.bot.Cancel
	}

	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return respond(http.StatusBadRequest, rid, web.Response{Messages: []turn.Message{}, Error: "invalid base64 body"}), nil
		}
		body = decoded
	}

	act, err := web.DecodeActivity(body, Channel, h.botID)
	if err != nil {
		return respond(http.StatusBadRequest, rid, web.Response{Messages: []turn.Message{}, Error: err.Error()}), nil
	}

	res, err := fn(ctx, act)
	status := http.StatusOK
	if err != nil {
		status = http.StatusInternalServerError
		logger.Error(ctx, "app", "lambda.turn",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
	return respond(status, rid, web.NewResponse(res, err)), nil
}

func respond(status int, rid string, body web.Response) events.APIGatewayProxyResponse {
	b, err := json.Marshal(body)
	if err != nil {
		status = http.StatusInternalServerError
		b = []byte(`{"messages":[],"error":"failed to encode response"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: rid,
		},
		Body: string(b),
	}
}

// correlationID prefers the caller's header, then the Lambda request id, then a fresh UUID.
func correlationID(ctx context.Context, req events.APIGatewayProxyRequest) string {
	for k, v := range req.Headers {
		if strings.EqualFold(k, correlationHeader) && v != "" {
			return v
		}
	}
	if lc, ok := lambdacontext.FromContext(ctx); ok && lc.AwsRequestID != "" {
		return lc.AwsRequestID
	}
	if req.RequestContext.RequestID != "" {
		return req.RequestContext.RequestID
	}
	return uuid.NewString()
}
