package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"assistant-relay/internal/domain"
	"assistant-relay/internal/usecase"
)

const correlationHeader = "X-Correlation-Id"

const (
	msgMethodNotAllowed = "Method not allowed"
	msgInvalidRequest   = "Invalid request"
	msgInternal         = "Internal server error"
)

// Relayer is the use case behind the chat endpoint.
type Relayer interface {
	Relay(ctx context.Context, in usecase.RelayInput) (usecase.RelayOutput, error)
}

type chatRequest struct {
	Message  string `json:"message"`
	ThreadID string `json:"threadId,omitempty"`
}

type chatResponse struct {
	Messages []domain.Message `json:"messages"`
	ThreadID string           `json:"threadId"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type Handler struct {
	relay  Relayer
	logger *slog.Logger
}

func NewHandler(r Relayer, logger *slog.Logger) (*Handler, error) {
	if r == nil {
		return nil, errors.New("handler: relayer must not be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{relay: r, logger: logger}, nil
}

// Handle serves one API Gateway proxy request for the chat endpoint.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	corrID := correlationID(req.Headers)
	log := h.logger.With("correlation_id", corrID)

	if req.HTTPMethod != http.MethodPost {
		resp := jsonResponse(http.StatusMethodNotAllowed, corrID, errorResponse{Error: msgMethodNotAllowed})
		resp.Headers["Allow"] = http.MethodPost
		return resp, nil
	}

	var body chatRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		log.Warn("invalid request body", "err", err)
		return jsonResponse(http.StatusBadRequest, corrID, errorResponse{Error: msgInvalidRequest}), nil
	}

	out, err := h.relay.Relay(ctx, usecase.RelayInput{Message: body.Message, ThreadID: body.ThreadID})
	if err != nil {
		code, reason := classify(err)
		if code == usecase.ErrorInvalidInput {
			log.Warn("relay rejected input", "code", code, "reason", reason)
			return jsonResponse(http.StatusBadRequest, corrID, errorResponse{Error: msgInvalidRequest}), nil
		}
		log.Error("relay failed", "code", code, "reason", reason, "thread_id", body.ThreadID, "err", err)
		return jsonResponse(http.StatusInternalServerError, corrID, errorResponse{Error: msgInternal}), nil
	}

	log.Info("relay completed", "thread_id", out.ThreadID, "messages", len(out.Messages))
	msgs := out.Messages
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return jsonResponse(http.StatusOK, corrID, chatResponse{Messages: msgs, ThreadID: out.ThreadID}), nil
}

func classify(err error) (usecase.ErrorCode, string) {
	var ue *usecase.Error
	if errors.As(err, &ue) {
		return ue.Code, ue.Reason
	}
	return usecase.ErrorInternal, "unexpected"
}

func correlationID(headers map[string]string) string {
	for k, v := range headers {
		if strings.EqualFold(k, correlationHeader) && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return uuid.NewString()
}

func jsonResponse(status int, corrID string, v any) events.APIGatewayProxyResponse {
	body, err := json.Marshal(v)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(`{"error":"` + msgInternal + `"}`)
	}
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":    "application/json",
			correlationHeader: corrID,
		},
		Body: string(body),
	}
}
