package handler

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"
	"github.com/line/line-bot-sdk-go/v8/linebot/webhook"

	"udon-bot/internal/conversation"
	"udon-bot/internal/observability/metrics"
	"udon-bot/internal/usecase"
)

const (
	signatureHeader     = "X-Line-Signature"
	correlationIDHeader = "X-Correlation-Id"

	unresolvedSenderText = "ユーザー情報が取得できなかったよ。"
)

type Replier interface {
	Generate(ctx context.Context, in usecase.GenerateInput) (usecase.GenerateOutput, error)
}

// Messenger is the subset of the LINE Messaging API the webhook needs.
type Messenger interface {
	DisplayName(ctx context.Context, userID string) (string, error)
	Reply(ctx context.Context, replyToken string, texts []string) error
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Handler serves the LINE webhook callback.
type Handler struct {
	channelSecret string
	replier       Replier
	messenger     Messenger
	sessions      conversation.Sessions
	metrics       *metrics.BotMetrics
}

type Option func(*Handler)

func WithMetrics(m *metrics.BotMetrics) Option {
	return func(h *Handler) {
		h.metrics = m
	}
}

func NewHandler(channelSecret string, replier Replier, messenger Messenger, sessions conversation.Sessions, opts ...Option) (*Handler, error) {
	if strings.TrimSpace(channelSecret) == "" {
		return nil, errors.New("handler: channel secret must not be empty")
	}
	if replier == nil {
		return nil, errors.New("handler: replier must not be nil")
	}
	if messenger == nil {
		return nil, errors.New("handler: messenger must not be nil")
	}
	if sessions == nil {
		return nil, errors.New("handler: sessions must not be nil")
	}
	h := &Handler{
		channelSecret: channelSecret,
		replier:       replier,
		messenger:     messenger,
		sessions:      sessions,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Handle verifies and dispatches one webhook delivery.
func (h *Handler) Handle(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	start := time.Now()
	defer func() { h.metrics.ObserveWebhookLatency(time.Since(start).Seconds()) }()

	correlationID := headerValue(req.Headers, correlationIDHeader)
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	logger := slog.With("correlation_id", correlationID)

	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			logger.WarnContext(ctx, "failed to decode webhook body", "err", err)
			return errorResult(http.StatusBadRequest, "INVALID_BODY", "body is not valid base64", correlationID), nil
		}
		body = decoded
	}

	signature := headerValue(req.Headers, signatureHeader)
	if signature == "" || !webhook.ValidateSignature(h.channelSecret, signature, body) {
		logger.WarnContext(ctx, "rejected webhook with invalid signature")
		return errorResult(http.StatusBadRequest, "INVALID_SIGNATURE", "invalid signature", correlationID), nil
	}

	var cb webhook.CallbackRequest
	if err := json.Unmarshal(body, &cb); err != nil {
		logger.WarnContext(ctx, "failed to parse webhook body", "err", err)
		return errorResult(http.StatusBadRequest, "INVALID_BODY", "malformed webhook body", correlationID), nil
	}

	failed := 0
	for _, event := range cb.Events {
		if err := h.dispatch(ctx, logger, event); err != nil {
			failed++
		}
	}
	if failed > 0 {
		return errorResult(http.StatusInternalServerError, string(usecase.ErrorInternal), "failed to handle events", correlationID), nil
	}

	return events.APIGatewayProxyResponse{
		StatusCode: http.StatusOK,
		Headers: map[string]string{
			"Content-Type":      "text/plain; charset=utf-8",
			correlationIDHeader: correlationID,
		},
		Body: "OK",
	}, nil
}

func (h *Handler) dispatch(ctx context.Context, logger *slog.Logger, event webhook.EventInterface) error {
	e, ok := event.(webhook.MessageEvent)
	if !ok {
		h.metrics.ObserveInbound(eventType(event), "ignored")
		return nil
	}
	content, ok := e.Message.(webhook.TextMessageContent)
	if !ok {
		h.metrics.ObserveInbound("message", "ignored")
		return nil
	}

	texts, err := h.respond(ctx, logger, e.Source, content.Text)
	if err != nil {
		logger.ErrorContext(ctx, "failed to generate reply", "err", err)
		h.metrics.ObserveInbound("message", "error")
		return err
	}

	if err := h.messenger.Reply(ctx, e.ReplyToken, texts); err != nil {
		logger.ErrorContext(ctx, "failed to send reply", "err", err)
		h.metrics.ObserveReply("error")
		h.metrics.ObserveInbound("message", "error")
		return err
	}
	h.metrics.ObserveReply("ok")
	h.metrics.ObserveInbound("message", "ok")
	return nil
}

// respond builds the reply for a text message. Senders that cannot be resolved
// to a user profile get a fixed notice and never reach the conversation.
func (h *Handler) respond(ctx context.Context, logger *slog.Logger, source webhook.SourceInterface, text string) ([]string, error) {
	user, ok := source.(webhook.UserSource)
	if !ok || user.UserId == "" {
		return unresolvedSenderReply(text), nil
	}
	displayName, err := h.messenger.DisplayName(ctx, user.UserId)
	if err != nil {
		logger.WarnContext(ctx, "failed to fetch profile", "err", err, "user_id", user.UserId)
		return unresolvedSenderReply(text), nil
	}

	history := h.sessions.Session(user.UserId)
	if history.IsEmpty() {
		history.Reset()
	}

	out, err := h.replier.Generate(ctx, usecase.GenerateInput{
		UserID:      user.UserId,
		DisplayName: displayName,
		Text:        text,
	})
	if err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func unresolvedSenderReply(text string) []string {
	return []string{unresolvedSenderText, "メッセージ：" + text}
}

func eventType(event webhook.EventInterface) string {
	if event == nil {
		return "unknown"
	}
	return event.GetType()
}

func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return strings.TrimSpace(v)
	}
	for k, v := range headers {
		if strings.EqualFold(k, name) {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func errorResult(status int, code, message, correlationID string) events.APIGatewayProxyResponse {
	body, _ := json.Marshal(errorResponse{Error: code, Message: message})
	return events.APIGatewayProxyResponse{
		StatusCode: status,
		Headers: map[string]string{
			"Content-Type":      "application/json",
			correlationIDHeader: correlationID,
		},
		Body: string(body),
	}
}
