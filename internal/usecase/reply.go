package usecase

import (
	"context"
	"errors"
	"log/slog"

	"udon-bot/internal/conversation"
	"udon-bot/internal/domain"
	"udon-bot/internal/observability/metrics"
)

type LLMClient interface {
	Complete(ctx context.Context, messages []domain.ChatMessage, params domain.CompletionParams) (string, error)
}

type ShopFinder interface {
	PickRandomShop(ctx context.Context, areaCode, keyword string) (domain.Shop, bool)
}

// TurnArchiver records completed turns outside the in-memory history.
type TurnArchiver interface {
	SaveCompletedTurn(ctx context.Context, userID, displayName, question, answer string) error
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

// ReplyService turns one user message into the bot's reply messages.
type ReplyService struct {
	sessions conversation.Sessions
	llm      LLMClient
	shops    ShopFinder
	archive  TurnArchiver
	metrics  *metrics.BotMetrics
	params   domain.CompletionParams
}

type ReplyOption func(*ReplyService)

func WithArchive(a TurnArchiver) ReplyOption {
	return func(s *ReplyService) {
		s.archive = a
	}
}

func WithMetrics(m *metrics.BotMetrics) ReplyOption {
	return func(s *ReplyService) {
		s.metrics = m
	}
}

type GenerateInput struct {
	UserID      string
	DisplayName string
	Text        string
}

type GenerateOutput struct {
	Messages []string
}

func NewReplyService(sessions conversation.Sessions, llm LLMClient, shops ShopFinder, opts ...ReplyOption) (*ReplyService, error) {
	if sessions == nil {
		return nil, errors.New("usecase: sessions must not be nil")
	}
	if llm == nil {
		return nil, errors.New("usecase: llm client must not be nil")
	}
	if shops == nil {
		return nil, errors.New("usecase: shop finder must not be nil")
	}
	s := &ReplyService{
		sessions: sessions,
		llm:      llm,
		shops:    shops,
		params:   domain.DefaultCompletionParams(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Generate handles reset commands, optionally enriches the turn with a shop
// recommendation, and asks the LLM for a reply over the whole history.
func (s *ReplyService) Generate(ctx context.Context, in GenerateInput) (GenerateOutput, error) {
	history := s.sessions.Session(in.UserID)

	if isResetCommand(in.Text) {
		history.Reset()
		slog.InfoContext(ctx, "conversation reset", "user_id", in.UserID)
		return GenerateOutput{Messages: []string{resetConfirmation}}, nil
	}

	var summary string
	if wantsShop(in.Text) {
		shop, found := s.shops.PickRandomShop(ctx, shopAreaCode, shopKeyword)
		summary = buildShopSummary(shop, found)
	}

	userTurn := domain.ChatMessage{Role: domain.RoleUser, Content: buildUserTurn(in.Text, summary)}
	if err := history.Append(userTurn); err != nil {
		return GenerateOutput{}, newError(ErrorInvalidInput, "empty_message", err)
	}

	answer, err := s.llm.Complete(ctx, history.Messages(), s.params)
	if err != nil {
		s.metrics.ObserveCompletion("error")
		if status, ok := upstreamStatusCode(err); ok && status == 429 {
			return GenerateOutput{}, newError(ErrorRateLimited, "openai_rate_limited", err)
		}
		return GenerateOutput{}, newError(ErrorUpstream, "openai_error", err)
	}
	if err := history.Append(domain.ChatMessage{Role: domain.RoleAssistant, Content: answer}); err != nil {
		s.metrics.ObserveCompletion("empty")
		return GenerateOutput{}, newError(ErrorUpstream, "openai_empty_completion", err)
	}
	s.metrics.ObserveCompletion("ok")

	if s.archive != nil {
		if err := s.archive.SaveCompletedTurn(ctx, in.UserID, in.DisplayName, userTurn.Content, answer); err != nil {
			slog.WarnContext(ctx, "failed to archive turn", "err", err, "user_id", in.UserID)
		}
	}

	return GenerateOutput{Messages: []string{answer}}, nil
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}
