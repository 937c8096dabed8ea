package usecase

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"udon-bot/internal/conversation"
	"udon-bot/internal/domain"
	"udon-bot/internal/integrations/openai"
)

type mockLLM struct {
	answer    string
	err       error
	callCount int
	captured  []domain.ChatMessage
	params    domain.CompletionParams
}

func (m *mockLLM) Complete(_ context.Context, msgs []domain.ChatMessage, params domain.CompletionParams) (string, error) {
	m.callCount++
	m.captured = msgs
	m.params = params
	return m.answer, m.err
}

type stubShops struct {
	shop       domain.Shop
	found      bool
	calls      int
	gotArea    string
	gotKeyword string
}

func (s *stubShops) PickRandomShop(_ context.Context, areaCode, keyword string) (domain.Shop, bool) {
	s.calls++
	s.gotArea = areaCode
	s.gotKeyword = keyword
	return s.shop, s.found
}

type mockArchive struct {
	err      error
	saved    int
	userID   string
	question string
	answer   string
}

func (m *mockArchive) SaveCompletedTurn(_ context.Context, userID, _, question, answer string) error {
	m.saved++
	m.userID = userID
	m.question = question
	m.answer = answer
	return m.err
}

func newTestReplyService(t *testing.T, sessions conversation.Sessions, llm LLMClient, shops ShopFinder, opts ...ReplyOption) *ReplyService {
	t.Helper()
	svc, err := NewReplyService(sessions, llm, shops, opts...)
	require.NoError(t, err)
	return svc
}

func seededSessions() *conversation.SharedSessions {
	s := conversation.NewSharedSessions()
	s.Session("").Reset()
	return s
}

func expectGenerateError(t *testing.T, err error, code ErrorCode, reason string) {
	t.Helper()
	var usecaseErr *Error
	require.ErrorAs(t, err, &usecaseErr)
	require.Equal(t, code, usecaseErr.Code)
	require.Equal(t, reason, usecaseErr.Reason)
}

func TestNewReplyService_ValidatesDependencies(t *testing.T) {
	_, err := NewReplyService(nil, &mockLLM{}, &stubShops{})
	require.Error(t, err)

	_, err = NewReplyService(seededSessions(), nil, &stubShops{})
	require.Error(t, err)

	_, err = NewReplyService(seededSessions(), &mockLLM{}, nil)
	require.Error(t, err)
}

func TestGenerate_PlainTextTurn(t *testing.T) {
	sessions := seededSessions()
	llm := &mockLLM{answer: "まいど！今日もうどん日和やな🍜"}
	shops := &stubShops{}
	svc := newTestReplyService(t, sessions, llm, shops)

	out, err := svc.Generate(context.Background(), GenerateInput{UserID: "U1", DisplayName: "太郎", Text: "こんにちは"})
	require.NoError(t, err)
	require.Equal(t, []string{"まいど！今日もうどん日和やな🍜"}, out.Messages)
	require.Zero(t, shops.calls)

	require.Equal(t, 1, llm.callCount)
	require.Len(t, llm.captured, 2)
	require.Equal(t, domain.RoleSystem, llm.captured[0].Role)
	require.Equal(t, domain.ChatMessage{Role: domain.RoleUser, Content: "こんにちは"}, llm.captured[1])
	require.Equal(t, domain.DefaultCompletionParams(), llm.params)

	msgs := sessions.Session("U1").Messages()
	require.Len(t, msgs, 3)
	require.Equal(t, domain.ChatMessage{Role: domain.RoleAssistant, Content: "まいど！今日もうどん日和やな🍜"}, msgs[2])
}

func TestGenerate_ResetKeywords(t *testing.T) {
	for _, kw := range resetKeywords {
		t.Run(kw, func(t *testing.T) {
			sessions := seededSessions()
			history := sessions.Session("U1")
			require.NoError(t, history.Append(domain.ChatMessage{Role: domain.RoleUser, Content: "old"}))
			require.NoError(t, history.Append(domain.ChatMessage{Role: domain.RoleAssistant, Content: "old answer"}))

			llm := &mockLLM{answer: "unused"}
			svc := newTestReplyService(t, sessions, llm, &stubShops{})

			out, err := svc.Generate(context.Background(), GenerateInput{UserID: "U1", Text: kw})
			require.NoError(t, err)
			require.Equal(t, []string{resetConfirmation}, out.Messages)
			require.Zero(t, llm.callCount)
			require.Equal(t, []domain.ChatMessage{{Role: domain.RoleSystem, Content: conversation.PersonaPrompt}}, history.Messages())
		})
	}
}

func TestGenerate_ResetRequiresExactMatch(t *testing.T) {
	llm := &mockLLM{answer: "ok"}
	svc := newTestReplyService(t, seededSessions(), llm, &stubShops{})

	out, err := svc.Generate(context.Background(), GenerateInput{UserID: "U1", Text: "リセットして"})
	require.NoError(t, err)
	require.Equal(t, []string{"ok"}, out.Messages)
	require.Equal(t, 1, llm.callCount)
}

func TestGenerate_ShopTriggerFound(t *testing.T) {
	sessions := seededSessions()
	llm := &mockLLM{answer: "讃岐製麺所はええでぇ"}
	shops := &stubShops{shop: domain.Shop{Name: "讃岐製麺所"}, found: true}
	svc := newTestReplyService(t, sessions, llm, shops)

	_, err := svc.Generate(context.Background(), GenerateInput{UserID: "U1", Text: "おすすめのお店教えて"})
	require.NoError(t, err)
	require.Equal(t, 1, shops.calls)
	require.Equal(t, "Z082", shops.gotArea)
	require.Equal(t, "うどん", shops.gotKeyword)

	userTurn := sessions.Session("U1").Messages()[1].Content
	require.True(t, strings.HasPrefix(userTurn, "おすすめのお店教えて\n\n【HotPepperでランダム検索】\n"))
	require.Contains(t, userTurn, "店名: 讃岐製麺所")
	require.Equal(t, userTurn, llm.captured[1].Content)
}

func TestGenerate_ShopTriggerNotFound(t *testing.T) {
	sessions := seededSessions()
	svc := newTestReplyService(t, sessions, &mockLLM{answer: "ごめんやで"}, &stubShops{found: false})

	_, err := svc.Generate(context.Background(), GenerateInput{UserID: "U1", Text: "おすすめ"})
	require.NoError(t, err)

	userTurn := sessions.Session("U1").Messages()[1].Content
	require.Contains(t, userTurn, "【HotPepperでランダム検索】")
	require.Contains(t, userTurn, shopNotFoundSummary)
}

func TestGenerate_ShopTriggerWithPicker(t *testing.T) {
	sessions := seededSessions()
	picker, err := NewShopPicker(&stubSearcher{shops: []domain.Shop{}})
	require.NoError(t, err)
	svc := newTestReplyService(t, sessions, &mockLLM{answer: "ok"}, picker)

	_, err = svc.Generate(context.Background(), GenerateInput{UserID: "U1", Text: "おすすめ"})
	require.NoError(t, err)
	require.Contains(t, sessions.Session("U1").Messages()[1].Content, "見つからなかった")
}

func TestGenerate_HistoryGrowsByTwoPerTurn(t *testing.T) {
	sessions := seededSessions()
	svc := newTestReplyService(t, sessions, &mockLLM{answer: "ok"}, &stubShops{found: true, shop: domain.Shop{Name: "がもう"}})

	for i, text := range []string{"こんにちは", "おすすめは？", "ありがとう"} {
		before := sessions.Session("U1").Len()
		_, err := svc.Generate(context.Background(), GenerateInput{UserID: "U1", Text: text})
		require.NoError(t, err)
		require.Equal(t, before+2, sessions.Session("U1").Len(), "turn %d", i)
	}
}

func TestGenerate_CompletionErrors(t *testing.T) {
	sessions := seededSessions()
	svc := newTestReplyService(t, sessions, &mockLLM{err: &openai.HTTPStatusError{StatusCode: http.StatusTooManyRequests}}, &stubShops{})
	_, err := svc.Generate(context.Background(), GenerateInput{UserID: "U1", Text: "こんにちは"})
	expectGenerateError(t, err, ErrorRateLimited, "openai_rate_limited")

	svc = newTestReplyService(t, sessions, &mockLLM{err: &openai.HTTPStatusError{StatusCode: http.StatusInternalServerError}}, &stubShops{})
	_, err = svc.Generate(context.Background(), GenerateInput{UserID: "U1", Text: "こんにちは"})
	expectGenerateError(t, err, ErrorUpstream, "openai_error")

	svc = newTestReplyService(t, sessions, &mockLLM{err: errors.New("dial tcp: timeout")}, &stubShops{})
	_, err = svc.Generate(context.Background(), GenerateInput{UserID: "U1", Text: "こんにちは"})
	expectGenerateError(t, err, ErrorUpstream, "openai_error")

	// The user turns stay in the history; no assistant turn was added.
	msgs := sessions.Session("U1").Messages()
	require.Len(t, msgs, 4)
	for _, m := range msgs[1:] {
		require.Equal(t, domain.RoleUser, m.Role)
	}
}

func TestGenerate_EmptyCompletion(t *testing.T) {
	svc := newTestReplyService(t, seededSessions(), &mockLLM{answer: ""}, &stubShops{})
	_, err := svc.Generate(context.Background(), GenerateInput{UserID: "U1", Text: "こんにちは"})
	expectGenerateError(t, err, ErrorUpstream, "openai_empty_completion")
}

func TestGenerate_ArchivesCompletedTurn(t *testing.T) {
	archive := &mockArchive{}
	svc := newTestReplyService(t, seededSessions(), &mockLLM{answer: "ok"}, &stubShops{}, WithArchive(archive))

	_, err := svc.Generate(context.Background(), GenerateInput{UserID: "U1", Text: "こんにちは"})
	require.NoError(t, err)
	require.Equal(t, 1, archive.saved)
	require.Equal(t, "U1", archive.userID)
	require.Equal(t, "こんにちは", archive.question)
	require.Equal(t, "ok", archive.answer)

	_, err = svc.Generate(context.Background(), GenerateInput{UserID: "U1", Text: "reset"})
	require.NoError(t, err)
	require.Equal(t, 1, archive.saved)
}

func TestGenerate_ArchiveFailureDoesNotFailTurn(t *testing.T) {
	archive := &mockArchive{err: errors.New("dynamodb down")}
	svc := newTestReplyService(t, seededSessions(), &mockLLM{answer: "ok"}, &stubShops{}, WithArchive(archive))

	out, err := svc.Generate(context.Background(), GenerateInput{UserID: "U1", Text: "こんにちは"})
	require.NoError(t, err)
	require.Equal(t, []string{"ok"}, out.Messages)
}

func TestGenerate_PerUserSessionsIsolateHistories(t *testing.T) {
	sessions := conversation.NewPerUserSessions()
	sessions.Session("U1").Reset()
	sessions.Session("U2").Reset()
	llm := &mockLLM{answer: "ok"}
	svc := newTestReplyService(t, sessions, llm, &stubShops{})

	_, err := svc.Generate(context.Background(), GenerateInput{UserID: "U1", Text: "one"})
	require.NoError(t, err)
	_, err = svc.Generate(context.Background(), GenerateInput{UserID: "U2", Text: "two"})
	require.NoError(t, err)

	require.Len(t, llm.captured, 2)
	require.Equal(t, "two", llm.captured[1].Content)
	require.Equal(t, 3, sessions.Session("U1").Len())
	require.Equal(t, 3, sessions.Session("U2").Len())
}

// blockingLLM parks the first caller until release is closed.
type blockingLLM struct {
	entered chan struct{}
	release chan struct{}
	first   bool
}

func (b *blockingLLM) Complete(_ context.Context, msgs []domain.ChatMessage, _ domain.CompletionParams) (string, error) {
	last := msgs[len(msgs)-1].Content
	if !b.first {
		b.first = true
		close(b.entered)
		<-b.release
	}
	return "re: " + last, nil
}

// The shared history has no per-turn isolation, so a turn from one user can
// land between another user's question and answer.
func TestGenerate_SharedHistoryInterleavesConcurrentTurns(t *testing.T) {
	sessions := seededSessions()
	llm := &blockingLLM{entered: make(chan struct{}), release: make(chan struct{})}
	svc := newTestReplyService(t, sessions, llm, &stubShops{})

	done := make(chan error, 1)
	go func() {
		_, err := svc.Generate(context.Background(), GenerateInput{UserID: "U1", Text: "from U1"})
		done <- err
	}()

	<-llm.entered
	_, err := svc.Generate(context.Background(), GenerateInput{UserID: "U2", Text: "from U2"})
	require.NoError(t, err)
	close(llm.release)
	require.NoError(t, <-done)

	var got []string
	for _, m := range sessions.Session("").Messages()[1:] {
		got = append(got, m.Content)
	}
	require.Equal(t, []string{"from U1", "from U2", "re: from U2", "re: from U1"}, got)
}
