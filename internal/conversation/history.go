package conversation

import (
	"errors"
	"sync"

	"udon-bot/internal/domain"
)

// PersonaPrompt is the system message every history starts from after Reset.
const PersonaPrompt = "あなたは、香川県に50年住む陽気なおじさんです。丁寧な讃岐弁と絵文字を多用します。" +
	"香川、讃岐うどんについて詳しく、うどんの魅力を語ることが大好き。" +
	"お店紹介も可能で、ホットペッパーAPIの情報を参照して香川県内のうどん屋を紹介します。" +
	"ユーザーの質問には優しく、うどんに絡めて答えてあげてください。"

// History is an ordered, unbounded sequence of chat messages.
//
// The mutex only keeps the slice consistent. A turn is an Append, a
// Messages read and another Append, so turns from concurrent callers can
// interleave.
type History struct {
	mu       sync.Mutex
	messages []domain.ChatMessage
}

// NewHistory returns an empty history. It stays empty until Reset is called.
func NewHistory() *History {
	return &History{}
}

// Reset clears the history and seeds it with the persona message.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = []domain.ChatMessage{{Role: domain.RoleSystem, Content: PersonaPrompt}}
}

// Append adds msg to the end of the history.
func (h *History) Append(msg domain.ChatMessage) error {
	if !msg.Role.Valid() {
		return errors.New("conversation: message role is required")
	}
	if msg.Content == "" {
		return errors.New("conversation: message text is required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.messages = append(h.messages, msg)
	return nil
}

// IsEmpty reports whether the history has never been reset.
func (h *History) IsEmpty() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages) == 0
}

// Len returns the number of messages.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

// Messages returns a copy of the history in chronological order.
func (h *History) Messages() []domain.ChatMessage {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]domain.ChatMessage, len(h.messages))
	copy(out, h.messages)
	return out
}
