package domain

// Turn is a single archived user/assistant exchange.
type Turn struct {
	PK          string
	SK          string
	TurnID      string
	UserID      string
	DisplayName string
	Text        string
	Answer      string
	TTL         int64
}
