package models

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ChatMessage is a single turn fragment. Timestamps are wall-clock seconds,
// matching the wire format the chat clients already consume.
type ChatMessage struct {
	Role      string  `json:"role"`
	Content   string  `json:"content"`
	Timestamp float64 `json:"timestamp"`
}

// Conversation is the stored state of one multi-turn chat. Messages are
// append-only and timestamp-nondecreasing; UseCaseID is fixed at creation.
type Conversation struct {
	ID        string        `json:"conversation_id"`
	Messages  []ChatMessage `json:"messages"`
	ModelUsed string        `json:"model_used"`
	CreatedAt float64       `json:"created_at"`
	UseCaseID string        `json:"use_case_id"`
}

// Clone returns a deep copy so callers can read a conversation without
// holding store locks.
func (c *Conversation) Clone() *Conversation {
	out := *c
	out.Messages = append([]ChatMessage(nil), c.Messages...)
	return &out
}
