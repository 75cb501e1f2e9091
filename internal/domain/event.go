package domain

// InboundEvent is a text message received from a chat.
type InboundEvent struct {
	ChatID       int64
	FromUsername string
	Text         string
}
