package domain

import "time"

// UnknownUserName is stored when the chat platform does not expose a username.
const UnknownUserName = "Unknown"

// User represents a Telegram user known to the bot. UserID identifies the
// platform account and ChatID routes outbound messages; in private chats both
// carry the same value.
type User struct {
	UserID    int64     `bson:"user_id" json:"userId"`
	UserName  string    `bson:"user_name" json:"userName"`
	ChatID    int64     `bson:"chat_id" json:"chatId"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`
	UpdatedAt time.Time `bson:"updated_at" json:"updatedAt"`
}

// Profile carries the mutable attributes refreshed on every inbound message.
type Profile struct {
	UserID   int64
	UserName string
	ChatID   int64
}
