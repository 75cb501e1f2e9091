// Package domain defines the bot's records and their Mongo repositories.
package domain

// Reply is an outbound chat message. QuickReplies render as a reply keyboard
// with one row of buttons.
type Reply struct {
	Text         string
	QuickReplies []string
	Markdown     bool
}
