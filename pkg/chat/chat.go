// Package chat abstracts the messaging platform the coordinator talks
// through. The Slack adapter is the production implementation; tests use
// in-memory fakes.
package chat

import (
	"context"

	"github.com/triagesec/triagebot/pkg/models"
)

// Message is a single inbound direct message.
type Message struct {
	UserID    string
	ChannelID string
	Text      string
}

// Chat is the platform contract consumed by the coordinator.
type Chat interface {
	// Connect establishes the event stream. It returns once the
	// connection handshake is underway; Messages drains events after.
	Connect(ctx context.Context) error

	// Close tears down the event stream.
	Close() error

	// Users fetches the full member roster, keyed however the platform
	// identifies accounts.
	Users(ctx context.Context) ([]models.ChatUser, error)

	// Messages drains all direct messages received since the last call
	// without blocking.
	Messages() []Message

	// SendMessage posts text to an open conversation.
	SendMessage(ctx context.Context, channelID, text string) error

	// MessageUser opens a direct conversation with the user and posts
	// text into it.
	MessageUser(ctx context.Context, userID, text string) error
}
