package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	goslack "github.com/slack-go/slack"

	"github.com/triagesec/triagebot/pkg/models"
)

// Slack is the Chat implementation over the slack-go RTM stream. Outbound
// messages go through the Web API; inbound direct messages arrive on the
// RTM event channel and are drained without blocking.
type Slack struct {
	api    *goslack.Client
	rtm    *goslack.RTM
	name   string
	icon   string
	logger *slog.Logger
}

// SlackOptions configures the Slack adapter.
type SlackOptions struct {
	// Token is the bot token used for both the Web API and RTM.
	Token string
	// Username is the display name attached to outbound messages.
	Username string
	// IconURL decorates outbound messages when non-empty.
	IconURL string
	// APIURL overrides the Slack API endpoint, for tests.
	APIURL string
}

// NewSlack creates the Slack adapter. Connect must be called before
// Messages yields anything.
func NewSlack(opts SlackOptions) *Slack {
	apiOpts := []goslack.Option{}
	if opts.APIURL != "" {
		apiOpts = append(apiOpts, goslack.OptionAPIURL(opts.APIURL))
	}
	return &Slack{
		api:    goslack.New(opts.Token, apiOpts...),
		name:   opts.Username,
		icon:   opts.IconURL,
		logger: slog.Default().With("component", "slack"),
	}
}

// Connect starts the RTM connection manager. Reconnection after network
// failures is handled by the SDK.
func (s *Slack) Connect(ctx context.Context) error {
	s.rtm = s.api.NewRTM()
	go s.rtm.ManageConnection()

	// Fail fast on a bad token before entering the run loop.
	if _, err := s.api.AuthTestContext(ctx); err != nil {
		return fmt.Errorf("slack auth test failed: %w", err)
	}

	s.logger.Info("Connected to Slack RTM")
	return nil
}

// Close disconnects the RTM stream.
func (s *Slack) Close() error {
	if s.rtm == nil {
		return nil
	}
	return s.rtm.Disconnect()
}

// Users fetches the workspace roster.
func (s *Slack) Users(ctx context.Context) ([]models.ChatUser, error) {
	raw, err := s.api.GetUsersContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("users.list failed: %w", err)
	}

	users := make([]models.ChatUser, 0, len(raw))
	for _, u := range raw {
		if u.Deleted || u.IsBot {
			continue
		}
		users = append(users, models.ChatUser{
			ID:        u.ID,
			Name:      u.Name,
			FirstName: u.Profile.FirstName,
		})
	}
	return users, nil
}

// Messages drains pending RTM events and returns the direct messages
// among them. Hello, presence, and channel traffic are discarded.
func (s *Slack) Messages() []Message {
	if s.rtm == nil {
		return nil
	}

	var messages []Message
	for {
		select {
		case ev := <-s.rtm.IncomingEvents:
			if msg := directMessage(ev); msg != nil {
				messages = append(messages, *msg)
			}
		default:
			return messages
		}
	}
}

// directMessage extracts a user-authored DM from an RTM event, or nil.
func directMessage(ev goslack.RTMEvent) *Message {
	msg, ok := ev.Data.(*goslack.MessageEvent)
	if !ok {
		return nil
	}
	// DM channel IDs start with D. Events without a user are edits,
	// bot posts, and other subtypes the coordinator never acts on.
	if msg.User == "" || !strings.HasPrefix(msg.Channel, "D") {
		return nil
	}
	return &Message{
		UserID:    msg.User,
		ChannelID: msg.Channel,
		Text:      msg.Text,
	}
}

// SendMessage posts text into an already open conversation.
func (s *Slack) SendMessage(ctx context.Context, channelID, text string) error {
	_, _, err := s.api.PostMessageContext(ctx, channelID, s.messageOptions(text)...)
	if err != nil {
		return fmt.Errorf("chat.postMessage failed: %w", err)
	}
	return nil
}

// MessageUser opens a DM with the user and posts text into it.
func (s *Slack) MessageUser(ctx context.Context, userID, text string) error {
	channel, _, _, err := s.api.OpenConversationContext(ctx, &goslack.OpenConversationParameters{
		Users: []string{userID},
	})
	if err != nil {
		return fmt.Errorf("conversations.open failed for %s: %w", userID, err)
	}
	return s.SendMessage(ctx, channel.ID, text)
}

func (s *Slack) messageOptions(text string) []goslack.MsgOption {
	opts := []goslack.MsgOption{
		goslack.MsgOptionText(text, false),
		goslack.MsgOptionUsername(s.name),
	}
	if s.icon != "" {
		opts = append(opts, goslack.MsgOptionIconURL(s.icon))
	}
	return opts
}
