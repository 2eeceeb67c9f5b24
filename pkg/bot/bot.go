// Package bot contains the coordinator loop, the per-user conversation
// session, and the chat command table.
package bot

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/triagesec/triagebot/pkg/auth"
	"github.com/triagesec/triagebot/pkg/chat"
	"github.com/triagesec/triagebot/pkg/config"
	"github.com/triagesec/triagebot/pkg/models"
	"github.com/triagesec/triagebot/pkg/schedule"
	"github.com/triagesec/triagebot/pkg/suppress"
	"github.com/triagesec/triagebot/pkg/tasker"
)

// loopInterval is the sleep between coordinator iterations.
const loopInterval = 100 * time.Millisecond

// Options wires the coordinator's collaborators. Everything the loop
// touches arrives here so tests can substitute fakes.
type Options struct {
	Chat        chat.Chat
	Store       tasker.Store
	Ignores     suppress.IgnoreStore
	Blacklist   suppress.Blacklist
	AuthFactory auth.Factory
	Messages    config.Messages
	Commands    map[string]config.CommandConfig

	// ReportingChannel receives escalation reports; empty disables them.
	ReportingChannel string
	// Location is the timezone business-hours deadlines are computed in.
	Location *time.Location

	EscalationTime time.Duration
	BackoffTime    time.Duration
	PollInterval   time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Bot is the single-threaded coordinator. One goroutine runs the loop;
// all session state is confined to it. The only cross-goroutine reads are
// the atomic gauges consumed by the status endpoint.
type Bot struct {
	chat        chat.Chat
	store       tasker.Store
	ignores     suppress.IgnoreStore
	blacklist   suppress.Blacklist
	authFactory auth.Factory
	messages    config.Messages
	commands    map[string]*boundCommand

	reportingChannel string
	loc              *time.Location
	escalation       time.Duration
	backoff          time.Duration
	pollInterval     time.Duration
	nowFn            func() time.Time
	logger           *slog.Logger

	usersByID   map[string]models.ChatUser
	usersByName map[string]models.ChatUser
	// sessions holds every user we have ever conversed with; active is
	// the subset the loop currently steps.
	sessions map[string]*Session
	active   map[string]*Session

	lastPoll time.Time

	activeGauge atomic.Int64
	rosterGauge atomic.Int64
}

// New builds the coordinator and binds the command table. An unknown
// handler name in the table is fatal.
func New(opts Options) (*Bot, error) {
	commands, err := bindCommands(opts.Commands)
	if err != nil {
		return nil, err
	}

	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.EscalationTime == 0 {
		opts.EscalationTime = 2 * time.Hour
	}
	if opts.BackoffTime == 0 {
		opts.BackoffTime = 21 * time.Hour
	}
	if opts.PollInterval == 0 {
		opts.PollInterval = time.Minute
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Bot{
		chat:             opts.Chat,
		store:            opts.Store,
		ignores:          opts.Ignores,
		blacklist:        opts.Blacklist,
		authFactory:      opts.AuthFactory,
		messages:         opts.Messages,
		commands:         commands,
		reportingChannel: opts.ReportingChannel,
		loc:              opts.Location,
		escalation:       opts.EscalationTime,
		backoff:          opts.BackoffTime,
		pollInterval:     opts.PollInterval,
		nowFn:            opts.Now,
		logger:           slog.Default().With("component", "bot"),
		usersByID:        make(map[string]models.ChatUser),
		usersByName:      make(map[string]models.ChatUser),
		sessions:         make(map[string]*Session),
		active:           make(map[string]*Session),
	}, nil
}

// Bootstrap loads the chat roster and re-admits tasks left in progress by
// a previous run. Call once after the chat adapter is connected.
func (b *Bot) Bootstrap(ctx context.Context) error {
	if err := b.populateUsers(ctx); err != nil {
		return err
	}

	recovered, err := b.store.ActiveTasks(ctx)
	if err != nil {
		return fmt.Errorf("recovering in-progress tasks: %w", err)
	}
	for _, task := range recovered {
		b.logger.Info("Recovering task", "title", task.Title, "user", task.Username)
		b.admit(ctx, task)
	}
	return nil
}

// Run drives the coordinator until the context is canceled. In-progress
// tasks stay persisted as such; Bootstrap re-admits them on restart.
func (b *Bot) Run(ctx context.Context) error {
	b.logger.Info("Coordinator loop starting")
	ticker := time.NewTicker(loopInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Coordinator loop stopping")
			return ctx.Err()
		case <-ticker.C:
			b.tick(ctx)
		}
	}
}

// tick is one iteration: poll tasks on the slow cadence, drain chat,
// step every active session.
func (b *Bot) tick(ctx context.Context) {
	now := b.nowFn()
	if now.Sub(b.lastPoll) >= b.pollInterval {
		b.lastPoll = now
		b.pollNewTasks(ctx)
	}
	b.handleMessages(ctx)
	b.stepSessions(ctx)
}

func (b *Bot) pollNewTasks(ctx context.Context) {
	tasks, err := b.store.NewTasks(ctx)
	if err != nil {
		b.logger.Error("Failed to poll new tasks", "error", err)
		return
	}
	for _, task := range tasks {
		b.logger.Info("Handling new task", "title", task.Title, "user", task.Username)
		b.admit(ctx, task)
	}
}

// admit routes a task to its user's session, short-circuiting unknown and
// blacklisted users straight to human verification.
func (b *Bot) admit(ctx context.Context, task *models.Task) {
	user, ok := b.lookupByName(task.Username)
	if !ok {
		b.logger.Warn("Task for unknown user", "user", task.Username, "title", task.Title)
		task.Comment = "invalid user"
		b.verifyTask(ctx, task)
		return
	}

	if b.blacklist.Contains(task.Username) {
		b.logger.Info("Ignoring task for blacklisted user", "user", task.Username)
		task.Comment = "blacklisted"
		b.verifyTask(ctx, task)
		return
	}

	session := b.ensureSession(user)
	if session == nil {
		return
	}
	if _, isActive := b.active[user.ID]; !isActive {
		b.active[user.ID] = session
		b.activeGauge.Store(int64(len(b.active)))
		b.greetUser(ctx, user)
	}
	session.AddTask(ctx, task)
	if task.Status == models.StatusVerification {
		// The admission sweep short-circuited it to human review.
		return
	}
	if err := b.store.SetInProgress(ctx, task); err != nil {
		b.logger.Error("Failed to mark task in progress", "title", task.Title, "error", err)
	}
}

func (b *Bot) handleMessages(ctx context.Context) {
	for _, msg := range b.chat.Messages() {
		user, ok := b.usersByID[msg.UserID]
		if !ok {
			b.logger.Warn("Message from unknown user", "user_id", msg.UserID)
			continue
		}
		b.handleCommand(ctx, user, msg.Text)
	}
}

func (b *Bot) handleCommand(ctx context.Context, user models.ChatUser, text string) {
	key, args := parseCommand(text)
	cmd, ok := b.commands[key]
	if !ok {
		b.messageUser(ctx, user.ID, b.messages.Get("bad_command"))
		return
	}

	session := b.ensureSession(user)
	if session == nil {
		return
	}

	b.logger.Info("Handling command", "command", key, "user", user.Name)
	switch cmd.handler(ctx, b, session, args) {
	case outcomeSuccess:
		if cmd.cfg.Success != "" {
			b.messageUser(ctx, user.ID, cmd.cfg.Success)
		}
	case outcomeFailure:
		if cmd.cfg.Failure != "" {
			b.messageUser(ctx, user.ID, cmd.cfg.Failure)
		}
	}
}

func (b *Bot) stepSessions(ctx context.Context) {
	// Sessions may remove themselves during their step.
	stepping := make([]*Session, 0, len(b.active))
	for _, s := range b.active {
		stepping = append(stepping, s)
	}
	for _, s := range stepping {
		s.Step(ctx)
	}
}

func (b *Bot) populateUsers(ctx context.Context) error {
	b.logger.Info("Gathering chat roster")
	users, err := b.chat.Users(ctx)
	if err != nil {
		return fmt.Errorf("loading chat roster: %w", err)
	}
	for _, u := range users {
		b.usersByID[u.ID] = u
		b.usersByName[u.Name] = u
	}
	b.rosterGauge.Store(int64(len(b.usersByID)))
	b.logger.Info("Roster loaded", "users", len(b.usersByID))
	return nil
}

// lookupByName resolves a task's username against the roster. Usernames
// with embedded whitespace are never valid.
func (b *Bot) lookupByName(username string) (models.ChatUser, bool) {
	if len(strings.Fields(username)) != 1 {
		return models.ChatUser{}, false
	}
	user, ok := b.usersByName[username]
	return user, ok
}

func (b *Bot) ensureSession(user models.ChatUser) *Session {
	if session, ok := b.sessions[user.ID]; ok {
		return session
	}
	session, err := newSession(user, b.authFactory(user.Name), b)
	if err != nil {
		b.logger.Error("Failed to build session", "user", user.Name, "error", err)
		return nil
	}
	b.sessions[user.ID] = session
	return session
}

// ActiveSessions reports how many conversations the loop is stepping.
// Safe to call from other goroutines.
func (b *Bot) ActiveSessions() int {
	return int(b.activeGauge.Load())
}

// RosterSize reports how many chat users are known.
// Safe to call from other goroutines.
func (b *Bot) RosterSize() int {
	return int(b.rosterGauge.Load())
}

// host implementation

func (b *Bot) alertUser(ctx context.Context, s *Session, task *models.Task) {
	message := b.messages.Render("alert", map[string]string{
		"description": task.Description,
		"reason":      blockquote(task.Reason),
	})
	message += "\n" + b.messages.Get("action_prompt")
	b.messageUser(ctx, s.user.ID, message)
}

func (b *Bot) sendTemplate(ctx context.Context, s *Session, key string, vars map[string]string) {
	b.messageUser(ctx, s.user.ID, b.messages.Render(key, vars))
}

func (b *Bot) reportTask(ctx context.Context, s *Session, task *models.Task, comment string) {
	if b.reportingChannel == "" {
		return
	}
	message := b.messages.Render("report", map[string]string{
		"username":    s.user.Name,
		"title":       task.Title,
		"description": task.Description,
		"comment":     blockquote(comment),
		"url":         task.URL,
	})
	if err := b.chat.SendMessage(ctx, b.reportingChannel, message); err != nil {
		b.logger.Error("Failed to post report", "channel", b.reportingChannel, "error", err)
	}
}

func (b *Bot) verifyTask(ctx context.Context, task *models.Task) {
	if err := b.store.SetVerifying(ctx, task); err != nil {
		b.logger.Error("Failed to mark task for verification", "title", task.Title, "error", err)
	}
}

func (b *Bot) ignoreTask(ctx context.Context, username, title, reason string, ttl time.Duration) {
	err := b.ignores.Ignore(ctx, suppress.Ignore{
		Username: username,
		Title:    title,
		Reason:   reason,
		Until:    b.nowFn().Add(ttl),
	})
	if err != nil {
		b.logger.Error("Failed to record ignore", "user", username, "title", title, "error", err)
	}
}

func (b *Bot) ignoredTitles(ctx context.Context, username string) map[string]string {
	ignores, err := b.ignores.Ignored(ctx, username)
	if err != nil {
		b.logger.Error("Failed to load ignores", "user", username, "error", err)
		return nil
	}
	titles := make(map[string]string, len(ignores))
	for _, ig := range ignores {
		titles[ig.Title] = ig.Reason
	}
	return titles
}

func (b *Bot) cleanupSession(s *Session) {
	b.logger.Debug("Removing user from active set", "user", s.user.Name)
	delete(b.active, s.user.ID)
	b.activeGauge.Store(int64(len(b.active)))
}

func (b *Bot) escalationDeadline(now time.Time) time.Time {
	return schedule.ExpirationTime(now, b.escalation, b.loc)
}

func (b *Bot) backoffTTL() time.Duration {
	return b.backoff
}

func (b *Bot) now() time.Time {
	return b.nowFn()
}

func (b *Bot) greetUser(ctx context.Context, user models.ChatUser) {
	b.messageUser(ctx, user.ID, b.messages.Render("greeting", map[string]string{
		"name": user.DisplayName(),
	}))
}

// messageUser delivers text to a user, logging and dropping on failure.
func (b *Bot) messageUser(ctx context.Context, userID, text string) {
	if err := b.chat.MessageUser(ctx, userID, text); err != nil {
		b.logger.Error("Failed to message user", "user_id", userID, "error", err)
	}
}

// blockquote prefixes every line so embedded text reads as a quote.
func blockquote(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = "> " + line
	}
	return strings.Join(lines, "\n")
}
