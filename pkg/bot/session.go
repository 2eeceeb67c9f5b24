package bot

import (
	"context"
	"log/slog"
	"time"

	"github.com/triagesec/triagebot/pkg/auth"
	"github.com/triagesec/triagebot/pkg/fsm"
	"github.com/triagesec/triagebot/pkg/models"
)

// historyLimit bounds the per-session ring of finished tasks that the
// "ignore last" command can refer back to.
const historyLimit = 10

// host is the coordinator surface a session calls back into. The
// concrete implementation is *Bot; sessions never own their coordinator.
type host interface {
	alertUser(ctx context.Context, s *Session, task *models.Task)
	sendTemplate(ctx context.Context, s *Session, key string, vars map[string]string)
	reportTask(ctx context.Context, s *Session, task *models.Task, comment string)
	verifyTask(ctx context.Context, task *models.Task)
	ignoreTask(ctx context.Context, username, title, reason string, ttl time.Duration)
	ignoredTitles(ctx context.Context, username string) map[string]string
	cleanupSession(s *Session)
	escalationDeadline(now time.Time) time.Time
	backoffTTL() time.Duration
	now() time.Time
}

// Session is the per-user conversation state machine. All mutation happens
// on the coordinator loop; no internal locking.
type Session struct {
	user    models.ChatUser
	auth    auth.Authenticator
	host    host
	machine *fsm.Machine
	logger  *slog.Logger

	queue   []*models.Task
	pending *models.Task
	// history keeps recently finished tasks so "ignore last" has a target.
	history []*models.Task

	lastMessage models.Answer
	lastAuth    auth.State

	// deadline is the auto-escalation time; zero means no deadline armed.
	deadline time.Time

	// ctx carries the per-step context into FSM callbacks.
	ctx context.Context
}

func newSession(user models.ChatUser, authenticator auth.Authenticator, h host) (*Session, error) {
	s := &Session{
		user:   user,
		auth:   authenticator,
		host:   h,
		logger: slog.Default().With("component", "session", "user", user.Name),
	}

	machine, err := fsm.New(fsm.Config{
		States: []string{
			"need_task",
			"action_performed_check",
			"auth_permission_check",
			"waiting_on_auth",
			"task_finished",
		},
		Initial: "need_task",
		// Declaration order matters: overlapping guards resolve first-match.
		Transitions: []fsm.Transition{
			{Source: "need_task", Dest: "action_performed_check", Condition: s.hasTasks},
			{Source: "action_performed_check", Dest: "task_finished", Condition: s.alreadyAuthed},
			{Source: "action_performed_check", Dest: "task_finished", Condition: s.cannotAuth,
				Action: func() { s.send("no_2fa") }},
			{Source: "action_performed_check", Dest: "auth_permission_check", Condition: s.performedAction},
			{Source: "action_performed_check", Dest: "task_finished", Condition: s.didNotPerformAction,
				Action: s.actOnNotPerformed},
			{Source: "action_performed_check", Dest: "task_finished", Condition: s.slowResponse,
				Action: s.autoEscalate},
			{Source: "auth_permission_check", Dest: "waiting_on_auth", Condition: s.allowsAuth},
			{Source: "auth_permission_check", Dest: "task_finished", Condition: s.deniesAuth,
				Action: func() { s.send("escalated") }},
			{Source: "auth_permission_check", Dest: "task_finished", Condition: s.slowResponse,
				Action: s.autoEscalate},
			{Source: "waiting_on_auth", Dest: "task_finished", Condition: s.authCompleted},
			{Source: "task_finished", Dest: "need_task"},
		},
		During: map[string]func(){
			"waiting_on_auth": s.refreshAuth,
		},
		OnEnter: map[string]func(){
			"auth_permission_check": func() { s.send("2fa") },
			"waiting_on_auth":       s.beginAuth,
		},
		OnExit: map[string]func(){
			"need_task":              s.nextTask,
			"action_performed_check": s.commitResponse,
			"auth_permission_check":  s.resetMessage,
			"waiting_on_auth":        s.commitAuth,
			"task_finished":          s.completeTask,
		},
	})
	if err != nil {
		return nil, err
	}
	s.machine = machine
	return s, nil
}

// User returns the chat identity this session converses with.
func (s *Session) User() models.ChatUser {
	return s.user
}

// State exposes the current FSM state, for the status endpoint and tests.
func (s *Session) State() string {
	return s.machine.Current()
}

// Step advances the conversation by at most one transition. A panic in a
// callback is contained so one broken session cannot take down the loop.
func (s *Session) Step(ctx context.Context) {
	s.ctx = ctx
	defer func() {
		s.ctx = nil
		if r := recover(); r != nil {
			s.logger.Error("Session step panicked", "panic", r, "state", s.machine.Current())
		}
	}()
	s.machine.Step()
}

// AddTask queues a task and immediately sweeps the queue against the
// user's suppression set.
func (s *Session) AddTask(ctx context.Context, task *models.Task) {
	s.queue = append(s.queue, task)
	s.ctx = ctx
	defer func() { s.ctx = nil }()
	s.sweepQueue()
}

// PositiveResponse records a yes answer with accompanying text.
func (s *Session) PositiveResponse(text string) {
	s.lastMessage = models.Yes(text)
}

// NegativeResponse records a no answer with accompanying text.
func (s *Session) NegativeResponse(text string) {
	s.lastMessage = models.No(text)
}

// PendingTask returns the task currently under discussion, or nil.
func (s *Session) PendingTask() *models.Task {
	return s.pending
}

// LastFinishedTask returns the most recently completed task, or nil.
func (s *Session) LastFinishedTask() *models.Task {
	if len(s.history) == 0 {
		return nil
	}
	return s.history[len(s.history)-1]
}

// Guards

func (s *Session) hasTasks() bool {
	return len(s.queue) != 0
}

func (s *Session) alreadyAuthed() bool {
	return s.performedAction() && s.authStatus() == auth.StateAuthorized
}

func (s *Session) cannotAuth() bool {
	if !s.performedAction() {
		return false
	}
	can, err := s.auth.CanAuth(s.ctx)
	if err != nil {
		// Treat an unreachable 2FA backend as no capability so the task
		// still lands in front of a human.
		s.logger.Warn("2FA capability check failed", "error", err)
		return true
	}
	return !can
}

func (s *Session) performedAction() bool {
	return s.lastMessage.IsYes()
}

func (s *Session) didNotPerformAction() bool {
	return s.lastMessage.IsNo()
}

func (s *Session) slowResponse() bool {
	return !s.deadline.IsZero() && s.host.now().After(s.deadline)
}

func (s *Session) allowsAuth() bool {
	return s.lastMessage.IsYes()
}

func (s *Session) deniesAuth() bool {
	return s.lastMessage.IsNo()
}

func (s *Session) authCompleted() bool {
	return s.lastAuth == auth.StateAuthorized || s.lastAuth == auth.StateDenied
}

// Actions and hooks

func (s *Session) refreshAuth() {
	s.lastAuth = s.authStatus()
}

func (s *Session) authStatus() auth.State {
	state, err := s.auth.Status(s.ctx)
	if err != nil {
		s.logger.Warn("2FA status poll failed", "error", err)
	}
	return state
}

func (s *Session) beginAuth() {
	s.send("sending_push")
	if err := s.auth.Begin(s.ctx, s.pending.Description); err != nil {
		// Resolve the wait as a denial so the conversation cannot hang.
		s.logger.Warn("2FA challenge failed to start", "error", err)
		s.lastAuth = auth.StateDenied
	}
}

func (s *Session) nextTask() {
	s.pending = s.queue[0]
	s.queue = s.queue[1:]
	s.host.alertUser(s.ctx, s, s.pending)
	s.resetMessage()
	s.deadline = s.host.escalationDeadline(s.host.now())
	s.logger.Info("Beginning task", "title", s.pending.Title)
}

func (s *Session) commitResponse() {
	if s.lastMessage.IsSet() {
		s.pending.Performed = s.lastMessage.IsYes()
		s.pending.Comment = s.lastMessage.Text
	}
	s.resetMessage()
}

func (s *Session) commitAuth() {
	if s.lastAuth == auth.StateAuthorized {
		s.send("good_auth")
		s.pending.Authenticated = true
	} else {
		s.send("bad_auth")
		s.auth.Reset()
		s.pending.Authenticated = false
	}
}

func (s *Session) autoEscalate() {
	s.logger.Info("Silently escalating task", "title", s.pending.Title)
	// Appended because the auth-permission phase reuses the same field.
	s.pending.Comment += "Automatically escalated. No response received."
	s.host.verifyTask(s.ctx, s.pending)
	s.deadline = time.Time{}
	s.send("no_response")
}

func (s *Session) actOnNotPerformed() {
	s.send("escalated")
	comment := s.lastMessage.Text
	if comment == "" {
		comment = "No comment provided."
	}
	s.host.reportTask(s.ctx, s, s.pending, comment)
}

func (s *Session) completeTask() {
	if s.pending.Performed {
		s.host.ignoreTask(s.ctx, s.user.Name, s.pending.Title,
			"auto backoff after confirmation", s.host.backoffTTL())
	}
	if s.pending.Status != models.StatusVerification {
		s.host.verifyTask(s.ctx, s.pending)
	}
	s.history = append(s.history, s.pending)
	if len(s.history) > historyLimit {
		s.history = s.history[1:]
	}
	s.pending = nil
	s.resetMessage()
	s.sweepQueue()
	if len(s.queue) > 0 {
		s.send("bwtm")
	} else {
		s.send("bye")
		s.host.cleanupSession(s)
	}
}

// sweepQueue short-circuits queued tasks whose title the user currently
// ignores: they go straight to verification carrying the ignore reason.
func (s *Session) sweepQueue() {
	ignored := s.host.ignoredTitles(s.ctx, s.user.Name)
	if len(ignored) == 0 {
		return
	}
	kept := s.queue[:0]
	for _, task := range s.queue {
		if reason, ok := ignored[task.Title]; ok {
			s.logger.Info("Suppressing task", "title", task.Title)
			task.Comment = reason
			s.host.verifyTask(s.ctx, task)
			continue
		}
		kept = append(kept, task)
	}
	s.queue = kept
}

func (s *Session) resetMessage() {
	s.lastMessage = models.Answer{}
}

func (s *Session) send(key string) {
	s.host.sendTemplate(s.ctx, s, key, nil)
}
