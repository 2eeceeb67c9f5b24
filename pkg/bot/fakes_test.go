package bot

import (
	"context"
	"time"

	"github.com/triagesec/triagebot/pkg/auth"
	"github.com/triagesec/triagebot/pkg/chat"
	"github.com/triagesec/triagebot/pkg/models"
	"github.com/triagesec/triagebot/pkg/suppress"
	"github.com/triagesec/triagebot/pkg/tasker"
)

// fakeChat records outbound traffic and replays queued inbound messages.
type fakeChat struct {
	roster  []models.ChatUser
	inbox   []chat.Message
	dms     map[string][]string
	channel map[string][]string
}

func newFakeChat(roster ...models.ChatUser) *fakeChat {
	return &fakeChat{
		roster:  roster,
		dms:     make(map[string][]string),
		channel: make(map[string][]string),
	}
}

func (f *fakeChat) Connect(ctx context.Context) error { return nil }
func (f *fakeChat) Close() error                      { return nil }

func (f *fakeChat) Users(ctx context.Context) ([]models.ChatUser, error) {
	return f.roster, nil
}

func (f *fakeChat) Messages() []chat.Message {
	msgs := f.inbox
	f.inbox = nil
	return msgs
}

func (f *fakeChat) SendMessage(ctx context.Context, channelID, text string) error {
	f.channel[channelID] = append(f.channel[channelID], text)
	return nil
}

func (f *fakeChat) MessageUser(ctx context.Context, userID, text string) error {
	f.dms[userID] = append(f.dms[userID], text)
	return nil
}

func (f *fakeChat) receive(userID, text string) {
	f.inbox = append(f.inbox, chat.Message{UserID: userID, ChannelID: "D" + userID, Text: text})
}

// verifiedTask snapshots the fields committed by SetVerifying.
type verifiedTask struct {
	Hash          string
	Performed     bool
	Authenticated bool
	Comment       string
}

// fakeStore is an in-memory tasker.Store.
type fakeStore struct {
	open     []*models.Task
	active   []*models.Task
	verified []verifiedTask
	created  []tasker.CreateAlertRequest
}

func (f *fakeStore) NewTasks(ctx context.Context) ([]*models.Task, error) {
	tasks := f.open
	f.open = nil
	return tasks, nil
}

func (f *fakeStore) ActiveTasks(ctx context.Context) ([]*models.Task, error) {
	tasks := f.active
	f.active = nil
	return tasks, nil
}

func (f *fakeStore) PendingTasks(ctx context.Context) ([]*models.Task, error) {
	return nil, nil
}

func (f *fakeStore) SetOpen(ctx context.Context, task *models.Task) error {
	task.Status = models.StatusOpen
	return nil
}

func (f *fakeStore) SetInProgress(ctx context.Context, task *models.Task) error {
	task.Status = models.StatusInProgress
	return nil
}

func (f *fakeStore) SetVerifying(ctx context.Context, task *models.Task) error {
	task.Status = models.StatusVerification
	f.verified = append(f.verified, verifiedTask{
		Hash:          task.Hash,
		Performed:     task.Performed,
		Authenticated: task.Authenticated,
		Comment:       task.Comment,
	})
	return nil
}

func (f *fakeStore) Create(ctx context.Context, req tasker.CreateAlertRequest) (string, error) {
	f.created = append(f.created, req)
	return "deadbeef", nil
}

// fakeIgnores is an in-memory suppress.IgnoreStore.
type fakeIgnores struct {
	items map[string]suppress.Ignore
	now   func() time.Time
}

func newFakeIgnores(now func() time.Time) *fakeIgnores {
	return &fakeIgnores{items: make(map[string]suppress.Ignore), now: now}
}

func (f *fakeIgnores) Ignored(ctx context.Context, username string) ([]suppress.Ignore, error) {
	var out []suppress.Ignore
	for _, ig := range f.items {
		if ig.Username == username && ig.Until.After(f.now()) {
			out = append(out, ig)
		}
	}
	return out, nil
}

func (f *fakeIgnores) IsIgnored(ctx context.Context, username, title string) (bool, error) {
	ig, ok := f.items[username+"/"+title]
	return ok && ig.Until.After(f.now()), nil
}

func (f *fakeIgnores) Ignore(ctx context.Context, ig suppress.Ignore) error {
	f.items[ig.Username+"/"+ig.Title] = ig
	return nil
}

func mkIgnore(user, title, reason string, until time.Time) suppress.Ignore {
	return suppress.Ignore{Username: user, Title: title, Reason: reason, Until: until}
}

// fakeBlacklist is an in-memory suppress.Blacklist.
type fakeBlacklist struct {
	members map[string]struct{}
}

func newFakeBlacklist(names ...string) *fakeBlacklist {
	f := &fakeBlacklist{members: make(map[string]struct{})}
	for _, n := range names {
		f.members[n] = struct{}{}
	}
	return f
}

func (f *fakeBlacklist) Contains(username string) bool {
	_, ok := f.members[username]
	return ok
}

func (f *fakeBlacklist) Add(ctx context.Context, username string) error {
	f.members[username] = struct{}{}
	return nil
}

func (f *fakeBlacklist) Remove(ctx context.Context, username string) error {
	delete(f.members, username)
	return nil
}

// fakeAuth scripts a per-user authenticator.
type fakeAuth struct {
	canAuth    bool
	canErr     error
	state      auth.State
	afterBegin auth.State

	begun       bool
	beginReason string
	resets      int
}

func (f *fakeAuth) CanAuth(ctx context.Context) (bool, error) {
	return f.canAuth, f.canErr
}

func (f *fakeAuth) Begin(ctx context.Context, reason string) error {
	f.begun = true
	f.beginReason = reason
	f.state = auth.StatePending
	return nil
}

func (f *fakeAuth) Status(ctx context.Context) (auth.State, error) {
	if f.begun && f.state == auth.StatePending {
		f.state = f.afterBegin
	}
	return f.state, nil
}

func (f *fakeAuth) Reset() {
	f.resets++
	f.state = auth.StateNone
}
