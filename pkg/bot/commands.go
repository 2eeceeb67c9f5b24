package bot

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/triagesec/triagebot/pkg/config"
	"github.com/triagesec/triagebot/pkg/models"
	"github.com/triagesec/triagebot/pkg/tasker"
)

// outcome controls which follow-up template a command triggers.
type outcome int

const (
	outcomeSilent outcome = iota
	outcomeSuccess
	outcomeFailure
)

// handlerFunc is a chat command implementation.
type handlerFunc func(ctx context.Context, b *Bot, s *Session, args []string) outcome

// handlerRegistry is the static set of functions the command table may
// reference. The table itself (names, info, visibility) lives in config.
var handlerRegistry = map[string]handlerFunc{
	"hi":                    cmdHi,
	"help":                  cmdHelp,
	"add_to_blacklist":      cmdAddToBlacklist,
	"remove_from_blacklist": cmdRemoveFromBlacklist,
	"positive_response":     cmdPositiveResponse,
	"negative_response":     cmdNegativeResponse,
	"ignore":                cmdIgnore,
	"test":                  cmdTest,
}

type boundCommand struct {
	name    string
	cfg     config.CommandConfig
	handler handlerFunc
}

// bindCommands resolves handler names from the static registry.
func bindCommands(table map[string]config.CommandConfig) (map[string]*boundCommand, error) {
	bound := make(map[string]*boundCommand, len(table))
	for name, cfg := range table {
		handler, ok := handlerRegistry[cfg.Handler]
		if !ok {
			return nil, fmt.Errorf("%w: %q for command %q", config.ErrUnknownHandler, cfg.Handler, name)
		}
		bound[name] = &boundCommand{name: name, cfg: cfg, handler: handler}
	}
	return bound, nil
}

func cmdHi(ctx context.Context, b *Bot, s *Session, args []string) outcome {
	b.sendTemplate(ctx, s, "hi", map[string]string{"name": s.user.DisplayName()})
	return outcomeSilent
}

func cmdHelp(ctx context.Context, b *Bot, s *Session, args []string) outcome {
	showHidden := false
	for _, arg := range args {
		if arg == "-a" {
			showHidden = true
		}
	}

	names := make([]string, 0, len(b.commands))
	for name := range b.commands {
		names = append(names, name)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString(b.messages.Get("help_header"))
	sb.WriteString("\n\n")
	for _, name := range names {
		cmd := b.commands[name]
		if cmd.cfg.Hidden && !showHidden {
			continue
		}
		fmt.Fprintf(&sb, "`%s`: %s\n", name, cmd.cfg.Info)
		if len(cmd.cfg.Usage) > 0 {
			fmt.Fprintf(&sb, "> %s:\n", b.messages.Get("help_usage"))
			for _, usage := range cmd.cfg.Usage {
				sb.WriteString("> \t" + usage + "\n")
			}
		}
	}
	sb.WriteString(b.messages.Get("help_footer"))

	b.messageUser(ctx, s.user.ID, sb.String())
	return outcomeSilent
}

func cmdAddToBlacklist(ctx context.Context, b *Bot, s *Session, args []string) outcome {
	name := s.user.Name
	if b.blacklist.Contains(name) {
		return outcomeFailure
	}
	if err := b.blacklist.Add(ctx, name); err != nil {
		b.logger.Error("Failed to blacklist user", "user", name, "error", err)
		return outcomeFailure
	}
	return outcomeSuccess
}

func cmdRemoveFromBlacklist(ctx context.Context, b *Bot, s *Session, args []string) outcome {
	name := s.user.Name
	if !b.blacklist.Contains(name) {
		return outcomeFailure
	}
	if err := b.blacklist.Remove(ctx, name); err != nil {
		b.logger.Error("Failed to unblacklist user", "user", name, "error", err)
		return outcomeFailure
	}
	return outcomeSuccess
}

func cmdPositiveResponse(ctx context.Context, b *Bot, s *Session, args []string) outcome {
	s.PositiveResponse(strings.Join(args, " "))
	return outcomeSilent
}

func cmdNegativeResponse(ctx context.Context, b *Bot, s *Session, args []string) outcome {
	s.NegativeResponse(strings.Join(args, " "))
	return outcomeSilent
}

var ignoreTimeRegex = regexp.MustCompile(`(?i)^([0-9]+h)?([0-9]+m)?`)

// ignoreTimeLimit caps how long a user may snooze an alert themselves.
const ignoreTimeLimit = 4 * time.Hour

func cmdIgnore(ctx context.Context, b *Bot, s *Session, args []string) outcome {
	if len(args) != 2 {
		return outcomeFailure
	}
	which, rawTime := args[0], args[1]

	var task *models.Task
	switch which {
	case "last":
		task = s.LastFinishedTask()
	case "current":
		task = s.PendingTask()
	}
	if task == nil {
		return outcomeFailure
	}

	duration, ok := parseIgnoreTime(rawTime)
	if !ok {
		return outcomeFailure
	}
	if duration > ignoreTimeLimit {
		b.sendTemplate(ctx, s, "ignore_time", nil)
		duration = ignoreTimeLimit
	} else if duration <= 0 {
		b.sendTemplate(ctx, s, "ignore_no_time", nil)
		return outcomeFailure
	}

	b.ignoreTask(ctx, s.user.Name, task.Title, "ignored", duration)
	return outcomeSuccess
}

// parseIgnoreTime parses durations of the form 2h, 30m, or 1h30m.
func parseIgnoreTime(raw string) (time.Duration, bool) {
	match := ignoreTimeRegex.FindStringSubmatch(raw)
	if match == nil || match[0] == "" {
		return 0, false
	}
	var hours, minutes int
	if match[1] != "" {
		hours, _ = strconv.Atoi(match[1][:len(match[1])-1])
	}
	if match[2] != "" {
		minutes, _ = strconv.Atoi(match[2][:len(match[2])-1])
	}
	return time.Duration(hours)*time.Hour + time.Duration(minutes)*time.Minute, true
}

func cmdTest(ctx context.Context, b *Bot, s *Session, args []string) outcome {
	_, err := b.store.Create(ctx, tasker.CreateAlertRequest{
		Title:       "testing_alert",
		Username:    s.user.Name,
		Description: "Testing alert",
		Reason:      "Testing triagebot",
	})
	if err != nil {
		b.logger.Error("Failed to create test alert", "user", s.user.Name, "error", err)
		return outcomeFailure
	}
	return outcomeSuccess
}
