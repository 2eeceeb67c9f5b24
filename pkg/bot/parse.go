package bot

import (
	"strings"

	"github.com/kballard/go-shellquote"
)

// Chat clients auto-format typed text; smart quotes in particular break
// shell-style tokenizing when unbalanced.
var autoformatReplacer = strings.NewReplacer(
	"‘", "'",
	"’", "'",
	"“", `"`,
	"”", `"`,
	"–", "--",
	"—", "--",
)

// Punctuation people append to commands that never appears in command names.
const commandPunctuation = ".,!?'\"`"

func cleanInput(text string) string {
	return autoformatReplacer.Replace(text)
}

// cleanCommand canonicalizes the first token of a message into a command key.
func cleanCommand(command string) string {
	command = strings.ToLower(command)
	return strings.Map(func(r rune) rune {
		if strings.ContainsRune(commandPunctuation, r) {
			return -1
		}
		return r
	}, command)
}

// parseCommand splits a raw message into a canonical command key and its
// arguments. Quote-aware splitting is tried first; if the text is not
// shell-parseable, fall back to whitespace splitting.
func parseCommand(text string) (string, []string) {
	cleaned := cleanInput(text)

	tokens, err := shellquote.Split(cleaned)
	if err != nil {
		tokens = strings.Fields(cleaned)
	}
	if len(tokens) == 0 {
		return "", nil
	}
	return cleanCommand(tokens[0]), tokens[1:]
}
