package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// requiredMessages are the template keys the conversation engine renders.
// A missing key is fatal at startup rather than a runtime surprise.
var requiredMessages = []string{
	"greeting",
	"alert",
	"action_prompt",
	"bad_command",
	"hi",
	"2fa",
	"sending_push",
	"good_auth",
	"bad_auth",
	"escalated",
	"no_2fa",
	"no_response",
	"bwtm",
	"bye",
	"ignore_time",
	"ignore_no_time",
	"help_header",
	"help_usage",
	"help_footer",
	"report",
}

// Messages maps template keys to user-facing text.
type Messages map[string]string

// LoadMessages reads the message templates and verifies every required
// key is present.
func LoadMessages(path string) (Messages, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewLoadError(path, ErrConfigNotFound)
		}
		return nil, NewLoadError(path, err)
	}

	var wrapper struct {
		Messages Messages `yaml:"messages"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}
	if wrapper.Messages == nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: messages", ErrMissingRequiredField))
	}

	for _, key := range requiredMessages {
		if _, ok := wrapper.Messages[key]; !ok {
			return nil, NewLoadError(path, fmt.Errorf("%w: %s", ErrMissingMessage, key))
		}
	}
	return wrapper.Messages, nil
}

// Render substitutes {name} placeholders in the keyed template. Unknown
// placeholders are left intact so a template typo is visible in chat
// rather than silently blanked.
func (m Messages) Render(key string, vars map[string]string) string {
	text := m[key]
	for name, value := range vars {
		text = strings.ReplaceAll(text, "{"+name+"}", value)
	}
	return text
}

// Get returns the raw template for key.
func (m Messages) Get(key string) string {
	return m[key]
}
