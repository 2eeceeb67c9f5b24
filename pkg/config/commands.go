package config

import (
	"fmt"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// CommandConfig describes one entry in the command table. Handler names a
// function in the coordinator's static registry; resolution happens when
// the table is bound, and an unknown name is fatal there.
type CommandConfig struct {
	Handler string   `yaml:"handler"`
	Info    string   `yaml:"info"`
	Usage   []string `yaml:"usage"`
	Success string   `yaml:"success"`
	Failure string   `yaml:"failure"`
	Hidden  bool     `yaml:"hidden"`
}

var commandDefaults = CommandConfig{
	Info: "No information found.",
}

// LoadCommands reads the command table and fills per-command defaults.
func LoadCommands(path string) (map[string]CommandConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, NewLoadError(path, ErrConfigNotFound)
		}
		return nil, NewLoadError(path, err)
	}

	var wrapper struct {
		Commands map[string]CommandConfig `yaml:"commands"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, NewLoadError(path, fmt.Errorf("%w: %v", ErrInvalidYAML, err))
	}
	if len(wrapper.Commands) == 0 {
		return nil, NewLoadError(path, fmt.Errorf("%w: commands", ErrMissingRequiredField))
	}

	for name, cmd := range wrapper.Commands {
		if cmd.Handler == "" {
			// A command with no explicit handler uses its own name.
			cmd.Handler = name
		}
		if err := mergo.Merge(&cmd, commandDefaults); err != nil {
			return nil, NewLoadError(path, fmt.Errorf("merging defaults for %s: %w", name, err))
		}
		wrapper.Commands[name] = cmd
	}
	return wrapper.Commands, nil
}
