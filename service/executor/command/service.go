// Package command runs the execution engine as a child shell command through
// github.com/viant/gosh. The activation id and backend are exported into the
// child's environment only.
package command

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/viant/gosh"
	"github.com/viant/gosh/runner"
	"github.com/viant/gosh/runner/local"
	"github.com/viant/podwork/model"
	"github.com/viant/podwork/service/executor"
)

// Config describes how the engine is invoked
type Config struct {
	// Command receives the encoded narrowed payload as its only argument
	Command string `yaml:"command"`
	// MetadataCommand prints the runtime metadata as a JSON object on stdout
	MetadataCommand string `yaml:"metadataCommand"`
	// ActivationEnv names the variable carrying the activation id
	ActivationEnv string `yaml:"activationEnv"`
	// BackendEnv names the variable carrying the backend tag
	BackendEnv string        `yaml:"backendEnv"`
	Timeout    time.Duration `yaml:"timeout"`
	// Env is added to every child environment
	Env map[string]string `yaml:"env"`
}

// DefaultConfig returns the default engine configuration
func DefaultConfig() Config {
	return Config{
		ActivationEnv: "ACTIVATION_ID",
		BackendEnv:    "EXECUTION_BACKEND",
		Timeout:       time.Hour,
	}
}

// Service is an executor.Service spawning one shell session per activation.
type Service struct {
	config Config
}

// New creates a command executor
func New(config Config) *Service {
	defaults := DefaultConfig()
	if config.ActivationEnv == "" {
		config.ActivationEnv = defaults.ActivationEnv
	}
	if config.BackendEnv == "" {
		config.BackendEnv = defaults.BackendEnv
	}
	if config.Timeout <= 0 {
		config.Timeout = defaults.Timeout
	}
	return &Service{config: config}
}

// Execute runs Command with the activation's encoded job
func (s *Service) Execute(ctx context.Context, activation *model.Activation) error {
	if s.config.Command == "" {
		return executor.ErrNoCommand
	}
	if activation == nil || activation.Job == nil {
		return executor.ErrNilActivation
	}
	payload, err := activation.Job.Encode()
	if err != nil {
		return fmt.Errorf("failed to encode activation %s: %w", activation.ID, err)
	}
	stdout, status, err := s.run(ctx, s.environment(activation), commandLine(s.config.Command, payload))
	if err != nil {
		return fmt.Errorf("activation %s failed: %w", activation.ID, err)
	}
	if status != 0 {
		return fmt.Errorf("activation %s exited with status %d: %s", activation.ID, status, lastLine(stdout))
	}
	logrus.WithFields(logrus.Fields{"activation": activation.ID, "backend": activation.Backend}).Debug(stdout)
	return nil
}

// Metadata runs MetadataCommand and decodes its stdout as a JSON object
func (s *Service) Metadata(ctx context.Context) (map[string]interface{}, error) {
	if s.config.MetadataCommand == "" {
		return nil, executor.ErrNoCommand
	}
	stdout, status, err := s.run(ctx, s.config.Env, s.config.MetadataCommand)
	if err != nil {
		return nil, fmt.Errorf("failed to run metadata command: %w", err)
	}
	if status != 0 {
		return nil, fmt.Errorf("metadata command exited with status %d: %s", status, lastLine(stdout))
	}
	return decodeMetadata(stdout)
}

func (s *Service) run(ctx context.Context, env map[string]string, cmd string) (string, int, error) {
	var options []runner.Option
	if len(env) > 0 {
		options = append(options, runner.WithEnvironment(env))
	}
	srv, err := gosh.New(ctx, local.New(options...))
	if err != nil {
		return "", 0, fmt.Errorf("failed to start shell: %w", err)
	}
	defer srv.Close()
	return srv.Run(ctx, cmd, runner.WithTimeout(int(s.config.Timeout.Milliseconds())))
}

func (s *Service) environment(activation *model.Activation) map[string]string {
	env := make(map[string]string, len(s.config.Env)+2)
	for k, v := range s.config.Env {
		env[k] = v
	}
	env[s.config.ActivationEnv] = activation.ID
	env[s.config.BackendEnv] = activation.Backend
	return env
}

func commandLine(command, payload string) string {
	return command + " " + shellQuote(payload)
}

func shellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'\''`) + "'"
}

// decodeMetadata parses the last JSON object printed by the command; engines
// may log before emitting it.
func decodeMetadata(stdout string) (map[string]interface{}, error) {
	text := strings.TrimSpace(stdout)
	if i := strings.LastIndex(text, "\n{"); i >= 0 {
		text = text[i+1:]
	}
	result := map[string]interface{}{}
	if err := json.Unmarshal([]byte(text), &result); err != nil {
		return nil, fmt.Errorf("invalid metadata output: %w", err)
	}
	return result, nil
}

func lastLine(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.LastIndex(text, "\n"); i >= 0 {
		return text[i+1:]
	}
	return text
}

var _ executor.Service = (*Service)(nil)
