package normalize

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// ErrToolNotFound is returned when an external extraction tool is missing.
var ErrToolNotFound = errors.New("extraction tool not found")

// CommandRunner abstracts external command execution for tests.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return exec.CommandContext(ctx, name, args...).Output()
}
