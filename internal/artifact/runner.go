package artifact

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

// Runner executes a command and reports its exit code.
// A non-nil error means the command could not be started or waited for.
type Runner interface {
	Run(ctx context.Context, argv []string) (int, error)
}

// Stager copies a local file to the host the Runner executes on.
type Stager interface {
	Upload(ctx context.Context, src, name string) error
}

// LocalRunner runs commands on this machine.
type LocalRunner struct{}

// errEmptyCommand is returned when Run is called without a program.
var errEmptyCommand = errors.New("command must not be empty")

// Run executes argv and returns its exit code.
func (LocalRunner) Run(ctx context.Context, argv []string) (int, error) {
	if len(argv) == 0 {
		return 0, errEmptyCommand
	}

	//nolint:gosec // The program comes from the jobctl configuration.
	err := exec.CommandContext(ctx, argv[0], argv[1:]...).Run()

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}

	if err != nil {
		return 0, fmt.Errorf("run %s: %w", argv[0], err)
	}

	return 0, nil
}
