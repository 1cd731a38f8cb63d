package artifact

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// DefaultFilesystemCommand is the command prefix of the shared filesystem client.
//
//nolint:gochecknoglobals // Read-only default.
var DefaultFilesystemCommand = []string{"hadoop", "fs"}

// ErrCommandFailed is returned when a filesystem command exits with a non-zero status.
var ErrCommandFailed = errors.New("filesystem command failed")

// FileSystem is the shared filesystem the artifact is placed into.
type FileSystem interface {
	Exists(ctx context.Context, path string) (bool, error)
	Remove(ctx context.Context, path string) error
	Mkdir(ctx context.Context, path string) error
	Put(ctx context.Context, src, dst string) error
}

// CommandFS drives the shared filesystem through its command line client.
type CommandFS struct {
	runner  Runner
	command []string
}

// NewCommandFS builds a filesystem client running command through runner.
// An empty command falls back to DefaultFilesystemCommand.
func NewCommandFS(runner Runner, command []string) *CommandFS {
	if len(command) == 0 {
		command = DefaultFilesystemCommand
	}

	return &CommandFS{
		runner:  runner,
		command: command,
	}
}

// Exists reports whether path exists.
func (f *CommandFS) Exists(ctx context.Context, path string) (bool, error) {
	code, err := f.runner.Run(ctx, f.argv("-test", "-e", path))
	if err != nil {
		return false, err
	}

	return code == 0, nil
}

// Remove deletes the file at path.
func (f *CommandFS) Remove(ctx context.Context, path string) error {
	return f.check(ctx, "-rm", path)
}

// Mkdir creates the directory at path, including parents.
func (f *CommandFS) Mkdir(ctx context.Context, path string) error {
	return f.check(ctx, "-mkdir", "-p", path)
}

// Put copies src, local to the runner, to dst.
func (f *CommandFS) Put(ctx context.Context, src, dst string) error {
	return f.check(ctx, "-put", src, dst)
}

func (f *CommandFS) check(ctx context.Context, args ...string) error {
	argv := f.argv(args...)

	code, err := f.runner.Run(ctx, argv)
	if err != nil {
		return err
	}

	if code != 0 {
		return fmt.Errorf("%w: %s: exit status %d", ErrCommandFailed, strings.Join(argv, " "), code)
	}

	return nil
}

func (f *CommandFS) argv(args ...string) []string {
	argv := make([]string, 0, len(f.command)+len(args))
	argv = append(argv, f.command...)

	return append(argv, args...)
}
