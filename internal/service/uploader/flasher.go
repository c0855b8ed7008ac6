package uploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/oshokin/webfs/internal/config"
)

// Flasher runs the device filesystem upload for a build environment.
// A nil error means the action reported success.
type Flasher interface {
	Flash(ctx context.Context, environment string) error
}

// CommandFlasher runs the upload action as a subprocess and judges it by its exit status.
type CommandFlasher struct {
	// command is the argv template; config.EnvironmentPlaceholder is substituted.
	command []string
	// dir is the working directory of the subprocess, the current one when empty.
	dir string
	// stdout receives the subprocess standard output.
	stdout io.Writer
	// stderr receives the subprocess standard error.
	stderr io.Writer
}

// FlasherOption configures a CommandFlasher.
type FlasherOption func(*CommandFlasher)

// WithOutput redirects the subprocess streams.
func WithOutput(stdout, stderr io.Writer) FlasherOption {
	return func(f *CommandFlasher) {
		if stdout != nil {
			f.stdout = stdout
		}

		if stderr != nil {
			f.stderr = stderr
		}
	}
}

// WithWorkingDirectory runs the subprocess in dir.
func WithWorkingDirectory(dir string) FlasherOption {
	return func(f *CommandFlasher) {
		f.dir = dir
	}
}

// errUploadActionFailed wraps every failure of the upload subprocess.
var errUploadActionFailed = errors.New("upload action failed")

// NewCommandFlasher creates a flasher for the given argv template.
// Output is passed through to the current process streams by default.
func NewCommandFlasher(command []string, opts ...FlasherOption) *CommandFlasher {
	f := &CommandFlasher{
		command: append([]string(nil), command...),
		stdout:  os.Stdout,
		stderr:  os.Stderr,
	}

	for _, opt := range opts {
		opt(f)
	}

	return f
}

// Flash runs the upload command for environment and waits for it to exit.
func (f *CommandFlasher) Flash(ctx context.Context, environment string) error {
	args, err := config.RenderCommand(f.command, environment)
	if err != nil {
		return err
	}

	//nolint:gosec // The command comes from the operator's own settings.
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Dir = f.dir
	cmd.Stdout = f.stdout
	cmd.Stderr = f.stderr

	if err = cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%w: %s exited with status %d", errUploadActionFailed, args[0], exitErr.ExitCode())
		}

		return fmt.Errorf("%w: run %s: %w", errUploadActionFailed, args[0], err)
	}

	return nil
}
