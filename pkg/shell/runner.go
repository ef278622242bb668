package shell

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"github.com/autobase/agent-build/pkg/logging"
)

// Commander runs a single external command. env replaces the process
// environment when it is non-nil.
type Commander interface {
	Exec(ctx context.Context, env []string, args ...string) error
}

// ExitError reports a command that ran but exited with a non-zero status.
type ExitError struct {
	Command string
	Status  int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Command, e.Status)
}

// ExitStatus extracts the exit status from an error returned by Exec.
func ExitStatus(err error) (int, bool) {
	var exitErr *ExitError
	if eris.As(err, &exitErr) {
		return exitErr.Status, true
	}

	return 0, false
}

// Runner executes commands through the mvdan.cc/sh interpreter.
type Runner struct {
	Dir    string
	DryRun bool
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewRunner returns a runner that works in dir and writes to the process' stdio.
func NewRunner(dir string, dryRun bool) *Runner {
	return &Runner{
		Dir:    dir,
		DryRun: dryRun,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

var defaultOpenHandler = interp.DefaultOpenHandler()

func openHandler(ctx context.Context, path string, flag int, perm os.FileMode) (io.ReadWriteCloser, error) {
	if path == "/dev/null" {
		path = os.DevNull
	}

	return defaultOpenHandler(ctx, path, flag, perm)
}

// CommandLine quotes args into a single shell command line.
func CommandLine(args ...string) (string, error) {
	parts := make([]string, len(args))
	for idx, arg := range args {
		quoted, err := syntax.Quote(arg, syntax.LangBash)
		if err != nil {
			return "", eris.Wrapf(err, "failed to quote argument %q", arg)
		}
		parts[idx] = quoted
	}

	return strings.Join(parts, " "), nil
}

// Exec runs args as a single command.
func (r *Runner) Exec(ctx context.Context, env []string, args ...string) error {
	if len(args) == 0 {
		return eris.New("no command given")
	}

	line, err := CommandLine(args...)
	if err != nil {
		return err
	}

	return r.Script(ctx, env, args[0], line)
}

// Script parses and runs a shell snippet. Execution stops at the first failing
// statement.
func (r *Runner) Script(ctx context.Context, env []string, name, content string) error {
	parser := syntax.NewParser()
	file, err := parser.Parse(strings.NewReader(content), name)
	if err != nil {
		return eris.Wrapf(err, "failed to parse command %s", content)
	}

	if env == nil {
		env = os.Environ()
	}

	runner, err := interp.New(
		interp.Dir(r.Dir),
		interp.Env(expand.ListEnviron(env...)),
		interp.ExecHandlers(builtinMiddleware),
		interp.OpenHandler(openHandler),
		interp.StdIO(r.Stdin, r.Stdout, r.Stderr),
		interp.Params("-e"),
	)
	if err != nil {
		return eris.Wrap(err, "Failed to initialize runner")
	}

	printer := syntax.NewPrinter(syntax.Minify(true))
	strBuffer := strings.Builder{}

	for _, stmt := range file.Stmts {
		strBuffer.Reset()
		err = printer.Print(&strBuffer, stmt)
		if err != nil {
			return eris.Wrap(err, "failed to print command")
		}

		cmdLine := strBuffer.String()
		logging.Log(ctx).Info().
			Bool("command", true).
			Str("dir", r.Dir).
			Msg(cmdLine)

		if r.DryRun {
			continue
		}

		err = runner.Run(ctx, stmt)
		if status, ok := interp.IsExitStatus(err); ok {
			return eris.Wrap(&ExitError{Command: cmdLine, Status: int(status)}, "command failed")
		}
		if err != nil {
			return eris.Wrapf(err, "failed to run %s", cmdLine)
		}

		if runner.Exited() {
			return nil
		}

		if err = ctx.Err(); err != nil {
			return err
		}
	}

	return nil
}
