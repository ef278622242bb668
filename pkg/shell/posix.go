package shell

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"github.com/spf13/pflag"
	"mvdan.cc/sh/v3/interp"
)

func resolve(dir, item string) string {
	if filepath.IsAbs(item) || dir == "" {
		return filepath.Clean(item)
	}

	return filepath.Join(dir, item)
}

// Remove is a cross-platform implementation of the POSIX rm command.
// Relative items are resolved against dir.
func Remove(dir string, items []string, recursive, force bool) error {
	paths := make([]string, 0, len(items))
	for _, item := range items {
		path := resolve(dir, item)
		info, err := os.Stat(path)
		if err != nil {
			if force && eris.Is(err, os.ErrNotExist) {
				continue
			}
			return eris.Wrapf(err, "Could not stat %s", item)
		}

		if info.IsDir() && !recursive {
			return eris.Errorf("%s is a directory but -r wasn't passed", item)
		}
		paths = append(paths, path)
	}

	for _, path := range paths {
		err := os.RemoveAll(path)
		if err != nil && (!force || !eris.Is(err, os.ErrNotExist)) {
			return eris.Wrapf(err, "Could not delete %s", path)
		}
	}

	return nil
}

type builtin func(dir string, args []string) error

var builtins = map[string]builtin{
	"rm": func(dir string, args []string) error {
		flags := pflag.NewFlagSet("rm", pflag.ContinueOnError)
		recursive := flags.BoolP("recursive", "r", false, "recursively delete directories")
		force := flags.BoolP("force", "f", false, "suppresses errors caused by missing files/folders")
		if err := flags.Parse(args); err != nil {
			return err
		}

		return Remove(dir, flags.Args(), *recursive, *force)
	},
}

// builtinMiddleware handles rm in-process so it behaves the same on every
// platform, including Windows where there is no rm binary.
func builtinMiddleware(next interp.ExecHandlerFunc) interp.ExecHandlerFunc {
	return func(ctx context.Context, args []string) error {
		if len(args) > 0 {
			if fn, ok := builtins[args[0]]; ok {
				hc := interp.HandlerCtx(ctx)
				err := fn(hc.Dir, args[1:])
				if err != nil {
					fmt.Fprintf(hc.Stderr, "%s: %s\n", args[0], err)
					return interp.NewExitStatus(1)
				}
				return nil
			}
		}

		return next(ctx, args)
	}
}
