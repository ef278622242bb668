// Package venv manages the Python virtual environment the agent is built in.
package venv

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/autobase/agent-build/pkg/shell"
)

// Env describes a virtual environment directory.
type Env struct {
	Dir  string
	GOOS string
}

// New returns the environment rooted at dir for the current platform.
func New(dir string) *Env {
	return &Env{Dir: dir, GOOS: runtime.GOOS}
}

func (e *Env) windows() bool {
	return e.GOOS == "windows"
}

// BinDir is the directory the activate script would put in front of PATH.
func (e *Env) BinDir() string {
	if e.windows() {
		return filepath.Join(e.Dir, "Scripts")
	}
	return filepath.Join(e.Dir, "bin")
}

// Python is the environment's interpreter.
func (e *Env) Python() string {
	if e.windows() {
		return filepath.Join(e.BinDir(), "python.exe")
	}
	return filepath.Join(e.BinDir(), "python")
}

// Exists reports whether the environment directory is present. It does not
// check that the environment is usable; see Activate for that.
func (e *Env) Exists() (bool, error) {
	info, err := os.Stat(e.Dir)
	if err != nil {
		if eris.Is(err, os.ErrNotExist) {
			return false, nil
		}
		return false, eris.Wrapf(err, "Failed to check %s", e.Dir)
	}

	if !info.IsDir() {
		return false, eris.Errorf("%s exists but is not a directory", e.Dir)
	}
	return true, nil
}

// Create runs "<python> -m venv <dir>".
func (e *Env) Create(ctx context.Context, cmd shell.Commander, python string) error {
	err := cmd.Exec(ctx, nil, python, "-m", "venv", e.Dir)
	if err != nil {
		return eris.Wrapf(err, "Failed to create virtual environment in %s", e.Dir)
	}

	return nil
}

// Activate checks that the environment has an interpreter and returns
// Environ(base).
func (e *Env) Activate(base []string) ([]string, error) {
	info, err := os.Stat(e.Python())
	if err != nil {
		return nil, eris.Wrapf(err, "Virtual environment %s has no interpreter", e.Dir)
	}
	if info.IsDir() {
		return nil, eris.Errorf("%s is a directory, not an interpreter", e.Python())
	}

	return e.Environ(base)
}

// Environ returns base with the changes the environment's activate script
// would make: VIRTUAL_ENV is set, the bin directory is prepended to PATH and
// PYTHONHOME is dropped.
func (e *Env) Environ(base []string) ([]string, error) {
	absDir, err := filepath.Abs(e.Dir)
	if err != nil {
		return nil, eris.Wrapf(err, "Failed to resolve %s", e.Dir)
	}
	binDir := filepath.Join(absDir, filepath.Base(e.BinDir()))

	pathSep := string(os.PathListSeparator)
	if e.windows() {
		pathSep = ";"
	}

	result := make([]string, 0, len(base)+2)
	path := ""
	for _, item := range base {
		parts := strings.SplitN(item, "=", 2)
		key := parts[0]
		if e.windows() {
			key = strings.ToUpper(key)
		}

		switch key {
		case "PATH":
			if len(parts) == 2 {
				path = parts[1]
			}
		case "VIRTUAL_ENV", "PYTHONHOME":
		default:
			result = append(result, item)
		}
	}

	if path == "" {
		path = binDir
	} else {
		path = binDir + pathSep + path
	}

	result = append(result, "VIRTUAL_ENV="+absDir, "PATH="+path)
	return result, nil
}
