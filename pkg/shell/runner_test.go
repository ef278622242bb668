package shell

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autobase/agent-build/pkg/logging"
)

func testRunner(t *testing.T, dryRun bool) (*Runner, *bytes.Buffer) {
	t.Helper()
	var out bytes.Buffer
	r := NewRunner(t.TempDir(), dryRun)
	r.Stdout = &out
	r.Stderr = &out
	return r, &out
}

func TestCommandLineQuoting(t *testing.T) {
	line, err := CommandLine("python", "-m", "PyInstaller", "AutoBase Agent.spec", "it's")
	require.NoError(t, err)
	assert.Equal(t, `python -m PyInstaller 'AutoBase Agent.spec' "it's"`, line)

	line, err = CommandLine("pip", "")
	require.NoError(t, err)
	assert.Equal(t, "pip ''", line)
}

func TestExecBuiltins(t *testing.T) {
	r, _ := testRunner(t, false)
	ctx := context.Background()

	require.NoError(t, os.MkdirAll(filepath.Join(r.Dir, "dist", "AutoBase Agent"), 0o755))

	require.NoError(t, r.Exec(ctx, nil, "rm", "-rf", "dist", filepath.Join(r.Dir, "build")))
	assert.NoDirExists(t, filepath.Join(r.Dir, "dist"))

	err := r.Exec(ctx, nil, "rm", "--bogus", "dist")
	status, ok := ExitStatus(err)
	require.True(t, ok)
	assert.Equal(t, 1, status)
}

func TestExecBuiltinFailureReportsStatus(t *testing.T) {
	r, out := testRunner(t, false)

	err := r.Exec(context.Background(), nil, "rm", "missing")
	require.Error(t, err)

	status, ok := ExitStatus(err)
	require.True(t, ok)
	assert.Equal(t, 1, status)
	assert.Contains(t, out.String(), "rm: ")
}

func TestScriptExitStatus(t *testing.T) {
	r, _ := testRunner(t, false)

	err := r.Script(context.Background(), nil, "test", "exit 3")
	status, ok := ExitStatus(err)
	require.True(t, ok)
	assert.Equal(t, 3, status)
}

func TestScriptStopsAtFirstFailure(t *testing.T) {
	r, _ := testRunner(t, false)

	err := r.Script(context.Background(), nil, "test", ": > first\nfalse\n: > second")
	require.Error(t, err)
	assert.FileExists(t, filepath.Join(r.Dir, "first"))
	assert.NoFileExists(t, filepath.Join(r.Dir, "second"))
}

func TestScriptUsesEnvironment(t *testing.T) {
	r, _ := testRunner(t, false)

	err := r.Script(context.Background(), []string{"TARGET=from-env"}, "test", `: > "$TARGET"`)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(r.Dir, "from-env"))
}

func TestDryRunOnlyLogs(t *testing.T) {
	r, _ := testRunner(t, true)
	require.NoError(t, os.Mkdir(filepath.Join(r.Dir, "dist"), 0o755))

	var logs bytes.Buffer
	logger := logging.New(&logs, zerolog.InfoLevel, false)
	ctx := logging.WithLogger(context.Background(), &logger)

	require.NoError(t, r.Exec(ctx, nil, "rm", "-rf", "dist"))
	assert.DirExists(t, filepath.Join(r.Dir, "dist"))
	assert.Contains(t, logs.String(), "$ rm -rf dist")
}

func TestCancelledContext(t *testing.T) {
	r, _ := testRunner(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Script(ctx, nil, "test", ": > a\n: > b")
	assert.Error(t, err)
}
