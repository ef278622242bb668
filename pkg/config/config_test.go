package config

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, "venv", cfg.VenvDir)
	assert.Equal(t, "requirements.txt", cfg.Requirements)
	assert.Equal(t, "build.spec", cfg.SpecFile)
	assert.Equal(t, "dist", cfg.DistDir)
	assert.Equal(t, "build", cfg.WorkDir)
	assert.Equal(t, "pyinstaller", cfg.Packager.Package)
	assert.Equal(t, "PyInstaller", cfg.Packager.Module)
	assert.True(t, cfg.Pause)
	assert.False(t, cfg.Strict)
	assert.Equal(t, dir, cfg.ProjectDir)
	assert.NoError(t, cfg.Validate())
	assert.Equal(t, zerolog.InfoLevel, cfg.LogLevel())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName), []byte(`
venv_dir = ".venv"
pause = false

[packager]
version = "6.3.0"

[log]
level = "debug"
`), 0o644))
	t.Setenv("AUTOBASE_SPEC_FILE", "agent.spec")

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, ".venv", cfg.VenvDir)
	assert.False(t, cfg.Pause)
	assert.Equal(t, "6.3.0", cfg.Packager.Version)
	assert.Equal(t, "pyinstaller==6.3.0", cfg.PackagerRequirement())
	assert.Equal(t, "agent.spec", cfg.SpecFile)
	assert.Equal(t, zerolog.DebugLevel, cfg.LogLevel())
}

func validConfig(t *testing.T) *Config {
	t.Helper()
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)
	return cfg
}

func TestValidate(t *testing.T) {
	cfg := validConfig(t)
	cfg.Log.Level = "loud"
	assert.Error(t, cfg.Validate())

	cfg = validConfig(t)
	cfg.SpecFile = ""
	assert.Error(t, cfg.Validate())

	cfg = validConfig(t)
	cfg.DistDir = "venv"
	assert.Error(t, cfg.Validate(), "cleaning dist would remove the environment")

	cfg = validConfig(t)
	cfg.VenvDir = "build/venv"
	assert.Error(t, cfg.Validate())

	cfg = validConfig(t)
	cfg.WorkDir = "."
	assert.Error(t, cfg.Validate())

	cfg = validConfig(t)
	cfg.VenvDir = "venv-build"
	assert.NoError(t, cfg.Validate())
}

func TestPythonCommand(t *testing.T) {
	cfg := &Config{}
	if runtime.GOOS == "windows" {
		assert.Equal(t, "python", cfg.PythonCommand())
	} else {
		assert.Equal(t, "python3", cfg.PythonCommand())
	}

	cfg.Python = "C:/Python311/python.exe"
	assert.Equal(t, "C:/Python311/python.exe", cfg.PythonCommand())
}

func TestPath(t *testing.T) {
	cfg := &Config{ProjectDir: filepath.FromSlash("/src/agent")}
	assert.Equal(t, filepath.FromSlash("/src/agent/dist"), cfg.Path("dist"))

	abs, err := filepath.Abs(filepath.FromSlash("/tmp/out"))
	require.NoError(t, err)
	assert.Equal(t, abs, cfg.Path(abs))
}
