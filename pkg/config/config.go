package config

import (
	"path/filepath"
	"runtime"
	"strings"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigtoml"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// FileName is the optional per-project config file.
const FileName = "autobase-build.toml"

// Config describes all configuration options
type Config struct {
	Python       string `toml:"python" env:"PYTHON" usage:"Interpreter used to create the virtual environment (python on Windows, python3 elsewhere)"`
	VenvDir      string `toml:"venv_dir" env:"VENV_DIR" default:"venv" usage:"Virtual environment directory"`
	Requirements string `toml:"requirements" env:"REQUIREMENTS" default:"requirements.txt" usage:"Dependency manifest"`
	SpecFile     string `toml:"spec_file" env:"SPEC_FILE" default:"build.spec" usage:"PyInstaller spec file"`
	DistDir      string `toml:"dist_dir" env:"DIST_DIR" default:"dist" usage:"Output directory"`
	WorkDir      string `toml:"work_dir" env:"WORK_DIR" default:"build" usage:"Intermediate build directory"`
	Artifact     string `toml:"artifact" env:"ARTIFACT" usage:"Expected output file; derived from the spec file when empty"`
	Pause        bool   `toml:"pause" env:"PAUSE" default:"true" usage:"Wait for a key press before exiting"`
	Strict       bool   `toml:"strict" env:"STRICT" default:"false" usage:"Fail when the packager exits non-zero even if the artifact exists"`
	Archive      bool   `toml:"archive" env:"ARCHIVE" default:"false" usage:"Pack the output into a .tar.xz archive"`
	Report       string `toml:"report" env:"REPORT" usage:"Write a YAML build report to this file"`
	Packager     struct {
		Package string `toml:"package" env:"PACKAGE" default:"pyinstaller" usage:"pip package providing the packager"`
		Version string `toml:"version" env:"VERSION" usage:"Pinned packager version"`
		Module  string `toml:"module" env:"MODULE" default:"PyInstaller" usage:"Python module invoked with -m"`
	} `toml:"packager" env:"PACKAGER"`
	Log struct {
		Level string `toml:"level" env:"LEVEL" default:"info"`
		JSON  bool   `toml:"json" env:"JSON" default:"false" usage:"Output JSONND instead of pretty console messages"`
	} `toml:"log" env:"LOG"`

	// ProjectDir is set by the caller, not loaded.
	ProjectDir string
}

var logLevels = map[string]zerolog.Level{
	"debug":   zerolog.DebugLevel,
	"info":    zerolog.InfoLevel,
	"warn":    zerolog.WarnLevel,
	"warning": zerolog.WarnLevel,
	"error":   zerolog.ErrorLevel,
	"fatal":   zerolog.FatalLevel,
}

// Loader initializes an empty config object and returns a new Loader for this object.
// Flags are handled by cobra, so aconfig only reads defaults, the project's
// config file and AUTOBASE_* environment variables.
func Loader(projectDir string) (*Config, *aconfig.Loader) {
	cfg := Config{}
	return &cfg, aconfig.LoaderFor(&cfg, aconfig.Config{
		SkipFlags:        true,
		AllowUnknownEnvs: true,
		EnvPrefix:        "AUTOBASE",
		Files:            []string{filepath.Join(projectDir, FileName)},
		FileDecoders: map[string]aconfig.FileDecoder{
			".toml": aconfigtoml.New(),
		},
	})
}

// Load runs the loader and records projectDir.
func Load(projectDir string) (*Config, error) {
	cfg, loader := Loader(projectDir)
	if err := loader.Load(); err != nil {
		return nil, eris.Wrap(err, "Failed to load config")
	}

	cfg.ProjectDir = projectDir
	return cfg, nil
}

// Validate verifies that all config fields have valid values
func (cfg *Config) Validate() error {
	if _, ok := logLevels[cfg.Log.Level]; !ok {
		return eris.Errorf(`Invalid value for log.level: %s`, cfg.Log.Level)
	}

	required := map[string]string{
		"venv_dir":         cfg.VenvDir,
		"requirements":     cfg.Requirements,
		"spec_file":        cfg.SpecFile,
		"dist_dir":         cfg.DistDir,
		"work_dir":         cfg.WorkDir,
		"packager.package": cfg.Packager.Package,
		"packager.module":  cfg.Packager.Module,
	}
	for name, value := range required {
		if value == "" {
			return eris.Errorf(`%s must not be empty`, name)
		}
	}

	venv := cfg.Path(cfg.VenvDir)
	for _, output := range []string{cfg.DistDir, cfg.WorkDir} {
		if isBelow(venv, cfg.Path(output)) {
			return eris.Errorf(`%s would be deleted when cleaning %s`, cfg.VenvDir, output)
		}
	}

	return nil
}

// isBelow reports whether path is dir or lies inside it.
func isBelow(path, dir string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// LogLevel converts the .Log.Level field to a zerolog.Level
func (cfg *Config) LogLevel() zerolog.Level {
	return logLevels[cfg.Log.Level]
}

// PythonCommand is the interpreter used to bootstrap the environment.
func (cfg *Config) PythonCommand() string {
	if cfg.Python != "" {
		return cfg.Python
	}

	if runtime.GOOS == "windows" {
		return "python"
	}
	return "python3"
}

// PackagerRequirement is the pip argument that installs the packager.
func (cfg *Config) PackagerRequirement() string {
	if cfg.Packager.Version == "" {
		return cfg.Packager.Package
	}
	return cfg.Packager.Package + "==" + cfg.Packager.Version
}

// Path resolves p relative to the project directory.
func (cfg *Config) Path(p string) string {
	if filepath.IsAbs(p) {
		return filepath.Clean(p)
	}
	return filepath.Join(cfg.ProjectDir, p)
}
