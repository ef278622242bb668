package pipeline

import (
	"context"
	"os"
	"runtime"

	"github.com/rotisserie/eris"

	"github.com/autobase/agent-build/pkg/config"
	"github.com/autobase/agent-build/pkg/logging"
	"github.com/autobase/agent-build/pkg/manifest"
	"github.com/autobase/agent-build/pkg/shell"
	"github.com/autobase/agent-build/pkg/specfile"
	"github.com/autobase/agent-build/pkg/venv"
)

// State is shared by all steps of a single run.
type State struct {
	Config *config.Config
	Cmd    shell.Commander
	Venv   *venv.Env
	DryRun bool
	GOOS   string
	GOARCH string

	// BaseEnv is the environment activation starts from.
	BaseEnv []string
	// ActiveEnv is set once the virtual environment was activated.
	ActiveEnv []string

	Manifest       *manifest.Manifest
	Spec           *specfile.Spec
	PackagerStatus int
	ArchivePath    string
	// Err is the error that stopped the run, if any.
	Err error

	results []StepResult
}

// NewState prepares the state for a run with cfg.
func NewState(cfg *config.Config, cmd shell.Commander, dryRun bool) *State {
	env := venv.New(cfg.Path(cfg.VenvDir))

	return &State{
		Config:  cfg,
		Cmd:     cmd,
		Venv:    env,
		DryRun:  dryRun,
		GOOS:    runtime.GOOS,
		GOARCH:  runtime.GOARCH,
		BaseEnv: os.Environ(),
	}
}

// activate computes the activated environment once.
func (s *State) activate(ctx context.Context) ([]string, error) {
	if s.ActiveEnv != nil {
		return s.ActiveEnv, nil
	}

	env, err := s.Venv.Activate(s.BaseEnv)
	if err != nil {
		if !s.DryRun {
			return nil, err
		}

		logging.Log(ctx).Warn().Err(err).Msg("Continuing without interpreter because this is a dry run")
		env, err = s.Venv.Environ(s.BaseEnv)
		if err != nil {
			return nil, err
		}
	}

	s.ActiveEnv = env
	return env, nil
}

// python runs the environment's interpreter with args.
func (s *State) python(ctx context.Context, args ...string) error {
	env, err := s.activate(ctx)
	if err != nil {
		return err
	}

	return s.Cmd.Exec(ctx, env, append([]string{s.Venv.Python()}, args...)...)
}

func (s *State) spec() (*specfile.Spec, error) {
	if s.Spec != nil {
		return s.Spec, nil
	}

	spec, err := specfile.Load(s.Config.Path(s.Config.SpecFile))
	if err != nil {
		return nil, err
	}

	s.Spec = spec
	return spec, nil
}

// ArtifactPath is the file whose presence decides whether the build worked.
func (s *State) ArtifactPath() (string, error) {
	if s.Config.Artifact != "" {
		return s.Config.Path(s.Config.Artifact), nil
	}

	spec, err := s.spec()
	if err != nil {
		return "", eris.Wrap(err, "Failed to determine the expected artifact")
	}

	return spec.Artifact(s.Config.Path(s.Config.DistDir), s.GOOS), nil
}
