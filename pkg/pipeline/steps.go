package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"

	"github.com/autobase/agent-build/pkg/archive"
	"github.com/autobase/agent-build/pkg/config"
	"github.com/autobase/agent-build/pkg/logging"
	"github.com/autobase/agent-build/pkg/manifest"
	"github.com/autobase/agent-build/pkg/report"
	"github.com/autobase/agent-build/pkg/shell"
	"github.com/autobase/agent-build/pkg/specfile"
)

// Step is a single stage of the build.
type Step struct {
	Name string
	Desc string
	Run  func(ctx context.Context, s *State) error
	// Enabled reports whether an optional step is switched on; nil means always.
	Enabled func(cfg *config.Config) bool
	// Always runs the step even after an earlier step failed.
	Always bool
}

func (s Step) enabled(cfg *config.Config) bool {
	return s.Enabled == nil || s.Enabled(cfg)
}

// Steps returns the build steps in execution order.
func Steps() []Step {
	return []Step{
		{Name: "venv", Desc: "Preparing virtual environment", Run: ensureVenv},
		{Name: "activate", Desc: "Activating virtual environment", Run: activateVenv},
		{Name: "deps", Desc: "Installing dependencies", Run: installDeps},
		{Name: "packager", Desc: "Installing packager", Run: installPackager},
		{Name: "clean", Desc: "Removing previous build output", Run: cleanOutput},
		{Name: "package", Desc: "Packaging application", Run: runPackager},
		{Name: "verify", Desc: "Verifying build output", Run: verifyArtifact},
		{
			Name:    "archive",
			Desc:    "Creating release archive",
			Run:     createArchive,
			Enabled: func(cfg *config.Config) bool { return cfg.Archive },
		},
		{
			Name:    "report",
			Desc:    "Writing build report",
			Run:     writeReport,
			Enabled: func(cfg *config.Config) bool { return cfg.Report != "" },
			Always:  true,
		},
	}
}

func ensureVenv(ctx context.Context, s *State) error {
	exists, err := s.Venv.Exists()
	if err != nil {
		return err
	}

	if exists {
		logging.Log(ctx).Info().Str("path", s.Venv.Dir).Msgf("Virtual environment %s already exists", s.Venv.Dir)
		return nil
	}

	logging.Log(ctx).Info().Str("path", s.Venv.Dir).Msgf("Creating virtual environment in %s", s.Venv.Dir)
	return s.Venv.Create(ctx, s.Cmd, s.Config.PythonCommand())
}

func activateVenv(ctx context.Context, s *State) error {
	_, err := s.activate(ctx)
	if err != nil {
		return eris.Wrap(err, "Failed to activate the virtual environment")
	}

	logging.Log(ctx).Debug().Str("path", s.Venv.BinDir()).Msgf("Using %s", s.Venv.Python())
	return nil
}

func installDeps(ctx context.Context, s *State) error {
	path := s.Config.Path(s.Config.Requirements)
	m, err := manifest.Load(path)
	if err != nil {
		return eris.Wrap(err, "Invalid dependency manifest")
	}
	s.Manifest = m

	logging.Log(ctx).Info().
		Str("path", path).
		Int("count", len(m.Requirements)).
		Msgf("%d requirements listed in %s", len(m.Requirements), path)

	err = s.python(ctx, "-m", "pip", "install", "-r", path)
	if err != nil {
		return eris.Wrap(err, "Failed to install dependencies")
	}
	return nil
}

func installPackager(ctx context.Context, s *State) error {
	err := s.python(ctx, "-m", "pip", "install", s.Config.PackagerRequirement())
	if err != nil {
		return eris.Wrapf(err, "Failed to install %s", s.Config.Packager.Package)
	}
	return nil
}

func cleanOutput(ctx context.Context, s *State) error {
	var existing []string
	for _, dir := range []string{s.Config.DistDir, s.Config.WorkDir} {
		path := s.Config.Path(dir)
		_, err := os.Stat(path)
		if eris.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return eris.Wrapf(err, "Failed to check %s", path)
		}
		existing = append(existing, path)
	}

	if len(existing) == 0 {
		logging.Log(ctx).Info().Msg("Nothing to clean")
		return nil
	}

	err := s.Cmd.Exec(ctx, nil, append([]string{"rm", "-rf"}, existing...)...)
	if err != nil {
		return eris.Wrap(err, "Failed to remove previous build output")
	}
	return nil
}

func runPackager(ctx context.Context, s *State) error {
	args := []string{"-m", s.Config.Packager.Module, s.Config.Path(s.Config.SpecFile), "--noconfirm"}
	if s.Config.DistDir != "dist" {
		args = append(args, "--distpath", s.Config.Path(s.Config.DistDir))
	}
	if s.Config.WorkDir != "build" {
		args = append(args, "--workpath", s.Config.Path(s.Config.WorkDir))
	}

	s.PackagerStatus = 0
	err := s.python(ctx, args...)
	if err == nil {
		return nil
	}

	status, ok := shell.ExitStatus(err)
	if !ok {
		return eris.Wrap(err, "Failed to run the packager")
	}

	s.PackagerStatus = status
	if s.Config.Strict {
		return eris.Wrapf(err, "Packager exited with status %d", status)
	}

	// the artifact check in the next step has the final word
	logging.Log(ctx).Warn().Int("status", status).Msgf("Packager exited with status %d", status)
	return nil
}

func verifyArtifact(ctx context.Context, s *State) error {
	path, err := s.ArtifactPath()
	if err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		if s.DryRun {
			logging.Log(ctx).Info().Str("path", path).Msgf("Would check for %s", path)
			return nil
		}

		if eris.Is(err, os.ErrNotExist) {
			return eris.Errorf("Build failed: %s was not created", path)
		}
		return eris.Wrapf(err, "Failed to check %s", path)
	}

	if info.IsDir() {
		return eris.Errorf("Build failed: %s is a directory", path)
	}

	logging.Log(ctx).Info().
		Str("path", path).
		Int64("size", info.Size()).
		Msgf("Build succeeded: %s", path)
	return nil
}

func createArchive(ctx context.Context, s *State) error {
	artifact, err := s.ArtifactPath()
	if err != nil {
		return err
	}

	root := artifact
	name := specfile.DefaultName
	if s.Spec != nil {
		name = s.Spec.Name
		if !s.Spec.OneFile() {
			root = filepath.Dir(artifact)
		}
	}

	distDir := s.Config.Path(s.Config.DistDir)
	dest := filepath.Join(distDir, archive.Name(name, s.GOOS, s.GOARCH))
	logging.Log(ctx).Info().Str("path", dest).Msgf("Packing %s into %s", root, dest)
	if s.DryRun {
		return nil
	}

	count, err := archive.Create(dest, root)
	if err != nil {
		return err
	}

	s.ArchivePath = dest
	logging.Log(ctx).Info().Int("files", count).Msgf("Packed %d files", count)
	return nil
}

func writeReport(ctx context.Context, s *State) error {
	r := report.New()
	r.Platform = fmt.Sprintf("%s/%s", s.GOOS, s.GOARCH)
	r.Spec = s.Config.Path(s.Config.SpecFile)
	r.PackagerStatus = s.PackagerStatus
	r.Archive = s.ArchivePath
	r.Success = s.Err == nil
	r.Finished = time.Now()

	if s.Manifest != nil {
		r.Requirements = s.Manifest.Names()
		r.PipOptions = s.Manifest.Options
		r.Hashed = s.Manifest.Hashed()
	}
	if s.Spec != nil {
		r.Executable = &report.Executable{
			Name:    s.Spec.Name,
			OneFile: s.Spec.OneFile(),
			Console: s.Spec.Console,
		}
	}

	for idx, res := range s.results {
		if idx == 0 {
			r.Started = res.Started
		}

		item := report.Step{
			Name:     res.Name,
			Status:   string(res.Status),
			Duration: res.Duration,
		}
		if res.Err != nil {
			item.Error = res.Err.Error()
		}
		if res.Status == StatusFailed {
			r.Success = false
		}
		r.Steps = append(r.Steps, item)
	}

	if r.Success {
		if path, err := s.ArtifactPath(); err == nil {
			if artifact, err := report.DescribeArtifact(path); err == nil {
				r.Artifact = artifact
			}
		}
	}

	path := s.Config.Path(s.Config.Report)
	logging.Log(ctx).Info().Str("path", path).Msgf("Writing %s", path)
	if s.DryRun {
		return nil
	}
	return r.Write(path)
}
