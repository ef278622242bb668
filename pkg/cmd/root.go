// Package cmd implements the autobase-build command line.
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/autobase/agent-build/pkg"
	"github.com/autobase/agent-build/pkg/config"
	"github.com/autobase/agent-build/pkg/logging"
	"github.com/autobase/agent-build/pkg/pause"
	"github.com/autobase/agent-build/pkg/pipeline"
	"github.com/autobase/agent-build/pkg/shell"
)

// errReported is returned once a failure has already been shown to the user.
var errReported = eris.New("build failed")

var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "autobase-build",
		Short: "Packages the AutoBase Agent into a standalone executable",
		Long: `Prepares a Python virtual environment, installs the agent's dependencies and
PyInstaller, removes old build output and packages the agent using build.spec.

Without a subcommand the full build runs. The build succeeds when the
executable described by build.spec exists afterwards.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSteps(cmd, pipeline.Steps())
		},
	}

	flags := root.PersistentFlags()
	flags.BoolP("dry", "n", false, "dry run; only print the commands, don't execute anything")
	flags.StringP("project", "C", "", "project directory (default: nearest directory containing build.spec or requirements.txt)")
	flags.Bool("no-pause", false, "don't wait for a key press before exiting")
	flags.Bool("strict", false, "fail when the packager exits non-zero even if the executable was created")
	flags.String("report", "", "write a YAML build report to this file")
	flags.String("log-level", "", "log level (debug, info, warn, error)")
	flags.Bool("log-json", false, "print JSON log events instead of console messages")

	root.Flags().Bool("archive", false, "pack the build output into a .tar.xz archive")
	root.Flags().String("from", "", "start at the given step")
	root.Flags().StringSlice("only", nil, "only run the given steps")

	root.AddCommand(
		stepsCommand("clean", "Removes previous build output", "clean"),
		stepsCommand("venv", "Prepares the virtual environment and installs all dependencies",
			"venv", "activate", "deps", "packager"),
		stepsCommand("verify", "Checks that the packaged executable exists", "verify"),
		listCommand(),
	)

	return root
}

// Execute runs the root command and exits with status 1 on failure.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}

	if !eris.Is(err, errReported) {
		pkg.PrintError(err.Error())
	}
	os.Exit(1)
}

func stepsCommand(use, short string, names ...string) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, err := pipeline.Select(pipeline.Steps(), "", names)
			if err != nil {
				return err
			}
			return runSteps(cmd, steps)
		},
	}
}

// loadConfig applies explicitly passed flags on top of the loaded config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()
	projectDir, err := flags.GetString("project")
	if err != nil {
		return nil, err
	}

	if projectDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, eris.Wrap(err, "Failed to retrieve the current working directory")
		}

		projectDir, err = pkg.FindProjectRoot(wd)
		if err != nil {
			return nil, err
		}
	} else {
		projectDir, err = filepath.Abs(projectDir)
		if err != nil {
			return nil, eris.Wrapf(err, "Failed to resolve %s", projectDir)
		}
	}

	cfg, err := config.Load(projectDir)
	if err != nil {
		return nil, err
	}

	if flags.Changed("no-pause") {
		noPause, _ := flags.GetBool("no-pause")
		cfg.Pause = !noPause
	}
	if flags.Changed("strict") {
		cfg.Strict, _ = flags.GetBool("strict")
	}
	if flags.Changed("archive") {
		cfg.Archive, _ = flags.GetBool("archive")
	}
	if flags.Changed("report") {
		cfg.Report, _ = flags.GetString("report")
	}
	if flags.Changed("log-level") {
		cfg.Log.Level, _ = flags.GetString("log-level")
	}
	if flags.Changed("log-json") {
		cfg.Log.JSON, _ = flags.GetBool("log-json")
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// selection reads --from and --only, which only the root command has.
func selection(cmd *cobra.Command) (pipeline.Options, error) {
	opts := pipeline.Options{}
	flags := cmd.Flags()
	if flags.Lookup("from") == nil {
		return opts, nil
	}

	var err error
	opts.From, err = flags.GetString("from")
	if err != nil {
		return opts, err
	}
	opts.Only, err = flags.GetStringSlice("only")
	return opts, err
}

func showProgress(cfg *config.Config) bool {
	return !cfg.Log.JSON && os.Getenv("CI") == "" && term.IsTerminal(int(os.Stderr.Fd()))
}

func runSteps(cmd *cobra.Command, steps []pipeline.Step) error {
	dryRun, err := cmd.Flags().GetBool("dry")
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		noPause, _ := cmd.Flags().GetBool("no-pause")
		return reportFailure(pause.New(!noPause), err)
	}

	pauser := pause.New(cfg.Pause)
	opts, err := selection(cmd)
	if err != nil {
		return reportFailure(pauser, err)
	}

	logger := logging.New(os.Stderr, cfg.LogLevel(), cfg.Log.JSON)
	ctx, stop := signal.NotifyContext(contextOf(cmd), os.Interrupt)
	defer stop()
	ctx = logging.WithLogger(ctx, &logger)

	logger.Debug().Str("path", cfg.ProjectDir).Msgf("Building in %s", cfg.ProjectDir)

	state := pipeline.NewState(cfg, shell.NewRunner(cfg.ProjectDir, dryRun), dryRun)
	if showProgress(cfg) {
		opts.Progress = os.Stderr
	}

	result, err := pipeline.Run(ctx, state, steps, opts)
	if result != nil {
		printSummary(result)
	}
	if err != nil {
		return reportFailure(pauser, err)
	}

	if result.Artifact != "" && !dryRun {
		pkg.PrintTask("Done: " + result.Artifact)
	} else {
		pkg.PrintTask("Done")
	}
	pauser.Wait()
	return nil
}

func contextOf(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// reportFailure shows err, waits for the user and returns errReported.
func reportFailure(pauser *pause.Pauser, err error) error {
	pkg.PrintError(err.Error())
	pauser.Wait()
	return errReported
}

func printSummary(result *pipeline.Result) {
	for _, step := range result.Steps {
		switch step.Status {
		case pipeline.StatusDisabled:
			continue
		case pipeline.StatusDone, pipeline.StatusFailed:
			pkg.PrintSubtask(fmt.Sprintf("%s: %s (%s)", step.Name, step.Status, step.Duration.Round(time.Millisecond)))
		default:
			pkg.PrintSubtask(fmt.Sprintf("%s: %s", step.Name, step.Status))
		}
	}
}
