package pipeline

import (
	"context"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"

	"github.com/autobase/agent-build/pkg"
	"github.com/autobase/agent-build/pkg/logging"
)

type Status string

const (
	StatusDone     Status = "done"
	StatusFailed   Status = "failed"
	StatusSkipped  Status = "skipped"
	StatusDisabled Status = "disabled"
	// StatusCancelled marks the step that was about to run when the context
	// was cancelled.
	StatusCancelled Status = "cancelled"
)

// StepResult records how a single step went.
type StepResult struct {
	Name     string
	Status   Status
	Started  time.Time
	Duration time.Duration
	Err      error
}

// Result summarizes a run.
type Result struct {
	Steps []StepResult
	// Success is true when every selected step completed.
	Success        bool
	Artifact       string
	PackagerStatus int
}

// Failed returns the first failed step, if any.
func (r *Result) Failed() *StepResult {
	for idx := range r.Steps {
		if r.Steps[idx].Status == StatusFailed {
			return &r.Steps[idx]
		}
	}
	return nil
}

// Options select which part of the pipeline runs.
type Options struct {
	// From starts the run at the named step.
	From string
	// Only runs just the named steps.
	Only []string
	// Progress receives a progress bar; nil hides it.
	Progress io.Writer
}

// Select returns the steps chosen by from/only. Steps marked Always are kept
// regardless of the selection.
func Select(steps []Step, from string, only []string) ([]Step, error) {
	known := make(map[string]int, len(steps))
	for idx, step := range steps {
		known[step.Name] = idx
	}

	start := 0
	if from != "" {
		idx, ok := known[from]
		if !ok {
			return nil, eris.Errorf("Step %s not found", from)
		}
		start = idx
	}

	wanted := make(map[string]bool, len(only))
	for _, name := range only {
		if _, ok := known[name]; !ok {
			return nil, eris.Errorf("Step %s not found", name)
		}
		wanted[name] = true
	}

	result := make([]Step, 0, len(steps))
	for idx, step := range steps {
		selected := idx >= start && (len(wanted) == 0 || wanted[step.Name])
		if selected || step.Always {
			result = append(result, step)
		}
	}

	return result, nil
}

func newProgressBar(w io.Writer, count int) *progressbar.ProgressBar {
	if w == nil {
		return progressbar.NewOptions(count, progressbar.OptionSetVisibility(false))
	}

	return progressbar.NewOptions(count,
		progressbar.OptionSetWriter(w),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionOnCompletion(func() {
			_, _ = io.WriteString(w, "\n")
		}),
	)
}

// Run executes the steps chosen by opts.From and opts.Only in order against
// state. The returned error is the first step failure.
func Run(ctx context.Context, state *State, steps []Step, opts Options) (*Result, error) {
	steps, err := Select(steps, opts.From, opts.Only)
	if err != nil {
		return nil, err
	}

	state.Err = nil
	bar := newProgressBar(opts.Progress, len(steps))
	result := &Result{}
	var firstErr error

	for _, step := range steps {
		res := StepResult{Name: step.Name, Started: time.Now()}

		switch {
		case !step.enabled(state.Config):
			res.Status = StatusDisabled
		case firstErr != nil && !step.Always:
			res.Status = StatusSkipped
		default:
			if err := ctx.Err(); err != nil && firstErr == nil {
				firstErr = eris.Wrap(err, "Build cancelled")
				state.Err = firstErr
				res.Status = StatusCancelled
				break
			}

			bar.Describe(step.Desc)
			pkg.PrintTask(step.Desc)

			stepCtx := logging.WithStep(ctx, step.Name)
			err := step.Run(stepCtx, state)
			res.Duration = time.Since(res.Started)
			if err != nil {
				res.Status = StatusFailed
				res.Err = err
				logging.Log(stepCtx).Error().Err(err).Msgf("%s failed", step.Desc)
				if firstErr == nil {
					firstErr = eris.Wrapf(err, "Step %s failed", step.Name)
					state.Err = firstErr
				}
			} else {
				res.Status = StatusDone
			}
		}

		state.results = append(state.results, res)
		result.Steps = append(result.Steps, res)
		_ = bar.Add(1)
	}

	result.Success = firstErr == nil
	result.PackagerStatus = state.PackagerStatus
	if path, err := state.ArtifactPath(); err == nil {
		result.Artifact = path
	}

	return result, firstErr
}
