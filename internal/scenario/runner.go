package scenario

import (
	"context"
	"log/slog"
)

// Scenario is a named, ordered list of step lines.
type Scenario struct {
	Name  string
	Steps []string
}

// ScenarioObserver is notified when a scenario run finishes.
type ScenarioObserver interface {
	ObserveScenario(name string, state State)
}

// Runner executes scenarios step by step against a Registry.
type Runner struct {
	registry *Registry
	observer ScenarioObserver
	log      *slog.Logger
}

func NewRunner(registry *Registry, observer ScenarioObserver, log *slog.Logger) *Runner {
	return &Runner{registry: registry, observer: observer, log: log}
}

// Run executes s with a fresh Context.
func (r *Runner) Run(ctx context.Context, s Scenario) ScenarioResult {
	return r.RunWith(ctx, NewContext(), s)
}

// RunWith executes s against sc. Steps run strictly in order; after the
// first failure no further step runs and the rest are reported skipped.
func (r *Runner) RunWith(ctx context.Context, sc *Context, s Scenario) ScenarioResult {
	log := r.log.With("scenario", s.Name)
	result := ScenarioResult{Name: s.Name, State: NotStarted, Steps: make([]StepResult, 0, len(s.Steps))}
	if len(s.Steps) == 0 {
		result.State = Passed
		r.finish(result)
		return result
	}

	result.State = Running
	log.Info("scenario started")
	for _, line := range s.Steps {
		text := stripKeyword(line)
		if result.State == Failed {
			result.Steps = append(result.Steps, StepResult{Text: text, Status: StepSkipped})
			continue
		}
		args, err := r.registry.Execute(ctx, sc, line)
		step := StepResult{Text: text, Args: args, Status: StepPassed}
		if err != nil {
			step.Err = err
			step.Kind = KindOf(err)
			step.Status = StepFailed
			if step.Kind == KindUndefinedStep {
				step.Status = StepUndefined
			}
			result.State = Failed
		}
		result.Steps = append(result.Steps, step)
	}
	if result.State == Running {
		result.State = Passed
	}
	log.Info("scenario finished", "state", result.State)
	r.finish(result)
	return result
}

func (r *Runner) finish(result ScenarioResult) {
	if r.observer != nil {
		r.observer.ObserveScenario(result.Name, result.State)
	}
}
