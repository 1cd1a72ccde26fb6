package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
)

// DefaultTeardownTimeout bounds a teardown hook without its own timeout.
const DefaultTeardownTimeout = 95 * time.Minute

// TeardownHook releases resources once all scenarios of a suite completed.
type TeardownHook struct {
	Name    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Suite runs scenarios and then its teardown hooks exactly once.
type Suite struct {
	runner      *Runner
	hooks       []TeardownHook
	concurrency int
	report      *SuiteReport
	log         *slog.Logger

	teardownOnce sync.Once
}

type SuiteOption func(*Suite)

// WithConcurrency lets up to n scenarios run at the same time.
func WithConcurrency(n int) SuiteOption {
	return func(s *Suite) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

func NewSuite(runner *Runner, log *slog.Logger, opts ...SuiteOption) *Suite {
	s := &Suite{
		runner:      runner,
		concurrency: 1,
		report:      NewSuiteReport(),
		log:         log,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AfterSuite registers a teardown hook. Hooks run in registration order.
func (s *Suite) AfterSuite(hook TeardownHook) {
	if hook.Timeout <= 0 {
		hook.Timeout = DefaultTeardownTimeout
	}
	s.hooks = append(s.hooks, hook)
}

func (s *Suite) Report() *SuiteReport {
	return s.report
}

// Run executes every scenario, each with its own Context, and then the
// teardown. Cancelling ctx stops scenarios from starting but not the teardown.
func (s *Suite) Run(ctx context.Context, scenarios []Scenario) *SuiteReport {
	sem := make(chan struct{}, s.concurrency)
	var wg sync.WaitGroup

	for _, sc := range scenarios {
		if err := ctx.Err(); err != nil {
			s.report.Add(cancelled(sc, err))
			continue
		}
		select {
		case <-ctx.Done():
			s.report.Add(cancelled(sc, ctx.Err()))
			continue
		case sem <- struct{}{}:
		}
		wg.Add(1)
		go func(sc Scenario) {
			defer wg.Done()
			defer func() { <-sem }()
			s.report.Add(s.runner.Run(ctx, sc))
		}(sc)
	}
	wg.Wait()

	s.Teardown(ctx)
	return s.report
}

// Teardown runs the hooks once per suite, no matter how often it is called.
// Failures are logged and recorded, never returned.
func (s *Suite) Teardown(ctx context.Context) {
	s.teardownOnce.Do(func() {
		s.report.SetTeardown(s.runHooks(context.WithoutCancel(ctx)))
	})
}

func (s *Suite) runHooks(ctx context.Context) TeardownResult {
	var result error
	for _, hook := range s.hooks {
		log := s.log.With("teardown", hook.Name)
		log.Info("running teardown")
		if err := runHook(ctx, hook); err != nil {
			log.Error(fmt.Sprintf("teardown failed: %v", err))
			result = multierror.Append(result, &TeardownError{Hook: hook.Name, Err: err})
			continue
		}
		log.Info("teardown finished")
	}
	if result != nil {
		return TeardownResult{Status: TeardownFailed, Reason: result.Error()}
	}
	return TeardownResult{Status: TeardownOk}
}

func runHook(ctx context.Context, hook TeardownHook) (err error) {
	hookCtx, cancel := context.WithTimeout(ctx, hook.Timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- fmt.Errorf("panic: %v", p)
			}
		}()
		done <- hook.Run(hookCtx)
	}()

	select {
	case err = <-done:
		return err
	case <-hookCtx.Done():
		return fmt.Errorf("did not finish within %s", hook.Timeout)
	}
}

func cancelled(sc Scenario, err error) ScenarioResult {
	result := ScenarioResult{Name: sc.Name, State: Failed}
	for i, line := range sc.Steps {
		step := StepResult{Text: stripKeyword(line), Status: StepSkipped}
		if i == 0 {
			step.Status = StepFailed
			step.Kind = KindCollaborator
			step.Err = &CollaboratorError{Operation: "starting scenario", Err: err}
		}
		result.Steps = append(result.Steps, step)
	}
	return result
}
