package scenario

import (
	"context"
	"fmt"
	"strings"

	"github.com/cucumber/godog"
)

// maxParams is the largest placeholder count Bind can expose to godog.
const maxParams = 3

// Bind registers every definition with a godog scenario and gives each
// scenario a fresh Context before its first step.
func (r *Registry) Bind(sc *godog.ScenarioContext) {
	sc.Before(func(ctx context.Context, _ *godog.Scenario) (context.Context, error) {
		return WithContext(ctx, NewContext()), nil
	})
	for _, def := range r.definitions {
		sc.Step(def.expr, r.godogStep(def))
	}
}

func (r *Registry) godogStep(def *Definition) any {
	run := func(ctx context.Context, values ...string) error {
		sc, ok := FromContext(ctx)
		if !ok {
			return fmt.Errorf("no scenario context bound for step %q", def.Phrase)
		}
		args := def.args(values)
		return r.invoke(ctx, def, sc, def.render(args), args)
	}
	switch len(def.names) {
	case 0:
		return func(ctx context.Context) error { return run(ctx) }
	case 1:
		return func(ctx context.Context, a string) error { return run(ctx, a) }
	case 2:
		return func(ctx context.Context, a, b string) error { return run(ctx, a, b) }
	default:
		return func(ctx context.Context, a, b, c string) error { return run(ctx, a, b, c) }
	}
}

// render substitutes the captured arguments back into the phrase.
func (d *Definition) render(args Args) string {
	text := d.Phrase
	for _, name := range d.names {
		text = strings.Replace(text, "{"+name+"}", `"`+args[name]+`"`, 1)
	}
	return text
}

type recording struct {
	result ScenarioResult
}

type recordingKey struct{}

// InitializeScenario binds the registry to a godog scenario and records its
// outcome in the suite report.
func (s *Suite) InitializeScenario(sc *godog.ScenarioContext) {
	s.runner.registry.Bind(sc)

	sc.Before(func(ctx context.Context, scn *godog.Scenario) (context.Context, error) {
		rec := &recording{result: ScenarioResult{Name: scn.Name, State: Running}}
		return context.WithValue(ctx, recordingKey{}, rec), nil
	})
	sc.StepContext().After(func(ctx context.Context, st *godog.Step, status godog.StepResultStatus, err error) (context.Context, error) {
		rec, ok := ctx.Value(recordingKey{}).(*recording)
		if !ok {
			return ctx, nil
		}
		step := StepResult{Text: st.Text, Err: err, Kind: KindOf(err)}
		if _, args, matchErr := s.runner.registry.Match(st.Text); matchErr == nil {
			step.Args = args
		}
		switch status {
		case godog.StepPassed:
			step.Status = StepPassed
		case godog.StepUndefined:
			step.Status = StepUndefined
			step.Kind = KindUndefinedStep
			rec.result.State = Failed
		case godog.StepFailed:
			step.Status = StepFailed
			rec.result.State = Failed
		default:
			step.Status = StepSkipped
		}
		rec.result.Steps = append(rec.result.Steps, step)
		return ctx, nil
	})
	sc.After(func(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
		rec, ok := ctx.Value(recordingKey{}).(*recording)
		if !ok {
			return ctx, nil
		}
		if err != nil || rec.result.State == Failed {
			rec.result.State = Failed
		} else {
			rec.result.State = Passed
		}
		s.report.Add(rec.result)
		s.runner.finish(rec.result)
		return ctx, nil
	})
}

// InitializeTestSuite runs the teardown hooks once godog finished all scenarios.
func (s *Suite) InitializeTestSuite(ctx context.Context) func(*godog.TestSuiteContext) {
	return func(tsc *godog.TestSuiteContext) {
		tsc.AfterSuite(func() {
			s.Teardown(ctx)
		})
	}
}
