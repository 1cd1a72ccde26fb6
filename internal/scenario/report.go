package scenario

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// State of a scenario run.
type State string

const (
	NotStarted State = "not started"
	Running    State = "running"
	Passed     State = "passed"
	Failed     State = "failed"
)

// StepStatus of a single step within a scenario run.
type StepStatus string

const (
	StepPassed    StepStatus = "passed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
	StepUndefined StepStatus = "undefined"
)

type StepResult struct {
	Text   string
	Args   Args
	Status StepStatus
	Kind   Kind
	Err    error
}

type ScenarioResult struct {
	Name  string
	State State
	Steps []StepResult
}

// Verdict is the report label: passed, failed or timeout.
func (r ScenarioResult) Verdict() string {
	if r.State != Failed {
		return string(r.State)
	}
	if f := r.FailedStep(); f != nil && f.Kind == KindTimeout {
		return "timeout"
	}
	return string(Failed)
}

// FailedStep returns the step that failed the scenario, if any.
func (r ScenarioResult) FailedStep() *StepResult {
	for i := range r.Steps {
		if r.Steps[i].Status == StepFailed || r.Steps[i].Status == StepUndefined {
			return &r.Steps[i]
		}
	}
	return nil
}

type TeardownStatus string

const (
	TeardownPending TeardownStatus = "pending"
	TeardownOk      TeardownStatus = "ok"
	TeardownFailed  TeardownStatus = "failed"
)

// TeardownResult is Ok or Failed(Reason).
type TeardownResult struct {
	Status TeardownStatus
	Reason string
}

// SuiteReport collects scenario results and the teardown outcome. Safe for
// concurrent scenarios.
type SuiteReport struct {
	mu        sync.Mutex
	scenarios []ScenarioResult
	teardown  TeardownResult
}

func NewSuiteReport() *SuiteReport {
	return &SuiteReport{teardown: TeardownResult{Status: TeardownPending}}
}

func (r *SuiteReport) Add(result ScenarioResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.scenarios = append(r.scenarios, result)
}

func (r *SuiteReport) SetTeardown(result TeardownResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.teardown = result
}

func (r *SuiteReport) Teardown() TeardownResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.teardown
}

// Scenarios returns the results ordered by scenario name.
func (r *SuiteReport) Scenarios() []ScenarioResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ScenarioResult, len(r.scenarios))
	copy(out, r.scenarios)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Passed reports whether every scenario passed. Teardown does not count.
func (r *SuiteReport) Passed() bool {
	for _, s := range r.Scenarios() {
		if s.State != Passed {
			return false
		}
	}
	return true
}

func (r *SuiteReport) Write(w io.Writer) error {
	var b strings.Builder
	for _, s := range r.Scenarios() {
		fmt.Fprintf(&b, "%-8s %s\n", s.Verdict(), s.Name)
		if f := s.FailedStep(); f != nil {
			fmt.Fprintf(&b, "         step: %s\n", f.Text)
			if len(f.Args) > 0 {
				fmt.Fprintf(&b, "         args: %s\n", formatArgs(f.Args))
			}
			fmt.Fprintf(&b, "         %s: %v\n", f.Kind, f.Err)
		}
	}
	td := r.Teardown()
	if td.Status == TeardownFailed {
		fmt.Fprintf(&b, "teardown %s: %s\n", td.Status, td.Reason)
	} else {
		fmt.Fprintf(&b, "teardown %s\n", td.Status)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func formatArgs(args Args) string {
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%q", k, args[k]))
	}
	return strings.Join(parts, " ")
}
