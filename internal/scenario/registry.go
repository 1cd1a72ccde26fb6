package scenario

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"runtime/debug"
	"time"
)

// DefaultStepTimeout applies to definitions that do not declare a timeout.
const DefaultStepTimeout = 5 * time.Minute

// Handler executes one step. sc is owned by the running scenario.
type Handler func(ctx context.Context, sc *Context, args Args) error

// Definition binds a phrase to a handler.
type Definition struct {
	Phrase  string
	Params  []Param
	Timeout time.Duration
	Handler Handler

	expr  *regexp.Regexp
	names []string
}

// Expression returns the compiled, anchored expression of the phrase.
func (d *Definition) Expression() *regexp.Regexp {
	return d.expr
}

// StepObserver is notified after every executed step.
type StepObserver interface {
	ObserveStep(phrase string, duration time.Duration, kind Kind)
}

// Registry holds step definitions in registration order.
type Registry struct {
	definitions    []*Definition
	phrases        map[string]struct{}
	defaultTimeout time.Duration
	observer       StepObserver
	log            *slog.Logger
}

type RegistryOption func(*Registry)

func WithDefaultTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		r.defaultTimeout = d
	}
}

func WithObserver(o StepObserver) RegistryOption {
	return func(r *Registry) {
		r.observer = o
	}
}

func WithLogger(log *slog.Logger) RegistryOption {
	return func(r *Registry) {
		r.log = log
	}
}

func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		phrases:        make(map[string]struct{}),
		defaultTimeout: DefaultStepTimeout,
		log:            slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register validates and adds a definition. A phrase may be registered once.
func (r *Registry) Register(def Definition) error {
	if def.Handler == nil {
		return fmt.Errorf("phrase %q has no handler", def.Phrase)
	}
	if len(def.Params) > maxParams {
		return fmt.Errorf("phrase %q declares %d parameters, at most %d are supported", def.Phrase, len(def.Params), maxParams)
	}
	if _, exists := r.phrases[def.Phrase]; exists {
		return fmt.Errorf("phrase %q is already registered", def.Phrase)
	}
	expr, names, err := compilePhrase(def.Phrase, def.Params)
	if err != nil {
		return err
	}
	if def.Timeout <= 0 {
		def.Timeout = r.defaultTimeout
	}
	def.expr = expr
	def.names = names
	r.phrases[def.Phrase] = struct{}{}
	r.definitions = append(r.definitions, &def)
	return nil
}

// MustRegister is Register that panics; meant for static step tables.
func (r *Registry) MustRegister(defs ...Definition) {
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			panic(err)
		}
	}
}

// Definitions returns the registered definitions in registration order.
func (r *Registry) Definitions() []*Definition {
	out := make([]*Definition, len(r.definitions))
	copy(out, r.definitions)
	return out
}

// Match returns the first definition matching line with its captured arguments.
func (r *Registry) Match(line string) (*Definition, Args, error) {
	text := stripKeyword(line)
	for _, def := range r.definitions {
		groups := def.expr.FindStringSubmatch(text)
		if groups == nil {
			continue
		}
		return def, def.args(groups[1:]), nil
	}
	return nil, nil, &UndefinedStepError{Text: text}
}

// Execute matches line and runs its handler against sc.
func (r *Registry) Execute(ctx context.Context, sc *Context, line string) (Args, error) {
	def, args, err := r.Match(line)
	if err != nil {
		return nil, err
	}
	return args, r.invoke(ctx, def, sc, stripKeyword(line), args)
}

func (d *Definition) args(values []string) Args {
	args := make(Args, len(d.names))
	for i, name := range d.names {
		args[name] = values[i]
	}
	return args
}

// invoke runs the handler under the definition's timeout. The handler is
// awaited until it returns or the deadline passes, whichever comes first.
func (r *Registry) invoke(ctx context.Context, def *Definition, sc *Context, text string, args Args) error {
	log := r.log.With("step", text)
	stepCtx, cancel := context.WithTimeout(ctx, def.Timeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- &CollaboratorError{
					Operation: fmt.Sprintf("executing step %q", text),
					Err:       fmt.Errorf("panic: %v\n%s", p, debug.Stack()),
				}
			}
		}()
		done <- def.Handler(stepCtx, sc, args)
	}()

	var err error
	select {
	case err = <-done:
		if err != nil && stepCtx.Err() != nil && ctx.Err() == nil && KindOf(err) == KindNone {
			err = &StepTimeoutError{Step: text, Timeout: def.Timeout}
		}
	case <-stepCtx.Done():
		if ctx.Err() != nil {
			err = &CollaboratorError{Operation: fmt.Sprintf("executing step %q", text), Err: ctx.Err()}
		} else {
			err = &StepTimeoutError{Step: text, Timeout: def.Timeout}
		}
	}
	err = classify(err, text)

	elapsed := time.Since(start)
	if r.observer != nil {
		r.observer.ObserveStep(def.Phrase, elapsed, KindOf(err))
	}
	if err != nil {
		log.Error(fmt.Sprintf("step failed after %s: %v", elapsed.Round(time.Millisecond), err), "kind", KindOf(err))
		return err
	}
	log.Info(fmt.Sprintf("step passed in %s", elapsed.Round(time.Millisecond)))
	return nil
}
