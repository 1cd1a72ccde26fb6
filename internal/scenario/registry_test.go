package scenario

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func noop(context.Context, *Context, Args) error { return nil }

func TestRegistry_Register(t *testing.T) {
	t.Run("should reject a duplicated phrase", func(t *testing.T) {
		// given
		r := NewRegistry(WithLogger(fixLogger()))
		require.NoError(t, r.Register(Definition{Phrase: "SKR is provisioned", Handler: noop}))

		// when
		err := r.Register(Definition{Phrase: "SKR is provisioned", Handler: noop})

		// then
		assert.ErrorContains(t, err, "already registered")
		assert.Len(t, r.Definitions(), 1)
	})

	t.Run("should reject undeclared and unused parameters", func(t *testing.T) {
		r := NewRegistry(WithLogger(fixLogger()))

		assert.ErrorContains(t, r.Register(Definition{Phrase: "Admin binding exists for {user} user", Handler: noop}), "undeclared parameter")
		assert.ErrorContains(t, r.Register(Definition{Phrase: "SKR is provisioned", Params: []Param{String("user")}, Handler: noop}), "does not use parameter")
		assert.ErrorContains(t, r.Register(Definition{Phrase: "{a} and {a}", Params: []Param{String("a")}, Handler: noop}), "twice")
		assert.Empty(t, r.Definitions())
	})

	t.Run("should reject a definition without handler", func(t *testing.T) {
		r := NewRegistry()

		assert.ErrorContains(t, r.Register(Definition{Phrase: "SKR is provisioned"}), "no handler")
	})

	t.Run("should reject more parameters than godog can bind", func(t *testing.T) {
		r := NewRegistry()
		params := []Param{String("a"), String("b"), String("c"), String("d")}

		assert.ErrorContains(t, r.Register(Definition{Phrase: "{a}{b}{c}{d}", Params: params, Handler: noop}), "at most 3")
	})

	t.Run("should apply the default timeout", func(t *testing.T) {
		// given
		r := NewRegistry(WithDefaultTimeout(time.Minute))

		// when
		require.NoError(t, r.Register(Definition{Phrase: "SKR is provisioned", Handler: noop}))
		require.NoError(t, r.Register(Definition{Phrase: "Audit logs should be available", Timeout: 10 * time.Minute, Handler: noop}))

		// then
		defs := r.Definitions()
		assert.Equal(t, time.Minute, defs[0].Timeout)
		assert.Equal(t, 10*time.Minute, defs[1].Timeout)
	})
}

func TestRegistry_Match(t *testing.T) {
	// given
	r := NewRegistry()
	r.MustRegister(
		Definition{Phrase: "{config} OIDC config is applied on the shoot cluster", Params: []Param{String("config")}, Handler: noop},
		Definition{Phrase: "A {encoding} event is sent", Params: []Param{Enum("encoding", "legacy", "structured", "binary")}, Handler: noop},
		Definition{Phrase: "A legacy event is sent", Handler: noop},
	)

	t.Run("should capture quoted strings", func(t *testing.T) {
		// when
		def, args, err := r.Match(`Then "Initial" OIDC config is applied on the shoot cluster`)

		// then
		require.NoError(t, err)
		assert.Equal(t, "{config} OIDC config is applied on the shoot cluster", def.Phrase)
		assert.Equal(t, "Initial", args.Get("config"))
	})

	t.Run("should capture an empty quoted string", func(t *testing.T) {
		_, args, err := r.Match(`"" OIDC config is applied on the shoot cluster`)

		require.NoError(t, err)
		assert.Equal(t, "", args.Get("config"))
	})

	t.Run("should accept only enum values", func(t *testing.T) {
		_, args, err := r.Match(`When A "binary" event is sent`)
		require.NoError(t, err)
		assert.Equal(t, "binary", args.Get("encoding"))

		_, _, err = r.Match(`When A "xml" event is sent`)
		var undefined *UndefinedStepError
		assert.ErrorAs(t, err, &undefined)
		assert.Equal(t, KindUndefinedStep, KindOf(err))
	})

	t.Run("should match unquoted phrase separately", func(t *testing.T) {
		def, args, err := r.Match("And A legacy event is sent")

		require.NoError(t, err)
		assert.Equal(t, "A legacy event is sent", def.Phrase)
		assert.Empty(t, args)
	})

	t.Run("should not match partial lines", func(t *testing.T) {
		_, _, err := r.Match(`A "legacy" event is sent twice`)

		assert.Error(t, err)
	})
}

func TestRegistry_MatchFirstRegistered(t *testing.T) {
	// given
	r := NewRegistry()
	r.MustRegister(
		Definition{Phrase: "Admin binding exists for {user} user", Params: []Param{String("user")}, Handler: noop},
		Definition{Phrase: "Admin binding exists for {who} user", Params: []Param{Enum("who", "old")}, Handler: noop},
	)

	// when
	def, args, err := r.Match(`Admin binding exists for "old" user`)

	// then
	require.NoError(t, err)
	assert.Equal(t, "Admin binding exists for {user} user", def.Phrase)
	assert.Equal(t, "old", args.Get("user"))
}

type recordingObserver struct {
	phrases []string
	kinds   []Kind
}

func (o *recordingObserver) ObserveStep(phrase string, _ time.Duration, kind Kind) {
	o.phrases = append(o.phrases, phrase)
	o.kinds = append(o.kinds, kind)
}

func TestRegistry_Execute(t *testing.T) {
	t.Run("should pass arguments and context to the handler", func(t *testing.T) {
		// given
		observer := &recordingObserver{}
		r := NewRegistry(WithObserver(observer), WithLogger(fixLogger()))
		r.MustRegister(Definition{
			Phrase: "Admin binding exists for {user} user",
			Params: []Param{String("user")},
			Handler: func(_ context.Context, sc *Context, args Args) error {
				sc.Set("user", args.Get("user"))
				return nil
			},
		})
		sc := NewContext()

		// when
		args, err := r.Execute(context.Background(), sc, `And Admin binding exists for "old" user`)

		// then
		require.NoError(t, err)
		assert.Equal(t, Args{"user": "old"}, args)
		user, err := Lookup[string](sc, "user")
		require.NoError(t, err)
		assert.Equal(t, "old", user)
		assert.Equal(t, []Kind{KindNone}, observer.kinds)
	})

	t.Run("should fail with StepTimeout when the handler ignores its deadline", func(t *testing.T) {
		// given
		release := make(chan struct{})
		defer close(release)
		r := NewRegistry(WithLogger(fixLogger()))
		r.MustRegister(Definition{
			Phrase:  "SKR is provisioned",
			Timeout: 20 * time.Millisecond,
			Handler: func(context.Context, *Context, Args) error {
				<-release
				return nil
			},
		})

		// when
		start := time.Now()
		_, err := r.Execute(context.Background(), NewContext(), "Given SKR is provisioned")

		// then
		assert.Less(t, time.Since(start), time.Second)
		var timeout *StepTimeoutError
		require.ErrorAs(t, err, &timeout)
		assert.Equal(t, 20*time.Millisecond, timeout.Timeout)
		assert.Equal(t, KindTimeout, KindOf(err))
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("should report StepTimeout when the handler returns the deadline error", func(t *testing.T) {
		r := NewRegistry(WithLogger(fixLogger()))
		r.MustRegister(Definition{
			Phrase:  "The event is received successfully",
			Timeout: 10 * time.Millisecond,
			Handler: func(ctx context.Context, _ *Context, _ Args) error {
				<-ctx.Done()
				return ctx.Err()
			},
		})

		_, err := r.Execute(context.Background(), NewContext(), "The event is received successfully")

		assert.Equal(t, KindTimeout, KindOf(err))
	})

	t.Run("should classify plain errors as collaborator errors", func(t *testing.T) {
		r := NewRegistry(WithLogger(fixLogger()))
		r.MustRegister(Definition{Phrase: "SKR service is updated", Handler: func(context.Context, *Context, Args) error {
			return errors.New("connection refused")
		}})

		_, err := r.Execute(context.Background(), NewContext(), "SKR service is updated")

		assert.Equal(t, KindCollaborator, KindOf(err))
		assert.ErrorContains(t, err, "connection refused")
	})

	t.Run("should keep assertion failures", func(t *testing.T) {
		r := NewRegistry(WithLogger(fixLogger()))
		r.MustRegister(Definition{Phrase: "The function should be reachable", Handler: func(context.Context, *Context, Args) error {
			return Assertionf("expected 200, got %d", 500)
		}})

		_, err := r.Execute(context.Background(), NewContext(), "The function should be reachable")

		assert.Equal(t, KindAssertion, KindOf(err))
	})

	t.Run("should recover a panicking handler", func(t *testing.T) {
		r := NewRegistry(WithLogger(fixLogger()))
		r.MustRegister(Definition{Phrase: "SKR is provisioned", Handler: func(context.Context, *Context, Args) error {
			panic("boom")
		}})

		_, err := r.Execute(context.Background(), NewContext(), "SKR is provisioned")

		assert.Equal(t, KindCollaborator, KindOf(err))
		assert.ErrorContains(t, err, "boom")
	})

	t.Run("should fail undefined steps", func(t *testing.T) {
		r := NewRegistry()

		_, err := r.Execute(context.Background(), NewContext(), "Given nothing is registered")

		assert.Equal(t, KindUndefinedStep, KindOf(err))
		assert.ErrorContains(t, err, "nothing is registered")
	})

	t.Run("should not call it a timeout when the run is cancelled", func(t *testing.T) {
		// given
		ctx, cancel := context.WithCancel(context.Background())
		r := NewRegistry(WithLogger(fixLogger()))
		r.MustRegister(Definition{Phrase: "SKR is provisioned", Timeout: time.Hour, Handler: func(ctx context.Context, _ *Context, _ Args) error {
			cancel()
			<-ctx.Done()
			return ctx.Err()
		}})

		// when
		_, err := r.Execute(ctx, NewContext(), "SKR is provisioned")

		// then
		assert.Equal(t, KindCollaborator, KindOf(err))
	})
}
