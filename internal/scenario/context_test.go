package scenario

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_Lookup(t *testing.T) {
	// given
	sc := NewContext()
	sc.Set("commerceMockHost", "commerce.kyma.example.com")

	t.Run("should return a stored value", func(t *testing.T) {
		host, err := Lookup[string](sc, "commerceMockHost")

		require.NoError(t, err)
		assert.Equal(t, "commerce.kyma.example.com", host)
	})

	t.Run("should fail as assertion for a missing key", func(t *testing.T) {
		_, err := Lookup[string](sc, "eventId")

		assert.Equal(t, KindAssertion, KindOf(err))
		assert.ErrorContains(t, err, `"eventId"`)
	})

	t.Run("should fail as assertion for another type", func(t *testing.T) {
		_, err := Lookup[int](sc, "commerceMockHost")

		assert.Equal(t, KindAssertion, KindOf(err))
		assert.ErrorContains(t, err, "holds string")
	})

	t.Run("should overwrite on set", func(t *testing.T) {
		sc.Set("operationID", "op-1")
		sc.Set("operationID", "op-2")

		v, ok := sc.Value("operationID")
		assert.True(t, ok)
		assert.Equal(t, "op-2", v)
	})
}

func TestContext_LookupOptional(t *testing.T) {
	// given
	sc := NewContext()
	sc.Set("auditLogs", nil)

	// when
	_, found, err := LookupOptional[fmt.Stringer](sc, "auditLogs")

	// then
	require.NoError(t, err)
	assert.False(t, found)
	assert.True(t, sc.Has("auditLogs"))
	assert.Equal(t, []string{"auditLogs"}, sc.Keys())
}

func TestContext_FromContext(t *testing.T) {
	// given
	sc := NewContext()

	// when
	got, ok := FromContext(WithContext(context.Background(), sc))
	_, missing := FromContext(context.Background())

	// then
	assert.True(t, ok)
	assert.Same(t, sc, got)
	assert.False(t, missing)
}

func TestContext_IsolatedBetweenConcurrentScenarios(t *testing.T) {
	// given
	r := NewRegistry(WithLogger(fixLogger()))
	r.MustRegister(
		Definition{Phrase: "the value {v} is stored", Params: []Param{String("v")}, Handler: func(_ context.Context, sc *Context, args Args) error {
			sc.Set("value", args.Get("v"))
			return nil
		}},
		Definition{Phrase: "the value is {v}", Params: []Param{String("v")}, Handler: func(_ context.Context, sc *Context, args Args) error {
			got, err := Lookup[string](sc, "value")
			if err != nil {
				return err
			}
			if got != args.Get("v") {
				return Assertionf("expected %s, got %s", args.Get("v"), got)
			}
			return nil
		}},
	)
	runner := NewRunner(r, nil, fixLogger())

	// when
	var wg sync.WaitGroup
	results := make([]ScenarioResult, 20)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v := fmt.Sprintf("%d", i)
			results[i] = runner.Run(context.Background(), Scenario{
				Name:  v,
				Steps: []string{fmt.Sprintf(`Given the value "%s" is stored`, v), fmt.Sprintf(`Then the value is "%s"`, v)},
			})
		}(i)
	}
	wg.Wait()

	// then
	for _, res := range results {
		assert.Equal(t, Passed, res.State, res.Name)
	}
}
