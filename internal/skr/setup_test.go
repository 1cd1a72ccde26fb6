package skr

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/common/gardener"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/broker"
	"github.com/pivotal-cf/brokerapi/v8/domain"
	"github.com/pivotal-cf/brokerapi/v8/domain/apiresponses"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

const (
	fixInstanceID = "inst-id"
	fixShootName  = "c-12345"
)

func fixLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fixConfig() Config {
	return Config{
		ProvisioningTimeout:   time.Second,
		OperationTimeout:      time.Second,
		DeprovisioningTimeout: time.Second,
		PollInterval:          time.Millisecond,
	}
}

type fakeBroker struct {
	mu           sync.Mutex
	states       map[string]domain.LastOperationState
	provisionErr error
	provisioned  map[string]map[string]any
	updated      map[string]any
	deprovisions int
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		states: map[string]domain.LastOperationState{
			"op-provision":   domain.Succeeded,
			"op-update":      domain.Succeeded,
			"op-deprovision": domain.Succeeded,
		},
		provisioned: map[string]map[string]any{},
	}
}

func (f *fakeBroker) GetOperation(_ context.Context, _, operationID string) (apiresponses.LastOperationResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return apiresponses.LastOperationResponse{State: f.states[operationID]}, nil
}

func (f *fakeBroker) ProvisionInstance(_ context.Context, instanceID, _, _ string, parameters map[string]any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.provisionErr != nil {
		return "", f.provisionErr
	}
	f.provisioned[instanceID] = parameters
	return "op-provision", nil
}

func (f *fakeBroker) UpdateInstance(_ context.Context, _ string, parameters map[string]any) (apiresponses.UpdateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated = parameters
	return apiresponses.UpdateResponse{OperationData: "op-update"}, nil
}

func (f *fakeBroker) DeprovisionInstance(context.Context, string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deprovisions++
	return "op-deprovision", nil
}

func (f *fakeBroker) GetRuntime(_ context.Context, instanceID string) (broker.Runtime, error) {
	return broker.Runtime{InstanceID: instanceID, RuntimeID: "rt-id", ShootName: fixShootName}, nil
}

type fakeShoots struct{}

func (fakeShoots) GetShoot(_ context.Context, name string) (*gardener.Shoot, error) {
	shoot := &gardener.Shoot{Unstructured: unstructured.Unstructured{Object: map[string]any{
		"spec": map[string]any{"region": "eu-central-1"},
	}}}
	shoot.SetName(name)
	return shoot, nil
}

func fixOptions() Options {
	return NewOptions(broker.Config{PlanID: broker.AWSPlanID, Region: "eu-central-1", UserID: "john.smith@email.com"}, OptionsConfig{
		TestNamespace: "skr-test",
		NamePrefix:    "kyma",
		InstanceID:    fixInstanceID,
	})
}

func TestSetup_Provision(t *testing.T) {
	t.Run("should provision, track and return the shoot", func(t *testing.T) {
		// given
		b := newFakeBroker()
		tracker := NewTracker()
		setup := NewSetup(b, fakeShoots{}, tracker, fixConfig(), fixLogger())

		// when
		shoot, err := setup.Provision(context.Background(), fixOptions())

		// then
		require.NoError(t, err)
		assert.Equal(t, fixShootName, shoot.GetName())
		assert.Equal(t, "eu-central-1", shoot.Region())
		assert.Equal(t, []string{fixInstanceID}, tracker.Instances())
		params := b.provisioned[fixInstanceID]
		assert.Equal(t, []string{"john.smith@email.com"}, params["administrators"])
		assert.Equal(t, "abc-xyz", params["oidc"].(map[string]any)["clientID"])
	})

	t.Run("should keep tracking an instance whose provisioning failed", func(t *testing.T) {
		// given
		b := newFakeBroker()
		b.states["op-provision"] = domain.Failed
		tracker := NewTracker()
		setup := NewSetup(b, fakeShoots{}, tracker, fixConfig(), fixLogger())

		// when
		_, err := setup.Provision(context.Background(), fixOptions())

		// then
		var notSucceeded *broker.OperationNotSucceededError
		assert.True(t, errors.As(err, &notSucceeded))
		assert.Equal(t, []string{fixInstanceID}, tracker.Instances())
	})

	t.Run("should not track an instance KEB rejected", func(t *testing.T) {
		b := newFakeBroker()
		b.provisionErr = &broker.HTTPError{StatusCode: 400, Description: "invalid plan"}
		tracker := NewTracker()

		_, err := NewSetup(b, fakeShoots{}, tracker, fixConfig(), fixLogger()).Provision(context.Background(), fixOptions())

		assert.ErrorContains(t, err, "invalid plan")
		assert.Empty(t, tracker.Instances())
	})
}

func TestSetup_UpdateAndDeprovision(t *testing.T) {
	// given
	b := newFakeBroker()
	setup := NewSetup(b, fakeShoots{}, NewTracker(), fixConfig(), fixLogger())

	// when
	resp, err := setup.Update(context.Background(), fixInstanceID, map[string]any{"administrators": []string{"admin1@acme.com"}})
	require.NoError(t, err)
	err = setup.WaitForOperation(context.Background(), fixInstanceID, resp.OperationData)
	require.NoError(t, err)
	err = setup.Deprovision(context.Background(), fixInstanceID)

	// then
	require.NoError(t, err)
	assert.Equal(t, "op-update", resp.OperationData)
	assert.Contains(t, b.updated, "administrators")
	assert.Equal(t, 1, b.deprovisions)
}

func TestSetup_DeprovisionFailed(t *testing.T) {
	b := newFakeBroker()
	b.states["op-deprovision"] = domain.Failed

	err := NewSetup(b, fakeShoots{}, NewTracker(), fixConfig(), fixLogger()).Deprovision(context.Background(), fixInstanceID)

	assert.ErrorContains(t, err, "Final state: failed")
}
