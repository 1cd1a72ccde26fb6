package steps

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/scenario"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/skr"
)

const teardownTimeout = scenario.DefaultTeardownTimeout

type Deprovisioner interface {
	Deprovision(ctx context.Context, instanceID string) error
}

type NamespaceDeleter interface {
	DeleteNamespaces(ctx context.Context, instanceID string, namespaces []string) error
}

type BindingReleaser interface {
	Release(ctx context.Context, instanceID string) error
}

type Teardown struct {
	Tracker       *skr.Tracker
	Deprovisioner Deprovisioner
	Namespaces    NamespaceDeleter
	Bindings      BindingReleaser
	KeepSKR       bool
	Log           *slog.Logger
}

// Hook releases everything the run tracked: commerce mock namespaces first,
// then bindings, then the instance itself.
func (t *Teardown) Hook() scenario.TeardownHook {
	return scenario.TeardownHook{Name: "deprovision SKR", Timeout: teardownTimeout, Run: t.run}
}

func (t *Teardown) run(ctx context.Context) error {
	instances := t.Tracker.Instances()
	if len(instances) == 0 {
		t.Log.Info("nothing to tear down")
		return nil
	}
	if t.KeepSKR {
		t.Log.Info(fmt.Sprintf("KEEP_SKR is set, leaving %d instance(s) in place", len(instances)), "instances", instances)
		return nil
	}

	var result error
	for _, instanceID := range instances {
		log := t.Log.With("instanceID", instanceID)
		if err := t.Namespaces.DeleteNamespaces(ctx, instanceID, t.Tracker.Namespaces(instanceID)); err != nil {
			log.Error(fmt.Sprintf("while deleting commerce mock resources: %v", err))
			result = multierror.Append(result, fmt.Errorf("instance %s: %w", instanceID, err))
		}
		if t.Bindings != nil {
			if err := t.Bindings.Release(ctx, instanceID); err != nil {
				log.Warn(fmt.Sprintf("while releasing bindings: %v", err))
			}
		}
		if err := t.Deprovisioner.Deprovision(ctx, instanceID); err != nil {
			log.Error(fmt.Sprintf("while deprovisioning: %v", err))
			result = multierror.Append(result, fmt.Errorf("instance %s: %w", instanceID, err))
			continue
		}
		t.Tracker.Forget(instanceID)
	}
	return result
}
