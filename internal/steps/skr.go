package steps

import (
	"context"
	"fmt"

	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/common/gardener"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/common/runtime"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/oidc"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/scenario"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/skr"
	"github.com/pivotal-cf/brokerapi/v8/domain/apiresponses"
)

type skrSteps struct {
	env *Env
}

func (s *skrSteps) provisioned(ctx context.Context, sc *scenario.Context, _ scenario.Args) error {
	sc.Set(keyFeatureName, featureName)
	opts := s.env.NewOptions()
	shoot, err := s.env.Provisioner.Provision(ctx, opts)
	if err != nil {
		return assertOrCollaborate(err, fmt.Sprintf("provisioning SKR %s", opts.InstanceID))
	}
	sc.Set(keyOptions, opts)
	sc.Set(keyShoot, shoot)
	return nil
}

// oidcFor selects the initial config for "Initial" and the updated one otherwise.
func oidcFor(opts skr.Options, config string) runtime.OIDCConfigDTO {
	if config == "Initial" {
		return opts.OIDC0
	}
	return opts.OIDC1
}

func (s *skrSteps) shootOIDCApplied(_ context.Context, sc *scenario.Context, args scenario.Args) error {
	opts, err := scenario.Lookup[skr.Options](sc, keyOptions)
	if err != nil {
		return err
	}
	shoot, err := scenario.Lookup[*gardener.Shoot](sc, keyShoot)
	if err != nil {
		return err
	}
	return assertOrCollaborate(oidc.ValidateShootOIDCConfig(shoot, oidcFor(opts, args.Get("config"))), "validating shoot OIDC config")
}

func (s *skrSteps) kubeconfigOIDC(ctx context.Context, sc *scenario.Context, args scenario.Args) error {
	opts, err := scenario.Lookup[skr.Options](sc, keyOptions)
	if err != nil {
		return err
	}
	err = oidc.ValidateKubeconfigOIDC(ctx, s.env.Kubeconfigs, opts.InstanceID, oidcFor(opts, args.Get("config")))
	return assertOrCollaborate(err, "validating kubeconfig OIDC config")
}

func (s *skrSteps) adminBindingExists(ctx context.Context, sc *scenario.Context, args scenario.Args) error {
	opts, err := scenario.Lookup[skr.Options](sc, keyOptions)
	if err != nil {
		return err
	}
	admins := opts.Administrators1
	if args.Get("user") == "old" {
		admins = []string{opts.KEBUserID}
	}
	k8sClient, err := s.env.Clusters.Client(ctx, opts.InstanceID)
	if err != nil {
		return scenario.Collaborator(err, "creating SKR client")
	}
	return assertOrCollaborate(oidc.EnsureAdminBindings(ctx, k8sClient, admins), "checking admin bindings")
}

func (s *skrSteps) oldAdminRemoved(ctx context.Context, sc *scenario.Context, _ scenario.Args) error {
	opts, err := scenario.Lookup[skr.Options](sc, keyOptions)
	if err != nil {
		return err
	}
	k8sClient, err := s.env.Clusters.Client(ctx, opts.InstanceID)
	if err != nil {
		return scenario.Collaborator(err, "creating SKR client")
	}
	return assertOrCollaborate(oidc.EnsureNoAdminBinding(ctx, k8sClient, opts.KEBUserID), "checking old admin binding")
}

func (s *skrSteps) updated(ctx context.Context, sc *scenario.Context, _ scenario.Args) error {
	opts, err := scenario.Lookup[skr.Options](sc, keyOptions)
	if err != nil {
		return err
	}
	return s.update(ctx, sc, opts, map[string]any{"oidc": opts.OIDC1.ToParameters()}, keyUpdateSkrResponse)
}

func (s *skrSteps) adminsUpdated(ctx context.Context, sc *scenario.Context, _ scenario.Args) error {
	opts, err := scenario.Lookup[skr.Options](sc, keyOptions)
	if err != nil {
		return err
	}
	return s.update(ctx, sc, opts, map[string]any{"administrators": opts.Administrators1}, keyUpdateSkrAdminsResponse)
}

func (s *skrSteps) update(ctx context.Context, sc *scenario.Context, opts skr.Options, params map[string]any, responseKey string) error {
	shoot, err := scenario.Lookup[*gardener.Shoot](sc, keyShoot)
	if err != nil {
		return err
	}
	resp, err := s.env.Provisioner.Update(ctx, opts.InstanceID, params)
	if err != nil {
		return scenario.Collaborator(err, fmt.Sprintf("updating SKR %s", opts.InstanceID))
	}
	sc.Set(responseKey, resp)
	return s.refreshShoot(ctx, sc, shoot.GetName())
}

func (s *skrSteps) refreshShoot(ctx context.Context, sc *scenario.Context, name string) error {
	shoot, err := s.env.Provisioner.GetShoot(ctx, name)
	if err != nil {
		return scenario.Collaborator(err, fmt.Sprintf("getting shoot %s", name))
	}
	sc.Set(keyShoot, shoot)
	return nil
}

// updateSucceeded serves both the plain and the "update skr {kind}" phrase;
// kind "admins" selects the admins update response.
func (s *skrSteps) updateSucceeded(ctx context.Context, sc *scenario.Context, args scenario.Args) error {
	responseKey := keyUpdateSkrResponse
	if args.Get("kind") == "admins" {
		responseKey = keyUpdateSkrAdminsResponse
	}
	resp, err := scenario.Lookup[apiresponses.UpdateResponse](sc, responseKey)
	if err != nil {
		return err
	}
	if resp.OperationData == "" {
		return scenario.Assertionf("%s has no operation", responseKey)
	}
	opts, err := scenario.Lookup[skr.Options](sc, keyOptions)
	if err != nil {
		return err
	}
	shoot, err := scenario.Lookup[*gardener.Shoot](sc, keyShoot)
	if err != nil {
		return err
	}
	s.env.Log.Info(fmt.Sprintf("Operation ID %s", resp.OperationData))
	if err := s.env.Provisioner.WaitForOperation(ctx, opts.InstanceID, resp.OperationData); err != nil {
		return assertOrCollaborate(err, "waiting for update operation")
	}
	sc.Set(keyOperationID, resp.OperationData)
	return s.refreshShoot(ctx, sc, shoot.GetName())
}

// runtimeStatus is best-effort: failures are logged and never fail the step.
func (s *skrSteps) runtimeStatus(ctx context.Context, sc *scenario.Context, _ scenario.Args) error {
	opts, err := scenario.Lookup[skr.Options](sc, keyOptions)
	if err != nil {
		return err
	}
	if s.env.Runtimes == nil {
		s.env.Log.Info("kcp is not configured, skipping runtime status")
		return nil
	}
	status, err := s.env.Runtimes.GetRuntimeStatus(ctx, opts.InstanceID)
	if err != nil {
		s.env.Log.Warn(fmt.Sprintf("while fetching runtime status: %v", err), "instanceID", opts.InstanceID)
		return nil
	}
	s.env.Log.Info(fmt.Sprintf("Runtime status: %v", status.Status), "instanceID", opts.InstanceID, "runtimeID", status.RuntimeID)
	current, err := s.env.Runtimes.GetCurrentOIDCConfig(ctx, opts.InstanceID)
	if err != nil {
		s.env.Log.Warn(fmt.Sprintf("while fetching current OIDC config: %v", err), "instanceID", opts.InstanceID)
		return nil
	}
	s.env.Log.Info(fmt.Sprintf("Current OIDC config: %v", current), "instanceID", opts.InstanceID)
	return nil
}
