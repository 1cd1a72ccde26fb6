package command

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/common/gardener"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/auditlog"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/broker"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/config"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/eventing"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/kcp"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/skr"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/steps"
)

// newEnvironment wires the collaborator clients for a live run.
func newEnvironment(ctx context.Context, cfg config.Config, log *slog.Logger) (*steps.Env, *steps.Teardown, error) {
	brokerClient := broker.NewClient(ctx, cfg.KEB, log.With("component", "broker"))
	gardenerClient, err := gardener.NewClientFromConfig(cfg.Gardener)
	if err != nil {
		return nil, nil, err
	}

	tracker := skr.NewTracker()
	setup := skr.NewSetup(brokerClient, gardenerClient, tracker, cfg.Setup, log.With("component", "setup"))
	clusters := skr.NewClients(brokerClient, tracker, log.With("component", "skr-clients"))
	mock := eventing.NewClient(clusters, tracker, cfg.Eventing, log.With("component", "eventing"))

	overrides := config.OIDCOverrides{}
	if cfg.OIDCConfigFile != "" {
		overrides, err = config.LoadOIDCOverrides(cfg.OIDCConfigFile)
		if err != nil {
			return nil, nil, err
		}
	}

	env := &steps.Env{
		NewOptions: func() skr.Options {
			return overrides.Apply(skr.NewOptions(cfg.KEB, cfg.Skr))
		},
		Provisioner:  setup,
		Kubeconfigs:  brokerClient,
		Clusters:     clusters,
		CommerceMock: mock,
		AuditLogs: func(ctx context.Context) (auditlog.Fetcher, error) {
			return auditlog.NewClient(ctx, cfg.AuditLog, log.With("component", "auditlog"))
		},
		PlanID:       cfg.KEB.PlanID,
		FunctionName: cfg.Eventing.FunctionName,
		AuditLogQuery: steps.AuditLogQuery{
			Window:   cfg.AuditLog.Window,
			Interval: cfg.AuditLog.Interval,
			Timeout:  cfg.AuditLog.Timeout,
		},
		Log: log,
	}

	if cfg.KCP.Enabled {
		kcpClient := kcp.NewClient(cfg.KCP, log.With("component", "kcp"))
		dir, err := os.MkdirTemp("", "kcp")
		if err != nil {
			return nil, nil, fmt.Errorf("while creating kcp config dir: %w", err)
		}
		if err := kcpClient.Login(ctx, dir); err != nil {
			log.Warn(fmt.Sprintf("kcp login failed, runtime status will not be fetched: %v", err))
		} else {
			env.Runtimes = kcpClient
		}
	}

	teardown := &steps.Teardown{
		Tracker:       tracker,
		Deprovisioner: setup,
		Namespaces:    mock,
		Bindings:      clusters,
		KeepSKR:       cfg.KeepSkr,
		Log:           log.With("component", "teardown"),
	}
	return env, teardown, nil
}
