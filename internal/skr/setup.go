package skr

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/common/gardener"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/broker"
	"github.com/pivotal-cf/brokerapi/v8/domain/apiresponses"
)

// Broker is the part of the KEB client the setup drives.
type Broker interface {
	broker.OperationGetter
	ProvisionInstance(ctx context.Context, instanceID, planID, region string, parameters map[string]any) (string, error)
	UpdateInstance(ctx context.Context, instanceID string, parameters map[string]any) (apiresponses.UpdateResponse, error)
	DeprovisionInstance(ctx context.Context, instanceID string) (string, error)
	GetRuntime(ctx context.Context, instanceID string) (broker.Runtime, error)
}

type ShootGetter interface {
	GetShoot(ctx context.Context, name string) (*gardener.Shoot, error)
}

type Config struct {
	ProvisioningTimeout   time.Duration `envconfig:"default=175m"`
	OperationTimeout      time.Duration `envconfig:"default=19m"`
	DeprovisioningTimeout time.Duration `envconfig:"default=90m"`
	PollInterval          time.Duration `envconfig:"default=30s"`
}

// Setup provisions, updates and deprovisions SKRs through KEB and records
// what it created in the Tracker.
type Setup struct {
	broker  Broker
	shoots  ShootGetter
	tracker *Tracker
	config  Config
	log     *slog.Logger
}

func NewSetup(b Broker, shoots ShootGetter, tracker *Tracker, config Config, log *slog.Logger) *Setup {
	return &Setup{broker: b, shoots: shoots, tracker: tracker, config: config, log: log}
}

func (s *Setup) Tracker() *Tracker {
	return s.tracker
}

// Provision creates the instance, waits for it and returns its shoot.
func (s *Setup) Provision(ctx context.Context, opts Options) (*gardener.Shoot, error) {
	log := s.log.With("instanceID", opts.InstanceID)
	log.Info(fmt.Sprintf("Provisioning SKR %s with plan %s in region %s", opts.Name, opts.PlanID, opts.Region))
	operationID, err := s.broker.ProvisionInstance(ctx, opts.InstanceID, opts.PlanID, opts.Region, opts.ProvisioningParameters())
	if err != nil {
		return nil, err
	}
	s.tracker.AddInstance(opts.InstanceID)

	if err := broker.WaitForOperation(ctx, s.broker, opts.InstanceID, operationID, s.config.ProvisioningTimeout, s.config.PollInterval, log); err != nil {
		return nil, err
	}
	rt, err := s.broker.GetRuntime(ctx, opts.InstanceID)
	if err != nil {
		return nil, err
	}
	shoot, err := s.shoots.GetShoot(ctx, rt.ShootName)
	if err != nil {
		return nil, err
	}
	log.Info(fmt.Sprintf("SKR provisioned, runtimeID: %s, shoot: %s, region: %s", rt.RuntimeID, rt.ShootName, shoot.Region()))
	return shoot, nil
}

// Update patches the instance and returns the KEB response holding the
// operation ID. It does not wait for the operation.
func (s *Setup) Update(ctx context.Context, instanceID string, parameters map[string]any) (apiresponses.UpdateResponse, error) {
	s.log.Info("Updating SKR", "instanceID", instanceID)
	return s.broker.UpdateInstance(ctx, instanceID, parameters)
}

func (s *Setup) WaitForOperation(ctx context.Context, instanceID, operationID string) error {
	return broker.WaitForOperation(ctx, s.broker, instanceID, operationID, s.config.OperationTimeout, s.config.PollInterval, s.log)
}

func (s *Setup) GetShoot(ctx context.Context, name string) (*gardener.Shoot, error) {
	return s.shoots.GetShoot(ctx, name)
}

// Deprovision removes the instance and waits for the operation to succeed.
func (s *Setup) Deprovision(ctx context.Context, instanceID string) error {
	log := s.log.With("instanceID", instanceID)
	operationID, err := s.broker.DeprovisionInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	if err := broker.WaitForOperation(ctx, s.broker, instanceID, operationID, s.config.DeprovisioningTimeout, s.config.PollInterval, log); err != nil {
		return err
	}
	log.Info("SKR deprovisioned")
	return nil
}
