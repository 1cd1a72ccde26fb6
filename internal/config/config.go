package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/common/gardener"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/common/runtime"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/auditlog"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/broker"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/eventing"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/kcp"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/skr"
	"github.com/vrischmann/envconfig"
)

// Config holds configuration of a scenario run. Variables are read without
// a prefix, e.g. KEB_PLAN_ID or KEEP_SKR.
type Config struct {
	KEB      broker.Config
	Gardener gardener.Config
	Skr      skr.OptionsConfig
	Setup    skr.Config
	Eventing eventing.Config
	AuditLog auditlog.Config
	KCP      kcp.Config

	// KeepSkr leaves provisioned instances in place after the suite.
	KeepSkr bool `envconfig:"default=false"`

	// OIDCConfigFile optionally overrides the initial and updated OIDC configs.
	OIDCConfigFile string `envconfig:"optional"`

	StepTimeout time.Duration `envconfig:"default=5m"`
	LogLevel    string        `envconfig:"default=info"`
	// MetricsAddress exposes Prometheus metrics when set, e.g. ":8080".
	MetricsAddress string `envconfig:"optional"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Init(&cfg); err != nil {
		return cfg, fmt.Errorf("while loading configuration: %w", err)
	}
	return cfg, nil
}

// OIDCOverrides are read from OIDCConfigFile.
type OIDCOverrides struct {
	Initial *runtime.OIDCConfigDTO `yaml:"initial"`
	Updated *runtime.OIDCConfigDTO `yaml:"updated"`
}

func LoadOIDCOverrides(path string) (OIDCOverrides, error) {
	return ProvideOIDCOverrides(NewYAMLProvider(NewFileReader()), path)
}

func ProvideOIDCOverrides(p Provider, source string) (OIDCOverrides, error) {
	var overrides OIDCOverrides
	if err := p.Provide(source, &overrides); err != nil {
		return overrides, fmt.Errorf("while loading OIDC overrides: %w", err)
	}
	return overrides, nil
}

// Apply replaces the configs present in o.
func (o OIDCOverrides) Apply(opts skr.Options) skr.Options {
	if o.Initial != nil && !o.Initial.IsEmpty() {
		opts.OIDC0 = *o.Initial
	}
	if o.Updated != nil && !o.Updated.IsEmpty() {
		opts.OIDC1 = *o.Updated
	}
	return opts
}

func LogConfiguration(log *slog.Logger, cfg Config) {
	log.Info(fmt.Sprintf("KEB: host=%s, planID=%s, region=%s", cfg.KEB.Host, cfg.KEB.PlanID, cfg.KEB.Region))
	log.Info(fmt.Sprintf("Gardener project: %s", cfg.Gardener.Project))
	log.Info(fmt.Sprintf("Timeouts: step=%s, provisioning=%s, operation=%s, deprovisioning=%s", cfg.StepTimeout, cfg.Setup.ProvisioningTimeout, cfg.Setup.OperationTimeout, cfg.Setup.DeprovisioningTimeout))
	log.Info(fmt.Sprintf("Keep SKR: %t, KCP enabled: %t", cfg.KeepSkr, cfg.KCP.Enabled))
}
