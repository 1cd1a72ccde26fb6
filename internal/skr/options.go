package skr

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/common/runtime"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/broker"
)

// Options describe the SKR a suite run provisions and the values later
// steps compare against.
type Options struct {
	InstanceID      string
	Name            string
	PlanID          string
	Region          string
	OIDC0           runtime.OIDCConfigDTO
	OIDC1           runtime.OIDCConfigDTO
	Administrators1 []string
	KEBUserID       string
	TestNS          string
}

type OptionsConfig struct {
	TestNamespace string `envconfig:"default=skr-test"`
	NamePrefix    string `envconfig:"default=kyma"`
	// InstanceID reuses an existing instance instead of generating a new one.
	InstanceID string `envconfig:"optional"`
}

// NewOptions generates fresh identifiers for a run.
func NewOptions(keb broker.Config, cfg OptionsConfig) Options {
	instanceID := cfg.InstanceID
	if instanceID == "" {
		instanceID = uuid.NewString()
	}
	suffix := uuid.NewString()[:8]
	return Options{
		InstanceID: instanceID,
		Name:       fmt.Sprintf("%s-%s", cfg.NamePrefix, suffix),
		PlanID:     keb.PlanID,
		Region:     keb.Region,
		OIDC0: runtime.OIDCConfigDTO{
			ClientID:       "abc-xyz",
			GroupsClaim:    "groups",
			IssuerURL:      "https://custom.ias.com",
			SigningAlgs:    []string{"RS256"},
			UsernameClaim:  "sub",
			UsernamePrefix: "-",
		},
		OIDC1: runtime.OIDCConfigDTO{
			ClientID:       "foo-bar",
			GroupsClaim:    "groups1",
			IssuerURL:      "https://new.custom.ias.com",
			SigningAlgs:    []string{"RS256"},
			UsernameClaim:  "email",
			UsernamePrefix: "acme-",
		},
		Administrators1: []string{"admin1@acme.com", "admin2@acme.com"},
		KEBUserID:       keb.UserID,
		TestNS:          cfg.TestNamespace,
	}
}

// ProvisioningParameters are the parameters of the initial provisioning.
func (o Options) ProvisioningParameters() map[string]any {
	params := map[string]any{
		"name": o.Name,
		"oidc": o.OIDC0.ToParameters(),
	}
	if o.KEBUserID != "" {
		params["administrators"] = []string{o.KEBUserID}
	}
	return params
}
