package skr

import (
	"testing"

	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/broker"
	"github.com/stretchr/testify/assert"
)

func TestNewOptions(t *testing.T) {
	t.Run("should generate a fresh instance per run", func(t *testing.T) {
		// given
		keb := broker.Config{PlanID: broker.AWSPlanID, Region: "eu-central-1"}
		cfg := OptionsConfig{TestNamespace: "skr-test", NamePrefix: "kyma"}

		// when
		first := NewOptions(keb, cfg)
		second := NewOptions(keb, cfg)

		// then
		assert.NotEqual(t, first.InstanceID, second.InstanceID)
		assert.Regexp(t, `^kyma-[0-9a-f]{8}$`, first.Name)
		assert.Equal(t, "skr-test", first.TestNS)
		assert.Equal(t, "eu-central-1", first.Region)
		assert.NotEqual(t, first.OIDC0.ClientID, first.OIDC1.ClientID)
		assert.Equal(t, []string{"admin1@acme.com", "admin2@acme.com"}, first.Administrators1)
	})

	t.Run("should reuse a configured instance", func(t *testing.T) {
		opts := NewOptions(broker.Config{}, OptionsConfig{InstanceID: "inst-id", NamePrefix: "kyma"})

		assert.Equal(t, "inst-id", opts.InstanceID)
	})
}

func TestOptions_ProvisioningParameters(t *testing.T) {
	t.Run("should skip administrators without a KEB user", func(t *testing.T) {
		opts := NewOptions(broker.Config{}, OptionsConfig{NamePrefix: "kyma"})

		params := opts.ProvisioningParameters()

		assert.Equal(t, opts.Name, params["name"])
		assert.NotContains(t, params, "administrators")
		assert.Equal(t, "https://custom.ias.com", params["oidc"].(map[string]any)["issuerURL"])
	})
}
