package kubeconfig

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const customerKubeconfig = `
apiVersion: v1
kind: Config
current-context: shoot--kyma--c-12345
clusters:
- name: shoot--kyma--c-12345
  cluster:
    certificate-authority-data: Y2VydA==
    server: https://api.c-12345.kyma.example.com
users:
- name: shoot--kyma--c-12345
  user:
    exec:
      apiVersion: client.authentication.k8s.io/v1beta1
      args:
      - get-token
      - "--oidc-issuer-url=https://custom.ias.com"
      - "--oidc-client-id=abc-xyz"
      - "--oidc-extra-scope=email"
      command: kubectl-oidc_login
- name: shoot--kyma--c-12345-admins
  user:
    exec:
      args:
      - get-token
      - "--oidc-client-id=foo-bar"
      - "--oidc-issuer-url=https://new.custom.ias.com"
      command: kubectl-oidc_login
`

func TestParse(t *testing.T) {
	// when
	kc, err := Parse([]byte(customerKubeconfig))

	// then
	require.NoError(t, err)
	assert.Equal(t, "shoot--kyma--c-12345", kc.CurrentContext)
	require.Len(t, kc.Clusters, 1)
	assert.Equal(t, "https://api.c-12345.kyma.example.com", kc.Clusters[0].Cluster.Server)
	assert.Equal(t, []OIDCConfig{
		{Name: "shoot--kyma--c-12345", IssuerURL: "https://custom.ias.com", ClientID: "abc-xyz"},
		{Name: "shoot--kyma--c-12345-admins", IssuerURL: "https://new.custom.ias.com", ClientID: "foo-bar"},
	}, kc.OIDCConfigs())
}

func TestKubeconfig_OIDCConfigs(t *testing.T) {
	t.Run("should skip token users", func(t *testing.T) {
		kc, err := Parse([]byte("users:\n- name: admin\n  user:\n    token: abc\n"))

		require.NoError(t, err)
		assert.Empty(t, kc.OIDCConfigs())
		assert.Equal(t, "abc", kc.Users[0].User.Token)
	})

	t.Run("should fail for malformed yaml", func(t *testing.T) {
		_, err := Parse([]byte("users: [\n"))

		assert.ErrorContains(t, err, "while unmarshaling kubeconfig")
	})
}
