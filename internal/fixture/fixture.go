package fixture

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/common/gardener"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/common/runtime"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/broker"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/skr"
	rbacv1 "k8s.io/api/rbac/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

const (
	InstanceID = "inst-id"
	ShootName  = "c-12345"
	Namespace  = "garden-kyma"
	KEBUserID  = "john.smith@email.com"
)

func FixLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})).With("testing", true)
}

func FixOIDC0() runtime.OIDCConfigDTO {
	return runtime.OIDCConfigDTO{
		ClientID:       "abc-xyz",
		GroupsClaim:    "groups",
		IssuerURL:      "https://custom.ias.com",
		SigningAlgs:    []string{"RS256"},
		UsernameClaim:  "sub",
		UsernamePrefix: "-",
	}
}

func FixOIDC1() runtime.OIDCConfigDTO {
	return runtime.OIDCConfigDTO{
		ClientID:       "foo-bar",
		GroupsClaim:    "groups1",
		IssuerURL:      "https://new.custom.ias.com",
		SigningAlgs:    []string{"RS256"},
		UsernameClaim:  "email",
		UsernamePrefix: "acme-",
	}
}

func FixOptions() skr.Options {
	return skr.Options{
		InstanceID:      InstanceID,
		Name:            "kyma-test",
		PlanID:          broker.AWSPlanID,
		Region:          "eu-central-1",
		OIDC0:           FixOIDC0(),
		OIDC1:           FixOIDC1(),
		Administrators1: []string{"admin1@acme.com", "admin2@acme.com"},
		KEBUserID:       KEBUserID,
		TestNS:          "skr-test",
	}
}

// FixShoot returns a shoot in Namespace with the given OIDC config.
func FixShoot(name string, oidc runtime.OIDCConfigDTO) *unstructured.Unstructured {
	algs := make([]any, 0, len(oidc.SigningAlgs))
	for _, a := range oidc.SigningAlgs {
		algs = append(algs, a)
	}
	u := &unstructured.Unstructured{Object: map[string]any{
		"metadata": map[string]any{
			"name":      name,
			"namespace": Namespace,
		},
		"spec": map[string]any{
			"region": "eu-central-1",
			"kubernetes": map[string]any{
				"kubeAPIServer": map[string]any{
					"oidcConfig": map[string]any{
						"clientID":       oidc.ClientID,
						"groupsClaim":    oidc.GroupsClaim,
						"issuerURL":      oidc.IssuerURL,
						"signingAlgs":    algs,
						"usernameClaim":  oidc.UsernameClaim,
						"usernamePrefix": oidc.UsernamePrefix,
					},
				},
			},
		},
	}}
	u.SetGroupVersionKind(gardener.ShootGVK)
	return u
}

func FixGardenerShoot(name string, oidc runtime.OIDCConfigDTO) *gardener.Shoot {
	return &gardener.Shoot{Unstructured: *FixShoot(name, oidc)}
}

const kubeconfigFormat = `apiVersion: v1
kind: Config
current-context: shoot--kyma--c-12345
clusters:
- name: shoot--kyma--c-12345
  cluster:
    certificate-authority-data: Y2VydA==
    server: https://api.c-12345.kyma.example.com
contexts:
- name: shoot--kyma--c-12345
  context:
    cluster: shoot--kyma--c-12345
    user: shoot--kyma--c-12345
users:
- name: shoot--kyma--c-12345
  user:
    exec:
      apiVersion: client.authentication.k8s.io/v1beta1
      args:
      - get-token
      - "--oidc-issuer-url=%s"
      - "--oidc-client-id=%s"
      - "--oidc-extra-scope=email"
      - "--oidc-extra-scope=openid"
      command: kubectl-oidc_login
`

// FixKubeconfig returns a customer facing kubeconfig with an OIDC user.
func FixKubeconfig(oidc runtime.OIDCConfigDTO) []byte {
	return []byte(fmt.Sprintf(kubeconfigFormat, oidc.IssuerURL, oidc.ClientID))
}

func FixAdminBinding(name, user string) *rbacv1.ClusterRoleBinding {
	return &rbacv1.ClusterRoleBinding{
		ObjectMeta: metav1.ObjectMeta{Name: name},
		RoleRef:    rbacv1.RoleRef{APIGroup: rbacv1.GroupName, Kind: "ClusterRole", Name: "cluster-admin"},
		Subjects:   []rbacv1.Subject{{APIGroup: rbacv1.GroupName, Kind: rbacv1.UserKind, Name: user}},
	}
}

func FixVirtualService(namespace, name, host string) *unstructured.Unstructured {
	u := &unstructured.Unstructured{Object: map[string]any{
		"apiVersion": "networking.istio.io/v1beta1",
		"kind":       "VirtualService",
		"metadata": map[string]any{
			"name":      name,
			"namespace": namespace,
		},
		"spec": map[string]any{
			"hosts": []any{host},
		},
	}}
	return u
}
