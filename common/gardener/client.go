package gardener

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/common/runtime"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/client-go/dynamic"
	restclient "k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

const requestTimeout = 10 * time.Second

type Config struct {
	Project        string
	KubeconfigPath string
}

type Client struct {
	dynamic.Interface
	namespace string
}

func NewClient(k8sClient dynamic.Interface, namespace string) *Client {
	return &Client{
		Interface: k8sClient,
		namespace: namespace,
	}
}

// NewClientFromConfig builds a client for the garden-<project> namespace.
func NewClientFromConfig(cfg Config) (*Client, error) {
	restCfg, err := NewGardenerClusterConfig(cfg.KubeconfigPath)
	if err != nil {
		return nil, err
	}
	dynamicGardener, err := dynamic.NewForConfig(restCfg)
	if err != nil {
		return nil, fmt.Errorf("while creating dynamic Gardener client: %w", err)
	}
	return NewClient(dynamicGardener, fmt.Sprintf("garden-%s", cfg.Project)), nil
}

func (c *Client) GetShoot(ctx context.Context, name string) (*Shoot, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	u, err := c.Resource(ShootResource).Namespace(c.namespace).Get(ctx, name, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("while getting shoot %s/%s: %w", c.namespace, name, err)
	}
	return &Shoot{Unstructured: *u}, nil
}

type Shoot struct {
	unstructured.Unstructured
}

// OIDCConfig returns the kube-apiserver OIDC configuration of the shoot.
func (s Shoot) OIDCConfig() (runtime.OIDCConfigDTO, bool) {
	oidc, found, err := unstructured.NestedMap(s.Unstructured.Object, "spec", "kubernetes", "kubeAPIServer", "oidcConfig")
	if err != nil || !found {
		return runtime.OIDCConfigDTO{}, false
	}
	str := func(field string) string {
		v, _, _ := unstructured.NestedString(oidc, field)
		return v
	}
	algs, _, _ := unstructured.NestedStringSlice(oidc, "signingAlgs")
	return runtime.OIDCConfigDTO{
		ClientID:       str("clientID"),
		IssuerURL:      str("issuerURL"),
		GroupsClaim:    str("groupsClaim"),
		GroupsPrefix:   str("groupsPrefix"),
		UsernameClaim:  str("usernameClaim"),
		UsernamePrefix: str("usernamePrefix"),
		SigningAlgs:    algs,
	}, true
}

// Region returns .spec.region, empty when the field is missing or malformed.
func (s Shoot) Region() string {
	region, _, _ := unstructured.NestedString(s.Unstructured.Object, "spec", "region")
	return region
}

var (
	ShootResource = schema.GroupVersionResource{Group: "core.gardener.cloud", Version: "v1beta1", Resource: "shoots"}
	ShootGVK      = schema.GroupVersionKind{Group: "core.gardener.cloud", Version: "v1beta1", Kind: "Shoot"}
)

func NewGardenerClusterConfig(kubeconfigPath string) (*restclient.Config, error) {
	rawKubeconfig, err := os.ReadFile(kubeconfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read Gardener Kubeconfig from path %s: %s", kubeconfigPath, err.Error())
	}

	gardenerClusterConfig, err := RESTConfig(rawKubeconfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create RESTConfig for Gardener client: %v", err)
	}

	return gardenerClusterConfig, nil
}

func RESTConfig(kubeconfig []byte) (*restclient.Config, error) {
	return clientcmd.RESTConfigFromKubeConfig(kubeconfig)
}
