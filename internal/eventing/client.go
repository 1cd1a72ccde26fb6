package eventing

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	coreV1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime/schema"
	"k8s.io/apimachinery/pkg/util/intstr"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/dynamic"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

const (
	createdByLabel = "skr-scenarios.kyma-project.io/created-by"
	createdByValue = "skr-scenarios"
	mockPort       = 10000
	functionPort   = 80
)

var virtualServiceResource = schema.GroupVersionResource{Group: "networking.istio.io", Version: "v1beta1", Resource: "virtualservices"}

type Config struct {
	MockNamespace   string `envconfig:"default=mocks"`
	MockName        string `envconfig:"default=commerce-mock"`
	MockImage       string `envconfig:"default=europe-docker.pkg.dev/kyma-project/prod/mock-commerce:main"`
	FunctionName    string `envconfig:"default=lastorder"`
	FunctionRuntime string `envconfig:"default=nodejs18"`
	Gateway         string `envconfig:"default=kyma-system/kyma-gateway"`
	// Scheme of the URLs built from VirtualService hosts.
	Scheme string `envconfig:"default=https"`

	ClientID     string `envconfig:"optional"`
	ClientSecret string `envconfig:"optional"`
	TokenURL     string `envconfig:"optional"`

	RequestTimeout   time.Duration `envconfig:"default=30s"`
	ReadyTimeout     time.Duration `envconfig:"default=10m"`
	RetryInterval    time.Duration `envconfig:"default=5s"`
	InClusterRetries int           `envconfig:"default=10"`
	// ReceiveTimeout bounds waiting for an in-cluster event.
	ReceiveTimeout time.Duration `envconfig:"default=9m"`
}

// ClusterProvider returns API clients of the SKR an instance runs on.
type ClusterProvider interface {
	Client(ctx context.Context, instanceID string) (client.Client, error)
	Dynamic(ctx context.Context, instanceID string) (dynamic.Interface, error)
}

type NamespaceTracker interface {
	AddNamespace(instanceID, namespace string)
}

// Client drives the commerce mock and the eventing checks on an SKR.
type Client struct {
	clusters   ClusterProvider
	tracker    NamespaceTracker
	httpClient *http.Client
	config     Config
	log        *slog.Logger
}

func NewClient(clusters ClusterProvider, tracker NamespaceTracker, config Config, log *slog.Logger) *Client {
	return &Client{
		clusters:   clusters,
		tracker:    tracker,
		httpClient: &http.Client{Timeout: config.RequestTimeout},
		config:     config,
		log:        log,
	}
}

// EnsureCommerceMock creates whatever is missing of the test and mock
// namespaces, the mock deployment, the lastorder function and their APIRules.
// It returns once the mock is available and both are exposed.
func (c *Client) EnsureCommerceMock(ctx context.Context, instanceID, testNS string) error {
	k8sClient, err := c.clusters.Client(ctx, instanceID)
	if err != nil {
		return err
	}
	dyn, err := c.clusters.Dynamic(ctx, instanceID)
	if err != nil {
		return err
	}
	for _, ns := range []string{testNS, c.config.MockNamespace} {
		if err := c.ensureNamespace(ctx, k8sClient, instanceID, ns); err != nil {
			return err
		}
	}
	if err := c.ensureMock(ctx, k8sClient); err != nil {
		return err
	}
	if err := c.ensureExposure(ctx, dyn, testNS); err != nil {
		return err
	}
	// one ReadyTimeout for all waits
	ctx, cancel := context.WithTimeout(ctx, c.config.ReadyTimeout)
	defer cancel()
	if err := c.waitForMock(ctx, k8sClient); err != nil {
		return err
	}
	if err := c.waitForHost(ctx, dyn, c.config.MockNamespace, c.config.MockName); err != nil {
		return err
	}
	return c.waitForHost(ctx, dyn, testNS, c.config.FunctionName)
}

func (c *Client) ensureNamespace(ctx context.Context, k8sClient client.Client, instanceID, name string) error {
	ns := &coreV1.Namespace{ObjectMeta: metav1.ObjectMeta{
		Name:   name,
		Labels: map[string]string{createdByLabel: createdByValue, "istio-injection": "enabled"},
	}}
	err := k8sClient.Create(ctx, ns)
	switch {
	case err == nil:
		c.tracker.AddNamespace(instanceID, name)
		c.log.Info(fmt.Sprintf("Created namespace %s", name), "instanceID", instanceID)
		return nil
	case apierrors.IsAlreadyExists(err):
		return nil
	default:
		return fmt.Errorf("while creating namespace %s: %w", name, err)
	}
}

func (c *Client) ensureMock(ctx context.Context, k8sClient client.Client) error {
	labels := map[string]string{"app": c.config.MockName}
	replicas := int32(1)
	deployment := &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{Name: c.config.MockName, Namespace: c.config.MockNamespace, Labels: labels},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: coreV1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: coreV1.PodSpec{Containers: []coreV1.Container{{
					Name:  "mock",
					Image: c.config.MockImage,
					Ports: []coreV1.ContainerPort{{ContainerPort: mockPort, Name: "http"}},
				}}},
			},
		},
	}
	if err := k8sClient.Create(ctx, deployment); err != nil && !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("while creating commerce mock deployment: %w", err)
	}
	service := &coreV1.Service{
		ObjectMeta: metav1.ObjectMeta{Name: c.config.MockName, Namespace: c.config.MockNamespace, Labels: labels},
		Spec: coreV1.ServiceSpec{
			Selector: labels,
			Ports:    []coreV1.ServicePort{{Name: "http", Port: mockPort, TargetPort: intstr.FromInt32(mockPort)}},
		},
	}
	if err := k8sClient.Create(ctx, service); err != nil && !apierrors.IsAlreadyExists(err) {
		return fmt.Errorf("while creating commerce mock service: %w", err)
	}
	return nil
}

func (c *Client) waitForMock(ctx context.Context, k8sClient client.Client) error {
	key := client.ObjectKey{Namespace: c.config.MockNamespace, Name: c.config.MockName}
	err := wait.PollUntilContextTimeout(ctx, c.config.RetryInterval, c.config.ReadyTimeout, true, func(ctx context.Context) (bool, error) {
		var d appsv1.Deployment
		if err := k8sClient.Get(ctx, key, &d); err != nil {
			c.log.Warn(fmt.Sprintf("while getting commerce mock deployment: %v", err))
			return false, nil
		}
		return d.Status.AvailableReplicas > 0, nil
	})
	if err != nil {
		return fmt.Errorf("commerce mock %s is not available: %w", key, err)
	}
	return nil
}

// DeleteNamespaces removes namespaces created for the commerce mock.
// Missing namespaces are ignored.
func (c *Client) DeleteNamespaces(ctx context.Context, instanceID string, namespaces []string) error {
	if len(namespaces) == 0 {
		return nil
	}
	k8sClient, err := c.clusters.Client(ctx, instanceID)
	if err != nil {
		return err
	}
	for _, name := range namespaces {
		ns := &coreV1.Namespace{ObjectMeta: metav1.ObjectMeta{Name: name}}
		if err := k8sClient.Delete(ctx, ns); err != nil && !apierrors.IsNotFound(err) {
			return fmt.Errorf("while deleting namespace %s: %w", name, err)
		}
		c.log.Info(fmt.Sprintf("Deleted namespace %s", name), "instanceID", instanceID)
	}
	return nil
}

// VirtualServiceHost returns the first host of the Istio VirtualService
// exposing name, either called so or generated for the APIRule called so.
func (c *Client) VirtualServiceHost(ctx context.Context, instanceID, namespace, name string) (string, error) {
	dyn, err := c.clusters.Dynamic(ctx, instanceID)
	if err != nil {
		return "", err
	}
	return virtualServiceHost(ctx, dyn, namespace, name)
}

func (c *Client) CommerceMockHost(ctx context.Context, instanceID string) (string, error) {
	return c.VirtualServiceHost(ctx, instanceID, c.config.MockNamespace, c.config.MockName)
}

func (c *Client) url(host, path string) string {
	return fmt.Sprintf("%s://%s%s", c.config.Scheme, host, path)
}

// domain strips the first label of a host.
func domain(host string) string {
	if i := strings.Index(host, "."); i >= 0 {
		return host[i+1:]
	}
	return host
}
