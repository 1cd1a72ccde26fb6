package skr

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/common/gardener"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/broker"
	appsv1 "k8s.io/api/apps/v1"
	coreV1 "k8s.io/api/core/v1"
	rbacv1 "k8s.io/api/rbac/v1"
	k8sruntime "k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/dynamic"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

const bindingExpirationSeconds = 7200

type Binder interface {
	CreateBinding(ctx context.Context, instanceID, bindingID string, expirationSeconds int) (broker.Binding, error)
	DeleteBinding(ctx context.Context, instanceID, bindingID string) error
}

// Clients builds SKR API clients from a KEB service binding, one per instance.
type Clients struct {
	binder  Binder
	tracker *Tracker
	log     *slog.Logger

	mu      sync.Mutex
	clients map[string]clusterClients
}

type clusterClients struct {
	client  client.Client
	dynamic dynamic.Interface
}

func NewClients(binder Binder, tracker *Tracker, log *slog.Logger) *Clients {
	return &Clients{binder: binder, tracker: tracker, log: log, clients: make(map[string]clusterClients)}
}

// Scheme lists the types the SKR client reads and writes.
func Scheme() *k8sruntime.Scheme {
	scheme := k8sruntime.NewScheme()
	_ = coreV1.AddToScheme(scheme)
	_ = rbacv1.AddToScheme(scheme)
	_ = appsv1.AddToScheme(scheme)
	return scheme
}

func (c *Clients) Client(ctx context.Context, instanceID string) (client.Client, error) {
	cc, err := c.get(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	return cc.client, nil
}

func (c *Clients) Dynamic(ctx context.Context, instanceID string) (dynamic.Interface, error) {
	cc, err := c.get(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	return cc.dynamic, nil
}

func (c *Clients) get(ctx context.Context, instanceID string) (clusterClients, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cc, ok := c.clients[instanceID]; ok {
		return cc, nil
	}

	bindingID := uuid.NewString()
	binding, err := c.binder.CreateBinding(ctx, instanceID, bindingID, bindingExpirationSeconds)
	if err != nil {
		return clusterClients{}, err
	}
	c.tracker.AddBinding(instanceID, bindingID)

	restCfg, err := gardener.RESTConfig([]byte(binding.Credentials.Kubeconfig))
	if err != nil {
		return clusterClients{}, fmt.Errorf("while creating REST config from binding: %w", err)
	}
	k8sClient, err := client.New(restCfg, client.Options{Scheme: Scheme()})
	if err != nil {
		return clusterClients{}, fmt.Errorf("while creating SKR client: %w", err)
	}
	dynamicClient, err := dynamic.NewForConfig(restCfg)
	if err != nil {
		return clusterClients{}, fmt.Errorf("while creating dynamic SKR client: %w", err)
	}
	cc := clusterClients{client: k8sClient, dynamic: dynamicClient}
	c.clients[instanceID] = cc
	c.log.Info(fmt.Sprintf("Created SKR clients from binding %s", bindingID), "instanceID", instanceID)
	return cc, nil
}

// Release deletes the bindings created for the instance.
func (c *Clients) Release(ctx context.Context, instanceID string) error {
	c.mu.Lock()
	delete(c.clients, instanceID)
	c.mu.Unlock()

	var lastErr error
	for _, bindingID := range c.tracker.Bindings(instanceID) {
		if err := c.binder.DeleteBinding(ctx, instanceID, bindingID); err != nil {
			c.log.Warn(fmt.Sprintf("while deleting binding %s: %v", bindingID, err), "instanceID", instanceID)
			lastErr = err
		}
	}
	return lastErr
}
