package steps_test

import (
	"context"
	"errors"
	"sync"

	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/common/gardener"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/common/runtime"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/auditlog"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/eventing"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/fixture"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/kcp"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/skr"
	"github.com/pivotal-cf/brokerapi/v8/domain/apiresponses"
	rbacv1 "k8s.io/api/rbac/v1"
	k8sruntime "k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/client/fake"
)

// fakeSKR plays KEB, Gardener and the SKR API server of a single instance.
type fakeSKR struct {
	mu        sync.Mutex
	tracker   *skr.Tracker
	k8sClient client.Client
	oidc      runtime.OIDCConfigDTO
	updates   []map[string]any
	// ignoreUpdates keeps the shoot unchanged after an update.
	ignoreUpdates bool
	waitErr       error
	provisionErr  error
}

func newFakeSKR() *fakeSKR {
	scheme := k8sruntime.NewScheme()
	_ = rbacv1.AddToScheme(scheme)
	return &fakeSKR{
		tracker:   skr.NewTracker(),
		k8sClient: fake.NewClientBuilder().WithScheme(scheme).Build(),
	}
}

func (f *fakeSKR) Provision(ctx context.Context, opts skr.Options) (*gardener.Shoot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.provisionErr != nil {
		return nil, f.provisionErr
	}
	f.tracker.AddInstance(opts.InstanceID)
	f.oidc = opts.OIDC0
	if err := f.k8sClient.Create(ctx, fixture.FixAdminBinding("admin-keb", opts.KEBUserID)); err != nil {
		return nil, err
	}
	return fixture.FixGardenerShoot(fixture.ShootName, f.oidc), nil
}

func (f *fakeSKR) Update(ctx context.Context, _ string, parameters map[string]any) (apiresponses.UpdateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, parameters)
	if f.ignoreUpdates {
		return apiresponses.UpdateResponse{OperationData: "op-ignored"}, nil
	}
	if oidc, ok := parameters["oidc"].(map[string]any); ok {
		f.oidc = runtime.OIDCConfigDTO{
			ClientID:       oidc["clientID"].(string),
			GroupsClaim:    oidc["groupsClaim"].(string),
			IssuerURL:      oidc["issuerURL"].(string),
			SigningAlgs:    oidc["signingAlgs"].([]string),
			UsernameClaim:  oidc["usernameClaim"].(string),
			UsernamePrefix: oidc["usernamePrefix"].(string),
		}
		return apiresponses.UpdateResponse{OperationData: "op-oidc"}, nil
	}
	if admins, ok := parameters["administrators"].([]string); ok {
		if err := f.k8sClient.Delete(ctx, fixture.FixAdminBinding("admin-keb", "")); err != nil {
			return apiresponses.UpdateResponse{}, err
		}
		for i, admin := range admins {
			if err := f.k8sClient.Create(ctx, fixture.FixAdminBinding(string(rune('a'+i))+"-admin", admin)); err != nil {
				return apiresponses.UpdateResponse{}, err
			}
		}
		return apiresponses.UpdateResponse{OperationData: "op-admins"}, nil
	}
	return apiresponses.UpdateResponse{}, errors.New("unexpected update parameters")
}

func (f *fakeSKR) WaitForOperation(context.Context, string, string) error {
	return f.waitErr
}

func (f *fakeSKR) GetShoot(_ context.Context, name string) (*gardener.Shoot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fixture.FixGardenerShoot(name, f.oidc), nil
}

func (f *fakeSKR) DownloadKubeconfig(context.Context, string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fixture.FixKubeconfig(f.oidc), nil
}

func (f *fakeSKR) Client(context.Context, string) (client.Client, error) {
	return f.k8sClient, nil
}

type fakeRuntimes struct {
	err error
}

func (f fakeRuntimes) GetRuntimeStatus(_ context.Context, instanceID string) (kcp.RuntimeStatus, error) {
	if f.err != nil {
		return kcp.RuntimeStatus{}, f.err
	}
	return kcp.RuntimeStatus{InstanceID: instanceID, RuntimeID: "rt-id", ShootName: fixture.ShootName}, nil
}

func (f fakeRuntimes) GetCurrentOIDCConfig(context.Context, string) (map[string]any, error) {
	return map[string]any{"clientID": "foo-bar"}, f.err
}

// fakeCommerceMock accepts every call and remembers in-cluster events.
type fakeCommerceMock struct {
	mu             sync.Mutex
	mockReady      bool
	functionStatus int
	anonStatus     int
	sent           []eventing.EventParams
	inCluster      map[string]string
	dropEvents     bool
}

func newFakeCommerceMock() *fakeCommerceMock {
	return &fakeCommerceMock{functionStatus: 200, anonStatus: 401, inCluster: map[string]string{}}
}

func (f *fakeCommerceMock) EnsureCommerceMock(context.Context, string, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mockReady = true
	return nil
}

func (f *fakeCommerceMock) CommerceMockHost(context.Context, string) (string, error) {
	return "commerce.kyma.example.com", nil
}

func (f *fakeCommerceMock) VirtualServiceHost(_ context.Context, _, namespace, name string) (string, error) {
	return name + "." + namespace + ".kyma.example.com", nil
}

func (f *fakeCommerceMock) CallFunctionWithToken(context.Context, string) (eventing.FunctionResponse, error) {
	return eventing.FunctionResponse{StatusCode: f.functionStatus}, nil
}

func (f *fakeCommerceMock) CallFunctionWithoutToken(context.Context, string) (eventing.FunctionResponse, error) {
	return eventing.FunctionResponse{StatusCode: f.anonStatus}, nil
}

func (f *fakeCommerceMock) SendEvent(_ context.Context, _ string, params eventing.EventParams) (eventing.EventResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, params)
	resp := eventing.EventResponse{Encoding: params.Encoding, ID: params.ID, StatusCode: 204}
	if params.Encoding == eventing.Legacy {
		resp.StatusCode = 200
		resp.Body = map[string]any{"id": params.ID}
	}
	return resp, nil
}

func (f *fakeCommerceMock) SendInClusterEvent(_ context.Context, host, eventID string, _ eventing.Encoding) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.dropEvents {
		f.inCluster[eventID] = host
	}
	return nil
}

func (f *fakeCommerceMock) EnsureInClusterEventReceived(_ context.Context, host, eventID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.inCluster[eventID] != host {
		return eventing.ErrEventNotReceived
	}
	return nil
}

type fakeAuditLog struct {
	entries []auditlog.Entry
}

func (f fakeAuditLog) Fetch(context.Context, auditlog.Criteria) ([]auditlog.Entry, error) {
	return f.entries, nil
}
