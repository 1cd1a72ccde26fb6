package steps

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/common/gardener"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/auditlog"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/broker"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/eventing"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/kcp"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/oidc"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/scenario"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/skr"
	"github.com/pivotal-cf/brokerapi/v8/domain/apiresponses"
	"sigs.k8s.io/controller-runtime/pkg/client"
)

// Context keys shared between steps.
const (
	keyFeatureName                  = "featureName"
	keyOptions                      = "options"
	keyShoot                        = "shoot"
	keyUpdateSkrResponse            = "updateSkrResponse"
	keyUpdateSkrAdminsResponse      = "updateSkrAdminsResponse"
	keyOperationID                  = "operationID"
	keyCommerceMockHost             = "commerceMockHost"
	keySuccessfulFunctionResponse   = "successfulFunctionResponse"
	keyUnauthorizedFunctionResponse = "unauthorizedFunctionResponse"
	keyEventResponse                = "eventResponse"
	keyLastOrderMockHost            = "lastOrderMockHost"
	keyEventID                      = "eventId"
	keyAuditLogs                    = "auditLogs"

	featureName = "skr-test"
)

type Provisioner interface {
	Provision(ctx context.Context, opts skr.Options) (*gardener.Shoot, error)
	Update(ctx context.Context, instanceID string, parameters map[string]any) (apiresponses.UpdateResponse, error)
	WaitForOperation(ctx context.Context, instanceID, operationID string) error
	GetShoot(ctx context.Context, name string) (*gardener.Shoot, error)
}

type ClusterClients interface {
	Client(ctx context.Context, instanceID string) (client.Client, error)
}

type RuntimeStatusGetter interface {
	GetRuntimeStatus(ctx context.Context, instanceID string) (kcp.RuntimeStatus, error)
	GetCurrentOIDCConfig(ctx context.Context, instanceID string) (map[string]any, error)
}

type CommerceMock interface {
	EnsureCommerceMock(ctx context.Context, instanceID, testNS string) error
	CommerceMockHost(ctx context.Context, instanceID string) (string, error)
	VirtualServiceHost(ctx context.Context, instanceID, namespace, name string) (string, error)
	CallFunctionWithToken(ctx context.Context, mockHost string) (eventing.FunctionResponse, error)
	CallFunctionWithoutToken(ctx context.Context, mockHost string) (eventing.FunctionResponse, error)
	SendEvent(ctx context.Context, mockHost string, params eventing.EventParams) (eventing.EventResponse, error)
	SendInClusterEvent(ctx context.Context, mockHost, eventID string, encoding eventing.Encoding) error
	EnsureInClusterEventReceived(ctx context.Context, mockHost, eventID string) error
}

// AuditLogFactory creates the audit-log client when the plan supports it.
type AuditLogFactory func(ctx context.Context) (auditlog.Fetcher, error)

// Env carries the collaborators the SKR steps call.
type Env struct {
	NewOptions    func() skr.Options
	Provisioner   Provisioner
	Kubeconfigs   oidc.KubeconfigDownloader
	Clusters      ClusterClients
	Runtimes      RuntimeStatusGetter
	CommerceMock  CommerceMock
	AuditLogs     AuditLogFactory
	PlanID        string
	FunctionName  string
	AuditLogQuery AuditLogQuery
	Log           *slog.Logger
}

type AuditLogQuery struct {
	Window   time.Duration
	Interval time.Duration
	// Timeout stays below the step timeout so an empty log fails as an assertion.
	Timeout time.Duration
}

// assertOrCollaborate classifies errors coming from collaborator helpers:
// mismatches become assertions, everything else a collaborator error.
func assertOrCollaborate(err error, operation string) error {
	if err == nil {
		return nil
	}
	var (
		mismatch     *oidc.MismatchError
		notSucceeded *broker.OperationNotSucceededError
	)
	switch {
	case errors.As(err, &mismatch),
		errors.As(err, &notSucceeded),
		errors.Is(err, eventing.ErrEventNotReceived),
		errors.Is(err, auditlog.ErrNoEntries):
		return scenario.Assert(err, operation)
	}
	return scenario.Collaborator(err, operation)
}
