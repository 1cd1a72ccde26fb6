package steps

import (
	"time"

	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/eventing"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/scenario"
)

const (
	provisioningTimeout = 3 * time.Hour
	operationTimeout    = 20 * time.Minute
	eventReceiveTimeout = 10 * time.Minute
	auditLogTimeout     = 10 * time.Minute
)

// Register adds every SKR step to r.
func Register(r *scenario.Registry, env *Env) error {
	s := &skrSteps{env: env}
	e := &eventingSteps{env: env}
	a := &auditLogSteps{env: env}

	oidcConfig := scenario.String("config")
	defs := []scenario.Definition{
		{Phrase: "SKR is provisioned", Timeout: provisioningTimeout, Handler: s.provisioned},
		{Phrase: "{config} OIDC config is applied on the shoot cluster", Params: []scenario.Param{oidcConfig}, Handler: s.shootOIDCApplied},
		{Phrase: "{config} OIDC config is part of the kubeconfig", Params: []scenario.Param{oidcConfig}, Handler: s.kubeconfigOIDC},
		{Phrase: "Admin binding exists for {user} user", Params: []scenario.Param{scenario.String("user")}, Handler: s.adminBindingExists},
		{Phrase: "SKR service is updated", Handler: s.updated},
		{Phrase: "The admins for the SKR service are updated", Handler: s.adminsUpdated},
		{Phrase: "The operation response should have a succeeded state", Timeout: operationTimeout, Handler: s.updateSucceeded},
		{Phrase: "The update skr {kind} operation response should have a succeeded state", Params: []scenario.Param{scenario.String("kind")}, Timeout: operationTimeout, Handler: s.updateSucceeded},
		{Phrase: "Runtime status should be fetched successfully", Handler: s.runtimeStatus},
		{Phrase: "Runtime Status should be fetched successfully", Handler: s.runtimeStatus},
		{Phrase: "The old admin no longer exists for the SKR service instance", Handler: s.oldAdminRemoved},

		{Phrase: "Commerce Backend is set up", Timeout: operationTimeout, Handler: e.commerceBackend},
		{Phrase: "Function is called using a correct authorization token", Timeout: operationTimeout, Handler: e.callWithToken},
		{Phrase: "The function should be reachable", Handler: e.functionReachable},
		{Phrase: "Function is called without an authorization token", Handler: e.callWithoutToken},
		{Phrase: "The function returns an error", Handler: e.functionRejected},
		{Phrase: "A {encoding} event is sent", Params: []scenario.Param{scenario.Enum("encoding", eventing.Encodings...)}, Handler: e.sendEvent},
		{Phrase: "A legacy event is sent", Handler: e.sendLegacyEvent},
		{Phrase: "The event should be received correctly", Handler: e.eventAccepted},
		{Phrase: "An in-cluster {encoding} event is sent", Params: []scenario.Param{scenario.Enum("encoding", eventing.Encodings...)}, Timeout: provisioningTimeout, Handler: e.sendInClusterEvent},
		{Phrase: "The event is received successfully", Timeout: eventReceiveTimeout, Handler: e.inClusterEventReceived},

		{Phrase: "KEB plan is AWS", Handler: a.planIsAWS},
		{Phrase: "Audit logs should be available", Timeout: auditLogTimeout, Handler: a.available},
	}
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return err
		}
	}
	return nil
}
