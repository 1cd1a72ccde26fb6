package steps

import (
	"context"
	"time"

	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/auditlog"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/broker"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/scenario"
)

type auditLogSteps struct {
	env *Env
}

// planIsAWS stores an audit-log client for AWS plans and nil otherwise.
func (a *auditLogSteps) planIsAWS(ctx context.Context, sc *scenario.Context, _ scenario.Args) error {
	if a.env.PlanID != broker.AWSPlanID || a.env.AuditLogs == nil {
		sc.Set(keyAuditLogs, nil)
		return nil
	}
	fetcher, err := a.env.AuditLogs(ctx)
	if err != nil {
		return scenario.Collaborator(err, "creating audit log client")
	}
	sc.Set(keyAuditLogs, fetcher)
	return nil
}

func (a *auditLogSteps) available(ctx context.Context, sc *scenario.Context, _ scenario.Args) error {
	fetcher, ok, err := scenario.LookupOptional[auditlog.Fetcher](sc, keyAuditLogs)
	if err != nil {
		return scenario.Assert(err, "reading audit log client")
	}
	if !ok {
		a.env.Log.Info("audit logs are not checked for this plan")
		return nil
	}
	criteria := auditlog.Criteria{From: time.Now().Add(-a.env.AuditLogQuery.Window)}
	_, err = auditlog.Check(ctx, fetcher, criteria, a.env.AuditLogQuery.Interval, a.env.AuditLogQuery.Timeout, a.env.Log)
	return assertOrCollaborate(err, "checking audit logs")
}
