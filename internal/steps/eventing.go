package steps

import (
	"context"
	"fmt"

	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/eventing"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/scenario"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/skr"
)

type eventingSteps struct {
	env *Env
}

func (e *eventingSteps) commerceBackend(ctx context.Context, sc *scenario.Context, _ scenario.Args) error {
	opts, err := scenario.Lookup[skr.Options](sc, keyOptions)
	if err != nil {
		return err
	}
	return scenario.Collaborator(e.env.CommerceMock.EnsureCommerceMock(ctx, opts.InstanceID, opts.TestNS), "setting up commerce mock")
}

func (e *eventingSteps) callWithToken(ctx context.Context, sc *scenario.Context, _ scenario.Args) error {
	opts, err := scenario.Lookup[skr.Options](sc, keyOptions)
	if err != nil {
		return err
	}
	host, err := e.env.CommerceMock.CommerceMockHost(ctx, opts.InstanceID)
	if err != nil {
		return scenario.Collaborator(err, "getting commerce mock host")
	}
	resp, err := e.env.CommerceMock.CallFunctionWithToken(ctx, host)
	if err != nil {
		return scenario.Collaborator(err, "calling function with token")
	}
	sc.Set(keyCommerceMockHost, host)
	sc.Set(keySuccessfulFunctionResponse, resp)
	return nil
}

func (e *eventingSteps) functionReachable(_ context.Context, sc *scenario.Context, _ scenario.Args) error {
	resp, err := scenario.Lookup[eventing.FunctionResponse](sc, keySuccessfulFunctionResponse)
	if err != nil {
		return err
	}
	return scenario.Assert(eventing.CheckSuccessfulFunctionResponse(resp), "function should be reachable")
}

func (e *eventingSteps) callWithoutToken(ctx context.Context, sc *scenario.Context, _ scenario.Args) error {
	host, err := scenario.Lookup[string](sc, keyCommerceMockHost)
	if err != nil {
		return err
	}
	resp, err := e.env.CommerceMock.CallFunctionWithoutToken(ctx, host)
	if err != nil {
		return scenario.Collaborator(err, "calling function without token")
	}
	sc.Set(keyUnauthorizedFunctionResponse, resp)
	return nil
}

func (e *eventingSteps) functionRejected(_ context.Context, sc *scenario.Context, _ scenario.Args) error {
	resp, err := scenario.Lookup[eventing.FunctionResponse](sc, keyUnauthorizedFunctionResponse)
	if err != nil {
		return err
	}
	return scenario.Assert(eventing.CheckUnauthorizedFunctionResponse(resp), "function should reject the call")
}

func (e *eventingSteps) sendEvent(ctx context.Context, sc *scenario.Context, args scenario.Args) error {
	return e.send(ctx, sc, eventing.Encoding(args.Get("encoding")))
}

func (e *eventingSteps) sendLegacyEvent(ctx context.Context, sc *scenario.Context, _ scenario.Args) error {
	return e.send(ctx, sc, eventing.Legacy)
}

func (e *eventingSteps) send(ctx context.Context, sc *scenario.Context, encoding eventing.Encoding) error {
	host, err := scenario.Lookup[string](sc, keyCommerceMockHost)
	if err != nil {
		return err
	}
	params, err := eventing.NewEventParams(encoding)
	if err != nil {
		return scenario.Assert(err, "building event")
	}
	resp, err := e.env.CommerceMock.SendEvent(ctx, host, params)
	if err != nil {
		return scenario.Collaborator(err, fmt.Sprintf("sending %s event", encoding))
	}
	sc.Set(keyEventResponse, resp)
	return nil
}

func (e *eventingSteps) eventAccepted(_ context.Context, sc *scenario.Context, _ scenario.Args) error {
	resp, err := scenario.Lookup[eventing.EventResponse](sc, keyEventResponse)
	if err != nil {
		return err
	}
	return scenario.Assert(eventing.CheckEventResponse(resp), "event should be received correctly")
}

func (e *eventingSteps) sendInClusterEvent(ctx context.Context, sc *scenario.Context, args scenario.Args) error {
	opts, err := scenario.Lookup[skr.Options](sc, keyOptions)
	if err != nil {
		return err
	}
	encoding := eventing.Encoding(args.Get("encoding"))
	eventID := eventing.RandomEventID(encoding)
	host, err := e.env.CommerceMock.VirtualServiceHost(ctx, opts.InstanceID, opts.TestNS, e.env.FunctionName)
	if err != nil {
		return scenario.Collaborator(err, "getting in-cluster mock host")
	}
	if err := e.env.CommerceMock.SendInClusterEvent(ctx, host, eventID, encoding); err != nil {
		return scenario.Collaborator(err, fmt.Sprintf("sending in-cluster %s event", encoding))
	}
	sc.Set(keyLastOrderMockHost, host)
	sc.Set(keyEventID, eventID)
	return nil
}

func (e *eventingSteps) inClusterEventReceived(ctx context.Context, sc *scenario.Context, _ scenario.Args) error {
	host, err := scenario.Lookup[string](sc, keyLastOrderMockHost)
	if err != nil {
		return err
	}
	eventID, err := scenario.Lookup[string](sc, keyEventID)
	if err != nil {
		return err
	}
	return assertOrCollaborate(e.env.CommerceMock.EnsureInClusterEventReceived(ctx, host, eventID), "waiting for in-cluster event")
}
