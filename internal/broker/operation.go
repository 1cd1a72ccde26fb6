package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pivotal-cf/brokerapi/v8/domain"
	"github.com/pivotal-cf/brokerapi/v8/domain/apiresponses"
	"k8s.io/apimachinery/pkg/util/wait"
)

type OperationGetter interface {
	GetOperation(ctx context.Context, instanceID, operationID string) (apiresponses.LastOperationResponse, error)
}

// OperationNotSucceededError is returned when an operation finished in another
// state than succeeded or did not finish in time.
type OperationNotSucceededError struct {
	OperationID string
	State       domain.LastOperationState
	Description string
	LastErr     error
}

func (e *OperationNotSucceededError) Error() string {
	msg := fmt.Sprintf("operation %s didn't succeed in time. Final state: %s", e.OperationID, e.State)
	if e.Description != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Description)
	}
	if e.LastErr != nil {
		msg = fmt.Sprintf("%s, last error: %v", msg, e.LastErr)
	}
	return msg
}

func (e *OperationNotSucceededError) Unwrap() error {
	return e.LastErr
}

// WaitForOperation polls the operation until it is succeeded or failed.
// Transient errors from the broker are logged and polling continues until
// timeout.
func WaitForOperation(ctx context.Context, getter OperationGetter, instanceID, operationID string, timeout, interval time.Duration, log *slog.Logger) error {
	log = log.With("instanceID", instanceID, "operationID", operationID)
	var (
		last    apiresponses.LastOperationResponse
		lastErr error
	)
	err := wait.PollUntilContextTimeout(ctx, interval, timeout, true, func(ctx context.Context) (bool, error) {
		resp, err := getter.GetOperation(ctx, instanceID, operationID)
		if err != nil {
			lastErr = err
			log.Warn(fmt.Sprintf("while getting operation: %v", err))
			return false, nil
		}
		last, lastErr = resp, nil
		log.Info(fmt.Sprintf("Operation state: %s", resp.State))
		return resp.State == domain.Succeeded || resp.State == domain.Failed, nil
	})
	if err != nil && !errors.Is(err, context.DeadlineExceeded) && !wait.Interrupted(err) {
		return fmt.Errorf("while waiting for operation %s: %w", operationID, err)
	}
	if last.State != domain.Succeeded {
		return &OperationNotSucceededError{OperationID: operationID, State: last.State, Description: last.Description, LastErr: lastErr}
	}
	log.Info(fmt.Sprintf("Operation %s finished with state %s", operationID, last.State))
	return nil
}
