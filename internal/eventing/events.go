package eventing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"k8s.io/apimachinery/pkg/util/wait"
)

type Encoding string

const (
	Legacy     Encoding = "legacy"
	Structured Encoding = "structured"
	Binary     Encoding = "binary"

	eventSource  = "commerce"
	eventType    = "order.created"
	eventVersion = "v1"
)

var Encodings = []string{string(Legacy), string(Structured), string(Binary)}

// EventParams is a ready to send event request.
type EventParams struct {
	Encoding Encoding
	ID       string
	Headers  map[string]string
	Body     map[string]any
}

func orderData() map[string]any {
	return map[string]any{"orderCode": "987654321"}
}

// NewEventParams builds an event in the given encoding with a random ID.
func NewEventParams(encoding Encoding) (EventParams, error) {
	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339)
	switch encoding {
	case Legacy:
		return EventParams{
			Encoding: encoding,
			ID:       id,
			Headers:  map[string]string{"Content-Type": "application/json"},
			Body: map[string]any{
				"event-type":         eventType,
				"event-type-version": eventVersion,
				"event-id":           id,
				"event-time":         now,
				"data":               orderData(),
			},
		}, nil
	case Structured:
		return EventParams{
			Encoding: encoding,
			ID:       id,
			Headers:  map[string]string{"Content-Type": "application/cloudevents+json"},
			Body: map[string]any{
				"specversion":     "1.0",
				"source":          eventSource,
				"type":            fmt.Sprintf("%s.%s", eventType, eventVersion),
				"id":              id,
				"time":            now,
				"datacontenttype": "application/json",
				"data":            orderData(),
			},
		}, nil
	case Binary:
		return EventParams{
			Encoding: encoding,
			ID:       id,
			Headers: map[string]string{
				"Content-Type":   "application/json",
				"ce-specversion": "1.0",
				"ce-source":      eventSource,
				"ce-type":        fmt.Sprintf("%s.%s", eventType, eventVersion),
				"ce-id":          id,
				"ce-time":        now,
			},
			Body: orderData(),
		}, nil
	}
	return EventParams{}, fmt.Errorf("not supported event encoding %q", encoding)
}

type EventResponse struct {
	Encoding   Encoding
	ID         string
	StatusCode int
	Body       map[string]any
}

// SendEvent publishes the event through the commerce mock.
func (c *Client) SendEvent(ctx context.Context, mockHost string, params EventParams) (EventResponse, error) {
	payload, err := json.Marshal(params.Body)
	if err != nil {
		return EventResponse{}, fmt.Errorf("while marshaling event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(mockHost, "/events"), bytes.NewReader(payload))
	if err != nil {
		return EventResponse{}, fmt.Errorf("while creating request: %w", err)
	}
	for k, v := range params.Headers {
		req.Header.Set(k, v)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return EventResponse{}, fmt.Errorf("while sending %s event: %w", params.Encoding, err)
	}
	defer resp.Body.Close()

	out := EventResponse{Encoding: params.Encoding, ID: params.ID, StatusCode: resp.StatusCode}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return out, fmt.Errorf("while reading event response: %w", err)
	}
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &out.Body); err != nil {
			c.log.Warn(fmt.Sprintf("event response is not JSON: %s", string(raw)))
		}
	}
	c.log.Info(fmt.Sprintf("Sent %s event %s, status %d", params.Encoding, params.ID, resp.StatusCode))
	return out, nil
}

// CheckEventResponse verifies the publisher accepted the event. Legacy
// publishers answer 200 and echo the event ID back, cloud event publishers
// answer 204 without a body.
func CheckEventResponse(resp EventResponse) error {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("expected %s event to be accepted, got status %d", resp.Encoding, resp.StatusCode)
	}
	switch resp.Encoding {
	case Legacy:
		id, _ := resp.Body["id"].(string)
		if id != resp.ID {
			return fmt.Errorf("expected legacy event response to carry id %q, got %q", resp.ID, id)
		}
	case Structured, Binary:
		if resp.StatusCode != http.StatusNoContent {
			return fmt.Errorf("expected %s event to be accepted with status 204, got status %d", resp.Encoding, resp.StatusCode)
		}
		if len(resp.Body) > 0 {
			return fmt.Errorf("expected %s event response without body, got %v", resp.Encoding, resp.Body)
		}
	default:
		return fmt.Errorf("not supported event encoding %q", resp.Encoding)
	}
	return nil
}

func RandomEventID(encoding Encoding) string {
	return fmt.Sprintf("event-%s-%s", encoding, uuid.NewString())
}

// SendInClusterEvent asks the in-cluster mock to emit an event and retries
// until the mock accepts it.
func (c *Client) SendInClusterEvent(ctx context.Context, mockHost, eventID string, encoding Encoding) error {
	payload, err := json.Marshal(map[string]string{"id": eventID, "encoding": string(encoding)})
	if err != nil {
		return fmt.Errorf("while marshaling in-cluster event: %w", err)
	}
	var (
		attempt int
		lastErr error
	)
	backoff := wait.Backoff{Duration: c.config.RetryInterval, Factor: 1, Steps: c.config.InClusterRetries}
	err = wait.ExponentialBackoffWithContext(ctx, backoff, func(ctx context.Context) (bool, error) {
		attempt++
		lastErr = c.postInCluster(ctx, mockHost, payload)
		if lastErr != nil {
			c.log.Warn(fmt.Sprintf("attempt %d: while sending in-cluster event: %v", attempt, lastErr))
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		if lastErr == nil {
			return err
		}
		return fmt.Errorf("in-cluster event %s not sent after %d attempts: %w", eventID, attempt, lastErr)
	}
	c.log.Info(fmt.Sprintf("In-cluster %s event %s sent", encoding, eventID))
	return nil
}

func (c *Client) postInCluster(ctx context.Context, mockHost string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(mockHost, "/"), bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}

// ErrEventNotReceived is returned when the mock never reported the event.
var ErrEventNotReceived = errors.New("event not received")

// EnsureInClusterEventReceived polls the mock until it reports the event.
// It gives up after ReceiveTimeout with ErrEventNotReceived.
func (c *Client) EnsureInClusterEventReceived(ctx context.Context, mockHost, eventID string) error {
	u := c.url(mockHost, "/?id="+url.QueryEscape(eventID))
	err := wait.PollUntilContextTimeout(ctx, c.config.RetryInterval, c.config.ReceiveTimeout, true, func(ctx context.Context) (bool, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return false, err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			c.log.Warn(fmt.Sprintf("while checking event %s: %v", eventID, err))
			return false, nil
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return false, nil
		}
		var body struct {
			ID string `json:"id"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
			return false, nil
		}
		return body.ID == eventID, nil
	})
	if ctx.Err() != nil {
		return fmt.Errorf("while waiting for event %s: %w", eventID, ctx.Err())
	}
	if err != nil {
		return fmt.Errorf("%w: %s on %s within %s", ErrEventNotReceived, eventID, mockHost, c.config.ReceiveTimeout)
	}
	c.log.Info(fmt.Sprintf("Event %s received", eventID))
	return nil
}
