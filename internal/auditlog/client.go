package auditlog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2/clientcredentials"
	"k8s.io/apimachinery/pkg/util/wait"
)

// Config of the audit-log service. Window, Interval and Timeout drive Check.
type Config struct {
	URL          string        `envconfig:"optional"`
	TokenURL     string        `envconfig:"optional"`
	ClientID     string        `envconfig:"optional"`
	ClientSecret string        `envconfig:"optional"`
	Tenant       string        `envconfig:"optional"`
	Window       time.Duration `envconfig:"default=3h"`
	Interval     time.Duration `envconfig:"default=30s"`
	Timeout      time.Duration `envconfig:"default=9m"`
}

func (c Config) Validate() error {
	if c.URL == "" || c.TokenURL == "" || c.ClientID == "" || c.ClientSecret == "" {
		return fmt.Errorf("audit log credentials are incomplete: url, token URL, client ID and client secret are required")
	}
	return nil
}

type Entry struct {
	MessageUUID string         `json:"message_uuid"`
	Time        string         `json:"time"`
	Category    string         `json:"category"`
	Tenant      string         `json:"tenant"`
	User        string         `json:"user"`
	Message     map[string]any `json:"message"`
}

// Criteria narrow down fetched entries. Zero values are not sent.
type Criteria struct {
	From     time.Time
	To       time.Time
	Category string
}

type Client struct {
	httpClient *http.Client
	creds      Config
	log        *slog.Logger
}

func NewClient(ctx context.Context, creds Config, log *slog.Logger) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	cfg := clientcredentials.Config{
		ClientID:     creds.ClientID,
		ClientSecret: creds.ClientSecret,
		TokenURL:     creds.TokenURL,
	}
	return &Client{httpClient: cfg.Client(ctx), creds: creds, log: log}, nil
}

// Fetch returns the audit-log entries matching criteria.
func (c *Client) Fetch(ctx context.Context, criteria Criteria) ([]Entry, error) {
	query := url.Values{}
	if !criteria.From.IsZero() {
		query.Set("time_from", criteria.From.UTC().Format("2006-01-02T15:04:05"))
	}
	if !criteria.To.IsZero() {
		query.Set("time_to", criteria.To.UTC().Format("2006-01-02T15:04:05"))
	}
	if criteria.Category != "" {
		query.Set("category", criteria.Category)
	}
	if c.creds.Tenant != "" {
		query.Set("tenant", c.creds.Tenant)
	}
	u := fmt.Sprintf("%s/auditlog/v2/auditlogrecords", c.creds.URL)
	if len(query) > 0 {
		u = fmt.Sprintf("%s?%s", u, query.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("while creating request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("while fetching audit logs: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("while reading audit logs: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected audit log status %d: %s", resp.StatusCode, string(body))
	}
	var entries []Entry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("while unmarshaling audit logs: %w", err)
	}
	return entries, nil
}

// Fetcher is implemented by Client.
type Fetcher interface {
	Fetch(ctx context.Context, criteria Criteria) ([]Entry, error)
}

// ErrNoEntries is returned by Check when nothing was logged in time.
var ErrNoEntries = errors.New("no audit log entries found")

// Check polls until at least one entry matches criteria. It gives up after
// timeout with ErrNoEntries.
func Check(ctx context.Context, fetcher Fetcher, criteria Criteria, interval, timeout time.Duration, log *slog.Logger) ([]Entry, error) {
	var (
		entries []Entry
		lastErr error
	)
	err := wait.PollUntilContextTimeout(ctx, interval, timeout, true, func(ctx context.Context) (bool, error) {
		found, err := fetcher.Fetch(ctx, criteria)
		if err != nil {
			lastErr = err
			log.Warn(fmt.Sprintf("while fetching audit logs: %v", err))
			return false, nil
		}
		entries = found
		return len(found) > 0, nil
	})
	if ctx.Err() != nil {
		return nil, fmt.Errorf("while waiting for audit logs: %w", ctx.Err())
	}
	if err != nil {
		if lastErr != nil {
			return nil, fmt.Errorf("%w, last error: %v", ErrNoEntries, lastErr)
		}
		return nil, ErrNoEntries
	}
	log.Info(fmt.Sprintf("Found %d audit log entries", len(entries)))
	return entries, nil
}
