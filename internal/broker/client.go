package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pivotal-cf/brokerapi/v8/domain"
	"github.com/pivotal-cf/brokerapi/v8/domain/apiresponses"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	KymaServiceID = "47c9dcbf-ff30-448e-ab36-d3bad66ba281"
	AWSPlanID     = "361c511f-f939-4621-b228-d0fb79a1fe15"
	TrialPlanID   = "7d55d31d-35ae-4438-bf13-6ffdfa107d9f"

	brokerAPIVersion = "2.14"
)

type Config struct {
	Host            string
	ClientID        string
	ClientSecret    string
	GlobalAccountID string
	SubaccountID    string
	UserID          string
	PlanID          string   `envconfig:"default=361c511f-f939-4621-b228-d0fb79a1fe15"`
	Region          string   `envconfig:"default=eu-central-1"`
	PlatformRegion  string   `envconfig:"optional"`
	TokenURL        string   `envconfig:"optional"`
	Scopes          []string `envconfig:"default=broker:write"`

	// RequestTimeout bounds every single call to KEB.
	RequestTimeout time.Duration `envconfig:"default=30s"`

	// URL overrides the broker endpoint derived from Host.
	URL string `envconfig:"optional"`
}

func (c Config) brokerURL() string {
	if c.URL != "" {
		return strings.TrimSuffix(c.URL, "/")
	}
	return fmt.Sprintf("https://kyma-env-broker.%s", c.Host)
}

func (c Config) tokenURL() string {
	if c.TokenURL != "" {
		return c.TokenURL
	}
	return fmt.Sprintf("https://oauth2.%s/oauth2/token", c.Host)
}

// Client talks to the Kyma Environment Broker OSB API.
type Client struct {
	httpClient *http.Client
	// kubeconfigClient calls the unauthenticated kubeconfig endpoint.
	kubeconfigClient *http.Client
	config           Config
	log              *slog.Logger
}

func NewClient(ctx context.Context, config Config, log *slog.Logger) *Client {
	cfg := clientcredentials.Config{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		TokenURL:     config.tokenURL(),
		Scopes:       config.Scopes,
	}
	httpClient := cfg.Client(ctx)
	httpClient.Timeout = config.RequestTimeout
	return &Client{
		httpClient:       httpClient,
		kubeconfigClient: &http.Client{Timeout: config.RequestTimeout},
		config:           config,
		log:              log,
	}
}

// Runtime is the subset of the KEB runtime record the scenarios need.
type Runtime struct {
	InstanceID string `json:"instanceID"`
	RuntimeID  string `json:"runtimeID"`
	ShootName  string `json:"shootName"`
	PlanID     string `json:"servicePlanID"`
	Region     string `json:"providerRegion"`
}

type runtimesPage struct {
	Data  []Runtime `json:"data"`
	Count int       `json:"count"`
}

type BindingCredentials struct {
	Kubeconfig string `json:"kubeconfig"`
}

type Binding struct {
	Credentials BindingCredentials `json:"credentials"`
}

type errorResponse struct {
	Description string `json:"description"`
}

// ProvisionInstance starts provisioning and returns the operation ID.
func (c *Client) ProvisionInstance(ctx context.Context, instanceID, planID, region string, parameters map[string]any) (string, error) {
	details, err := c.provisionDetails(instanceID, planID, region, parameters)
	if err != nil {
		return "", err
	}
	var resp apiresponses.ProvisioningResponse
	endpoint := fmt.Sprintf("service_instances/%s?accepts_incomplete=true", instanceID)
	if err := c.call(ctx, http.MethodPut, endpoint, details, &resp); err != nil {
		return "", fmt.Errorf("while provisioning instance %s: %w", instanceID, err)
	}
	c.log.Info(fmt.Sprintf("Provision operationID: %s", resp.OperationData), "instanceID", instanceID)
	return resp.OperationData, nil
}

func (c *Client) provisionDetails(name, planID, region string, parameters map[string]any) (domain.ProvisionDetails, error) {
	params := map[string]any{"name": name}
	for k, v := range parameters {
		params[k] = v
	}
	if planID != TrialPlanID {
		params["region"] = region
	}
	rawParams, err := json.Marshal(params)
	if err != nil {
		return domain.ProvisionDetails{}, fmt.Errorf("while marshaling provisioning parameters: %w", err)
	}
	rawContext, err := json.Marshal(map[string]any{
		"globalaccount_id": c.config.GlobalAccountID,
		"subaccount_id":    c.config.SubaccountID,
		"user_id":          c.config.UserID,
	})
	if err != nil {
		return domain.ProvisionDetails{}, fmt.Errorf("while marshaling provisioning context: %w", err)
	}
	return domain.ProvisionDetails{
		ServiceID:     KymaServiceID,
		PlanID:        planID,
		RawContext:    rawContext,
		RawParameters: rawParams,
	}, nil
}

// UpdateInstance patches the instance parameters.
func (c *Client) UpdateInstance(ctx context.Context, instanceID string, parameters map[string]any) (apiresponses.UpdateResponse, error) {
	var resp apiresponses.UpdateResponse
	rawParams, err := json.Marshal(parameters)
	if err != nil {
		return resp, fmt.Errorf("while marshaling update parameters: %w", err)
	}
	rawContext, err := json.Marshal(map[string]any{"globalaccount_id": c.config.GlobalAccountID})
	if err != nil {
		return resp, fmt.Errorf("while marshaling update context: %w", err)
	}
	details := domain.UpdateDetails{
		ServiceID:     KymaServiceID,
		RawParameters: rawParams,
		RawContext:    rawContext,
	}
	endpoint := fmt.Sprintf("service_instances/%s?accepts_incomplete=true", instanceID)
	if err := c.call(ctx, http.MethodPatch, endpoint, details, &resp); err != nil {
		return resp, fmt.Errorf("while updating instance %s: %w", instanceID, err)
	}
	c.log.Info(fmt.Sprintf("Update operationID: %s", resp.OperationData), "instanceID", instanceID)
	return resp, nil
}

// DeprovisionInstance starts deprovisioning and returns the operation ID.
func (c *Client) DeprovisionInstance(ctx context.Context, instanceID string) (string, error) {
	var resp apiresponses.DeprovisionResponse
	endpoint := fmt.Sprintf("service_instances/%s?accepts_incomplete=true&service_id=%s&plan_id=not-empty", instanceID, KymaServiceID)
	if err := c.call(ctx, http.MethodDelete, endpoint, nil, &resp); err != nil {
		return "", fmt.Errorf("while deprovisioning instance %s: %w", instanceID, err)
	}
	c.log.Info(fmt.Sprintf("Deprovision operationID: %s", resp.OperationData), "instanceID", instanceID)
	return resp.OperationData, nil
}

func (c *Client) GetOperation(ctx context.Context, instanceID, operationID string) (apiresponses.LastOperationResponse, error) {
	var resp apiresponses.LastOperationResponse
	endpoint := fmt.Sprintf("service_instances/%s/last_operation?operation=%s", instanceID, url.QueryEscape(operationID))
	err := c.call(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

// GetRuntime looks the instance up in the KEB runtimes API.
func (c *Client) GetRuntime(ctx context.Context, instanceID string) (Runtime, error) {
	u := fmt.Sprintf("%s/runtimes?instance_id=%s", c.config.brokerURL(), url.QueryEscape(instanceID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Runtime{}, fmt.Errorf("while creating request: %w", err)
	}
	var page runtimesPage
	if err := c.do(req, &page); err != nil {
		return Runtime{}, fmt.Errorf("while getting runtime for instance %s: %w", instanceID, err)
	}
	if len(page.Data) == 0 {
		return Runtime{}, fmt.Errorf("runtime for instance %s not found", instanceID)
	}
	return page.Data[0], nil
}

// DownloadKubeconfig fetches the customer facing kubeconfig of the instance.
func (c *Client) DownloadKubeconfig(ctx context.Context, instanceID string) ([]byte, error) {
	u := fmt.Sprintf("%s/kubeconfig/%s", c.config.brokerURL(), instanceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("while creating request: %w", err)
	}
	resp, err := c.kubeconfigClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("while downloading kubeconfig: %w", err)
	}
	defer c.closeBody(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download kubeconfig: %s", resp.Status)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) CreateBinding(ctx context.Context, instanceID, bindingID string, expirationSeconds int) (Binding, error) {
	payload := map[string]any{
		"service_id": KymaServiceID,
		"plan_id":    "not-empty",
		"parameters": map[string]any{
			"expiration_seconds": expirationSeconds,
		},
	}
	var binding Binding
	endpoint := fmt.Sprintf("service_instances/%s/service_bindings/%s?accepts_incomplete=false", instanceID, bindingID)
	if err := c.call(ctx, http.MethodPut, endpoint, payload, &binding); err != nil {
		return binding, fmt.Errorf("while creating binding %s: %w", bindingID, err)
	}
	return binding, nil
}

func (c *Client) DeleteBinding(ctx context.Context, instanceID, bindingID string) error {
	endpoint := fmt.Sprintf("service_instances/%s/service_bindings/%s?accepts_incomplete=false&service_id=%s&plan_id=not-empty", instanceID, bindingID, KymaServiceID)
	if err := c.call(ctx, http.MethodDelete, endpoint, nil, nil); err != nil {
		return fmt.Errorf("while deleting binding %s: %w", bindingID, err)
	}
	return nil
}

func (c *Client) platformRegion() string {
	if c.config.PlatformRegion != "" {
		return fmt.Sprintf("%s/", c.config.PlatformRegion)
	}
	return ""
}

func (c *Client) call(ctx context.Context, verb, endpoint string, payload, out any) error {
	u := fmt.Sprintf("%s/oauth/%sv2/%s", c.config.brokerURL(), c.platformRegion(), endpoint)
	var body io.Reader
	if payload != nil {
		jsonPayload, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("while marshaling payload: %w", err)
		}
		body = bytes.NewBuffer(jsonPayload)
	}
	req, err := http.NewRequestWithContext(ctx, verb, u, body)
	if err != nil {
		return fmt.Errorf("while creating request: %w", err)
	}
	req.Header.Set("X-Broker-API-Version", brokerAPIVersion)
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("while performing request: %w", err)
	}
	defer c.closeBody(resp.Body)

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("while reading response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusCreated {
		var e errorResponse
		_ = json.Unmarshal(bodyBytes, &e)
		return &HTTPError{StatusCode: resp.StatusCode, Description: e.Description, Body: string(bodyBytes)}
	}
	if out == nil || len(bodyBytes) == 0 {
		return nil
	}
	if err := json.Unmarshal(bodyBytes, out); err != nil {
		return fmt.Errorf("while unmarshaling response: %w", err)
	}
	return nil
}

func (c *Client) closeBody(body io.ReadCloser) {
	if err := body.Close(); err != nil {
		c.log.Warn(fmt.Sprintf("while closing response body: %s", err.Error()))
	}
}

// HTTPError is returned for any non-success broker response.
type HTTPError struct {
	StatusCode  int
	Description string
	Body        string
}

func (e *HTTPError) Error() string {
	if e.Description != "" {
		return fmt.Sprintf("error calling Broker: %d %s", e.StatusCode, e.Description)
	}
	return fmt.Sprintf("error calling Broker: %d %s", e.StatusCode, e.Body)
}
