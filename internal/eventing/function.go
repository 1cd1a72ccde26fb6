package eventing

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

type FunctionResponse struct {
	StatusCode int
	Body       string
}

func (c *Client) functionURL(mockHost string) string {
	return c.url(fmt.Sprintf("%s.%s", c.config.FunctionName, domain(mockHost)), "/function")
}

func (c *Client) tokenURL(mockHost string) string {
	if c.config.TokenURL != "" {
		return c.config.TokenURL
	}
	return c.url(fmt.Sprintf("oauth2.%s", domain(mockHost)), "/oauth2/token")
}

// CallFunctionWithToken calls the test function with an OAuth2 client
// credentials token.
func (c *Client) CallFunctionWithToken(ctx context.Context, mockHost string) (FunctionResponse, error) {
	cfg := clientcredentials.Config{
		ClientID:     c.config.ClientID,
		ClientSecret: c.config.ClientSecret,
		TokenURL:     c.tokenURL(mockHost),
	}
	httpClient := cfg.Client(context.WithValue(ctx, oauth2.HTTPClient, c.httpClient))
	return c.callFunction(ctx, httpClient, mockHost)
}

// CallFunctionWithoutToken calls the test function anonymously. A 401 or
// 403 is a valid response, not an error.
func (c *Client) CallFunctionWithoutToken(ctx context.Context, mockHost string) (FunctionResponse, error) {
	return c.callFunction(ctx, c.httpClient, mockHost)
}

func (c *Client) callFunction(ctx context.Context, httpClient *http.Client, mockHost string) (FunctionResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.functionURL(mockHost), nil)
	if err != nil {
		return FunctionResponse{}, fmt.Errorf("while creating request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return FunctionResponse{}, fmt.Errorf("while calling function: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return FunctionResponse{}, fmt.Errorf("while reading function response: %w", err)
	}
	c.log.Info(fmt.Sprintf("Function responded with %d", resp.StatusCode))
	return FunctionResponse{StatusCode: resp.StatusCode, Body: string(body)}, nil
}

func CheckSuccessfulFunctionResponse(resp FunctionResponse) error {
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("expected function status 200, got %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}

func CheckUnauthorizedFunctionResponse(resp FunctionResponse) error {
	if resp.StatusCode != http.StatusUnauthorized && resp.StatusCode != http.StatusForbidden {
		return fmt.Errorf("expected function status 401 or 403, got %d", resp.StatusCode)
	}
	return nil
}
