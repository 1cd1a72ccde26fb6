package kcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v2"
)

// Config of the kcp CLI. When ClientSecret is empty the CLI is expected to
// be logged in already and no config file is written.
type Config struct {
	Enabled           bool   `envconfig:"default=false"`
	Binary            string `envconfig:"default=kcp"`
	AuthType          string `envconfig:"optional"`
	Host              string `envconfig:"optional"`
	IssuerURL         string `envconfig:"optional"`
	GardenerNamespace string `envconfig:"optional"`
	Username          string `envconfig:"optional"`
	Password          string `envconfig:"optional"`
	ClientID          string `envconfig:"optional"`
	ClientSecret      string `envconfig:"optional"`
	KubeConfigApiUrl  string `envconfig:"optional"`
}

type fileConfig struct {
	AuthType          string `yaml:"auth-type"`
	GardenerNamespace string `yaml:"gardener-namespace"`
	IssuerURL         string `yaml:"oidc-issuer-url"`
	ClientID          string `yaml:"oidc-client-id"`
	ClientSecret      string `yaml:"oidc-client-secret"`
	Username          string `yaml:"username"`
	KEBAPIURL         string `yaml:"keb-api-url"`
	KubeconfigAPIURL  string `yaml:"kubeconfig-api-url"`
}

// CommandRunner executes the kcp binary and returns its standard output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if exitErr, ok := err.(*exec.ExitError); ok {
		return out, fmt.Errorf("%w: %s", err, strings.TrimSpace(string(exitErr.Stderr)))
	}
	return out, err
}

type Client struct {
	config     Config
	configPath string
	run        CommandRunner
	log        *slog.Logger
}

func NewClient(config Config, log *slog.Logger) *Client {
	return NewClientWithRunner(config, execRunner, log)
}

func NewClientWithRunner(config Config, run CommandRunner, log *slog.Logger) *Client {
	if config.Binary == "" {
		config.Binary = "kcp"
	}
	return &Client{config: config, run: run, log: log}
}

// Login writes the CLI config when credentials are configured and logs in.
func (c *Client) Login(ctx context.Context, dir string) error {
	args := []string{"login"}
	if c.config.ClientSecret != "" {
		path, err := c.writeConfig(dir)
		if err != nil {
			return err
		}
		c.configPath = path
		args = append(args, "--config", path, "-u", c.config.Username, "-p", c.config.Password)
	}
	if _, err := c.run(ctx, c.config.Binary, args...); err != nil {
		return fmt.Errorf("while logging in to kcp: %w", err)
	}
	return nil
}

func (c *Client) writeConfig(dir string) (string, error) {
	data, err := yaml.Marshal(fileConfig{
		AuthType:          c.config.AuthType,
		GardenerNamespace: c.config.GardenerNamespace,
		IssuerURL:         c.config.IssuerURL,
		ClientID:          c.config.ClientID,
		ClientSecret:      c.config.ClientSecret,
		Username:          c.config.Username,
		KEBAPIURL:         c.config.Host,
		KubeconfigAPIURL:  c.config.KubeConfigApiUrl,
	})
	if err != nil {
		return "", fmt.Errorf("while marshaling kcp config: %w", err)
	}
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("while writing kcp config: %w", err)
	}
	return path, nil
}

// RuntimeStatus is the part of `kcp rt --ops` output that is logged.
type RuntimeStatus struct {
	InstanceID string         `json:"instanceID"`
	RuntimeID  string         `json:"runtimeID"`
	ShootName  string         `json:"shootName"`
	Status     map[string]any `json:"status"`
}

// GetRuntimeStatus returns the runtime record with its operations.
func (c *Client) GetRuntimeStatus(ctx context.Context, instanceID string) (RuntimeStatus, error) {
	out, err := c.exec(ctx, "rt", "-i", instanceID, "--ops", "-o", "json")
	if err != nil {
		return RuntimeStatus{}, fmt.Errorf("while getting runtime status: %w", err)
	}
	var page struct {
		Data []RuntimeStatus `json:"data"`
	}
	if err := json.Unmarshal(out, &page); err != nil {
		return RuntimeStatus{}, fmt.Errorf("while unmarshaling runtime status: %w", err)
	}
	if len(page.Data) == 0 {
		return RuntimeStatus{}, fmt.Errorf("runtime for instance %s not found", instanceID)
	}
	return page.Data[0], nil
}

func (c *Client) GetCurrentOIDCConfig(ctx context.Context, instanceID string) (map[string]any, error) {
	out, err := c.exec(ctx, "rt", "-i", instanceID, "--runtime-config", "-o", "custom=:{.runtimeConfig.spec.shoot.kubernetes.kubeAPIServer.oidcConfig}")
	if err != nil {
		return nil, fmt.Errorf("failed to get current OIDC config: %w", err)
	}
	var oidcConfig map[string]any
	if err := json.Unmarshal(out, &oidcConfig); err != nil {
		return nil, fmt.Errorf("failed to unmarshal OIDC config: %w", err)
	}
	return oidcConfig, nil
}

func (c *Client) exec(ctx context.Context, args ...string) ([]byte, error) {
	if c.configPath != "" {
		args = append(args, "--config", c.configPath)
	}
	c.log.Debug(fmt.Sprintf("kcp %s", strings.Join(args, " ")))
	return c.run(ctx, c.config.Binary, args...)
}
