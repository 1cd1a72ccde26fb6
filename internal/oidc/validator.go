package oidc

import (
	"context"
	"fmt"
	"strings"

	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/common/gardener"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/common/runtime"
	"github.com/kyma-project/kyma-environment-broker/testing/e2e/skr-scenarios/internal/kubeconfig"
)

// MismatchError means the observed configuration differs from the expected one.
type MismatchError struct {
	Subject string
	Details []string
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("%s does not match: %s", e.Subject, strings.Join(e.Details, "; "))
}

// ValidateShootOIDCConfig compares the kube-apiserver OIDC config of the shoot
// with the expected one.
func ValidateShootOIDCConfig(shoot *gardener.Shoot, expected runtime.OIDCConfigDTO) error {
	if shoot == nil {
		return fmt.Errorf("shoot is not known")
	}
	actual, found := shoot.OIDCConfig()
	if !found {
		return &MismatchError{Subject: fmt.Sprintf("shoot %s OIDC config", shoot.GetName()), Details: []string{"oidcConfig is not set"}}
	}
	if diffs := expected.Diff(actual); len(diffs) > 0 {
		return &MismatchError{Subject: fmt.Sprintf("shoot %s OIDC config", shoot.GetName()), Details: diffs}
	}
	return nil
}

type KubeconfigDownloader interface {
	DownloadKubeconfig(ctx context.Context, instanceID string) ([]byte, error)
}

// ValidateKubeconfigOIDC downloads the customer facing kubeconfig of the
// instance and checks one of its users authenticates against the expected
// issuer with the expected client ID.
func ValidateKubeconfigOIDC(ctx context.Context, downloader KubeconfigDownloader, instanceID string, expected runtime.OIDCConfigDTO) error {
	raw, err := downloader.DownloadKubeconfig(ctx, instanceID)
	if err != nil {
		return fmt.Errorf("while downloading kubeconfig for instance %s: %w", instanceID, err)
	}
	return ValidateKubeconfigBytes(raw, expected)
}

func ValidateKubeconfigBytes(raw []byte, expected runtime.OIDCConfigDTO) error {
	kc, err := kubeconfig.Parse(raw)
	if err != nil {
		return err
	}
	var seen []string
	for _, cfg := range kc.OIDCConfigs() {
		if cfg.IssuerURL == expected.IssuerURL && cfg.ClientID == expected.ClientID {
			return nil
		}
		seen = append(seen, fmt.Sprintf("user %s: issuer %s, client %s", cfg.Name, cfg.IssuerURL, cfg.ClientID))
	}
	if len(seen) == 0 {
		seen = []string{"no user with exec credentials"}
	}
	return &MismatchError{
		Subject: fmt.Sprintf("kubeconfig OIDC (issuer %s, client %s)", expected.IssuerURL, expected.ClientID),
		Details: seen,
	}
}
