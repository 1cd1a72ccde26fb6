package kubeconfig

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v2"
)

const (
	issuerArgPrefix   = "--oidc-issuer-url="
	clientIDArgPrefix = "--oidc-client-id="
)

// Kubeconfig is the part of a customer facing kubeconfig the scenarios read.
type Kubeconfig struct {
	APIVersion     string `yaml:"apiVersion"`
	Kind           string `yaml:"kind"`
	CurrentContext string `yaml:"current-context"`
	Clusters       []struct {
		Name    string `yaml:"name"`
		Cluster struct {
			CertificateAuthorityData string `yaml:"certificate-authority-data"`
			Server                   string `yaml:"server"`
		} `yaml:"cluster"`
	} `yaml:"clusters"`
	Users []User `yaml:"users"`
}

type User struct {
	Name string `yaml:"name"`
	User struct {
		Token string `yaml:"token"`
		Exec  *struct {
			Command string   `yaml:"command"`
			Args    []string `yaml:"args"`
		} `yaml:"exec"`
	} `yaml:"user"`
}

// OIDCConfig is what a kubelogin exec user authenticates with.
type OIDCConfig struct {
	Name      string
	IssuerURL string
	ClientID  string
}

func Parse(raw []byte) (*Kubeconfig, error) {
	var kc Kubeconfig
	if err := yaml.Unmarshal(raw, &kc); err != nil {
		return nil, fmt.Errorf("while unmarshaling kubeconfig: %w", err)
	}
	return &kc, nil
}

// OIDCConfigs returns the issuer and client ID of every exec user.
func (k *Kubeconfig) OIDCConfigs() []OIDCConfig {
	var configs []OIDCConfig
	for _, u := range k.Users {
		if u.User.Exec == nil {
			continue
		}
		cfg := OIDCConfig{Name: u.Name}
		for _, arg := range u.User.Exec.Args {
			switch {
			case strings.HasPrefix(arg, issuerArgPrefix):
				cfg.IssuerURL = strings.TrimPrefix(arg, issuerArgPrefix)
			case strings.HasPrefix(arg, clientIDArgPrefix):
				cfg.ClientID = strings.TrimPrefix(arg, clientIDArgPrefix)
			}
		}
		configs = append(configs, cfg)
	}
	return configs
}
