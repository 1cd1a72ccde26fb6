package runtime

import (
	"fmt"
	"slices"
)

// OIDCConfigDTO is the OIDC configuration passed to KEB and applied on the shoot.
type OIDCConfigDTO struct {
	ClientID       string   `json:"clientID" yaml:"clientID"`
	GroupsClaim    string   `json:"groupsClaim" yaml:"groupsClaim"`
	GroupsPrefix   string   `json:"groupsPrefix,omitempty" yaml:"groupsPrefix,omitempty"`
	IssuerURL      string   `json:"issuerURL" yaml:"issuerURL"`
	SigningAlgs    []string `json:"signingAlgs" yaml:"signingAlgs"`
	UsernameClaim  string   `json:"usernameClaim" yaml:"usernameClaim"`
	UsernamePrefix string   `json:"usernamePrefix" yaml:"usernamePrefix"`
	RequiredClaims []string `json:"requiredClaims,omitempty" yaml:"requiredClaims,omitempty"`
}

func (o *OIDCConfigDTO) IsEmpty() bool {
	return o.ClientID == "" && o.IssuerURL == "" && o.GroupsClaim == "" &&
		o.UsernamePrefix == "" && o.UsernameClaim == "" && len(o.SigningAlgs) == 0 &&
		len(o.RequiredClaims) == 0 && o.GroupsPrefix == ""
}

// Diff lists the fields of actual that differ from o. Empty expected
// fields are not compared.
func (o OIDCConfigDTO) Diff(actual OIDCConfigDTO) []string {
	var diffs []string
	compare := func(field, expected, got string) {
		if expected != "" && expected != got {
			diffs = append(diffs, fmt.Sprintf("%s: expected %q, got %q", field, expected, got))
		}
	}
	compare("clientID", o.ClientID, actual.ClientID)
	compare("issuerURL", o.IssuerURL, actual.IssuerURL)
	compare("groupsClaim", o.GroupsClaim, actual.GroupsClaim)
	compare("groupsPrefix", o.GroupsPrefix, actual.GroupsPrefix)
	compare("usernameClaim", o.UsernameClaim, actual.UsernameClaim)
	compare("usernamePrefix", o.UsernamePrefix, actual.UsernamePrefix)
	if len(o.SigningAlgs) > 0 && !slices.Equal(o.SigningAlgs, actual.SigningAlgs) {
		diffs = append(diffs, fmt.Sprintf("signingAlgs: expected %v, got %v", o.SigningAlgs, actual.SigningAlgs))
	}
	return diffs
}

// ToParameters renders the config as the "oidc" provisioning parameter.
func (o OIDCConfigDTO) ToParameters() map[string]any {
	params := map[string]any{
		"clientID":       o.ClientID,
		"groupsClaim":    o.GroupsClaim,
		"issuerURL":      o.IssuerURL,
		"signingAlgs":    o.SigningAlgs,
		"usernameClaim":  o.UsernameClaim,
		"usernamePrefix": o.UsernamePrefix,
	}
	if o.GroupsPrefix != "" {
		params["groupsPrefix"] = o.GroupsPrefix
	}
	if len(o.RequiredClaims) > 0 {
		params["requiredClaims"] = o.RequiredClaims
	}
	return params
}
