package app

import (
	"fmt"

	"github.com/upb/integration-gateway/config"
	"github.com/upb/integration-gateway/internal/policy"
	"github.com/upb/integration-gateway/services/providers"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/endpoints"
)

// defaultEndpoint returns the well-known token endpoint of provider
func defaultEndpoint(provider policy.Provider) (oauth2.Endpoint, bool) {
	switch provider {
	case policy.ProviderGmail, policy.ProviderGoogleCalendar, policy.ProviderGoogleContacts,
		policy.ProviderGoogleSheets, policy.ProviderGoogleForms, policy.ProviderGoogleDrive:
		return endpoints.Google, true
	case policy.ProviderOneDrive, policy.ProviderTeams:
		return endpoints.AzureAD("common"), true
	case policy.ProviderGitHub:
		return endpoints.GitHub, true
	case policy.ProviderSlack:
		return endpoints.Slack, true
	default:
		return oauth2.Endpoint{}, false
	}
}

// oauthConfigs builds one refresh client per configured provider. An
// explicit token URL overrides the well-known endpoint.
func oauthConfigs(clients map[policy.Provider]config.OAuthClientConfig) (map[policy.Provider]*oauth2.Config, error) {
	out := make(map[policy.Provider]*oauth2.Config, len(clients))
	for provider, c := range clients {
		endpoint, ok := defaultEndpoint(provider)
		if c.TokenURL != "" {
			endpoint = oauth2.Endpoint{TokenURL: c.TokenURL, AuthStyle: oauth2.AuthStyleAutoDetect}
		} else if !ok {
			return nil, fmt.Errorf("no token URL configured for %s", provider)
		}

		out[provider] = &oauth2.Config{
			ClientID:     c.ClientID,
			ClientSecret: c.ClientSecret,
			Endpoint:     endpoint,
		}
	}
	return out, nil
}

// connectorConfigs applies the shared connector settings to every endpoint
func connectorConfigs(cfg config.ConnectorsConfig) map[policy.Provider]providers.ConnectorConfig {
	out := make(map[policy.Provider]providers.ConnectorConfig, len(cfg.Endpoints))
	for provider, e := range cfg.Endpoints {
		c := providers.DefaultConnectorConfig()
		c.Endpoint = e.Endpoint
		if cfg.Timeout > 0 {
			c.Timeout = cfg.Timeout
		}
		if cfg.MaxResponseBytes > 0 {
			c.MaxResponseBytes = cfg.MaxResponseBytes
		}
		out[provider] = c
	}
	return out
}
