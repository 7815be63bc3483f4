package meta

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

const (
	ProviderID            = "meta"
	DefaultGraphBaseURL   = "https://graph.facebook.com"
	DefaultAPIVersion     = "v23.0"
	DefaultRequestsPerSec = 10.0
	DefaultBurst          = 5
	DefaultAccountLimit   = 100
	defaultRequestTimeout = 10 * time.Second
)

// Config describes how the verifier reaches the Graph API. AppSecret is
// optional; when set every call carries an appsecret_proof.
type Config struct {
	GraphBaseURL      string        `koanf:"graph_base_url" mapstructure:"graph_base_url"`
	APIVersion        string        `koanf:"api_version" mapstructure:"api_version"`
	AppSecret         string        `koanf:"app_secret" mapstructure:"app_secret"`
	RequestsPerSecond float64       `koanf:"requests_per_second" mapstructure:"requests_per_second"`
	Burst             int           `koanf:"burst" mapstructure:"burst"`
	AccountLimit      int           `koanf:"account_limit" mapstructure:"account_limit"`
	RequestTimeout    time.Duration `koanf:"request_timeout" mapstructure:"request_timeout"`
}

func DefaultConfig() Config {
	return Config{
		GraphBaseURL:      DefaultGraphBaseURL,
		APIVersion:        DefaultAPIVersion,
		RequestsPerSecond: DefaultRequestsPerSec,
		Burst:             DefaultBurst,
		AccountLimit:      DefaultAccountLimit,
		RequestTimeout:    defaultRequestTimeout,
	}
}

func (c Config) withDefaults() Config {
	defaults := DefaultConfig()
	c.GraphBaseURL = strings.TrimRight(strings.TrimSpace(c.GraphBaseURL), "/")
	if c.GraphBaseURL == "" {
		c.GraphBaseURL = defaults.GraphBaseURL
	}
	c.APIVersion = strings.Trim(strings.TrimSpace(c.APIVersion), "/")
	if c.APIVersion == "" {
		c.APIVersion = defaults.APIVersion
	}
	c.AppSecret = strings.TrimSpace(c.AppSecret)
	if c.RequestsPerSecond == 0 {
		c.RequestsPerSecond = defaults.RequestsPerSecond
	}
	if c.Burst == 0 {
		c.Burst = defaults.Burst
	}
	if c.AccountLimit <= 0 {
		c.AccountLimit = defaults.AccountLimit
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = defaults.RequestTimeout
	}
	return c
}

func (c Config) Validate() error {
	parsed, err := url.Parse(c.GraphBaseURL)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return fmt.Errorf("providers/meta: graph_base_url must be an absolute url")
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("providers/meta: requests_per_second must not be negative")
	}
	if c.Burst < 0 {
		return fmt.Errorf("providers/meta: burst must not be negative")
	}
	return nil
}

func (c Config) adAccountsURL() string {
	return c.GraphBaseURL + "/" + c.APIVersion + "/me/adaccounts"
}
