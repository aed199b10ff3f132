package config

import (
	"crypto/tls"
	"time"
)

const (
	// DefaultTimeout bounds every wait phase (server up, project create, task completion).
	DefaultTimeout = 300 * time.Second
	// DefaultPollInterval is the sleep between two polls of the server.
	DefaultPollInterval = 5 * time.Second
	// DefaultCreateRetries is the project creation retry budget for generic client errors.
	DefaultCreateRetries = 5
	// DefaultRequestsPerSecond caps outbound API calls.
	DefaultRequestsPerSecond float64 = 10
)

// BaseHTTPConfig holds common HTTP client configuration settings.
type BaseHTTPConfig struct {
	RetryCount       int           // Number of retries for failed requests
	RetryWaitTime    time.Duration // Wait time between retries
	RetryMaxWaitTime time.Duration // Maximum wait time for retries
	Timeout          time.Duration // Timeout for requests
	TLSClientConfig  *tls.Config   // TLS configuration
	Proxy            string        // Proxy address
}

// RestyHTTPClientConfig holds additional configuration settings for the Resty HTTP client.
type RestyHTTPClientConfig struct {
	BaseHTTPConfig
	Debug bool // Flag to enable Resty debug mode
}

// DefaultHTTPConfig returns a base configuration for HTTP clients with default values.
func DefaultHTTPConfig() BaseHTTPConfig {
	return BaseHTTPConfig{
		RetryCount:       0,
		RetryWaitTime:    1 * time.Second,
		RetryMaxWaitTime: 5 * time.Second,
		Timeout:          30 * time.Second,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: false,
		},
		Proxy: "",
	}
}

// DefaultRestyConfig returns a default configuration for the Resty HTTP client, extending the base HTTP configuration.
func DefaultRestyConfig() RestyHTTPClientConfig {
	baseConfig := DefaultHTTPConfig()
	return RestyHTTPClientConfig{
		BaseHTTPConfig: baseConfig,
		Debug:          false,
	}
}

// DefaultLocalUser returns the credentials of a freshly installed local server.
func DefaultLocalUser() ServerUser {
	return ServerUser{
		URL:        "http://localhost",
		Port:       9000,
		BasePath:   "",
		Username:   "admin",
		Password:   "admin",
		ProjectKey: "test",
	}
}
