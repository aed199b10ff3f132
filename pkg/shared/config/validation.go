package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// ValidateConfig checks if the global configurations have valid values.
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("YAML global config: configuration object is nil")
	}
	if err := ValidateHTTPConfig(&cfg.HTTPClient); err != nil {
		return fmt.Errorf("YAML global config: http_client directive is invalid: %w", err)
	}
	if err := ValidateSonarConfig(&cfg.Sonar); err != nil {
		return fmt.Errorf("YAML global config: sonar directive is invalid: %w", err)
	}
	if err := ValidateServerUser(&cfg.Server.Local); err != nil {
		return fmt.Errorf("YAML global config: server.local directive is invalid: %w", err)
	}
	if cfg.Server.Common != nil {
		if err := ValidateServerUser(cfg.Server.Common); err != nil {
			return fmt.Errorf("YAML global config: server.common directive is invalid: %w", err)
		}
	}
	return nil
}

// ValidateHTTPConfig checks if the HTTP configurations have valid values.
func ValidateHTTPConfig(httpConfig *HTTPClient) error {
	if httpConfig == nil {
		return fmt.Errorf("HTTP configuration is nil")
	}
	if httpConfig.RetryCount < 0 || httpConfig.RetryCount > 20 {
		return fmt.Errorf("retry_count must be between 0 and 20: %d", httpConfig.RetryCount)
	}
	if httpConfig.RequestsPerSecond < 0 {
		return fmt.Errorf("requests_per_second cannot be negative: %v", httpConfig.RequestsPerSecond)
	}

	durations := map[string]time.Duration{
		"RetryMaxWaitTime": httpConfig.RetryMaxWaitTime,
		"RetryWaitTime":    httpConfig.RetryWaitTime,
		"Timeout":          httpConfig.Timeout,
	}
	for name, duration := range durations {
		if err := validateDuration(duration, name, 100*time.Second); err != nil {
			return err
		}
	}

	if err := validateProxy(&httpConfig.Proxy); err != nil {
		return err
	}

	return nil
}

// ValidateSonarConfig checks the wait-phase tuning values.
func ValidateSonarConfig(sonar *Sonar) error {
	if sonar == nil {
		return fmt.Errorf("sonar configuration is nil")
	}
	if err := validateDuration(sonar.Timeout, "timeout", 24*time.Hour); err != nil {
		return err
	}
	if err := validateDuration(sonar.PollInterval, "poll_interval", 10*time.Minute); err != nil {
		return err
	}
	if sonar.CreateRetries < 0 {
		return fmt.Errorf("create_retries cannot be negative: %d", sonar.CreateRetries)
	}
	return nil
}

// ValidateServerUser checks a server connection block.
func ValidateServerUser(user *ServerUser) error {
	if user == nil {
		return fmt.Errorf("server configuration is nil")
	}
	if user.URL == "" {
		return fmt.Errorf("url must be set")
	}
	if err := validateHost(&user.URL); err != nil {
		return err
	}
	if err := validatePort(user.Port); err != nil {
		return err
	}
	if user.BasePath != "" && !strings.HasPrefix(user.BasePath, "/") {
		return fmt.Errorf("base_path must start with '/': %q", user.BasePath)
	}
	if user.Username == "" {
		return fmt.Errorf("username (or token) must be set")
	}
	return nil
}

// validateDuration checks that a time.Duration is valid and within a specified maximum duration.
func validateDuration(d time.Duration, name string, max time.Duration) error {
	if d < 0 {
		return fmt.Errorf("invalid duration for %q: %v cannot be negative", name, d)
	}
	if d > max {
		return fmt.Errorf("%q duration is too long: %v exceeds maximum of %v", name, d, max)
	}
	return nil
}

// validateProxy checks if the given Proxy settings are valid.
func validateProxy(proxy *Proxy) error {
	if proxy == nil {
		return fmt.Errorf("proxy configuration is nil")
	}

	// If host or port is not set, skip further validation
	if proxy.Host == "" || proxy.Port == 0 {
		return nil
	}

	if err := validateHost(&proxy.Host); err != nil {
		return err
	}

	if err := validatePort(proxy.Port); err != nil {
		return err
	}

	return nil
}

// validateHost checks if the host is a valid URL.
// It ensures the host includes a scheme; adds "http" if missing.
func validateHost(host *string) error {
	if host == nil {
		return fmt.Errorf("host string pointer is nil")
	}

	if !strings.Contains(*host, "://") {
		*host = "http://" + *host
	}
	*host = strings.TrimRight(*host, "/")

	_, err := url.Parse(*host)
	if err != nil {
		return fmt.Errorf("invalid host URL: %w", err)
	}

	return nil
}

// validatePort checks if the port is valid.
func validatePort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}
	return nil
}
