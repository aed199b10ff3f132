// Package httpclient builds the resty clients used to reach analysis servers.
package httpclient

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-hclog"

	"github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/config"
)

// UserAgent identifies the runner to the server.
const UserAgent = "sqrun"

type hclogAdapter struct {
	logger hclog.Logger
}

func (a *hclogAdapter) Errorf(format string, v ...interface{}) {
	a.logger.Error(fmt.Sprintf(format, v...))
}

func (a *hclogAdapter) Warnf(format string, v ...interface{}) {
	a.logger.Warn(fmt.Sprintf(format, v...))
}

func (a *hclogAdapter) Debugf(format string, v ...interface{}) {
	a.logger.Debug(fmt.Sprintf(format, v...))
}

// Target is the server a client is bound to.
type Target struct {
	BaseURL  string
	Username string
	Password string
}

// NewServerClient returns a client bound to target with the transport
// settings of cfg. cfg may be nil.
func NewServerClient(logger hclog.Logger, cfg *config.Config, target Target) *resty.Client {
	client := resty.New()
	if logger != nil {
		client.SetLogger(&hclogAdapter{logger: logger})
	}

	var httpConfig *config.HTTPClient
	if cfg != nil {
		httpConfig = &cfg.HTTPClient
	}
	rc := applyHTTPClientConfig(httpConfig)
	client.
		SetDebug(rc.Debug).
		SetRetryCount(rc.RetryCount).
		SetRetryWaitTime(rc.RetryWaitTime).
		SetRetryMaxWaitTime(rc.RetryMaxWaitTime).
		SetTimeout(rc.Timeout).
		SetTLSClientConfig(rc.TLSClientConfig).
		AddRetryCondition(retryGateway)
	if rc.Proxy != "" {
		client.SetProxy(rc.Proxy)
	}

	client.
		SetBaseURL(strings.TrimRight(target.BaseURL, "/")).
		SetBasicAuth(target.Username, target.Password).
		SetHeader("Accept", "application/json").
		SetHeader("User-Agent", UserAgent)
	return client
}

// retryGateway retries while a proxy in front of a restarting server
// answers for it.
func retryGateway(r *resty.Response, err error) bool {
	if err != nil || r == nil {
		return false
	}
	switch r.StatusCode() {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

func applyHTTPClientConfig(httpConfig *config.HTTPClient) config.RestyHTTPClientConfig {
	cfg := config.DefaultRestyConfig()
	if httpConfig == nil {
		return cfg
	}

	cfg.Debug = config.GetBoolValue(httpConfig, "Debug", cfg.Debug)
	cfg.RetryCount = config.SetThen(httpConfig.RetryCount, cfg.RetryCount)
	cfg.RetryWaitTime = config.SetThen(httpConfig.RetryWaitTime, cfg.RetryWaitTime)
	cfg.RetryMaxWaitTime = config.SetThen(httpConfig.RetryMaxWaitTime, cfg.RetryMaxWaitTime)
	cfg.Timeout = config.SetThen(httpConfig.Timeout, cfg.Timeout)
	cfg.TLSClientConfig.InsecureSkipVerify = !config.GetBoolValue(httpConfig.TLSClientConfig, "Verify", true)

	if httpConfig.Proxy.Host != "" && httpConfig.Proxy.Port != 0 {
		cfg.Proxy = fmt.Sprintf("%s:%d", httpConfig.Proxy.Host, httpConfig.Proxy.Port)
	}
	return cfg
}
