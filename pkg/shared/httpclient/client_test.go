package httpclient

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/config"
)

func TestNewServerClientSendsIdentity(t *testing.T) {
	var user, pass, agent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ = r.BasicAuth()
		agent = r.UserAgent()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewServerClient(hclog.NewNullLogger(), nil, Target{BaseURL: srv.URL + "/", Username: "admin", Password: "secret"})
	resp, err := c.R().Get("/api/system/status")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Equal(t, "admin", user)
	assert.Equal(t, "secret", pass)
	assert.Equal(t, UserAgent, agent)
}

func TestNewServerClientRetriesGatewayErrors(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	cfg := &config.Config{HTTPClient: config.HTTPClient{
		RetryCount:       3,
		RetryWaitTime:    time.Millisecond,
		RetryMaxWaitTime: 5 * time.Millisecond,
	}}
	c := NewServerClient(nil, cfg, Target{BaseURL: srv.URL})
	resp, err := c.R().Get("/")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestApplyHTTPClientConfig(t *testing.T) {
	def := applyHTTPClientConfig(nil)
	assert.Equal(t, config.DefaultRestyConfig().Timeout, def.Timeout)
	assert.Empty(t, def.Proxy)

	verify := false
	got := applyHTTPClientConfig(&config.HTTPClient{
		Timeout:         time.Minute,
		TLSClientConfig: config.TLSClientConfig{Verify: &verify},
		Proxy:           config.Proxy{Host: "proxy.local", Port: 3128},
	})
	assert.Equal(t, time.Minute, got.Timeout)
	assert.True(t, got.TLSClientConfig.InsecureSkipVerify)
	assert.Equal(t, "proxy.local:3128", got.Proxy)
}
