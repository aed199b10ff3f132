// Package sqapi is the REST client for the analysis server web API.
package sqapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/time/rate"

	"github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/config"
	errs "github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/errors"
	"github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/httpclient"
)

// Credentials authenticate every request. A token is sent as Username with an
// empty Password.
type Credentials struct {
	Username string
	Password string
}

// Client talks to one analysis server.
type Client struct {
	httpc   *resty.Client
	limiter *rate.Limiter
	logger  hclog.Logger
	baseURL string
}

// New creates a client for baseURL, which already carries port and path prefix.
func New(logger hclog.Logger, cfg *config.Config, baseURL string, creds Credentials) *Client {
	httpc := httpclient.NewServerClient(logger, cfg, httpclient.Target{
		BaseURL:  baseURL,
		Username: creds.Username,
		Password: creds.Password,
	})

	rps := config.DefaultRequestsPerSecond
	if cfg != nil {
		rps = config.SetThen(cfg.HTTPClient.RequestsPerSecond, rps)
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}

	return &Client{
		httpc:   httpc,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  logger,
		baseURL: baseURL,
	}
}

// BaseURL returns the server root the client was created for.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type apiErrors struct {
	Errors []struct {
		Msg string `json:"msg"`
	} `json:"errors"`
}

func (c *Client) newRequest(ctx context.Context) (*resty.Request, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	return c.httpc.R().SetContext(ctx), nil
}

// call executes one request. GET parameters go to the query string, POST
// parameters to a form body. result may be nil.
func (c *Client) call(ctx context.Context, method, endpoint string, params map[string]string, result interface{}) error {
	req, err := c.newRequest(ctx)
	if err != nil {
		return err
	}
	if method == http.MethodGet {
		req.SetQueryParams(params)
	} else if len(params) > 0 {
		req.SetFormData(params)
	}
	if result != nil {
		req.SetResult(result)
	}
	return c.execute(req, method, endpoint)
}

func (c *Client) execute(req *resty.Request, method, endpoint string) error {
	resp, err := req.Execute(method, endpoint)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, endpoint, err)
	}
	c.logger.Trace("api call", "method", method, "endpoint", endpoint, "status", resp.StatusCode())
	return checkResponse(endpoint, resp)
}

// checkResponse classifies non-successful responses into typed errors.
func checkResponse(endpoint string, resp *resty.Response) error {
	class := errs.ClassifyStatus(resp.StatusCode())
	if class == "" {
		return nil
	}

	msg := http.StatusText(resp.StatusCode())
	if class == errs.ClassValidation {
		var body apiErrors
		if err := json.Unmarshal(resp.Body(), &body); err == nil && len(body.Errors) > 0 {
			msgs := make([]string, 0, len(body.Errors))
			for _, e := range body.Errors {
				msgs = append(msgs, e.Msg)
			}
			msg = strings.Join(msgs, ", ")
		}
	}
	return &errs.HTTPError{
		Class:      class,
		StatusCode: resp.StatusCode(),
		Endpoint:   endpoint,
		Message:    msg,
	}
}
