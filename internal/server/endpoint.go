package server

import (
	"fmt"
	"strings"

	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/sqapi"
	"github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/config"
)

// Model tells whether the run owns a local server or uses a shared one.
type Model string

const (
	ModelLocal  Model = "LOCAL"
	ModelCommon Model = "COMMON"
)

// Endpoint is the server a run talks to.
type Endpoint struct {
	Model      Model
	URL        string
	Port       int
	BasePath   string
	Username   string
	Password   string
	ProjectKey string
}

// LocalEndpoint builds the endpoint of the server the run may start itself.
func LocalEndpoint(u config.ServerUser) Endpoint {
	return Endpoint{
		Model:      ModelLocal,
		URL:        u.URL,
		Port:       u.Port,
		BasePath:   u.BasePath,
		Username:   u.Username,
		Password:   u.Password,
		ProjectKey: u.ProjectKey,
	}
}

// CommonEndpoint builds the shared server endpoint. Each project gets its own
// key on the shared server.
func CommonEndpoint(u config.ServerUser, projectID string) Endpoint {
	return Endpoint{
		Model:      ModelCommon,
		URL:        u.URL,
		Port:       u.Port,
		BasePath:   u.BasePath,
		Username:   u.Username,
		Password:   u.Password,
		ProjectKey: fmt.Sprintf("%s_%s", u.ProjectKey, projectID),
	}
}

// BaseURL is the server root including port and path prefix.
func (e Endpoint) BaseURL() string {
	base := strings.TrimRight(e.URL, "/")
	if e.Port > 0 {
		base = fmt.Sprintf("%s:%d", base, e.Port)
	}
	return base + e.BasePath
}

// Credentials returns the API credentials. Without a password the username
// is a token.
func (e Endpoint) Credentials() sqapi.Credentials {
	return sqapi.Credentials{Username: e.Username, Password: e.Password}
}
