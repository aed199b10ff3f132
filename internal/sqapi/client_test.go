package sqapi_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/sqapi"
	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/sqapi/sqapitest"
	errs "github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/errors"
)

func newClient(url string) *sqapi.Client {
	return sqapi.New(hclog.NewNullLogger(), nil, url, sqapi.Credentials{Username: "admin", Password: "admin"})
}

func TestStatusClassification(t *testing.T) {
	tests := []struct {
		code    int
		body    string
		check   func(error) bool
		wantMsg string
	}{
		{http.StatusBadRequest, `{"errors":[{"msg":"a"},{"msg":"b"}]}`, errs.IsValidation, "validation error on /api/projects/create (400): a, b"},
		{http.StatusUnauthorized, ``, errs.IsAuth, "auth error on /api/projects/create (401): Unauthorized"},
		{http.StatusForbidden, ``, errs.IsAuth, "auth error on /api/projects/create (403): Forbidden"},
		{http.StatusNotFound, ``, errs.IsClient, "client error on /api/projects/create (404): Not Found"},
		{http.StatusBadGateway, ``, errs.IsServer, "server error on /api/projects/create (502): Bad Gateway"},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			r := chi.NewRouter()
			r.Post("/api/projects/create", func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.code)
				_, _ = w.Write([]byte(tt.body))
			})
			srv := httptest.NewServer(r)
			defer srv.Close()

			err := newClient(srv.URL).CreateProject(context.Background(), "p", "p")
			require.Error(t, err)
			assert.True(t, tt.check(err))
			assert.EqualError(t, err, tt.wantMsg)
		})
	}
}

func TestBasicAuthAndPathPrefix(t *testing.T) {
	r := chi.NewRouter()
	r.Get("/sonar/api/system/status", func(w http.ResponseWriter, req *http.Request) {
		user, pass, ok := req.BasicAuth()
		if !ok || user != "token123" || pass != "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"UP","version":"8.9"}`))
	})
	srv := httptest.NewServer(r)
	defer srv.Close()

	c := sqapi.New(hclog.NewNullLogger(), nil, srv.URL+"/sonar/", sqapi.Credentials{Username: "token123"})
	status, err := c.SystemStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, sqapi.StatusUp, status.Status)
}

func TestSearchIssuesPaginates(t *testing.T) {
	fake := sqapitest.New()
	defer fake.Close()
	fake.PageSize = 2
	for i := 0; i < 5; i++ {
		fake.Issues = append(fake.Issues, sqapi.Issue{Key: fmt.Sprint(i), Rule: "java:S100"})
	}

	issues, err := newClient(fake.URL).SearchIssues(context.Background(), sqapi.IssueQuery{
		Languages:     []string{"JAVA", "jsp"},
		ComponentKeys: "proj",
		Rules:         []string{"java:S100", "java:S101"},
	})
	require.NoError(t, err)
	assert.Len(t, issues, 5)

	queries := fake.IssueQueries()
	require.Len(t, queries, 3)
	assert.Equal(t, "java,jsp", queries[0].Get("languages"))
	assert.Equal(t, "proj", queries[0].Get("componentKeys"))
	assert.Equal(t, "java:S100,java:S101", queries[0].Get("rules"))
	assert.Empty(t, queries[0].Get("p"))
	assert.Equal(t, "2", queries[1].Get("p"))
	assert.Equal(t, "3", queries[2].Get("p"))
}

func TestSearchIssuesPartialOnValidationError(t *testing.T) {
	fake := sqapitest.New()
	defer fake.Close()
	fake.PageSize = 1
	fake.IssuesFailAtPage = 2
	fake.Issues = []sqapi.Issue{{Key: "a"}, {Key: "b"}, {Key: "c"}}

	issues, err := newClient(fake.URL).SearchIssues(context.Background(), sqapi.IssueQuery{})
	assert.True(t, errs.IsValidation(err))
	require.Len(t, issues, 1)
	assert.Equal(t, "a", issues[0].Key)
	assert.Empty(t, fake.IssueQueries()[0].Get("rules"))
}

func TestRestoreAndAssociate(t *testing.T) {
	fake := sqapitest.New()
	defer fake.Close()

	path := filepath.Join(t.TempDir(), "java_SonarQube_Profile.xml")
	require.NoError(t, os.WriteFile(path, []byte("<profile/>"), 0o644))

	c := newClient(fake.URL)
	require.NoError(t, c.RestoreProfile(context.Background(), path))
	require.NoError(t, c.AddProjectToProfile(context.Background(), "proj", "Java", "TCA"))

	assert.Equal(t, []string{"<profile/>"}, fake.Restored())
	assert.Equal(t, []sqapitest.Association{{Project: "proj", Language: "java", Profile: "TCA"}}, fake.Associations())
}

func TestCETaskAndMeasures(t *testing.T) {
	fake := sqapitest.New()
	defer fake.Close()
	fake.TaskSequence = []sqapi.Task{{Status: sqapi.TaskFailed, ErrorMessage: "Java heap space"}}
	fake.Measures.Component.Measures = []sqapi.Measure{{Metric: "ncloc", Value: "120"}}

	c := newClient(fake.URL)
	task, err := c.CETask(context.Background(), "AX1")
	require.NoError(t, err)
	assert.Equal(t, "AX1", task.ID)
	assert.Equal(t, sqapi.TaskFailed, task.Status)
	assert.Equal(t, "Java heap space", task.ErrorMessage)

	m, err := c.ComponentMeasures(context.Background(), "proj", []string{"ncloc"}, "metrics,periods")
	require.NoError(t, err)
	require.Len(t, m.Component.Measures, 1)
	assert.Equal(t, "120", m.Component.Measures[0].Value.String())
}
