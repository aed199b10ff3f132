//go:build !windows

package server

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/procsup"
	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/retry"
	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/sqapi/sqapitest"
	"github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/config"
	errs "github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/errors"
)

func userFor(t *testing.T, rawURL, projectKey string) config.ServerUser {
	t.Helper()
	u, err := url.Parse(rawURL)
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(u.Host)
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return config.ServerUser{
		URL:        u.Scheme + "://" + host,
		Port:       port,
		Username:   "admin",
		Password:   "admin",
		ProjectKey: projectKey,
	}
}

func testConfig(timeout, poll time.Duration) *config.Config {
	return &config.Config{
		Sonar: config.Sonar{
			Timeout:       timeout,
			PollInterval:  poll,
			CreateRetries: 5,
		},
	}
}

func startScript(script string) func() (procsup.Command, error) {
	return func() (procsup.Command, error) {
		return procsup.Command{Name: "sh", Args: []string{"-c", script}}, nil
	}
}

// stubStale replaces the command line lookup and counts its calls.
func stubStale(l *Lifecycle) *int32 {
	var calls int32
	l.findStale = func() ([]int, error) {
		atomic.AddInt32(&calls, 1)
		return nil, nil
	}
	return &calls
}

func TestReadyAfterExactlyNPolls(t *testing.T) {
	srv := sqapitest.New()
	defer srv.Close()
	srv.StatusSequence = []string{"STARTING", "STARTING", "DB_MIGRATION_RUNNING", "UP"}

	cfg := testConfig(time.Minute, 5*time.Second)
	common := userFor(t, srv.URL, "shared")
	cfg.Server.Common = &common
	clock := retry.NewManualClock(time.Unix(0, 0))

	l := New(hclog.NewNullLogger(), cfg, &config.Env{ServerModel: "COMMON"}, "42", clock)
	require.NoError(t, l.Start(context.Background()))
	require.NoError(t, l.WaitReady(context.Background()))

	assert.Equal(t, 4, srv.StatusCalls())
	assert.Equal(t, StateUp, l.State())
	assert.Equal(t, ModelCommon, l.Endpoint().Model)
	assert.Equal(t, "shared_42", l.Endpoint().ProjectKey)
	assert.Len(t, clock.Sleeps(), 4)
}

func TestReadinessTimeout(t *testing.T) {
	srv := sqapitest.New()
	defer srv.Close()
	srv.StatusSequence = []string{"STARTING"}

	timeout, poll := 30*time.Second, 5*time.Second
	cfg := testConfig(timeout, poll)
	common := userFor(t, srv.URL, "shared")
	cfg.Server.Common = &common
	start := time.Unix(0, 0)
	clock := retry.NewManualClock(start)

	l := New(hclog.NewNullLogger(), cfg, &config.Env{ServerModel: "COMMON"}, "42", clock)
	require.NoError(t, l.Start(context.Background()))
	err := l.WaitReady(context.Background())

	require.Error(t, err)
	assert.True(t, errs.IsTimeout(err))
	assert.LessOrEqual(t, clock.Now().Sub(start), timeout+poll)
	assert.Equal(t, StateFailed, l.State())
}

func TestLocalServerReadyMarker(t *testing.T) {
	srv := sqapitest.New()
	defer srv.Close()
	srv.StatusSequence = []string{"UP"}

	cfg := testConfig(10*time.Second, 20*time.Millisecond)
	cfg.Server.Local = userFor(t, srv.URL, "test")

	l := New(hclog.NewNullLogger(), cfg, &config.Env{}, "42", nil)
	l.startCommand = startScript("sleep 0.2; echo 'app[][o.s.a.SchedulerImpl] SonarQube is up'; sleep 30")
	stale := stubStale(l)

	require.NoError(t, l.Start(context.Background()))
	require.NoError(t, l.WaitReady(context.Background()))

	assert.Equal(t, ModelLocal, l.Endpoint().Model)
	assert.Equal(t, "test", l.Endpoint().ProjectKey)
	assert.GreaterOrEqual(t, srv.StatusCalls(), 1)

	// the owned handle is enough to stop the server
	l.Teardown()
	<-l.handle.Done()
	assert.EqualValues(t, 1, atomic.LoadInt32(stale))
}

func TestFatalLineFailsOverToCommon(t *testing.T) {
	local := sqapitest.New()
	defer local.Close()
	local.StatusSequence = []string{"STARTING"}
	shared := sqapitest.New()
	defer shared.Close()
	shared.StatusSequence = []string{"UP"}

	cfg := testConfig(10*time.Second, 20*time.Millisecond)
	cfg.Server.Local = userFor(t, local.URL, "test")
	common := userFor(t, shared.URL, "shared")
	cfg.Server.Common = &common

	l := New(hclog.NewNullLogger(), cfg, &config.Env{}, "7", nil)
	l.startCommand = startScript("echo 'fatal error, unable to load plugins'; sleep 30")
	stale := stubStale(l)
	defer l.Teardown()

	require.NoError(t, l.Start(context.Background()))
	require.NoError(t, l.WaitReady(context.Background()))

	assert.Equal(t, ModelCommon, l.Endpoint().Model)
	assert.Equal(t, "shared_7", l.Endpoint().ProjectKey)
	assert.GreaterOrEqual(t, shared.StatusCalls(), 1)

	select {
	case <-l.handle.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("local server was not killed after failover")
	}

	// a shared server reachable on this host must survive the teardown
	l.Teardown()
	assert.EqualValues(t, 1, atomic.LoadInt32(stale))
}

func TestTeardownWithLostHandleMatchesCommandLine(t *testing.T) {
	home := t.TempDir()
	conf := filepath.Join(home, "conf", "sonar.properties")
	require.NoError(t, os.MkdirAll(filepath.Dir(conf), 0o755))
	require.NoError(t, os.WriteFile(conf, []byte("sonar.web.port=9000"), 0o644))
	patch, err := applyServerParams(home, []string{"sonar.web.javaOpts=-Xmx1g"})
	require.NoError(t, err)

	l := New(hclog.NewNullLogger(), testConfig(time.Second, 10*time.Millisecond), &config.Env{}, "7", nil)
	stale := stubStale(l)
	l.props = patch

	l.Teardown()
	assert.EqualValues(t, 1, atomic.LoadInt32(stale))
	assert.NoFileExists(t, conf+".temp")

	l.Teardown()
	assert.EqualValues(t, 1, atomic.LoadInt32(stale))
}

func TestFatalLineWithoutCommonFails(t *testing.T) {
	local := sqapitest.New()
	defer local.Close()
	local.StatusSequence = []string{"STARTING"}

	cfg := testConfig(10*time.Second, 20*time.Millisecond)
	cfg.Server.Local = userFor(t, local.URL, "test")

	l := New(hclog.NewNullLogger(), cfg, &config.Env{}, "7", nil)
	l.startCommand = startScript("echo 'java.lang.IllegalStateException: SonarQube requires Java 11 to run'; sleep 30")
	stubStale(l)
	defer l.Teardown()

	require.NoError(t, l.Start(context.Background()))
	begin := time.Now()
	err := l.WaitReady(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires Java 11")
	assert.Equal(t, errs.KindGeneric, errs.KindOf(err))
	assert.Equal(t, StateFailed, l.State())
	assert.Less(t, time.Since(begin), 10*time.Second)
}

func TestStartTwiceFails(t *testing.T) {
	srv := sqapitest.New()
	defer srv.Close()
	cfg := testConfig(time.Minute, time.Second)
	common := userFor(t, srv.URL, "shared")
	cfg.Server.Common = &common

	l := New(hclog.NewNullLogger(), cfg, &config.Env{ServerModel: "common"}, "1", retry.NewManualClock(time.Unix(0, 0)))
	require.NoError(t, l.Start(context.Background()))
	assert.Error(t, l.Start(context.Background()))
}

func TestCreateProjectTwice(t *testing.T) {
	srv := sqapitest.New()
	defer srv.Close()
	cfg := testConfig(time.Minute, time.Second)
	cfg.Server.Local = userFor(t, srv.URL, "test")

	l := New(hclog.NewNullLogger(), cfg, &config.Env{}, "1", retry.NewManualClock(time.Unix(0, 0)))
	require.NoError(t, l.CreateProject(context.Background()))
	require.NoError(t, l.CreateProject(context.Background()))

	assert.True(t, srv.HasProject("test"))
	assert.Equal(t, 2, srv.CreateCalls())
}

func TestCreateProjectRetriesClientErrors(t *testing.T) {
	srv := sqapitest.New()
	defer srv.Close()
	srv.CreateStatuses = []int{http.StatusNotFound, http.StatusConflict}
	cfg := testConfig(time.Minute, time.Second)
	cfg.Server.Local = userFor(t, srv.URL, "test")
	clock := retry.NewManualClock(time.Unix(0, 0))

	l := New(hclog.NewNullLogger(), cfg, &config.Env{}, "1", clock)
	require.NoError(t, l.CreateProject(context.Background()))

	assert.Equal(t, 3, srv.CreateCalls())
	assert.Equal(t, []time.Duration{time.Second, time.Second}, clock.Sleeps())
}

func TestCreateProjectBudgetExhausted(t *testing.T) {
	srv := sqapitest.New()
	defer srv.Close()
	srv.CreateStatuses = []int{404, 404, 404, 404, 404, 404, 404, 404}
	cfg := testConfig(time.Hour, time.Second)
	cfg.Sonar.CreateRetries = 3
	cfg.Server.Local = userFor(t, srv.URL, "test")

	l := New(hclog.NewNullLogger(), cfg, &config.Env{}, "1", retry.NewManualClock(time.Unix(0, 0)))
	err := l.CreateProject(context.Background())

	require.Error(t, err)
	assert.Equal(t, errs.KindGeneric, errs.KindOf(err))
	assert.Contains(t, err.Error(), "exceeded 3 retries")
	assert.Equal(t, 4, srv.CreateCalls())
}

func TestCreateProjectAuthIsFatal(t *testing.T) {
	srv := sqapitest.New()
	defer srv.Close()
	srv.CreateStatuses = []int{http.StatusUnauthorized}
	cfg := testConfig(time.Minute, time.Second)
	cfg.Server.Local = userFor(t, srv.URL, "test")

	l := New(hclog.NewNullLogger(), cfg, &config.Env{}, "1", retry.NewManualClock(time.Unix(0, 0)))
	err := l.CreateProject(context.Background())

	require.Error(t, err)
	assert.True(t, errs.IsAuth(err))
	assert.Equal(t, 1, srv.CreateCalls())
}

func TestDebtSettings(t *testing.T) {
	srv := sqapitest.New()
	defer srv.Close()
	cfg := testConfig(time.Minute, time.Second)
	cfg.Server.Local = userFor(t, srv.URL, "test")

	l := New(hclog.NewNullLogger(), cfg, &config.Env{DevCost: "60"}, "1", nil)
	require.NoError(t, l.ApplyDebtSettings(context.Background()))
	l.RestoreDebtSettings(context.Background())

	settings := srv.Settings()
	require.Len(t, settings, 2)
	assert.Equal(t, SettingDevelopmentCost, settings[0].Get("key"))
	assert.Equal(t, "60", settings[0].Get("value"))
	assert.Equal(t, "30", settings[1].Get("value"))
}

func TestDebtSettingsUntouchedWithoutOverrides(t *testing.T) {
	srv := sqapitest.New()
	defer srv.Close()
	cfg := testConfig(time.Minute, time.Second)
	cfg.Server.Local = userFor(t, srv.URL, "test")

	l := New(hclog.NewNullLogger(), cfg, &config.Env{}, "1", nil)
	require.NoError(t, l.ApplyDebtSettings(context.Background()))
	l.RestoreDebtSettings(context.Background())

	assert.Empty(t, srv.Settings())
}

func TestServerParamsBackupAndRestore(t *testing.T) {
	home := t.TempDir()
	conf := filepath.Join(home, "conf", "sonar.properties")
	require.NoError(t, os.MkdirAll(filepath.Dir(conf), 0o755))
	require.NoError(t, os.WriteFile(conf, []byte("sonar.web.port=9000"), 0o644))

	patch, err := applyServerParams(home, []string{"sonar.search.javaOpts=-Xmx2g", "sonar.web.javaOpts=-Xmx1g"})
	require.NoError(t, err)

	data, err := os.ReadFile(conf)
	require.NoError(t, err)
	assert.Equal(t, "sonar.web.port=9000\nsonar.search.javaOpts=-Xmx2g\nsonar.web.javaOpts=-Xmx1g\n", string(data))

	require.NoError(t, patch.restore())
	data, err = os.ReadFile(conf)
	require.NoError(t, err)
	assert.Equal(t, "sonar.web.port=9000", string(data))
	assert.NoFileExists(t, conf+".temp")
}

func TestServerParamsMissingHome(t *testing.T) {
	_, err := applyServerParams(filepath.Join(t.TempDir(), "absent"), []string{"a=b"})
	var ce *errs.ConfigError
	assert.ErrorAs(t, err, &ce)
}

func TestLogMatcherClassify(t *testing.T) {
	m := newLogMatcher()
	tests := []struct {
		line    string
		event   logEvent
		pattern string
	}{
		{"2024.01.01 INFO app[][o.s.a.SchedulerImpl] SonarQube is up", eventReady, ReadyMarker},
		{"2024.01.01 INFO app[][o.s.a.SchedulerImpl] SonarQube is stopped", eventFatal, "app[][o.s.a.SchedulerImpl] SonarQube is stopped"},
		{"sudo: sorry, you must have a tty to run sudo", eventFatal, "sudo: sorry, you must have a tty to run sudo"},
		{"ERROR fatal error, unable to load plugins", eventFatal, "fatal error, unable to load plugins"},
		{"INFO web[][o.s.s.p.Platform] Web Server is operational", eventNone, ""},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			event, pattern := m.classify(tt.line)
			assert.Equal(t, tt.event, event)
			assert.Equal(t, tt.pattern, pattern)
		})
	}
}

func TestEndpoints(t *testing.T) {
	u := config.ServerUser{URL: "https://sonar.example.com/", Port: 443, BasePath: "/sonar", Username: "tok", ProjectKey: "shared"}

	local := LocalEndpoint(config.DefaultLocalUser())
	assert.Equal(t, "http://localhost:9000", local.BaseURL())
	assert.Equal(t, "test", local.ProjectKey)

	common := CommonEndpoint(u, "99")
	assert.Equal(t, "https://sonar.example.com:443/sonar", common.BaseURL())
	assert.Equal(t, "shared_99", common.ProjectKey)
	assert.Equal(t, "", common.Credentials().Password)
}

func TestAddNoProxy(t *testing.T) {
	t.Setenv("no_proxy", "example.com")
	addNoProxy("localhost")
	addNoProxy("localhost")
	assert.Equal(t, "example.com,localhost", os.Getenv("no_proxy"))
}
