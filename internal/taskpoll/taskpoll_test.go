package taskpoll

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/retry"
	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/sqapi"
	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/sqapi/sqapitest"
	errs "github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/errors"
)

func writeReport(t *testing.T, id string) string {
	t.Helper()
	content := "projectKey=demo\n" +
		"serverUrl=http://localhost:9000\n" +
		"serverVersion=8.9.8\n" +
		"dashboardUrl=http://localhost:9000/dashboard?id=demo\n" +
		"ceTaskId=" + id + "\n" +
		"ceTaskUrl=http://localhost:9000/api/ce/task?id=" + id + "\n"
	path := filepath.Join(t.TempDir(), "report-task.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func newPoller(srv *sqapitest.Server, clock retry.Clock, timeout time.Duration) *Poller {
	client := sqapi.New(hclog.NewNullLogger(), nil, srv.URL, sqapi.Credentials{Username: "admin", Password: "admin"})
	return New(hclog.NewNullLogger(), client, clock, 5*time.Second, timeout)
}

func TestReadTaskID(t *testing.T) {
	id, err := ReadTaskID(writeReport(t, "AX1"))
	require.NoError(t, err)
	assert.Equal(t, "AX1", id)

	short := filepath.Join(t.TempDir(), "short.txt")
	require.NoError(t, os.WriteFile(short, []byte("projectKey=demo\n"), 0o644))
	_, err = ReadTaskID(short)
	var ae *errs.AnalyzeTaskError
	assert.ErrorAs(t, err, &ae)

	_, err = ReadTaskID(filepath.Join(t.TempDir(), "absent.txt"))
	assert.ErrorAs(t, err, &ae)
}

func TestWaitSuccessQueriesTaskID(t *testing.T) {
	srv := sqapitest.New()
	defer srv.Close()
	srv.TaskSequence = []sqapi.Task{{Status: sqapi.TaskPending}, {Status: sqapi.TaskInProgress}, {Status: sqapi.TaskSuccess}}
	clock := retry.NewManualClock(time.Unix(0, 0))

	err := newPoller(srv, clock, time.Minute).Wait(context.Background(), writeReport(t, "AX1"))
	require.NoError(t, err)

	assert.Equal(t, []string{"AX1", "AX1", "AX1"}, srv.TaskIDs())
	assert.Equal(t, []time.Duration{5 * time.Second, 5 * time.Second, 5 * time.Second}, clock.Sleeps())
}

func TestWaitFailedHeap(t *testing.T) {
	srv := sqapitest.New()
	defer srv.Close()
	srv.TaskSequence = []sqapi.Task{{Status: sqapi.TaskFailed, ErrorMessage: "Java heap space"}}

	err := newPoller(srv, retry.NewManualClock(time.Unix(0, 0)), time.Minute).Wait(context.Background(), writeReport(t, "AX1"))

	require.Error(t, err)
	assert.Equal(t, errs.KindHeapExhausted, errs.KindOf(err))
	assert.Contains(t, err.Error(), "heap")
	assert.Len(t, srv.TaskIDs(), 1)
}

func TestWaitTimeout(t *testing.T) {
	srv := sqapitest.New()
	defer srv.Close()
	srv.TaskSequence = []sqapi.Task{{Status: sqapi.TaskInProgress}}
	start := time.Unix(0, 0)
	clock := retry.NewManualClock(start)
	timeout := 20 * time.Second

	err := newPoller(srv, clock, timeout).Wait(context.Background(), writeReport(t, "AX1"))

	require.Error(t, err)
	assert.True(t, errs.IsTimeout(err))
	assert.LessOrEqual(t, clock.Now().Sub(start), timeout+5*time.Second)
}

func TestWaitSurvivesTransientErrors(t *testing.T) {
	srv := sqapitest.New()
	defer srv.Close()
	// an empty status answers 404
	srv.TaskSequence = []sqapi.Task{{}, {}, {Status: sqapi.TaskSuccess}}

	err := newPoller(srv, retry.NewManualClock(time.Unix(0, 0)), time.Minute).Wait(context.Background(), writeReport(t, "AX2"))
	require.NoError(t, err)
	assert.Len(t, srv.TaskIDs(), 3)
}

func TestWaitCanceled(t *testing.T) {
	srv := sqapitest.New()
	defer srv.Close()
	srv.TaskSequence = []sqapi.Task{{Status: sqapi.TaskCanceled}}

	err := newPoller(srv, retry.NewManualClock(time.Unix(0, 0)), time.Minute).Wait(context.Background(), writeReport(t, "AX3"))
	require.Error(t, err)
	assert.Equal(t, errs.KindGeneric, errs.KindOf(err))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		message string
		want    errs.AnalyzeKind
	}{
		{"Load called twice for thread 'ce-worker-0' or state wasn't cleared last time it was used", errs.KindSchedulerRestart},
		{"Java heap space", errs.KindHeapExhausted},
		{"java heap space", errs.KindUnclassified},
		{"Unrecoverable indexation failures: 1 errors among 1 requests", errs.KindDiskSpace},
		{"prefix load called twice for thread 'x' or state wasn't cleared last time it was used", errs.KindUnclassified},
		{"", errs.KindUnclassified},
	}
	for _, tt := range tests {
		t.Run(tt.message, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.message))
		})
	}
}
