// Package taskpoll waits for the server side compute task of a scan.
package taskpoll

import (
	"bufio"
	"context"
	"errors"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/retry"
	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/sqapi"
	errs "github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/errors"
)

// taskIDLine is the zero based line of the report handle holding ceTaskId=<id>.
const taskIDLine = 4

var (
	schedulerRestart = regexp.MustCompile(`(?i)^load called twice for thread '.*' or state wasn't cleared last time it was used`)
)

const (
	heapExhausted = "Java heap space"
	diskPressure  = "Unrecoverable indexation failures: 1 errors among 1 requests"
)

// TaskAPI is the server capability the poller needs.
type TaskAPI interface {
	CETask(ctx context.Context, id string) (*sqapi.Task, error)
}

// Poller polls one compute task until it reaches a terminal state.
type Poller struct {
	logger   hclog.Logger
	api      TaskAPI
	clock    retry.Clock
	interval time.Duration
	timeout  time.Duration
}

func New(logger hclog.Logger, api TaskAPI, clock retry.Clock, interval, timeout time.Duration) *Poller {
	if clock == nil {
		clock = retry.SystemClock()
	}
	return &Poller{logger: logger, api: api, clock: clock, interval: interval, timeout: timeout}
}

// ReadTaskID returns the opaque task id of a report handle.
func ReadTaskID(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errs.NewAnalyzeTaskError(errs.PhaseTask, errs.KindGeneric, err, "report handle %s does not exist, check the scan log", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for n := 0; scanner.Scan(); n++ {
		if n != taskIDLine {
			continue
		}
		parts := strings.Split(strings.TrimSpace(scanner.Text()), "=")
		if id := parts[len(parts)-1]; id != "" {
			return id, nil
		}
		break
	}
	if err := scanner.Err(); err != nil {
		return "", errs.NewAnalyzeTaskError(errs.PhaseTask, errs.KindGeneric, err, "failed to read report handle %s", path)
	}
	return "", errs.NewAnalyzeTaskError(errs.PhaseTask, errs.KindGeneric, nil, "report handle %s carries no task id", path)
}

// Wait reads the task id from reportPath and polls until SUCCESS.
func (p *Poller) Wait(ctx context.Context, reportPath string) error {
	id, err := ReadTaskID(reportPath)
	if err != nil {
		return err
	}
	p.logger.Info("waiting for compute task", "id", id, "timeout", p.timeout)

	err = retry.Until(ctx, retry.Options{
		Interval: retry.Constant(p.interval, 0),
		Deadline: p.clock.Now().Add(p.timeout),
		Clock:    p.clock,
	}, func(ctx context.Context) (bool, error) {
		task, err := p.api.CETask(ctx, id)
		if err != nil {
			p.logger.Debug("task query failed", "id", id, "error", err)
			return false, err
		}
		p.logger.Debug("task status", "id", id, "status", task.Status)
		switch task.Status {
		case sqapi.TaskSuccess:
			return true, nil
		case sqapi.TaskFailed:
			return false, retry.Permanent(failure(task.ErrorMessage))
		case sqapi.TaskCanceled:
			return false, retry.Permanent(errs.NewAnalyzeTaskError(errs.PhaseTask, errs.KindGeneric, nil, "compute task %s was canceled", id))
		}
		return false, nil
	})

	switch {
	case err == nil:
		p.logger.Info("compute task completed", "id", id)
		return nil
	case errors.Is(err, retry.ErrDeadline):
		return errs.NewAnalyzeTaskError(errs.PhaseTask, errs.KindTimeout, err, "compute task %s did not complete within %s", id, p.timeout)
	}
	var ae *errs.AnalyzeTaskError
	if errors.As(err, &ae) {
		return err
	}
	return errs.NewAnalyzeTaskError(errs.PhaseTask, errs.KindGeneric, err, "waiting for compute task %s failed", id)
}

// Classify maps a FAILED task error message to its failure class.
func Classify(message string) errs.AnalyzeKind {
	switch {
	case schedulerRestart.MatchString(message):
		return errs.KindSchedulerRestart
	case message == heapExhausted:
		return errs.KindHeapExhausted
	case message == diskPressure:
		return errs.KindDiskSpace
	}
	return errs.KindUnclassified
}

func failure(message string) error {
	kind := Classify(message)
	var msg string
	switch kind {
	case errs.KindSchedulerRestart:
		msg = "analysis server needs a restart"
	case errs.KindHeapExhausted:
		msg = "analysis server ran out of Java heap space"
	case errs.KindDiskSpace:
		msg = "analysis server could not write its index, the disk usage watermark is likely reached: free disk space or restart the server"
	default:
		msg = "analysis server failed the compute task, check the server log"
	}
	if message != "" {
		msg += ": " + message
	}
	return errs.NewAnalyzeTaskError(errs.PhaseTask, kind, nil, "%s", msg)
}
