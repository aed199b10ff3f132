// Package server manages the analysis server a run talks to: it starts or
// reuses one, waits until it is ready, prepares the project and tears down
// what the run owns.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/procsup"
	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/retry"
	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/sqapi"
	"github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/config"
	errs "github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/errors"
	"github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/logger"
)

// State of the lifecycle state machine.
type State string

const (
	StateInit     State = "INIT"
	StateStarting State = "STARTING"
	StateUp       State = "UP"
	StateFailed   State = "FAILED"
)

// logQueueSize bounds the server log lines buffered for the watcher.
const logQueueSize = 256

// Lifecycle is the explicit server state of one run.
type Lifecycle struct {
	logger    hclog.Logger
	cfg       *config.Config
	env       *config.Env
	clock     retry.Clock
	projectID string
	matcher   *logMatcher

	// startCommand builds the local launch command; replaced in tests.
	startCommand func() (procsup.Command, error)
	// findStale lists server processes by command line; replaced in tests.
	findStale func() ([]int, error)

	mu       sync.Mutex
	state    State
	endpoint Endpoint
	api      *sqapi.Client
	ownedUp  bool
	switched bool
	handle   *procsup.Handle
	abort    context.CancelCauseFunc
	failure  error

	lines     chan string
	serverLog io.WriteCloser
	props     *propertiesPatch
	tornDown  bool
}

// New creates a Lifecycle in INIT state pointing at the local endpoint.
func New(log hclog.Logger, cfg *config.Config, env *config.Env, projectID string, clock retry.Clock) *Lifecycle {
	if clock == nil {
		clock = retry.SystemClock()
	}
	l := &Lifecycle{
		logger:    log,
		cfg:       cfg,
		env:       env,
		clock:     clock,
		projectID: projectID,
		matcher:   newLogMatcher(),
		state:     StateInit,
	}
	l.startCommand = l.localStartCommand
	l.findStale = findServerProcesses
	l.setEndpoint(LocalEndpoint(cfg.Server.Local))
	return l
}

// Endpoint returns the active endpoint.
func (l *Lifecycle) Endpoint() Endpoint {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.endpoint
}

// API returns a client for the active endpoint.
func (l *Lifecycle) API() *sqapi.Client {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.api
}

// State returns the current lifecycle state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

func (l *Lifecycle) setEndpoint(ep Endpoint) {
	l.endpoint = ep
	l.api = sqapi.New(l.logger.Named("api"), l.cfg, ep.BaseURL(), ep.Credentials())
}

func (l *Lifecycle) commonConfigured() bool {
	return l.cfg.Server.Common != nil
}

// Start brings a server into STARTING state: the shared one when requested
// and configured, otherwise a freshly spawned local one.
func (l *Lifecycle) Start(ctx context.Context) error {
	l.mu.Lock()
	if l.state != StateInit {
		l.mu.Unlock()
		return fmt.Errorf("server lifecycle already started (state %s)", l.state)
	}
	l.state = StateStarting
	l.mu.Unlock()

	if strings.EqualFold(l.env.ServerModel, string(ModelCommon)) && l.commonConfigured() {
		l.logger.Warn("using the shared server")
		l.switchToCommon()
		return nil
	}
	return l.startLocal(ctx)
}

func (l *Lifecycle) switchToCommon() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.switched || !l.commonConfigured() {
		return
	}
	l.switched = true
	l.setEndpoint(CommonEndpoint(*l.cfg.Server.Common, l.projectID))
}

func (l *Lifecycle) startLocal(ctx context.Context) error {
	l.killStale()
	addNoProxy("localhost")

	if len(l.env.ServerParams) > 0 {
		patch, err := applyServerParams(l.cfg.Sonar.ServerHome, l.env.ServerParams)
		if err != nil {
			return l.failStart(err)
		}
		l.props = patch
	}

	cmd, err := l.startCommand()
	if err != nil {
		return l.failStart(err)
	}

	l.serverLog = logger.NewRotatingWriter(l.cfg.Logger.LogFile)
	l.lines = make(chan string, logQueueSize)
	serverLogger := l.logger.Named("server")
	sink := procsup.Tee(procsup.LogSink(serverLogger), l.mirror, l.enqueue)

	l.logger.Info("starting local server", "cmd", cmd.String())
	handle, err := procsup.Spawn(ctx, cmd, procsup.Sinks{Stdout: sink, Stderr: sink})
	if err != nil {
		close(l.lines)
		return l.failStart(errs.NewAnalyzeTaskError(errs.PhaseServerStart, errs.KindGeneric, err, "failed to launch the local server"))
	}

	l.mu.Lock()
	l.handle = handle
	if platformSkipsReadyMarker() {
		l.ownedUp = true
	}
	l.mu.Unlock()

	go l.watch(l.lines)
	go func() {
		_ = handle.Wait()
		close(l.lines)
	}()
	return nil
}

func (l *Lifecycle) failStart(err error) error {
	l.mu.Lock()
	l.state = StateFailed
	l.mu.Unlock()
	return err
}

func (l *Lifecycle) mirror(line string) error {
	if l.serverLog != nil {
		_, _ = io.WriteString(l.serverLog, line+"\n")
	}
	return nil
}

func (l *Lifecycle) enqueue(line string) error {
	l.lines <- line
	return nil
}

// watch runs the log state machine until the process output ends. After a
// failover it keeps draining the queue without matching.
func (l *Lifecycle) watch(lines <-chan string) {
	watching := true
	for line := range lines {
		if !watching {
			continue
		}
		event, pattern := l.matcher.classify(line)
		switch event {
		case eventFatal:
			watching = false
			l.onFatal(pattern)
		case eventReady:
			l.logger.Info("local server reports ready")
			l.mu.Lock()
			l.ownedUp = true
			l.mu.Unlock()
		}
	}
}

func (l *Lifecycle) onFatal(pattern string) {
	if l.commonConfigured() {
		l.logger.Warn("local server failed to start, switching to the shared server", "cause", pattern)
		l.killOwned()
		l.switchToCommon()
		return
	}

	err := errs.NewAnalyzeTaskError(errs.PhaseServerStart, errs.KindGeneric, nil, "local server failed to start: %s", pattern)
	l.logger.Error("local server failed to start", "cause", pattern)
	l.mu.Lock()
	l.state = StateFailed
	l.failure = err
	abort := l.abort
	l.mu.Unlock()
	if abort != nil {
		abort(err)
	}
}

// WaitReady polls the status endpoint until the server is UP and either
// shared or confirmed by the local readiness marker.
func (l *Lifecycle) WaitReady(ctx context.Context) error {
	timeout := config.SetThen(l.cfg.Sonar.Timeout, config.DefaultTimeout)
	deadline := l.clock.Now().Add(timeout)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	l.mu.Lock()
	if l.state == StateFailed {
		failure := l.failure
		l.mu.Unlock()
		if failure != nil {
			return failure
		}
		return errs.NewAnalyzeTaskError(errs.PhaseServerStart, errs.KindGeneric, nil, "server failed before readiness wait")
	}
	l.abort = cancel
	l.mu.Unlock()
	defer func() {
		l.mu.Lock()
		l.abort = nil
		l.mu.Unlock()
	}()

	l.logger.Info("waiting for server", "timeout", timeout)
	err := retry.Until(ctx, retry.Options{
		Interval: retry.Constant(l.pollInterval(), 0),
		Deadline: deadline,
		Clock:    l.clock,
	}, func(ctx context.Context) (bool, error) {
		if failure := l.failureErr(); failure != nil {
			return false, retry.Permanent(failure)
		}
		status, err := l.API().SystemStatus(ctx)
		if err != nil {
			l.logger.Debug("status check failed", "error", err)
			return false, err
		}
		l.logger.Debug("server status", "model", l.Endpoint().Model, "status", status.Status)
		return status.Status == sqapi.StatusUp && l.ownedOrShared(), nil
	})

	if err != nil {
		if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.Canceled) {
			err = cause
		}
		var ae *errs.AnalyzeTaskError
		if !errors.As(err, &ae) {
			kind := errs.KindGeneric
			if errors.Is(err, retry.ErrDeadline) {
				kind = errs.KindTimeout
			}
			err = errs.NewAnalyzeTaskError(errs.PhaseServerStart, kind, err, "server did not come up within %s", timeout)
		}
		_ = l.failStart(nil)
		return err
	}

	l.mu.Lock()
	l.state = StateUp
	l.mu.Unlock()
	l.logger.Info("server is ready", "model", l.Endpoint().Model, "url", l.Endpoint().BaseURL())
	return nil
}

func (l *Lifecycle) failureErr() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.failure
}

func (l *Lifecycle) ownedOrShared() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.endpoint.Model == ModelCommon || l.ownedUp
}

func (l *Lifecycle) pollInterval() time.Duration {
	return config.SetThen(l.cfg.Sonar.PollInterval, config.DefaultPollInterval)
}

// Teardown stops the local server the run owns and restores the server
// configuration. A shared server is never touched. Safe to call more than once.
func (l *Lifecycle) Teardown() {
	l.mu.Lock()
	if l.tornDown {
		l.mu.Unlock()
		return
	}
	l.tornDown = true
	started := l.handle != nil || l.props != nil
	local := l.endpoint.Model == ModelLocal
	l.mu.Unlock()

	if started {
		if local {
			l.logger.Info("stopping local server")
		}
		// the command line lookup only stands in for a lost handle of a
		// server this run still owns
		if !l.killOwned() && local {
			l.killStale()
		}
	}
	if l.props != nil {
		if err := l.props.restore(); err != nil {
			l.logger.Error("failed to restore server properties", "error", err)
		}
	}
	if l.serverLog != nil {
		_ = l.serverLog.Close()
	}
}

// killOwned kills the process behind the handle and reports whether it is
// known to be gone.
func (l *Lifecycle) killOwned() bool {
	l.mu.Lock()
	h := l.handle
	l.mu.Unlock()
	if h == nil {
		return false
	}
	if err := h.Kill(); err != nil {
		l.logger.Warn("failed to kill local server", "pid", h.Pid(), "error", err)
		return false
	}
	return true
}

func findServerProcesses() ([]int, error) {
	return procsup.FindByCmdline("java", "lib/sonar-application")
}

// killStale is the recovery path for a server whose handle is lost: it kills
// any java process running the server application.
func (l *Lifecycle) killStale() {
	pids, err := l.findStale()
	if err != nil {
		l.logger.Debug("process listing failed", "error", err)
		return
	}
	for _, pid := range pids {
		l.logger.Info("killing server process", "pid", pid)
		if err := procsup.KillTree(pid); err != nil {
			l.logger.Warn("failed to kill server process", "pid", pid, "error", err)
		}
	}
}

func addNoProxy(host string) {
	current := os.Getenv("no_proxy")
	var hosts []string
	if current != "" {
		hosts = strings.Split(current, ",")
	}
	for _, h := range hosts {
		if h == host {
			return
		}
	}
	hosts = append(hosts, host)
	_ = os.Setenv("no_proxy", strings.Join(hosts, ","))
}
