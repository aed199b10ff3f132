package scancmd

import (
	"context"
	"errors"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/procsup"
	errs "github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/errors"
	"github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/files"
)

const (
	noFilesMatching = "java.lang.IllegalStateException: No files nor directories matching"
	unreadableFile  = "java.lang.IllegalStateException: Unable to read file"
)

// Executor runs plans through the process supervisor.
type Executor struct {
	logger hclog.Logger
}

func NewExecutor(logger hclog.Logger) *Executor {
	return &Executor{logger: logger}
}

// Run executes the plan steps in order and stops at the first failure.
func (e *Executor) Run(ctx context.Context, p *Plan) error {
	for _, step := range p.Steps {
		if err := e.RunStep(ctx, step); err != nil {
			return err
		}
	}
	return nil
}

// RunStep executes one step. Known fatal scanner output aborts it early.
func (e *Executor) RunStep(ctx context.Context, step Step) error {
	e.logger.Info("running "+step.Kind.String()+" command", "cmd", step.Command.String(), "dir", step.Command.Dir)

	out := procsup.LogSink(e.logger.Named(step.Kind.String()))
	err := procsup.Run(ctx, step.Command, procsup.Sinks{
		Stdout: out,
		Stderr: procsup.Tee(out, watchScannerOutput),
	})
	if err == nil {
		return nil
	}

	var sinkErr *procsup.SinkError
	if errors.As(err, &sinkErr) {
		return sinkErr.Err
	}
	if step.Kind == StepBuild {
		return errs.NewCompileTaskError(errs.PhaseBuild, err, "build failed, check the build command and the log")
	}
	return errs.NewAnalyzeTaskError(errs.PhaseScan, errs.KindScanFailed, err, "scanner failed, check the log")
}

// RunPrepare executes a preparation command; failures are logged only.
func (e *Executor) RunPrepare(ctx context.Context, c procsup.Command) {
	e.logger.Warn("running pre command", "cmd", c.String(), "dir", c.Dir)
	sink := procsup.LogSink(e.logger.Named("pre"))
	if err := procsup.Run(ctx, c, procsup.Sinks{Stdout: sink, Stderr: sink}); err != nil {
		e.logger.Warn("pre command failed", "error", err)
	}
}

// watchScannerOutput escalates scanner messages that no retry can fix.
func watchScannerOutput(line string) error {
	switch {
	case strings.Contains(line, noFilesMatching):
		return errs.NewAnalyzeTaskError(errs.PhaseScan, errs.KindScanFailed, nil,
			"no class files found under the configured binaries path, check SONAR_BIN")
	case strings.Contains(line, unreadableFile):
		return errs.NewConfigError(errs.PhaseScan, nil,
			"failed to parse a file, check it is not a symlink and its encoding or syntax: %s", line)
	}
	return nil
}

// LocateReport returns the report handle of a finished scan: the override
// (relative to sourceDir) when set, else the first existing plan candidate,
// else the first report file found under sourceDir or scannerWork.
func LocateReport(logger hclog.Logger, p *Plan, override, sourceDir, scannerWork string) (string, error) {
	var candidates []string
	if override != "" {
		candidates = []string{filepath.Join(sourceDir, override)}
	} else if p != nil {
		candidates = p.Reports
	}
	for _, c := range candidates {
		if files.Exists(c) {
			return c, nil
		}
	}

	logger.Warn("report handle not at the expected location, searching", "expected", candidates)
	found, err := files.FindFile(ReportName, sourceDir, scannerWork)
	if err != nil {
		if errors.Is(err, files.ErrNotFound) {
			return "", errs.NewAnalyzeTaskError(errs.PhaseTask, errs.KindGeneric, err, "report handle %s not found", ReportName)
		}
		return "", errs.NewAnalyzeTaskError(errs.PhaseTask, errs.KindGeneric, err, "failed to search for %s", ReportName)
	}
	logger.Info("report handle found", "path", found)
	return found, nil
}
