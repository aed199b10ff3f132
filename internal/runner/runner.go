// Package runner drives one end-to-end analysis run: server, project,
// profiles, build and scan, task completion, findings and reports.
package runner

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-hclog"

	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/issues"
	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/profile"
	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/report"
	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/request"
	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/retry"
	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/scancmd"
	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/server"
	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/taskpoll"
	"github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/artifacts"
	"github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/config"
	errs "github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/errors"
	"github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/validation"
)

// Family selects the scan variant of a run.
type Family string

const (
	FamilyGeneric Family = "generic"
	FamilyJava    Family = "java"
	FamilyCSharp  Family = "cs"
)

// Languages are the profile and issue languages of the family.
func (f Family) Languages() []string {
	switch f {
	case FamilyJava:
		return []string{"java", "jsp"}
	case FamilyCSharp:
		return []string{"cs"}
	}
	return append([]string(nil), profile.CommonLanguages...)
}

// Options tune a Runner.
type Options struct {
	Family Family
	// OutDir receives result.json and result.sarif; the working directory
	// when empty.
	OutDir string
	// Clock drives every wait phase; the system clock when nil.
	Clock retry.Clock
	// ScanOptions is the platform base of the scan commands.
	ScanOptions scancmd.Options
}

// Runner is one analysis run.
type Runner struct {
	logger hclog.Logger
	cfg    *config.Config
	env    *config.Env
	req    *request.Request
	opts   Options
	runID  string
	start  time.Time

	server      *server.Lifecycle
	debtApplied bool
	buildCwd    string
	scannerWork string
	interval    time.Duration
	timeout     time.Duration
}

// New loads the request document named by the environment and prepares the
// run directories.
func New(logger hclog.Logger, cfg *config.Config, env *config.Env, opts Options) (*Runner, error) {
	if env.SourceDir == "" {
		return nil, errs.NewConfigError(errs.PhaseRequest, nil, "SOURCE_DIR is not set")
	}
	if env.TaskRequest == "" {
		return nil, errs.NewConfigError(errs.PhaseRequest, nil, "TASK_REQUEST is not set")
	}
	req, err := request.Load(env.TaskRequest)
	if err != nil {
		return nil, err
	}

	config.ApplyEnv(cfg, env)
	if opts.Clock == nil {
		opts.Clock = retry.SystemClock()
	}
	if opts.Family == "" {
		opts.Family = FamilyGeneric
	}

	runID := uuid.NewString()
	r := &Runner{
		logger:      logger.With("run_id", runID, "family", string(opts.Family)),
		cfg:         cfg,
		env:         env,
		req:         req,
		opts:        opts,
		runID:       runID,
		buildCwd:    filepath.Join(env.SourceDir, env.BuildCwd),
		scannerWork: req.ScannerWorkDir(),
	}
	r.interval = config.SetThen(cfg.Sonar.PollInterval, config.DefaultPollInterval)
	r.timeout = config.SetThen(cfg.Sonar.Timeout, config.DefaultTimeout)

	if err := validation.ValidateRunPaths(env.SourceDir, req.WorkDir(), r.scannerWork, req.ProfilesDir()); err != nil {
		return nil, errs.NewConfigError(errs.PhaseRequest, err, "failed to prepare the run")
	}
	return r, nil
}

// ID is the unique id of the run, attached to every log line.
func (r *Runner) ID() string {
	return r.runID
}

// Run executes the run. Any fatal error tears the server down before it is
// returned.
func (r *Runner) Run(ctx context.Context) error {
	r.start = r.opts.Clock.Now()
	r.logger.Info("run started", "source_dir", r.env.SourceDir, "build_cwd", r.buildCwd, "project_id", r.req.ProjectID())
	r.server = server.New(r.logger.Named("server"), r.cfg, r.env, r.req.ProjectID(), r.opts.Clock)

	if err := r.prepareServer(ctx); err != nil {
		return r.fail(ctx, err)
	}
	findings, summary, err := r.analyze(ctx)
	if err != nil {
		return r.fail(ctx, err)
	}
	if err := r.writeReports(ctx, findings, summary); err != nil {
		return r.fail(ctx, err)
	}

	r.release(ctx)
	r.record(len(findings), nil)
	r.logger.Info("run completed", "findings", len(findings))
	return nil
}

func (r *Runner) prepareServer(ctx context.Context) error {
	if err := r.server.Start(ctx); err != nil {
		return err
	}
	if err := r.server.WaitReady(ctx); err != nil {
		return err
	}
	if err := r.server.CreateProject(ctx); err != nil {
		return err
	}
	r.debtApplied = true
	return r.server.ApplyDebtSettings(ctx)
}

func (r *Runner) analyze(ctx context.Context) ([]issues.Finding, issues.Summary, error) {
	ep := r.server.Endpoint()
	api := r.server.API()
	languages := r.opts.Family.Languages()

	assembler := profile.NewAssembler(r.logger.Named("profile"), profile.Options{
		DefaultsDir:  r.cfg.Sonar.ProfilesDir,
		OutputDir:    r.req.ProfilesDir(),
		SourceDir:    r.env.SourceDir,
		Variant:      r.env.QualityProfileType,
		UserProfiles: r.env.QualityProfiles,
	}, r.req)
	profiles, err := assembler.Assemble(languages)
	if err != nil {
		return nil, issues.Summary{}, err
	}
	if err := profile.Publish(ctx, r.logger.Named("profile"), api, ep.ProjectKey, profiles); err != nil {
		return nil, issues.Summary{}, err
	}

	if err := r.scan(ctx, ep); err != nil {
		return nil, issues.Summary{}, err
	}

	extractor := issues.NewExtractor(r.logger.Named("issues"), api, r.req, issues.Options{
		ProjectKey:  ep.ProjectKey,
		Languages:   languages,
		QualityMode: r.env.IsQualityProfileMode(),
		SourceDir:   r.env.SourceDir,
		BuildCwd:    r.buildCwd,
	})
	measures, err := extractor.Measures(ctx)
	if err != nil {
		return nil, issues.Summary{}, err
	}
	findings, err := extractor.Findings(ctx)
	if err != nil {
		return nil, issues.Summary{}, err
	}
	summary := issues.Summary{
		SQDebt:         measures,
		CognComplexity: issues.SummarizeComplexity(findings, r.req.IncrementalScan()),
	}
	return findings, summary, nil
}

func (r *Runner) scan(ctx context.Context, ep server.Endpoint) error {
	creds := ep.Credentials()
	o := r.opts.ScanOptions
	o.BuildCwd = r.buildCwd
	o.BuildCmd = r.req.BuildCmd()
	o.Common = scancmd.CommonArgs(scancmd.Target{
		ProjectKey: ep.ProjectKey,
		HostURL:    ep.BaseURL(),
		Username:   creds.Username,
		Password:   creds.Password,
		WorkDir:    r.scannerWork,
	}, r.env.ClientParams, r.req.PathFilters())
	o.Sources = r.env.Sources
	o.JavaSources = r.env.JavaSources
	o.Binaries = r.env.Binaries
	o.Libraries = r.env.Libraries
	o.JavaVersion = r.env.JavaVersion
	o.JavaPreBuild = r.env.JavaPreBuild
	o.AnalyzeOptions = r.env.AnalyzeOptions
	o.ScannerHome = r.cfg.Sonar.ScannerHome
	o.JDKHome = r.cfg.Sonar.JDKHome
	o.ScannerWorkDir = r.scannerWork

	executor := scancmd.NewExecutor(r.logger.Named("scan"))
	if line := r.req.PreCmd(); line != "" {
		pre, err := scancmd.PreCommand(o, line)
		if err != nil {
			return err
		}
		executor.RunPrepare(ctx, pre)
	}

	plan, err := r.plan(o, creds.Username, creds.Password)
	if err != nil {
		return err
	}
	if err := executor.Run(ctx, plan); err != nil {
		return err
	}

	reportPath, err := scancmd.LocateReport(r.logger, plan, r.env.Report, r.env.SourceDir, r.scannerWork)
	if err != nil {
		return err
	}
	poller := taskpoll.New(r.logger.Named("task"), r.server.API(), r.opts.Clock, r.interval, r.timeout)
	return poller.Wait(ctx, reportPath)
}

func (r *Runner) plan(o scancmd.Options, username, password string) (*scancmd.Plan, error) {
	switch r.opts.Family {
	case FamilyJava:
		return scancmd.JavaPlan(r.env.BuildType, o)
	case FamilyCSharp:
		return scancmd.CSharpPlan(o, username, password)
	}
	return scancmd.GenericPlan(o), nil
}

func (r *Runner) writeReports(ctx context.Context, findings []issues.Finding, summary issues.Summary) error {
	w := report.NewWriter(r.logger.Named("report"), r.opts.OutDir, r.req.WorkDir())
	if err := w.Measures(summary.SQDebt); err != nil {
		return err
	}
	if err := w.Summary(summary); err != nil {
		return err
	}
	if err := w.Findings(findings); err != nil {
		return err
	}

	tool := report.DefaultTool
	if status, err := r.server.API().SystemStatus(ctx); err == nil {
		tool.Version = status.Version
	}
	return w.Sarif(findings, tool)
}

// fail tears the server down and hands err back to the caller.
func (r *Runner) fail(ctx context.Context, err error) error {
	r.logger.Error("run failed", "error", err)
	r.release(ctx)
	r.record(0, err)
	return err
}

// record leaves a run record in the work directory. Failing to write it
// never changes the outcome of the run.
func (r *Runner) record(findings int, runErr error) {
	rec := artifacts.Record{
		RunID:      r.runID,
		Family:     string(r.opts.Family),
		Model:      r.env.ServerModel,
		Status:     artifacts.StatusSucceeded,
		StartedAt:  r.start,
		FinishedAt: r.opts.Clock.Now(),
		Findings:   findings,
	}
	if r.server != nil {
		rec.ProjectKey = r.server.Endpoint().ProjectKey
	}
	if runErr != nil {
		rec.Status = artifacts.StatusFailed
		rec.Error = runErr.Error()
		rec.ExitCode = errs.ExitCode(runErr)
	}
	if _, err := artifacts.SaveRecord(r.logger, r.req.WorkDir(), rec); err != nil {
		r.logger.Warn("failed to write run record", "error", err)
	}
}

func (r *Runner) release(ctx context.Context) {
	if r.debtApplied {
		r.server.RestoreDebtSettings(context.WithoutCancel(ctx))
	}
	r.server.Teardown()
}
