package issues

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/hashicorp/go-hclog"

	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/sqapi"
	errs "github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/errors"
)

const duplicatedBlocksSuffix = "DuplicatedBlocks"

// API is the server capability the extractor reads from.
type API interface {
	SearchIssues(ctx context.Context, q sqapi.IssueQuery) ([]sqapi.Issue, error)
	ShowDuplications(ctx context.Context, key string) (*sqapi.Duplications, error)
	ComponentMeasures(ctx context.Context, component string, metricKeys []string, additionalFields string) (*sqapi.ComponentMeasures, error)
}

// Rules is the allow-list issues are restricted to.
type Rules interface {
	Rules() []string
	IsAllowed(rule string) bool
}

// Options scope an extraction.
type Options struct {
	ProjectKey string
	Languages  []string
	// QualityMode publishes every issue of the profile instead of
	// restricting to the allow-list.
	QualityMode bool
	SourceDir   string
	// BuildCwd is the directory the scan ran in; component paths are
	// relative to it.
	BuildCwd string
}

// Extractor reads and normalizes the issues of one project.
type Extractor struct {
	logger hclog.Logger
	api    API
	rules  Rules
	opts   Options
}

func NewExtractor(logger hclog.Logger, api API, rules Rules, opts Options) *Extractor {
	return &Extractor{logger: logger, api: api, rules: rules, opts: opts}
}

// Findings pages through every issue of the project and normalizes it.
// A validation error while paging keeps the issues read so far.
func (e *Extractor) Findings(ctx context.Context) ([]Finding, error) {
	q := sqapi.IssueQuery{Languages: e.opts.Languages, ComponentKeys: e.opts.ProjectKey}
	if !e.opts.QualityMode {
		q.Rules = e.rules.Rules()
	}
	raw, err := e.api.SearchIssues(ctx, q)
	if err != nil {
		if !errs.IsValidation(err) {
			return nil, errs.NewAnalyzeTaskError(errs.PhaseIssues, errs.KindGeneric, err, "failed to read issues of %s", e.opts.ProjectKey)
		}
		e.logger.Warn("issue search stopped early, keeping partial results", "read", len(raw), "error", err)
	}

	restricted := !e.opts.QualityMode && len(e.rules.Rules()) > 0
	findings := make([]Finding, 0, len(raw))
	for _, issue := range raw {
		if restricted && !e.rules.IsAllowed(issue.Rule) {
			continue
		}
		if strings.HasSuffix(issue.Rule, duplicatedBlocksSuffix) {
			dups, err := e.duplicates(ctx, issue)
			if err != nil {
				return nil, err
			}
			findings = append(findings, dups...)
			continue
		}
		findings = append(findings, e.finding(issue))
	}
	e.logger.Info("issues normalized", "raw", len(raw), "findings", len(findings))
	return findings, nil
}

func (e *Extractor) finding(issue sqapi.Issue) Finding {
	f := e.base(issue)
	for _, flow := range issue.Flows {
		for _, loc := range flow.Locations {
			line, col := position(loc.TextRange)
			f.Refs = append(f.Refs, Ref{
				Line:   line,
				Column: col,
				Msg:    loc.Msg,
				Path:   componentPath(loc.Component),
			})
		}
	}
	return f
}

// duplicates emits one finding per duplicated block, each referencing the
// block it describes.
func (e *Extractor) duplicates(ctx context.Context, issue sqapi.Issue) ([]Finding, error) {
	dup, err := e.api.ShowDuplications(ctx, issue.Component)
	if err != nil {
		return nil, errs.NewAnalyzeTaskError(errs.PhaseIssues, errs.KindGeneric, err, "failed to read duplications of %s", issue.Component)
	}
	var out []Finding
	for _, d := range dup.Duplications {
		for _, block := range d.Blocks {
			f := e.base(issue)
			f.Refs = append(f.Refs, Ref{
				Line: block.From,
				Msg:  fmt.Sprintf("duplicate block (lines %d-%d)", block.From, block.From+block.Size-1),
				Path: dup.Files[block.Ref].Name,
			})
			out = append(out, f)
		}
	}
	return out, nil
}

func (e *Extractor) base(issue sqapi.Issue) Finding {
	line, col := position(issue.TextRange)
	return Finding{
		Path:   e.relative(componentPath(issue.Component)),
		Rule:   issue.Rule,
		Msg:    issue.Message,
		Line:   line,
		Column: col,
		Refs:   []Ref{},
	}
}

// relative resolves a component path against the build directory and
// strips the source root from it.
func (e *Extractor) relative(path string) string {
	full := filepath.Join(e.opts.BuildCwd, path)
	if e.opts.SourceDir == "" {
		return full
	}
	rel, err := filepath.Rel(e.opts.SourceDir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return path
	}
	return filepath.ToSlash(rel)
}

// componentPath drops the project key prefix of a component key.
func componentPath(component string) string {
	if i := strings.LastIndex(component, ":"); i >= 0 {
		return component[i+1:]
	}
	return component
}

func position(r *sqapi.TextRange) (int, int) {
	if r == nil {
		return 0, 0
	}
	return r.StartLine, r.StartOffset
}
