// Package request loads the analysis request document a run is driven by.
package request

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/ini.v1"

	errs "github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/errors"
)

// paramsSection is the INI section rule parameter overrides are read from.
const paramsSection = "sq"

// Document mirrors the JSON request file.
type Document struct {
	TaskDir    string     `json:"task_dir" validate:"required"`
	TaskParams TaskParams `json:"task_params"`
}

// TaskParams is the task_params object of the request file.
type TaskParams struct {
	Rules       []string    `json:"rules"`
	RuleList    []RuleEntry `json:"rule_list" validate:"dive"`
	PathFilters PathFilters `json:"path_filters"`
	IncrScan    bool        `json:"incr_scan"`
	ProjectID   ProjectID   `json:"project_id"`
	BuildCmd    string      `json:"build_cmd"`
	PreCmd      string      `json:"pre_cmd"`
}

// RuleEntry carries the parameter overrides of one rule as an INI body.
type RuleEntry struct {
	Name   string `json:"name" validate:"required"`
	Params string `json:"params"`
}

// PathFilters are the include/exclude filters of the request, by origin.
type PathFilters struct {
	WildcardExclusion []string    `json:"wildcard_exclusion"`
	WildcardInclusion []string    `json:"wildcard_inclusion"`
	RegexExclusion    []string    `json:"re_exclusion"`
	RegexInclusion    []string    `json:"re_inclusion"`
	YAMLFilters       YAMLFilters `json:"yaml_filters"`
}

// YAMLFilters are the filters derived from the project lint configuration.
type YAMLFilters struct {
	LintExclusion []string `json:"lint_exclusion"`
	LintInclusion []string `json:"lint_inclusion"`
}

// ProjectID accepts both JSON strings and numbers.
type ProjectID string

func (p *ProjectID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*p = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*p = ProjectID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("project_id must be a string or a number: %w", err)
	}
	*p = ProjectID(n.String())
	return nil
}

// Request is the immutable analysis request of a run. Accessors return copies.
type Request struct {
	taskDir   string
	rules     []string
	allowed   map[string]struct{}
	params    map[string]map[string]string
	filters   PathFilters
	incrScan  bool
	projectID string
	buildCmd  string
	preCmd    string
}

var validate = validator.New()

// Load reads and validates the request file at path.
func Load(path string) (*Request, error) {
	if path == "" {
		return nil, errs.NewConfigError(errs.PhaseRequest, nil, "request file is not set (TASK_REQUEST)")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.NewConfigError(errs.PhaseRequest, err, "failed to read request file %s", path)
	}
	return Parse(data)
}

// Parse builds a Request from the JSON document.
func Parse(data []byte) (*Request, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, errs.NewConfigError(errs.PhaseRequest, err, "malformed request document")
	}
	if err := validate.Struct(doc); err != nil {
		return nil, errs.NewConfigError(errs.PhaseRequest, err, "invalid request document")
	}

	p := doc.TaskParams
	r := &Request{
		taskDir:   doc.TaskDir,
		rules:     append([]string(nil), p.Rules...),
		allowed:   make(map[string]struct{}, len(p.Rules)),
		params:    make(map[string]map[string]string),
		filters:   p.PathFilters,
		incrScan:  p.IncrScan,
		projectID: string(p.ProjectID),
		buildCmd:  strings.TrimSpace(p.BuildCmd),
		preCmd:    strings.TrimSpace(p.PreCmd),
	}
	for _, rule := range p.Rules {
		r.allowed[rule] = struct{}{}
	}
	for _, entry := range p.RuleList {
		if _, seen := r.params[entry.Name]; seen {
			continue
		}
		values, err := parseParams(entry.Params)
		if err != nil {
			return nil, errs.NewConfigError(errs.PhaseRequest, err, "invalid params of rule %s", entry.Name)
		}
		if len(values) > 0 {
			r.params[entry.Name] = values
		}
	}
	return r, nil
}

// parseParams reads an INI body; a [sq] header is implied when missing.
func parseParams(body string) (map[string]string, error) {
	if strings.TrimSpace(body) == "" {
		return nil, nil
	}
	if !strings.Contains(body, "["+paramsSection+"]") {
		body = "[" + paramsSection + "]\n" + body
	}
	f, err := ini.LoadSources(ini.LoadOptions{IgnoreInlineComment: true, PreserveSurroundedQuote: true}, []byte(body))
	if err != nil {
		return nil, err
	}
	sec, err := f.GetSection(paramsSection)
	if err != nil {
		return nil, nil
	}
	return sec.KeysHash(), nil
}

func (r *Request) TaskDir() string { return r.taskDir }

// WorkDir is the run's private working directory.
func (r *Request) WorkDir() string { return filepath.Join(r.taskDir, "workdir") }

// ScannerWorkDir is where the scanner keeps its state and report handle.
func (r *Request) ScannerWorkDir() string { return filepath.Join(r.WorkDir(), "scannerwork") }

// ProfilesDir receives the assembled quality profile documents.
func (r *Request) ProfilesDir() string { return filepath.Join(r.WorkDir(), "profiles") }

// Rules returns the allowed rule keys in request order.
func (r *Request) Rules() []string { return append([]string(nil), r.rules...) }

// IsAllowed reports whether rule is in the allow-list.
func (r *Request) IsAllowed(rule string) bool {
	_, ok := r.allowed[rule]
	return ok
}

// RuleParameters returns the parameter overrides of rule, nil when none.
func (r *Request) RuleParameters(rule string) map[string]string {
	src, ok := r.params[rule]
	if !ok {
		return nil
	}
	out := make(map[string]string, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}

// PathFilters returns a deep copy of the path filters.
func (r *Request) PathFilters() PathFilters {
	f := r.filters
	return PathFilters{
		WildcardExclusion: append([]string(nil), f.WildcardExclusion...),
		WildcardInclusion: append([]string(nil), f.WildcardInclusion...),
		RegexExclusion:    append([]string(nil), f.RegexExclusion...),
		RegexInclusion:    append([]string(nil), f.RegexInclusion...),
		YAMLFilters: YAMLFilters{
			LintExclusion: append([]string(nil), f.YAMLFilters.LintExclusion...),
			LintInclusion: append([]string(nil), f.YAMLFilters.LintInclusion...),
		},
	}
}

func (r *Request) IncrementalScan() bool { return r.incrScan }

func (r *Request) ProjectID() string { return r.projectID }

// BuildCmd is the caller supplied build command, empty when none.
func (r *Request) BuildCmd() string { return r.buildCmd }

// PreCmd runs in the build directory before the scan, empty when none.
func (r *Request) PreCmd() string { return r.preCmd }
