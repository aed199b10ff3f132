// Package issues turns the raw issues of the analysis server into the
// canonical findings of a run and aggregates the run summaries.
package issues

// Ref is a secondary location of a finding.
type Ref struct {
	Line   int     `json:"line"`
	Column int     `json:"column"`
	Msg    string  `json:"msg"`
	Tag    *string `json:"tag"`
	Path   string  `json:"path"`
}

// Finding is one normalized issue. Path is relative to the source root.
type Finding struct {
	Path   string `json:"path"`
	Rule   string `json:"rule"`
	Msg    string `json:"msg"`
	Line   int    `json:"line"`
	Column int    `json:"column"`
	Refs   []Ref  `json:"refs"`
}
