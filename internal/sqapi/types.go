package sqapi

import "encoding/json"

// Server status values reported by /api/system/status.
const (
	StatusUp = "UP"
)

// Compute task statuses.
const (
	TaskPending    = "PENDING"
	TaskInProgress = "IN_PROGRESS"
	TaskSuccess    = "SUCCESS"
	TaskFailed     = "FAILED"
	TaskCanceled   = "CANCELED"
)

type SystemStatus struct {
	ID      string `json:"id"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

type Task struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	ComponentKey string `json:"componentKey"`
	Status       string `json:"status"`
	ErrorMessage string `json:"errorMessage"`
}

type taskResponse struct {
	Task Task `json:"task"`
}

type TextRange struct {
	StartLine   int `json:"startLine"`
	EndLine     int `json:"endLine"`
	StartOffset int `json:"startOffset"`
	EndOffset   int `json:"endOffset"`
}

type Location struct {
	Component string     `json:"component"`
	TextRange *TextRange `json:"textRange"`
	Msg       string     `json:"msg"`
}

type Flow struct {
	Locations []Location `json:"locations"`
}

// Issue is one raw finding from /api/issues/search.
type Issue struct {
	Key       string     `json:"key"`
	Rule      string     `json:"rule"`
	Severity  string     `json:"severity"`
	Component string     `json:"component"`
	Project   string     `json:"project"`
	Line      int        `json:"line"`
	Message   string     `json:"message"`
	Type      string     `json:"type"`
	Status    string     `json:"status"`
	Tags      []string   `json:"tags"`
	TextRange *TextRange `json:"textRange"`
	Flows     []Flow     `json:"flows"`
}

type issuesPage struct {
	P      int     `json:"p"`
	Ps     int     `json:"ps"`
	Total  int     `json:"total"`
	Issues []Issue `json:"issues"`
}

// IssueQuery filters /api/issues/search. Empty fields are not sent.
type IssueQuery struct {
	Languages     []string
	ComponentKeys string
	Rules         []string
}

type DuplicationBlock struct {
	From int    `json:"from"`
	Size int    `json:"size"`
	Ref  string `json:"_ref"`
}

type Duplication struct {
	Blocks []DuplicationBlock `json:"blocks"`
}

type DuplicationFile struct {
	Key         string `json:"key"`
	Name        string `json:"name"`
	ProjectName string `json:"projectName"`
}

// Duplications is the /api/duplications/show payload. Files is keyed by the
// block _ref value.
type Duplications struct {
	Duplications []Duplication             `json:"duplications"`
	Files        map[string]DuplicationFile `json:"files"`
}

type PeriodValue struct {
	Index int         `json:"index"`
	Value json.Number `json:"value"`
}

type Measure struct {
	Metric  string        `json:"metric"`
	Value   json.Number   `json:"value"`
	Periods []PeriodValue `json:"periods"`
	Period  *PeriodValue  `json:"period"`
}

type ComponentMeasures struct {
	Component struct {
		Key      string    `json:"key"`
		Name     string    `json:"name"`
		Measures []Measure `json:"measures"`
	} `json:"component"`
}
