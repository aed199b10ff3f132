package issues

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	errs "github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/errors"
)

// cognitiveComplexitySuffix identifies the cognitive complexity rule of
// every language repository.
const cognitiveComplexitySuffix = ":S3776"

// MeasureKeys are the project metrics dumped after each run.
var MeasureKeys = []string{"ncloc", "sqale_index", "sqale_debt_ratio", "bugs", "vulnerabilities", "code_smells"}

// Complexity summarizes the functions over the cognitive complexity threshold.
type Complexity struct {
	OverFuncCount   int     `json:"over_cognc_func_count"`
	OverFuncAverage float64 `json:"over_cognc_func_average"`
	OverSum         int     `json:"over_cognc_sum"`
}

// Summary is the run summary document.
type Summary struct {
	SQDebt         map[string]interface{} `json:"sqdebt"`
	CognComplexity *Complexity            `json:"cogncomplexity,omitempty"`
}

// SummarizeComplexity aggregates the cognitive complexity findings. The
// summary is only computed for full scans; incremental runs return nil.
func SummarizeComplexity(findings []Finding, incremental bool) *Complexity {
	if incremental {
		return nil
	}
	c := &Complexity{}
	sum := 0
	for _, f := range findings {
		if !strings.HasSuffix(f.Rule, cognitiveComplexitySuffix) {
			continue
		}
		numbers := digitTokens(f.Msg)
		if len(numbers) < 2 {
			continue
		}
		c.OverFuncCount++
		sum += numbers[0]
		c.OverSum += numbers[0] - numbers[1]
	}
	if c.OverFuncCount > 0 {
		c.OverFuncAverage = float64(sum) / float64(c.OverFuncCount)
	}
	return c
}

// digitTokens returns the whitespace separated tokens made only of digits,
// in order: the reported complexity first, then the threshold.
func digitTokens(msg string) []int {
	var out []int
	for _, tok := range strings.Fields(msg) {
		if strings.IndexFunc(tok, func(r rune) bool { return !unicode.IsDigit(r) }) >= 0 {
			continue
		}
		if n, err := strconv.Atoi(tok); err == nil {
			out = append(out, n)
		}
	}
	return out
}

// Measures reads the project metrics. Ratios are formatted as percentages
// with three decimals, other values as integers; new_* metrics come from the
// first period.
func (e *Extractor) Measures(ctx context.Context) (map[string]interface{}, error) {
	m, err := e.api.ComponentMeasures(ctx, e.opts.ProjectKey, MeasureKeys, "metrics,periods")
	if err != nil {
		return nil, errs.NewAnalyzeTaskError(errs.PhaseIssues, errs.KindGeneric, err, "failed to read measures of %s", e.opts.ProjectKey)
	}
	out := make(map[string]interface{}, len(m.Component.Measures))
	for _, measure := range m.Component.Measures {
		raw := measure.Value.String()
		if strings.HasPrefix(measure.Metric, "new") {
			switch {
			case len(measure.Periods) > 0:
				raw = measure.Periods[0].Value.String()
			case measure.Period != nil:
				raw = measure.Period.Value.String()
			}
		}
		value, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			e.logger.Warn("skipping unreadable measure", "metric", measure.Metric, "value", raw)
			continue
		}
		if strings.HasSuffix(measure.Metric, "_ratio") {
			out[measure.Metric] = fmt.Sprintf("%.3f%%", value)
		} else {
			out[measure.Metric] = int(value)
		}
	}
	e.logger.Info("project measures", "measures", out)
	return out, nil
}
