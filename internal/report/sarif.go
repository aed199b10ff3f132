package report

import (
	"github.com/owenrumney/go-sarif/v2/sarif"

	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/issues"
)

const defaultLevel = "warning"

// Tool describes the analysis engine recorded in the SARIF driver.
type Tool struct {
	Name           string
	InformationURI string
	Version        string
}

// DefaultTool is used when the server did not report its version.
var DefaultTool = Tool{Name: "SonarQube", InformationURI: "https://www.sonarsource.com/products/sonarqube/"}

// BuildSarif converts findings into a single run. Every distinct rule gets a
// descriptor; refs become related locations.
func BuildSarif(findings []issues.Finding, tool Tool) (*sarif.Report, error) {
	log, err := sarif.New(sarif.Version210)
	if err != nil {
		return nil, err
	}
	if tool.Name == "" {
		tool.Name = DefaultTool.Name
		tool.InformationURI = DefaultTool.InformationURI
	}
	run := sarif.NewRunWithInformationURI(tool.Name, tool.InformationURI)
	if tool.Version != "" {
		version := tool.Version
		run.Tool.Driver.Version = &version
	}
	// results must not be null in an empty run
	run.Results = []*sarif.Result{}

	for _, f := range findings {
		run.AddRule(f.Rule).WithDescription(f.Rule)
		run.AddDistinctArtifact(f.Path)

		result := run.CreateResultForRule(f.Rule).
			WithLevel(defaultLevel).
			WithMessage(sarif.NewTextMessage(f.Msg))
		result.AddLocation(location(f.Path, f.Line, f.Column, ""))
		for _, ref := range f.Refs {
			result.RelatedLocations = append(result.RelatedLocations, location(ref.Path, ref.Line, ref.Column, ref.Msg))
		}
	}

	log.AddRun(run)
	return log, nil
}

// location maps a zero based column to the one based SARIF column. Findings
// without a line point at the whole file.
func location(path string, line, column int, msg string) *sarif.Location {
	physical := sarif.NewPhysicalLocation().WithArtifactLocation(sarif.NewSimpleArtifactLocation(path))
	if line > 0 {
		physical.WithRegion(sarif.NewRegion().WithStartLine(line).WithStartColumn(column + 1))
	}
	loc := sarif.NewLocationWithPhysicalLocation(physical)
	if msg != "" {
		loc.WithMessage(sarif.NewTextMessage(msg))
	}
	return loc
}
