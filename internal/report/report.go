// Package report writes the documents a run leaves behind.
package report

import (
	"os"
	"path/filepath"

	"github.com/hashicorp/go-hclog"

	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/issues"
	errs "github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/errors"
	"github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/files"
)

const (
	ResultFile   = "result.json"
	SarifFile    = "result.sarif"
	CheckFile    = "check_result.json"
	MeasuresFile = "sonar_result.json"
	SummaryFile  = "summary.json"
)

// Writer places findings next to the caller and run metadata in the work
// directory.
type Writer struct {
	logger  hclog.Logger
	outDir  string
	workDir string
}

func NewWriter(logger hclog.Logger, outDir, workDir string) *Writer {
	return &Writer{logger: logger, outDir: outDir, workDir: workDir}
}

// Findings writes the ordered findings to result.json. No findings is an
// empty array, never null.
func (w *Writer) Findings(findings []issues.Finding) error {
	if findings == nil {
		findings = []issues.Finding{}
	}
	return w.write(filepath.Join(w.outDir, ResultFile), findings)
}

// Measures writes the project metrics document.
func (w *Writer) Measures(measures map[string]interface{}) error {
	if measures == nil {
		measures = map[string]interface{}{}
	}
	return w.write(filepath.Join(w.workDir, MeasuresFile), measures)
}

// Summary writes the debt and complexity summary.
func (w *Writer) Summary(s issues.Summary) error {
	if s.SQDebt == nil {
		s.SQDebt = map[string]interface{}{}
	}
	return w.write(filepath.Join(w.workDir, SummaryFile), s)
}

// Sarif exports the findings as a SARIF 2.1.0 log.
func (w *Writer) Sarif(findings []issues.Finding, tool Tool) error {
	log, err := BuildSarif(findings, tool)
	if err != nil {
		return errs.NewAnalyzeTaskError(errs.PhaseOutput, errs.KindGeneric, err, "failed to build the SARIF export")
	}
	path := filepath.Join(w.outDir, SarifFile)
	if err := files.CreateFolderIfNotExists(filepath.Dir(path)); err != nil {
		return errs.NewAnalyzeTaskError(errs.PhaseOutput, errs.KindGeneric, err, "failed to write %s", path)
	}
	f, err := os.Create(path)
	if err != nil {
		return errs.NewAnalyzeTaskError(errs.PhaseOutput, errs.KindGeneric, err, "failed to write %s", path)
	}
	defer f.Close()
	if err := log.PrettyWrite(f); err != nil {
		return errs.NewAnalyzeTaskError(errs.PhaseOutput, errs.KindGeneric, err, "failed to write %s", path)
	}
	w.logger.Info("report written", "path", path)
	return nil
}

func (w *Writer) write(path string, v interface{}) error {
	if err := files.WriteJSON(path, v); err != nil {
		return errs.NewAnalyzeTaskError(errs.PhaseOutput, errs.KindGeneric, err, "failed to write %s", path)
	}
	w.logger.Info("report written", "path", path)
	return nil
}

// Usability is the document of the check command.
type Usability struct {
	Usable bool `json:"usable"`
}

// WriteUsability writes check_result.json into dir.
func WriteUsability(dir string, usable bool) error {
	path := filepath.Join(dir, CheckFile)
	if err := files.WriteJSON(path, Usability{Usable: usable}); err != nil {
		return errs.NewAnalyzeTaskError(errs.PhaseOutput, errs.KindGeneric, err, "failed to write %s", path)
	}
	return nil
}
