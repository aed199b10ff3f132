package artifacts

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/files"
)

// Run statuses recorded in a Record.
const (
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Record describes one finished run.
type Record struct {
	RunID      string    `json:"run_id"`
	Family     string    `json:"family"`
	ProjectKey string    `json:"project_key,omitempty"`
	Model      string    `json:"model"`
	Status     string    `json:"status"`
	Error      string    `json:"error,omitempty"`
	ExitCode   int       `json:"exit_code"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Findings   int       `json:"findings"`
}

// GetArtifactName returns the artifact base name of a run.
// Example: java_2025-09-15T08:28:46Z.sqrun-artifact.
func GetArtifactName(family string, t time.Time) string {
	ts := t.UTC().Format(time.RFC3339)
	return fmt.Sprintf("%s_%s.sqrun-artifact", family, ts)
}

// SaveRecord writes the record to <dir>/<base>.json and returns the full path.
func SaveRecord(logger hclog.Logger, dir string, rec Record) (string, error) {
	path := filepath.Join(dir, GetArtifactName(rec.Family, rec.StartedAt)+".json")
	if err := files.WriteJSON(path, rec); err != nil {
		return path, fmt.Errorf("error writing run record: %w", err)
	}
	logger.Info("artifact saved to file", "path", path)
	return path, nil
}
