package artifacts

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetArtifactName(t *testing.T) {
	ts := time.Date(2025, 9, 15, 10, 28, 46, 0, time.FixedZone("CEST", 2*3600))
	assert.Equal(t, "java_2025-09-15T08:28:46Z.sqrun-artifact", GetArtifactName("java", ts))
}

func TestSaveRecord(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := Record{
		RunID:      "r1",
		Family:     "cs",
		Model:      "COMMON",
		Status:     StatusFailed,
		Error:      "scan failed",
		ExitCode:   4,
		StartedAt:  start,
		FinishedAt: start.Add(time.Minute),
	}

	path, err := SaveRecord(hclog.NewNullLogger(), dir, rec)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "cs_2025-01-02T03:04:05Z.sqrun-artifact.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var got Record
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, rec, got)
}
