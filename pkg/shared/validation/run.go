package validation

import (
	"fmt"
	"os"

	"github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/files"
)

// ValidateRunPaths checks that the source root exists and that every work
// directory can be created.
func ValidateRunPaths(sourceDir string, workDirs ...string) error {
	if sourceDir == "" {
		return fmt.Errorf("source directory is required (SOURCE_DIR)")
	}

	expanded, err := files.ExpandPath(sourceDir)
	if err != nil {
		return fmt.Errorf("failed to expand path '%s': %w", sourceDir, err)
	}
	info, err := os.Stat(expanded)
	if os.IsNotExist(err) {
		return fmt.Errorf("source directory does not exist: %s", expanded)
	} else if err != nil {
		return fmt.Errorf("unable to check source directory '%s': %w", expanded, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("source directory is not a directory: %s", expanded)
	}

	for _, dir := range workDirs {
		if err := files.CreateFolderIfNotExists(dir); err != nil {
			return fmt.Errorf("failed to create work directory '%s': %w", dir, err)
		}
	}
	return nil
}
