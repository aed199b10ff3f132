package version

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/config"
)

var (
	AppConfig     *config.Config
	CoreVersion   = "unknown"
	GolangVersion = "unknown"
	BuildTime     = "unknown"
)

// Versions holds version information for the binary and the analysis engine.
type Versions struct {
	Version       string            `json:"version"`
	GolangVersion string            `json:"golang_version"`
	BuildTime     string            `json:"build_time"`
	Tools         map[string]string `json:"tools"`
}

// Init initializes the global configuration variable.
func Init(cfg *config.Config) {
	AppConfig = cfg
}

// NewVersionCmd creates a new cobra.Command for the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:                   "version",
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Short:                 "Print the version number of the application and the analysis engine",
		Run: func(cmd *cobra.Command, args []string) {
			v := Versions{
				Version:       CoreVersion,
				GolangVersion: GolangVersion,
				BuildTime:     BuildTime,
				Tools:         map[string]string{},
			}
			if AppConfig != nil {
				v.Tools["server"] = jarVersion(AppConfig.Sonar.ServerHome, "sonar-application-")
				v.Tools["scanner"] = jarVersion(AppConfig.Sonar.ScannerHome, "sonar-scanner-cli-")
			}
			printVersionInfo(&v)
		},
	}
}

// jarVersion reads the version from the name of the engine jar under home/lib.
func jarVersion(home, prefix string) string {
	if home == "" {
		return "unknown"
	}
	matches, err := filepath.Glob(filepath.Join(home, "lib", prefix+"*.jar"))
	if err != nil || len(matches) == 0 {
		return "unknown"
	}
	name := filepath.Base(matches[0])
	return strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".jar")
}

// printVersionInfo prints the version information for the binary and the engine.
func printVersionInfo(v *Versions) {
	fmt.Printf("Core Version: v%s\n", v.Version)
	if len(v.Tools) > 0 {
		fmt.Println("Analysis Engine:")
		names := make([]string, 0, len(v.Tools))
		for name := range v.Tools {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Printf("  %s: %s\n", name, v.Tools[name])
		}
	}
	fmt.Printf("Go Version: %s\n", v.GolangVersion)
	fmt.Printf("Build Time: %s\n", v.BuildTime)
}
