package runner

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/hashicorp/go-hclog"

	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/procsup"
)

// RequiredJavaMajor is the Java release the analysis engine runs on.
const RequiredJavaMajor = 11

var javaVersionLine = regexp.MustCompile(`version "([^"]+)"`)

// CheckUsable reports whether the Java runtime the engine needs is present.
// The runtime under jdkHome is preferred over the one on PATH.
func CheckUsable(ctx context.Context, logger hclog.Logger, jdkHome string) bool {
	java := "java"
	if jdkHome != "" {
		java = filepath.Join(jdkHome, "bin", "java")
	}

	var out []string
	collect := procsup.CollectSink(&out)
	if err := procsup.Run(ctx, procsup.Command{Name: java, Args: []string{"-version"}}, procsup.Sinks{Stdout: collect, Stderr: collect}); err != nil {
		logger.Warn("tool is not usable", "error", err)
		return false
	}

	v, err := ParseJavaVersion(strings.Join(out, "\n"))
	if err != nil {
		logger.Warn("tool is not usable", "error", err)
		return false
	}
	usable := v.Major() == RequiredJavaMajor
	logger.Info("java runtime found", "version", v.String(), "usable", usable)
	return usable
}

// ParseJavaVersion extracts the runtime version from `java -version` output.
// Update suffixes such as 1.8.0_292 are read as build metadata.
func ParseJavaVersion(output string) (*semver.Version, error) {
	m := javaVersionLine.FindStringSubmatch(output)
	if m == nil {
		return semver.NewVersion(strings.TrimSpace(output))
	}
	return semver.NewVersion(strings.Replace(m[1], "_", "+", 1))
}
