// Package scancmd builds the build and scan command lines of a run and
// locates the report handle the scanner leaves behind.
package scancmd

import (
	"fmt"
	"strings"

	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/request"
)

// Target is the server and project a scan reports to.
type Target struct {
	ProjectKey string
	HostURL    string
	Username   string
	Password   string
	// WorkDir is the scanner working directory.
	WorkDir string
}

// CommonArgs are the authentication and context arguments every scanner
// variant receives, followed by the extra client params and path filters.
func CommonArgs(t Target, clientParams []string, filters request.PathFilters) []string {
	args := []string{
		"-Dsonar.projectKey=" + t.ProjectKey,
		"-Dsonar.host.url=" + t.HostURL,
		"-Dsonar.login=" + t.Username,
		"-Dsonar.password=" + t.Password,
		"-Dsonar.scm.disabled=true",
		"-Dsonar.import_unknown_files=true",
		"-Dsonar.sourceEncoding=UTF-8",
		"-Dsonar.working.directory=" + t.WorkDir,
	}
	args = append(args, clientParams...)
	return append(args, FilterArgs(filters)...)
}

// FilterArgs translates the request path filters into scanner inclusion
// and exclusion patterns.
func FilterArgs(f request.PathFilters) []string {
	var include, exclude []string
	include = append(include, wildcardPatterns(f.WildcardInclusion)...)
	include = append(include, regexPatterns(f.RegexInclusion)...)
	include = append(include, regexPatterns(f.YAMLFilters.LintInclusion)...)
	exclude = append(exclude, wildcardPatterns(f.WildcardExclusion)...)
	exclude = append(exclude, regexPatterns(f.RegexExclusion)...)
	exclude = append(exclude, regexPatterns(f.YAMLFilters.LintExclusion)...)

	var args []string
	if len(include) > 0 {
		args = append(args, "-Dsonar.inclusions="+strings.Join(include, ","))
	}
	if len(exclude) > 0 {
		args = append(args, "-Dsonar.exclusions="+strings.Join(exclude, ","))
	}
	return args
}

func wildcardPatterns(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, strings.ReplaceAll(p, "*", "***"))
	}
	return out
}

func regexPatterns(paths []string) []string {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		out = append(out, strings.ReplaceAll(p, ".*", "***"))
	}
	return out
}

// WindowsArgs quotes -Dkey=value arguments as -D"key=value".
func WindowsArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if strings.HasPrefix(a, "-D") {
			a = `-D"` + a[2:] + `"`
		}
		out = append(out, a)
	}
	return out
}

// MSBuildArgs converts scanner properties to the MSBuild scanner syntax:
// the project key becomes /k:"key" and every other -Dk=v becomes /d:k="v".
func MSBuildArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		switch {
		case strings.HasPrefix(a, "-Dsonar.projectKey="):
			out = append(out, fmt.Sprintf(`/k:"%s"`, strings.TrimPrefix(a, "-Dsonar.projectKey=")))
		case strings.HasPrefix(a, "-D"):
			key, value, _ := strings.Cut(a[2:], "=")
			out = append(out, fmt.Sprintf(`/d:%s="%s"`, key, value))
		default:
			out = append(out, a)
		}
	}
	return out
}
