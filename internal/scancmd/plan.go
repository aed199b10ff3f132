package scancmd

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/shlex"

	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/procsup"
	errs "github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/errors"
	"github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/files"
)

// ReportName is the report handle file the scanner writes.
const ReportName = "report-task.txt"

// StepKind decides how a failing step is reported.
type StepKind int

const (
	// StepBuild failures are compile errors.
	StepBuild StepKind = iota
	// StepScan failures are analysis errors.
	StepScan
)

func (k StepKind) String() string {
	if k == StepBuild {
		return "build"
	}
	return "scan"
}

// Step is one command of a plan.
type Step struct {
	Kind    StepKind
	Command procsup.Command
}

// Plan is the ordered command list of one scan variant and the candidate
// report handle paths, most specific first.
type Plan struct {
	Steps   []Step
	Reports []string
}

// Options carry what every variant needs to build its commands.
type Options struct {
	BuildCwd string
	BuildCmd string
	// Common are the CommonArgs of the run.
	Common []string

	Sources        string
	JavaSources    string
	Binaries       string
	Libraries      string
	JavaVersion    string
	JavaPreBuild   bool
	AnalyzeOptions []string

	ScannerHome    string
	JDKHome        string
	ScannerWorkDir string

	// Windows selects the Windows quoting and launchers.
	Windows bool
}

// DefaultOptions fills Windows from the running platform.
func DefaultOptions() Options {
	return Options{Windows: runtime.GOOS == "windows"}
}

// Build types accepted for Java.
const (
	BuildNone   = "no_build"
	BuildAny    = "any"
	BuildGradle = "gradle"
	BuildMaven  = "maven"
	BuildMvn    = "mvn"
	BuildAnt    = "ant"
)

// JavaPlan dispatches on the Java build type.
func JavaPlan(buildType string, o Options) (*Plan, error) {
	switch strings.ToLower(buildType) {
	case BuildNone, BuildAny, "":
		p := &Plan{Reports: o.reports(filepath.Join(o.BuildCwd, ".scannerwork", ReportName))}
		if o.JavaPreBuild && o.BuildCmd != "" {
			build, err := o.buildCommand()
			if err != nil {
				return nil, err
			}
			p.Steps = append(p.Steps, Step{Kind: StepBuild, Command: build})
		}
		args := []string{
			"-X",
			"-Dsonar.sources=" + o.JavaSources,
			"-Dsonar.language=java,jsp",
			"-Dsonar.java.binaries=" + o.Binaries,
		}
		args = append(args, o.Common...)
		if o.Libraries != "" {
			args = append(args, "-Dsonar.java.libraries="+o.Libraries)
		}
		if o.JavaVersion != "" {
			args = append(args, "-Dsonar.java.source="+o.JavaVersion)
		}
		p.Steps = append(p.Steps, Step{Kind: StepScan, Command: o.scanner(args)})
		return p, nil

	case BuildGradle:
		if o.BuildCmd == "" {
			return nil, missingBuildCommand("java")
		}
		argv, err := splitCommand(o.BuildCmd)
		if err != nil {
			return nil, err
		}
		argv = append(argv, "sonarqube")
		argv = append(argv, o.Common...)
		return &Plan{
			Steps:   []Step{{Kind: StepBuild, Command: o.command(argv)}},
			Reports: o.reports(filepath.Join(o.BuildCwd, "build", "sonar", ReportName)),
		}, nil

	case BuildMaven, BuildMvn:
		argv := []string{"mvn"}
		if o.BuildCmd != "" {
			var err error
			if argv, err = splitCommand(o.BuildCmd); err != nil {
				return nil, err
			}
		}
		argv = append(argv, "sonar:sonar", "-Dsonar.java.binaries="+o.Binaries)
		argv = append(argv, o.Common...)
		return &Plan{
			Steps:   []Step{{Kind: StepBuild, Command: o.command(argv)}},
			Reports: o.reports(filepath.Join(o.BuildCwd, "target", "sonar", ReportName)),
		}, nil

	case BuildAnt:
		if o.BuildCmd == "" {
			return nil, missingBuildCommand("java")
		}
		argv := append([]string{"ant", "sonar", "-v"}, o.Common...)
		return &Plan{
			Steps:   []Step{{Kind: StepBuild, Command: o.command(argv)}},
			Reports: o.reports(),
		}, nil
	}
	return nil, errs.NewConfigError(errs.PhaseBuild, nil,
		"unsupported SONAR_BUILD_TYPE %q: Java supports no_build, gradle, maven or ant", buildType)
}

// CSharpPlan wraps the build command between the MSBuild scanner begin and
// end steps.
func CSharpPlan(o Options, username, password string) (*Plan, error) {
	if o.BuildCmd == "" {
		return nil, missingBuildCommand("C#")
	}
	const msbuild = "SonarScanner.MSBuild.exe"
	begin := append([]string{"begin"}, MSBuildArgs(o.Common)...)
	end := []string{"end", `/d:sonar.login="` + username + `"`, `/d:sonar.password="` + password + `"`}
	return &Plan{
		Steps: []Step{
			{Kind: StepBuild, Command: o.at(procsup.Command{Name: msbuild, Args: begin})},
			{Kind: StepBuild, Command: o.shell(o.BuildCmd)},
			{Kind: StepScan, Command: o.at(procsup.Command{Name: msbuild, Args: end})},
		},
		Reports: o.reports(filepath.Join(o.BuildCwd, ".sonarqube", "out", ".sonar", ReportName)),
	}, nil
}

// GenericPlan runs the plain scanner over the sources.
func GenericPlan(o Options) *Plan {
	args := []string{
		"-X",
		"-Dsonar.sources=" + o.Sources,
		"-Dsonar.java.binaries=" + o.Binaries,
	}
	args = append(args, o.Common...)
	args = append(args, o.AnalyzeOptions...)
	return &Plan{
		Steps:   []Step{{Kind: StepScan, Command: o.scanner(args)}},
		Reports: o.reports(filepath.Join(o.BuildCwd, ".scannerwork", ReportName)),
	}
}

// PreCommand is the optional command run in the build directory before the scan.
func PreCommand(o Options, line string) (procsup.Command, error) {
	argv, err := splitCommand(line)
	if err != nil {
		return procsup.Command{}, err
	}
	return o.at(procsup.Command{Name: argv[0], Args: argv[1:]}), nil
}

func missingBuildCommand(lang string) error {
	return errs.NewConfigError(errs.PhaseBuild, nil, "a build command is required to analyze %s with this build type", lang)
}

func splitCommand(line string) ([]string, error) {
	argv, err := shlex.Split(line)
	if err != nil {
		return nil, errs.NewConfigError(errs.PhaseBuild, err, "malformed command %q", line)
	}
	if len(argv) == 0 {
		return nil, errs.NewConfigError(errs.PhaseBuild, nil, "empty command")
	}
	return argv, nil
}

func (o Options) reports(fallback ...string) []string {
	var out []string
	if o.ScannerWorkDir != "" {
		out = append(out, filepath.Join(o.ScannerWorkDir, ReportName))
	}
	return append(out, fallback...)
}

func (o Options) buildCommand() (procsup.Command, error) {
	argv, err := splitCommand(o.BuildCmd)
	if err != nil {
		return procsup.Command{}, err
	}
	return o.command(argv), nil
}

// command applies the platform quoting to argv.
func (o Options) command(argv []string) procsup.Command {
	args := argv[1:]
	if o.Windows {
		args = WindowsArgs(args)
	}
	return o.at(procsup.Command{Name: argv[0], Args: args})
}

func (o Options) scanner(args []string) procsup.Command {
	name := "sonar-scanner"
	if o.Windows {
		name = "sonar-scanner.bat"
	}
	if o.ScannerHome != "" {
		if bin := filepath.Join(o.ScannerHome, "bin", name); files.Exists(bin) {
			name = bin
		}
	}
	return o.command(append([]string{name}, args...))
}

func (o Options) shell(line string) procsup.Command {
	if o.Windows {
		return o.at(procsup.Command{Name: "cmd", Args: []string{"/C", line}})
	}
	return o.at(procsup.Command{Name: "bash", Args: []string{"-c", line}})
}

// at runs c in the build directory with the tool homes first on PATH.
func (o Options) at(c procsup.Command) procsup.Command {
	c.Dir = o.BuildCwd
	var dirs []string
	if o.JDKHome != "" {
		dirs = append(dirs, filepath.Join(o.JDKHome, "bin"))
	}
	if o.ScannerHome != "" {
		dirs = append(dirs, filepath.Join(o.ScannerHome, "bin"))
	}
	if len(dirs) > 0 {
		c.Name = o.resolve(c.Name, dirs)
		c.Env = append(c.Env, "PATH="+strings.Join(append(dirs, os.Getenv("PATH")), string(os.PathListSeparator)))
	}
	return c
}

// resolve finds a bare command name in the tool home directories. The child
// PATH does not take part in the lookup of its own binary, so a tool that is
// only installed there must be named by its full path.
func (o Options) resolve(name string, dirs []string) string {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return name
	}
	candidates := []string{name}
	if o.Windows && filepath.Ext(name) == "" {
		candidates = append(candidates, name+".exe", name+".bat", name+".cmd")
	}
	for _, dir := range dirs {
		for _, candidate := range candidates {
			if path := filepath.Join(dir, candidate); files.ValidatePath(path) == nil {
				return path
			}
		}
	}
	return name
}
