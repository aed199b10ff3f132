package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Env is the environment-style configuration surface of a run.
type Env struct {
	SourceDir   string // SOURCE_DIR
	TaskRequest string // TASK_REQUEST
	BuildCwd    string // BUILD_CWD, relative to SourceDir

	Timeout       time.Duration // SONAR_TIMEOUT, in seconds
	ServerModel   string        // SQ_TYPE
	ServerParams  []string      // SONAR_SERVER_PARAMS
	ServerRunUser string        // SONARQUBE_USER

	QualityProfiles    []string // SONAR_QUALITYPROFILE
	QualityProfileType string   // SONAR_QUALITYPROFILE_TYPE
	// QualityProfileSet is true when either profile variable is present,
	// even empty.
	QualityProfileSet bool

	ClientParams   []string // SQ_CLIENT_PARAMS
	AnalyzeOptions []string // SQ_ANALYZE_OPTIONS

	DevCost    string // SONAR_DEVCOST
	RatingGrid string // SONAR_DEBT_RATINGGRID

	Report       string // SONAR_REPORT
	BuildType    string // SONAR_BUILD_TYPE
	Sources      string // SONAR_SRC
	JavaSources  string // SONAR_JAVA_SRC
	Binaries     string // SONAR_BIN
	Libraries    string // SONAR_LIB
	JavaVersion  string // SONAR_JAVA_VERSION
	JavaPreBuild bool   // SQ_JAVA_BUILD

	ServerHome  string // SONARQUBE_HOME
	ScannerHome string // SONAR_SCANNER_HOME
	JDKHome     string // SQ_JDK_HOME
}

// IsQualityProfileMode reports whether the run uses a named or user supplied
// profile, in which case issues are not restricted to the request rules.
func (e *Env) IsQualityProfileMode() bool {
	return e.QualityProfileSet || len(e.QualityProfiles) > 0 || e.QualityProfileType != ""
}

// LoadEnv reads a .env file from the working directory, when present, and then
// collects the recognized options from the process environment.
func LoadEnv() *Env {
	// A missing .env file is the common case.
	_ = godotenv.Load()
	return EnvFromLookup(os.LookupEnv)
}

// EnvFromLookup builds an Env from an arbitrary lookup function.
func EnvFromLookup(lookup func(string) (string, bool)) *Env {
	get := func(key string) string {
		v, _ := lookup(key)
		return v
	}

	env := &Env{}
	strVars := map[string]*string{
		"SOURCE_DIR":                &env.SourceDir,
		"TASK_REQUEST":              &env.TaskRequest,
		"BUILD_CWD":                 &env.BuildCwd,
		"SQ_TYPE":                   &env.ServerModel,
		"SONARQUBE_USER":            &env.ServerRunUser,
		"SONAR_QUALITYPROFILE_TYPE": &env.QualityProfileType,
		"SONAR_DEVCOST":             &env.DevCost,
		"SONAR_DEBT_RATINGGRID":     &env.RatingGrid,
		"SONAR_REPORT":              &env.Report,
		"SONAR_BUILD_TYPE":          &env.BuildType,
		"SONAR_SRC":                 &env.Sources,
		"SONAR_JAVA_SRC":            &env.JavaSources,
		"SONAR_BIN":                 &env.Binaries,
		"SONAR_LIB":                 &env.Libraries,
		"SONAR_JAVA_VERSION":        &env.JavaVersion,
		"SONARQUBE_HOME":            &env.ServerHome,
		"SONAR_SCANNER_HOME":        &env.ScannerHome,
		"SQ_JDK_HOME":               &env.JDKHome,
	}
	for key, val := range strVars {
		*val = get(key)
	}

	env.ServerParams = SplitList(get("SONAR_SERVER_PARAMS"), ";")
	env.QualityProfiles = SplitList(get("SONAR_QUALITYPROFILE"), ";")
	env.ClientParams = SplitList(get("SQ_CLIENT_PARAMS"), ";")
	env.AnalyzeOptions = strings.Fields(get("SQ_ANALYZE_OPTIONS"))
	env.JavaPreBuild = get("SQ_JAVA_BUILD") != ""
	_, profileSet := lookup("SONAR_QUALITYPROFILE")
	_, typeSet := lookup("SONAR_QUALITYPROFILE_TYPE")
	env.QualityProfileSet = profileSet || typeSet

	if seconds, err := strconv.Atoi(strings.TrimSpace(get("SONAR_TIMEOUT"))); err == nil && seconds > 0 {
		env.Timeout = time.Duration(seconds) * time.Second
	}

	env.BuildType = strings.ToLower(SetThen(env.BuildType, "no_build"))
	env.Sources = SetThen(env.Sources, ".")
	env.JavaSources = SetThen(env.JavaSources, ".")
	env.Binaries = SetThen(env.Binaries, "**/*")

	return env
}

// ApplyEnv lets environment tool homes override the YAML ones.
func ApplyEnv(cfg *Config, env *Env) {
	cfg.Sonar.ServerHome = SetThen(env.ServerHome, cfg.Sonar.ServerHome)
	cfg.Sonar.ScannerHome = SetThen(env.ScannerHome, cfg.Sonar.ScannerHome)
	cfg.Sonar.JDKHome = SetThen(env.JDKHome, cfg.Sonar.JDKHome)
	cfg.Sonar.Timeout = SetThen(env.Timeout, cfg.Sonar.Timeout)
}
