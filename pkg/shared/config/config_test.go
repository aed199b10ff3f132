package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yml"))
	require.NoError(t, err)

	assert.Equal(t, "http://localhost", cfg.Server.Local.URL)
	assert.Equal(t, 9000, cfg.Server.Local.Port)
	assert.Equal(t, "test", cfg.Server.Local.ProjectKey)
	assert.Nil(t, cfg.Server.Common)
	assert.Equal(t, DefaultTimeout, cfg.Sonar.Timeout)
	assert.Equal(t, DefaultPollInterval, cfg.Sonar.PollInterval)
	assert.NoError(t, ValidateConfig(cfg))
}

func TestLoadConfigFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yml")
	content := `
logger:
  level: debug
sonar:
  timeout: 60s
  poll_interval: 1s
server:
  local:
    port: 9100
  common:
    url: sonar.example.com
    port: 443
    username: token123
    project_key: shared
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.NoError(t, ValidateConfig(cfg))

	assert.Equal(t, "debug", cfg.Logger.Level)
	assert.Equal(t, 60*time.Second, cfg.Sonar.Timeout)
	assert.Equal(t, time.Second, cfg.Sonar.PollInterval)
	assert.Equal(t, 9100, cfg.Server.Local.Port)
	require.NotNil(t, cfg.Server.Common)
	assert.Equal(t, "http://sonar.example.com", cfg.Server.Common.URL)
	assert.Equal(t, "shared", cfg.Server.Common.ProjectKey)
}

func TestToolHomesUnderToolsDir(t *testing.T) {
	tools := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(tools, "sonar-scanner", "bin"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(tools, "jdk"), 0o755))

	path := filepath.Join(t.TempDir(), "config.yml")
	content := "sonar:\n  tools_dir: " + tools + "\n  jdk_home: /opt/jdk11\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tools, "sonar-scanner"), cfg.Sonar.ScannerHome)
	assert.Equal(t, "/opt/jdk11", cfg.Sonar.JDKHome)
	assert.Empty(t, cfg.Sonar.ServerHome)
}

func TestValidateServerUser(t *testing.T) {
	tests := []struct {
		name    string
		user    ServerUser
		wantErr string
	}{
		{name: "valid", user: ServerUser{URL: "http://localhost", Port: 9000, Username: "admin"}},
		{name: "missing url", user: ServerUser{Port: 9000, Username: "admin"}, wantErr: "url must be set"},
		{name: "bad port", user: ServerUser{URL: "http://localhost", Port: 0, Username: "admin"}, wantErr: "port must be between 1 and 65535, got 0"},
		{name: "bad base path", user: ServerUser{URL: "http://localhost", Port: 9000, BasePath: "sonar", Username: "admin"}, wantErr: `base_path must start with '/': "sonar"`},
		{name: "missing user", user: ServerUser{URL: "http://localhost", Port: 9000}, wantErr: "username (or token) must be set"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateServerUser(&tt.user)
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.EqualError(t, err, tt.wantErr)
			}
		})
	}
}

func TestEnvFromLookup(t *testing.T) {
	vars := map[string]string{
		"SONAR_TIMEOUT":        "42",
		"SQ_TYPE":              "COMMON",
		"SONAR_QUALITYPROFILE": `"a.xml;b.xml;"`,
		"SQ_CLIENT_PARAMS":     "-Dsonar.javascript.globals=;-Dsonar.javascript.environments=",
		"SQ_ANALYZE_OPTIONS":   "-Dx=1  -Dy=2",
		"SONAR_BUILD_TYPE":     "Gradle",
		"SQ_JAVA_BUILD":        "1",
	}
	env := EnvFromLookup(func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	})

	assert.Equal(t, 42*time.Second, env.Timeout)
	assert.Equal(t, "COMMON", env.ServerModel)
	assert.Equal(t, []string{"a.xml", "b.xml"}, env.QualityProfiles)
	assert.True(t, env.IsQualityProfileMode())
	assert.Equal(t, []string{"-Dsonar.javascript.globals=", "-Dsonar.javascript.environments="}, env.ClientParams)
	assert.Equal(t, []string{"-Dx=1", "-Dy=2"}, env.AnalyzeOptions)
	assert.Equal(t, "gradle", env.BuildType)
	assert.True(t, env.JavaPreBuild)
	assert.Equal(t, ".", env.Sources)
	assert.Equal(t, "**/*", env.Binaries)
}

func TestEnvDefaults(t *testing.T) {
	env := EnvFromLookup(func(string) (string, bool) { return "", false })

	assert.Equal(t, time.Duration(0), env.Timeout)
	assert.Equal(t, "no_build", env.BuildType)
	assert.False(t, env.IsQualityProfileMode())
	assert.Nil(t, env.ClientParams)
}

func TestQualityProfileModeFollowsPresence(t *testing.T) {
	for _, key := range []string{"SONAR_QUALITYPROFILE", "SONAR_QUALITYPROFILE_TYPE"} {
		t.Run(key, func(t *testing.T) {
			env := EnvFromLookup(func(k string) (string, bool) {
				if k == key {
					return "", true
				}
				return "", false
			})
			assert.Empty(t, env.QualityProfiles)
			assert.Empty(t, env.QualityProfileType)
			assert.True(t, env.IsQualityProfileMode())
		})
	}
}

func TestSetThen(t *testing.T) {
	assert.Equal(t, "b", SetThen("", "b"))
	assert.Equal(t, "a", SetThen("a", "b"))
	assert.Equal(t, 5, SetThen(0, 5))
}
