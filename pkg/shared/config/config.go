package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	yaml "gopkg.in/yaml.v2"
)

// Config is the global configuration loaded from config.yml.
type Config struct {
	Logger     Logger     `yaml:"logger"`
	HTTPClient HTTPClient `yaml:"http_client"`
	Sonar      Sonar      `yaml:"sonar"`
	Server     Server     `yaml:"server"`
}

type Logger struct {
	Level   string `yaml:"level"`
	LogFile string `yaml:"log_file"` // server log mirror, rotated by size
}

type HTTPClient struct {
	Debug             *bool           `yaml:"debug"`
	RetryCount        int             `yaml:"retry_count"`
	RetryWaitTime     time.Duration   `yaml:"retry_wait_time"`
	RetryMaxWaitTime  time.Duration   `yaml:"retry_max_wait_time"`
	Timeout           time.Duration   `yaml:"timeout"`
	RequestsPerSecond float64         `yaml:"requests_per_second"`
	TLSClientConfig   TLSClientConfig `yaml:"tls_client_config"`
	Proxy             Proxy           `yaml:"proxy"`
}

type TLSClientConfig struct {
	Verify *bool `yaml:"verify"`
}

type Proxy struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Sonar holds the locations of the analysis engine and the wait-phase tuning.
type Sonar struct {
	ToolsDir      string        `yaml:"tools_dir"`
	ProfilesDir   string        `yaml:"profiles_dir"`
	ServerHome    string        `yaml:"server_home"`
	ScannerHome   string        `yaml:"scanner_home"`
	JDKHome       string        `yaml:"jdk_home"`
	Timeout       time.Duration `yaml:"timeout"`
	PollInterval  time.Duration `yaml:"poll_interval"`
	CreateRetries int           `yaml:"create_retries"`
}

// Server describes the local server the run may own and the optional shared one.
type Server struct {
	Local  ServerUser  `yaml:"local"`
	Common *ServerUser `yaml:"common"`
}

// ServerUser is a set of connection credentials for one server instance.
type ServerUser struct {
	URL        string `yaml:"url"`
	Port       int    `yaml:"port"`
	BasePath   string `yaml:"base_path"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	ProjectKey string `yaml:"project_key"`
}

func ValidateConfigPath(path string) error {
	s, err := os.Stat(path)
	if err != nil {
		return err
	}
	if s.IsDir() {
		return fmt.Errorf("'%s' is a directory, not a file", path)
	}
	return nil
}

func LoadYAML(configPath string, data interface{}) error {
	if err := ValidateConfigPath(configPath); err != nil {
		return err
	}

	file, err := os.Open(configPath)
	if err != nil {
		return err
	}
	defer file.Close()

	d := yaml.NewDecoder(file)
	if err := d.Decode(data); err != nil {
		return err
	}

	return nil
}

// LoadConfig reads the YAML configuration. A missing file is not an error:
// the defaults describe a local server on localhost:9000.
func LoadConfig(configPath string) (*Config, error) {
	config := &Config{}

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	if err := LoadYAML(configPath, config); err != nil {
		return nil, err
	}
	applyDefaults(config)

	return config, nil
}

// DefaultConfig returns the configuration used when no file is present.
func DefaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	local := &cfg.Server.Local
	local.URL = SetThen(local.URL, DefaultLocalUser().URL)
	local.Port = SetThen(local.Port, DefaultLocalUser().Port)
	local.Username = SetThen(local.Username, DefaultLocalUser().Username)
	local.Password = SetThen(local.Password, DefaultLocalUser().Password)
	local.ProjectKey = SetThen(local.ProjectKey, DefaultLocalUser().ProjectKey)

	cfg.Sonar.Timeout = SetThen(cfg.Sonar.Timeout, DefaultTimeout)
	cfg.Sonar.PollInterval = SetThen(cfg.Sonar.PollInterval, DefaultPollInterval)
	cfg.Sonar.CreateRetries = SetThen(cfg.Sonar.CreateRetries, DefaultCreateRetries)
	cfg.Sonar.ToolsDir = SetThen(cfg.Sonar.ToolsDir, "tools")
	cfg.Sonar.ProfilesDir = SetThen(cfg.Sonar.ProfilesDir, "profiles")

	sonar := &cfg.Sonar
	sonar.ServerHome = SetThen(sonar.ServerHome, toolHome(sonar.ToolsDir, "sonarqube"))
	sonar.ScannerHome = SetThen(sonar.ScannerHome, toolHome(sonar.ToolsDir, "sonar-scanner"))
	sonar.JDKHome = SetThen(sonar.JDKHome, toolHome(sonar.ToolsDir, "jdk"))
}

// toolHome returns dir/name when that directory is installed, otherwise "".
func toolHome(dir, name string) string {
	home := filepath.Join(dir, name)
	if info, err := os.Stat(home); err == nil && info.IsDir() {
		return home
	}
	return ""
}
