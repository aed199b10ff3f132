package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GabrielLegend/tca-plugin-sonarqube/cmd/check"
	"github.com/GabrielLegend/tca-plugin-sonarqube/cmd/scan"
	"github.com/GabrielLegend/tca-plugin-sonarqube/cmd/version"
	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/runner"
	"github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/config"
	errs "github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/errors"
)

var (
	cfgFile   string
	AppConfig *config.Config
	rootCmd   = &cobra.Command{
		Use:                   "sqrun [command]",
		SilenceUsage:          true,
		SilenceErrors:         true,
		DisableFlagsInUseLine: true,
		Short:                 "sqrun runs one static analysis against a SonarQube compatible server.",
		Long: `sqrun orchestrates a single analysis run: it starts or reuses an analysis server,
	publishes the quality profiles of the request, builds and scans the sources,
	waits for the server side analysis and writes the normalized findings.
	`,
	}
)

func init() {
	rootCmd.PersistentPreRunE = initConfig
	rootCmd.AddCommand(
		scan.NewScanCmd(runner.FamilyGeneric, "Analyze the sources with the generic scanner"),
		scan.NewScanCmd(runner.FamilyJava, "Analyze a Java project with its build system (SONAR_BUILD_TYPE)"),
		scan.NewScanCmd(runner.FamilyCSharp, "Analyze a C# project with the MSBuild scanner"),
		check.CheckCmd,
		version.NewVersionCmd(),
	)
}

// Execute runs the command line and returns the process exit status.
func Execute() int {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		return errs.ExitCode(err)
	}
	return 0
}

func initConfig(cmd *cobra.Command, _ []string) error {
	cfgFile = os.Getenv("SQRUN_CONFIG")
	if cfgFile == "" {
		cfgFile = "config.yml"
	}
	cfg, cfgErr := loadConfig(cfgFile, cmd.Annotations[check.AnnotationConfigOptional] == "true")
	if cfg == nil {
		return cfgErr
	}
	AppConfig = cfg

	scan.Init(AppConfig)
	check.Init(AppConfig, cfgErr)
	version.Init(AppConfig)
	return nil
}

// loadConfig reads and validates the config file. When optional is set a
// broken file yields the defaults together with the reason.
func loadConfig(path string, optional bool) (*config.Config, error) {
	cfg, err := config.LoadConfig(path)
	if err == nil {
		err = config.ValidateConfig(cfg)
	}
	if err == nil {
		return cfg, nil
	}

	cfgErr := errs.NewConfigError(errs.PhaseRequest, err, "failed to load config file %s", path)
	if optional {
		return config.DefaultConfig(), cfgErr
	}
	return nil, cfgErr
}
