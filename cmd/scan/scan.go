package scan

import (
	"github.com/spf13/cobra"

	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/runner"
	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/scancmd"
	"github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/config"
	"github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/logger"
)

// AppConfig is the configuration shared by every scan command.
var AppConfig *config.Config

var exampleScanUsage = `  # Analyze the sources described by the request file
  SOURCE_DIR=/path/to/code TASK_REQUEST=/path/to/request.json sqrun generic

  # Analyze a Maven project on the shared server
  SQ_TYPE=COMMON SONAR_BUILD_TYPE=maven SOURCE_DIR=/path/to/code TASK_REQUEST=/path/to/request.json sqrun java`

// Init initializes the global configuration variable.
func Init(cfg *config.Config) {
	AppConfig = cfg
}

// NewScanCmd creates the command running one analysis of the given family.
func NewScanCmd(family runner.Family, short string) *cobra.Command {
	return &cobra.Command{
		Use:                   string(family),
		SilenceUsage:          true,
		DisableFlagsInUseLine: true,
		Example:               exampleScanUsage,
		Short:                 short,
		Args:                  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScan(cmd, family)
		},
	}
}

func runScan(cmd *cobra.Command, family runner.Family) error {
	log := logger.NewLogger(AppConfig, "sqrun-"+string(family))
	env := config.LoadEnv()

	r, err := runner.New(log, AppConfig, env, runner.Options{
		Family:      family,
		ScanOptions: scancmd.DefaultOptions(),
	})
	if err != nil {
		log.Error("failed to prepare the run", "error", err)
		return err
	}
	if err := r.Run(cmd.Context()); err != nil {
		log.Error("scan command failed", "error", err)
		return err
	}
	log.Info("scan command completed successfully")
	return nil
}
