package check

import (
	"context"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/report"
	"github.com/GabrielLegend/tca-plugin-sonarqube/internal/runner"
	"github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/config"
	"github.com/GabrielLegend/tca-plugin-sonarqube/pkg/shared/logger"
)

var (
	AppConfig *config.Config
	configErr error
)

// AnnotationConfigOptional marks a command that runs even when the config
// file cannot be loaded.
const AnnotationConfigOptional = "sqrun/config-optional"

// CheckCmd reports whether this host can run an analysis. It always exits 0;
// the verdict is written to check_result.json.
var CheckCmd = &cobra.Command{
	Use:                   "check",
	SilenceUsage:          true,
	DisableFlagsInUseLine: true,
	Short:                 "Check that the analysis engine can run on this host",
	Args:                  cobra.NoArgs,
	Annotations:           map[string]string{AnnotationConfigOptional: "true"},
	Run:                   runCheckCommand,
}

// Init initializes the global configuration variable. cfgErr is the reason
// the defaults replaced a broken config file, if any.
func Init(cfg *config.Config, cfgErr error) {
	AppConfig = cfg
	configErr = cfgErr
}

func runCheckCommand(cmd *cobra.Command, args []string) {
	log := logger.NewLogger(AppConfig, "sqrun-check")
	env := config.LoadEnv()
	config.ApplyEnv(AppConfig, env)
	runCheck(cmd.Context(), log, AppConfig, configErr, ".")
}

// runCheck writes the verdict into dir and returns it.
func runCheck(ctx context.Context, log hclog.Logger, cfg *config.Config, cfgErr error, dir string) bool {
	usable := false
	if cfgErr != nil {
		log.Error("tool is not usable", "error", cfgErr)
	} else {
		usable = runner.CheckUsable(ctx, log, cfg.Sonar.JDKHome)
	}
	if err := report.WriteUsability(dir, usable); err != nil {
		log.Error("failed to write the check result", "error", err)
		return usable
	}
	log.Info("check completed", "usable", usable)
	return usable
}
