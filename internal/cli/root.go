package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/agrilocal/advisory-aggregation/internal/app"
	"github.com/agrilocal/advisory-aggregation/internal/config"
	"github.com/agrilocal/advisory-aggregation/internal/logx"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	flagDebug  bool
	flagPretty bool
)

var rootCmd = &cobra.Command{
	Use:           "agrilocal",
	Short:         "Agricultural advisory aggregation engine",
	Long:          "agrilocal gathers weather, pest, soil, irrigation and market advisories for a farm from pluggable providers.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&flagPretty, "pretty", false, "human readable console logs")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(menuCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "agrilocal %s (commit: %s, built: %s)\n", version, commit, date)
	},
}

// bootstrap loads configuration, initialises logging to logOut and builds the engine.
func bootstrap(logOut io.Writer) (*app.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if flagDebug {
		cfg.Log.Debug = true
	}
	if flagPretty {
		cfg.Log.PrettyFormat = true
	}
	logx.InitTo(logOut, cfg.Log)

	return app.Build(cfg)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
}
