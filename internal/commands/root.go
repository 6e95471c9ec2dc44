package commands

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"calendartask/internal/config"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	cfgFile string
	v       = config.NewViper()
)

var rootCmd = &cobra.Command{
	Use:   "calendartask",
	Short: "Calendar and task backend with recurring tasks",
	Long: `calendartask serves a REST API for tasks and calendar views and expands
recurring tasks into concrete instances.`,
	SilenceUsage: true,
}

// loadRuntime reads the config file, applies CALTASK_* env and flag overrides
// and builds the logger.
func loadRuntime() (*config.Config, *zap.SugaredLogger, error) {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return nil, nil, err
	}
	config.ApplyOverrides(cfg, v)
	log, err := config.NewLogger(cfg.Log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to init logger: %w", err)
	}
	return cfg, log, nil
}

// SetVersion sets the version information
func SetVersion(ver, c, d string) {
	version = ver
	commit = c
	date = d
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func bindFlag(v *viper.Viper, key, flag string) {
	if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "config/config.yaml", "path to the YAML config file")
	flags.Int("port", 0, "HTTP port (overrides server.port)")
	flags.String("db-driver", "", "database driver: postgres or sqlite")
	flags.String("db-url", "", "postgres DSN or sqlite file path")

	bindFlag(v, "server.port", "port")
	bindFlag(v, "database.driver", "db-driver")
	bindFlag(v, "database.url", "db-url")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(expandCmd)
	rootCmd.AddCommand(versionCmd)
}
