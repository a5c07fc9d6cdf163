// Package cmd implements the gainlink command line.
package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/justyntemme/gainlink/internal/config"
	"github.com/justyntemme/gainlink/pkg/framework/logging"
)

var rootCmd = &cobra.Command{
	Use:   "gainlink",
	Short: "Inspect and exercise shared gain staging",
	Long: `gainlink talks to the registry that coordinator and participant
instances share on this machine. It lists the connected tracks, clears a
stale registry, suggests gain targets and can simulate a whole session
without a plugin host.`,
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: teardown,
}

var (
	cfg       *config.Config
	log       = logr.Discard()
	logCloser io.Closer
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	flags := rootCmd.PersistentFlags()
	flags.StringP("config", "c", "", "config file (default is $HOME/.config/gainlink/config.yaml)")
	flags.String("registry", "", "registry file shared by all instances")
	flags.String("log-level", "", "log level: "+strings.Join(config.ValidLogLevels(), ", "))
	flags.String("log-file", "", "write logs to this file instead of stderr")

	_ = viper.BindPFlag("config", flags.Lookup("config"))
	_ = viper.BindPFlag("registry.path", flags.Lookup("registry"))
	_ = viper.BindPFlag("logging.level", flags.Lookup("log-level"))
	_ = viper.BindPFlag("logging.file", flags.Lookup("log-file"))
}

func initConfig() {
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix(config.EnvPrefix)
	// GAINLINK_TIMING_FRESHNESS for timing.freshness
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}

// setup loads the configuration and builds the logger every command uses.
func setup(*cobra.Command, []string) error {
	loaded, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cfg = loaded

	if cfg.Logging.File != "" {
		log, logCloser, err = logging.NewFileLogger(cfg.Logging.File, cfg.Logging.Level)
	} else {
		log, err = logging.New(os.Stderr, cfg.Logging.Level)
	}
	if err != nil {
		return err
	}
	logging.SetDefault(log)
	return nil
}

func teardown(*cobra.Command, []string) error {
	if logCloser == nil {
		return nil
	}
	err := logCloser.Close()
	logCloser = nil
	return err
}
