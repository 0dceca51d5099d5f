package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile     string
	backendType string
	logLevel    string
	logFormat   string

	appVersion string
	appCommit  string
)

// replacer maps config keys to environment variable names, scheduler.node_id is read from
// DISPATCH_SCHEDULER_NODE_ID.
var replacer = strings.NewReplacer(".", "_")

var rootCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Start and resume long-running workflow instances",
	Long: `dispatch publishes workflow definitions, delivers stimuli to the instances waiting
for them and runs scheduler nodes that fire delayed bookmarks.

Configuration is read from dispatch.yaml, flags and DISPATCH_* environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		return initConfig()
	},
}

func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(rootCmd.ErrOrStderr(), "error:", err)
		return err
	}

	return nil
}

func SetVersion(version, commit string) {
	appVersion = version
	appCommit = commit
	rootCmd.Version = fmt.Sprintf("%s (%s)", version, commit)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./dispatch.yaml)")
	rootCmd.PersistentFlags().StringVar(&backendType, "backend", "sqlite", "backend to use: memory, sqlite, mysql, postgres, redis")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")

	_ = viper.BindPFlag("backend.type", rootCmd.PersistentFlags().Lookup("backend"))
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format"))

	setDefaults(viper.GetViper())
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("dispatch")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.config/dispatch")
	}

	viper.SetEnvPrefix("DISPATCH")
	viper.SetEnvKeyReplacer(replacer)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("reading config: %w", err)
		}
	}

	return nil
}
