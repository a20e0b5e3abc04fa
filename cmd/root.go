// File: cmd/root.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/harrymomomedia/admachin-sub003/internal/config"
	"github.com/harrymomomedia/admachin-sub003/internal/observability"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "sorabot",
	Short:   "Sorabot turns queued source videos into Sora characters.",
	Long: `Sorabot drives a real browser through Sora's character-creation wizard
for every pending task in the queue. The browser profile persists between
runs so a manual login only has to happen once.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// 1. Initialize configuration loading (Viper)
		if err := initializeConfig(); err != nil {
			return fmt.Errorf("failed to initialize configuration: %w", err)
		}

		// 2. Unmarshal the configuration
		var cfg config.Config
		if err := viper.Unmarshal(&cfg); err != nil {
			observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "sorabot"})
			return fmt.Errorf("failed to unmarshal config: %w", err)
		}

		// 3. Validate the configuration
		if err := cfg.Validate(); err != nil {
			observability.InitializeLogger(cfg.Logger)
			return fmt.Errorf("invalid configuration: %w", err)
		}

		// 4. Store the configuration globally
		config.Set(&cfg)

		// 5. Initialize the logger
		observability.InitializeLogger(cfg.Logger)
		logger := observability.GetLogger()
		logger.Info("Starting sorabot", zap.String("version", Version))

		return nil
	},
}

// Execute runs the root command with the context passed from main.go so a
// SIGINT shuts the run down gracefully.
func Execute(ctx context.Context) error {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			// context.Canceled during shutdown is expected, not a failure.
			if ctx.Err() == nil {
				logger.Error("Command execution failed", zap.Error(err))
			}
		} else {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./config.yaml)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(versionCmd)
}

// initializeConfig reads in the config file and ENV variables if set.
func initializeConfig() error {
	// Operator secrets usually live in a local .env next to the binary.
	_ = godotenv.Load()

	// Set default values so the agent can run with a minimal config.
	config.SetDefaults(viper.GetViper())

	// 1. Set up config file search paths
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// 2. Environment Variable Configuration
	viper.SetEnvPrefix("SORABOT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Explicitly bind the variables an operator is expected to set.

	// Task store connection string.
	_ = viper.BindEnv("postgres.url", "SORABOT_POSTGRES_URL")

	// Headless toggle. Absent or false means a visible window so the
	// operator can complete the interactive login.
	_ = viper.BindEnv("browser.headless", "SORABOT_BROWSER_HEADLESS")

	// 3. Read the configuration file
	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env cover it.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}
