package main

import (
	"fmt"
	"os"
	"path/filepath"

	"taskflow/internal/config"
	"taskflow/internal/logging"

	"github.com/spf13/cobra"
)

var (
	version  = "0.1.0"
	cfgFile  string
	model    string
	userID   string
	logLevel string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "taskflow",
		Short: "Turn spoken descriptions of your routine into a task graph",
		Long: `Taskflow keeps a directed graph of your daily tasks per user. Describe
what you do in plain language and a language model proposes graph edits,
which are checked against what you said before they are applied.`,
		SilenceUsage: true,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/taskflow/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&model, "model", "", "model to use (default is "+config.DefaultModel+")")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", defaultUser(), "user whose graph to work on")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		newServeCmd(),
		newSayCmd(),
		newGraphCmd(),
		newRoutinesCmd(),
		newClearCmd(),
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "taskflow version %s\n", version)
			},
		},
	)

	err := rootCmd.Execute()
	logging.Close()
	if err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file and applies flag overrides. local is true
// for one-shot commands, which need a persistent store to be useful.
func loadConfig(local bool) (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if model != "" {
		cfg.Model.Name = model
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	cfg.Version = version

	if local && cfg.Store.Backend == "memory" {
		dir, err := dataDir()
		if err != nil {
			return nil, err
		}
		cfg.Store.Backend = "sqlite"
		cfg.Store.Path = filepath.Join(dir, "taskflow.db")
	}

	if err := setupLogging(cfg, local); err != nil {
		return nil, err
	}
	return cfg, nil
}

// setupLogging sends logs to stderr for the server. One-shot commands only
// log to a file, and only when a log directory is configured.
func setupLogging(cfg *config.Config, local bool) error {
	level := logging.ParseLevel(cfg.Logging.Level)
	if cfg.Logging.Dir != "" {
		if err := logging.EnableFileLogging(cfg.Logging.Dir, level); err != nil {
			return fmt.Errorf("failed to enable file logging: %w", err)
		}
	}
	// Configure keeps the log file, if any, as a second destination.
	if !local {
		logging.Configure(level, os.Stderr)
	}
	return nil
}

func dataDir() (string, error) {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, config.AppDir), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to find home directory: %w", err)
	}
	return filepath.Join(home, ".local", "share", config.AppDir), nil
}

func defaultUser() string {
	if u := os.Getenv("TASKFLOW_USER"); u != "" {
		return u
	}
	if u := os.Getenv("USER"); u != "" {
		return u
	}
	return "local"
}
