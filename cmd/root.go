// Package cmd provides the command-line interface for the groupage engine.
package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"groupage/bootstrap"
	"groupage/config"
	"groupage/service"
	"groupage/storage"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// CLI output formatters
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	headerColor  = color.New(color.FgBlue, color.Bold)
)

// Global flags
var (
	configFile string
	outputJSON bool
	outputYAML bool
	noColor    bool
	dryRun     bool
)

// runTimeout bounds a single batch invocation.
const runTimeout = 30 * time.Minute

// NewRootCmd creates the root command with all subcommands.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "groupage",
		Short: "Announcement lifecycle engine for shared container shipping",
		Long: `groupage manages the lifecycle of container-sharing announcements:
validation, automatic expiration, historical backfill and consistency audits.

Announcements live in an external record store; this engine owns their
status, expiration dates and lifecycle transitions.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if noColor {
				color.NoColor = true
			}
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file (default: ./groupage.yaml)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output summaries as JSON")
	rootCmd.PersistentFlags().BoolVar(&outputYAML, "yaml", false, "output summaries as YAML")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(newSweepCmd())
	rootCmd.AddCommand(newMigrateCmd())
	rootCmd.AddCommand(newAuditCmd())
	rootCmd.AddCommand(newServeCmd())

	return rootCmd
}

// initRuntime builds the shared pieces every command needs.
func initRuntime() (*config.Config, *storage.RecordStore, service.Locker, *zap.SugaredLogger, func(), error) {
	logger, sugar, err := bootstrap.InitLogger()
	if err != nil {
		return nil, nil, nil, nil, nil, fmt.Errorf("init logger: %w", err)
	}
	cleanup := func() { _ = logger.Sync() }

	cfg, err := bootstrap.InitConfig(configFile, sugar)
	if err != nil {
		cleanup()
		return nil, nil, nil, nil, nil, err
	}

	store, err := bootstrap.InitStore(cfg, sugar)
	if err != nil {
		cleanup()
		return nil, nil, nil, nil, nil, err
	}

	locker := bootstrap.InitLocker(cfg, sugar)
	return cfg, store, locker, sugar, cleanup, nil
}

// printSummary renders a summary in the requested format.
func printSummary(title string, summary interface{}) error {
	switch {
	case outputJSON:
		data, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	case outputYAML:
		data, err := yaml.Marshal(summary)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
	default:
		headerColor.Println(title)
		data, err := yaml.Marshal(summary)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
	}
	return nil
}

func fail(err error) error {
	errorColor.Fprintf(os.Stderr, "Error: %v\n", err)
	return err
}
