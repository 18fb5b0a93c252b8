package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version    = "dev"
	configPath string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "fieldtrack",
	Short: "FieldTrack - offline-tolerant background location reporting agent",
	Long: `FieldTrack reports a field worker's location while they are on shift.
Each sample is written to the hosted store; samples that cannot be delivered
are kept in a durable local queue and retried when connectivity returns.`,
	Version: version,
	RunE: func(cmd *cobra.Command, args []string) error {
		// Default to agent command when no subcommand is provided
		return runAgent(cmd, args)
	},
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "/etc/fieldtrack/config.yaml", "Path to configuration file")
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
