package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/goodtune/fieldtrack/internal/config"
	"github.com/goodtune/fieldtrack/internal/tracking"
	"github.com/spf13/cobra"
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Inspect and sync the offline location queue",
	Long: `Inspect and sync the offline location queue. The agent holds the local
store open, so stop it (or use the control API) before running these commands
against a bolt store.`,
}

var queueStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show samples waiting for delivery",
	Args:  cobra.NoArgs,
	RunE:  runQueueStatus,
}

var queueDrainCmd = &cobra.Command{
	Use:   "drain",
	Short: "Deliver queued samples to the remote store once",
	Args:  cobra.NoArgs,
	RunE:  runQueueDrain,
}

func init() {
	queueCmd.AddCommand(queueStatusCmd)
	queueCmd.AddCommand(queueDrainCmd)
	rootCmd.AddCommand(queueCmd)
}

func runQueueStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := quietLogger()
	p, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close(logger)

	ctx := context.Background()
	entries, err := p.queue.Entries(ctx)
	if err != nil {
		return fmt.Errorf("failed to read queue: %w", err)
	}

	printQueue(entries)

	if user, err := p.registration.ActiveUser(ctx); err == nil {
		fmt.Fprintf(os.Stdout, "\nRegistered user: %s\n", user)
	}
	return nil
}

func runQueueDrain(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := quietLogger()
	p, err := buildPipeline(cfg, logger)
	if err != nil {
		return err
	}
	defer p.Close(logger)

	result := p.controller.SyncOffline(context.Background())
	printDrainResult(result)

	if result.Remaining > 0 {
		return fmt.Errorf("%d sample(s) still pending", result.Remaining)
	}
	return nil
}

func printQueue(entries []tracking.QueuedSample) {
	cyan := color.New(color.FgCyan, color.Bold)
	yellow := color.New(color.FgYellow)
	green := color.New(color.FgGreen)

	if len(entries) == 0 {
		_, _ = green.Fprintln(os.Stdout, "✅ Offline queue is empty")
		return
	}

	_, _ = cyan.Fprintf(os.Stdout, "Offline queue: %d sample(s)\n\n", len(entries))
	for _, entry := range entries {
		state := yellow.Sprint("pending")
		if entry.Synced {
			state = green.Sprint("synced")
		}
		fmt.Fprintf(os.Stdout, "  %s  %-12s  %10.6f,%11.6f  %s  %s\n",
			entry.ID,
			entry.UserID,
			entry.Latitude,
			entry.Longitude,
			entry.RecordedAt.Format("2006-01-02 15:04:05Z07:00"),
			state,
		)
	}
}

func printDrainResult(result tracking.DrainResult) {
	green := color.New(color.FgGreen, color.Bold)
	red := color.New(color.FgRed, color.Bold)

	if result.Attempted == 0 {
		_, _ = green.Fprintln(os.Stdout, "✅ Nothing to sync")
		return
	}

	out := green
	if result.Remaining > 0 {
		out = red
	}
	_, _ = out.Fprintf(os.Stdout, "Synced %d of %d sample(s), %d remaining\n",
		result.Synced, result.Attempted, result.Remaining)
}
