package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/goodtune/fieldtrack/internal/config"
	"github.com/goodtune/fieldtrack/internal/storage"
	"github.com/spf13/cobra"
)

var (
	sessionsUser  string
	sessionsLimit int
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List a worker's recent work sessions",
	Example: `  fieldtrack sessions --user worker-1
  fieldtrack -c config.yaml sessions --user worker-1 --limit 5`,
	Args: cobra.NoArgs,
	RunE: runSessions,
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionsUser, "user", "", "Worker user ID (required)")
	sessionsCmd.Flags().IntVar(&sessionsLimit, "limit", 0, "Maximum sessions to show (defaults to tracking.session_limit)")
	_ = sessionsCmd.MarkFlagRequired("user")
	rootCmd.AddCommand(sessionsCmd)
}

func runSessions(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	remote, err := openRemote(cfg.Remote)
	if err != nil {
		return fmt.Errorf("failed to open remote store: %w", err)
	}
	defer func() { _ = remote.Close() }()

	limit := sessionsLimit
	if limit <= 0 {
		limit = cfg.Tracking.SessionLimit
	}

	sessions, err := remote.Sessions().ListRecent(context.Background(), sessionsUser, limit)
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	printSessions(sessionsUser, sessions)
	return nil
}

func printSessions(userID string, sessions []storage.WorkSession) {
	cyan := color.New(color.FgCyan, color.Bold)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow, color.Bold)

	if len(sessions) == 0 {
		fmt.Fprintf(os.Stdout, "No work sessions for %s\n", userID)
		return
	}

	_, _ = cyan.Fprintf(os.Stdout, "Work sessions for %s\n\n", userID)
	for _, s := range sessions {
		started := s.StartedAt.Local().Format("2006-01-02 15:04")
		if s.Status == storage.SessionActive {
			_, _ = yellow.Fprintf(os.Stdout, "  %s  %s  active\n", s.ID, started)
			continue
		}
		_, _ = green.Fprintf(os.Stdout, "  %s  %s  %-9s  %8.2f km\n",
			s.ID, started, s.Duration().Round(time.Minute), s.TotalDistanceKm)
	}
}
