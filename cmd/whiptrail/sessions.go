package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/Mr-Dark-debug/whiptrail/internal/database"
	"github.com/Mr-Dark-debug/whiptrail/pkg/timeutil"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
)

var (
	sessionSource string
	sessionStatus string
	sessionSince  time.Duration
	sessionLimit  int
	sessionJSON   bool

	samplesSession string
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List recorded sessions",
	RunE:  runSessions,
}

var samplesCmd = &cobra.Command{
	Use:   "samples",
	Short: "Dump one session's pointer samples as JSON",
	RunE:  runSamples,
}

func init() {
	sessionsCmd.Flags().StringVar(&sessionSource, "source", "", "Filter by source: tui, websocket, socket, simulate")
	sessionsCmd.Flags().StringVar(&sessionStatus, "status", "", "Filter by status: recording, complete, aborted")
	sessionsCmd.Flags().DurationVar(&sessionSince, "since", 0, "Only sessions started within this long ago")
	sessionsCmd.Flags().IntVar(&sessionLimit, "limit", 20, "Maximum results")
	sessionsCmd.Flags().BoolVar(&sessionJSON, "json", false, "Print JSON instead of a table")

	samplesCmd.Flags().StringVar(&samplesSession, "session", "", "Session ID (required)")
	samplesCmd.MarkFlagRequired("session")
}

func runSessions(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	filter := database.SessionFilter{Limit: sessionLimit}
	if sessionSource != "" {
		filter.Source = &sessionSource
	}
	if sessionStatus != "" {
		filter.Status = &sessionStatus
	}
	if sessionSince > 0 {
		since := time.Now().Add(-sessionSince).UnixNano()
		filter.Since = &since
	}

	sessions, err := store.QuerySessions(filter)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}

	out := cmd.OutOrStdout()
	if sessionJSON {
		return writeJSON(out, sessions)
	}
	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions.")
		return nil
	}
	fmt.Fprintln(out, sessionTable(sessions))
	return nil
}

func sessionTable(sessions []*database.Session) string {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("SESSION", "SOURCE", "STATUS", "POINTS", "STARTED", "DURATION")
	for _, s := range sessions {
		duration := "-"
		if s.EndTime != nil {
			duration = timeutil.FormatDuration(time.Duration(*s.EndTime - s.StartTime))
		}
		t.Row(
			s.SessionID,
			s.Source,
			s.Status,
			strconv.Itoa(s.Points),
			timeutil.FormatTimestampFull(s.StartTime),
			duration,
		)
	}
	return t.String()
}

func runSamples(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if _, err := store.GetSession(samplesSession); err != nil {
		return err
	}
	samples, err := store.QuerySamples(samplesSession)
	if err != nil {
		return fmt.Errorf("query failed: %w", err)
	}
	return writeJSON(cmd.OutOrStdout(), samples)
}

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}
