package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"styleforge/internal/session"
)

var sessionsLimit int

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List forge sessions",
	RunE:  listSessions,
}

func init() {
	sessionsCmd.Flags().IntVarP(&sessionsLimit, "limit", "n", 20, "Maximum sessions to list (0 for all)")
}

var (
	sessionsHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	convergedStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	failedStyle         = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func listSessions(cmd *cobra.Command, args []string) error {
	idx, err := session.NewIndex(cfg.Session.DatabasePath)
	if err != nil {
		return err
	}
	defer idx.Close()

	rows, err := idx.List(sessionsLimit)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		fmt.Println("No sessions recorded yet.")
		return nil
	}

	fmt.Println(sessionsHeaderStyle.Render(fmt.Sprintf("%-36s  %-12s  %-24s  %-10s  %6s  %s",
		"SESSION", "KIND", "TARGET", "STATE", "SCORE", "STARTED")))
	for _, row := range rows {
		target := row.Target
		if len(target) > 24 {
			target = target[:21] + "..."
		}
		state := row.State
		switch row.State {
		case "converged":
			state = convergedStyle.Render(row.State)
		case "fatal-error":
			state = failedStyle.Render(row.State)
		}
		fmt.Printf("%-36s  %-12s  %-24s  %-10s  %6.1f  %s\n",
			row.ID, row.Kind, target, state, row.BestScore,
			row.StartedAt.Format("2006-01-02 15:04"))
	}
	return nil
}
