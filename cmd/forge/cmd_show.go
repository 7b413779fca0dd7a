package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"styleforge/internal/forge"
	"styleforge/internal/session"
)

var showRaw bool

var showCmd = &cobra.Command{
	Use:   "show [session-id]",
	Short: "Render one session's report",
	Args:  cobra.ExactArgs(1),
	RunE:  showSession,
}

func init() {
	showCmd.Flags().BoolVar(&showRaw, "raw", false, "Print the markdown report without rendering")
}

func showSession(cmd *cobra.Command, args []string) error {
	store, idx, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer idx.Close()

	res, err := store.LoadResult(args[0])
	if err != nil {
		return fmt.Errorf("session %s: %w", args[0], err)
	}

	report := sessionReport(store, res)
	if showRaw {
		fmt.Print(report)
		return nil
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		fmt.Print(report)
		return nil
	}
	out, err := renderer.Render(report)
	if err != nil {
		fmt.Print(report)
		return nil
	}
	fmt.Print(out)
	return nil
}

// sessionReport builds the markdown report for one stored session.
func sessionReport(store *session.Store, res *forge.Result) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Session %s\n\n", res.SessionID)
	fmt.Fprintf(&b, "- **Kind**: %s\n", res.Kind)
	fmt.Fprintf(&b, "- **Target**: %s\n", res.Target)
	if res.Style != "" {
		fmt.Fprintf(&b, "- **Style**: %s\n", res.Style)
	}
	fmt.Fprintf(&b, "- **State**: %s\n", res.State)
	fmt.Fprintf(&b, "- **Best**: %.1f (iteration %d of %d)\n", res.BestScore, res.BestIteration, len(res.Attempts))
	fmt.Fprintf(&b, "- **Elapsed**: %.1fs\n\n", float64(res.Elapsed)/1000.0)

	if res.Error != "" {
		fmt.Fprintf(&b, "> %s\n\n", res.Error)
	}

	if res.Reference.DNA.Summary != "" {
		fmt.Fprintf(&b, "## Reference\n\n%s\n\n", res.Reference.DNA.Summary)
		if res.Reference.Description != "" {
			fmt.Fprintf(&b, "%s\n\n", res.Reference.Description)
		}
	}

	if len(res.Attempts) > 0 {
		b.WriteString("## Iterations\n\n")
		b.WriteString("| # | Status | Visual | Accuracy | DNA | Composite |\n")
		b.WriteString("|---|--------|--------|----------|-----|-----------|\n")
		for _, a := range res.Attempts {
			if a.Status == forge.AttemptComplete {
				fmt.Fprintf(&b, "| %d | %s | %.1f | %.1f | %.1f | %.1f |\n",
					a.Index, a.Status, a.Visual, a.Accuracy, a.DNAScore, a.Composite)
			} else {
				fmt.Fprintf(&b, "| %d | %s | - | - | - | - |\n", a.Index, a.Status)
			}
		}
		b.WriteString("\n")
	}

	if best := res.Best(); best != nil {
		fmt.Fprintf(&b, "## Best attempt (iteration %d)\n\n", best.Index)
		if best.Critique != "" {
			fmt.Fprintf(&b, "%s\n\n", best.Critique)
		}
		if len(best.Preserved) > 0 {
			fmt.Fprintf(&b, "**Preserved**: %s\n\n", strings.Join(best.Preserved, ", "))
		}
		if len(best.Lost) > 0 {
			fmt.Fprintf(&b, "**Lost**: %s\n\n", strings.Join(best.Lost, ", "))
		}
		if best.ImagePath != "" {
			fmt.Fprintf(&b, "Image: `%s`\n\n", best.ImagePath)
		}
	}

	// User ratings, when any iteration has been amended.
	var ratings []string
	for _, a := range res.Attempts {
		doc, err := store.LoadEvaluation(res.SessionID, a.Index)
		if err != nil || doc.UserRating == 0 {
			continue
		}
		line := fmt.Sprintf("- Iteration %d: %d/5", doc.Iteration, doc.UserRating)
		if doc.UserComment != "" {
			line += fmt.Sprintf(" (%s)", doc.UserComment)
		}
		ratings = append(ratings, line)
	}
	if len(ratings) > 0 {
		fmt.Fprintf(&b, "## Ratings\n\n%s\n", strings.Join(ratings, "\n"))
	}

	return b.String()
}
