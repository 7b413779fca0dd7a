package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	rateValue   int
	rateComment string
)

var rateCmd = &cobra.Command{
	Use:   "rate [session-id] [iteration]",
	Short: "Rate one iteration of a stored session",
	Long: `Amends an iteration's evaluation document with a 1-5 rating and an
optional comment. The rest of the session directory is untouched.

Example:
  forge rate 7f3c9a1e 2 --rating 4 --comment "terminals finally right"`,
	Args: cobra.ExactArgs(2),
	RunE: rateIteration,
}

func init() {
	rateCmd.Flags().IntVar(&rateValue, "rating", 0, "Rating 1-5 (required)")
	rateCmd.Flags().StringVar(&rateComment, "comment", "", "Optional comment")
	_ = rateCmd.MarkFlagRequired("rating")
}

func rateIteration(cmd *cobra.Command, args []string) error {
	iteration, err := strconv.Atoi(args[1])
	if err != nil || iteration < 1 {
		return fmt.Errorf("invalid iteration %q", args[1])
	}

	store, idx, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer idx.Close()

	doc, err := store.Rate(args[0], iteration, rateValue, rateComment)
	if err != nil {
		return err
	}
	fmt.Printf("Rated session %s iteration %d: %d/5\n", doc.SessionID, doc.Iteration, doc.UserRating)
	return nil
}
