package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"styleforge/internal/dna"
	"styleforge/internal/forge"

	"styleforge/cmd/forge/ui"
)

var (
	runReference     string
	runKind          string
	runStyle         string
	runMaxIterations int
	runThreshold     float64
	runPlain         bool
)

var runCmd = &cobra.Command{
	Use:   "run [target]",
	Short: "Run one forge session",
	Long: `Runs a full forge session for the given target text or subject.

Example:
  forge run "FORGE" --reference didone.png
  forge run "a fox mascot" --reference mascot.png --kind illustration`,
	Args: cobra.ExactArgs(1),
	RunE: runForge,
}

func init() {
	runCmd.Flags().StringVarP(&runReference, "reference", "r", "", "Reference image file (required)")
	runCmd.Flags().StringVarP(&runKind, "kind", "k", "typeface", "Session kind: typeface or illustration")
	runCmd.Flags().StringVarP(&runStyle, "style", "s", "", "Optional style strategy selector")
	runCmd.Flags().IntVar(&runMaxIterations, "max-iterations", 0, "Iteration budget (default per kind)")
	runCmd.Flags().Float64Var(&runThreshold, "threshold", 0, "Convergence threshold (default per kind)")
	runCmd.Flags().BoolVar(&runPlain, "plain", false, "Print progress lines instead of the live view")
	_ = runCmd.MarkFlagRequired("reference")
}

func runForge(cmd *cobra.Command, args []string) error {
	target := strings.TrimSpace(args[0])
	kind := dna.Kind(runKind)
	if !kind.Valid() {
		return fmt.Errorf("unknown kind %q (want typeface or illustration)", runKind)
	}

	reference, mime, err := readReference(runReference)
	if err != nil {
		return err
	}

	ctx := context.Background()
	client, err := buildGeminiClient(ctx, cfg)
	if err != nil {
		return err
	}
	store, idx, err := buildStore(cfg)
	if err != nil {
		return err
	}
	defer idx.Close()

	maxIter, threshold := cfg.ForgeDefaults(kind)
	if runMaxIterations > 0 {
		maxIter = runMaxIterations
	}
	if runThreshold > 0 {
		threshold = runThreshold
	}

	ctrl := forge.NewController(forge.Config{
		Kind:          kind,
		Target:        target,
		Style:         runStyle,
		Reference:     reference,
		ReferenceMIME: mime,
		MaxIterations: maxIter,
		Threshold:     threshold,
		Weights:       cfg.Forge.Weights,
		Extractor:     client,
		Generator:     client,
		Evaluator:     client,
		Cache:         buildCache(cfg),
		Store:         store,
	})

	// Ctrl-C requests cancellation; the loop stops at the next iteration
	// boundary instead of abandoning in-flight writes.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		if _, ok := <-sigCh; ok {
			ctrl.Cancel()
		}
	}()

	type outcome struct {
		res *forge.Result
		err error
	}
	doneCh := make(chan outcome, 1)
	go func() {
		res, err := ctrl.Run(ctx)
		doneCh <- outcome{res, err}
	}()

	if runPlain {
		printProgress(ctrl.Progress().Events())
	} else {
		model := ui.NewProgress(ctrl.SessionID(), target, maxIter, ctrl.Progress().Events())
		if _, err := tea.NewProgram(model).Run(); err != nil {
			return fmt.Errorf("progress view failed: %w", err)
		}
	}

	out := <-doneCh
	if out.err != nil {
		return out.err
	}
	printResult(out.res, store.Dir(ctrl.SessionID()))
	return nil
}

// printProgress renders the event stream as plain lines for logs and
// non-TTY use.
func printProgress(events <-chan forge.Event) {
	for ev := range events {
		switch ev.Type {
		case forge.EventIterationStarted:
			fmt.Printf("[%d] %s\n", ev.Iteration, ev.Message)
		case forge.EventIterationEvaluated, forge.EventIterationFailed:
			fmt.Printf("[%d] %s: %s\n", ev.Iteration, ev.Type, ev.Message)
		default:
			fmt.Printf("    %s: %s\n", ev.Type, ev.Message)
		}
	}
}

func printResult(res *forge.Result, dir string) {
	fmt.Println()
	switch res.State {
	case forge.SessionConverged:
		fmt.Printf("Converged in %d iteration(s), best score %.1f\n", len(res.Attempts), res.BestScore)
	case forge.SessionExhausted:
		fmt.Printf("Budget exhausted after %d iteration(s), best score %.1f\n", len(res.Attempts), res.BestScore)
	case forge.SessionCancelled:
		fmt.Printf("Cancelled after %d iteration(s), best score %.1f\n", len(res.Attempts), res.BestScore)
	case forge.SessionFatal:
		fmt.Printf("Session failed: %s\n", res.Error)
	}
	if best := res.Best(); best != nil {
		fmt.Printf("Best image: %s (iteration %d)\n", best.ImagePath, best.Index)
	}
	fmt.Printf("Session: %s\n", res.SessionID)
	fmt.Printf("Artifacts: %s\n", dir)
}
