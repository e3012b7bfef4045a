package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
)

// ===========================================================================
// OPTIMIZE CLI - Watching gradient descent fix a recommendation
// ===========================================================================
//
// Runs the scalar gradient descent of optimizer.go and prints the trajectory
// as a table: iteration, prediction after the step, error before the step.
//
// USAGE:
//   go run . optimize -target=4 -initial=2 -iterations=10
//   go run . optimize -target=5 -initial=1 -lr=0.5 -json
//   go run . optimize -output=optimization.html
//
// ===========================================================================

// RunOptimizeCommand implements the optimize CLI.
func RunOptimizeCommand(args []string) error {
	fs := flag.NewFlagSet("optimize", flag.ExitOnError)

	target := fs.Float64("target", DefaultTarget, "User's actual preference (1-5)")
	initial := fs.Float64("initial", DefaultInitial, "Initial model prediction (1-5)")
	iterations := fs.Int("iterations", DefaultIterations, "Number of gradient descent steps")
	lr := fs.Float64("lr", DefaultLearningRate, "Learning rate, in (0, 2) to converge")
	asJSON := fs.Bool("json", false, "Print the trajectory as JSON")
	outputPath := fs.String("output", "", "Write an HTML chart to this file")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if !ValidLearningRate(*lr) {
		return fmt.Errorf("--lr must be in (0, 2), got %g", *lr)
	}
	if !inRatingRange(*target) || !inRatingRange(*initial) {
		fmt.Fprintf(os.Stderr, "Warning: ratings outside [%g, %g] are clamped\n", RatingMin, RatingMax)
	}

	traj := Optimize(ClampRating(*target), ClampRating(*initial), *iterations, *lr)

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(OptimizeResponse{Trajectory: traj, FinalPrediction: traj.Final()})
	}

	printTrajectory(os.Stdout, traj)

	if *outputPath != "" {
		page := NewOptimizationPage("", traj.Target, traj.Initial, traj.Len(), traj.LearningRate, &traj)
		if err := SaveOptimizationHTML(*outputPath, page); err != nil {
			return fmt.Errorf("failed to save visualization: %w", err)
		}
		fmt.Printf("✓ Chart saved to: %s\n", *outputPath)
	}
	return nil
}

// printTrajectory writes the trajectory table and the final summary.
func printTrajectory(w io.Writer, t Trajectory) {
	fmt.Fprintf(w, "Target: %.2f  Initial: %.2f  Learning rate: %.2f\n", t.Target, t.Initial, t.LearningRate)
	fmt.Fprintln(w)
	if t.Len() == 0 {
		fmt.Fprintln(w, "No iterations run.")
	} else {
		fmt.Fprintf(w, "%-10s %-12s %-10s\n", "Iteration", "Prediction", "Error")
		for _, s := range t.Steps {
			fmt.Fprintf(w, "%-10d %-12.4f %-10.4f\n", s.Iteration, s.Prediction, s.Error)
		}
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Final prediction: %.2f/5 (user preference %.2f/5)\n", t.Final(), t.Target)
}
