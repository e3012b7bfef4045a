package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goccy/go-json"
)

// ===========================================================================
// PERPLEXITY CLI - Unigram vs context model, one character at a time
// ===========================================================================
//
// This command evaluates a text under both table models and prints:
//   - the perplexity of each model
//   - the probability and surprisal of the character under the cursor
//   - the top-k predictions of each model at the cursor
//
// With -interactive it becomes a small REPL: every line typed is a new text,
// and slash commands move the cursor, mirroring the Prev/Next buttons of the
// web page.
//
// USAGE:
//   go run . perplexity -text="the cat sat on the mat" -cursor=3
//   go run . perplexity -text="the cat" -json
//   go run . perplexity -text="the cat" -output=perplexity.html
//   go run . perplexity -interactive
//
// ===========================================================================

// perplexityState is what the REPL carries between lines.
type perplexityState struct {
	text   string
	cursor int
	topK   int
}

// RunPerplexityCommand implements the perplexity CLI.
func RunPerplexityCommand(args []string) error {
	fs := flag.NewFlagSet("perplexity", flag.ExitOnError)

	text := fs.String("text", "the cat sat on the mat", "Text to evaluate")
	cursor := fs.Int("cursor", DefaultCursor, "Position of the character to inspect")
	topK := fs.Int("top-k", 5, "Number of predictions to list per model")
	asJSON := fs.Bool("json", false, "Print the full analysis as JSON")
	outputPath := fs.String("output", "", "Write an HTML visualization to this file")
	interactive := fs.Bool("interactive", false, "Interactive mode (REPL)")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *topK <= 0 {
		return fmt.Errorf("--top-k must be positive")
	}

	state := &perplexityState{text: *text, cursor: *cursor, topK: *topK}

	if *interactive {
		return runPerplexityInteractive(os.Stdin, os.Stdout, state)
	}

	a := Analyze(state.text)
	state.cursor = ClampCursor(state.cursor, a.Len())

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(a)
	}

	printPerplexityReport(os.Stdout, a, state)

	if *outputPath != "" {
		page := NewPerplexityPage("", a, state.cursor, state.topK, DefaultEvaluator)
		if err := SavePerplexityHTML(*outputPath, page); err != nil {
			return fmt.Errorf("failed to save visualization: %w", err)
		}
		fmt.Printf("✓ Visualization saved to: %s\n", *outputPath)
	}
	return nil
}

// printPerplexityReport writes the human-readable report for one text.
func printPerplexityReport(w io.Writer, a *Analysis, state *perplexityState) {
	fmt.Fprintf(w, "Text: %q (%d characters)\n", a.Text, a.Len())
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Unigram perplexity: %8.2f\n", a.Result.Unigram)
	fmt.Fprintf(w, "  LLM perplexity:     %8.2f\n", a.Result.Context)
	fmt.Fprintln(w)

	cur, ok := a.At(state.cursor)
	if !ok {
		fmt.Fprintln(w, "Current character: none")
		return
	}
	context := a.ContextAt(state.cursor)
	fmt.Fprintf(w, "Position %d, character %q, context %q\n", state.cursor, string(a.DisplayChars()[state.cursor]), context)
	fmt.Fprintf(w, "  Unigram: p=%6.2f%%  surprisal=%5.2f bits\n", cur.UnigramProb*100, cur.UnigramBits)
	fmt.Fprintf(w, "  LLM:     p=%6.2f%%  surprisal=%5.2f bits\n", cur.ContextProb*100, cur.ContextBits)
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Top %d unigram characters (always the same):\n", state.topK)
	printPredictions(w, DefaultEvaluator.TopUnigram(state.topK))
	fmt.Fprintf(w, "Top predictions after %q:\n", cur.ContextKey)
	printPredictions(w, DefaultEvaluator.TopPredictions(context, state.topK))
}

func printPredictions(w io.Writer, preds []Prediction) {
	if len(preds) == 0 {
		fmt.Fprintln(w, "  (no context yet)")
		return
	}
	for _, p := range preds {
		bar := strings.Repeat("█", int(p.Prob*40+0.5))
		fmt.Fprintf(w, "  %-2s %5.1f%% %s\n", showChar(string(p.Char)), p.Prob*100, bar)
	}
}

// runPerplexityInteractive runs the perplexity REPL.
func runPerplexityInteractive(in io.Reader, out io.Writer, state *perplexityState) error {
	fmt.Fprintln(out, "=== Interactive Mode ===")
	fmt.Fprintln(out, "Enter a text to evaluate it. Type 'quit' or 'exit' to stop.")
	fmt.Fprintln(out, "Commands:")
	fmt.Fprintln(out, "  /next            Move the cursor right")
	fmt.Fprintln(out, "  /prev            Move the cursor left")
	fmt.Fprintln(out, "  /cursor <n>      Put the cursor on character n")
	fmt.Fprintln(out, "  /topk <n>        Set the number of predictions listed")
	fmt.Fprintln(out, "  /show            Print the report for the current text")
	fmt.Fprintln(out)

	scanner := bufio.NewScanner(in)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}

		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}

		// Check for exit commands
		if trimmed == "quit" || trimmed == "exit" {
			fmt.Fprintln(out, "Goodbye!")
			return nil
		}

		if strings.HasPrefix(trimmed, "/") {
			if err := handlePerplexityCommand(trimmed, state); err != nil {
				fmt.Fprintf(out, "Error: %v\n", err)
				continue
			}
		} else {
			// A new text keeps the cursor where it is when it still fits.
			state.text = line
			state.cursor = ClampCursor(state.cursor, len([]rune(line)))
		}

		printPerplexityReport(out, Analyze(state.text), state)
		fmt.Fprintln(out)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading input: %w", err)
	}
	return nil
}

// handlePerplexityCommand applies one slash command to the REPL state.
func handlePerplexityCommand(cmd string, state *perplexityState) error {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return nil
	}
	n := len([]rune(state.text))

	switch parts[0] {
	case "/next":
		state.cursor = MoveCursor(state.cursor, 1, n)
	case "/prev":
		state.cursor = MoveCursor(state.cursor, -1, n)
	case "/cursor":
		if len(parts) < 2 {
			return fmt.Errorf("usage: /cursor <n>")
		}
		var val int
		if _, err := fmt.Sscanf(parts[1], "%d", &val); err != nil {
			return fmt.Errorf("invalid cursor value: %v", err)
		}
		state.cursor = ClampCursor(val, n)
	case "/topk":
		if len(parts) < 2 {
			return fmt.Errorf("usage: /topk <n>")
		}
		var val int
		if _, err := fmt.Sscanf(parts[1], "%d", &val); err != nil || val <= 0 {
			return fmt.Errorf("invalid top-k value: %s", parts[1])
		}
		state.topK = val
	case "/show":
	default:
		return fmt.Errorf("unknown command: %s", parts[0])
	}
	return nil
}
