package main

import (
	"fmt"
	"log/slog"
	"os"
)

// logLevel is shared by every command; serve overrides it from its config.
var logLevel = new(slog.LevelVar)

func main() {
	logLevel.Set(slog.LevelInfo)
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	})))

	// Check for command-line mode
	if len(os.Args) > 1 {
		cmd := os.Args[1]
		switch cmd {
		case "perplexity":
			if err := RunPerplexityCommand(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		case "optimize":
			if err := RunOptimizeCommand(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		case "apps":
			if err := RunAppsCommand(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		case "serve":
			if err := RunServeCommand(os.Args[2:]); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			return
		case "help", "-h", "--help":
			printUsage()
			return
		default:
			fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
			printUsage()
			os.Exit(1)
		}
	}

	// Default: show help
	printUsage()
}

func printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  go run . [command] [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  perplexity  Compare unigram and context-model perplexity of a text")
	fmt.Println("  optimize    Run gradient descent on a recommendation rating")
	fmt.Println("  apps        List the available visualizations")
	fmt.Println("  serve       Serve the visualizations over HTTP")
	fmt.Println("  help        Show this help message")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  go run . perplexity -text=\"the cat sat on the mat\" -cursor=3")
	fmt.Println("  go run . perplexity -interactive")
	fmt.Println("  go run . perplexity -text=\"the cat\" -output=perplexity.html")
	fmt.Println("  go run . optimize -target=4 -initial=2 -iterations=10 -output=optimization.html")
	fmt.Println("  go run . serve -config=config.yml")
	fmt.Println()
}
