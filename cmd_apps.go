package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
)

// RunAppsCommand lists the visualizations the server exposes.
func RunAppsCommand(args []string) error {
	fs := flag.NewFlagSet("apps", flag.ExitOnError)
	asJSON := fs.Bool("json", false, "Print the list as JSON")
	basePath := fs.String("base-path", DefaultConfig().Server.BasePath, "Base path the apps are mounted under")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if *asJSON {
		return json.NewEncoder(os.Stdout).Encode(Apps)
	}
	printApps(os.Stdout, *basePath)
	return nil
}

func printApps(w io.Writer, basePath string) {
	fmt.Fprintln(w, "LLM Applications Directory")
	fmt.Fprintln(w)
	for _, a := range Apps {
		fmt.Fprintf(w, "  %-30s %s\n", basePath+a.ID, a.Name)
		fmt.Fprintf(w, "  %-30s %s\n", "", a.Description)
	}
}
