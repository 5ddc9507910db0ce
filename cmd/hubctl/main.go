package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/goliatone/go-hub/internal/cli"
	"github.com/spf13/cobra"
)

// Set via ldflags at build time.
var version = "dev"

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "hubctl",
	Short:        "Capture events and inspect persisted scopes",
	SilenceUsage: true,
}

func init() {
	cli.AddGlobalFlags(rootCmd)

	rootCmd.Version = version
	rootCmd.SetVersionTemplate(fmt.Sprintf("hubctl version %s\n", version))

	rootCmd.AddCommand(cli.NewCaptureCmd())
	rootCmd.AddCommand(cli.NewScopesCmd())
	rootCmd.AddCommand(cli.NewRulesCmd())
	rootCmd.AddCommand(cli.NewSchemaCmd())
}
