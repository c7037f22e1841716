package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fathom-labs/corpus/internal/cli"
	"github.com/fathom-labs/corpus/internal/cli/admin"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "corpusd",
		Short: "Corpus daemon and CLI",
		Long:  "Corpus daemon for running the knowledge API server and managing users",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.UserCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
