package main

import (
	"os"

	"github.com/spf13/cobra"

	"coinvoice/internal/interfaces/cli/server"
	"coinvoice/internal/interfaces/cli/worker"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "coinvoice",
		Short: "Coinvoice - crypto invoice payment and settlement",
		Long:  `Coinvoice accepts cryptocurrency payments against fiat-denominated invoices and settles them through a staged pipeline.`,
	}

	rootCmd.AddCommand(
		server.NewCommand(),
		worker.NewCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
