package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "farum-gateway",
	Short: "Multi-domain LLM gateway",
	Long: `farum-gateway serves the /api/ai endpoints: it authenticates and
rate-limits each request, enriches the prompt with what it knows about the
user and forwards it to the configured language model.

Configuration is read from FARUM_* environment variables. Run without a
subcommand to start the server.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
