package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "dispatchctl",
	Short: "dispatchctl - operations tool for the dispatch backend",
	Long: `dispatchctl runs one-off operations against the dispatch store.

Available commands:
  generate     - Generate recurring jobs from active contracts
  unavailable  - Take a technician off duty and free their jobs
  propose      - Queue an assignment proposal for a job
  check        - Report documents that break fleet invariants

Examples:
  dispatchctl generate --target 2026-11-30
  dispatchctl generate --company <id> --async
  dispatchctl unavailable <company> <technician> --reason "sick"
  dispatchctl check`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().Bool("json", false, "Print results as JSON")

	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(unavailableCmd)
	rootCmd.AddCommand(proposeCmd)
	rootCmd.AddCommand(checkCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

// output prints v as JSON when --json is set, otherwise calls text.
func output(cmd *cobra.Command, v interface{}, text func()) error {
	if asJSON, _ := cmd.Root().PersistentFlags().GetBool("json"); asJSON {
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal JSON: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(data))
		return nil
	}
	text()
	return nil
}
