// File: cmd/run.go
package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/harrymomomedia/admachin-sub003/internal/config"
	"github.com/harrymomomedia/admachin-sub003/internal/observability"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process every pending task in the queue, then exit.",
	Long: `Fetches all pending tasks once, claims and processes them strictly in
order through the character-creation wizard, and exits when the queue is
drained. A failing task is recorded and skipped; it never stops the run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		logger := observability.GetLogger()

		components, err := NewComponents(ctx, config.Get())
		if err != nil {
			return err
		}
		defer components.Shutdown()

		if err := components.Driver.Run(ctx); err != nil {
			logger.Error("Run aborted", zap.Error(err))
			return err
		}
		return nil
	},
}
