// File: cmd/tasks.go
package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/harrymomomedia/admachin-sub003/internal/config"
	"github.com/harrymomomedia/admachin-sub003/internal/observability"
	"github.com/harrymomomedia/admachin-sub003/internal/store"
)

// tasksCmd gives an operator a quick look at the queue without launching a
// browser.
var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "List pending character tasks.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		cfg := config.Get()

		pool, err := pgxpool.New(ctx, cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("creating database pool: %w", err)
		}
		defer pool.Close()

		st, err := store.New(ctx, pool, observability.GetLogger())
		if err != nil {
			return fmt.Errorf("connecting to task store: %w", err)
		}

		tasks, err := st.FetchPending(ctx)
		if err != nil {
			return err
		}
		if len(tasks) == 0 {
			fmt.Println("No pending tasks.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATED\tSOURCE VIDEO")
		for _, t := range tasks {
			fmt.Fprintf(w, "%s\t%s\t%s\n", t.ID, t.CreatedAt.Format("2006-01-02 15:04"), t.SourceVideoURL)
		}
		return w.Flush()
	},
}
