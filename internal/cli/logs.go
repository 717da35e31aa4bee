package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"facegate/internal/core/models"

	"github.com/spf13/cobra"
)

func newLogsCommand(rt *session) *cobra.Command {
	var (
		limit  int
		result string
		since  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent recognition attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if result != "" && result != models.ResultAccepted && result != models.ResultRejected {
				return fmt.Errorf("--result must be %q or %q", models.ResultAccepted, models.ResultRejected)
			}
			a, err := rt.open()
			if err != nil {
				return err
			}

			filter := models.LogFilter{Result: result, Limit: limit}
			if since > 0 {
				filter.Since = time.Now().Add(-since)
			}
			logs, total, err := a.Repo.GetLogs(filter)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TIME\tRESULT\tPERSON\tSIMILARITY")
			for _, entry := range logs {
				who := "-"
				if entry.Person != nil {
					who = entry.Person.DisplayName()
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%.2f\n", entry.RecognizedAt.Format(time.RFC3339), entry.Result, who, entry.Similarity)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d of %d attempts\n", len(logs), total)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of entries")
	cmd.Flags().StringVar(&result, "result", "", "Only accepted or rejected attempts")
	cmd.Flags().DurationVar(&since, "since", 0, "Only attempts newer than this, e.g. 24h")
	return cmd
}
