package cli

import (
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"facegate/internal/recognition"

	"github.com/spf13/cobra"
)

func newStatusCommand(rt *session) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show model and database state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.open()
			if err != nil {
				return err
			}

			modelState := "loaded"
			if err := a.Engine.Load(); err != nil {
				switch {
				case errors.Is(err, recognition.ErrArtifactNotFound):
					modelState = "missing"
				case errors.Is(err, recognition.ErrCorruptArtifact):
					modelState = "corrupt"
				default:
					return err
				}
			}

			stats, err := a.Repo.GetStatistics()
			if err != nil {
				return err
			}
			st := a.Engine.Status()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Model file:\t%s (%s)\n", rt.cfg.Model.Path, modelState)
			fmt.Fprintf(w, "Trained:\t%t\n", st.Trained)
			if st.Trained {
				fmt.Fprintf(w, "Trained at:\t%s\n", st.TrainedAt.Format(time.RFC3339))
				fmt.Fprintf(w, "Run ID:\t%s\n", st.RunID)
				fmt.Fprintf(w, "Model people/photos:\t%d / %d\n", st.LabelCount, st.SampleCount)
			}
			fmt.Fprintf(w, "Comparer:\t%s\n", a.Engine.ComparerName())
			fmt.Fprintf(w, "Threshold:\t%.1f\n", a.Engine.Threshold())
			fmt.Fprintf(w, "Detector:\t%s\n", a.Processor.DetectorName())
			fmt.Fprintf(w, "Enrolled people/photos:\t%d / %d\n", stats.Persons, stats.Photos)
			fmt.Fprintf(w, "Attempts:\t%d (%d accepted, %d rejected)\n", stats.Attempts, stats.Accepted, stats.Rejected)
			if !stats.LatestAttempt.IsZero() {
				fmt.Fprintf(w, "Latest attempt:\t%s\n", stats.LatestAttempt.Format(time.RFC3339))
			}
			return w.Flush()
		},
	}
}
