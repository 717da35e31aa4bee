package cli

import (
	"errors"
	"fmt"
	"time"

	"facegate/internal/recognition"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

func newTrainCommand(rt *session) *cobra.Command {
	var quiet bool
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the model from all enrolled photos and save it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.open()
			if err != nil {
				return err
			}

			var progress recognition.ProgressFunc
			if !quiet {
				bar := progressbar.NewOptions(100,
					progressbar.OptionSetDescription("Training"),
					progressbar.OptionSetWriter(cmd.ErrOrStderr()),
					progressbar.OptionShowCount(),
					progressbar.OptionClearOnFinish(),
				)
				defer bar.Finish()
				progress = func(p recognition.Progress) {
					bar.Describe(string(p.Stage))
					_ = bar.Set(p.Percent)
				}
			}

			report, err := a.Engine.Retrain(cmd.Context(), a.Repo, progress)
			if errors.Is(err, recognition.ErrNoTrainableData) {
				return fmt.Errorf("nothing to train: enroll photos first")
			}
			if err != nil && report == nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Trained %d people from %d photos (%d skipped) in %s\n",
				report.Labels, report.Samples, report.Skipped, report.Duration.Round(time.Millisecond))
			fmt.Fprintf(out, "Run ID: %s\n", report.RunID)
			if !report.Saved {
				return fmt.Errorf("model trained but not saved: %w", err)
			}
			fmt.Fprintf(out, "Model saved to %s\n", rt.cfg.Model.Path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Do not show a progress bar")
	return cmd
}
