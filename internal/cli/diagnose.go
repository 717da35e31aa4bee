package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"facegate/internal/app"
	"facegate/internal/imaging"
	"facegate/internal/recognition"

	"github.com/spf13/cobra"
)

// check ist ein einzelner Diagnoseschritt
type check struct {
	name string
	run  func() (string, error)
}

func newDiagnoseCommand(rt *session) *cobra.Command {
	return &cobra.Command{
		Use:   "diagnose",
		Short: "Check database, model artifact and matcher consistency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.open()
			if err != nil {
				return err
			}
			failed := runChecks(cmd.OutOrStdout(), diagnoseChecks(cmd, rt, a))
			if failed > 0 {
				return fmt.Errorf("%d check(s) failed", failed)
			}
			return nil
		},
	}
}

func diagnoseChecks(cmd *cobra.Command, rt *session, a *app.App) []check {
	return []check{
		{"database", func() (string, error) {
			stats, err := a.Repo.GetStatistics()
			if err != nil {
				return "", err
			}
			return fmt.Sprintf("%d people, %d photos, %d attempts", stats.Persons, stats.Photos, stats.Attempts), nil
		}},
		{"model artifact", func() (string, error) {
			if _, err := os.Stat(rt.cfg.Model.Path); errors.Is(err, os.ErrNotExist) {
				return "not trained yet", nil
			}
			if err := a.Engine.Load(); err != nil {
				return "", err
			}
			st := a.Engine.Status()
			return fmt.Sprintf("%d people, %d photos, run %s", st.LabelCount, st.SampleCount, st.RunID), nil
		}},
		{"self comparison", func() (string, error) {
			photos, err := a.Repo.EnrollmentPhotos(cmd.Context())
			if err != nil {
				return "", err
			}
			if len(photos) == 0 {
				return "skipped, no photos enrolled", nil
			}
			img, err := imaging.DecodeGray(photos[0].Data)
			if err != nil {
				return "", fmt.Errorf("stored photo unreadable: %w", err)
			}
			similarity, err := a.Engine.ComparePair(img, img)
			if err != nil {
				return "", err
			}
			if similarity < 100 {
				return "", fmt.Errorf("photo compared with itself scored %.2f, want 100", similarity)
			}
			return fmt.Sprintf("identical faces score %.2f", similarity), nil
		}},
		{"threshold", func() (string, error) {
			t := a.Engine.Threshold()
			if t <= 0 {
				return "", fmt.Errorf("threshold %.1f accepts every face", t)
			}
			return fmt.Sprintf("%.1f (%s band starts at 80, %s at 60)", t, recognition.BandHigh, recognition.BandMedium), nil
		}},
	}
}

// runChecks führt alle Schritte aus und gibt die Zahl der Fehlschläge zurück
func runChecks(out io.Writer, checks []check) int {
	failed := 0
	for _, c := range checks {
		detail, err := c.run()
		if err != nil {
			failed++
			fmt.Fprintf(out, "[FAIL] %s: %v\n", c.name, err)
			continue
		}
		fmt.Fprintf(out, "[ OK ] %s: %s\n", c.name, detail)
	}
	return failed
}
