package cli

import (
	"errors"
	"fmt"
	"os"

	"facegate/internal/recognition"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

func newRecognizeCommand(rt *session) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "recognize <image>...",
		Short: "Recognize the face in one or more images with the saved model",
		Long: `Recognize loads the saved model and matches the first face of every
image. Each attempt is written to the recognition log like an API request.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.open()
			if err != nil {
				return err
			}
			if err := a.Engine.Load(); err != nil {
				if errors.Is(err, recognition.ErrArtifactNotFound) {
					return fmt.Errorf("no saved model at %s, run 'facectl train' first", rt.cfg.Model.Path)
				}
				return err
			}

			out := cmd.OutOrStdout()
			failed := 0
			for _, path := range args {
				data, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				src := source
				if src == "" {
					src = path
				}
				result, err := a.Processor.ProcessImage(cmd.Context(), data, src)
				if err != nil {
					failed++
					log.WithError(err).WithField("file", path).Debug("Recognition failed")
					fmt.Fprintf(out, "%s: error: %v\n", path, err)
					continue
				}
				rec := result.Recognition
				if rec.Attempt.Accepted() {
					fmt.Fprintf(out, "%s: accepted %s (label %d, similarity %.2f, %s)\n",
						path, rec.Candidate.DisplayName, rec.Attempt.Label, rec.Attempt.Similarity, rec.Band)
				} else {
					fmt.Fprintf(out, "%s: rejected (similarity %.2f, %s)\n", path, rec.Attempt.Similarity, rec.Band)
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d images could not be processed", failed, len(args))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "", "Source name stored with each attempt (default: file path)")
	return cmd
}

func newCompareCommand(rt *session) *cobra.Command {
	return &cobra.Command{
		Use:   "compare <first> <second>",
		Short: "Compare the faces of two images without a trained model",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.open()
			if err != nil {
				return err
			}
			first, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			second, err := os.ReadFile(args[1])
			if err != nil {
				return err
			}

			similarity, err := a.Processor.Compare(first, second)
			if err != nil {
				return err
			}
			verdict := "different people"
			if similarity >= a.Engine.Threshold() {
				verdict = "same person"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Similarity: %.2f (%s, %s, threshold %.1f)\n",
				similarity, recognition.BandFor(similarity), verdict, a.Engine.Threshold())
			return nil
		},
	}
}
