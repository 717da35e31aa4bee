package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"facegate/internal/core/models"
	"facegate/internal/imaging"

	"github.com/spf13/cobra"
)

type enrollOptions struct {
	personID    uint
	firstName   string
	lastName    string
	group       string
	description string
	train       bool
}

func newEnrollCommand(rt *session) *cobra.Command {
	var opts enrollOptions
	cmd := &cobra.Command{
		Use:   "enroll <image>...",
		Short: "Add face photos to a new or existing person",
		Long: `Enroll creates a person from --first/--last, or adds to --person, and
stores the face crop of every image. Images without a face are reported
and skipped.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnroll(cmd, rt, opts, args)
		},
	}
	cmd.Flags().UintVar(&opts.personID, "person", 0, "Existing person ID")
	cmd.Flags().StringVar(&opts.firstName, "first", "", "First name of a new person")
	cmd.Flags().StringVar(&opts.lastName, "last", "", "Last name of a new person")
	cmd.Flags().StringVar(&opts.group, "group", "", "Academic group of a new person")
	cmd.Flags().StringVar(&opts.description, "description", "", "Description of a new person")
	cmd.Flags().BoolVar(&opts.train, "train", false, "Retrain the model afterwards")
	return cmd
}

func runEnroll(cmd *cobra.Command, rt *session, opts enrollOptions, paths []string) error {
	if opts.personID == 0 && (opts.firstName == "" || opts.lastName == "") {
		return fmt.Errorf("either --person or both --first and --last are required")
	}
	a, err := rt.open()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	var person *models.Person
	if opts.personID != 0 {
		person, err = a.Repo.GetPersonByID(opts.personID)
		if err != nil {
			return err
		}
		if person == nil {
			return fmt.Errorf("person %d not found", opts.personID)
		}
	} else {
		person = &models.Person{
			FirstName:   opts.firstName,
			LastName:    opts.lastName,
			Group:       opts.group,
			Description: opts.description,
		}
		if err := a.Repo.CreatePerson(person); err != nil {
			return err
		}
		fmt.Fprintf(out, "Created person %d: %s\n", person.ID, person.DisplayName())
	}

	added := 0
	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		face, err := a.Processor.ExtractFace(data)
		if err != nil {
			fmt.Fprintf(out, "%s: skipped: %v\n", path, err)
			continue
		}
		crop, err := imaging.EncodePNG(face.Crop)
		if err != nil {
			return err
		}
		photo := models.Photo{PersonID: person.ID, FileName: filepath.Base(path), FileFormat: "png", Data: crop}
		if err := a.Repo.AddPhoto(&photo); err != nil {
			return err
		}
		added++
		fmt.Fprintf(out, "%s: added photo %d\n", path, photo.ID)
	}
	fmt.Fprintf(out, "Enrolled %d of %d images for %s\n", added, len(paths), person.DisplayName())

	if opts.train && added > 0 {
		report, err := a.Engine.Retrain(cmd.Context(), a.Repo, nil)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Model retrained: %d people, %d photos\n", report.Labels, report.Samples)
	}
	return nil
}

func newPersonsCommand(rt *session) *cobra.Command {
	return &cobra.Command{
		Use:   "persons",
		Short: "List enrolled people",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := rt.open()
			if err != nil {
				return err
			}
			persons, total, err := a.Repo.GetPersons(0, 0)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tGROUP\tPHOTOS")
			for _, p := range persons {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\n", p.ID, p.DisplayName(), p.Group, p.PhotoCount)
			}
			if err := w.Flush(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d people\n", total)
			return nil
		},
	}
}
