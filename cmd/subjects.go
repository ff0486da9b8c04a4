package cmd

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/kozaktomas/facewatch/internal/constants"
	"github.com/kozaktomas/facewatch/internal/database"
	"github.com/kozaktomas/facewatch/internal/web/handlers"
	"github.com/spf13/cobra"
)

var subjectsCmd = &cobra.Command{
	Use:   "subjects [id]",
	Short: "List subjects or show one subject's sightings",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runSubjects,
}

func init() {
	rootCmd.AddCommand(subjectsCmd)
	subjectsCmd.Flags().Bool("json", false, "Output as JSON")
}

func runSubjects(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	jsonOutput := mustGetBool(cmd, "json")
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid subject id %q", args[0])
		}
		s, err := a.repo.GetSubject(ctx, id)
		if err != nil {
			return err
		}
		if jsonOutput {
			return writeJSON(out, handlers.NewSubjectResponse(s))
		}
		printSubject(cmd, s)
		return nil
	}

	subjects, err := a.repo.ListSubjects(ctx)
	if err != nil {
		return err
	}
	if jsonOutput {
		summaries := make([]handlers.SubjectSummary, 0, len(subjects))
		for _, s := range subjects {
			summaries = append(summaries, handlers.NewSubjectSummary(s))
		}
		return writeJSON(out, summaries)
	}
	if len(subjects) == 0 {
		fmt.Fprintln(out, "No subjects found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSIGHTINGS\tLAST SEEN\tLAST CITY")
	fmt.Fprintln(w, "--\t----\t---------\t---------\t---------")
	for i := range subjects {
		s := &subjects[i]
		lastSeen, lastCity := "-", "-"
		if o := s.LastObservation(); o != nil {
			lastSeen = o.SubmittedAt.Format("2006-01-02 15:04")
			if o.Location != "" {
				lastCity = o.Location
			}
		}
		fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\n", s.ID, s.Name, len(s.Observations), lastSeen, lastCity)
	}
	w.Flush()

	fmt.Fprintf(out, "\nTotal: %d subjects\n", len(subjects))
	return nil
}

func printSubject(cmd *cobra.Command, s *database.Subject) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s (#%d), first seen %s\n\n", s.Name, s.ID, s.CreatedAt.Format("2006-01-02 15:04"))

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "REPORTED\tCITY\tWHEN\tRANGE\tSUBMITTER")
	for _, o := range s.Observations {
		rng := "-"
		if o.StartDate != nil {
			end := constants.OpenEndLabel
			if o.EndDate != nil {
				end = o.EndDate.Format(constants.DateLayout)
			}
			rng = o.StartDate.Format(constants.DateLayout) + " to " + end
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", o.SubmittedAt.Format("2006-01-02 15:04"), o.Location, o.DateContext, rng, o.Submitter)
	}
	w.Flush()
}
