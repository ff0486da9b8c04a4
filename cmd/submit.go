package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/kozaktomas/facewatch/internal/blobstore"
	"github.com/kozaktomas/facewatch/internal/constants"
	"github.com/kozaktomas/facewatch/internal/extract"
	"github.com/kozaktomas/facewatch/internal/facematch"
	"github.com/kozaktomas/facewatch/internal/matching"
	"github.com/kozaktomas/facewatch/internal/web/handlers"
	"github.com/spf13/cobra"
)

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Submit a single sighting",
	Long: `Submit one sighting, either as a descriptor or as an image file.

An image is sent to the embedding server to obtain the descriptor and is kept in
the blob store. Watchers of a matched subject are notified before the command exits.

Examples:
  facewatch submit --descriptor '[0.12, -0.4, ...]' --name Ann --city Paris
  facewatch submit --image sighting.jpg --city Berlin --start 2026-01-01`,
	Args: cobra.NoArgs,
	RunE: runSubmit,
}

func init() {
	rootCmd.AddCommand(submitCmd)

	submitCmd.Flags().String("descriptor", "", "Descriptor as a JSON array of numbers")
	submitCmd.Flags().String("image", "", "Image file to extract the descriptor from")
	addSightingFlags(submitCmd)
	submitCmd.Flags().String("name", "", "Display name used when the sighting creates a new subject")
	submitCmd.Flags().String("note", "", "Free text about the sighting")
	submitCmd.Flags().Bool("json", false, "Output as JSON")
}

// addSightingFlags declares the metadata flags shared by submit and import.
func addSightingFlags(cmd *cobra.Command) {
	cmd.Flags().String("city", "", "Where the subject was seen")
	cmd.Flags().String("date-context", "", "Free-form description of when")
	cmd.Flags().String("start", "", "Start of the sighting range (YYYY-MM-DD)")
	cmd.Flags().String("end", "", "End of the sighting range, empty for ongoing (YYYY-MM-DD)")
	cmd.Flags().String("submitter", "", "Submitter email, anonymous when empty")
}

func sightingFromFlags(cmd *cobra.Command) matching.Submission {
	return matching.Submission{
		City:        mustGetString(cmd, "city"),
		DateContext: mustGetString(cmd, "date-context"),
		StartDate:   mustGetString(cmd, "start"),
		EndDate:     mustGetString(cmd, "end"),
		Submitter:   mustGetString(cmd, "submitter"),
	}
}

// imageSubmitter extracts a descriptor from an image and stores the image.
type imageSubmitter struct {
	engine    *matching.Engine
	extractor *extract.Client
	blobs     blobstore.Store
}

// prepare fills sub from the image. It returns extract.ErrNoFaceDetected for
// images without a face. The image is stored only once sub passes validation.
func (s *imageSubmitter) prepare(ctx context.Context, data []byte, sub *matching.Submission) error {
	descriptor, err := s.extractor.Extract(ctx, data)
	if err != nil {
		return err
	}
	sub.Descriptor = descriptor
	if err := s.engine.Validate(*sub); err != nil {
		return err
	}
	contentType := http.DetectContentType(data)
	ref, err := s.blobs.Put(ctx, blobstore.NewKey(contentType), contentType, data)
	if err != nil {
		return fmt.Errorf("storing image: %w", err)
	}
	sub.ImageRef = ref
	return nil
}

func runSubmit(cmd *cobra.Command, args []string) error {
	descriptorJSON := mustGetString(cmd, "descriptor")
	imagePath := mustGetString(cmd, "image")
	if (descriptorJSON == "") == (imagePath == "") {
		return errors.New("exactly one of --descriptor or --image is required")
	}

	ctx := context.Background()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	dispatcher := a.dispatcher(a.watchlist())
	dispatcher.Start(ctx)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
		defer cancel()
		if err := dispatcher.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("notifications not fully delivered", "error", err)
		}
	}()

	engine, err := a.engine(dispatcher)
	if err != nil {
		return err
	}

	sub := sightingFromFlags(cmd)
	sub.Name = mustGetString(cmd, "name")
	sub.Note = mustGetString(cmd, "note")

	if descriptorJSON != "" {
		var d facematch.Descriptor
		if err := json.Unmarshal([]byte(descriptorJSON), &d); err != nil {
			return fmt.Errorf("invalid --descriptor: %w", err)
		}
		sub.Descriptor = d
	} else {
		data, err := os.ReadFile(imagePath)
		if err != nil {
			return fmt.Errorf("reading image: %w", err)
		}
		blobs, err := blobstore.New(ctx, a.cfg.Blob)
		if err != nil {
			return fmt.Errorf("opening blob store: %w", err)
		}
		is := &imageSubmitter{engine: engine, extractor: extract.NewClient(a.cfg.Embedding), blobs: blobs}
		if err := is.prepare(ctx, data, &sub); err != nil && !errors.Is(err, extract.ErrNoFaceDetected) {
			return err
		}
	}

	res, err := engine.Submit(ctx, sub)
	if err != nil {
		if sub.ImageRef != "" {
			a.logger.Warn("stored image has no observation", "image_ref", sub.ImageRef)
		}
		return err
	}

	if mustGetBool(cmd, "json") {
		return writeJSON(cmd.OutOrStdout(), handlers.NewSubmissionResponse(res))
	}
	printResult(cmd.OutOrStdout(), res)
	return nil
}

func printResult(w io.Writer, res *matching.Result) {
	switch res.Status {
	case matching.StatusNoFace:
		fmt.Fprintln(w, "No face found in the submission.")
		return
	case matching.StatusMatch:
		fmt.Fprintf(w, "Matched %s (#%d) at distance %.4f\n", res.SubjectName, res.SubjectID, res.Distance)
	case matching.StatusNoMatch:
		fmt.Fprintf(w, "New subject %s (#%d)\n", res.SubjectName, res.SubjectID)
	}

	fmt.Fprintf(w, "Sightings: %d\n", len(res.Observations))
	for _, o := range res.Observations {
		fmt.Fprintf(w, "  %s  %-20s %s\n", o.SubmittedAt.Format("2006-01-02 15:04"), o.Location, o.DateContext)
	}
	for _, ov := range res.Overlaps {
		fmt.Fprintf(w, "Overlaps with a sighting in %s (%s)\n", ov.City, ov.Dates)
	}
}
