package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/kozaktomas/facewatch/internal/blobstore"
	"github.com/kozaktomas/facewatch/internal/constants"
	"github.com/kozaktomas/facewatch/internal/extract"
	"github.com/kozaktomas/facewatch/internal/matching"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import <pattern> [pattern...]",
	Short: "Submit every image matching the given glob patterns",
	Long: `Submit a batch of images as sightings. Patterns support ** to match
any number of directories. Images are processed one at a time, in path order,
with the metadata flags applied to every image.

Example:
  facewatch import 'photos/2026/**/*.jpg' --city Paris --submitter me@example.com`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)
	addSightingFlags(importCmd)
	importCmd.Flags().Bool("dry-run", false, "List matching images without submitting them")
}

// isImageFile checks if a file has a supported image extension
func isImageFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jpg", ".jpeg", ".png", ".gif", ".webp", ".bmp":
		return true
	}
	return false
}

// collectImages expands the patterns into a sorted, de-duplicated list of image files.
func collectImages(patterns []string) ([]string, error) {
	var files []string
	for _, pattern := range patterns {
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly())
		if err != nil {
			return nil, fmt.Errorf("invalid pattern %q: %w", pattern, err)
		}
		for _, m := range matches {
			if isImageFile(m) {
				files = append(files, m)
			}
		}
	}
	slices.Sort(files)
	return slices.Compact(files), nil
}

type importSummary struct {
	counts map[matching.Status]int
	failed []string
}

func runImport(cmd *cobra.Command, args []string) error {
	files, err := collectImages(args)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(files) == 0 {
		fmt.Fprintln(out, "No image files matched.")
		return nil
	}

	if mustGetBool(cmd, "dry-run") {
		for _, f := range files {
			fmt.Fprintln(out, f)
		}
		fmt.Fprintf(out, "\n%d image(s) would be imported\n", len(files))
		return nil
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
	blobs, err := blobstore.New(ctx, a.cfg.Blob)
	if err != nil {
		return fmt.Errorf("opening blob store: %w", err)
	}
	is := &imageSubmitter{engine: engine, extractor: extract.NewClient(a.cfg.Embedding), blobs: blobs}
	template := sightingFromFlags(cmd)

	fmt.Fprintf(out, "Importing %d image(s)\n", len(files))
	bar := progressbar.NewOptions(len(files),
		progressbar.OptionSetWriter(cmd.ErrOrStderr()),
		progressbar.OptionSetDescription("Importing"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	summary := importSummary{counts: map[matching.Status]int{}}
	for _, path := range files {
		status, err := importOne(ctx, is, template, path)
		if err != nil {
			summary.failed = append(summary.failed, fmt.Sprintf("%s: %v", filepath.Base(path), err))
			if errors.Is(err, matching.ErrRepositoryUnavailable) {
				bar.Finish()
				fmt.Fprintln(out)
				return fmt.Errorf("aborting import: %w", err)
			}
		} else {
			summary.counts[status]++
		}
		bar.Add(1)
	}
	fmt.Fprintln(out)

	for _, msg := range summary.failed {
		fmt.Fprintf(out, "Failed: %s\n", msg)
	}
	fmt.Fprintf(out, "\nMatched: %d  New subjects: %d  No face: %d  Failed: %d\n",
		summary.counts[matching.StatusMatch],
		summary.counts[matching.StatusNoMatch],
		summary.counts[matching.StatusNoFace],
		len(summary.failed),
	)
	return nil
}

func importOne(ctx context.Context, is *imageSubmitter, template matching.Submission, path string) (matching.Status, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}

	sub := template
	if err := is.prepare(ctx, data, &sub); err != nil {
		if errors.Is(err, extract.ErrNoFaceDetected) {
			return matching.StatusNoFace, nil
		}
		return "", err
	}

	res, err := is.engine.Submit(ctx, sub)
	if err != nil {
		return "", fmt.Errorf("%w (stored image %s has no observation)", err, sub.ImageRef)
	}
	return res.Status, nil
}
