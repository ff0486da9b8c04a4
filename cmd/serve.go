package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kozaktomas/facewatch/internal/blobstore"
	"github.com/kozaktomas/facewatch/internal/constants"
	"github.com/kozaktomas/facewatch/internal/extract"
	"github.com/kozaktomas/facewatch/internal/web"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the facewatch HTTP API.

The server accepts sighting submissions (descriptor JSON or an image that is sent
to the embedding server), watch subscriptions and read access to subjects.
Notifications for matched subjects are delivered in the background.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if port := mustGetInt(cmd, "port"); port > 0 {
		a.cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		a.cfg.Web.Host = host
	}

	registry := a.watchlist()
	dispatcher := a.dispatcher(registry)
	dispatcher.Start(ctx)

	engine, err := a.engine(dispatcher)
	if err != nil {
		return err
	}

	blobs, err := blobstore.New(ctx, a.cfg.Blob)
	if err != nil {
		return fmt.Errorf("opening blob store: %w", err)
	}

	server := web.NewServer(a.cfg.Web, web.Deps{
		Engine:    engine,
		Registry:  registry,
		Subjects:  a.repo,
		Extractor: extract.NewClient(a.cfg.Embedding),
		Blobs:     blobs,
		Gatherer:  a.registry,
		Logger:    a.logger,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-sigChan
		a.logger.Info("shutdown requested")

		shutdownCtx, cancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("web server shutdown", "error", err)
		}
		if err := dispatcher.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("dispatcher shutdown", "error", err)
		}
	}()

	fmt.Printf("facewatch listening on http://%s:%d\n", a.cfg.Web.Host, a.cfg.Web.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	<-done
	return nil
}
