package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/viant/sqlite-minhash/config"
	"github.com/viant/sqlite-minhash/server"
)

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Open the database, rebuild the similarity index from it and serve the
HTTP API. Signature routes answer 503 until the index is rebuilt; a failed
rebuild stops the process.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, rootOpts)
		},
	}
}

func runServe(ctx context.Context, opts *RootOptions) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	logger := cfg.Log.NewLogger(os.Stderr)
	if cfg.Log.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	app, err := Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.Close()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := app.Service.Rehydrate(gctx)
		return err
	})
	g.Go(func() error {
		return app.Server.ListenAndServe(gctx, server.HTTPConfig{
			Addr:            cfg.Server.Addr(),
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.WriteTimeout,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
		})
	})
	return g.Wait()
}
