package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/emortalmc/live-config-parser/pkg/kubernetes"
	"github.com/emortalmc/live-config-parser/pkg/liveconfig"
	"github.com/emortalmc/live-config-parser/pkg/rbac"
	"github.com/emortalmc/live-config-parser/pkg/server"
	"github.com/emortalmc/live-config-parser/pkg/version"
)

var (
	port       string
	verifyRBAC bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve live game modes over HTTP",
	Long: `Load the game modes from the configured source, keep them live and serve them over HTTP.

Endpoints:
- GET /healthz, /readyz, /version and /metrics
- GET /v1/gamemodes and /v1/gamemodes/:id
- GET /v1/gamemodes/watch streams updates as server-sent events`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		collection, clients, err := openCollection(ctx, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := collection.Close(); err != nil {
				logger.Warnw("Failed to close live configs", "error", err)
			}
		}()

		if verifyRBAC && clients != nil {
			if err := verifyWatchPermissions(ctx, collection.Source(), clients); err != nil {
				return err
			}
			logger.Infow("RBAC permissions verified", "source", collection.Source())
		}

		info := version.Resolve(buildVersion, buildCommit, buildDate)
		logger.Infow("Starting liveconfig server",
			"version", info.Version,
			"source", collection.Source(),
			"namespace", namespace,
			"port", port,
		)

		handler := server.NewHandler(collection.GameModes(), info, logger)
		return server.New(handler, logger).Run(ctx, ":"+port)
	},
}

func verifyWatchPermissions(ctx context.Context, src liveconfig.Source, clients *kubernetes.Clients) error {
	if src == liveconfig.SourceCRD {
		if err := rbac.VerifyCRDExists(ctx, clients.APIExtensions); err != nil {
			return err
		}
	}
	if err := rbac.VerifyPermissions(ctx, clients.Clientset, rbac.WatchPermissions(src, namespace)); err != nil {
		return fmt.Errorf("RBAC verification failed: %w", err)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&port, "port", getEnvOrDefault("PORT", "8080"), "HTTP server port")
	serveCmd.Flags().BoolVar(&verifyRBAC, "verify-rbac", getEnvOrDefault("LIVECONFIG_VERIFY_RBAC", "false") == "true", "Verify RBAC permissions before serving")
}
