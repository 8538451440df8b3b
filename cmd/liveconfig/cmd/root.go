package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/emortalmc/live-config-parser/pkg/kubernetes"
	"github.com/emortalmc/live-config-parser/pkg/liveconfig"
	"github.com/emortalmc/live-config-parser/pkg/logging"
	"github.com/emortalmc/live-config-parser/pkg/version"
)

var (
	buildVersion = version.Dev
	buildCommit  = "none"
	buildDate    = "unknown"
)

var (
	source        string
	namespace     string
	configMapName string
	path          string
	kubeconfig    string
	syncTimeout   string
	logLevel      string
	logFormat     string
)

var rootCmd = &cobra.Command{
	Use:   "liveconfig",
	Short: "Load, watch and publish live game mode configs",
	Long: `liveconfig keeps game mode configs live from a local folder, a Kubernetes
ConfigMap or GameMode custom resources.

It can serve the configs over HTTP, stream their updates, validate a folder
of configs and push a folder into a cluster.`,
	SilenceUsage: true,
}

// SetVersion records the build information set through ldflags.
func SetVersion(v, commit, date string) {
	buildVersion, buildCommit, buildDate = v, commit, date
	rootCmd.Version = version.Resolve(v, commit, date).Version
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&source, "source", getEnvOrDefault("LIVECONFIG_SOURCE", string(liveconfig.SourceAuto)), "Config source: auto, kubernetes, local or crd")
	flags.StringVar(&namespace, "namespace", getEnvOrDefault("LIVECONFIG_NAMESPACE", liveconfig.DefaultNamespace), "Kubernetes namespace")
	flags.StringVar(&configMapName, "configmap", getEnvOrDefault("LIVECONFIG_CONFIGMAP", liveconfig.DefaultConfigMapName), "Name of the game mode ConfigMap")
	flags.StringVar(&path, "path", getEnvOrDefault("LIVECONFIG_PATH", liveconfig.DefaultPath), "Local game mode folder")
	flags.StringVar(&kubeconfig, "kubeconfig", getEnvOrDefault("KUBECONFIG", ""), "Path to a kubeconfig (defaults to ~/.kube/config or in-cluster)")
	flags.StringVar(&syncTimeout, "sync-timeout", getEnvOrDefault("LIVECONFIG_SYNC_TIMEOUT", "10s"), "Time to wait for the initial configs of a Kubernetes source")
	flags.StringVar(&logLevel, "log-level", getEnvOrDefault("LOG_LEVEL", "info"), "Log level: debug, info, warn or error")
	flags.StringVar(&logFormat, "log-format", getEnvOrDefault("LOG_FORMAT", logging.FormatJSON), "Log format: json or console")
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func newLogger() (*zap.SugaredLogger, error) {
	return logging.New(logLevel, logFormat)
}

// newClients connects to Kubernetes when the source needs it. For auto a failure only
// means no cluster is available and nil clients are returned.
func newClients(src liveconfig.Source, logger *zap.SugaredLogger) (*kubernetes.Clients, error) {
	if src == liveconfig.SourceLocal {
		return nil, nil
	}

	config, err := kubernetes.NewRestConfig(kubeconfig)
	if err == nil {
		var clients *kubernetes.Clients
		clients, err = kubernetes.NewClients(config)
		if err == nil {
			return clients, nil
		}
	}

	if src == liveconfig.SourceAuto {
		logger.Infow("No Kubernetes cluster available", "error", err)
		return nil, nil
	}
	return nil, err
}

// liveConfigOptions builds the collection options from the flags.
func liveConfigOptions(clients *kubernetes.Clients) (liveconfig.Options, error) {
	timeout, err := time.ParseDuration(syncTimeout)
	if err != nil {
		return liveconfig.Options{}, fmt.Errorf("invalid sync timeout %q: %w", syncTimeout, err)
	}

	opts := liveconfig.Options{
		Source:        liveconfig.Source(source),
		Namespace:     namespace,
		ConfigMapName: configMapName,
		Path:          path,
		SyncTimeout:   timeout,
	}
	if clients != nil {
		opts.Clientset = clients.Clientset
		opts.DynamicClient = clients.Dynamic
	}
	return opts, nil
}

// openCollection opens the live config collection selected by the flags.
func openCollection(ctx context.Context, logger *zap.SugaredLogger) (*liveconfig.LiveConfigCollection, *kubernetes.Clients, error) {
	clients, err := newClients(liveconfig.Source(source), logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to Kubernetes: %w", err)
	}

	opts, err := liveConfigOptions(clients)
	if err != nil {
		return nil, nil, err
	}

	collection, err := liveconfig.NewLiveConfigCollection(ctx, opts, logger)
	if err != nil {
		return nil, nil, err
	}
	return collection, clients, nil
}
