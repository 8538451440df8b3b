package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/emortalmc/live-config-parser/pkg/kubernetes"
	"github.com/emortalmc/live-config-parser/pkg/rbac"
	"github.com/emortalmc/live-config-parser/pkg/version"
)

const (
	envPublishUsername = "MAVEN_USERNAME"
	envPublishSecret   = "MAVEN_SECRET"

	channelLabel        = "liveconfig.emortal.dev/channel"
	versionAnnotation   = "liveconfig.emortal.dev/version"
	commitAnnotation    = "liveconfig.emortal.dev/commit"
	publisherAnnotation = "liveconfig.emortal.dev/authenticated"
)

var (
	pushTarget         string
	requireCredentials bool
	prune              bool
	verifyPushRBAC     bool
)

var pushCmd = &cobra.Command{
	Use:   "push <dir>",
	Short: "Publish a folder of game mode configs to the cluster",
	Long: `Validate a folder of game mode configs and publish it into the game mode
ConfigMap (--target configmap) or as GameMode resources (--target crd).

The publish channel is "development" when the version comes from COMMIT_HASH_SHORT
and "release" when it comes from RELEASE_VERSION. With --require-credentials,
MAVEN_USERNAME and MAVEN_SECRET must be set.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if pushTarget != "configmap" && pushTarget != "crd" {
			return fmt.Errorf("unknown push target %q, must be configmap or crd", pushTarget)
		}
		authenticated, err := checkCredentials(requireCredentials)
		if err != nil {
			return err
		}

		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		files, err := kubernetes.ReadConfigFolder(args[0])
		if err != nil {
			return err
		}
		if _, err := parseGameModes(files, strict); err != nil {
			return fmt.Errorf("refusing to push invalid configs: %w", err)
		}

		config, err := kubernetes.NewRestConfig(kubeconfig)
		if err != nil {
			return err
		}
		clients, err := kubernetes.NewClients(config)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if verifyPushRBAC {
			if err := rbac.VerifyPermissions(ctx, clients.Clientset, rbac.PublishPermissions(namespace)); err != nil {
				return err
			}
		}

		info := version.Resolve(buildVersion, buildCommit, buildDate)
		labels := map[string]string{channelLabel: info.Channel}
		annotations := publishAnnotations(info, authenticated)
		out := cmd.OutOrStdout()

		if pushTarget == "crd" {
			crdClient := kubernetes.NewCRDClient(clients.Dynamic, logger)
			crdClient.Annotations = annotations
			result, err := crdClient.Publish(ctx, namespace, files, labels, prune)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Published %d game modes to %s (%d created, %d updated, %d deleted) on channel %s\n",
				len(files), namespace, result.Created, result.Updated, result.Deleted, info.Channel)
			return nil
		}

		publisher := kubernetes.NewConfigMapPublisher(clients.Clientset, logger)
		publisher.Annotations = annotations
		created, err := publisher.Publish(ctx, namespace, configMapName, files, labels)
		if err != nil {
			return err
		}

		action := "Updated"
		if created {
			action = "Created"
		}
		fmt.Fprintf(out, "%s ConfigMap %s/%s with %d game modes on channel %s\n", action, namespace, configMapName, len(files), info.Channel)
		return nil
	},
}

// checkCredentials reports whether publish credentials are present. Their values are never used.
func checkCredentials(required bool) (bool, error) {
	present := os.Getenv(envPublishUsername) != "" && os.Getenv(envPublishSecret) != ""
	if required && !present {
		return false, fmt.Errorf("%s and %s must be set to push", envPublishUsername, envPublishSecret)
	}
	return present, nil
}

func publishAnnotations(info version.Info, authenticated bool) map[string]string {
	annotations := map[string]string{
		versionAnnotation:   info.Version,
		publisherAnnotation: fmt.Sprintf("%t", authenticated),
	}
	if info.Commit != "" && info.Commit != "none" {
		annotations[commitAnnotation] = info.Commit
	}
	return annotations
}

func init() {
	rootCmd.AddCommand(pushCmd)

	pushCmd.Flags().StringVar(&pushTarget, "target", getEnvOrDefault("LIVECONFIG_PUSH_TARGET", "configmap"), "Where to publish: configmap or crd")
	pushCmd.Flags().BoolVar(&requireCredentials, "require-credentials", false, "Fail unless MAVEN_USERNAME and MAVEN_SECRET are set")
	pushCmd.Flags().BoolVar(&prune, "prune", false, "Delete managed GameMode resources without a config file (crd target)")
	pushCmd.Flags().BoolVar(&verifyPushRBAC, "verify-rbac", false, "Verify RBAC permissions before publishing")
	pushCmd.Flags().BoolVar(&strict, "strict", false, "Reject unknown fields")
}
