package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"

	"github.com/emortalmc/live-config-parser/pkg/configs"
	"github.com/emortalmc/live-config-parser/pkg/liveconfig"
)

var output string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the game modes of the configured source",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := validateOutput(output); err != nil {
			return err
		}

		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		collection, _, err := openCollection(cmd.Context(), logger)
		if err != nil {
			return err
		}
		defer func() { _ = collection.Close() }()

		gameModes := collection.GameModes()
		if gameModes == nil {
			return fmt.Errorf("%w: no game mode source found", liveconfig.ErrSourceUnavailable)
		}
		return printGameModes(cmd.OutOrStdout(), gameModes.AllConfigs(), output)
	},
}

func validateOutput(format string) error {
	switch format {
	case "table", "json", "yaml":
		return nil
	default:
		return fmt.Errorf("unknown output format %q, must be table, json or yaml", format)
	}
}

func printGameModes(out io.Writer, gameModes []*configs.GameModeConfig, format string) error {
	switch format {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(gameModes)
	case "yaml":
		data, err := yaml.Marshal(gameModes)
		if err != nil {
			return fmt.Errorf("failed to encode game modes: %w", err)
		}
		_, err = out.Write(data)
		return err
	default:
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tENABLED\tPRIORITY\tPLAYERS\tMAPS\tFILE")
		for _, gm := range gameModes {
			fmt.Fprintf(w, "%s\t%t\t%d\t%d-%d\t%d\t%s\n", gm.ID, gm.Enabled, gm.Priority, gm.MinPlayers, gm.MaxPlayers, len(gm.Maps), gm.FileName)
		}
		return w.Flush()
	}
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&output, "output", "o", "table", "Output format: table, json or yaml")
}
