package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/emortalmc/live-config-parser/pkg/configs"
	"github.com/emortalmc/live-config-parser/pkg/liveconfig"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print game mode updates as they happen",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger, err := newLogger()
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		collection, _, err := openCollection(ctx, logger)
		if err != nil {
			return err
		}
		defer func() { _ = collection.Close() }()

		gameModes := collection.GameModes()
		if gameModes == nil {
			return fmt.Errorf("%w: no game mode source found", liveconfig.ErrSourceUnavailable)
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Loaded %d game modes from %s\n", len(gameModes.AllConfigs()), collection.Source())

		lines := make(chan string, 16)
		remove := gameModes.AddGlobalUpdateListener(func(update liveconfig.ConfigUpdate[*configs.GameModeConfig]) {
			select {
			case lines <- formatUpdate(update):
			case <-ctx.Done():
			}
		})
		defer remove()

		for {
			select {
			case <-ctx.Done():
				return nil
			case line := <-lines:
				fmt.Fprintln(out, line)
			}
		}
	},
}

func formatUpdate(update liveconfig.ConfigUpdate[*configs.GameModeConfig]) string {
	if update.Type == liveconfig.UpdateTypeModify && update.Previous.ID != update.Config.ID {
		return fmt.Sprintf("%-6s %s -> %s (%s)", update.Type, update.Previous.ID, update.Config.ID, update.FileName)
	}
	return fmt.Sprintf("%-6s %s (%s)", update.Type, update.Config.ID, update.FileName)
}

func init() {
	rootCmd.AddCommand(watchCmd)
}
