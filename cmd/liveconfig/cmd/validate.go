package cmd

import (
	"fmt"
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/emortalmc/live-config-parser/pkg/configs"
	"github.com/emortalmc/live-config-parser/pkg/parser"
	"github.com/emortalmc/live-config-parser/pkg/watcher"
)

var strict bool

var validateCmd = &cobra.Command{
	Use:   "validate <dir>",
	Short: "Validate a folder of game mode configs",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		files, err := watcher.ReadFolder(args[0])
		if err != nil {
			return err
		}

		parsed, err := parseGameModes(files, strict)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "%d game mode configs are valid\n", len(parsed))
		return nil
	},
}

// parseGameModes parses every file, reporting all invalid files and duplicate ids at once.
func parseGameModes(files map[string]string, strictFields bool) ([]*configs.GameModeConfig, error) {
	p := parser.GameModeParser()
	if strictFields {
		p = p.Strict()
	}

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var result *multierror.Error
	parsed := make([]*configs.GameModeConfig, 0, len(files))
	fileByID := make(map[string]string, len(files))
	for _, name := range names {
		cfg, err := p.Parse(name, []byte(files[name]))
		if err != nil {
			result = multierror.Append(result, err)
			continue
		}
		if other, dup := fileByID[cfg.ID]; dup {
			result = multierror.Append(result, fmt.Errorf("game mode id %s is defined in both %s and %s", cfg.ID, other, name))
			continue
		}
		fileByID[cfg.ID] = name
		parsed = append(parsed, cfg)
	}
	return parsed, result.ErrorOrNil()
}

func init() {
	rootCmd.AddCommand(validateCmd)

	validateCmd.Flags().BoolVar(&strict, "strict", false, "Reject unknown fields")
}
