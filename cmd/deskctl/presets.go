package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/deskctl/pkg/types"
)

func NewPresetsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "presets",
		Aliases: []string{"preset", "p"},
		Short:   "List and edit presets",
		GroupID: gPresets,
		Long: fmt.Sprintf(`List and edit presets.

Up to %d presets are kept. Presets are numbered from 1. Every edit is saved and the first three presets are sent to the desk controller.`, types.MaxPresets),
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runPresetsList(cmd)
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List presets",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runPresetsList(cmd)
			},
		},
		newPresetsAddCommand(),
		newPresetsRemoveCommand(),
		newPresetsUpdateCommand(),
		newPresetsReplaceCommand(),
		&cobra.Command{
			Use:   "sync",
			Short: "Send the first three presets to the desk again",
			Args:  cobra.NoArgs,
			RunE: func(_ *cobra.Command, _ []string) error {
				ret, err := apiClient.SyncPresets()
				if err != nil {
					return fmt.Errorf("failed to sync presets: %v", err)
				}
				logResponse(ret)
				return nil
			},
		},
	)

	return cmd
}

func runPresetsList(cmd *cobra.Command) error {
	presets, err := apiClient.GetPresets()
	if err != nil {
		return err
	}
	printPresets(cmd, presets)
	return nil
}

func printPresets(cmd *cobra.Command, presets []types.Preset) {
	if len(presets) == 0 {
		cmd.Println("No presets.")
		return
	}
	for i, p := range presets {
		cmd.Printf("  %d. %-16s %s\n", i+1, p.Name, bold("%d mm", p.Height))
	}
}

func newPresetsAddCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "add [name] [mm]",
		Short:   "Add a preset",
		Example: `  deskctl presets add Standing 1100`,
		Args:    cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			h, err := parseIntArg(args[1:], "height")
			if err != nil {
				return err
			}

			p, err := apiClient.AddPreset(args[0], h)
			if err != nil {
				return err
			}
			logrus.Infof("added preset %q at %d mm", p.Name, p.Height)
			return nil
		},
	}
}

func newPresetsRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "rm [preset-number]",
		Aliases: []string{"remove", "delete"},
		Short:   "Remove a preset",
		RunE: func(_ *cobra.Command, args []string) error {
			i, err := parsePresetNumber(args)
			if err != nil {
				return err
			}

			ret, err := apiClient.RemovePreset(i)
			if err != nil {
				return err
			}
			logResponse(ret)
			return nil
		},
	}
}

func newPresetsUpdateCommand() *cobra.Command {
	var name string
	var height int

	cmd := &cobra.Command{
		Use:   "update [preset-number]",
		Short: "Rename a preset or change its height",
		Example: `  deskctl presets update 2 --height 1120
  deskctl presets update 1 --name Sitting`,
		RunE: func(cmd *cobra.Command, args []string) error {
			i, err := parsePresetNumber(args)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("name") && !cmd.Flags().Changed("height") {
				return fmt.Errorf("nothing to update, use --name or --height")
			}

			presets, err := apiClient.GetPresets()
			if err != nil {
				return err
			}
			if i >= len(presets) {
				return fmt.Errorf("there is no preset %d, %d presets are stored", i+1, len(presets))
			}

			p := presets[i]
			if cmd.Flags().Changed("name") {
				p.Name = name
			}
			if cmd.Flags().Changed("height") {
				p.Height = height
			}

			ret, err := apiClient.UpdatePreset(i, p.Name, p.Height)
			if err != nil {
				return err
			}
			logResponse(ret)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "new name")
	cmd.Flags().IntVar(&height, "height", 0, "new height in mm")

	return cmd
}

func newPresetsReplaceCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "replace [file]",
		Short: "Replace all presets with a JSON list",
		Long: `Replace all presets with a JSON list read from a file, or from stdin when the file is "-".

The list is rejected as a whole if it has more than ` + strconv.Itoa(types.MaxPresets) + ` presets or a height outside the limits.`,
		Example: `  echo '[{"name":"Sit","height":700},{"name":"Stand","height":1100}]' | deskctl presets replace -`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			presets, err := readPresets(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}

			ret, err := apiClient.ReplacePresets(presets)
			if err != nil {
				return err
			}
			logResponse(ret)
			return nil
		},
	}
}

func readPresets(stdin io.Reader, file string) ([]types.Preset, error) {
	var b []byte
	var err error
	if file == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(file)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read presets: %v", err)
	}

	var presets []types.Preset
	if err := json.Unmarshal(b, &presets); err != nil {
		return nil, fmt.Errorf("failed to parse presets: %v", err)
	}
	return presets, nil
}
