package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/deskctl/pkg/version"
)

const (
	directionUp   = "up"
	directionDown = "down"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewMoveCommand(direction string) *cobra.Command {
	var holdFor time.Duration

	move := func() (string, error) {
		if direction == directionUp {
			return apiClient.MoveUp()
		}
		return apiClient.MoveDown()
	}

	cmd := &cobra.Command{
		Use:     direction,
		Short:   "Move the desk " + direction,
		GroupID: gBasic,
		Long: fmt.Sprintf(`Move the desk %s.

The desk keeps moving until it reaches its limit or gets a stop command. With --hold, the move is repeated for the given duration and the desk is stopped afterwards, like holding the button.`, direction),
		Example: fmt.Sprintf(`  deskctl %s
  deskctl %s --hold 2s`, direction, direction),
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if holdFor > 0 {
				if err := hold(holdFor, holdPulse, move, apiClient.Stop); err != nil {
					return fmt.Errorf("failed to move %s: %v", direction, err)
				}
				logrus.Infof("moved %s for %s", direction, holdFor)
				return nil
			}

			ret, err := move()
			if err != nil {
				return fmt.Errorf("failed to move %s: %v", direction, err)
			}
			logResponse(ret)
			return nil
		},
	}

	cmd.Flags().DurationVar(&holdFor, "hold", 0, "keep moving for this long, then stop")

	return cmd
}

func NewStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "stop",
		Short:   "Stop the desk",
		GroupID: gBasic,
		Args:    cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			ret, err := apiClient.Stop()
			if err != nil {
				return fmt.Errorf("failed to stop: %v", err)
			}
			logResponse(ret)
			return nil
		},
	}
}

func NewGotoCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "goto [preset-number]",
		Short:   "Move the desk to a preset",
		GroupID: gBasic,
		Long: `Move the desk to a preset.

Presets are numbered from 1, as listed by "deskctl presets". The first three presets are stored on the desk controller and recalled there; the others are sent as a target height.`,
		Example: `  deskctl goto 1`,
		RunE: func(_ *cobra.Command, args []string) error {
			i, err := parsePresetNumber(args)
			if err != nil {
				return err
			}

			ret, err := apiClient.GotoPreset(i)
			if err != nil {
				return fmt.Errorf("failed to move to preset %d: %v", i+1, err)
			}
			logResponse(ret)
			return nil
		},
	}
}

func NewHeightCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "height [mm]",
		Short:   "Move the desk to a height",
		GroupID: gBasic,
		Long: `Move the desk to a height in millimetres.

The height must be within the travel limits (see "deskctl limits").`,
		Example: `  deskctl height 1050`,
		RunE: func(_ *cobra.Command, args []string) error {
			h, err := parseIntArg(args, "height")
			if err != nil {
				return err
			}

			ret, err := apiClient.MoveToHeight(h)
			if err != nil {
				return fmt.Errorf("failed to move to %d mm: %v", h, err)
			}
			logResponse(ret)
			return nil
		},
	}
}
