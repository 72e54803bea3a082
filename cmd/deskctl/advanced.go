package main

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/deskctl/pkg/config"
	"github.com/charlie0129/deskctl/pkg/discovery"
)

func NewLimitsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "limits",
		Short:   "Show or set the travel limits",
		GroupID: gAdvanced,
		Long: `Show or set the travel limits of the desk in millimetres.

Heights and presets outside the limits are rejected.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLimitsGet(cmd)
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get",
			Short: "Show the travel limits",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runLimitsGet(cmd)
			},
		},
		&cobra.Command{
			Use:     "set [min] [max]",
			Short:   "Set the travel limits",
			Example: `  deskctl limits set 620 1250`,
			Args:    cobra.ExactArgs(2),
			RunE: func(_ *cobra.Command, args []string) error {
				lo, err := parseIntArg(args[:1], "minimum")
				if err != nil {
					return err
				}
				hi, err := parseIntArg(args[1:], "maximum")
				if err != nil {
					return err
				}

				ret, err := apiClient.SetLimits(lo, hi)
				if err != nil {
					return fmt.Errorf("failed to set limits: %v", err)
				}
				logResponse(ret)
				return nil
			},
		},
	)

	return cmd
}

func runLimitsGet(cmd *cobra.Command) error {
	l, err := apiClient.GetLimits()
	if err != nil {
		return err
	}
	cmd.Printf("Minimum: %s\n", bold("%d mm", l.Min))
	cmd.Printf("Maximum: %s\n", bold("%d mm", l.Max))
	return nil
}

func NewBaseURLCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "base-url",
		Aliases: []string{"url"},
		Short:   "Show or set the desk controller address",
		GroupID: gAdvanced,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBaseURLGet(cmd)
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "get",
			Short: "Show the desk controller address",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return runBaseURLGet(cmd)
			},
		},
		&cobra.Command{
			Use:   "set [url]",
			Short: "Set the desk controller address",
			Long: `Set the desk controller address.

A bare host is accepted; "http://" is added when the scheme is missing.`,
			Example: `  deskctl base-url set 192.168.1.42
  deskctl base-url set http://desk.local`,
			Args: cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				ret, err := apiClient.SetBaseURL(args[0])
				if err != nil {
					return fmt.Errorf("failed to set base URL: %v", err)
				}
				logResponse(ret)
				return nil
			},
		},
	)

	return cmd
}

func runBaseURLGet(cmd *cobra.Command) error {
	u, err := apiClient.GetBaseURL()
	if err != nil {
		return err
	}
	cmd.Println(u)
	return nil
}

func NewTestConnectionCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "test-connection",
		Short:   "Check that a desk controller answers at the base URL",
		GroupID: gAdvanced,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ok, err := apiClient.TestConnection()
			if err != nil {
				return err
			}
			cmd.Printf("Desk controller reachable: %s\n", bool2Text(ok))
			if !ok {
				return fmt.Errorf("no desk controller found")
			}
			return nil
		},
	}
}

func NewResetWiFiCommand() *cobra.Command {
	yes := false

	cmd := &cobra.Command{
		Use:     "reset-wifi",
		Short:   "Reset the Wi-Fi settings of the desk controller",
		GroupID: gAdvanced,
		Long: `Reset the Wi-Fi settings of the desk controller.

The controller forgets its network and opens its own access point. The base URL is set back to the access point address, so you need to join the controller's network to set it up again.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			if !yes {
				return fmt.Errorf("this disconnects the desk from your network, pass --yes to continue")
			}

			ret, err := apiClient.ResetWiFi()
			if err != nil {
				return fmt.Errorf("failed to reset Wi-Fi: %v", err)
			}
			logResponse(ret)
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm the reset")

	return cmd
}

func NewDiscoverCommand() *cobra.Command {
	var timeout time.Duration
	use := false

	cmd := &cobra.Command{
		Use:     "discover",
		Short:   "Find desk controllers on the local network",
		GroupID: gAdvanced,
		Long: `Find desk controllers on the local network with mDNS.

Every HTTP service found is checked for the desk controller status page. With --use, the first controller found becomes the base URL.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			requestTimeout := 3 * time.Second
			if conf, err := config.NewFile(configPath); err == nil {
				requestTimeout = conf.RequestTimeout()
			} else {
				logrus.WithError(err).Debug("cannot read config, using default request timeout")
			}

			s := discovery.NewScanner(requestTimeout)
			s.Timeout = timeout

			logrus.Infof("browsing for %s", timeout)
			found, err := s.Scan(context.Background())
			if err != nil {
				return err
			}
			if len(found) == 0 {
				return fmt.Errorf("no desk controller found")
			}

			for _, c := range found {
				cmd.Printf("  %s (%s)\n", bold("%s", c.BaseURL()), c.Hostname)
			}

			if use {
				ret, err := apiClient.SetBaseURL(found[0].BaseURL())
				if err != nil {
					return fmt.Errorf("failed to set base URL: %v", err)
				}
				logResponse(ret)
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", discovery.DefaultScanTimeout, "how long to browse")
	cmd.Flags().BoolVar(&use, "use", false, "use the first controller found")

	return cmd
}
