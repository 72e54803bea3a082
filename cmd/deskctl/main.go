package main

import (
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/charlie0129/deskctl/pkg/client"
	"github.com/charlie0129/deskctl/pkg/config"
	"github.com/charlie0129/deskctl/pkg/gui"
	"github.com/charlie0129/deskctl/pkg/version"
)

var (
	logLevel       = "info"
	unixSocketPath = "/tmp/deskctl.sock"
	configPath     = config.DefaultPath()

	apiClient = client.NewClient(unixSocketPath)
)

var (
	gBasic        = "Basic:"
	gPresets      = "Presets:"
	gAdvanced     = "Advanced:"
	gInstallation = "Installation:"
	commandGroups = []string{
		gBasic,
		gPresets,
		gAdvanced,
		gInstallation,
	}
)

func setupLogger() error {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("failed to parse log level: %v", err)
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.TextFormatter{})
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logrus.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.Kitchen,
		})
	}

	return nil
}

func handleCmdError(err error) {
	switch {
	case errors.Is(err, client.ErrDaemonNotRunning):
		fmt.Fprintln(os.Stderr, "\nError: deskctl daemon is not running")
		fmt.Fprintln(os.Stderr, "Start it with 'deskctl daemon', or install it with 'deskctl install'.")
	case errors.Is(err, client.ErrPermissionDenied):
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "The daemon socket belongs to another user. Run the command as the user that started the daemon.")
	case errors.Is(err, client.ErrBadRequest):
		fmt.Fprintln(os.Stderr, "\nThe daemon rejected the request. Nothing was changed.")
	}
}

func main() {
	cmd := NewCommand()
	if err := cmd.Execute(); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deskctl",
		Short: "deskctl controls an ESP32 standing desk controller",
		Long: `deskctl controls an ESP32 standing desk controller over Wi-Fi.

The deskctl daemon polls the desk for its height and keeps the presets, the travel limits and the controller address. The other commands talk to the daemon.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			err := setupLogger()
			if err != nil {
				return err
			}

			apiClient = client.NewClient(unixSocketPath)

			if clientVersion, daemonVersion, err := getVersion(); err == nil {
				if daemonVersion != clientVersion {
					logrus.WithFields(logrus.Fields{
						"clientVersion": clientVersion,
						"daemonVersion": daemonVersion,
					}).Warn("Version mismatch between client and daemon. Restart the daemon after upgrading deskctl.")
				}
			} else if errors.Is(err, client.ErrNotFound) {
				logrus.Error("deskctl daemon is too old to report its version. Restart the daemon after upgrading deskctl.")
			}

			return nil
		},
	}

	if os.Getenv("DESKCTL_RUN_GUI") != "" || path.Base(os.Args[0]) == "deskctl-gui" {
		cmd.Run = func(_ *cobra.Command, _ []string) {
			gui.Run(unixSocketPath)
		}
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path")
	globalFlags.StringVar(&unixSocketPath, "daemon-socket", unixSocketPath, "deskctl daemon unix socket path")

	for _, i := range commandGroups {
		cmd.AddGroup(&cobra.Group{
			ID:    i,
			Title: i,
		})
	}

	cmd.AddCommand(
		NewDaemonCommand(),
		NewVersionCommand(),
		NewStatusCommand(),
		NewMoveCommand(directionUp),
		NewMoveCommand(directionDown),
		NewStopCommand(),
		NewGotoCommand(),
		NewHeightCommand(),
		NewPresetsCommand(),
		NewLimitsCommand(),
		NewBaseURLCommand(),
		NewTestConnectionCommand(),
		NewResetWiFiCommand(),
		NewScheduleCommand(),
		NewDiscoverCommand(),
		NewInstallCommand(),
		NewUninstallCommand(),
		gui.NewGUICommand(&unixSocketPath, gAdvanced),
	)

	return cmd
}

func getVersion() (clientVersion, daemonVersion string, err error) {
	daemonVersion, err = apiClient.GetVersion()
	return version.Version, daemonVersion, err
}
