package main

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/deskctl/pkg/daemon"
	daemonutils "github.com/charlie0129/deskctl/pkg/utils/daemon"
	"github.com/charlie0129/deskctl/pkg/version"
)

// NewDaemonCommand .
func NewDaemonCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "daemon",
		Short:   "Run deskctl daemon in the foreground",
		GroupID: gAdvanced,
		Long: `Run deskctl daemon in the foreground.

The daemon polls the desk controller and serves the other commands over a unix socket. Send SIGHUP to reload the config file.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			logrus.WithFields(logrus.Fields{
				"version": version.Version,
				"commit":  version.GitCommit,
			}).Info("deskctl daemon starting")
			return daemon.Run(configPath, unixSocketPath)
		},
	}
}

// NewInstallCommand .
func NewInstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "install",
		Short:   "Install deskctl daemon (current user)",
		GroupID: gInstallation,
		Long: `Install deskctl daemon to launchd as a LaunchAgent of the current user.

This makes the daemon run in the background and start automatically at login.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			err := daemonutils.Install(configPath, unixSocketPath)
			if err != nil {
				return fmt.Errorf("failed to install daemon: %v", err)
			}

			logrus.Infof("installation succeeded")

			exePath, _ := os.Executable()

			cmd.Printf("`launchd' will use current binary (%s) at login so please make sure you do not move this binary. Once this binary is moved or deleted, you will need to run ``deskctl install'' again.\n", exePath)

			return nil
		},
	}
}

// NewUninstallCommand .
func NewUninstallCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "uninstall",
		Short:   "Uninstall deskctl daemon (current user)",
		GroupID: gInstallation,
		Long: `Uninstall deskctl daemon from launchd.

This stops the daemon and removes its LaunchAgent. The config file is kept.`,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			err := daemonutils.Uninstall()
			if err != nil {
				return fmt.Errorf("failed to uninstall daemon: %v", err)
			}

			logrus.Infof("successfully uninstalled deskctl")

			return nil
		},
	}
}
