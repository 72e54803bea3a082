package gui

import (
	"context"

	"github.com/getlantern/systray"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/deskctl/pkg/client"
	"github.com/charlie0129/deskctl/pkg/version"
)

// NewGUICommand reads unixSocketPath when it runs, after flags are parsed.
func NewGUICommand(unixSocketPath *string, groupID string) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "gui",
		Short:   "Start the deskctl tray app",
		GroupID: groupID,
		Long: `Start the deskctl tray app.

The tray shows the current desk height and offers the presets. The deskctl daemon must be running.`,
		Run: func(_ *cobra.Command, _ []string) {
			Run(*unixSocketPath)
		},
	}

	return cmd
}

// Run shows the tray until the user quits.
func Run(unixSocketPath string) {
	logrus.WithField("version", version.Version).WithField("gitCommit", version.GitCommit).Info("deskctl gui")

	ctx, cancel := context.WithCancel(context.Background())
	t := newTray(client.NewClient(unixSocketPath))

	systray.Run(func() {
		t.build()
		go t.watchEvents(ctx)
		go t.watchClicks()
		go t.refreshLoop(ctx)
	}, func() {
		cancel()
		logrus.Info("deskctl gui exiting")
	})
}
