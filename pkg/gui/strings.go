package gui

const (
	trayTooltip = `deskctl - standing desk controller`

	quitTooltip = `Quit the deskctl tray app, but keep the deskctl daemon running.

The daemon keeps polling the desk and running the preset schedule. You can still control the desk from the command line (deskctl).`

	presetTooltip = `Move the desk to this preset`
	stopTooltip   = `Stop the desk`
)
