package daemon

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/sirupsen/logrus"
)

// Label is the launchd label of the deskctl daemon.
const Label = "cc.chlc.deskctl"

var plistTemplate = template.Must(template.New("plist").Funcs(template.FuncMap{"xml": xmlEscape}).Parse(`<?xml version="1.0" encoding="UTF-8"?>
<!DOCTYPE plist PUBLIC "-//Apple//DTD PLIST 1.0//EN" "http://www.apple.com/DTDs/PropertyList-1.0.dtd">
<plist version="1.0">
<dict>
	<key>Label</key>
	<string>{{ .Label | xml }}</string>
	<key>ProgramArguments</key>
	<array>
		<string>{{ .Executable | xml }}</string>
		<string>daemon</string>
		<string>--config</string>
		<string>{{ .ConfigPath | xml }}</string>
		<string>--daemon-socket</string>
		<string>{{ .SocketPath | xml }}</string>
	</array>
	<key>RunAtLoad</key>
	<true/>
	<key>KeepAlive</key>
	<true/>
	<key>StandardOutPath</key>
	<string>{{ .LogPath | xml }}</string>
	<key>StandardErrorPath</key>
	<string>{{ .LogPath | xml }}</string>
</dict>
</plist>
`))

// Options describes how launchd starts the daemon.
type Options struct {
	Executable string
	ConfigPath string
	SocketPath string
	LogPath    string
}

// PlistPath is the per-user LaunchAgent file.
func PlistPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, "Library", "LaunchAgents", Label+".plist"), nil
}

func xmlEscape(s string) (string, error) {
	var buf bytes.Buffer
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func renderPlist(o Options) ([]byte, error) {
	var buf bytes.Buffer
	err := plistTemplate.Execute(&buf, struct {
		Options
		Label string
	}{o, Label})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Install writes a LaunchAgent for the current executable and loads it.
func Install(configPath, socketPath string) error {
	// Get the path to the current executable
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get the path to the current executable: %w", err)
	}
	exePath, err = filepath.Abs(exePath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute path to the current executable: %w", err)
	}
	configPath, err = filepath.Abs(configPath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute config path: %w", err)
	}

	logrus.Infof("current executable path: %s", exePath)

	plistPath, err := PlistPath()
	if err != nil {
		return err
	}

	content, err := renderPlist(Options{
		Executable: exePath,
		ConfigPath: configPath,
		SocketPath: socketPath,
		LogPath:    filepath.Join(filepath.Dir(configPath), "daemon.log"),
	})
	if err != nil {
		return fmt.Errorf("failed to render launch agent: %w", err)
	}

	logrus.Infof("writing launch agent to %s", plistPath)

	err = os.MkdirAll(filepath.Dir(plistPath), 0755)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(plistPath), err)
	}

	// warn if the file already exists
	_, err = os.Stat(plistPath)
	if err == nil {
		logrus.Warnf("%s already exists, replacing it", plistPath)
		_ = exec.Command("/bin/launchctl", "unload", plistPath).Run()
	}

	err = os.WriteFile(plistPath, content, 0644)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", plistPath, err)
	}

	logrus.Infof("starting deskctl daemon")

	err = exec.Command(
		"/bin/launchctl",
		"load",
		plistPath,
	).Run()
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", plistPath, err)
	}

	return nil
}
