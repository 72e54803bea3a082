package device

import (
	"fmt"
	"net/url"
	"strconv"
)

// Bare commands understood by the desk controller firmware.
const (
	CommandUp        = "up"
	CommandDown      = "down"
	CommandStop      = "stop"
	CommandResetWiFi = "resetwifi"
)

// PresetSlots is the number of preset slots the firmware stores.
const PresetSlots = 3

// GotoCommand recalls the preset stored at index.
func GotoCommand(index int) string {
	return "goto" + strconv.Itoa(index)
}

// HeightCommand moves the desk to an explicit height in mm.
func HeightCommand(height int) string {
	return "height" + strconv.Itoa(height)
}

// SetPresetCommand stores height into the firmware preset slot index.
func SetPresetCommand(index, height int) string {
	return fmt.Sprintf("set%d %d", index, height)
}

// SetMinCommand sets the lower travel limit on the device.
func SetMinCommand(height int) string {
	return "setmin" + strconv.Itoa(height)
}

// SetMaxCommand sets the upper travel limit on the device.
func SetMaxCommand(height int) string {
	return "setmax" + strconv.Itoa(height)
}

// EncodeCommand turns a command into a single percent-encoded path segment.
func EncodeCommand(cmd string) string {
	return url.PathEscape(cmd)
}
