package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// holdPulse is how often a held move is repeated.
const holdPulse = 200 * time.Millisecond

func parseIntArg(args []string, valueName string) (int, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("invalid number of arguments")
	}

	value, err := strconv.Atoi(args[0])
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %v", valueName, err)
	}

	return value, nil
}

// parsePresetNumber turns a 1-based preset number into an index.
func parsePresetNumber(args []string) (int, error) {
	n, err := parseIntArg(args, "preset number")
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return 0, fmt.Errorf("preset numbers start at 1")
	}
	return n - 1, nil
}

// hold repeats move every pulse until d has passed, then calls stop. stop
// is called even if a move fails.
func hold(d, pulse time.Duration, move, stop func() (string, error)) error {
	deadline := time.Now().Add(d)
	var moveErr error
	for {
		if _, err := move(); err != nil {
			moveErr = err
			break
		}
		if !time.Now().Add(pulse).Before(deadline) {
			time.Sleep(time.Until(deadline))
			break
		}
		time.Sleep(pulse)
	}

	if _, err := stop(); err != nil {
		if moveErr != nil {
			return fmt.Errorf("%v; stop also failed: %v", moveErr, err)
		}
		return err
	}
	return moveErr
}

func logResponse(ret string) {
	if ret != "" {
		logrus.Infof("daemon responded: %s", ret)
	}
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}
