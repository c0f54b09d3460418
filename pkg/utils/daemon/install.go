package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

const unitTemplate = `[Unit]
Description=lensctl lens controller daemon
After=network.target

[Service]
Type=simple
ExecStart=/path/to/lensctl daemon ARGS
Restart=on-failure
ExecReload=/bin/kill -HUP $MAINPID

[Install]
WantedBy=multi-user.target
`

var (
	unitPath = "/etc/systemd/system/lensctl.service"

	// systemctl is swapped in tests.
	systemctl = func(args ...string) error {
		return exec.Command("systemctl", args...).Run()
	}
)

// unitFile renders the systemd unit for exePath with extra daemon arguments.
func unitFile(exePath string, args []string) string {
	tmpl := strings.ReplaceAll(unitTemplate, "/path/to/lensctl", exePath)
	return strings.ReplaceAll(tmpl, " ARGS", strings.TrimRight(" "+strings.Join(args, " "), " "))
}

// Install registers the current executable as a systemd service and starts it.
func Install(args []string) error {
	// Get the path to the current executable
	exePath, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get the path to the current executable: %w", err)
	}
	exePath, err = filepath.Abs(exePath)
	if err != nil {
		return fmt.Errorf("failed to get the absolute path to the current executable: %w", err)
	}

	err = os.Chmod(exePath, 0755)
	if err != nil {
		return fmt.Errorf("failed to chmod the current executable to 0755: %w", err)
	}

	logrus.Infof("current executable path: %s", exePath)
	logrus.Infof("writing systemd unit to %s", unitPath)

	err = os.MkdirAll(filepath.Dir(unitPath), 0755)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(unitPath), err)
	}

	// warn if the file already exists
	_, err = os.Stat(unitPath)
	if err == nil {
		logrus.Warnf("%s already exists, overwriting", unitPath)
	}

	err = os.WriteFile(unitPath, []byte(unitFile(exePath, args)), 0644)
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", unitPath, err)
	}

	logrus.Infof("starting lensctl daemon")

	if err := systemctl("daemon-reload"); err != nil {
		return fmt.Errorf("failed to reload systemd: %w", err)
	}
	if err := systemctl("enable", "--now", filepath.Base(unitPath)); err != nil {
		return fmt.Errorf("failed to enable %s: %w", filepath.Base(unitPath), err)
	}

	return nil
}
