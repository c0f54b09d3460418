package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/fang"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mcrlens/lensctl/pkg/client"
	"github.com/mcrlens/lensctl/pkg/version"
)

var (
	logLevel       = "info"
	unixSocketPath = "/var/run/lensctl.sock"
	configPath     = "/etc/lensctl.json"
)

var (
	gSession      = "Session:"
	gSettings     = "Settings:"
	gAdvanced     = "Advanced:"
	commandGroups = []string{
		gSession,
		gSettings,
		gAdvanced,
	}
)

var apiClient = client.NewClient(unixSocketPath)

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

// loadEnv fills flags the user did not set from the environment, after
// loading an optional .env file.
func loadEnv(cmd *cobra.Command) {
	_ = godotenv.Load()

	flags := cmd.Flags()
	for flag, env := range map[string]string{
		"daemon-socket": "LENSCTL_SOCKET",
		"config":        "LENSCTL_CONFIG",
	} {
		v := os.Getenv(env)
		if v == "" || flags.Changed(flag) {
			continue
		}
		if err := flags.Set(flag, v); err != nil {
			logrus.WithError(err).Warnf("ignoring %s", env)
		}
	}
}

func handleCmdError(err error) {
	if errors.Is(err, client.ErrDaemonNotRunning) {
		fmt.Fprintln(os.Stderr, "\nError: lensctl daemon is not running")
		fmt.Fprintln(os.Stderr, "Start it with 'lensctl daemon' or check --daemon-socket.")
	} else if errors.Is(err, client.ErrPermissionDenied) {
		fmt.Fprintln(os.Stderr, "\nError: Permission Denied")
		fmt.Fprintln(os.Stderr, "  - Try running the command again with 'sudo'")
		fmt.Fprintln(os.Stderr, "  - Or restart the daemon with the '--always-allow-non-root-access' flag to grant permissions to your user")
	} else if errors.Is(err, client.ErrConflict) {
		fmt.Fprintln(os.Stderr, "\nHint: check 'lensctl status'. Most commands need an initialized controller ('lensctl init').")
	}
}

func main() {
	cmd := NewCommand()
	if err := fang.Execute(
		context.Background(),
		cmd,
		fang.WithVersion(version.Version),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		handleCmdError(err)
		os.Exit(1)
	}
}

func NewCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lensctl",
		Short: "lensctl drives motorized zoom, focus and iris lenses through a motor control board",
		Long: `lensctl drives motorized lenses through a motor control board.

A daemon owns the controller connection and the session state. Every other
command talks to the daemon over a unix socket.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loadEnv(cmd)

			err := setupLogger()
			if err != nil {
				return err
			}

			apiClient = client.NewClient(unixSocketPath)
			if cmd.Name() == "daemon" {
				return nil
			}

			if clientVersion, daemonVersion, err := getVersion(); err == nil {
				if daemonVersion != clientVersion {
					logrus.WithFields(logrus.Fields{
						"clientVersion": clientVersion,
						"daemonVersion": daemonVersion,
					}).Warn("Version mismatch between client and daemon. lensctl may not work as expected. Restart the daemon after upgrading.")
				}
			}

			return nil
		},
	}

	globalFlags := cmd.PersistentFlags()
	globalFlags.StringVarP(&logLevel, "log-level", "l", "info", "log level (trace, debug, info, warn, error, fatal, panic)")
	globalFlags.StringVar(&configPath, "config", configPath, "config file path (env LENSCTL_CONFIG)")
	globalFlags.StringVar(&unixSocketPath, "daemon-socket", unixSocketPath, "lensctl daemon unix socket path (env LENSCTL_SOCKET)")

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
		NewInitCommand(),
		NewMoveCommand(),
		NewFamilyCommand(),
		NewPortCommand(),
		NewFilterCommand(),
		NewSpeedCommand(),
		NewLimitsCommand(),
		NewBacklashCommand(),
		NewRelativeWhenUnknownCommand(),
		NewCommPathCommand(),
		NewWatchCommand(),
		NewHistoryCommand(),
		NewEventsCommand(),
		NewInstallCommand(),
		NewUninstallCommand(),
	)

	return cmd
}
