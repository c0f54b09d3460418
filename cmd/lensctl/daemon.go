package main

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mcrlens/lensctl/pkg/daemon"
	"github.com/mcrlens/lensctl/pkg/mcr"
	"github.com/mcrlens/lensctl/pkg/version"
)

var (
	// alwaysAllowNonRootAccess indicates whether to always allow non-root users to access the daemon.
	alwaysAllowNonRootAccess = false
	simPorts                 []string
	checkPort                = false
	lensCatalog              string
)

// NewDaemonCommand .
func NewDaemonCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "daemon",
		Hidden:  true,
		Short:   "Run lensctl daemon in the foreground",
		GroupID: gAdvanced,
		Long: `Run lensctl daemon in the foreground.

The daemon drives a simulated motor control board. --sim-ports restricts the
ports the simulated board answers on, so connection failures can be exercised.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			logrus.WithFields(logrus.Fields{
				"version": version.Version,
				"commit":  version.GitCommit,
			}).Info("lensctl daemon starting")
			return daemon.Run(daemon.Options{
				ConfigPath:   configPath,
				SocketPath:   unixSocketPath,
				AllowNonRoot: alwaysAllowNonRootAccess,
				Connector:    mcr.NewSimConnector(mcr.SimOptions{Ports: simPorts}),
				CheckPort:    checkPort,
				LensCatalog:  lensCatalog,
			})
		},
	}

	f := cmd.Flags()

	f.BoolVar(&alwaysAllowNonRootAccess, "always-allow-non-root-access", false,
		"Always allow non-root users to access the daemon.")
	f.StringSliceVar(&simPorts, "sim-ports", nil,
		"Ports the simulated board answers on. Empty accepts any port.")
	f.BoolVar(&checkPort, "check-port", false,
		"Deselect the comm port when the system no longer lists it, on startup and on every port listing.")
	f.StringVar(&lensCatalog, "lens-catalog", "",
		"Load lens families from this YAML file and remember it for later starts.")

	return cmd
}
