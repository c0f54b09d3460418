package main

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mcrlens/lensctl/pkg/lens"
	"github.com/mcrlens/lensctl/pkg/session"
	"github.com/mcrlens/lensctl/pkg/utils/ptr"
)

func NewInitCommand() *cobra.Command {
	var (
		noHome   bool
		port     string
		family   string
		noLimits bool
	)

	cmd := &cobra.Command{
		Use:     "init",
		Short:   "Connect to and initialize the controller",
		GroupID: gSession,
		Long: `Connect to and initialize the controller.

Every axis is configured for the selected lens family and, unless --no-home
is given, driven to its home position. Absolute moves are only enabled after
all axes homed successfully.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := session.InitRequest{
				Port:       port,
				Family:     family,
				HomeMotors: !noHome,
			}
			if cmd.Flags().Changed("no-limits") {
				req.RespectLimits = ptr.To(!noLimits)
			}

			handle, err := apiClient.Initialize(req)
			if err != nil && !errors.Is(err, session.ErrAxisInitFault) {
				return fmt.Errorf("failed to initialize: %w", err)
			}

			for _, f := range handle.Faults {
				logrus.WithField("axis", f.Axis).Warnf("axis failed to initialize: %s", f.Error)
			}
			logrus.WithFields(logrus.Fields{
				"port":   handle.Port,
				"family": handle.Family,
				"status": handle.Status,
			}).Info("controller initialized")
			if !handle.Policy.AbsoluteMovesEnabled {
				logrus.Info("absolute moves are disabled until the lens is homed")
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.BoolVar(&noHome, "no-home", false, "skip homing; absolute moves stay disabled")
	f.StringVarP(&port, "port", "p", "", "comm port to use (default: the selected port)")
	f.StringVarP(&family, "family", "f", "", "lens family to use (default: the selected family)")
	f.BoolVar(&noLimits, "no-limits", false, "do not clamp focus and zoom to their soft limits")

	return cmd
}

func NewMoveCommand() *cobra.Command {
	var abs bool

	cmd := &cobra.Command{
		Use:     "move <axis> [direction] <amount>",
		Short:   "Move one axis",
		GroupID: gSession,
		Long: `Move one axis.

Relative moves take a direction and a step count, or a signed step count:
  zoom: tele (-) / wide (+)
  focus: near (-) / far (+)
  iris: open (-) / close (+)

With --abs the amount is the target step. Absolute moves need a homed lens.`,
		Example: `  lensctl move zoom tele 25
  lensctl move focus -- -120
  lensctl move iris --abs 40`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(_ *cobra.Command, args []string) error {
			req, err := parseMoveArgs(args, abs)
			if err != nil {
				return err
			}

			res, err := apiClient.Move(req)
			if err != nil {
				return fmt.Errorf("failed to move: %w", err)
			}

			if res.Warning != "" {
				logrus.WithField("status", res.Status).Warn(res.Warning)
			}
			logrus.WithFields(logrus.Fields{
				"axis": res.Axis,
				"step": res.Step,
			}).Info("move finished")
			return nil
		},
	}

	cmd.Flags().BoolVar(&abs, "abs", false, "move to an absolute step")

	return cmd
}

func parseMoveArgs(args []string, abs bool) (session.MoveRequest, error) {
	axis, err := lens.ParseAxis(args[0])
	if err != nil {
		return session.MoveRequest{}, err
	}
	req := session.MoveRequest{Axis: axis, Kind: session.Relative}
	if abs {
		req.Kind = session.Absolute
	}

	amountArg := args[len(args)-1]
	if len(args) == 3 {
		if abs {
			return session.MoveRequest{}, fmt.Errorf("absolute moves take no direction")
		}
		d, err := session.ParseDirection(args[1])
		if err != nil {
			return session.MoveRequest{}, err
		}
		req.Direction = d
	}

	req.Amount, err = parseIntArg(amountArg, "amount")
	if err != nil {
		return session.MoveRequest{}, err
	}
	return req, nil
}

func NewFamilyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "family [name]",
		Short:   "Select the lens family, or list the known families",
		GroupID: gSession,
		Long: `Select the lens family, or list the known families.

Selecting another family resets the session to not initialized; the
connection stays open.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return listFamilies(cmd)
			}

			ret, err := apiClient.SetFamily(args[0])
			if err != nil {
				return fmt.Errorf("failed to set lens family: %w", err)
			}
			logResponse(ret)
			logrus.Infof("successfully selected lens family %s", args[0])
			return nil
		},
	}

	return cmd
}

func listFamilies(cmd *cobra.Command) error {
	families, err := apiClient.GetFamilies()
	if err != nil {
		return err
	}
	snap, err := apiClient.GetStatus()
	if err != nil {
		return err
	}

	for _, f := range families {
		marker := " "
		if f.Family == snap.Family {
			marker = bold("*")
		}
		cmd.Printf("%s %-12s zoom %d (home %d)  focus %d (home %d)  iris %d\n",
			marker, f.Family, f.ZoomSteps, f.ZoomHomeRef, f.FocusSteps, f.FocusHomeRef, f.IrisSteps)
	}
	return nil
}

func NewPortCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "port [name]",
		Short:   "Select the comm port, or list the available ports",
		GroupID: gSession,
		Long: `Select the comm port, or list the available ports.

Selecting another port closes the connection and resets the session to not
initialized.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				ports, err := apiClient.GetPorts()
				if err != nil {
					return err
				}
				if len(ports) == 0 {
					cmd.Println("no serial ports found")
				}
				for _, p := range ports {
					cmd.Println(p)
				}
				return nil
			}

			ret, err := apiClient.SetPort(args[0])
			if err != nil {
				return fmt.Errorf("failed to set comm port: %w", err)
			}
			logResponse(ret)
			logrus.Infof("successfully selected comm port %s", args[0])
			return nil
		},
	}

	return cmd
}

func NewFilterCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "filter <1|2>",
		Short:   "Switch the IR-cut filter",
		GroupID: gSession,
		Args:    cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			position, err := parseIntArg(args[0], "filter position")
			if err != nil {
				return err
			}

			ret, err := apiClient.SetFilter(position)
			if err != nil {
				return fmt.Errorf("failed to switch filter: %w", err)
			}
			logResponse(ret)
			logrus.Infof("successfully switched filter to position %d", position)
			return nil
		},
	}
}

func NewCommPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "comm-path <USB|UART|I2C>",
		Short:   "Switch the board's communication path",
		GroupID: gAdvanced,
		Long: `Switch the board's communication path.

The board stops answering on the current link afterwards, so the connection is
closed and the session must be initialized again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			ret, err := apiClient.SetCommPath(args[0])
			if err != nil {
				return fmt.Errorf("failed to set communication path: %w", err)
			}
			logResponse(ret)
			logrus.Infof("successfully switched communication path to %s", args[0])
			return nil
		},
	}
}
