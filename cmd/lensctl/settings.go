package main

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/mcrlens/lensctl/pkg/lens"
	"github.com/mcrlens/lensctl/pkg/session"
)

func NewSpeedCommand() *cobra.Command {
	var homing int

	cmd := &cobra.Command{
		Use:     "speed <axis> [pps]",
		Short:   "Set motor and homing speed of an axis",
		GroupID: gSettings,
		Long: `Set motor and homing speed of an axis, in pulses per second.

The controller must be connected. Accepted speeds are persisted and applied at
every initialization. Values the board rejects keep the previous speed.`,
		Example: `  lensctl speed focus 800
  lensctl speed zoom --homing 500`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			axis, err := lens.ParseAxis(args[0])
			if err != nil {
				return err
			}

			var s session.AxisSpeed
			if len(args) == 2 {
				s.Speed, err = parseIntArg(args[1], "speed")
				if err != nil {
					return err
				}
			}
			s.HomingSpeed = homing
			if s.Speed <= 0 && s.HomingSpeed <= 0 {
				return fmt.Errorf("nothing to set: give a speed or --homing")
			}

			got, err := apiClient.SetSpeeds(session.Speeds{axis: s})
			if err != nil {
				return fmt.Errorf("failed to set speed: %w", err)
			}

			applied := got[axis]
			if s.Speed > 0 && applied.Speed != s.Speed {
				logrus.Warnf("%s speed %d was rejected, keeping %d", axis, s.Speed, applied.Speed)
			}
			if s.HomingSpeed > 0 && applied.HomingSpeed != s.HomingSpeed {
				logrus.Warnf("%s homing speed %d was rejected, keeping %d", axis, s.HomingSpeed, applied.HomingSpeed)
			}
			logrus.WithFields(logrus.Fields{
				"axis":        axis,
				"speed":       applied.Speed,
				"homingSpeed": applied.HomingSpeed,
			}).Info("speed updated")
			return nil
		},
	}

	cmd.Flags().IntVar(&homing, "homing", 0, "homing speed in pps")

	return cmd
}

func NewLimitsCommand() *cobra.Command {
	return newEnableDisableCommand(
		"limits",
		"Clamp focus and zoom moves to their soft limits",
		`Clamp focus and zoom moves to their soft limits.

Absolute moves need the limits on and a homed initialization that has not
drifted since.`,
		func() (string, error) { return apiClient.SetRespectLimits(true) },
		func() (string, error) { return apiClient.SetRespectLimits(false) },
	)
}

func NewBacklashCommand() *cobra.Command {
	return newEnableDisableCommand(
		"backlash",
		"Correct gear backlash on focus and zoom relative moves",
		`Correct gear backlash on focus and zoom relative moves.

The iris is never corrected.`,
		func() (string, error) { return apiClient.SetBacklash(true) },
		func() (string, error) { return apiClient.SetBacklash(false) },
	)
}

func NewRelativeWhenUnknownCommand() *cobra.Command {
	return newEnableDisableCommand(
		"relative-moves",
		"Allow relative moves while the position is unknown",
		`Allow relative moves while the position is unknown.

Absolute moves stay rejected until the controller is initialized again.`,
		func() (string, error) { return apiClient.SetRelativeWhenUnknown(true) },
		func() (string, error) { return apiClient.SetRelativeWhenUnknown(false) },
	)
}

func NewWatchCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "watch [cron-expression]",
		Short:   "Manage the periodic position check",
		GroupID: gSettings,
		Long: `Manage the periodic position check.

While the session is ready, the daemon reads every axis on this schedule and
moves to position unknown if one drifted out of bounds.`,
		Example: `  lensctl watch '@every 30s'
  lensctl watch '0 */5 * * * *' (every five minutes)
  lensctl watch disable`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runWatchShow(cmd)
			}
			return runWatchSet(args[0])
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "disable",
		Short: "Disable the periodic position check",
		Args:  cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return runWatchSet("")
		},
	})

	return cmd
}

func runWatchShow(cmd *cobra.Command) error {
	ws, err := apiClient.GetWatch()
	if err != nil {
		return fmt.Errorf("failed to get position watch: %w", err)
	}

	if ws.Schedule == "" {
		cmd.Println("Position watch is disabled")
		return nil
	}
	cmd.Printf("Schedule: %s\n", bold("%s", ws.Schedule))
	if !ws.NextRun.IsZero() {
		cmd.Printf("Next run: %s (in %s)\n", ws.NextRun.Format(time.RFC3339), time.Until(ws.NextRun).Round(time.Second))
	}
	cmd.Printf("Runs so far: %d\n", ws.Runs)
	return nil
}

func runWatchSet(expr string) error {
	ret, err := apiClient.SetWatch(expr)
	if err != nil {
		return fmt.Errorf("failed to set position watch: %w", err)
	}
	logResponse(ret)
	if expr == "" {
		logrus.Info("successfully disabled position watch")
		return nil
	}
	logrus.Infof("successfully set position watch to %q", expr)
	return nil
}
