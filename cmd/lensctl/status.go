package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mcrlens/lensctl/pkg/config"
	"github.com/mcrlens/lensctl/pkg/lens"
	"github.com/mcrlens/lensctl/pkg/session"
)

type statusData struct {
	snapshot *session.Snapshot
	config   *config.RawFileConfig
}

// fetchStatusData gathers all data required for the status command from the daemon.
func fetchStatusData() (*statusData, error) {
	snap, err := apiClient.GetStatus()
	if err != nil {
		return nil, fmt.Errorf("failed to get session status: %w", err)
	}

	conf, err := apiClient.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}

	return &statusData{
		snapshot: snap,
		config:   conf,
	}, nil
}

func NewStatusCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gSession,
		Short:   "Get the current status of the lens controller",
		Long:    `Get session status, axis positions, and configuration.`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := fetchStatusData()
			if err != nil {
				return err
			}

			if asJSON {
				b, err := json.MarshalIndent(data.snapshot, "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(b))
				return nil
			}

			printStatus(cmd, data)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print the raw session snapshot as JSON")

	return cmd
}

func printStatus(cmd *cobra.Command, data *statusData) {
	snap := data.snapshot
	conf := config.NewFileFromConfig(data.config, "")

	cmd.Println(bold("Session:"))
	cmd.Printf("  Status: %s\n", statusText(snap.Status))
	cmd.Printf("  Comm port: %s\n", bold("%s", orNone(snap.Port)))
	cmd.Printf("  Lens family: %s\n", bold("%s", orNone(snap.Family)))
	cmd.Printf("  Connected: %s\n", bool2Text(snap.Connected))
	if snap.Board.SerialNumber != "" {
		cmd.Printf("  Board: %s (firmware %s)\n", bold("%s", snap.Board.SerialNumber), snap.Board.FirmwareRevision)
	}
	if snap.Filter != 0 {
		cmd.Printf("  IR filter: %s\n", bold("%d", snap.Filter))
	}
	cmd.Println()

	cmd.Println(bold("Axes:"))
	for _, a := range lens.Axes() {
		st, ok := snap.Axes[a]
		line := fmt.Sprintf("  %-5s ", a)
		if !ok || (snap.Config == nil) {
			cmd.Println(line + "-")
			continue
		}
		line += bold("%5d", st.Step) + fmt.Sprintf(" / %d", snap.Config.Steps(a))
		if st.Homed {
			line += " (homed)"
		}
		cmd.Println(line)
	}
	for _, f := range snap.Faults {
		cmd.Printf("  %s %s: %s\n", bool2Text(false), f.Axis, f.Error)
	}
	cmd.Println()

	cmd.Println(bold("Policy:"))
	cmd.Printf("  Absolute moves: %s\n", bool2Text(snap.Policy.AbsoluteMovesEnabled))
	cmd.Printf("  Respect limits: %s\n", bool2Text(snap.Policy.RespectLimits))
	cmd.Printf("  Correct backlash: %s\n", bool2Text(snap.Policy.CorrectBacklash))
	cmd.Printf("  Relative moves when position unknown: %s\n", bool2Text(snap.Policy.RelativeWhenUnknown))
	cmd.Println()

	cmd.Println(bold("Configuration:"))
	for _, a := range lens.Axes() {
		homing := "driver default"
		if s := conf.HomingSpeed(a); s > 0 {
			homing = fmt.Sprintf("%d pps", s)
		}
		cmd.Printf("  %s speed: %s (homing %s)\n", a, bold("%d pps", conf.Speed(a)), homing)
	}
	watch := conf.PositionWatch()
	if watch == "" {
		watch = "disabled"
	}
	cmd.Printf("  Position watch: %s\n", bold("%s", watch))
	cmd.Printf("  Allow non-root users to access the daemon: %s\n", bool2Text(conf.AllowNonRootAccess()))
}

func orNone(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
