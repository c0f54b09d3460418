package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcrlens/lensctl/pkg/events"
	"github.com/mcrlens/lensctl/pkg/status"
	"github.com/mcrlens/lensctl/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewHistoryCommand() *cobra.Command {
	var (
		since    time.Duration
		clearAll bool
	)

	cmd := &cobra.Command{
		Use:     "history",
		Short:   "Show recent status transitions",
		GroupID: gAdvanced,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if clearAll {
				ret, err := apiClient.ClearHistory()
				if err != nil {
					return fmt.Errorf("failed to clear status history: %w", err)
				}
				logResponse(ret)
				return nil
			}

			records, err := apiClient.GetHistory(since)
			if err != nil {
				return fmt.Errorf("failed to get status history: %w", err)
			}
			if len(records) == 0 {
				cmd.Println("no transitions recorded yet")
				return nil
			}
			for _, r := range records {
				cmd.Printf("%s  %s -> %s\n", r.At.Local().Format(time.DateTime), r.From.Label(), statusText(r.To))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&since, "since", 0, "Only show transitions within this window, e.g. 10m.")
	cmd.Flags().BoolVar(&clearAll, "clear", false, "Drop all recorded transitions.")

	return cmd
}

func NewEventsCommand() *cobra.Command {
	var names []string

	cmd := &cobra.Command{
		Use:     "events",
		Short:   "Follow session events",
		GroupID: gAdvanced,
		Long: `Follow session events until interrupted.

Event names: status.changed, axis.position, absolute.eligibility, position.check.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ch, err := apiClient.SubscribeEvents(cmd.Context(), names...)
			if err != nil {
				return fmt.Errorf("failed to subscribe to events: %w", err)
			}
			for ev := range ch {
				cmd.Println(formatEvent(ev))
			}
			return nil
		},
	}

	cmd.Flags().StringSliceVarP(&names, "event", "e", nil, "only follow these events")

	return cmd
}

func formatEvent(ev events.Event) string {
	switch ev.Name {
	case events.StatusChanged:
		if e, err := events.DecodeAs[events.StatusChangedEvent](ev); err == nil {
			return fmt.Sprintf("%s %s -> %s", bold("status"), status.Status(e.From).Label(), statusText(status.Status(e.To)))
		}
	case events.AxisPositionChanged:
		if e, err := events.DecodeAs[events.AxisPositionEvent](ev); err == nil {
			return fmt.Sprintf("%s %s at step %d", bold("axis"), e.Axis, e.Step)
		}
	case events.AbsoluteEligibilityChanged:
		if e, err := events.DecodeAs[events.AbsoluteEligibilityEvent](ev); err == nil {
			return fmt.Sprintf("%s absolute moves %s", bold("policy"), bool2Text(e.Enabled))
		}
	case events.PositionCheckFailed:
		if e, err := events.DecodeAs[events.PositionCheckEvent](ev); err == nil {
			return fmt.Sprintf("%s %s", bold("watch"), e.Message)
		}
	}
	return fmt.Sprintf("%s %s", ev.Name, string(ev.Data))
}
