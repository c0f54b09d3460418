package daemon

import (
	"time"

	"github.com/mcrlens/lensctl/pkg/events"
	"github.com/mcrlens/lensctl/pkg/lens"
	"github.com/mcrlens/lensctl/pkg/status"
)

// hubObserver forwards session notifications to SSE subscribers and the
// transition history.
type hubObserver struct {
	hub     *events.EventHub
	history *History
}

func (o *hubObserver) OnStatusChanged(from, to status.Status) {
	o.history.AddNow(from, to)
	o.hub.Publish(events.StatusChanged, events.StatusChangedEvent{
		From:  string(from),
		To:    string(to),
		Label: to.Label(),
		Color: to.Color(),
		Ts:    time.Now().Unix(),
	})
}

func (o *hubObserver) OnAxisPositionChanged(axis lens.Axis, step int) {
	o.hub.Publish(events.AxisPositionChanged, events.AxisPositionEvent{
		Axis: string(axis),
		Step: step,
		Ts:   time.Now().Unix(),
	})
}

func (o *hubObserver) OnAbsoluteMovesEligibilityChanged(enabled bool) {
	o.hub.Publish(events.AbsoluteEligibilityChanged, events.AbsoluteEligibilityEvent{
		Enabled: enabled,
		Ts:      time.Now().Unix(),
	})
}
