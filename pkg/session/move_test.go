package session

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcrlens/lensctl/pkg/lens"
	"github.com/mcrlens/lensctl/pkg/status"
)

func TestMoveBeforeInitialize(t *testing.T) {
	h := newHarness(t)

	_, err := h.c.Move(context.Background(), MoveRequest{Axis: lens.Zoom, Kind: Absolute, Amount: 500})
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.NotErrorIs(t, err, ErrAbsoluteMovesDisabled)
	assert.Equal(t, 0, h.connector.connections())
	assert.Equal(t, status.NotInitialized, h.c.Status())
}

func TestMoveDirectionSigns(t *testing.T) {
	tests := []struct {
		direction Direction
		want      string
		wantStep  int
	}{
		{Tele, "zoom rel -25 true", 15},
		{Wide, "zoom rel 25 true", 65},
		{Near, "focus rel -25 true", 15},
		{Far, "focus rel 25 true", 65},
		{Open, "iris rel -25 false", 15},
		{Close, "iris rel 25 false", 65},
	}
	for _, tt := range tests {
		t.Run(string(tt.direction), func(t *testing.T) {
			h := newHarness(t)
			b := h.initialize(t, true)
			// Start inside every axis's bounds so both directions stay in range.
			b.axes[tt.direction.Axis()].setStep(40)

			req := MoveRequest{Axis: tt.direction.Axis(), Kind: Relative, Direction: tt.direction, Amount: 25}
			step, err := h.c.Move(context.Background(), req)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStep, step)
			assert.Equal(t, []string{tt.want}, b.Calls())
			assert.Equal(t, status.Ready, h.c.Status())
		})
	}
}

func TestMoveBacklashDisabled(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.CorrectBacklash = false })
	b := h.initialize(t, true)

	_, err := h.c.Move(context.Background(), MoveRequest{Axis: lens.Focus, Kind: Relative, Amount: -10})
	require.NoError(t, err)
	assert.Equal(t, []string{"focus rel -10 false"}, b.Calls())
}

func TestMoveUsesDriverStep(t *testing.T) {
	h := newHarness(t)
	b := h.initialize(t, true)
	clamped := 3227
	b.axes[lens.Zoom].result = &clamped

	step, err := h.c.Move(context.Background(), MoveRequest{Axis: lens.Zoom, Kind: Relative, Direction: Wide, Amount: 1000})
	require.NoError(t, err)
	assert.Equal(t, 3227, step)
	assert.Equal(t, 3227, h.c.Snapshot().Axes[lens.Zoom].Step)
	assert.Equal(t, status.Ready, h.c.Status())
}

func TestMoveStatusSequence(t *testing.T) {
	h := newHarness(t)
	h.initialize(t, true)

	_, err := h.c.Move(context.Background(), MoveRequest{Axis: lens.Focus, Kind: Absolute, Amount: 4000})
	require.NoError(t, err)
	assert.Equal(t, []status.Status{
		status.Initializing, status.Ready,
		status.Moving, status.Ready,
	}, h.rec.statuses())
	assert.Contains(t, h.rec.positions, "focus=4000")
}

func TestMoveAbsoluteRequiresHoming(t *testing.T) {
	h := newHarness(t)
	b := h.initialize(t, false)

	_, err := h.c.Move(context.Background(), MoveRequest{Axis: lens.Zoom, Kind: Absolute, Amount: 500})
	assert.ErrorIs(t, err, ErrAbsoluteMovesDisabled)
	assert.Empty(t, b.Calls())
	assert.Equal(t, status.Ready, h.c.Status())

	_, err = h.c.Move(context.Background(), MoveRequest{Axis: lens.Zoom, Kind: Relative, Amount: 5})
	assert.NoError(t, err)
}

func TestMoveOutOfBounds(t *testing.T) {
	h := newHarness(t)
	b := h.initialize(t, true)
	overshoot := 3300
	b.axes[lens.Zoom].result = &overshoot

	step, err := h.c.Move(context.Background(), MoveRequest{Axis: lens.Zoom, Kind: Relative, Amount: 181})
	assert.ErrorIs(t, err, ErrPositionDrift)
	assert.Equal(t, 3300, step)
	assert.Equal(t, status.PositionUnknown, h.c.Status())
	assert.False(t, h.c.Snapshot().Policy.AbsoluteMovesEnabled)

	// Relative moves stay available and never restore trust.
	b.axes[lens.Zoom].result = nil
	step, err = h.c.Move(context.Background(), MoveRequest{Axis: lens.Zoom, Kind: Relative, Direction: Tele, Amount: 200})
	require.NoError(t, err)
	assert.Equal(t, 3100, step)
	assert.Equal(t, status.PositionUnknown, h.c.Status())

	_, err = h.c.Move(context.Background(), MoveRequest{Axis: lens.Zoom, Kind: Absolute, Amount: 100})
	assert.ErrorIs(t, err, ErrInvalidState)

	// Re-initializing recovers.
	_, err = h.c.Initialize(context.Background(), InitRequest{HomeMotors: true})
	require.NoError(t, err)
	assert.Equal(t, status.Ready, h.c.Status())
}

func TestMoveNegativeStepIsOutOfBounds(t *testing.T) {
	h := newHarness(t)
	h.initialize(t, true)

	_, err := h.c.Move(context.Background(), MoveRequest{Axis: lens.Iris, Kind: Relative, Direction: Open, Amount: 10})
	assert.ErrorIs(t, err, ErrPositionDrift)
	assert.Equal(t, status.PositionUnknown, h.c.Status())
}

func TestMoveFromPositionUnknownDisallowed(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.RelativeWhenUnknown = false })
	b := h.initialize(t, true)
	b.axes[lens.Focus].setStep(9000)
	require.ErrorIs(t, h.c.CheckPosition(context.Background()), ErrPositionDrift)

	_, err := h.c.Move(context.Background(), MoveRequest{Axis: lens.Focus, Kind: Relative, Amount: -1000})
	assert.ErrorIs(t, err, ErrInvalidState)
	assert.Empty(t, b.Calls())
}

func TestMoveDriverError(t *testing.T) {
	h := newHarness(t)
	b := h.initialize(t, true)
	b.axes[lens.Focus].moveErr = errors.New("serial write timeout")

	_, err := h.c.Move(context.Background(), MoveRequest{Axis: lens.Focus, Kind: Relative, Amount: 10})
	assert.Error(t, err)
	assert.Equal(t, status.Error, h.c.Status())
	assert.True(t, b.isClosed())

	_, err = h.c.Move(context.Background(), MoveRequest{Axis: lens.Focus, Kind: Relative, Amount: 10})
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestMoveValidation(t *testing.T) {
	tests := []MoveRequest{
		{Axis: "shutter", Kind: Relative, Amount: 1},
		{Axis: lens.Zoom, Kind: "diagonal", Amount: 1},
		{Axis: lens.Zoom, Kind: Relative, Direction: Near, Amount: 1},
		{Axis: lens.Zoom, Kind: Relative, Direction: Tele, Amount: -1},
		{Axis: lens.Zoom, Kind: Absolute, Direction: Tele, Amount: 1},
		{Axis: lens.Zoom, Kind: Relative, Direction: "sideways", Amount: 1},
	}
	for i, req := range tests {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			h := newHarness(t)
			b := h.initialize(t, true)

			_, err := h.c.Move(context.Background(), req)
			assert.ErrorIs(t, err, ErrInvalidRequest)
			assert.Empty(t, b.Calls())
		})
	}
}

func TestParseDirection(t *testing.T) {
	d, err := ParseDirection("Tele")
	require.NoError(t, err)
	assert.Equal(t, Tele, d)
	assert.Equal(t, lens.Zoom, d.Axis())
	assert.Equal(t, -1, d.Sign())

	_, err = ParseDirection("up")
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

// startBlockedMove begins a move that stays inside the driver until the
// returned release func is called.
func startBlockedMove(t *testing.T, h *harness, b *fakeBoard) (release func(), result <-chan error) {
	t.Helper()
	axis := b.axes[lens.Zoom]
	gate := make(chan struct{})
	entered := make(chan struct{})
	axis.mu.Lock()
	axis.gate, axis.entered = gate, entered
	axis.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := h.c.Move(context.Background(), MoveRequest{Axis: lens.Zoom, Kind: Relative, Direction: Tele, Amount: 10})
		done <- err
	}()
	<-entered
	require.Equal(t, status.Moving, h.c.Status())
	return func() { close(gate) }, done
}

func TestSingleMoveInFlight(t *testing.T) {
	h := newHarness(t)
	b := h.initialize(t, true)
	release, done := startBlockedMove(t, h, b)

	_, err := h.c.Move(context.Background(), MoveRequest{Axis: lens.Focus, Kind: Relative, Amount: 1})
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = h.c.Initialize(context.Background(), InitRequest{HomeMotors: true})
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, err, ErrInvalidState)

	release()
	require.NoError(t, <-done)
	assert.Equal(t, status.Ready, h.c.Status())
}

func TestFamilyChangeWhileMoving(t *testing.T) {
	h := newHarness(t)
	b := h.initialize(t, true)
	release, done := startBlockedMove(t, h, b)

	require.NoError(t, h.c.ChangeFamily("F2"))
	assert.Equal(t, status.NotInitialized, h.c.Status())
	assert.False(t, h.c.Snapshot().Policy.AbsoluteMovesEnabled)

	release()
	assert.ErrorIs(t, <-done, ErrSessionInvalidated)

	snap := h.c.Snapshot()
	assert.Equal(t, status.NotInitialized, snap.Status)
	assert.Equal(t, "F2", snap.Family)
	assert.Equal(t, AxisState{}, snap.Axes[lens.Zoom])
	// Family changes keep the connection.
	assert.True(t, snap.Connected)
	assert.False(t, b.isClosed())
}

func TestPortChangeWhileMoving(t *testing.T) {
	h := newHarness(t)
	b := h.initialize(t, true)
	release, done := startBlockedMove(t, h, b)

	require.NoError(t, h.c.ChangePort("/dev/ttyACM1"))
	assert.Equal(t, status.NotInitialized, h.c.Status())
	assert.False(t, h.c.Snapshot().Connected)
	// The board is still in use by the move.
	assert.False(t, b.isClosed())

	release()
	assert.ErrorIs(t, <-done, ErrSessionInvalidated)
	assert.True(t, b.isClosed())
	assert.Equal(t, status.NotInitialized, h.c.Status())
}
