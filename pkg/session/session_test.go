package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcrlens/lensctl/pkg/lens"
	"github.com/mcrlens/lensctl/pkg/status"
)

const testPort = "/dev/ttyACM0"

var f1 = lens.Configuration{
	Family:       "F1",
	ZoomSteps:    3227,
	ZoomHomeRef:  3119,
	FocusSteps:   8390,
	FocusHomeRef: 7959,
	IrisSteps:    75,
}

var f2 = lens.Configuration{
	Family:       "F2",
	ZoomSteps:    2994,
	ZoomHomeRef:  2958,
	FocusSteps:   5180,
	FocusHomeRef: 5128,
	IrisSteps:    75,
}

type harness struct {
	c         *Coordinator
	connector *fakeConnector
	store     *memStore
	rec       *recorder
}

func newHarness(t *testing.T, mutate ...func(*Options)) *harness {
	t.Helper()
	catalog, err := lens.NewCatalog(f1, f2)
	require.NoError(t, err)

	h := &harness{
		connector: &fakeConnector{},
		store:     newMemStore(),
		rec:       &recorder{},
	}
	opts := Options{
		Connector:           h.connector,
		Catalog:             catalog,
		Store:               h.store,
		Port:                testPort,
		Family:              "F1",
		RespectLimits:       true,
		CorrectBacklash:     true,
		RelativeWhenUnknown: true,
	}
	for _, m := range mutate {
		m(&opts)
	}
	h.c = New(opts)
	h.c.Subscribe(h.rec)
	t.Cleanup(func() { _ = h.c.Teardown() })
	return h
}

func (h *harness) initialize(t *testing.T, home bool) *fakeBoard {
	t.Helper()
	_, err := h.c.Initialize(context.Background(), InitRequest{HomeMotors: home})
	require.NoError(t, err)
	b := h.connector.last()
	b.Reset()
	return b
}

func TestInitializeHomed(t *testing.T) {
	h := newHarness(t)
	assert.Equal(t, status.NotInitialized, h.c.Status())

	handle, err := h.c.Initialize(context.Background(), InitRequest{HomeMotors: true})
	require.NoError(t, err)
	require.NotNil(t, handle)

	assert.Equal(t, []status.Status{status.Initializing, status.Ready}, h.rec.statuses())
	assert.Equal(t, status.Ready, handle.Status)
	assert.True(t, handle.Policy.AbsoluteMovesEnabled)
	assert.Equal(t, f1, handle.Config)

	assert.Equal(t, AxisState{Step: 7959, Homed: true}, handle.Axes[lens.Focus])
	assert.Equal(t, AxisState{Step: 3119, Homed: true}, handle.Axes[lens.Zoom])
	assert.Equal(t, AxisState{Step: 0, Homed: true}, handle.Axes[lens.Iris])
	assert.Equal(t, "MCR600-0042", handle.Board.SerialNumber)

	assert.Equal(t, []string{
		"firmware",
		"serial",
		"focus limits true",
		"focus init 8390 7959 true",
		"zoom limits true",
		"zoom init 3227 3119 true",
		"iris init 75 0 true",
		"filter 1",
	}, h.connector.last().Calls())

	enabled, ok := h.rec.lastEligibility()
	assert.True(t, ok)
	assert.True(t, enabled)

	assert.Equal(t, testPort, h.store.port)
	assert.Equal(t, "F1", h.store.family)

	snap := h.c.Snapshot()
	assert.Equal(t, DefaultFilterPosition, snap.Filter)
	assert.True(t, snap.Connected)
	assert.Equal(t, "Ready", snap.Label)
	assert.Equal(t, "green", snap.Color)
}

func TestInitializeWithoutHoming(t *testing.T) {
	h := newHarness(t)

	handle, err := h.c.Initialize(context.Background(), InitRequest{HomeMotors: false})
	require.NoError(t, err)

	assert.Equal(t, status.Ready, handle.Status)
	assert.False(t, handle.Policy.AbsoluteMovesEnabled)
	assert.False(t, handle.Axes[lens.Zoom].Homed)
	assert.Contains(t, h.connector.last().Calls(), "zoom init 3227 3119 false")
}

func TestInitializeReusesConnection(t *testing.T) {
	h := newHarness(t)
	h.initialize(t, true)
	h.initialize(t, true)

	assert.Equal(t, 1, h.connector.connections())
}

func TestInitializeAxisFault(t *testing.T) {
	tests := []struct {
		name    string
		faulted lens.Axis
	}{
		{"iris only", lens.Iris},
		{"zoom continues to iris", lens.Zoom},
		{"focus continues to zoom", lens.Focus},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			b := newFakeBoard()
			b.axes[tt.faulted].initErr = errHoming
			h.connector.next = b

			handle, err := h.c.Initialize(context.Background(), InitRequest{HomeMotors: true})
			require.Error(t, err)
			require.NotNil(t, handle)

			assert.ErrorIs(t, err, ErrAxisInitFault)
			var faultErr *AxisFaultError
			require.ErrorAs(t, err, &faultErr)
			assert.Equal(t, []lens.Axis{tt.faulted}, faultErr.Axes())

			assert.Equal(t, status.Ready, h.c.Status())
			assert.False(t, handle.Policy.AbsoluteMovesEnabled)
			assert.False(t, handle.Axes[tt.faulted].Homed)

			calls := b.Calls()
			assert.Contains(t, calls, "iris init 75 0 true")
			assert.Contains(t, calls, "filter 1")

			snap := h.c.Snapshot()
			require.Len(t, snap.Faults, 1)
			assert.Equal(t, tt.faulted, snap.Faults[0].Axis)
		})
	}
}

func TestInitializeUnknownFamily(t *testing.T) {
	h := newHarness(t)

	_, err := h.c.Initialize(context.Background(), InitRequest{Family: "TL9999P", HomeMotors: true})
	assert.ErrorIs(t, err, ErrConfigurationNotFound)
	assert.Equal(t, status.NotInitialized, h.c.Status())
	assert.Equal(t, 0, h.connector.connections())
	assert.Empty(t, h.rec.statuses())
}

func TestInitializeBlankPort(t *testing.T) {
	h := newHarness(t, func(o *Options) { o.Port = "" })

	_, err := h.c.Initialize(context.Background(), InitRequest{HomeMotors: true})
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.Equal(t, status.Error, h.c.Status())
	assert.Equal(t, 0, h.connector.connections())
}

func TestInitializeConnectFails(t *testing.T) {
	h := newHarness(t)
	h.connector.err = errors.New("no such device")

	_, err := h.c.Initialize(context.Background(), InitRequest{HomeMotors: true})
	assert.ErrorIs(t, err, ErrConnectionFailed)
	assert.Equal(t, []status.Status{status.Initializing, status.Error}, h.rec.statuses())
	assert.False(t, h.c.Snapshot().Connected)

	// Error is recoverable by initializing again.
	h.connector.err = nil
	_, err = h.c.Initialize(context.Background(), InitRequest{HomeMotors: true})
	require.NoError(t, err)
	assert.Equal(t, status.Ready, h.c.Status())
}

func TestInitializeFilterFailure(t *testing.T) {
	h := newHarness(t)
	b := newFakeBoard()
	b.filterErr = errors.New("filter timeout")
	h.connector.next = b

	handle, err := h.c.Initialize(context.Background(), InitRequest{HomeMotors: true})
	assert.Error(t, err)
	assert.Nil(t, handle)
	assert.Equal(t, status.Error, h.c.Status())
	assert.True(t, b.isClosed())
	assert.False(t, h.c.Snapshot().Policy.AbsoluteMovesEnabled)
}

func TestInitializeCancelled(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.c.Initialize(ctx, InitRequest{HomeMotors: true})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, status.Error, h.c.Status())
}

func TestInitializeAppliesPersistedSpeeds(t *testing.T) {
	h := newHarness(t)
	h.store.speeds[lens.Focus] = 800
	h.store.speeds[lens.Zoom] = 9000
	h.store.homingSpeeds[lens.Iris] = 50

	_, err := h.c.Initialize(context.Background(), InitRequest{HomeMotors: true})
	require.NoError(t, err)

	b := h.connector.last()
	assert.Equal(t, 800, b.axes[lens.Focus].Speed())
	// Out of range: the previous speed stays.
	assert.Equal(t, 100, b.axes[lens.Zoom].Speed())
	assert.Equal(t, 50, b.axes[lens.Iris].HomingSpeed())
	assert.Equal(t, status.Ready, h.c.Status())
}

func TestInitializeReadbackOutOfBounds(t *testing.T) {
	h := newHarness(t)
	b := newFakeBoard()
	b.axes[lens.Zoom].setStep(5000)
	h.connector.next = b

	handle, err := h.c.Initialize(context.Background(), InitRequest{HomeMotors: false})
	require.NoError(t, err)
	assert.Equal(t, status.PositionUnknown, handle.Status)
	assert.False(t, handle.Policy.AbsoluteMovesEnabled)
}

func TestInitializeOverridesRespectLimits(t *testing.T) {
	h := newHarness(t)
	off := false

	handle, err := h.c.Initialize(context.Background(), InitRequest{HomeMotors: true, RespectLimits: &off})
	require.NoError(t, err)
	assert.False(t, handle.Policy.RespectLimits)
	assert.False(t, handle.Policy.AbsoluteMovesEnabled)
	assert.Contains(t, h.connector.last().Calls(), "focus limits false")

	require.NoError(t, h.c.SetRespectLimits(true))
	assert.True(t, h.c.Snapshot().Policy.AbsoluteMovesEnabled)
}

func TestInitializeWithNewPortReconnects(t *testing.T) {
	h := newHarness(t)
	first := h.initialize(t, true)

	_, err := h.c.Initialize(context.Background(), InitRequest{Port: "/dev/ttyACM1", HomeMotors: true})
	require.NoError(t, err)

	assert.True(t, first.isClosed())
	assert.Equal(t, 2, h.connector.connections())
	assert.Equal(t, "/dev/ttyACM1", h.c.Snapshot().Port)
}
