package session

import (
	"errors"
	"fmt"
	"sync"

	"github.com/mcrlens/lensctl/pkg/lens"
	"github.com/mcrlens/lensctl/pkg/mcr"
	"github.com/mcrlens/lensctl/pkg/status"
)

// fakeBoard records every driver call in order.
type fakeBoard struct {
	mu     sync.Mutex
	calls  []string
	axes   map[lens.Axis]*fakeAxis
	closed bool

	filterErr error
	pathErr   error
}

func newFakeBoard() *fakeBoard {
	b := &fakeBoard{axes: make(map[lens.Axis]*fakeAxis)}
	for _, a := range lens.Axes() {
		b.axes[a] = &fakeAxis{board: b, name: a, speed: 100, homingSpeed: 100}
	}
	return b
}

func (b *fakeBoard) record(format string, args ...any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, fmt.Sprintf(format, args...))
}

func (b *fakeBoard) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.calls...)
}

func (b *fakeBoard) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = nil
}

func (b *fakeBoard) Axis(a lens.Axis) mcr.Axis { return b.axes[a] }
func (b *fakeBoard) Filter() mcr.Filter        { return fakeFilter{b} }

func (b *fakeBoard) FirmwareRevision() (string, error) {
	b.record("firmware")
	return "5.3.1.0.0", nil
}

func (b *fakeBoard) SerialNumber() (string, error) {
	b.record("serial")
	return "MCR600-0042", nil
}

func (b *fakeBoard) SetCommunicationPath(p mcr.CommPath) error {
	b.record("path %s", p)
	return b.pathErr
}

func (b *fakeBoard) Close() error {
	b.record("close")
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

func (b *fakeBoard) isClosed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

type fakeFilter struct{ b *fakeBoard }

func (f fakeFilter) SetState(position int) error {
	f.b.record("filter %d", position)
	return f.b.filterErr
}

type fakeAxis struct {
	board *fakeBoard
	name  lens.Axis

	mu          sync.Mutex
	step        int
	initErr     error
	moveErr     error
	speed       int
	homingSpeed int

	// result overrides the step reported after a move when set.
	result *int

	// gate blocks moves until closed.
	gate    chan struct{}
	entered chan struct{}
}

func (a *fakeAxis) Init(steps, homeRef int, move bool) error {
	a.board.record("%s init %d %d %t", a.name, steps, homeRef, move)
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.initErr != nil {
		return a.initErr
	}
	if move {
		a.step = homeRef
	}
	return nil
}

func (a *fakeAxis) wait() {
	a.mu.Lock()
	gate, entered := a.gate, a.entered
	a.entered = nil
	a.mu.Unlock()
	if entered != nil {
		close(entered)
	}
	if gate != nil {
		<-gate
	}
}

func (a *fakeAxis) MoveRel(delta int, correctForBacklash bool) error {
	a.board.record("%s rel %d %t", a.name, delta, correctForBacklash)
	a.wait()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.moveErr != nil {
		return a.moveErr
	}
	a.step += delta
	if a.result != nil {
		a.step = *a.result
	}
	return nil
}

func (a *fakeAxis) MoveAbs(pos int) error {
	a.board.record("%s abs %d", a.name, pos)
	a.wait()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.moveErr != nil {
		return a.moveErr
	}
	a.step = pos
	if a.result != nil {
		a.step = *a.result
	}
	return nil
}

func (a *fakeAxis) CurrentStep() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.step
}

func (a *fakeAxis) setStep(step int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.step = step
}

func (a *fakeAxis) SetRespectLimits(respect bool) {
	a.board.record("%s limits %t", a.name, respect)
}

func (a *fakeAxis) SetMotorSpeed(pps int) error {
	a.board.record("%s speed %d", a.name, pps)
	if pps > 1500 {
		return mcr.ErrSpeedOutOfRange
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.speed = pps
	return nil
}

func (a *fakeAxis) SetHomingSpeed(pps int) error {
	a.board.record("%s homing speed %d", a.name, pps)
	if pps > 1500 {
		return mcr.ErrSpeedOutOfRange
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.homingSpeed = pps
	return nil
}

func (a *fakeAxis) Speed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.speed
}

func (a *fakeAxis) HomingSpeed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.homingSpeed
}

// fakeConnector hands out boards and counts connections.
type fakeConnector struct {
	mu      sync.Mutex
	boards  []*fakeBoard
	next    *fakeBoard
	err     error
	connect int
}

func (c *fakeConnector) Connect(port string) (mcr.Board, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connect++
	if c.err != nil {
		return nil, c.err
	}
	b := c.next
	if b == nil {
		b = newFakeBoard()
	}
	c.next = nil
	c.boards = append(c.boards, b)
	return b, nil
}

func (c *fakeConnector) last() *fakeBoard {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.boards) == 0 {
		return nil
	}
	return c.boards[len(c.boards)-1]
}

func (c *fakeConnector) connections() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connect
}

// memStore is an in-memory Store.
type memStore struct {
	speeds              map[lens.Axis]int
	homingSpeeds        map[lens.Axis]int
	port                string
	family              string
	respectLimits       bool
	backlash            bool
	relativeWhenUnknown bool
	saves               int
	saveErr             error
}

func newMemStore() *memStore {
	return &memStore{speeds: map[lens.Axis]int{}, homingSpeeds: map[lens.Axis]int{}}
}

func (s *memStore) Speed(a lens.Axis) int               { return s.speeds[a] }
func (s *memStore) HomingSpeed(a lens.Axis) int         { return s.homingSpeeds[a] }
func (s *memStore) SetSpeed(a lens.Axis, pps int)       { s.speeds[a] = pps }
func (s *memStore) SetHomingSpeed(a lens.Axis, pps int) { s.homingSpeeds[a] = pps }
func (s *memStore) SetComPort(port string)              { s.port = port }
func (s *memStore) SetLensFamily(family string)         { s.family = family }
func (s *memStore) SetRespectLimits(respect bool)       { s.respectLimits = respect }
func (s *memStore) SetCorrectBacklash(correct bool)     { s.backlash = correct }
func (s *memStore) SetRelativeWhenUnknown(allow bool)   { s.relativeWhenUnknown = allow }
func (s *memStore) Save() error                         { s.saves++; return s.saveErr }

// recorder is an Observer that keeps every notification.
type recorder struct {
	mu          sync.Mutex
	transitions []status.Status
	positions   []string
	eligibility []bool
}

func (r *recorder) OnStatusChanged(_, to status.Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, to)
}

func (r *recorder) OnAxisPositionChanged(a lens.Axis, step int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.positions = append(r.positions, fmt.Sprintf("%s=%d", a, step))
}

func (r *recorder) OnAbsoluteMovesEligibilityChanged(enabled bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.eligibility = append(r.eligibility, enabled)
}

func (r *recorder) statuses() []status.Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]status.Status(nil), r.transitions...)
}

func (r *recorder) lastEligibility() (bool, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.eligibility) == 0 {
		return false, false
	}
	return r.eligibility[len(r.eligibility)-1], true
}

var errHoming = errors.New("photo interrupter not reached")
