// Package types holds the payloads shared by the daemon and its clients.
package types

import (
	"time"

	"github.com/mcrlens/lensctl/pkg/lens"
	"github.com/mcrlens/lensctl/pkg/status"
)

// MoveResult is returned by POST /move.
type MoveResult struct {
	Axis   lens.Axis     `json:"axis"`
	Step   int           `json:"step"`
	Status status.Status `json:"status"`
	// Warning is set when the move succeeded but left the axis outside its
	// configured bounds.
	Warning string `json:"warning,omitempty"`
}

// Transition is one recorded status change.
type Transition struct {
	From status.Status `json:"from"`
	To   status.Status `json:"to"`
	At   time.Time     `json:"at"`
}

// WatchStatus describes the position watch.
type WatchStatus struct {
	Schedule string    `json:"schedule"`
	NextRun  time.Time `json:"nextRun,omitempty"`
	Running  bool      `json:"running"`
	Runs     int       `json:"runs"`
}
