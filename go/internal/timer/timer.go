package timer

import (
	"time"
)

// Snapshot is a server-provided timer record at one instant. It carries
// enough fields to re-derive remaining time, so re-applying the same
// snapshot is naturally idempotent.
type Snapshot struct {
	ID               string     `json:"_id"`
	Name             string     `json:"name"`
	Description      string     `json:"description"`
	Creator          string     `json:"creator"`
	Duration         int        `json:"duration"` // configured baseline in seconds, never decremented by the server
	IsRunning        bool       `json:"isRunning"`
	IsPublic         bool       `json:"isPublic"`
	Theme            string     `json:"theme"`
	ShowMilliseconds bool       `json:"showMilliseconds"`
	StartTime        *time.Time `json:"startTime"` // nil when never started or fully reset
	PausedAt         int        `json:"pausedAt"`  // seconds banked across pause/resume cycles
	ShareID          string     `json:"shareId"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// Timer is the canonical in-memory entity. Exactly one exists per ID in
// the store; updates copy fields onto the existing object so consumers
// holding a reference observe changes without identity churn.
type Timer struct {
	ID               string     `json:"_id"`
	Name             string     `json:"name"`
	Description      string     `json:"description"`
	Creator          string     `json:"creator"`
	OriginalDuration int        `json:"originalDuration"` // fixed baseline, only a new snapshot may change it
	Remaining        int        `json:"remaining"`        // derived, what gets displayed
	IsRunning        bool       `json:"isRunning"`
	IsPublic         bool       `json:"isPublic"`
	Theme            string     `json:"theme"`
	ShowMilliseconds bool       `json:"showMilliseconds"`
	StartTime        *time.Time `json:"startTime"`
	PausedAt         int        `json:"pausedAt"`
	ShareID          string     `json:"shareId"`
	CreatedAt        time.Time  `json:"createdAt"`
}

// Projection is the result of projecting a snapshot to a wall-clock instant.
type Projection struct {
	Remaining        int
	OriginalDuration int
}

// Project converts a snapshot into the remaining seconds as of now.
// It is pure and deterministic: inject the clock instant to test it.
//
// A running snapshot with a nil start time is projected as if no time
// has elapsed in the current segment. The server should never emit that
// combination, but the projector must not blow up on it.
func Project(snap Snapshot, now time.Time) Projection {
	consumed := snap.PausedAt
	if snap.IsRunning && snap.StartTime != nil {
		elapsed := int(now.Sub(*snap.StartTime) / time.Second)
		if elapsed < 0 {
			elapsed = 0
		}
		consumed += elapsed
	}

	remaining := snap.Duration - consumed
	if remaining < 0 {
		remaining = 0
	}

	return Projection{
		Remaining:        remaining,
		OriginalDuration: snap.Duration,
	}
}

// FromSnapshot builds a new canonical Timer from a snapshot projected to now.
func FromSnapshot(snap Snapshot, now time.Time) *Timer {
	t := &Timer{ID: snap.ID}
	t.ApplySnapshot(snap, now)
	return t
}

// ApplySnapshot copies a snapshot's fields onto t in place, re-projecting
// the remaining time. The baseline is taken from the snapshot itself, so a
// previously derived remaining value can never leak back into it.
func (t *Timer) ApplySnapshot(snap Snapshot, now time.Time) {
	proj := Project(snap, now)

	t.Name = snap.Name
	t.Description = snap.Description
	t.Creator = snap.Creator
	t.OriginalDuration = proj.OriginalDuration
	t.Remaining = proj.Remaining
	t.IsRunning = snap.IsRunning
	t.IsPublic = snap.IsPublic
	t.Theme = snap.Theme
	t.ShowMilliseconds = snap.ShowMilliseconds
	t.StartTime = snap.StartTime
	t.PausedAt = snap.PausedAt
	t.ShareID = snap.ShareID
	t.CreatedAt = snap.CreatedAt
}
