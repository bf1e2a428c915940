package timerapi

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tickshare/tickshare/go/internal/timer"
)

const maxNameLength = 50
const maxDescriptionLength = 200

// CreateTimerRequest is the payload for creating or updating a timer.
type CreateTimerRequest struct {
	Name             string `json:"name"`
	Description      string `json:"description"`
	Duration         int    `json:"duration"` // seconds
	IsPublic         bool   `json:"isPublic"`
	ShowMilliseconds bool   `json:"showMilliseconds"`
	Theme            string `json:"theme"`
}

// Validate checks the request against the server's constraints so obviously
// bad input never reaches the network.
func (r CreateTimerRequest) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(r.Name) > maxNameLength {
		return fmt.Errorf("name exceeds %d characters", maxNameLength)
	}
	if len(r.Description) > maxDescriptionLength {
		return fmt.Errorf("description exceeds %d characters", maxDescriptionLength)
	}
	if r.Duration <= 0 {
		return fmt.Errorf("duration must be greater than zero")
	}
	return nil
}

// DurationFromParts folds a days/hours/minutes/seconds split into total
// seconds, the shape the server stores.
func DurationFromParts(days, hours, minutes, seconds int) int {
	return days*24*60*60 + hours*60*60 + minutes*60 + seconds
}

// ListTimers fetches every timer owned by the authenticated user.
func (c *Client) ListTimers(ctx context.Context) ([]timer.Snapshot, error) {
	var out []timer.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/timer/list", nil, &out, true); err != nil {
		return nil, fmt.Errorf("list timers: %w", err)
	}
	return out, nil
}

// GetTimer fetches a single timer by id.
func (c *Client) GetTimer(ctx context.Context, id string) (timer.Snapshot, error) {
	var out timer.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/timer/"+id, nil, &out, true); err != nil {
		return timer.Snapshot{}, fmt.Errorf("get timer: %w", err)
	}
	return out, nil
}

// GetSharedTimer fetches a timer by its public share id. No auth required.
func (c *Client) GetSharedTimer(ctx context.Context, shareID string) (timer.Snapshot, error) {
	var out timer.Snapshot
	if err := c.do(ctx, http.MethodGet, "/api/timer/share/"+shareID, nil, &out, false); err != nil {
		return timer.Snapshot{}, fmt.Errorf("get shared timer: %w", err)
	}
	return out, nil
}

// CreateTimer creates a new timer and returns the server's snapshot of it.
func (c *Client) CreateTimer(ctx context.Context, req CreateTimerRequest) (timer.Snapshot, error) {
	if err := req.Validate(); err != nil {
		return timer.Snapshot{}, fmt.Errorf("create timer: %w", err)
	}
	var out timer.Snapshot
	if err := c.do(ctx, http.MethodPost, "/api/timer", req, &out, true); err != nil {
		return timer.Snapshot{}, fmt.Errorf("create timer: %w", err)
	}
	return out, nil
}

// UpdateTimer updates a timer's metadata.
func (c *Client) UpdateTimer(ctx context.Context, id string, req CreateTimerRequest) (timer.Snapshot, error) {
	var out timer.Snapshot
	if err := c.do(ctx, http.MethodPut, "/api/timer/"+id, req, &out, true); err != nil {
		return timer.Snapshot{}, fmt.Errorf("update timer: %w", err)
	}
	return out, nil
}

// DeleteTimer deletes a timer.
func (c *Client) DeleteTimer(ctx context.Context, id string) error {
	if err := c.do(ctx, http.MethodDelete, "/api/timer/"+id, nil, nil, true); err != nil {
		return fmt.Errorf("delete timer: %w", err)
	}
	return nil
}

// StartTimer starts a timer's countdown.
func (c *Client) StartTimer(ctx context.Context, id string) (timer.Snapshot, error) {
	var out timer.Snapshot
	if err := c.do(ctx, http.MethodPut, "/api/timer/start/"+id, nil, &out, true); err != nil {
		return timer.Snapshot{}, fmt.Errorf("start timer: %w", err)
	}
	return out, nil
}

// PauseTimer pauses a running timer.
func (c *Client) PauseTimer(ctx context.Context, id string) (timer.Snapshot, error) {
	var out timer.Snapshot
	if err := c.do(ctx, http.MethodPut, "/api/timer/pause/"+id, nil, &out, true); err != nil {
		return timer.Snapshot{}, fmt.Errorf("pause timer: %w", err)
	}
	return out, nil
}

// ResetTimer resets a timer to its configured duration.
func (c *Client) ResetTimer(ctx context.Context, id string) (timer.Snapshot, error) {
	var out timer.Snapshot
	if err := c.do(ctx, http.MethodPut, "/api/timer/reset/"+id, nil, &out, true); err != nil {
		return timer.Snapshot{}, fmt.Errorf("reset timer: %w", err)
	}
	return out, nil
}
