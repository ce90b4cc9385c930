package framework

import (
	"context"
	"fmt"
	"time"

	"github.com/benthamhq/bentham/pkg/client"
)

// Waiter polls conditions with a timeout
type Waiter struct {
	timeout  time.Duration
	interval time.Duration
}

// NewWaiter creates a waiter with the given timeout and polling
// interval
func NewWaiter(timeout, interval time.Duration) *Waiter {
	return &Waiter{
		timeout:  timeout,
		interval: interval,
	}
}

// DefaultWaiter returns a waiter tuned for in-process stacks (10s
// timeout, 20ms interval)
func DefaultWaiter() *Waiter {
	return NewWaiter(10*time.Second, 20*time.Millisecond)
}

// WaitFor waits for a condition to become true
func (w *Waiter) WaitFor(ctx context.Context, condition func() bool, description string) error {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	if condition() {
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("timeout waiting for: %s (timeout: %v)", description, w.timeout)
		case <-ticker.C:
			if condition() {
				return nil
			}
		}
	}
}

// WaitForStudyStatus waits until the study reports the given external
// status
func (w *Waiter) WaitForStudyStatus(ctx context.Context, c *client.Client, studyID, status string) error {
	return w.WaitFor(ctx, func() bool {
		view, err := c.GetStudy(ctx, studyID)
		return err == nil && view.Status == status
	}, fmt.Sprintf("study %s to reach %s", studyID, status))
}

// WaitForStudyTerminal waits until the study reaches any terminal
// status and returns it
func (w *Waiter) WaitForStudyTerminal(ctx context.Context, c *client.Client, studyID string) (string, error) {
	var last string
	err := w.WaitFor(ctx, func() bool {
		view, err := c.GetStudy(ctx, studyID)
		if err != nil {
			return false
		}
		last = view.Status
		return last == "completed" || last == "failed" || last == "cancelled"
	}, fmt.Sprintf("study %s to finish", studyID))
	return last, err
}
