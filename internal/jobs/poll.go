package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// PollUntil calls fn every interval until it reports done, fails, or
// timeout passes. Running out of time is a ClassTimeout error.
func PollUntil(ctx context.Context, interval, timeout time.Duration, fn func(ctx context.Context) (bool, error)) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		done, err := fn(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return &Error{Class: ClassTimeout, Err: fmt.Errorf("gave up after %s", timeout)}
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// WaitForJob polls the store until the job reaches a terminal status.
func WaitForJob(ctx context.Context, store Store, id string, interval, timeout time.Duration) (*Job, error) {
	var job *Job
	err := PollUntil(ctx, interval, timeout, func(ctx context.Context) (bool, error) {
		j, err := store.GetJob(ctx, id)
		if err != nil {
			return false, err
		}
		job = j
		return j.Status.Terminal(), nil
	})
	return job, err
}
