package concierge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mion-onsen/concierge/backend/internal/playback"
)

// PollPolicy bounds how a video operation is awaited.
type PollPolicy struct {
	Interval time.Duration
	MaxPolls int
	// OnPoll is called after every status request. Optional.
	OnPoll func()
}

// DefaultPollPolicy polls every 10s for at most 10 minutes.
var DefaultPollPolicy = PollPolicy{Interval: 10 * time.Second, MaxPolls: 60}

var errEmptyVideo = errors.New("video operation finished without a result")

// AwaitVideo waits one interval of clock between status requests until op
// is done. It gives up with ErrVideoTimeout after MaxPolls unfinished polls.
// A nil clock means the system clock.
func AwaitVideo(ctx context.Context, clock playback.Clock, op VideoOperation, policy PollPolicy) (string, error) {
	if clock == nil {
		clock = playback.SystemClock{}
	}
	if policy.Interval <= 0 {
		policy.Interval = DefaultPollPolicy.Interval
	}
	if policy.MaxPolls <= 0 {
		policy.MaxPolls = DefaultPollPolicy.MaxPolls
	}

	for polls := 1; ; polls++ {
		if err := sleep(ctx, clock, policy.Interval); err != nil {
			return "", err
		}

		url, done, err := op.Poll(ctx)
		if policy.OnPoll != nil {
			policy.OnPoll()
		}
		if err != nil {
			return "", fmt.Errorf("poll video operation: %w", err)
		}
		if done {
			if url == "" {
				return "", errEmptyVideo
			}
			return url, nil
		}
		if polls >= policy.MaxPolls {
			return "", fmt.Errorf("%w after %d polls", ErrVideoTimeout, polls)
		}
	}
}

func sleep(ctx context.Context, clock playback.Clock, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fired := make(chan struct{})
	timer := clock.AfterFunc(d, func() { close(fired) })
	select {
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	case <-fired:
		return nil
	}
}

// videoErrorText maps a video failure to the message shown to the user.
func videoErrorText(err error) string {
	if errors.Is(err, ErrVideoUnconfigured) {
		return VideoConfigErrText
	}
	return VideoErrorText
}
