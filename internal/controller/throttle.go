package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-irfan/internal/fan"
)

// FrameSender sends one frame. Transports implementing it get their
// multi-frame commands paced frame by frame.
type FrameSender interface {
	SendFrame(ctx context.Context, frame string) error
}

// Throttle serializes sends on one channel and keeps at least delay
// between consecutive frames, including across commands.
//
// Thread Safety:
//   - Send is safe for concurrent use; callers are served one at a time.
type Throttle struct {
	next  fan.Transport
	delay time.Duration

	mu       sync.Mutex
	lastSent time.Time

	// now and after are replaced in tests.
	now   func() time.Time
	after func(d time.Duration) <-chan time.Time
}

// NewThrottle wraps next. A non-positive delay disables pacing but keeps
// serialization.
func NewThrottle(next fan.Transport, delay time.Duration) *Throttle {
	if delay < 0 {
		delay = 0
	}
	return &Throttle{
		next:  next,
		delay: delay,
		now:   time.Now,
		after: time.After,
	}
}

// Delay returns the configured minimum gap.
func (t *Throttle) Delay() time.Duration { return t.delay }

// Send transmits cmd. Errors from the underlying transport are wrapped in
// fan.ErrTransportFailure.
func (t *Throttle) Send(ctx context.Context, cmd fan.Command) error {
	if len(cmd) == 0 {
		return fmt.Errorf("%w: empty command", fan.ErrTransportFailure)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	fs, perFrame := t.next.(FrameSender)
	if !perFrame {
		if err := t.waitLocked(ctx); err != nil {
			return err
		}
		err := t.next.Send(ctx, cmd)
		t.lastSent = t.now()
		return wrapTransport(err)
	}

	for _, frame := range cmd {
		if err := t.waitLocked(ctx); err != nil {
			return err
		}
		err := fs.SendFrame(ctx, frame)
		t.lastSent = t.now()
		if err != nil {
			return wrapTransport(err)
		}
	}
	return nil
}

func (t *Throttle) waitLocked(ctx context.Context) error {
	if t.delay == 0 || t.lastSent.IsZero() {
		return ctx.Err()
	}
	wait := t.delay - t.now().Sub(t.lastSent)
	if wait <= 0 {
		return ctx.Err()
	}

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", fan.ErrTransportFailure, ctx.Err())
	case <-t.after(wait):
		return nil
	}
}

func wrapTransport(err error) error {
	if err == nil || errors.Is(err, fan.ErrTransportFailure) {
		return err
	}
	return fmt.Errorf("%w: %w", fan.ErrTransportFailure, err)
}
