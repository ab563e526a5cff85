package app

import (
	"context"
	"errors"
	"time"

	"telebridge/internal/convo"
	"telebridge/internal/domain"
)

const errorPause = 1500 * time.Millisecond

// Run drives the control loop until the context is cancelled. Everything is
// cooperative on this one goroutine: flush due buffers, long-poll with a
// timeout chosen by the scheduler, handle the batch, flush again.
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("bot started, waiting for messages",
		"buffer_window", a.window,
		"poll_timeout", a.pollTimeout,
	)

	if err := a.messenger.ResetWebhook(); err != nil {
		a.logger.Warn("cannot remove webhook", "error", err)
	} else {
		a.logger.Info("webhook removed, long polling enabled")
	}

	offset := 0
	for {
		select {
		case <-ctx.Done():
			a.logger.Info("shutting down")
			return nil
		default:
		}
		offset = a.cycle(ctx, offset)
	}
}

// cycle runs one iteration and returns the next update offset. A panic in
// handler code is logged and absorbed so one malformed update cannot take
// the bot down.
func (a *App) cycle(ctx context.Context, offset int) (next int) {
	next = offset
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("panic in control loop", "panic", r)
			a.recorder.RecordError("main_loop_panic")
			a.sleep(errorPause)
		}
	}()

	a.flushDue(ctx)

	timeout := convo.SelectPollTimeout(a.store.AnyAwaiting(), a.pollTimeout, a.window)
	events, newOffset, err := a.messenger.Poll(ctx, offset, timeout)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			a.logger.Warn("another poller holds this token, resetting webhook")
			if werr := a.messenger.ResetWebhook(); werr != nil {
				a.logger.Warn("webhook reset failed", "error", werr)
			}
			a.sleep(time.Second)
			return offset
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return offset
		}
		a.logger.Error("poll failed", "error", err)
		a.recorder.RecordError("poll")
		a.sleep(errorPause)
		a.flushDue(ctx)
		return offset
	}
	next = newOffset

	for _, event := range events {
		a.handleInbound(ctx, event)
	}
	a.flushDue(ctx)
	return next
}
