package main

import (
	"context"
	"time"

	tickrunner "github.com/Swind/go-tick-runner"
	"github.com/Swind/go-tick-runner/core"
)

const (
	introQueue = "intro"
	blinkQueue = "blink"
	blinkCount = 5
)

// scheduleScene queues a short door sequence for one owner:
//
//	intro: unlock after 500ms, open over 1s, then lock the queue
//	blink: blink the lamp every 100ms until blinkCount blinks
//	bypass: a flash that runs at once and gates the last blink step
func scheduleScene(q *tickrunner.Queue, logger core.Logger) {
	q.Name(introQueue)
	q.Named("unlock").Delay(500 * time.Millisecond).Do(func(ctx context.Context) {
		logger.Info("door unlocked")
	})
	q.Named("open").Loop(time.Second, func(ctx context.Context, h *core.Handle) {
		logger.Debug("door opening", core.F("elapsed", h.Elapsed()), core.F("delta", h.DeltaTime()))
	})
	q.Named("opened").Do(func(ctx context.Context) {
		logger.Info("door open")
	})

	if q.Lock() {
		logger.Info("intro queue locked", core.F("owner", "door"))
	}
	if !q.Named("late").Do(func(ctx context.Context) {}).Accepted() {
		logger.Warn("append rejected while locked", core.F("queue", introQueue))
	}

	blinks := 0
	q.Name(blinkQueue).Named("blink").Forever(func(ctx context.Context, h *core.Handle) {
		blinks++
		logger.Debug("lamp blink", core.F("n", blinks))
		if blinks >= blinkCount {
			h.Deactivate()
			return
		}
		h.WaitFor(100 * time.Millisecond)
	})

	flash := q.Named("flash").Now(func(ctx context.Context) {
		logger.Info("camera flash")
	})
	if flash != nil {
		q.Name(blinkQueue).Named("after-flash").When(flash.Done).Do(func(ctx context.Context) {
			logger.Info("scene finished", core.F("blinks", blinks))
		})
	}
}
