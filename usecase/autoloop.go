package usecase

import (
	"time"

	"go.uber.org/zap"
)

// AutoLoopScheduler re-arms capture after the engine goes quiet, with a
// short debounce so back-to-back turns don't re-trigger instantly. The
// resume conditions are checked twice: once when scheduling and again
// when the timer fires, because the user can toggle the loop or start
// talking in between.
type AutoLoopScheduler struct {
	debounce time.Duration
	check    func() bool
	resume   func()
	logger   *zap.Logger

	// afterFunc is swapped out in tests.
	afterFunc func(d time.Duration, f func()) *time.Timer
}

func NewAutoLoopScheduler(debounce time.Duration, check func() bool, resume func(), logger *zap.Logger) *AutoLoopScheduler {
	return &AutoLoopScheduler{
		debounce:  debounce,
		check:     check,
		resume:    resume,
		logger:    logger,
		afterFunc: time.AfterFunc,
	}
}

// MaybeResume schedules a resume if the loop is enabled and the engine
// is neither capturing nor mid-pipeline. Otherwise it does nothing.
func (a *AutoLoopScheduler) MaybeResume(enabled, capturing, processing bool) {
	if !enabled || capturing || processing {
		return
	}

	a.logger.Debug("Auto-loop armed", zap.Duration("debounce", a.debounce))
	a.afterFunc(a.debounce, func() {
		if !a.check() {
			a.logger.Debug("Auto-loop resume cancelled at fire time")
			return
		}
		a.resume()
	})
}
