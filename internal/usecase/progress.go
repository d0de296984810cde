package usecase

import (
	applogger "StockVote/pkg/logger"
)

// ProgressFunc is called by the batch aggregator after every instrument.
// Calls are serialized.
type ProgressFunc func(done, total int, instrumentID string)

// LogProgress logs every n instruments and on the last one.
func LogProgress(logger *applogger.Logger, every int) ProgressFunc {
	if every <= 0 {
		every = 10
	}
	return func(done, total int, instrumentID string) {
		if done%every != 0 && done != total {
			return
		}
		logger.Info("batch progress",
			applogger.Int("done", done),
			applogger.Int("total", total),
			applogger.String("last", instrumentID))
	}
}

// chainProgress calls every non-nil fn in order.
func chainProgress(fns ...ProgressFunc) ProgressFunc {
	var out []ProgressFunc
	for _, f := range fns {
		if f != nil {
			out = append(out, f)
		}
	}
	return func(done, total int, instrumentID string) {
		for _, f := range out {
			f(done, total, instrumentID)
		}
	}
}
