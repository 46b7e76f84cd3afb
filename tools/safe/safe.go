package safe

import (
	"PPGateway/logger"
	"PPGateway/tools/errs"

	"go.uber.org/zap"
)

// Go starts f on a new goroutine; a panic inside f is logged instead of
// taking the process down.
func Go(name string, f func()) {
	go Run(name, f)
}

// Run calls f on the current goroutine with the same panic guard as Go.
func Run(name string, f func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("[SafeGo] panic recovered", zap.String("task", name), zap.Error(errs.ErrPanic(r)))
		}
	}()
	f()
}
