package staging

import (
	"context"

	"github.com/gogpu/gpures/gpucore"
)

// Waiter is a sequence clock the caller can block on.
type Waiter interface {
	Completed() gpucore.SequenceID
	WaitFor(ctx context.Context, seq gpucore.SequenceID) error
}

// MapWait maps sub, blocking on w while the guard reports Busy. It returns
// ctx's error if ctx ends first.
func MapWait(ctx context.Context, g *Guard, sub int, w Waiter, mode MapMode) (MapResult, error) {
	for {
		completed := w.Completed()
		res, err := g.TryMap(sub, completed, mode)
		if err != nil || res.Status == Ready {
			return res, err
		}
		if err := w.WaitFor(ctx, completed+gpucore.SequenceID(res.Wait)); err != nil {
			return MapResult{}, err
		}
	}
}
