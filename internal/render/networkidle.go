package render

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

// waitNetworkQuiet blocks until no subresource request has been
// in-flight for quietFor, or hardCeiling elapses, whichever comes first.
// It is implemented as a chromedp.ActionFunc that enables the Network
// domain and counts in-flight requests from CDP lifecycle events,
// resetting an idle timer whenever a request starts or the last
// in-flight request completes.
func waitNetworkQuiet(quietFor, hardCeiling time.Duration) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return err
		}

		var mu sync.Mutex
		inFlight := map[network.RequestID]struct{}{}
		quiet := make(chan struct{}, 1)
		timer := time.NewTimer(quietFor)
		defer timer.Stop()

		resetTimer := func() {
			timer.Reset(quietFor)
		}

		chromedp.ListenTarget(ctx, func(ev interface{}) {
			mu.Lock()
			defer mu.Unlock()
			switch e := ev.(type) {
			case *network.EventRequestWillBeSent:
				inFlight[e.RequestID] = struct{}{}
				resetTimer()
			case *network.EventLoadingFinished:
				delete(inFlight, e.RequestID)
				if len(inFlight) == 0 {
					resetTimer()
				}
			case *network.EventLoadingFailed:
				delete(inFlight, e.RequestID)
				if len(inFlight) == 0 {
					resetTimer()
				}
			}
		})

		ceiling := time.NewTimer(hardCeiling)
		defer ceiling.Stop()

		go func() {
			for {
				select {
				case <-timer.C:
				case <-ctx.Done():
					return
				}
				mu.Lock()
				idle := len(inFlight) == 0
				mu.Unlock()
				if idle {
					select {
					case quiet <- struct{}{}:
					default:
					}
					return
				}
			}
		}()

		select {
		case <-quiet:
			return nil
		case <-ceiling.C:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}
