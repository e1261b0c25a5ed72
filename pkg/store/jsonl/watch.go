package jsonl

import (
	"context"
	"os"
	"time"
)

// Watch polls path every interval and sends its modification time each time
// it changes. The first value is the time observed at the start. Sends never
// block: a slow receiver only sees the latest change. The channel is closed
// when ctx is done.
func Watch(ctx context.Context, path string, interval time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	go func() {
		defer close(ch)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var last time.Time
		check := func() {
			st, err := os.Stat(path)
			if err != nil {
				return
			}
			mt := st.ModTime()
			if mt.Equal(last) {
				return
			}
			last = mt
			select {
			case ch <- mt:
			default:
				// Drop the stale value and keep the newest.
				select {
				case <-ch:
				default:
				}
				select {
				case ch <- mt:
				default:
				}
			}
		}

		check()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				check()
			}
		}
	}()
	return ch
}
