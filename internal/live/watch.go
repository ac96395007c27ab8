package live

import "context"

// Snapshot is one full result delivered to a watcher.
type Snapshot[T any] struct {
	Value T
	Err   error
}

// Watch loads an initial snapshot and reloads after every signal on sub.
// The returned channel holds at most one snapshot: a newer one replaces an
// unread older one. The channel closes and sub is released when ctx ends.
func Watch[T any](ctx context.Context, sub *Subscription, load func(context.Context) (T, error)) <-chan Snapshot[T] {
	out := make(chan Snapshot[T], 1)
	go func() {
		defer close(out)
		defer sub.Close()
		for {
			v, err := load(ctx)
			if ctx.Err() != nil {
				return
			}
			offer(out, Snapshot[T]{Value: v, Err: err})

			select {
			case <-ctx.Done():
				return
			case <-sub.C:
			}
		}
	}()
	return out
}

// offer replaces any unread snapshot with s. Only the watch goroutine sends.
func offer[T any](out chan Snapshot[T], s Snapshot[T]) {
	for {
		select {
		case out <- s:
			return
		default:
		}
		select {
		case <-out:
		default:
		}
	}
}
