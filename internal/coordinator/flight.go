package coordinator

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"
)

// flightGroup deduplicates concurrent requests for the same key. The shared
// work runs on a context detached from any single caller and is canceled only
// once every caller waiting on it has gone away.
type flightGroup struct {
	group singleflight.Group

	mu     sync.Mutex
	flying map[string]*flight
}

type flight struct {
	ctx     context.Context
	cancel  context.CancelFunc
	waiters int
}

type landing struct {
	val      any
	canceled bool
}

// Do runs fn once per key among concurrent callers. A caller whose ctx ends
// while others still wait returns ctx.Err() without disturbing them. The last
// caller to leave cancels the work and receives whatever fn returns for it.
// A caller that is still live never receives work canceled on behalf of others;
// it starts the work again instead.
func (g *flightGroup) Do(ctx context.Context, key string, fn func(context.Context) (any, error)) (any, error, bool) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err, false
		}
		f := g.board(ctx, key)
		ch := g.group.DoChan(key, func() (any, error) {
			defer g.land(key, f)
			v, err := fn(f.ctx)
			return landing{val: v, canceled: f.ctx.Err() != nil}, err
		})

		select {
		case res := <-ch:
			g.leave(key, f, false)
			l, _ := res.Val.(landing)
			if l.canceled && ctx.Err() == nil {
				continue
			}
			return l.val, res.Err, res.Shared
		case <-ctx.Done():
			if !g.leave(key, f, true) {
				return nil, ctx.Err(), true
			}
			res := <-ch
			l, _ := res.Val.(landing)
			return l.val, res.Err, res.Shared
		}
	}
}

func (g *flightGroup) board(ctx context.Context, key string) *flight {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.flying == nil {
		g.flying = make(map[string]*flight)
	}
	f, ok := g.flying[key]
	if !ok {
		f = &flight{}
		f.ctx, f.cancel = context.WithCancel(context.WithoutCancel(ctx))
		g.flying[key] = f
	}
	f.waiters++
	return f
}

// leave drops a waiter and reports whether it was the last one. When the last
// waiter abandons the flight, the work is canceled and forgotten so later
// callers start fresh.
func (g *flightGroup) leave(key string, f *flight, abandon bool) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	f.waiters--
	if f.waiters > 0 {
		return false
	}
	if g.flying[key] == f {
		delete(g.flying, key)
		if abandon {
			g.group.Forget(key)
		}
	}
	f.cancel()
	return true
}

// land removes a finished flight.
func (g *flightGroup) land(key string, f *flight) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.flying[key] == f {
		delete(g.flying, key)
	}
}
