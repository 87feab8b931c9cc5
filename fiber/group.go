package fiber

import "context"

// Group runs child fibers and collects the first error any of them
// returns. The first error also cancels the context shared by the
// group's fibers.
type Group struct {
	owner  Handle
	ctx    context.Context
	cancel context.CancelCauseFunc
	wg     WaitGroup
	err    error
}

func newGroup(owner Handle) *Group {
	ctx, cancel := context.WithCancelCause(owner.context())
	return &Group{owner: owner, ctx: ctx, cancel: cancel}
}

// Go spawns fn as a child of the group's owner. The child runs
// immediately, until it first parks.
func (g *Group) Go(fn func(context.Context) error) {
	g.wg.Add(1)
	g.owner.spawn(g.ctx, func(ctx context.Context) {
		defer g.wg.Done()
		if err := fn(ctx); err != nil && g.err == nil {
			g.err = err
			g.cancel(err)
		}
	})
}

// Wait parks f until every fiber started by Go has returned, then
// returns the first error.
func (g *Group) Wait(f Handle) error {
	g.wg.Wait(f)
	g.cancel(g.err)
	return g.err
}

// Context returns the context shared by the group's fibers.
func (g *Group) Context() context.Context {
	return g.ctx
}
