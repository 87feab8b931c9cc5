package fiber

import (
	"context"
	"fmt"
	"runtime/debug"
	"runtime/trace"
	"strings"

	"github.com/jmp/vthreads"
	"github.com/webriots/coro"
)

const (
	traceTaskType   = "fiber-run"
	traceRegionType = "fiber"
	traceCategory   = "fiber"
)

// Fiber is a cooperative unit of work. Fibers are created by
// Carrier.Run, Spawn, Go, and Group.Go, and run one at a time on the
// goroutine that called Carrier.Run.
type Fiber[I, O any] struct {
	ctx     context.Context
	suspend func() outcome[O]
	resume  func(outcome[O]) (struct{}, bool)
	cancel  func()
	sess    *session[I, O]
	parent  *Fiber[I, O]
	childn  int
	parked  bool
	running bool
	done    bool
}

// Handle is the type-erased view of a Fiber used by the synchronization
// primitives.
type Handle interface {
	Go(func(context.Context))
	Group() *Group
	Wait()

	Log(string)
	Logf(string, ...any)

	context() context.Context
	spawn(ctx context.Context, fn func(context.Context))
	runz()
	suspendz()
	park(bool)
}

var _ Handle = (*Fiber[int, int])(nil)

func newFiber[I, O any](
	ctx context.Context,
	fn func(context.Context, *Fiber[I, O]),
	parent *Fiber[I, O],
	sess *session[I, O],
) *Fiber[I, O] {
	f := &Fiber[I, O]{parent: parent, sess: sess}
	if parent != nil {
		parent.childn++
	}
	sess.spawned++

	f.ctx = withFiber(ctx, f)

	resume, cancel := coro.New(
		func(_ func(struct{}) outcome[O], suspend func() outcome[O]) (z struct{}) {
			region := trace.StartRegion(f.ctx, traceRegionType)

			defer func() {
				f.done = true
				if f.parent != nil {
					f.parent.childn--
				}
				region.End()
			}()

			f.suspend = suspend

			f.call(fn)
			f.Wait()

			return
		},
	)

	f.resume = resume
	f.cancel = cancel
	return f
}

func (f *Fiber[I, O]) call(fn func(context.Context, *Fiber[I, O])) {
	defer func() {
		if r := recover(); r != nil {
			f.Logf("PANIC %v", r)
			f.sess.fail(&vthreads.PanicError{Value: r, Stack: debug.Stack()})
		}
	}()
	fn(f.ctx, f)
}

// Context returns the fiber's context.
func (f *Fiber[I, O]) Context() context.Context {
	return f.ctx
}

// Spawn starts fn as a child fiber. The child runs immediately, until it
// first parks, before Spawn returns.
func (f *Fiber[I, O]) Spawn(fn func(context.Context, *Fiber[I, O])) {
	f.spawnfiber(f.ctx, fn)
}

// Go is Spawn for functions that retrieve their fiber, if they need it,
// using FromContext.
func (f *Fiber[I, O]) Go(fn func(context.Context)) {
	f.spawn(f.ctx, fn)
}

// IO parks the fiber until the carrier has flushed in, then returns the
// flusher's output for it.
func (f *Fiber[I, O]) IO(in I) (O, error) {
	f.Log("IO")

	f.sess.queue.add(&request[I, O]{fiber: f, in: in})
	f.park(true)

	res := f.suspend()
	return res.out, res.err
}

// Group returns a new Group owned by f.
func (f *Fiber[I, O]) Group() *Group {
	return newGroup(f)
}

// Wait parks the fiber until all of its children have finished. Every
// fiber waits for its children before finishing, whether or not it
// calls Wait itself.
func (f *Fiber[I, O]) Wait() {
	f.Log("WAIT")

	for f.childn > 0 {
		f.suspend()
	}
}

// Log emits msg to the execution tracer, if tracing is enabled.
func (f *Fiber[I, O]) Log(msg string) {
	if trace.IsEnabled() {
		var sb strings.Builder
		f.path(&sb)
		sb.WriteRune(' ')
		sb.WriteString(msg)
		trace.Log(f.ctx, traceCategory, sb.String())
	}
}

// Logf is Log with formatting.
func (f *Fiber[I, O]) Logf(format string, args ...any) {
	if trace.IsEnabled() {
		var sb strings.Builder
		f.path(&sb)
		sb.WriteRune(' ')
		fmt.Fprintf(&sb, format, args...)
		trace.Log(f.ctx, traceCategory, sb.String())
	}
}

func (f *Fiber[I, O]) path(sb *strings.Builder) {
	if f.parent != nil {
		f.parent.path(sb)
	}
	fmt.Fprintf(sb, "%p|", f)
}

func (f *Fiber[I, O]) spawnfiber(ctx context.Context, fn func(context.Context, *Fiber[I, O])) {
	child := newFiber(ctx, fn, f, f.sess)
	child.Log("SPAWN")
	child.resumez()
}

func (f *Fiber[I, O]) spawn(ctx context.Context, fn func(context.Context)) {
	f.spawnfiber(ctx, func(ctx context.Context, _ *Fiber[I, O]) { fn(ctx) })
}

// run resumes the fiber with res. If that finishes the fiber, and its
// parent is suspended waiting on nothing but its children, the parent
// resumes in turn. A parent further up the stack notices on its own.
func (f *Fiber[I, O]) run(res outcome[O]) {
	f.Log("RUN")

	if f.step(res) {
		return
	}

	if f.parent == nil || f.parent.parked || f.parent.running {
		return
	}

	if f.parent.childn == 0 {
		f.parent.runz()
	}
}

func (f *Fiber[I, O]) context() context.Context {
	return f.ctx
}

// step resumes the fiber until it next suspends, reporting false once
// it has finished.
func (f *Fiber[I, O]) step(res outcome[O]) bool {
	f.running = true
	_, ok := f.resume(res)
	f.running = false
	return ok
}

func (f *Fiber[I, O]) resumez() bool {
	return f.step(outcome[O]{})
}

func (f *Fiber[I, O]) runz() {
	f.run(outcome[O]{})
}

func (f *Fiber[I, O]) suspendz() {
	f.suspend()
}

func (f *Fiber[I, O]) park(b bool) {
	f.parked = b
}
