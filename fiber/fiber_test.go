package fiber

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"testing"

	"github.com/jmp/vthreads"
	"github.com/stretchr/testify/require"
)

type echo struct {
	batches []int
	fail    error
}

func (e *echo) Flush(_ context.Context, in []string) ([]string, error) {
	e.batches = append(e.batches, len(in))
	if e.fail != nil {
		return nil, e.fail
	}
	out := make([]string, len(in))
	for i, s := range in {
		out[i] = s + " ok"
	}
	return out, nil
}

func TestFiberIO(t *testing.T) {
	r := require.New(t)

	n := 0
	crud := func(_ context.Context, f *Fiber[string, string]) {
		for i := 0; i < 10; i++ {
			for j := 0; j < 10; j++ {
				f.Spawn(func(_ context.Context, f *Fiber[string, string]) {
					for _, op := range []string{"create", "read", "update", "delete"} {
						out, err := f.IO(fmt.Sprintf("%s %v", op, j))
						r.NoError(err)
						r.Equal(fmt.Sprintf("%s %v ok", op, j), out)
					}
					n++
				})
			}
		}
	}

	e := new(echo)
	r.NoError(NewCarrier[string, string](e).Run(context.Background(), crud))
	r.Equal(100, n)
	r.Equal([]int{100, 100, 100, 100}, e.batches)
}

func TestCarrierBatchSize(t *testing.T) {
	r := require.New(t)

	n := 0
	e := new(echo)
	err := NewCarrier[string, string](e, WithBatchSize(7)).Run(context.Background(), func(_ context.Context, f *Fiber[string, string]) {
		for i := 0; i < 50; i++ {
			f.Go(func(ctx context.Context) {
				f, ok := FromContext[string, string](ctx)
				r.True(ok)
				_, err := f.IO(strconv.Itoa(i))
				r.NoError(err)
				n++
			})
		}
	})
	r.NoError(err)
	r.Equal(50, n)
	r.Equal([]int{7, 7, 7, 7, 7, 7, 7, 1}, e.batches)
}

func TestGroup(t *testing.T) {
	r := require.New(t)

	x := 0
	y := 0
	z := 0
	crud := func(ctx context.Context, f *Fiber[string, string]) {
		x++
		concurrent := 0
		for i := 0; i < 10; i++ {
			concurrent++
			r.Equal(1, concurrent)
			group := f.Group()
			for j := 0; j < 10; j++ {
				y++
				c := y
				group.Go(func(ctx context.Context) error {
					f, ok := FromContext[string, string](ctx)
					r.True(ok)

					for _, op := range []string{"create", "read", "update", "delete"} {
						_, err := f.IO(fmt.Sprintf("%s %v", op, c))
						r.NoError(err)
					}

					inner := f.Group()
					r.NoError(inner.Wait(f))

					for k := 0; k < 10; k++ {
						inner = f.Group()
						inner.Go(func(ctx context.Context) error {
							z++
							f, ok := FromContext[string, string](ctx)
							r.True(ok)
							_, err := f.IO(fmt.Sprintf("create %v", c))
							return err
						})
						r.NoError(inner.Wait(f))
					}

					return nil
				})
			}

			group.Go(func(context.Context) error {
				concurrent--
				return nil
			})

			r.NoError(group.Wait(f))
		}
	}

	r.NoError(NewCarrier[string, string](new(echo)).Run(context.Background(), crud))
	r.Equal(1, x)
	r.Equal(100, y)
	r.Equal(1000, z)
}

func TestGroupFirstErrorCancels(t *testing.T) {
	r := require.New(t)

	boom := errors.New("boom")
	var groupErr error
	var cancelled int

	err := NewCarrier[string, string](new(echo)).Run(context.Background(), func(_ context.Context, f *Fiber[string, string]) {
		g := f.Group()
		g.Go(func(ctx context.Context) error {
			f, _ := FromContext[string, string](ctx)
			_, _ = f.IO("first")
			return boom
		})
		for i := 0; i < 5; i++ {
			g.Go(func(ctx context.Context) error {
				f, _ := FromContext[string, string](ctx)
				_, _ = f.IO("a")
				_, _ = f.IO("b")
				if context.Cause(ctx) == boom {
					cancelled++
				}
				return nil
			})
		}
		groupErr = g.Wait(f)
	})

	r.NoError(err)
	r.ErrorIs(groupErr, boom)
	r.Equal(5, cancelled)
}

func TestWaitGroup(t *testing.T) {
	r := require.New(t)

	expect, n := 100, 0
	waits := func(_ context.Context, f *Fiber[string, string]) {
		var wg WaitGroup

		for i := 0; i < expect-1; i++ {
			wg.Add(1)
			f.Spawn(func(_ context.Context, f *Fiber[string, string]) {
				defer wg.Done()
				_, _ = f.IO(strconv.Itoa(i))
				n++
			})
		}

		wg.Wait(f)
		r.Equal(expect-1, n)
		n++
	}

	r.NoError(NewCarrier[string, string](new(echo)).Run(context.Background(), waits))
	r.Equal(expect, n)
}

func TestWaitGroupReleasedByParent(t *testing.T) {
	r := require.New(t)

	var order []string
	err := NewCarrier[string, string](new(echo)).Run(context.Background(), func(_ context.Context, f *Fiber[string, string]) {
		var gate WaitGroup
		gate.Add(1)

		for i := 0; i < 3; i++ {
			f.Spawn(func(_ context.Context, f *Fiber[string, string]) {
				gate.Wait(f)
				order = append(order, "child "+strconv.Itoa(i))
			})
		}
		r.Equal(3, gate.Waiting())

		order = append(order, "open")
		gate.Done()
		order = append(order, "parent")
	})

	r.NoError(err)
	r.Equal([]string{"open", "child 0", "child 1", "child 2", "parent"}, order)
}

func TestFiberWaitsForChildren(t *testing.T) {
	r := require.New(t)

	var order []string
	err := NewCarrier[string, string](new(echo)).Run(context.Background(), func(_ context.Context, f *Fiber[string, string]) {
		f.Spawn(func(_ context.Context, f *Fiber[string, string]) {
			f.Spawn(func(_ context.Context, f *Fiber[string, string]) {
				_, _ = f.IO("grandchild")
				order = append(order, "grandchild")
			})
			order = append(order, "child returned")
		})
		f.Wait()
		order = append(order, "root")
	})

	r.NoError(err)
	r.Equal([]string{"child returned", "grandchild", "root"}, order)
}

func TestFlushError(t *testing.T) {
	r := require.New(t)

	boom := errors.New("boom")
	failures := 0
	err := NewCarrier[string, string](&echo{fail: boom}).Run(context.Background(), func(_ context.Context, f *Fiber[string, string]) {
		for i := 0; i < 3; i++ {
			f.Spawn(func(_ context.Context, f *Fiber[string, string]) {
				out, err := f.IO("x")
				r.Empty(out)
				if errors.Is(err, boom) {
					failures++
				}
			})
		}
	})

	r.ErrorIs(err, boom)
	r.Equal(3, failures)
}

func TestShortFlush(t *testing.T) {
	r := require.New(t)

	short := FlusherFunc[string, string](func(context.Context, []string) ([]string, error) {
		return nil, nil
	})
	var ioErr error
	err := NewCarrier[string, string](short).Run(context.Background(), func(_ context.Context, f *Fiber[string, string]) {
		_, ioErr = f.IO("x")
	})

	r.Error(err)
	r.Equal(err, ioErr)
	r.Contains(err.Error(), "0 outputs for 1 inputs")
}

func TestPanic(t *testing.T) {
	r := require.New(t)

	boom := fmt.Errorf("UH OH")
	finished := 0

	fn := func(_ context.Context, f *Fiber[string, string]) {
		f.Spawn(func(_ context.Context, f *Fiber[string, string]) {
			f.Spawn(func(_ context.Context, f *Fiber[string, string]) {
				f.Spawn(func(_ context.Context, f *Fiber[string, string]) {
					_, _ = f.IO("before")
					panic(boom)
				})
				_, _ = f.IO("sibling")
				finished++
			})
			finished++
		})
		finished++
	}

	err := NewCarrier[string, string](new(echo)).Run(context.Background(), fn)
	var pe *vthreads.PanicError
	r.ErrorAs(err, &pe)
	r.ErrorIs(err, boom)
	r.Equal(3, finished)
}

func TestStalled(t *testing.T) {
	r := require.New(t)

	err := NewCarrier[string, string](new(echo)).Run(context.Background(), func(_ context.Context, f *Fiber[string, string]) {
		var never WaitGroup
		never.Add(1)
		f.Spawn(func(_ context.Context, f *Fiber[string, string]) {
			never.Wait(f)
		})
	})
	r.ErrorIs(err, ErrStalled)
}

func TestHandleFromContext(t *testing.T) {
	r := require.New(t)

	_, ok := HandleFromContext(context.Background())
	r.False(ok)
	r.Panics(func() { MustHandleFromContext(context.Background()) })

	err := NewCarrier[int, int](FlusherFunc[int, int](func(_ context.Context, in []int) ([]int, error) {
		return in, nil
	})).Run(context.Background(), func(ctx context.Context, f *Fiber[int, int]) {
		h, ok := HandleFromContext(ctx)
		r.True(ok)
		r.Same(f, h)
		r.Same(f, MustHandleFromContext(f.Context()))

		_, ok = FromContext[string, string](ctx)
		r.False(ok)

		out, err := f.IO(42)
		r.NoError(err)
		r.Equal(42, out)
	})
	r.NoError(err)
}
