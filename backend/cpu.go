package backend

import (
	"context"
	"fmt"
	"sync"

	"github.com/notargets/VecKernel/kernel"
	"github.com/notargets/VecKernel/partitions"
)

// Serial runs every partition on the calling goroutine, in order
type Serial struct{}

// NewSerial returns a single-threaded backend
func NewSerial() *Serial {
	return &Serial{}
}

func (s *Serial) Name() string { return string(KindSerial) }

func (s *Serial) Execute(ctx context.Context, wd partitions.WorkDivision, op kernel.Op, v *kernel.Vectors) error {
	if err := checkInputs(wd, v); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	for p := 0; p < wd.Groups; p++ {
		part := wd.Partition(p)
		kernel.ApplyRange(op, v, part.Start, part.End)
	}
	return nil
}

func (s *Serial) Close() error { return nil }

// Threads runs one logical worker per partition on a bounded goroutine
// pool. Partitions are disjoint, so workers share no mutable state; the
// WaitGroup join is the only synchronisation.
type Threads struct {
	workers int
}

// NewThreads returns a goroutine-pool backend with the given pool size
func NewThreads(workers int) *Threads {
	if workers < 1 {
		workers = 1
	}
	return &Threads{workers: workers}
}

func (t *Threads) Name() string { return fmt.Sprintf("%s(%d)", KindThreads, t.workers) }

// Workers returns the pool size
func (t *Threads) Workers() int { return t.workers }

func (t *Threads) Execute(ctx context.Context, wd partitions.WorkDivision, op kernel.Op, v *kernel.Vectors) error {
	if err := checkInputs(wd, v); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if wd.Groups == 0 {
		return nil
	}

	workers := t.workers
	if workers > wd.Groups {
		workers = wd.Groups
	}

	// Worker w owns partitions w, w+workers, w+2*workers, ...
	var wg sync.WaitGroup
	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func(first int) {
			defer wg.Done()
			for p := first; p < wd.Groups; p += workers {
				part := wd.Partition(p)
				kernel.ApplyRange(op, v, part.Start, part.End)
			}
		}(w)
	}
	wg.Wait()
	return nil
}

func (t *Threads) Close() error { return nil }
