package worker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type indexedResult struct {
	index int
	err   error
}

func (r *indexedResult) GetError() error { return r.err }

// indexedJob records its index and optionally blocks on gate
type indexedJob struct {
	index   int
	fail    bool
	gate    <-chan struct{}
	running *int32
	peak    *int32
}

func (j *indexedJob) Execute(ctx context.Context) Result {
	if j.running != nil {
		n := atomic.AddInt32(j.running, 1)
		defer atomic.AddInt32(j.running, -1)
		for {
			p := atomic.LoadInt32(j.peak)
			if n <= p || atomic.CompareAndSwapInt32(j.peak, p, n) {
				break
			}
		}
	}
	if j.gate != nil {
		select {
		case <-j.gate:
		case <-ctx.Done():
			return &indexedResult{index: j.index, err: ctx.Err()}
		}
	}
	if j.fail {
		return &indexedResult{index: j.index, err: errors.New("rule catalog error")}
	}
	return &indexedResult{index: j.index}
}

func TestNewPool_ClampsWorkers(t *testing.T) {
	for _, n := range []int{0, -3} {
		if p := NewPool(context.Background(), n); p.workers != 1 {
			t.Errorf("NewPool(%d) workers = %d, want 1", n, p.workers)
		}
	}
}

func TestPool_EveryIndexReturnedOnce(t *testing.T) {
	pool := NewPool(context.Background(), 3)
	pool.Start()

	const n = 40
	for i := 0; i < n; i++ {
		if !pool.Submit(&indexedJob{index: i, fail: i%10 == 0}) {
			t.Fatalf("submit %d refused", i)
		}
	}

	seen := make(map[int]bool)
	failed := 0
	for _, r := range pool.Wait() {
		ir := r.(*indexedResult)
		if seen[ir.index] {
			t.Errorf("index %d returned twice", ir.index)
		}
		seen[ir.index] = true
		if ir.GetError() != nil {
			failed++
		}
	}
	if len(seen) != n {
		t.Errorf("expected %d distinct results, got %d", n, len(seen))
	}
	if failed != 4 {
		t.Errorf("expected 4 failed results, got %d", failed)
	}
}

func TestPool_RespectsWorkerLimit(t *testing.T) {
	const workers = 4
	pool := NewPool(context.Background(), workers)
	pool.Start()

	gate := make(chan struct{})
	var running, peak int32
	for i := 0; i < workers; i++ {
		pool.Submit(&indexedJob{index: i, gate: gate, running: &running, peak: &peak})
	}

	// release the gate once every worker holds a job
	deadline := time.After(time.Second)
	for atomic.LoadInt32(&running) < workers {
		select {
		case <-deadline:
			t.Fatalf("only %d jobs started", atomic.LoadInt32(&running))
		default:
			time.Sleep(time.Millisecond)
		}
	}
	close(gate)

	for i := workers; i < 3*workers; i++ {
		pool.Submit(&indexedJob{index: i, running: &running, peak: &peak})
	}
	if results := pool.Wait(); len(results) != 3*workers {
		t.Errorf("expected %d results, got %d", 3*workers, len(results))
	}
	if p := atomic.LoadInt32(&peak); p > workers {
		t.Errorf("peak concurrency %d exceeded %d workers", p, workers)
	}
}

func TestPool_ParentCancelRefusesSubmit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(ctx, 2)
	pool.Start()
	cancel()

	// the queue buffer may take a few jobs; once full only the cancelled branch is ready
	refused := false
	for i := 0; i < 10 && !refused; i++ {
		refused = !pool.Submit(&indexedJob{index: i})
	}
	if !refused {
		t.Error("expected Submit to refuse jobs after cancellation")
	}
	pool.Shutdown()
}

func TestPool_ShutdownUnblocksGatedJobs(t *testing.T) {
	pool := NewPool(context.Background(), 1)
	pool.Start()

	gate := make(chan struct{})
	var running, peak int32
	pool.Submit(&indexedJob{index: 0, gate: gate, running: &running, peak: &peak})
	for atomic.LoadInt32(&running) == 0 {
		time.Sleep(time.Millisecond)
	}

	pool.Shutdown()

	select {
	case <-pool.collected:
	case <-time.After(time.Second):
		t.Fatal("Shutdown did not close the result stream")
	}
	results := pool.collector.Results()
	if len(results) != 1 || !errors.Is(results[0].GetError(), context.Canceled) {
		t.Errorf("expected the gated job to report cancellation, got %v", results)
	}
}

func TestResultCollector_ConcurrentAdd(t *testing.T) {
	c := NewResultCollector()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c.Add(&indexedResult{index: i})
		}(i)
	}
	wg.Wait()

	if got := len(c.Results()); got != 50 {
		t.Errorf("expected 50 results, got %d", got)
	}
}
