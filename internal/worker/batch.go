package worker

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Waiter gates the start of each queued item. *rate.Limiter satisfies it.
type Waiter interface {
	Wait(ctx context.Context) error
}

// Task is one unit of a sequential batch
type Task struct {
	Key string
	Run func(ctx context.Context) (interface{}, error)
}

// ItemResult is the outcome of one batch item: a value or a captured error
type ItemResult struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value,omitempty"`
	Err   error       `json:"-"`
	Error string      `json:"error,omitempty"`
}

// GetError returns the captured error
func (r ItemResult) GetError() error {
	return r.Err
}

// BatchReport aggregates the per-item outcomes of a batch operation
type BatchReport struct {
	Operation string        `json:"operation"`
	Items     []ItemResult  `json:"items"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"` // Not started because the context was cancelled
	Duration  time.Duration `json:"duration"`
}

// Errors returns the failed items
func (r BatchReport) Errors() []ItemResult {
	var out []ItemResult
	for _, item := range r.Items {
		if item.Err != nil {
			out = append(out, item)
		}
	}
	return out
}

// Queue runs tasks one at a time, waiting on a limiter before each one.
// A failing task never stops the queue; cancellation stops it from
// starting further tasks.
type Queue struct {
	waiter Waiter
	onItem func(operation string, err error)
	now    func() time.Time
}

// NewQueue creates a queue that waits at least delay before every task
// start, the first one included. A zero delay disables pacing.
func NewQueue(delay time.Duration) *Queue {
	if delay <= 0 {
		return NewQueueWithWaiter(rate.NewLimiter(rate.Inf, 1))
	}
	limiter := rate.NewLimiter(rate.Every(delay), 1)
	// spend the initial token so the first task waits too
	limiter.Allow()
	return NewQueueWithWaiter(limiter)
}

// NewQueueWithWaiter creates a queue paced by a custom waiter
func NewQueueWithWaiter(w Waiter) *Queue {
	return &Queue{waiter: w, now: time.Now}
}

// OnItem registers a callback invoked after every finished item
func (q *Queue) OnItem(fn func(operation string, err error)) *Queue {
	q.onItem = fn
	return q
}

// Run processes tasks sequentially in order
func (q *Queue) Run(ctx context.Context, operation string, tasks []Task) BatchReport {
	start := q.now()
	report := BatchReport{Operation: operation, Items: make([]ItemResult, 0, len(tasks))}

	for i, task := range tasks {
		if ctx.Err() != nil {
			report.Skipped = len(tasks) - i
			break
		}
		if err := q.waiter.Wait(ctx); err != nil {
			report.Skipped = len(tasks) - i
			break
		}

		value, err := runTask(ctx, task)
		item := ItemResult{Key: task.Key, Value: value, Err: err}
		if err != nil {
			item.Error = err.Error()
			report.Failed++
		} else {
			report.Succeeded++
		}
		report.Items = append(report.Items, item)

		if q.onItem != nil {
			q.onItem(operation, err)
		}
	}

	report.Duration = q.now().Sub(start)
	return report
}

// runTask converts a panicking task into that item's error
func runTask(ctx context.Context, task Task) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			value = nil
			err = fmt.Errorf("task %s panicked: %v", task.Key, r)
		}
	}()
	return task.Run(ctx)
}
