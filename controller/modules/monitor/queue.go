package monitor

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Trigger sources.
const (
	Manual    = "manual"
	Scheduled = "schedule"
)

var (
	ErrDuplicate   = errors.New("scheduled cycle already queued")
	ErrQueueClosed = errors.New("cycle queue closed")
)

// Task is one queued cycle request. Done receives the result when the
// worker finishes it.
type Task struct {
	ID     string    `json:"id"`
	Source string    `json:"source"`
	Time   time.Time `json:"time"`
	done   chan CycleResult
}

// Queue is a FIFO of cycle requests served by a single worker, so cycles
// never overlap.
type Queue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	tasks   []*Task
	current *Task
	closed  bool
}

func NewQueue() *Queue {
	q := new(Queue)
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Add enqueues a cycle request. A scheduled request is rejected while
// another scheduled request is still waiting.
func (q *Queue) Add(source string) (*Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}
	if source == Scheduled {
		for _, t := range q.tasks {
			if t.Source == Scheduled {
				return nil, ErrDuplicate
			}
		}
	}
	t := &Task{ID: uuid.NewString(), Source: source, Time: time.Now(), done: make(chan CycleResult, 1)}
	q.tasks = append(q.tasks, t)
	q.cond.Signal()
	return t, nil
}

// Pending returns the waiting tasks, oldest first.
func (q *Queue) Pending() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Task, 0, len(q.tasks))
	for _, t := range q.tasks {
		out = append(out, Task{ID: t.ID, Source: t.Source, Time: t.Time})
	}
	return out
}

// Running reports whether the worker is executing a task.
func (q *Queue) Running() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.current != nil
}

// Close stops the worker after the running task. Waiting tasks are dropped.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
	for _, t := range q.tasks {
		close(t.done)
	}
	q.tasks = nil
	q.cond.Broadcast()
}

// ProcessTasks runs worker for each task in order until Close.
func (q *Queue) ProcessTasks(worker func(Task) CycleResult) {
	for {
		q.mu.Lock()
		for len(q.tasks) == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.closed {
			q.mu.Unlock()
			return
		}
		next := q.tasks[0]
		q.tasks = q.tasks[1:]
		q.current = next
		q.mu.Unlock()

		result := worker(*next)
		next.done <- result
		close(next.done)

		q.mu.Lock()
		q.current = nil
		q.mu.Unlock()
	}
}
