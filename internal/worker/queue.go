package worker

import (
	"sync"

	"github.com/orpheus-edu/orpheus-core/internal/types"
)

// Queue is the unbounded multi-producer single-consumer slide task queue.
// Enqueue never blocks; Dequeue blocks until a task arrives or the queue is
// closed.
type Queue struct {
	mu     sync.Mutex
	cond   *sync.Cond
	tasks  []types.SlideTask
	closed bool
}

func NewQueue() *Queue {
	q := &Queue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

func (q *Queue) Enqueue(task types.SlideTask) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.tasks = append(q.tasks, task)
	q.cond.Signal()
}

// Dequeue returns the next task in enqueue order, or ok=false once the queue
// is closed and drained of waiters.
func (q *Queue) Dequeue() (types.SlideTask, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.tasks) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return types.SlideTask{}, false
	}
	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	return task, true
}

// Close wakes the consumer and makes every later Dequeue return ok=false.
// Tasks still queued are discarded.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}
