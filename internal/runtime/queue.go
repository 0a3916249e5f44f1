package runtime

import (
	"context"

	"github.com/aretw0/stepflow/pkg/domain"
)

// task is deferred work run once the current logical turn has settled.
type task struct {
	name string
	run  func(context.Context) domain.NavigationResult
}

// taskQueue is the session's single-threaded task queue.
// depth counts nested operations; only the outermost one drains.
type taskQueue struct {
	tasks []task
	depth int
}

func (q *taskQueue) push(t task) {
	q.tasks = append(q.tasks, t)
}

func (q *taskQueue) pop() (task, bool) {
	if len(q.tasks) == 0 {
		return task{}, false
	}
	t := q.tasks[0]
	q.tasks = q.tasks[1:]
	return t, true
}

func (q *taskQueue) len() int {
	return len(q.tasks)
}

func (q *taskQueue) clear() {
	q.tasks = nil
}

// begin opens a logical turn.
func (c *Controller) begin() error {
	if c.closed {
		return domain.ErrSessionClosed
	}
	c.queue.depth++
	return nil
}

// end closes a logical turn. When queued work ran, res reports where that work left the
// session: its outcome, state and available steps. From stays the operation's own origin.
func (c *Controller) end(ctx context.Context, res domain.NavigationResult) domain.NavigationResult {
	if last, ran := c.finish(ctx); ran {
		res.Outcome = last.Outcome
		res.State = c.state
		res.StepID = c.state.StepID
		res.Steps = domain.IDs(c.AvailableSteps())
	}
	return res
}

// finish closes a logical turn. When it is the outermost one, queued tasks run in order,
// including tasks queued by hooks while draining. It returns the last task's result.
func (c *Controller) finish(ctx context.Context) (domain.NavigationResult, bool) {
	c.queue.depth--
	if c.queue.depth > 0 || c.queue.len() == 0 {
		return domain.NavigationResult{}, false
	}

	c.queue.depth++
	defer func() { c.queue.depth-- }()

	var last domain.NavigationResult
	ran := false
	for !c.closed {
		t, ok := c.queue.pop()
		if !ok {
			break
		}
		c.logger.Debug("running deferred task", "task", t.name)
		last = t.run(ctx)
		ran = true
	}
	return last, ran
}
