package session

import "context"

// Outcome is how an asynchronous transition ended.
type Outcome struct {
	// Err is nil on success. For a failed question the error turn has already
	// been appended; Err is still set so callers can report it.
	Err error
	// Discarded means the result arrived after its session was replaced
	// and was dropped without touching state.
	Discarded bool
}

// Task is a pending network-backed transition. It always resolves exactly once.
type Task struct {
	done    chan struct{}
	outcome Outcome
}

func newTask() *Task {
	return &Task{done: make(chan struct{})}
}

// Done is closed once the outcome has been applied or discarded.
func (t *Task) Done() <-chan struct{} {
	return t.done
}

// Wait blocks until the task resolves or ctx is done. Giving up on the wait
// does not cancel the task.
func (t *Task) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-t.done:
		return t.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}

func (t *Task) resolve(o Outcome) {
	t.outcome = o
	close(t.done)
}
