package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"iter"
)

// ErrMalformed is returned when a persisted conversation cannot be decoded.
var ErrMalformed = errors.New("malformed conversation")

// Log is an ordered, append-only sequence of turns. A Log is not safe for
// concurrent use; its owner serialises access.
type Log struct {
	turns []Turn
}

// NewLog returns a log holding the given turns in order.
func NewLog(turns ...Turn) *Log {
	l := &Log{}
	for _, t := range turns {
		l.Append(t)
	}
	return l
}

// Append adds t at the end of the log.
func (l *Log) Append(t Turn) {
	l.turns = append(l.turns, t.clone())
}

// All yields the turns in insertion order. The sequence can be ranged over
// any number of times and reflects the log at the moment All was called.
func (l *Log) All() iter.Seq[Turn] {
	turns := l.view()
	return func(yield func(Turn) bool) {
		for _, t := range turns {
			if !yield(t.clone()) {
				return
			}
		}
	}
}

// Len returns the number of turns.
func (l *Log) Len() int {
	return len(l.turns)
}

// Snapshot returns a log that later appends to l never affect.
func (l *Log) Snapshot() *Log {
	return &Log{turns: l.view()}
}

// Turns collects the log into a slice.
func (l *Log) Turns() []Turn {
	out := make([]Turn, 0, len(l.turns))
	for t := range l.All() {
		out = append(out, t)
	}
	return out
}

// Contains reports whether a turn carrying the pending marker id is present.
func (l *Log) Contains(id string) bool {
	if id == "" {
		return false
	}
	for _, t := range l.turns {
		if t.ID == id {
			return true
		}
	}
	return false
}

// view caps the backing array so an append on either side reallocates
// instead of writing into memory the other side can see.
func (l *Log) view() []Turn {
	n := len(l.turns)
	return l.turns[:n:n]
}

// Encode renders the log as a JSON array of turns.
func Encode(l *Log) (string, error) {
	turns := l.view()
	if turns == nil {
		turns = []Turn{}
	}
	data, err := json.Marshal(turns)
	if err != nil {
		return "", fmt.Errorf("failed to marshal conversation: %w", err)
	}
	return string(data), nil
}

// Decode parses a log produced by Encode.
func Decode(data string) (*Log, error) {
	var turns []Turn
	if err := json.Unmarshal([]byte(data), &turns); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	for i, t := range turns {
		if !t.Role.Valid() {
			return nil, fmt.Errorf("%w: turn %d has unknown type %q", ErrMalformed, i, t.Role)
		}
	}
	return &Log{turns: turns}, nil
}
