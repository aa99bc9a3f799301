package audio

import (
	"github.com/go-faster/errors"

	"github.com/danhigham/vkplay/internal/domain"
)

// ErrNoSuchItem is returned when a cursor move or removal targets an index
// outside the queue.
var ErrNoSuchItem = errors.New("no such item")

// Queue is an ordered list of items with an optional cursor. The cursor
// follows the identity of the current item when items before it are removed.
type Queue struct {
	items  []domain.AudioItem
	cursor int // -1 when nothing is current
}

func NewQueue() *Queue {
	return &Queue{cursor: -1}
}

func (q *Queue) Len() int { return len(q.items) }

func (q *Queue) Items() []domain.AudioItem {
	out := make([]domain.AudioItem, len(q.items))
	copy(out, q.items)
	return out
}

// Cursor returns the current index and whether there is one.
func (q *Queue) Cursor() (int, bool) {
	return q.cursor, q.cursor >= 0
}

func (q *Queue) Current() (domain.AudioItem, bool) {
	if q.cursor < 0 {
		return domain.AudioItem{}, false
	}
	return q.items[q.cursor], true
}

// Replace drops all items and loads items with no cursor.
func (q *Queue) Replace(items []domain.AudioItem) {
	q.items = append([]domain.AudioItem(nil), items...)
	q.cursor = -1
}

// Append adds items to the tail; the cursor is unchanged.
func (q *Queue) Append(items []domain.AudioItem) {
	q.items = append(q.items, items...)
}

func (q *Queue) Clear() {
	q.items = nil
	q.cursor = -1
}

func (q *Queue) Select(i int) error {
	if i < 0 || i >= len(q.items) {
		return errors.Wrapf(ErrNoSuchItem, "index %d of %d", i, len(q.items))
	}
	q.cursor = i
	return nil
}

// Next moves to the following item, or to the first one when nothing is current.
func (q *Queue) Next() error {
	return q.Select(q.cursor + 1)
}

func (q *Queue) Previous() error {
	if q.cursor < 0 {
		return errors.Wrap(ErrNoSuchItem, "no current item")
	}
	return q.Select(q.cursor - 1)
}

// RemoveRange removes items[from:to]. It reports whether the current item
// was among them, in which case the cursor is cleared.
func (q *Queue) RemoveRange(from, to int) (bool, error) {
	if from < 0 || to > len(q.items) || from >= to {
		return false, errors.Wrapf(ErrNoSuchItem, "range [%d, %d) of %d", from, to, len(q.items))
	}
	removedCurrent := false
	switch {
	case q.cursor >= to:
		q.cursor -= to - from
	case q.cursor >= from:
		q.cursor = -1
		removedCurrent = true
	}
	q.items = append(q.items[:from], q.items[to:]...)
	return removedCurrent, nil
}

// Sync replaces the items with a new snapshot, keeping the cursor on the
// current item if the snapshot still contains it. It reports whether it did.
func (q *Queue) Sync(items []domain.AudioItem) bool {
	cur, ok := q.Current()
	q.Replace(items)
	if !ok {
		return false
	}
	for i, it := range q.items {
		if it.Key() == cur.Key() {
			q.cursor = i
			return true
		}
	}
	return false
}
