package trace

import (
	"github.com/emirpasic/gods/trees/binaryheap"
)

type mergeCursor struct {
	events []*Event
	next   int
}

func (c *mergeCursor) head() *Event { return c.events[c.next] }

// Merge combines independently sorted event chunks into one sorted stream.
// The Tracing domain delivers one dataCollected buffer per flush, each
// internally ordered, so a capture session ends holding several sorted
// slices that need interleaving by timestamp. Ties between chunks break
// arbitrarily; ties within a chunk keep their order.
func Merge(chunks ...[]*Event) []*Event {
	total := 0
	heap := binaryheap.NewWith(func(a, b interface{}) int {
		ta, tb := a.(*mergeCursor).head().TS, b.(*mergeCursor).head().TS
		switch {
		case ta < tb:
			return -1
		case ta > tb:
			return 1
		default:
			return 0
		}
	})
	for _, chunk := range chunks {
		if len(chunk) == 0 {
			continue
		}
		total += len(chunk)
		heap.Push(&mergeCursor{events: chunk})
	}

	merged := make([]*Event, 0, total)
	for {
		v, ok := heap.Pop()
		if !ok {
			break
		}
		cursor := v.(*mergeCursor)
		merged = append(merged, cursor.head())
		cursor.next++
		if cursor.next < len(cursor.events) {
			heap.Push(cursor)
		}
	}
	return merged
}
