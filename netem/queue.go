package netem

import "container/heap"

// deliveryQueue is a per-instance min-heap of scheduled entries, keyed
// by deadline. It contains references, not exclusive owners: a
// duplicated datagram may have several entries in the queue at once, all
// sharing one buffer via their dupCounter. Like bufferPool, it is
// touched only by the reactor goroutine and carries no lock.
//
// deliveryQueue implements container/heap.Interface directly — the
// corpus's own event loop times its internal timer heap the same way
// (a container/heap min-heap keyed on deadline), and Go has no
// widely-used third-party priority queue that improves on it for this
// shape of problem.
type deliveryQueue struct {
	items []*scheduled
}

func newDeliveryQueue() *deliveryQueue {
	return &deliveryQueue{}
}

func (q *deliveryQueue) Len() int { return len(q.items) }

func (q *deliveryQueue) Less(i, j int) bool {
	return q.items[i].deadlineMs < q.items[j].deadlineMs
}

func (q *deliveryQueue) Swap(i, j int) {
	q.items[i], q.items[j] = q.items[j], q.items[i]
}

func (q *deliveryQueue) Push(x any) {
	q.items = append(q.items, x.(*scheduled))
}

func (q *deliveryQueue) Pop() any {
	old := q.items
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	q.items = old[:n-1]
	return it
}

// push enqueues an entry in O(log n).
func (q *deliveryQueue) push(e *scheduled) {
	heap.Push(q, e)
}

// peek returns the minimum-deadline entry without removing it, in O(1),
// or nil if the queue is empty.
func (q *deliveryQueue) peek() *scheduled {
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// pop removes and returns the minimum-deadline entry in O(log n). Pop
// panics if the queue is empty; callers must peek first.
func (q *deliveryQueue) pop() *scheduled {
	return heap.Pop(q).(*scheduled)
}

// view returns the queue's current backing slice, for passing to Policy
// as a read-only pending view. Callers must not retain or mutate it
// beyond the Compute call it was built for.
func (q *deliveryQueue) view() []*scheduled {
	return q.items
}
