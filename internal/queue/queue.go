package queue

// Queue is a coalescing FIFO of Items. The zero value is ready to use.
//
// It is not safe for concurrent use; callers (the owning Subscription) are
// expected to serialize access, the same way the Subscription itself
// assumes a single logical thread of execution.
type Queue struct {
	items []Item
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{}
}

// Len reports the number of pending items.
func (q *Queue) Len() int {
	return len(q.items)
}

// PeekAction returns the action of the head item, or false if the queue is
// empty.
func (q *Queue) PeekAction() (Action, bool) {
	if len(q.items) == 0 {
		return ActionUnspecified, false
	}
	return q.items[0].Action, true
}

// Enqueue appends item after applying the coalescing rules against the
// current tail, repeating until no further rule applies (a fixed point).
// The fixed point is reached iteratively rather than by recursive calls;
// the queue is never more than a handful of items long in practice.
func (q *Queue) Enqueue(item Item) error {
	if !item.Action.valid() {
		return ErrInvalidAction
	}

	for len(q.items) > 0 {
		tail := q.items[len(q.items)-1]

		switch {
		case tail.Action == item.Action && item.Action != ActionModifyPatch:
			// Same action (and not a patch): drop the new item. For
			// UNSUBSCRIBE, a forced request anywhere in the merge wins.
			if item.Action == ActionUnsubscribe {
				q.items[len(q.items)-1].Args.Force = tail.Args.Force || item.Args.Force
			}
			return nil

		case tail.Action == ActionUnsubscribe && !tail.Args.Force && item.Action == ActionSubscribe:
			// An unforced unsubscribe followed by a subscribe collapses:
			// the unsubscribe becomes moot.
			q.items = q.items[:len(q.items)-1]

		case tail.Action == ActionSubscribe &&
			(item.Action == ActionUnsubscribe || item.Action == ActionUnsubscribeByTagPending):
			// A queued subscribe is superseded by a terminal unsubscribe.
			q.items = q.items[:len(q.items)-1]

		case tail.Action == ActionModifyPatch &&
			((item.Action == ActionUnsubscribe && item.Args.Force) || item.Action == ActionUnsubscribeByTagPending):
			// A queued patch is abandoned in favor of a forced/tag unsubscribe.
			q.items = q.items[:len(q.items)-1]

		case tail.Action == ActionUnsubscribe && item.Action == ActionUnsubscribeByTagPending:
			// Any pending unsubscribe gives way to the tag-pending terminal.
			q.items = q.items[:len(q.items)-1]

		default:
			q.items = append(q.items, item)
			return nil
		}
	}

	q.items = append(q.items, item)
	return nil
}

// Dequeue removes and returns the head item. If the remaining queue
// contains an UNSUBSCRIBE or UNSUBSCRIBE_BY_TAG_PENDING item, it skips
// forward to the last such item, discarding everything strictly before it
// — there is no point doing obsolete work ahead of an unsubscribe that is
// already queued.
func (q *Queue) Dequeue() (Item, bool) {
	if len(q.items) == 0 {
		return Item{}, false
	}

	head := q.items[0]
	q.items = q.items[1:]

	lastTerminal := -1
	for i, it := range q.items {
		if it.Action == ActionUnsubscribe || it.Action == ActionUnsubscribeByTagPending {
			lastTerminal = i
		}
	}
	if lastTerminal > 0 {
		q.items = q.items[lastTerminal:]
	}

	return head, true
}

// ClearPatches is invoked at the moment of an actual subscribe: any queued
// SUBSCRIBE or MODIFY_PATCH items are now redundant. It retains the first
// item that is neither of those (if any) and drops everything else.
//
// After ClearPatches, the queue contains at most one item, and that item is
// never SUBSCRIBE or MODIFY_PATCH — a defensive invariant maintained even
// though the branch retaining that surviving item is rarely exercised.
func (q *Queue) ClearPatches() {
	for _, it := range q.items {
		if it.Action != ActionSubscribe && it.Action != ActionModifyPatch {
			q.items = []Item{it}
			return
		}
	}
	q.items = nil
}

// Reset empties the queue.
func (q *Queue) Reset() {
	q.items = nil
}

// Items returns a copy of the pending items, for diagnostics/tests.
func (q *Queue) Items() []Item {
	out := make([]Item, len(q.items))
	copy(out, q.items)
	return out
}
