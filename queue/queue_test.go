package queue

import (
	"testing"

	"github.com/kylelemons/godebug/pretty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type node struct {
	val  int
	link Link[node]
}

func nodeLink(n *node) *Link[node] { return &n.link }

func collect(h *Head[node]) []int {
	var out []int
	it := h.Iter(nodeLink)
	for n, ok := it.Next(); ok; n, ok = it.Next() {
		out = append(out, n.val)
	}
	return out
}

func TestInsertTailOrdersFrontToBack(t *testing.T) {
	var h Head[node]
	a, b, c := &node{val: 1}, &node{val: 2}, &node{val: 3}

	h.InsertTail(a, nodeLink)
	h.InsertTail(b, nodeLink)
	h.InsertTail(c, nodeLink)

	assert.Equal(t, []int{1, 2, 3}, collect(&h))
	assert.Equal(t, a, h.Front())
	assert.Equal(t, c, h.Back())
}

func TestInsertFrontReversesOrder(t *testing.T) {
	var h Head[node]
	a, b, c := &node{val: 1}, &node{val: 2}, &node{val: 3}

	h.InsertFront(a, nodeLink)
	h.InsertFront(b, nodeLink)
	h.InsertFront(c, nodeLink)

	assert.Equal(t, []int{3, 2, 1}, collect(&h))
}

func TestInsertIdempotentWhenAlreadyQueued(t *testing.T) {
	var h Head[node]
	a, b := &node{val: 1}, &node{val: 2}

	h.InsertTail(a, nodeLink)
	h.InsertTail(b, nodeLink)
	before := collect(&h)

	// Re-inserting an already-queued element must be a no-op.
	h.InsertTail(a, nodeLink)
	h.InsertFront(a, nodeLink)

	assert.Equal(t, before, collect(&h))
}

func TestInsertThenRemoveRestoresShape(t *testing.T) {
	var h Head[node]
	a, b, c := &node{val: 1}, &node{val: 2}, &node{val: 3}

	h.InsertTail(a, nodeLink)
	h.InsertTail(b, nodeLink)
	h.InsertTail(c, nodeLink)

	snapshot := pretty.Sprint(collect(&h))

	h.InsertTail(&node{val: 99}, nodeLink) // will be removed below
	last := h.Back()
	h.Remove(last, nodeLink)

	require.False(t, nodeLink(last).InQueue())
	assert.Equal(t, snapshot, pretty.Sprint(collect(&h)))
}

func TestRemoveIdempotentWhenNotQueued(t *testing.T) {
	var h Head[node]
	a := &node{val: 1}

	h.Remove(a, nodeLink) // not in any queue: no-op, must not panic
	assert.False(t, nodeLink(a).InQueue())

	h.InsertTail(a, nodeLink)
	h.Remove(a, nodeLink)
	h.Remove(a, nodeLink) // second removal: still a no-op

	assert.Nil(t, h.Front())
	assert.Nil(t, h.Back())
}

func TestInsertAfterAndBefore(t *testing.T) {
	var h Head[node]
	a, b, c := &node{val: 1}, &node{val: 2}, &node{val: 3}

	h.InsertTail(a, nodeLink)
	h.InsertTail(c, nodeLink)
	h.InsertAfter(a, b, nodeLink)

	assert.Equal(t, []int{1, 2, 3}, collect(&h))

	d := &node{val: 0}
	h.InsertBefore(a, d, nodeLink)
	assert.Equal(t, []int{0, 1, 2, 3}, collect(&h))
	assert.Equal(t, d, h.Front())
}

func TestRemoveFromMiddleRelinksNeighbors(t *testing.T) {
	var h Head[node]
	a, b, c := &node{val: 1}, &node{val: 2}, &node{val: 3}
	h.InsertTail(a, nodeLink)
	h.InsertTail(b, nodeLink)
	h.InsertTail(c, nodeLink)

	h.Remove(b, nodeLink)

	assert.Equal(t, []int{1, 3}, collect(&h))
	assert.Equal(t, c, nodeLink(a).Next())
	assert.Equal(t, a, nodeLink(c).Prev())
}

// elementWithTwoLinks exercises one struct participating in two
// independent queues simultaneously via distinct link slots.
type elementWithTwoLinks struct {
	val   int
	linkA Link[elementWithTwoLinks]
	linkB Link[elementWithTwoLinks]
}

func TestElementInTwoQueuesAtOnce(t *testing.T) {
	linkA := func(e *elementWithTwoLinks) *Link[elementWithTwoLinks] { return &e.linkA }
	linkB := func(e *elementWithTwoLinks) *Link[elementWithTwoLinks] { return &e.linkB }

	var qa, qb Head[elementWithTwoLinks]
	e := &elementWithTwoLinks{val: 42}

	qa.InsertTail(e, linkA)
	qb.InsertTail(e, linkB)

	assert.True(t, linkA(e).InQueue())
	assert.True(t, linkB(e).InQueue())

	qa.Remove(e, linkA)

	assert.False(t, linkA(e).InQueue())
	assert.True(t, linkB(e).InQueue())
}
