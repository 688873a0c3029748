// Package deque provides a slice-backed first-in first-out queue.
package deque

// Queue is a slice-backed FIFO queue.
// The zero value is an empty queue ready to use.
type Queue[Elem any] struct {
	el []Elem
	// left is the position of the first valid element in el.
	// left >= len(el) implies the queue is empty.
	left int
}

// Len returns the number of elements in the queue.
func (q Queue[Elem]) Len() int {
	return len(q.el) - q.left
}

// Append adds elements to the end of the queue.
func (q Queue[Elem]) Append(ee ...Elem) Queue[Elem] {
	if q.left > 0 && q.left >= len(q.el)/2 && len(q.el)+len(ee) > cap(q.el) {
		// Slide live elements down instead of growing.
		n := copy(q.el, q.el[q.left:])
		clear(q.el[n:])
		q.el = q.el[:n]
		q.left = 0
	}
	q.el = append(q.el, ee...)
	return q
}

// PopFront removes the first element of the queue.
// If the queue is empty, ok is false.
func (q Queue[Elem]) PopFront() (e Elem, r Queue[Elem], ok bool) {
	if q.left >= len(q.el) {
		return e, q.Reset(), false
	}
	e = q.el[q.left]
	var zero Elem
	q.el[q.left] = zero
	q.left++
	if q.left >= len(q.el) {
		q = q.Reset()
	}
	return e, q, true
}

// Reset removes all elements from the queue, retaining its memory.
func (q Queue[Elem]) Reset() Queue[Elem] {
	clear(q.el)
	q.el = q.el[:0]
	q.left = 0
	return q
}

// Slice returns a view into the queue's memory in FIFO order.
func (q Queue[Elem]) Slice() []Elem {
	return q.el[q.left:]
}
