package deque_test

import (
	"slices"
	"testing"

	"github.com/zephyrtronium/playbot/deque"
)

func TestQueue(t *testing.T) {
	cases := []struct {
		name string
		// ops is a sequence of appends (positive) and pops (zero).
		ops  []int
		pops []int
		want []int
	}{
		{
			name: "empty",
			ops:  nil,
			pops: nil,
			want: nil,
		},
		{
			name: "append",
			ops:  []int{1, 2},
			pops: nil,
			want: []int{1, 2},
		},
		{
			name: "pop",
			ops:  []int{1, 2, 0},
			pops: []int{1},
			want: []int{2},
		},
		{
			name: "drain",
			ops:  []int{1, 2, 0, 0, 0},
			pops: []int{1, 2},
			want: nil,
		},
		{
			name: "interleaved",
			ops:  []int{1, 2, 0, 3, 0, 4, 5, 0},
			pops: []int{1, 2, 3},
			want: []int{4, 5},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			t.Parallel()
			var q deque.Queue[int]
			invariants := func() {
				if q.Len() != len(q.Slice()) {
					t.Errorf("lens disagree: q.Len gave %d, len(q.Slice) gave %d", q.Len(), len(q.Slice()))
				}
			}
			var pops []int
			for _, op := range c.ops {
				if op != 0 {
					q = q.Append(op)
					invariants()
					continue
				}
				var e int
				var ok bool
				e, q, ok = q.PopFront()
				invariants()
				if ok {
					pops = append(pops, e)
				}
			}
			if !slices.Equal(pops, c.pops) {
				t.Errorf("wrong pops: want %v, got %v", c.pops, pops)
			}
			if !slices.Equal(q.Slice(), c.want) {
				t.Errorf("wrong result: want %v, got %v", c.want, q.Slice())
			}
		})
	}
}

func TestQueueFIFO(t *testing.T) {
	var q deque.Queue[int]
	next := 0
	for i := range 1000 {
		q = q.Append(i)
		if i%3 == 0 {
			var e int
			var ok bool
			e, q, ok = q.PopFront()
			if !ok || e != next {
				t.Fatalf("wrong pop at %d: want %d, got %d (%t)", i, next, e, ok)
			}
			next++
		}
	}
	for {
		e, r, ok := q.PopFront()
		q = r
		if !ok {
			break
		}
		if e != next {
			t.Fatalf("wrong pop: want %d, got %d", next, e)
		}
		next++
	}
	if next != 1000 {
		t.Errorf("lost elements: only got %d", next)
	}
}
