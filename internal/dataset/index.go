package dataset

import (
	"container/heap"
	"context"
	"math"
	"sort"

	"netfinder/internal/model"
)

// Index answers narrowest-containing-range queries over an immutable set of
// ranges. Overlapping ranges are flattened at build time into disjoint
// segments, each labelled with the narrowest range covering it, so a lookup
// is a single binary search and needs no locking.
type Index struct {
	ranges   []model.NetworkRange
	segments []segment
}

type segment struct {
	start uint64
	end   uint64
	label int
}

func NewIndex(ranges []model.NetworkRange) *Index {
	idx := &Index{
		ranges: append([]model.NetworkRange(nil), ranges...),
	}
	idx.build()
	return idx
}

func (idx *Index) build() {
	if len(idx.ranges) == 0 {
		return
	}

	order := make([]int, len(idx.ranges))
	bounds := make([]uint64, 0, 2*len(idx.ranges))
	for i, r := range idx.ranges {
		order[i] = i
		bounds = append(bounds, r.MinIP)
		if r.MaxIP != math.MaxUint64 {
			bounds = append(bounds, r.MaxIP+1)
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return idx.ranges[order[a]].MinIP < idx.ranges[order[b]].MinIP
	})
	bounds = uniqueSorted(bounds)

	active := &activeRanges{ranges: idx.ranges}
	next := 0
	for k, b := range bounds {
		for next < len(order) && idx.ranges[order[next]].MinIP == b {
			heap.Push(active, order[next])
			next++
		}
		// Entries that ended before b are dropped once they reach the top.
		for active.Len() > 0 && idx.ranges[active.items[0]].MaxIP < b {
			heap.Pop(active)
		}
		if active.Len() == 0 {
			continue
		}

		end := uint64(math.MaxUint64)
		if k+1 < len(bounds) {
			end = bounds[k+1] - 1
		}
		label := active.items[0]

		if n := len(idx.segments); n > 0 && idx.segments[n-1].label == label && idx.segments[n-1].end+1 == b {
			idx.segments[n-1].end = end
			continue
		}
		idx.segments = append(idx.segments, segment{start: b, end: end, label: label})
	}
}

// Find returns the narrowest range containing value. Ties in size go to the
// range with the lowest Seq, then to the earlier position in the input.
func (idx *Index) Find(value uint64) (model.NetworkRange, bool) {
	i := sort.Search(len(idx.segments), func(i int) bool {
		return idx.segments[i].start > value
	}) - 1
	if i < 0 || value > idx.segments[i].end {
		return model.NetworkRange{}, false
	}
	return idx.ranges[idx.segments[i].label], true
}

func (idx *Index) FindRange(_ context.Context, ip uint32) (*model.NetworkRange, error) {
	r, ok := idx.Find(uint64(ip))
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (idx *Index) ConcurrentSafe() bool {
	return true
}

func (idx *Index) Len() int {
	return len(idx.ranges)
}

func (idx *Index) Segments() int {
	return len(idx.segments)
}

func uniqueSorted(values []uint64) []uint64 {
	sort.Slice(values, func(i, j int) bool { return values[i] < values[j] })
	out := values[:0]
	for _, v := range values {
		if len(out) == 0 || out[len(out)-1] != v {
			out = append(out, v)
		}
	}
	return out
}

type activeRanges struct {
	ranges []model.NetworkRange
	items  []int
}

func (a *activeRanges) Len() int { return len(a.items) }

func (a *activeRanges) Less(i, j int) bool {
	ri, rj := a.ranges[a.items[i]], a.ranges[a.items[j]]
	if ri.Size() == rj.Size() && ri.Seq == rj.Seq {
		return a.items[i] < a.items[j]
	}
	return ri.Narrower(rj)
}

func (a *activeRanges) Swap(i, j int) { a.items[i], a.items[j] = a.items[j], a.items[i] }

func (a *activeRanges) Push(x any) { a.items = append(a.items, x.(int)) }

func (a *activeRanges) Pop() any {
	n := len(a.items)
	x := a.items[n-1]
	a.items = a.items[:n-1]
	return x
}
