package paging

// Window is a contiguous run of global indices over a projection, with a
// placeholder wherever no item is loaded. It is what a list renderer needs for
// the rows it is about to draw.
type Window[T any] struct {
	// Start is the global index of the first slot.
	Start int

	// Slots holds one slot per index in [Start, Start+len(Slots)).
	Slots []Slot[T]

	// TotalCount is the listing size known when the window was built.
	TotalCount int
}

// Slot is one row of a Window.
type Slot[T any] struct {
	// Index is the global index of the slot.
	Index int

	// Item is the loaded record, or the zero value for a placeholder.
	Item T

	// Loaded reports whether Item holds a record.
	Loaded bool
}

// LoadedCount returns the number of slots holding an item.
func (w Window[T]) LoadedCount() int {
	n := 0
	for _, s := range w.Slots {
		if s.Loaded {
			n++
		}
	}
	return n
}

// BuildWindow returns the slots for [start, end). When total is positive the
// range is clamped to [0, total); otherwise only the lower bound is clamped.
//
// Example usage:
//
//	w := paging.BuildWindow(p.Items(), first, first+visible, p.TotalCount())
//	for _, s := range w.Slots {
//	    if !s.Loaded {
//	        drawPlaceholder(s.Index)
//	        continue
//	    }
//	    draw(s.Index, s.Item)
//	}
func BuildWindow[T any](items map[int]T, start, end, total int) Window[T] {
	start = max(start, 0)
	if total > 0 {
		end = min(end, total)
	}
	if end < start {
		end = start
	}

	w := Window[T]{
		Start:      start,
		Slots:      make([]Slot[T], 0, end-start),
		TotalCount: total,
	}
	for i := start; i < end; i++ {
		item, ok := items[i]
		w.Slots = append(w.Slots, Slot[T]{Index: i, Item: item, Loaded: ok})
	}
	return w
}
