package paging

// loadCoordinator tracks the pages with a fetch in flight. It is the only
// guard against two concurrent fetches of the same page, and it is not
// safe for concurrent use: the paginator mutex protects it.
type loadCoordinator struct {
	pages map[int]uint64 // page -> epoch that acquired it
	epoch uint64
	gen   uint64 // bumped on every acquire
}

func newLoadCoordinator() *loadCoordinator {
	return &loadCoordinator{pages: make(map[int]uint64)}
}

// acquire marks page as in flight for epoch. It returns false when the page
// is already in flight or epoch has been superseded.
func (c *loadCoordinator) acquire(page int, epoch uint64) bool {
	if epoch != c.epoch {
		return false
	}
	if _, busy := c.pages[page]; busy {
		return false
	}
	c.pages[page] = epoch
	c.gen++
	return true
}

// release removes page if it was acquired in epoch. drained reports that
// this release emptied the set.
func (c *loadCoordinator) release(page int, epoch uint64) (drained bool) {
	owner, ok := c.pages[page]
	if !ok || owner != epoch {
		return false
	}
	delete(c.pages, page)
	return len(c.pages) == 0
}

// clear forgets every in-flight page and starts a new epoch. Releases from
// loads of earlier epochs become no-ops.
func (c *loadCoordinator) clear() uint64 {
	c.pages = make(map[int]uint64)
	c.epoch++
	c.gen++
	return c.epoch
}

func (c *loadCoordinator) inFlight(page int) bool {
	_, ok := c.pages[page]
	return ok
}

func (c *loadCoordinator) idle() bool {
	return len(c.pages) == 0
}
