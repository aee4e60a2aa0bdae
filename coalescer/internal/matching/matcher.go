// Package matching decides which lane requests merge into one downstream
// transaction. Decisions are pure functions of a snapshot of the lane
// windows.
package matching

// Request is the part of a queued lane request that matching looks at.
type Request struct {
	Valid    bool
	Write    bool
	Address  uint64
	SizeLog2 uint8

	// Mask marks the bytes a write touches. A nil mask touches every byte.
	Mask []bool
}

// LaneWindow lists the queued requests of one lane, head first.
type LaneWindow []Request

// Decision is the outcome of one matching step.
type Decision struct {
	Found       bool
	Write       bool
	Granularity uint8
	Leader      int
	Base        uint64
	NumReqs     int

	// Taken holds, per lane, how many requests from the head of the window
	// the merge consumes.
	Taken []int
}

// Lanes returns the bitmask of the lanes that contribute to the merge.
func (d Decision) Lanes() uint64 {
	var mask uint64

	for lane, n := range d.Taken {
		if n > 0 {
			mask |= 1 << uint(lane)
		}
	}

	return mask
}

// InvalidationMask returns the window positions of a lane the merge
// consumes.
func (d Decision) InvalidationMask(lane int) uint64 {
	if lane >= len(d.Taken) {
		return 0
	}

	return 1<<uint(d.Taken[lane]) - 1
}

// Matcher finds merges at one granularity.
type Matcher struct {
	// Granularity is the log2 of the merged block size.
	Granularity uint8

	// MaxPerLane is the largest number of requests one lane can contribute.
	MaxPerLane int

	// MinMerge is the smallest number of requests worth merging.
	MinMerge int
}

// Decide tries every lane with a valid head as the leader and returns the
// candidate that merges the most requests. Ties go to the lowest lane.
func (m Matcher) Decide(windows []LaneWindow) Decision {
	best := Decision{}

	for leader := range windows {
		d := m.tryLeader(windows, leader)
		if d.NumReqs > best.NumReqs {
			best = d
		}
	}

	if best.NumReqs < m.minMerge() {
		return Decision{}
	}

	best.Found = true

	return best
}

func (m Matcher) minMerge() int {
	if m.MinMerge < 2 {
		return 2
	}

	return m.MinMerge
}

func (m Matcher) tryLeader(windows []LaneWindow, leader int) Decision {
	if len(windows[leader]) == 0 {
		return Decision{}
	}

	head := windows[leader][0]
	if !head.Valid || !m.fits(head) {
		return Decision{}
	}

	g := &group{
		write: head.Write,
		base:  head.Address >> m.Granularity << m.Granularity,
		size:  1 << m.Granularity,
	}
	if g.write {
		g.claimed = make([]bool, g.size)
	}

	d := Decision{
		Write:       head.Write,
		Granularity: m.Granularity,
		Leader:      leader,
		Base:        g.base,
		Taken:       make([]int, len(windows)),
	}

	d.Taken[leader] = m.takePrefix(g, windows[leader])
	d.NumReqs += d.Taken[leader]

	for lane := range windows {
		if lane == leader {
			continue
		}

		d.Taken[lane] = m.takePrefix(g, windows[lane])
		d.NumReqs += d.Taken[lane]
	}

	return d
}

func (m Matcher) takePrefix(g *group, window LaneWindow) int {
	n := 0

	for _, r := range window {
		if n >= m.MaxPerLane {
			break
		}

		if !m.compatible(g, r) {
			break
		}

		g.claim(r)
		n++
	}

	return n
}

// fits tells if a request lies inside one aligned block of the granularity.
func (m Matcher) fits(r Request) bool {
	if r.SizeLog2 > m.Granularity {
		return false
	}

	size := uint64(1) << r.SizeLog2

	return r.Address&(size-1) == 0
}

func (m Matcher) compatible(g *group, r Request) bool {
	if !r.Valid || r.Write != g.write || !m.fits(r) {
		return false
	}

	if r.Address>>m.Granularity<<m.Granularity != g.base {
		return false
	}

	return !g.write || !g.overlaps(r)
}

type group struct {
	write   bool
	base    uint64
	size    uint64
	claimed []bool
}

func (g *group) touched(r Request, i uint64) bool {
	return r.Mask == nil || r.Mask[i]
}

func (g *group) overlaps(r Request) bool {
	offset := r.Address - g.base
	size := uint64(1) << r.SizeLog2

	for i := uint64(0); i < size; i++ {
		if g.touched(r, i) && g.claimed[offset+i] {
			return true
		}
	}

	return false
}

func (g *group) claim(r Request) {
	if !g.write {
		return
	}

	offset := r.Address - g.base
	size := uint64(1) << r.SizeLog2

	for i := uint64(0); i < size; i++ {
		if g.touched(r, i) {
			g.claimed[offset+i] = true
		}
	}
}
