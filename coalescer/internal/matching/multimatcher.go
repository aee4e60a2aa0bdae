package matching

import "fmt"

// TieBreak selects among granularities that merge the same number of
// requests.
type TieBreak int

// Tie-break policies. The zero value prefers the coarsest granularity, which
// moves the most bytes per transaction.
const (
	PreferCoarsest TieBreak = iota
	PreferFinest
)

func (t TieBreak) String() string {
	switch t {
	case PreferFinest:
		return "finest"
	case PreferCoarsest:
		return "coarsest"
	default:
		return fmt.Sprintf("TieBreak(%d)", int(t))
	}
}

// ParseTieBreak converts "finest" or "coarsest" to a TieBreak.
func ParseTieBreak(s string) (TieBreak, error) {
	switch s {
	case "finest":
		return PreferFinest, nil
	case "coarsest":
		return PreferCoarsest, nil
	default:
		return 0, fmt.Errorf("unknown tie-break policy %q", s)
	}
}

// MultiMatcher runs one Matcher per granularity and keeps the decision that
// merges the most requests.
type MultiMatcher struct {
	Matchers []Matcher
	TieBreak TieBreak
}

// NewMultiMatcher creates matchers for each granularity, given as log2 block
// sizes.
func NewMultiMatcher(
	granularities []uint8,
	maxPerLane, minMerge int,
	tieBreak TieBreak,
) MultiMatcher {
	mm := MultiMatcher{TieBreak: tieBreak}

	for _, g := range granularities {
		mm.Matchers = append(mm.Matchers, Matcher{
			Granularity: g,
			MaxPerLane:  maxPerLane,
			MinMerge:    minMerge,
		})
	}

	return mm
}

// Decide evaluates every granularity on the same snapshot.
func (mm MultiMatcher) Decide(windows []LaneWindow) Decision {
	best := Decision{}

	for _, m := range mm.Matchers {
		d := m.Decide(windows)
		if !d.Found {
			continue
		}

		if !best.Found || mm.better(d, best) {
			best = d
		}
	}

	return best
}

func (mm MultiMatcher) better(d, than Decision) bool {
	if d.NumReqs != than.NumReqs {
		return d.NumReqs > than.NumReqs
	}

	if mm.TieBreak == PreferCoarsest {
		return d.Granularity > than.Granularity
	}

	return d.Granularity < than.Granularity
}
