package engine

// Group is one laid-down card group. Kind records the requirement the group
// was matched against, so later hit validation never has to guess whether a
// same-color run was meant as a run or a color group. Groups decoded from
// records that predate the Kind field carry KindUnknown and fall back to
// InferGroupKind.
type Group struct {
	Kind  GroupKind `json:"kind"`
	Cards []Card    `json:"cards"`
}

// matcher holds the backtracking state for one MatchPhase call. The candidate
// cards live in a fixed pool and group membership is tracked with a uint64
// bitmask, so combination enumeration never copies card slices.
type matcher struct {
	pool  []Card
	units []Requirement // quantity-normalized: every entry has Quantity 1
	masks []uint64      // chosen pool mask per unit, filled on success
	buf   [64]Card      // scratch for validity checks
	fail  int           // deepest unit index that could not be completed
}

// MatchPhase decides whether cards can be partitioned into groups satisfying
// the phase's requirements, and returns a concrete grouping if so.
//
// The search is exhaustive backtracking: requirements are normalized to one
// group at a time (a requirement of quantity q becomes q unit requirements in
// order), then for the head unit every size-k combination of the remaining
// pool is tried and the first combination whose recursive continuation
// succeeds is committed. Worst case this enumerates C(n,k) combinations per
// level, which is acceptable because a lay-down never exceeds ~15 cards;
// candidate sets above 64 cards are rejected outright.
func MatchPhase(cards []Card, phase Phase) ([]Group, error) {
	want := phase.CardCount()
	if len(cards) != want {
		return nil, &CountError{Got: len(cards), Want: want}
	}
	if len(cards) > 64 {
		return nil, ErrTooManyCards
	}

	m := &matcher{pool: cards}
	for _, r := range phase {
		for q := uint8(0); q < r.Quantity; q++ {
			m.units = append(m.units, Requirement{Kind: r.Kind, Size: r.Size, Quantity: 1})
		}
	}
	m.masks = make([]uint64, len(m.units))

	if !m.solve(0, 0) {
		return nil, &MatchError{ReqIndex: m.fail, Requirement: m.units[m.fail]}
	}

	groups := make([]Group, len(m.units))
	for i, mask := range m.masks {
		g := Group{Kind: m.units[i].Kind}
		for idx := 0; idx < len(m.pool); idx++ {
			if mask&(1<<idx) != 0 {
				g.Cards = append(g.Cards, m.pool[idx])
			}
		}
		groups[i] = g
	}
	return groups, nil
}

// solve assigns pool cards to units[ri:]. used marks cards already committed
// to earlier units.
func (m *matcher) solve(ri int, used uint64) bool {
	if ri == len(m.units) {
		return true
	}
	if ri > m.fail {
		m.fail = ri
	}
	return m.choose(ri, used, 0, 0, 0)
}

// choose enumerates size-k combinations of unused pool indices in
// lexicographic order, testing each against the unit requirement and the
// recursive continuation. First success wins.
func (m *matcher) choose(ri int, used uint64, start, picked int, mask uint64) bool {
	k := int(m.units[ri].Size)
	if picked == k {
		n := 0
		for idx := 0; idx < len(m.pool); idx++ {
			if mask&(1<<idx) != 0 {
				m.buf[n] = m.pool[idx]
				n++
			}
		}
		if !isValidGroup(m.buf[:n], m.units[ri].Kind) {
			return false
		}
		if m.solve(ri+1, used|mask) {
			m.masks[ri] = mask
			return true
		}
		return false
	}
	for i := start; i <= len(m.pool)-(k-picked); i++ {
		if used&(1<<i) != 0 {
			continue
		}
		if m.choose(ri, used, i+1, picked+1, mask|1<<i) {
			return true
		}
	}
	return false
}

// isValidGroup reports whether cards form a valid group of the given kind.
// The group size is len(cards); the matcher only calls this with combinations
// of exactly the requirement's size.
func isValidGroup(cards []Card, kind GroupKind) bool {
	var (
		wilds   int
		nonwild [64]Card
		n       int
	)
	for _, c := range cards {
		switch {
		case c.IsSkip():
			// Skips are never valid in any group.
			return false
		case c.IsWild():
			wilds++
		default:
			nonwild[n] = c
			n++
		}
	}

	switch kind {
	case KindSet:
		for i := 1; i < n; i++ {
			if nonwild[i].Rank() != nonwild[0].Rank() {
				return false
			}
		}
		return true

	case KindColor:
		for i := 1; i < n; i++ {
			if nonwild[i].Color() != nonwild[0].Color() {
				return false
			}
		}
		return true

	case KindRun:
		target := len(cards)
		if target > MaxRank {
			return false
		}
		if n == 0 {
			return true
		}
		var seen uint16
		min, max := nonwild[0].Rank(), nonwild[0].Rank()
		for i := 0; i < n; i++ {
			r := nonwild[i].Rank()
			if seen&(1<<r) != 0 {
				return false // duplicate rank cannot appear in a run
			}
			seen |= 1 << r
			if r < min {
				min = r
			}
			if r > max {
				max = r
			}
		}
		span := int(max-min) + 1
		if span > target {
			return false
		}
		gaps := span - n
		extra := target - span
		return gaps <= wilds && gaps+extra <= wilds

	default:
		return false
	}
}

// InferGroupKind infers the semantic type of an already-formed group whose
// originating requirement was not recorded. Priority order:
//
//  1. all-wild → set
//  2. non-wild ranks all equal → set
//  3. non-wild colors all equal → run if the ranks are also contiguous
//     (wild-fillable), otherwise color
//  4. ranks form a contiguous or wild-fillable sequence → run
//  5. otherwise undecidable
//
// A group that is simultaneously a valid same-color run and a valid color
// group resolves to run by this order. Groups laid down by this engine carry
// their kind explicitly (Group.Kind), so this is only consulted as a
// fallback.
func InferGroupKind(cards []Card) (GroupKind, bool) {
	var nonwild []Card
	for _, c := range cards {
		if c.IsSkip() {
			return KindUnknown, false
		}
		if !c.IsWild() {
			nonwild = append(nonwild, c)
		}
	}
	if len(nonwild) == 0 {
		return KindSet, true
	}

	sameRank := true
	sameColor := true
	for _, c := range nonwild[1:] {
		if c.Rank() != nonwild[0].Rank() {
			sameRank = false
		}
		if c.Color() != nonwild[0].Color() {
			sameColor = false
		}
	}
	if sameRank {
		return KindSet, true
	}
	if sameColor {
		if isValidGroup(cards, KindRun) {
			return KindRun, true
		}
		return KindColor, true
	}
	if isValidGroup(cards, KindRun) {
		return KindRun, true
	}
	return KindUnknown, false
}

// runBounds returns the occupied rank span [lo, hi] of a valid run group.
// Wilds beyond the internal gaps are anchored to the high end first, shifting
// down only when rank 12 is reached. (The exact placement of surplus wilds is
// not observable at lay-down time; this convention fixes it for extension
// checks.)
func runBounds(cards []Card) (lo, hi uint8) {
	wilds := 0
	var min, max uint8
	n := 0
	for _, c := range cards {
		if c.IsWild() {
			wilds++
			continue
		}
		r := c.Rank()
		if n == 0 || r < min {
			min = r
		}
		if n == 0 || r > max {
			max = r
		}
		n++
	}
	if n == 0 {
		return 1, uint8(len(cards))
	}
	extras := len(cards) - (int(max-min) + 1)
	up := extras
	if up > int(MaxRank-max) {
		up = int(MaxRank - max)
	}
	hi = max + uint8(up)
	lo = min - uint8(extras-up)
	return lo, hi
}

// CanExtend reports whether a single card may legally extend an
// already-formed group of the given kind. Skip cards never extend; wild
// cards always do.
func CanExtend(card Card, group []Card, kind GroupKind) bool {
	if card.IsSkip() {
		return false
	}
	if card.IsWild() {
		return true
	}

	var nonwild []Card
	for _, c := range group {
		if !c.IsWild() && !c.IsSkip() {
			nonwild = append(nonwild, c)
		}
	}

	switch kind {
	case KindSet:
		if len(nonwild) == 0 {
			return true
		}
		return card.Rank() == nonwild[0].Rank()

	case KindColor:
		if len(nonwild) == 0 {
			return true
		}
		return card.Color() == nonwild[0].Color()

	case KindRun:
		lo, hi := runBounds(group)
		if lo > 1 && card.Rank() == lo-1 {
			return true
		}
		if hi < MaxRank && card.Rank() == hi+1 {
			return true
		}
		return false

	default:
		return false
	}
}
