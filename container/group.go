package container

import (
	"fmt"
	"sync"

	"github.com/pthm-cable/shipyard/damage"
	"github.com/pthm-cable/shipyard/geom"
)

// Ownership tells a Group how much its members can drift behind its back.
type Ownership int

const (
	// SoleOwner means only the group touches its members. Ratios and totals
	// are computed once and cached.
	SoleOwner Ownership = iota
	// QuantitiesCanChange means members' quantities may change externally but
	// their maxes do not. Members are re-equalized before every operation.
	QuantitiesCanChange
	// QuantitiesMaxesCanChange means quantities and maxes may both change.
	// Ratios are recomputed and members re-equalized before every operation.
	QuantitiesMaxesCanChange
)

func (o Ownership) String() string {
	switch o {
	case SoleOwner:
		return "sole_owner"
	case QuantitiesCanChange:
		return "quantities_can_change"
	case QuantitiesMaxesCanChange:
		return "quantities_maxes_can_change"
	}
	return fmt.Sprintf("ownership(%d)", int(o))
}

type member struct {
	res         Reservoir
	witness     damage.Witness
	unsubscribe func()
}

// Group makes several reservoirs act as one. Quantity is spread across live
// members in proportion to their capacity; destroyed members hold nothing.
type Group struct {
	mu sync.Mutex

	ownership Ownership
	members   []member

	// destroyed mirrors the witnesses. It is refreshed only from the damage
	// listener and AddContainer, never read live during an operation.
	destroyed []bool

	// ratios ignore destroyed members (used to spread quantity); ratiosAll
	// include them (used to spread capacity, so a repaired member gets its
	// original share back).
	ratios    []float64
	ratiosAll []float64

	// Cached totals for SoleOwner.
	current float64
	max     float64

	onlyRemoveMultiples bool
	removalMultiple     float64
}

var _ Reservoir = (*Group)(nil)

// NewGroup creates an empty group.
func NewGroup(ownership Ownership) *Group {
	return &Group{ownership: ownership, removalMultiple: 1}
}

// Ownership returns the group's ownership mode.
func (g *Group) Ownership() Ownership {
	return g.ownership
}

// Len returns the number of members.
func (g *Group) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.members)
}

// Members returns the member reservoirs in order.
func (g *Group) Members() []Reservoir {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Reservoir, len(g.members))
	for i, m := range g.members {
		out[i] = m.res
	}
	return out
}

// AddContainer adds res to the group. witness may be nil for reservoirs that
// cannot be destroyed. The member's current quantity joins the group total and
// every member is re-equalized.
func (g *Group) AddContainer(res Reservoir, witness damage.Witness) error {
	if res == nil {
		return fmt.Errorf("container: cannot add nil reservoir")
	}
	if same, ok := res.(*Group); ok && same == g {
		return fmt.Errorf("container: group cannot contain itself")
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.indexOf(res) >= 0 {
		return ErrDuplicateContainer
	}

	m := member{res: res, witness: witness}
	if witness != nil {
		m.unsubscribe = witness.Subscribe(g.onDamageChanged)
	}
	g.members = append(g.members, m)
	g.destroyed = append(g.destroyed, witness != nil && witness.IsDestroyed())
	g.ratios = append(g.ratios, 0)
	g.ratiosAll = append(g.ratiosAll, 0)

	g.recalcRatios()
	g.recache()
	g.equalize()
	return nil
}

// RemoveContainer takes res out of the group. With depleteFirst the departing
// reservoir is drained into the remaining members (as far as they have room);
// otherwise it is equalized first and leaves with its fair share.
func (g *Group) RemoveContainer(res Reservoir, depleteFirst bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	idx := g.indexOf(res)
	if idx < 0 {
		return ErrUnknownContainer
	}

	if !depleteFirst {
		g.prepare()
	}

	m := g.members[idx]
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	g.members = append(g.members[:idx], g.members[idx+1:]...)
	g.destroyed = append(g.destroyed[:idx], g.destroyed[idx+1:]...)
	g.ratios = append(g.ratios[:idx], g.ratios[idx+1:]...)
	g.ratiosAll = append(g.ratiosAll[:idx], g.ratiosAll[idx+1:]...)

	g.recalcRatios()
	g.recache()

	if depleteFirst {
		g.addFrom(res, res.QuantityCurrent(), false)
	}
	return nil
}

// Close drops every damage subscription. The group must not be used after.
func (g *Group) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for i := range g.members {
		if g.members[i].unsubscribe != nil {
			g.members[i].unsubscribe()
			g.members[i].unsubscribe = nil
		}
	}
}

// Destroyed returns a copy of the cached destroyed flags.
func (g *Group) Destroyed() []bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]bool, len(g.destroyed))
	copy(out, g.destroyed)
	return out
}

// Equalize spreads the current total across live members by capacity ratio.
func (g *Group) Equalize() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prepareRatios()
	g.equalize()
}

// QuantityCurrent implements Reservoir.
func (g *Group) QuantityCurrent() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.getCurrent()
}

// SetQuantityCurrent spreads v across live members. Values beyond capacity top
// every live member off.
func (g *Group) SetQuantityCurrent(v float64) error {
	v, err := checkNonNegative(v)
	if err != nil {
		return fmt.Errorf("setting group current: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.prepareRatios()

	if v > g.getMax() {
		for i, m := range g.members {
			target := 0.0
			if !g.destroyed[i] {
				target = m.res.QuantityMaxUsable()
			}
			g.setMember(i, target)
		}
		g.recache()
		return nil
	}

	g.distribute(v)
	return nil
}

// QuantityMax implements Reservoir. Destroyed members do not count.
func (g *Group) QuantityMax() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.getMax()
}

// QuantityMaxUsable implements Reservoir. It equals QuantityMax, since
// damage is already accounted for per member.
func (g *Group) QuantityMaxUsable() float64 {
	return g.QuantityMax()
}

// SetQuantityMax resizes every member, destroyed or not, so they keep their
// original split of v. Current is clamped if it no longer fits.
func (g *Group) SetQuantityMax(v float64) error {
	v, err := checkNonNegative(v)
	if err != nil {
		return fmt.Errorf("setting group max: %w", err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.prepareRatios()
	prevCurrent := g.getCurrent()

	for i, m := range g.members {
		if err := m.res.SetQuantityMax(v * g.ratiosAll[i]); err != nil {
			panic(fmt.Sprintf("container: resizing member %d: %v", i, err))
		}
	}

	g.recalcRatios()
	g.recache()

	if prevCurrent > g.max {
		prevCurrent = g.max
	}
	g.distribute(prevCurrent)
	return nil
}

// QuantityMaxMinusCurrent implements Reservoir.
func (g *Group) QuantityMaxMinusCurrent() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.getMax() - g.getCurrent()
}

// OnlyRemoveMultiples implements Reservoir.
func (g *Group) OnlyRemoveMultiples() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.onlyRemoveMultiples
}

// SetOnlyRemoveMultiples toggles remove-in-multiples for the group as a whole.
func (g *Group) SetOnlyRemoveMultiples(v bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onlyRemoveMultiples = v
}

// RemovalMultiple implements Reservoir.
func (g *Group) RemovalMultiple() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.removalMultiple
}

// SetRemovalMultiple sets the unit group removals are floored to. It must be positive.
func (g *Group) SetRemovalMultiple(v float64) error {
	if v <= 0 || geom.IsNearZero(v) {
		return fmt.Errorf("container: removal multiple must be positive, got %g", v)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.removalMultiple = v
	return nil
}

// AddQuantity implements Reservoir.
func (g *Group) AddQuantity(amount float64, exactOnly bool) float64 {
	if amount <= 0 {
		return 0
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.prepare()

	current := g.getCurrent()
	actual := addAmount(current, g.getMax(), amount, exactOnly)
	if actual <= 0 {
		return amount
	}

	g.distribute(current + actual)
	return amount - actual
}

// AddQuantityFrom implements Reservoir.
func (g *Group) AddQuantityFrom(pullFrom Reservoir, amount float64, exactOnly bool) float64 {
	if amount <= 0 {
		return 0
	}
	if same, ok := pullFrom.(*Group); ok && same == g {
		return amount
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.addFrom(pullFrom, amount, exactOnly)
}

// AddAllFrom implements Reservoir.
func (g *Group) AddAllFrom(pullFrom Reservoir, exactOnly bool) float64 {
	return g.AddQuantityFrom(pullFrom, pullFrom.QuantityCurrent(), exactOnly)
}

// RemoveQuantity implements Reservoir. Remove multiples are applied to the
// group total only, not per member. That is an approximation: members are
// not individually constrained.
func (g *Group) RemoveQuantity(amount float64, exactOnly bool) float64 {
	if amount <= 0 {
		return 0
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	g.prepare()

	current := g.getCurrent()
	actual := removeAmount(current, amount, g.onlyRemoveMultiples, g.removalMultiple, exactOnly)
	if actual <= 0 {
		return amount
	}

	g.distribute(current - actual)
	return amount - actual
}

// addFrom is AddQuantityFrom without locking. Caller holds mu. Pulling from
// a member moves nothing.
func (g *Group) addFrom(pullFrom Reservoir, amount float64, exactOnly bool) float64 {
	if g.indexOf(pullFrom) >= 0 {
		return amount
	}
	g.prepare()

	current := g.getCurrent()
	actual := addAmount(current, g.getMax(), amount, exactOnly)
	if actual <= 0 {
		return amount
	}

	notRemoved := pullFrom.RemoveQuantity(actual, exactOnly)
	actual -= notRemoved
	if actual <= 0 {
		return amount
	}

	// A nested member may have been the source.
	if g.ownership != SoleOwner {
		current = g.getCurrent()
	}
	g.distribute(current + actual)
	return amount - actual
}

func addAmount(current, max, amount float64, exactOnly bool) float64 {
	actual := amount
	if room := max - current; actual > room {
		actual = room
	}
	if actual < 0 {
		actual = 0
	}
	if exactOnly && !geom.IsNearValue(actual, amount) {
		return 0
	}
	return actual
}

// onDamageChanged is the member damage listener. It is the only path besides
// AddContainer that refreshes the destroyed flags.
func (g *Group) onDamageChanged(bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i, m := range g.members {
		g.destroyed[i] = m.witness != nil && m.witness.IsDestroyed()
	}

	g.recalcRatios()
	g.recache()
	g.equalize()
}

// prepare brings members back in line according to the ownership mode.
// Caller holds mu.
func (g *Group) prepare() {
	switch g.ownership {
	case SoleOwner:
	case QuantitiesCanChange:
		g.equalize()
	case QuantitiesMaxesCanChange:
		g.recalcRatios()
		g.equalize()
	default:
		panic(fmt.Sprintf("container: unknown ownership %v", g.ownership))
	}
}

// prepareRatios recomputes ratios when maxes can drift. Caller holds mu.
func (g *Group) prepareRatios() {
	switch g.ownership {
	case SoleOwner, QuantitiesCanChange:
	case QuantitiesMaxesCanChange:
		g.recalcRatios()
	default:
		panic(fmt.Sprintf("container: unknown ownership %v", g.ownership))
	}
}

// recalcRatios rebuilds both ratio sets from member capacities. Caller holds mu.
func (g *Group) recalcRatios() {
	var sumLive, sumAll float64
	usable := make([]float64, len(g.members))
	nominal := make([]float64, len(g.members))
	for i, m := range g.members {
		usable[i] = m.res.QuantityMaxUsable()
		nominal[i] = m.res.QuantityMax()
		sumAll += nominal[i]
		if !g.destroyed[i] {
			sumLive += usable[i]
		}
	}

	for i := range g.members {
		if g.destroyed[i] || geom.IsNearZero(sumLive) {
			g.ratios[i] = 0
		} else {
			g.ratios[i] = usable[i] / sumLive
		}
		if geom.IsNearZero(sumAll) {
			g.ratiosAll[i] = 0
		} else {
			g.ratiosAll[i] = nominal[i] / sumAll
		}
	}
}

// recache recomputes the cached totals from live members. Caller holds mu.
func (g *Group) recache() {
	g.current, g.max = g.sumLive()
}

func (g *Group) sumLive() (current, max float64) {
	for i, m := range g.members {
		if g.destroyed[i] {
			continue
		}
		current += m.res.QuantityCurrent()
		max += m.res.QuantityMaxUsable()
	}
	return current, max
}

func (g *Group) getCurrent() float64 {
	switch g.ownership {
	case SoleOwner:
		return g.current
	case QuantitiesCanChange, QuantitiesMaxesCanChange:
		current, _ := g.sumLive()
		return current
	}
	panic(fmt.Sprintf("container: unknown ownership %v", g.ownership))
}

func (g *Group) getMax() float64 {
	switch g.ownership {
	case SoleOwner:
		return g.max
	case QuantitiesCanChange, QuantitiesMaxesCanChange:
		_, max := g.sumLive()
		return max
	}
	panic(fmt.Sprintf("container: unknown ownership %v", g.ownership))
}

// equalize sets every member to its ratio of the current total. Destroyed
// members end at exactly zero. Caller holds mu.
func (g *Group) equalize() {
	g.distribute(g.getCurrent())
}

// distribute sets member quantities to total*ratio and caches total. Caller holds mu.
func (g *Group) distribute(total float64) {
	for i := range g.members {
		g.setMember(i, total*g.ratios[i])
	}
	g.current = snap(total)
}

func (g *Group) setMember(i int, v float64) {
	if err := g.members[i].res.SetQuantityCurrent(v); err != nil {
		panic(fmt.Sprintf("container: setting member %d: %v", i, err))
	}
}

func (g *Group) indexOf(res Reservoir) int {
	for i, m := range g.members {
		if m.res == res {
			return i
		}
	}
	return -1
}
