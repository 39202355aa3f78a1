package container

import (
	"fmt"
	"sync"

	"github.com/pthm-cable/shipyard/geom"
)

// Container is a single reservoir with a nominal max, an optional damage
// reduced usable max, and optional remove-in-multiples behavior (ammo clips).
//
// Invariant: 0 <= current <= usableMax <= max.
type Container struct {
	mu sync.Mutex

	current      float64
	max          float64
	maxUsable    float64
	hasMaxUsable bool

	onlyRemoveMultiples bool
	removalMultiple     float64
}

var _ Reservoir = (*Container)(nil)

// NewContainer creates an empty container with a max of 1.
func NewContainer() *Container {
	return &Container{max: 1, removalMultiple: 1}
}

// NewContainerWithMax creates an empty container with the given capacity.
func NewContainerWithMax(max float64) (*Container, error) {
	c := NewContainer()
	if err := c.SetQuantityMax(max); err != nil {
		return nil, err
	}
	return c, nil
}

// usable returns the effective ceiling. Caller holds mu.
func (c *Container) usable() float64 {
	if c.hasMaxUsable {
		return c.maxUsable
	}
	return c.max
}

// QuantityCurrent implements Reservoir.
func (c *Container) QuantityCurrent() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// SetQuantityCurrent sets the current quantity, capped to the usable max.
func (c *Container) SetQuantityCurrent(v float64) error {
	v, err := checkNonNegative(v)
	if err != nil {
		return fmt.Errorf("setting current: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if u := c.usable(); v > u {
		v = u
	}
	c.current = v
	return nil
}

// QuantityMax implements Reservoir.
func (c *Container) QuantityMax() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.max
}

// SetQuantityMax sets the nominal max, pulling usable max and current down
// with it if needed.
func (c *Container) SetQuantityMax(v float64) error {
	v, err := checkNonNegative(v)
	if err != nil {
		return fmt.Errorf("setting max: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.max = v
	if c.hasMaxUsable && c.maxUsable > c.max {
		c.maxUsable = c.max
	}
	if u := c.usable(); c.current > u {
		c.current = u
	}
	return nil
}

// QuantityMaxUsable implements Reservoir.
func (c *Container) QuantityMaxUsable() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usable()
}

// MaxUsableOverride returns the damage override and whether one is set.
func (c *Container) MaxUsableOverride() (float64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxUsable, c.hasMaxUsable
}

// SetQuantityMaxUsable installs a usable-max override (capped to max). The
// current quantity is reduced if it no longer fits.
func (c *Container) SetQuantityMaxUsable(v float64) error {
	v, err := checkNonNegative(v)
	if err != nil {
		return fmt.Errorf("setting usable max: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if v > c.max {
		v = c.max
	}
	c.maxUsable = v
	c.hasMaxUsable = true
	if c.current > v {
		c.current = v
	}
	return nil
}

// ClearQuantityMaxUsable removes the override so the full max is usable again.
func (c *Container) ClearQuantityMaxUsable() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hasMaxUsable = false
	c.maxUsable = 0
}

// QuantityMaxMinusCurrent implements Reservoir.
func (c *Container) QuantityMaxMinusCurrent() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.usable() - c.current
}

// OnlyRemoveMultiples implements Reservoir.
func (c *Container) OnlyRemoveMultiples() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.onlyRemoveMultiples
}

// SetOnlyRemoveMultiples toggles remove-in-multiples behavior.
func (c *Container) SetOnlyRemoveMultiples(v bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onlyRemoveMultiples = v
}

// RemovalMultiple implements Reservoir.
func (c *Container) RemovalMultiple() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removalMultiple
}

// SetRemovalMultiple sets the unit that removals are floored to. It must be positive.
func (c *Container) SetRemovalMultiple(v float64) error {
	if v <= 0 || geom.IsNearZero(v) {
		return fmt.Errorf("container: removal multiple must be positive, got %g", v)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removalMultiple = v
	return nil
}

// AddQuantity implements Reservoir.
func (c *Container) AddQuantity(amount float64, exactOnly bool) float64 {
	if amount <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	actual := c.addAmount(amount, exactOnly)
	c.current = snap(c.current + actual)
	return amount - actual
}

// addAmount caps amount to the headroom. Caller holds mu.
func (c *Container) addAmount(amount float64, exactOnly bool) float64 {
	actual := amount
	if room := c.usable() - c.current; actual > room {
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

// AddQuantityFrom implements Reservoir. Only what pullFrom actually gives up
// is added, so a scarce source never creates resource. The lock is released
// while pulling, so pullFrom may be a group that holds c.
func (c *Container) AddQuantityFrom(pullFrom Reservoir, amount float64, exactOnly bool) float64 {
	if amount <= 0 {
		return 0
	}
	if same, ok := pullFrom.(*Container); ok && same == c {
		return amount
	}

	c.mu.Lock()
	want := c.addAmount(amount, exactOnly)
	c.mu.Unlock()
	if want <= 0 {
		return amount
	}

	got := want - pullFrom.RemoveQuantity(want, exactOnly)
	if got <= 0 {
		return amount
	}

	c.mu.Lock()
	added := c.addAmount(got, false)
	c.current = snap(c.current + added)
	c.mu.Unlock()

	// Headroom shrank while unlocked; hand the excess back.
	if excess := got - added; excess > 0 && !geom.IsNearZero(excess) {
		pullFrom.AddQuantity(excess, false)
	}
	return amount - added
}

// AddAllFrom implements Reservoir.
func (c *Container) AddAllFrom(pullFrom Reservoir, exactOnly bool) float64 {
	return c.AddQuantityFrom(pullFrom, pullFrom.QuantityCurrent(), exactOnly)
}

// RemoveQuantity implements Reservoir.
func (c *Container) RemoveQuantity(amount float64, exactOnly bool) float64 {
	if amount <= 0 {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	actual := removeAmount(c.current, amount, c.onlyRemoveMultiples, c.removalMultiple, exactOnly)
	c.current = snap(c.current - actual)
	if c.current < 0 {
		c.current = 0
	}
	return amount - actual
}
