package container

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm-cable/shipyard/damage"
)

type groupFixture struct {
	group    *Group
	members  []*Container
	damage   []*damage.State
	capacity []float64
}

func newGroupFixture(t *testing.T, ownership Ownership, maxes ...float64) *groupFixture {
	t.Helper()
	f := &groupFixture{group: NewGroup(ownership), capacity: maxes}
	for _, max := range maxes {
		c := newContainer(t, max, 0)
		s := damage.NewState()
		require.NoError(t, f.group.AddContainer(c, s))
		f.members = append(f.members, c)
		f.damage = append(f.damage, s)
	}
	return f
}

func TestGroupSetCurrentSplitsByRatio(t *testing.T) {
	f := newGroupFixture(t, QuantitiesMaxesCanChange, 30, 70)

	require.NoError(t, f.group.SetQuantityCurrent(50))

	assert.InDelta(t, 15, f.members[0].QuantityCurrent(), 1e-9)
	assert.InDelta(t, 35, f.members[1].QuantityCurrent(), 1e-9)
	assert.InDelta(t, 50, f.group.QuantityCurrent(), 1e-9)
	assert.InDelta(t, 100, f.group.QuantityMax(), 1e-9)
}

func TestGroupSetCurrentBeyondMaxTopsOff(t *testing.T) {
	for _, own := range []Ownership{SoleOwner, QuantitiesCanChange, QuantitiesMaxesCanChange} {
		t.Run(own.String(), func(t *testing.T) {
			f := newGroupFixture(t, own, 30, 70)

			require.NoError(t, f.group.SetQuantityCurrent(500))

			assert.InDelta(t, 30, f.members[0].QuantityCurrent(), 1e-9)
			assert.InDelta(t, 70, f.members[1].QuantityCurrent(), 1e-9)
			assert.InDelta(t, 100, f.group.QuantityCurrent(), 1e-9)
		})
	}
}

func TestGroupAddContainerEqualizes(t *testing.T) {
	g := NewGroup(SoleOwner)
	full := newContainer(t, 30, 30)
	empty := newContainer(t, 70, 0)

	require.NoError(t, g.AddContainer(full, nil))
	require.NoError(t, g.AddContainer(empty, nil))

	assert.InDelta(t, 9, full.QuantityCurrent(), 1e-9)
	assert.InDelta(t, 21, empty.QuantityCurrent(), 1e-9)
	assert.InDelta(t, 30, g.QuantityCurrent(), 1e-9)
}

func TestGroupEqualizeAfterExternalChange(t *testing.T) {
	f := newGroupFixture(t, QuantitiesCanChange, 30, 70)
	require.NoError(t, f.members[0].SetQuantityCurrent(30))

	f.group.Equalize()

	ratio := f.group.QuantityCurrent() / f.group.QuantityMax()
	for i, m := range f.members {
		got := m.QuantityCurrent() / m.QuantityMax()
		if !assert.InDelta(t, ratio, got, 1e-9) {
			t.Logf("member %d: current=%v max=%v", i, m.QuantityCurrent(), m.QuantityMax())
		}
	}
	assert.InDelta(t, 30, f.group.QuantityCurrent(), 1e-9)
}

func TestGroupAddAndRemoveQuantity(t *testing.T) {
	f := newGroupFixture(t, SoleOwner, 30, 70)

	leftover := f.group.AddQuantity(40, false)
	assert.InDelta(t, 0, leftover, 1e-9)
	assert.InDelta(t, 12, f.members[0].QuantityCurrent(), 1e-9)
	assert.InDelta(t, 28, f.members[1].QuantityCurrent(), 1e-9)

	leftover = f.group.AddQuantity(100, false)
	assert.InDelta(t, 40, leftover, 1e-9)
	assert.InDelta(t, 100, f.group.QuantityCurrent(), 1e-9)

	leftover = f.group.RemoveQuantity(120, true)
	assert.InDelta(t, 120, leftover, 1e-9)
	assert.InDelta(t, 100, f.group.QuantityCurrent(), 1e-9)
}

func TestGroupRemoveMultiplesAppliesToTotal(t *testing.T) {
	f := newGroupFixture(t, SoleOwner, 30, 70)
	require.NoError(t, f.group.SetQuantityCurrent(40))
	f.group.SetOnlyRemoveMultiples(true)
	require.NoError(t, f.group.SetRemovalMultiple(5))

	leftover := f.group.RemoveQuantity(17, false)

	assert.InDelta(t, 2, leftover, 1e-9)
	assert.InDelta(t, 25, f.group.QuantityCurrent(), 1e-9)
	assert.InDelta(t, 7.5, f.members[0].QuantityCurrent(), 1e-9)
	assert.InDelta(t, 17.5, f.members[1].QuantityCurrent(), 1e-9)
}

func TestGroupDestroyedMemberHoldsNothing(t *testing.T) {
	f := newGroupFixture(t, QuantitiesCanChange, 30, 70)
	require.NoError(t, f.group.SetQuantityCurrent(50))

	f.damage[1].Destroy()

	if got := f.members[1].QuantityCurrent(); got != 0 {
		t.Errorf("expected destroyed member to be empty, got %v", got)
	}
	assert.InDelta(t, 15, f.group.QuantityCurrent(), 1e-9)
	assert.InDelta(t, 30, f.group.QuantityMax(), 1e-9)
	assert.Equal(t, []bool{false, true}, f.group.Destroyed())

	// Adding fills only the live member.
	leftover := f.group.AddQuantity(100, false)
	assert.InDelta(t, 85, leftover, 1e-9)
	assert.InDelta(t, 30, f.members[0].QuantityCurrent(), 1e-9)
	assert.InDelta(t, 0, f.members[1].QuantityCurrent(), 1e-9)

	f.damage[1].Resurrect()

	assert.InDelta(t, 100, f.group.QuantityMax(), 1e-9)
	assert.InDelta(t, 9, f.members[0].QuantityCurrent(), 1e-9)
	assert.InDelta(t, 21, f.members[1].QuantityCurrent(), 1e-9)
}

func TestGroupSetMaxKeepsOriginalSplit(t *testing.T) {
	f := newGroupFixture(t, QuantitiesMaxesCanChange, 30, 70)
	require.NoError(t, f.group.SetQuantityCurrent(50))
	f.damage[0].Destroy()

	require.NoError(t, f.group.SetQuantityMax(200))

	assert.InDelta(t, 60, f.members[0].QuantityMax(), 1e-9)
	assert.InDelta(t, 140, f.members[1].QuantityMax(), 1e-9)
	assert.InDelta(t, 140, f.group.QuantityMax(), 1e-9)
	assert.InDelta(t, 0, f.members[0].QuantityCurrent(), 1e-9)
	assert.InDelta(t, 35, f.group.QuantityCurrent(), 1e-9)
}

func TestGroupShrinkMaxClampsCurrent(t *testing.T) {
	f := newGroupFixture(t, SoleOwner, 30, 70)
	require.NoError(t, f.group.SetQuantityCurrent(80))

	require.NoError(t, f.group.SetQuantityMax(50))

	assert.InDelta(t, 15, f.members[0].QuantityMax(), 1e-9)
	assert.InDelta(t, 35, f.members[1].QuantityMax(), 1e-9)
	assert.InDelta(t, 50, f.group.QuantityCurrent(), 1e-9)
	assert.InDelta(t, 15, f.members[0].QuantityCurrent(), 1e-9)
}

func TestGroupSubscriptionDiscipline(t *testing.T) {
	f := newGroupFixture(t, SoleOwner, 30, 70)
	for i, s := range f.damage {
		if s.SubscriberCount() != 1 {
			t.Errorf("member %d: expected 1 subscriber, got %d", i, s.SubscriberCount())
		}
	}

	err := f.group.AddContainer(f.members[0], f.damage[0])
	if !errors.Is(err, ErrDuplicateContainer) {
		t.Errorf("expected ErrDuplicateContainer, got %v", err)
	}
	assert.Equal(t, 1, f.damage[0].SubscriberCount())

	require.NoError(t, f.group.RemoveContainer(f.members[0], false))
	assert.Equal(t, 0, f.damage[0].SubscriberCount())

	err = f.group.RemoveContainer(f.members[0], false)
	if !errors.Is(err, ErrUnknownContainer) {
		t.Errorf("expected ErrUnknownContainer, got %v", err)
	}

	f.group.Close()
	assert.Equal(t, 0, f.damage[1].SubscriberCount())
}

func TestGroupRemoveContainerDepleteFirst(t *testing.T) {
	f := newGroupFixture(t, QuantitiesCanChange, 50, 50)
	require.NoError(t, f.group.SetQuantityCurrent(60))

	require.NoError(t, f.group.RemoveContainer(f.members[1], true))

	assert.Equal(t, 1, f.group.Len())
	assert.InDelta(t, 50, f.members[0].QuantityCurrent(), 1e-9)
	assert.InDelta(t, 10, f.members[1].QuantityCurrent(), 1e-9)
	assert.InDelta(t, 50, f.group.QuantityCurrent(), 1e-9)
}

func TestGroupRemoveContainerFairShare(t *testing.T) {
	f := newGroupFixture(t, QuantitiesCanChange, 50, 50)
	require.NoError(t, f.group.SetQuantityCurrent(60))
	require.NoError(t, f.members[0].SetQuantityCurrent(50))

	require.NoError(t, f.group.RemoveContainer(f.members[1], false))

	assert.InDelta(t, 40, f.members[0].QuantityCurrent(), 1e-9)
	assert.InDelta(t, 40, f.members[1].QuantityCurrent(), 1e-9)
}

func TestGroupTransferFromContainer(t *testing.T) {
	f := newGroupFixture(t, SoleOwner, 30, 70)
	source := newContainer(t, 100, 60)

	leftover := f.group.AddQuantityFrom(source, 80, false)

	assert.InDelta(t, 20, leftover, 1e-9)
	assert.InDelta(t, 0, source.QuantityCurrent(), 1e-9)
	assert.InDelta(t, 60, f.group.QuantityCurrent(), 1e-9)
}

func TestContainerPullsFromOwnGroup(t *testing.T) {
	f := newGroupFixture(t, QuantitiesCanChange, 10, 10)
	require.NoError(t, f.group.SetQuantityCurrent(4))
	a := f.members[0]

	done := make(chan float64, 1)
	go func() { done <- a.AddQuantityFrom(f.group, 1, false) }()

	select {
	case leftover := <-done:
		assert.InDelta(t, 0, leftover, 1e-9)
	case <-time.After(2 * time.Second):
		t.Fatal("AddQuantityFrom a group holding the container never returned")
	}
	assert.InDelta(t, 4, f.group.QuantityCurrent(), 1e-9)
	assert.InDelta(t, 2.5, a.QuantityCurrent(), 1e-9)
}

func TestGroupPullFromMemberConserves(t *testing.T) {
	f := newGroupFixture(t, QuantitiesCanChange, 10, 10)
	require.NoError(t, f.group.SetQuantityCurrent(10))

	leftover := f.group.AddQuantityFrom(f.members[0], 2, false)

	assert.InDelta(t, 2, leftover, 1e-9)
	assert.InDelta(t, 10, f.group.QuantityCurrent(), 1e-9)
	assert.InDelta(t, 5, f.members[0].QuantityCurrent(), 1e-9)
	assert.InDelta(t, 5, f.members[1].QuantityCurrent(), 1e-9)
}

func TestGroupPullFromNestedMemberConserves(t *testing.T) {
	inner := newGroupFixture(t, QuantitiesCanChange, 10, 30)
	outer := NewGroup(QuantitiesCanChange)
	other := newContainer(t, 60, 0)
	require.NoError(t, outer.AddContainer(inner.group, nil))
	require.NoError(t, outer.AddContainer(other, nil))
	require.NoError(t, outer.SetQuantityCurrent(50))

	leftover := outer.AddQuantityFrom(inner.members[0], 2, false)

	assert.InDelta(t, 0, leftover, 1e-9)
	assert.InDelta(t, 50, outer.QuantityCurrent(), 1e-9)
	assert.InDelta(t, 50, inner.group.QuantityCurrent()+other.QuantityCurrent(), 1e-9)
}

func TestGroupSetRemovalMultipleRejectsNearZero(t *testing.T) {
	g := NewGroup(SoleOwner)
	for _, v := range []float64{0, -1, 1e-12} {
		if err := g.SetRemovalMultiple(v); err == nil {
			t.Errorf("expected error for multiple %g", v)
		}
	}
	require.NoError(t, g.SetRemovalMultiple(0.5))
	assert.Equal(t, 0.5, g.RemovalMultiple())
}

func TestGroupOfGroups(t *testing.T) {
	inner := newGroupFixture(t, QuantitiesCanChange, 10, 30)
	outer := NewGroup(QuantitiesMaxesCanChange)
	other := newContainer(t, 60, 0)
	require.NoError(t, outer.AddContainer(inner.group, nil))
	require.NoError(t, outer.AddContainer(other, nil))

	require.NoError(t, outer.SetQuantityCurrent(50))

	assert.InDelta(t, 20, inner.group.QuantityCurrent(), 1e-9)
	assert.InDelta(t, 5, inner.members[0].QuantityCurrent(), 1e-9)
	assert.InDelta(t, 30, other.QuantityCurrent(), 1e-9)

	if err := outer.AddContainer(outer, nil); err == nil {
		t.Error("expected error when adding group to itself")
	}
}

func TestGroupConcurrentAdds(t *testing.T) {
	f := newGroupFixture(t, QuantitiesCanChange, 300, 700)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				f.group.AddQuantity(1, false)
			}
		}()
	}
	wg.Wait()

	assert.InDelta(t, 500, f.group.QuantityCurrent(), 1e-6)
	assert.InDelta(t, 150, f.members[0].QuantityCurrent(), 1e-6)
}

func TestOwnershipString(t *testing.T) {
	if got := Ownership(9).String(); got != "ownership(9)" {
		t.Errorf("expected ownership(9), got %s", got)
	}
}
