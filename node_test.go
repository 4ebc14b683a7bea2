package streetsim

import (
	"testing"

	"github.com/pkg/errors"
)

func TestIntersectionAddRemove(t *testing.T) {
	n := NewIntersection(4)
	n.SetCapacity(3)
	if err := n.AddAgentAngle(1.0, 10); err != nil {
		t.Error(err)
	}
	if err := n.AddAgentAngle(-0.5, 11); err != nil {
		t.Error(err)
	}
	if err := n.AddAgentAngle(1.0, 10); !errors.Is(err, ErrDuplicateOccupant) {
		t.Errorf("expected duplicate occupant, got %v", err)
	}
	// Smaller angle keys discharge first.
	agents := n.Agents()
	if len(agents) != 2 || agents[0] != 11 || agents[1] != 10 {
		t.Errorf("unexpected discharge order %v", agents)
	}
	if err := n.RemoveAgent(11); err != nil {
		t.Error(err)
	}
	if err := n.RemoveAgent(11); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
}

func TestIntersectionTailInsert(t *testing.T) {
	n := NewIntersection(0)
	n.SetCapacity(4)
	n.AddAgentAngle(2.0, 1)
	if err := n.AddAgent(2); err != nil {
		t.Error(err)
	}
	if err := n.AddAgent(3); err != nil {
		t.Error(err)
	}
	agents := n.Agents()
	if len(agents) != 3 || agents[0] != 1 || agents[1] != 2 || agents[2] != 3 {
		t.Errorf("tail inserts should keep arrival order, got %v", agents)
	}
	// The duplicate check spans both admission forms.
	if err := n.AddAgent(1); !errors.Is(err, ErrDuplicateOccupant) {
		t.Errorf("expected duplicate occupant, got %v", err)
	}
}

func TestIntersectionCapacity(t *testing.T) {
	n := NewIntersection(0)
	if err := n.AddAgent(1); err != nil {
		t.Error(err)
	}
	if err := n.AddAgent(2); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("expected capacity exceeded, got %v", err)
	}
	if err := n.SetCapacity(0); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("expected shrink below occupancy to fail, got %v", err)
	}
	if err := n.SetCapacity(2); err != nil {
		t.Error(err)
	}
	if err := n.AddAgent(2); err != nil {
		t.Error(err)
	}
	if !n.IsFull() {
		t.Error("node should be full")
	}
}

func TestIntersectionAgentCounter(t *testing.T) {
	n := NewIntersection(0)
	n.SetCapacity(2)
	n.AddAgent(1)
	n.AddAgent(2)
	if c := n.AgentCounter(); c != 2 {
		t.Errorf("expected 2 admissions, got %d", c)
	}
	if c := n.AgentCounter(); c != 0 {
		t.Errorf("counter should reset on read, got %d", c)
	}
}

func TestIntersectionStreetPriorities(t *testing.T) {
	n := NewIntersection(0)
	n.SetStreetPriorities([]ID{5, 3})
	if !n.HasStreetPriority(3) || !n.HasStreetPriority(5) || n.HasStreetPriority(4) {
		t.Error("priority membership wrong")
	}
	n.AddStreetPriority(4)
	ids := n.StreetPriorities()
	if len(ids) != 3 || ids[0] != 3 || ids[1] != 4 || ids[2] != 5 {
		t.Errorf("expected sorted priorities, got %v", ids)
	}
}

func TestTrafficLightPhases(t *testing.T) {
	tl := NewTrafficLight(1)
	tl.SetDelay(3, 3)
	tl.AddStreetPriority(1) // street 0->1 in a 4-node network

	for tick := 0; tick < 7; tick++ {
		wantPriorityGreen := tl.Counter() < 3
		green, err := tl.IsGreenFor(1)
		if err != nil {
			t.Fatal(err)
		}
		if green != wantPriorityGreen {
			t.Errorf("tick %d counter %d: priority street green=%t", tick, tl.Counter(), green)
		}
		other, err := tl.IsGreenFor(9)
		if err != nil {
			t.Fatal(err)
		}
		if other == green {
			t.Errorf("tick %d: both street groups share a phase", tick)
		}
		if err := tl.IncreaseCounter(); err != nil {
			t.Fatal(err)
		}
	}
	// Six increments wrap the cycle back to its start.
	tl2 := NewTrafficLight(2)
	tl2.SetDelay(3, 3)
	for i := 0; i < 6; i++ {
		tl2.IncreaseCounter()
	}
	if tl2.Counter() != 0 {
		t.Errorf("expected wrapped counter 0, got %d", tl2.Counter())
	}
}

func TestTrafficLightUnconfigured(t *testing.T) {
	tl := NewTrafficLight(0)
	if err := tl.IncreaseCounter(); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected not configured, got %v", err)
	}
	if _, err := tl.IsGreen(); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected not configured, got %v", err)
	}
	if err := tl.SetPhase(1); !errors.Is(err, ErrNotConfigured) {
		t.Errorf("expected not configured, got %v", err)
	}
}

func TestTrafficLightSetDelayKeepsCounterInCycle(t *testing.T) {
	tl := NewTrafficLight(0)
	tl.SetDelay(10, 10)
	tl.SetPhase(5)
	// Shrinking past the counter clamps to the last cycle tick.
	tl.SetDelay(2, 2)
	if tl.Counter() != 3 {
		t.Errorf("expected counter clamped to 3, got %d", tl.Counter())
	}

	tl2 := NewTrafficLight(1)
	tl2.SetDelay(10, 10)
	tl2.SetPhase(5)
	// Counter in the cut-off part of the old green window shifts back,
	// clamping at zero.
	tl2.SetDelay(3, 3)
	if tl2.Counter() != 0 {
		t.Errorf("expected counter shifted to 0, got %d", tl2.Counter())
	}
	green, red, ok := tl2.Delay()
	if !ok || green != 3 || red != 3 {
		t.Errorf("unexpected delay %d/%d ok=%t", green, red, ok)
	}
	if tl2.Counter() >= green+red {
		t.Error("counter escaped the cycle")
	}

	tl3 := NewTrafficLight(2)
	tl3.SetDelay(10, 10)
	tl3.SetPhase(9)
	tl3.SetDelay(8, 8)
	if tl3.Counter() >= 16 {
		t.Errorf("counter %d escaped the cycle", tl3.Counter())
	}
}

func TestTrafficLightPhaseAfterCycle(t *testing.T) {
	tl := NewTrafficLight(0)
	tl.SetDelay(2, 2)
	if err := tl.SetPhaseAfterCycle(1); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 4; i++ {
		tl.IncreaseCounter()
	}
	if tl.Counter() != 1 {
		t.Errorf("expected pending phase 1 adopted at the boundary, got %d", tl.Counter())
	}
	// The pending phase is one-shot.
	for i := 0; i < 3; i++ {
		tl.IncreaseCounter()
	}
	if tl.Counter() != 0 {
		t.Errorf("expected plain wrap to 0, got %d", tl.Counter())
	}
}

func TestRoundaboutFIFO(t *testing.T) {
	r := NewRoundabout(0)
	r.SetCapacity(3)
	for _, id := range []ID{7, 9, 5} {
		if err := r.Enqueue(id); err != nil {
			t.Fatal(err)
		}
	}
	if err := r.Enqueue(7); !errors.Is(err, ErrDuplicateOccupant) {
		t.Errorf("expected duplicate occupant, got %v", err)
	}
	if err := r.Enqueue(4); err == nil {
		t.Error("expected full roundabout to reject")
	}
	for _, want := range []ID{7, 9, 5} {
		got, err := r.Dequeue()
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("expected %d, got %d", want, got)
		}
	}
	if _, err := r.Dequeue(); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected empty roundabout, got %v", err)
	}
}
