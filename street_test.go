package streetsim

import (
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

func TestStreetQueueFIFO(t *testing.T) {
	s := NewStreet(1, 0, 1, WithCapacity(3))
	for _, id := range []ID{4, 2, 8} {
		if err := s.Enqueue(id); err != nil {
			t.Fatal(err)
		}
	}
	if err := s.Enqueue(4); !errors.Is(err, ErrDuplicateOccupant) {
		t.Errorf("expected duplicate occupant, got %v", err)
	}
	if err := s.Enqueue(9); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("expected capacity exceeded, got %v", err)
	}
	for _, want := range []ID{4, 2, 8} {
		got, err := s.Dequeue()
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Errorf("expected %d, got %d", want, got)
		}
	}
	if _, err := s.Dequeue(); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected empty queue, got %v", err)
	}
}

func TestStreetDensityAndOccupancy(t *testing.T) {
	s := NewStreet(1, 0, 1, WithCapacity(4))
	if s.Density() != 0 {
		t.Errorf("expected density 0, got %f", s.Density())
	}
	s.Enter(1)
	s.Enter(2)
	if s.Occupancy() != 2 {
		t.Errorf("expected occupancy 2, got %d", s.Occupancy())
	}
	// Body agents do not count toward density.
	if s.Density() != 0 {
		t.Errorf("expected density 0 with body agents only, got %f", s.Density())
	}
	s.Enqueue(1)
	if s.Density() != 0.25 {
		t.Errorf("expected density 0.25, got %f", s.Density())
	}
	if s.Occupancy() != 2 {
		t.Errorf("enqueue from body should keep occupancy, got %d", s.Occupancy())
	}
	s.Enter(3)
	s.Enter(4)
	if !s.IsFull() {
		t.Error("street should be full")
	}
	if err := s.Enter(5); !errors.Is(err, ErrCapacityExceeded) {
		t.Errorf("expected capacity exceeded, got %v", err)
	}
}

func TestStreetSetters(t *testing.T) {
	s := NewStreet(1, 0, 1)
	if err := s.SetMaxSpeed(0); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
	if err := s.SetMaxSpeed(-3); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
	if err := s.SetMaxSpeed(20); err != nil {
		t.Error(err)
	}
	if err := s.SetLength(-1); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
	if err := s.SetAngle(4); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected angle outside [-pi, pi] to fail, got %v", err)
	}
	if err := s.SetAngle(-math.Pi / 2); err != nil {
		t.Error(err)
	}
	s.SetQueue([]ID{3, 1})
	if q := s.Queue(); len(q) != 2 || q[0] != 3 || q[1] != 1 {
		t.Errorf("unexpected queue %v", q)
	}
}

func TestStreetAngleFromCoords(t *testing.T) {
	s := NewStreet(1, 0, 1)
	src := orb.Point{9.0, 45.0}  // lon, lat
	dst := orb.Point{9.0, 46.0}  // due north
	s.SetAngleCoords(src, dst)
	if math.Abs(s.Angle()-math.Pi/2) > 1e-12 {
		t.Errorf("expected pi/2, got %f", s.Angle())
	}
	east := orb.Point{10.0, 45.0}
	s.SetAngleCoords(src, east)
	if math.Abs(s.Angle()) > 1e-12 {
		t.Errorf("expected 0, got %f", s.Angle())
	}
}

func TestSpireStreetCounts(t *testing.T) {
	s := NewStreet(1, 0, 1, WithCapacity(3))
	s.MakeSpire()
	if !s.IsSpire() {
		t.Error("expected spire street")
	}
	s.Enqueue(1)
	s.Enqueue(2)
	s.Dequeue()
	if c := s.InputCounts(false); c != 2 {
		t.Errorf("expected 2 inputs, got %d", c)
	}
	if c := s.OutputCounts(true); c != 1 {
		t.Errorf("expected 1 output, got %d", c)
	}
	if c := s.OutputCounts(false); c != 0 {
		t.Errorf("expected reset output counter, got %d", c)
	}
	if c := s.InputCounts(false); c != 2 {
		t.Errorf("input counter should survive the output reset, got %d", c)
	}
}
