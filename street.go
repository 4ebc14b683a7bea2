package streetsim

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

// Street is a directed edge of the road graph. Agents traverse its body for
// a density-dependent number of ticks and then wait in the FIFO head queue
// for admission into the destination node. A street optionally carries
// spire counters tallying agents entering and leaving the head queue.
type Street struct {
	id                ID
	src               ID
	dst               ID
	length            float64
	maxSpeed          float64
	capacity          Size
	transportCapacity Size
	angle             float64
	queue             []ID
	moving            Size
	spire             *spireCounters
}

type spireCounters struct {
	in  Size
	out Size
}

// StreetOption configures a street at construction time.
type StreetOption func(*Street)

// WithLength sets the street length in meters.
func WithLength(length float64) StreetOption {
	return func(s *Street) { s.length = length }
}

// WithMaxSpeed sets the speed limit in m/s.
func WithMaxSpeed(maxSpeed float64) StreetOption {
	return func(s *Street) { s.maxSpeed = maxSpeed }
}

// WithCapacity sets the number of agents the street can hold.
func WithCapacity(capacity Size) StreetOption {
	return func(s *Street) { s.capacity = capacity }
}

// WithTransportCapacity sets the number of agents the head may release into
// the destination node per tick.
func WithTransportCapacity(transportCapacity Size) StreetOption {
	return func(s *Street) { s.transportCapacity = transportCapacity }
}

// NewStreet returns a street from src to dst with length 1 m, capacity 1,
// transport capacity 1 and the default speed limit.
func NewStreet(id, src, dst ID, options ...StreetOption) *Street {
	street := &Street{
		id:                id,
		src:               src,
		dst:               dst,
		length:            1,
		maxSpeed:          defaultMaxSpeed,
		capacity:          1,
		transportCapacity: 1,
	}
	for _, option := range options {
		option(street)
	}
	return street
}

func (s *Street) ID() ID { return s.id }

// NodePair returns the source and destination node ids.
func (s *Street) NodePair() (src, dst ID) { return s.src, s.dst }

func (s *Street) setID(id ID) { s.id = id }

func (s *Street) Length() float64 { return s.length }

func (s *Street) MaxSpeed() float64 { return s.maxSpeed }

func (s *Street) Capacity() Size { return s.capacity }

func (s *Street) TransportCapacity() Size { return s.transportCapacity }

func (s *Street) Angle() float64 { return s.angle }

// SetLength rejects negative lengths.
func (s *Street) SetLength(length float64) error {
	if length < 0 {
		return errors.Wrapf(ErrInvalidInput, "street %d: negative length %f", s.id, length)
	}
	s.length = length
	return nil
}

// SetMaxSpeed rejects non-positive speed limits.
func (s *Street) SetMaxSpeed(maxSpeed float64) error {
	if maxSpeed <= 0 {
		return errors.Wrapf(ErrInvalidInput, "street %d: non-positive max speed %f", s.id, maxSpeed)
	}
	s.maxSpeed = maxSpeed
	return nil
}

// SetCapacity sets the number of agents the street can hold.
func (s *Street) SetCapacity(capacity Size) { s.capacity = capacity }

// SetTransportCapacity sets the per-tick head release quota.
func (s *Street) SetTransportCapacity(transportCapacity Size) {
	s.transportCapacity = transportCapacity
}

// SetAngle sets the azimuth directly. The value must lie in [-pi, pi].
func (s *Street) SetAngle(angle float64) error {
	if angle < -math.Pi || angle > math.Pi {
		return errors.Wrapf(ErrInvalidInput, "street %d: angle %f outside [-pi, pi]", s.id, angle)
	}
	s.angle = angle
	return nil
}

// SetAngleCoords derives the azimuth from the endpoint coordinates.
func (s *Street) SetAngleCoords(src, dst orb.Point) {
	s.angle = azimuth(src, dst)
}

// Density returns waiting agents over capacity, in [0, 1].
func (s *Street) Density() float64 {
	return float64(len(s.queue)) / float64(s.capacity)
}

// Occupancy returns all agents on the street, body and head queue.
func (s *Street) Occupancy() Size { return s.moving + Size(len(s.queue)) }

// IsFull reports whether another agent may enter the street.
func (s *Street) IsFull() bool { return s.Occupancy() >= s.capacity }

// Enter admits an agent into the street body.
func (s *Street) Enter(agentID ID) error {
	if s.IsFull() {
		return errors.Wrapf(ErrCapacityExceeded, "street %d is full", s.id)
	}
	s.moving++
	return nil
}

// Enqueue places an agent at the tail of the head queue. Agents coming from
// the street body give up their body slot.
func (s *Street) Enqueue(agentID ID) error {
	for _, id := range s.queue {
		if id == agentID {
			return errors.Wrapf(ErrDuplicateOccupant, "agent %d is already queued on street %d", agentID, s.id)
		}
	}
	if Size(len(s.queue)) >= s.capacity {
		return errors.Wrapf(ErrCapacityExceeded, "street %d queue is full", s.id)
	}
	if s.moving > 0 {
		s.moving--
	}
	s.queue = append(s.queue, agentID)
	if s.spire != nil {
		s.spire.in++
	}
	return nil
}

// Dequeue removes and returns the head of the queue.
func (s *Street) Dequeue() (ID, error) {
	if len(s.queue) == 0 {
		return 0, errors.Wrapf(ErrNotFound, "street %d queue is empty", s.id)
	}
	agentID := s.queue[0]
	s.queue = s.queue[1:]
	if s.spire != nil {
		s.spire.out++
	}
	return agentID, nil
}

// Peek returns the head of the queue without removing it.
func (s *Street) Peek() (ID, bool) {
	if len(s.queue) == 0 {
		return 0, false
	}
	return s.queue[0], true
}

// Queue returns the waiting agents in FIFO order.
func (s *Street) Queue() []ID {
	out := make([]ID, len(s.queue))
	copy(out, s.queue)
	return out
}

// SetQueue replaces the head queue wholesale.
func (s *Street) SetQueue(queue []ID) {
	s.queue = make([]ID, len(queue))
	copy(s.queue, queue)
}

// QueueLen returns the number of waiting agents.
func (s *Street) QueueLen() Size { return Size(len(s.queue)) }

// MakeSpire attaches input/output flow counters to the street.
func (s *Street) MakeSpire() {
	if s.spire == nil {
		s.spire = &spireCounters{}
	}
}

// IsSpire reports whether the street tallies flow counts.
func (s *Street) IsSpire() bool { return s.spire != nil }

// InputCounts returns the agents enqueued since construction or the last
// reset.
func (s *Street) InputCounts(reset bool) Size {
	if s.spire == nil {
		return 0
	}
	c := s.spire.in
	if reset {
		s.spire.in = 0
	}
	return c
}

// OutputCounts returns the agents dequeued since construction or the last
// reset.
func (s *Street) OutputCounts(reset bool) Size {
	if s.spire == nil {
		return 0
	}
	c := s.spire.out
	if reset {
		s.spire.out = 0
	}
	return c
}
