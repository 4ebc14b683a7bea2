package streetsim

import "github.com/pkg/errors"

// Roundabout is a capacity-bounded node discharging agents strictly FIFO.
type Roundabout struct {
	nodeBase
	queue []ID
}

// NewRoundabout returns a roundabout with capacity 1.
func NewRoundabout(id ID) *Roundabout {
	return &Roundabout{nodeBase: nodeBase{id: id, capacity: 1}}
}

// SetCapacity rejects capacities below the current occupancy.
func (r *Roundabout) SetCapacity(capacity Size) error {
	if capacity < Size(len(r.queue)) {
		return errors.Wrapf(ErrCapacityExceeded, "roundabout %d holds %d agents, cannot shrink to %d", r.id, len(r.queue), capacity)
	}
	r.capacity = capacity
	return nil
}

func (r *Roundabout) IsFull() bool { return Size(len(r.queue)) >= r.capacity }

// Enqueue admits an agent at the tail of the ring.
func (r *Roundabout) Enqueue(agentID ID) error {
	for _, id := range r.queue {
		if id == agentID {
			return errors.Wrapf(ErrDuplicateOccupant, "agent %d is already on roundabout %d", agentID, r.id)
		}
	}
	if r.IsFull() {
		return errors.Wrapf(ErrCapacityExceeded, "roundabout %d is full", r.id)
	}
	r.queue = append(r.queue, agentID)
	return nil
}

// Dequeue removes and returns the head of the ring.
func (r *Roundabout) Dequeue() (ID, error) {
	if len(r.queue) == 0 {
		return 0, errors.Wrapf(ErrNotFound, "roundabout %d is empty", r.id)
	}
	agentID := r.queue[0]
	r.queue = r.queue[1:]
	return agentID, nil
}

// Agents returns the occupants in FIFO order.
func (r *Roundabout) Agents() []ID {
	out := make([]ID, len(r.queue))
	copy(out, r.queue)
	return out
}

// NAgents returns the current occupancy.
func (r *Roundabout) NAgents() Size { return Size(len(r.queue)) }
