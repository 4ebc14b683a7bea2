package streetsim

import (
	"math"
	"slices"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

// Node is a vertex of the road graph: a plain intersection, a signalized
// intersection or a roundabout. The dynamics engine dispatches on the
// concrete type at the two sites that need it (admission and discharge).
type Node interface {
	ID() ID
	Coords() (orb.Point, bool)
	SetCoords(pt orb.Point)
	Capacity() Size
	SetCapacity(capacity Size) error
	IsFull() bool
}

// nodeBase carries the header shared by every node variant.
type nodeBase struct {
	id       ID
	coords   *orb.Point
	capacity Size
}

func (n *nodeBase) ID() ID { return n.id }

func (n *nodeBase) Coords() (orb.Point, bool) {
	if n.coords == nil {
		return orb.Point{}, false
	}
	return *n.coords, true
}

func (n *nodeBase) SetCoords(pt orb.Point) { n.coords = &pt }

func (n *nodeBase) Capacity() Size { return n.capacity }

// keyedAgent is one occupant of an intersection, ordered by its angle
// priority. Smaller keys discharge first.
type keyedAgent struct {
	key     int16
	agentID ID
}

// Intersection is a capacity-limited node discharging agents in
// angle-priority order.
type Intersection struct {
	nodeBase
	agents           []keyedAgent
	streetPriorities map[ID]struct{}
	agentCounter     Size
}

// NewIntersection returns an intersection with capacity 1.
func NewIntersection(id ID) *Intersection {
	return &Intersection{
		nodeBase:         nodeBase{id: id, capacity: 1},
		streetPriorities: make(map[ID]struct{}),
	}
}

// SetCapacity rejects capacities below the current occupancy.
func (n *Intersection) SetCapacity(capacity Size) error {
	if capacity < Size(len(n.agents)) {
		return errors.Wrapf(ErrCapacityExceeded, "node %d holds %d agents, cannot shrink to %d", n.id, len(n.agents), capacity)
	}
	n.capacity = capacity
	return nil
}

func (n *Intersection) IsFull() bool { return Size(len(n.agents)) >= n.capacity }

// AddAgentAngle admits an agent with the priority key round(angle*100).
func (n *Intersection) AddAgentAngle(angle float64, agentID ID) error {
	return n.admit(int16(math.Round(angle*100)), agentID)
}

// AddAgent admits an agent at the tail of the discharge order.
func (n *Intersection) AddAgent(agentID ID) error {
	key := int16(0)
	if len(n.agents) > 0 {
		key = n.agents[len(n.agents)-1].key + 1
	}
	return n.admit(key, agentID)
}

func (n *Intersection) admit(key int16, agentID ID) error {
	if n.IsFull() {
		return errors.Wrapf(ErrCapacityExceeded, "node %d is full", n.id)
	}
	for _, a := range n.agents {
		if a.agentID == agentID {
			return errors.Wrapf(ErrDuplicateOccupant, "agent %d is already on node %d", agentID, n.id)
		}
	}
	// Insert after any equal key so equal priorities keep arrival order.
	at := len(n.agents)
	for i, a := range n.agents {
		if a.key > key {
			at = i
			break
		}
	}
	n.agents = slices.Insert(n.agents, at, keyedAgent{key: key, agentID: agentID})
	n.agentCounter++
	return nil
}

// RemoveAgent removes the first occupant matching the id.
func (n *Intersection) RemoveAgent(agentID ID) error {
	for i, a := range n.agents {
		if a.agentID == agentID {
			n.agents = slices.Delete(n.agents, i, i+1)
			return nil
		}
	}
	return errors.Wrapf(ErrNotFound, "agent %d is not on node %d", agentID, n.id)
}

// Agents returns the occupants in discharge order.
func (n *Intersection) Agents() []ID {
	ids := make([]ID, len(n.agents))
	for i, a := range n.agents {
		ids[i] = a.agentID
	}
	return ids
}

// NAgents returns the current occupancy.
func (n *Intersection) NAgents() Size { return Size(len(n.agents)) }

// SetStreetPriorities replaces the inbound streets enjoying main-road
// priority.
func (n *Intersection) SetStreetPriorities(streetIDs []ID) {
	n.streetPriorities = make(map[ID]struct{}, len(streetIDs))
	for _, id := range streetIDs {
		n.streetPriorities[id] = struct{}{}
	}
}

// AddStreetPriority marks one inbound street as a main road.
func (n *Intersection) AddStreetPriority(streetID ID) {
	n.streetPriorities[streetID] = struct{}{}
}

// HasStreetPriority reports whether the inbound street is a main road.
func (n *Intersection) HasStreetPriority(streetID ID) bool {
	_, ok := n.streetPriorities[streetID]
	return ok
}

// StreetPriorities returns the main-road street ids in ascending order.
func (n *Intersection) StreetPriorities() []ID {
	ids := make([]ID, 0, len(n.streetPriorities))
	for id := range n.streetPriorities {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// AgentCounter returns the admissions since the last call and resets the
// counter.
func (n *Intersection) AgentCounter() Size {
	c := n.agentCounter
	n.agentCounter = 0
	return c
}
