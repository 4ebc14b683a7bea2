package streetsim

import (
	"math"
	"math/rand"
	"slices"
	"sort"
	"sync/atomic"

	"github.com/pkg/errors"
)

// TurnStats tallies the turning decisions taken at nodes since the last
// read.
type TurnStats struct {
	Straight uint64
	Left     uint64
	Right    uint64
	UTurn    uint64
}

// SpawnPlan injects agents at source nodes every tick, sampling the
// itinerary uniformly from the configured set.
type SpawnPlan struct {
	Sources     []ID
	Itineraries []ID
	Rate        Size
}

// Dynamics advances the network state in fixed ticks. It owns the graph,
// the agents, the itineraries and the random generator; with a fixed seed,
// topology and configuration every run is bit-identical, which is why every
// iteration that feeds a random draw or a priority decision goes through
// key-sorted id slices.
type Dynamics struct {
	graph               *Graph
	agents              map[ID]*Agent
	itineraries         map[ID]*Itinerary
	time                uint64
	rng                 *rand.Rand
	errorProbability    float64
	minSpeedRateo       float64
	speedFluctuationSTD float64
	stopped             atomic.Bool
	nextAgentID         ID
	arrivals            Size
	travelTimes         []uint64
	turns               TurnStats
	spawn               *SpawnPlan
}

// NewDynamics returns an engine owning the graph, with error probability 0
// and minimum speed ratio 0.
func NewDynamics(graph *Graph, seed uint64) *Dynamics {
	return &Dynamics{
		graph:       graph,
		agents:      make(map[ID]*Agent),
		itineraries: make(map[ID]*Itinerary),
		rng:         rand.New(rand.NewSource(int64(seed))),
	}
}

// Graph returns the owned graph. It must not be mutated while Evolve runs.
func (d *Dynamics) Graph() *Graph { return d.graph }

// Time returns the current tick.
func (d *Dynamics) Time() uint64 { return d.time }

// SetSeed reseeds the random generator.
func (d *Dynamics) SetSeed(seed uint64) {
	d.rng = rand.New(rand.NewSource(int64(seed)))
}

// SetErrorProbability sets the chance a discharge ignores the routing
// matrix and picks any adjacent street.
func (d *Dynamics) SetErrorProbability(p float64) error {
	if p < 0 || p > 1 {
		return errors.Wrapf(ErrInvalidInput, "error probability %f outside [0, 1]", p)
	}
	d.errorProbability = p
	return nil
}

// SetMinSpeedRateo sets the speed fraction left at full density.
func (d *Dynamics) SetMinSpeedRateo(r float64) error {
	if r < 0 || r > 1 {
		return errors.Wrapf(ErrInvalidInput, "min speed rateo %f outside [0, 1]", r)
	}
	d.minSpeedRateo = r
	return nil
}

// SetSpeedFluctuationSTD adds a gaussian fluctuation to the speed assigned
// on street entry.
func (d *Dynamics) SetSpeedFluctuationSTD(std float64) error {
	if std < 0 {
		return errors.Wrapf(ErrInvalidInput, "negative speed fluctuation %f", std)
	}
	d.speedFluctuationSTD = std
	return nil
}

// SetSpawnPlan configures per-tick agent injection. Pass nil to disable.
func (d *Dynamics) SetSpawnPlan(plan *SpawnPlan) { d.spawn = plan }

// AddItinerary registers an itinerary, replacing any with the same id.
func (d *Dynamics) AddItinerary(it *Itinerary) {
	d.itineraries[it.ID()] = it
}

// Itinerary returns the itinerary with the given id.
func (d *Dynamics) Itinerary(id ID) (*Itinerary, bool) {
	it, ok := d.itineraries[id]
	return it, ok
}

// ItineraryIDs returns the registered itinerary ids in ascending order.
func (d *Dynamics) ItineraryIDs() []ID {
	ids := make([]ID, 0, len(d.itineraries))
	for id := range d.itineraries {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Agent returns the live agent with the given id.
func (d *Dynamics) Agent(id ID) (*Agent, bool) {
	a, ok := d.agents[id]
	return a, ok
}

// AgentIDs returns the live agent ids in ascending order.
func (d *Dynamics) AgentIDs() []ID {
	ids := make([]ID, 0, len(d.agents))
	for id := range d.agents {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// NAgents returns the number of live agents.
func (d *Dynamics) NAgents() Size { return Size(len(d.agents)) }

// Arrivals returns the agents that reached their destination since the
// start of the run.
func (d *Dynamics) Arrivals() Size { return d.arrivals }

// Stop asks the engine to halt; Run polls the flag between ticks.
func (d *Dynamics) Stop() { d.stopped.Store(true) }

// Stopped reports whether Stop was called.
func (d *Dynamics) Stopped() bool { return d.stopped.Load() }

// UpdatePaths rebuilds the routing matrix of every itinerary. Call it
// after any change to topology or street lengths.
func (d *Dynamics) UpdatePaths() error {
	for _, id := range d.ItineraryIDs() {
		it := d.itineraries[id]
		path, err := d.graph.PathMatrix(it.Destination())
		if err != nil {
			return errors.Wrapf(err, "itinerary %d", id)
		}
		it.setPath(path)
	}
	return nil
}

// AddAgent creates an agent and parks it at the source node, occupying it.
func (d *Dynamics) AddAgent(itineraryID, srcNodeID ID) (*Agent, error) {
	if _, ok := d.itineraries[itineraryID]; !ok {
		return nil, errors.Wrapf(ErrNotFound, "itinerary %d does not exist", itineraryID)
	}
	node, ok := d.graph.Node(srcNodeID)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "node %d does not exist", srcNodeID)
	}
	agent := NewAgent(d.nextAgentID, itineraryID, srcNodeID)
	switch n := node.(type) {
	case *Roundabout:
		if err := n.Enqueue(agent.ID()); err != nil {
			return nil, err
		}
	default:
		if err := intersectionOf(node).AddAgent(agent.ID()); err != nil {
			return nil, err
		}
	}
	d.nextAgentID++
	d.agents[agent.ID()] = agent
	return agent, nil
}

// AddAgentsUniformly creates n agents on streets chosen uniformly at
// random, each with an itinerary chosen uniformly among the registered
// ones.
func (d *Dynamics) AddAgentsUniformly(n Size) error {
	itineraryIDs := d.ItineraryIDs()
	if len(itineraryIDs) == 0 {
		return errors.Wrap(ErrNotConfigured, "no itineraries registered")
	}
	streetIDs := d.graph.StreetIDs()
	if len(streetIDs) == 0 {
		return errors.Wrap(ErrNotConfigured, "no streets in graph")
	}
	for k := Size(0); k < n; k++ {
		itineraryID := itineraryIDs[d.rng.Intn(len(itineraryIDs))]
		var street *Street
		for attempt := 0; attempt < len(streetIDs); attempt++ {
			candidate, _ := d.graph.Street(streetIDs[d.rng.Intn(len(streetIDs))])
			if !candidate.IsFull() {
				street = candidate
				break
			}
		}
		if street == nil {
			return errors.Wrapf(ErrCapacityExceeded, "no free street for agent %d", d.nextAgentID)
		}
		src, _ := street.NodePair()
		agent := NewAgent(d.nextAgentID, itineraryID, src)
		d.nextAgentID++
		d.agents[agent.ID()] = agent
		if err := d.enterStreet(agent, street); err != nil {
			return err
		}
	}
	return nil
}

// streetSpeed returns the entry speed on a street under the linear
// speed-density law, clamped to [minSpeedRateo*maxSpeed, maxSpeed].
func (d *Dynamics) streetSpeed(street *Street) float64 {
	v := street.MaxSpeed() * (1 - (1-d.minSpeedRateo)*street.Density())
	return clampSpeed(v, street.MaxSpeed(), d.minSpeedRateo)
}

func clampSpeed(v, maxSpeed, minRateo float64) float64 {
	if v < minRateo*maxSpeed {
		return minRateo * maxSpeed
	}
	if v > maxSpeed {
		return maxSpeed
	}
	return v
}

// enterStreet moves an agent onto a street body with a freshly computed
// delay.
func (d *Dynamics) enterStreet(agent *Agent, street *Street) error {
	if err := street.Enter(agent.ID()); err != nil {
		return err
	}
	speed := d.streetSpeed(street)
	if d.speedFluctuationSTD > 0 {
		speed = clampSpeed(speed*(1+d.speedFluctuationSTD*d.rng.NormFloat64()), street.MaxSpeed(), d.minSpeedRateo)
	}
	streetID := street.ID()
	agent.street = &streetID
	agent.nextStreet = nil
	agent.speed = speed
	agent.delay = Delay(math.Ceil(street.Length() / speed))
	if agent.delay == 0 {
		// Zero-length streets put the agent straight into the head queue.
		return street.Enqueue(agent.ID())
	}
	return nil
}

// chooseNextStreet draws the outbound street for an agent standing at a
// node: uniformly among the itinerary successors, or, with the error
// probability, uniformly among all adjacent streets.
func (d *Dynamics) chooseNextStreet(agent *Agent, nodeID ID) (ID, bool) {
	n := d.graph.AdjMatrix().Rows()
	var successors []ID
	if d.rng.Float64() < d.errorProbability {
		if row, err := d.graph.AdjMatrix().Row(nodeID, false); err == nil {
			successors = row.Keys()
		}
	} else {
		it, ok := d.itineraries[agent.ItineraryID()]
		if ok && it.Path() != nil && nodeID < it.Path().Rows() {
			if row, err := it.Path().Row(nodeID, false); err == nil {
				successors = row.Keys()
			}
		}
	}
	if len(successors) == 0 {
		return 0, false
	}
	pick := successors[d.rng.Intn(len(successors))]
	return nodeID*n + pick, true
}

// nextStreetFor consumes the choice recorded at node admission, falling
// back to a fresh draw.
func (d *Dynamics) nextStreetFor(agent *Agent, nodeID ID) (ID, bool) {
	if agent.nextStreet != nil {
		next := *agent.nextStreet
		agent.nextStreet = nil
		return next, true
	}
	return d.chooseNextStreet(agent, nodeID)
}

// recordTurn classifies the angle between the inbound and outbound street.
func (d *Dynamics) recordTurn(angleIn, angleOut float64) {
	delta := angleOut - angleIn
	for delta > math.Pi {
		delta -= 2 * math.Pi
	}
	for delta < -math.Pi {
		delta += 2 * math.Pi
	}
	switch {
	case math.Abs(delta) <= math.Pi/4:
		d.turns.Straight++
	case delta > math.Pi/4 && delta <= 3*math.Pi/4:
		d.turns.Left++
	case delta < -math.Pi/4 && delta >= -3*math.Pi/4:
		d.turns.Right++
	default:
		d.turns.UTurn++
	}
}

// orderedInbound returns the inbound streets of a node in admission
// priority: main-road streets first, then by descending density, ties by
// ascending street id.
func (d *Dynamics) orderedInbound(node Node) []*Street {
	ids := d.graph.InboundStreetIDs(node.ID())
	streets := make([]*Street, 0, len(ids))
	for _, id := range ids {
		streets = append(streets, d.graph.streets[id])
	}
	inter := intersectionOf(node)
	hasPriority := func(streetID ID) bool {
		return inter != nil && inter.HasStreetPriority(streetID)
	}
	sort.SliceStable(streets, func(i, j int) bool {
		pi, pj := hasPriority(streets[i].ID()), hasPriority(streets[j].ID())
		if pi != pj {
			return pi
		}
		di, dj := streets[i].Density(), streets[j].Density()
		if di != dj {
			return di > dj
		}
		return streets[i].ID() < streets[j].ID()
	})
	return streets
}

// Evolve advances the simulation by one tick: traffic lights, agents in
// transit, street heads into nodes, nodes into outbound streets, spawn,
// time. A failed invariant aborts the tick with the partial state intact.
func (d *Dynamics) Evolve() error {
	g := d.graph

	// Traffic lights.
	for _, nodeID := range g.NodeIDs() {
		if tl, ok := g.nodes[nodeID].(*TrafficLight); ok {
			if err := tl.IncreaseCounter(); err != nil {
				return errors.Wrapf(err, "tick %d", d.time)
			}
		}
	}

	// Agents in transit inside street bodies.
	for _, agentID := range d.AgentIDs() {
		agent := d.agents[agentID]
		if agent.street == nil || agent.delay == 0 {
			continue
		}
		street := g.streets[*agent.street]
		agent.delay--
		agent.distance += agent.speed
		if agent.delay == 0 {
			if err := street.Enqueue(agentID); err != nil {
				return errors.Wrapf(err, "tick %d", d.time)
			}
		}
	}

	// Street heads discharge into their destination nodes.
	for _, nodeID := range g.NodeIDs() {
		node := g.nodes[nodeID]
		for _, street := range d.orderedInbound(node) {
			quota := street.TransportCapacity()
			for quota > 0 {
				agentID, ok := street.Peek()
				if !ok {
					break
				}
				if tl, isTL := node.(*TrafficLight); isTL {
					green, err := tl.IsGreenFor(street.ID())
					if err != nil {
						return errors.Wrapf(err, "tick %d", d.time)
					}
					if !green {
						break
					}
				}
				agent := d.agents[agentID]
				it := d.itineraries[agent.ItineraryID()]
				if it != nil && it.Destination() == nodeID {
					if _, err := street.Dequeue(); err != nil {
						return errors.Wrapf(err, "tick %d", d.time)
					}
					d.arrive(agent)
					quota--
					continue
				}
				if node.IsFull() {
					break
				}
				next, hasNext := d.chooseNextStreet(agent, nodeID)
				if _, err := street.Dequeue(); err != nil {
					return errors.Wrapf(err, "tick %d", d.time)
				}
				switch n := node.(type) {
				case *Roundabout:
					if err := n.Enqueue(agentID); err != nil {
						return errors.Wrapf(err, "tick %d", d.time)
					}
				default:
					inter := intersectionOf(node)
					if hasNext {
						out := g.streets[next]
						d.recordTurn(street.Angle(), out.Angle())
						if err := inter.AddAgentAngle(street.Angle()-out.Angle(), agentID); err != nil {
							return errors.Wrapf(err, "tick %d", d.time)
						}
					} else if err := inter.AddAgent(agentID); err != nil {
						return errors.Wrapf(err, "tick %d", d.time)
					}
				}
				agent.street = nil
				agent.speed = 0
				agent.srcNodeID = nodeID
				if hasNext {
					agent.nextStreet = &next
				}
				quota--
			}
		}
	}

	// Nodes discharge into outbound streets.
	for _, nodeID := range g.NodeIDs() {
		node := g.nodes[nodeID]
		switch n := node.(type) {
		case *Roundabout:
			for {
				occupants := n.Agents()
				if len(occupants) == 0 {
					break
				}
				agent := d.agents[occupants[0]]
				next, ok := d.nextStreetFor(agent, nodeID)
				if !ok {
					break
				}
				street := g.streets[next]
				if street.IsFull() {
					break
				}
				if _, err := n.Dequeue(); err != nil {
					return errors.Wrapf(err, "tick %d", d.time)
				}
				if err := d.enterStreet(agent, street); err != nil {
					return errors.Wrapf(err, "tick %d", d.time)
				}
			}
		default:
			inter := intersectionOf(node)
			for _, agentID := range inter.Agents() {
				agent := d.agents[agentID]
				next, ok := d.nextStreetFor(agent, nodeID)
				if !ok {
					continue
				}
				street := g.streets[next]
				if street.IsFull() {
					continue
				}
				if err := inter.RemoveAgent(agentID); err != nil {
					return errors.Wrapf(err, "tick %d", d.time)
				}
				if err := d.enterStreet(agent, street); err != nil {
					return errors.Wrapf(err, "tick %d", d.time)
				}
			}
		}
	}

	// Spawn.
	if d.spawn != nil && len(d.spawn.Sources) > 0 && len(d.spawn.Itineraries) > 0 {
		for k := Size(0); k < d.spawn.Rate; k++ {
			src := d.spawn.Sources[d.rng.Intn(len(d.spawn.Sources))]
			itineraryID := d.spawn.Itineraries[d.rng.Intn(len(d.spawn.Itineraries))]
			if _, err := d.AddAgent(itineraryID, src); err != nil {
				// A full source node just skips this spawn.
				if errors.Is(err, ErrCapacityExceeded) {
					continue
				}
				return errors.Wrapf(err, "tick %d", d.time)
			}
		}
	}

	for _, agentID := range d.AgentIDs() {
		d.agents[agentID].time++
	}
	d.time++
	return nil
}

// Run evolves the simulation for the given number of ticks, polling the
// stop flag between ticks.
func (d *Dynamics) Run(ticks uint64) error {
	for i := uint64(0); i < ticks; i++ {
		if d.Stopped() {
			return nil
		}
		if err := d.Evolve(); err != nil {
			return err
		}
	}
	return nil
}

func (d *Dynamics) arrive(agent *Agent) {
	delete(d.agents, agent.ID())
	d.arrivals++
	d.travelTimes = append(d.travelTimes, agent.Time()+1)
}

// MeanSpeed returns the unweighted mean of per-street entry speeds.
func (d *Dynamics) MeanSpeed() float64 {
	if len(d.graph.streets) == 0 {
		return 0
	}
	sum := 0.0
	for _, street := range d.graph.streets {
		sum += d.streetSpeed(street)
	}
	return sum / float64(len(d.graph.streets))
}

// MeanDensity returns the unweighted mean of per-street densities.
func (d *Dynamics) MeanDensity() float64 {
	if len(d.graph.streets) == 0 {
		return 0
	}
	sum := 0.0
	for _, street := range d.graph.streets {
		sum += street.Density()
	}
	return sum / float64(len(d.graph.streets))
}

// MeanFlow returns the unweighted mean of per-street flows (density times
// speed).
func (d *Dynamics) MeanFlow() float64 {
	if len(d.graph.streets) == 0 {
		return 0
	}
	sum := 0.0
	for _, street := range d.graph.streets {
		sum += street.Density() * d.streetSpeed(street)
	}
	return sum / float64(len(d.graph.streets))
}

// MeanAgentSpeed returns the mean speed of the live agents. Agents parked
// at nodes count as standing still.
func (d *Dynamics) MeanAgentSpeed() float64 {
	if len(d.agents) == 0 {
		return 0
	}
	sum := 0.0
	for _, agent := range d.agents {
		sum += agent.Speed()
	}
	return sum / float64(len(d.agents))
}

// MeanTravelTime returns the mean travel time of the agents arrived since
// the last reset, in ticks.
func (d *Dynamics) MeanTravelTime(reset bool) float64 {
	if len(d.travelTimes) == 0 {
		return 0
	}
	sum := 0.0
	for _, t := range d.travelTimes {
		sum += float64(t)
	}
	mean := sum / float64(len(d.travelTimes))
	if reset {
		d.travelTimes = d.travelTimes[:0]
	}
	return mean
}

// TurnCounts returns the turning decisions since the last reset.
func (d *Dynamics) TurnCounts(reset bool) TurnStats {
	t := d.turns
	if reset {
		d.turns = TurnStats{}
	}
	return t
}
