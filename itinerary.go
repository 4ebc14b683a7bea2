package streetsim

// Itinerary is a destination node plus the routing matrix of valid next
// hops along shortest paths toward it. The matrix entry (u, v) is true iff
// v is a valid successor of u; it is rebuilt by Dynamics.UpdatePaths.
type Itinerary struct {
	id          ID
	destination ID
	path        *SparseMatrix[bool]
}

// NewItinerary returns an itinerary without a routing matrix yet.
func NewItinerary(id, destination ID) *Itinerary {
	return &Itinerary{id: id, destination: destination}
}

func (it *Itinerary) ID() ID          { return it.id }
func (it *Itinerary) Destination() ID { return it.destination }

// SetDestination retargets the itinerary and invalidates the routing
// matrix.
func (it *Itinerary) SetDestination(destination ID) {
	it.destination = destination
	it.path = nil
}

// Path returns the routing matrix, or nil before the first UpdatePaths.
func (it *Itinerary) Path() *SparseMatrix[bool] { return it.path }

func (it *Itinerary) setPath(path *SparseMatrix[bool]) { it.path = path }
