package streetsim

import (
	"container/heap"
	"fmt"
	"math"
	"slices"

	"github.com/pkg/errors"
)

// Graph owns the nodes and streets of the road network and keeps the sparse
// adjacency matrix in sync with them. After BuildAdj every street id equals
// src*n + dst, the same linearization the adjacency matrix uses.
type Graph struct {
	nodes       map[ID]Node
	streets     map[ID]*Street
	nodeMapping map[int64]ID
	signals     map[ID]struct{}
	adjacency   *SparseMatrix[bool]
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:       make(map[ID]Node),
		streets:     make(map[ID]*Street),
		nodeMapping: make(map[int64]ID),
		signals:     make(map[ID]struct{}),
		adjacency:   NewSparseMatrix[bool](0, 0),
	}
}

// AddNode inserts a node, replacing any node with the same id.
func (g *Graph) AddNode(node Node) {
	g.nodes[node.ID()] = node
}

// AddStreet inserts a street and creates plain intersections for endpoints
// the graph does not know yet.
func (g *Graph) AddStreet(street *Street) error {
	if _, ok := g.streets[street.ID()]; ok {
		return errors.Wrapf(ErrInvalidInput, "street %d already exists", street.ID())
	}
	src, dst := street.NodePair()
	if _, ok := g.nodes[src]; !ok {
		g.nodes[src] = NewIntersection(src)
	}
	if _, ok := g.nodes[dst]; !ok {
		g.nodes[dst] = NewIntersection(dst)
	}
	g.streets[street.ID()] = street
	return nil
}

// Node returns the node with the given id.
func (g *Graph) Node(id ID) (Node, bool) {
	node, ok := g.nodes[id]
	return node, ok
}

// Street returns the street with the given id.
func (g *Graph) Street(id ID) (*Street, bool) {
	street, ok := g.streets[id]
	return street, ok
}

// StreetBetween returns the street from src to dst, if any.
func (g *Graph) StreetBetween(src, dst ID) (*Street, bool) {
	if n := g.adjacency.Rows(); n > 0 {
		street, ok := g.streets[src*n+dst]
		return street, ok
	}
	for _, id := range g.StreetIDs() {
		s, d := g.streets[id].NodePair()
		if s == src && d == dst {
			return g.streets[id], true
		}
	}
	return nil, false
}

// Nodes returns the node map. Callers must not add or remove entries.
func (g *Graph) Nodes() map[ID]Node { return g.nodes }

// Streets returns the street map. Callers must not add or remove entries.
func (g *Graph) Streets() map[ID]*Street { return g.streets }

// NodeIDs returns all node ids in ascending order.
func (g *Graph) NodeIDs() []ID {
	ids := make([]ID, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// StreetIDs returns all street ids in ascending order.
func (g *Graph) StreetIDs() []ID {
	ids := make([]ID, 0, len(g.streets))
	for id := range g.streets {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// NNodes returns the number of nodes.
func (g *Graph) NNodes() Size { return Size(len(g.nodes)) }

// NStreets returns the number of streets.
func (g *Graph) NStreets() Size { return Size(len(g.streets)) }

// AdjMatrix returns the adjacency matrix built by BuildAdj.
func (g *Graph) AdjMatrix() *SparseMatrix[bool] { return g.adjacency }

// SignalNodeIDs returns the ids of nodes the OSM importers saw tagged as
// signalized, in ascending order. Converting them into traffic lights is up
// to the caller.
func (g *Graph) SignalNodeIDs() []ID {
	ids := make([]ID, 0, len(g.signals))
	for id := range g.signals {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// BuildAdj populates the adjacency matrix from the street map and renumbers
// every street to src*n + dst, with n one past the highest node id. Street
// priorities referencing old street ids are remapped alongside.
func (g *Graph) BuildAdj() error {
	n := ID(0)
	for id := range g.nodes {
		if id >= n {
			n = id + 1
		}
	}
	g.adjacency = NewSparseMatrix[bool](n, n)
	remapped := make(map[ID]*Street, len(g.streets))
	newIDs := make(map[ID]ID, len(g.streets))
	for _, oldID := range g.StreetIDs() {
		street := g.streets[oldID]
		src, dst := street.NodePair()
		newID := src*n + dst
		if _, ok := remapped[newID]; ok {
			return errors.Wrapf(ErrInvalidInput, "duplicate street between nodes %d and %d", src, dst)
		}
		street.setID(newID)
		remapped[newID] = street
		newIDs[oldID] = newID
		if err := g.adjacency.Insert(src, dst, true); err != nil {
			return errors.Wrapf(err, "adjacency insert for street %d", newID)
		}
	}
	g.streets = remapped
	for _, node := range g.nodes {
		inter := intersectionOf(node)
		if inter == nil {
			continue
		}
		old := inter.StreetPriorities()
		priorities := make([]ID, 0, len(old))
		for _, streetID := range old {
			if newID, ok := newIDs[streetID]; ok {
				priorities = append(priorities, newID)
			}
		}
		inter.SetStreetPriorities(priorities)
	}
	g.setStreetAngles()
	return nil
}

// intersectionOf unwraps the intersection part of a node, if it has one.
func intersectionOf(node Node) *Intersection {
	switch n := node.(type) {
	case *TrafficLight:
		return &n.Intersection
	case *Intersection:
		return n
	}
	return nil
}

// setStreetAngles derives street azimuths where both endpoints carry
// coordinates.
func (g *Graph) setStreetAngles() {
	for _, street := range g.streets {
		src, dst := street.NodePair()
		srcPt, okSrc := g.nodes[src].Coords()
		dstPt, okDst := g.nodes[dst].Coords()
		if okSrc && okDst {
			street.SetAngleCoords(srcPt, dstPt)
		}
	}
}

// BuildStreetAngles derives every street azimuth, warning about streets
// whose endpoints miss coordinates.
func (g *Graph) BuildStreetAngles() {
	for _, id := range g.StreetIDs() {
		street := g.streets[id]
		src, dst := street.NodePair()
		srcPt, okSrc := g.nodes[src].Coords()
		dstPt, okDst := g.nodes[dst].Coords()
		if !okSrc || !okDst {
			fmt.Printf("Warning. Street %d endpoints miss coordinates, angle not set\n", id)
			continue
		}
		street.SetAngleCoords(srcPt, dstPt)
	}
}

// MakeTrafficLight converts an existing node into a traffic light, keeping
// id, coordinates, capacity and street priorities.
func (g *Graph) MakeTrafficLight(nodeID ID) (*TrafficLight, error) {
	node, ok := g.nodes[nodeID]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "node %d does not exist", nodeID)
	}
	tl := NewTrafficLight(nodeID)
	if pt, has := node.Coords(); has {
		tl.SetCoords(pt)
	}
	tl.capacity = node.Capacity()
	if inter := intersectionOf(node); inter != nil {
		tl.SetStreetPriorities(inter.StreetPriorities())
	}
	g.nodes[nodeID] = tl
	return tl, nil
}

// MakeRoundabout converts an existing node into a roundabout, keeping id,
// coordinates and capacity.
func (g *Graph) MakeRoundabout(nodeID ID) (*Roundabout, error) {
	node, ok := g.nodes[nodeID]
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "node %d does not exist", nodeID)
	}
	rb := NewRoundabout(nodeID)
	if pt, has := node.Coords(); has {
		rb.SetCoords(pt)
	}
	rb.capacity = node.Capacity()
	g.nodes[nodeID] = rb
	return rb, nil
}

// MakeSpireStreet attaches flow counters to an existing street.
func (g *Graph) MakeSpireStreet(streetID ID) error {
	street, ok := g.streets[streetID]
	if !ok {
		return errors.Wrapf(ErrNotFound, "street %d does not exist", streetID)
	}
	street.MakeSpire()
	return nil
}

// InboundStreetIDs returns the ids of the streets ending at the node, in
// ascending order. Valid after BuildAdj.
func (g *Graph) InboundStreetIDs(nodeID ID) []ID {
	n := g.adjacency.Rows()
	if nodeID >= n {
		return nil
	}
	col, err := g.adjacency.Col(nodeID, false)
	if err != nil {
		return nil
	}
	ids := make([]ID, 0, col.Len())
	for _, src := range col.Keys() {
		ids = append(ids, src*n+nodeID)
	}
	return ids
}

// OutboundStreetIDs returns the ids of the streets starting at the node, in
// ascending order. Valid after BuildAdj.
func (g *Graph) OutboundStreetIDs(nodeID ID) []ID {
	n := g.adjacency.Rows()
	if nodeID >= n {
		return nil
	}
	row, err := g.adjacency.Row(nodeID, false)
	if err != nil {
		return nil
	}
	ids := make([]ID, 0, row.Len())
	for _, dst := range row.Keys() {
		ids = append(ids, nodeID*n+dst)
	}
	return ids
}

// weightedEdge is one arc of the Dijkstra working graph.
type weightedEdge struct {
	to     ID
	weight float64
}

// reverseAdjacency returns, for every node, the arcs pointing INTO it, in
// ascending source order.
func (g *Graph) reverseAdjacency() map[ID][]weightedEdge {
	rev := make(map[ID][]weightedEdge, len(g.nodes))
	for _, id := range g.StreetIDs() {
		street := g.streets[id]
		src, dst := street.NodePair()
		rev[dst] = append(rev[dst], weightedEdge{to: src, weight: street.Length()})
	}
	return rev
}

// distancesTo runs Dijkstra over the reversed graph rooted at dst, yielding
// the shortest distance from every node to dst along street lengths.
func (g *Graph) distancesTo(dst ID) map[ID]float64 {
	rev := g.reverseAdjacency()
	dist := make(map[ID]float64, len(g.nodes))
	for id := range g.nodes {
		dist[id] = math.Inf(1)
	}
	dist[dst] = 0

	pq := &distanceQueue{}
	heap.Init(pq)
	heap.Push(pq, &distanceItem{node: dst, priority: 0})
	for pq.Len() > 0 {
		it := heap.Pop(pq).(*distanceItem)
		if it.priority > dist[it.node] {
			continue
		}
		for _, e := range rev[it.node] {
			if alt := dist[it.node] + e.weight; alt < dist[e.to] {
				dist[e.to] = alt
				heap.Push(pq, &distanceItem{node: e.to, priority: alt})
			}
		}
	}
	return dist
}

// PathMatrix returns the successor-set matrix toward dst: entry (u, v) is
// true iff some shortest path from u to dst starts with the street (u, v).
// Ties are all retained; rows of unreachable nodes stay empty.
func (g *Graph) PathMatrix(dst ID) (*SparseMatrix[bool], error) {
	n := g.adjacency.Rows()
	if n == 0 {
		return nil, errors.Wrap(ErrNotConfigured, "adjacency matrix not built")
	}
	if _, ok := g.nodes[dst]; !ok {
		return nil, errors.Wrapf(ErrNotFound, "node %d does not exist", dst)
	}
	dist := g.distancesTo(dst)
	path := NewSparseMatrix[bool](n, n)
	for _, id := range g.StreetIDs() {
		street := g.streets[id]
		src, to := street.NodePair()
		du, dv := dist[src], dist[to]
		if math.IsInf(du, 1) || math.IsInf(dv, 1) {
			continue
		}
		if sameDistance(dv+street.Length(), du) {
			if err := path.Insert(src, to, true); err != nil {
				return nil, err
			}
		}
	}
	return path, nil
}

// ShortestPath returns the successor nodes of src on the shortest paths
// toward dst, with the distance. An unreachable destination yields an empty
// successor set and an infinite distance.
func (g *Graph) ShortestPath(src, dst ID) ([]ID, float64, error) {
	path, err := g.PathMatrix(dst)
	if err != nil {
		return nil, 0, err
	}
	dist := g.distancesTo(dst)
	row, err := path.Row(src, false)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "source node %d", src)
	}
	return row.Keys(), dist[src], nil
}

// sameDistance compares path lengths with a relative tolerance so that
// equal-length alternatives built from float sums still tie.
func sameDistance(a, b float64) bool {
	tol := 1e-9 * math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
	return math.Abs(a-b) <= tol
}

// distanceItem and distanceQueue implement the Dijkstra priority queue.
type distanceItem struct {
	node     ID
	priority float64
}

type distanceQueue []*distanceItem

func (pq distanceQueue) Len() int           { return len(pq) }
func (pq distanceQueue) Less(i, j int) bool { return pq[i].priority < pq[j].priority }
func (pq distanceQueue) Swap(i, j int)      { pq[i], pq[j] = pq[j], pq[i] }
func (pq *distanceQueue) Push(x any)        { *pq = append(*pq, x.(*distanceItem)) }
func (pq *distanceQueue) Pop() any {
	old := *pq
	n := len(old)
	it := old[n-1]
	*pq = old[:n-1]
	return it
}
