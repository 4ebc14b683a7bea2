package streetsim

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/paulmach/orb"
	"github.com/pkg/errors"
)

func TestGraphBuildAdj(t *testing.T) {
	g := NewGraph()
	g.AddStreet(NewStreet(0, 0, 1, WithLength(100)))
	g.AddStreet(NewStreet(1, 1, 2, WithLength(50)))
	g.AddStreet(NewStreet(2, 2, 0, WithLength(70)))
	if err := g.BuildAdj(); err != nil {
		t.Fatal(err)
	}
	n := g.AdjMatrix().Rows()
	if n != 3 {
		t.Fatalf("expected 3x3 adjacency, got %d", n)
	}
	for _, id := range g.StreetIDs() {
		street, _ := g.Street(id)
		src, dst := street.NodePair()
		if id != src*n+dst {
			t.Errorf("street %d: expected id %d", id, src*n+dst)
		}
		if !g.AdjMatrix().Has(src, dst) {
			t.Errorf("adjacency misses street %d", id)
		}
	}
	if g.AdjMatrix().Len() != 3 {
		t.Errorf("expected 3 adjacency entries, got %d", g.AdjMatrix().Len())
	}
	if _, ok := g.StreetBetween(1, 2); !ok {
		t.Error("street between 1 and 2 not found")
	}
	if _, ok := g.StreetBetween(2, 1); ok {
		t.Error("phantom street between 2 and 1")
	}
}

func TestGraphBuildAdjRemapsPriorities(t *testing.T) {
	g := NewGraph()
	g.AddStreet(NewStreet(0, 0, 1))
	g.AddStreet(NewStreet(1, 2, 1))
	node, _ := g.Node(1)
	intersectionOf(node).AddStreetPriority(0) // provisional id of street 0->1
	if err := g.BuildAdj(); err != nil {
		t.Fatal(err)
	}
	n := g.AdjMatrix().Rows()
	inter := intersectionOf(g.nodes[1])
	if !inter.HasStreetPriority(0*n + 1) {
		t.Errorf("priority not remapped, have %v", inter.StreetPriorities())
	}
	if inter.HasStreetPriority(0) {
		t.Error("stale provisional priority survived")
	}
}

func TestGraphImportMatrix(t *testing.T) {
	dir := t.TempDir()
	fname := filepath.Join(dir, "matrix.dat")
	content := "2 f\n0 100\n0 0\n"
	if err := os.WriteFile(fname, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	g := NewGraph()
	if err := g.ImportMatrix(fname, false); err != nil {
		t.Fatal(err)
	}
	if g.NNodes() != 2 {
		t.Fatalf("expected 2 nodes, got %d", g.NNodes())
	}
	street, ok := g.Street(1) // 0*2+1
	if !ok {
		t.Fatal("street 0->1 missing")
	}
	if street.Length() != 100 {
		t.Errorf("expected length 100, got %f", street.Length())
	}
	src, dst := street.NodePair()
	if src != 0 || dst != 1 {
		t.Errorf("unexpected node pair (%d, %d)", src, dst)
	}
	if !g.AdjMatrix().Has(0, 1) || g.AdjMatrix().Has(1, 0) {
		t.Error("adjacency wrong")
	}
}

func TestGraphImportMatrixAdjacencyFlag(t *testing.T) {
	dir := t.TempDir()
	fname := filepath.Join(dir, "matrix.dat")
	if err := os.WriteFile(fname, []byte("2 i\n0 5\n5 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	g := NewGraph()
	if err := g.ImportMatrix(fname, true); err != nil {
		t.Fatal(err)
	}
	street, _ := g.Street(1)
	if street.Length() != 1 {
		t.Errorf("adjacency import should default lengths to 1, got %f", street.Length())
	}
}

func TestGraphImportMatrixMalformed(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"short":    "2 f\n0 1 0\n",
		"long":     "2 f\n0 1 0 0 1\n",
		"badtype":  "2 x\n0 1 0 0\n",
		"negative": "2 f\n0 -1 0 0\n",
		"badtoken": "2 i\n0 1.5 0 0\n",
	}
	for name, content := range cases {
		fname := filepath.Join(dir, name+".dat")
		if err := os.WriteFile(fname, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
		g := NewGraph()
		if err := g.ImportMatrix(fname, false); !errors.Is(err, ErrInvalidInput) {
			t.Errorf("%s: expected invalid input, got %v", name, err)
		}
	}
}

func TestGraphExportImportRoundTrip(t *testing.T) {
	dir := t.TempDir()
	fname := filepath.Join(dir, "matrix.dat")
	if err := os.WriteFile(fname, []byte("3 f\n0 100 0\n0 0 50\n70 0 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	g := NewGraph()
	if err := g.ImportMatrix(fname, false); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "out.dat")
	if err := g.ExportMatrix(out, false); err != nil {
		t.Fatal(err)
	}
	g2 := NewGraph()
	if err := g2.ImportMatrix(out, false); err != nil {
		t.Fatal(err)
	}
	if g2.NStreets() != g.NStreets() || g2.NNodes() != g.NNodes() {
		t.Fatalf("round trip lost topology: %d/%d streets, %d/%d nodes",
			g2.NStreets(), g.NStreets(), g2.NNodes(), g.NNodes())
	}
	for _, id := range g.StreetIDs() {
		s1, _ := g.Street(id)
		s2, ok := g2.Street(id)
		if !ok {
			t.Errorf("street %d lost", id)
			continue
		}
		if math.Abs(s1.Length()-s2.Length()) > 1e-6 {
			t.Errorf("street %d: length %f vs %f", id, s1.Length(), s2.Length())
		}
	}
}

func TestGraphImportCoordinates(t *testing.T) {
	dir := t.TempDir()
	matrix := filepath.Join(dir, "matrix.dat")
	if err := os.WriteFile(matrix, []byte("2 f\n0 100\n0 0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	coords := filepath.Join(dir, "coords.dat")
	if err := os.WriteFile(coords, []byte("45.0 9.0\n46.0 9.0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	g := NewGraph()
	if err := g.ImportMatrix(matrix, false); err != nil {
		t.Fatal(err)
	}
	if err := g.ImportCoordinates(coords); err != nil {
		t.Fatal(err)
	}
	node, _ := g.Node(0)
	pt, ok := node.Coords()
	if !ok {
		t.Fatal("node 0 misses coordinates")
	}
	if pt.Lat() != 45.0 || pt.Lon() != 9.0 {
		t.Errorf("unexpected coordinates %v", pt)
	}
	g.BuildStreetAngles()
	street, _ := g.Street(1)
	if math.Abs(street.Angle()-math.Pi/2) > 1e-12 {
		t.Errorf("expected north azimuth pi/2, got %f", street.Angle())
	}

	short := filepath.Join(dir, "short.dat")
	if err := os.WriteFile(short, []byte("45.0 9.0\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := g.ImportCoordinates(short); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected invalid input for short file, got %v", err)
	}
}

func TestGraphImportOSMCSV(t *testing.T) {
	dir := t.TempDir()
	nodesFile := filepath.Join(dir, "nodes.csv")
	nodesCSV := "id;lat;lon;highway\n" +
		"1001;45.0;9.0;traffic_signals\n" +
		"1002;45.1;9.0;\n" +
		"1003;45.2;9.0;\n"
	if err := os.WriteFile(nodesFile, []byte(nodesCSV), 0644); err != nil {
		t.Fatal(err)
	}
	edgesFile := filepath.Join(dir, "edges.csv")
	edgesCSV := "u;v;length;oneway;highway;maxspeed;name\n" +
		"1001;1002;150.0;true;residential;13.9;via Roma\n" +
		"1002;1003;80.0;false;residential;;via Milano\n"
	if err := os.WriteFile(edgesFile, []byte(edgesCSV), 0644); err != nil {
		t.Fatal(err)
	}
	g := NewGraph()
	if err := g.ImportOSMNodes(nodesFile, false); err != nil {
		t.Fatal(err)
	}
	if err := g.ImportOSMEdges(edgesFile, false); err != nil {
		t.Fatal(err)
	}
	if g.NNodes() != 3 {
		t.Fatalf("expected 3 nodes, got %d", g.NNodes())
	}
	// One oneway row plus one bidirectional row.
	if g.NStreets() != 3 {
		t.Fatalf("expected 3 streets, got %d", g.NStreets())
	}
	if err := g.BuildAdj(); err != nil {
		t.Fatal(err)
	}
	street, ok := g.StreetBetween(0, 1)
	if !ok {
		t.Fatal("street 0->1 missing")
	}
	if street.Length() != 150.0 || street.MaxSpeed() != 13.9 {
		t.Errorf("unexpected street %f m %f m/s", street.Length(), street.MaxSpeed())
	}
	back, ok := g.StreetBetween(2, 1)
	if !ok {
		t.Fatal("reverse street 2->1 missing")
	}
	if back.MaxSpeed() != defaultOSMMaxSpeed {
		t.Errorf("expected fallback max speed, got %f", back.MaxSpeed())
	}
	signals := g.SignalNodeIDs()
	if len(signals) != 1 || signals[0] != 0 {
		t.Errorf("expected node 0 as signal candidate, got %v", signals)
	}
}

func TestGraphShortestPathTies(t *testing.T) {
	// Diamond 0->1->3 and 0->2->3, both length 2.
	g := NewGraph()
	g.AddStreet(NewStreet(0, 0, 1, WithLength(1)))
	g.AddStreet(NewStreet(1, 0, 2, WithLength(1)))
	g.AddStreet(NewStreet(2, 1, 3, WithLength(1)))
	g.AddStreet(NewStreet(3, 2, 3, WithLength(1)))
	if err := g.BuildAdj(); err != nil {
		t.Fatal(err)
	}
	path, err := g.PathMatrix(3)
	if err != nil {
		t.Fatal(err)
	}
	if !path.Has(0, 1) || !path.Has(0, 2) {
		t.Error("both tied successors of 0 must be retained")
	}
	if !path.Has(1, 3) || !path.Has(2, 3) {
		t.Error("successors toward the destination missing")
	}
	row3, _ := path.Row(3, false)
	if row3.Len() != 0 {
		t.Errorf("destination row must be empty, got %d entries", row3.Len())
	}

	successors, dist, err := g.ShortestPath(0, 3)
	if err != nil {
		t.Fatal(err)
	}
	if len(successors) != 2 || dist != 2 {
		t.Errorf("expected 2 successors at distance 2, got %v at %f", successors, dist)
	}
}

func TestGraphShortestPathOptimality(t *testing.T) {
	g := NewGraph()
	g.AddStreet(NewStreet(0, 0, 1, WithLength(10)))
	g.AddStreet(NewStreet(1, 1, 2, WithLength(5)))
	g.AddStreet(NewStreet(2, 0, 2, WithLength(20)))
	g.AddStreet(NewStreet(3, 2, 3, WithLength(1)))
	if err := g.BuildAdj(); err != nil {
		t.Fatal(err)
	}
	dst := ID(3)
	path, err := g.PathMatrix(dst)
	if err != nil {
		t.Fatal(err)
	}
	dist := g.distancesTo(dst)
	path.ForEach(func(u, v ID, _ bool) {
		street, ok := g.StreetBetween(u, v)
		if !ok {
			t.Fatalf("successor edge (%d, %d) is not a street", u, v)
		}
		if !sameDistance(dist[v]+street.Length(), dist[u]) {
			t.Errorf("(%d, %d) is not on a shortest path", u, v)
		}
	})
	// 0->1->2->3 (16) beats 0->2->3 (21).
	if path.Has(0, 2) {
		t.Error("suboptimal successor retained")
	}
	if !path.Has(0, 1) {
		t.Error("optimal successor missing")
	}
}

func TestGraphShortestPathUnreachable(t *testing.T) {
	g := NewGraph()
	g.AddStreet(NewStreet(0, 0, 1))
	g.AddNode(NewIntersection(2)) // isolated
	if err := g.BuildAdj(); err != nil {
		t.Fatal(err)
	}
	successors, dist, err := g.ShortestPath(0, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(successors) != 0 {
		t.Errorf("expected empty successor set, got %v", successors)
	}
	if !math.IsInf(dist, 1) {
		t.Errorf("expected infinite distance, got %f", dist)
	}
}

func TestGraphMakeVariants(t *testing.T) {
	g := NewGraph()
	g.AddStreet(NewStreet(0, 0, 1))
	node, _ := g.Node(1)
	node.SetCoords(orb.Point{9.0, 45.0})
	node.SetCapacity(4)

	tl, err := g.MakeTrafficLight(1)
	if err != nil {
		t.Fatal(err)
	}
	if tl.Capacity() != 4 {
		t.Errorf("capacity lost in conversion: %d", tl.Capacity())
	}
	if _, ok := tl.Coords(); !ok {
		t.Error("coordinates lost in conversion")
	}
	if converted, _ := g.Node(1); converted != Node(tl) {
		t.Error("graph does not own the converted node")
	}

	rb, err := g.MakeRoundabout(0)
	if err != nil {
		t.Fatal(err)
	}
	if rb.Capacity() != 1 {
		t.Errorf("unexpected capacity %d", rb.Capacity())
	}
	if _, err := g.MakeTrafficLight(99); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}

	if err := g.MakeSpireStreet(0); err != nil {
		t.Fatal(err)
	}
	street, _ := g.Street(0)
	if !street.IsSpire() {
		t.Error("street not converted to spire")
	}
}
