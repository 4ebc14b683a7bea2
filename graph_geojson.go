package streetsim

import (
	"fmt"
	"os"

	geojson "github.com/paulmach/go.geojson"
	"github.com/pkg/errors"
)

// ExportGeoJSON writes the network as a FeatureCollection: streets as
// LineStrings carrying length/speed/capacity/density properties, nodes as
// Points carrying their kind. Elements without coordinates are skipped
// with a warning.
func (g *Graph) ExportGeoJSON(fileName string) error {
	fc := geojson.NewFeatureCollection()
	for _, id := range g.StreetIDs() {
		street := g.streets[id]
		src, dst := street.NodePair()
		srcPt, okSrc := g.nodes[src].Coords()
		dstPt, okDst := g.nodes[dst].Coords()
		if !okSrc || !okDst {
			fmt.Printf("Warning. Street %d endpoints miss coordinates, feature skipped\n", id)
			continue
		}
		f := geojson.NewFeature(geojson.NewLineStringGeometry([][]float64{
			{srcPt.Lon(), srcPt.Lat()},
			{dstPt.Lon(), dstPt.Lat()},
		}))
		f.SetProperty("id", uint32(id))
		f.SetProperty("source_node", uint32(src))
		f.SetProperty("target_node", uint32(dst))
		f.SetProperty("length_meters", street.Length())
		f.SetProperty("max_speed", street.MaxSpeed())
		f.SetProperty("capacity", uint32(street.Capacity()))
		f.SetProperty("density", street.Density())
		f.SetProperty("is_spire", street.IsSpire())
		fc.AddFeature(f)
	}
	for _, id := range g.NodeIDs() {
		node := g.nodes[id]
		pt, ok := node.Coords()
		if !ok {
			fmt.Printf("Warning. Node %d misses coordinates, feature skipped\n", id)
			continue
		}
		f := geojson.NewFeature(geojson.NewPointGeometry([]float64{pt.Lon(), pt.Lat()}))
		f.SetProperty("id", uint32(id))
		f.SetProperty("kind", nodeKind(node))
		f.SetProperty("capacity", uint32(node.Capacity()))
		fc.AddFeature(f)
	}
	b, err := fc.MarshalJSON()
	if err != nil {
		return errors.Wrap(err, "can't marshal feature collection")
	}
	if err := os.WriteFile(fileName, b, 0644); err != nil {
		return errors.Wrap(err, "can't write file")
	}
	return nil
}

func nodeKind(node Node) string {
	switch node.(type) {
	case *TrafficLight:
		return "traffic_light"
	case *Roundabout:
		return "roundabout"
	default:
		return "intersection"
	}
}
