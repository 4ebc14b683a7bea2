package streetsim

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/pkg/errors"
)

// ExportToCSV writes two ';'-separated files next to fname: one for nodes
// and one for streets, with WKT geometry columns where coordinates exist.
func (g *Graph) ExportToCSV(fname string) error {
	fnameParts := strings.Split(fname, ".csv")
	fnameNodes := fmt.Sprintf(fnameParts[0] + "_nodes.csv")
	fnameStreets := fmt.Sprintf(fnameParts[0] + "_streets.csv")

	if err := g.exportNodesToCSV(fnameNodes); err != nil {
		return errors.Wrap(err, "Can't export nodes")
	}
	if err := g.exportStreetsToCSV(fnameStreets); err != nil {
		return errors.Wrap(err, "Can't export streets")
	}
	return nil
}

func (g *Graph) exportNodesToCSV(fname string) error {
	file, err := os.Create(fname)
	if err != nil {
		return errors.Wrap(err, "Can't create file")
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()
	writer.Comma = ';'

	err = writer.Write([]string{"id", "kind", "capacity", "longitude", "latitude", "geom"})
	if err != nil {
		return errors.Wrap(err, "Can't write header")
	}

	for _, id := range g.NodeIDs() {
		node := g.nodes[id]
		lon, lat, geom := "", "", ""
		if pt, ok := node.Coords(); ok {
			lon = fmt.Sprintf("%f", pt.Lon())
			lat = fmt.Sprintf("%f", pt.Lat())
			geom = wkt.MarshalString(pt)
		}
		err = writer.Write([]string{
			fmt.Sprintf("%d", id),
			nodeKind(node),
			fmt.Sprintf("%d", node.Capacity()),
			lon,
			lat,
			geom,
		})
		if err != nil {
			return errors.Wrap(err, "Can't write node")
		}
	}
	return nil
}

func (g *Graph) exportStreetsToCSV(fname string) error {
	file, err := os.Create(fname)
	if err != nil {
		return errors.Wrap(err, "Can't create file")
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()
	writer.Comma = ';'

	err = writer.Write([]string{"id", "source_node", "target_node", "length_meters", "max_speed", "capacity", "transport_capacity", "angle", "density", "is_spire", "geom"})
	if err != nil {
		return errors.Wrap(err, "Can't write header")
	}

	for _, id := range g.StreetIDs() {
		street := g.streets[id]
		src, dst := street.NodePair()
		geom := ""
		srcPt, okSrc := g.nodes[src].Coords()
		dstPt, okDst := g.nodes[dst].Coords()
		if okSrc && okDst {
			geom = wkt.MarshalString(orb.LineString{srcPt, dstPt})
		}
		err = writer.Write([]string{
			fmt.Sprintf("%d", id),
			fmt.Sprintf("%d", src),
			fmt.Sprintf("%d", dst),
			fmt.Sprintf("%f", street.Length()),
			fmt.Sprintf("%f", street.MaxSpeed()),
			fmt.Sprintf("%d", street.Capacity()),
			fmt.Sprintf("%d", street.TransportCapacity()),
			fmt.Sprintf("%f", street.Angle()),
			fmt.Sprintf("%f", street.Density()),
			fmt.Sprintf("%t", street.IsSpire()),
			geom,
		})
		if err != nil {
			return errors.Wrap(err, "Can't write street")
		}
	}
	return nil
}
