package main

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/LdDl/ch"
	"github.com/pkg/errors"

	"github.com/filippodll/streetsim"
)

var (
	matrixFile  = flag.String("matrix", "", "Filename of the topology matrix ('N Type' header followed by N*N row-major weights)")
	hasWeights  = flag.Bool("weights", false, "Treat matrix entries as street lengths instead of plain adjacency")
	coordsFile  = flag.String("coords", "", "Filename of the node coordinates file ('lat lon' per line)")
	osmNodes    = flag.String("osm-nodes", "", "Filename of the OSM nodes CSV (id;lat;lon;highway)")
	osmEdges    = flag.String("osm-edges", "", "Filename of the OSM edges CSV (u;v;length;oneway;highway;maxspeed;name)")
	pbfFile     = flag.String("pbf", "", "Filename of an *.osm.pbf extract to import directly")
	tagStr      = flag.String("tags", "motorway,primary,primary_link,road,secondary,secondary_link,residential,tertiary,tertiary_link,unclassified,trunk,trunk_link,motorway_link", "Set of needed highway tags for -pbf (separated by commas)")
	configFile  = flag.String("config", "", "Filename of the YAML run configuration")
	ticks       = flag.Uint64("ticks", 1000, "Number of ticks to simulate")
	interval    = flag.Uint64("interval", 100, "Ticks between measurement printouts (0 disables)")
	outMatrix   = flag.String("export-matrix", "", "Export the topology matrix to this file after the run")
	outGeoJSON  = flag.String("export-geojson", "", "Export the network as GeoJSON to this file after the run")
	outCSV      = flag.String("export-csv", "", "Export nodes and streets CSVs next to this file after the run")
	doCH        = flag.Bool("contract", false, "Prepare contraction hierarchies from the imported topology and export shortcuts")
	chShortcuts = flag.String("ch-out", "shortcuts.csv", "Filename for the contraction hierarchies shortcuts")
	verbose     = flag.Bool("verbose", false, "Print import progress")
)

func main() {
	flag.Parse()

	graph := streetsim.NewGraph()
	if err := importTopology(graph); err != nil {
		fmt.Println(err)
		return
	}

	dynamics := streetsim.NewDynamics(graph, 0)
	if *configFile != "" {
		cfg, err := streetsim.LoadRunConfig(*configFile)
		if err != nil {
			fmt.Println(err)
			return
		}
		if cfg.Ticks != 0 {
			*ticks = cfg.Ticks
		}
		if err := dynamics.ApplyConfig(cfg); err != nil {
			fmt.Println(err)
			return
		}
	} else if err := dynamics.UpdatePaths(); err != nil {
		fmt.Println(err)
		return
	}

	if *doCH {
		if err := contractGraph(graph); err != nil {
			fmt.Println(err)
			return
		}
	}

	st := time.Now()
	for t := uint64(0); t < *ticks; t++ {
		if dynamics.Stopped() {
			break
		}
		if err := dynamics.Evolve(); err != nil {
			fmt.Println(err)
			return
		}
		if *interval != 0 && (t+1)%*interval == 0 {
			fmt.Printf("tick %d: agents=%d arrivals=%d mean_speed=%.3f mean_density=%.3f mean_flow=%.3f mean_travel_time=%.1f\n",
				dynamics.Time(),
				dynamics.NAgents(),
				dynamics.Arrivals(),
				dynamics.MeanSpeed(),
				dynamics.MeanDensity(),
				dynamics.MeanFlow(),
				dynamics.MeanTravelTime(false),
			)
		}
	}
	fmt.Printf("Done %d ticks in %v\n", dynamics.Time(), time.Since(st))

	if *outMatrix != "" {
		if err := graph.ExportMatrix(*outMatrix, !*hasWeights); err != nil {
			fmt.Println(err)
			return
		}
	}
	if *outGeoJSON != "" {
		if err := graph.ExportGeoJSON(*outGeoJSON); err != nil {
			fmt.Println(err)
			return
		}
	}
	if *outCSV != "" {
		if err := graph.ExportToCSV(*outCSV); err != nil {
			fmt.Println(err)
			return
		}
	}
}

func importTopology(graph *streetsim.Graph) error {
	switch {
	case *matrixFile != "":
		if err := graph.ImportMatrix(*matrixFile, !*hasWeights); err != nil {
			return errors.Wrap(err, "Can't import matrix")
		}
		if *coordsFile != "" {
			if err := graph.ImportCoordinates(*coordsFile); err != nil {
				return errors.Wrap(err, "Can't import coordinates")
			}
			graph.BuildStreetAngles()
		}
	case *osmNodes != "" && *osmEdges != "":
		if err := graph.ImportOSMNodes(*osmNodes, *verbose); err != nil {
			return errors.Wrap(err, "Can't import OSM nodes")
		}
		if err := graph.ImportOSMEdges(*osmEdges, *verbose); err != nil {
			return errors.Wrap(err, "Can't import OSM edges")
		}
		if err := graph.BuildAdj(); err != nil {
			return errors.Wrap(err, "Can't build adjacency")
		}
	case *pbfFile != "":
		cfg := streetsim.OSMConfig{
			EntityName: "highway",
			Tags:       strings.Split(*tagStr, ","),
		}
		if err := graph.ImportOSMFile(*pbfFile, &cfg, *verbose); err != nil {
			return errors.Wrap(err, "Can't import PBF")
		}
		if err := graph.BuildAdj(); err != nil {
			return errors.Wrap(err, "Can't build adjacency")
		}
	default:
		return errors.New("No topology given: use -matrix, -osm-nodes/-osm-edges or -pbf")
	}
	return nil
}

// contractGraph feeds the topology into a contraction hierarchies graph and
// exports the shortcuts, for route preprocessing on very large networks.
func contractGraph(graph *streetsim.Graph) error {
	chGraph := ch.Graph{}
	for _, streetID := range graph.StreetIDs() {
		street, _ := graph.Street(streetID)
		src, dst := street.NodePair()
		if err := chGraph.CreateVertex(int64(src)); err != nil {
			return errors.Wrap(err, "Can not create source vertex")
		}
		if err := chGraph.CreateVertex(int64(dst)); err != nil {
			return errors.Wrap(err, "Can not create target vertex")
		}
		if err := chGraph.AddEdge(int64(src), int64(dst), street.Length()); err != nil {
			return errors.Wrap(err, "Can not wrap source and target vertices as edge")
		}
	}
	fmt.Println("Starting contraction process....")
	st := time.Now()
	chGraph.PrepareContractionHierarchies()
	fmt.Printf("Done contraction process in %v\n", time.Since(st))
	if err := chGraph.ExportShortcutsToFile(*chShortcuts); err != nil {
		return errors.Wrap(err, "Can not export shortcuts")
	}
	return nil
}
