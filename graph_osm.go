package streetsim

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmpbf"
	"github.com/pkg/errors"
)

// OSMConfig filters OSM ways by tag values of a single entity key.
type OSMConfig struct {
	EntityName string // currently "highway" is the sensible choice
	Tags       []string
}

// CheckTag reports whether the tag value is allowed by the configuration.
func (cfg *OSMConfig) CheckTag(tag string) bool {
	for i := range cfg.Tags {
		if cfg.Tags[i] == tag {
			return true
		}
	}
	return false
}

// importedWay is one OSM way surviving the tag filter.
type importedWay struct {
	nodes    osm.WayNodes
	oneway   bool
	maxSpeed float64
}

// ImportOSMFile builds nodes and streets straight from a PBF extract. Ways
// are filtered by cfg, split into one street per consecutive node pair,
// with lengths from great-circle distances. Nodes tagged traffic_signals
// are remembered as signal candidates. Call BuildAdj afterwards.
func (g *Graph) ImportOSMFile(fileName string, cfg *OSMConfig, verbose bool) error {
	f, err := os.Open(fileName)
	if err != nil {
		return errors.Wrap(err, "file open")
	}
	defer f.Close()

	scannerWays := osmpbf.New(context.Background(), f, 4)
	defer scannerWays.Close()

	ways := []importedWay{}
	nodesSeen := make(map[osm.NodeID]struct{})

	if verbose {
		fmt.Printf("Scanning ways...")
	}
	st := time.Now()
	for scannerWays.Scan() {
		obj := scannerWays.Object()
		if obj.ObjectID().Type() != "way" {
			continue
		}
		way := obj.(*osm.Way)
		tagMap := way.TagMap()
		tag, ok := tagMap[cfg.EntityName]
		if !ok {
			continue
		}
		if !cfg.CheckTag(tag) {
			continue
		}
		oneway := false
		if v, ok := tagMap["oneway"]; ok {
			if v == "yes" || v == "1" {
				oneway = true
			}
		}
		maxSpeed := defaultOSMMaxSpeed
		if v, ok := tagMap["maxspeed"]; ok {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed > 0 {
				maxSpeed = parsed
			}
		}
		prepared := importedWay{
			nodes:    make(osm.WayNodes, len(way.Nodes)),
			oneway:   oneway,
			maxSpeed: maxSpeed,
		}
		copy(prepared.nodes, way.Nodes)
		ways = append(ways, prepared)
		for _, node := range way.Nodes {
			nodesSeen[node.ID] = struct{}{}
		}
	}
	if scannerWays.Err() != nil {
		return errors.Wrap(scannerWays.Err(), "scanner error on ways")
	}
	if verbose {
		fmt.Printf("Done in %v\n\tWays: %d\n", time.Since(st), len(ways))
	}

	if _, err = f.Seek(0, io.SeekStart); err != nil {
		return errors.Wrap(err, "can't repeat seeking")
	}
	scannerNodes := osmpbf.New(context.Background(), f, 4)
	defer scannerNodes.Close()

	if verbose {
		fmt.Printf("Scanning nodes...")
	}
	st = time.Now()
	nodes := make(map[osm.NodeID]*osm.Node)
	for scannerNodes.Scan() {
		obj := scannerNodes.Object()
		if obj.ObjectID().Type() != "node" {
			continue
		}
		node := obj.(*osm.Node)
		if _, ok := nodesSeen[node.ID]; !ok {
			continue
		}
		nodes[node.ID] = node
	}
	if scannerNodes.Err() != nil {
		return errors.Wrap(scannerNodes.Err(), "scanner error on nodes")
	}
	if verbose {
		fmt.Printf("Done in %v\n\tNodes: %d\n", time.Since(st), len(nodes))
	}

	nextNode := ID(len(g.nodes))
	mapNode := func(osmNode *osm.Node) ID {
		if id, ok := g.nodeMapping[int64(osmNode.ID)]; ok {
			return id
		}
		id := nextNode
		nextNode++
		node := NewIntersection(id)
		node.SetCoords(osmNode.Point())
		g.nodes[id] = node
		g.nodeMapping[int64(osmNode.ID)] = id
		for _, tag := range osmNode.Tags {
			if tag.Key == "highway" && tag.Value == "traffic_signals" {
				g.signals[id] = struct{}{}
			}
		}
		return id
	}

	nextStreet := ID(0)
	for id := range g.streets {
		if id >= nextStreet {
			nextStreet = id + 1
		}
	}
	for _, way := range ways {
		for i := 1; i < len(way.nodes); i++ {
			from, okFrom := nodes[way.nodes[i-1].ID]
			to, okTo := nodes[way.nodes[i].ID]
			if !okFrom || !okTo {
				// Ways can reference nodes clipped out of the extract.
				continue
			}
			length := greatCircleDistance(from.Point(), to.Point()) * 1000.0
			pairs := [][2]ID{{mapNode(from), mapNode(to)}}
			if !way.oneway {
				pairs = append(pairs, [2]ID{pairs[0][1], pairs[0][0]})
			}
			for _, pair := range pairs {
				if _, ok := g.StreetBetween(pair[0], pair[1]); ok {
					continue
				}
				street := NewStreet(nextStreet, pair[0], pair[1],
					WithLength(length),
					WithMaxSpeed(way.maxSpeed),
				)
				if err := g.AddStreet(street); err != nil {
					return err
				}
				nextStreet++
			}
		}
	}
	return nil
}
