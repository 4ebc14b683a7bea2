package streetsim

import (
	"os"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// RunConfig is the YAML description of one simulation run: engine
// parameters plus the node/street conversions to apply to the graph.
type RunConfig struct {
	Seed                uint64  `yaml:"seed"`
	Ticks               uint64  `yaml:"ticks"`
	ErrorProbability    float64 `yaml:"error_probability"`
	MinSpeedRateo       float64 `yaml:"min_speed_rateo"`
	SpeedFluctuationSTD float64 `yaml:"speed_fluctuation_std"`

	Itineraries []ItineraryConfig    `yaml:"itineraries"`
	Lights      []TrafficLightConfig `yaml:"traffic_lights"`
	Roundabouts []uint32             `yaml:"roundabouts"`
	Spires      []uint32             `yaml:"spires"`
	Spawn       *SpawnConfig         `yaml:"spawn"`
}

// ItineraryConfig declares one itinerary.
type ItineraryConfig struct {
	ID          uint32 `yaml:"id"`
	Destination uint32 `yaml:"destination"`
}

// TrafficLightConfig converts a node into a traffic light.
type TrafficLightConfig struct {
	Node       uint32   `yaml:"node"`
	Green      uint32   `yaml:"green"`
	Red        uint32   `yaml:"red"`
	Phase      uint32   `yaml:"phase"`
	Priorities []uint32 `yaml:"priorities"`
}

// SpawnConfig declares the per-tick agent injection.
type SpawnConfig struct {
	Sources     []uint32 `yaml:"sources"`
	Itineraries []uint32 `yaml:"itineraries"`
	Rate        uint32   `yaml:"rate"`
}

// LoadRunConfig parses a YAML run configuration.
func LoadRunConfig(fileName string) (*RunConfig, error) {
	raw, err := os.ReadFile(fileName)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidInput, "cannot read %s: %v", fileName, err)
	}
	cfg := &RunConfig{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, errors.Wrapf(ErrInvalidInput, "%s: %v", fileName, err)
	}
	return cfg, nil
}

// ApplyConfig wires a run configuration into the engine and its graph:
// node conversions, spires, itineraries, spawn plan and engine parameters.
// Routing matrices are rebuilt afterwards.
func (d *Dynamics) ApplyConfig(cfg *RunConfig) error {
	d.SetSeed(cfg.Seed)
	if err := d.SetErrorProbability(cfg.ErrorProbability); err != nil {
		return err
	}
	if err := d.SetMinSpeedRateo(cfg.MinSpeedRateo); err != nil {
		return err
	}
	if err := d.SetSpeedFluctuationSTD(cfg.SpeedFluctuationSTD); err != nil {
		return err
	}
	for _, lc := range cfg.Lights {
		tl, err := d.graph.MakeTrafficLight(ID(lc.Node))
		if err != nil {
			return err
		}
		tl.SetDelay(Delay(lc.Green), Delay(lc.Red))
		if lc.Phase != 0 {
			if err := tl.SetPhase(Delay(lc.Phase)); err != nil {
				return err
			}
		}
		for _, streetID := range lc.Priorities {
			tl.AddStreetPriority(ID(streetID))
		}
	}
	for _, nodeID := range cfg.Roundabouts {
		if _, err := d.graph.MakeRoundabout(ID(nodeID)); err != nil {
			return err
		}
	}
	for _, streetID := range cfg.Spires {
		if err := d.graph.MakeSpireStreet(ID(streetID)); err != nil {
			return err
		}
	}
	for _, ic := range cfg.Itineraries {
		d.AddItinerary(NewItinerary(ID(ic.ID), ID(ic.Destination)))
	}
	if cfg.Spawn != nil {
		plan := &SpawnPlan{Rate: Size(cfg.Spawn.Rate)}
		for _, src := range cfg.Spawn.Sources {
			plan.Sources = append(plan.Sources, ID(src))
		}
		for _, it := range cfg.Spawn.Itineraries {
			plan.Itineraries = append(plan.Itineraries, ID(it))
		}
		d.SetSpawnPlan(plan)
	}
	return d.UpdatePaths()
}
