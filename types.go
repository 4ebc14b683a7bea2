package streetsim

// ID identifies nodes, streets, agents and itineraries.
type ID uint32

// Size is used for capacities and counts.
type Size uint32

// Delay counts simulation ticks.
type Delay uint32

const (
	// defaultMaxSpeed is assigned to streets created without an explicit
	// speed limit (50 km/h in m/s).
	defaultMaxSpeed = 13.888888888888889

	// defaultOSMMaxSpeed is the fallback when an OSM edge carries no
	// parsable maxspeed tag.
	defaultOSMMaxSpeed = 30.0
)
