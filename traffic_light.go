package streetsim

import "github.com/pkg/errors"

// TrafficLight is an intersection gated by a green/red cycle. Inbound
// streets with main-road priority are green during the first part of the
// cycle, the remaining streets during the second.
type TrafficLight struct {
	Intersection
	delaySet bool
	green    Delay
	red      Delay
	counter  Delay
	phase    Delay
}

// NewTrafficLight returns a signalized intersection with capacity 1 and no
// cycle configured yet.
func NewTrafficLight(id ID) *TrafficLight {
	return &TrafficLight{Intersection: *NewIntersection(id)}
}

// SetDelay configures the green and red phase lengths. Reconfiguring a
// running light keeps the time left to the next flip:
//   - a counter past the new cycle is clamped to its last tick;
//   - a counter in the part of the old green window cut off by a shorter
//     green is shifted back by the green-time difference, clamping at zero.
func (tl *TrafficLight) SetDelay(green, red Delay) {
	if tl.delaySet {
		if tl.counter >= green+red {
			tl.counter = green + red - 1
		} else if green < tl.green && tl.counter >= green && tl.counter <= tl.green {
			shift := tl.green - tl.counter
			if shift > green {
				tl.counter = 0
			} else {
				tl.counter = green - shift
			}
		}
	}
	tl.green = green
	tl.red = red
	tl.delaySet = true
}

// Delay returns the configured green and red lengths.
func (tl *TrafficLight) Delay() (green, red Delay, ok bool) {
	return tl.green, tl.red, tl.delaySet
}

// Counter returns the position inside the current cycle.
func (tl *TrafficLight) Counter() Delay { return tl.counter }

// SetPhase moves the counter to the given cycle position immediately and
// drops any pending phase.
func (tl *TrafficLight) SetPhase(phase Delay) error {
	if !tl.delaySet {
		return errors.Wrapf(ErrNotConfigured, "traffic light %d has no delay set", tl.id)
	}
	if phase > tl.green+tl.red {
		phase -= tl.green + tl.red
	}
	tl.counter = phase
	tl.phase = 0
	return nil
}

// SetPhaseAfterCycle schedules a cycle position to be adopted when the
// current cycle wraps.
func (tl *TrafficLight) SetPhaseAfterCycle(phase Delay) error {
	if !tl.delaySet {
		return errors.Wrapf(ErrNotConfigured, "traffic light %d has no delay set", tl.id)
	}
	if phase > tl.green+tl.red {
		phase -= tl.green + tl.red
	}
	tl.phase = phase
	return nil
}

// IncreaseCounter advances the cycle by one tick. On the cycle boundary a
// pending phase, if any, becomes the new counter.
func (tl *TrafficLight) IncreaseCounter() error {
	if !tl.delaySet {
		return errors.Wrapf(ErrNotConfigured, "traffic light %d has no delay set", tl.id)
	}
	tl.counter++
	if tl.counter == tl.green+tl.red {
		if tl.phase != 0 {
			tl.counter = tl.phase
			tl.phase = 0
		} else {
			tl.counter = 0
		}
	}
	return nil
}

// IsGreen reports whether the cycle is in its first (green) window.
func (tl *TrafficLight) IsGreen() (bool, error) {
	if !tl.delaySet {
		return false, errors.Wrapf(ErrNotConfigured, "traffic light %d has no delay set", tl.id)
	}
	return tl.counter < tl.green, nil
}

// IsGreenFor reports whether agents on the given inbound street may enter.
// Main-road streets see green during the first window, the others during
// the second.
func (tl *TrafficLight) IsGreenFor(streetID ID) (bool, error) {
	green, err := tl.IsGreen()
	if err != nil {
		return false, err
	}
	if green {
		return tl.HasStreetPriority(streetID), nil
	}
	return !tl.HasStreetPriority(streetID), nil
}
