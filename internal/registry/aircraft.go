// Package registry holds the live picture of aircraft reconstructed from
// decoded Mode S / ADS-B messages: identity, position, altitude, velocity,
// and track, keyed by 24-bit ICAO address.
package registry

import "go1090/internal/modes"

// ShowState mirrors the TUI-facing lifecycle state of an aircraft row.
type ShowState int

const (
	None ShowState = iota
	FirstTime
	Normal
	LastTime
)

// signalRingSize must be a power of two (enforced by NewAircraft).
const signalRingSize = 4

// Position is a resolved lat/lon in degrees.
type Position struct {
	Lat, Lon float64
}

// Aircraft is the live track for one ICAO address. It is owned exclusively
// by the Registry; all other consumers see a copy produced while the
// registry lock is held.
type Aircraft struct {
	ICAO uint32

	Flight string

	HasAltitude bool
	Altitude    int
	AltitudeUnit modes.Unit

	HasSpeed bool
	Speed    float64

	Heading      float64
	HeadingValid bool

	HasIdentity bool
	Identity    int

	Position    Position
	HasPosition bool

	evenCPR, oddCPR       modes.CPRFrame
	hasEvenCPR, hasOddCPR bool

	signalLevels [signalRingSize]float64
	signalIdx    int

	Messages uint64

	SeenFirstMs int64
	SeenLastMs  int64

	DistanceM float64

	EstPosition    Position
	HasEstPosition bool
	EstSeenLastMs  int64
	EstDistanceM   float64

	ShowState ShowState
}

func newAircraft(icao uint32, nowMs int64) *Aircraft {
	// signalRingSize is required to be a power of two.
	if signalRingSize&(signalRingSize-1) != 0 {
		panic("registry: signalRingSize must be a power of two")
	}
	return &Aircraft{
		ICAO:        icao,
		SeenFirstMs: nowMs,
		SeenLastMs:  nowMs,
		ShowState:   FirstTime,
	}
}

func (a *Aircraft) pushSignal(power float64) {
	a.signalLevels[a.signalIdx&(signalRingSize-1)] = power
	a.signalIdx++
}

// AverageSignal returns the mean of the populated RSSI ring slots.
func (a *Aircraft) AverageSignal() float64 {
	n := a.signalIdx
	if n > signalRingSize {
		n = signalRingSize
	}
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += a.signalLevels[i]
	}
	return sum / float64(n)
}
