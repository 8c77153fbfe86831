package registry

import (
	"math"
	"sort"
	"strings"
	"sync"

	"go1090/internal/modes"
)

// TTLMs is the default aircraft eviction timeout.
const TTLMs = 60_000

const pairMaxAgeMs = 10 * 60 * 1000

const knotsToMetersPerMs = 0.001852

// Registry is the concurrent ICAO -> Aircraft mapping described by the
// intrusive-list-to-map redesign: a single lock guards the map and every
// field mutation. The map is unordered and no ordering index is kept;
// SnapshotForJSON sorts its copy by hex address on each call.
type Registry struct {
	mu          sync.Mutex
	aircraft    map[uint32]*Aircraft
	cpr         *modes.CprDecoder
	homePos     Position
	hasHome     bool
	messages    uint64
	allowBadCRC bool
}

// NewRegistry returns an empty Registry.
func NewRegistry(cpr *modes.CprDecoder) *Registry {
	return &Registry{
		aircraft: make(map[uint32]*Aircraft),
		cpr:      cpr,
	}
}

// SetAllowBadCRC mirrors the `--no-crc-check` override: when set, messages
// that failed CRC validation still update the registry (marked crc_ok=false
// on the Message they came from) instead of being dropped.
func (r *Registry) SetAllowBadCRC(allow bool) {
	r.mu.Lock()
	r.allowBadCRC = allow
	r.mu.Unlock()
}

// HomePosition returns the receiver's reference position, if one has been
// set via SetHome.
func (r *Registry) HomePosition() (lat, lon float64, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.homePos.Lat, r.homePos.Lon, r.hasHome
}

// SetHome sets the receiver's reference position for distance computation,
// driven by --lat/--lon or, when those are unset, the DUMP1090_HOMEPOS
// environment variable.
func (r *Registry) SetHome(lat, lon float64) {
	r.mu.Lock()
	r.homePos = Position{Lat: lat, Lon: lon}
	r.hasHome = true
	r.mu.Unlock()
}

// Ingest applies one decoded Message to the registry. It drops messages
// that failed CRC validation unless SetAllowBadCRC(true) was called. nowMs
// is the message's arrival time.
func (r *Registry) Ingest(msg *modes.Message, nowMs int64) *Aircraft {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !msg.CRCOk && !r.allowBadCRC {
		return nil
	}

	r.messages++

	ac, ok := r.aircraft[msg.ICAO]
	if !ok {
		ac = newAircraft(msg.ICAO, nowMs)
		r.aircraft[msg.ICAO] = ac
	}

	ac.SeenLastMs = nowMs
	ac.Messages++
	ac.pushSignal(msg.SignalPower)

	switch msg.DF {
	case 5, 21:
		if msg.HasIdentity {
			ac.Identity = msg.Identity
			ac.HasIdentity = true
		}
	case 0, 4, 20:
		if msg.HasAltitude {
			ac.Altitude = msg.Altitude
			ac.AltitudeUnit = msg.AltitudeUnit
			ac.HasAltitude = true
		}
	}

	if msg.DF == 17 || msg.DF == 18 {
		if msg.HasAltitude {
			ac.Altitude = msg.Altitude
			ac.AltitudeUnit = msg.AltitudeUnit
			ac.HasAltitude = true
		}
		if msg.HasFlight {
			ac.Flight = strings.TrimRight(msg.Flight, " ")
		}
		if msg.HasVelocity {
			ac.Speed = msg.GroundSpeed
			ac.HasSpeed = true
			ac.Heading = msg.HeadingDeg
			ac.HeadingValid = msg.HeadingValid
			if msg.VerticalRate != 0 {
				// vertical rate isn't separately tracked on Aircraft per
				// the data model in SPEC_FULL §3; carried on Message only.
				_ = msg.VerticalRate
			}
		}
		if msg.HasPosition {
			r.storeCPR(ac, msg, nowMs)
		}
	}

	if ac.HasPosition && r.hasHome {
		ac.DistanceM = greatCircleMeters(ac.Position, r.homePos)
	}

	return ac
}

func (r *Registry) storeCPR(ac *Aircraft, msg *modes.Message, nowMs int64) {
	frame := modes.CPRFrame{
		Lat:         msg.RawLat,
		Lon:         msg.RawLon,
		OddFlag:     msg.OddFlag,
		TimestampMs: nowMs,
	}
	if msg.OddFlag {
		ac.oddCPR = frame
		ac.hasOddCPR = true
	} else {
		ac.evenCPR = frame
		ac.hasEvenCPR = true
	}

	if !ac.hasEvenCPR || !ac.hasOddCPR {
		return
	}

	age := ac.evenCPR.TimestampMs - ac.oddCPR.TimestampMs
	if age < 0 {
		age = -age
	}
	if age > pairMaxAgeMs {
		return
	}

	lat, lon, ok := r.cpr.Decode(ac.evenCPR, ac.oddCPR)
	if !ok {
		return
	}
	ac.Position = Position{Lat: lat, Lon: lon}
	ac.HasPosition = true
}

// Evict transitions aircraft whose last message is older than TTL-1000ms
// from Normal to LastTime, and removes those older than TTL. It returns the
// single aircraft (if any) that was just marked LastTime, for a TUI to
// highlight.
func (r *Registry) Evict(nowMs int64) *Aircraft {
	r.mu.Lock()
	defer r.mu.Unlock()

	var justExpired *Aircraft
	for icao, ac := range r.aircraft {
		age := nowMs - ac.SeenLastMs
		if age > TTLMs {
			delete(r.aircraft, icao)
			continue
		}
		if age > TTLMs-1000 && ac.ShowState == Normal {
			ac.ShowState = LastTime
			justExpired = ac
		} else if ac.ShowState == FirstTime {
			ac.ShowState = Normal
		}
	}
	return justExpired
}

// AircraftJSON is the shape shared by /data.json and /data/aircraft.json
// per-object entries.
type AircraftJSON struct {
	Hex      string  `json:"hex"`
	Flight   string  `json:"flight,omitempty"`
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Altitude int     `json:"altitude"`
	Track    float64 `json:"track"`
	Speed    float64 `json:"speed"`
	Type     string  `json:"type,omitempty"`
	Messages uint64  `json:"messages,omitempty"`
	Seen     float64 `json:"seen,omitempty"`
	SeenPos  float64 `json:"seen_pos,omitempty"`
}

// SnapshotForJSON returns a stable array of aircraft with a resolved
// position, for the legacy and extended HTTP JSON endpoints. Iteration
// takes the registry lock for one bounded pass; it never blocks ingestion
// for longer than copying the snapshot.
func (r *Registry) SnapshotForJSON(nowMs int64) []AircraftJSON {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]AircraftJSON, 0, len(r.aircraft))
	for _, ac := range r.aircraft {
		if !ac.HasPosition {
			continue
		}
		out = append(out, AircraftJSON{
			Hex:      formatICAO(ac.ICAO),
			Flight:   ac.Flight,
			Lat:      ac.Position.Lat,
			Lon:      ac.Position.Lon,
			Altitude: ac.Altitude,
			Track:    ac.Heading,
			Speed:    ac.Speed,
			Messages: ac.Messages,
			Seen:     float64(nowMs-ac.SeenLastMs) / 1000.0,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Hex < out[j].Hex })
	return out
}

// MessageCount returns the total number of messages ever ingested.
func (r *Registry) MessageCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.messages
}

// ComputeEstDistance dead-reckons an aircraft's position forward from its
// last known good fix using heading and speed, and returns the closer of
// the great-circle and Cartesian distance estimates to home.
func (r *Registry) ComputeEstDistance(icao uint32, nowMs int64) (float64, bool) {
	r.mu.Lock()
	ac, ok := r.aircraft[icao]
	r.mu.Unlock()
	if !ok || !ac.HasPosition || !ac.HeadingValid || !r.hasHome {
		return 0, false
	}

	elapsedMs := float64(nowMs - ac.SeenLastMs)
	distM := ac.Speed * knotsToMetersPerMs * elapsedMs

	headingRad := ac.Heading * math.Pi / 180
	dLat := distM * math.Cos(headingRad) / earthRadiusM
	dLon := distM * math.Sin(headingRad) / (earthRadiusM * math.Cos(ac.Position.Lat*math.Pi/180))

	estPos := Position{
		Lat: ac.Position.Lat + dLat*180/math.Pi,
		Lon: ac.Position.Lon + dLon*180/math.Pi,
	}

	gcDist := greatCircleMeters(estPos, r.homePos)

	// Cartesian (flat-earth) approximation for comparison, per spec: take
	// the closer of the two distance estimates.
	dxM := (estPos.Lon - r.homePos.Lon) * math.Pi / 180 * earthRadiusM * math.Cos(r.homePos.Lat*math.Pi/180)
	dyM := (estPos.Lat - r.homePos.Lat) * math.Pi / 180 * earthRadiusM
	cartDist := math.Hypot(dxM, dyM)

	if cartDist < gcDist {
		return cartDist, true
	}
	return gcDist, true
}

const earthRadiusM = 6371000.0

func greatCircleMeters(a, b Position) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusM * c
}

func formatICAO(icao uint32) string {
	const hexDigits = "0123456789abcdef"
	b := make([]byte, 6)
	for i := 5; i >= 0; i-- {
		b[i] = hexDigits[icao&0xF]
		icao >>= 4
	}
	return string(b)
}
