package modes

import "math"

// cprNLTable is the tabulated 1090-WP-9-14 NL(lat) step function: the number
// of longitude zones at a given latitude, 59 at the equator down to 1 near
// the poles. Kept verbatim — this is part of the Mode S specification, not
// an implementation choice.
var cprNLTable = []struct {
	lat float64
	nl  int
}{
	{10.47047130, 59}, {14.82817437, 58}, {18.18626357, 57}, {21.02939493, 56},
	{23.54504487, 55}, {25.82924707, 54}, {27.93898710, 53}, {29.91135686, 52},
	{31.77209708, 51}, {33.53993436, 50}, {35.22899598, 49}, {36.85025108, 48},
	{38.41241892, 47}, {39.92256684, 46}, {41.38651832, 45}, {42.80914012, 44},
	{44.19454951, 43}, {45.54626723, 42}, {46.86733252, 41}, {48.16039128, 40},
	{49.42776439, 39}, {50.67150166, 38}, {51.89342469, 37}, {53.09516153, 36},
	{54.27817472, 35}, {55.44378444, 34}, {56.59318756, 33}, {57.72747354, 32},
	{58.84763776, 31}, {59.95459277, 30}, {61.04917774, 29}, {62.13216659, 28},
	{63.20427479, 27}, {64.26616523, 26}, {65.31845310, 25}, {66.36171008, 24},
	{67.39646774, 23}, {68.42322022, 22}, {69.44242631, 21}, {70.45451075, 20},
	{71.45986473, 19}, {72.45884545, 18}, {73.45177442, 17}, {74.43893416, 16},
	{75.42056257, 15}, {76.39684391, 14}, {77.36789461, 13}, {78.33374083, 12},
	{79.29428225, 11}, {80.24923213, 10}, {81.19801349, 9}, {82.13956981, 8},
	{83.07199445, 7}, {83.99173563, 6}, {84.89166191, 5}, {85.75541621, 4},
	{86.53536998, 3}, {87.00000000, 2},
}

// cprNL returns NL(lat): the number of longitude zones at latitude lat
// (degrees). lat==90 or -90 is the degenerate pole case (1 zone).
func cprNL(lat float64) int {
	absLat := math.Abs(lat)
	for _, e := range cprNLTable {
		if absLat < e.lat {
			return e.nl
		}
	}
	return 1
}

func cprModInt(a, b int) int {
	r := a % b
	if r < 0 {
		r += b
	}
	return r
}

func cprDlonFunction(rlat float64, oddFlag bool) float64 {
	nl := cprNL(rlat)
	n := nl
	if oddFlag {
		n--
	}
	if n < 1 {
		n = 1
	}
	return 360.0 / float64(n)
}

// CPRFrame is one half of an odd/even airborne-position pair.
type CPRFrame struct {
	Lat       uint32
	Lon       uint32
	OddFlag   bool
	TimestampMs int64
}

// CprDecoder resolves a globally unambiguous lat/lon from a paired odd/even
// DF17 airborne-position CPR frame. It holds no per-aircraft state itself —
// callers (the AircraftRegistry) own the odd/even frame storage and call
// Decode once both halves of a pair are available.
type CprDecoder struct{}

// NewCprDecoder returns a CprDecoder.
func NewCprDecoder() *CprDecoder { return &CprDecoder{} }

// pairMaxAgeMs is the 10-minute gate beyond which an odd/even pair is
// considered too stale to combine.
const pairMaxAgeMs = 10 * 60 * 1000

// Decode combines an even and an odd CPR frame for the same aircraft and
// returns the globally unambiguous (lat, lon) in degrees. ok is false if the
// pair straddles different NL zones, or if the frames are farther apart
// than the 10-minute gate.
func (d *CprDecoder) Decode(even, odd CPRFrame) (lat, lon float64, ok bool) {
	age := even.TimestampMs - odd.TimestampMs
	if age < 0 {
		age = -age
	}
	if age > pairMaxAgeMs {
		return 0, 0, false
	}

	latE := float64(even.Lat)
	latO := float64(odd.Lat)

	j := math.Floor((59*latE-60*latO)/cprMaxCount + 0.5)
	rlat0 := airDlat0 * (float64(cprModInt(int(j), 60)) + latE/cprMaxCount)
	rlat1 := airDlat1 * (float64(cprModInt(int(j), 59)) + latO/cprMaxCount)

	if rlat0 >= 270 {
		rlat0 -= 360
	}
	if rlat1 >= 270 {
		rlat1 -= 360
	}

	if cprNL(rlat0) != cprNL(rlat1) {
		return 0, 0, false
	}

	var rlat float64
	var latest CPRFrame
	if even.TimestampMs >= odd.TimestampMs {
		rlat = rlat0
		latest = even
	} else {
		rlat = rlat1
		latest = odd
	}

	nl := cprNL(rlat)
	ni := nl
	if latest.OddFlag {
		ni--
	}
	if ni < 1 {
		ni = 1
	}

	lonE := float64(even.Lon)
	lonO := float64(odd.Lon)
	m := math.Floor((lonE*float64(nl-1)-lonO*float64(nl))/cprMaxCount + 0.5)

	dlon := cprDlonFunction(rlat, latest.OddFlag)
	rlon := dlon * (float64(cprModInt(int(m), ni)) + float64(latest.Lon)/cprMaxCount)

	if rlon > 180 {
		rlon -= 360
	}

	return rlat, rlon, true
}
