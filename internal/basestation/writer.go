// Package basestation formats already-decoded Mode S / ADS-B messages into
// BaseStation (SBS) CSV lines. All field extraction happens upstream in
// internal/modes.FrameDecoder; this package only assembles the 22-field CSV
// layout for the DF/me_type combinations enumerated in §6.
package basestation

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"go1090/internal/logging"
	"go1090/internal/modes"
)

// MSG is the BaseStation message type (field 1) this receiver ever emits;
// SEL/ID/AIR/STA/CLK belong to a BaseStation session manager, out of scope
// for a receive-only decoder.
const MSG = "MSG"

// Transmission types (field 2), dump1090/BaseStation numbering.
const (
	TransmissionESIdentCategory = 1
	TransmissionESSurface       = 2
	TransmissionESAirborne      = 3
	TransmissionESVelocity      = 4
	TransmissionSurveillanceAlt = 5
	TransmissionSurveillanceID  = 6
	TransmissionAirToAir        = 7
	TransmissionAllCallReply    = 8
)

// flagStr renders a boolean alert/emergency/spi/ground flag using the
// spec's -1-for-true/0-for-false convention.
func flagStr(v bool) string {
	if v {
		return "-1"
	}
	return "0"
}

// Format renders one BaseStation CSV line for msg, or ok=false if msg's
// DF/me_type combination isn't one of the emissions enumerated in §6 (every
// other frame produces no SBS line at all).
func Format(msg *modes.Message, sessionID, aircraftID, flightID int, now time.Time) (line string, ok bool) {
	icao := fmt.Sprintf("%06X", msg.ICAO)
	dateStr := now.Format("2006/01/02")
	timeStr := now.Format("15:04:05.000")

	f := fields{
		sessionID:  strconv.Itoa(sessionID),
		aircraftID: strconv.Itoa(aircraftID),
		hexIdent:   icao,
		flightID:   strconv.Itoa(flightID),
		dateGen:    dateStr,
		timeGen:    timeStr,
		dateLog:    dateStr,
		timeLog:    timeStr,
	}

	switch {
	case msg.DF == 0:
		f.transmissionType = TransmissionSurveillanceAlt
		if msg.HasAltitude {
			f.altitude = strconv.Itoa(msg.Altitude)
		}

	case msg.DF == 4:
		f.transmissionType = TransmissionSurveillanceAlt
		if msg.HasAltitude {
			f.altitude = strconv.Itoa(msg.Altitude)
		}
		f.alert = flagStr(false)
		f.emergency = flagStr(false)
		f.spi = flagStr(false)
		f.isOnGround = flagStr(false)

	case msg.DF == 5:
		f.transmissionType = TransmissionSurveillanceID
		if msg.HasIdentity {
			f.squawk = fmt.Sprintf("%04d", msg.Identity)
		}
		f.alert = flagStr(false)
		f.emergency = flagStr(false)
		f.spi = flagStr(false)
		f.isOnGround = flagStr(false)

	case msg.DF == 11:
		f.transmissionType = TransmissionAllCallReply

	case (msg.DF == 17 || msg.DF == 18) && msg.HasFlight:
		f.transmissionType = TransmissionESIdentCategory
		f.callsign = strings.TrimRight(msg.Flight, " ")

	case (msg.DF == 17 || msg.DF == 18) && msg.HasPosition:
		f.transmissionType = TransmissionESAirborne
		if msg.HasAltitude {
			f.altitude = strconv.Itoa(msg.Altitude)
		}
		// A single raw message only carries one CPR half, so lat/lon is
		// left blank here; FormatWithPosition fills it in once the
		// registry has resolved an odd/even pair.

	case (msg.DF == 17 || msg.DF == 18) && msg.HasVelocity:
		f.transmissionType = TransmissionESVelocity
		f.groundSpeed = strconv.Itoa(int(msg.GroundSpeed))
		if msg.HeadingValid {
			f.track = fmt.Sprintf("%.1f", msg.HeadingDeg)
		}
		if msg.VerticalRate != 0 {
			f.verticalRate = strconv.Itoa(msg.VerticalRate)
		}

	case msg.DF == 21:
		f.transmissionType = TransmissionSurveillanceID
		if msg.HasIdentity {
			f.squawk = fmt.Sprintf("%04d", msg.Identity)
		}
		f.alert = flagStr(false)
		f.emergency = flagStr(false)
		f.spi = flagStr(false)
		f.isOnGround = flagStr(false)

	default:
		return "", false
	}

	return f.csv(), true
}

// latFieldIndex/lonFieldIndex are the 0-based columns of Latitude/Longitude
// in the 22-field CSV fields.csv() emits.
const latFieldIndex = 14
const lonFieldIndex = 15

// FormatWithPosition is Format, plus a resolved lat/lon for a DF17/18
// airborne-position submessage once the registry's CPR pairing has
// produced one.
func FormatWithPosition(msg *modes.Message, sessionID, aircraftID, flightID int, now time.Time, lat, lon float64) (string, bool) {
	line, ok := Format(msg, sessionID, aircraftID, flightID, now)
	if !ok || !msg.HasPosition {
		return line, ok
	}
	parts := strings.Split(line, ",")
	if len(parts) > lonFieldIndex {
		parts[latFieldIndex] = fmt.Sprintf("%.5f", lat)
		parts[lonFieldIndex] = fmt.Sprintf("%.5f", lon)
	}
	return strings.Join(parts, ","), true
}

// fields holds the 22 BaseStation columns as strings; unset fields render
// as empty, matching the spec's comma-placeholder examples.
type fields struct {
	transmissionType int
	sessionID        string
	aircraftID       string
	hexIdent         string
	flightID         string
	dateGen          string
	timeGen          string
	dateLog          string
	timeLog          string
	callsign         string
	altitude         string
	groundSpeed      string
	track            string
	latitude         string
	longitude        string
	verticalRate     string
	squawk           string
	alert            string
	emergency        string
	spi              string
	isOnGround       string
}

func (f fields) csv() string {
	cols := []string{
		MSG,
		strconv.Itoa(f.transmissionType),
		f.sessionID,
		f.aircraftID,
		f.hexIdent,
		f.flightID,
		f.dateGen,
		f.timeGen,
		f.dateLog,
		f.timeLog,
		f.callsign,
		f.altitude,
		f.groundSpeed,
		f.track,
		f.latitude,
		f.longitude,
		f.verticalRate,
		f.squawk,
		f.alert,
		f.emergency,
		f.spi,
		f.isOnGround,
	}
	return strings.Join(cols, ",")
}

// Writer appends formatted BaseStation lines to the rotating log file, the
// same sink the teacher used for its SBS output, now fed by the pure
// Format/FormatWithPosition functions above instead of duplicating field
// extraction.
type Writer struct {
	logRotator *logging.LogRotator
	logger     *logrus.Logger
	sessionID  int
	aircraftID int
}

// NewWriter returns a Writer appending to logRotator's current file.
func NewWriter(logRotator *logging.LogRotator, logger *logrus.Logger) *Writer {
	return &Writer{logRotator: logRotator, logger: logger, sessionID: 1, aircraftID: 1}
}

// WriteLine appends a pre-formatted CSV line (plus newline) to the log.
func (w *Writer) WriteLine(line string) error {
	writer, err := w.logRotator.GetWriter()
	if err != nil {
		return fmt.Errorf("failed to get log writer: %w", err)
	}
	if _, err := writer.Write([]byte(line + "\n")); err != nil {
		return fmt.Errorf("failed to write SBS line: %w", err)
	}
	return nil
}

// SessionID and AircraftID are fixed per process lifetime, matching the
// teacher's single-session BaseStation numbering.
func (w *Writer) SessionID() int  { return w.sessionID }
func (w *Writer) AircraftID() int { return w.aircraftID }
