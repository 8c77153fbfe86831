//go:build !cgo

package rtlsdr

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
)

// RTLSDRDevice is a stub used on builds without cgo (e.g. cross-compiled
// Windows binaries): RTL-SDR capture requires librtlsdr via cgo, so every
// method returns an error instead of touching hardware.
type RTLSDRDevice struct {
	index  int
	logger *logrus.Logger
}

// NewRTLSDRDevice returns a stub device; every method fails. logger is
// accepted (but unused) to keep the constructor signature identical to the
// cgo build.
func NewRTLSDRDevice(index int, logger *logrus.Logger) (*RTLSDRDevice, error) {
	return &RTLSDRDevice{index: index, logger: logger}, nil
}

// DroppedChunks always reports zero: no capture ever runs in this build.
func (d *RTLSDRDevice) DroppedChunks() uint64 { return 0 }

func (d *RTLSDRDevice) Configure(frequency, sampleRate uint32, gain int) error {
	return fmt.Errorf("RTL-SDR hardware support requires a cgo build")
}

func (d *RTLSDRDevice) StartCapture(ctx context.Context, dataChan chan<- []byte) error {
	return fmt.Errorf("RTL-SDR hardware support requires a cgo build")
}

func (d *RTLSDRDevice) Capture(ctx context.Context, dataChan chan<- []byte) error {
	return d.StartCapture(ctx, dataChan)
}

func (d *RTLSDRDevice) Close() error { return nil }
