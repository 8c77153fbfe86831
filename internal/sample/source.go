// Package sample provides non-RTL-SDR producers of raw I/Q bytes — a
// recorded capture file or stdin — behind the same capture interface the
// pipeline uses for the live RTL-SDR device, so replay and live capture are
// interchangeable from the Application's point of view.
package sample

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

// Source is the capture interface shared by rtlsdr.RTLSDRDevice,
// FileSource, and StdinSource.
type Source interface {
	Capture(ctx context.Context, dataChan chan<- []byte) error
}

// chunkSize matches the pipeline's nominal fresh-byte payload per buffer so
// a file/stdin replay produces the same buffer cadence as the RTL-SDR
// device's ReadAsync callbacks.
const chunkSize = 256 * 1024

// FileSource replays raw I/Q bytes from a file, optionally looping a fixed
// number of times (or forever, if loopCount <= 0), serving the CLI's
// `--infile <path>` and `--loop N` surface.
type FileSource struct {
	path      string
	loopCount int
	strip     int
	logger    *logrus.Logger
}

// NewFileSource returns a FileSource reading path, looping loopCount times
// (0 or negative means infinite). strip discards the first N bytes of each
// open (matching dump1090's `--strip` capture-format skip).
func NewFileSource(path string, loopCount, strip int, logger *logrus.Logger) *FileSource {
	return &FileSource{path: path, loopCount: loopCount, strip: strip, logger: logger}
}

// Capture streams chunkSize-sized buffers from the file into dataChan until
// ctx is cancelled, the loop count is exhausted, or the file reaches EOF on
// a non-looping read.
func (f *FileSource) Capture(ctx context.Context, dataChan chan<- []byte) error {
	iterations := 0
	for {
		if err := f.playOnce(ctx, dataChan); err != nil {
			return err
		}
		iterations++
		if f.loopCount > 0 && iterations >= f.loopCount {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		default:
		}
	}
}

func (f *FileSource) playOnce(ctx context.Context, dataChan chan<- []byte) error {
	file, err := os.Open(f.path)
	if err != nil {
		return fmt.Errorf("failed to open capture file %s: %w", f.path, err)
	}
	defer file.Close()

	if f.strip > 0 {
		if _, err := file.Seek(int64(f.strip), io.SeekStart); err != nil {
			return fmt.Errorf("failed to strip header from %s: %w", f.path, err)
		}
	}

	return streamChunks(ctx, file, dataChan, f.logger)
}

// StdinSource replays raw I/Q bytes from standard input, serving
// `--infile -`. It never loops: stdin has no rewind.
type StdinSource struct {
	logger *logrus.Logger
}

// NewStdinSource returns a StdinSource.
func NewStdinSource(logger *logrus.Logger) *StdinSource {
	return &StdinSource{logger: logger}
}

// Capture streams chunkSize-sized buffers from os.Stdin into dataChan until
// ctx is cancelled or stdin is closed.
func (s *StdinSource) Capture(ctx context.Context, dataChan chan<- []byte) error {
	return streamChunks(ctx, os.Stdin, dataChan, s.logger)
}

// streamChunks is the read loop shared by FileSource and StdinSource: read
// up to chunkSize bytes, deliver non-empty reads, stop cleanly at EOF or
// context cancellation.
func streamChunks(ctx context.Context, r io.Reader, dataChan chan<- []byte, logger *logrus.Logger) error {
	br := bufio.NewReaderSize(r, chunkSize)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		buf := make([]byte, chunkSize)
		n, err := io.ReadFull(br, buf)
		if n > 0 {
			select {
			case dataChan <- buf[:n]:
			case <-ctx.Done():
				return nil
			}
		}
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return nil
			}
			if logger != nil {
				logger.WithError(err).Debug("sample source read failed")
			}
			return fmt.Errorf("sample source read failed: %w", err)
		}
	}
}
