package logging

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// LogRotator owns one append-only BaseStation CSV log file per calendar
// day, rolling over at midnight (local or UTC, per config) and gzipping
// the file it just closed in the background.
type LogRotator struct {
	logDir string
	useUTC bool
	logger *logrus.Logger

	mu          sync.RWMutex
	currentFile *os.File
	currentDate string

	ctx    context.Context
	cancel context.CancelFunc
}

// filePrefix names the rotated BaseStation CSV log files: <prefix>_YYYY-MM-DD.log[.gz].
const filePrefix = "basestation"

// NewLogRotator creates logDir if needed and opens today's log file.
func NewLogRotator(logDir string, useUTC bool, logger *logrus.Logger) (*LogRotator, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("logging: create log dir %s: %w", logDir, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	r := &LogRotator{
		logDir: logDir,
		useUTC: useUTC,
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := r.rotateLogFile(); err != nil {
		cancel()
		return nil, fmt.Errorf("logging: open initial log file: %w", err)
	}

	return r, nil
}

// Start runs the once-a-minute rollover check until ctx or Close cancels it.
func (r *LogRotator) Start(ctx context.Context) {
	r.logger.WithField("dir", r.logDir).Info("logging: rotator started")

	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.checkRotation()
		}
	}
}

func (r *LogRotator) now() time.Time {
	if r.useUTC {
		return time.Now().UTC()
	}
	return time.Now()
}

func (r *LogRotator) checkRotation() {
	today := r.now().Format("2006-01-02")

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentDate == today {
		return
	}

	r.logger.WithFields(logrus.Fields{
		"from": r.currentDate,
		"to":   today,
	}).Info("logging: rolling over to new day")

	if err := r.rotateLogFile(); err != nil {
		r.logger.WithError(err).Error("logging: rollover failed")
	}
}

// rotateLogFile closes and schedules compression of the current file (if
// any), then opens (or reopens, in append mode) today's file. Caller must
// hold mu, except on the first call from NewLogRotator.
func (r *LogRotator) rotateLogFile() error {
	newDate := r.now().Format("2006-01-02")

	if r.currentFile != nil {
		closing := r.currentFile
		closingDate := r.currentDate
		if err := closing.Close(); err != nil {
			r.logger.WithError(err).Error("logging: close rotated-out file")
		}
		go r.compressLogFile(closingDate)
	}

	path := filepath.Join(r.logDir, fmt.Sprintf("%s_%s.log", filePrefix, newDate))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("logging: open %s: %w", path, err)
	}

	r.currentFile = f
	r.currentDate = newDate
	r.logger.WithField("file", path).Info("logging: opened log file")
	return nil
}

// compressLogFile gzips date's log file in place and removes the
// uncompressed original; it runs on its own goroutine off the rotation
// path so a slow disk never stalls the next day's writes.
func (r *LogRotator) compressLogFile(date string) {
	logPath := filepath.Join(r.logDir, fmt.Sprintf("%s_%s.log", filePrefix, date))
	gzPath := logPath + ".gz"

	if _, err := os.Stat(logPath); os.IsNotExist(err) {
		return
	}

	src, err := os.Open(logPath)
	if err != nil {
		r.logger.WithError(err).WithField("file", logPath).Error("logging: open for compression")
		return
	}
	defer src.Close()

	dst, err := os.Create(gzPath)
	if err != nil {
		r.logger.WithError(err).WithField("file", gzPath).Error("logging: create gz file")
		return
	}
	defer dst.Close()

	gzw := gzip.NewWriter(dst)
	gzw.Name = filepath.Base(logPath)
	gzw.ModTime = time.Now()

	if _, err := io.Copy(gzw, src); err != nil {
		r.logger.WithError(err).Error("logging: compress")
		gzw.Close()
		return
	}
	if err := gzw.Close(); err != nil {
		r.logger.WithError(err).Error("logging: flush gz writer")
		return
	}
	if err := dst.Close(); err != nil {
		r.logger.WithError(err).Error("logging: close gz file")
		return
	}
	if err := os.Remove(logPath); err != nil {
		r.logger.WithError(err).WithField("file", logPath).Error("logging: remove uncompressed file")
		return
	}

	r.logger.WithField("file", gzPath).Info("logging: compressed rotated log")
}

// GetWriter returns the currently open log file for callers (basestation.Writer)
// that append CSV lines directly.
func (r *LogRotator) GetWriter() (io.Writer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.currentFile == nil {
		return nil, fmt.Errorf("logging: no open log file")
	}
	return r.currentFile, nil
}

// Close stops the rotation scheduler and closes the current file.
func (r *LogRotator) Close() error {
	r.cancel()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.currentFile == nil {
		return nil
	}
	err := r.currentFile.Close()
	r.currentFile = nil
	if err != nil {
		r.logger.WithError(err).Error("logging: close on shutdown")
	}
	return err
}

// CurrentLogFile returns the path of the file currently being written.
func (r *LogRotator) CurrentLogFile() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.currentDate == "" {
		return ""
	}
	return filepath.Join(r.logDir, fmt.Sprintf("%s_%s.log", filePrefix, r.currentDate))
}

// LogFiles lists every rotated log file, compressed or not, oldest-name-first
// per filepath.Glob's lexical order (which matches date order for this
// naming scheme).
func (r *LogRotator) LogFiles() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(r.logDir, filePrefix+"_*.log*"))
	if err != nil {
		return nil, fmt.Errorf("logging: list log files: %w", err)
	}
	return files, nil
}

// CleanupOldLogs removes rotated files (never the file currently being
// written) whose mtime is older than maxDays.
func (r *LogRotator) CleanupOldLogs(maxDays int) error {
	if maxDays <= 0 {
		return fmt.Errorf("logging: maxDays must be positive, got %d", maxDays)
	}

	files, err := r.LogFiles()
	if err != nil {
		return err
	}

	cutoff := r.now().AddDate(0, 0, -maxDays)
	current := r.CurrentLogFile()
	removed := 0

	for _, file := range files {
		if file == current {
			continue
		}
		info, err := os.Stat(file)
		if err != nil {
			r.logger.WithError(err).WithField("file", file).Warn("logging: stat during cleanup")
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(file); err != nil {
			r.logger.WithError(err).WithField("file", file).Error("logging: remove during cleanup")
			continue
		}
		removed++
	}

	r.logger.WithField("removed", removed).Info("logging: cleanup complete")
	return nil
}
