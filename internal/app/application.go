package app

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"go1090/internal/basestation"
	"go1090/internal/beast"
	"go1090/internal/dsp"
	"go1090/internal/logging"
	"go1090/internal/modes"
	"go1090/internal/netreactor"
	"go1090/internal/pipeline"
	"go1090/internal/registry"
	"go1090/internal/rtlsdr"
	"go1090/internal/sample"
)

// homePosEnv is the environment variable dump1090 and its descendants read
// a "lat,lon" home position from when no --lat/--lon flags are given.
const homePosEnv = "DUMP1090_HOMEPOS"

// Application owns every component's lifecycle: construction in
// initializeComponents, the capture/demod/decode/fan-out loop in run, and
// coordinated teardown in shutdown.
type Application struct {
	config Config
	logger *logrus.Logger

	source sample.Source

	icaoCache *modes.IcaoCache
	demod     *modes.Demodulator
	decoder   *modes.FrameDecoder
	cpr       *modes.CprDecoder
	registry  *registry.Registry

	logRotator *logging.LogRotator
	sbsWriter  *basestation.Writer
	beastDec   *beast.Decoder

	reactor    *netreactor.Reactor
	httpServer *netreactor.HTTPServer

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	verbose bool

	messagesOut uint64
	mu          sync.Mutex
}

// NewApplication returns an Application bound to config. No I/O happens
// until Start.
func NewApplication(config Config) *Application {
	ctx, cancel := context.WithCancel(context.Background())

	logger := logrus.New()
	if config.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	return &Application{
		config:  config,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		verbose: config.Verbose,
	}
}

// Start initializes every component, runs the capture/decode loop, and
// blocks until SIGINT/SIGTERM or the configured message cap is reached.
func (app *Application) Start() error {
	app.logger.WithFields(logrus.Fields{
		"version":    Version,
		"build_time": BuildTime,
		"git_commit": GitCommit,
	}).Info("Starting go1090 receiver")

	if err := app.initializeComponents(); err != nil {
		return fmt.Errorf("failed to initialize components: %w", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.run(); err != nil {
		app.logger.WithError(err).Error("application error")
		return err
	}

	capTicker := time.NewTicker(200 * time.Millisecond)
	defer capTicker.Stop()
	for waiting := true; waiting; {
		select {
		case <-sigChan:
			app.logger.Info("received shutdown signal")
			waiting = false
		case <-capTicker.C:
			app.mu.Lock()
			waiting = app.config.MaxMessages <= 0 || app.messagesOut < uint64(app.config.MaxMessages)
			app.mu.Unlock()
		}
	}
	app.shutdown()

	return nil
}

func (app *Application) initializeComponents() error {
	var err error

	app.icaoCache = modes.NewIcaoCache()
	app.demod = modes.NewDemodulator(app.config.Aggressive)
	app.decoder = modes.NewFrameDecoder(app.icaoCache, app.config.Aggressive, app.config.NoFix, app.config.NoCRCCheck)
	app.cpr = modes.NewCprDecoder()
	app.registry = registry.NewRegistry(app.cpr)
	app.registry.SetAllowBadCRC(app.config.NoCRCCheck)

	lat, lon, ok := app.resolveHomePosition()
	if ok {
		app.registry.SetHome(lat, lon)
		app.logger.WithFields(logrus.Fields{"lat": lat, "lon": lon}).Info("home position set")
	}

	if app.config.LogDir != "" {
		app.logRotator, err = logging.NewLogRotator(app.config.LogDir, app.config.LogRotateUTC, app.logger)
		if err != nil {
			return fmt.Errorf("failed to initialize log rotator: %w", err)
		}
		app.sbsWriter = basestation.NewWriter(app.logRotator, app.logger)
	}

	app.beastDec = beast.NewDecoder(app.logger)

	if app.config.Net || app.config.NetOnly {
		reactorCfg := netreactor.Config{
			RawOutAddr: app.config.RawOutAddr,
			RawInAddr:  app.config.RawInAddr,
			SbsOutAddr: app.config.SbsAddr,
			HTTPAddr:   app.config.HTTPAddr,
			WebRoot:    app.config.WebRoot,
			WebPage:    app.config.WebPage,
		}
		app.reactor = netreactor.NewReactor(reactorCfg, app.logger, app.decoder, app.registry)
		if app.config.HTTPAddr != "" {
			app.httpServer = netreactor.NewHTTPServer(app.config.HTTPAddr, app.config.WebRoot, app.config.WebPage, app.logger, app.registry)
		}
	}

	if !app.config.NetOnly {
		app.source, err = app.buildSource()
		if err != nil {
			return fmt.Errorf("failed to initialize capture source: %w", err)
		}
	}

	return nil
}

// resolveHomePosition prefers explicit CLI flags over DUMP1090_HOMEPOS.
func (app *Application) resolveHomePosition() (lat, lon float64, ok bool) {
	if app.config.HasHomePos {
		return app.config.HomeLat, app.config.HomeLon, true
	}
	raw := os.Getenv(homePosEnv)
	if raw == "" {
		return 0, 0, false
	}
	parts := strings.Split(raw, ",")
	if len(parts) != 2 {
		return 0, 0, false
	}
	latF, err1 := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	lonF, err2 := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return latF, lonF, true
}

// buildSource selects the RTL-SDR device or a replay source, mirroring the
// spec's "--infile <path|-> replaces live capture" rule.
func (app *Application) buildSource() (sample.Source, error) {
	switch app.config.InFile {
	case "":
		dev, err := rtlsdr.NewRTLSDRDevice(app.config.DeviceIndex, app.logger)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize RTL-SDR: %w", err)
		}
		if err := dev.Configure(app.config.Frequency, app.config.SampleRate, app.config.Gain); err != nil {
			return nil, fmt.Errorf("failed to configure RTL-SDR: %w", err)
		}
		return dev, nil
	case "-":
		return sample.NewStdinSource(app.logger), nil
	default:
		return sample.NewFileSource(app.config.InFile, app.config.Loop, app.config.Strip, app.logger), nil
	}
}

func (app *Application) run() error {
	if app.reactor != nil {
		if err := app.reactor.Start(app.ctx); err != nil {
			return fmt.Errorf("failed to start network reactor: %w", err)
		}
	}
	if app.httpServer != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			if err := app.httpServer.Start(app.ctx); err != nil {
				app.logger.WithError(err).Error("HTTP server failed")
			}
		}()
	}
	if app.logRotator != nil {
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			app.logRotator.Start(app.ctx)
		}()
	}

	if app.source != nil {
		dataChan := make(chan []byte, 100)
		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			if err := app.source.Capture(app.ctx, dataChan); err != nil {
				app.logger.WithError(err).Error("capture source failed")
			}
		}()

		app.wg.Add(1)
		go func() {
			defer app.wg.Done()
			if app.config.BeastIn {
				app.beastReplayLoop(dataChan)
			} else {
				app.processLoop(dataChan)
			}
		}()
	}

	app.wg.Add(1)
	go func() {
		defer app.wg.Done()
		app.reportStatistics()
	}()

	app.logger.Info("all components started")
	return nil
}

// processLoop is the consumer side of the producer/consumer boundary: it
// owns the double buffer, demodulation, decoding, registry ingest, and
// reactor fan-out, plus the ≥4Hz reactor poll and a periodic eviction sweep
// — all single-threaded by construction, so none of this needs its own
// lock beyond what Registry/Reactor already provide internally.
func (app *Application) processLoop(dataChan <-chan []byte) {
	db := pipeline.NewDoubleBuffer(modes.FullLen)
	pollTicker := time.NewTicker(200 * time.Millisecond)
	defer pollTicker.Stop()
	evictTicker := time.NewTicker(5 * time.Second)
	defer evictTicker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case data, ok := <-dataChan:
			if !ok {
				return
			}
			db.Push(data)
			if app.processBuffer(db.Take()) {
				return
			}
		case <-pollTicker.C:
			if app.reactor != nil {
				app.reactor.Poll(time.Now())
			}
		case <-evictTicker.C:
			app.registry.Evict(time.Now().UnixMilli())
		}
	}
}

// beastReplayLoop feeds a pre-recorded Beast-format capture file straight
// into FrameDecoder, bypassing demodulation entirely — the frames are
// already bit-sliced, only CRC/field extraction remains.
func (app *Application) beastReplayLoop(dataChan <-chan []byte) {
	pollTicker := time.NewTicker(200 * time.Millisecond)
	defer pollTicker.Stop()
	evictTicker := time.NewTicker(5 * time.Second)
	defer evictTicker.Stop()
	nowEpochS := uint32(time.Now().Unix())

	for {
		select {
		case <-app.ctx.Done():
			return
		case data, ok := <-dataChan:
			if !ok {
				return
			}
			beastMsgs, err := app.beastDec.Decode(data)
			if err != nil {
				app.logger.WithError(err).Debug("beast decode failed")
				continue
			}
			for _, bm := range beastMsgs {
				frame, ok := bm.ToRawFrame()
				if !ok {
					continue
				}
				msg := app.decoder.Decode(frame, nowEpochS)
				if app.handleMessage(msg, frame) {
					return
				}
			}
		case <-pollTicker.C:
			if app.reactor != nil {
				app.reactor.Poll(time.Now())
			}
		case <-evictTicker.C:
			app.registry.Evict(time.Now().UnixMilli())
		}
	}
}

// processBuffer demodulates and decodes every frame in buf, returning true
// if the configured message cap was just reached.
func (app *Application) processBuffer(buf []byte) bool {
	if len(buf) == 0 {
		return false
	}
	mag := dsp.Buffer(buf)
	frames := app.demod.Process(mag)
	nowEpochS := uint32(time.Now().Unix())

	for _, frame := range frames {
		msg := app.decoder.Decode(frame, nowEpochS)
		msg.SignalPower = modes.SignalPower(mag, frame.Offset)
		if app.handleMessage(msg, frame) {
			return true
		}
	}
	return false
}

// handleMessage applies the receiver's fan-out policy: CRC-failed frames
// are dropped unless --no-crc-check is set; with it they update the
// registry but are never sent to RawOut/SbsOut.
func (app *Application) handleMessage(msg *modes.Message, frame modes.RawFrame) bool {
	if app.config.OnlyAddr {
		fmt.Printf("%06X\n", msg.ICAO)
	}

	if !msg.CRCOk && !app.config.NoCRCCheck {
		return false
	}

	ac := app.registry.Ingest(msg, time.Now().UnixMilli())

	if msg.CRCOk {
		if app.reactor != nil {
			app.reactor.BroadcastRaw(frame)
		}
		app.emitSBS(msg, ac)
	}

	if app.config.Raw {
		fmt.Print(netreactor.FormatRawLine(frame))
	}

	app.mu.Lock()
	app.messagesOut++
	reachedCap := app.config.MaxMessages > 0 && app.messagesOut >= uint64(app.config.MaxMessages)
	app.mu.Unlock()
	return reachedCap
}

func (app *Application) emitSBS(msg *modes.Message, ac *registry.Aircraft) {
	var line string
	var ok bool
	now := time.Now()
	if ac != nil && ac.HasPosition && msg.HasPosition {
		line, ok = basestation.FormatWithPosition(msg, app.sbsSessionID(), app.sbsAircraftID(), app.sbsAircraftID(), now, ac.Position.Lat, ac.Position.Lon)
	} else {
		line, ok = basestation.Format(msg, app.sbsSessionID(), app.sbsAircraftID(), app.sbsAircraftID(), now)
	}
	if !ok {
		return
	}

	if app.sbsWriter != nil {
		if err := app.sbsWriter.WriteLine(line); err != nil {
			app.logger.WithError(err).Debug("failed to write SBS line")
		}
	}
	if app.reactor != nil {
		app.reactor.BroadcastSbs(line)
	}
}

func (app *Application) sbsSessionID() int {
	if app.sbsWriter == nil {
		return 1
	}
	return app.sbsWriter.SessionID()
}

func (app *Application) sbsAircraftID() int {
	if app.sbsWriter == nil {
		return 1
	}
	return app.sbsWriter.AircraftID()
}

func (app *Application) reportStatistics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-app.ctx.Done():
			return
		case <-ticker.C:
			preambles, accepted, rejected := app.demod.Stats()
			fields := logrus.Fields{
				"preambles":    preambles,
				"accepted":     accepted,
				"rejected":     rejected,
				"unknown_me":   app.decoder.UnknownMECount(),
				"messages_out": app.messagesOut,
				"total_msgs":   app.registry.MessageCount(),
			}
			if dropper, ok := app.source.(interface{ DroppedChunks() uint64 }); ok {
				fields["capture_dropped"] = dropper.DroppedChunks()
			}
			app.logger.WithFields(fields).Info("receiver statistics")
		}
	}
}

func (app *Application) shutdown() {
	app.logger.Info("shutting down application")
	app.cancel()

	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		app.logger.Info("all goroutines finished")
	case <-time.After(5 * time.Second):
		app.logger.Warn("shutdown timeout, forcing exit")
	}

	if app.reactor != nil {
		app.reactor.Close()
	}
	if app.logRotator != nil {
		app.logRotator.Close()
	}

	app.logger.Info("shutdown complete")
}
