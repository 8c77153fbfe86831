package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go1090/internal/app"
)

func main() {
	var config app.Config

	rootCmd := &cobra.Command{
		Use:   "go1090",
		Short: "Mode S / ADS-B receiver (dump1090-style)",
		Long: `Mode S / ADS-B receiver using RTL-SDR (dump1090-style implementation).

Captures I/Q samples from RTL-SDR at 2.4MHz, demodulates Mode S/ADS-B messages
using dump1090's ratio-test preamble detection and phase-corrected bit
slicing, validates CRC with single/double-bit repair, tracks aircraft in a
live registry, and serves Raw-hex, BaseStation (SBS), and HTTP/JSON/WebSocket
feeds.

Example usage:
  go1090 --frequency 1090000000 --sample-rate 2400000 --gain 40 --device 0 --net`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if config.ShowVersion {
				app.ShowVersion()
				return nil
			}

			application := app.NewApplication(config)
			return application.Start()
		},
	}

	flags := rootCmd.Flags()

	// Device / capture
	flags.Uint32VarP(&config.Frequency, "frequency", "f", app.DefaultFrequency, "Frequency to tune to (Hz)")
	flags.Uint32VarP(&config.SampleRate, "sample-rate", "s", app.DefaultSampleRate, "Sample rate (Hz)")
	flags.IntVar(&config.Gain, "gain", app.DefaultGain, "Gain setting (0 for auto)")
	flags.IntVarP(&config.DeviceIndex, "device", "d", 0, "RTL-SDR device index")

	// Replay
	flags.StringVar(&config.InFile, "infile", "", "Read I/Q samples from a file instead of the RTL-SDR device (\"-\" for stdin)")
	flags.IntVar(&config.Loop, "loop", 0, "Number of times to replay --infile (0 or negative: loop forever)")
	flags.IntVar(&config.Strip, "strip", 0, "Bytes to skip at the start of --infile")
	flags.BoolVar(&config.BeastIn, "beast-infile", false, "Treat --infile as a Beast binary-protocol capture instead of raw I/Q")

	// Decoder behavior
	flags.BoolVar(&config.Aggressive, "aggressive", false, "Enable the aggressive two-bit CRC error-correction budget")
	flags.BoolVar(&config.NoFix, "no-fix", false, "Disable single/double-bit CRC error correction")
	flags.BoolVar(&config.NoCRCCheck, "no-crc-check", false, "Accept messages that fail CRC validation")
	flags.BoolVar(&config.OnlyAddr, "only-addr", false, "Print only the ICAO address of each decoded message")
	flags.BoolVar(&config.Raw, "raw", false, "Print the raw-hex frame of every decoded message to stdout")
	flags.BoolVar(&config.Metric, "metric", false, "Use metric units for altitude/speed display")
	flags.IntVar(&config.MaxMessages, "max-messages", app.DefaultMaxMessages, "Exit after this many decoded messages (0 = unlimited)")

	// Debug flags (dump1090's single-letter surface)
	flags.BoolVarP(&config.DebugDemod, "debug-demod", "E", false, "Log demodulator error details")
	flags.BoolVarP(&config.DebugDemodBad, "debug-demod-bad", "D", false, "Log rejected demodulator candidates")
	flags.BoolVarP(&config.DebugCorrectedC, "debug-corrected", "c", false, "Log single-bit corrected frames")
	flags.BoolVarP(&config.DebugCorrectedCC, "debug-corrected2", "C", false, "Log two-bit corrected frames")
	flags.BoolVarP(&config.DebugNoPreamble, "debug-no-preamble", "p", false, "Log missed preamble candidates")
	flags.BoolVarP(&config.DebugNet, "debug-net", "n", false, "Log network reactor activity")
	flags.BoolVarP(&config.DebugNetVerbose, "debug-net-verbose", "N", false, "Log network reactor activity verbosely")
	flags.BoolVarP(&config.DebugJS, "debug-js", "j", false, "Log raw JSON served to HTTP clients")
	flags.BoolVarP(&config.DebugGoodMsgs, "debug-good", "g", false, "Log every accepted message")
	flags.BoolVarP(&config.DebugGoodMsgs2, "debug-good-verbose", "G", false, "Log every accepted message verbosely")

	// Network services
	flags.StringVar(&config.RawInAddr, "raw-in-addr", app.DefaultRawInAddr, "Raw-hex input listen address (empty disables)")
	flags.StringVar(&config.RawOutAddr, "raw-out-addr", app.DefaultRawOutAddr, "Raw-hex output listen address (empty disables)")
	flags.StringVar(&config.SbsAddr, "sbs-addr", app.DefaultSbsAddr, "BaseStation (SBS) output listen address (empty disables)")
	flags.StringVar(&config.HTTPAddr, "http-addr", app.DefaultHTTPAddr, "HTTP/JSON listen address (empty disables)")
	flags.BoolVar(&config.Net, "net", false, "Enable the network services")
	flags.BoolVar(&config.NetOnly, "net-only", false, "Run network services only, skip device/file capture entirely")
	flags.BoolVar(&config.NetActive, "net-active", false, "Actively dial out instead of listening, where applicable")

	// HTTP/web
	flags.StringVar(&config.WebRoot, "web-root", "", "Directory of static files served over HTTP")
	flags.StringVar(&config.WebPage, "web-page", app.DefaultWebPage, "Home page served at \"/\"")

	// Aircraft metadata
	flags.StringVar(&config.AircraftDBPath, "aircraft-db", "", "Path to an aircraft metadata CSV file")

	// Interactive/TUI
	flags.BoolVarP(&config.Interactive, "interactive", "i", false, "Enable interactive terminal display mode")
	flags.IntVar(&config.InteractiveTTL, "interactive-ttl", app.DefaultTTLMs, "Interactive mode aircraft timeout (ms)")
	flags.IntVar(&config.InteractiveRows, "interactive-rows", app.DefaultInteractiveRows, "Interactive mode max displayed rows")

	// Home position
	flags.Float64Var(&config.HomeLat, "lat", 0, "Receiver latitude, for home-distance computation")
	flags.Float64Var(&config.HomeLon, "lon", 0, "Receiver longitude, for home-distance computation")

	// Ambient
	flags.StringVarP(&config.LogDir, "log-dir", "l", "./logs", "Log directory")
	flags.BoolVarP(&config.LogRotateUTC, "utc", "u", true, "Use UTC for log rotation")
	flags.BoolVarP(&config.Verbose, "verbose", "v", false, "Verbose logging")
	flags.BoolVar(&config.ShowVersion, "version", false, "Show version information")

	rootCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		if flags.Changed("lat") || flags.Changed("lon") {
			config.HasHomePos = true
		}
		return nil
	}

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
