package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/OpenTraceLab/djtag/internal/config"
	"github.com/OpenTraceLab/djtag/pkg/jtag"
	"github.com/loopholelabs/logging"
	"github.com/loopholelabs/logging/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	verbose     bool
	configPath  string
	adapterType string
	vendorID    uint16
	productID   uint16
	timeout     time.Duration
	metricsAddr string
)

// newSimTransport builds the transport used by --adapter simulator.
// Tests replace it to preload simulator state.
var newSimTransport = jtag.NewSimTransport

var rootCmd = &cobra.Command{
	Use:   "djtag",
	Short: "DirtyJTAG probe command tool",
	Long: `Drive a DirtyJTAG USB probe from the command line: read TDO, shift bits
through the scan chain, set the TCK frequency and toggle the JTAG lines.

Examples:
  djtag interfaces                          # List attached probes
  djtag tdo                                 # Read the TDO line
  djtag xfer --bits 11 --tdi b760           # Shift 11 bits and print captured TDO
  djtag tdo --adapter simulator -v          # Same against the built-in simulator`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.djtag/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&adapterType, "adapter", "a", "", "adapter type (usb, simulator)")
	rootCmd.PersistentFlags().Uint16Var(&vendorID, "vid", jtag.VendorIDDirtyJTAG, "USB vendor ID")
	rootCmd.PersistentFlags().Uint16Var(&productID, "pid", jtag.ProductIDDirtyJTAG, "USB product ID")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", jtag.DefaultTimeout, "bulk IN read timeout")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
}

// loadConfig reads the config file and applies any flags set on the command line.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(resolveConfigPath())
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	if flags.Changed("adapter") {
		cfg.Adapter = adapterType
	}
	if flags.Changed("vid") {
		cfg.VendorID = vendorID
	}
	if flags.Changed("pid") {
		cfg.ProductID = productID
	}
	if flags.Changed("timeout") {
		cfg.Timeout = timeout
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr = metricsAddr
	}
	if verbose && cfg.LogLevel != "trace" {
		cfg.LogLevel = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultPath()
}

func newLogger(level string) types.RootLogger {
	log := logging.New(logging.Zerolog, "djtag", os.Stderr)
	switch strings.ToLower(level) {
	case "trace":
		log.SetLevel(types.TraceLevel)
	case "debug":
		log.SetLevel(types.DebugLevel)
	case "warn":
		log.SetLevel(types.WarnLevel)
	case "error":
		log.SetLevel(types.ErrorLevel)
	default:
		log.SetLevel(types.InfoLevel)
	}
	return log
}

// newMetrics binds addr and serves /metrics on it. The listener is opened
// before returning so a bad address fails the command instead of vanishing.
func newMetrics(addr string, log types.Logger) (*jtag.Metrics, io.Closer, error) {
	if addr == "" {
		return nil, nil, nil
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, nil, fmt.Errorf("metrics listener: %w", err)
	}

	reg := prometheus.NewRegistry()
	m := jtag.NewMetrics(reg, "djtag")
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Str("addr", addr).Msg("metrics server stopped")
		}
	}()
	log.Debug().Str("addr", ln.Addr().String()).Msg("serving metrics")
	return m, srv, nil
}

// session is an open probe plus whatever was started alongside it.
type session struct {
	probe   *jtag.Probe
	metrics io.Closer
}

func (s *session) Close() error {
	if s.metrics != nil {
		s.metrics.Close()
	}
	return s.probe.Close()
}

// openProbe connects to the adapter selected by config and flags.
func openProbe(cmd *cobra.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	log := newLogger(cfg.LogLevel)
	metrics, metricsSrv, err := newMetrics(cfg.MetricsAddr, log)
	if err != nil {
		return nil, err
	}
	pcfg := jtag.ProbeConfig{
		ReadSize: cfg.ReadSize,
		Timeout:  cfg.Timeout,
		Logger:   log,
		Metrics:  metrics,
	}

	var probe *jtag.Probe
	switch cfg.Adapter {
	case "simulator", "sim":
		if verbose {
			fmt.Println("Using simulator adapter")
		}
		probe = jtag.NewProbe(newSimTransport(), pcfg)
	case "usb":
		if verbose {
			fmt.Printf("Opening DirtyJTAG probe %04X:%04X...\n", cfg.VendorID, cfg.ProductID)
		}
		probe, err = jtag.OpenUSBProbe(cfg.VendorID, cfg.ProductID, pcfg)
	default:
		err = fmt.Errorf("unknown adapter type: %s", cfg.Adapter)
	}
	if err != nil {
		if metricsSrv != nil {
			metricsSrv.Close()
		}
		return nil, err
	}
	return &session{probe: probe, metrics: metricsSrv}, nil
}

// withProbe opens the probe, runs fn and closes the probe again.
func withProbe(cmd *cobra.Command, fn func(ctx context.Context, probe *jtag.Probe) error) error {
	sess, err := openProbe(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()
	return fn(cmd.Context(), sess.probe)
}

// withAdapter is withProbe for commands that only need the generic adapter
// operations.
func withAdapter(cmd *cobra.Command, fn func(ctx context.Context, adapter jtag.Adapter) error) error {
	return withProbe(cmd, func(ctx context.Context, probe *jtag.Probe) error {
		return fn(ctx, probe)
	})
}

// noResponse reports whether err is a read that timed out. Commands print
// "No IN response" for these and exit cleanly.
func noResponse(err error) bool {
	return errors.Is(err, jtag.ErrTimeout)
}
