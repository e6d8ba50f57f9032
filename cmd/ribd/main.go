// ribd daemon -- shared instance harness for the link-state (IS-IS,
// OSPF, LDP) and policy-decision (BGP, RIP) protocol families, plus BFD
// liveness detection and VRRP redundancy, all run as protocol instances
// under one internal/instance.Manager (spec.md section 1).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"os"
	"os/signal"
	"runtime/trace"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/ribd/internal/bfd"
	"github.com/dantte-lp/ribd/internal/bgp"
	"github.com/dantte-lp/ribd/internal/gobgp"
	"github.com/dantte-lp/ribd/internal/instance"
	"github.com/dantte-lp/ribd/internal/isis"
	"github.com/dantte-lp/ribd/internal/ldp"
	"github.com/dantte-lp/ribd/internal/linkstate"
	"github.com/dantte-lp/ribd/internal/metrics"
	"github.com/dantte-lp/ribd/internal/netio"
	"github.com/dantte-lp/ribd/internal/northbound"
	"github.com/dantte-lp/ribd/internal/ospf"
	"github.com/dantte-lp/ribd/internal/procconfig"
	"github.com/dantte-lp/ribd/internal/rip"
	appversion "github.com/dantte-lp/ribd/internal/version"
	"github.com/dantte-lp/ribd/internal/vrrp"
)

// shutdownTimeout bounds how long the metrics HTTP server gets to drain
// active connections during graceful shutdown.
const shutdownTimeout = 10 * time.Second

// drainTimeout is the time to wait after setting BFD sessions to
// AdminDown before proceeding with shutdown, so the final AdminDown
// packets reach peers (RFC 5880 Section 6.8.16).
const drainTimeout = 2 * time.Second

// flightRecorderMinAge is the minimum window age for the flight recorder.
const flightRecorderMinAge = 500 * time.Millisecond

// flightRecorderMaxBytes is the upper bound on flight recorder window size.
const flightRecorderMaxBytes = 2 * 1024 * 1024 // 2 MiB

// recordingsDir is where each instance's event-recorder trace file is
// written (spec.md section 6: file named "<protocol>-<instance>.jsonl").
const recordingsDir = "recordings"

// aggregatorBufs sizes every instance's northbound/southbound/protocol/
// timer fan-in channels.
const aggregatorBufs = 64

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to configuration file (YAML)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		slog.New(slog.NewTextHandler(os.Stderr, nil)).Error("failed to load configuration",
			slog.String("error", err.Error()),
		)
		return 1
	}

	logLevel := new(slog.LevelVar)
	logLevel.Set(procconfig.ParseLogLevel(cfg.Log.Level))
	logger := newLoggerWithLevel(cfg.Log, logLevel)

	logger.Info("ribd starting",
		slog.String("version", appversion.Version),
		slog.String("metrics_addr", cfg.Metrics.Addr),
		slog.Int("instances", len(cfg.Instances)),
	)

	fr := startFlightRecorder(logger)

	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	if err := runDaemon(cfg, collector, reg, logger, fr); err != nil {
		logger.Error("ribd exited with error", slog.String("error", err.Error()))
		return 1
	}

	logger.Info("ribd stopped")
	return 0
}

// runDaemon builds one internal/instance.Harness per declared instance,
// wires the shared southbound bus and BFD packet receive path, and runs
// everything under a signal-aware errgroup until shutdown.
func runDaemon(
	cfg *procconfig.Config,
	collector *metrics.Collector,
	reg *prometheus.Registry,
	logger *slog.Logger,
	fr *trace.FlightRecorder,
) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	mgr := instance.NewManager(logger)
	bus := northbound.NewSouthboundBus(logger)

	bfdMgr := bfd.NewManager(logger, bfd.WithManagerMetrics(collector))
	defer bfdMgr.Close()

	var haveBFD, haveBGP bool
	for _, ic := range cfg.Instances {
		switch ic.Protocol {
		case "bfd":
			haveBFD = true
		case "bgp":
			haveBGP = true
		}
	}

	for _, ic := range cfg.Instances {
		h, err := buildHandler(ic, cfg, bfdMgr, logger)
		if err != nil {
			return fmt.Errorf("build handler for instance %q: %w", ic.Name, err)
		}

		channels := instance.NewChannels(aggregatorBufs, aggregatorBufs, aggregatorBufs, aggregatorBufs)
		recorder, err := instance.NewRecorder(recordingsDir, ic.Protocol, ic.Name)
		if err != nil {
			logger.Warn("event recorder disabled", slog.String("instance", ic.Name), slog.String("error", err.Error()))
			recorder = instance.NewDisabledRecorder()
		}

		harness := instance.New(ic.Name, ic.Protocol, channels, h, logger, recorder, false)
		if err := mgr.Register(harness); err != nil {
			return fmt.Errorf("register instance %q: %w", ic.Name, err)
		}

		sub := bus.Subscribe(ic.Name)
		g.Go(func() error {
			for {
				select {
				case <-gCtx.Done():
					bus.Unsubscribe(ic.Name)
					return nil
				case msg := <-sub:
					select {
					case channels.SouthboundIn <- msg:
					case <-gCtx.Done():
						return nil
					}
				}
			}
		})

		if ic.Protocol == "bfd" {
			bfdHandler := h.(*bfd.Handler)
			g.Go(func() error {
				bfdHandler.RunBridge(gCtx, channels.ProtocolIn)
				return nil
			})
		}
	}

	if haveBFD {
		listeners, err := createListeners(logger)
		if err != nil {
			return fmt.Errorf("create BFD listeners: %w", err)
		}
		defer closeListeners(listeners, logger)

		recv := netio.NewReceiver(bfdMgr, logger)
		g.Go(func() error {
			return recv.Run(gCtx, listeners...)
		})
	}

	if cfg.GoBGP.Enabled && haveBFD && haveBGP {
		bgpCloser, err := startGoBGPHandler(gCtx, g, cfg.GoBGP, bfdMgr, logger)
		if err != nil {
			return fmt.Errorf("start gobgp handler: %w", err)
		}
		defer closeGoBGPClient(bgpCloser, logger)
	}

	metricsSrv := newMetricsServer(cfg.Metrics, reg)
	g.Go(func() error {
		return listenAndServe(gCtx, &net.ListenConfig{}, metricsSrv, cfg.Metrics.Addr)
	})

	g.Go(func() error {
		return runWatchdog(gCtx, logger)
	})

	g.Go(func() error {
		return mgr.Run(gCtx)
	})

	notifyReady(logger)

	g.Go(func() error {
		<-gCtx.Done()
		return gracefulShutdown(bfdMgr, logger, fr, metricsSrv)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("run daemon: %w", err)
	}
	return nil
}

// buildHandler constructs the instance.ProtocolHandler for one declared
// instance, dispatching on its protocol.
func buildHandler(ic procconfig.InstanceConfig, cfg *procconfig.Config, bfdMgr *bfd.Manager, logger *slog.Logger) (instance.ProtocolHandler, error) {
	d := cfg.Defaults
	instLogger := logger.With(slog.String("instance", ic.Name))

	switch ic.Protocol {
	case "bfd":
		return bfd.NewHandler(bfdMgr, instLogger), nil

	case "isis":
		return isis.NewHandler(
			ic.RouterID, 0,
			d.SPFInitialDelay, d.SPFShortDelay, d.SPFShortHoldDown,
			func(ctx context.Context) { instLogger.Debug("isis: spf run") },
			floodLogger(instLogger, "isis"),
			instLogger,
		), nil

	case "ospf":
		return ospf.NewHandler(
			ic.RouterID, 0,
			d.SPFInitialDelay, d.SPFShortDelay, d.SPFShortHoldDown,
			func(ctx context.Context) { instLogger.Debug("ospf: spf run") },
			floodLogger(instLogger, "ospf"),
			instLogger,
		), nil

	case "ldp":
		return ldp.NewHandler(15*time.Second, instLogger), nil

	case "bgp":
		return bgp.NewHandler(context.Background(), ic.LocalAS, ic.RouterID, d.DecisionDebounce, instLogger), nil

	case "rip":
		return rip.NewHandler(d.RIPInvalidInterval, d.RIPFlushInterval,
			func(entries []rip.Entry) {
				instLogger.Debug("rip: would send response", slog.Int("entries", len(entries)))
			},
			instLogger,
		), nil

	case "vrrp":
		return vrrp.NewHandler(instLogger), nil

	default:
		return nil, fmt.Errorf("unrecognized protocol %q", ic.Protocol)
	}
}

// floodLogger builds a no-transport flood callback for the link-state
// protocols: spec.md section 1 puts the wire encoding out of scope, so
// flooding a record onto a neighbor is observable only through this log
// line until a transport adapter is wired in.
func floodLogger(logger *slog.Logger, protocol string) func(neighborID string, rec linkstate.Record) {
	return func(neighborID string, rec linkstate.Record) {
		logger.Debug(protocol+": flood",
			slog.String("neighbor", neighborID),
			slog.String("originating_system", rec.ID.OriginatingSystem),
			slog.Uint64("seq_no", uint64(rec.SeqNo)),
		)
	}
}

// -------------------------------------------------------------------------
// BFD Packet Listeners
// -------------------------------------------------------------------------

// createListeners opens one multi-hop BFD listener bound to the IPv4
// unspecified address, receiving from any IPv4 peer; no IPv6 listener is
// opened. Sessions themselves are created dynamically through
// northbound Create requests rather than a static per-peer list, so
// there is no per-session listener bind here (unlike the teacher's
// static config.Sessions loop).
func createListeners(logger *slog.Logger) ([]*netio.Listener, error) {
	lnCfg := netio.ListenerConfig{
		Addr:     netip.IPv4Unspecified(),
		Port:     netio.PortMultiHop,
		MultiHop: true,
	}

	ln, err := netio.NewListener(lnCfg)
	if err != nil {
		return nil, fmt.Errorf("create multi-hop listener: %w", err)
	}

	logger.Info("BFD listener started", slog.String("addr", lnCfg.Addr.String()), slog.Bool("multi_hop", true))
	return []*netio.Listener{ln}, nil
}

func closeListeners(listeners []*netio.Listener, logger *slog.Logger) {
	for _, ln := range listeners {
		if err := ln.Close(); err != nil {
			logger.Warn("failed to close BFD listener", slog.String("error", err.Error()))
		}
	}
}

// -------------------------------------------------------------------------
// GoBGP Integration -- RFC 5882 Section 4.3
// -------------------------------------------------------------------------

func startGoBGPHandler(
	ctx context.Context,
	g *errgroup.Group,
	cfg procconfig.GoBGPConfig,
	bfdMgr *bfd.Manager,
	logger *slog.Logger,
) (gobgp.Client, error) {
	client, err := gobgp.NewGRPCClient(gobgp.GRPCClientConfig{Addr: cfg.Addr}, logger)
	if err != nil {
		return nil, fmt.Errorf("create gobgp client: %w", err)
	}

	dampening := gobgp.DefaultDampeningConfig()
	dampening.Enabled = cfg.DampeningEnabled

	handler, err := gobgp.NewHandler(gobgp.HandlerConfig{
		Client:    client,
		Strategy:  gobgp.Strategy(cfg.Strategy),
		Dampening: dampening,
		Logger:    logger,
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("create gobgp handler: %w", err)
	}

	g.Go(func() error {
		return handler.Run(ctx, bfdMgr.StateChanges())
	})

	logger.Info("gobgp integration enabled",
		slog.String("addr", cfg.Addr),
		slog.String("strategy", cfg.Strategy),
		slog.Bool("dampening", cfg.DampeningEnabled),
	)

	return client, nil
}

func closeGoBGPClient(client gobgp.Client, logger *slog.Logger) {
	if client == nil {
		return
	}
	if err := client.Close(); err != nil {
		logger.Warn("failed to close gobgp client", slog.String("error", err.Error()))
	}
}

// -------------------------------------------------------------------------
// systemd Notification and Watchdog
// -------------------------------------------------------------------------

func notifyReady(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyReady)
	if err != nil {
		logger.Warn("sd_notify ready failed", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Debug("sd_notify ready sent")
	}
}

func notifyStopping(logger *slog.Logger) {
	sent, err := daemon.SdNotify(false, daemon.SdNotifyStopping)
	if err != nil {
		logger.Warn("sd_notify stopping failed", slog.String("error", err.Error()))
		return
	}
	if sent {
		logger.Debug("sd_notify stopping sent")
	}
}

// runWatchdog pings systemd's watchdog at half the interval systemd
// configured via WATCHDOG_USEC, if any.
func runWatchdog(ctx context.Context, logger *slog.Logger) error {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval == 0 {
		return nil
	}

	ticker := time.NewTicker(interval / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, wdErr := daemon.SdNotify(false, daemon.SdNotifyWatchdog); wdErr != nil {
				logger.Warn("sd_notify watchdog failed", slog.String("error", wdErr.Error()))
			}
		}
	}
}

// -------------------------------------------------------------------------
// Graceful Shutdown
// -------------------------------------------------------------------------

func gracefulShutdown(bfdMgr *bfd.Manager, logger *slog.Logger, fr *trace.FlightRecorder, metricsSrv *http.Server) error {
	notifyStopping(logger)

	bfdMgr.DrainAllSessions()
	time.Sleep(drainTimeout)

	if fr != nil {
		if err := fr.Stop(); err != nil {
			logger.Warn("failed to stop flight recorder", slog.String("error", err.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown error", slog.String("error", err.Error()))
	}

	return nil
}

// -------------------------------------------------------------------------
// Flight Recorder
// -------------------------------------------------------------------------

func startFlightRecorder(logger *slog.Logger) *trace.FlightRecorder {
	fr := trace.NewFlightRecorder(trace.FlightRecorderConfig{
		MinAge:   flightRecorderMinAge,
		MaxBytes: flightRecorderMaxBytes,
	})

	if err := fr.Start(); err != nil {
		logger.Warn("failed to start flight recorder", slog.String("error", err.Error()))
		return nil
	}

	logger.Info("flight recorder started",
		slog.Duration("min_age", flightRecorderMinAge),
		slog.Uint64("max_bytes", flightRecorderMaxBytes),
	)
	return fr
}

// -------------------------------------------------------------------------
// HTTP Server Setup
// -------------------------------------------------------------------------

func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

func newMetricsServer(cfg procconfig.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// -------------------------------------------------------------------------
// Configuration / Logging
// -------------------------------------------------------------------------

func loadConfig(path string) (*procconfig.Config, error) {
	if path != "" {
		cfg, err := procconfig.Load(path)
		if err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
		return cfg, nil
	}
	return procconfig.DefaultConfig(), nil
}

func newLoggerWithLevel(cfg procconfig.LogConfig, level *slog.LevelVar) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch cfg.Format {
	case "text":
		handler = slog.NewTextHandler(os.Stdout, opts)
	default:
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
