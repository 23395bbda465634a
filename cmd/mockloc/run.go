package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mockloc/mockloc/internal/backend"
	"github.com/mockloc/mockloc/internal/config"
	"github.com/mockloc/mockloc/internal/events"
	"github.com/mockloc/mockloc/internal/influx"
	"github.com/mockloc/mockloc/internal/interference"
	"github.com/mockloc/mockloc/internal/journal"
	intOtel "github.com/mockloc/mockloc/internal/otel"
	"github.com/mockloc/mockloc/internal/profile"
	"github.com/mockloc/mockloc/internal/provider"
	"github.com/mockloc/mockloc/internal/session"
	"github.com/mockloc/mockloc/internal/storage"
	"github.com/mockloc/mockloc/internal/strategy"
	"github.com/mockloc/mockloc/internal/telemetry"
	"github.com/mockloc/mockloc/pkg/core"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/viper"
)

// fault is a scheduled change to the simulated platform.
type fault struct {
	after time.Duration
	apply func()
	what  string
}

func runCmd(args []string) error {
	fs := newFlagSet("run")
	appID := fs.String("app", profile.DefaultAppID, "package name of the target app")
	location := fs.String("location", "", `target as "lat,lng[,datum]" or an address`)
	favorite := fs.String("favorite", "", "start from a saved favorite")
	simulate := fs.Bool("simulate", false, "run against the in-memory simulated platform")
	duration := fs.Duration("duration", 0, "stop after this long (0 runs until interrupted)")
	denyMock := fs.Bool("deny-mock", false, "simulate: mock location app not selected")
	grantBroker := fs.Bool("grant-broker", false, "simulate: elevated broker available")
	drift := fs.StringSlice("drift", nil, "simulate: provider:meters@after, e.g. gps:150@5s")
	outage := fs.Duration("outage", 0, "simulate: platform outage after this long")
	network := fs.Duration("network-on", 0, "simulate: enable the network transport after this long")
	if ok, err := parseArgs(fs, args); !ok {
		return err
	}
	setup(fs)

	if !*simulate {
		return fmt.Errorf("%w: no platform binding in this build, use --simulate", provider.ErrPlatformUnavailable)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if *duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	// storage is optional; history and favorites are skipped without it
	db, err := openDatabase()
	if err != nil {
		Logger.Warn("Session history disabled", "error", err)
	}

	target, err := resolveTarget(ctx, db, *location, *favorite)
	if err != nil {
		return err
	}

	sim := backend.NewSimPlatform()
	sim.SetMockAllowed(!*denyMock)
	sim.SetBrokerGranted(*grantBroker)

	faults, err := parseFaults(sim, *drift, *outage, *network)
	if err != nil {
		return err
	}

	var driverOpts []provider.Option
	jnl, err := journal.Open(viper.GetString("journal.path"), ZLogger)
	if err != nil {
		Logger.Warn("Registration journal disabled", "error", err)
	} else {
		closers = append(closers, jnl.Close)
		driverOpts = append(driverOpts, provider.WithJournal(jnl))
	}

	if viper.GetBool("influx.enabled") {
		im := influx.NewManager(ZLogger, config.GetInfluxConfig())
		if err := im.Connect(ctx); err != nil {
			Logger.Warn("Sample stream disabled", "error", err)
		} else {
			closers = append(closers, im.Close)
			driverOpts = append(driverOpts, provider.WithObserver(im))
		}
	}

	collector, err := setupTelemetry()
	if err != nil {
		return err
	}

	sink := events.NewFanout(events.LogSink{Logger: SlogManager.Component("events")})
	if db != nil {
		rec := storage.NewRecorder(db.DB, storage.DefaultQueueLimit, ZLogger)
		rec.Start(config.GetStorageConfig().FlushInterval)
		closers = append(closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return rec.Close(ctx)
		})
		sink.Add(rec)
	}
	if mqttCfg := config.GetMQTTConfig(); mqttCfg.Enabled {
		pub, err := events.DialMQTT(mqttCfg, ZLogger)
		if err != nil {
			Logger.Warn("MQTT status disabled", "error", err)
		} else {
			closers = append(closers, func() error { pub.Close(); return nil })
			sink.Add(pub)
		}
	}

	sessionCfg := config.GetSessionConfig()
	profiles, err := profile.FromViper(sessionCfg.MonitorInterval)
	if err != nil {
		return err
	}

	strategies := strategiesFor(sim)
	if jnl != nil {
		recoverStale(ctx, jnl, strategies)
	}

	selector := strategy.NewSelector(strategy.Dependencies{
		Strategies: strategies,
		Synth:      config.GetSynthConfig(),
		DriverOpts: driverOpts,
		Telemetry:  collector,
		Logger:     SlogManager.Component("strategy"),
	})

	device := config.GetDeviceConfig()
	s := session.New(session.Dependencies{
		Selector:  selector,
		Profiles:  profiles,
		Device:    core.DeviceInfo{Vendor: device.Vendor, Model: device.Model, SDK: device.SDK},
		Network:   interference.NetworkSource(sim),
		Config:    sessionCfg,
		Telemetry: collector,
		Events:    sink,
		Logger:    SlogManager.Component("session"),
	})
	activeSession.Store(s)
	defer activeSession.Store(nil)

	if err := s.Start(ctx, *appID, target); err != nil {
		return err
	}
	if *favorite != "" && db != nil {
		if err := storage.NewFavoriteStore(db.DB).MarkUsed(ctx, *favorite); err != nil {
			Logger.Warn("Failed to update favorite usage", "error", err)
		}
	}

	for _, f := range faults {
		t := time.AfterFunc(f.after, func() {
			Logger.Info("Injecting fault", "fault", f.what)
			f.apply()
		})
		defer t.Stop()
	}

	<-ctx.Done()
	Logger.Info("Stopping session")

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	stopErr := s.Stop(stopCtx)
	s.WaitFallbacks()
	// a fallback may have raced the stop
	stopErr = errors.Join(stopErr, s.Stop(stopCtx))

	printSnapshot(os.Stdout, s.Snapshot())
	return stopErr
}

// strategiesFor builds the three strategies on top of the simulated platform.
func strategiesFor(sim *backend.SimPlatform) []strategy.Strategy {
	var privileged provider.Backend
	switch viper.GetString("privileged.backend") {
	case "root":
		privileged = backend.NewPrivilegedFallback(sim, backend.SuperuserElevator{})
	default:
		privileged = backend.NewBroker(sim)
	}
	return []strategy.Strategy{
		strategy.PrivilegedFallback(privileged),
		strategy.AntiDetection(backend.NewStandard(sim)),
		strategy.Standard(backend.NewStandard(sim)),
	}
}

// recoverStale removes providers a crashed run left registered on any backend
// the strategies use.
func recoverStale(ctx context.Context, j *journal.Journal, strategies []strategy.Strategy) int {
	seen := make(map[string]bool)
	total := 0
	for _, st := range strategies {
		b := st.Backend()
		if seen[b.Name()] {
			continue
		}
		seen[b.Name()] = true
		cleaned, err := provider.RecoverStale(ctx, b, j, SlogManager.Component("recover"))
		if err != nil {
			Logger.Warn("Stale provider cleanup incomplete", "backend", b.Name(), "error", err)
		}
		if len(cleaned) > 0 {
			Logger.Info("Removed providers left by a previous run", "backend", b.Name(), "providers", cleaned)
		}
		total += len(cleaned)
	}
	return total
}

// setupTelemetry builds the metrics collectors enabled in config.
func setupTelemetry() (telemetry.Collector, error) {
	metricsCfg := config.GetMetricsConfig()
	var collectors []telemetry.Collector

	if metricsCfg.Listen != "" {
		reg := prometheus.NewRegistry()
		pc, err := telemetry.NewPrometheusCollector(reg)
		if err != nil {
			return nil, err
		}
		collectors = append(collectors, pc)

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: metricsCfg.Listen, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				Logger.Error("Metrics server failed", "error", err)
			}
		}()
		closers = append(closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return srv.Shutdown(ctx)
		})
		Logger.Info("Serving Prometheus metrics", "addr", metricsCfg.Listen)
	}

	if metricsCfg.OTelEnabled {
		var w io.Writer = os.Stdout
		if metricsCfg.OTelFile != "" {
			f, err := os.OpenFile(metricsCfg.OTelFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
			if err != nil {
				return nil, fmt.Errorf("opening otel metrics file: %w", err)
			}
			closers = append(closers, f.Close)
			w = f
		}
		p, err := intOtel.New(intOtel.Config{
			Enabled:      true,
			ServiceName:  metricsCfg.ServiceName,
			Interval:     metricsCfg.OTelPeriod,
			MetricWriter: w,
		})
		if err != nil {
			return nil, err
		}
		closers = append(closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return p.Shutdown(ctx)
		})
		oc, err := telemetry.NewOTelCollector()
		if err != nil {
			return nil, err
		}
		collectors = append(collectors, oc)
	}

	return telemetry.Multi(collectors...), nil
}

// parseFaults turns the simulation flags into scheduled platform changes.
func parseFaults(sim *backend.SimPlatform, drifts []string, outage, network time.Duration) ([]fault, error) {
	var faults []fault
	for _, d := range drifts {
		drift, afterStr, ok := strings.Cut(d, "@")
		if !ok {
			afterStr = "0s"
		}
		id, metersStr, ok := strings.Cut(drift, ":")
		if !ok {
			return nil, fmt.Errorf("invalid --drift %q, want provider:meters@after", d)
		}
		meters, err := strconv.ParseFloat(metersStr, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid --drift meters %q: %w", metersStr, err)
		}
		after, err := time.ParseDuration(afterStr)
		if err != nil {
			return nil, fmt.Errorf("invalid --drift delay %q: %w", afterStr, err)
		}
		faults = append(faults, fault{
			after: after,
			what:  "drift " + d,
			apply: func() {
				if err := sim.InjectDrift(id, meters); err != nil {
					Logger.Warn("Drift injection failed", "provider", id, "error", err)
				}
			},
		})
	}
	if outage > 0 {
		faults = append(faults, fault{after: outage, what: "outage", apply: func() { sim.SetOutage(true) }})
	}
	if network > 0 {
		faults = append(faults, fault{after: network, what: "network transport on", apply: func() {
			sim.SetNetwork(core.InterferenceState{NetworkTransportEnabled: true, NetworkTransportConnected: true})
		}})
	}
	return faults, nil
}
