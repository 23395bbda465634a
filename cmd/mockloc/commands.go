package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	"github.com/mockloc/mockloc/internal/backend"
	"github.com/mockloc/mockloc/internal/config"
	"github.com/mockloc/mockloc/internal/database"
	"github.com/mockloc/mockloc/internal/geocode"
	"github.com/mockloc/mockloc/internal/journal"
	"github.com/mockloc/mockloc/internal/session"
	"github.com/mockloc/mockloc/internal/storage"
	"github.com/mockloc/mockloc/pkg/core"
	"github.com/spf13/viper"
)

// openDatabase connects to the configured store and migrates the schema.
func openDatabase() (*database.Manager, error) {
	m := database.NewManager(ZLogger)
	if err := m.Connect(config.GetStorageConfig(), config.GetDatabaseConfig()); err != nil {
		return nil, err
	}
	if err := m.Setup(); err != nil {
		_ = m.Close()
		return nil, err
	}
	closers = append(closers, m.Close)
	return m, nil
}

// resolveTarget picks the session target from a favorite or a location string.
func resolveTarget(ctx context.Context, db *database.Manager, location, favorite string) (core.TargetLocation, error) {
	switch {
	case favorite != "" && location != "":
		return core.TargetLocation{}, errors.New("--location and --favorite are mutually exclusive")
	case favorite != "":
		if db == nil {
			return core.TargetLocation{}, errors.New("favorites need a database")
		}
		f, err := storage.NewFavoriteStore(db.DB).Get(ctx, favorite)
		if err != nil {
			return core.TargetLocation{}, fmt.Errorf("favorite %q: %w", favorite, err)
		}
		return f.Target(), nil
	case location != "":
		target, res, err := newResolver().Resolve(ctx, location)
		if err != nil {
			return core.TargetLocation{}, err
		}
		if res.Address != location {
			Logger.Info("Geocoded target", "address", res.Address, "confidence", res.Confidence)
		}
		return target, nil
	default:
		return core.TargetLocation{}, errors.New("a target is required: --location or --favorite")
	}
}

func newResolver() *geocode.Resolver {
	g, err := geocode.FromConfig(config.GetGeocodeConfig())
	if err != nil {
		Logger.Warn("Geocoder disabled", "error", err)
	}
	return geocode.NewResolver(g)
}

func geocodeCmd(args []string) error {
	fs := newFlagSet("geocode")
	if ok, err := parseArgs(fs, args); !ok {
		return err
	}
	setup(fs)
	if fs.NArg() != 1 {
		return errors.New(`usage: mockloc geocode "<address or lat,lng[,datum]>"`)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	target, res, err := newResolver().Resolve(ctx, fs.Arg(0))
	if err != nil {
		return err
	}
	fmt.Printf("%.6f,%.6f\n", target.Latitude, target.Longitude)
	if res.Address != fs.Arg(0) {
		fmt.Printf("  %s (confidence %.2f)\n", res.Address, res.Confidence)
	}
	return nil
}

func favoritesCmd(args []string) error {
	fs := newFlagSet("favorites")
	if ok, err := parseArgs(fs, args); !ok {
		return err
	}
	setup(fs)

	db, err := openDatabase()
	if err != nil {
		return err
	}
	store := storage.NewFavoriteStore(db.DB)
	ctx := context.Background()

	sub := "list"
	if fs.NArg() > 0 {
		sub = fs.Arg(0)
	}
	switch sub {
	case "list":
		favs, err := store.List(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tLOCATION\tUSES\tADDRESS")
		for _, f := range favs {
			fmt.Fprintf(w, "%s\t%.6f,%.6f\t%d\t%s\n", f.Name, f.Latitude, f.Longitude, f.UseCount, f.Address)
		}
		return w.Flush()
	case "add":
		if fs.NArg() != 3 {
			return errors.New(`usage: mockloc favorites add <name> "<address or lat,lng>"`)
		}
		ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		target, res, err := newResolver().Resolve(ctx, fs.Arg(2))
		if err != nil {
			return err
		}
		f, err := store.Add(ctx, core.Favorite{
			Name:      fs.Arg(1),
			Address:   res.Address,
			Latitude:  target.Latitude,
			Longitude: target.Longitude,
		})
		if err != nil {
			return err
		}
		fmt.Printf("saved %s at %.6f,%.6f\n", f.Name, f.Latitude, f.Longitude)
		return nil
	case "remove", "rm":
		if fs.NArg() != 2 {
			return errors.New("usage: mockloc favorites remove <name>")
		}
		return store.Remove(ctx, fs.Arg(1))
	default:
		return fmt.Errorf("unknown favorites command %q", sub)
	}
}

func sessionsCmd(args []string) error {
	fs := newFlagSet("sessions")
	limit := fs.Int("limit", 20, "number of sessions to show")
	if ok, err := parseArgs(fs, args); !ok {
		return err
	}
	setup(fs)

	db, err := openDatabase()
	if err != nil {
		return err
	}
	rec := storage.NewRecorder(db.DB, 0, ZLogger)
	sessions, err := rec.Sessions(context.Background(), *limit)
	if err != nil {
		return err
	}
	printSessions(os.Stdout, sessions)
	return nil
}

func printSessions(out io.Writer, sessions []core.SessionSummary) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tAPP\tSTRATEGY\tTARGET\tDURATION\tRESETS\tFAILURES")
	for _, s := range sessions {
		dur := "running"
		if !s.EndedAt.IsZero() {
			dur = s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%.6f,%.6f\t%s\t%d\t%d\n",
			s.StartedAt.Local().Format(time.DateTime), s.AppID, s.Strategy,
			s.Latitude, s.Longitude, dur, s.Resets, len(s.Failures))
	}
	_ = w.Flush()
}

// recoverCmd clears providers the journal still lists. Without a platform
// binding the simulated backends stand in for the real ones.
func recoverCmd(args []string) error {
	fs := newFlagSet("recover")
	if ok, err := parseArgs(fs, args); !ok {
		return err
	}
	setup(fs)

	j, err := journal.Open(viper.GetString("journal.path"), ZLogger)
	if err != nil {
		return err
	}
	closers = append(closers, j.Close)

	names, err := j.Backends()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println("journal is clean")
		return nil
	}

	sim := backend.NewSimPlatform()
	sim.SetBrokerGranted(true)
	total := recoverStale(context.Background(), j, strategiesFor(sim))
	fmt.Printf("removed %d stale provider(s) across %d backend(s)\n", total, len(names))
	return nil
}

func printSnapshot(out io.Writer, snap session.Snapshot) {
	fmt.Fprintf(out, "session %s\n", snap.ID)
	fmt.Fprintf(out, "  app       %s (%s)\n", snap.AppID, snap.Plan.Device)
	fmt.Fprintf(out, "  strategy  %s\n", snap.Strategy)
	fmt.Fprintf(out, "  target    %.6f,%.6f\n", snap.Target.Latitude, snap.Target.Longitude)
	if !snap.StartedAt.IsZero() {
		fmt.Fprintf(out, "  uptime    %s\n", time.Since(snap.StartedAt).Round(time.Second))
	}
	fmt.Fprintf(out, "  monitor   %d ticks, %d refreshes, %d resets\n",
		snap.Monitor.Ticks, snap.Monitor.Refreshes, snap.Monitor.Resets)

	providers := snap.Providers
	sort.Slice(providers, func(i, j int) bool { return providers[i].ID < providers[j].ID })
	for _, p := range providers {
		fmt.Fprintf(out, "  provider  %s enabled=%t\n", p.ID, p.Enabled)
	}
	if snap.LastError != nil {
		fmt.Fprintf(out, "  error     %v\n", snap.LastError)
	}
}
