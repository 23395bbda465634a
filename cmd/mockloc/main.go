package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mockloc/mockloc/internal/config"
	"github.com/mockloc/mockloc/internal/logging"
	"github.com/mockloc/mockloc/internal/session"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// module defs - BuildDate can be set at build time via ldflags
var (
	CurrentVersion string = "0.0.1"
	BuildDate      string = "unknown"

	BinaryName string = "mockloc"
)

// global variables
var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger *slog.Logger

	// ZLogger is handed to the storage-side managers
	ZLogger zerolog.Logger

	SessionStartTime time.Time = time.Now()

	// activeSession feeds the session attributes of every log record
	activeSession atomic.Pointer[session.Session]

	// closers run in reverse order on exit
	closers []func() error
)

const usage = `Usage: mockloc <command> [flags]

Commands:
  run         start a simulated spoofing session
  geocode     resolve an address or coordinate to WGS84
  favorites   add|list|remove saved targets
  sessions    list recorded sessions
  recover     unregister providers left behind by a crashed run
  version     print version information

Run 'mockloc <command> --help' for command flags.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cmd, args := strings.ToLower(os.Args[1]), os.Args[2:]
	var err error
	switch cmd {
	case "run":
		err = runCmd(args)
	case "geocode":
		err = geocodeCmd(args)
	case "favorites", "fav":
		err = favoritesCmd(args)
	case "sessions":
		err = sessionsCmd(args)
	case "recover":
		err = recoverCmd(args)
	case "version":
		fmt.Printf("%s %s (built %s)\n", BinaryName, CurrentVersion, BuildDate)
	case "help", "-h", "--help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", cmd, usage)
		os.Exit(2)
	}

	shutdown()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// newFlagSet returns a flag set carrying the flags every command shares.
func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.String("config", ".", "directory containing "+config.FileName)
	fs.String("log-level", "", "log level (debug, info, warn, error)")
	fs.Bool("log-console", false, "log to the console instead of a file")
	return fs
}

// parseArgs parses args into fs. It reports false when the command should
// return immediately, with a nil error after --help has printed usage.
func parseArgs(fs *pflag.FlagSet, args []string) (bool, error) {
	err := fs.Parse(args)
	if errors.Is(err, pflag.ErrHelp) {
		return false, nil
	}
	return err == nil, err
}

// setup loads configuration and initializes logging. Flags override config values.
func setup(fs *pflag.FlagSet) {
	configDir, _ := fs.GetString("config")

	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(logging.Options{Level: "info"})
	Logger = SlogManager.Logger()

	if err := config.Load(configDir); err != nil {
		Logger.Warn("Failed to load config, using defaults!", "error", err)
	}
	_ = viper.BindPFlag("logLevel", fs.Lookup("log-level"))

	opts := logging.Options{
		Level:   viper.GetString("logLevel"),
		Context: sessionAttrs,
	}

	var zWriters []io.Writer
	if console, _ := fs.GetBool("log-console"); !console {
		logFile, err := logging.OpenLogFile(viper.GetString("logsDir"), BinaryName, SessionStartTime)
		if err != nil {
			Logger.Error("Failed to create/open log file!", "error", err)
		} else {
			opts.File = logFile
			zWriters = append(zWriters, logFile)
			closers = append(closers, logFile.Close)
		}
	}

	if viper.GetBool("graylog.enabled") {
		w, closeFn, err := logging.NewGraylogWriter(viper.GetString("graylog.address"), BinaryName)
		if err != nil {
			Logger.Warn("Failed to connect to Graylog", "error", err)
		} else {
			opts.Graylog = w
			zWriters = append(zWriters, w)
			closers = append(closers, closeFn)
		}
	}

	SlogManager.Setup(opts)
	Logger = SlogManager.Logger()
	ZLogger = logging.NewZerolog(opts.Level, zWriters...)
}

func sessionAttrs() []slog.Attr {
	s := activeSession.Load()
	if s == nil {
		return nil
	}
	return []slog.Attr{
		slog.String("id", s.ID()),
		slog.String("strategy", s.Strategy().String()),
	}
}

func shutdown() {
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil && Logger != nil {
			Logger.Warn("Error during shutdown", "error", err)
		}
	}
	closers = nil
}
