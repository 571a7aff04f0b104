// techlife-bridge exposes TechLife Pro LED strips to Home Assistant over MQTT.
//
// Usage:
//
//	techlife-bridge [-config path] setup [-yes]   Create the config entry
//	techlife-bridge [-config path] run            Discover strips and bridge them to Home Assistant
//	techlife-bridge version                       Print the version
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/nlowe/techlife"
	"github.com/nlowe/techlife/bridge"
	"github.com/nlowe/techlife/config"
	"github.com/nlowe/techlife/listener"
	tllog "github.com/nlowe/techlife/log"
	"github.com/nlowe/techlife/metrics"
	"github.com/nlowe/techlife/setup"
	"github.com/nlowe/techlife/store"
)

const shutdownTimeout = 10 * time.Second

// ErrNotConfigured is the error returned by the run command when setup has not created a config entry.
var ErrNotConfigured = errors.New("not configured, run 'techlife-bridge setup' first")

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Stdin, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer, args []string) error {
	fs := flag.NewFlagSet("techlife-bridge", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to config file (default: auto-discover)")
	fs.Usage = func() { printUsage(stderr, fs) }

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}

		return err
	}

	command, rest := fs.Arg(0), fs.Args()
	if len(rest) > 0 {
		rest = rest[1:]
	}

	switch command {
	case "version":
		_, err := fmt.Fprintf(stdout, "techlife-bridge %s\n", techlife.Version)
		return err
	case "setup", "run":
	case "":
		printUsage(stdout, fs)
		return nil
	default:
		return fmt.Errorf("unknown command: %s", command)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	level, _ := config.ParseLogLevel(cfg.LogLevel)
	tllog.To(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	if command == "setup" {
		return runSetup(ctx, stdin, stdout, cfg, rest)
	}

	return runBridge(ctx, cfg)
}

// loadConfig uses an explicit path if given. Otherwise the search path is tried and, if no file exists, defaults
// with environment overrides are used.
func loadConfig(explicit string) (*config.Config, error) {
	path, err := config.FindConfig(explicit)
	if err != nil {
		if explicit != "" || !errors.Is(err, config.ErrNotFound) {
			return nil, err
		}

		path = ""
	}

	return config.Load(path)
}

func openStore(cfg *config.Config) (*store.Store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	return store.Open(cfg.DatabasePath())
}

func runSetup(ctx context.Context, stdin io.Reader, stdout io.Writer, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("setup", flag.ContinueOnError)
	yes := fs.Bool("yes", false, "confirm without prompting")
	if err := fs.Parse(args); err != nil {
		return err
	}

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	flow := setup.NewFlow(s)

	result, err := flow.StepUser(ctx, nil)
	if err != nil {
		return err
	}

	if result.Type == setup.ResultForm {
		_, _ = fmt.Fprintf(stdout, "%s\n", result.DescriptionPlaceholders[setup.PlaceholderMoreInfo])

		if !*yes && !confirm(stdin, stdout, "Create the TechLife Pro configuration?") {
			_, _ = fmt.Fprintln(stdout, "Cancelled.")
			return nil
		}

		if result, err = flow.StepUser(ctx, &setup.UserInput{}); err != nil {
			return err
		}
	}

	switch result.Type {
	case setup.ResultAbort:
		return fmt.Errorf("setup aborted: %s", result.Message())
	case setup.ResultCreateEntry:
		_, err = fmt.Fprintf(stdout, "Created %q (%s)\n", result.Entry.Title, result.Entry.ID)
		return err
	default:
		return fmt.Errorf("setup: unexpected result %q", result.Type)
	}
}

func confirm(stdin io.Reader, stdout io.Writer, prompt string) bool {
	_, _ = fmt.Fprintf(stdout, "%s [y/N] ", prompt)

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && line == "" {
		return false
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	default:
		return false
	}
}

func runBridge(ctx context.Context, cfg *config.Config) error {
	log := tllog.ForComponent("main")

	s, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()

	configured, err := setup.NewFlow(s).Configured(ctx)
	if err != nil {
		return err
	}

	if !configured {
		return ErrNotConfigured
	}

	// The will message may have marked every light unavailable while the connection was down.
	var ready atomic.Pointer[bridge.Host]
	onReconnect := func() {
		if host := ready.Load(); host != nil {
			go func() {
				if err := host.Rediscover(ctx); err != nil {
					log.With(tllog.Error(err)).Error("Failed to rediscover devices after reconnect")
				}
			}()
		}
	}

	w, sub, disconnect, err := connectMQTT(ctx, cfg, onReconnect)
	if err != nil {
		return err
	}

	host := bridge.New(w, sub, bridge.Options{
		DiscoveryPrefix: cfg.DiscoveryPrefix,
		TopicPrefix:     cfg.TopicPrefix,
	})
	ready.Store(host)
	l := listener.New(host)

	var srv *http.Server
	if cfg.Listen != "" {
		srv = &http.Server{
			Addr:              cfg.Listen,
			Handler:           metrics.Router(),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			log.With(slog.String("addr", cfg.Listen)).Info("Serving metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.With(tllog.Error(err)).Error("Metrics server failed")
			}
		}()
	}

	err = errors.Join(host.Start(ctx), l.Start(ctx, sub))
	if err == nil {
		log.Info("Listening for TechLife Pro devices")
		<-ctx.Done()
	}

	log.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err = errors.Join(err, l.Close(shutdownCtx), host.Close(shutdownCtx))
	if srv != nil {
		err = errors.Join(err, srv.Shutdown(shutdownCtx))
	}

	return errors.Join(err, disconnect(shutdownCtx))
}

func printUsage(w io.Writer, fs *flag.FlagSet) {
	_, _ = fmt.Fprintln(w, "Usage: techlife-bridge [flags] <command>")
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Commands:")
	_, _ = fmt.Fprintln(w, "  setup [-yes]  Create the TechLife Pro configuration")
	_, _ = fmt.Fprintln(w, "  run           Discover strips and bridge them to Home Assistant")
	_, _ = fmt.Fprintln(w, "  version       Print the version")
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Flags:")

	fs.SetOutput(w)
	fs.PrintDefaults()
	_, _ = fmt.Fprintln(w)

	_, _ = fmt.Fprintln(w, "Config search order:")
	for _, p := range config.DefaultSearchPaths() {
		_, _ = fmt.Fprintf(w, "  %s\n", p)
	}
}
