package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"

	"weekcal/internal/board"
	"weekcal/internal/capture"
	"weekcal/internal/config"
	"weekcal/internal/events"
	"weekcal/internal/ics"
	appLog "weekcal/internal/log"
	"weekcal/internal/web"
	"weekcal/internal/week"
)

const version = "0.1.0"

type flagConfig struct {
	configPath string
	listen     string
	snapshot   string
	debug      bool
}

func main() {
	if err := run(); err != nil {
		appLog.Error("weekcal failed", err)
		appLog.Sync()
		os.Exit(1)
	}
	appLog.Sync()
}

func run() error {
	flags := parseFlags()

	conf, err := config.Load(flags.configPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", flags.configPath, err)
	}
	if flags.listen != "" {
		conf.Listen = flags.listen
	}
	if flags.debug {
		conf.Log.Level = "debug"
		conf.Log.Format = "console"
	}
	if err := appLog.Configure(conf.Log.Level, conf.Log.Format); err != nil {
		return err
	}
	if err := conf.Validate(); err != nil {
		return err
	}

	appLog.Info("weekcal starting", "version", version)
	appLog.Info("effective config",
		"listen", conf.Listen,
		"local_timezone", conf.LocalTimezone,
		"timezone", conf.Timezone,
		"timezones", conf.Timezones,
		"working_hours", fmt.Sprintf("%02d:00-%02d:00", conf.WorkingHours.Start, conf.WorkingHours.End),
		"slot_minutes", conf.SlotMinutes,
		"inline_events", len(conf.Events),
		"events_file", conf.EventsFile,
		"ics_count", len(conf.ICS),
		"refresh", conf.RefreshCron,
		"snapshot", flags.snapshot,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	local, err := conf.LocalLocation()
	if err != nil {
		return err
	}
	display, err := time.LoadLocation(conf.Timezone)
	if err != nil {
		return err
	}

	loader := newLoader(conf, display)
	evs, err := loader.Load(ctx, time.Now())
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}

	b, err := board.New(board.Options{
		Generator: week.New(local, conf.WorkingHours.Start, conf.WorkingHours.End, conf.SlotStep()),
		Timezones: conf.Timezones,
		Timezone:  conf.Timezone,
		Events:    evs,
	})
	if err != nil {
		return err
	}

	if flags.snapshot != "" {
		// The snapshot server only listens on loopback.
		conf.BasicAuth = nil
		return runSnapshot(ctx, web.NewServer(conf, b), flags.snapshot)
	}

	srv := web.NewServer(conf, b)

	if c := startRefresh(ctx, conf, loader, b); c != nil {
		defer func() { <-c.Stop().Done() }()
	}

	return srv.Run(ctx, conf.Listen)
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "./weekcal.yaml", "Path to config file (created with defaults if missing)")
	flag.StringVar(&cfg.listen, "listen", "", "HTTP listen address (overrides config if set)")
	flag.StringVar(&cfg.snapshot, "snapshot", "", "Render the current week to this PNG path and exit")
	flag.BoolVar(&cfg.debug, "debug", false, "Debug logging to the console")

	flag.Parse()
	return cfg
}

func newLoader(conf *config.Config, display *time.Location) *events.Loader {
	sources := make([]ics.Source, 0, len(conf.ICS))
	for _, c := range conf.ICS {
		if c.URL == "" {
			continue
		}
		id := c.ID
		if id == "" {
			id = c.Name
		}
		if id == "" {
			id = c.URL
		}
		sources = append(sources, ics.Source{ID: id, URL: c.URL})
	}

	return &events.Loader{
		Inline:   conf.Events,
		File:     conf.EventsFile,
		ICS:      sources,
		Fetcher:  ics.NewFetcher(conf.ICSCacheDir, nil),
		Location: display,
		Horizon:  time.Duration(conf.HorizonDays) * 24 * time.Hour,
	}
}

// startRefresh reloads the feed on conf.RefreshCron. Nothing is scheduled
// when there is no external feed to reload.
func startRefresh(ctx context.Context, conf *config.Config, loader *events.Loader, b *board.Board) *cron.Cron {
	if conf.RefreshCron == "" || (conf.EventsFile == "" && len(loader.ICS) == 0) {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(conf.RefreshCron, func() {
		evs, err := loader.Load(ctx, time.Now())
		if err != nil {
			appLog.Error("events refresh failed; keeping previous feed", err)
			return
		}
		b.SetEvents(evs)
	})
	if err != nil {
		appLog.Error("invalid refresh schedule; reload disabled", err, "refresh", conf.RefreshCron)
		return nil
	}
	c.Start()
	appLog.Info("events refresh scheduled", "refresh", conf.RefreshCron)
	return c
}

// runSnapshot serves on a loopback port just long enough to capture the page.
func runSnapshot(ctx context.Context, srv *web.Server, out string) error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	hs := &http.Server{Handler: srv.Handler(), ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := hs.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLog.Error("snapshot server failed", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = hs.Shutdown(shutdownCtx)
	}()

	url := "http://" + ln.Addr().String() + "/"
	appLog.Info("capturing snapshot", "url", url, "output", out)
	if err := capture.CapturePNG(ctx, capture.Options{URL: url, OutputPath: out}); err != nil {
		return err
	}
	appLog.Info("snapshot written", "output", out)
	return nil
}
