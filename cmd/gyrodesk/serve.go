package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"gyrodesk/internal/api"
	"gyrodesk/internal/capture"
	"gyrodesk/internal/config"
	"gyrodesk/internal/firewall"
	"gyrodesk/internal/input"
	"gyrodesk/internal/motion"
	"gyrodesk/internal/network"
	"gyrodesk/internal/protocol"
	"gyrodesk/internal/status"
	"gyrodesk/internal/stream"
	"gyrodesk/internal/tray"
	"gyrodesk/internal/util"
)

type serveOptions struct {
	configPath string
	verbose    bool
	dashboard  bool
	tray       bool
}

func newServeCommand() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept handheld connections (default command)",
		Args:  cobra.NoArgs,
	}
	cmd.RunE = func(c *cobra.Command, args []string) error {
		return runServe(c, opts)
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.configPath, "config", "", "config file (default "+config.DefaultPath()+")")
	flags.IntP("port", "p", 5000, "control listener port")
	flags.String("status-addr", "", "address for the HTTP status server, e.g. :5080 (disabled when empty)")
	flags.String("input", "auto", "input strategy: auto, xdotool, robotgo or log")
	flags.String("capture", "auto", "capture source: auto, robotgo or pattern")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "enable debug logging")
	flags.BoolVar(&opts.dashboard, "dashboard", false, "print a colored status line per event to stderr")
	flags.BoolVar(&opts.tray, "tray", false, "show the connection status in the system tray")
	return cmd
}

func loadConfig(c *cobra.Command, opts *serveOptions) (*config.Manager, *config.Config, error) {
	mgr := config.NewManager(opts.configPath)
	flags := c.Flags()
	for key, name := range map[string]string{
		"control.port":   "port",
		"status.addr":    "status-addr",
		"input.strategy": "input",
		"capture.source": "capture",
	} {
		if err := mgr.BindFlag(key, flags.Lookup(name)); err != nil {
			return nil, nil, err
		}
	}
	if err := mgr.Load(); err != nil {
		return nil, nil, err
	}
	return mgr, mgr.Get(), nil
}

func runServe(c *cobra.Command, opts *serveOptions) error {
	cfgMgr, cfg, err := loadConfig(c, opts)
	if err != nil {
		return err
	}

	level := util.ParseLevel(cfg.Log.Level)
	if opts.verbose {
		level = slog.LevelDebug
	}
	util.InitLogger(level)
	logger := util.GetLogger()

	filter, err := cfg.Filter()
	if err != nil {
		return errors.Wrap(err, "motion settings")
	}
	actuator, err := input.Select(cfg.Input.Strategy)
	if err != nil {
		return err
	}
	source, err := capture.Select(cfg.Capture.Source)
	if err != nil {
		return err
	}

	var locator input.CursorLocator
	if cfg.Stream.CursorOverlay {
		if l, ok := actuator.(input.CursorLocator); ok {
			locator = l
		} else {
			logger.Info("Input backend cannot report the cursor, streaming without pointer marker", "backend", actuator.Name())
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	tracker := status.NewTracker()
	observers := status.Multi{tracker, status.LogObserver{Logger: logger}}
	if opts.dashboard {
		observers = append(observers, status.NewConsoleObserver(os.Stderr))
	}
	var t *tray.Tray
	if opts.tray {
		t = tray.New(cancel)
		observers = append(observers, t)
	}

	processor := motion.NewProcessor(filter, actuator)
	var reloadMu sync.Mutex
	fileFilter := filter
	cfgMgr.RegisterChangeCallback(func(c *config.Config) {
		reloadMu.Lock()
		defer reloadMu.Unlock()
		f, err := c.Filter()
		if err != nil {
			logger.Warn("Motion settings not applied", "error", err)
			return
		}
		if err := processor.Reload(fileFilter, f); err != nil {
			logger.Warn("Motion settings not applied", "error", err)
			return
		}
		fileFilter = f
	})
	cfgMgr.Watch()

	newEngine := func(name string, newTransport func() stream.Transport) *stream.Engine {
		return stream.NewEngine(name, stream.Config{
			Source:       source,
			Encoder:      capture.JPEGEncoder{},
			Locator:      locator,
			NewTransport: newTransport,
			Observer:     observers,
			StopTimeout:  cfg.Stream.StopTimeout,
		})
	}
	datagram := newEngine("datagram", func() stream.Transport {
		return stream.NewDatagramTransport(cfg.Stream.FragmentSize)
	})
	websocket := newEngine("websocket", func() stream.Transport {
		return stream.NewWebSocketTransport()
	})
	defer datagram.Close()
	defer websocket.Close()

	manager := network.NewManager(network.Config{
		AcceptBackoff:    cfg.Control.AcceptBackoff,
		MaxAcceptBackoff: cfg.Control.MaxAcceptBackoff,
		TakeoverTimeout:  cfg.Control.TakeoverTimeout,
	}, network.Handlers{
		Motion:    processor,
		Keys:      actuator,
		Datagram:  datagram,
		WebSocket: websocket,
		StreamDefaults: protocol.StreamParams{
			Port:     cfg.Stream.Port,
			FPS:      cfg.Stream.FPS,
			MaxWidth: cfg.Stream.MaxWidth,
			Quality:  float32(cfg.Stream.Quality),
		},
	}, observers)

	if err := firewall.EnsureRule(cfg.Control.Port); err != nil {
		logger.Warn("Could not open firewall port", "port", cfg.Control.Port, "error", err)
	}

	logger.Info("Starting gyrodesk", "version", version, "input", actuator.Name(), "control_port", cfg.Control.Port)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return manager.ListenAndServe(gctx, fmt.Sprintf(":%d", cfg.Control.Port))
	})
	if cfg.Status.Addr != "" {
		srv := api.NewServer(tracker, manager, processor, cfgMgr, datagram, websocket)
		g.Go(func() error {
			return srv.ListenAndServe(gctx, cfg.Status.Addr)
		})
	}

	if t != nil {
		t.AddMenuItem("Stop streaming", func() {
			datagram.Stop()
			websocket.Stop()
		})
		t.AddSeparator()
		t.AddMenuItem("Quit", cancel)
		go func() {
			<-gctx.Done()
			t.Stop()
		}()
		t.Run()
	}

	err = g.Wait()
	logger.Info("Shutting down")
	return err
}
