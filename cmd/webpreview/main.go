// Package main provides the webpreview tool server. It speaks MCP over
// stdin/stdout and drives real browsers through Playwright, with an
// optional live-reload server for auto-refreshing previews.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/entrhq/webpreview/pkg/browser"
	"github.com/entrhq/webpreview/pkg/browser/pwdriver"
	"github.com/entrhq/webpreview/pkg/config"
	"github.com/entrhq/webpreview/pkg/livereload"
	"github.com/entrhq/webpreview/pkg/logging"
	"github.com/entrhq/webpreview/pkg/mcpserver"
	"github.com/entrhq/webpreview/pkg/screenshot"
	"github.com/entrhq/webpreview/pkg/security/workspace"
	browsertools "github.com/entrhq/webpreview/pkg/tools/browser"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

const version = mcpserver.DefaultVersion

// shutdownTimeout bounds browser teardown after a signal
const shutdownTimeout = 10 * time.Second

// CLIConfig holds command-line overrides. Only flags the user set are
// applied over the file and environment configuration.
type CLIConfig struct {
	ConfigFile    string
	Headless      bool
	Engine        string
	ScreenshotDir string
	Port          int
	NoServer      bool
	Install       bool
	ShowVersion   bool

	flags *pflag.FlagSet
}

func main() {
	cli := parseFlags(os.Args[1:])

	// stdout belongs to the MCP transport; everything else goes to stderr.
	if cli.ShowVersion {
		fmt.Fprintf(os.Stderr, "webpreview v%s\n", version)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cli); err != nil {
		fmt.Fprintf(os.Stderr, "webpreview: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func parseFlags(args []string) *CLIConfig {
	cli := &CLIConfig{}
	fs := pflag.NewFlagSet("webpreview", pflag.ExitOnError)

	fs.StringVarP(&cli.ConfigFile, "config", "c", "", "Path to configuration file (YAML, default ~/.webpreview/config.yaml)")
	fs.BoolVar(&cli.Headless, "headless", false, "Run browsers without a visible window")
	fs.StringVarP(&cli.Engine, "browser", "b", "", "Default browser engine: chromium, firefox or webkit")
	fs.StringVar(&cli.ScreenshotDir, "screenshot-dir", "", "Directory screenshots are written to")
	fs.IntVarP(&cli.Port, "port", "p", 0, "Live-reload server port")
	fs.BoolVar(&cli.NoServer, "no-server", false, "Disable the live-reload server")
	fs.BoolVar(&cli.Install, "install", false, "Install the Playwright driver and browser before starting")
	fs.BoolVarP(&cli.ShowVersion, "version", "v", false, "Show version and exit")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "webpreview - browser automation tools over MCP\n\n")
		fmt.Fprintf(os.Stderr, "Usage: webpreview [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  %-26s run browsers headless\n", config.EnvHeadless)
		fmt.Fprintf(os.Stderr, "  %-26s screenshot directory\n", config.EnvScreenshotDir)
		fmt.Fprintf(os.Stderr, "  %-26s live-reload server port\n", config.EnvPort)
		fmt.Fprintf(os.Stderr, "  %-26s publish previews when \"true\"\n", config.EnvPublish)
		fmt.Fprintf(os.Stderr, "  %-26s domain for published previews\n", config.EnvPublishDomain)
	}

	_ = fs.Parse(args)
	cli.flags = fs
	return cli
}

// apply overlays the flags the user set onto cfg.
func (c *CLIConfig) apply(cfg *config.Config) error {
	if c.flags.Changed("headless") {
		cfg.Browser.Headless = c.Headless
	}
	if c.flags.Changed("browser") {
		cfg.Browser.Engine = c.Engine
	}
	if c.flags.Changed("screenshot-dir") {
		cfg.Screenshots.Dir = c.ScreenshotDir
	}
	if c.flags.Changed("port") {
		if c.Port <= 0 || c.Port > 65535 {
			return fmt.Errorf("invalid port %d", c.Port)
		}
		host, _, err := net.SplitHostPort(cfg.Server.Addr)
		if err != nil || host == "" {
			host = "127.0.0.1"
		}
		cfg.Server.Addr = net.JoinHostPort(host, strconv.Itoa(c.Port))
	}
	if c.NoServer {
		cfg.Server.Enabled = false
	}
	if c.Install {
		cfg.Browser.Install = true
	}
	return nil
}

func run(ctx context.Context, cli *CLIConfig) error {
	cfg, err := config.Load(cli.ConfigFile)
	if err != nil {
		return err
	}
	if err := cli.apply(cfg); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	if cfg.Logging.Dir != "" {
		logging.SetLogDirectory(cfg.Logging.Dir)
	}
	log, err := logging.NewLogger("webpreview")
	if err != nil {
		fmt.Fprintf(os.Stderr, "webpreview: logging to stderr: %v\n", err)
	}
	defer log.Close()
	log.Infof("starting webpreview v%s (engine=%s headless=%v)", version, cfg.Browser.Engine, cfg.Browser.Headless)

	driver := pwdriver.New(pwdriver.Options{
		Install:  cfg.Browser.Install,
		Browsers: []string{cfg.Browser.Engine},
		Output:   log.Writer(),
	})
	registry := browser.NewRegistry(driver,
		browser.WithConsoleLog(logging.NewConsoleLog(0, log)),
		browser.WithNetworkLog(logging.NewNetworkLog(0)),
		browser.WithLogger(logging.MustLogger("browser")),
	)
	pipeline := screenshot.New(cfg.Screenshots.Dir, screenshot.WithLogger(logging.MustLogger("screenshot")))

	promRegistry := prometheus.NewRegistry()
	opts := []browsertools.Option{
		browsertools.WithLogger(logging.MustLogger("router")),
		browsertools.WithMetrics(browsertools.NewMetrics(promRegistry)),
		browsertools.WithDefaults(browsertools.Defaults{
			Engine:   browser.Engine(cfg.Browser.Engine),
			Headless: cfg.Browser.Headless,
			Viewport: browser.Viewport{
				Width:  cfg.Browser.Viewport.Width,
				Height: cfg.Browser.Viewport.Height,
			},
			Timeout:          float64(cfg.Browser.Timeout.Milliseconds()),
			ScreenshotFormat: cfg.Screenshots.Format,
			JPEGQuality:      cfg.Screenshots.Quality,
		}),
	}
	if cfg.Publish.Enabled {
		opts = append(opts, browsertools.WithPublisher(&browsertools.SubdomainPublisher{
			Domain: cfg.Publish.Domain,
			Log:    logging.MustLogger("publish"),
		}))
	}

	var lr *livereload.Server
	if cfg.Server.Enabled {
		var guard *workspace.Guard
		if len(cfg.Server.Roots) > 0 {
			if guard, err = workspace.NewGuard(cfg.Server.Roots...); err != nil {
				return fmt.Errorf("invalid server roots: %w", err)
			}
		}
		lr, err = livereload.NewServer(livereload.Options{
			Addr:     cfg.Server.Addr,
			Ignore:   cfg.Server.Ignore,
			Registry: promRegistry,
			Guard:    guard,
			Logger:   logging.MustLogger("livereload"),
		})
		if err != nil {
			return fmt.Errorf("failed to create live-reload server: %w", err)
		}
		opts = append(opts, browsertools.WithWatcher(lr))
	}

	router := browsertools.NewRouter(registry, pipeline, opts...)
	if lr != nil {
		lr.OnChange(router.HandleFileChange)
	}

	srv, err := mcpserver.New(router, mcpserver.Options{Version: version, Logger: logging.MustLogger("mcp")})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	serveCtx, cancelServe := context.WithCancel(gctx)
	defer cancelServe()

	g.Go(func() error {
		// The client closing stdin ends the session.
		defer cancelServe()
		err := srv.Serve(serveCtx, os.Stdin, os.Stdout)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	if lr != nil {
		// Previews keep working without auto-refresh.
		g.Go(func() error {
			if err := lr.Start(serveCtx); err != nil {
				log.Warnf("live-reload server stopped: %v", err)
			}
			return nil
		})
	}

	runErr := g.Wait()
	log.Infof("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := router.Close(shutdownCtx); err != nil {
		log.Warnf("closing previews: %v", err)
	}
	if err := registry.Shutdown(); err != nil {
		log.Warnf("shutting down browsers: %v", err)
	}
	if lr != nil {
		_ = lr.Close()
	}
	return runErr
}
