package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kardianos/service"
	"github.com/spf13/cobra"
	"github.com/zhaobenny/tokdash/internal/config"
	"github.com/zhaobenny/tokdash/internal/engine"
	"github.com/zhaobenny/tokdash/internal/logger"
	"github.com/zhaobenny/tokdash/server/internal/handlers"
	"github.com/zhaobenny/tokdash/server/internal/middleware"
	"golang.org/x/time/rate"
)

var version = "0.3.0"

const (
	pricingPollInterval = 5 * time.Second
	pricingSettle       = 2 * time.Second
	shutdownTimeout     = 10 * time.Second
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "tokdash-server: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		configPath string
		bind       string
		port       int
	)

	load := func() (*config.Config, error) {
		if configPath == "" {
			p, err := config.Path()
			if err != nil {
				return nil, err
			}
			configPath = p
		}
		cfg, err := config.LoadFrom(configPath)
		if err != nil {
			return nil, err
		}
		if bind != "" {
			cfg.Server.Bind = bind
		}
		if port != 0 {
			if err := config.Set(cfg, "server.port", strconv.Itoa(port)); err != nil {
				return nil, err
			}
		}
		return cfg, nil
	}

	cmd := &cobra.Command{
		Use:   "tokdash-server",
		Short: "Serve the tokdash usage API",
		Long: `tokdash-server serves usage summaries over HTTP and can install itself
as a background service.`,
		Example: `  tokdash-server                 Run in the foreground
  tokdash-server install         Install and start as a service
  tokdash-server status`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runService(load, configPath, "run")
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Config file (default $TOKDASH_CONFIG or ~/.tokdash.yaml)")
	pf.StringVar(&bind, "bind", "", "Bind address (default from config, 127.0.0.1)")
	pf.IntVar(&port, "port", 0, "Port to listen on (default from config, 55423)")

	for _, c := range []struct{ name, short string }{
		{"run", "Run in the foreground (used by the service manager)"},
		{"install", "Install and start the background service"},
		{"start", "Start the background service"},
		{"stop", "Stop the background service"},
		{"uninstall", "Stop and remove the background service"},
		{"status", "Show service status"},
	} {
		cmd.AddCommand(&cobra.Command{
			Use:   c.name,
			Short: c.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runService(load, configPath, c.name)
			},
		})
	}
	return cmd
}

func runService(load func() (*config.Config, error), configPath, command string) error {
	cfg, err := load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	svcArgs := []string{"run"}
	if configPath != "" {
		svcArgs = append(svcArgs, "--config", configPath)
	}
	svcConfig := &service.Config{
		Name:        "tokdash",
		DisplayName: "tokdash Usage API",
		Description: "Serves AI coding tool token usage and cost over HTTP",
		Arguments:   svcArgs,
		Option:      service.KeyValue{"UserService": true},
	}

	prg := &program{cfg: cfg, log: logger.New(cfg.Logging)}
	s, err := service.New(prg, svcConfig)
	if err != nil {
		return fmt.Errorf("create service: %w", err)
	}

	switch command {
	case "install":
		if err := s.Install(); err != nil {
			return fmt.Errorf("install service: %w", err)
		}
		if err := s.Start(); err != nil {
			return fmt.Errorf("service installed but failed to start: %w", err)
		}
		fmt.Printf("Service installed and started on %s.\n", prg.addr())
	case "start":
		if err := s.Start(); err != nil {
			return fmt.Errorf("start service: %w", err)
		}
		fmt.Println("Service started.")
	case "stop":
		if err := s.Stop(); err != nil {
			return fmt.Errorf("stop service: %w", err)
		}
		fmt.Println("Service stopped.")
	case "uninstall":
		_ = s.Stop() // may already be stopped
		if err := s.Uninstall(); err != nil {
			return fmt.Errorf("uninstall service: %w", err)
		}
		fmt.Println("Service uninstalled.")
	case "status":
		status, err := s.Status()
		if err != nil {
			fmt.Printf("Service status: not installed or error (%v)\n", err)
			return nil
		}
		switch status {
		case service.StatusRunning:
			fmt.Println("Service status: running")
		case service.StatusStopped:
			fmt.Println("Service status: stopped")
		default:
			fmt.Println("Service status: unknown")
		}
	default:
		return s.Run()
	}
	return nil
}

// program implements service.Interface around the HTTP server.
type program struct {
	cfg *config.Config
	log *slog.Logger

	srv      *http.Server
	cancel   context.CancelFunc
	closeEng func()
}

func (p *program) addr() string {
	return net.JoinHostPort(p.cfg.Server.Bind, strconv.Itoa(p.cfg.Server.Port))
}

func (p *program) Start(s service.Service) error {
	eng, closeEng, err := engine.FromConfig(p.cfg, p.log)
	if err != nil {
		return err
	}

	ln, err := net.Listen("tcp", p.addr())
	if err != nil {
		closeEng()
		return fmt.Errorf("listen: %w", err)
	}

	h := handlers.New(eng, p.cfg.Pricing.File, version, p.log)
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.closeEng = closeEng
	p.srv = &http.Server{
		Handler:           newRouter(h, p.cfg, p.log),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      p.cfg.Server.RequestTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go h.WatchPricing(ctx, pricingPollInterval, pricingSettle)
	go func() {
		p.log.Info("starting server", "addr", ln.Addr().String(), "version", version, "pricing", eng.Pricing().Version)
		if err := p.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			p.log.Error("server failed", "error", err)
		}
	}()
	return nil
}

func (p *program) Stop(s service.Service) error {
	p.log.Info("shutting down server")
	if p.cancel != nil {
		p.cancel()
	}
	defer func() {
		if p.closeEng != nil {
			p.closeEng()
		}
	}()
	if p.srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return p.srv.Shutdown(ctx)
}

// newRouter wires middleware and routes.
func newRouter(h *handlers.Handler, cfg *config.Config, log *slog.Logger) http.Handler {
	limiter := middleware.NewIPRateLimiter(rate.Limit(cfg.Rate.RequestsPerSecond), cfg.Rate.Burst)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(limiter.Limit)
	r.Use(timeout(cfg.Server.RequestTimeout))
	h.Mount(r)
	return r
}

// timeout bounds the request context. Computations continue detached and
// stay cached for the next request.
func timeout(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if d <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
