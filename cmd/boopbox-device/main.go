// Command boopbox-device runs the networker of a boop-box.
//
// It loads the server credentials from the configuration directory, keeps a
// TLS session to the achievement server alive, and reports the connection
// status. In interactive mode a console drives the networker by hand:
// set credentials, check tags, fetch audio.
//
// Usage:
//
//	boopbox-device [flags]
//
// Flags:
//
//	-config-dir string     Configuration directory (default "~/.boop-box")
//	-log-level string      Log level: debug, info, warn, error (default "debug")
//	-insecure              Accept any server certificate
//	-pin string            Trust only the certificate with this SHA-256 fingerprint
//	-interactive           Start the interactive console
//	-protocol-log string   Write protocol events to this .blog file
//	-metrics-addr string   Serve Prometheus metrics on this address
//	-discover string       Find a server via mDNS ("any" or an instance name)
//	-user string           User for a discovered server
//	-secret string         Secret for a discovered server
//
// Examples:
//
//	# Run with the stored configuration
//	boopbox-device
//
//	# Development setup against a local server
//	boopbox-device -interactive -discover any -user box-1 -secret hunter2
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/boop-box/boopbox-go/cmd/boopbox-device/interactive"
	"github.com/boop-box/boopbox-go/pkg/config"
	"github.com/boop-box/boopbox-go/pkg/connection"
	"github.com/boop-box/boopbox-go/pkg/discovery"
	plog "github.com/boop-box/boopbox-go/pkg/log"
	"github.com/boop-box/boopbox-go/pkg/metrics"
	"github.com/boop-box/boopbox-go/pkg/networker"
	"github.com/boop-box/boopbox-go/pkg/persistence"
	"github.com/boop-box/boopbox-go/pkg/transport"
)

// Shutdown grace period for the networker and config store.
const shutdownGrace = time.Second

// Config holds the command line configuration.
type Config struct {
	ConfigDir   string
	LogLevel    string
	Insecure    bool
	Pin         string
	Interactive bool
	ProtocolLog string
	MetricsAddr string
	Discover    string
	User        string
	Secret      string
}

var cfg Config

func init() {
	flag.StringVar(&cfg.ConfigDir, "config-dir", "~/.boop-box", "Configuration directory")
	flag.StringVar(&cfg.LogLevel, "log-level", "debug", "Log level: debug, info, warn, error")
	flag.BoolVar(&cfg.Insecure, "insecure", false, "Accept any server certificate")
	flag.StringVar(&cfg.Pin, "pin", "", "Trust only the certificate with this SHA-256 fingerprint")
	flag.BoolVar(&cfg.Interactive, "interactive", false, "Start the interactive console")
	flag.StringVar(&cfg.ProtocolLog, "protocol-log", "", "Write protocol events to this .blog file")
	flag.StringVar(&cfg.MetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address (e.g. :9100)")
	flag.StringVar(&cfg.Discover, "discover", "", `Find a server via mDNS ("any" or an instance name)`)
	flag.StringVar(&cfg.User, "user", "", "User for a discovered server")
	flag.StringVar(&cfg.Secret, "secret", "", "Secret for a discovered server")
}

func main() {
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var console *interactive.Console
	var out io.Writer = os.Stderr
	if cfg.Interactive {
		var err error
		console, err = interactive.New()
		if err != nil {
			log.Fatalf("Failed to start console: %v", err)
		}
		out = console.Stderr()
	}
	log.SetOutput(out)
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	logger, err := newLogger(cfg.LogLevel, out)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	dir, err := expandHome(cfg.ConfigDir)
	if err != nil {
		log.Fatalf("Failed to resolve config dir: %v", err)
	}
	log.Println("boop-box networker")
	log.Printf("Config: %s", filepath.Join(dir, persistence.DefaultFileName))

	// Protocol logging
	var protocolLogger plog.Logger
	if cfg.ProtocolLog != "" {
		fl, err := plog.NewFileLogger(cfg.ProtocolLog)
		if err != nil {
			log.Fatalf("Failed to open protocol log: %v", err)
		}
		defer fl.Close()
		protocolLogger = plog.NewMultiLogger(fl, plog.NewSlogAdapter(logger))
		log.Printf("Protocol log: %s", cfg.ProtocolLog)
	}

	// Metrics
	var recorder metrics.Recorder = metrics.Noop{}
	if cfg.MetricsAddr != "" {
		reg := prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector())
		recorder = metrics.NewPrometheus(reg)
		go serveMetrics(ctx, cfg.MetricsAddr, reg)
	}

	// Trust policy, possibly refined by discovery.
	trust := transport.TrustFromFlag(cfg.Insecure)
	if cfg.Pin != "" {
		trust = transport.Pinned(cfg.Pin)
	}

	var discovered *config.ConnectionCredentials
	if cfg.Discover != "" {
		creds, fp, err := discover(ctx, cfg.Discover, cfg.User, cfg.Secret)
		if err != nil {
			log.Fatalf("Discovery failed: %v", err)
		}
		discovered = &creds
		if fp != "" && cfg.Pin == "" && !cfg.Insecure {
			trust = transport.Pinned(fp)
			log.Printf("Pinning advertised certificate %s", fp)
		}
	}
	if transport.IsInsecure(trust) {
		log.Println("WARNING: server certificates are not verified")
	}

	// Config store
	manager := config.NewManager(config.ManagerConfig{
		Backend:   persistence.NewDeviceConfigStore(filepath.Join(dir, persistence.DefaultFileName)),
		QueueSize: config.DefaultQueueSize,
		Logger:    logger.With("component", "config"),
	})

	// Networker
	tcfg := transport.DefaultConnectorConfig()
	tcfg.Trust = trust
	tcfg.ProtocolLogger = protocolLogger
	tcfg.Logger = logger.With("component", "transport")

	ncfg := networker.DefaultConfig()
	ncfg.Connector = networker.FromTransport(transport.NewConnector(tcfg))
	ncfg.Store = manager.Client()
	ncfg.ProtocolLogger = protocolLogger
	ncfg.Metrics = recorder
	ncfg.Logger = logger.With("component", "networker")

	n, err := networker.New(ncfg)
	if err != nil {
		log.Fatalf("Failed to create networker: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		if err := manager.Run(ctx); err != nil {
			log.Printf("Config store stopped: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := n.Run(ctx); err != nil {
			log.Printf("Networker stopped: %v", err)
			cancel()
		}
	}()

	status := &statusPrinter{}
	go func() {
		defer wg.Done()
		status.run(n.Status())
	}()

	if discovered != nil {
		if err := n.Client().SetConnection(ctx, *discovered); err != nil {
			log.Printf("Failed to store discovered server: %v", err)
		}
	}

	if console != nil {
		go console.Run(ctx, cancel, n.Client(), status.current)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
	case <-ctx.Done():
	}

	log.Println("Shutting down...")
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownGrace):
		log.Println("Shutdown grace period exceeded")
	}
}

// statusPrinter logs every announced status and remembers the latest.
type statusPrinter struct {
	mu   sync.Mutex
	last connection.Status
	seen bool
}

func (p *statusPrinter) run(statuses <-chan connection.Status) {
	for s := range statuses {
		p.mu.Lock()
		changed := !p.seen || p.last != s
		p.last = s
		p.seen = true
		p.mu.Unlock()
		if changed {
			log.Printf("[STATUS] %s", s)
		}
	}
}

func (p *statusPrinter) current() connection.Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

func discover(ctx context.Context, instance, user, secret string) (config.ConnectionCredentials, string, error) {
	if user == "" || secret == "" {
		return config.ConnectionCredentials{}, "", errors.New("-discover needs -user and -secret")
	}
	if instance == "any" {
		instance = ""
	}

	browser := discovery.NewMDNSBrowser(discovery.DefaultBrowserConfig())
	log.Println("Browsing for servers...")
	svc, err := browser.FindServer(ctx, instance)
	if err != nil {
		return config.ConnectionCredentials{}, "", err
	}
	log.Printf("Found server %s", svc)

	creds, err := svc.Credentials(user, secret)
	if err != nil {
		return config.ConnectionCredentials{}, "", err
	}
	if err := creds.Validate(); err != nil {
		return config.ConnectionCredentials{}, "", err
	}
	return creds, svc.Fingerprint, nil
}

func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("Metrics on http://%s/metrics", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("Metrics server failed: %v", err)
	}
}

func newLogger(level string, w io.Writer) (*slog.Logger, error) {
	var l slog.Level
	switch strings.ToLower(level) {
	case "debug":
		l = slog.LevelDebug
	case "info":
		l = slog.LevelInfo
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		return nil, fmt.Errorf("unknown log level %q", level)
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: l})), nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}
