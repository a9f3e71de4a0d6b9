// Command boopbox-server runs a development achievement server.
//
// Accounts, tags and audio come from a YAML fixture file (see
// server.Fixtures). A self-signed certificate is generated on first start
// and reused afterwards; its fingerprint is printed and, with -advertise,
// published over mDNS so devices can pin it.
//
// Usage:
//
//	boopbox-server -fixtures fixtures.yaml [flags]
//
// Flags:
//
//	-addr string           Listen address (default ":4433")
//	-fixtures string       Fixture file (required)
//	-cert-dir string       Certificate directory (default "certs")
//	-hosts string          Comma separated certificate host names (default "localhost,127.0.0.1")
//	-throttle duration     Per-tag CheckUID window, 0 disables (default 10s)
//	-advertise string      Advertise over mDNS with this instance name
//	-protocol-log string   Write protocol events to this .blog file
//	-log-level string      Log level: debug, info, warn, error (default "info")
package main

import (
	"context"
	"crypto/tls"
	"flag"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/boop-box/boopbox-go/pkg/cert"
	"github.com/boop-box/boopbox-go/pkg/discovery"
	plog "github.com/boop-box/boopbox-go/pkg/log"
	"github.com/boop-box/boopbox-go/pkg/server"
)

// Config holds the command line configuration.
type Config struct {
	Addr        string
	Fixtures    string
	CertDir     string
	Hosts       string
	Throttle    time.Duration
	Advertise   string
	ProtocolLog string
	LogLevel    string
}

var cfg Config

func init() {
	flag.StringVar(&cfg.Addr, "addr", ":"+strconv.Itoa(discovery.DefaultPort), "Listen address")
	flag.StringVar(&cfg.Fixtures, "fixtures", "", "Fixture file (required)")
	flag.StringVar(&cfg.CertDir, "cert-dir", "certs", "Certificate directory")
	flag.StringVar(&cfg.Hosts, "hosts", "localhost,127.0.0.1", "Comma separated certificate host names")
	flag.DurationVar(&cfg.Throttle, "throttle", server.DefaultThrottleWindow, "Per-tag CheckUID window, 0 disables")
	flag.StringVar(&cfg.Advertise, "advertise", "", "Advertise over mDNS with this instance name")
	flag.StringVar(&cfg.ProtocolLog, "protocol-log", "", "Write protocol events to this .blog file")
	flag.StringVar(&cfg.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")
}

func main() {
	flag.Parse()
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	if cfg.Fixtures == "" {
		log.Fatal("-fixtures is required")
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		log.Fatalf("Invalid log level: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	log.Println("boop-box achievement server")

	catalog, err := server.LoadCatalog(cfg.Fixtures, 0)
	if err != nil {
		log.Fatalf("Failed to load fixtures: %v", err)
	}

	id, generated, err := cert.LoadOrGenerate(cfg.CertDir, splitHosts(cfg.Hosts))
	if err != nil {
		log.Fatalf("Failed to load certificate: %v", err)
	}
	if generated {
		log.Printf("Generated certificate in %s", cfg.CertDir)
	}
	log.Printf("Certificate fingerprint: %s", id.Fingerprint())

	var protocolLogger plog.Logger
	if cfg.ProtocolLog != "" {
		fl, err := plog.NewFileLogger(cfg.ProtocolLog)
		if err != nil {
			log.Fatalf("Failed to open protocol log: %v", err)
		}
		defer fl.Close()
		protocolLogger = fl
	}

	throttle := cfg.Throttle
	if throttle == 0 {
		throttle = -1
	}

	srv, err := server.New(server.Config{
		TLSConfig:      &tls.Config{Certificates: []tls.Certificate{id.TLSCertificate()}},
		Catalog:        catalog,
		ThrottleWindow: throttle,
		ProtocolLogger: protocolLogger,
		Logger:         logger,
	})
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		log.Fatalf("Failed to listen: %v", err)
	}
	log.Printf("Listening on %s", ln.Addr())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Advertise != "" {
		adv := discovery.NewMDNSAdvertiser(discovery.AdvertiserConfig{})
		err := adv.Advertise(ctx, &discovery.ServerInfo{
			Instance:    cfg.Advertise,
			Port:        uint16(ln.Addr().(*net.TCPAddr).Port),
			Name:        cfg.Advertise,
			Fingerprint: id.Fingerprint(),
		})
		if err != nil {
			log.Printf("Warning: mDNS advertising failed: %v", err)
		} else {
			log.Printf("Advertising %s.%s", cfg.Advertise, discovery.ServiceType)
			defer adv.Stop()
		}
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ctx, ln) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-sigCh:
		log.Printf("Received signal: %v", sig)
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			log.Printf("Server failed: %v", err)
		}
	}
	log.Println("Goodbye!")
}

func splitHosts(s string) []string {
	var hosts []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}
