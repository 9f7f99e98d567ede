// Command sdlink moves payloads over a framed serial data link.
//
// Usage:
//
//	sdlink [-config file] [-log-level level] [-metrics-addr addr] <command>
//
// Commands:
//
//	demo     run two loopback endpoints through a send and echo exchange
//	serial   bridge stdin/stdout lines to a serial port
//	mqtt     bridge stdin/stdout lines to a peer over an MQTT broker
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kabili207/sdlink/internal/config"
	"github.com/kabili207/sdlink/internal/observability"
	"github.com/kabili207/sdlink/transport"
	"github.com/kabili207/sdlink/transport/loopback"
	"github.com/kabili207/sdlink/transport/mqtt"
	"github.com/kabili207/sdlink/transport/serial"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "sdlink: %v\n", err)
		os.Exit(1)
	}
}

var errUsage = errors.New("usage: sdlink [-config file] [-log-level level] [-metrics-addr addr] demo|serial|mqtt")

// linkTransport is a Transport that also exposes its line counters.
type linkTransport interface {
	transport.Transport
	observability.CountersSource
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("sdlink", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to a TOML config file")
	logLevel := fs.String("log-level", "", "log level (debug, info, warn, error)")
	metricsAddr := fs.String("metrics-addr", "", "listen address for Prometheus /metrics")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errUsage
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if *logLevel != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(*logLevel)); err != nil {
			return fmt.Errorf("parse -log-level: %w", err)
		}
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	switch cmd := fs.Arg(0); cmd {
	case "demo":
		return runDemo(cfg, logger, stdout)
	case "serial":
		return bridge(ctx, cfg, "serial", serial.New(cfg.SerialConfig(logger)), logger, stdin, stdout)
	case "mqtt":
		return bridge(ctx, cfg, "mqtt", mqtt.New(cfg.MQTTConfig(logger)), logger, stdin, stdout)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// runDemo sends two payloads from one endpoint, echoes them back from the
// other, and prints what each side received.
func runDemo(cfg config.Config, logger *slog.Logger, stdout io.Writer) error {
	node1, node2, err := loopback.NewPair(loopback.Config{
		Limits: cfg.Limits(),
		Logger: logger,
	})
	if err != nil {
		return err
	}

	payloads := [][]byte{[]byte("Hello \x00"), []byte(" World!\x00")}
	for _, p := range payloads {
		if err := node1.Send(p); err != nil {
			return fmt.Errorf("node1 send: %w", err)
		}
	}

	buf := make([]byte, 64)
	for range payloads {
		n, ok, err := node2.ReceiveFrame(buf)
		if err != nil {
			return fmt.Errorf("node2 receive: %w", err)
		}
		if !ok {
			return errors.New("node2 receive: no frame")
		}
		fmt.Fprintf(stdout, "node2 received %q\n", buf[:n])
		if err := node2.Send(buf[:n]); err != nil {
			return fmt.Errorf("node2 send: %w", err)
		}
	}

	for range payloads {
		n, ok, err := node1.ReceiveFrame(buf)
		if err != nil {
			return fmt.Errorf("node1 receive: %w", err)
		}
		if !ok {
			return errors.New("node1 receive: no frame")
		}
		fmt.Fprintf(stdout, "node1 received %q\n", buf[:n])
	}

	for i, ep := range []*loopback.Endpoint{node1, node2} {
		s := ep.Line().Counters().Snapshot()
		logger.Debug("line counters", "node", i+1,
			"sent", s.FramesSent, "received", s.FramesReceived, "rejected", s.Rejected())
	}
	return nil
}

// bridge sends every stdin line as a payload and prints every received
// payload as a line until stdin closes or ctx is cancelled.
func bridge(ctx context.Context, cfg config.Config, name string, t linkTransport, logger *slog.Logger, stdin io.Reader, stdout io.Writer) error {
	out := make(chan []byte, 16)
	t.SetPayloadHandler(func(p []byte, _ transport.PayloadSource) {
		select {
		case out <- append([]byte(nil), p...):
		default:
			logger.Warn("output backlog full, payload dropped", "len", len(p))
		}
	})
	t.SetStateHandler(func(_ transport.Transport, ev transport.Event) {
		logger.Info("transport state", "event", ev)
	})

	if err := t.Start(ctx); err != nil {
		return err
	}
	defer t.Stop()

	if cfg.MetricsAddr != "" {
		stopMetrics, err := serveMetrics(cfg.MetricsAddr, name, t, logger)
		if err != nil {
			return err
		}
		defer stopMetrics()
	}

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		sc := bufio.NewScanner(stdin)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-scanErr:
			return err
		case p := <-out:
			fmt.Fprintf(stdout, "%s\n", p)
		case line := <-lines:
			if err := t.Send([]byte(line)); err != nil {
				logger.Error("send failed", "error", err)
			}
		}
	}
}

// serveMetrics exposes the counters of t on addr until the returned stop
// function is called.
func serveMetrics(addr, name string, t observability.CountersSource, logger *slog.Logger) (func(), error) {
	h, err := observability.Handler(observability.NewLineCollector(map[string]observability.CountersSource{name: t}))
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", h)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}, nil
}
