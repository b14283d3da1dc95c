package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/VictoriaMetrics/metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"github.com/wagiedev/qconn"
)

// shutdownTimeout bounds the graceful shutdown of the metrics server.
const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the demo root value",
	Long: `Serve the demo root value to every peer that connects.

The root offers ping(n), echo(...), now(), countdown(n) which reports
progress, and counter() which returns an object with inc and value
methods. With --stdio a single peer is served over stdin and stdout,
which lets "qconn call --exec" run the server as a child process.`,
	Args:    cobra.NoArgs,
	PreRunE: bindFlags,
	RunE:    runServe,
}

func init() {
	key := "listen"
	serveCmd.Flags().String(key, "tcp://127.0.0.1:7070", "address to listen on (tcp://host:port or unix:///path)")
	key = "stdio"
	serveCmd.Flags().Bool(key, false, "serve a single peer over stdin and stdout instead of listening")
	key = "metrics-addr"
	serveCmd.Flags().String(key, "", "address for the Prometheus /metrics endpoint (disabled when empty)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	log, err := commandLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	opts, err := connOptions(log)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if viper.GetBool("stdio") {
		return serveStdio(ctx, log, opts)
	}

	network, address, err := parseEndpoint(viper.GetString("listen"))
	if err != nil {
		return err
	}

	ln, err := net.Listen(network, address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", address, err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return serve(ctx, log, ln, opts)
	})

	if addr := viper.GetString("metrics-addr"); addr != "" {
		g.Go(func() error {
			return serveMetrics(ctx, log, addr)
		})
	}

	return g.Wait()
}

// serve accepts connections on ln until ctx is cancelled, giving each peer
// its own demo root. It returns nil after a cancellation and waits for the
// open connections to close.
func serve(ctx context.Context, log *slog.Logger, ln net.Listener, opts []qconn.Option) error {
	log = log.With("component", "server")
	log.Info("Serving demo root", "address", ln.Addr().String())

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		nc, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				log.Info("Server stopped")

				return nil
			}

			return fmt.Errorf("accept: %w", err)
		}

		peer := nc.RemoteAddr().String()

		conn, err := qconn.Connect(ctx, nc, demoRoot(), opts...)
		if err != nil {
			log.Warn("Failed to start connection", "peer", peer, "error", err)
			_ = nc.Close()

			continue
		}

		log.Info("Peer connected", "peer", peer)

		wg.Go(func() {
			<-conn.Done()
			conn.Wait()
			log.Info("Peer disconnected", "peer", peer, "reason", conn.Err())
		})
	}
}

// serveStdio serves one peer over the process's stdin and stdout.
func serveStdio(ctx context.Context, log *slog.Logger, opts []qconn.Option) error {
	conn, err := qconn.ConnectStreams(ctx, os.Stdin, os.Stdout, demoRoot(), opts...)
	if err != nil {
		return err
	}

	log.Info("Serving demo root over stdio")

	select {
	case <-conn.Done():
	case <-ctx.Done():
		conn.Close(ctx.Err())
	}

	conn.Wait()

	if err := conn.Err(); err != nil && !errors.Is(err, qconn.ErrConnectionClosed) && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

// serveMetrics exposes the process metrics in Prometheus text format until
// ctx is cancelled.
func serveMetrics(ctx context.Context, log *slog.Logger, addr string) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		metrics.WritePrometheus(w, true)
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("Serving metrics", "address", addr)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server: %w", err)
	}

	return nil
}
