package main

import (
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/spf13/viper"

	"github.com/wagiedev/qconn"
)

// newLogger builds the process logger from a level and format name.
func newLogger(w io.Writer, level, format string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	opts := &slog.HandlerOptions{Level: lvl}

	switch strings.ToLower(format) {
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("invalid log format %q (expected text or json)", format)
	}
}

// parseEndpoint splits an endpoint such as tcp://host:port or
// unix:///path/to.sock into a network and address. A bare host:port is
// treated as TCP.
func parseEndpoint(endpoint string) (network, address string, err error) {
	if endpoint == "" {
		return "", "", fmt.Errorf("endpoint is required")
	}

	if !strings.Contains(endpoint, "://") {
		return "tcp", endpoint, nil
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return "", "", fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}

	switch u.Scheme {
	case "tcp", "tcp4", "tcp6":
		if u.Host == "" {
			return "", "", fmt.Errorf("invalid endpoint %q: missing host", endpoint)
		}

		return u.Scheme, u.Host, nil
	case "unix":
		path := u.Path
		if path == "" {
			path = u.Opaque
		}

		if path == "" {
			return "", "", fmt.Errorf("invalid endpoint %q: missing socket path", endpoint)
		}

		return "unix", path, nil
	default:
		return "", "", fmt.Errorf("invalid endpoint %q: unsupported scheme %q (expected tcp or unix)", endpoint, u.Scheme)
	}
}

// connOptions collects the connection options configured through viper.
func connOptions(log *slog.Logger) ([]qconn.Option, error) {
	opts := []qconn.Option{
		qconn.WithLogger(log),
		qconn.WithMaxFrameBytes(viper.GetInt("max-frame-bytes")),
		qconn.WithMaxLocalEntries(viper.GetInt("max-local-entries")),
	}

	switch format := viper.GetString("id-format"); format {
	case "ulid", "":
		opts = append(opts, qconn.WithIDGenerator(qconn.ULIDGenerator{}))
	case "uuid":
		opts = append(opts, qconn.WithIDGenerator(qconn.UUIDGenerator{}))
	default:
		return nil, fmt.Errorf("invalid id format %q (expected ulid or uuid)", format)
	}

	return opts, nil
}

// commandLogger builds the logger for a command from the bound flags. Logs
// go to stderr so stdout stays free for results and stdio serving.
func commandLogger(w io.Writer) (*slog.Logger, error) {
	return newLogger(w, viper.GetString("log-level"), viper.GetString("log-format"))
}
