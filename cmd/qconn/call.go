package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/wagiedev/qconn"
)

var callCmd = &cobra.Command{
	Use:   "call <method> [json-args...]",
	Short: "Call a method on a remote root",
	Long: `Connect to a peer, call a method on its root value and print the
result as JSON.

Each argument is parsed as JSON; anything that is not valid JSON is
passed as a string. Progress notifications are printed to stderr.
Use --endpoint to dial a listening server or --exec to run the peer as
a child process speaking over its stdin and stdout.`,
	Example: `  qconn call ping 41
  qconn call --endpoint unix:///tmp/qconn.sock echo '{"a":1}' hello
  qconn call --exec "qconn serve --stdio" countdown 3`,
	Args:    cobra.MinimumNArgs(1),
	PreRunE: bindFlags,
	RunE:    runCall,
}

func init() {
	key := "endpoint"
	callCmd.Flags().String(key, "tcp://127.0.0.1:7070", "address of the peer (tcp://host:port or unix:///path)")
	key = "exec"
	callCmd.Flags().String(key, "", "command line of a peer to run as a child process, instead of dialing")
	key = "timeout"
	callCmd.Flags().Duration(key, 30*time.Second, "how long to wait for the result")
}

func runCall(cmd *cobra.Command, args []string) error {
	log, err := commandLogger(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	opts, err := connOptions(log)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), viper.GetDuration("timeout"))
	defer cancel()

	conn, err := dial(ctx, opts)
	if err != nil {
		return err
	}

	defer func() {
		conn.Close(nil)
		conn.Wait()
	}()

	return call(ctx, conn.Remote(), args[0], parseArgs(args[1:]), cmd.OutOrStdout(), cmd.ErrOrStderr())
}

// dial connects to the configured peer.
func dial(ctx context.Context, opts []qconn.Option) (*qconn.Conn, error) {
	if command := viper.GetString("exec"); command != "" {
		fields := strings.Fields(command)

		return qconn.ConnectProcess(ctx, fields[0], fields[1:], nil, opts...)
	}

	network, address, err := parseEndpoint(viper.GetString("endpoint"))
	if err != nil {
		return nil, err
	}

	var d net.Dialer

	nc, err := d.DialContext(ctx, network, address)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", address, err)
	}

	conn, err := qconn.Connect(ctx, nc, nil, opts...)
	if err != nil {
		_ = nc.Close()

		return nil, err
	}

	return conn, nil
}

// call invokes method on remote, streaming progress to progressOut and
// writing the result to out.
func call(ctx context.Context, remote *qconn.Proxy, method string, args []any, out, progressOut io.Writer) error {
	result := remote.Call(ctx, method, args...)
	result.Subscribe(qconn.Observer{
		OnProgress: func(p any) {
			if data, err := json.Marshal(printable(p)); err == nil {
				fmt.Fprintf(progressOut, "progress: %s\n", data)
			}
		},
	})

	v, err := result.Await(ctx)
	if err != nil {
		return fmt.Errorf("call %s: %w", method, err)
	}

	data, err := json.MarshalIndent(printable(v), "", "  ")
	if err != nil {
		return fmt.Errorf("format result: %w", err)
	}

	_, err = fmt.Fprintf(out, "%s\n", data)

	return err
}

// parseArgs decodes each argument as JSON, keeping it as a string when it
// is not valid JSON.
func parseArgs(raw []string) []any {
	args := make([]any, len(raw))

	for i, s := range raw {
		var v any
		if err := json.Unmarshal([]byte(s), &v); err != nil {
			v = s
		}

		args[i] = v
	}

	return args
}

// printable converts a decoded result into something encoding/json can
// render: remote references become their wire form and non-finite numbers
// become strings.
func printable(v any) any {
	switch x := v.(type) {
	case *qconn.Proxy:
		return map[string]any{"@": x.ID(), "type": x.Kind()}
	case *qconn.Future:
		if value, ok, err := x.Result(); ok && err == nil {
			return printable(value)
		}

		return map[string]any{"future": x.State().String()}
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Sprint(x)
		}

		return x
	case qconn.RegExp:
		return x.String()
	case []any:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = printable(item)
		}

		return out
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, item := range x {
			out[k] = printable(item)
		}

		return out
	case nil:
		return nil
	}

	if v == qconn.Undefined {
		return nil
	}

	return v
}
