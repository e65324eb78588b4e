package main

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"syslink-agent/internal/client"
	"syslink-agent/internal/model"
)

const usage = `usage: syslinkctl [-url URL] [-token TOKEN] [-insecure] <command> [flags]

commands:
  pair      pair this machine as a device and print the token
  status    print the full metrics snapshot
  history   print a metric history series
  stream    follow the live websocket stream
  devices   list paired devices, or revoke one with -revoke ID
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	global := flag.NewFlagSet("syslinkctl", flag.ContinueOnError)
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	baseURL := global.String("url", envOr("SYSLINK_URL", "https://localhost:5443"), "agent base URL")
	token := global.String("token", os.Getenv("SYSLINK_TOKEN"), "bearer token")
	insecure := global.Bool("insecure", false, "skip TLS verification for self-signed agents")
	if err := global.Parse(args); err != nil {
		return 2
	}
	if global.NArg() == 0 {
		global.Usage()
		return 2
	}

	var opts []client.Option
	if *insecure {
		opts = append(opts, client.WithTLSConfig(&tls.Config{InsecureSkipVerify: true}))
	}
	c := client.New(*baseURL, *token, opts...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, rest := global.Arg(0), global.Args()[1:]
	var err error
	switch cmd {
	case "pair":
		err = runPair(ctx, c, rest)
	case "status":
		err = runStatus(ctx, c)
	case "history":
		err = runHistory(ctx, c, rest)
	case "stream":
		err = runStream(ctx, c, rest, *insecure)
	case "devices":
		err = runDevices(ctx, c, rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		global.Usage()
		return 2
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return 0
		}
		fmt.Fprintln(os.Stderr, describe(err))
		return 1
	}
	return 0
}

func runPair(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("pair", flag.ContinueOnError)
	hostname, _ := os.Hostname()
	name := fs.String("name", hostname, "device name")
	id := fs.String("id", "syslinkctl-"+hostname, "device id")
	kind := fs.String("type", "Desktop", "device type")
	if err := fs.Parse(args); err != nil {
		return err
	}
	resp, err := c.Pair(ctx, model.PairRequest{DeviceName: *name, DeviceID: *id, DeviceType: *kind})
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runStatus(ctx context.Context, c *client.Client) error {
	m, err := c.Status(ctx)
	if err != nil {
		return err
	}
	return printJSON(m)
}

func runHistory(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	metric := fs.String("metric", model.MetricCpuUsage, "metric type")
	period := fs.String("period", "1h", "period such as 15m, 1h, 7d")
	points := fs.Int("points", model.DefaultHistoryMaxPoints, "maximum points")
	agg := fs.String("agg", "average", "aggregation: average, min, max, sum, none")
	if err := fs.Parse(args); err != nil {
		return err
	}
	resp, err := c.History(ctx, *metric, *period, *points, model.ParseAggregation(*agg))
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func runStream(ctx context.Context, c *client.Client, args []string, insecure bool) error {
	fs := flag.NewFlagSet("stream", flag.ContinueOnError)
	alerts := fs.Bool("alerts", false, "also subscribe to the alerts channel")
	if err := fs.Parse(args); err != nil {
		return err
	}
	opts := client.StreamOptions{Logger: slog.New(slog.NewTextHandler(os.Stderr, nil))}
	if insecure {
		opts.TLS = &tls.Config{InsecureSkipVerify: true}
	}
	s, err := c.Stream(ctx, opts)
	if err != nil {
		return err
	}
	defer s.Close()

	if *alerts {
		if err := s.Subscribe(ctx, model.ChannelAlerts); err != nil {
			return err
		}
	}
	for {
		p, err := s.Next(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s %s\n", p.Timestamp.Format(time.RFC3339), p.Type, summarize(p))
	}
}

func summarize(p model.StreamPayload) string {
	switch p.Type {
	case model.PayloadMetrics:
		var m model.SystemMetrics
		if client.DecodeData(p, &m) != nil {
			return ""
		}
		return fmt.Sprintf("cpu=%.1f%% ram=%.1f%% gpu=%.1f%%", m.Cpu.AverageUsage, m.Ram.UsagePercent, m.Gpu.Usage)
	case model.PayloadAlert:
		var a model.Alert
		if client.DecodeData(p, &a) != nil {
			return ""
		}
		return fmt.Sprintf("[%s] %s: %s", a.Severity, a.Title, a.Message)
	default:
		return ""
	}
}

func runDevices(ctx context.Context, c *client.Client, args []string) error {
	fs := flag.NewFlagSet("devices", flag.ContinueOnError)
	revoke := fs.String("revoke", "", "device id to revoke")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *revoke != "" {
		if err := c.Revoke(ctx, *revoke); err != nil {
			return err
		}
		fmt.Printf("revoked %s\n", *revoke)
		return nil
	}
	devices, err := c.Devices(ctx)
	if err != nil {
		return err
	}
	return printJSON(devices)
}

func describe(err error) string {
	var (
		authErr    *client.AuthError
		certErr    *client.CertificateError
		refusedErr *client.ConnectionRefusedError
		serverErr  *client.ServerError
	)
	switch {
	case errors.As(err, &authErr):
		return "authentication failed: " + err.Error() + " (check -token)"
	case errors.As(err, &certErr):
		return "certificate rejected: " + err.Error() + " (use -insecure for self-signed agents)"
	case errors.As(err, &refusedErr):
		return "agent is not reachable: " + err.Error()
	case errors.As(err, &serverErr):
		return fmt.Sprintf("agent returned %d: %s", serverErr.Code, err.Error())
	default:
		return err.Error()
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
