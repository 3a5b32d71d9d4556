package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/urfave/cli/v3"

	"github.com/HendryAvila/pmtools/internal/config"
	"github.com/HendryAvila/pmtools/internal/notify"
	"github.com/HendryAvila/pmtools/internal/report"
	"github.com/HendryAvila/pmtools/internal/server"
)

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "pmtools",
		Usage: "Task tracking and boss reports over MCP, delivered to Slack",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file",
				Value:   config.DefaultPath(),
			},
			&cli.BoolFlag{
				Name:  "debug",
				Usage: "Enable debug logging",
			},
		},
		Commands: []*cli.Command{
			newServeCommand(),
			newReportCommand(),
			newVersionCommand(),
		},
	}
}

// ─── serve ───────────────────────────────────────────────────────────────────

func newServeCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the MCP server",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "transport",
				Usage: "stdio or http",
				Value: "stdio",
			},
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address for the http transport (default: http.addr from config)",
			},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	transport := cmd.String("transport")
	if transport != "stdio" && transport != "http" {
		return fmt.Errorf("unknown transport %q (want stdio or http)", transport)
	}

	// stdout belongs to the stdio transport; keep it quiet unless asked.
	level := slog.LevelInfo
	if transport == "stdio" {
		level = slog.LevelWarn
	}
	logger := newLogger(cmd.Bool("debug"), level)

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	app, cleanup, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	if app.Scheduler != nil {
		app.Scheduler.Start()
	}

	if transport == "stdio" {
		return mcpserver.ServeStdio(app.MCP)
	}

	addr := cmd.String("addr")
	if addr == "" {
		addr = cfg.HTTP.Addr
	}
	gw := server.NewGateway(app, addr, logger)

	errCh := make(chan error, 1)
	go func() { errCh <- gw.Start() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return gw.Shutdown(shutdownCtx)
}

// ─── report ──────────────────────────────────────────────────────────────────

func newReportCommand() *cli.Command {
	return &cli.Command{
		Name:  "report",
		Usage: "Generate the boss report and print it as JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "window", Usage: "daily, weekly, custom, or YYYY-MM-DD:YYYY-MM-DD (default: report.window)"},
			&cli.StringFlag{Name: "start", Usage: "Custom window start"},
			&cli.StringFlag{Name: "end", Usage: "Custom window end"},
			&cli.StringFlag{Name: "channel", Usage: "Only tasks linked to this channel"},
			&cli.BoolFlag{Name: "push", Usage: "Also deliver the report to Slack"},
		},
		Action: runReport,
	}
}

func runReport(ctx context.Context, cmd *cli.Command) error {
	logger := newLogger(cmd.Bool("debug"), slog.LevelWarn)

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return err
	}
	app, cleanup, err := server.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}
	defer cleanup()

	opts := report.DefaultOptions()
	opts.Window = cfg.Report.Window
	if w := cmd.String("window"); w != "" {
		opts.Window = w
	}
	opts.Start = cmd.String("start")
	opts.End = cmd.String("end")
	opts.Channel = cmd.String("channel")

	r, err := app.Reports.Generate(ctx, opts)
	if err != nil {
		return err
	}

	out := map[string]any{"report": r}
	var delivery *notify.DeliveryResult
	if cmd.Bool("push") {
		dest := notify.Destination{Channel: opts.Channel}
		if dest.Channel == "" {
			dest.Channel = cfg.ReportChannel()
		}
		res := app.Reports.Publish(ctx, r, dest)
		delivery = &res
		out["notification"] = res
	}

	if err := writeJSON(cmd.Root().Writer, out); err != nil {
		return err
	}
	if delivery != nil && !delivery.Success {
		return errors.New("report not delivered: " + delivery.Error)
	}
	return nil
}

// ─── version ─────────────────────────────────────────────────────────────────

func newVersionCommand() *cli.Command {
	return &cli.Command{
		Name:  "version",
		Usage: "Print the version",
		Action: func(_ context.Context, cmd *cli.Command) error {
			_, err := fmt.Fprintf(cmd.Root().Writer, "pmtools v%s\n", server.Version)
			return err
		},
	}
}

// ─── helpers ─────────────────────────────────────────────────────────────────

// newLogger installs a stderr slog handler as the default and returns it.
func newLogger(debug bool, level slog.Level) *slog.Logger {
	if debug {
		level = slog.LevelDebug
	}
	l := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(l)
	return l
}

func writeJSON(w io.Writer, v any) error {
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
