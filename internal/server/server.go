// Package server wires all components and creates the MCP server.
//
// This is the composition root: it creates the concrete store,
// dispatcher, engine and aggregator, and injects them into the tools,
// prompts and resources that depend on them. No business logic lives
// here, only wiring.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/HendryAvila/pmtools/internal/config"
	"github.com/HendryAvila/pmtools/internal/lifecycle"
	"github.com/HendryAvila/pmtools/internal/notify"
	"github.com/HendryAvila/pmtools/internal/prompts"
	"github.com/HendryAvila/pmtools/internal/report"
	"github.com/HendryAvila/pmtools/internal/resources"
	"github.com/HendryAvila/pmtools/internal/scheduler"
	"github.com/HendryAvila/pmtools/internal/store"
	"github.com/HendryAvila/pmtools/internal/tools"
)

// Version is set at build time via ldflags.
var Version = "dev"

// App holds the wired components.
type App struct {
	MCP        *server.MCPServer
	Registry   *tools.Registry
	Store      *store.Store
	Engine     *lifecycle.Engine
	Reports    *report.Aggregator
	Dispatcher *notify.Dispatcher
	// Scheduler is nil unless report.schedule is set.
	Scheduler *scheduler.Scheduler
}

// New validates cfg and builds the application. The returned cleanup
// function stops the scheduler and closes the store; it is always
// non-nil and safe to call even when New fails.
func New(cfg *config.Config, logger *slog.Logger) (*App, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, noop, fmt.Errorf("invalid configuration: %w", err)
	}

	// --- Create shared dependencies ---

	st, err := store.New(cfg.StoreConfig())
	if err != nil {
		return nil, noop, fmt.Errorf("opening task store: %w", err)
	}

	dispatcher := notify.NewDispatcher(cfg.NotifyConfig(), notify.WithLogger(logger))
	if !dispatcher.Configured() {
		logger.Warn("slack webhook not configured, notifications will report failure")
	}

	engine := lifecycle.New(st, dispatcher, lifecycle.WithLogger(logger))
	reports := report.New(st, dispatcher,
		report.WithLimits(cfg.Report.LookaheadDays, cfg.Report.MaxItems),
		report.WithLogger(logger),
	)

	app := &App{
		Store:      st,
		Engine:     engine,
		Reports:    reports,
		Dispatcher: dispatcher,
	}

	// --- Create the MCP server ---

	s := server.NewMCPServer(
		"pmtools",
		Version,
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithPromptCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions(serverInstructions()),
	)
	app.MCP = s

	// --- Register tools ---

	app.Registry = tools.NewTaskRegistry(tools.Deps{
		Engine:     engine,
		Reports:    reports,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	s.AddTools(app.Registry.ServerTools()...)

	// --- Register prompts ---

	reportPrompt := prompts.NewReportPrompt()
	s.AddPrompt(reportPrompt.Definition(), reportPrompt.Handle)

	triagePrompt := prompts.NewTriagePrompt()
	s.AddPrompt(triagePrompt.Definition(), triagePrompt.Handle)

	// --- Register resources ---

	resourceHandler := resources.NewHandler(st, reports)
	s.AddResource(resourceHandler.SummaryResource(), resourceHandler.HandleSummary)
	s.AddResource(resourceHandler.DailyReportResource(), resourceHandler.HandleDailyReport)

	// --- Scheduled report ---
	//
	// The scheduler is created here but started by the caller, so one-shot
	// commands never push reports on their own.

	if cfg.Report.Schedule != "" {
		app.Scheduler, err = scheduler.New(scheduler.Config{
			Schedule:    cfg.Report.Schedule,
			Window:      cfg.Report.Window,
			Channel:     cfg.Report.Channel,
			Destination: cfg.ReportChannel(),
		}, reports, scheduler.WithLogger(logger))
		if err != nil {
			_ = st.Close()
			return nil, noop, fmt.Errorf("creating report scheduler: %w", err)
		}
	}

	cleanup := func() {
		if app.Scheduler != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			app.Scheduler.Stop(ctx)
			cancel()
		}
		if err := st.Close(); err != nil {
			logger.Warn("task store close", "error", err)
		}
	}
	return app, cleanup, nil
}

// noop is the cleanup returned when nothing was opened.
func noop() {}

// serverInstructions tells the AI how to use the task tools.
func serverInstructions() string {
	return `You have access to pmtools, a task tracker that reports to Slack.

## Task lifecycle

Tasks move through: defined -> in_progress -> review -> completed, and may be
blocked at any point. Any status may follow any other.

- create_task: start tracking work. Needs a title and a Slack channel.
  A task alert is posted to the channel unless notify=false.
- update_task_status: change status and/or edit fields in one call. Add a
  progress_note (with optional sentiment_score in [-1, 1]) to explain why.
- add_progress_update: log a note without changing status.
- verify_task_completion: record how the work was verified. This ALWAYS marks
  the task completed and replaces any earlier verification.
- get_task_progress / get_tasks_by_status: read state before changing it.

## Reporting

- generate_boss_report: counts per status, recent completions (highlights) and
  blocked/overdue/due-soon work (risks). Set push=true to post it to Slack.
- push_to_slack: send an ad-hoc message, a typed message_type with data, or a
  raw payload.

## Results

Every tool returns JSON with "success". Failures carry "error_type":
validation (fix the input), not_found (check the task_id or create it).
Slack delivery problems never fail a task change; they show up under
"notification" with success=false and the number of attempts.`
}
