package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/oklog/ulid/v2"

	"teamforge/internal/adapter/directory"
	"teamforge/internal/adapter/llm"
	"teamforge/internal/adapter/tool"
	"teamforge/internal/domain"
	"teamforge/internal/infra/config"
	"teamforge/internal/infra/logger"
	"teamforge/internal/infra/tracer"
	"teamforge/internal/security"
	"teamforge/internal/usecase/contextwindow"
	"teamforge/internal/usecase/eventbus"
	"teamforge/internal/usecase/orchestrator"
	"teamforge/internal/usecase/planner"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "--help", "-h", "help":
			showUsage()
			return
		}
	}

	if len(os.Args) < 2 {
		showUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = runRun(os.Args[2:])
	case "plan":
		err = runPlan(os.Args[2:])
	case "agents":
		err = runAgents(os.Args[2:])
	case "usage":
		err = runUsage(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\nRun 'teamforge --help' for usage information.\n", os.Args[1])
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", os.Args[1], err)
		os.Exit(1)
	}
}

func showUsage() {
	fmt.Println(`teamforge - multi-agent task orchestration

USAGE:
    teamforge COMMAND [FLAGS] [ARGS]

COMMANDS:
    run "task..."     Plan and execute a task with your hired agents
    plan "task..."    Analyze a task and print the execution plan (dry run)
    agents            Manage the agent directory
                      Subcommands: catalog, list, add, hire, release
    usage             Show your accumulated token usage and cost

COMMON FLAGS:
    --config PATH     Config file path (default: ./teamforge.yaml)
    --user ID         Acting user id (default: local)

EXAMPLES:
    teamforge agents add ag-arch "Archie" architect openai gpt-4o
    teamforge agents hire ag-arch
    teamforge plan "Build a web app with login and a database"
    teamforge run  "Build a web app with login and a database"
    teamforge usage

CONFIGURATION:
    Config file: ./teamforge.yaml (TEAMFORGE_CONFIG overrides the path)
    Provider API keys are read from the environment variables named in
    the providers' api_key_env config entries.`)
}

// app holds the pieces every command needs. Close releases them in reverse
// construction order.
type app struct {
	cfg     config.Config
	logger  *slog.Logger
	store   *directory.Store
	audit   domain.AuditLogger
	closers []func() error
}

func newApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log, closeLog, err := logger.New(cfg.Logger)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(log)

	a := &app{cfg: cfg, logger: log}
	a.closers = append(a.closers, closeLog)

	shutdownTracer, err := tracer.Setup(context.Background(), cfg.Tracer)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.closers = append(a.closers, func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdownTracer(ctx)
	})

	if cfg.Audit.Enabled {
		audit, err := security.NewFileAuditLogger(cfg.Audit.Path)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.audit = audit
		a.closers = append(a.closers, audit.Close)
	} else {
		a.audit = security.NopAuditLogger{}
	}

	store, err := directory.New(cfg.Directory.Path, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.store = store
	a.closers = append(a.closers, store.Close)

	return a, nil
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			fmt.Fprintf(os.Stderr, "shutdown: %v\n", err)
		}
	}
}

func (a *app) newPlanner() *planner.Planner {
	return planner.NewPlanner(
		planner.NewAnalyzer(),
		planner.NewResolver(a.store),
		a.store,
		a.cfg.Orchestrator,
		a.audit,
		a.logger,
	)
}

func (a *app) newOrchestrator() (*orchestrator.Orchestrator, error) {
	if len(a.cfg.Providers) == 0 {
		return nil, fmt.Errorf("no providers configured; add a providers entry to the config file")
	}
	providers, err := llm.NewRegistryFromConfig(a.cfg.Providers, a.logger)
	if err != nil {
		return nil, err
	}

	var counter contextwindow.TokenCounter
	if a.cfg.ContextWindow.Counter == "tiktoken" {
		counter, err = contextwindow.NewTiktokenCounter("gpt-4o")
		if err != nil {
			return nil, fmt.Errorf("tiktoken counter: %w", err)
		}
	}
	window := contextwindow.NewManager(counter, nil, a.logger)

	guard := security.NewGuard(security.GuardOptions{
		MaxInputLength: a.cfg.Guard.MaxInputLength,
		StripMarkup:    a.cfg.Guard.StripMarkup,
		BlockThreshold: domain.ParseRiskLevel(a.cfg.Guard.BlockThreshold),
	}, a.logger)

	var regLogger *slog.Logger
	if a.cfg.Tools.SchemaValidate {
		regLogger = a.logger
	}
	registry := tool.NewRegistry(regLogger)
	for _, t := range []domain.Tool{tool.NewCalculatorTool(), tool.NewClockTool()} {
		if err := registry.Register(t); err != nil {
			return nil, err
		}
	}
	invoker := tool.NewInvoker(registry, a.cfg.Tools, a.audit, a.logger)

	return orchestrator.New(
		providers,
		invoker,
		window,
		guard,
		a.audit,
		usageRecorder{store: a.store, logger: a.logger},
		a.cfg.Orchestrator,
		a.logger,
	), nil
}

// usageRecorder persists per-call token usage to the directory's ledger.
type usageRecorder struct {
	store  *directory.Store
	logger *slog.Logger
}

func (u usageRecorder) LogUsage(ctx context.Context, userID, agentID, sessionID string, usage domain.Usage, cost float64) {
	err := u.store.RecordUsage(ctx, directory.UsageRecord{
		UserID:    userID,
		AgentID:   agentID,
		SessionID: sessionID,
		Usage:     usage,
		Cost:      cost,
	})
	if err != nil {
		u.logger.Warn("usage record failed", "user_id", userID, "error", err)
	}
}

func runRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "teamforge.yaml", "config file path")
	user := fs.String("user", "local", "acting user id")
	session := fs.String("session", "", "session id (default: generated)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	task := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if task == "" {
		return fmt.Errorf("no task given; usage: teamforge run \"task description\"")
	}
	if *session == "" {
		*session = newSessionID()
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	orch, err := a.newOrchestrator()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pl := a.newPlanner()
	plan, err := pl.CreatePlan(ctx, *user, task)
	if err != nil {
		return err
	}
	if err := pl.NegotiateMissing(ctx, plan, promptUpsell); err != nil {
		return err
	}
	if len(plan.AssignedAgents) == 0 {
		return fmt.Errorf("no agents available for this task; run 'teamforge agents catalog' and hire some")
	}

	fmt.Printf("plan %s: %d agents, estimated %s / $%.2f\n",
		plan.ID, len(plan.AssignedAgents), plan.EstimatedDuration, plan.EstimatedCost)

	hub := eventbus.NewHub(a.cfg.Orchestrator.EventBuffer, a.logger)
	stream := hub.Session(*session)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range stream.Events() {
			printEvent(ev)
		}
	}()

	execErr := orch.ExecutePlan(ctx, *user, *session, plan, stream)
	hub.Close()
	<-done

	usage, cost, err := a.store.UsageTotals(context.Background(), *user)
	if err == nil {
		fmt.Printf("session total: %d tokens, lifetime spend $%.4f\n", usage.TotalTokens, cost)
	}
	return execErr
}

func runPlan(args []string) error {
	fs := flag.NewFlagSet("plan", flag.ExitOnError)
	configPath := fs.String("config", "teamforge.yaml", "config file path")
	user := fs.String("user", "local", "acting user id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	task := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if task == "" {
		return fmt.Errorf("no task given; usage: teamforge plan \"task description\"")
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	plan, err := a.newPlanner().CreatePlan(context.Background(), *user, task)
	if err != nil {
		return err
	}
	out, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runAgents(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: teamforge agents catalog|list|add|hire|release")
	}
	sub, rest := args[0], args[1:]

	fs := flag.NewFlagSet("agents "+sub, flag.ExitOnError)
	configPath := fs.String("config", "teamforge.yaml", "config file path")
	user := fs.String("user", "local", "acting user id")
	if err := fs.Parse(rest); err != nil {
		return err
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.Close()
	ctx := context.Background()

	switch sub {
	case "catalog":
		agents, err := a.store.Catalog(ctx)
		if err != nil {
			return err
		}
		printAgents(agents)
	case "list":
		agents, err := a.store.ListAccessibleAgents(ctx, *user)
		if err != nil {
			return err
		}
		printAgents(agents)
	case "add":
		pos := fs.Args()
		if len(pos) != 5 {
			return fmt.Errorf("usage: teamforge agents add ID NAME ROLE PROVIDER MODEL")
		}
		return a.store.AddAgent(ctx, domain.AgentDescriptor{
			ID: pos[0], Name: pos[1], Role: pos[2], Provider: pos[3], Model: pos[4],
		})
	case "hire":
		if len(fs.Args()) != 1 {
			return fmt.Errorf("usage: teamforge agents hire AGENT_ID")
		}
		return a.store.Hire(ctx, *user, fs.Args()[0])
	case "release":
		if len(fs.Args()) != 1 {
			return fmt.Errorf("usage: teamforge agents release AGENT_ID")
		}
		return a.store.Release(ctx, *user, fs.Args()[0])
	default:
		return fmt.Errorf("unknown agents subcommand: %s", sub)
	}
	return nil
}

func runUsage(args []string) error {
	fs := flag.NewFlagSet("usage", flag.ExitOnError)
	configPath := fs.String("config", "teamforge.yaml", "config file path")
	user := fs.String("user", "local", "acting user id")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(*configPath)
	if err != nil {
		return err
	}
	defer a.Close()

	usage, cost, err := a.store.UsageTotals(context.Background(), *user)
	if err != nil {
		return err
	}
	fmt.Printf("user %s: prompt=%d completion=%d total=%d tokens, $%.4f\n",
		*user, usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens, cost)
	return nil
}

// promptUpsell asks on stdin whether to add a missing skill to the plan.
func promptUpsell(ctx context.Context, req domain.UpsellRequest) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	fmt.Printf("No hired agent covers %s (%s). %s\nAdd %s (%s) to this plan? [y/N] ",
		req.Skill, req.Role, req.Reason, req.AgentName, req.AgentID)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false, nil
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func printAgents(agents []domain.AgentDescriptor) {
	if len(agents) == 0 {
		fmt.Println("(no agents)")
		return
	}
	for _, ag := range agents {
		fmt.Printf("%-12s %-16s %-10s %s/%s\n", ag.ID, ag.Name, ag.Role, ag.Provider, ag.Model)
	}
}

func printEvent(ev eventbus.Event) {
	ts := ev.Timestamp.Format("15:04:05")
	switch ev.Kind {
	case eventbus.KindStatus:
		fmt.Printf("%s  %-14s %-10s %3d%%  %s\n",
			ts, ev.Status.AgentName, ev.Status.Status, ev.Status.Progress, ev.Status.CurrentTask)
	case eventbus.KindCommunication:
		to := ""
		if ev.Comm.To != "" {
			to = " -> " + ev.Comm.To
		}
		fmt.Printf("%s  [%s] %s%s: %s\n", ts, ev.Comm.Type, ev.Comm.From, to, ev.Comm.Message)
	case eventbus.KindToken:
		fmt.Printf("%s  tokens: %d (%s/%s) $%.4f\n",
			ts, ev.Token.Tokens.TotalTokens, ev.Token.Provider, ev.Token.Model, ev.Token.Cost)
	}
}

func newSessionID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
