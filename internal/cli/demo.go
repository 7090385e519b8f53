package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/CorpClaw/CorpClaw/internal/actor"
	"github.com/CorpClaw/CorpClaw/internal/agent"
	"github.com/CorpClaw/CorpClaw/internal/comms"
	"github.com/CorpClaw/CorpClaw/internal/config"
	"github.com/CorpClaw/CorpClaw/internal/delegation"
	"github.com/CorpClaw/CorpClaw/internal/dispatch"
	"github.com/CorpClaw/CorpClaw/internal/provider"
	"github.com/CorpClaw/CorpClaw/internal/store"
	"github.com/CorpClaw/CorpClaw/internal/stream"
	"github.com/CorpClaw/CorpClaw/internal/tools"
	"github.com/CorpClaw/CorpClaw/internal/usage"
)

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Run an offline end-to-end demo with a scripted model",
	RunE:  runDemo,
}

// runDemo wires the full stack against scripted providers: a direct
// message, a plan-gated delegation with supervisor review, and the
// call-chain guard rejecting a cycle.
func runDemo(cmd *cobra.Command, args []string) error {
	printHeader("🏢 CorpClaw Demo")
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	roster := actor.NewRoster()
	for _, a := range []actor.Actor{
		{ID: "ceo", DisplayName: "Alex", Role: "Chief Executive Officer", Tier: actor.TierPrivileged},
		{ID: "cfo", DisplayName: "Blake", Role: "Chief Financial Officer", Tier: actor.TierSenior},
		{ID: "eng", DisplayName: "Casey", Role: "Engineer"},
	} {
		if err := roster.Add(a); err != nil {
			return err
		}
	}

	dir, err := os.MkdirTemp("", "corpclaw-demo-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)
	db, err := store.OpenWithInterval(filepath.Join(dir, "records.db"), cfg.Store.FlushInterval)
	if err != nil {
		return err
	}
	defer db.Close(ctx)

	registry := tools.NewRegistry()
	notes := tools.NewNoteTool()
	registry.Register(tools.NewCurrentTimeTool())
	registry.Register(notes)

	tracker := usage.NewTracker()
	dispatcher := dispatch.NewDispatcher()

	// Direct message: ceo asks the cfo a question. The primary provider
	// is down, so the fallback chain answers through the secondary.
	downProvider := provider.NewScripted(cfg.Model.Name,
		provider.ScriptedResponse{Err: &provider.Error{Provider: "primary", Err: fmt.Errorf("service unavailable")}},
	)
	backupProvider := provider.NewScripted(cfg.Model.Name,
		provider.ScriptedResponse{
			Content: "Q3 spend is 4% under plan; the cloud bill is the main saving.",
			Usage:   provider.Usage{PromptTokens: 180, CompletionTokens: 30},
		},
	)
	chatProvider, err := provider.NewFallback([]provider.LLMProvider{downProvider, backupProvider})
	if err != nil {
		return err
	}
	chatRunner := agent.NewRunner(chatProvider, nil, tracker, agent.LoopOptions{
		MaxIterations:           cfg.Model.MaxToolIterations,
		PrivilegedMaxIterations: cfg.Model.PrivilegedMaxIterations,
		TokenBudget:             cfg.Context.TokenBudget,
	})
	messages := comms.NewService(roster, dispatcher, chatRunner, comms.Options{
		Timeout:      cfg.Org.MessageTimeout,
		MaxCallDepth: cfg.Org.MaxCallDepth,
		Registry:     registry,
		Store:        db,
	})

	fmt.Println(color.YellowString("→ ceo asks cfo about the Q3 budget"))
	msg, err := messages.Send(ctx, "ceo", "cfo", "How is the Q3 budget tracking?", actor.NewCallContext("ceo"))
	if err != nil {
		return err
	}
	fmt.Printf("  %s [%s]\n\n", color.GreenString(msg.Response), msg.Status)

	// The guard refuses the return call inside the same chain.
	fmt.Println(color.YellowString("→ cfo tries to call ceo back within the same chain"))
	if _, err := messages.Send(ctx, "cfo", "ceo", "What did you mean?", actor.NewCallContext("ceo").Descend("cfo")); err != nil {
		fmt.Printf("  %s\n\n", color.RedString(err.Error()))
	}

	// Plan-gated delegation with supervisor review.
	workProvider := provider.NewScripted(cfg.Model.Name,
		provider.ScriptedResponse{Content: "Plan: 1) profile the report query 2) add the missing index 3) verify latency"},
		provider.ScriptedResponse{Content: "<tool_call>\n<tool>take_note</tool>\n<text>index added on reports.created_at</text>\n</tool_call>"},
		provider.ScriptedResponse{Content: "Report latency is down from 2.1s to 180ms."},
		provider.ScriptedResponse{Content: "ACCEPT, good result."},
	)
	workRunner := agent.NewRunner(workProvider, nil, tracker, agent.LoopOptions{
		MaxIterations: cfg.Model.MaxToolIterations,
	})
	engine := delegation.NewEngine(roster, dispatcher, workRunner, delegation.Options{
		MaxCallDepth:    cfg.Org.MaxCallDepth,
		MaxReworkCycles: cfg.Org.MaxReworkCycles,
		Registry:        registry,
		Store:           db,
	})

	fmt.Println(color.YellowString("→ cfo delegates a plan-gated task to eng"))
	task, err := engine.Delegate(ctx, "cfo", "eng", "Speed up the monthly report query.", actor.NewCallContext("cfo"), delegation.DelegateOptions{PlanGated: true})
	if err != nil {
		return err
	}
	task = awaitStatus(engine, task.ID, delegation.StatusAwaitingPlanApproval)
	fmt.Printf("  plan submitted: %s\n", color.CyanString(task.Plan.Content))

	fmt.Println(color.YellowString("→ cfo approves the plan"))
	if err := engine.ApprovePlan(ctx, task.ID); err != nil {
		return err
	}
	final, err := engine.Await(ctx, task.ID)
	if err != nil {
		return err
	}
	fmt.Printf("  result: %s [%s]\n", color.GreenString(final.Result), final.Status)
	fmt.Printf("  notes taken during execution: %v\n\n", notes.Notes())

	// Streamed output with hidden reasoning filtered on the fly.
	fmt.Println(color.YellowString("→ ceo asks about runway, streamed"))
	streamProvider := provider.NewScripted(cfg.Model.Name,
		provider.ScriptedResponse{Content: "<thinking>recompute burn against the latest raise</thinking>Runway is 19 months at the current burn rate."},
	)
	filter := stream.NewFilter(stream.DefaultPairs())
	fmt.Print("  ")
	_, err = streamProvider.ChatStream(ctx, &provider.ChatRequest{
		Model:    cfg.Model.Name,
		Messages: []provider.Message{{Role: "user", Content: "How much runway do we have?"}},
	}, func(chunk string) {
		fmt.Print(color.GreenString(filter.Feed(chunk)))
	})
	if err != nil {
		return err
	}
	fmt.Println(color.GreenString(filter.Flush()))
	fmt.Println()

	fmt.Println(color.YellowString("→ token usage"))
	for actorID, tot := range tracker.Snapshot() {
		fmt.Printf("  %-4s prompt=%d completion=%d calls=%d\n", actorID, tot.PromptTokens, tot.CompletionTokens, tot.Calls)
	}

	return dispatcher.Drain(ctx)
}

// awaitStatus polls until the task reaches the wanted status. The demo
// scripts always get there, so a short poll is enough.
func awaitStatus(e *delegation.Engine, taskID, status string) *delegation.DelegatedTask {
	for {
		if task := e.Get(taskID); task != nil && task.Status == status {
			return task
		}
		time.Sleep(5 * time.Millisecond)
	}
}
