// Package delegation tracks units of work one actor assigns to
// another: plan gating, execution through the agent loop, and the
// automatic supervisor review that follows.
package delegation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CorpClaw/CorpClaw/internal/actor"
	"github.com/CorpClaw/CorpClaw/internal/agent"
	"github.com/CorpClaw/CorpClaw/internal/dispatch"
	"github.com/CorpClaw/CorpClaw/internal/store"
	"github.com/CorpClaw/CorpClaw/internal/tools"
)

// Task lifecycle states.
const (
	StatusPending              = "pending"
	StatusPlanning             = "planning"
	StatusAwaitingPlanApproval = "awaiting_plan_approval"
	StatusInProgress           = "in_progress"
	StatusUnderReview          = "under_review"
	StatusCompleted            = "completed"
	StatusCompletedWithRework  = "completed_with_rework"
	StatusFailed               = "failed"
	StatusCancelled            = "cancelled"
)

// Plan states.
const (
	PlanPending  = "pending"
	PlanApproved = "approved"
	PlanRejected = "rejected"
)

// MaxReworkCycles bounds how many times a supervisor review may spawn a
// follow-up task for the same piece of work.
const MaxReworkCycles = 3

const taskKind = "delegated_task"

// DevPlan is the assignee's plan for a plan-gated task.
type DevPlan struct {
	Content       string    `json:"content"`
	Status        string    `json:"status"`
	Feedback      string    `json:"feedback,omitempty"`
	RevisionCount int       `json:"revision_count"`
	SubmittedAt   time.Time `json:"submitted_at"`
}

// DiscussionEntry is one exchange on a task's discussion thread: plans,
// feedback, results, and review verdicts in the order they happened.
type DiscussionEntry struct {
	Author  string    `json:"author"`
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}

// DelegatedTask is one tracked unit of delegated work.
type DelegatedTask struct {
	ID                   string            `json:"id"`
	DelegatorID          string            `json:"delegator_id"`
	AssigneeID           string            `json:"assignee_id"`
	Description          string            `json:"description"`
	Priority             string            `json:"priority,omitempty"`
	Status               string            `json:"status"`
	PlanApprovalRequired bool              `json:"plan_approval_required"`
	Plan                 *DevPlan          `json:"plan,omitempty"`
	Discussion           []DiscussionEntry `json:"discussion,omitempty"`
	Result               string            `json:"result,omitempty"`
	ReviewNotes          string            `json:"review_notes,omitempty"`
	ReworkCycle          int               `json:"rework_cycle"`
	ReworkTaskID         string            `json:"rework_task_id,omitempty"`
	ParentTaskID         string            `json:"parent_task_id,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	StartedAt            *time.Time        `json:"started_at,omitempty"`
	CompletedAt          *time.Time        `json:"completed_at,omitempty"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// IsTerminal reports whether a status admits no further transitions.
func IsTerminal(status string) bool {
	switch status {
	case StatusCompleted, StatusCompletedWithRework, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

// StateError reports a transition a task's current state does not
// allow.
type StateError struct {
	TaskID string
	From   string
	To     string
}

func (e *StateError) Error() string {
	return fmt.Sprintf("task %s: cannot move from %s to %s", e.TaskID, e.From, e.To)
}

// Options configures an Engine.
type Options struct {
	MaxCallDepth    int
	MaxReworkCycles int
	// Registry supplies the assignee's tools. The planning phase of a
	// plan-gated task sees only its read-only tier.
	Registry *tools.Registry
	// Store persists task records when set.
	Store *store.Store
}

// DelegateOptions configures one delegation.
type DelegateOptions struct {
	// PlanGated requires an approved plan before execution starts.
	PlanGated bool
	// Priority is free-form caller metadata carried on the record.
	Priority string
}

type taskState struct {
	task *DelegatedTask
	cc   actor.CallContext
	done chan struct{}
}

// Engine owns the delegated-task lifecycle.
type Engine struct {
	roster     *actor.Roster
	dispatcher *dispatch.Dispatcher
	runner     *agent.Runner
	opts       Options

	mu    sync.Mutex
	tasks map[string]*taskState
}

// NewEngine creates a delegation engine.
func NewEngine(roster *actor.Roster, d *dispatch.Dispatcher, runner *agent.Runner, opts Options) *Engine {
	if opts.MaxReworkCycles <= 0 {
		opts.MaxReworkCycles = MaxReworkCycles
	}
	return &Engine{
		roster:     roster,
		dispatcher: d,
		runner:     runner,
		opts:       opts,
		tasks:      make(map[string]*taskState),
	}
}

// Delegate creates a task from delegator to assignee and starts it.
// Plan-gated tasks go through planning and approval first; others go
// straight to execution.
func (e *Engine) Delegate(ctx context.Context, delegatorID, assigneeID, description string, cc actor.CallContext, opts DelegateOptions) (*DelegatedTask, error) {
	if delegatorID == assigneeID {
		return nil, fmt.Errorf("actor %s cannot delegate to itself", delegatorID)
	}
	if _, ok := e.roster.Get(assigneeID); !ok {
		return nil, fmt.Errorf("unknown assignee: %s", assigneeID)
	}
	if !e.roster.Available(assigneeID) {
		return nil, fmt.Errorf("assignee %s is not available (status %s)", assigneeID, e.roster.Status(assigneeID))
	}
	if err := actor.ValidateCall(assigneeID, cc, e.opts.MaxCallDepth); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	task := &DelegatedTask{
		ID:                   uuid.NewString(),
		DelegatorID:          delegatorID,
		AssigneeID:           assigneeID,
		Description:          description,
		Priority:             opts.Priority,
		Status:               StatusPending,
		PlanApprovalRequired: opts.PlanGated,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	st := &taskState{task: task, cc: cc.Descend(assigneeID), done: make(chan struct{})}
	e.mu.Lock()
	e.tasks[task.ID] = st
	e.mu.Unlock()
	e.persist(task, false)
	slog.Info("Task delegated", "task", task.ID, "from", delegatorID, "to", assigneeID, "plan_gated", opts.PlanGated)

	if opts.PlanGated {
		e.startPlanning(ctx, st, "")
	} else {
		e.startExecution(ctx, st)
	}
	return e.Get(task.ID), nil
}

// ApprovePlan approves a submitted plan and resumes execution with the
// full tool registry.
func (e *Engine) ApprovePlan(ctx context.Context, taskID string) error {
	st, err := e.transitionPlan(taskID, PlanApproved, "")
	if err != nil {
		return err
	}
	slog.Info("Plan approved", "task", taskID)
	e.appendDiscussion(st, st.task.DelegatorID, "Plan approved.")
	e.startExecution(ctx, st)
	return nil
}

// RejectPlan sends a submitted plan back for revision with feedback.
func (e *Engine) RejectPlan(ctx context.Context, taskID, feedback string) error {
	st, err := e.transitionPlan(taskID, PlanRejected, feedback)
	if err != nil {
		return err
	}
	slog.Info("Plan rejected", "task", taskID, "revision", st.task.Plan.RevisionCount)
	e.appendDiscussion(st, st.task.DelegatorID, feedback)
	e.startPlanning(ctx, st, feedback)
	return nil
}

// transitionPlan applies an approval verdict under the lock.
func (e *Engine) transitionPlan(taskID, verdict, feedback string) (*taskState, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("unknown task: %s", taskID)
	}
	if st.task.Status != StatusAwaitingPlanApproval || st.task.Plan == nil {
		return nil, &StateError{TaskID: taskID, From: st.task.Status, To: verdict}
	}
	st.task.Plan.Status = verdict
	st.task.Plan.Feedback = feedback
	if verdict == PlanRejected {
		st.task.Plan.RevisionCount++
	}
	st.task.UpdatedAt = time.Now().UTC()
	return st, nil
}

// Cancel moves a non-terminal task to cancelled. Work already running
// on the assignee's mailbox finishes cooperatively but its outcome is
// discarded.
func (e *Engine) Cancel(taskID string) error {
	e.mu.Lock()
	st, ok := e.tasks[taskID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("unknown task: %s", taskID)
	}
	return e.transition(st, StatusCancelled)
}

// Get returns a copy of a task record, or nil when unknown.
func (e *Engine) Get(taskID string) *DelegatedTask {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.tasks[taskID]
	if !ok {
		return nil
	}
	out := *st.task
	if st.task.Plan != nil {
		plan := *st.task.Plan
		out.Plan = &plan
	}
	out.Discussion = append([]DiscussionEntry{}, st.task.Discussion...)
	return &out
}

// appendDiscussion adds one entry to the task's discussion thread.
// Finished tasks are immutable, so late entries are dropped.
func (e *Engine) appendDiscussion(st *taskState, author, content string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if IsTerminal(st.task.Status) {
		return
	}
	st.task.Discussion = append(st.task.Discussion, DiscussionEntry{
		Author:  author,
		Content: content,
		At:      time.Now().UTC(),
	})
}

// Await blocks until the task reaches a terminal state or ctx is
// cancelled, then returns the final record.
func (e *Engine) Await(ctx context.Context, taskID string) (*DelegatedTask, error) {
	e.mu.Lock()
	st, ok := e.tasks[taskID]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("unknown task: %s", taskID)
	}
	select {
	case <-st.done:
		return e.Get(taskID), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// transition moves a task to a new status. Terminal states are never
// left; reaching one closes the task's done channel and forces a
// synchronous persist.
func (e *Engine) transition(st *taskState, to string) error {
	e.mu.Lock()
	from := st.task.Status
	if IsTerminal(from) {
		e.mu.Unlock()
		return &StateError{TaskID: st.task.ID, From: from, To: to}
	}
	now := time.Now().UTC()
	st.task.Status = to
	st.task.UpdatedAt = now
	if st.task.StartedAt == nil && (to == StatusPlanning || to == StatusInProgress) {
		st.task.StartedAt = &now
	}
	terminal := IsTerminal(to)
	if terminal {
		st.task.CompletedAt = &now
	}
	snapshot := *st.task
	e.mu.Unlock()

	if terminal {
		close(st.done)
	}
	e.persist(&snapshot, terminal)
	slog.Debug("Task transition", "task", st.task.ID, "from", from, "to", to)
	return nil
}

// startPlanning enqueues the planning turn on the assignee. Only
// read-only tools are available until the plan is approved.
func (e *Engine) startPlanning(ctx context.Context, st *taskState, feedback string) {
	if err := e.transition(st, StatusPlanning); err != nil {
		slog.Warn("Planning skipped", "task", st.task.ID, "error", err)
		return
	}
	task := st.task
	instruction := fmt.Sprintf(
		"You have been assigned a task by %s:\n%s\n\nBefore doing any work, reply with a concrete step-by-step plan. Only read-only tools are available while planning.",
		task.DelegatorID, task.Description,
	)
	if feedback != "" {
		instruction += fmt.Sprintf("\n\nYour previous plan was rejected with this feedback:\n%s\nRevise the plan accordingly.", feedback)
	}

	var planningTools *tools.Registry
	if e.opts.Registry != nil {
		planningTools = e.opts.Registry.ReadOnly()
	}
	e.dispatcher.Enqueue(ctx, task.AssigneeID, func(taskCtx context.Context) (string, error) {
		res, err := e.runTurn(taskCtx, task.AssigneeID, instruction, st.cc, planningTools)
		if err != nil {
			e.transition(st, StatusFailed)
			return "", fmt.Errorf("planning turn for task %s: %w", task.ID, err)
		}
		e.submitPlan(st, res.Content)
		return res.Content, nil
	})
}

// submitPlan records the assignee's plan and parks the task for
// approval.
func (e *Engine) submitPlan(st *taskState, content string) {
	e.mu.Lock()
	revision := 0
	if st.task.Plan != nil {
		revision = st.task.Plan.RevisionCount
	}
	st.task.Plan = &DevPlan{
		Content:       content,
		Status:        PlanPending,
		RevisionCount: revision,
		SubmittedAt:   time.Now().UTC(),
	}
	e.mu.Unlock()
	e.appendDiscussion(st, st.task.AssigneeID, content)
	if err := e.transition(st, StatusAwaitingPlanApproval); err != nil {
		slog.Warn("Plan submission dropped", "task", st.task.ID, "error", err)
		return
	}
	e.persist(e.Get(st.task.ID), true)
	slog.Info("Plan submitted", "task", st.task.ID)
}

// startExecution enqueues the main work turn on the assignee with the
// full registry.
func (e *Engine) startExecution(ctx context.Context, st *taskState) {
	if err := e.transition(st, StatusInProgress); err != nil {
		slog.Warn("Execution skipped", "task", st.task.ID, "error", err)
		return
	}
	task := st.task
	instruction := fmt.Sprintf("Task from %s:\n%s", task.DelegatorID, task.Description)
	if plan := e.Get(task.ID).Plan; plan != nil && plan.Status == PlanApproved {
		instruction += fmt.Sprintf("\n\nFollow your approved plan:\n%s", plan.Content)
	}

	e.dispatcher.Enqueue(ctx, task.AssigneeID, func(taskCtx context.Context) (string, error) {
		res, err := e.runTurn(taskCtx, task.AssigneeID, instruction, st.cc, e.opts.Registry)
		if err != nil {
			e.transition(st, StatusFailed)
			return "", fmt.Errorf("execution turn for task %s: %w", task.ID, err)
		}
		e.mu.Lock()
		if IsTerminal(st.task.Status) {
			// The task ended (e.g. cancelled) while the turn was in
			// flight; the record stays as it was.
			e.mu.Unlock()
			slog.Info("Discarding result for finished task", "task", task.ID, "status", e.Get(task.ID).Status)
			return res.Content, nil
		}
		st.task.Result = res.Content
		e.mu.Unlock()
		e.appendDiscussion(st, task.AssigneeID, res.Content)
		e.startReview(ctx, st)
		return res.Content, nil
	})
}

// startReview re-invokes the delegator with a short, focused view to
// judge the result. Self-reviews and reviews by unavailable delegators
// are skipped.
func (e *Engine) startReview(ctx context.Context, st *taskState) {
	task := st.task
	if task.DelegatorID == task.AssigneeID || !e.roster.Available(task.DelegatorID) {
		e.transition(st, StatusCompleted)
		return
	}
	if err := e.transition(st, StatusUnderReview); err != nil {
		slog.Warn("Review skipped", "task", task.ID, "error", err)
		return
	}

	snapshot := e.Get(task.ID)
	instruction := fmt.Sprintf(
		"You delegated this task to %s:\n%s\n\nThey reported this result:\n%s\n\nReview the result. Reply starting with ACCEPT if it is acceptable, or REWORK followed by concrete feedback if it must be redone.",
		snapshot.AssigneeID, snapshot.Description, snapshot.Result,
	)
	e.dispatcher.Enqueue(ctx, task.DelegatorID, func(taskCtx context.Context) (string, error) {
		res, err := e.runTurn(taskCtx, task.DelegatorID, instruction, actor.NewCallContext(task.DelegatorID), nil)
		if err != nil {
			// A broken review never blocks the assignee's finished work.
			slog.Warn("Supervisor review failed, accepting result", "task", task.ID, "error", err)
			e.transition(st, StatusCompleted)
			return "", err
		}
		e.applyReview(ctx, st, res.Content)
		return res.Content, nil
	})
}

// applyReview interprets the delegator's free-text verdict with the
// keyword heuristic and either closes the task or spawns one rework
// follow-up.
func (e *Engine) applyReview(ctx context.Context, st *taskState, verdict string) {
	e.mu.Lock()
	if IsTerminal(st.task.Status) {
		e.mu.Unlock()
		slog.Info("Discarding review for finished task", "task", st.task.ID)
		return
	}
	st.task.ReviewNotes = verdict
	cycle := st.task.ReworkCycle
	e.mu.Unlock()
	e.appendDiscussion(st, st.task.DelegatorID, verdict)

	if !requestsRework(verdict) {
		e.transition(st, StatusCompleted)
		return
	}
	if cycle >= e.opts.MaxReworkCycles {
		slog.Warn("Rework limit reached, closing task", "task", st.task.ID, "cycles", cycle)
		e.transition(st, StatusCompleted)
		return
	}

	task := st.task
	now := time.Now().UTC()
	rework := &DelegatedTask{
		ID:           uuid.NewString(),
		DelegatorID:  task.DelegatorID,
		AssigneeID:   task.AssigneeID,
		Description:  fmt.Sprintf("%s\n\nReviewer feedback on the previous attempt:\n%s", task.Description, verdict),
		Priority:     task.Priority,
		Status:       StatusPending,
		ReworkCycle:  cycle + 1,
		ParentTaskID: task.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	reworkState := &taskState{
		task: rework,
		cc:   actor.NewCallContext(task.DelegatorID).Descend(task.AssigneeID),
		done: make(chan struct{}),
	}
	e.mu.Lock()
	e.tasks[rework.ID] = reworkState
	st.task.ReworkTaskID = rework.ID
	e.mu.Unlock()
	e.persist(rework, false)

	if err := e.transition(st, StatusCompletedWithRework); err != nil {
		slog.Warn("Rework transition dropped", "task", task.ID, "error", err)
	}
	slog.Info("Rework task spawned", "task", task.ID, "rework", rework.ID, "cycle", rework.ReworkCycle)
	e.startExecution(ctx, reworkState)
}

func (e *Engine) runTurn(ctx context.Context, actorID, instruction string, cc actor.CallContext, registry *tools.Registry) (*agent.TurnResult, error) {
	a, _ := e.roster.Get(actorID)
	return e.runner.RunTurn(ctx, agent.TurnRequest{
		ActorID: actorID,
		SystemPrompt: fmt.Sprintf("You are %s, the %s. Work on the tasks you are given and report results plainly.",
			a.DisplayName, a.Role),
		Instruction:    instruction,
		Call:           cc,
		ConversationID: actorID,
		Privileged:     a.Tier == actor.TierPrivileged,
		Registry:       registry,
	})
}

// requestsRework applies the keyword heuristic to a review reply.
// Anything that is not an explicit rework request counts as acceptance.
func requestsRework(verdict string) bool {
	v := strings.ToLower(verdict)
	return strings.Contains(v, "rework") || strings.Contains(v, "re-delegate") || strings.Contains(v, "redelegate")
}

func (e *Engine) persist(task *DelegatedTask, sync bool) {
	if e.opts.Store == nil {
		return
	}
	var err error
	if sync {
		err = e.opts.Store.PutSync(taskKind, task.ID, task)
	} else {
		err = e.opts.Store.Put(taskKind, task.ID, task)
	}
	if err != nil {
		slog.Warn("Task persistence failed", "task", task.ID, "error", err)
	}
}
