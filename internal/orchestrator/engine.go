// Package orchestrator runs the autonomous task loop: plan a goal into
// agent-assigned subtasks, execute them in order with bounded
// self-correction, pass context between agents through handoffs, and
// distill the finished task into experience.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/cloneos/cloneos/internal/experience"
	"github.com/cloneos/cloneos/internal/gateway"
	"github.com/cloneos/cloneos/internal/ledger"
	"github.com/cloneos/cloneos/internal/observability"
	"github.com/cloneos/cloneos/internal/profile"
	"github.com/cloneos/cloneos/internal/task"
	"github.com/cloneos/cloneos/internal/workspace"
)

const (
	// maxAttempts bounds the execute/verify loop per subtask: one
	// initial attempt plus one correction retry.
	maxAttempts = 2

	// planningSample is how many recent experiences seed the planner.
	planningSample = 5
)

// ErrMalformedPlan means the planner response could not be used.
var ErrMalformedPlan = errors.New("planner returned no usable plan")

// ErrRunInProgress is returned by Refine and Intervene while a run is
// executing. Both operate on whole-task snapshots, so a steering write
// landing between two of the run's registry writes would be overwritten
// by the next one. Steering waits for the run to finish; the finished
// task stays active until the next goal is submitted.
var ErrRunInProgress = errors.New("a task run is in progress")

// Dependencies holds the subsystems the engine needs.
// Workspace and Metrics are optional (nil-safe).
type Dependencies struct {
	Gateway     *gateway.Gateway
	Registry    *task.Registry
	Ledger      *ledger.Ledger
	Experiences *experience.Log
	Distiller   *experience.Distiller
	Logger      *observability.Logger

	Workspace *workspace.Workspace
	Metrics   *observability.MetricsCollector

	// Profile supplies the persona at call time. Nil means the stock
	// persona.
	Profile func() profile.Profile
}

// Engine drives orchestration runs.
type Engine struct {
	deps Dependencies

	// running marks an in-flight Run; Refine and Intervene refuse to
	// write while it is set. steerMu serializes the steering calls
	// against each other, which also write whole-task snapshots.
	running atomic.Bool
	steerMu sync.Mutex
}

// New creates an engine.
func New(deps Dependencies) *Engine {
	if deps.Profile == nil {
		deps.Profile = func() profile.Profile { return profile.Default() }
	}
	return &Engine{deps: deps}
}

// plan is the typed planner output after boundary validation.
type plan struct {
	Reasoning string `json:"reasoning"`
	Agents    []struct {
		Name           string `json:"name"`
		Specialization string `json:"specialization"`
	} `json:"agents"`
	Subtasks []struct {
		Title       string `json:"title"`
		Description string `json:"description"`
		AgentName   string `json:"agentName"`
	} `json:"subtasks"`
}

// verdict is the verifier output.
type verdict struct {
	Valid      bool   `json:"valid"`
	Critique   string `json:"critique"`
	Suggestion string `json:"suggestion"`
}

// Run plans and executes a goal end to end. The returned task reflects
// the final state; it is also readable from the registry throughout the
// run. A planning failure fails the task; subtask failures do not.
func (e *Engine) Run(ctx context.Context, goal string) (*task.Task, error) {
	t := &task.Task{
		ID:        "task_" + uuid.New().String()[:8],
		Goal:      goal,
		Status:    task.StatusPlanning,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.deps.Registry.Begin(t); err != nil {
		return nil, err
	}
	e.running.Store(true)
	defer e.running.Store(false)
	e.incrementMetric("orchestrator.runs")
	e.deps.Ledger.Append(ledger.CategoryThought, fmt.Sprintf("Breaking down goal: %s", goal))

	p, err := e.plan(ctx, goal)
	if err != nil {
		t.Advance(task.StatusFailed)
		e.update(t)
		e.deps.Ledger.Append(ledger.CategoryThought, "Planning failed: "+err.Error())
		e.deps.Logger.Error("planning failed", "task_id", t.ID, "error", err.Error())
		return t.Clone(), err
	}

	t.Reasoning = p.Reasoning
	for i, a := range p.Agents {
		t.Agents = append(t.Agents, task.Agent{
			ID:             fmt.Sprintf("agent_%d", i+1),
			Name:           a.Name,
			Specialization: task.NormalizeSpecialization(a.Specialization),
			Status:         task.AgentIdle,
		})
	}
	for i, st := range p.Subtasks {
		sub := task.Subtask{
			ID:          fmt.Sprintf("subtask_%d", i+1),
			Title:       st.Title,
			Description: st.Description,
			Status:      task.SubtaskPending,
		}
		if agent := t.AgentByName(st.AgentName); agent != nil {
			sub.AgentID = agent.ID
		}
		t.Subtasks = append(t.Subtasks, sub)
	}

	t.Advance(task.StatusExecuting)
	if err := e.update(t); err != nil {
		return nil, err
	}
	e.deps.Ledger.Append(ledger.CategoryThought,
		fmt.Sprintf("Plan ready: %d agents, %d subtasks", len(t.Agents), len(t.Subtasks)))

	for i := range t.Subtasks {
		if ctx.Err() != nil {
			break
		}
		if t.Subtasks[i].AgentID == "" {
			e.deps.Logger.Subtask(t.ID, i+1, len(t.Subtasks), "skipping subtask with no matching agent",
				"title", t.Subtasks[i].Title)
			continue
		}
		e.runSubtask(ctx, t, i)
		if err := e.update(t); err != nil {
			// The user replaced this task mid-run. Stop writing.
			return nil, err
		}
	}

	t.Advance(task.StatusCompleted)
	if err := e.update(t); err != nil {
		return nil, err
	}

	e.extractCode(t)
	e.distill(ctx, t)
	return t.Clone(), nil
}

func (e *Engine) plan(ctx context.Context, goal string) (*plan, error) {
	persona := e.deps.Profile()
	var b strings.Builder
	fmt.Fprintf(&b, "Decompose this goal into a team of specialist agents and ordered subtasks.\nGoal: %s\n\n", goal)
	fmt.Fprintf(&b, "Specializations: researcher, coder, debugger, architect, analyst.\n")
	if summary := experience.Summarize(e.deps.Experiences.Recent(planningSample)); summary != "" {
		b.WriteString("\n" + summary)
	}

	var p plan
	schema := `{"reasoning": string, "agents": [{"name": string, "specialization": string}], "subtasks": [{"title": string, "description": string, "agentName": string}]}`
	err := e.deps.Gateway.GenerateStructured(ctx, b.String()+
		"\nYou are planning on behalf of this persona:\n"+persona.SystemInstruction(), schema, &p)
	if err != nil {
		return nil, err
	}
	if len(p.Subtasks) == 0 || len(p.Agents) == 0 {
		return nil, ErrMalformedPlan
	}
	for _, st := range p.Subtasks {
		if strings.TrimSpace(st.Title) == "" {
			return nil, ErrMalformedPlan
		}
	}
	return &p, nil
}

// runSubtask drives one subtask through the execute/verify loop,
// mutating t in place. Failures stay local to the subtask.
func (e *Engine) runSubtask(ctx context.Context, t *task.Task, i int) {
	st := &t.Subtasks[i]
	agent := t.AgentByID(st.AgentID)

	st.Status = task.SubtaskRunning
	agent.Status = task.AgentWorking
	e.update(t)
	e.deps.Ledger.Append(ledger.CategoryAction,
		fmt.Sprintf("%s started: %s", agent.Name, st.Title))
	e.deps.Logger.Subtask(t.ID, i+1, len(t.Subtasks), "executing subtask",
		"title", st.Title, "agent", agent.Name)

	hint := ""
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		result, err := e.execute(ctx, t, st, agent, hint)
		if err != nil {
			e.failSubtask(t, st, agent, "execution failed: "+err.Error())
			return
		}
		st.Result = result

		v, err := e.verify(ctx, st, result)
		if err != nil {
			e.failSubtask(t, st, agent, "verification failed: "+err.Error())
			return
		}
		if v.Valid {
			e.completeSubtask(ctx, t, st, agent, result)
			return
		}

		if attempt == maxAttempts {
			e.failSubtask(t, st, agent, "result rejected after correction: "+v.Critique)
			return
		}
		st.FeedbackLoop = append(st.FeedbackLoop, task.FeedbackEntry{
			Attempt:    attempt,
			Type:       task.FeedbackCorrection,
			Critique:   v.Critique,
			Suggestion: v.Suggestion,
			Timestamp:  time.Now().UTC(),
		})
		st.Status = task.SubtaskRetrying
		hint = v.Suggestion
		e.incrementMetric("orchestrator.retries")
		e.recordMetric(observability.MetricRetries, 1, observability.Labels{"task_id": t.ID})
		e.update(t)
		e.deps.Ledger.Append(ledger.CategoryAction,
			fmt.Sprintf("%s retrying %q: %s", agent.Name, st.Title, v.Critique))
		st.Status = task.SubtaskRunning
	}
}

func (e *Engine) execute(ctx context.Context, t *task.Task, st *task.Subtask, agent *task.Agent, hint string) (string, error) {
	persona := e.deps.Profile()
	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, a %s agent working toward: %s\n\n", agent.Name, agent.Specialization, t.Goal)
	fmt.Fprintf(&b, "Your subtask: %s\n%s\n", st.Title, st.Description)
	if len(t.SharedInsights) > 0 {
		fmt.Fprintf(&b, "\nContext from teammates:\n%s\n", strings.Join(t.SharedInsights, "\n"))
	}
	if hint != "" {
		fmt.Fprintf(&b, "\nApply this correction: %s\n", hint)
	}
	b.WriteString("\nProduce the complete result of the subtask.")
	return e.deps.Gateway.GenerateReasoned(ctx, b.String(), persona.SystemInstruction())
}

func (e *Engine) verify(ctx context.Context, st *task.Subtask, result string) (*verdict, error) {
	prompt := fmt.Sprintf("Verify whether this result fulfils the subtask.\nSubtask: %s\n%s\n\nResult:\n%s",
		st.Title, st.Description, result)
	var v verdict
	err := e.deps.Gateway.GenerateStructuredFast(ctx, prompt,
		`{"valid": bool, "critique": string, "suggestion": string}`, &v)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (e *Engine) completeSubtask(ctx context.Context, t *task.Task, st *task.Subtask, agent *task.Agent, result string) {
	// Handoff is best effort: a gateway failure here costs the synopsis,
	// not the subtask.
	synopsis, err := e.deps.Gateway.Generate(ctx,
		fmt.Sprintf("Summarize in two sentences what was accomplished and what the next agent needs to know.\n\n%s", result), "")
	if err != nil {
		e.deps.Logger.Warn("handoff failed", "subtask", st.ID, "error", err.Error())
		synopsis = ""
	}
	if s := strings.TrimSpace(synopsis); s != "" {
		st.Handoff = s
		t.SharedInsights = append(t.SharedInsights, fmt.Sprintf("[%s] %s", agent.Name, s))
		e.deps.Ledger.Append(ledger.CategorySync,
			fmt.Sprintf("%s handed off: %s", agent.Name, s))
	}

	st.Status = task.SubtaskCompleted
	agent.Status = task.AgentDone
	e.update(t)
	e.deps.Ledger.Append(ledger.CategoryAction,
		fmt.Sprintf("%s completed: %s", agent.Name, st.Title))
}

func (e *Engine) failSubtask(t *task.Task, st *task.Subtask, agent *task.Agent, reason string) {
	st.Status = task.SubtaskFailed
	agent.Status = task.AgentFailed
	e.update(t)
	e.incrementMetric("orchestrator.subtask_failures")
	e.deps.Ledger.Append(ledger.CategoryAction,
		fmt.Sprintf("%s failed %q: %s", agent.Name, st.Title, reason))
	e.deps.Logger.Warn("subtask failed", "task_id", t.ID, "subtask", st.ID, "reason", reason)
}

func (e *Engine) distill(ctx context.Context, t *task.Task) {
	exp, err := e.deps.Distiller.Distill(ctx, t)
	if err != nil {
		e.deps.Logger.Warn("distillation skipped", "task_id", t.ID, "error", err.Error())
		return
	}
	e.deps.Experiences.Add(exp)
	e.recordMetric(observability.MetricLessons, float64(len(exp.Lessons)), observability.Labels{"task_id": t.ID})
	e.deps.Ledger.Append(ledger.CategoryLearning,
		fmt.Sprintf("Distilled %q (%s): %d lessons", t.Goal, exp.Outcome, len(exp.Lessons)))
}

func (e *Engine) extractCode(t *task.Task) {
	if e.deps.Workspace == nil {
		return
	}
	for _, st := range t.Subtasks {
		if st.Status != task.SubtaskCompleted {
			continue
		}
		if files := e.deps.Workspace.Extract(st.Title, st.Result); len(files) > 0 {
			e.deps.Ledger.Append(ledger.CategoryAction,
				fmt.Sprintf("Saved %d code file(s) from %q", len(files), st.Title))
		}
	}
}

// update pushes the task into the registry. A stale write means the task
// was replaced; the error propagates so the run loop can stop.
func (e *Engine) update(t *task.Task) error {
	if err := e.deps.Registry.Update(t); err != nil {
		e.deps.Logger.Warn("dropping write to replaced task", "task_id", t.ID)
		return err
	}
	return nil
}

func (e *Engine) incrementMetric(name string) {
	if e.deps.Metrics != nil {
		e.deps.Metrics.Increment(name)
	}
}

func (e *Engine) recordMetric(mt observability.MetricType, v float64, labels observability.Labels) {
	if e.deps.Metrics != nil {
		e.deps.Metrics.Record(mt, v, labels)
	}
}
