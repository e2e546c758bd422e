package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cloneos/cloneos/internal/ledger"
	"github.com/cloneos/cloneos/internal/task"
)

// Refine re-runs a completed subtask through an optimization pass. The
// critique is advisory: there is no validity check, the re-execution is
// unconditional, and the correction bound is untouched. The subtask
// returns to completed with the improved result; if the re-execution
// fails, the previous result stands.
func (e *Engine) Refine(ctx context.Context, taskID, subtaskID string) (*task.Task, error) {
	e.steerMu.Lock()
	defer e.steerMu.Unlock()
	t, st, agent, err := e.lookupSubtask(taskID, subtaskID)
	if err != nil {
		return nil, err
	}
	if st.Status != task.SubtaskCompleted {
		return nil, fmt.Errorf("subtask %q is %s, refine needs a completed one", subtaskID, st.Status)
	}

	var critique struct {
		Critique   string `json:"critique"`
		Suggestion string `json:"suggestion"`
	}
	prompt := fmt.Sprintf("Suggest one concrete improvement to this result.\nSubtask: %s\n\nResult:\n%s",
		st.Title, st.Result)
	if err := e.deps.Gateway.GenerateStructuredFast(ctx, prompt,
		`{"critique": string, "suggestion": string}`, &critique); err != nil {
		return nil, err
	}

	st.FeedbackLoop = append(st.FeedbackLoop, task.FeedbackEntry{
		Attempt:    len(st.FeedbackLoop) + 1,
		Type:       task.FeedbackOptimization,
		Critique:   critique.Critique,
		Suggestion: critique.Suggestion,
		Timestamp:  time.Now().UTC(),
	})
	st.Status = task.SubtaskRetrying
	if err := e.update(t); err != nil {
		return nil, err
	}
	e.deps.Ledger.Append(ledger.CategoryAction,
		fmt.Sprintf("Refining %q: %s", st.Title, critique.Suggestion))

	result, err := e.execute(ctx, t, st, agent, critique.Suggestion)
	if err != nil {
		// Keep the previous result; the subtask stays completed.
		st.Status = task.SubtaskCompleted
		e.update(t)
		return nil, err
	}
	st.Result = result
	st.Status = task.SubtaskCompleted
	if err := e.update(t); err != nil {
		return nil, err
	}
	return t.Clone(), nil
}

// Intervene lets the user steer a subtask directly. The subtask passes
// through a transient debugging state, then re-executes with the user's
// directive as the correction hint, bypassing the verification bound.
func (e *Engine) Intervene(ctx context.Context, taskID, subtaskID, directive string) (*task.Task, error) {
	if strings.TrimSpace(directive) == "" {
		return nil, fmt.Errorf("intervention needs a directive")
	}
	e.steerMu.Lock()
	defer e.steerMu.Unlock()
	t, st, agent, err := e.lookupSubtask(taskID, subtaskID)
	if err != nil {
		return nil, err
	}

	st.Status = task.SubtaskDebugging
	agent.Status = task.AgentWorking
	if err := e.update(t); err != nil {
		return nil, err
	}
	e.deps.Ledger.Append(ledger.CategoryAction,
		fmt.Sprintf("Manual intervention on %q: %s", st.Title, directive))

	result, err := e.execute(ctx, t, st, agent, directive)
	if err != nil {
		e.failSubtask(t, st, agent, "intervention failed: "+err.Error())
		return nil, err
	}
	st.Result = result
	st.Status = task.SubtaskCompleted
	agent.Status = task.AgentDone
	if err := e.update(t); err != nil {
		return nil, err
	}
	e.deps.Ledger.Append(ledger.CategoryAction,
		fmt.Sprintf("Intervention on %q complete", st.Title))
	return t.Clone(), nil
}

// lookupSubtask fetches the active task and resolves the subtask and its
// agent. Refinement and intervention only apply to the active task, and
// only once its run has finished: steering writes the whole task back,
// so a concurrent run would clobber it on its next registry write.
func (e *Engine) lookupSubtask(taskID, subtaskID string) (*task.Task, *task.Subtask, *task.Agent, error) {
	if e.running.Load() {
		return nil, nil, nil, ErrRunInProgress
	}
	t := e.deps.Registry.Active()
	if t == nil || t.ID != taskID {
		return nil, nil, nil, fmt.Errorf("task %q is not active", taskID)
	}
	st := t.SubtaskByID(subtaskID)
	if st == nil {
		return nil, nil, nil, fmt.Errorf("subtask %q not found in task %q", subtaskID, taskID)
	}
	agent := t.AgentByID(st.AgentID)
	if agent == nil {
		return nil, nil, nil, fmt.Errorf("subtask %q has no agent", subtaskID)
	}
	return t, st, agent, nil
}
