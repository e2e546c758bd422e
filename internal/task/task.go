// Package task defines the orchestration task model: a goal broken into
// subtasks, each assigned to a spawned agent, plus the registry that holds
// the active task and a bounded history.
package task

import (
	"fmt"
	"time"
)

// Status tracks where a task is in its lifecycle. Transitions are
// forward-only: planning → executing → completed | failed.
type Status string

const (
	StatusPlanning  Status = "planning"
	StatusExecuting Status = "executing"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// statusRank orders statuses for the forward-only check. Terminal
// statuses share a rank so completed→failed is also rejected.
var statusRank = map[Status]int{
	StatusPlanning:  0,
	StatusExecuting: 1,
	StatusCompleted: 2,
	StatusFailed:    2,
}

// SubtaskStatus tracks a single subtask.
type SubtaskStatus string

const (
	SubtaskPending   SubtaskStatus = "pending"
	SubtaskRunning   SubtaskStatus = "running"
	SubtaskRetrying  SubtaskStatus = "retrying"
	SubtaskDebugging SubtaskStatus = "debugging" // transient, manual intervention
	SubtaskCompleted SubtaskStatus = "completed"
	SubtaskFailed    SubtaskStatus = "failed"
)

// AgentStatus tracks a spawned agent.
type AgentStatus string

const (
	AgentIdle    AgentStatus = "idle"
	AgentWorking AgentStatus = "working"
	AgentDone    AgentStatus = "done"
	AgentFailed  AgentStatus = "failed"
)

// Agent specializations form a closed set. Anything else coming back
// from the model is coerced to SpecAnalyst at the parse boundary.
const (
	SpecResearcher = "researcher"
	SpecCoder      = "coder"
	SpecDebugger   = "debugger"
	SpecArchitect  = "architect"
	SpecAnalyst    = "analyst"
)

// FeedbackType distinguishes verification corrections from user-triggered
// optimizations.
type FeedbackType string

const (
	FeedbackCorrection   FeedbackType = "correction"
	FeedbackOptimization FeedbackType = "optimization"
)

// FeedbackEntry records one critique produced during verification or
// refinement. Attempt is 1-based.
type FeedbackEntry struct {
	Attempt    int          `json:"attempt"`
	Type       FeedbackType `json:"type"`
	Critique   string       `json:"critique"`
	Suggestion string       `json:"suggestion"`
	Timestamp  time.Time    `json:"timestamp"`
}

// Agent is a specialist spawned for one task.
type Agent struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Specialization string      `json:"specialization"`
	Status         AgentStatus `json:"status"`
}

// Subtask is one unit of work within a task.
type Subtask struct {
	ID           string          `json:"id"`
	Title        string          `json:"title"`
	Description  string          `json:"description"`
	Status       SubtaskStatus   `json:"status"`
	AgentID      string          `json:"agent_id,omitempty"`
	Result       string          `json:"result,omitempty"`
	Handoff      string          `json:"handoff,omitempty"`
	FeedbackLoop []FeedbackEntry `json:"feedback_loop,omitempty"`
}

// Task is a goal decomposed into agent-assigned subtasks.
type Task struct {
	ID             string    `json:"id"`
	Goal           string    `json:"goal"`
	Status         Status    `json:"status"`
	Reasoning      string    `json:"reasoning,omitempty"`
	Agents         []Agent   `json:"agents"`
	Subtasks       []Subtask `json:"subtasks"`
	SharedInsights []string  `json:"shared_insights,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// Advance moves the task to a new status. Regressions and transitions out
// of a terminal status are rejected.
func (t *Task) Advance(to Status) error {
	fromRank, ok := statusRank[t.Status]
	if !ok {
		return fmt.Errorf("unknown status %q", t.Status)
	}
	toRank, ok := statusRank[to]
	if !ok {
		return fmt.Errorf("unknown status %q", to)
	}
	if toRank <= fromRank {
		return fmt.Errorf("cannot move task from %q to %q", t.Status, to)
	}
	t.Status = to
	return nil
}

// Terminal reports whether the task has finished.
func (t *Task) Terminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusFailed
}

// Clone returns a deep copy of the task. Registry readers always receive
// clones so concurrent mutation cannot corrupt a snapshot.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}
	c := *t
	c.Agents = append([]Agent(nil), t.Agents...)
	c.SharedInsights = append([]string(nil), t.SharedInsights...)
	c.Subtasks = make([]Subtask, len(t.Subtasks))
	for i, st := range t.Subtasks {
		c.Subtasks[i] = st
		c.Subtasks[i].FeedbackLoop = append([]FeedbackEntry(nil), st.FeedbackLoop...)
	}
	return &c
}

// SubtaskByID returns a pointer into the task's subtask slice, or nil.
func (t *Task) SubtaskByID(id string) *Subtask {
	for i := range t.Subtasks {
		if t.Subtasks[i].ID == id {
			return &t.Subtasks[i]
		}
	}
	return nil
}

// AgentByID returns a pointer into the task's agent slice, or nil.
func (t *Task) AgentByID(id string) *Agent {
	for i := range t.Agents {
		if t.Agents[i].ID == id {
			return &t.Agents[i]
		}
	}
	return nil
}

// AgentByName returns the agent with an exact name match, or nil.
func (t *Task) AgentByName(name string) *Agent {
	for i := range t.Agents {
		if t.Agents[i].Name == name {
			return &t.Agents[i]
		}
	}
	return nil
}

// NormalizeSpecialization coerces model output into the closed set.
func NormalizeSpecialization(s string) string {
	switch s {
	case SpecResearcher, SpecCoder, SpecDebugger, SpecArchitect, SpecAnalyst:
		return s
	default:
		return SpecAnalyst
	}
}
