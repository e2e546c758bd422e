package experience

import (
	"bytes"
	"context"
	"testing"

	"github.com/cloneos/cloneos/internal/gateway"
	"github.com/cloneos/cloneos/internal/observability"
	"github.com/cloneos/cloneos/internal/task"
)

type scriptedProvider struct {
	text string
	err  error
}

func (p *scriptedProvider) Generate(ctx context.Context, req gateway.Request) (*gateway.Response, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &gateway.Response{Text: p.text}, nil
}

func (p *scriptedProvider) Name() string { return "scripted" }

func newDistiller(p gateway.Provider) *Distiller {
	var buf bytes.Buffer
	logger := observability.NewLogger("test", &buf)
	return NewDistiller(gateway.New(p, logger), logger)
}

func completedTask() *task.Task {
	return &task.Task{
		ID:     "t1",
		Goal:   "ship the release",
		Status: task.StatusCompleted,
		Subtasks: []task.Subtask{
			{ID: "s1", Title: "build", Status: task.SubtaskCompleted},
			{ID: "s2", Title: "deploy", Status: task.SubtaskFailed},
		},
	}
}

func TestDistill(t *testing.T) {
	d := newDistiller(&scriptedProvider{text: `{"lessons":["pin versions"," verify rollout ",""]}`})

	exp, err := d.Distill(context.Background(), completedTask())
	if err != nil {
		t.Fatalf("Distill: %v", err)
	}
	if exp.Goal != "ship the release" {
		t.Errorf("Goal = %q", exp.Goal)
	}
	if exp.Outcome != OutcomePartial {
		t.Errorf("Outcome = %q", exp.Outcome)
	}
	if len(exp.Lessons) != 2 || exp.Lessons[0] != "pin versions" || exp.Lessons[1] != "verify rollout" {
		t.Errorf("Lessons = %v", exp.Lessons)
	}
}

func TestDistill_UnparseableLessonsYieldEmptyList(t *testing.T) {
	d := newDistiller(&scriptedProvider{text: "these are not lessons in JSON"})

	exp, err := d.Distill(context.Background(), completedTask())
	if err != nil {
		t.Fatalf("Distill: %v", err)
	}
	if len(exp.Lessons) != 0 {
		t.Errorf("Lessons = %v, want empty", exp.Lessons)
	}
	if exp.Outcome != OutcomePartial {
		t.Errorf("Outcome = %q", exp.Outcome)
	}
}

func TestDistill_GatewayFailureKeepsOutcome(t *testing.T) {
	d := newDistiller(&scriptedProvider{err: &gateway.ServiceError{Status: 429, Message: "quota"}})

	exp, err := d.Distill(context.Background(), completedTask())
	if err != nil {
		t.Fatalf("Distill must absorb gateway failures, got %v", err)
	}
	if exp.Outcome != OutcomePartial || len(exp.Lessons) != 0 {
		t.Errorf("exp = %+v", exp)
	}
}

func TestDistill_RequiresFinishedTask(t *testing.T) {
	d := newDistiller(&scriptedProvider{text: "{}"})

	if _, err := d.Distill(context.Background(), &task.Task{Status: task.StatusExecuting}); err == nil {
		t.Error("in-flight task accepted")
	}
	if _, err := d.Distill(context.Background(), nil); err == nil {
		t.Error("nil task accepted")
	}
}
