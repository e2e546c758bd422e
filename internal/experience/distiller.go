package experience

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloneos/cloneos/internal/gateway"
	"github.com/cloneos/cloneos/internal/observability"
	"github.com/cloneos/cloneos/internal/task"
)

// Distiller reflects on completed tasks.
type Distiller struct {
	gw     *gateway.Gateway
	logger *observability.Logger
}

// NewDistiller creates a distiller.
func NewDistiller(gw *gateway.Gateway, logger *observability.Logger) *Distiller {
	return &Distiller{gw: gw, logger: logger}
}

// Distill produces an Experience from a finished task. The outcome is
// derived locally from subtask results; only the lessons come from the
// model, and a lessons response that fails to parse yields an empty
// list rather than an error.
func (d *Distiller) Distill(ctx context.Context, t *task.Task) (Experience, error) {
	if t == nil || !t.Terminal() {
		return Experience{}, fmt.Errorf("distill requires a finished task")
	}

	exp := Experience{
		Goal:    t.Goal,
		Outcome: OutcomeOf(t),
	}

	var parsed struct {
		Lessons []string `json:"lessons"`
	}
	prompt := distillPrompt(t, exp.Outcome)
	if err := d.gw.GenerateStructuredFast(ctx, prompt, `{"lessons": [string]}`, &parsed); err != nil {
		// Transport failure: keep the outcome, skip the lessons.
		d.logger.Warn("distillation call failed", "task_id", t.ID, "error", err.Error())
	}
	for _, lesson := range parsed.Lessons {
		if s := strings.TrimSpace(lesson); s != "" {
			exp.Lessons = append(exp.Lessons, s)
		}
	}

	d.logger.Distill(t.ID, len(exp.Lessons), "outcome", exp.Outcome)
	return exp, nil
}

func distillPrompt(t *task.Task, outcome string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "A task just finished with outcome %q.\nGoal: %s\n\nSubtasks:\n", outcome, t.Goal)
	for _, st := range t.Subtasks {
		fmt.Fprintf(&b, "- %s (%s)", st.Title, st.Status)
		if len(st.FeedbackLoop) > 0 {
			fmt.Fprintf(&b, " with %d feedback entries", len(st.FeedbackLoop))
		}
		b.WriteString("\n")
	}
	b.WriteString("\nExtract up to three short, transferable lessons for planning future tasks.")
	return b.String()
}
