package experience

import (
	"fmt"
	"strings"
	"testing"

	"github.com/cloneos/cloneos/internal/task"
)

func TestOutcomeOf(t *testing.T) {
	mk := func(statuses ...task.SubtaskStatus) *task.Task {
		tk := &task.Task{Status: task.StatusCompleted}
		for i, s := range statuses {
			tk.Subtasks = append(tk.Subtasks, task.Subtask{ID: fmt.Sprintf("s%d", i), Status: s})
		}
		return tk
	}

	cases := []struct {
		name string
		tk   *task.Task
		want string
	}{
		{"all completed", mk(task.SubtaskCompleted, task.SubtaskCompleted), OutcomeSuccess},
		{"mixed", mk(task.SubtaskCompleted, task.SubtaskFailed), OutcomePartial},
		{"all failed", mk(task.SubtaskFailed, task.SubtaskFailed), OutcomeFailure},
		{"no subtasks", mk(), OutcomeFailure},
	}
	for _, tc := range cases {
		if got := OutcomeOf(tc.tk); got != tc.want {
			t.Errorf("%s: outcome = %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestLog_MostRecentFirstAndCap(t *testing.T) {
	l := NewLog(3)

	for i := 0; i < 5; i++ {
		l.Add(Experience{Goal: fmt.Sprintf("goal %d", i)})
	}

	if l.Len() != 3 {
		t.Fatalf("Len = %d, want 3", l.Len())
	}
	all := l.All()
	if all[0].Goal != "goal 4" || all[2].Goal != "goal 2" {
		t.Errorf("order = %q .. %q", all[0].Goal, all[2].Goal)
	}
}

func TestLog_RecentLimits(t *testing.T) {
	l := NewLog(10)
	for i := 0; i < 4; i++ {
		l.Add(Experience{Goal: fmt.Sprintf("g%d", i)})
	}

	if got := l.Recent(2); len(got) != 2 || got[0].Goal != "g3" {
		t.Errorf("Recent(2) = %+v", got)
	}
	if got := l.Recent(99); len(got) != 4 {
		t.Errorf("Recent(99) = %d entries", len(got))
	}
}

func TestLog_AddAssignsIdentity(t *testing.T) {
	l := NewLog(10)
	exp := l.Add(Experience{Goal: "g"})
	if exp.ID == "" {
		t.Error("ID not assigned")
	}
	if exp.Timestamp.IsZero() {
		t.Error("timestamp not assigned")
	}
}

func TestLog_Restore(t *testing.T) {
	l := NewLog(2)
	l.Restore([]Experience{{Goal: "a"}, {Goal: "b"}, {Goal: "c"}})

	if l.Len() != 2 {
		t.Fatalf("Len = %d", l.Len())
	}
	if l.All()[0].Goal != "a" {
		t.Errorf("first = %q", l.All()[0].Goal)
	}
}

func TestSummarize(t *testing.T) {
	s := Summarize([]Experience{
		{Goal: "ship release", Outcome: OutcomeSuccess, Lessons: []string{"tag before building"}},
		{Goal: "fix outage", Outcome: OutcomePartial},
	})
	for _, want := range []string{"ship release", "[success]", "tag before building", "[partial]"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q:\n%s", want, s)
		}
	}
	if Summarize(nil) != "" {
		t.Error("empty summary not empty string")
	}
}
