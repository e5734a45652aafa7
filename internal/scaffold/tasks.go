package scaffold

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/charmbracelet/lipgloss"

	"github.com/roamjs/roamjs-scripts/internal/logging"
)

// Task is one step of a scaffold. Skip is evaluated right before Run; Soft
// tasks log their failure and let the run continue.
type Task struct {
	Title string
	Skip  func() bool
	Run   func(ctx context.Context) error
	Soft  bool
}

type Status string

const (
	StatusDone       Status = "done"
	StatusSkipped    Status = "skipped"
	StatusSoftFailed Status = "soft-failed"
	StatusFailed     Status = "failed"
)

// Result records how a task ended.
type Result struct {
	Title  string
	Status Status
	Err    error
}

var statusStyles = map[Status]lipgloss.Style{
	StatusDone:       lipgloss.NewStyle().Foreground(lipgloss.Color("10")),
	StatusSkipped:    lipgloss.NewStyle().Foreground(lipgloss.Color("8")),
	StatusSoftFailed: lipgloss.NewStyle().Foreground(lipgloss.Color("11")),
	StatusFailed:     lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true),
}

// TaskRunner executes tasks in order and prints a line per task to Out.
type TaskRunner struct {
	Out    io.Writer
	Color  bool
	Logger *slog.Logger
}

func (r *TaskRunner) logger() *slog.Logger {
	return logging.Ensure(r.Logger)
}

// Run stops at the first hard failure and returns it; nothing already done
// is rolled back.
func (r *TaskRunner) Run(ctx context.Context, tasks []Task) ([]Result, error) {
	results := make([]Result, 0, len(tasks))
	for _, task := range tasks {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		r.logger().Debug("running task", "task", task.Title)

		if task.Skip != nil && task.Skip() {
			results = append(results, r.report(Result{Title: task.Title, Status: StatusSkipped}))
			continue
		}

		err := task.Run(ctx)
		switch {
		case err == nil:
			results = append(results, r.report(Result{Title: task.Title, Status: StatusDone}))
		case task.Soft:
			r.logger().Warn("task failed", "task", task.Title, "error", err)
			results = append(results, r.report(Result{Title: task.Title, Status: StatusSoftFailed, Err: err}))
		default:
			results = append(results, r.report(Result{Title: task.Title, Status: StatusFailed, Err: err}))
			return results, fmt.Errorf("%s: %w", task.Title, err)
		}
	}
	return results, nil
}

func (r *TaskRunner) report(result Result) Result {
	if r.Out == nil {
		return result
	}
	label := fmt.Sprintf("[%s]", result.Status)
	if r.Color {
		label = statusStyles[result.Status].Render(label)
	}
	fmt.Fprintf(r.Out, "%s %s\n", label, result.Title)
	return result
}
