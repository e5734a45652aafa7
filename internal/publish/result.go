package publish

import "github.com/roamjs/roamjs-scripts/internal/artifacts"

// StepStatus classifies how a pipeline step ended.
type StepStatus string

const (
	StepDone       StepStatus = "done"
	StepSkipped    StepStatus = "skipped"
	StepSoftFailed StepStatus = "soft-failed"
)

// StepResult records one step. Soft failures are logged and reported here;
// hard failures end the run and are returned as errors instead.
type StepResult struct {
	Step    string
	Status  StepStatus
	Message string
	Err     error
}

// Report summarizes a completed run.
type Report struct {
	Version     string
	Destination string
	Files       int
	Kinds       map[artifacts.ArtifactKind]int
	Keys        []string
	Steps       []StepResult
}

func (r *Report) add(step string, status StepStatus, message string, err error) {
	r.Steps = append(r.Steps, StepResult{Step: step, Status: status, Message: message, Err: err})
}

// Step returns the recorded result for name.
func (r *Report) Step(name string) (StepResult, bool) {
	for _, step := range r.Steps {
		if step.Step == name {
			return step, true
		}
	}
	return StepResult{}, false
}
