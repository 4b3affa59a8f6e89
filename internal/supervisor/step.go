package supervisor

import "context"

// step is one OS operation of an action. ignoreFailure marks a best-effort
// step: its error is recorded but does not fail the action.
type step struct {
	name          string
	ignoreFailure bool
	run           func(ctx context.Context) error
}

// StepResult reports one attempted step.
type StepResult struct {
	Name          string `json:"name"`
	IgnoreFailure bool   `json:"ignore_failure"`
	OK            bool   `json:"ok"`
	Error         string `json:"error,omitempty"`
}

// runSteps executes steps in order and stops at the first failing step that
// is not best-effort. It returns the results of attempted steps and, on a
// hard failure, that step's name and error.
func runSteps(ctx context.Context, steps []step) ([]StepResult, string, error) {
	results := make([]StepResult, 0, len(steps))
	for _, s := range steps {
		err := s.run(ctx)
		r := StepResult{Name: s.name, IgnoreFailure: s.ignoreFailure, OK: err == nil}
		if err != nil {
			r.Error = err.Error()
		}
		results = append(results, r)
		if err != nil && !s.ignoreFailure {
			return results, s.name, err
		}
	}
	return results, "", nil
}
