package refresh

import "time"

// Result reports one refresh invocation's outcome.
type Result struct {
	// Success is true when no project failed.
	Success bool

	// ProjectsRefreshed counts projects written successfully.
	ProjectsRefreshed int

	// ChangesDetected counts artifacts whose upstream version changed
	// across the whole batch.
	ChangesDetected int

	// EntriesUpdated counts marketplace entries written (marketplace
	// refresh only).
	EntriesUpdated int

	// Errors holds one entry per failed project. Sibling refreshes are
	// never aborted by one project's failure.
	Errors []ProjectError

	// Duration is wall time for the whole invocation.
	Duration time.Duration
}

// ProjectError attributes a refresh failure to one project.
type ProjectError struct {
	ProjectID string `json:"project_id"`
	Err       string `json:"error"`
}

// Status is the observable scheduler state.
type Status struct {
	IsRunning   bool      `json:"is_running"`
	NextRunTime time.Time `json:"next_run_time,omitzero"`
	LastRunTime time.Time `json:"last_run_time,omitzero"`
}
