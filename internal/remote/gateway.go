package remote

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Phases reported by the workflow engine for an execution.
const (
	PhaseQueued    = "QUEUED"
	PhaseRunning   = "RUNNING"
	PhaseSucceeded = "SUCCEEDED"
	PhaseFailed    = "FAILED"
	PhaseAborted   = "ABORTED"
)

func IsTerminalPhase(phase string) bool {
	return phase == PhaseSucceeded || phase == PhaseFailed || phase == PhaseAborted
}

// ErrExecutionFailed is wrapped into errors returned when a waited-on
// execution terminates in a non-success phase.
var ErrExecutionFailed = errors.New("workflow execution failed")

type WorkflowRef struct {
	Project string `json:"project"`
	Domain  string `json:"domain"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

type Execution struct {
	Id           string         `json:"id"`
	Workflow     WorkflowRef    `json:"workflow"`
	Phase        string         `json:"phase"`
	CreatedAt    time.Time      `json:"created_at"`
	Outputs      map[string]any `json:"outputs,omitempty"`
	ErrorMessage string         `json:"error,omitempty"`
}

type Filter struct {
	Field string `json:"field"`
	Value string `json:"value"`
}

func Equal(field, value string) Filter {
	return Filter{Field: field, Value: value}
}

type SortDirection string

const (
	Ascending  SortDirection = "asc"
	Descending SortDirection = "desc"
)

type Sort struct {
	Key       string        `json:"key"`
	Direction SortDirection `json:"direction"`
}

// Gateway is the client-side surface of the distributed workflow engine. It
// resolves named workflow definitions, launches runs, and queries execution
// history. Execute with wait=true blocks until the execution reaches a
// terminal phase; no timeout is imposed here beyond the caller's context.
type Gateway interface {
	FetchWorkflow(ctx context.Context, name, version string) (WorkflowRef, error)

	Execute(ctx context.Context, wf WorkflowRef, inputs map[string]any, wait bool) (*Execution, error)

	ListExecutions(ctx context.Context, project, domain string, limit int, filters []Filter, sort Sort) ([]*Execution, error)

	Sync(ctx context.Context, exec *Execution) error
}

// Output extracts a named output from a terminal execution.
func Output(exec *Execution, key string) (any, error) {
	value, ok := exec.Outputs[key]
	if !ok {
		return nil, fmt.Errorf("execution %s has no output %q", exec.Id, key)
	}
	return value, nil
}
