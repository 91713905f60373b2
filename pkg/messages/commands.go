package messages

import (
	"github.com/google/uuid"
	"go-scriptloop/pkg/models"
)

// NewRun asks the runner to drive a fresh task.
type NewRun struct {
	RunID         uuid.UUID
	Task          models.Task
	MaxIterations int
	SeedCode      string
}

// ResumeRun asks the runner to continue a checkpointed session.
type ResumeRun struct {
	RunID   uuid.UUID
	Session models.Session
}

// RunResult is sent back to the requester, when there is one, after a run ends.
type RunResult struct {
	RunID   uuid.UUID
	Outcome models.Outcome
	Err     error
}

type GetStatus struct{}

// Status is the runner's reply to GetStatus.
type Status struct {
	State   models.State
	Current uuid.UUID
	Queued  int
}
