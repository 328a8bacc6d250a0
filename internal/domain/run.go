package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus is the lifecycle state of one module invocation.
type RunStatus string

const (
	StatusPending RunStatus = "pending"
	StatusRunning RunStatus = "running"
	StatusDone    RunStatus = "done"
	StatusFailed  RunStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s RunStatus) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// ModuleRun tracks one invocation of a module for a region. Created in
// pending state by the orchestrator; done and failed are terminal.
type ModuleRun struct {
	ID         string    `json:"id"`
	Module     Module    `json:"module"`
	Region     string    `json:"region"`
	Status     RunStatus `json:"status"`
	CacheKey   string    `json:"cache_key"`
	Cached     bool      `json:"cached"` // done via existing artifacts, no work performed
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	FinishedAt time.Time `json:"finished_at,omitempty"`
}

// NewModuleRun creates a pending run for (region, module).
func NewModuleRun(region Region, module Module) *ModuleRun {
	return &ModuleRun{
		ID:       uuid.NewString(),
		Module:   module,
		Region:   region.Name,
		Status:   StatusPending,
		CacheKey: region.Name + "/" + string(module),
	}
}

// Start transitions the run to running.
func (r *ModuleRun) Start() {
	r.Status = StatusRunning
	r.StartedAt = Clock.Now().UTC()
}

// Finish transitions the run to done.
func (r *ModuleRun) Finish(cached bool) {
	r.Status = StatusDone
	r.Cached = cached
	r.FinishedAt = Clock.Now().UTC()
}

// Fail transitions the run to failed, recording the error detail.
func (r *ModuleRun) Fail(err error) {
	r.Status = StatusFailed
	if err != nil {
		r.Error = err.Error()
	}
	r.FinishedAt = Clock.Now().UTC()
}
