// Package project detects the project a bridge serves and the run
// configuration used for remote run requests.
package project

import (
	"errors"
	"sync"
)

var (
	// ErrNoProject is returned when no project has been recorded.
	ErrNoProject = errors.New("no project available")
	// ErrNoRunConfig is returned when the project has no run configuration.
	ErrNoRunConfig = errors.New("no run configuration selected")
)

// Active holds the project the bridge was started for together with its
// selected run configuration. Either may be absent.
type Active struct {
	mu      sync.RWMutex
	project *Project
	run     *RunConfig
}

// NewActive records p and its run configuration. Both may be nil.
func NewActive(p *Project, run *RunConfig) *Active {
	return &Active{project: p, run: run}
}

// Set replaces the active project and run configuration.
func (a *Active) Set(p *Project, run *RunConfig) {
	a.mu.Lock()
	a.project = p
	a.run = run
	a.mu.Unlock()
}

// SelectRunConfig replaces only the run configuration.
func (a *Active) SelectRunConfig(run *RunConfig) {
	a.mu.Lock()
	a.run = run
	a.mu.Unlock()
}

// Project returns the active project or ErrNoProject.
func (a *Active) Project() (*Project, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.project == nil {
		return nil, ErrNoProject
	}
	return a.project, nil
}

// RunConfig returns the project together with its run configuration,
// failing with ErrNoProject or ErrNoRunConfig.
func (a *Active) RunConfig() (*Project, *RunConfig, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.project == nil {
		return nil, nil, ErrNoProject
	}
	if a.run == nil || a.run.Command == "" {
		return a.project, nil, ErrNoRunConfig
	}
	return a.project, a.run, nil
}
