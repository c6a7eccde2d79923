package session

import (
	"encoding/json"
	"fmt"
	"strings"
)

// BuildStatus is the lifecycle state of the monitored run.
type BuildStatus uint32

const (
	StatusIdle BuildStatus = iota
	StatusRunning
	StatusSuccess
	StatusFailure
)

func (s BuildStatus) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusRunning:
		return "running"
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// ParseBuildStatus is the inverse of String.
func ParseBuildStatus(s string) (BuildStatus, error) {
	switch strings.ToLower(s) {
	case "idle":
		return StatusIdle, nil
	case "running":
		return StatusRunning, nil
	case "success":
		return StatusSuccess, nil
	case "failure":
		return StatusFailure, nil
	default:
		return StatusIdle, fmt.Errorf("unknown build status %q", s)
	}
}

// MarshalJSON encodes the status as its lowercase name.
func (s BuildStatus) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON decodes a lowercase status name.
func (s *BuildStatus) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	parsed, err := ParseBuildStatus(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
