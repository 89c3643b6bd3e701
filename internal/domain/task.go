package domain

import (
	"fmt"
	"strings"
	"time"
)

type TaskType string

const (
	TaskTypeAcknowledge TaskType = "acknowledge"
	TaskTypeRespond     TaskType = "respond"
	TaskTypeSeed        TaskType = "seed"
)

// GateClass groups task types that share one pacing gate.
type GateClass string

const (
	GateClassReaction GateClass = "reaction"
	GateClassReply    GateClass = "reply"
)

func (t TaskType) Valid() bool {
	switch t {
	case TaskTypeAcknowledge, TaskTypeRespond, TaskTypeSeed:
		return true
	}
	return false
}

func (t TaskType) GateClass() GateClass {
	if t == TaskTypeAcknowledge {
		return GateClassReaction
	}
	return GateClassReply
}

// ParseTaskTypes turns ["acknowledge", "respond"] into typed values,
// rejecting unknown names and duplicates.
func ParseTaskTypes(names []string) ([]TaskType, error) {
	seen := make(map[TaskType]bool, len(names))
	types := make([]TaskType, 0, len(names))
	for _, name := range names {
		t := TaskType(strings.TrimSpace(strings.ToLower(name)))
		if t == "" {
			continue
		}
		if !t.Valid() {
			return nil, fmt.Errorf("unknown task type %q", name)
		}
		if seen[t] {
			return nil, fmt.Errorf("duplicate task type %q", name)
		}
		seen[t] = true
		types = append(types, t)
	}
	return types, nil
}

// Task is a scheduled remote action. The handler is picked by Type from a
// dispatch table, the task itself carries data only.
type Task struct {
	DueAt      time.Time
	EnqueuedAt time.Time
	Type       TaskType
	TenantID   string
	// ItemID is the admitted item that owns this task's in-flight reservation.
	ItemID   string
	TargetID string
	ThreadID string
	// ParentID is the comment a reply answers. Empty for top-level comments and posts.
	ParentID string
	ID       int64
}
