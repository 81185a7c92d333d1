package task

import (
	"time"

	"github.com/google/uuid"
)

// Status represents the status of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Type represents the type of task.
type Type string

const (
	TypeWeeklySummary            Type = "weekly_summary"
	TypeIncrementalSummaryUpdate Type = "incremental_summary_update"
	TypeMealAnalysis             Type = "meal_analysis"
	TypeHealthAnalysis           Type = "health_analysis"
	TypeRecommendation           Type = "recommendation"
)

// ValidType reports whether t is a known task type.
func ValidType(t Type) bool {
	switch t {
	case TypeWeeklySummary, TypeIncrementalSummaryUpdate, TypeMealAnalysis, TypeHealthAnalysis, TypeRecommendation:
		return true
	}
	return false
}

// ActiveStatuses are the non-terminal, scope-occupying statuses.
// At most one task per (client, type) may hold one of these.
var ActiveStatuses = []Status{StatusPending, StatusRunning, StatusPaused}

// transitions is the task state machine. A missing entry means the
// transition is illegal.
var transitions = map[Status][]Status{
	StatusPending: {StatusRunning, StatusPaused, StatusCancelled},
	StatusRunning: {StatusPaused, StatusCompleted, StatusFailed, StatusCancelled},
	StatusPaused:  {StatusRunning, StatusCancelled},
	StatusFailed:  {StatusRunning, StatusCancelled},
	// completed and cancelled are terminal
}

// CanTransition reports whether moving from one status to another is legal.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal checks if the status permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

// IsActive checks if the status occupies the (client, type) scope.
func (s Status) IsActive() bool {
	return s == StatusPending || s == StatusRunning || s == StatusPaused
}

// Task represents one persisted unit of long-running, resumable work.
type Task struct {
	ID             uuid.UUID     `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ClientID       uuid.UUID     `json:"client_id" gorm:"type:uuid;not null;index"`
	Type           Type          `json:"type" gorm:"not null"`
	Status         Status        `json:"status" gorm:"not null"`
	Parameters     Parameters    `json:"parameters" gorm:"type:jsonb;serializer:json"`
	Intermediate   *Intermediate `json:"intermediate_data,omitempty" gorm:"column:intermediate_data;type:jsonb;serializer:json"`
	CurrentStep    string        `json:"current_step,omitempty"`
	Progress       int           `json:"progress" gorm:"default:0"`
	CompletedSteps []string      `json:"completed_steps" gorm:"type:jsonb;serializer:json"`
	Error          string        `json:"error,omitempty"`
	Recoverable    bool          `json:"recoverable"`
	CreatedAt      time.Time     `json:"created_at"`
	UpdatedAt      time.Time     `json:"updated_at"`
	StartedAt      *time.Time    `json:"started_at,omitempty"`
	CompletedAt    *time.Time    `json:"completed_at,omitempty"`
	PausedAt       *time.Time    `json:"paused_at,omitempty"`
	CancelledAt    *time.Time    `json:"cancelled_at,omitempty"`
}

// TableName returns the table name for Task.
func (Task) TableName() string {
	return "tasks"
}

// Steps returns the ordered step sequence for the task's type.
func (t *Task) Steps() []string {
	return StepsFor(t.Type)
}

// HasCompletedStep reports whether the step was already checkpointed.
func (t *Task) HasCompletedStep(step string) bool {
	for _, s := range t.CompletedSteps {
		if s == step {
			return true
		}
	}
	return false
}

// Step keys shared across task types.
const (
	StepFetch     = "fetch"
	StepValidate  = "validate"
	StepAnalyze   = "analyze"
	StepAggregate = "aggregate"
	StepGenerate  = "generate"
	StepSave      = "save"
)

var stepsByType = map[Type][]string{
	TypeWeeklySummary:            {StepFetch, StepValidate, StepAnalyze, StepAggregate, StepGenerate, StepSave},
	TypeIncrementalSummaryUpdate: {StepFetch, StepValidate, StepAnalyze, StepAggregate, StepGenerate, StepSave},
	TypeMealAnalysis:             {StepFetch, StepValidate, StepAnalyze, StepSave},
	TypeHealthAnalysis:           {StepFetch, StepValidate, StepGenerate, StepSave},
	TypeRecommendation:           {StepFetch, StepValidate, StepGenerate, StepSave},
}

// StepsFor returns the ordered step sequence for a task type.
func StepsFor(t Type) []string {
	return stepsByType[t]
}

// Filter represents task list filter options.
type Filter struct {
	ClientID *uuid.UUID
	Type     *Type
	Status   *Status
	Limit    int
	Offset   int
}
