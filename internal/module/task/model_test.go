package task

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustParseTime(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return ts
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name    string
		from    Status
		to      Status
		allowed bool
	}{
		{"pending to running", StatusPending, StatusRunning, true},
		{"pending to paused", StatusPending, StatusPaused, true},
		{"pending to cancelled", StatusPending, StatusCancelled, true},
		{"pending to completed", StatusPending, StatusCompleted, false},
		{"running to paused", StatusRunning, StatusPaused, true},
		{"running to completed", StatusRunning, StatusCompleted, true},
		{"running to failed", StatusRunning, StatusFailed, true},
		{"running to cancelled", StatusRunning, StatusCancelled, true},
		{"running to pending", StatusRunning, StatusPending, false},
		{"paused to running", StatusPaused, StatusRunning, true},
		{"paused to cancelled", StatusPaused, StatusCancelled, true},
		{"paused to completed", StatusPaused, StatusCompleted, false},
		{"failed to running", StatusFailed, StatusRunning, true},
		{"failed to cancelled", StatusFailed, StatusCancelled, true},
		{"failed to completed", StatusFailed, StatusCompleted, false},
		{"completed is terminal", StatusCompleted, StatusRunning, false},
		{"cancelled is terminal", StatusCancelled, StatusRunning, false},
		{"same status is not a transition", StatusRunning, StatusRunning, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	assert.True(t, StatusCompleted.IsTerminal())
	assert.True(t, StatusCancelled.IsTerminal())
	assert.False(t, StatusFailed.IsTerminal())
	assert.False(t, StatusPaused.IsTerminal())
	assert.False(t, StatusRunning.IsTerminal())
	assert.False(t, StatusPending.IsTerminal())
}

func TestStatus_IsActive(t *testing.T) {
	assert.True(t, StatusPending.IsActive())
	assert.True(t, StatusRunning.IsActive())
	assert.True(t, StatusPaused.IsActive())
	assert.False(t, StatusFailed.IsActive())
	assert.False(t, StatusCompleted.IsActive())
	assert.False(t, StatusCancelled.IsActive())
}

func TestStepsFor(t *testing.T) {
	assert.Equal(t,
		[]string{StepFetch, StepValidate, StepAnalyze, StepAggregate, StepGenerate, StepSave},
		StepsFor(TypeWeeklySummary),
	)
	assert.Equal(t, StepsFor(TypeWeeklySummary), StepsFor(TypeIncrementalSummaryUpdate))
	assert.Equal(t,
		[]string{StepFetch, StepValidate, StepAnalyze, StepSave},
		StepsFor(TypeMealAnalysis),
	)
	assert.Nil(t, StepsFor(Type("unknown")))
}

func TestTask_HasCompletedStep(t *testing.T) {
	task := &Task{CompletedSteps: []string{StepFetch, StepValidate}}
	assert.True(t, task.HasCompletedStep(StepFetch))
	assert.True(t, task.HasCompletedStep(StepValidate))
	assert.False(t, task.HasCompletedStep(StepAnalyze))
}

func TestParameters_Validate(t *testing.T) {
	weekStart := mustParseTime(t, "2026-08-24T00:00:00Z")

	t.Run("weekly summary requires week start", func(t *testing.T) {
		p := &Parameters{}
		assert.Error(t, p.Validate(TypeWeeklySummary))

		p.WeekStart = &weekStart
		assert.NoError(t, p.Validate(TypeWeeklySummary))
	})

	t.Run("incremental update requires scope", func(t *testing.T) {
		p := &Parameters{WeekStart: &weekStart}
		assert.Error(t, p.Validate(TypeIncrementalSummaryUpdate))

		p.MealGroupIDs = []uuid.UUID{uuid.New()}
		assert.NoError(t, p.Validate(TypeIncrementalSummaryUpdate))
	})

	t.Run("health analysis requires report", func(t *testing.T) {
		p := &Parameters{}
		assert.Error(t, p.Validate(TypeHealthAnalysis))

		reportID := uuid.New()
		p.ReportID = &reportID
		assert.NoError(t, p.Validate(TypeHealthAnalysis))
	})

	t.Run("recommendation kind is a closed set", func(t *testing.T) {
		p := &Parameters{RecommendationKind: "sleep"}
		assert.Error(t, p.Validate(TypeRecommendation))

		p.RecommendationKind = "diet"
		assert.NoError(t, p.Validate(TypeRecommendation))
		p.RecommendationKind = "exercise"
		assert.NoError(t, p.Validate(TypeRecommendation))
	})

	t.Run("unknown type is rejected", func(t *testing.T) {
		p := &Parameters{}
		assert.Error(t, p.Validate(Type("sleep_analysis")))
	})
}
