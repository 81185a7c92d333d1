package task

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/nutricoach/server/internal/module/ai"
	"github.com/nutricoach/server/internal/module/client"
	"github.com/nutricoach/server/internal/module/mealgroup"
	"github.com/nutricoach/server/internal/module/report"
	"github.com/nutricoach/server/internal/module/summary"
	"github.com/nutricoach/server/internal/utils/metrics"
	"go.uber.org/zap"
)

// Control signals observed between items. Pause and cancel are
// cooperative: an in-flight inference call always finishes first.
var (
	errPauseRequested  = errors.New("pause requested")
	errCancelRequested = errors.New("cancel requested")
)

// Executor drives one task through its ordered step pipeline,
// checkpointing intermediate data at item boundaries so a later run can
// resume instead of restarting.
type Executor struct {
	repo      Repository
	manager   *Manager
	ai        ai.Client
	clients   client.Repository
	groups    mealgroup.Repository
	reports   report.Repository
	summaries summary.Repository
	logger    *zap.Logger
	metrics   *metrics.Metrics
}

// NewExecutor creates a new task executor.
func NewExecutor(
	repo Repository,
	manager *Manager,
	aiClient ai.Client,
	clients client.Repository,
	groups mealgroup.Repository,
	reports report.Repository,
	summaries summary.Repository,
	logger *zap.Logger,
	m *metrics.Metrics,
) *Executor {
	return &Executor{
		repo:      repo,
		manager:   manager,
		ai:        aiClient,
		clients:   clients,
		groups:    groups,
		reports:   reports,
		summaries: summaries,
		logger:    logger,
		metrics:   m,
	}
}

// Execute runs a task that is already in RUNNING status until it
// completes, fails, or an external pause/cancel is observed at an item
// boundary. Events are published to sink; the persisted row is always
// the source of truth.
func (e *Executor) Execute(ctx context.Context, taskID uuid.UUID, sink Sink) {
	t, err := e.repo.Get(ctx, taskID)
	if err != nil {
		e.logger.Error("executor could not load task",
			zap.String("task_id", taskID.String()),
			zap.Error(err),
		)
		return
	}
	if t.Status != StatusRunning {
		e.logger.Warn("executor invoked for non-running task",
			zap.String("task_id", taskID.String()),
			zap.String("status", string(t.Status)),
		)
		return
	}

	if e.metrics != nil {
		e.metrics.TasksStartedTotal.WithLabelValues(string(t.Type)).Inc()
		e.metrics.TasksRunning.Inc()
		defer e.metrics.TasksRunning.Dec()
	}

	if t.Intermediate == nil {
		t.Intermediate = &Intermediate{}
	}

	// A task with checkpointed work is picking up where it left off.
	if len(t.CompletedSteps) > 0 || len(t.Intermediate.AnalyzedIDs) > 0 {
		sink.Publish(Event{
			Type:     EventResumed,
			TaskID:   t.ID.String(),
			Progress: t.Progress,
		})
	}

	err = e.run(ctx, t, sink)
	switch {
	case err == nil:
		t.Progress = 100
		t.CurrentStep = ""
		if cerr := e.repo.Checkpoint(ctx, t); cerr != nil {
			e.logger.Error("final checkpoint failed", zap.String("task_id", t.ID.String()), zap.Error(cerr))
		}
		if _, uerr := e.manager.UpdateStatus(ctx, t.ID, StatusCompleted); uerr != nil {
			e.logger.Error("could not mark task completed", zap.String("task_id", t.ID.String()), zap.Error(uerr))
			return
		}
		if e.metrics != nil {
			e.metrics.TasksCompletedTotal.WithLabelValues(string(t.Type)).Inc()
		}
		sink.Publish(Event{Type: EventDone, TaskID: t.ID.String(), Progress: 100})

	case errors.Is(err, errPauseRequested):
		sink.Publish(Event{Type: EventPaused, TaskID: t.ID.String(), CanResume: true})

	case errors.Is(err, errCancelRequested):
		sink.Publish(Event{Type: EventCancelled, TaskID: t.ID.String()})

	default:
		recoverable := ai.IsRecoverable(err)
		if _, ferr := e.manager.Fail(ctx, t.ID, err.Error(), recoverable); ferr != nil {
			e.logger.Error("could not mark task failed", zap.String("task_id", t.ID.String()), zap.Error(ferr))
		}
		if e.metrics != nil {
			e.metrics.TasksFailedTotal.WithLabelValues(string(t.Type)).Inc()
		}
		r := recoverable
		sink.Publish(Event{
			Type:        EventError,
			TaskID:      t.ID.String(),
			Message:     err.Error(),
			Recoverable: &r,
		})
	}
}

// run dispatches to the runner for the task's type.
func (e *Executor) run(ctx context.Context, t *Task, sink Sink) error {
	switch t.Type {
	case TypeWeeklySummary, TypeIncrementalSummaryUpdate:
		return e.runSummary(ctx, t, sink)
	case TypeMealAnalysis:
		return e.runMealAnalysis(ctx, t, sink)
	case TypeHealthAnalysis:
		return e.runHealthAnalysis(ctx, t, sink)
	case TypeRecommendation:
		return e.runRecommendation(ctx, t, sink)
	default:
		return fmt.Errorf("no runner for task type %s", t.Type)
	}
}

// checkControl observes external pause/cancel between items.
func (e *Executor) checkControl(ctx context.Context, id uuid.UUID) error {
	t, err := e.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	switch t.Status {
	case StatusRunning:
		return nil
	case StatusPaused:
		return errPauseRequested
	case StatusCancelled:
		return errCancelRequested
	default:
		return fmt.Errorf("task status changed externally to %s", t.Status)
	}
}

// completeStep checkpoints a finished step and announces it. Progress
// never decreases.
func (e *Executor) completeStep(ctx context.Context, t *Task, step string, progress int, sink Sink) error {
	if !t.HasCompletedStep(step) {
		t.CompletedSteps = append(t.CompletedSteps, step)
	}
	t.CurrentStep = step
	if progress > t.Progress {
		t.Progress = progress
	}
	if err := e.repo.Checkpoint(ctx, t); err != nil {
		return fmt.Errorf("checkpoint step %s: %w", step, err)
	}
	sink.Publish(Event{
		Type:           EventStepComplete,
		TaskID:         t.ID.String(),
		Step:           step,
		Progress:       t.Progress,
		CompletedSteps: t.CompletedSteps,
	})
	return nil
}

// reportProgress announces progress within a step without persisting.
func (e *Executor) reportProgress(t *Task, sink Sink, step string, progress int, message string) {
	if progress > t.Progress {
		t.Progress = progress
	}
	t.CurrentStep = step
	sink.Publish(Event{
		Type:     EventProgress,
		TaskID:   t.ID.String(),
		Step:     step,
		Progress: t.Progress,
		Message:  message,
	})
}

// buildCandidates pairs meal groups with whether a cached analysis
// exists, preserving input order for the planner.
func (e *Executor) buildCandidates(ctx context.Context, groups []*mealgroup.MealGroup) ([]Candidate, error) {
	ids := make([]uuid.UUID, len(groups))
	for i, g := range groups {
		ids[i] = g.ID
	}
	analyses, err := e.summaries.GetAnalysesByGroupIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load cached analyses: %w", err)
	}

	candidates := make([]Candidate, len(groups))
	for i, g := range groups {
		_, hasAnalysis := analyses[g.ID]
		candidates[i] = Candidate{
			ID:          g.ID,
			UpdatedAt:   g.UpdatedAt,
			HasAnalysis: hasAnalysis,
		}
	}
	return candidates, nil
}

// PlanIncremental computes (or returns the frozen) skip/analyze
// partition for an incremental summary task. Used by the stream gateway
// for the up-to-date short circuit and by the check-updates preview.
func (e *Executor) PlanIncremental(ctx context.Context, t *Task) (*Plan, error) {
	if t.Type != TypeIncrementalSummaryUpdate {
		return nil, fmt.Errorf("task type %s has no incremental plan", t.Type)
	}
	if t.Intermediate != nil && t.Intermediate.Plan != nil {
		return t.Intermediate.Plan, nil
	}

	groups, err := e.groups.ListByIDs(ctx, t.Parameters.MealGroupIDs)
	if err != nil {
		return nil, fmt.Errorf("load meal groups: %w", err)
	}
	candidates, err := e.buildCandidates(ctx, groups)
	if err != nil {
		return nil, err
	}

	if t.Parameters.ForceRegenerate {
		return PlanAll(candidates), nil
	}
	return PlanUpdate(t.UpdatedAt, candidates), nil
}
