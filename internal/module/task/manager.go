package task

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/nutricoach/server/internal/utils/errors"
	"go.uber.org/zap"
)

// Manager owns task lifecycle: creation with the active-task guard,
// state-machine-validated status changes, heartbeats, and boot
// recovery. Execution is the Executor's business.
type Manager struct {
	repo   Repository
	logger *zap.Logger
}

// NewManager creates a new task manager.
func NewManager(repo Repository, logger *zap.Logger) *Manager {
	return &Manager{repo: repo, logger: logger}
}

// Create creates a new pending task. If an active task already exists
// for (clientID, taskType), the existing task is returned with
// existing=true and no new row is written.
func (m *Manager) Create(ctx context.Context, clientID uuid.UUID, taskType Type, params Parameters) (*Task, bool, error) {
	if !ValidType(taskType) {
		return nil, false, apperrors.BadRequest(fmt.Sprintf("unknown task type: %s", taskType))
	}
	if err := params.Validate(taskType); err != nil {
		return nil, false, apperrors.BadRequest(err.Error())
	}

	if existing, err := m.repo.GetActive(ctx, clientID, taskType); err != nil {
		return nil, false, err
	} else if existing != nil {
		return existing, true, nil
	}

	t := &Task{
		ID:             uuid.New(),
		ClientID:       clientID,
		Type:           taskType,
		Status:         StatusPending,
		Parameters:     params,
		Intermediate:   &Intermediate{},
		Progress:       0,
		CompletedSteps: []string{},
	}

	if err := m.repo.Create(ctx, t); err != nil {
		// The partial unique index may catch a concurrent create that
		// slipped past the check above; surface the winner.
		if err == ErrActiveTaskExists {
			if existing, getErr := m.repo.GetActive(ctx, clientID, taskType); getErr == nil && existing != nil {
				return existing, true, nil
			}
		}
		return nil, false, err
	}

	m.logger.Info("task created",
		zap.String("task_id", t.ID.String()),
		zap.String("client_id", clientID.String()),
		zap.String("type", string(taskType)),
	)
	return t, false, nil
}

// Get retrieves a task by ID.
func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*Task, error) {
	return m.repo.Get(ctx, id)
}

// GetActive returns the active task for the scope, or nil.
func (m *Manager) GetActive(ctx context.Context, clientID uuid.UUID, taskType Type) (*Task, error) {
	return m.repo.GetActive(ctx, clientID, taskType)
}

// List lists tasks matching the filter.
func (m *Manager) List(ctx context.Context, filter *Filter) ([]*Task, error) {
	return m.repo.List(ctx, filter)
}

// UpdateStatus validates and applies a status transition, stamping the
// matching timestamp field.
func (m *Manager) UpdateStatus(ctx context.Context, id uuid.UUID, newStatus Status) (*Task, error) {
	t, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if !CanTransition(t.Status, newStatus) {
		return nil, apperrors.InvalidTransition(string(t.Status), string(newStatus))
	}

	now := time.Now()
	t.Status = newStatus
	switch newStatus {
	case StatusRunning:
		if t.StartedAt == nil {
			t.StartedAt = &now
		}
		t.PausedAt = nil
	case StatusPaused:
		t.PausedAt = &now
	case StatusCompleted:
		t.CompletedAt = &now
	case StatusCancelled:
		t.CancelledAt = &now
	}

	if err := m.repo.Update(ctx, t); err != nil {
		return nil, err
	}

	m.logger.Info("task status changed",
		zap.String("task_id", t.ID.String()),
		zap.String("status", string(newStatus)),
	)
	return t, nil
}

// Pause transitions a pending or running task to paused. The executor
// observes the change at its next item boundary.
func (m *Manager) Pause(ctx context.Context, id uuid.UUID) (*Task, error) {
	t, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusPending && t.Status != StatusRunning {
		return nil, apperrors.InvalidTransition(string(t.Status), string(StatusPaused))
	}
	return m.UpdateStatus(ctx, id, StatusPaused)
}

// Resume transitions a paused or failed task back to running and clears
// the failure. The caller must open a new stream to continue execution.
func (m *Manager) Resume(ctx context.Context, id uuid.UUID) (*Task, error) {
	t, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != StatusPaused && t.Status != StatusFailed {
		return nil, apperrors.InvalidTransition(string(t.Status), string(StatusRunning))
	}

	t.Error = ""
	t.Recoverable = false
	if err := m.repo.Update(ctx, t); err != nil {
		return nil, err
	}
	return m.UpdateStatus(ctx, id, StatusRunning)
}

// Cancel transitions a task to cancelled. Cancelling an already
// cancelled task is an idempotent no-op; cancelling a completed task is
// rejected.
func (m *Manager) Cancel(ctx context.Context, id uuid.UUID) (*Task, error) {
	t, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status == StatusCancelled {
		return t, nil
	}
	if t.Status == StatusCompleted {
		return nil, apperrors.InvalidTransition(string(t.Status), string(StatusCancelled))
	}
	return m.UpdateStatus(ctx, id, StatusCancelled)
}

// Fail marks a task failed with the given message and recoverability
// hint, preserving whatever intermediate data was already checkpointed.
func (m *Manager) Fail(ctx context.Context, id uuid.UUID, message string, recoverable bool) (*Task, error) {
	t, err := m.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(t.Status, StatusFailed) {
		return nil, apperrors.InvalidTransition(string(t.Status), string(StatusFailed))
	}

	t.Status = StatusFailed
	t.Error = message
	t.Recoverable = recoverable
	if err := m.repo.Update(ctx, t); err != nil {
		return nil, err
	}

	m.logger.Warn("task failed",
		zap.String("task_id", t.ID.String()),
		zap.String("error", message),
		zap.Bool("recoverable", recoverable),
	)
	return t, nil
}

// Heartbeat touches the task's updated_at to signal liveness during
// long external calls.
func (m *Manager) Heartbeat(ctx context.Context, id uuid.UUID) error {
	return m.repo.Heartbeat(ctx, id)
}

// RecoverInterrupted demotes tasks left running by a previous process
// to paused. Their executor frame died with the process; the
// checkpointed intermediate data makes a later resume safe.
func (m *Manager) RecoverInterrupted(ctx context.Context) error {
	tasks, err := m.repo.ListByStatus(ctx, StatusRunning)
	if err != nil {
		return fmt.Errorf("list running tasks: %w", err)
	}

	for _, t := range tasks {
		if _, err := m.UpdateStatus(ctx, t.ID, StatusPaused); err != nil {
			m.logger.Warn("failed to recover interrupted task",
				zap.String("task_id", t.ID.String()),
				zap.Error(err),
			)
			continue
		}
		m.logger.Info("interrupted task demoted to paused",
			zap.String("task_id", t.ID.String()),
		)
	}
	return nil
}
