package task

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrTaskNotFound indicates the task does not exist.
	ErrTaskNotFound = errors.New("task not found")
	// ErrActiveTaskExists indicates the (client, type) scope already has
	// a pending, running, or paused task.
	ErrActiveTaskExists = errors.New("an active task already exists for this client and type")
)

// Repository defines the interface for task data access.
type Repository interface {
	Create(ctx context.Context, task *Task) error
	Get(ctx context.Context, id uuid.UUID) (*Task, error)
	// GetActive returns the pending/running/paused task for the scope,
	// or (nil, nil) when there is none.
	GetActive(ctx context.Context, clientID uuid.UUID, taskType Type) (*Task, error)
	List(ctx context.Context, filter *Filter) ([]*Task, error)
	ListByStatus(ctx context.Context, status Status) ([]*Task, error)
	Update(ctx context.Context, task *Task) error
	// Checkpoint persists execution progress only. Status and control
	// timestamps are untouched so a concurrent pause or cancel written
	// by a handler cannot be clobbered by the executor.
	Checkpoint(ctx context.Context, task *Task) error
	// Heartbeat touches updated_at without changing anything else.
	Heartbeat(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new task repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// Migrate creates the tasks table and the partial unique index that
// closes the check-then-create race on the active-task guard.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&Task{}); err != nil {
		return fmt.Errorf("migrate tasks: %w", err)
	}
	err := db.Exec(
		`CREATE UNIQUE INDEX IF NOT EXISTS idx_tasks_active_scope
		 ON tasks (client_id, type)
		 WHERE status IN ('pending', 'running', 'paused')`,
	).Error
	if err != nil {
		return fmt.Errorf("create active task index: %w", err)
	}
	return nil
}

func (r *repository) Create(ctx context.Context, task *Task) error {
	err := r.db.WithContext(ctx).Create(task).Error
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrActiveTaskExists
		}
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Task, error) {
	var t Task
	err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("get task: %w", err)
	}
	return &t, nil
}

func (r *repository) GetActive(ctx context.Context, clientID uuid.UUID, taskType Type) (*Task, error) {
	var t Task
	err := r.db.WithContext(ctx).
		Where("client_id = ? AND type = ? AND status IN ?", clientID, taskType, ActiveStatuses).
		First(&t).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active task: %w", err)
	}
	return &t, nil
}

func (r *repository) List(ctx context.Context, filter *Filter) ([]*Task, error) {
	var tasks []*Task
	query := r.db.WithContext(ctx)

	if filter != nil {
		if filter.ClientID != nil {
			query = query.Where("client_id = ?", *filter.ClientID)
		}
		if filter.Type != nil {
			query = query.Where("type = ?", *filter.Type)
		}
		if filter.Status != nil {
			query = query.Where("status = ?", *filter.Status)
		}
		if filter.Limit > 0 {
			query = query.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			query = query.Offset(filter.Offset)
		}
	}

	if err := query.Order("created_at DESC").Find(&tasks).Error; err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	return tasks, nil
}

func (r *repository) ListByStatus(ctx context.Context, status Status) ([]*Task, error) {
	var tasks []*Task
	err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("list tasks by status: %w", err)
	}
	return tasks, nil
}

func (r *repository) Update(ctx context.Context, task *Task) error {
	result := r.db.WithContext(ctx).Save(task)
	if result.Error != nil {
		return fmt.Errorf("update task: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *repository) Checkpoint(ctx context.Context, task *Task) error {
	result := r.db.WithContext(ctx).
		Model(&Task{}).
		Where("id = ?", task.ID).
		Updates(map[string]any{
			"intermediate_data": task.Intermediate,
			"current_step":      task.CurrentStep,
			"progress":          task.Progress,
			"completed_steps":   task.CompletedSteps,
			"updated_at":        time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("checkpoint task: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}

func (r *repository) Heartbeat(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).
		Model(&Task{}).
		Where("id = ?", id).
		Update("updated_at", time.Now())
	if result.Error != nil {
		return fmt.Errorf("heartbeat task: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrTaskNotFound
	}
	return nil
}
