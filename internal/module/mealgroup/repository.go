package mealgroup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrMealGroupNotFound indicates the meal group does not exist.
var ErrMealGroupNotFound = errors.New("meal group not found")

// Repository defines the interface for meal group and exercise log access.
type Repository interface {
	Create(ctx context.Context, group *MealGroup) error
	Get(ctx context.Context, id uuid.UUID) (*MealGroup, error)
	ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*MealGroup, error)
	ListByClientAndRange(ctx context.Context, clientID uuid.UUID, from, to time.Time) ([]*MealGroup, error)
	Update(ctx context.Context, group *MealGroup) error
	Delete(ctx context.Context, id uuid.UUID) error

	CreateExerciseLog(ctx context.Context, log *ExerciseLog) error
	ListExerciseLogs(ctx context.Context, clientID uuid.UUID, from, to time.Time) ([]*ExerciseLog, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new meal group repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, group *MealGroup) error {
	return r.db.WithContext(ctx).Create(group).Error
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*MealGroup, error) {
	var g MealGroup
	err := r.db.WithContext(ctx).First(&g, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrMealGroupNotFound
		}
		return nil, fmt.Errorf("get meal group: %w", err)
	}
	return &g, nil
}

// ListByIDs returns meal groups in the order of the given ids.
// Missing ids are skipped, not an error.
func (r *repository) ListByIDs(ctx context.Context, ids []uuid.UUID) ([]*MealGroup, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var groups []*MealGroup
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&groups).Error
	if err != nil {
		return nil, fmt.Errorf("list meal groups: %w", err)
	}

	byID := make(map[uuid.UUID]*MealGroup, len(groups))
	for _, g := range groups {
		byID[g.ID] = g
	}
	ordered := make([]*MealGroup, 0, len(groups))
	for _, id := range ids {
		if g, ok := byID[id]; ok {
			ordered = append(ordered, g)
		}
	}
	return ordered, nil
}

func (r *repository) ListByClientAndRange(ctx context.Context, clientID uuid.UUID, from, to time.Time) ([]*MealGroup, error) {
	var groups []*MealGroup
	err := r.db.WithContext(ctx).
		Where("client_id = ? AND date >= ? AND date < ?", clientID, from, to).
		Order("date ASC, created_at ASC").
		Find(&groups).Error
	if err != nil {
		return nil, fmt.Errorf("list meal groups by range: %w", err)
	}
	return groups, nil
}

func (r *repository) Update(ctx context.Context, group *MealGroup) error {
	result := r.db.WithContext(ctx).Save(group)
	if result.Error != nil {
		return fmt.Errorf("update meal group: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrMealGroupNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&MealGroup{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("delete meal group: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrMealGroupNotFound
	}
	return nil
}

func (r *repository) CreateExerciseLog(ctx context.Context, log *ExerciseLog) error {
	return r.db.WithContext(ctx).Create(log).Error
}

func (r *repository) ListExerciseLogs(ctx context.Context, clientID uuid.UUID, from, to time.Time) ([]*ExerciseLog, error) {
	var logs []*ExerciseLog
	err := r.db.WithContext(ctx).
		Where("client_id = ? AND date >= ? AND date < ?", clientID, from, to).
		Order("date ASC").
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("list exercise logs: %w", err)
	}
	return logs, nil
}
