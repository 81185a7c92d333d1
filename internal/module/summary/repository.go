package summary

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrSummaryNotFound indicates no summary exists for the scope.
var ErrSummaryNotFound = errors.New("summary not found")

// Repository defines the interface for summary data access.
type Repository interface {
	UpsertSummary(ctx context.Context, s *WeeklySummary) error
	GetSummary(ctx context.Context, clientID uuid.UUID, weekStart time.Time) (*WeeklySummary, error)
	ListSummaries(ctx context.Context, clientID uuid.UUID) ([]*WeeklySummary, error)

	UpsertAnalysis(ctx context.Context, a *MealGroupAnalysis) error
	GetAnalysesByGroupIDs(ctx context.Context, groupIDs []uuid.UUID) (map[uuid.UUID]*MealGroupAnalysis, error)

	CreateRecommendation(ctx context.Context, rec *Recommendation) error
	ListRecommendations(ctx context.Context, clientID uuid.UUID) ([]*Recommendation, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new summary repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// UpsertSummary inserts or replaces the summary for (client, week).
func (r *repository) UpsertSummary(ctx context.Context, s *WeeklySummary) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "client_id"}, {Name: "week_start"}},
			DoUpdates: clause.AssignmentColumns([]string{"content", "task_id", "generated_at", "updated_at"}),
		}).
		Create(s).Error
	if err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}
	return nil
}

func (r *repository) GetSummary(ctx context.Context, clientID uuid.UUID, weekStart time.Time) (*WeeklySummary, error) {
	var s WeeklySummary
	err := r.db.WithContext(ctx).
		First(&s, "client_id = ? AND week_start = ?", clientID, weekStart).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSummaryNotFound
		}
		return nil, fmt.Errorf("get summary: %w", err)
	}
	return &s, nil
}

func (r *repository) ListSummaries(ctx context.Context, clientID uuid.UUID) ([]*WeeklySummary, error) {
	var summaries []*WeeklySummary
	err := r.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("week_start DESC").
		Find(&summaries).Error
	if err != nil {
		return nil, fmt.Errorf("list summaries: %w", err)
	}
	return summaries, nil
}

// UpsertAnalysis inserts or replaces the cached analysis for a meal group.
func (r *repository) UpsertAnalysis(ctx context.Context, a *MealGroupAnalysis) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "meal_group_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"result", "analyzed_at", "updated_at"}),
		}).
		Create(a).Error
	if err != nil {
		return fmt.Errorf("upsert analysis: %w", err)
	}
	return nil
}

func (r *repository) GetAnalysesByGroupIDs(ctx context.Context, groupIDs []uuid.UUID) (map[uuid.UUID]*MealGroupAnalysis, error) {
	result := make(map[uuid.UUID]*MealGroupAnalysis, len(groupIDs))
	if len(groupIDs) == 0 {
		return result, nil
	}

	var analyses []*MealGroupAnalysis
	err := r.db.WithContext(ctx).
		Where("meal_group_id IN ?", groupIDs).
		Find(&analyses).Error
	if err != nil {
		return nil, fmt.Errorf("get analyses: %w", err)
	}

	for _, a := range analyses {
		result[a.MealGroupID] = a
	}
	return result, nil
}

func (r *repository) CreateRecommendation(ctx context.Context, rec *Recommendation) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

func (r *repository) ListRecommendations(ctx context.Context, clientID uuid.UUID) ([]*Recommendation, error) {
	var recs []*Recommendation
	err := r.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("generated_at DESC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list recommendations: %w", err)
	}
	return recs, nil
}
