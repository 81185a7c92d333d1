package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrReportNotFound indicates the report does not exist.
var ErrReportNotFound = errors.New("report not found")

// Repository defines the interface for health report data access.
type Repository interface {
	Create(ctx context.Context, report *HealthReport) error
	Get(ctx context.Context, id uuid.UUID) (*HealthReport, error)
	ListByClient(ctx context.Context, clientID uuid.UUID) ([]*HealthReport, error)
	SaveAnalysis(ctx context.Context, id uuid.UUID, analysis json.RawMessage) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new report repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, report *HealthReport) error {
	return r.db.WithContext(ctx).Create(report).Error
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*HealthReport, error) {
	var rep HealthReport
	err := r.db.WithContext(ctx).First(&rep, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("get report: %w", err)
	}
	return &rep, nil
}

func (r *repository) ListByClient(ctx context.Context, clientID uuid.UUID) ([]*HealthReport, error) {
	var reports []*HealthReport
	err := r.db.WithContext(ctx).
		Where("client_id = ?", clientID).
		Order("created_at DESC").
		Find(&reports).Error
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return reports, nil
}

// SaveAnalysis stores the AI analysis result for a report.
func (r *repository) SaveAnalysis(ctx context.Context, id uuid.UUID, analysis json.RawMessage) error {
	result := r.db.WithContext(ctx).
		Model(&HealthReport{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"analysis":    analysis,
			"analyzed_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("save report analysis: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrReportNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&HealthReport{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("delete report: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrReportNotFound
	}
	return nil
}
