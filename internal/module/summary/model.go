package summary

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// WeeklySummary is the persisted result of a weekly-summary task.
// One row per (client, week); regeneration replaces the content in
// place via the unique index.
type WeeklySummary struct {
	ID          uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ClientID    uuid.UUID       `json:"client_id" gorm:"type:uuid;not null;uniqueIndex:idx_weekly_summaries_scope"`
	WeekStart   time.Time       `json:"week_start" gorm:"not null;uniqueIndex:idx_weekly_summaries_scope"`
	Content     json.RawMessage `json:"content" gorm:"type:jsonb"`
	TaskID      *uuid.UUID      `json:"task_id,omitempty" gorm:"type:uuid"`
	GeneratedAt time.Time       `json:"generated_at"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// TableName returns the table name for WeeklySummary.
func (WeeklySummary) TableName() string {
	return "weekly_summaries"
}

// MealGroupAnalysis is the cached per-group AI analysis. One row per
// meal group; its existence is what classifies a group as already
// analyzed for incremental summary updates.
type MealGroupAnalysis struct {
	ID          uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	MealGroupID uuid.UUID       `json:"meal_group_id" gorm:"type:uuid;not null;uniqueIndex"`
	ClientID    uuid.UUID       `json:"client_id" gorm:"type:uuid;not null;index"`
	Result      json.RawMessage `json:"result" gorm:"type:jsonb"`
	AnalyzedAt  time.Time       `json:"analyzed_at"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// TableName returns the table name for MealGroupAnalysis.
func (MealGroupAnalysis) TableName() string {
	return "meal_group_analyses"
}

// Recommendation is the persisted result of a recommendation task.
type Recommendation struct {
	ID          uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ClientID    uuid.UUID       `json:"client_id" gorm:"type:uuid;not null;index"`
	Kind        string          `json:"kind" gorm:"not null"` // diet, exercise
	Content     json.RawMessage `json:"content" gorm:"type:jsonb"`
	TaskID      *uuid.UUID      `json:"task_id,omitempty" gorm:"type:uuid"`
	GeneratedAt time.Time       `json:"generated_at"`
	CreatedAt   time.Time       `json:"created_at"`
}

// TableName returns the table name for Recommendation.
func (Recommendation) TableName() string {
	return "recommendations"
}
