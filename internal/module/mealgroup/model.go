package mealgroup

import (
	"time"

	"github.com/google/uuid"
)

// MealGroup represents one set of diet photos logged by a client,
// grouped by day and meal. Its UpdatedAt is the timestamp the diff
// engine compares against a summary task's last save.
type MealGroup struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ClientID  uuid.UUID `json:"client_id" gorm:"type:uuid;not null;index"`
	Date      time.Time `json:"date" gorm:"not null;index"`
	MealType  string    `json:"meal_type" gorm:"not null"` // breakfast, lunch, dinner, snack
	PhotoKeys []string  `json:"photo_keys" gorm:"type:jsonb;serializer:json"`
	Notes     string    `json:"notes,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the table name for MealGroup.
func (MealGroup) TableName() string {
	return "meal_groups"
}

// ExerciseLog represents one logged exercise session.
type ExerciseLog struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ClientID    uuid.UUID `json:"client_id" gorm:"type:uuid;not null;index"`
	Date        time.Time `json:"date" gorm:"not null;index"`
	Activity    string    `json:"activity" gorm:"not null"`
	DurationMin int       `json:"duration_min"`
	Intensity   string    `json:"intensity,omitempty"` // low, moderate, high
	Notes       string    `json:"notes,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName returns the table name for ExerciseLog.
func (ExerciseLog) TableName() string {
	return "exercise_logs"
}
