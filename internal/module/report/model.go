package report

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// HealthReport represents an uploaded client health report.
// The uploaded file lives in object storage; Analysis holds the latest
// AI health analysis result produced by a health-analysis task.
type HealthReport struct {
	ID          uuid.UUID       `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ClientID    uuid.UUID       `json:"client_id" gorm:"type:uuid;not null;index"`
	Title       string          `json:"title" gorm:"not null"`
	FileKey     string          `json:"file_key" gorm:"not null"`
	ContentType string          `json:"content_type,omitempty"`
	SizeBytes   int64           `json:"size_bytes,omitempty"`
	Analysis    json.RawMessage `json:"analysis,omitempty" gorm:"type:jsonb"`
	AnalyzedAt  *time.Time      `json:"analyzed_at,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// TableName returns the table name for HealthReport.
func (HealthReport) TableName() string {
	return "health_reports"
}
