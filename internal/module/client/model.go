package client

import (
	"time"

	"github.com/google/uuid"
)

// Client represents a coached client.
type Client struct {
	ID        uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CoachID   uuid.UUID  `json:"coach_id" gorm:"type:uuid;not null;index"`
	Name      string     `json:"name" gorm:"not null"`
	Email     string     `json:"email,omitempty"`
	BirthDate *time.Time `json:"birth_date,omitempty"`
	HeightCM  float64    `json:"height_cm,omitempty"`
	WeightKG  float64    `json:"weight_kg,omitempty"`
	Goal      string     `json:"goal,omitempty"`
	Notes     string     `json:"notes,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// TableName returns the table name for Client.
func (Client) TableName() string {
	return "clients"
}
