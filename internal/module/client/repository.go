package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrClientNotFound indicates the client does not exist.
var ErrClientNotFound = errors.New("client not found")

// Repository defines the interface for client data access.
type Repository interface {
	Create(ctx context.Context, client *Client) error
	Get(ctx context.Context, id uuid.UUID) (*Client, error)
	ListByCoach(ctx context.Context, coachID uuid.UUID, limit, offset int) ([]*Client, error)
	Update(ctx context.Context, client *Client) error
	Delete(ctx context.Context, id uuid.UUID) error
	OwnedBy(ctx context.Context, id, coachID uuid.UUID) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository creates a new client repository.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, client *Client) error {
	return r.db.WithContext(ctx).Create(client).Error
}

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Client, error) {
	var c Client
	err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClientNotFound
		}
		return nil, fmt.Errorf("get client: %w", err)
	}
	return &c, nil
}

func (r *repository) ListByCoach(ctx context.Context, coachID uuid.UUID, limit, offset int) ([]*Client, error) {
	var clients []*Client
	query := r.db.WithContext(ctx).
		Where("coach_id = ?", coachID).
		Order("created_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}
	if err := query.Find(&clients).Error; err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}
	return clients, nil
}

func (r *repository) Update(ctx context.Context, client *Client) error {
	result := r.db.WithContext(ctx).Save(client)
	if result.Error != nil {
		return fmt.Errorf("update client: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrClientNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&Client{}, "id = ?", id)
	if result.Error != nil {
		return fmt.Errorf("delete client: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrClientNotFound
	}
	return nil
}

// OwnedBy reports whether the client belongs to the given coach.
func (r *repository) OwnedBy(ctx context.Context, id, coachID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&Client{}).
		Where("id = ? AND coach_id = ?", id, coachID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("check client ownership: %w", err)
	}
	return count > 0, nil
}
