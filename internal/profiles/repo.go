package profiles

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lplate/lplate-backend/pkg/db/models"
)

// Repository reads profiles and instructor listings.
type Repository interface {
	FindProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	FindInstructor(ctx context.Context, id uuid.UUID) (*models.Instructor, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to profile lookups.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindProfile(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	var profile models.Profile
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *repository) FindInstructor(ctx context.Context, id uuid.UUID) (*models.Instructor, error) {
	var instructor models.Instructor
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&instructor).Error; err != nil {
		return nil, err
	}
	return &instructor, nil
}
