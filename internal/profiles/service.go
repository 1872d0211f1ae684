package profiles

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lplate/lplate-backend/pkg/db/models"
	"github.com/lplate/lplate-backend/pkg/enums"
	pkgerrors "github.com/lplate/lplate-backend/pkg/errors"
)

// InstructorProfile joins the instructor listing with its profile.
type InstructorProfile struct {
	Profile    models.Profile
	Instructor models.Instructor
}

// Service resolves the parties of a payment.
type Service interface {
	GetLearner(ctx context.Context, id uuid.UUID) (*models.Profile, error)
	GetInstructor(ctx context.Context, id uuid.UUID) (*InstructorProfile, error)
}

type service struct {
	repo Repository
}

func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("profiles repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) GetLearner(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "learner id is required")
	}
	profile, err := s.loadProfile(ctx, id, "learner not found")
	if err != nil {
		return nil, err
	}
	if profile.Role != enums.RoleLearner {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "learner not found")
	}
	return profile, nil
}

func (s *service) GetInstructor(ctx context.Context, id uuid.UUID) (*InstructorProfile, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "instructor id is required")
	}
	profile, err := s.loadProfile(ctx, id, "instructor not found")
	if err != nil {
		return nil, err
	}
	instructor, err := s.repo.FindInstructor(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "instructor not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load instructor")
	}
	if !instructor.IsActive {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "instructor not found")
	}
	return &InstructorProfile{Profile: *profile, Instructor: *instructor}, nil
}

func (s *service) loadProfile(ctx context.Context, id uuid.UUID, notFound string) (*models.Profile, error) {
	profile, err := s.repo.FindProfile(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, notFound)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load profile")
	}
	return profile, nil
}
