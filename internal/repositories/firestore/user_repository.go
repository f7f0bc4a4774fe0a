package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/kiranakart/api/internal/domain"
	pfirestore "github.com/kiranakart/api/internal/platform/firestore"
	"github.com/kiranakart/api/internal/repositories"
)

const userCollection = "users"

// UserRepository persists storefront user profiles keyed by the auth subject.
type UserRepository struct {
	base *pfirestore.BaseRepository[userDocument]
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository: firestore provider is required")
	}
	base := pfirestore.NewBaseRepository[userDocument](provider, userCollection, nil, nil)
	return &UserRepository{base: base}, nil
}

// FindByID loads the user profile by ID.
func (r *UserRepository) FindByID(ctx context.Context, userID string) (domain.UserProfile, error) {
	if r == nil || r.base == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return domain.UserProfile{}, errors.New("user repository: user id is required")
	}

	doc, err := r.base.Get(ctx, userID)
	if err != nil {
		return domain.UserProfile{}, err
	}

	profile := domain.UserProfile{
		ID:        userID,
		Name:      doc.Data.Name,
		Email:     doc.Data.Email,
		Phone:     doc.Data.Phone,
		IsAdmin:   doc.Data.IsAdmin,
		CreatedAt: chooseTime(doc.Data.CreatedAt, doc.CreateTime),
		UpdatedAt: chooseTime(doc.Data.UpdatedAt, doc.UpdateTime),
	}
	return profile, nil
}

// UpdateProfile upserts the user profile.
func (r *UserRepository) UpdateProfile(ctx context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	if r == nil || r.base == nil {
		return domain.UserProfile{}, errors.New("user repository not initialised")
	}
	userID := strings.TrimSpace(profile.ID)
	if userID == "" {
		return domain.UserProfile{}, errors.New("user repository: user id is required")
	}

	now := time.Now().UTC()
	createdAt := profile.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}

	doc := userDocument{
		Name:      strings.TrimSpace(profile.Name),
		Email:     strings.ToLower(strings.TrimSpace(profile.Email)),
		Phone:     strings.TrimSpace(profile.Phone),
		IsAdmin:   profile.IsAdmin,
		CreatedAt: createdAt,
		UpdatedAt: now,
	}

	result, err := r.base.Set(ctx, userID, doc)
	if err != nil {
		return domain.UserProfile{}, err
	}

	saved := profile
	saved.ID = userID
	saved.Name = doc.Name
	saved.Email = doc.Email
	saved.Phone = doc.Phone
	saved.CreatedAt = doc.CreatedAt
	saved.UpdatedAt = result.UpdateTime
	return saved, nil
}

type userDocument struct {
	Name      string    `firestore:"name,omitempty"`
	Email     string    `firestore:"email,omitempty"`
	Phone     string    `firestore:"phone,omitempty"`
	IsAdmin   bool      `firestore:"isAdmin"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

var _ repositories.UserRepository = (*UserRepository)(nil)
