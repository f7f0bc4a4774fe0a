package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kiranakart/api/internal/repositories"
)

var (
	// ErrUserInvalidInput signals malformed profile data.
	ErrUserInvalidInput = errors.New("user: invalid input")
	// ErrUserNotFound is returned when the profile does not exist.
	ErrUserNotFound = errors.New("user: not found")
)

const maxProfileNameLength = 120

// UserServiceDeps bundles dependencies required to construct a UserService.
type UserServiceDeps struct {
	Users  repositories.UserRepository
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type userService struct {
	users  repositories.UserRepository
	clock  func() time.Time
	logger func(ctx context.Context, event string, fields map[string]any)
}

var _ UserService = (*userService)(nil)

// NewUserService validates dependencies and returns a ready user service.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &userService{
		users:  deps.Users,
		clock:  func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

func (s *userService) GetProfile(ctx context.Context, userID string) (UserProfile, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return UserProfile{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}

	profile, err := s.users.FindByID(ctx, userID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return UserProfile{}, ErrUserNotFound
		}
		return UserProfile{}, err
	}
	return profile, nil
}

func (s *userService) UpdateProfile(ctx context.Context, cmd UpdateProfileCommand) (UserProfile, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return UserProfile{}, fmt.Errorf("%w: user id is required", ErrUserInvalidInput)
	}
	if cmd.Name == nil && cmd.Phone == nil {
		return UserProfile{}, fmt.Errorf("%w: no editable fields provided", ErrUserInvalidInput)
	}

	current, err := s.users.FindByID(ctx, userID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			// First write creates the profile.
			current = UserProfile{ID: userID, Email: strings.ToLower(strings.TrimSpace(cmd.Email))}
		} else {
			return UserProfile{}, err
		}
	}

	if cmd.Name != nil {
		name := strings.TrimSpace(*cmd.Name)
		if name == "" {
			return UserProfile{}, fmt.Errorf("%w: name must not be empty", ErrUserInvalidInput)
		}
		if len(name) > maxProfileNameLength {
			return UserProfile{}, fmt.Errorf("%w: name exceeds %d characters", ErrUserInvalidInput, maxProfileNameLength)
		}
		current.Name = name
	}
	if cmd.Phone != nil {
		phone := strings.TrimSpace(*cmd.Phone)
		if phone != "" && !validPhone(phone) {
			return UserProfile{}, fmt.Errorf("%w: phone must contain 8-15 digits", ErrUserInvalidInput)
		}
		current.Phone = phone
	}
	if email := strings.ToLower(strings.TrimSpace(cmd.Email)); email != "" && current.Email == "" {
		current.Email = email
	}

	current.ID = userID
	saved, err := s.users.UpdateProfile(ctx, current)
	if err != nil {
		return UserProfile{}, err
	}

	s.logger(ctx, "user.profile.updated", map[string]any{
		"userId": userID,
	})
	return saved, nil
}

func validPhone(phone string) bool {
	digits := 0
	for _, r := range phone {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == '+' || r == ' ' || r == '-':
		default:
			return false
		}
	}
	return digits >= 8 && digits <= 15
}
