package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/kiranakart/api/internal/domain"
)

type fakeUserRepo struct {
	profiles map[string]domain.UserProfile
	saved    []domain.UserProfile
}

func newFakeUserRepo(profiles ...domain.UserProfile) *fakeUserRepo {
	repo := &fakeUserRepo{profiles: make(map[string]domain.UserProfile)}
	for _, p := range profiles {
		repo.profiles[p.ID] = p
	}
	return repo
}

func (r *fakeUserRepo) FindByID(_ context.Context, userID string) (domain.UserProfile, error) {
	profile, ok := r.profiles[userID]
	if !ok {
		return domain.UserProfile{}, fakeRepoError{notFound: true}
	}
	return profile, nil
}

func (r *fakeUserRepo) UpdateProfile(_ context.Context, profile domain.UserProfile) (domain.UserProfile, error) {
	profile.UpdatedAt = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	r.profiles[profile.ID] = profile
	r.saved = append(r.saved, profile)
	return profile, nil
}

func newTestUserService(t *testing.T, repo *fakeUserRepo) UserService {
	t.Helper()
	svc, err := NewUserService(UserServiceDeps{
		Users: repo,
		Clock: func() time.Time { return time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("NewUserService returned error: %v", err)
	}
	return svc
}

func TestUserServiceGetProfile(t *testing.T) {
	repo := newFakeUserRepo(domain.UserProfile{ID: "uid-1", Name: "Asha", Email: "asha@example.com"})
	svc := newTestUserService(t, repo)

	profile, err := svc.GetProfile(context.Background(), "uid-1")
	if err != nil {
		t.Fatalf("GetProfile returned error: %v", err)
	}
	if profile.Name != "Asha" {
		t.Errorf("unexpected name %s", profile.Name)
	}

	if _, err := svc.GetProfile(context.Background(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if _, err := svc.GetProfile(context.Background(), "  "); !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected ErrUserInvalidInput, got %v", err)
	}
}

func TestUserServiceUpdateProfile(t *testing.T) {
	repo := newFakeUserRepo(domain.UserProfile{ID: "uid-1", Name: "Asha", Email: "asha@example.com", Phone: "+91 98450 00000"})
	svc := newTestUserService(t, repo)

	name := "Asha R"
	updated, err := svc.UpdateProfile(context.Background(), UpdateProfileCommand{UserID: "uid-1", Name: &name})
	if err != nil {
		t.Fatalf("UpdateProfile returned error: %v", err)
	}
	if updated.Name != "Asha R" {
		t.Errorf("unexpected name %s", updated.Name)
	}
	if updated.Phone != "+91 98450 00000" {
		t.Errorf("phone should be untouched, got %s", updated.Phone)
	}
	if updated.Email != "asha@example.com" {
		t.Errorf("email should be untouched, got %s", updated.Email)
	}
}

func TestUserServiceUpdateProfileCreatesMissingProfile(t *testing.T) {
	repo := newFakeUserRepo()
	svc := newTestUserService(t, repo)

	name := "Ravi"
	created, err := svc.UpdateProfile(context.Background(), UpdateProfileCommand{
		UserID: "uid-2",
		Email:  "Ravi@Example.com",
		Name:   &name,
	})
	if err != nil {
		t.Fatalf("UpdateProfile returned error: %v", err)
	}
	if created.ID != "uid-2" {
		t.Errorf("unexpected id %s", created.ID)
	}
	if created.Email != "ravi@example.com" {
		t.Errorf("expected seeded lowercase email, got %s", created.Email)
	}
}

func TestUserServiceUpdateProfileValidation(t *testing.T) {
	repo := newFakeUserRepo(domain.UserProfile{ID: "uid-1"})
	svc := newTestUserService(t, repo)

	if _, err := svc.UpdateProfile(context.Background(), UpdateProfileCommand{UserID: "uid-1"}); !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected ErrUserInvalidInput for empty command, got %v", err)
	}

	empty := "   "
	if _, err := svc.UpdateProfile(context.Background(), UpdateProfileCommand{UserID: "uid-1", Name: &empty}); !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected ErrUserInvalidInput for blank name, got %v", err)
	}

	badPhone := "not-a-phone"
	if _, err := svc.UpdateProfile(context.Background(), UpdateProfileCommand{UserID: "uid-1", Phone: &badPhone}); !errors.Is(err, ErrUserInvalidInput) {
		t.Fatalf("expected ErrUserInvalidInput for bad phone, got %v", err)
	}

	clear := ""
	updated, err := svc.UpdateProfile(context.Background(), UpdateProfileCommand{UserID: "uid-1", Phone: &clear})
	if err != nil {
		t.Fatalf("UpdateProfile returned error: %v", err)
	}
	if updated.Phone != "" {
		t.Errorf("expected phone cleared, got %s", updated.Phone)
	}
}
