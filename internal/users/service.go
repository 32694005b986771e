package users

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/communityconnect/connect/backend/go-services/internal/models"
	"github.com/communityconnect/connect/backend/go-services/pkg/apperr"
	"github.com/communityconnect/connect/backend/go-services/pkg/logger"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	DefaultName       = "Community User"
	maxUsernameLength = 30
	maxNameLength     = 50
)

// Service encapsulates user-related business logic
type Service struct {
	repo UserRepository
	now  func() time.Time
}

func NewService(r UserRepository) *Service {
	return &Service{repo: r, now: func() time.Time { return time.Now().UTC() }}
}

// Lookup resolves a raw directory id. Malformed ids and unknown ids both
// return (nil, nil); only store failures return an error.
func (s *Service) Lookup(ctx context.Context, rawID string) (*models.User, error) {
	id, err := primitive.ObjectIDFromHex(strings.TrimSpace(rawID))
	if err != nil {
		return nil, nil
	}
	return s.repo.GetByID(ctx, id)
}

// Get is Lookup that reports a missing record as NotFound.
func (s *Service) Get(ctx context.Context, rawID string) (*models.User, error) {
	u, err := s.Lookup(ctx, rawID)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if u == nil {
		return nil, apperr.NotFound("User not found")
	}
	return u, nil
}

// SyncInput is the identity payload pushed by the frontend after sign-in.
type SyncInput struct {
	ExternalID string `json:"externalId"`
	Email      string `json:"email"`
	Username   string `json:"username"`
	Name       string `json:"name"`
}

// InputFromClaims maps verified ID token claims onto a SyncInput.
func InputFromClaims(claims map[string]interface{}) SyncInput {
	str := func(k string) string { v, _ := claims[k].(string); return v }
	return SyncInput{
		ExternalID: str("sub"),
		Email:      str("email"),
		Username:   str("preferred_username"),
		Name:       str("name"),
	}
}

// Sync creates or updates the directory record matching the external id or
// email. New records are active residents. The bool reports creation.
func (s *Service) Sync(ctx context.Context, in SyncInput) (*models.User, bool, error) {
	in.ExternalID = strings.TrimSpace(in.ExternalID)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Username = strings.TrimSpace(in.Username)
	in.Name = strings.TrimSpace(in.Name)

	if in.ExternalID == "" || in.Email == "" {
		return nil, false, apperr.Validation("externalId and email are required")
	}
	var errs []string
	if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		errs = append(errs, "Please enter a valid email")
	}
	if in.Username != "" && !between(in.Username, 2, maxUsernameLength) {
		errs = append(errs, fmt.Sprintf("Username must be between 2 and %d characters", maxUsernameLength))
	}
	if in.Name != "" && !between(in.Name, 2, maxNameLength) {
		errs = append(errs, fmt.Sprintf("Name must be between 2 and %d characters", maxNameLength))
	}
	if len(errs) > 0 {
		return nil, false, apperr.Validation("Validation failed", errs...)
	}

	existing, err := s.repo.FindByExternalIDOrEmail(ctx, in.ExternalID, in.Email)
	if err != nil {
		return nil, false, fmt.Errorf("find user: %w", err)
	}
	now := s.now()
	if existing != nil {
		existing.ExternalID = in.ExternalID
		existing.Email = in.Email
		if in.Username != "" {
			existing.Username = in.Username
		}
		if in.Name != "" {
			existing.Name = in.Name
		}
		existing.LastSyncedAt = &now
		if err := s.repo.Save(ctx, existing); err != nil {
			return nil, false, fmt.Errorf("save user: %w", err)
		}
		logger.Debugf("user %s synced", existing.ID.Hex())
		return existing, false, nil
	}

	u := &models.User{
		ExternalID:   in.ExternalID,
		Email:        in.Email,
		Username:     in.Username,
		Name:         in.Name,
		Role:         models.RoleResident,
		IsActive:     true,
		LastSyncedAt: &now,
	}
	if u.Username == "" {
		u.Username = truncate(strings.SplitN(in.Email, "@", 2)[0], maxUsernameLength)
	}
	if u.Name == "" {
		u.Name = DefaultName
	}
	if err := s.repo.Create(ctx, u); err != nil {
		return nil, false, fmt.Errorf("create user: %w", err)
	}
	logger.Infof("user %s created for %s", u.ID.Hex(), u.Email)
	return u, true, nil
}

// Provision creates or reactivates a user with a fixed role. It backs the
// seed command used to prepare test accounts.
func (s *Service) Provision(ctx context.Context, in SyncInput, role models.Role) (*models.User, error) {
	u, _, err := s.Sync(ctx, in)
	if err != nil {
		return nil, err
	}
	if u.Role == role && u.IsActive {
		return u, nil
	}
	u.Role = role
	u.IsActive = true
	if err := s.repo.Save(ctx, u); err != nil {
		return nil, fmt.Errorf("save user: %w", err)
	}
	return u, nil
}

func (s *Service) List(ctx context.Context) ([]*models.User, error) {
	return s.repo.List(ctx)
}

func (s *Service) ActiveAdmins(ctx context.Context) ([]*models.User, error) {
	return s.repo.ListActiveAdmins(ctx)
}

func (s *Service) CountByRole(ctx context.Context) (map[models.Role]int64, error) {
	return s.repo.CountByRole(ctx)
}

func (s *Service) Promote(ctx context.Context, rawID string) (*models.User, error) {
	u, err := s.Get(ctx, rawID)
	if err != nil {
		return nil, err
	}
	if u.IsAdmin() {
		return nil, apperr.Validation("User is already an admin")
	}
	u.Role = models.RoleAdmin
	return u, s.save(ctx, u)
}

func (s *Service) Demote(ctx context.Context, actor *models.User, rawID string) (*models.User, error) {
	u, err := s.Get(ctx, rawID)
	if err != nil {
		return nil, err
	}
	if !u.IsAdmin() {
		return nil, apperr.Validation("User is not an admin")
	}
	if u.ID == actor.ID {
		return nil, apperr.Validation("You cannot demote yourself")
	}
	u.Role = models.RoleResident
	return u, s.save(ctx, u)
}

func (s *Service) ToggleActive(ctx context.Context, actor *models.User, rawID string) (*models.User, error) {
	u, err := s.Get(ctx, rawID)
	if err != nil {
		return nil, err
	}
	if u.ID == actor.ID {
		return nil, apperr.Validation("You cannot deactivate yourself")
	}
	u.IsActive = !u.IsActive
	return u, s.save(ctx, u)
}

// SetRole assigns role to the user. An admin may not set their own role to
// resident.
func (s *Service) SetRole(ctx context.Context, actor *models.User, rawID string, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, apperr.Validation(`Invalid role. Must be "resident" or "admin"`)
	}
	if actor != nil && strings.TrimSpace(rawID) == actor.ID.Hex() && role == models.RoleResident {
		return nil, apperr.Validation("Cannot change your own role to resident")
	}
	u, err := s.Get(ctx, rawID)
	if err != nil {
		return nil, err
	}
	u.Role = role
	return u, s.save(ctx, u)
}

// Summaries resolves the given ids to display summaries. Unknown ids are
// absent from the result.
func (s *Service) Summaries(ctx context.Context, ids []primitive.ObjectID) (map[primitive.ObjectID]*models.UserSummary, error) {
	found, err := s.repo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[primitive.ObjectID]*models.UserSummary, len(found))
	for _, u := range found {
		out[u.ID] = u.Summary()
	}
	return out, nil
}

func (s *Service) save(ctx context.Context, u *models.User) error {
	if err := s.repo.Save(ctx, u); err != nil {
		if errors.Is(err, ErrNotFound) {
			return apperr.NotFound("User not found")
		}
		return fmt.Errorf("save user: %w", err)
	}
	return nil
}

func between(s string, min, max int) bool {
	n := utf8.RuneCountInString(s)
	return n >= min && n <= max
}

func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}
