package users

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/communityconnect/connect/backend/go-services/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryRepo is an in-memory UserRepository used when no MongoDB URI is
// configured and in unit tests. Records are copied in and out.
type MemoryRepo struct {
	mu    sync.RWMutex
	store map[primitive.ObjectID]models.User
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[primitive.ObjectID]models.User)}
}

func (m *MemoryRepo) GetByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u, ok := m.store[id]; ok {
		return &u, nil
	}
	return nil, nil
}

func (m *MemoryRepo) FindByIDs(_ context.Context, ids []primitive.ObjectID) ([]*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*models.User{}
	for _, id := range ids {
		if u, ok := m.store[id]; ok {
			out = append(out, &u)
		}
	}
	return out, nil
}

func (m *MemoryRepo) FindByExternalIDOrEmail(_ context.Context, externalID, email string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, u := range m.store {
		if strings.EqualFold(u.Email, email) || (externalID != "" && u.ExternalID == externalID) {
			return &u, nil
		}
	}
	return nil, nil
}

func (m *MemoryRepo) Create(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.checkUnique(u); err != nil {
		return err
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	m.store[u.ID] = *u
	return nil
}

func (m *MemoryRepo) Save(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.store[u.ID]; !ok {
		return ErrNotFound
	}
	if err := m.checkUnique(u); err != nil {
		return err
	}
	u.UpdatedAt = time.Now().UTC()
	m.store[u.ID] = *u
	return nil
}

func (m *MemoryRepo) List(_ context.Context) ([]*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*models.User, 0, len(m.store))
	for _, u := range m.store {
		u := u
		out = append(out, &u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (m *MemoryRepo) ListActiveAdmins(_ context.Context) ([]*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []*models.User{}
	for _, u := range m.store {
		if u.Role == models.RoleAdmin && u.IsActive {
			u := u
			out = append(out, &u)
		}
	}
	return out, nil
}

func (m *MemoryRepo) CountByRole(_ context.Context) (map[models.Role]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := map[models.Role]int64{}
	for _, u := range m.store {
		out[u.Role]++
	}
	return out, nil
}

// checkUnique mirrors the unique indexes of the Mongo collection.
func (m *MemoryRepo) checkUnique(u *models.User) error {
	for id, other := range m.store {
		if id == u.ID {
			continue
		}
		if strings.EqualFold(other.Email, u.Email) {
			return fmt.Errorf("duplicate email %q", u.Email)
		}
		if u.ExternalID != "" && other.ExternalID == u.ExternalID {
			return fmt.Errorf("duplicate externalId %q", u.ExternalID)
		}
	}
	return nil
}
