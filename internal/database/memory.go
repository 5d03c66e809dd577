package database

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/PaulBabatuyi/PlacementAssets/internal/models"
	"github.com/google/uuid"
)

// MemoryStore keeps owner records in process memory. Used for local
// development and tests.
type MemoryStore struct {
	mu     sync.RWMutex
	owners map[models.OwnerKind]map[string]models.OwnerRecord // kind -> user id -> record

	// FailSaves makes every SaveOwner call fail, for exercising the
	// persistence error path.
	FailSaves error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		owners: map[models.OwnerKind]map[string]models.OwnerRecord{
			models.OwnerStudent: {},
			models.OwnerCompany: {},
		},
	}
}

func (m *MemoryStore) FindOwner(ctx context.Context, kind models.OwnerKind, userID string) (*models.OwnerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	byUser, ok := m.owners[kind]
	if !ok {
		return nil, fmt.Errorf("unknown owner kind %q", kind)
	}
	rec, ok := byUser[userID]
	if !ok {
		return nil, ErrOwnerNotFound
	}
	return &rec, nil
}

func (m *MemoryStore) CreateOwner(ctx context.Context, rec *models.OwnerRecord) (*models.OwnerRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byUser, ok := m.owners[rec.Kind]
	if !ok {
		return nil, fmt.Errorf("unknown owner kind %q", rec.Kind)
	}
	if _, exists := byUser[rec.UserID]; exists {
		return nil, fmt.Errorf("%s profile for %s already exists", rec.Kind, rec.UserID)
	}

	created := *rec
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	now := time.Now()
	created.CreatedAt, created.UpdatedAt = now, now
	byUser[created.UserID] = created

	return &created, nil
}

func (m *MemoryStore) SaveOwner(ctx context.Context, rec *models.OwnerRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailSaves != nil {
		return m.FailSaves
	}

	byUser, ok := m.owners[rec.Kind]
	if !ok {
		return fmt.Errorf("unknown owner kind %q", rec.Kind)
	}
	current, ok := byUser[rec.UserID]
	if !ok || current.ID != rec.ID {
		return ErrNoRowsUpdated
	}

	rec.UpdatedAt = time.Now()
	byUser[rec.UserID] = *rec
	return nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
