package services

import (
	"context"
	"errors"

	"devicegate/config"
	"devicegate/internal/kv"
	"devicegate/internal/models"
)

// UserService implements the admin-gated user record operations on the
// key-value store. Create and Reset are conditioned writes; existence is
// decided by the store, never by a prior read.
type UserService struct {
	store kv.Store
	table string
}

func NewUserService(store kv.Store, cfg *config.Config) *UserService {
	return &UserService{
		store: store,
		table: cfg.UsersTable,
	}
}

// Create inserts a new unbound user. Returns ErrUserExists if the identifier
// is already taken; the existing record is left untouched.
func (s *UserService) Create(ctx context.Context, userID, timestamp string) error {
	user := &models.User{
		UserID:    userID,
		DeviceID:  "",
		Timestamp: timestamp,
	}

	err := s.store.Put(ctx, s.table, kv.Key{Partition: userID}, user.ToItem(), true)
	if errors.Is(err, kv.ErrConditionFailed) {
		return ErrUserExists
	}
	return err
}

// Delete removes the record. The previous value distinguishes a real delete
// from a delete of a user that never existed.
func (s *UserService) Delete(ctx context.Context, userID string) error {
	_, err := s.store.Delete(ctx, s.table, kv.Key{Partition: userID})
	if errors.Is(err, kv.ErrNotFound) {
		return ErrUserNotFound
	}
	return err
}

// Reset clears the device binding, conditioned on the record existing.
func (s *UserService) Reset(ctx context.Context, userID string) error {
	err := s.store.Update(ctx, s.table,
		kv.Key{Partition: userID},
		kv.Item{models.AttrDeviceID: ""},
		&kv.UpdateCond{MustExist: true},
	)
	if errors.Is(err, kv.ErrConditionFailed) {
		return ErrUserNotFound
	}
	return err
}

// Get returns the record for userID, or ErrUserNotFound.
func (s *UserService) Get(ctx context.Context, userID string) (*models.User, error) {
	it, err := s.store.Get(ctx, s.table, kv.Key{Partition: userID})
	if errors.Is(err, kv.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}
	return models.UserFromItem(it), nil
}

// List returns every user record, unordered. No pagination; suitable only
// for small datasets.
func (s *UserService) List(ctx context.Context) ([]*models.User, error) {
	items, err := s.store.Scan(ctx, s.table)
	if err != nil {
		return nil, err
	}

	users := make([]*models.User, 0, len(items))
	for _, it := range items {
		users = append(users, models.UserFromItem(it))
	}
	return users, nil
}
