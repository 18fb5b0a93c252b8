package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/goodtune/fieldtrack/internal/storage"
)

// DefaultRegistrationKey is the storage key of the registration record.
const DefaultRegistrationKey = "tracking_registration"

// Registration records which user background capture is attributed to.
type Registration struct {
	ActiveUserID string `json:"active_user_id,omitempty"`
}

// RegistrationStore persists the registration record so a capture running
// detached from the controller can recover the active user.
type RegistrationStore struct {
	kv  storage.KeyValueStore
	key string
}

// NewRegistrationStore creates a registration store under key.
func NewRegistrationStore(kv storage.KeyValueStore, key string) *RegistrationStore {
	if key == "" {
		key = DefaultRegistrationKey
	}
	return &RegistrationStore{kv: kv, key: key}
}

// Load returns the stored record, or an empty one when none is stored.
func (r *RegistrationStore) Load(ctx context.Context) (Registration, error) {
	raw, err := r.kv.Get(ctx, r.key)
	if errors.Is(err, storage.ErrNotFound) {
		return Registration{}, nil
	}
	if err != nil {
		return Registration{}, fmt.Errorf("%w: read registration: %v", ErrLocalStorage, err)
	}

	var reg Registration
	if err := json.Unmarshal([]byte(raw), &reg); err != nil {
		return Registration{}, fmt.Errorf("%w: decode registration: %v", ErrLocalStorage, err)
	}
	return reg, nil
}

// ActiveUser returns the registered user, or ErrMissingIdentity.
func (r *RegistrationStore) ActiveUser(ctx context.Context) (string, error) {
	reg, err := r.Load(ctx)
	if err != nil {
		return "", err
	}
	if reg.ActiveUserID == "" {
		return "", ErrMissingIdentity
	}
	return reg.ActiveUserID, nil
}

// Save records userID as the active user.
func (r *RegistrationStore) Save(ctx context.Context, userID string) error {
	data, err := json.Marshal(Registration{ActiveUserID: userID})
	if err != nil {
		return fmt.Errorf("%w: encode registration: %v", ErrLocalStorage, err)
	}
	if err := r.kv.Set(ctx, r.key, string(data)); err != nil {
		return fmt.Errorf("%w: write registration: %v", ErrLocalStorage, err)
	}
	return nil
}

// Clear removes the record.
func (r *RegistrationStore) Clear(ctx context.Context) error {
	if err := r.kv.Delete(ctx, r.key); err != nil {
		return fmt.Errorf("%w: clear registration: %v", ErrLocalStorage, err)
	}
	return nil
}
