package store

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a key has no stored value.
var ErrNotFound = errors.New("not found")

// Well-known keys of the persisted client state.
const (
	// KeyCredential holds the credential record set after sign-in:
	// {"token": "<jwt>", "userId": "..."}.
	KeyCredential = "credential"
	// KeyCachedUser holds the profile the client cached for itself.
	KeyCachedUser = "cached_user"
)

// Credential is the record stored under KeyCredential.
type Credential struct {
	Token  string `json:"token,omitempty"`
	UserID string `json:"userId,omitempty"`
}

// CachedUser is the record stored under KeyCachedUser. Either id field may be set.
type CachedUser struct {
	ID    string `json:"_id,omitempty"`
	AltID string `json:"id,omitempty"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

// UserID returns whichever identifier the record carries.
func (u CachedUser) UserID() string {
	if u.ID != "" {
		return u.ID
	}
	return u.AltID
}

// StateStore handles persisted client state.
type StateStore interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)

	// Put stores value under key, replacing any previous value.
	Put(ctx context.Context, key, value string) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Clear removes every key (used on logout).
	Clear(ctx context.Context) error

	// Close closes the underlying database connection.
	Close() error
}
