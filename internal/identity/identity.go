// Package identity resolves the current actor from persisted client state.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/vovakirdan/bookchat/internal/auth"
	"github.com/vovakirdan/bookchat/internal/store"
)

// ErrNoIdentity is returned when no source yields a user id.
var ErrNoIdentity = errors.New("no identity available")

// Identity is the resolved actor.
type Identity struct {
	UserID string
	// Token is the bearer credential, empty when the id came from the cache.
	Token  string
	Source string
}

// Source is one persisted location an identity can be read from.
type Source interface {
	Name() string
	// Lookup reports ok=false when the location holds nothing usable.
	Lookup(ctx context.Context) (Identity, bool, error)
}

// Resolver tries its sources in a fixed order.
type Resolver struct {
	sources []Source
	log     *zerolog.Logger
}

// NewResolver creates a resolver over sources, highest precedence first.
func NewResolver(logger *zerolog.Logger, sources ...Source) *Resolver {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Resolver{sources: sources, log: logger}
}

// NewDefaultResolver checks the credential record, then the cached user.
func NewDefaultResolver(st store.StateStore, logger *zerolog.Logger) *Resolver {
	return NewResolver(logger, CredentialSource{Store: st}, CachedUserSource{Store: st})
}

// Resolve returns the first identity found. A source that fails to read is
// logged and skipped; when every source comes up empty it returns ErrNoIdentity.
func (r *Resolver) Resolve(ctx context.Context) (Identity, error) {
	for _, src := range r.sources {
		id, ok, err := src.Lookup(ctx)
		if err != nil {
			r.log.Warn().Err(err).Str("source", src.Name()).Msg("identity source unreadable")
			continue
		}
		if ok && id.UserID != "" {
			id.Source = src.Name()
			r.log.Debug().Str("source", id.Source).Str("user_id", id.UserID).Msg("identity resolved")
			return id, nil
		}
	}
	return Identity{}, ErrNoIdentity
}

// CredentialSource reads the server-set credential record. The user id comes
// from the record itself or, failing that, from the token claims.
type CredentialSource struct {
	Store store.StateStore
}

func (CredentialSource) Name() string { return "credential" }

func (s CredentialSource) Lookup(ctx context.Context) (Identity, bool, error) {
	raw, err := s.Store.Get(ctx, store.KeyCredential)
	if errors.Is(err, store.ErrNotFound) {
		return Identity{}, false, nil
	}
	if err != nil {
		return Identity{}, false, err
	}

	var cred store.Credential
	if err := json.Unmarshal([]byte(raw), &cred); err != nil {
		return Identity{}, false, fmt.Errorf("decode credential: %w", err)
	}

	userID := cred.UserID
	if userID == "" && cred.Token != "" {
		claims, err := auth.ParseClaims(cred.Token)
		if err != nil {
			return Identity{}, false, fmt.Errorf("credential token: %w", err)
		}
		userID = claims.ActorID()
	}
	if userID == "" {
		return Identity{}, false, nil
	}
	return Identity{UserID: userID, Token: cred.Token}, true, nil
}

// CachedUserSource reads the profile the client cached after its last sign-in.
type CachedUserSource struct {
	Store store.StateStore
}

func (CachedUserSource) Name() string { return "cached_user" }

func (s CachedUserSource) Lookup(ctx context.Context) (Identity, bool, error) {
	raw, err := s.Store.Get(ctx, store.KeyCachedUser)
	if errors.Is(err, store.ErrNotFound) {
		return Identity{}, false, nil
	}
	if err != nil {
		return Identity{}, false, err
	}

	var user store.CachedUser
	if err := json.Unmarshal([]byte(raw), &user); err != nil {
		return Identity{}, false, fmt.Errorf("decode cached user: %w", err)
	}
	if user.UserID() == "" {
		return Identity{}, false, nil
	}
	return Identity{UserID: user.UserID()}, true, nil
}

// SaveCredential stores the credential record consulted first by the default resolver.
func SaveCredential(ctx context.Context, st store.StateStore, cred store.Credential) error {
	if cred.Token == "" && cred.UserID == "" {
		return ErrNoIdentity
	}
	raw, err := json.Marshal(cred)
	if err != nil {
		return err
	}
	return st.Put(ctx, store.KeyCredential, string(raw))
}

// SaveCachedUser stores the client-side profile fallback.
func SaveCachedUser(ctx context.Context, st store.StateStore, user store.CachedUser) error {
	if user.UserID() == "" {
		return ErrNoIdentity
	}
	raw, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return st.Put(ctx, store.KeyCachedUser, string(raw))
}
