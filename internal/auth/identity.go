package auth

import (
	"context"
	"errors"
	"fmt"

	"tipytap/internal/domain"
	"tipytap/internal/guard"
	"tipytap/internal/storage"
	"tipytap/internal/utils"

	"gorm.io/gorm"
)

// ErrNoSession is returned when the context carries no token claims.
var ErrNoSession = errors.New("no session")

type claimsKey struct{}

// WithClaims returns ctx carrying the claims of a parsed token.
func WithClaims(ctx context.Context, claims *utils.Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, claims)
}

// ClaimsFrom returns the claims stored by WithClaims.
func ClaimsFrom(ctx context.Context) (*utils.Claims, bool) {
	claims, ok := ctx.Value(claimsKey{}).(*utils.Claims)
	return claims, ok && claims != nil
}

// SessionIdentity answers who is calling from the token claims in the
// context. A token is only honoured while its session id is the one stored
// for the user, so logging out or in elsewhere revokes it.
type SessionIdentity struct {
	db     *gorm.DB
	store  storage.Store
	keys   storage.Keys
	guards guard.Resolver
}

// NewSessionIdentity returns an identity provider.
func NewSessionIdentity(db *gorm.DB, store storage.Store, keys storage.Keys, guards guard.Resolver) *SessionIdentity {
	return &SessionIdentity{db: db, store: store, keys: keys, guards: guards}
}

func (s *SessionIdentity) CurrentUserID(ctx context.Context) (string, error) {
	claims, ok := ClaimsFrom(ctx)
	if !ok {
		return "", ErrNoSession
	}
	return claims.UserID, nil
}

func (s *SessionIdentity) IsAuthenticated(ctx context.Context) (bool, error) {
	claims, ok := ClaimsFrom(ctx)
	if !ok {
		return false, nil
	}
	var sessionID string
	found, err := s.store.Get(ctx, s.keys.Token(claims.UserID), &sessionID)
	if err != nil {
		return false, err
	}
	return found && sessionID != "" && sessionID == claims.SessionID(), nil
}

// CurrentGuardProfile returns the guard linked to the caller, or nil for
// tippers and guards without a profile.
func (s *SessionIdentity) CurrentGuardProfile(ctx context.Context) (*domain.CarGuard, error) {
	user, err := s.CurrentUser(ctx)
	if err != nil {
		return nil, err
	}
	if user.UserType != domain.UserTypeGuard || user.GuardID == "" {
		return nil, nil
	}
	g, err := s.guards.ResolveGuard(ctx, user.GuardID)
	if errors.Is(err, guard.ErrNotFound) {
		return nil, nil
	}
	return g, err
}

// CurrentUser returns the caller's profile, from the store when cached.
func (s *SessionIdentity) CurrentUser(ctx context.Context) (*domain.User, error) {
	userID, err := s.CurrentUserID(ctx)
	if err != nil {
		return nil, err
	}
	var user domain.User
	found, err := s.store.Get(ctx, s.keys.User(userID), &user)
	if err != nil {
		return nil, err
	}
	if found {
		return &user, nil
	}
	// Cache miss, read from DB
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNoSession
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}
	_ = s.store.Set(ctx, s.keys.User(userID), &user)
	return &user, nil
}
