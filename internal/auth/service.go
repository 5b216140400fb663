// Package auth registers users, issues and revokes sessions, and manages the
// optional PIN used to re-enter the app.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"tipytap/internal/domain"     // Importing domain models
	"tipytap/internal/guard"      // Guard profiles
	"tipytap/internal/storage"    // Session and PIN store
	"tipytap/internal/utils"      // JWT utility functions
	"tipytap/internal/validation" // Input checks

	"github.com/google/uuid"     // User and session ids
	"github.com/sirupsen/logrus" // Logging library
	"golang.org/x/crypto/bcrypt" // Password hashing
	"gorm.io/gorm"               // GORM ORM library
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrEmailTaken         = errors.New("email already registered")
	ErrGuardTaken         = errors.New("guard profile already linked to another user")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrPINNotSet          = errors.New("PIN not enabled")
	ErrInvalidPIN         = errors.New("incorrect PIN")
)

// WalletCreator opens the wallet of a newly registered user.
type WalletCreator interface {
	CreateWallet(ctx context.Context, userID string) (*domain.Wallet, error)
}

// Service implements registration, login, logout and PIN management.
type Service struct {
	db      *gorm.DB
	store   storage.Store
	keys    storage.Keys
	wallets WalletCreator
	guards  guard.Resolver
	secret  string
	ttl     time.Duration
}

// NewService returns a Service. Users live in db, sessions and PINs in store.
// guards resolves the profile a guard user links to at registration.
func NewService(db *gorm.DB, store storage.Store, keys storage.Keys, wallets WalletCreator, guards guard.Resolver, secret string, ttl time.Duration) *Service {
	return &Service{db: db, store: store, keys: keys, wallets: wallets, guards: guards, secret: secret, ttl: ttl}
}

// RegisterInput is what a new user supplies.
type RegisterInput struct {
	Email       string
	Password    string
	Name        string
	PhoneNumber string
	UserType    string // tipper or guard
	GuardID     string // Guard profile to link, guard users only
}

// Session is an issued login.
type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *domain.User `json:"user"`
}

func invalidInput(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, msg)
}

// Register creates the user and their empty wallet and signs them in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	name := strings.TrimSpace(in.Name)
	// Validate input
	if !validation.Email(email) {
		return nil, invalidInput("Please enter a valid email address")
	}
	if res := validation.Password(in.Password); !res.Valid {
		return nil, invalidInput(res.Message)
	}
	if !validation.Name(name) {
		return nil, invalidInput("Please enter a valid name")
	}
	if in.PhoneNumber != "" && !validation.PhoneNumber(in.PhoneNumber) {
		return nil, invalidInput("Please enter a valid South African phone number")
	}
	userType := in.UserType
	if userType == "" {
		userType = domain.UserTypeTipper
	}
	if userType != domain.UserTypeTipper && userType != domain.UserTypeGuard {
		return nil, invalidInput("User type must be tipper or guard")
	}

	var count int64
	if err := s.db.WithContext(ctx).Model(&domain.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	if count > 0 {
		return nil, ErrEmailTaken
	}
	if userType == domain.UserTypeGuard {
		if err := s.checkGuardLink(ctx, strings.TrimSpace(in.GuardID)); err != nil {
			return nil, err
		}
	}
	// Hash the password and create the user
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	user := &domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PhoneNumber:  in.PhoneNumber,
		UserType:     userType,
		Role:         domain.RoleUser,
		PasswordHash: string(hash),
	}
	if userType == domain.UserTypeGuard {
		user.GuardID = strings.TrimSpace(in.GuardID)
	}
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	// Every user starts with an empty wallet
	if _, err := s.wallets.CreateWallet(ctx, user.ID); err != nil {
		if delErr := s.db.WithContext(ctx).Delete(&domain.User{}, "id = ?", user.ID).Error; delErr != nil {
			logrus.WithFields(logrus.Fields{
				"user_id": user.ID,
				"error":   delErr.Error(),
			}).Error("Failed to roll back user after wallet error")
		}
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	logrus.WithFields(logrus.Fields{
		"user_id":   user.ID,
		"user_type": user.UserType,
	}).Info("User registered")
	return s.issue(ctx, user)
}

// checkGuardLink makes sure guardID names an existing guard profile that no
// other user has claimed.
func (s *Service) checkGuardLink(ctx context.Context, guardID string) error {
	if guardID == "" {
		return invalidInput("Guard users must provide their guard id")
	}
	if _, err := s.guards.ResolveGuard(ctx, guardID); err != nil {
		if errors.Is(err, guard.ErrNotFound) {
			return invalidInput("Unknown guard id")
		}
		return fmt.Errorf("failed to look up guard: %w", err)
	}
	var linked int64
	if err := s.db.WithContext(ctx).Model(&domain.User{}).Where("guard_id = ?", guardID).Count(&linked).Error; err != nil {
		return fmt.Errorf("failed to look up guard link: %w", err)
	}
	if linked > 0 {
		return ErrGuardTaken
	}
	return nil
}

// Login checks the password and starts a new session. Any older session of
// the user stops being valid.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	var user domain.User
	if err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(strings.TrimSpace(email))).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	// Compare provided password with stored hash
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	return s.issue(ctx, &user)
}

func (s *Service) issue(ctx context.Context, user *domain.User) (*Session, error) {
	sessionID := uuid.NewString()
	token, err := utils.GenerateJWT(user.ID, user.Role, sessionID, s.secret, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}
	if err := s.store.Set(ctx, s.keys.Token(user.ID), sessionID); err != nil {
		return nil, err
	}
	if err := s.store.Set(ctx, s.keys.User(user.ID), user); err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: time.Now().Add(s.ttl).UTC(), User: user}, nil
}

// Logout ends the user's session. Store failures are logged and ignored.
func (s *Service) Logout(ctx context.Context, userID string) {
	for _, key := range []string{s.keys.Token(userID), s.keys.User(userID)} {
		if err := s.store.Remove(ctx, key); err != nil {
			logrus.WithFields(logrus.Fields{
				"user_id": userID,
				"key":     key,
				"error":   err.Error(),
			}).Warn("Failed to clear session data")
		}
	}
	logrus.WithField("user_id", userID).Info("User logged out")
}

// SetPIN enables PIN re-entry with a 4 digit pin.
func (s *Service) SetPIN(ctx context.Context, userID, pin string) error {
	if !validation.PIN(pin) {
		return invalidInput("PIN must be 4 digits")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash PIN: %w", err)
	}
	return s.store.Update(ctx, nil, func(storage.Reader) ([]storage.Write, error) {
		return []storage.Write{
			storage.Put(s.keys.PIN(userID), string(hash)),
			storage.Put(s.keys.PINEnabled(userID), true),
		}, nil
	})
}

// DisablePIN removes the user's PIN.
func (s *Service) DisablePIN(ctx context.Context, userID string) error {
	return s.store.Update(ctx, nil, func(storage.Reader) ([]storage.Write, error) {
		return []storage.Write{
			storage.Del(s.keys.PIN(userID)),
			storage.Del(s.keys.PINEnabled(userID)),
		}, nil
	})
}

// VerifyPIN checks pin against the stored hash. A correct PIN only unlocks
// the app locally, it does not create or extend a session.
func (s *Service) VerifyPIN(ctx context.Context, userID, pin string) error {
	var enabled bool
	if _, err := s.store.Get(ctx, s.keys.PINEnabled(userID), &enabled); err != nil {
		return err
	}
	var hash string
	found, err := s.store.Get(ctx, s.keys.PIN(userID), &hash)
	if err != nil {
		return err
	}
	if !enabled || !found {
		return ErrPINNotSet
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(pin)); err != nil {
		return ErrInvalidPIN
	}
	return nil
}
