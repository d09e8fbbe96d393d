package users

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/portfolio/internal/auth"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLength = 8

var (
	// ErrInvalidCredentials indicates the email or password did not match an account.
	ErrInvalidCredentials = errors.New("users: invalid credentials")
	// ErrInvalidAccount indicates seed input was incomplete.
	ErrInvalidAccount = errors.New("users: invalid account")
)

// ServiceConfig describes the dependencies required for admin account management.
type ServiceConfig struct {
	Database   *gorm.DB
	Clock      func() time.Time
	BcryptCost int
}

// Service authenticates administrators and seeds their accounts.
type Service struct {
	db        *gorm.DB
	now       func() time.Time
	cost      int
	dummyHash []byte
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	cost := cfg.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		return nil, fmt.Errorf("users: bcrypt cost %d out of range", cost)
	}
	// Unknown emails are compared against this hash so lookups take the same time.
	dummyHash, err := bcrypt.GenerateFromPassword([]byte("portfolio-placeholder"), cost)
	if err != nil {
		return nil, fmt.Errorf("users: prepare placeholder hash: %w", err)
	}
	return &Service{
		db:        cfg.Database,
		now:       clock,
		cost:      cost,
		dummyHash: dummyHash,
	}, nil
}

// Authenticate verifies the email and password and records the login time.
func (s *Service) Authenticate(ctx context.Context, email, password string) (Account, error) {
	normalized := normalizeEmail(email)
	if normalized == "" || password == "" {
		return Account{}, ErrInvalidCredentials
	}

	var account Account
	err := s.db.WithContext(ctx).
		Where("email = ?", normalized).
		Take(&account).
		Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return Account{}, ErrInvalidCredentials
	}
	if err != nil {
		return Account{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(password)); err != nil {
		return Account{}, ErrInvalidCredentials
	}

	loginAt := s.now().UTC()
	if err := s.db.WithContext(ctx).
		Model(&Account{}).
		Where("email = ?", normalized).
		Update("last_login_at", loginAt).
		Error; err != nil {
		return Account{}, err
	}
	account.LastLoginAt = &loginAt
	return account, nil
}

// EnsureAdmin creates or refreshes an ADMIN account with the given password.
func (s *Service) EnsureAdmin(ctx context.Context, email, displayName, password string) (Account, error) {
	normalized := normalizeEmail(email)
	if normalized == "" || !strings.Contains(normalized, "@") {
		return Account{}, fmt.Errorf("%w: email is required", ErrInvalidAccount)
	}
	if len(password) < minPasswordLength {
		return Account{}, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidAccount, minPasswordLength)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return Account{}, err
	}

	var account Account
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lookupErr := tx.Where("email = ?", normalized).Take(&account).Error
		if errors.Is(lookupErr, gorm.ErrRecordNotFound) {
			account = Account{
				Email:        normalized,
				DisplayName:  strings.TrimSpace(displayName),
				PasswordHash: string(hash),
				Role:         auth.RoleAdmin,
			}
			return tx.Create(&account).Error
		}
		if lookupErr != nil {
			return lookupErr
		}

		updates := map[string]interface{}{
			"password_hash": string(hash),
			"role":          auth.RoleAdmin,
		}
		if display := strings.TrimSpace(displayName); display != "" {
			updates["display_name"] = display
			account.DisplayName = display
		}
		account.PasswordHash = string(hash)
		account.Role = auth.RoleAdmin
		return tx.Model(&Account{}).Where("email = ?", normalized).Updates(updates).Error
	})
	if err != nil {
		return Account{}, err
	}
	return account, nil
}

// SessionSubject maps an account onto the claims carried by its session token.
func (a Account) SessionSubject() auth.SessionSubject {
	return auth.SessionSubject{
		UserID:      a.Email,
		Email:       a.Email,
		DisplayName: a.DisplayName,
		Roles:       []string{a.Role},
	}
}
