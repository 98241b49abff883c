package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/example/bookstore/internal/database"
	"github.com/example/bookstore/internal/models"
	"github.com/example/bookstore/internal/utils"
)

const minPasswordLength = 6

// RegisterInput carries the fields accepted at registration.
type RegisterInput struct {
	Name     string
	Email    string
	Mobile   string
	Password string
}

// UserStore persists user identities and password hashes.
type UserStore struct {
	db         *gorm.DB
	bcryptCost int
}

// NewUserStore constructs a UserStore.
func NewUserStore(db *gorm.DB, bcryptCost int) *UserStore {
	return &UserStore{db: db, bcryptCost: bcryptCost}
}

// Register creates a password account. Uniqueness of email and mobile is
// ultimately decided by the unique indexes, the pre-check only gives a fast answer.
func (s *UserStore) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	mobile := strings.TrimSpace(in.Mobile)
	if email == "" && mobile == "" {
		return nil, ErrMissingIdentifier
	}
	if len(in.Password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	exists, err := s.identifierTaken(ctx, email, mobile)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrConflict
	}

	passwordHash, err := utils.HashPasswordWithCost(in.Password, s.bcryptCost)
	if err != nil {
		if errors.Is(err, utils.ErrPasswordTooLong) {
			return nil, err
		}
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        optional(email),
		Mobile:       optional(mobile),
		PasswordHash: passwordHash,
		IsNewUser:    true,
	}

	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	log.Info().Str("user_id", user.ID.String()).Msg("user registered")
	return &user, nil
}

// FindByEmailOrMobile looks the identifier up as an email first, then as a mobile.
func (s *UserStore) FindByEmailOrMobile(ctx context.Context, identifier string) (*models.User, error) {
	identifier = strings.TrimSpace(identifier)
	if identifier == "" {
		return nil, ErrUserNotFound
	}

	var user models.User
	err := s.db.WithContext(ctx).
		Where("email = ? OR mobile = ?", strings.ToLower(identifier), identifier).
		First(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// FindByID loads a user by primary key.
func (s *UserStore) FindByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).First(&user, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// UpdateName changes the display name and returns the updated user.
func (s *UserStore) UpdateName(ctx context.Context, id uuid.UUID, name string) (*models.User, error) {
	result := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("name", strings.TrimSpace(name))
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrUserNotFound
	}
	return s.FindByID(ctx, id)
}

// SetPasswordByMobile replaces the password of the account owning mobile.
func (s *UserStore) SetPasswordByMobile(ctx context.Context, mobile, password string) error {
	if len(password) < minPasswordLength {
		return ErrWeakPassword
	}
	passwordHash, err := utils.HashPasswordWithCost(password, s.bcryptCost)
	if err != nil {
		if errors.Is(err, utils.ErrPasswordTooLong) {
			return err
		}
		return fmt.Errorf("hash password: %w", err)
	}

	result := s.db.WithContext(ctx).Model(&models.User{}).
		Where("mobile = ?", strings.TrimSpace(mobile)).
		Update("password_hash", passwordHash)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// VerifyPassword compares plaintext against the stored bcrypt hash.
// OTP-only accounts never match.
func (s *UserStore) VerifyPassword(user *models.User, password string) bool {
	if user == nil || !user.HasPassword() {
		return false
	}
	return utils.CheckPassword(user.PasswordHash, password)
}

// Authenticate resolves a login attempt. Unknown identifiers and wrong passwords
// both yield ErrInvalidCredentials.
func (s *UserStore) Authenticate(ctx context.Context, identifier, password string) (*models.User, error) {
	user, err := s.FindByEmailOrMobile(ctx, identifier)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}
	if !s.VerifyPassword(user, password) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// FindOrCreateByMobile returns the user owning mobile, creating an OTP-only
// account when none exists. A concurrent insert for the same mobile is
// resolved by re-reading the row that won.
func (s *UserStore) FindOrCreateByMobile(ctx context.Context, mobile string) (*models.User, error) {
	mobile = strings.TrimSpace(mobile)

	var user models.User
	err := s.db.WithContext(ctx).Where("mobile = ?", mobile).First(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	user = models.User{Mobile: optional(mobile), IsNewUser: true}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if !database.IsUniqueViolation(err) {
			return nil, fmt.Errorf("create user: %w", err)
		}
		var winner models.User
		if err := s.db.WithContext(ctx).Where("mobile = ?", mobile).First(&winner).Error; err != nil {
			return nil, err
		}
		return &winner, nil
	}

	log.Info().Str("user_id", user.ID.String()).Str("mobile", MaskMobile(mobile)).Msg("user created from otp")
	return &user, nil
}

func (s *UserStore) identifierTaken(ctx context.Context, email, mobile string) (bool, error) {
	query := s.db.WithContext(ctx).Model(&models.User{})
	switch {
	case email != "" && mobile != "":
		query = query.Where("email = ? OR mobile = ?", email, mobile)
	case email != "":
		query = query.Where("email = ?", email)
	default:
		query = query.Where("mobile = ?", mobile)
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

// MaskMobile keeps the last four digits of a phone number for logs.
func MaskMobile(mobile string) string {
	if len(mobile) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(mobile)-4) + mobile[len(mobile)-4:]
}

func optional(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
