package services

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/example/bookstore/internal/models"
)

// DefaultOTPTTL is how long an issued code stays valid.
const DefaultOTPTTL = 5 * time.Minute

// OTPService issues and verifies one-time codes bound to a mobile number.
type OTPService struct {
	store  ChallengeStore
	sender SMSSender
	users  *UserStore
	ttl    time.Duration
	now    func() time.Time
}

// NewOTPService constructs an OTPService. A non-positive ttl falls back to DefaultOTPTTL.
func NewOTPService(store ChallengeStore, sender SMSSender, users *UserStore, ttl time.Duration) *OTPService {
	if ttl <= 0 {
		ttl = DefaultOTPTTL
	}
	return &OTPService{
		store:  store,
		sender: sender,
		users:  users,
		ttl:    ttl,
		now:    time.Now,
	}
}

// WithClock replaces the time source used for issuing and checking expiry.
func (s *OTPService) WithClock(now func() time.Time) *OTPService {
	s.now = now
	return s
}

// resetKeyPrefix keeps password-reset codes apart from login codes for the same mobile.
const resetKeyPrefix = "reset:"

// RequestChallenge issues a fresh login code for mobile, replacing any earlier
// one, and sends it by SMS. When the SMS cannot be sent the new challenge is
// withdrawn and ErrDelivery is returned.
func (s *OTPService) RequestChallenge(ctx context.Context, mobile string) error {
	mobile = strings.TrimSpace(mobile)
	return s.issue(ctx, mobile, mobile, "Your bookstore verification code is %s. It expires in %d minutes.")
}

// RequestResetChallenge issues a password-reset code for mobile. It never
// replaces or satisfies a pending login code.
func (s *OTPService) RequestResetChallenge(ctx context.Context, mobile string) error {
	mobile = strings.TrimSpace(mobile)
	return s.issue(ctx, resetKeyPrefix+mobile, mobile, "Your bookstore password reset code is %s. It expires in %d minutes.")
}

// VerifyChallenge consumes the login challenge for mobile and resolves the user,
// creating one on first login. The challenge is single use.
func (s *OTPService) VerifyChallenge(ctx context.Context, mobile, code string) (*models.User, error) {
	mobile = strings.TrimSpace(mobile)
	if err := s.consume(ctx, mobile, code); err != nil {
		return nil, err
	}
	return s.users.FindOrCreateByMobile(ctx, mobile)
}

// ConsumeResetChallenge checks and burns a password-reset code.
func (s *OTPService) ConsumeResetChallenge(ctx context.Context, mobile, code string) error {
	mobile = strings.TrimSpace(mobile)
	if mobile == "" {
		return ErrInvalidOTP
	}
	return s.consume(ctx, resetKeyPrefix+mobile, code)
}

func (s *OTPService) issue(ctx context.Context, key, mobile, template string) error {
	code, err := generateVerificationCode()
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}

	codeHash := hashCode(code)
	challenge := Challenge{CodeHash: codeHash, ExpiresAt: s.now().Add(s.ttl)}
	if err := s.store.Put(ctx, key, challenge); err != nil {
		return err
	}

	text := fmt.Sprintf(template, code, int(s.ttl.Minutes()))
	if err := s.sender.Send(ctx, mobile, text); err != nil {
		if discardErr := s.store.Discard(ctx, key, codeHash); discardErr != nil {
			log.Error().Err(discardErr).Str("mobile", MaskMobile(mobile)).Msg("failed to discard undelivered otp")
		}
		log.Warn().Err(err).Str("mobile", MaskMobile(mobile)).Msg("otp delivery failed")
		return fmt.Errorf("%w: %v", ErrDelivery, err)
	}

	log.Info().Str("mobile", MaskMobile(mobile)).Msg("otp sent")
	return nil
}

func (s *OTPService) consume(ctx context.Context, key, code string) error {
	code = strings.TrimSpace(code)
	if key == "" || code == "" {
		return ErrInvalidOTP
	}

	ok, err := s.store.Consume(ctx, key, hashCode(code), s.now())
	if err != nil {
		return err
	}
	if !ok {
		return ErrInvalidOTP
	}
	return nil
}

func generateVerificationCode() (string, error) {
	max := big.NewInt(1000000)
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func hashCode(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
