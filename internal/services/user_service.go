package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/markdave123-py/smartbot/internal/core"
	"github.com/markdave123-py/smartbot/internal/models"
)

const (
	otpTTL            = 10 * time.Minute
	minPasswordLength = 6
)

// Notifier delivers one-time codes to users.
type Notifier interface {
	SendOTP(ctx context.Context, email, otpType, code string) error
}

// LogNotifier writes codes to the log instead of sending mail. The code
// itself only appears at debug level.
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notifier")}
}

func (n *LogNotifier) SendOTP(_ context.Context, email, otpType, code string) error {
	n.logger.Info("otp issued", zap.String("email", email), zap.String("type", otpType))
	n.logger.Debug("otp code", zap.String("email", email), zap.String("code", code))
	return nil
}

type UserService struct {
	db        core.AccountStore
	notifier  Notifier
	jwtSecret []byte
	tokenTTL  time.Duration
	now       func() time.Time
	logger    *zap.Logger
}

func NewUserService(db core.AccountStore, notifier Notifier, jwtSecret string, tokenTTL time.Duration, logger *zap.Logger) *UserService {
	return &UserService{
		db:        db,
		notifier:  notifier,
		jwtSecret: []byte(jwtSecret),
		tokenTTL:  tokenTTL,
		now:       time.Now,
		logger:    logger.Named("users"),
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Register creates an unverified account and sends a verification code.
func (s *UserService) Register(ctx context.Context, email, password string) (*models.User, error) {
	email = normalizeEmail(email)
	if email == "" || len(password) < minPasswordLength {
		return nil, fmt.Errorf("%w: email and a password of at least %d characters are required", ErrInvalidInput, minPasswordLength)
	}

	existing, err := s.db.GetUserByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: email already registered", ErrConflict)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: string(hash),
		Tier:         models.TierFree,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.db.CreateUser(ctx, user); err != nil {
		if errors.Is(err, core.ErrDuplicate) {
			return nil, fmt.Errorf("%w: email already registered", ErrConflict)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	if err := s.issueOTP(ctx, user, models.OTPVerify); err != nil {
		return nil, err
	}
	return user, nil
}

// VerifyOTP consumes a verification code and returns a session token.
func (s *UserService) VerifyOTP(ctx context.Context, email, code string) (string, *models.User, error) {
	user, err := s.db.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return "", nil, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return "", nil, fmt.Errorf("%w: invalid or expired code", ErrInvalidInput)
	}

	if err := s.consumeOTP(ctx, user.ID, models.OTPVerify, code); err != nil {
		return "", nil, err
	}
	if err := s.db.MarkUserVerified(ctx, user.ID); err != nil {
		return "", nil, fmt.Errorf("mark verified: %w", err)
	}
	user.IsVerified = true

	token, err := s.IssueToken(user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

func (s *UserService) Login(ctx context.Context, email, password string) (string, *models.User, error) {
	user, err := s.db.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return "", nil, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrUnauthorized
	}
	if !user.IsVerified {
		return "", nil, ErrUnverified
	}

	token, err := s.IssueToken(user)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

// ForgotPassword issues a reset code when the account exists. Unknown emails
// are not reported to the caller.
func (s *UserService) ForgotPassword(ctx context.Context, email string) error {
	user, err := s.db.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		s.logger.Debug("password reset requested for unknown email")
		return nil
	}
	return s.issueOTP(ctx, user, models.OTPReset)
}

// ResendVerification issues a fresh verification code for an unverified
// account. Unknown or already verified emails are not reported to the caller.
func (s *UserService) ResendVerification(ctx context.Context, email string) error {
	user, err := s.db.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if user == nil || user.IsVerified {
		s.logger.Debug("verification resend skipped", zap.Bool("known", user != nil))
		return nil
	}
	return s.issueOTP(ctx, user, models.OTPVerify)
}

func (s *UserService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	user, err := s.db.GetUserByEmail(ctx, normalizeEmail(email))
	if err != nil {
		return fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return fmt.Errorf("%w: invalid or expired code", ErrInvalidInput)
	}
	if err := s.consumeOTP(ctx, user.ID, models.OTPReset, code); err != nil {
		return err
	}
	return s.setPassword(ctx, user.ID, newPassword)
}

func (s *UserService) ChangePassword(ctx context.Context, userID, current, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLength)
	}
	user, err := s.GetByID(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
		return ErrUnauthorized
	}
	return s.setPassword(ctx, user.ID, newPassword)
}

func (s *UserService) GetByID(ctx context.Context, id string) (*models.User, error) {
	user, err := s.db.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("lookup user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("%w: user", ErrNotFound)
	}
	return user, nil
}

// IssueToken signs an HS256 token carrying the user id and email.
func (s *UserService) IssueToken(user *models.User) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"user_id": user.ID,
		"email":   user.Email,
		"iat":     now.Unix(),
		"exp":     now.Add(s.tokenTTL).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.jwtSecret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return token, nil
}

func (s *UserService) setPassword(ctx context.Context, userID, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.db.UpdatePasswordHash(ctx, userID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	return nil
}

func (s *UserService) issueOTP(ctx context.Context, user *models.User, otpType string) error {
	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("generate otp: %w", err)
	}
	now := s.now().UTC()
	otp := &models.OTPCode{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		Code:      code,
		Type:      otpType,
		ExpiresAt: now.Add(otpTTL),
		CreatedAt: now,
	}
	if err := s.db.CreateOTPCode(ctx, otp); err != nil {
		return fmt.Errorf("store otp: %w", err)
	}
	if err := s.notifier.SendOTP(ctx, user.Email, otpType, code); err != nil {
		s.logger.Error("otp delivery failed", zap.String("user_id", user.ID), zap.Error(err))
	}
	return nil
}

func (s *UserService) consumeOTP(ctx context.Context, userID, otpType, code string) error {
	otp, err := s.db.ConsumeOTPCode(ctx, userID, otpType, strings.TrimSpace(code), s.now().UTC())
	if err != nil {
		return fmt.Errorf("consume otp: %w", err)
	}
	if otp == nil {
		return fmt.Errorf("%w: invalid or expired code", ErrInvalidInput)
	}
	return nil
}

func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
