// Package registration implements the sign-up and token exchange flow:
// Unregistered -> PendingConfirmation -> Confirmed.
package registration

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"

	"yamdb/internal/domain/errors"
	"yamdb/internal/domain/models"
	"yamdb/internal/mail"
	"yamdb/internal/validation"

	"golang.org/x/crypto/bcrypt"
)

const (
	codeLength = 32
	codeChars  = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

type UserStore interface {
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
	UpdateUser(ctx context.Context, user *models.User) error
	// ConsumeConfirmationCode clears the code hash and marks the user
	// confirmed only if the stored hash still equals codeHash.
	ConsumeConfirmationCode(ctx context.Context, userID int64, codeHash string) (bool, error)
}

type TokenIssuer interface {
	Issue(userID int64) (string, error)
}

// Recorder receives flow events for metrics. It may be nil.
type Recorder interface {
	SignupCompleted()
	MailFailed()
}

type Service struct {
	users    UserStore
	sender   mail.Sender
	tokens   TokenIssuer
	recorder Recorder
	logger   *slog.Logger
	cost     int
}

type Option func(*Service)

func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithHashCost overrides the bcrypt cost used for confirmation codes.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

func NewService(users UserStore, sender mail.Sender, tokens TokenIssuer, opts ...Option) *Service {
	s := &Service{
		users:  users,
		sender: sender,
		tokens: tokens,
		logger: slog.Default(),
		cost:   bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Signup registers a new pending user or re-issues the code for an existing
// user whose username and email both match. The code itself is only ever
// delivered by mail.
func (s *Service) Signup(ctx context.Context, username, email string) (*models.User, error) {
	if err := validateSignup(username, email); err != nil {
		return nil, err
	}

	byName, err := s.lookup(ctx, s.users.GetUserByUsername, username)
	if err != nil {
		return nil, err
	}
	byEmail, err := s.lookup(ctx, s.users.GetUserByEmail, email)
	if err != nil {
		return nil, err
	}

	if byName != nil && byEmail != nil && byName.ID == byEmail.ID {
		if err := s.reissue(ctx, byName); err != nil {
			return nil, err
		}
		return byName, nil
	}
	if byName != nil || byEmail != nil {
		return nil, signupConflict(byName, byEmail)
	}

	code, hash, err := s.newCode()
	if err != nil {
		return nil, err
	}
	user := &models.User{
		Username:             username,
		Email:                email,
		Role:                 models.RoleUser,
		ConfirmationCodeHash: hash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, errors.ErrConflict) {
			return nil, errors.NewConflictError("username", "Пользователь с таким username или email уже существует.")
		}
		return nil, fmt.Errorf("create user %s: %w", username, err)
	}
	if s.recorder != nil {
		s.recorder.SignupCompleted()
	}
	s.dispatch(ctx, user, code)
	return user, nil
}

// ObtainToken exchanges a confirmation code for an access token. The code is
// single use.
func (s *Service) ObtainToken(ctx context.Context, username, code string) (string, error) {
	if username == "" {
		return "", errors.NewValidationError("username", "Обязательное поле.")
	}
	if code == "" {
		return "", errors.NewValidationError("confirmation_code", "Обязательное поле.")
	}

	user, err := s.users.GetUserByUsername(ctx, username)
	if err != nil {
		return "", err
	}

	if user.ConfirmationCodeHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(user.ConfirmationCodeHash), []byte(code)) != nil {
		return "", invalidCode()
	}

	consumed, err := s.users.ConsumeConfirmationCode(ctx, user.ID, user.ConfirmationCodeHash)
	if err != nil {
		return "", fmt.Errorf("consume confirmation code: %w", err)
	}
	if !consumed {
		return "", invalidCode()
	}

	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return "", fmt.Errorf("issue token: %w", err)
	}
	s.logger.InfoContext(ctx, "user confirmed", "user_id", user.ID, "username", user.Username)
	return token, nil
}

func (s *Service) reissue(ctx context.Context, user *models.User) error {
	code, hash, err := s.newCode()
	if err != nil {
		return err
	}
	user.ConfirmationCodeHash = hash
	if err := s.users.UpdateUser(ctx, user); err != nil {
		return fmt.Errorf("store confirmation code: %w", err)
	}
	s.dispatch(ctx, user, code)
	return nil
}

// dispatch never fails the caller: a lost mail is recoverable by signing up
// again with the same credentials.
func (s *Service) dispatch(ctx context.Context, user *models.User, code string) {
	subject, body := mail.ConfirmationMessage(user.Username, code)
	if err := s.sender.Send(ctx, user.Email, subject, body); err != nil {
		s.logger.ErrorContext(ctx, "confirmation mail failed",
			"user_id", user.ID, "email", user.Email, "error", err)
		if s.recorder != nil {
			s.recorder.MailFailed()
		}
	}
}

func (s *Service) newCode() (code, hash string, err error) {
	code, err = GenerateCode(codeLength)
	if err != nil {
		return "", "", err
	}
	h, err := bcrypt.GenerateFromPassword([]byte(code), s.cost)
	if err != nil {
		return "", "", fmt.Errorf("hash confirmation code: %w", err)
	}
	return code, string(h), nil
}

func (s *Service) lookup(ctx context.Context, get func(context.Context, string) (*models.User, error), key string) (*models.User, error) {
	user, err := get(ctx, key)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}

// GenerateCode returns a random alphanumeric string drawn from crypto/rand.
func GenerateCode(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("code length must be positive")
	}
	b := make([]byte, length)
	limit := big.NewInt(int64(len(codeChars)))
	for i := range b {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("generate confirmation code: %w", err)
		}
		b[i] = codeChars[n.Int64()]
	}
	return string(b), nil
}

func validateSignup(username, email string) error {
	result := &errors.ValidationError{Kind: errors.ErrInvalidInput}
	var verr *errors.ValidationError
	if err := validation.ValidateUsername(username); errors.As(err, &verr) {
		result.Add("username", verr.Fields["username"])
	}
	if email == "" {
		result.Add("email", "Обязательное поле.")
	} else if err := validation.ValidateEmail(email); errors.As(err, &verr) {
		result.Add("email", verr.Fields["email"])
	}
	if len(result.Fields) > 0 {
		return result
	}
	return nil
}

func signupConflict(byName, byEmail *models.User) error {
	result := &errors.ValidationError{Kind: errors.ErrConflict}
	if byName != nil {
		result.Add("username", "Пользователь с таким username уже зарегистрирован с другим email.")
	}
	if byEmail != nil {
		result.Add("email", "Пользователь с таким email уже зарегистрирован с другим username.")
	}
	return result
}

func invalidCode() error {
	return &errors.ValidationError{
		Kind:   errors.ErrInvalidInput,
		Fields: map[string]string{"confirmation_code": errors.ErrInvalidConfirmationCode.Error()},
	}
}
