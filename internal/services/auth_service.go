// Package services – AuthService
//
// This file implements AuthService, which verifies credentials, registers
// accounts and deletes them. Session handling is not done here: handlers
// pass the authenticated user to the session manager.
//
// Observability: public methods are OpenTelemetry-instrumented. Usernames
// are recorded on spans; passwords and hashes never are.
package services

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/tbourn/go-portfolio-backend/internal/domain"
	"github.com/tbourn/go-portfolio-backend/internal/repo"
)

const (
	minUsernameRunes = 2
	minPasswordRunes = 7
	// bcrypt ignores input past this many bytes.
	maxPasswordBytes = 72
)

// DBProvider hands out the shared database handle, connecting on first use.
type DBProvider interface {
	DB(ctx context.Context) (*gorm.DB, error)
}

// UserRepo defines the repository contract required by AuthService.
type UserRepo interface {
	// CreateUser inserts a user; a taken username yields repo.ErrDuplicate.
	CreateUser(ctx context.Context, db *gorm.DB, username, passwordHash string) (*domain.User, error)

	// GetUserByUsername is an exact, case-sensitive lookup.
	GetUserByUsername(ctx context.Context, db *gorm.DB, username string) (*domain.User, error)

	UsernameExists(ctx context.Context, db *gorm.DB, username string) (bool, error)

	// DeleteUser returns the number of deleted rows.
	DeleteUser(ctx context.Context, db *gorm.DB, id string) (int64, error)
}

// AuthService provides account operations.
type AuthService struct {
	DB   DBProvider
	Repo UserRepo

	// BcryptCost is the work factor for new hashes.
	BcryptCost int
}

// NewAuthService constructs an AuthService. A cost outside bcrypt's range
// falls back to 10.
func NewAuthService(db DBProvider, r UserRepo, cost int) *AuthService {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = 10
	}
	return &AuthService{DB: db, Repo: r, BcryptCost: cost}
}

// Authenticate verifies username and password. It returns ErrUnknownUser or
// ErrIncorrectPassword for bad credentials and nothing more specific.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (*domain.User, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "Authenticate",
		trace.WithAttributes(attribute.String("user.name", username)),
	)
	defer span.End()

	if username == "" || password == "" {
		return nil, ErrMissingCredentials
	}
	db, err := s.DB.DB(ctx)
	if err != nil {
		return nil, s.fail(span, err)
	}

	u, err := s.Repo.GetUserByUsername(ctx, db, username)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, s.fail(span, fmt.Errorf("lookup user: %w", err))
	}

	switch err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); {
	case err == nil:
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return nil, ErrIncorrectPassword
	default:
		// A malformed stored hash is an infrastructure fault, not a bad password.
		return nil, s.fail(span, fmt.Errorf("compare hash: %w", err))
	}
	span.SetAttributes(attribute.String("user.id", u.ID))
	return u, nil
}

// Register validates a signup and creates the account. Rule violations are
// returned as *ValidationError, checked in a fixed order. The pre-insert
// existence check only orders the messages; the unique index decides.
func (s *AuthService) Register(ctx context.Context, username, password1, password2 string) (*domain.User, error) {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "Register",
		trace.WithAttributes(attribute.String("user.name", username)),
	)
	defer span.End()

	switch {
	case username == "":
		return nil, invalid(MsgUsernameRequired)
	case password1 == "":
		return nil, invalid(MsgPasswordRequired)
	case password1 != password2:
		return nil, invalid(MsgPasswordMismatch)
	}

	db, err := s.DB.DB(ctx)
	if err != nil {
		return nil, s.fail(span, err)
	}
	taken, err := s.Repo.UsernameExists(ctx, db, username)
	if err != nil {
		return nil, s.fail(span, fmt.Errorf("check username: %w", err))
	}

	// The second password comparison of the signup flow is already covered
	// above; its message could never be produced here.
	switch {
	case taken:
		return nil, invalid(MsgUsernameTaken)
	case utf8.RuneCountInString(username) < minUsernameRunes:
		return nil, invalid(MsgUsernameShort)
	case utf8.RuneCountInString(password1) < minPasswordRunes:
		return nil, invalid(MsgPasswordShort)
	case len(password1) > maxPasswordBytes:
		return nil, invalid(MsgPasswordLong)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password1), s.BcryptCost)
	if err != nil {
		return nil, s.fail(span, fmt.Errorf("hash password: %w", err))
	}

	u, err := s.Repo.CreateUser(ctx, db, username, string(hash))
	if err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			return nil, invalid(MsgUsernameTaken)
		}
		return nil, s.fail(span, fmt.Errorf("create user: %w", err))
	}
	span.SetAttributes(attribute.String("user.id", u.ID))
	return u, nil
}

// DeleteAccount removes the account. Exactly one row must go away.
func (s *AuthService) DeleteAccount(ctx context.Context, userID string) error {
	ctx, span := otel.Tracer("services/AuthService").Start(ctx, "DeleteAccount",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	db, err := s.DB.DB(ctx)
	if err != nil {
		return s.fail(span, err)
	}
	n, err := s.Repo.DeleteUser(ctx, db, userID)
	if err != nil {
		return s.fail(span, fmt.Errorf("delete user: %w", err))
	}
	if n != 1 {
		return s.fail(span, ErrAccountNotDeleted)
	}
	return nil
}

func (s *AuthService) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
