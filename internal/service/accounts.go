package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/juju/errors"
	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"adminhub/internal/auth"
	"adminhub/internal/db"
	"adminhub/internal/model"
)

// MinPasswordLength applies to accounts created by the portal.
const MinPasswordLength = 8

type AccountStore interface {
	GetUser(ctx context.Context, id string) (db.PortalUser, error)
	GetUserByUsername(ctx context.Context, username string) (db.PortalUser, error)
	CreateUser(ctx context.Context, p db.CreateUserParams) (db.PortalUser, error)
	Permissions(ctx context.Context, groupID int) ([]string, error)
	RecordLoginFailure(ctx context.Context, id string, lockAfter int) (int, bool, error)
	ResetLoginFailures(ctx context.Context, id string) error
}

type TokenIssuer interface {
	Issue(claims auth.Claims) (string, time.Time, error)
}

// AccountService signs portal users in.
type AccountService struct {
	accounts  AccountStore
	tokens    TokenIssuer
	lockAfter int
	log       *zap.Logger
}

func NewAccountService(accounts AccountStore, tokens TokenIssuer, lockAfter int, log *zap.Logger) *AccountService {
	if lockAfter < 1 {
		lockAfter = 5
	}
	return &AccountService{accounts: accounts, tokens: tokens, lockAfter: lockAfter, log: log}
}

var errBadCredentials = errors.Unauthorizedf("invalid username or password")

func (s *AccountService) permissions(ctx context.Context, u db.PortalUser) ([]string, error) {
	if u.GroupID == nil {
		return []string{}, nil
	}
	perms, err := s.accounts.Permissions(ctx, *u.GroupID)
	if err != nil {
		return nil, fmt.Errorf("failed to load permissions: %w", err)
	}
	if perms == nil {
		perms = []string{}
	}
	return perms, nil
}

// Login checks a password and issues a session token. Each wrong password
// counts towards the lock; a correct one resets the count.
func (s *AccountService) Login(ctx context.Context, in model.LoginInput) (*model.LoginResponse, error) {
	u, err := s.accounts.GetUserByUsername(ctx, strings.TrimSpace(in.Username))
	if errors.Is(err, errors.NotFound) {
		return nil, errBadCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load portal user: %w", err)
	}
	if u.IsLocked {
		return nil, errors.Forbiddenf("account %q is locked", u.Username)
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
		attempts, locked, err := s.accounts.RecordLoginFailure(ctx, u.ID, s.lockAfter)
		if err != nil {
			return nil, fmt.Errorf("failed to record login failure: %w", err)
		}
		s.log.Warn("Failed login", zap.String("username", u.Username), zap.Int("attempts", attempts))
		if locked {
			return nil, errors.Forbiddenf("account %q is locked", u.Username)
		}
		return nil, errBadCredentials
	}
	if !u.IsActive {
		return nil, errors.Forbiddenf("account %q is inactive", u.Username)
	}
	if u.InvalidLoginAttempts > 0 {
		if err := s.accounts.ResetLoginFailures(ctx, u.ID); err != nil {
			return nil, fmt.Errorf("failed to reset login failures: %w", err)
		}
	}

	perms, err := s.permissions(ctx, u)
	if err != nil {
		return nil, err
	}
	token, expires, err := s.tokens.Issue(auth.Claims{
		Username:    u.Username,
		UserID:      u.ID,
		Access:      u.Group,
		Permissions: perms,
		Name:        u.Name,
		Email:       u.Email,
		Avatar:      u.Avatar,
		IsActive:    u.IsActive,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to issue token: %w", err)
	}

	s.log.Info("Portal user logged in", zap.String("username", u.Username))
	return &model.LoginResponse{
		Status:           "ok",
		Token:            token,
		ExpiresAt:        expires,
		CurrentAuthority: u.Group,
	}, nil
}

func toCurrentUser(u db.PortalUser, perms []string) *model.CurrentUser {
	return &model.CurrentUser{
		ID:          u.ID,
		Username:    u.Username,
		Name:        u.Name,
		Email:       u.Email,
		Avatar:      u.Avatar,
		Access:      u.Group,
		Permissions: perms,
		IsActive:    u.IsActive,
	}
}

// CurrentUser reloads the session's account so changes since login show.
func (s *AccountService) CurrentUser(ctx context.Context, userID string) (*model.CurrentUser, error) {
	u, err := s.accounts.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	perms, err := s.permissions(ctx, u)
	if err != nil {
		return nil, err
	}
	return toCurrentUser(u, perms), nil
}

type CreateUserInput struct {
	Username string
	Name     string
	Email    string
	Password string
	Group    string
}

// CreateUser adds a portal account with a hashed password.
func (s *AccountService) CreateUser(ctx context.Context, in CreateUserInput) (*model.CurrentUser, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		return nil, errors.NotValidf("empty username")
	}
	if len(in.Password) < MinPasswordLength {
		return nil, errors.NotValidf("password shorter than %d characters", MinPasswordLength)
	}
	if _, err := s.accounts.GetUserByUsername(ctx, username); err == nil {
		return nil, errors.AlreadyExistsf("portal user %q", username)
	} else if !errors.Is(err, errors.NotFound) {
		return nil, fmt.Errorf("failed to check username: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	u, err := s.accounts.CreateUser(ctx, db.CreateUserParams{
		ID:           ulid.Make().String(),
		Username:     username,
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: string(hash),
		Group:        in.Group,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create portal user: %w", err)
	}
	perms, err := s.permissions(ctx, u)
	if err != nil {
		return nil, err
	}
	return toCurrentUser(u, perms), nil
}
