package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"habitTrackerAPI/internal/auth"
	"habitTrackerAPI/internal/logger"
	"habitTrackerAPI/internal/user"
)

const shareCodeAttempts = 10

var ErrShareCodeExhausted = errors.New("failed to generate unique share code")

type AuthService struct {
	db     *pgxpool.Pool
	issuer *auth.Issuer
}

func NewAuthService(db *pgxpool.Pool, issuer *auth.Issuer) *AuthService {
	return &AuthService{db: db, issuer: issuer}
}

const userColumns = `id::text, email, full_name, share_code, is_active, created_at`

func scanUser(row pgx.Row, extra ...any) (user.User, error) {
	var u user.User
	dest := []any{&u.ID, &u.Email, &u.Name, &u.ShareCode, &u.IsActive, &u.CreatedAt}
	err := row.Scan(append(dest, extra...)...)
	return u, err
}

func (s *AuthService) Register(ctx context.Context, req user.RegisterRequest) (user.AuthResponse, error) {
	req.Normalize()
	if err := req.Validate(); err != nil {
		return user.AuthResponse{}, err
	}

	var exists bool
	if err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`, req.Email).Scan(&exists); err != nil {
		return user.AuthResponse{}, fmt.Errorf("failed to check existing user: %w", err)
	}
	if exists {
		return user.AuthResponse{}, user.ErrAlreadyExists
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return user.AuthResponse{}, err
	}
	code, err := s.uniqueShareCode(ctx)
	if err != nil {
		return user.AuthResponse{}, err
	}

	u, err := scanUser(s.db.QueryRow(ctx, `
		INSERT INTO users (email, password_hash, full_name, share_code)
		VALUES ($1, $2, $3, $4)
		RETURNING `+userColumns,
		req.Email, hash, req.Name, code,
	))
	if err != nil {
		return user.AuthResponse{}, fmt.Errorf("failed to create user: %w", err)
	}
	logger.Info("AuthService: registered user", "user_id", u.ID)
	return s.session(u)
}

func (s *AuthService) Login(ctx context.Context, req user.LoginRequest) (user.AuthResponse, error) {
	var hash string
	u, err := scanUser(s.db.QueryRow(ctx, `
		SELECT `+userColumns+`, password_hash
		FROM users
		WHERE email = lower(trim($1))
	`, req.Email), &hash)
	if errors.Is(err, pgx.ErrNoRows) {
		return user.AuthResponse{}, user.ErrInvalidCredentials
	}
	if err != nil {
		return user.AuthResponse{}, fmt.Errorf("failed to load user: %w", err)
	}
	if !u.IsActive || !auth.CheckPassword(hash, req.Password) {
		return user.AuthResponse{}, user.ErrInvalidCredentials
	}
	return s.session(u)
}

// Me loads the profile behind a verified session.
func (s *AuthService) Me(ctx context.Context, userID string) (user.User, error) {
	u, err := scanUser(s.db.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return user.User{}, user.ErrNotFound
	}
	if err != nil {
		return user.User{}, fmt.Errorf("failed to load user: %w", err)
	}
	return u, nil
}

func (s *AuthService) session(u user.User) (user.AuthResponse, error) {
	token, expires, err := s.issuer.Issue(u.ID, u.Email)
	if err != nil {
		return user.AuthResponse{}, err
	}
	return user.AuthResponse{Token: token, ExpiresAt: expires.Unix(), User: u}, nil
}

func (s *AuthService) uniqueShareCode(ctx context.Context) (string, error) {
	for i := 0; i < shareCodeAttempts; i++ {
		code, err := GenerateShareCode()
		if err != nil {
			return "", err
		}
		var taken bool
		if err := s.db.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM users WHERE share_code = $1)`, code).Scan(&taken); err != nil {
			return "", fmt.Errorf("failed to check share code: %w", err)
		}
		if !taken {
			return code, nil
		}
	}
	return "", ErrShareCodeExhausted
}

// GenerateShareCode returns a random code over the share code alphabet.
func GenerateShareCode() (string, error) {
	alphabet := user.ShareCodeAlphabet
	max := big.NewInt(int64(len(alphabet)))
	buf := make([]byte, user.ShareCodeLength)
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("failed to generate share code: %w", err)
		}
		buf[i] = alphabet[n.Int64()]
	}
	return string(buf), nil
}
