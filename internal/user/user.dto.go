package user

import (
	"errors"
	"net/mail"
	"strings"
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrAlreadyExists      = errors.New("user already exists")
	ErrNotFound           = errors.New("user not found")
	ErrInvalid            = errors.New("invalid registration")
)

const MinPasswordLength = 8

type RegisterRequest struct {
	Email    string  `json:"email"`
	Password string  `json:"password"`
	Name     *string `json:"name,omitempty"`
}

func (r *RegisterRequest) Normalize() {
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	if r.Name != nil {
		name := strings.TrimSpace(*r.Name)
		if name == "" {
			r.Name = nil
		} else {
			r.Name = &name
		}
	}
}

func (r RegisterRequest) Validate() error {
	if r.Email == "" || r.Password == "" {
		return errors.Join(ErrInvalid, errors.New("email and password are required"))
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return errors.Join(ErrInvalid, errors.New("email is not valid"))
	}
	if len(r.Password) < MinPasswordLength {
		return errors.Join(ErrInvalid, errors.New("password must be at least 8 characters"))
	}
	return nil
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
	User      User   `json:"user"`
}
