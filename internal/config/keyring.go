package config

import (
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

const keyringService = "habitctl"

var (
	ErrNoToken            = errors.New("no session token stored")
	ErrKeyringUnavailable = errors.New("OS keyring is not available")
)

// keyringUser scopes a token to one account on one server.
func keyringUser(apiURL, email string) string {
	return email + "@" + apiURL
}

func LoadToken(apiURL, email string) (string, error) {
	token, err := keyring.Get(keyringService, keyringUser(apiURL, email))
	if err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return "", ErrNoToken
		}
		return "", fmt.Errorf("%w: %v", ErrKeyringUnavailable, err)
	}
	return token, nil
}

func SaveToken(apiURL, email, token string) error {
	if token == "" {
		return errors.New("token cannot be empty")
	}
	if err := keyring.Set(keyringService, keyringUser(apiURL, email), token); err != nil {
		return fmt.Errorf("failed to store token in keyring: %w", err)
	}
	return nil
}

func DeleteToken(apiURL, email string) error {
	err := keyring.Delete(keyringService, keyringUser(apiURL, email))
	if err != nil && !errors.Is(err, keyring.ErrNotFound) {
		return fmt.Errorf("failed to delete token from keyring: %w", err)
	}
	return nil
}
